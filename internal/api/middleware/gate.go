package middleware

import (
	"net/http"
	"strings"

	"github.com/example/ec-storefront/internal/auth"
)

// Redirect targets used by the route gate.
const (
	LoginPath   = "/login"
	AccountPath = "/account"
	AdminPath   = "/admin"
)

type pathClass int

const (
	classOther pathClass = iota
	classAdmin
	classAuth
)

func classify(path string) pathClass {
	switch {
	case path == AdminPath || strings.HasPrefix(path, AdminPath+"/"):
		return classAdmin
	case path == LoginPath || path == "/register" || strings.HasPrefix(path, LoginPath+"/") || strings.HasPrefix(path, "/register/"):
		return classAuth
	default:
		return classOther
	}
}

// RouteGate evaluates the access table once per request, ahead of every
// handler. The token is verified here; verification failure of any kind
// means unauthenticated. The only side effect is a redirect or pass-through.
//
//	path class | no token | customer    | moderator/admin
//	admin      | /login   | /account    | pass
//	auth       | pass     | /account    | /admin
//	other      | pass     | pass        | pass
func RouteGate(tokens *auth.TokenService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			class := classify(r.URL.Path)
			if class == classOther {
				next.ServeHTTP(w, r)
				return
			}

			var claims *auth.Claims
			if tokenString := ExtractToken(r); tokenString != "" {
				if c, err := tokens.Verify(tokenString); err == nil {
					claims = c
				}
			}

			switch class {
			case classAdmin:
				switch {
				case claims == nil:
					http.Redirect(w, r, LoginPath, http.StatusSeeOther)
				case claims.IsStaff():
					next.ServeHTTP(w, r)
				default:
					http.Redirect(w, r, AccountPath, http.StatusSeeOther)
				}
			case classAuth:
				switch {
				case claims == nil:
					next.ServeHTTP(w, r)
				case claims.IsStaff():
					http.Redirect(w, r, AdminPath, http.StatusSeeOther)
				default:
					http.Redirect(w, r, AccountPath, http.StatusSeeOther)
				}
			}
		})
	}
}
