package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/example/ec-storefront/internal/api/middleware"
	"github.com/example/ec-storefront/internal/auth"
)

type RouterConfig struct {
	Handlers     *Handlers
	AuthHandlers *AuthHandlers
	Tokens       *auth.TokenService
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID, chimw.RealIP, chimw.Logger, chimw.Recoverer)
	r.Use(chimw.Timeout(15 * time.Second))

	// The gate runs ahead of every handler, exactly once per request.
	r.Use(middleware.RouteGate(cfg.Tokens))
	r.Use(middleware.Authenticate(cfg.Tokens))

	h := cfg.Handlers

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	// Public catalog and offers
	r.Get("/api/offers", h.GetOffers)
	r.Get("/api/offers/happy-hour", h.GetHappyHour)
	r.Get("/api/products", h.GetProducts)
	r.Get("/api/products/{slug}", h.GetProduct)
	r.Get("/api/categories", h.GetCategories)

	// Auth
	r.Route("/api/auth", func(r chi.Router) {
		r.Post("/register", cfg.AuthHandlers.Register)
		r.Post("/login", cfg.AuthHandlers.Login)
		r.Post("/logout", cfg.AuthHandlers.Logout)
		r.Get("/me", cfg.AuthHandlers.Me)
	})

	// Cart and wishlist work for guests too.
	r.Route("/api/cart", func(r chi.Router) {
		r.Get("/", h.GetCart)
		r.Delete("/", h.ClearCart)
		r.Post("/items", h.AddCartItem)
		r.Put("/items/{id}", h.UpdateCartItem)
		r.Delete("/items/{id}", h.RemoveCartItem)
	})
	r.Route("/api/wishlist", func(r chi.Router) {
		r.Get("/", h.GetWishlist)
		r.Delete("/", h.ClearWishlist)
		r.Post("/items", h.AddWishlistItem)
		r.Delete("/items/{id}", h.RemoveWishlistItem)
	})

	// Orders and builds require a session.
	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireAuth)
		r.Post("/api/orders", h.PlaceOrder)
		r.Get("/api/orders", h.GetOrders)
		r.Get("/api/orders/{id}", h.GetOrder)
		r.Post("/api/builds", h.SaveBuild)
		r.Get("/api/builds", h.GetBuilds)
	})

	// Back office
	r.Route("/api/admin", func(r chi.Router) {
		r.Use(middleware.RequireRole(auth.RoleModerator, auth.RoleAdmin))
		r.Post("/products", h.CreateProduct)
		r.Put("/products/{id}", h.UpdateProduct)
		r.Delete("/products/{id}", h.DeleteProduct)
		r.Post("/categories", h.CreateCategory)
		r.Put("/categories/{id}", h.UpdateCategory)
		r.Delete("/categories/{id}", h.DeleteCategory)
		r.Get("/orders", h.GetAllOrders)
	})

	return r
}
