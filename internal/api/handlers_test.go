package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/example/ec-storefront/internal/auth"
	"github.com/example/ec-storefront/internal/catalog"
	"github.com/example/ec-storefront/internal/kv"
	"github.com/example/ec-storefront/internal/offers"
	"github.com/example/ec-storefront/internal/orders"
	"github.com/example/ec-storefront/internal/users"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

// fakeCatalog is a map-backed CatalogStore.
type fakeCatalog struct {
	products map[string]catalog.Product
	failing  bool
}

func newFakeCatalog(products ...catalog.Product) *fakeCatalog {
	f := &fakeCatalog{products: make(map[string]catalog.Product)}
	for _, p := range products {
		f.products[p.ID] = p
	}
	return f
}

var errCatalogDown = errors.New("catalog unavailable")

func (f *fakeCatalog) ListPromotional(ctx context.Context) ([]catalog.Product, error) {
	if f.failing {
		return nil, errCatalogDown
	}
	var out []catalog.Product
	for _, p := range f.products {
		if p.IsActive && p.IsOffer {
			out = append(out, p)
		}
	}
	return out, nil
}

func (f *fakeCatalog) List(ctx context.Context) ([]catalog.Product, error) {
	if f.failing {
		return nil, errCatalogDown
	}
	var out []catalog.Product
	for _, p := range f.products {
		out = append(out, p)
	}
	return out, nil
}

func (f *fakeCatalog) GetBySlug(ctx context.Context, slug string) (*catalog.Product, error) {
	for _, p := range f.products {
		if p.Slug == slug {
			return &p, nil
		}
	}
	return nil, catalog.ErrNotFound
}

func (f *fakeCatalog) GetByID(ctx context.Context, id string) (*catalog.Product, error) {
	p, ok := f.products[id]
	if !ok {
		return nil, catalog.ErrNotFound
	}
	return &p, nil
}

func (f *fakeCatalog) Create(ctx context.Context, p catalog.Product) (*catalog.Product, error) {
	if p.ID == "" {
		p.ID = "generated-id"
	}
	f.products[p.ID] = p
	return &p, nil
}

func (f *fakeCatalog) Update(ctx context.Context, p catalog.Product) error {
	if _, ok := f.products[p.ID]; !ok {
		return catalog.ErrNotFound
	}
	f.products[p.ID] = p
	return nil
}

func (f *fakeCatalog) Delete(ctx context.Context, id string) error {
	if _, ok := f.products[id]; !ok {
		return catalog.ErrNotFound
	}
	delete(f.products, id)
	return nil
}

func (f *fakeCatalog) ListCategories(ctx context.Context) ([]catalog.Category, error) {
	return nil, nil
}

func (f *fakeCatalog) CreateCategory(ctx context.Context, c catalog.Category) (*catalog.Category, error) {
	return &c, nil
}

func (f *fakeCatalog) UpdateCategory(ctx context.Context, c catalog.Category) error { return nil }
func (f *fakeCatalog) DeleteCategory(ctx context.Context, id string) error          { return nil }

// fakeOrders records placements.
type fakeOrders struct {
	placed []orders.CartLine
	order  *orders.Order
}

func (f *fakeOrders) Place(ctx context.Context, userID string, lines []orders.CartLine) (*orders.Order, error) {
	if len(lines) == 0 {
		return nil, orders.ErrEmptyOrder
	}
	f.placed = lines
	o := &orders.Order{ID: "order-1", UserID: userID, Status: orders.StatusPlaced}
	for _, l := range lines {
		o.Items = append(o.Items, orders.OrderItem{ProductID: l.ProductID, Quantity: l.Quantity})
	}
	f.order = o
	return o, nil
}

func (f *fakeOrders) Get(ctx context.Context, id string) (*orders.Order, error) {
	if f.order == nil || f.order.ID != id {
		return nil, orders.ErrNotFound
	}
	return f.order, nil
}

func (f *fakeOrders) ListByUser(ctx context.Context, userID string) ([]orders.Order, error) {
	if f.order != nil && f.order.UserID == userID {
		return []orders.Order{*f.order}, nil
	}
	return nil, nil
}

func (f *fakeOrders) ListAll(ctx context.Context) ([]orders.Order, error) {
	if f.order != nil {
		return []orders.Order{*f.order}, nil
	}
	return nil, nil
}

func (f *fakeOrders) SaveBuild(ctx context.Context, userID, name string, productIDs []string) (*orders.Build, error) {
	return &orders.Build{ID: "build-1", UserID: userID, Name: name, ProductIDs: productIDs}, nil
}

func (f *fakeOrders) ListBuilds(ctx context.Context, userID string) ([]orders.Build, error) {
	return nil, nil
}

// fakeUsers backs the auth handlers.
type fakeUsers struct {
	byEmail map[string]*users.User
}

func (f *fakeUsers) Create(ctx context.Context, email, passwordHash, name, role string) (*users.User, error) {
	if _, ok := f.byEmail[email]; ok {
		return nil, users.ErrEmailTaken
	}
	u := &users.User{ID: "user-" + email, Email: email, PasswordHash: passwordHash, Name: name, Role: role, IsActive: true}
	f.byEmail[email] = u
	return u, nil
}

func (f *fakeUsers) GetByEmail(ctx context.Context, email string) (*users.User, error) {
	u, ok := f.byEmail[email]
	if !ok {
		return nil, users.ErrNotFound
	}
	return u, nil
}

func (f *fakeUsers) GetByID(ctx context.Context, id string) (*users.User, error) {
	for _, u := range f.byEmail {
		if u.ID == id {
			return u, nil
		}
	}
	return nil, users.ErrNotFound
}

// fakePublisher records published events.
type fakePublisher struct {
	published []string
}

func (f *fakePublisher) Publish(ctx context.Context, key string, event any) error {
	f.published = append(f.published, key)
	return nil
}

type testEnv struct {
	router    http.Handler
	catalog   *fakeCatalog
	orders    *fakeOrders
	kv        *kv.MemoryStore
	publisher *fakePublisher
	tokens    *auth.TokenService
}

func newTestEnv(t *testing.T, products ...catalog.Product) *testEnv {
	t.Helper()

	env := &testEnv{
		catalog:   newFakeCatalog(products...),
		orders:    &fakeOrders{},
		kv:        kv.NewMemoryStore(),
		publisher: &fakePublisher{},
		tokens:    auth.NewTokenService("handlers-test-secret", 15*time.Minute),
	}

	handlers := NewHandlers(env.catalog, env.orders, env.kv, offers.NewFilter(""), env.publisher)
	handlers.now = func() time.Time { return fixedNow }

	authHandlers := NewAuthHandlers(&fakeUsers{byEmail: make(map[string]*users.User)}, env.tokens)

	env.router = NewRouter(RouterConfig{
		Handlers:     handlers,
		AuthHandlers: authHandlers,
		Tokens:       env.tokens,
	})
	return env
}

func (env *testEnv) do(t *testing.T, method, path string, body any, token string) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("X-Guest-ID", "g1")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	return rec
}

func (env *testEnv) issueToken(t *testing.T, userID, role string) string {
	t.Helper()
	token, _, err := env.tokens.Issue(userID, userID+"@example.com", role)
	require.NoError(t, err)
	return token
}

func promoProduct(id string) catalog.Product {
	discount := 80.0
	return catalog.Product{
		ID:            id,
		Slug:          "slug-" + id,
		Name:          "Product " + id,
		Brand:         "Acme",
		Price:         100,
		DiscountPrice: &discount,
		IsActive:      true,
		IsOffer:       true,
		OfferType:     catalog.OfferHappyHour,
		Stock:         5,
		CategoryName:  "GPUs",
		CreatedAt:     fixedNow.Add(-time.Hour),
	}
}

// Offers

func TestGetOffers(t *testing.T) {
	env := newTestEnv(t, promoProduct("p1"))

	rec := env.do(t, http.MethodGet, "/api/offers", nil, "")

	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Products []offers.ProductSummary `json:"products"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Products, 1)
	assert.Equal(t, "p1", resp.Products[0].ID)
	assert.Equal(t, 20, resp.Products[0].DiscountPercentage)
	assert.Equal(t, offers.DefaultPlaceholder, resp.Products[0].ImageURL)
}

func TestGetOffers_CatalogFailure_DegradesToEmpty(t *testing.T) {
	env := newTestEnv(t)
	env.catalog.failing = true

	rec := env.do(t, http.MethodGet, "/api/offers", nil, "")

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"products":[]}`, rec.Body.String())
}

func TestGetHappyHour_IncludesEndTime(t *testing.T) {
	env := newTestEnv(t, promoProduct("p1"))

	rec := env.do(t, http.MethodGet, "/api/offers/happy-hour", nil, "")

	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Products []offers.ProductSummary `json:"products"`
		EndTime  string                  `json:"endTime"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Products, 1)

	endTime, err := time.Parse(time.RFC3339Nano, resp.EndTime)
	require.NoError(t, err)
	assert.Equal(t, offers.EndOfDay(fixedNow), endTime)
}

// Cart

func TestCartFlow(t *testing.T) {
	env := newTestEnv(t, promoProduct("p1"))

	rec := env.do(t, http.MethodPost, "/api/cart/items", map[string]any{"product_id": "p1"}, "")
	require.Equal(t, http.StatusOK, rec.Code)

	// Adding again increments quantity instead of duplicating.
	rec = env.do(t, http.MethodPost, "/api/cart/items", map[string]any{"product_id": "p1"}, "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp collectionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, 1, resp.Count)
	assert.Equal(t, 2, resp.Items[0].Quantity)
	assert.Equal(t, 160.0, resp.Total) // discounted price applies

	rec = env.do(t, http.MethodPut, "/api/cart/items/p1", map[string]any{"quantity": 5}, "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 5, resp.Items[0].Quantity)

	rec = env.do(t, http.MethodDelete, "/api/cart/items/p1", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 0, resp.Count)
}

func TestAddCartItem_UnknownProduct(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/cart/items", map[string]any{"product_id": "nope"}, "")

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestWishlist_AddTwiceKeepsOne(t *testing.T) {
	env := newTestEnv(t, promoProduct("p1"))

	env.do(t, http.MethodPost, "/api/wishlist/items", map[string]any{"product_id": "p1"}, "")
	rec := env.do(t, http.MethodPost, "/api/wishlist/items", map[string]any{"product_id": "p1"}, "")

	require.Equal(t, http.StatusOK, rec.Code)
	var resp collectionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.Count)
}

func TestCart_GuestAndUserAreSeparate(t *testing.T) {
	env := newTestEnv(t, promoProduct("p1"))
	token := env.issueToken(t, "user-1", auth.RoleCustomer)

	env.do(t, http.MethodPost, "/api/cart/items", map[string]any{"product_id": "p1"}, "")

	rec := env.do(t, http.MethodGet, "/api/cart", nil, token)
	require.Equal(t, http.StatusOK, rec.Code)
	var resp collectionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 0, resp.Count)
}

// Orders

func TestPlaceOrder_FromCart(t *testing.T) {
	env := newTestEnv(t, promoProduct("p1"))
	token := env.issueToken(t, "user-1", auth.RoleCustomer)

	rec := env.do(t, http.MethodPost, "/api/cart/items", map[string]any{"product_id": "p1", "quantity": 3}, token)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/orders", nil, token)
	require.Equal(t, http.StatusCreated, rec.Code)

	require.Len(t, env.orders.placed, 1)
	assert.Equal(t, orders.CartLine{ProductID: "p1", Quantity: 3}, env.orders.placed[0])
	assert.Equal(t, []string{"order-1"}, env.publisher.published)

	// The cart is cleared after placement.
	rec = env.do(t, http.MethodGet, "/api/cart", nil, token)
	var resp collectionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 0, resp.Count)
}

func TestPlaceOrder_RequiresAuth(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/orders", nil, "")

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestPlaceOrder_EmptyCart(t *testing.T) {
	env := newTestEnv(t)
	token := env.issueToken(t, "user-1", auth.RoleCustomer)

	rec := env.do(t, http.MethodPost, "/api/orders", nil, token)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetOrder_OwnerOnly(t *testing.T) {
	env := newTestEnv(t, promoProduct("p1"))
	owner := env.issueToken(t, "user-1", auth.RoleCustomer)
	other := env.issueToken(t, "user-2", auth.RoleCustomer)
	staff := env.issueToken(t, "user-3", auth.RoleModerator)

	env.do(t, http.MethodPost, "/api/cart/items", map[string]any{"product_id": "p1"}, owner)
	rec := env.do(t, http.MethodPost, "/api/orders", nil, owner)
	require.Equal(t, http.StatusCreated, rec.Code)

	assert.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/api/orders/order-1", nil, owner).Code)
	assert.Equal(t, http.StatusForbidden, env.do(t, http.MethodGet, "/api/orders/order-1", nil, other).Code)
	assert.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/api/orders/order-1", nil, staff).Code)
}

// Admin

func TestAdminAPI_RoleGating(t *testing.T) {
	env := newTestEnv(t)
	customer := env.issueToken(t, "user-1", auth.RoleCustomer)
	admin := env.issueToken(t, "user-2", auth.RoleAdmin)

	product := map[string]any{"name": "Widget", "slug": "widget", "price": 9.99}

	assert.Equal(t, http.StatusUnauthorized, env.do(t, http.MethodPost, "/api/admin/products", product, "").Code)
	assert.Equal(t, http.StatusForbidden, env.do(t, http.MethodPost, "/api/admin/products", product, customer).Code)
	assert.Equal(t, http.StatusCreated, env.do(t, http.MethodPost, "/api/admin/products", product, admin).Code)
}

func TestAdminCreateProduct_Validation(t *testing.T) {
	env := newTestEnv(t)
	admin := env.issueToken(t, "user-1", auth.RoleAdmin)

	rec := env.do(t, http.MethodPost, "/api/admin/products", map[string]any{"name": "No slug"}, admin)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAdminUpdateProduct_PublishesEvent(t *testing.T) {
	env := newTestEnv(t, promoProduct("p1"))
	admin := env.issueToken(t, "user-1", auth.RoleAdmin)

	update := map[string]any{"name": "Renamed", "slug": "slug-p1", "price": 50}
	rec := env.do(t, http.MethodPut, "/api/admin/products/p1", update, admin)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"p1"}, env.publisher.published)
}

// Builds

func TestSaveBuild(t *testing.T) {
	env := newTestEnv(t)
	token := env.issueToken(t, "user-1", auth.RoleCustomer)

	rec := env.do(t, http.MethodPost, "/api/builds",
		map[string]any{"name": "Gaming rig", "product_ids": []string{"p1", "p2"}}, token)

	require.Equal(t, http.StatusCreated, rec.Code)
	var build orders.Build
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &build))
	assert.Equal(t, "user-1", build.UserID)
	assert.Equal(t, []string{"p1", "p2"}, build.ProductIDs)
}

// Auth endpoints

func TestRegisterLoginMe(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/auth/register",
		map[string]any{"email": "a@example.com", "password": "long-enough", "name": "A"}, "")
	require.Equal(t, http.StatusCreated, rec.Code)

	var cookie string
	for _, c := range rec.Result().Cookies() {
		if c.Name == "access_token" {
			cookie = c.Value
		}
	}
	require.NotEmpty(t, cookie)

	rec = env.do(t, http.MethodGet, "/api/auth/me", nil, cookie)
	require.Equal(t, http.StatusOK, rec.Code)
	var me UserResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &me))
	assert.Equal(t, "a@example.com", me.Email)
	assert.Equal(t, auth.RoleCustomer, me.Role)

	rec = env.do(t, http.MethodPost, "/api/auth/login",
		map[string]any{"email": "a@example.com", "password": "wrong-password"}, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/auth/login",
		map[string]any{"email": "a@example.com", "password": "long-enough"}, "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRegister_ShortPassword(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/auth/register",
		map[string]any{"email": "a@example.com", "password": "short", "name": "A"}, "")

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
