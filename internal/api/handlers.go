package api

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/example/ec-storefront/internal/api/middleware"
	"github.com/example/ec-storefront/internal/catalog"
	"github.com/example/ec-storefront/internal/collection"
	"github.com/example/ec-storefront/internal/events"
	"github.com/example/ec-storefront/internal/kv"
	"github.com/example/ec-storefront/internal/offers"
	"github.com/example/ec-storefront/internal/orders"
)

// CatalogStore is the catalog access the handlers need.
type CatalogStore interface {
	ListPromotional(ctx context.Context) ([]catalog.Product, error)
	List(ctx context.Context) ([]catalog.Product, error)
	GetBySlug(ctx context.Context, slug string) (*catalog.Product, error)
	GetByID(ctx context.Context, id string) (*catalog.Product, error)
	Create(ctx context.Context, p catalog.Product) (*catalog.Product, error)
	Update(ctx context.Context, p catalog.Product) error
	Delete(ctx context.Context, id string) error
	ListCategories(ctx context.Context) ([]catalog.Category, error)
	CreateCategory(ctx context.Context, c catalog.Category) (*catalog.Category, error)
	UpdateCategory(ctx context.Context, c catalog.Category) error
	DeleteCategory(ctx context.Context, id string) error
}

// OrderStore is the order and build access the handlers need.
type OrderStore interface {
	Place(ctx context.Context, userID string, lines []orders.CartLine) (*orders.Order, error)
	Get(ctx context.Context, id string) (*orders.Order, error)
	ListByUser(ctx context.Context, userID string) ([]orders.Order, error)
	ListAll(ctx context.Context) ([]orders.Order, error)
	SaveBuild(ctx context.Context, userID, name string, productIDs []string) (*orders.Build, error)
	ListBuilds(ctx context.Context, userID string) ([]orders.Build, error)
}

type Handlers struct {
	catalog   CatalogStore
	orders    OrderStore
	kv        kv.Store
	filter    *offers.Filter
	publisher events.Publisher
	now       func() time.Time
}

func NewHandlers(catalogStore CatalogStore, orderStore OrderStore, kvStore kv.Store, filter *offers.Filter, publisher events.Publisher) *Handlers {
	return &Handlers{
		catalog:   catalogStore,
		orders:    orderStore,
		kv:        kvStore,
		filter:    filter,
		publisher: publisher,
		now:       time.Now,
	}
}

// Offer Handlers

type offersResponse struct {
	Products []offers.ProductSummary `json:"products"`
	EndTime  string                  `json:"endTime,omitempty"`
}

func (h *Handlers) GetOffers(w http.ResponseWriter, r *http.Request) {
	products, err := h.catalog.ListPromotional(r.Context())
	if err != nil {
		log.Printf("[API] Failed to load promotional products: %v", err)
		respondJSON(w, http.StatusInternalServerError, offersResponse{Products: []offers.ProductSummary{}})
		return
	}

	summaries := h.filter.Eligible(products, h.now())
	respondJSON(w, http.StatusOK, offersResponse{Products: summaries})
}

func (h *Handlers) GetHappyHour(w http.ResponseWriter, r *http.Request) {
	products, err := h.catalog.ListPromotional(r.Context())
	if err != nil {
		log.Printf("[API] Failed to load promotional products: %v", err)
		respondJSON(w, http.StatusInternalServerError, offersResponse{Products: []offers.ProductSummary{}})
		return
	}

	summaries, endTime := h.filter.HappyHour(products, h.now())
	respondJSON(w, http.StatusOK, offersResponse{
		Products: summaries,
		EndTime:  endTime.Format(time.RFC3339Nano),
	})
}

// Cart and Wishlist Handlers

type collectionResponse struct {
	Items []collection.Item `json:"items"`
	Count int               `json:"count"`
	Total float64           `json:"total"`
}

func (h *Handlers) respondCollection(w http.ResponseWriter, status int, store *collection.Store) {
	respondJSON(w, status, collectionResponse{
		Items: store.Items(),
		Count: store.Count(),
		Total: store.Total(),
	})
}

func (h *Handlers) loadCollection(r *http.Request, kind collection.Kind) *collection.Store {
	return collection.Load(r.Context(), h.kv, kind, collectionOwner(r))
}

func (h *Handlers) GetCart(w http.ResponseWriter, r *http.Request) {
	h.respondCollection(w, http.StatusOK, h.loadCollection(r, collection.KindCart))
}

func (h *Handlers) AddCartItem(w http.ResponseWriter, r *http.Request) {
	h.addCollectionItem(w, r, collection.KindCart)
}

func (h *Handlers) GetWishlist(w http.ResponseWriter, r *http.Request) {
	h.respondCollection(w, http.StatusOK, h.loadCollection(r, collection.KindWishlist))
}

func (h *Handlers) AddWishlistItem(w http.ResponseWriter, r *http.Request) {
	h.addCollectionItem(w, r, collection.KindWishlist)
}

// addCollectionItem builds the entry from the catalog row, never from
// client-supplied prices.
func (h *Handlers) addCollectionItem(w http.ResponseWriter, r *http.Request, kind collection.Kind) {
	var req struct {
		ProductID string `json:"product_id"`
		Quantity  int    `json:"quantity"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	product, err := h.catalog.GetByID(r.Context(), req.ProductID)
	if err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			respondJSONError(w, "Product not found", http.StatusNotFound)
			return
		}
		respondJSONError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	store := h.loadCollection(r, kind)
	item := collection.Item{
		ProductID:     product.ID,
		Name:          product.Name,
		Slug:          product.Slug,
		Price:         product.Price,
		DiscountPrice: product.DiscountPrice,
		ImageURL:      product.PrimaryImage(),
		Brand:         product.Brand,
		Category:      product.CategoryName,
		Stock:         product.Stock,
		Quantity:      req.Quantity,
	}
	if err := store.Add(r.Context(), item); err != nil {
		respondJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}

	h.respondCollection(w, http.StatusOK, store)
}

func (h *Handlers) UpdateCartItem(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Quantity int `json:"quantity"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	store := h.loadCollection(r, collection.KindCart)
	if err := store.UpdateQuantity(r.Context(), chi.URLParam(r, "id"), req.Quantity); err != nil {
		respondJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}

	h.respondCollection(w, http.StatusOK, store)
}

func (h *Handlers) RemoveCartItem(w http.ResponseWriter, r *http.Request) {
	store := h.loadCollection(r, collection.KindCart)
	store.Remove(r.Context(), chi.URLParam(r, "id"))
	h.respondCollection(w, http.StatusOK, store)
}

func (h *Handlers) RemoveWishlistItem(w http.ResponseWriter, r *http.Request) {
	store := h.loadCollection(r, collection.KindWishlist)
	store.Remove(r.Context(), chi.URLParam(r, "id"))
	h.respondCollection(w, http.StatusOK, store)
}

func (h *Handlers) ClearCart(w http.ResponseWriter, r *http.Request) {
	store := h.loadCollection(r, collection.KindCart)
	store.Clear(r.Context())
	h.respondCollection(w, http.StatusOK, store)
}

func (h *Handlers) ClearWishlist(w http.ResponseWriter, r *http.Request) {
	store := h.loadCollection(r, collection.KindWishlist)
	store.Clear(r.Context())
	h.respondCollection(w, http.StatusOK, store)
}

// Catalog Handlers

func (h *Handlers) GetProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.catalog.List(r.Context())
	if err != nil {
		respondJSONError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if products == nil {
		products = []catalog.Product{}
	}
	respondJSON(w, http.StatusOK, products)
}

func (h *Handlers) GetProduct(w http.ResponseWriter, r *http.Request) {
	product, err := h.catalog.GetBySlug(r.Context(), chi.URLParam(r, "slug"))
	if err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			respondJSONError(w, "Product not found", http.StatusNotFound)
			return
		}
		respondJSONError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	respondJSON(w, http.StatusOK, product)
}

func (h *Handlers) GetCategories(w http.ResponseWriter, r *http.Request) {
	categories, err := h.catalog.ListCategories(r.Context())
	if err != nil {
		respondJSONError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if categories == nil {
		categories = []catalog.Category{}
	}
	respondJSON(w, http.StatusOK, categories)
}

// Admin Catalog Handlers

func (h *Handlers) CreateProduct(w http.ResponseWriter, r *http.Request) {
	var p catalog.Product
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		respondJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if p.Name == "" || p.Slug == "" || p.Price < 0 {
		respondJSONError(w, "name, slug and a non-negative price are required", http.StatusBadRequest)
		return
	}

	created, err := h.catalog.Create(r.Context(), p)
	if err != nil {
		respondJSONError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	respondJSON(w, http.StatusCreated, created)
}

func (h *Handlers) UpdateProduct(w http.ResponseWriter, r *http.Request) {
	var p catalog.Product
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		respondJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	p.ID = chi.URLParam(r, "id")

	if err := h.catalog.Update(r.Context(), p); err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			respondJSONError(w, "Product not found", http.StatusNotFound)
			return
		}
		respondJSONError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	h.publish(r.Context(), p.ID, events.EventProductUpdated, events.ProductUpdated{ProductID: p.ID, Slug: p.Slug})
	respondJSON(w, http.StatusOK, map[string]string{"message": "Product updated"})
}

func (h *Handlers) DeleteProduct(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.catalog.Delete(r.Context(), id); err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			respondJSONError(w, "Product not found", http.StatusNotFound)
			return
		}
		respondJSONError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"message": "Product deleted"})
}

func (h *Handlers) CreateCategory(w http.ResponseWriter, r *http.Request) {
	var c catalog.Category
	if err := json.NewDecoder(r.Body).Decode(&c); err != nil {
		respondJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if c.Name == "" || c.Slug == "" {
		respondJSONError(w, "name and slug are required", http.StatusBadRequest)
		return
	}

	created, err := h.catalog.CreateCategory(r.Context(), c)
	if err != nil {
		respondJSONError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	respondJSON(w, http.StatusCreated, created)
}

func (h *Handlers) UpdateCategory(w http.ResponseWriter, r *http.Request) {
	var c catalog.Category
	if err := json.NewDecoder(r.Body).Decode(&c); err != nil {
		respondJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	c.ID = chi.URLParam(r, "id")

	if err := h.catalog.UpdateCategory(r.Context(), c); err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			respondJSONError(w, "Category not found", http.StatusNotFound)
			return
		}
		respondJSONError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"message": "Category updated"})
}

func (h *Handlers) DeleteCategory(w http.ResponseWriter, r *http.Request) {
	if err := h.catalog.DeleteCategory(r.Context(), chi.URLParam(r, "id")); err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			respondJSONError(w, "Category not found", http.StatusNotFound)
			return
		}
		respondJSONError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"message": "Category deleted"})
}

// Order Handlers

func (h *Handlers) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	cart := h.loadCollection(r, collection.KindCart)

	lines := make([]orders.CartLine, 0, cart.Count())
	for _, item := range cart.Items() {
		lines = append(lines, orders.CartLine{ProductID: item.ProductID, Quantity: item.Quantity})
	}

	order, err := h.orders.Place(r.Context(), userID, lines)
	if err != nil {
		if errors.Is(err, orders.ErrEmptyOrder) || errors.Is(err, orders.ErrNoStock) {
			respondJSONError(w, err.Error(), http.StatusBadRequest)
			return
		}
		respondJSONError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	cart.Clear(r.Context())
	h.publish(r.Context(), order.ID, events.EventOrderPlaced, events.OrderPlaced{
		OrderID:   order.ID,
		UserID:    order.UserID,
		ItemCount: len(order.Items),
		Total:     order.Total,
	})

	respondJSON(w, http.StatusCreated, order)
}

func (h *Handlers) GetOrders(w http.ResponseWriter, r *http.Request) {
	list, err := h.orders.ListByUser(r.Context(), middleware.GetUserID(r.Context()))
	if err != nil {
		respondJSONError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if list == nil {
		list = []orders.Order{}
	}
	respondJSON(w, http.StatusOK, list)
}

func (h *Handlers) GetOrder(w http.ResponseWriter, r *http.Request) {
	order, err := h.orders.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, orders.ErrNotFound) {
			respondJSONError(w, "Order not found", http.StatusNotFound)
			return
		}
		respondJSONError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	// Users see only their own orders; staff see all.
	claims, _ := middleware.GetUserFromContext(r.Context())
	if order.UserID != claims.UserID && !claims.IsStaff() {
		respondJSONError(w, "forbidden", http.StatusForbidden)
		return
	}

	respondJSON(w, http.StatusOK, order)
}

func (h *Handlers) GetAllOrders(w http.ResponseWriter, r *http.Request) {
	list, err := h.orders.ListAll(r.Context())
	if err != nil {
		respondJSONError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if list == nil {
		list = []orders.Order{}
	}
	respondJSON(w, http.StatusOK, list)
}

// Build Handlers

func (h *Handlers) SaveBuild(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name       string   `json:"name"`
		ProductIDs []string `json:"product_ids"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.Name == "" || len(req.ProductIDs) == 0 {
		respondJSONError(w, "name and product_ids are required", http.StatusBadRequest)
		return
	}

	build, err := h.orders.SaveBuild(r.Context(), middleware.GetUserID(r.Context()), req.Name, req.ProductIDs)
	if err != nil {
		respondJSONError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	respondJSON(w, http.StatusCreated, build)
}

func (h *Handlers) GetBuilds(w http.ResponseWriter, r *http.Request) {
	builds, err := h.orders.ListBuilds(r.Context(), middleware.GetUserID(r.Context()))
	if err != nil {
		respondJSONError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if builds == nil {
		builds = []orders.Build{}
	}
	respondJSON(w, http.StatusOK, builds)
}

// Helper functions

func (h *Handlers) publish(ctx context.Context, key, eventType string, payload any) {
	if h.publisher == nil {
		return
	}
	envelope := events.Envelope{Type: eventType, OccurredAt: h.now(), Payload: payload}
	if err := h.publisher.Publish(ctx, key, envelope); err != nil {
		log.Printf("[API] Failed to publish %s: %v", eventType, err)
	}
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func respondJSONError(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}

// collectionOwner identifies whose cart or wishlist a request touches:
// the session user when present, an explicit guest id header otherwise.
func collectionOwner(r *http.Request) string {
	if userID := middleware.GetUserID(r.Context()); userID != "" {
		return userID
	}
	if guestID := r.Header.Get("X-Guest-ID"); guestID != "" {
		return "guest-" + guestID
	}
	return "guest"
}
