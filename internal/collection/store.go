package collection

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"time"

	"github.com/example/ec-storefront/internal/kv"
)

var (
	ErrInvalidProduct  = errors.New("product_id is required")
	ErrInvalidPrice    = errors.New("price must not be negative")
	ErrInvalidQuantity = errors.New("quantity must be positive")
)

// snapshot is the persisted envelope. Items stay raw so migration can decode
// entries individually and drop the broken ones.
type snapshot struct {
	SchemaVersion int             `json:"schema_version"`
	Items         json.RawMessage `json:"items"`
}

// Store is an in-memory collection mirrored to durable storage. It is
// request-scoped: loaded, mutated and discarded within a single request, so
// no locking is needed. Durability is best-effort: a failed write is logged
// and swallowed, and the in-memory state stands for the rest of the request.
type Store struct {
	kind  Kind
	key   string
	kv    kv.Store
	items map[string]Item
	order []string
}

// Load builds a store from the persisted snapshot for the user. Storage
// failures and undecodable snapshots fall back to an empty collection rather
// than surfacing an error.
func Load(ctx context.Context, store kv.Store, kind Kind, userID string) *Store {
	key := kv.CartKey(userID)
	if kind == KindWishlist {
		key = kv.WishlistKey(userID)
	}

	s := &Store{
		kind:  kind,
		key:   key,
		kv:    store,
		items: make(map[string]Item),
	}

	data, err := store.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, kv.ErrNotFound) {
			log.Printf("[Collection] Failed to read %s, starting empty: %v", key, err)
		}
		return s
	}

	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		log.Printf("[Collection] Corrupt snapshot at %s, starting empty: %v", key, err)
		return s
	}

	if snap.SchemaVersion < SchemaVersion {
		s.migrate(snap)
		return s
	}

	var items []Item
	if err := json.Unmarshal(snap.Items, &items); err != nil {
		log.Printf("[Collection] Undecodable items at %s, starting empty: %v", key, err)
		return s
	}
	for _, item := range items {
		s.insert(item)
	}
	return s
}

// migrate repairs an old-version snapshot: entries are decoded one by one and
// anything that fails the structural check (numeric price, non-empty product
// id) is discarded silently.
func (s *Store) migrate(snap snapshot) {
	var raw []json.RawMessage
	if err := json.Unmarshal(snap.Items, &raw); err != nil {
		return
	}

	dropped := 0
	for _, entry := range raw {
		var item Item
		if err := json.Unmarshal(entry, &item); err != nil {
			dropped++
			continue
		}
		if item.ProductID == "" || item.Price < 0 {
			dropped++
			continue
		}
		if s.kind == KindCart && item.Quantity < 1 {
			item.Quantity = 1
		}
		s.insert(item)
	}
	if dropped > 0 {
		log.Printf("[Collection] Migrated %s from v%d: dropped %d invalid entries", s.key, snap.SchemaVersion, dropped)
	}
}

func (s *Store) insert(item Item) {
	if _, ok := s.items[item.ProductID]; !ok {
		s.order = append(s.order, item.ProductID)
	}
	s.items[item.ProductID] = item
}

// Add inserts the item. A cart add for an existing product increments its
// quantity; a wishlist add for an existing product is a no-op. The snapshot
// write is best-effort.
func (s *Store) Add(ctx context.Context, item Item) error {
	if item.ProductID == "" {
		return ErrInvalidProduct
	}
	if item.Price < 0 {
		return ErrInvalidPrice
	}
	if s.kind == KindCart {
		if item.Quantity < 0 {
			return ErrInvalidQuantity
		}
		if item.Quantity == 0 {
			item.Quantity = 1
		}
	}

	if existing, ok := s.items[item.ProductID]; ok {
		if s.kind == KindWishlist {
			return nil
		}
		existing.Quantity += item.Quantity
		existing.Price = item.Price
		existing.DiscountPrice = item.DiscountPrice
		s.items[item.ProductID] = existing
		s.persist(ctx)
		return nil
	}

	if item.AddedAt.IsZero() {
		item.AddedAt = time.Now()
	}
	s.insert(item)
	s.persist(ctx)
	return nil
}

// Remove deletes the entry if present. Absent ids are not an error and do not
// trigger a write.
func (s *Store) Remove(ctx context.Context, productID string) {
	if _, ok := s.items[productID]; !ok {
		return
	}
	delete(s.items, productID)
	for i, id := range s.order {
		if id == productID {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	s.persist(ctx)
}

// UpdateQuantity sets the quantity of an existing cart item. Absent ids are a
// no-op; wishlists do not carry quantities.
func (s *Store) UpdateQuantity(ctx context.Context, productID string, quantity int) error {
	if s.kind != KindCart {
		return nil
	}
	if quantity < 1 {
		return ErrInvalidQuantity
	}
	item, ok := s.items[productID]
	if !ok {
		return nil
	}
	item.Quantity = quantity
	s.items[productID] = item
	s.persist(ctx)
	return nil
}

// Clear empties the collection and writes the empty snapshot.
func (s *Store) Clear(ctx context.Context) {
	s.items = make(map[string]Item)
	s.order = nil
	s.persist(ctx)
}

// Contains reports whether the product is in the collection.
func (s *Store) Contains(productID string) bool {
	_, ok := s.items[productID]
	return ok
}

// Count returns the number of distinct items.
func (s *Store) Count() int {
	return len(s.items)
}

// Items returns the entries in insertion order.
func (s *Store) Items() []Item {
	out := make([]Item, 0, len(s.items))
	for _, id := range s.order {
		out = append(out, s.items[id])
	}
	return out
}

// Total sums effective price times quantity across the collection. Wishlist
// items count once.
func (s *Store) Total() float64 {
	var total float64
	for _, item := range s.items {
		qty := item.Quantity
		if qty < 1 {
			qty = 1
		}
		total += item.EffectivePrice() * float64(qty)
	}
	return total
}

func (s *Store) persist(ctx context.Context) {
	items, err := json.Marshal(s.Items())
	if err != nil {
		log.Printf("[Collection] Failed to marshal %s: %v", s.key, err)
		return
	}
	data, err := json.Marshal(snapshot{SchemaVersion: SchemaVersion, Items: items})
	if err != nil {
		log.Printf("[Collection] Failed to marshal %s: %v", s.key, err)
		return
	}
	if err := s.kv.Set(ctx, s.key, data); err != nil {
		log.Printf("[Collection] Failed to persist %s: %v", s.key, err)
	}
}
