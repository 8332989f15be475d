package collection

import "time"

// Kind selects the collection semantics. Carts track a quantity per item and
// increment it on repeated adds; wishlists hold each product at most once.
type Kind string

const (
	KindCart     Kind = "cart"
	KindWishlist Kind = "wishlist"
)

// SchemaVersion is the current snapshot schema. Snapshots persisted with an
// older version go through migration on load.
const SchemaVersion = 2

// Item is a single cart or wishlist entry, keyed by product ID within its
// collection.
type Item struct {
	ProductID     string    `json:"product_id"`
	Name          string    `json:"name"`
	Slug          string    `json:"slug"`
	Price         float64   `json:"price"`
	DiscountPrice *float64  `json:"discount_price,omitempty"`
	ImageURL      string    `json:"image_url,omitempty"`
	Brand         string    `json:"brand,omitempty"`
	Category      string    `json:"category,omitempty"`
	Stock         int       `json:"stock"`
	Quantity      int       `json:"quantity,omitempty"` // cart only
	AddedAt       time.Time `json:"added_at"`
}

// EffectivePrice is the discounted price when one is set, the unit price
// otherwise.
func (i Item) EffectivePrice() float64 {
	if i.DiscountPrice != nil {
		return *i.DiscountPrice
	}
	return i.Price
}
