package catalog

import "time"

// OfferKind enumerates the promotion kinds a product can carry.
type OfferKind string

const (
	OfferNone      OfferKind = ""
	OfferSeasonal  OfferKind = "seasonal"
	OfferHappyHour OfferKind = "happy-hour"
)

// ProductImage is a catalog image; at most one per product is flagged
// primary.
type ProductImage struct {
	ID        string `json:"id"`
	URL       string `json:"url"`
	IsPrimary bool   `json:"is_primary"`
}

// Product is a catalog row with its category name and images eagerly joined.
// The offer window is optional on both ends.
type Product struct {
	ID             string         `json:"id"`
	Slug           string         `json:"slug"`
	Name           string         `json:"name"`
	Description    string         `json:"description"`
	Brand          string         `json:"brand"`
	Price          float64        `json:"price"`
	DiscountPrice  *float64       `json:"discount_price,omitempty"`
	IsActive       bool           `json:"is_active"`
	IsOffer        bool           `json:"is_offer"`
	OfferType      OfferKind      `json:"offer_type,omitempty"`
	OfferStartDate *time.Time     `json:"offer_start_date,omitempty"`
	OfferEndDate   *time.Time     `json:"offer_end_date,omitempty"`
	Stock          int            `json:"stock"`
	CategoryID     string         `json:"category_id"`
	CategoryName   string         `json:"category_name"`
	Images         []ProductImage `json:"images,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

// PrimaryImage returns the URL of the image flagged primary, falling back to
// the first image, or "" when the product has none.
func (p Product) PrimaryImage() string {
	for _, img := range p.Images {
		if img.IsPrimary {
			return img.URL
		}
	}
	if len(p.Images) > 0 {
		return p.Images[0].URL
	}
	return ""
}

// Category is a product category.
type Category struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Slug      string    `json:"slug"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
