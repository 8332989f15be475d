package offers

import (
	"math"
	"sort"
	"time"

	"github.com/example/ec-storefront/internal/catalog"
)

// HappyHourLimit caps the time-boxed offer listing.
const HappyHourLimit = 20

// DefaultPlaceholder is the display image for products without one.
const DefaultPlaceholder = "/images/placeholder.png"

// ProductSummary is the offer endpoint response shape.
type ProductSummary struct {
	ID                 string   `json:"id"`
	Name               string   `json:"name"`
	Slug               string   `json:"slug"`
	Price              float64  `json:"price"`
	DiscountPrice      *float64 `json:"discountPrice,omitempty"`
	Brand              string   `json:"brand"`
	ImageURL           string   `json:"imageUrl"`
	Category           string   `json:"category"`
	OfferType          string   `json:"offerType,omitempty"`
	StockQuantity      int      `json:"stockQuantity"`
	DiscountPercentage int      `json:"discountPercentage"`
}

// Filter selects currently valid promotional products. It is pure: every
// call works over the snapshot it is given and nothing is cached or mutated.
type Filter struct {
	placeholder string
}

func NewFilter(placeholderImage string) *Filter {
	if placeholderImage == "" {
		placeholderImage = DefaultPlaceholder
	}
	return &Filter{placeholder: placeholderImage}
}

// Eligible returns all active, promotionally flagged products whose offer
// window has not closed at now, most recently flagged first.
func (f *Filter) Eligible(products []catalog.Product, now time.Time) []ProductSummary {
	return f.selectOffers(products, now, catalog.OfferNone, 0)
}

// HappyHour returns the time-boxed offers, capped to HappyHourLimit, plus the
// shared countdown anchor: the end of the current calendar day. The anchor is
// deliberately independent of per-product end dates.
func (f *Filter) HappyHour(products []catalog.Product, now time.Time) ([]ProductSummary, time.Time) {
	return f.selectOffers(products, now, catalog.OfferHappyHour, HappyHourLimit), EndOfDay(now)
}

func (f *Filter) selectOffers(products []catalog.Product, now time.Time, kind catalog.OfferKind, limit int) []ProductSummary {
	selected := make([]catalog.Product, 0, len(products))
	for _, p := range products {
		if !p.IsActive || !p.IsOffer {
			continue
		}
		if kind != catalog.OfferNone && p.OfferType != kind {
			continue
		}
		if p.OfferEndDate != nil && p.OfferEndDate.Before(now) {
			continue
		}
		selected = append(selected, p)
	}

	sort.SliceStable(selected, func(i, j int) bool {
		return selected[i].CreatedAt.After(selected[j].CreatedAt)
	})

	if limit > 0 && len(selected) > limit {
		selected = selected[:limit]
	}

	summaries := make([]ProductSummary, 0, len(selected))
	for _, p := range selected {
		summaries = append(summaries, f.summarize(p))
	}
	return summaries
}

func (f *Filter) summarize(p catalog.Product) ProductSummary {
	imageURL := p.PrimaryImage()
	if imageURL == "" {
		imageURL = f.placeholder
	}

	return ProductSummary{
		ID:                 p.ID,
		Name:               p.Name,
		Slug:               p.Slug,
		Price:              p.Price,
		DiscountPrice:      p.DiscountPrice,
		Brand:              p.Brand,
		ImageURL:           imageURL,
		Category:           p.CategoryName,
		OfferType:          string(p.OfferType),
		StockQuantity:      p.Stock,
		DiscountPercentage: DiscountPercentage(p.Price, p.DiscountPrice),
	}
}

// DiscountPercentage is round(100*(price-discountPrice)/price), 0 when no
// discounted price is set. A non-positive price also yields 0 so the value
// stays JSON-encodable.
func DiscountPercentage(price float64, discountPrice *float64) int {
	if discountPrice == nil || price <= 0 {
		return 0
	}
	return int(math.Round(100 * (price - *discountPrice) / price))
}

// EndOfDay returns 23:59:59.999 of now's calendar day in now's location.
func EndOfDay(now time.Time) time.Time {
	return time.Date(now.Year(), now.Month(), now.Day(), 23, 59, 59, int(999*time.Millisecond), now.Location())
}
