package events

import "time"

const (
	EventOrderPlaced    = "OrderPlaced"
	EventProductUpdated = "ProductUpdated"
)

// Envelope wraps every published event.
type Envelope struct {
	Type       string    `json:"type"`
	OccurredAt time.Time `json:"occurred_at"`
	Payload    any       `json:"payload"`
}

type OrderPlaced struct {
	OrderID   string  `json:"order_id"`
	UserID    string  `json:"user_id"`
	ItemCount int     `json:"item_count"`
	Total     float64 `json:"total"`
}

type ProductUpdated struct {
	ProductID string `json:"product_id"`
	Slug      string `json:"slug"`
}
