package notification

import (
	"context"
	"encoding/json"
	"log"

	"github.com/example/ec-storefront/internal/email"
	"github.com/example/ec-storefront/internal/events"
	"github.com/example/ec-storefront/internal/orders"
	"github.com/example/ec-storefront/internal/users"
)

// OrderSource resolves order details for confirmation emails.
type OrderSource interface {
	Get(ctx context.Context, id string) (*orders.Order, error)
}

// UserSource resolves the recipient of a notification.
type UserSource interface {
	GetByID(ctx context.Context, id string) (*users.User, error)
}

// Mailer is satisfied by email.Service and by test fakes.
type Mailer interface {
	SendOrderConfirmation(to, orderID string, total float64, items []email.OrderItem) error
}

// Handler turns published events into customer notifications.
type Handler struct {
	mailer Mailer
	orders OrderSource
	users  UserSource
}

func NewHandler(mailer Mailer, orderSource OrderSource, userSource UserSource) *Handler {
	return &Handler{
		mailer: mailer,
		orders: orderSource,
		users:  userSource,
	}
}

// HandleEvent processes one event from the broker. Unknown event types are
// skipped without error.
func (h *Handler) HandleEvent(ctx context.Context, key, value []byte) error {
	var envelope struct {
		Type    string          `json:"type"`
		Payload json.RawMessage `json:"payload"`
	}
	if err := json.Unmarshal(value, &envelope); err != nil {
		log.Printf("[Notifier] Failed to unmarshal event: %v", err)
		return err
	}

	if envelope.Type == events.EventOrderPlaced {
		return h.handleOrderPlaced(ctx, envelope.Payload)
	}

	return nil
}

func (h *Handler) handleOrderPlaced(ctx context.Context, payload json.RawMessage) error {
	var e events.OrderPlaced
	if err := json.Unmarshal(payload, &e); err != nil {
		log.Printf("[Notifier] Failed to unmarshal OrderPlaced payload: %v", err)
		return err
	}

	log.Printf("[Notifier] Processing OrderPlaced for order %s, user %s", e.OrderID, e.UserID)

	user, err := h.users.GetByID(ctx, e.UserID)
	if err != nil {
		// Guest checkouts have no mailbox to notify.
		log.Printf("[Notifier] No user %s for order %s: %v", e.UserID, e.OrderID, err)
		return nil
	}

	order, err := h.orders.Get(ctx, e.OrderID)
	if err != nil {
		log.Printf("[Notifier] Failed to load order %s: %v", e.OrderID, err)
		return err
	}

	items := make([]email.OrderItem, len(order.Items))
	for i, item := range order.Items {
		items[i] = email.OrderItem{
			ProductID: item.ProductID,
			Name:      item.Name,
			Quantity:  item.Quantity,
			Price:     item.UnitPrice,
		}
	}

	if err := h.mailer.SendOrderConfirmation(user.Email, order.ID, order.Total, items); err != nil {
		log.Printf("[Notifier] Failed to send email to %s: %v", user.Email, err)
		return err
	}

	log.Printf("[Notifier] Order confirmation sent to %s for order %s", user.Email, order.ID)
	return nil
}
