package notification

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/example/ec-storefront/internal/email"
	"github.com/example/ec-storefront/internal/events"
	"github.com/example/ec-storefront/internal/orders"
	"github.com/example/ec-storefront/internal/users"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeOrderSource struct {
	order *orders.Order
}

func (f *fakeOrderSource) Get(ctx context.Context, id string) (*orders.Order, error) {
	if f.order == nil || f.order.ID != id {
		return nil, orders.ErrNotFound
	}
	return f.order, nil
}

type fakeUserSource struct {
	user *users.User
}

func (f *fakeUserSource) GetByID(ctx context.Context, id string) (*users.User, error) {
	if f.user == nil || f.user.ID != id {
		return nil, users.ErrNotFound
	}
	return f.user, nil
}

type fakeMailer struct {
	to      string
	orderID string
	total   float64
	items   []email.OrderItem
	sent    int
}

func (f *fakeMailer) SendOrderConfirmation(to, orderID string, total float64, items []email.OrderItem) error {
	f.to, f.orderID, f.total, f.items = to, orderID, total, items
	f.sent++
	return nil
}

func envelopeBytes(t *testing.T, eventType string, payload any) []byte {
	t.Helper()
	data, err := json.Marshal(events.Envelope{Type: eventType, OccurredAt: time.Now(), Payload: payload})
	require.NoError(t, err)
	return data
}

func TestHandleEvent_OrderPlaced(t *testing.T) {
	order := &orders.Order{
		ID:     "order-1",
		UserID: "user-1",
		Items: []orders.OrderItem{
			{ProductID: "p1", Name: "GPU", Quantity: 2, UnitPrice: 499.99},
		},
		Total: 999.98,
	}
	mailer := &fakeMailer{}
	h := NewHandler(mailer,
		&fakeOrderSource{order: order},
		&fakeUserSource{user: &users.User{ID: "user-1", Email: "a@example.com"}})

	value := envelopeBytes(t, events.EventOrderPlaced, events.OrderPlaced{
		OrderID: "order-1", UserID: "user-1", ItemCount: 1, Total: 999.98,
	})
	err := h.HandleEvent(context.Background(), []byte("order-1"), value)

	require.NoError(t, err)
	assert.Equal(t, 1, mailer.sent)
	assert.Equal(t, "a@example.com", mailer.to)
	assert.Equal(t, "order-1", mailer.orderID)
	assert.Equal(t, 999.98, mailer.total)
	require.Len(t, mailer.items, 1)
	assert.Equal(t, "GPU", mailer.items[0].Name)
}

func TestHandleEvent_UnknownTypeSkipped(t *testing.T) {
	mailer := &fakeMailer{}
	h := NewHandler(mailer, &fakeOrderSource{}, &fakeUserSource{})

	value := envelopeBytes(t, events.EventProductUpdated, events.ProductUpdated{ProductID: "p1"})
	err := h.HandleEvent(context.Background(), []byte("p1"), value)

	require.NoError(t, err)
	assert.Zero(t, mailer.sent)
}

func TestHandleEvent_UnknownUserSkipped(t *testing.T) {
	mailer := &fakeMailer{}
	h := NewHandler(mailer, &fakeOrderSource{}, &fakeUserSource{})

	value := envelopeBytes(t, events.EventOrderPlaced, events.OrderPlaced{
		OrderID: "order-1", UserID: "guest",
	})
	err := h.HandleEvent(context.Background(), []byte("order-1"), value)

	require.NoError(t, err)
	assert.Zero(t, mailer.sent)
}

func TestHandleEvent_Garbage(t *testing.T) {
	h := NewHandler(&fakeMailer{}, &fakeOrderSource{}, &fakeUserSource{})

	err := h.HandleEvent(context.Background(), nil, []byte("not json"))

	assert.Error(t, err)
}
