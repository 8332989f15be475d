package orders

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

var (
	ErrNotFound   = errors.New("order not found")
	ErrEmptyOrder = errors.New("order has no items")
	ErrNoStock    = errors.New("insufficient stock")
)

// CartLine is what the caller hands over from the cart snapshot. Only the
// product id and quantity are trusted; prices are re-read from the catalog.
type CartLine struct {
	ProductID string
	Quantity  int
}

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// Place creates an order from the cart lines in one transaction. Unit prices
// come from the products table (discount price when set), stock is checked
// and decremented.
func (r *Repository) Place(ctx context.Context, userID string, lines []CartLine) (*Order, error) {
	if len(lines) == 0 {
		return nil, ErrEmptyOrder
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	order := &Order{
		ID:        uuid.New().String(),
		UserID:    userID,
		Status:    StatusPlaced,
		CreatedAt: time.Now(),
	}

	for _, line := range lines {
		if line.Quantity < 1 {
			return nil, fmt.Errorf("invalid quantity for product %s", line.ProductID)
		}

		var name string
		var price float64
		var discountPrice sql.NullFloat64
		var stock int
		err := tx.QueryRowContext(ctx, `
			SELECT name, price, discount_price, stock FROM products
			WHERE id = $1 AND is_active FOR UPDATE`, line.ProductID).
			Scan(&name, &price, &discountPrice, &stock)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("product not found: %s", line.ProductID)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read product %s: %w", line.ProductID, err)
		}
		if stock < line.Quantity {
			return nil, fmt.Errorf("%w: product %s", ErrNoStock, line.ProductID)
		}

		unit := price
		if discountPrice.Valid {
			unit = discountPrice.Float64
		}

		if _, err := tx.ExecContext(ctx, `
			UPDATE products SET stock = stock - $2 WHERE id = $1`,
			line.ProductID, line.Quantity); err != nil {
			return nil, fmt.Errorf("failed to decrement stock: %w", err)
		}

		order.Items = append(order.Items, OrderItem{
			ProductID: line.ProductID,
			Name:      name,
			Quantity:  line.Quantity,
			UnitPrice: unit,
		})
		order.Total += unit * float64(line.Quantity)
	}

	itemsJSON, err := json.Marshal(order.Items)
	if err != nil {
		return nil, err
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO orders (id, user_id, items, total, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		order.ID, order.UserID, itemsJSON, order.Total, order.Status, order.CreatedAt); err != nil {
		return nil, fmt.Errorf("failed to insert order: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit order: %w", err)
	}
	return order, nil
}

func (r *Repository) Get(ctx context.Context, id string) (*Order, error) {
	var o Order
	var itemsJSON []byte
	err := r.db.QueryRowContext(ctx, `
		SELECT id, user_id, items, total, status, created_at
		FROM orders WHERE id = $1`, id).
		Scan(&o.ID, &o.UserID, &itemsJSON, &o.Total, &o.Status, &o.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get order: %w", err)
	}
	if err := json.Unmarshal(itemsJSON, &o.Items); err != nil {
		return nil, fmt.Errorf("failed to decode order items: %w", err)
	}
	return &o, nil
}

func (r *Repository) ListByUser(ctx context.Context, userID string) ([]Order, error) {
	return r.list(ctx, `
		SELECT id, user_id, items, total, status, created_at
		FROM orders WHERE user_id = $1 ORDER BY created_at DESC`, userID)
}

// ListAll returns every order, for the back office.
func (r *Repository) ListAll(ctx context.Context) ([]Order, error) {
	return r.list(ctx, `
		SELECT id, user_id, items, total, status, created_at
		FROM orders ORDER BY created_at DESC`)
}

func (r *Repository) list(ctx context.Context, query string, args ...any) ([]Order, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query orders: %w", err)
	}
	defer rows.Close()

	var out []Order
	for rows.Next() {
		var o Order
		var itemsJSON []byte
		if err := rows.Scan(&o.ID, &o.UserID, &itemsJSON, &o.Total, &o.Status, &o.CreatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(itemsJSON, &o.Items); err != nil {
			return nil, fmt.Errorf("failed to decode order items: %w", err)
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// Builds

func (r *Repository) SaveBuild(ctx context.Context, userID, name string, productIDs []string) (*Build, error) {
	b := &Build{
		ID:         uuid.New().String(),
		UserID:     userID,
		Name:       name,
		ProductIDs: productIDs,
		CreatedAt:  time.Now(),
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO builds (id, user_id, name, product_ids, created_at)
		VALUES ($1, $2, $3, $4, $5)`,
		b.ID, b.UserID, b.Name, pq.Array(b.ProductIDs), b.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to save build: %w", err)
	}
	return b, nil
}

func (r *Repository) ListBuilds(ctx context.Context, userID string) ([]Build, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, user_id, name, product_ids, created_at
		FROM builds WHERE user_id = $1 ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query builds: %w", err)
	}
	defer rows.Close()

	var out []Build
	for rows.Next() {
		var b Build
		if err := rows.Scan(&b.ID, &b.UserID, &b.Name, pq.Array(&b.ProductIDs), &b.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}
