package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
)

var ErrNotFound = errors.New("not found")

// ConnectPostgres establishes a connection to PostgreSQL.
func ConnectPostgres(connStr string) (*sql.DB, error) {
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, err
	}

	if err := db.Ping(); err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	return db, nil
}

// Repository reads and writes the product catalog.
type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

const productColumns = `
	p.id, p.slug, p.name, p.description, p.brand, p.price, p.discount_price,
	p.is_active, p.is_offer, p.offer_type, p.offer_start_date, p.offer_end_date,
	p.stock, p.category_id, COALESCE(c.name, ''),
	COALESCE(pi.id::text, ''), COALESCE(pi.url, ''),
	p.created_at, p.updated_at`

const productJoins = `
	FROM products p
	LEFT JOIN categories c ON c.id = p.category_id
	LEFT JOIN product_images pi ON pi.product_id = p.id AND pi.is_primary`

// ListPromotional returns active, promotionally flagged products with their
// primary image and category name joined, newest first. Window filtering is
// the offers package's job.
func (r *Repository) ListPromotional(ctx context.Context) ([]Product, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+productColumns+productJoins+`
		WHERE p.is_active AND p.is_offer
		ORDER BY p.created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query promotional products: %w", err)
	}
	defer rows.Close()

	return scanProducts(rows)
}

// List returns all active products, newest first.
func (r *Repository) List(ctx context.Context) ([]Product, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+productColumns+productJoins+`
		WHERE p.is_active
		ORDER BY p.created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query products: %w", err)
	}
	defer rows.Close()

	return scanProducts(rows)
}

// GetBySlug returns one product with all its images.
func (r *Repository) GetBySlug(ctx context.Context, slug string) (*Product, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+productColumns+productJoins+`
		WHERE p.slug = $1`, slug)

	p, err := scanProduct(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get product %s: %w", slug, err)
	}

	images, err := r.listImages(ctx, p.ID)
	if err != nil {
		return nil, err
	}
	p.Images = images
	return p, nil
}

// GetByID returns one product without its image gallery.
func (r *Repository) GetByID(ctx context.Context, id string) (*Product, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+productColumns+productJoins+`
		WHERE p.id = $1`, id)

	p, err := scanProduct(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get product %s: %w", id, err)
	}
	return p, nil
}

func (r *Repository) listImages(ctx context.Context, productID string) ([]ProductImage, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, url, is_primary FROM product_images
		WHERE product_id = $1 ORDER BY is_primary DESC, id`, productID)
	if err != nil {
		return nil, fmt.Errorf("failed to query images: %w", err)
	}
	defer rows.Close()

	var images []ProductImage
	for rows.Next() {
		var img ProductImage
		if err := rows.Scan(&img.ID, &img.URL, &img.IsPrimary); err != nil {
			return nil, err
		}
		images = append(images, img)
	}
	return images, rows.Err()
}

// Create inserts a product and returns it with its generated id.
func (r *Repository) Create(ctx context.Context, p Product) (*Product, error) {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	now := time.Now()
	p.CreatedAt = now
	p.UpdatedAt = now

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO products (id, slug, name, description, brand, price, discount_price,
			is_active, is_offer, offer_type, offer_start_date, offer_end_date,
			stock, category_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`,
		p.ID, p.Slug, p.Name, p.Description, p.Brand, p.Price, p.DiscountPrice,
		p.IsActive, p.IsOffer, string(p.OfferType), p.OfferStartDate, p.OfferEndDate,
		p.Stock, nullIfEmpty(p.CategoryID), p.CreatedAt, p.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create product: %w", err)
	}
	return &p, nil
}

// Update rewrites the mutable columns of a product.
func (r *Repository) Update(ctx context.Context, p Product) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE products SET slug = $2, name = $3, description = $4, brand = $5,
			price = $6, discount_price = $7, is_active = $8, is_offer = $9,
			offer_type = $10, offer_start_date = $11, offer_end_date = $12,
			stock = $13, category_id = $14, updated_at = $15
		WHERE id = $1`,
		p.ID, p.Slug, p.Name, p.Description, p.Brand, p.Price, p.DiscountPrice,
		p.IsActive, p.IsOffer, string(p.OfferType), p.OfferStartDate, p.OfferEndDate,
		p.Stock, nullIfEmpty(p.CategoryID), time.Now())
	if err != nil {
		return fmt.Errorf("failed to update product: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete removes a product and its images.
func (r *Repository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM product_images WHERE product_id = $1`, id); err != nil {
		return fmt.Errorf("failed to delete images: %w", err)
	}
	res, err := r.db.ExecContext(ctx, `DELETE FROM products WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete product: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// Categories

func (r *Repository) ListCategories(ctx context.Context) ([]Category, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, name, slug, is_active, created_at, updated_at
		FROM categories WHERE is_active ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to query categories: %w", err)
	}
	defer rows.Close()

	var categories []Category
	for rows.Next() {
		var c Category
		if err := rows.Scan(&c.ID, &c.Name, &c.Slug, &c.IsActive, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, err
		}
		categories = append(categories, c)
	}
	return categories, rows.Err()
}

func (r *Repository) CreateCategory(ctx context.Context, c Category) (*Category, error) {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	now := time.Now()
	c.CreatedAt = now
	c.UpdatedAt = now

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO categories (id, name, slug, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		c.ID, c.Name, c.Slug, c.IsActive, c.CreatedAt, c.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create category: %w", err)
	}
	return &c, nil
}

func (r *Repository) UpdateCategory(ctx context.Context, c Category) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE categories SET name = $2, slug = $3, is_active = $4, updated_at = $5
		WHERE id = $1`,
		c.ID, c.Name, c.Slug, c.IsActive, time.Now())
	if err != nil {
		return fmt.Errorf("failed to update category: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *Repository) DeleteCategory(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM categories WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete category: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// scanner covers *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanProduct(s scanner) (*Product, error) {
	var p Product
	var discountPrice sql.NullFloat64
	var offerType string
	var offerStart, offerEnd sql.NullTime
	var categoryID sql.NullString
	var imageID, imageURL string

	err := s.Scan(
		&p.ID, &p.Slug, &p.Name, &p.Description, &p.Brand, &p.Price, &discountPrice,
		&p.IsActive, &p.IsOffer, &offerType, &offerStart, &offerEnd,
		&p.Stock, &categoryID, &p.CategoryName,
		&imageID, &imageURL,
		&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}

	if discountPrice.Valid {
		p.DiscountPrice = &discountPrice.Float64
	}
	p.OfferType = OfferKind(offerType)
	if offerStart.Valid {
		p.OfferStartDate = &offerStart.Time
	}
	if offerEnd.Valid {
		p.OfferEndDate = &offerEnd.Time
	}
	if categoryID.Valid {
		p.CategoryID = categoryID.String
	}
	if imageURL != "" {
		p.Images = []ProductImage{{ID: imageID, URL: imageURL, IsPrimary: true}}
	}
	return &p, nil
}

func scanProducts(rows *sql.Rows) ([]Product, error) {
	var products []Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, *p)
	}
	return products, rows.Err()
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
