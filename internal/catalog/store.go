package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// PGStore persists catalog records in Postgres.
type PGStore struct {
	Pool *pgxpool.Pool
}

func (s *PGStore) pool() (*pgxpool.Pool, error) {
	if s == nil || s.Pool == nil {
		return nil, errors.New("catalog store not configured")
	}
	return s.Pool, nil
}

// GetProduct loads a product by id.
func (s *PGStore) GetProduct(ctx context.Context, id uuid.UUID) (Product, error) {
	pool, err := s.pool()
	if err != nil {
		return Product{}, err
	}
	var (
		p     Product
		pid   pgtype.UUID
		price string
	)
	err = pool.QueryRow(ctx,
		`SELECT id, title, slug, price::text, active FROM products WHERE id = $1`, id,
	).Scan(&pid, &p.Title, &p.Slug, &price, &p.Active)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Product{}, ErrNotFound
		}
		return Product{}, fmt.Errorf("get product: %w", err)
	}
	p.ID = uuid.UUID(pid.Bytes)
	if p.Price, err = decimal.NewFromString(price); err != nil {
		return Product{}, fmt.Errorf("parse product price: %w", err)
	}
	return p, nil
}

// GetVariant loads a price variant by id.
func (s *PGStore) GetVariant(ctx context.Context, id uuid.UUID) (Variant, error) {
	pool, err := s.pool()
	if err != nil {
		return Variant{}, err
	}
	var (
		v        Variant
		vid, pid pgtype.UUID
		price    string
	)
	err = pool.QueryRow(ctx,
		`SELECT id, product_id, label, price::text FROM product_variants WHERE id = $1`, id,
	).Scan(&vid, &pid, &v.Label, &price)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Variant{}, ErrNotFound
		}
		return Variant{}, fmt.Errorf("get variant: %w", err)
	}
	v.ID = uuid.UUID(vid.Bytes)
	v.ProductID = uuid.UUID(pid.Bytes)
	if v.Price, err = decimal.NewFromString(price); err != nil {
		return Variant{}, fmt.Errorf("parse variant price: %w", err)
	}
	return v, nil
}

// ListProducts returns a page of active products with the total count.
func (s *PGStore) ListProducts(ctx context.Context, limit, offset int) ([]Product, int, error) {
	pool, err := s.pool()
	if err != nil {
		return nil, 0, err
	}
	var total int
	if err := pool.QueryRow(ctx, `SELECT count(*) FROM products WHERE active`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count products: %w", err)
	}
	rows, err := pool.Query(ctx,
		`SELECT id, title, slug, price::text, active FROM products
		 WHERE active ORDER BY title LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list products: %w", err)
	}
	defer rows.Close()

	var products []Product
	for rows.Next() {
		var (
			p     Product
			pid   pgtype.UUID
			price string
		)
		if err := rows.Scan(&pid, &p.Title, &p.Slug, &price, &p.Active); err != nil {
			return nil, 0, err
		}
		p.ID = uuid.UUID(pid.Bytes)
		if p.Price, err = decimal.NewFromString(price); err != nil {
			return nil, 0, fmt.Errorf("parse product price: %w", err)
		}
		products = append(products, p)
	}
	return products, total, rows.Err()
}

// ListVariants returns the price options of a product.
func (s *PGStore) ListVariants(ctx context.Context, productID uuid.UUID) ([]Variant, error) {
	pool, err := s.pool()
	if err != nil {
		return nil, err
	}
	rows, err := pool.Query(ctx,
		`SELECT id, product_id, label, price::text FROM product_variants
		 WHERE product_id = $1 ORDER BY label`, productID)
	if err != nil {
		return nil, fmt.Errorf("list variants: %w", err)
	}
	defer rows.Close()

	var variants []Variant
	for rows.Next() {
		var (
			v        Variant
			vid, pid pgtype.UUID
			price    string
		)
		if err := rows.Scan(&vid, &pid, &v.Label, &price); err != nil {
			return nil, err
		}
		v.ID = uuid.UUID(vid.Bytes)
		v.ProductID = uuid.UUID(pid.Bytes)
		if v.Price, err = decimal.NewFromString(price); err != nil {
			return nil, fmt.Errorf("parse variant price: %w", err)
		}
		variants = append(variants, v)
	}
	return variants, rows.Err()
}

// SaveProduct inserts or updates a product.
func (s *PGStore) SaveProduct(ctx context.Context, p Product) (Product, error) {
	pool, err := s.pool()
	if err != nil {
		return Product{}, err
	}
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	_, err = pool.Exec(ctx, `
		INSERT INTO products (id, title, slug, price, active)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE
		SET title = EXCLUDED.title, slug = EXCLUDED.slug,
		    price = EXCLUDED.price, active = EXCLUDED.active`,
		p.ID, p.Title, p.Slug, p.Price.String(), p.Active)
	if err != nil {
		return Product{}, fmt.Errorf("save product: %w", err)
	}
	return p, nil
}
