package cart

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/calvindo/checkout-pricing/internal/pricing"
)

// PGStore persists carts, line items, and fees in Postgres.
type PGStore struct {
	Pool *pgxpool.Pool
}

func (s *PGStore) pool() (*pgxpool.Pool, error) {
	if s == nil || s.Pool == nil {
		return nil, errors.New("cart store not configured")
	}
	return s.Pool, nil
}

// CreateCart inserts a new cart header.
func (s *PGStore) CreateCart(ctx context.Context, c Cart) (Cart, error) {
	pool, err := s.pool()
	if err != nil {
		return Cart{}, err
	}
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	_, err = pool.Exec(ctx, `
		INSERT INTO carts (id, anon_id, country, region, discount_codes, created_at, updated_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		c.ID, c.AnonID, c.Country, c.Region, c.DiscountCodes, c.CreatedAt, c.UpdatedAt, c.ExpiresAt)
	if err != nil {
		return Cart{}, fmt.Errorf("create cart: %w", err)
	}
	return c, nil
}

func scanCart(row pgx.Row) (Cart, error) {
	var (
		c  Cart
		id pgtype.UUID
	)
	err := row.Scan(&id, &c.AnonID, &c.Country, &c.Region, &c.DiscountCodes,
		&c.CreatedAt, &c.UpdatedAt, &c.ExpiresAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Cart{}, ErrNotFound
		}
		return Cart{}, fmt.Errorf("scan cart: %w", err)
	}
	c.ID = uuid.UUID(id.Bytes)
	return c, nil
}

const cartColumns = `id, anon_id, country, region, discount_codes, created_at, updated_at, expires_at`

// GetCart loads a cart header by id.
func (s *PGStore) GetCart(ctx context.Context, id uuid.UUID) (Cart, error) {
	pool, err := s.pool()
	if err != nil {
		return Cart{}, err
	}
	return scanCart(pool.QueryRow(ctx, `SELECT `+cartColumns+` FROM carts WHERE id = $1`, id))
}

// GetCartByAnon loads the most recently updated cart for an anonymous id.
func (s *PGStore) GetCartByAnon(ctx context.Context, anonID string) (Cart, error) {
	pool, err := s.pool()
	if err != nil {
		return Cart{}, err
	}
	return scanCart(pool.QueryRow(ctx,
		`SELECT `+cartColumns+` FROM carts WHERE anon_id = $1 ORDER BY updated_at DESC LIMIT 1`, anonID))
}

// UpdateCart writes back the mutable cart header fields.
func (s *PGStore) UpdateCart(ctx context.Context, c Cart) error {
	pool, err := s.pool()
	if err != nil {
		return err
	}
	tag, err := pool.Exec(ctx, `
		UPDATE carts SET country = $2, region = $3, discount_codes = $4,
		                 updated_at = $5, expires_at = $6
		WHERE id = $1`,
		c.ID, c.Country, c.Region, c.DiscountCodes, c.UpdatedAt, c.ExpiresAt)
	if err != nil {
		return fmt.Errorf("update cart: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteExpired removes carts whose expiry precedes the cutoff. Items and
// fees are removed by cascade.
func (s *PGStore) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	pool, err := s.pool()
	if err != nil {
		return 0, err
	}
	tag, err := pool.Exec(ctx, `DELETE FROM carts WHERE expires_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("delete expired carts: %w", err)
	}
	return tag.RowsAffected(), nil
}

const itemColumns = `id, cart_id, product_id, variant_id, title, qty, unit_price::text`

func scanItem(row pgx.Row) (Item, error) {
	var (
		it        Item
		id, cid   pgtype.UUID
		pid, vid  pgtype.UUID
		unitPrice string
	)
	err := row.Scan(&id, &cid, &pid, &vid, &it.Title, &it.Qty, &unitPrice)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Item{}, ErrItemNotFound
		}
		return Item{}, fmt.Errorf("scan cart item: %w", err)
	}
	it.ID = uuid.UUID(id.Bytes)
	it.CartID = uuid.UUID(cid.Bytes)
	it.ProductID = uuid.UUID(pid.Bytes)
	if vid.Valid {
		v := uuid.UUID(vid.Bytes)
		it.VariantID = &v
	}
	if it.UnitPrice, err = decimal.NewFromString(unitPrice); err != nil {
		return Item{}, fmt.Errorf("parse unit price: %w", err)
	}
	return it, nil
}

// ListItems returns the cart's line items in insertion order.
func (s *PGStore) ListItems(ctx context.Context, cartID uuid.UUID) ([]Item, error) {
	pool, err := s.pool()
	if err != nil {
		return nil, err
	}
	rows, err := pool.Query(ctx,
		`SELECT `+itemColumns+` FROM cart_items WHERE cart_id = $1 ORDER BY created_at`, cartID)
	if err != nil {
		return nil, fmt.Errorf("list cart items: %w", err)
	}
	defer rows.Close()

	var items []Item
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

// FindItem locates a line item by its (product, variant) uniqueness key.
func (s *PGStore) FindItem(ctx context.Context, cartID, productID uuid.UUID, variantID *uuid.UUID) (Item, error) {
	pool, err := s.pool()
	if err != nil {
		return Item{}, err
	}
	if variantID == nil {
		return scanItem(pool.QueryRow(ctx,
			`SELECT `+itemColumns+` FROM cart_items
			 WHERE cart_id = $1 AND product_id = $2 AND variant_id IS NULL`, cartID, productID))
	}
	return scanItem(pool.QueryRow(ctx,
		`SELECT `+itemColumns+` FROM cart_items
		 WHERE cart_id = $1 AND product_id = $2 AND variant_id = $3`, cartID, productID, *variantID))
}

// GetItem loads a line item by id within a cart.
func (s *PGStore) GetItem(ctx context.Context, cartID, itemID uuid.UUID) (Item, error) {
	pool, err := s.pool()
	if err != nil {
		return Item{}, err
	}
	return scanItem(pool.QueryRow(ctx,
		`SELECT `+itemColumns+` FROM cart_items WHERE cart_id = $1 AND id = $2`, cartID, itemID))
}

// InsertItem stores a new line item.
func (s *PGStore) InsertItem(ctx context.Context, it Item) (Item, error) {
	pool, err := s.pool()
	if err != nil {
		return Item{}, err
	}
	if it.ID == uuid.Nil {
		it.ID = uuid.New()
	}
	var variantID any
	if it.VariantID != nil {
		variantID = *it.VariantID
	}
	_, err = pool.Exec(ctx, `
		INSERT INTO cart_items (id, cart_id, product_id, variant_id, title, qty, unit_price)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		it.ID, it.CartID, it.ProductID, variantID, it.Title, it.Qty, it.UnitPrice.String())
	if err != nil {
		return Item{}, fmt.Errorf("insert cart item: %w", err)
	}
	return it, nil
}

// UpdateItemQty changes a line item's quantity.
func (s *PGStore) UpdateItemQty(ctx context.Context, itemID uuid.UUID, qty int) error {
	pool, err := s.pool()
	if err != nil {
		return err
	}
	tag, err := pool.Exec(ctx, `UPDATE cart_items SET qty = $2 WHERE id = $1`, itemID, qty)
	if err != nil {
		return fmt.Errorf("update cart item qty: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrItemNotFound
	}
	return nil
}

// DeleteItem removes a line item.
func (s *PGStore) DeleteItem(ctx context.Context, cartID, itemID uuid.UUID) error {
	pool, err := s.pool()
	if err != nil {
		return err
	}
	tag, err := pool.Exec(ctx, `DELETE FROM cart_items WHERE cart_id = $1 AND id = $2`, cartID, itemID)
	if err != nil {
		return fmt.Errorf("delete cart item: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrItemNotFound
	}
	return nil
}

// DeleteItems removes every line item in the cart.
func (s *PGStore) DeleteItems(ctx context.Context, cartID uuid.UUID) error {
	pool, err := s.pool()
	if err != nil {
		return err
	}
	if _, err := pool.Exec(ctx, `DELETE FROM cart_items WHERE cart_id = $1`, cartID); err != nil {
		return fmt.Errorf("delete cart items: %w", err)
	}
	return nil
}

// ListFees returns the cart's fees.
func (s *PGStore) ListFees(ctx context.Context, cartID uuid.UUID) ([]pricing.Fee, error) {
	pool, err := s.pool()
	if err != nil {
		return nil, err
	}
	rows, err := pool.Query(ctx,
		`SELECT fee_id, label, amount::text, scope, product_id
		 FROM cart_fees WHERE cart_id = $1 ORDER BY fee_id`, cartID)
	if err != nil {
		return nil, fmt.Errorf("list cart fees: %w", err)
	}
	defer rows.Close()

	var fees []pricing.Fee
	for rows.Next() {
		var (
			f      pricing.Fee
			amount string
			scope  string
			pid    pgtype.UUID
		)
		if err := rows.Scan(&f.ID, &f.Label, &amount, &scope, &pid); err != nil {
			return nil, err
		}
		f.Scope = pricing.FeeScope(scope)
		if pid.Valid {
			p := uuid.UUID(pid.Bytes)
			f.ProductID = &p
		}
		if f.Amount, err = decimal.NewFromString(amount); err != nil {
			return nil, fmt.Errorf("parse fee amount: %w", err)
		}
		fees = append(fees, f)
	}
	return fees, rows.Err()
}

// UpsertFee inserts a fee or replaces the existing fee with the same id.
func (s *PGStore) UpsertFee(ctx context.Context, cartID uuid.UUID, f pricing.Fee) error {
	pool, err := s.pool()
	if err != nil {
		return err
	}
	var productID any
	if f.ProductID != nil {
		productID = *f.ProductID
	}
	_, err = pool.Exec(ctx, `
		INSERT INTO cart_fees (cart_id, fee_id, label, amount, scope, product_id)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (cart_id, fee_id) DO UPDATE
		SET label = EXCLUDED.label, amount = EXCLUDED.amount,
		    scope = EXCLUDED.scope, product_id = EXCLUDED.product_id`,
		cartID, f.ID, f.Label, f.Amount.String(), string(f.Scope), productID)
	if err != nil {
		return fmt.Errorf("upsert cart fee: %w", err)
	}
	return nil
}

// DeleteFee removes a fee by id. Removing an absent fee is a no-op.
func (s *PGStore) DeleteFee(ctx context.Context, cartID uuid.UUID, feeID string) error {
	pool, err := s.pool()
	if err != nil {
		return err
	}
	if _, err := pool.Exec(ctx, `DELETE FROM cart_fees WHERE cart_id = $1 AND fee_id = $2`, cartID, feeID); err != nil {
		return fmt.Errorf("delete cart fee: %w", err)
	}
	return nil
}
