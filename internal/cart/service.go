// Package cart owns the cart lifecycle: line items, fees, and applied
// discount codes. All input validation happens here at the mutation boundary;
// the pricing engine receives only well-formed items.
package cart

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/calvindo/checkout-pricing/internal/obs"
	"github.com/calvindo/checkout-pricing/internal/pricing"
)

var (
	// ErrNotFound indicates the requested cart could not be located.
	ErrNotFound = errors.New("cart not found")
	// ErrItemNotFound indicates the requested line item does not exist.
	ErrItemNotFound = errors.New("cart item not found")
	// ErrInvalidInput is returned when the provided payload is invalid.
	ErrInvalidInput = errors.New("invalid input")
)

// Cart is the persisted cart header. DiscountCodes holds the canonically
// cased applied codes; the set is unique case-insensitively.
type Cart struct {
	ID            uuid.UUID
	AnonID        string
	Country       string
	Region        string
	DiscountCodes []string
	CreatedAt     time.Time
	UpdatedAt     time.Time
	ExpiresAt     time.Time
}

// Item is one persisted line item. UnitPrice is the catalog snapshot captured
// at add time; two entries for the same product with distinct variants are
// never merged.
type Item struct {
	ID        uuid.UUID
	CartID    uuid.UUID
	ProductID uuid.UUID
	VariantID *uuid.UUID
	Title     string
	Qty       int
	UnitPrice decimal.Decimal
}

// Store provides cart persistence.
type Store interface {
	CreateCart(ctx context.Context, c Cart) (Cart, error)
	GetCart(ctx context.Context, id uuid.UUID) (Cart, error)
	GetCartByAnon(ctx context.Context, anonID string) (Cart, error)
	UpdateCart(ctx context.Context, c Cart) error
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)

	ListItems(ctx context.Context, cartID uuid.UUID) ([]Item, error)
	FindItem(ctx context.Context, cartID, productID uuid.UUID, variantID *uuid.UUID) (Item, error)
	GetItem(ctx context.Context, cartID, itemID uuid.UUID) (Item, error)
	InsertItem(ctx context.Context, it Item) (Item, error)
	UpdateItemQty(ctx context.Context, itemID uuid.UUID, qty int) error
	DeleteItem(ctx context.Context, cartID, itemID uuid.UUID) error
	DeleteItems(ctx context.Context, cartID uuid.UUID) error

	ListFees(ctx context.Context, cartID uuid.UUID) ([]pricing.Fee, error)
	UpsertFee(ctx context.Context, cartID uuid.UUID, f pricing.Fee) error
	DeleteFee(ctx context.Context, cartID uuid.UUID, feeID string) error
}

// Catalog resolves snapshot prices at add-to-cart time.
type Catalog interface {
	PriceFor(ctx context.Context, productID uuid.UUID, variantID *uuid.UUID) (decimal.Decimal, string, error)
}

// DiscountResolver resolves an applied code against the cart's contents.
type DiscountResolver interface {
	Resolve(ctx context.Context, code string, items []pricing.LineItem, cfg pricing.Config) (pricing.Discount, error)
}

// RateResolver resolves the effective tax rate for the cart's jurisdiction.
type RateResolver interface {
	RateFor(ctx context.Context, country, region string) (decimal.Decimal, error)
}

// Service encapsulates cart domain operations.
type Service struct {
	Store     Store
	Catalog   Catalog
	Discounts DiscountResolver
	Rates     RateResolver
	Engine    pricing.Engine
	Config    pricing.Config
	TTL       time.Duration
	Now       func() time.Time
}

func (s *Service) ttl() time.Duration {
	if s == nil || s.TTL <= 0 {
		return 7 * 24 * time.Hour
	}
	return s.TTL
}

func (s *Service) now() time.Time {
	if s != nil && s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *Service) ready() error {
	if s == nil || s.Store == nil {
		return errors.New("cart service not configured")
	}
	return nil
}

// EnsureCart loads the active cart for the anonymous id, creating one when
// absent, and extends its expiry. An expired cart is revived empty: its items,
// fees, and applied codes are all dropped.
func (s *Service) EnsureCart(ctx context.Context, anonID string) (Cart, error) {
	if err := s.ready(); err != nil {
		return Cart{}, err
	}
	anonID = strings.TrimSpace(anonID)
	if anonID == "" {
		return Cart{}, fmt.Errorf("anon id required: %w", ErrInvalidInput)
	}
	now := s.now()
	c, err := s.Store.GetCartByAnon(ctx, anonID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return s.Store.CreateCart(ctx, Cart{
				ID:        uuid.New(),
				AnonID:    anonID,
				CreatedAt: now,
				UpdatedAt: now,
				ExpiresAt: now.Add(s.ttl()),
			})
		}
		return Cart{}, err
	}
	if !c.ExpiresAt.IsZero() && c.ExpiresAt.Before(now) {
		if err := s.clearContents(ctx, c.ID); err != nil {
			return Cart{}, err
		}
		c.DiscountCodes = nil
	}
	return c, s.touch(ctx, &c)
}

// clearContents drops every line item and fee from the cart, leaving the
// header in place.
func (s *Service) clearContents(ctx context.Context, cartID uuid.UUID) error {
	if err := s.Store.DeleteItems(ctx, cartID); err != nil {
		return err
	}
	fees, err := s.Store.ListFees(ctx, cartID)
	if err != nil {
		return err
	}
	for _, f := range fees {
		if err := s.Store.DeleteFee(ctx, cartID, f.ID); err != nil {
			return err
		}
	}
	return nil
}

// GetCart loads a cart, rejecting expired ones.
func (s *Service) GetCart(ctx context.Context, id uuid.UUID) (Cart, error) {
	if err := s.ready(); err != nil {
		return Cart{}, err
	}
	c, err := s.Store.GetCart(ctx, id)
	if err != nil {
		return Cart{}, err
	}
	if !c.ExpiresAt.IsZero() && c.ExpiresAt.Before(s.now()) {
		return Cart{}, ErrNotFound
	}
	return c, nil
}

func (s *Service) touch(ctx context.Context, c *Cart) error {
	c.UpdatedAt = s.now()
	c.ExpiresAt = c.UpdatedAt.Add(s.ttl())
	return s.Store.UpdateCart(ctx, *c)
}

// AddItem snapshots the current catalog price and inserts a line item.
// An existing (product, variant) line has its quantity incremented instead;
// distinct variants of the same product stay separate lines.
func (s *Service) AddItem(ctx context.Context, cartID, productID uuid.UUID, variantID *uuid.UUID, qty int) (Item, error) {
	if err := s.ready(); err != nil {
		return Item{}, err
	}
	if qty <= 0 {
		return Item{}, fmt.Errorf("qty must be positive: %w", ErrInvalidInput)
	}
	if s.Catalog == nil {
		return Item{}, errors.New("cart service: catalog not configured")
	}
	c, err := s.GetCart(ctx, cartID)
	if err != nil {
		return Item{}, err
	}

	existing, err := s.Store.FindItem(ctx, cartID, productID, variantID)
	if err == nil {
		if err := s.Store.UpdateItemQty(ctx, existing.ID, existing.Qty+qty); err != nil {
			return Item{}, err
		}
		existing.Qty += qty
		return existing, s.touch(ctx, &c)
	}
	if !errors.Is(err, ErrItemNotFound) {
		return Item{}, err
	}

	price, title, err := s.Catalog.PriceFor(ctx, productID, variantID)
	if err != nil {
		return Item{}, err
	}
	item, err := s.Store.InsertItem(ctx, Item{
		ID:        uuid.New(),
		CartID:    cartID,
		ProductID: productID,
		VariantID: variantID,
		Title:     title,
		Qty:       qty,
		UnitPrice: price,
	})
	if err != nil {
		return Item{}, err
	}
	return item, s.touch(ctx, &c)
}

// UpdateQty changes a line item's quantity in place.
func (s *Service) UpdateQty(ctx context.Context, cartID, itemID uuid.UUID, qty int) error {
	if err := s.ready(); err != nil {
		return err
	}
	if qty <= 0 {
		return fmt.Errorf("qty must be positive: %w", ErrInvalidInput)
	}
	c, err := s.GetCart(ctx, cartID)
	if err != nil {
		return err
	}
	item, err := s.Store.GetItem(ctx, cartID, itemID)
	if err != nil {
		return err
	}
	if err := s.Store.UpdateItemQty(ctx, item.ID, qty); err != nil {
		return err
	}
	return s.touch(ctx, &c)
}

// RemoveItem deletes a line item.
func (s *Service) RemoveItem(ctx context.Context, cartID, itemID uuid.UUID) error {
	if err := s.ready(); err != nil {
		return err
	}
	c, err := s.GetCart(ctx, cartID)
	if err != nil {
		return err
	}
	if err := s.Store.DeleteItem(ctx, cartID, itemID); err != nil {
		return err
	}
	return s.touch(ctx, &c)
}

// Empty removes every line item and fee from the cart.
func (s *Service) Empty(ctx context.Context, cartID uuid.UUID) error {
	if err := s.ready(); err != nil {
		return err
	}
	c, err := s.GetCart(ctx, cartID)
	if err != nil {
		return err
	}
	if err := s.clearContents(ctx, cartID); err != nil {
		return err
	}
	return s.touch(ctx, &c)
}

// SetRegion updates the cart's tax jurisdiction.
func (s *Service) SetRegion(ctx context.Context, cartID uuid.UUID, country, region string) error {
	if err := s.ready(); err != nil {
		return err
	}
	c, err := s.GetCart(ctx, cartID)
	if err != nil {
		return err
	}
	c.Country = strings.ToUpper(strings.TrimSpace(country))
	c.Region = strings.ToUpper(strings.TrimSpace(region))
	return s.touch(ctx, &c)
}

// AddFee attaches a fee to the cart, replacing any existing fee with the same
// id. Item-specific fees must name the product they belong to.
func (s *Service) AddFee(ctx context.Context, cartID uuid.UUID, fee pricing.Fee) error {
	if err := s.ready(); err != nil {
		return err
	}
	if strings.TrimSpace(fee.ID) == "" {
		return fmt.Errorf("fee id required: %w", ErrInvalidInput)
	}
	switch fee.Scope {
	case pricing.FeeScopeGlobal, pricing.FeeScopeItem:
	case pricing.FeeScopeItemSpecific:
		if fee.ProductID == nil {
			return fmt.Errorf("item-specific fee requires a product id: %w", ErrInvalidInput)
		}
	default:
		return fmt.Errorf("unknown fee scope %q: %w", fee.Scope, ErrInvalidInput)
	}
	c, err := s.GetCart(ctx, cartID)
	if err != nil {
		return err
	}
	if err := s.Store.UpsertFee(ctx, cartID, fee); err != nil {
		return err
	}
	return s.touch(ctx, &c)
}

// RemoveFee deletes a fee by id.
func (s *Service) RemoveFee(ctx context.Context, cartID uuid.UUID, feeID string) error {
	if err := s.ready(); err != nil {
		return err
	}
	c, err := s.GetCart(ctx, cartID)
	if err != nil {
		return err
	}
	if err := s.Store.DeleteFee(ctx, cartID, feeID); err != nil {
		return err
	}
	return s.touch(ctx, &c)
}

// ApplyDiscount validates a code against the cart contents and adds it to the
// applied set. Codes are unique case-insensitively; re-applying a present code
// in any casing is a no-op.
func (s *Service) ApplyDiscount(ctx context.Context, cartID uuid.UUID, code string) (Cart, error) {
	if err := s.ready(); err != nil {
		return Cart{}, err
	}
	code = strings.TrimSpace(code)
	if code == "" {
		return Cart{}, fmt.Errorf("discount code required: %w", ErrInvalidInput)
	}
	if s.Discounts == nil {
		return Cart{}, errors.New("cart service: discounts not configured")
	}
	c, err := s.GetCart(ctx, cartID)
	if err != nil {
		return Cart{}, err
	}
	for _, applied := range c.DiscountCodes {
		if strings.EqualFold(applied, code) {
			return c, nil
		}
	}
	items, err := s.Store.ListItems(ctx, cartID)
	if err != nil {
		return Cart{}, err
	}
	if len(items) == 0 {
		return Cart{}, fmt.Errorf("cart empty: %w", ErrInvalidInput)
	}
	resolved, err := s.Discounts.Resolve(ctx, code, toLineItems(items), s.Config)
	if err != nil {
		if obs.DiscountApplyTotal != nil {
			obs.DiscountApplyTotal.WithLabelValues("rejected").Inc()
		}
		return Cart{}, err
	}
	if obs.DiscountApplyTotal != nil {
		obs.DiscountApplyTotal.WithLabelValues("applied").Inc()
	}
	c.DiscountCodes = append(c.DiscountCodes, resolved.Code)
	return c, s.touch(ctx, &c)
}

// RemoveDiscount removes a code from the applied set, matching any casing.
func (s *Service) RemoveDiscount(ctx context.Context, cartID uuid.UUID, code string) (Cart, error) {
	if err := s.ready(); err != nil {
		return Cart{}, err
	}
	c, err := s.GetCart(ctx, cartID)
	if err != nil {
		return Cart{}, err
	}
	kept := c.DiscountCodes[:0]
	for _, applied := range c.DiscountCodes {
		if !strings.EqualFold(applied, code) {
			kept = append(kept, applied)
		}
	}
	c.DiscountCodes = kept
	return c, s.touch(ctx, &c)
}

// Quote recomputes the full pricing breakdown from the cart's current state.
// Nothing is cached between calls; identical inputs always produce identical
// results. Applied codes that no longer validate contribute nothing rather
// than failing the quote.
func (s *Service) Quote(ctx context.Context, cartID uuid.UUID) (pricing.CartSummary, []Item, error) {
	if err := s.ready(); err != nil {
		return pricing.CartSummary{}, nil, err
	}
	start := time.Now()
	summary, items, err := s.quote(ctx, cartID)
	result := "ok"
	if err != nil {
		result = "error"
	}
	if obs.QuoteTotal != nil {
		obs.QuoteTotal.WithLabelValues(result).Inc()
	}
	if obs.QuoteDuration != nil {
		obs.QuoteDuration.Observe(obs.DurationMillis(time.Since(start)))
	}
	return summary, items, err
}

func (s *Service) quote(ctx context.Context, cartID uuid.UUID) (pricing.CartSummary, []Item, error) {
	c, err := s.GetCart(ctx, cartID)
	if err != nil {
		return pricing.CartSummary{}, nil, err
	}
	items, err := s.Store.ListItems(ctx, cartID)
	if err != nil {
		return pricing.CartSummary{}, nil, err
	}
	fees, err := s.Store.ListFees(ctx, cartID)
	if err != nil {
		return pricing.CartSummary{}, nil, err
	}
	lineItems := toLineItems(items)

	var discounts []pricing.Discount
	if s.Discounts != nil {
		for _, code := range c.DiscountCodes {
			resolved, err := s.Discounts.Resolve(ctx, code, lineItems, s.Config)
			if err != nil {
				continue
			}
			discounts = append(discounts, resolved)
		}
	}

	rate := decimal.Zero
	if s.Config.TaxEnabled && s.Rates != nil {
		rate, err = s.Rates.RateFor(ctx, c.Country, c.Region)
		if err != nil {
			return pricing.CartSummary{}, nil, fmt.Errorf("resolve tax rate: %w", err)
		}
	}

	return s.Engine.ComputeCart(lineItems, discounts, fees, rate, s.Config), items, nil
}

func toLineItems(items []Item) []pricing.LineItem {
	out := make([]pricing.LineItem, 0, len(items))
	for _, it := range items {
		out = append(out, pricing.LineItem{
			ProductID: it.ProductID,
			VariantID: it.VariantID,
			Title:     it.Title,
			Qty:       it.Qty,
			UnitPrice: it.UnitPrice,
		})
	}
	return out
}

// SweepExpired deletes carts whose expiry has passed. Used by the background
// worker.
func (s *Service) SweepExpired(ctx context.Context) (int64, error) {
	if err := s.ready(); err != nil {
		return 0, err
	}
	removed, err := s.Store.DeleteExpired(ctx, s.now())
	if err == nil && removed > 0 && obs.CartSweepTotal != nil {
		obs.CartSweepTotal.Add(float64(removed))
	}
	return removed, err
}
