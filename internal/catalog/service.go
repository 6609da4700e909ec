// Package catalog provides the read-only product and price-variant lookups
// the cart uses to snapshot unit prices at add time.
package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/calvindo/checkout-pricing/internal/cache"
)

var (
	// ErrNotFound indicates the product or variant does not exist.
	ErrNotFound = errors.New("catalog: not found")
	// ErrVariantMismatch indicates the variant belongs to a different product.
	ErrVariantMismatch = errors.New("catalog: variant does not belong to product")
)

// Product is a purchasable catalog entry. Price is the single fixed price
// used when no variant is selected.
type Product struct {
	ID     uuid.UUID       `json:"id"`
	Title  string          `json:"title"`
	Slug   string          `json:"slug"`
	Price  decimal.Decimal `json:"price"`
	Active bool            `json:"active"`
}

// Variant is a named price option of a product.
type Variant struct {
	ID        uuid.UUID       `json:"id"`
	ProductID uuid.UUID       `json:"productId"`
	Label     string          `json:"label"`
	Price     decimal.Decimal `json:"price"`
}

// Store provides persisted catalog records.
type Store interface {
	GetProduct(ctx context.Context, id uuid.UUID) (Product, error)
	GetVariant(ctx context.Context, id uuid.UUID) (Variant, error)
	ListProducts(ctx context.Context, limit, offset int) ([]Product, int, error)
	ListVariants(ctx context.Context, productID uuid.UUID) ([]Variant, error)
	SaveProduct(ctx context.Context, p Product) (Product, error)
}

// Service fronts the store with a read-through cache and enforces the
// negative-price write policy.
type Service struct {
	Store Store
	Cache *cache.Cache
	// AllowNegativePrices preserves negative prices at write time. When off,
	// any negative price is floored to zero at the source, so carts normally
	// never observe one.
	AllowNegativePrices bool
}

// GetProduct loads a product through the cache.
func (s *Service) GetProduct(ctx context.Context, id uuid.UUID) (Product, error) {
	if s == nil || s.Store == nil {
		return Product{}, errors.New("catalog service not configured")
	}
	key := cache.KeyProduct(id.String())
	var cached Product
	if hit, err := s.Cache.GetJSON(ctx, key, &cached); err == nil && hit {
		return cached, nil
	}
	product, err := s.Store.GetProduct(ctx, id)
	if err != nil {
		return Product{}, err
	}
	_ = s.Cache.SetJSON(ctx, key, product)
	return product, nil
}

// GetVariant loads a price variant through the cache.
func (s *Service) GetVariant(ctx context.Context, id uuid.UUID) (Variant, error) {
	if s == nil || s.Store == nil {
		return Variant{}, errors.New("catalog service not configured")
	}
	key := cache.KeyVariant(id.String())
	var cached Variant
	if hit, err := s.Cache.GetJSON(ctx, key, &cached); err == nil && hit {
		return cached, nil
	}
	variant, err := s.Store.GetVariant(ctx, id)
	if err != nil {
		return Variant{}, err
	}
	_ = s.Cache.SetJSON(ctx, key, variant)
	return variant, nil
}

// PriceFor resolves the current price for a product, optionally narrowed to a
// price variant. Callers snapshot the result; the cart never re-resolves it.
func (s *Service) PriceFor(ctx context.Context, productID uuid.UUID, variantID *uuid.UUID) (decimal.Decimal, string, error) {
	product, err := s.GetProduct(ctx, productID)
	if err != nil {
		return decimal.Zero, "", err
	}
	if variantID == nil {
		return product.Price, product.Title, nil
	}
	variant, err := s.GetVariant(ctx, *variantID)
	if err != nil {
		return decimal.Zero, "", err
	}
	if variant.ProductID != productID {
		return decimal.Zero, "", ErrVariantMismatch
	}
	title := product.Title
	if variant.Label != "" {
		title = fmt.Sprintf("%s (%s)", product.Title, variant.Label)
	}
	return variant.Price, title, nil
}

// SaveProduct persists a product, flooring negative prices to zero unless the
// negative-price policy is enabled, and drops any stale cache entry.
func (s *Service) SaveProduct(ctx context.Context, p Product) (Product, error) {
	if s == nil || s.Store == nil {
		return Product{}, errors.New("catalog service not configured")
	}
	if p.Price.IsNegative() && !s.AllowNegativePrices {
		p.Price = decimal.Zero
	}
	saved, err := s.Store.SaveProduct(ctx, p)
	if err != nil {
		return Product{}, err
	}
	_ = s.Cache.Delete(ctx, cache.KeyProduct(saved.ID.String()))
	return saved, nil
}

// ListProducts returns a page of products with the total count.
func (s *Service) ListProducts(ctx context.Context, limit, offset int) ([]Product, int, error) {
	if s == nil || s.Store == nil {
		return nil, 0, errors.New("catalog service not configured")
	}
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return s.Store.ListProducts(ctx, limit, offset)
}

// ListVariants returns the price options of a product.
func (s *Service) ListVariants(ctx context.Context, productID uuid.UUID) ([]Variant, error) {
	if s == nil || s.Store == nil {
		return nil, errors.New("catalog service not configured")
	}
	return s.Store.ListVariants(ctx, productID)
}
