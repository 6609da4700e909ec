// Package tax resolves effective tax rates per jurisdiction. A rate is looked
// up by (country, region) with a fallback to the country-wide entry and
// finally to the configured default rate.
package tax

import (
	"context"
	"errors"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/calvindo/checkout-pricing/internal/cache"
	"github.com/calvindo/checkout-pricing/internal/obs"
)

// ErrNoRate indicates no rate row exists for the requested jurisdiction.
var ErrNoRate = errors.New("tax: no rate configured")

// Rate is one jurisdiction entry. Region may be empty for a country-wide rate.
type Rate struct {
	Country string          `json:"country"`
	Region  string          `json:"region"`
	Rate    decimal.Decimal `json:"rate"`
}

// Store provides persisted jurisdiction rates.
type Store interface {
	FindRate(ctx context.Context, country, region string) (decimal.Decimal, error)
	ListRates(ctx context.Context) ([]Rate, error)
}

// Resolver resolves rates through an optional cache in front of the store.
type Resolver struct {
	Store   Store
	Cache   *cache.Cache
	Default decimal.Decimal
}

type cachedRate struct {
	Rate string `json:"rate"`
}

// RateFor returns the effective rate for the jurisdiction. Region-specific
// overrides win over country-wide entries; when neither exists the default
// rate applies. Rates below 1% are preserved as-is.
func (r *Resolver) RateFor(ctx context.Context, country, region string) (decimal.Decimal, error) {
	country = strings.ToUpper(strings.TrimSpace(country))
	region = strings.ToUpper(strings.TrimSpace(region))
	if country == "" {
		return r.Default, nil
	}

	key := cache.KeyTaxRate(country, region)
	var cached cachedRate
	if hit, err := r.Cache.GetJSON(ctx, key, &cached); err == nil && hit {
		if rate, err := decimal.NewFromString(cached.Rate); err == nil {
			return rate, nil
		}
	}

	rate, err := r.lookup(ctx, country, region)
	if err != nil {
		return decimal.Zero, err
	}
	_ = r.Cache.SetJSON(ctx, key, cachedRate{Rate: rate.String()})
	return rate, nil
}

func (r *Resolver) lookup(ctx context.Context, country, region string) (decimal.Decimal, error) {
	if r.Store == nil {
		return r.Default, nil
	}
	if region != "" {
		rate, err := r.Store.FindRate(ctx, country, region)
		if err == nil {
			return rate, nil
		}
		if !errors.Is(err, ErrNoRate) {
			return decimal.Zero, err
		}
	}
	rate, err := r.Store.FindRate(ctx, country, "")
	if err == nil {
		return rate, nil
	}
	if errors.Is(err, ErrNoRate) {
		return r.Default, nil
	}
	return decimal.Zero, err
}

// Warm primes the cache with every persisted rate. Used by the background
// worker so cart quotes rarely hit the database for rates.
func (r *Resolver) Warm(ctx context.Context) (int, error) {
	if r.Store == nil || r.Cache == nil {
		return 0, nil
	}
	rates, err := r.Store.ListRates(ctx)
	if err != nil {
		return 0, err
	}
	warmed := 0
	for _, rate := range rates {
		key := cache.KeyTaxRate(rate.Country, rate.Region)
		if err := r.Cache.SetJSON(ctx, key, cachedRate{Rate: rate.Rate.String()}); err != nil {
			return warmed, err
		}
		warmed++
	}
	if warmed > 0 && obs.TaxCacheWarmTotal != nil {
		obs.TaxCacheWarmTotal.Add(float64(warmed))
	}
	return warmed, nil
}
