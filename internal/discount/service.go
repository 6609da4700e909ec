package discount

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/calvindo/checkout-pricing/internal/pricing"
)

// Store provides persisted discount records. Lookups by code are
// case-insensitive.
type Store interface {
	GetByCode(ctx context.Context, code string) (Record, error)
	IncrementUsage(ctx context.Context, code string) error
}

// Service resolves discount codes against cart contents.
type Service struct {
	Store Store
	Now   func() time.Time
}

func (s *Service) now() time.Time {
	if s != nil && s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// Resolve loads the record for code and validates it against the cart's
// current contents. The returned pricing.Discount carries the eligibility set;
// the canonical stored code is returned regardless of the caller's casing.
func (s *Service) Resolve(ctx context.Context, code string, items []pricing.LineItem, cfg pricing.Config) (pricing.Discount, error) {
	if s == nil || s.Store == nil {
		return pricing.Discount{}, errors.New("discount service not configured")
	}
	record, err := s.Store.GetByCode(ctx, code)
	if err != nil {
		return pricing.Discount{}, err
	}
	subtotal := pricing.Subtotal(items, cfg)
	if err := record.Validate(s.now(), subtotal); err != nil {
		return pricing.Discount{}, fmt.Errorf("discount %s: %w", record.Code, err)
	}
	eligible := record.EligibleProducts(items)
	if eligible != nil && len(eligible) == 0 {
		return pricing.Discount{}, fmt.Errorf("discount %s: %w", record.Code, ErrNotApplicable)
	}
	return record.Pricing(eligible), nil
}

// MarkUsed records a redemption for the code. Called at checkout, not while
// the code merely sits on a cart.
func (s *Service) MarkUsed(ctx context.Context, code string) error {
	if s == nil || s.Store == nil {
		return errors.New("discount service not configured")
	}
	return s.Store.IncrementUsage(ctx, code)
}
