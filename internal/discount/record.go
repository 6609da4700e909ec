// Package discount implements the discount store and eligibility evaluation.
// Records are resolved by code (case-insensitively) and converted into the
// fully-evaluated pricing.Discount values the engine consumes.
package discount

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/calvindo/checkout-pricing/internal/pricing"
)

var (
	// ErrNotFound is returned when no record exists for the code.
	ErrNotFound = errors.New("discount not found")
	// ErrInactive is returned when the code is used before its start date.
	ErrInactive = errors.New("discount not active")
	// ErrExpired is returned when the code is used after its end date.
	ErrExpired = errors.New("discount expired")
	// ErrUsageLimitReached indicates the code has exhausted its redemption quota.
	ErrUsageLimitReached = errors.New("discount usage limit reached")
	// ErrMinSubtotalUnmet indicates the cart subtotal did not meet the requirement.
	ErrMinSubtotalUnmet = errors.New("discount minimum subtotal not met")
	// ErrNotApplicable indicates the code covers none of the cart's items.
	ErrNotApplicable = errors.New("discount not applicable to cart")
)

// Record is a persisted discount. An empty ProductIDs slice means the
// discount covers every product.
type Record struct {
	ID          uuid.UUID
	Code        string
	Kind        pricing.DiscountKind
	Amount      decimal.Decimal
	MinSubtotal decimal.Decimal
	ProductIDs  []uuid.UUID
	StartsAt    *time.Time
	EndsAt      *time.Time
	UsageLimit  *int32
	UsedCount   int32
}

// Validate ensures the record can be applied at the provided instant against
// the cart's pre-discount subtotal.
func (r Record) Validate(now time.Time, cartSubtotal decimal.Decimal) error {
	if r.StartsAt != nil && now.Before(*r.StartsAt) {
		return ErrInactive
	}
	if r.EndsAt != nil && now.After(*r.EndsAt) {
		return ErrExpired
	}
	if r.UsageLimit != nil && *r.UsageLimit >= 0 && r.UsedCount >= *r.UsageLimit {
		return ErrUsageLimitReached
	}
	if cartSubtotal.Cmp(r.MinSubtotal) < 0 {
		return ErrMinSubtotalUnmet
	}
	return nil
}

// EligibleProducts returns the set of cart products the record covers, or nil
// when the record is unscoped and every item qualifies.
func (r Record) EligibleProducts(items []pricing.LineItem) map[uuid.UUID]struct{} {
	if len(r.ProductIDs) == 0 {
		return nil
	}
	scoped := make(map[uuid.UUID]struct{}, len(r.ProductIDs))
	for _, id := range r.ProductIDs {
		scoped[id] = struct{}{}
	}
	eligible := make(map[uuid.UUID]struct{})
	for _, it := range items {
		if _, ok := scoped[it.ProductID]; ok {
			eligible[it.ProductID] = struct{}{}
		}
	}
	return eligible
}

// Pricing converts the record into the engine's discount input using a
// previously evaluated eligibility set.
func (r Record) Pricing(eligible map[uuid.UUID]struct{}) pricing.Discount {
	return pricing.Discount{
		Code:             r.Code,
		Kind:             r.Kind,
		Amount:           r.Amount,
		EligibleProducts: eligible,
	}
}
