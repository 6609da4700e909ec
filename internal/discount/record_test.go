package discount_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/calvindo/checkout-pricing/internal/discount"
	"github.com/calvindo/checkout-pricing/internal/pricing"
)

func TestValidateWindowAndLimits(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)
	limit := int32(5)

	record := discount.Record{
		Code:        "SPRING",
		Kind:        pricing.DiscountPercent,
		Amount:      decimal.NewFromInt(10),
		MinSubtotal: decimal.NewFromInt(50),
		StartsAt:    &past,
		EndsAt:      &future,
		UsageLimit:  &limit,
	}

	require.NoError(t, record.Validate(now, decimal.NewFromInt(60)))
	require.ErrorIs(t, record.Validate(now, decimal.NewFromInt(40)), discount.ErrMinSubtotalUnmet)

	record.StartsAt = &future
	require.ErrorIs(t, record.Validate(now, decimal.NewFromInt(60)), discount.ErrInactive)

	record.StartsAt = &past
	record.EndsAt = &past
	require.ErrorIs(t, record.Validate(now, decimal.NewFromInt(60)), discount.ErrExpired)

	record.EndsAt = &future
	record.UsedCount = 5
	require.ErrorIs(t, record.Validate(now, decimal.NewFromInt(60)), discount.ErrUsageLimitReached)
}

func TestEligibleProductsScoped(t *testing.T) {
	scoped := uuid.New()
	other := uuid.New()
	record := discount.Record{Code: "SCOPED", ProductIDs: []uuid.UUID{scoped}}
	items := []pricing.LineItem{
		{ProductID: scoped, Qty: 1, UnitPrice: decimal.NewFromInt(10)},
		{ProductID: other, Qty: 1, UnitPrice: decimal.NewFromInt(20)},
	}

	eligible := record.EligibleProducts(items)
	require.Len(t, eligible, 1)
	require.Contains(t, eligible, scoped)

	unscoped := discount.Record{Code: "ALL"}
	require.Nil(t, unscoped.EligibleProducts(items), "unscoped discount covers every item")
}

type fakeStore struct {
	records map[string]discount.Record
}

func (s *fakeStore) GetByCode(_ context.Context, code string) (discount.Record, error) {
	for _, r := range s.records {
		if strings.EqualFold(r.Code, code) {
			return r, nil
		}
	}
	return discount.Record{}, discount.ErrNotFound
}

func (s *fakeStore) IncrementUsage(_ context.Context, code string) error {
	for key, r := range s.records {
		if strings.EqualFold(r.Code, code) {
			r.UsedCount++
			s.records[key] = r
			return nil
		}
	}
	return discount.ErrNotFound
}

func TestResolveCaseInsensitive(t *testing.T) {
	store := &fakeStore{records: map[string]discount.Record{
		"20OFF": {Code: "20OFF", Kind: pricing.DiscountPercent, Amount: decimal.NewFromInt(20)},
	}}
	svc := &discount.Service{Store: store}
	items := []pricing.LineItem{{ProductID: uuid.New(), Qty: 1, UnitPrice: decimal.NewFromInt(20)}}

	resolved, err := svc.Resolve(context.Background(), "20off", items, pricing.DefaultConfig())
	require.NoError(t, err)
	require.Equal(t, "20OFF", resolved.Code, "canonical stored code wins over caller casing")
	require.Equal(t, pricing.DiscountPercent, resolved.Kind)
}

func TestMarkUsedIncrementsCount(t *testing.T) {
	store := &fakeStore{records: map[string]discount.Record{
		"ONCE": {Code: "ONCE", Kind: pricing.DiscountFlat, Amount: decimal.NewFromInt(5)},
	}}
	svc := &discount.Service{Store: store}

	require.NoError(t, svc.MarkUsed(context.Background(), "once"))
	require.Equal(t, int32(1), store.records["ONCE"].UsedCount)
	require.ErrorIs(t, svc.MarkUsed(context.Background(), "missing"), discount.ErrNotFound)
}

func TestResolveNotApplicable(t *testing.T) {
	scoped := uuid.New()
	store := &fakeStore{records: map[string]discount.Record{
		"SCOPED": {Code: "SCOPED", Kind: pricing.DiscountFlat, Amount: decimal.NewFromInt(5), ProductIDs: []uuid.UUID{scoped}},
	}}
	svc := &discount.Service{Store: store}
	items := []pricing.LineItem{{ProductID: uuid.New(), Qty: 1, UnitPrice: decimal.NewFromInt(20)}}

	_, err := svc.Resolve(context.Background(), "SCOPED", items, pricing.DefaultConfig())
	require.ErrorIs(t, err, discount.ErrNotApplicable)
}
