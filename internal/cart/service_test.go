package cart_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/calvindo/checkout-pricing/internal/cart"
	"github.com/calvindo/checkout-pricing/internal/catalog"
	"github.com/calvindo/checkout-pricing/internal/discount"
	"github.com/calvindo/checkout-pricing/internal/pricing"
)

type memStore struct {
	carts map[uuid.UUID]cart.Cart
	items map[uuid.UUID]cart.Item
	fees  map[uuid.UUID]map[string]pricing.Fee
}

func newMemStore() *memStore {
	return &memStore{
		carts: map[uuid.UUID]cart.Cart{},
		items: map[uuid.UUID]cart.Item{},
		fees:  map[uuid.UUID]map[string]pricing.Fee{},
	}
}

func (m *memStore) CreateCart(_ context.Context, c cart.Cart) (cart.Cart, error) {
	m.carts[c.ID] = c
	return c, nil
}

func (m *memStore) GetCart(_ context.Context, id uuid.UUID) (cart.Cart, error) {
	if c, ok := m.carts[id]; ok {
		return c, nil
	}
	return cart.Cart{}, cart.ErrNotFound
}

func (m *memStore) GetCartByAnon(_ context.Context, anonID string) (cart.Cart, error) {
	for _, c := range m.carts {
		if c.AnonID == anonID {
			return c, nil
		}
	}
	return cart.Cart{}, cart.ErrNotFound
}

func (m *memStore) UpdateCart(_ context.Context, c cart.Cart) error {
	if _, ok := m.carts[c.ID]; !ok {
		return cart.ErrNotFound
	}
	m.carts[c.ID] = c
	return nil
}

func (m *memStore) DeleteExpired(_ context.Context, before time.Time) (int64, error) {
	var removed int64
	for id, c := range m.carts {
		if c.ExpiresAt.Before(before) {
			delete(m.carts, id)
			removed++
		}
	}
	return removed, nil
}

func (m *memStore) ListItems(_ context.Context, cartID uuid.UUID) ([]cart.Item, error) {
	var out []cart.Item
	for _, it := range m.items {
		if it.CartID == cartID {
			out = append(out, it)
		}
	}
	return out, nil
}

func (m *memStore) FindItem(_ context.Context, cartID, productID uuid.UUID, variantID *uuid.UUID) (cart.Item, error) {
	for _, it := range m.items {
		if it.CartID != cartID || it.ProductID != productID {
			continue
		}
		switch {
		case it.VariantID == nil && variantID == nil:
			return it, nil
		case it.VariantID != nil && variantID != nil && *it.VariantID == *variantID:
			return it, nil
		}
	}
	return cart.Item{}, cart.ErrItemNotFound
}

func (m *memStore) GetItem(_ context.Context, cartID, itemID uuid.UUID) (cart.Item, error) {
	if it, ok := m.items[itemID]; ok && it.CartID == cartID {
		return it, nil
	}
	return cart.Item{}, cart.ErrItemNotFound
}

func (m *memStore) InsertItem(_ context.Context, it cart.Item) (cart.Item, error) {
	m.items[it.ID] = it
	return it, nil
}

func (m *memStore) UpdateItemQty(_ context.Context, itemID uuid.UUID, qty int) error {
	it, ok := m.items[itemID]
	if !ok {
		return cart.ErrItemNotFound
	}
	it.Qty = qty
	m.items[itemID] = it
	return nil
}

func (m *memStore) DeleteItem(_ context.Context, cartID, itemID uuid.UUID) error {
	if it, ok := m.items[itemID]; ok && it.CartID == cartID {
		delete(m.items, itemID)
		return nil
	}
	return cart.ErrItemNotFound
}

func (m *memStore) DeleteItems(_ context.Context, cartID uuid.UUID) error {
	for id, it := range m.items {
		if it.CartID == cartID {
			delete(m.items, id)
		}
	}
	return nil
}

func (m *memStore) ListFees(_ context.Context, cartID uuid.UUID) ([]pricing.Fee, error) {
	var out []pricing.Fee
	for _, f := range m.fees[cartID] {
		out = append(out, f)
	}
	return out, nil
}

func (m *memStore) UpsertFee(_ context.Context, cartID uuid.UUID, f pricing.Fee) error {
	if m.fees[cartID] == nil {
		m.fees[cartID] = map[string]pricing.Fee{}
	}
	m.fees[cartID][f.ID] = f
	return nil
}

func (m *memStore) DeleteFee(_ context.Context, cartID uuid.UUID, feeID string) error {
	delete(m.fees[cartID], feeID)
	return nil
}

type stubCatalog struct {
	prices map[uuid.UUID]decimal.Decimal
}

func (c stubCatalog) PriceFor(_ context.Context, productID uuid.UUID, _ *uuid.UUID) (decimal.Decimal, string, error) {
	if price, ok := c.prices[productID]; ok {
		return price, "Product", nil
	}
	return decimal.Zero, "", catalog.ErrNotFound
}

type stubDiscounts struct {
	records map[string]pricing.Discount
}

func (d stubDiscounts) Resolve(_ context.Context, code string, _ []pricing.LineItem, _ pricing.Config) (pricing.Discount, error) {
	for canonical, resolved := range d.records {
		if strings.EqualFold(canonical, code) {
			return resolved, nil
		}
	}
	return pricing.Discount{}, discount.ErrNotFound
}

type stubRates struct {
	rate decimal.Decimal
}

func (r stubRates) RateFor(context.Context, string, string) (decimal.Decimal, error) {
	return r.rate, nil
}

func newService(t *testing.T, store *memStore) *cart.Service {
	t.Helper()
	return &cart.Service{
		Store:  store,
		Config: pricing.DefaultConfig(),
		Now:    func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) },
	}
}

func mustCart(t *testing.T, svc *cart.Service) cart.Cart {
	t.Helper()
	c, err := svc.EnsureCart(context.Background(), uuid.NewString())
	require.NoError(t, err)
	return c
}

func TestAddItemValidation(t *testing.T) {
	store := newMemStore()
	svc := newService(t, store)
	svc.Catalog = stubCatalog{prices: map[uuid.UUID]decimal.Decimal{}}
	c := mustCart(t, svc)

	_, err := svc.AddItem(context.Background(), c.ID, uuid.New(), nil, 0)
	require.ErrorIs(t, err, cart.ErrInvalidInput)

	_, err = svc.AddItem(context.Background(), c.ID, uuid.New(), nil, 1)
	require.ErrorIs(t, err, catalog.ErrNotFound)
}

func TestAddItemMergesSameVariantOnly(t *testing.T) {
	store := newMemStore()
	svc := newService(t, store)
	productID := uuid.New()
	svc.Catalog = stubCatalog{prices: map[uuid.UUID]decimal.Decimal{
		productID: decimal.RequireFromString("20.00"),
	}}
	c := mustCart(t, svc)

	first, err := svc.AddItem(context.Background(), c.ID, productID, nil, 1)
	require.NoError(t, err)
	merged, err := svc.AddItem(context.Background(), c.ID, productID, nil, 2)
	require.NoError(t, err)
	require.Equal(t, first.ID, merged.ID)
	require.Equal(t, 3, merged.Qty)

	variantID := uuid.New()
	separate, err := svc.AddItem(context.Background(), c.ID, productID, &variantID, 1)
	require.NoError(t, err)
	require.NotEqual(t, first.ID, separate.ID, "distinct variants stay separate lines")

	items, err := store.ListItems(context.Background(), c.ID)
	require.NoError(t, err)
	require.Len(t, items, 2)
}

func TestDiscountCaseInsensitiveRoundTrip(t *testing.T) {
	store := newMemStore()
	svc := newService(t, store)
	productID := uuid.New()
	svc.Catalog = stubCatalog{prices: map[uuid.UUID]decimal.Decimal{
		productID: decimal.RequireFromString("20.00"),
	}}
	svc.Discounts = stubDiscounts{records: map[string]pricing.Discount{
		"20OFF": {Code: "20OFF", Kind: pricing.DiscountPercent, Amount: decimal.NewFromInt(20)},
	}}
	c := mustCart(t, svc)
	_, err := svc.AddItem(context.Background(), c.ID, productID, nil, 1)
	require.NoError(t, err)

	applied, err := svc.ApplyDiscount(context.Background(), c.ID, "20off")
	require.NoError(t, err)
	require.Equal(t, []string{"20OFF"}, applied.DiscountCodes, "canonical casing stored")

	applied, err = svc.ApplyDiscount(context.Background(), c.ID, "20OFF")
	require.NoError(t, err)
	require.Len(t, applied.DiscountCodes, 1, "re-applying any casing is a no-op")

	removed, err := svc.RemoveDiscount(context.Background(), c.ID, "20oFf")
	require.NoError(t, err)
	require.Empty(t, removed.DiscountCodes)

	summary, _, err := svc.Quote(context.Background(), c.ID)
	require.NoError(t, err)
	require.True(t, summary.DiscountTotal.IsZero())
	require.Equal(t, "20.00", summary.GrandTotal.StringFixed(2))
}

func TestQuoteFullBreakdown(t *testing.T) {
	store := newMemStore()
	svc := newService(t, store)
	productID := uuid.New()
	svc.Catalog = stubCatalog{prices: map[uuid.UUID]decimal.Decimal{
		productID: decimal.RequireFromString("20.00"),
	}}
	svc.Discounts = stubDiscounts{records: map[string]pricing.Discount{
		"20OFF": {Code: "20OFF", Kind: pricing.DiscountPercent, Amount: decimal.NewFromInt(20)},
	}}
	svc.Rates = stubRates{rate: decimal.RequireFromString("0.20")}
	svc.Config.TaxEnabled = true
	c := mustCart(t, svc)

	_, err := svc.AddItem(context.Background(), c.ID, productID, nil, 1)
	require.NoError(t, err)
	_, err = svc.ApplyDiscount(context.Background(), c.ID, "20OFF")
	require.NoError(t, err)
	require.NoError(t, svc.AddFee(context.Background(), c.ID, pricing.Fee{
		ID: "handling", Amount: decimal.RequireFromString("2.50"), Scope: pricing.FeeScopeGlobal,
	}))

	summary, items, err := svc.Quote(context.Background(), c.ID)
	require.NoError(t, err)
	require.Len(t, items, 1)
	require.Equal(t, "20.00", summary.Subtotal.StringFixed(2))
	require.Equal(t, "4.00", summary.DiscountTotal.StringFixed(2))
	require.Equal(t, "3.20", summary.TaxTotal.StringFixed(2))
	require.Equal(t, "2.50", summary.FeeTotal.StringFixed(2))
	require.Equal(t, "21.70", summary.GrandTotal.StringFixed(2))

	again, _, err := svc.Quote(context.Background(), c.ID)
	require.NoError(t, err)
	require.Equal(t, summary, again, "repeated quotes over unchanged state are identical")
}

func TestQuoteSkipsUnresolvableDiscount(t *testing.T) {
	store := newMemStore()
	svc := newService(t, store)
	productID := uuid.New()
	svc.Catalog = stubCatalog{prices: map[uuid.UUID]decimal.Decimal{
		productID: decimal.RequireFromString("20.00"),
	}}
	svc.Discounts = stubDiscounts{records: map[string]pricing.Discount{}}
	c := mustCart(t, svc)
	_, err := svc.AddItem(context.Background(), c.ID, productID, nil, 1)
	require.NoError(t, err)

	// Simulate a code that was applied and later deleted from the store.
	c, err = svc.GetCart(context.Background(), c.ID)
	require.NoError(t, err)
	c.DiscountCodes = []string{"GONE"}
	require.NoError(t, store.UpdateCart(context.Background(), c))

	summary, _, err := svc.Quote(context.Background(), c.ID)
	require.NoError(t, err)
	require.True(t, summary.DiscountTotal.IsZero())
}

func TestFeeDedupAndRemoval(t *testing.T) {
	store := newMemStore()
	svc := newService(t, store)
	productID := uuid.New()
	svc.Catalog = stubCatalog{prices: map[uuid.UUID]decimal.Decimal{
		productID: decimal.RequireFromString("20.00"),
	}}
	c := mustCart(t, svc)
	_, err := svc.AddItem(context.Background(), c.ID, productID, nil, 1)
	require.NoError(t, err)

	fee := pricing.Fee{ID: "handling", Amount: decimal.NewFromInt(5), Scope: pricing.FeeScopeGlobal}
	require.NoError(t, svc.AddFee(context.Background(), c.ID, fee))
	fee.Amount = decimal.NewFromInt(7)
	require.NoError(t, svc.AddFee(context.Background(), c.ID, fee))

	summary, _, err := svc.Quote(context.Background(), c.ID)
	require.NoError(t, err)
	require.Equal(t, "7.00", summary.FeeTotal.StringFixed(2), "same fee id replaces, not stacks")

	require.NoError(t, svc.RemoveFee(context.Background(), c.ID, "handling"))
	summary, _, err = svc.Quote(context.Background(), c.ID)
	require.NoError(t, err)
	require.True(t, summary.FeeTotal.IsZero())
}

func TestAddFeeValidation(t *testing.T) {
	store := newMemStore()
	svc := newService(t, store)
	c := mustCart(t, svc)

	err := svc.AddFee(context.Background(), c.ID, pricing.Fee{Amount: decimal.NewFromInt(5), Scope: pricing.FeeScopeGlobal})
	require.ErrorIs(t, err, cart.ErrInvalidInput)

	err = svc.AddFee(context.Background(), c.ID, pricing.Fee{ID: "x", Amount: decimal.NewFromInt(5), Scope: pricing.FeeScopeItemSpecific})
	require.ErrorIs(t, err, cart.ErrInvalidInput, "item-specific fee requires product id")
}

func TestEnsureCartRevivesExpiredCartEmpty(t *testing.T) {
	store := newMemStore()
	svc := newService(t, store)
	productID := uuid.New()
	svc.Catalog = stubCatalog{prices: map[uuid.UUID]decimal.Decimal{
		productID: decimal.RequireFromString("20.00"),
	}}
	svc.Discounts = stubDiscounts{records: map[string]pricing.Discount{
		"20OFF": {Code: "20OFF", Kind: pricing.DiscountPercent, Amount: decimal.NewFromInt(20)},
	}}
	anonID := uuid.NewString()
	c, err := svc.EnsureCart(context.Background(), anonID)
	require.NoError(t, err)
	_, err = svc.AddItem(context.Background(), c.ID, productID, nil, 2)
	require.NoError(t, err)
	_, err = svc.ApplyDiscount(context.Background(), c.ID, "20OFF")
	require.NoError(t, err)
	require.NoError(t, svc.AddFee(context.Background(), c.ID, pricing.Fee{
		ID: "handling", Amount: decimal.NewFromInt(5), Scope: pricing.FeeScopeGlobal,
	}))

	// Let the cart lapse, then come back with the same anonymous id.
	expired, err := store.GetCart(context.Background(), c.ID)
	require.NoError(t, err)
	expired.ExpiresAt = svc.Now().Add(-time.Hour)
	require.NoError(t, store.UpdateCart(context.Background(), expired))

	revived, err := svc.EnsureCart(context.Background(), anonID)
	require.NoError(t, err)
	require.Equal(t, c.ID, revived.ID)
	require.Empty(t, revived.DiscountCodes)
	require.True(t, revived.ExpiresAt.After(svc.Now()))

	items, err := store.ListItems(context.Background(), c.ID)
	require.NoError(t, err)
	require.Empty(t, items, "stale items do not survive revival")
	fees, err := store.ListFees(context.Background(), c.ID)
	require.NoError(t, err)
	require.Empty(t, fees, "stale fees do not survive revival")
}

func TestSweepExpired(t *testing.T) {
	store := newMemStore()
	svc := newService(t, store)
	c := mustCart(t, svc)

	expired := c
	expired.ID = uuid.New()
	expired.AnonID = uuid.NewString()
	expired.ExpiresAt = svc.Now().Add(-time.Hour)
	_, err := store.CreateCart(context.Background(), expired)
	require.NoError(t, err)

	removed, err := svc.SweepExpired(context.Background())
	require.NoError(t, err)
	require.EqualValues(t, 1, removed)

	_, err = svc.GetCart(context.Background(), c.ID)
	require.NoError(t, err)
	_, err = svc.GetCart(context.Background(), expired.ID)
	require.ErrorIs(t, err, cart.ErrNotFound)
}
