package pricing_test

import (
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/calvindo/checkout-pricing/internal/pricing"
)

func dec(t *testing.T, value string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(value)
	require.NoError(t, err)
	return d
}

func item(t *testing.T, price string, qty int) pricing.LineItem {
	t.Helper()
	return pricing.LineItem{ProductID: uuid.New(), Qty: qty, UnitPrice: dec(t, price)}
}

func requireAmount(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	require.True(t, dec(t, want).Equal(got), "want %s got %s", want, got)
}

func TestPercentDiscountThenTax(t *testing.T) {
	cfg := pricing.DefaultConfig()
	it := item(t, "20.00", 1)
	discount := pricing.Discount{Code: "20OFF", Kind: pricing.DiscountPercent, Amount: dec(t, "20")}

	summary := pricing.ComputeCart([]pricing.LineItem{it}, []pricing.Discount{discount}, nil, decimal.Zero, cfg)
	requireAmount(t, "20.00", summary.Subtotal)
	requireAmount(t, "4.00", summary.DiscountTotal)
	requireAmount(t, "16.00", summary.GrandTotal)
	requireAmount(t, "4.00", summary.Items[0].DiscountAmount)
	requireAmount(t, "16.00", summary.Items[0].FinalPrice)

	cfg.TaxEnabled = true
	rate := dec(t, "0.20")
	summary = pricing.ComputeCart([]pricing.LineItem{it}, []pricing.Discount{discount}, nil, rate, cfg)
	requireAmount(t, "3.20", summary.TaxTotal)
	requireAmount(t, "19.20", summary.GrandTotal)

	summary = pricing.ComputeCart([]pricing.LineItem{it}, nil, nil, rate, cfg)
	requireAmount(t, "4.00", summary.TaxTotal)
	requireAmount(t, "24.00", summary.GrandTotal)
}

func TestFlatDiscountSplitsProportionally(t *testing.T) {
	items := []pricing.LineItem{item(t, "20.00", 1), item(t, "25.00", 1)}
	discount := pricing.Discount{Code: "SPLIT", Kind: pricing.DiscountFlat, Amount: dec(t, "8.73")}

	summary := pricing.ComputeCart(items, []pricing.Discount{discount}, nil, decimal.Zero, pricing.DefaultConfig())
	requireAmount(t, "3.88", summary.Items[0].DiscountAmount)
	requireAmount(t, "4.85", summary.Items[1].DiscountAmount)
	requireAmount(t, "8.73", summary.DiscountTotal)
	requireAmount(t, "36.27", summary.GrandTotal)
}

func TestFlatDiscountSingleEligibleItem(t *testing.T) {
	scoped := item(t, "30.00", 1)
	other := item(t, "50.00", 1)
	discount := pricing.Discount{
		Code:             "ONLYONE",
		Kind:             pricing.DiscountFlat,
		Amount:           dec(t, "5.00"),
		EligibleProducts: map[uuid.UUID]struct{}{scoped.ProductID: {}},
	}

	summary := pricing.ComputeCart([]pricing.LineItem{scoped, other}, []pricing.Discount{discount}, nil, decimal.Zero, pricing.DefaultConfig())
	requireAmount(t, "5.00", summary.Items[0].DiscountAmount)
	requireAmount(t, "0.00", summary.Items[1].DiscountAmount)
	requireAmount(t, "75.00", summary.GrandTotal)
}

func TestStackedDiscountsAreAdditive(t *testing.T) {
	it := item(t, "20.00", 1)
	discounts := []pricing.Discount{
		{Code: "TEN-A", Kind: pricing.DiscountPercent, Amount: dec(t, "10")},
		{Code: "TEN-B", Kind: pricing.DiscountPercent, Amount: dec(t, "10")},
	}

	summary := pricing.ComputeCart([]pricing.LineItem{it}, discounts, nil, decimal.Zero, pricing.DefaultConfig())
	// 2.00 + 2.00 against the original subtotal, not 2.00 + 1.80 compounding.
	requireAmount(t, "4.00", summary.DiscountTotal)
}

func TestDiscountClampedAtItemPrice(t *testing.T) {
	it := item(t, "20.00", 1)
	discount := pricing.Discount{Code: "BIG", Kind: pricing.DiscountFlat, Amount: dec(t, "50.00")}

	summary := pricing.ComputeCart([]pricing.LineItem{it}, []pricing.Discount{discount}, nil, decimal.Zero, pricing.DefaultConfig())
	requireAmount(t, "20.00", summary.DiscountTotal)
	requireAmount(t, "0.00", summary.Items[0].FinalPrice)
	requireAmount(t, "0.00", summary.GrandTotal)
}

func TestNegativeItemFeeReducesTaxableBasis(t *testing.T) {
	cfg := pricing.DefaultConfig()
	cfg.TaxEnabled = true
	it := item(t, "20.00", 1)
	fee := pricing.Fee{ID: "promo", Amount: dec(t, "-10.00"), Scope: pricing.FeeScopeItemSpecific, ProductID: &it.ProductID}

	summary := pricing.ComputeCart([]pricing.LineItem{it}, nil, []pricing.Fee{fee}, dec(t, "0.10"), cfg)
	requireAmount(t, "10.00", summary.Items[0].ItemPrice)
	requireAmount(t, "1.00", summary.Items[0].TaxAmount)
	requireAmount(t, "11.00", summary.Items[0].FinalPrice)
	// Item-specific fees do not land in the cart fee total.
	requireAmount(t, "0.00", summary.FeeTotal)
	requireAmount(t, "11.00", summary.GrandTotal)
}

func TestItemFeeClampedAtItemPrice(t *testing.T) {
	cfg := pricing.DefaultConfig()
	cfg.TaxEnabled = true
	it := item(t, "20.00", 1)
	fee := pricing.Fee{ID: "promo", Amount: dec(t, "-30.00"), Scope: pricing.FeeScopeItemSpecific, ProductID: &it.ProductID}

	summary := pricing.ComputeCart([]pricing.LineItem{it}, nil, []pricing.Fee{fee}, dec(t, "0.10"), cfg)
	requireAmount(t, "0.00", summary.Items[0].ItemPrice)
	requireAmount(t, "0.00", summary.Items[0].TaxAmount)
	requireAmount(t, "0.00", summary.Items[0].FinalPrice)
	requireAmount(t, "0.00", summary.GrandTotal)

	cfg.AllowNegativePrices = true
	summary = pricing.ComputeCart([]pricing.LineItem{it}, nil, []pricing.Fee{fee}, dec(t, "0.10"), cfg)
	requireAmount(t, "-10.00", summary.Items[0].ItemPrice)
	requireAmount(t, "0.00", summary.GrandTotal)
}

func TestGlobalAndItemScopeFees(t *testing.T) {
	it := item(t, "20.00", 1)

	global := pricing.Fee{ID: "handling", Amount: dec(t, "10.00"), Scope: pricing.FeeScopeGlobal}
	summary := pricing.ComputeCart([]pricing.LineItem{it}, nil, []pricing.Fee{global}, decimal.Zero, pricing.DefaultConfig())
	requireAmount(t, "30.00", summary.GrandTotal)
	requireAmount(t, "10.00", summary.FeeTotal)
	requireAmount(t, "20.00", summary.Items[0].ItemPrice)

	perItem := pricing.Fee{ID: "service", Amount: dec(t, "10.00"), Scope: pricing.FeeScopeItem}
	summary = pricing.ComputeCart([]pricing.LineItem{it}, nil, []pricing.Fee{perItem}, decimal.Zero, pricing.DefaultConfig())
	requireAmount(t, "30.00", summary.GrandTotal)
	requireAmount(t, "10.00", summary.FeeTotal)
	// Reported on the item but never folded into its own price.
	require.Len(t, summary.Items[0].Fees, 1)
	requireAmount(t, "20.00", summary.Items[0].ItemPrice)
	requireAmount(t, "20.00", summary.Items[0].FinalPrice)
}

func TestGrandTotalFlooredAtZero(t *testing.T) {
	it := item(t, "5.00", 1)
	fee := pricing.Fee{ID: "refund", Amount: dec(t, "-50.00"), Scope: pricing.FeeScopeGlobal}

	summary := pricing.ComputeCart([]pricing.LineItem{it}, nil, []pricing.Fee{fee}, decimal.Zero, pricing.DefaultConfig())
	requireAmount(t, "0.00", summary.GrandTotal)
}

func TestTaxInclusivePricingBacksOutTax(t *testing.T) {
	cfg := pricing.DefaultConfig()
	cfg.TaxEnabled = true
	cfg.PricesIncludeTax = true
	it := item(t, "20.00", 1)

	summary := pricing.ComputeCart([]pricing.LineItem{it}, nil, nil, dec(t, "0.20"), cfg)
	// 20 - 20/1.2 = 3.3333..., rounded at the boundary only.
	requireAmount(t, "3.33", summary.TaxTotal)
	requireAmount(t, "23.33", summary.GrandTotal)
}

func TestSubOnePercentRateKeepsPrecision(t *testing.T) {
	cfg := pricing.DefaultConfig()
	cfg.TaxEnabled = true
	it := item(t, "100.00", 1)

	summary := pricing.ComputeCart([]pricing.LineItem{it}, nil, nil, dec(t, "0.0015"), cfg)
	requireAmount(t, "0.15", summary.TaxTotal)
}

func TestTaxMonotonicity(t *testing.T) {
	cfg := pricing.DefaultConfig()
	cfg.TaxEnabled = true
	items := []pricing.LineItem{item(t, "19.99", 3), item(t, "4.25", 1)}
	discount := pricing.Discount{Code: "P5", Kind: pricing.DiscountPercent, Amount: dec(t, "5")}

	prev := decimal.Zero
	for _, rate := range []string{"0", "0.0015", "0.05", "0.10", "0.20"} {
		summary := pricing.ComputeCart(items, []pricing.Discount{discount}, nil, dec(t, rate), cfg)
		require.True(t, summary.TaxTotal.GreaterThanOrEqual(prev), "tax decreased at rate %s", rate)
		prev = summary.TaxTotal
	}
}

func TestComputeCartIsIdempotent(t *testing.T) {
	cfg := pricing.DefaultConfig()
	cfg.TaxEnabled = true
	items := []pricing.LineItem{item(t, "20.00", 2), item(t, "7.49", 1)}
	discounts := []pricing.Discount{{Code: "SPLIT", Kind: pricing.DiscountFlat, Amount: dec(t, "8.73")}}
	fees := []pricing.Fee{{ID: "handling", Amount: dec(t, "2.50"), Scope: pricing.FeeScopeGlobal}}

	first := pricing.ComputeCart(items, discounts, fees, dec(t, "0.11"), cfg)
	for range 5 {
		require.Equal(t, first, pricing.ComputeCart(items, discounts, fees, dec(t, "0.11"), cfg))
	}
}

func TestNegativeUnitPricePolicy(t *testing.T) {
	it := item(t, "-5.00", 2)

	summary := pricing.ComputeCart([]pricing.LineItem{it}, nil, nil, decimal.Zero, pricing.DefaultConfig())
	requireAmount(t, "0.00", summary.Subtotal)

	cfg := pricing.DefaultConfig()
	cfg.AllowNegativePrices = true
	summary = pricing.ComputeCart([]pricing.LineItem{it}, nil, nil, decimal.Zero, cfg)
	requireAmount(t, "-10.00", summary.Subtotal)
	requireAmount(t, "0.00", summary.GrandTotal)
}

func TestTaxDisabledIgnoresRate(t *testing.T) {
	it := item(t, "20.00", 1)
	summary := pricing.ComputeCart([]pricing.LineItem{it}, nil, nil, dec(t, "0.20"), pricing.DefaultConfig())
	requireAmount(t, "0.00", summary.TaxTotal)
	requireAmount(t, "20.00", summary.GrandTotal)
}

func TestAdjusterSeams(t *testing.T) {
	it := item(t, "20.00", 1)
	engine := pricing.Engine{Adjusters: []pricing.Adjuster{
		pricing.AdjusterFunc{At: pricing.StageDiscount, Fn: func(ctx pricing.ItemContext) pricing.ItemContext {
			ctx.Discount = ctx.Discount.Add(decimal.NewFromInt(1))
			return ctx
		}},
	}}

	summary := engine.ComputeCart([]pricing.LineItem{it}, nil, nil, decimal.Zero, pricing.DefaultConfig())
	requireAmount(t, "1.00", summary.DiscountTotal)
	requireAmount(t, "19.00", summary.GrandTotal)
}

func TestComputeItemRejectsNonPositiveQty(t *testing.T) {
	it := item(t, "20.00", 1)
	it.Qty = 0
	require.Panics(t, func() {
		pricing.Engine{}.ComputeItem(it, nil, nil, decimal.Zero, pricing.DefaultConfig(), nil)
	})
}
