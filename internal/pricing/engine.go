// Package pricing implements the cart pricing engine: a pure, deterministic
// computation of per-item discount allocation, tax, and cart totals. The
// engine holds no state between calls; repeated computation over identical
// inputs yields identical results.
package pricing

import (
	"fmt"

	"github.com/shopspring/decimal"
)

var oneHundred = decimal.NewFromInt(100)

// Engine computes cart totals. The zero value is ready to use; Adjusters may
// be supplied to hook into the computation at defined seams.
type Engine struct {
	Adjusters []Adjuster
}

// itemComputation carries unrounded amounts between the per-item and
// aggregation steps so rounding error does not compound across items.
type itemComputation struct {
	item     LineItem
	base     decimal.Decimal
	itemFees decimal.Decimal
	discount decimal.Decimal
	tax      decimal.Decimal
	fees     []Fee
}

func (c itemComputation) final() decimal.Decimal {
	return c.base.Sub(c.discount).Add(c.itemFees).Add(c.tax)
}

func (c itemComputation) result(cfg Config) ItemResult {
	return ItemResult{
		ProductID:      c.item.ProductID,
		VariantID:      c.item.VariantID,
		Qty:            c.item.Qty,
		Subtotal:       cfg.round(c.base),
		ItemPrice:      cfg.round(c.base.Add(c.itemFees)),
		DiscountAmount: cfg.round(c.discount),
		TaxAmount:      cfg.round(c.tax),
		Fees:           c.fees,
		FinalPrice:     cfg.round(c.final()),
	}
}

// baseSubtotal returns unit_price*qty, clamped to zero for negative unit
// prices unless the negative-prices policy is enabled.
func baseSubtotal(item LineItem, cfg Config) decimal.Decimal {
	base := item.UnitPrice.Mul(decimal.NewFromInt(int64(item.Qty)))
	if base.IsNegative() && !cfg.AllowNegativePrices {
		return decimal.Zero
	}
	return base
}

// Subtotal sums the base subtotals of the given items under the configured
// negative-price policy.
func Subtotal(items []LineItem, cfg Config) decimal.Decimal {
	total := decimal.Zero
	for _, it := range items {
		total = total.Add(baseSubtotal(it, cfg))
	}
	return total
}

// EligibleSubtotals sums the base subtotals of the items each discount covers,
// keyed by discount code. Flat discounts split proportionally against these sums.
func EligibleSubtotals(items []LineItem, discounts []Discount, cfg Config) map[string]decimal.Decimal {
	sums := make(map[string]decimal.Decimal, len(discounts))
	for _, d := range discounts {
		total := decimal.Zero
		for _, it := range items {
			if d.AppliesTo(it.ProductID) {
				total = total.Add(baseSubtotal(it, cfg))
			}
		}
		sums[d.Code] = total
	}
	return sums
}

// ComputeItem runs the per-item computation for a single line item.
// eligibleSubtotals must contain, per flat discount code, the summed base
// subtotal of all items that discount covers; when absent the item is treated
// as the sole eligible item and receives the full flat amount.
//
// Items reaching this point have passed the mutation-boundary validation, so a
// non-positive quantity here is an upstream bug, not user input.
func (e Engine) ComputeItem(item LineItem, discounts []Discount, fees []Fee, taxRate decimal.Decimal, cfg Config, eligibleSubtotals map[string]decimal.Decimal) ItemResult {
	return e.computeItem(item, discounts, fees, taxRate, cfg, eligibleSubtotals).result(cfg)
}

func (e Engine) computeItem(item LineItem, discounts []Discount, fees []Fee, taxRate decimal.Decimal, cfg Config, eligibleSubtotals map[string]decimal.Decimal) itemComputation {
	if item.Qty <= 0 {
		panic(fmt.Sprintf("pricing: line item %s has non-positive quantity %d", item.ProductID, item.Qty))
	}

	comp := itemComputation{item: item, base: baseSubtotal(item, cfg)}

	for _, f := range fees {
		switch {
		case f.appliesTo(item.ProductID):
			comp.itemFees = comp.itemFees.Add(f.Amount)
		case f.Scope == FeeScopeItem:
			comp.fees = append(comp.fees, f)
		}
	}

	ctx := e.apply(StageSubtotal, ItemContext{
		Item:         item,
		Config:       cfg,
		TaxRate:      taxRate,
		BaseSubtotal: comp.base,
		ItemFees:     comp.itemFees,
	})
	comp.base, comp.itemFees = ctx.BaseSubtotal, ctx.ItemFees

	// A negative item-specific fee pulls the price toward, but not below, zero.
	if floor := comp.base.Neg(); !cfg.AllowNegativePrices && comp.itemFees.Cmp(floor) < 0 {
		comp.itemFees = floor
	}

	// Each discount is computed against the original base subtotal:
	// stacked codes are additive, not compounding.
	for _, d := range discounts {
		if !d.AppliesTo(item.ProductID) {
			continue
		}
		switch d.Kind {
		case DiscountPercent:
			comp.discount = comp.discount.Add(comp.base.Mul(d.Amount).Div(oneHundred))
		case DiscountFlat:
			eligible, ok := eligibleSubtotals[d.Code]
			if !ok || eligible.Cmp(comp.base) < 0 {
				eligible = comp.base
			}
			if eligible.IsPositive() {
				comp.discount = comp.discount.Add(comp.base.Div(eligible).Mul(d.Amount))
			}
		}
	}
	// The post-discount price never goes below zero.
	if maxDiscount := comp.base.Add(comp.itemFees); comp.discount.Cmp(maxDiscount) > 0 {
		comp.discount = maxDiscount
	}
	if comp.discount.IsNegative() {
		comp.discount = decimal.Zero
	}

	ctx.Discount = comp.discount
	ctx = e.apply(StageDiscount, ctx)
	comp.discount = ctx.Discount

	comp.tax = computeTax(comp.base.Sub(comp.discount).Add(comp.itemFees), taxRate, cfg)

	ctx.Tax = comp.tax
	ctx = e.apply(StageTax, ctx)
	comp.tax = ctx.Tax

	return comp
}

// computeTax derives the tax amount from the taxable basis. In tax-inclusive
// mode the tax portion is backed out of the basis instead of added on top.
// The result is never negative.
func computeTax(taxable decimal.Decimal, rate decimal.Decimal, cfg Config) decimal.Decimal {
	if !cfg.TaxEnabled || !rate.IsPositive() || !taxable.IsPositive() {
		return decimal.Zero
	}
	if cfg.PricesIncludeTax {
		return taxable.Sub(taxable.Div(decimal.NewFromInt(1).Add(rate)))
	}
	return taxable.Mul(rate)
}

// ComputeCart runs the per-item computation for every line item and aggregates
// the results. Global and item-scope fees land in FeeTotal; item-specific fees
// are folded into their item's price, so they reach the grand total through
// the item side and stay out of FeeTotal. GrandTotal is floored at zero.
func (e Engine) ComputeCart(items []LineItem, discounts []Discount, fees []Fee, taxRate decimal.Decimal, cfg Config) CartSummary {
	eligible := EligibleSubtotals(items, discounts, cfg)

	summary := CartSummary{Items: make([]ItemResult, 0, len(items))}
	subtotal, discountTotal, taxTotal := decimal.Zero, decimal.Zero, decimal.Zero
	itemFeeTotal := decimal.Zero
	for _, it := range items {
		comp := e.computeItem(it, discounts, fees, taxRate, cfg, eligible)
		summary.Items = append(summary.Items, comp.result(cfg))
		subtotal = subtotal.Add(comp.base)
		itemFeeTotal = itemFeeTotal.Add(comp.itemFees)
		discountTotal = discountTotal.Add(comp.discount)
		taxTotal = taxTotal.Add(comp.tax)
	}

	feeTotal := decimal.Zero
	for _, f := range fees {
		switch f.Scope {
		case FeeScopeGlobal:
			feeTotal = feeTotal.Add(f.Amount)
		case FeeScopeItem:
			feeTotal = feeTotal.Add(f.Amount.Mul(decimal.NewFromInt(int64(len(items)))))
		}
	}

	grand := subtotal.Add(itemFeeTotal).Sub(discountTotal).Add(feeTotal).Add(taxTotal)
	if grand.IsNegative() {
		grand = decimal.Zero
	}

	summary.Subtotal = cfg.round(subtotal)
	summary.DiscountTotal = cfg.round(discountTotal)
	summary.TaxTotal = cfg.round(taxTotal)
	summary.FeeTotal = cfg.round(feeTotal)
	summary.GrandTotal = cfg.round(grand)
	return summary
}

// ComputeCart computes cart totals with a plain engine and no adjusters.
func ComputeCart(items []LineItem, discounts []Discount, fees []Fee, taxRate decimal.Decimal, cfg Config) CartSummary {
	return Engine{}.ComputeCart(items, discounts, fees, taxRate, cfg)
}
