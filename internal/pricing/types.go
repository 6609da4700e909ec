package pricing

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// FeeScope determines how a fee participates in cart totals.
type FeeScope string

const (
	// FeeScopeGlobal applies once to the whole cart and is reported in the fee total.
	FeeScopeGlobal FeeScope = "global"
	// FeeScopeItem applies to every line item individually and is summed into the fee total.
	FeeScopeItem FeeScope = "item"
	// FeeScopeItemSpecific is tied to a single product and folds into that item's own price.
	FeeScopeItemSpecific FeeScope = "item_specific"
)

// Fee is a positive or negative adjustment identified by a unique label.
type Fee struct {
	ID        string
	Label     string
	Amount    decimal.Decimal
	Scope     FeeScope
	ProductID *uuid.UUID
}

// appliesTo reports whether an item-specific fee belongs to the given product.
func (f Fee) appliesTo(productID uuid.UUID) bool {
	return f.Scope == FeeScopeItemSpecific && f.ProductID != nil && *f.ProductID == productID
}

// DiscountKind enumerates supported discount strategies.
type DiscountKind string

const (
	// DiscountFlat is a fixed amount distributed proportionally across eligible items.
	DiscountFlat DiscountKind = "flat"
	// DiscountPercent reduces each eligible item's subtotal by a percentage.
	DiscountPercent DiscountKind = "percent"
)

// Discount is a fully resolved discount ready for computation. Eligibility has
// already been evaluated upstream; a nil EligibleProducts set means every item
// in the cart qualifies.
type Discount struct {
	Code             string
	Kind             DiscountKind
	Amount           decimal.Decimal
	EligibleProducts map[uuid.UUID]struct{}
}

// AppliesTo reports whether the discount covers the given product.
func (d Discount) AppliesTo(productID uuid.UUID) bool {
	if d.EligibleProducts == nil {
		return true
	}
	_, ok := d.EligibleProducts[productID]
	return ok
}

// LineItem is one product+variant+quantity entry in a cart. UnitPrice is the
// snapshot captured when the item was added, never a live catalog lookup.
type LineItem struct {
	ProductID uuid.UUID
	VariantID *uuid.UUID
	Title     string
	Qty       int
	UnitPrice decimal.Decimal
}

// Config carries the store-wide pricing policy. It is passed explicitly into
// every computation instead of being read from ambient state.
type Config struct {
	TaxEnabled          bool
	PricesIncludeTax    bool
	AllowNegativePrices bool
	CurrencyDecimals    int32
}

// DefaultConfig returns the policy for a cent-based currency with tax disabled.
func DefaultConfig() Config {
	return Config{CurrencyDecimals: 2}
}

func (c Config) decimals() int32 {
	if c.CurrencyDecimals > 0 {
		return c.CurrencyDecimals
	}
	return 2
}

func (c Config) round(d decimal.Decimal) decimal.Decimal {
	return d.Round(c.decimals())
}

// ItemResult is the per-item breakdown produced by ComputeItem. All amounts
// are rounded to the configured currency decimals; intermediate math keeps
// full precision.
type ItemResult struct {
	ProductID      uuid.UUID
	VariantID      *uuid.UUID
	Qty            int
	Subtotal       decimal.Decimal
	ItemPrice      decimal.Decimal
	DiscountAmount decimal.Decimal
	TaxAmount      decimal.Decimal
	Fees           []Fee
	FinalPrice     decimal.Decimal
}

// CartSummary aggregates per-item results into cart-level totals.
type CartSummary struct {
	Items         []ItemResult
	Subtotal      decimal.Decimal
	DiscountTotal decimal.Decimal
	TaxTotal      decimal.Decimal
	FeeTotal      decimal.Decimal
	GrandTotal    decimal.Decimal
}
