package pricing

import "github.com/shopspring/decimal"

// Stage identifies a seam in the per-item computation where adjusters run.
type Stage int

const (
	// StageSubtotal runs after the base subtotal and item-specific fees are known.
	StageSubtotal Stage = iota
	// StageDiscount runs after the clamped discount amount is known.
	StageDiscount
	// StageTax runs after the tax amount is known.
	StageTax
)

// ItemContext is the intermediate per-item state handed to adjusters.
// Adjusters mutate a copy and return it; the engine reads back the fields
// relevant to the stage.
type ItemContext struct {
	Item         LineItem
	Config       Config
	TaxRate      decimal.Decimal
	BaseSubtotal decimal.Decimal
	ItemFees     decimal.Decimal
	Discount     decimal.Decimal
	Tax          decimal.Decimal
}

// Adjuster alters intermediate per-item amounts at a declared stage. Adjusters
// registered on an Engine run in order at each matching seam, replacing the
// ambient hook dispatch of extensible storefronts with an explicit list.
type Adjuster interface {
	Stage() Stage
	Adjust(ItemContext) ItemContext
}

// AdjusterFunc adapts a function to the Adjuster interface.
type AdjusterFunc struct {
	At Stage
	Fn func(ItemContext) ItemContext
}

// Stage returns the seam the adjuster is bound to.
func (a AdjusterFunc) Stage() Stage { return a.At }

// Adjust invokes the wrapped function.
func (a AdjusterFunc) Adjust(ctx ItemContext) ItemContext {
	if a.Fn == nil {
		return ctx
	}
	return a.Fn(ctx)
}

func (e Engine) apply(stage Stage, ctx ItemContext) ItemContext {
	for _, adj := range e.Adjusters {
		if adj.Stage() == stage {
			ctx = adj.Adjust(ctx)
		}
	}
	return ctx
}
