// Package pricing derives item summaries and order totals from a cart.
//
// All arithmetic keeps full float64 precision. Amounts are rounded to two
// decimals only when they are formatted for display or for an order
// submission, so repeated recomputation never compounds rounding error.
package pricing

import (
	"github.com/shopspring/decimal"

	"github.com/utafrali/storefront/internal/domain"
)

// Rates holds the configurable tax and shipping parameters.
type Rates struct {
	// TaxRate is applied to the item subtotal (0.06 = 6%).
	TaxRate float64
	// ShippingBase covers the first unit of a non-empty order.
	ShippingBase float64
	// ShippingPerAdditionalItem is charged for every unit after the first.
	ShippingPerAdditionalItem float64
}

// DefaultRates returns the storefront's standard rates: 6% tax, $10 shipping
// for the first unit and $2 for each additional unit.
func DefaultRates() Rates {
	return Rates{
		TaxRate:                   0.06,
		ShippingBase:              10,
		ShippingPerAdditionalItem: 2,
	}
}

// ItemSummary is the item count and subtotal of a cart.
type ItemSummary struct {
	ItemCount    int     `json:"item_count"`
	ItemSubtotal float64 `json:"item_subtotal"`
}

// OrderTotals holds the derived figures for a cart at a point in time.
type OrderTotals struct {
	ItemCount    int     `json:"item_count"`
	ItemSubtotal float64 `json:"item_subtotal"`
	Tax          float64 `json:"tax"`
	Shipping     float64 `json:"shipping"`
	OrderTotal   float64 `json:"order_total"`
}

// DisplayTotals is OrderTotals rounded to cents for presentation.
type DisplayTotals struct {
	ItemCount    int    `json:"item_count"`
	ItemSubtotal string `json:"item_subtotal"`
	Tax          string `json:"tax"`
	Shipping     string `json:"shipping"`
	OrderTotal   string `json:"order_total"`
}

// Engine computes summaries and totals with a fixed set of rates.
type Engine struct {
	rates Rates
}

// NewEngine creates a pricing engine.
func NewEngine(rates Rates) *Engine {
	return &Engine{rates: rates}
}

// Rates returns the rates the engine was built with.
func (e *Engine) Rates() Rates {
	return e.rates
}

// ItemSummary sums quantities and line subtotals. Negative unit prices are
// clamped to zero.
func (e *Engine) ItemSummary(cart domain.Cart) ItemSummary {
	var s ItemSummary
	for _, line := range cart.Lines {
		s.ItemCount += line.Quantity
		s.ItemSubtotal += line.Price() * float64(line.Quantity)
	}
	return s
}

// OrderTotals derives tax, shipping and the grand total from a summary.
func (e *Engine) OrderTotals(s ItemSummary) OrderTotals {
	tax := s.ItemSubtotal * e.rates.TaxRate

	var shipping float64
	if s.ItemCount > 0 {
		shipping = e.rates.ShippingBase + e.rates.ShippingPerAdditionalItem*float64(max(0, s.ItemCount-1))
	}

	return OrderTotals{
		ItemCount:    s.ItemCount,
		ItemSubtotal: s.ItemSubtotal,
		Tax:          tax,
		Shipping:     shipping,
		OrderTotal:   s.ItemSubtotal + tax + shipping,
	}
}

// Totals is a shortcut for OrderTotals(ItemSummary(cart)).
func (e *Engine) Totals(cart domain.Cart) OrderTotals {
	return e.OrderTotals(e.ItemSummary(cart))
}

// Display rounds every amount to two decimals.
func (t OrderTotals) Display() DisplayTotals {
	return DisplayTotals{
		ItemCount:    t.ItemCount,
		ItemSubtotal: FormatAmount(t.ItemSubtotal),
		Tax:          FormatAmount(t.Tax),
		Shipping:     FormatAmount(t.Shipping),
		OrderTotal:   FormatAmount(t.OrderTotal),
	}
}

// FormatAmount renders an amount with exactly two decimals, rounding half
// away from zero.
func FormatAmount(v float64) string {
	return decimal.NewFromFloat(v).StringFixed(2)
}
