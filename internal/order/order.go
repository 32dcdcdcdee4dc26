// Package order assembles the payload sent to the checkout endpoint.
package order

import (
	"encoding/json"
	"maps"
	"time"

	"github.com/utafrali/storefront/internal/domain"
	"github.com/utafrali/storefront/internal/pricing"
)

// DateLayout is the orderDate format: ISO-8601 UTC with milliseconds.
const DateLayout = "2006-01-02T15:04:05.000Z"

// Item is the packaged form of one cart line.
type Item struct {
	ID       string  `json:"id"`
	Name     string  `json:"name"`
	Price    float64 `json:"price"`
	Quantity int     `json:"quantity"`
}

// Submission is the order payload: the shopper's form fields plus the
// order date, formatted totals and packaged items.
type Submission struct {
	Fields     map[string]string
	OrderDate  time.Time
	OrderTotal string
	Tax        string
	Shipping   float64
	Items      []Item
}

// MarshalJSON flattens the form fields into the top-level object. The
// computed keys win over form fields with the same name.
func (s Submission) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(s.Fields)+5)
	for k, v := range s.Fields {
		out[k] = v
	}

	items := s.Items
	if items == nil {
		items = []Item{}
	}
	out["orderDate"] = s.OrderDate.UTC().Format(DateLayout)
	out["orderTotal"] = s.OrderTotal
	out["tax"] = s.Tax
	out["shipping"] = s.Shipping
	out["items"] = items
	return json.Marshal(out)
}

// PackageLines converts cart lines to items, one per line in cart order.
// Items carry the charged price, so they add up to the order totals.
func PackageLines(cart domain.Cart) []Item {
	items := make([]Item, 0, cart.Len())
	for _, line := range cart.Lines {
		items = append(items, Item{
			ID:       line.ID,
			Name:     line.Name,
			Price:    line.Price(),
			Quantity: line.Quantity,
		})
	}
	return items
}

// Assembler builds submissions with an injectable clock.
type Assembler struct {
	now func() time.Time
}

// NewAssembler creates an assembler on the wall clock.
func NewAssembler() *Assembler {
	return &Assembler{now: time.Now}
}

// NewAssemblerWithClock creates an assembler reading time from now.
func NewAssemblerWithClock(now func() time.Time) *Assembler {
	return &Assembler{now: now}
}

// Build assembles a submission from the form fields, the cart and its
// totals. fields is copied, not retained.
func (a *Assembler) Build(fields map[string]string, cart domain.Cart, totals pricing.OrderTotals) Submission {
	display := totals.Display()
	return Submission{
		Fields:     maps.Clone(fields),
		OrderDate:  a.now().UTC(),
		OrderTotal: display.OrderTotal,
		Tax:        display.Tax,
		Shipping:   totals.Shipping,
		Items:      PackageLines(cart),
	}
}
