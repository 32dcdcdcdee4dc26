package domain

import (
	"encoding/json"
	"errors"
	"slices"
)

// ErrMalformedCart is returned when a persisted cart is not a JSON array.
var ErrMalformedCart = errors.New("cart entry is not a JSON array")

// Cart is an ordered sequence of cart lines stored under a single key.
// Cart operations never modify the receiver; they return a new cart.
type Cart struct {
	Lines []CartLine
}

// NewCart creates a cart holding the given lines.
func NewCart(lines ...CartLine) Cart {
	return Cart{Lines: slices.Clone(lines)}
}

// DecodeCart parses a persisted cart. Entries that are not JSON objects are
// skipped and counted in the returned skipped value.
func DecodeCart(data []byte) (cart Cart, skipped int, err error) {
	var entries []json.RawMessage
	if err := json.Unmarshal(data, &entries); err != nil {
		return Cart{}, 0, ErrMalformedCart
	}
	if entries == nil {
		// JSON null.
		return Cart{}, 0, ErrMalformedCart
	}

	lines := make([]CartLine, 0, len(entries))
	for _, raw := range entries {
		line, err := DecodeLine(raw)
		if err != nil {
			skipped++
			continue
		}
		lines = append(lines, line)
	}
	return Cart{Lines: lines}, skipped, nil
}

// Len returns the number of lines in the cart.
func (c Cart) Len() int {
	return len(c.Lines)
}

// IsEmpty reports whether the cart has no lines.
func (c Cart) IsEmpty() bool {
	return len(c.Lines) == 0
}

// ItemCount returns the sum of all line quantities.
func (c Cart) ItemCount() int {
	var count int
	for _, line := range c.Lines {
		count += line.Quantity
	}
	return count
}

// FindLine returns the index of the first line with the given dedup key, or -1.
func (c Cart) FindLine(key string) int {
	for i := range c.Lines {
		if c.Lines[i].Key() == key {
			return i
		}
	}
	return -1
}

// Normalize merges lines sharing a dedup key. The output keeps the order of
// first occurrence; each merged line carries the first occurrence's attributes
// and the summed quantity. Lines whose merged quantity is not positive are
// dropped. Normalize is idempotent.
func Normalize(c Cart) Cart {
	index := make(map[string]int, len(c.Lines))
	merged := make([]CartLine, 0, len(c.Lines))

	for _, line := range c.Lines {
		key := line.Key()
		if i, ok := index[key]; ok {
			merged[i].Quantity = addQuantity(merged[i].Quantity, line.Quantity)
			continue
		}
		index[key] = len(merged)
		merged = append(merged, line)
	}

	merged = slices.DeleteFunc(merged, func(l CartLine) bool {
		return l.Quantity <= 0
	})
	return Cart{Lines: merged}
}

// AdjustQuantity adds delta to the quantity of the first line matching key.
// A line whose quantity drops to zero or below is removed. An unknown key
// leaves the cart unchanged.
func AdjustQuantity(c Cart, key string, delta int) Cart {
	out := NewCart(c.Lines...)

	i := out.FindLine(key)
	if i < 0 {
		return out
	}

	next := addQuantity(out.Lines[i].Quantity, delta)
	if next <= 0 {
		out.Lines = slices.Delete(out.Lines, i, i+1)
		return out
	}
	out.Lines[i].Quantity = next
	return out
}

// addQuantity sums two quantities, saturating at MaxQuantity.
func addQuantity(a, b int) int {
	a = min(max(a, -MaxQuantity), MaxQuantity)
	b = min(max(b, -MaxQuantity), MaxQuantity)
	return min(a+b, MaxQuantity)
}

// RemoveLine drops every line matching key. Removing an unknown key is a no-op.
func RemoveLine(c Cart, key string) Cart {
	out := make([]CartLine, 0, len(c.Lines))
	for _, line := range c.Lines {
		if line.Key() != key {
			out = append(out, line)
		}
	}
	return Cart{Lines: out}
}

// AddLine appends a line to the end of the cart.
func AddLine(c Cart, line CartLine) Cart {
	out := make([]CartLine, 0, len(c.Lines)+1)
	out = append(out, c.Lines...)
	return Cart{Lines: append(out, line)}
}

// SameQuantities reports whether both carts have the same length and the same
// quantity at every position. It is used to skip redundant writes after
// normalization.
func SameQuantities(a, b Cart) bool {
	if len(a.Lines) != len(b.Lines) {
		return false
	}
	for i := range a.Lines {
		if a.Lines[i].Quantity != b.Lines[i].Quantity {
			return false
		}
	}
	return true
}

// MarshalJSON encodes the cart as a JSON array of lines.
func (c Cart) MarshalJSON() ([]byte, error) {
	if c.Lines == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(c.Lines)
}
