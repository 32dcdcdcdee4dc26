package domain

import (
	"bytes"
	"encoding/json"
	"errors"
	"math"
	"strconv"
	"strings"
)

// Persisted attribute names. They follow the storefront catalog API, which is
// where cart lines originate.
const (
	AttrID       = "Id"
	AttrIDLower  = "id"
	AttrSKU      = "SKU"
	AttrSKULower = "sku"
	AttrName     = "Name"
	AttrPrice    = "FinalPrice"
	AttrQuantity = "Quantity"
	AttrColors   = "Colors"
)

// DefaultQuantity is used when a persisted line carries no usable quantity.
const DefaultQuantity = 1

// MaxQuantity caps the quantity of a single line.
const MaxQuantity = 1_000_000

// ErrNotAnObject is returned when a persisted cart entry is not a JSON object.
var ErrNotAnObject = errors.New("cart line is not a JSON object")

// CartLine is one purchasable line item.
//
// The typed fields are a view over the persisted attributes. Attributes that
// the cart engine does not understand (image, brand, colors, ...) are kept
// verbatim and written back unchanged. The attribute map is shared between
// copies of a line and is never mutated after decoding.
type CartLine struct {
	ID        string
	SKU       string
	Name      string
	Variant   string
	UnitPrice float64
	Quantity  int

	attrs map[string]json.RawMessage
}

// DecodeLine parses one persisted cart entry and applies the defaulting rules:
// a missing or non-numeric price becomes 0 and a missing or non-numeric
// quantity becomes 1.
func DecodeLine(data []byte) (CartLine, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return CartLine{}, ErrNotAnObject
	}

	var attrs map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &attrs); err != nil {
		return CartLine{}, ErrNotAnObject
	}
	return LineFromAttributes(attrs), nil
}

// LineFromAttributes builds a CartLine from already decoded attributes.
func LineFromAttributes(attrs map[string]json.RawMessage) CartLine {
	line := CartLine{
		ID:        firstText(attrs, AttrID, AttrIDLower),
		SKU:       firstText(attrs, AttrSKU, AttrSKULower),
		Name:      firstText(attrs, AttrName),
		Variant:   firstColorName(attrs[AttrColors]),
		UnitPrice: 0,
		Quantity:  DefaultQuantity,
		attrs:     attrs,
	}

	if v, ok := coerceNumber(attrs[AttrPrice]); ok {
		line.UnitPrice = v
	}
	if v, ok := coerceNumber(attrs[AttrQuantity]); ok {
		line.Quantity = quantityFrom(v)
	}
	return line
}

// quantityFrom converts a persisted quantity to a line count. A positive
// fraction below one still counts as one item and values are capped at
// MaxQuantity in both directions.
func quantityFrom(v float64) int {
	switch {
	case v > 0 && v < 1:
		return 1
	case v > MaxQuantity:
		return MaxQuantity
	case v < -MaxQuantity:
		return -MaxQuantity
	}
	return int(math.Trunc(v))
}

// UnmarshalJSON implements json.Unmarshaler.
func (l *CartLine) UnmarshalJSON(data []byte) error {
	line, err := DecodeLine(data)
	if err != nil {
		return err
	}
	*l = line
	return nil
}

// MarshalJSON writes the original attributes back with the current quantity.
// Typed fields are only emitted for attributes the line was not decoded with,
// which is the case for lines built in code.
func (l CartLine) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(l.attrs)+5)
	for k, v := range l.attrs {
		out[k] = v
	}

	if !l.has(AttrID, AttrIDLower) && l.ID != "" {
		out[AttrID] = l.ID
	}
	if !l.has(AttrSKU, AttrSKULower) && l.SKU != "" {
		out[AttrSKU] = l.SKU
	}
	if !l.has(AttrName) && l.Name != "" {
		out[AttrName] = l.Name
	}
	if !l.has(AttrPrice) {
		out[AttrPrice] = l.UnitPrice
	}
	if !l.has(AttrColors) && l.Variant != "" {
		out[AttrColors] = []map[string]string{{"ColorName": l.Variant}}
	}
	out[AttrQuantity] = l.Quantity

	return json.Marshal(out)
}

// Price returns the unit price charged for the line. Negative prices are
// charged as zero.
func (l CartLine) Price() float64 {
	return max(l.UnitPrice, 0)
}

// Key returns the dedup key of the line: the first non-empty identifier among
// id, sku and name, followed by "|" and the variant name.
func (l CartLine) Key() string {
	id := l.ID
	if id == "" {
		id = l.SKU
	}
	if id == "" {
		id = l.Name
	}
	return id + "|" + l.Variant
}

func (l CartLine) has(names ...string) bool {
	for _, n := range names {
		if _, ok := l.attrs[n]; ok {
			return true
		}
	}
	return false
}

// firstText returns the textual form of the first present, non-null attribute.
// Strings are unquoted; numbers are written in their shortest decimal form,
// so 1 and 1.0 name the same line.
func firstText(attrs map[string]json.RawMessage, names ...string) string {
	for _, n := range names {
		raw, ok := attrs[n]
		if !ok {
			continue
		}
		if s, ok := rawText(raw); ok {
			return s
		}
	}
	return ""
}

func rawText(raw json.RawMessage) (string, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return "", false
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", false
		}
		return s, s != ""
	}
	var n float64
	if err := json.Unmarshal(raw, &n); err == nil {
		return strconv.FormatFloat(n, 'f', -1, 64), true
	}
	return "", false
}

func firstColorName(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var colors []struct {
		ColorName json.RawMessage `json:"ColorName"`
	}
	if err := json.Unmarshal(raw, &colors); err != nil || len(colors) == 0 {
		return ""
	}
	name, _ := rawText(colors[0].ColorName)
	return name
}

// coerceNumber accepts JSON numbers and numeric strings. Anything else,
// including non-finite values, reports false.
func coerceNumber(raw json.RawMessage) (float64, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return 0, false
	}

	var v float64
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return 0, false
		}
		parsed, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return 0, false
		}
		v = parsed
	} else if err := json.Unmarshal(raw, &v); err != nil {
		return 0, false
	}

	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}
