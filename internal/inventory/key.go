package inventory

import (
	"bytes"
	"sort"

	"github.com/google/uuid"
)

// Key identifies a stock item: a product, or one variant of it.
type Key struct {
	ProductID uuid.UUID  `json:"product_id"`
	VariantID *uuid.UUID `json:"variant_id,omitempty"`
}

func (k Key) String() string {
	if k.VariantID == nil {
		return k.ProductID.String()
	}
	return k.ProductID.String() + "/" + k.VariantID.String()
}

// less orders keys by product id then variant id, product-level rows first.
// Every multi-row lock acquisition walks keys in this order.
func (k Key) less(o Key) bool {
	if c := bytes.Compare(k.ProductID[:], o.ProductID[:]); c != 0 {
		return c < 0
	}
	switch {
	case k.VariantID == nil:
		return o.VariantID != nil
	case o.VariantID == nil:
		return false
	default:
		return bytes.Compare(k.VariantID[:], o.VariantID[:]) < 0
	}
}

// Ref ties a ledger entry to the business record that caused it.
type Ref struct {
	Type string
	ID   string
}

// OrderRef references an order by id.
func OrderRef(orderID uuid.UUID) Ref {
	return Ref{Type: "order", ID: orderID.String()}
}

func (r Ref) typePtr() *string {
	if r.Type == "" {
		return nil
	}
	v := r.Type
	return &v
}

func (r Ref) idPtr() *string {
	if r.ID == "" {
		return nil
	}
	v := r.ID
	return &v
}

// Line is a quantity against one stock item.
type Line struct {
	Key Key
	Qty int
}

// sortedLines merges duplicate keys and returns lines in lock order.
func sortedLines(lines []Line) []Line {
	merged := make(map[string]int, len(lines))
	keys := make(map[string]Key, len(lines))
	for _, line := range lines {
		id := line.Key.String()
		merged[id] += line.Qty
		keys[id] = line.Key
	}
	out := make([]Line, 0, len(merged))
	for id, qty := range merged {
		out = append(out, Line{Key: keys[id], Qty: qty})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key.less(out[j].Key) })
	return out
}
