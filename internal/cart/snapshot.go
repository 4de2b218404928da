// Package cart holds the client-side cart: a snapshot mutated by pure
// transitions and an Engine that applies them optimistically while
// projecting every mutation onto the remote cart store.
package cart

import (
	"slices"

	"github.com/shopspring/decimal"
)

type SyncState string

const (
	SyncIdle    SyncState = "idle"
	SyncLoading SyncState = "loading"
	SyncError   SyncState = "error"
)

// Product is the catalog data captured when an item is added.
type Product struct {
	ID    string          `json:"id"`
	Name  string          `json:"name"`
	Price decimal.Decimal `json:"price"`
	Image string          `json:"image,omitempty"`
}

// Line is one product-quantity pair. ProductID is unique among the lines of a
// snapshot and Quantity is always positive.
type Line struct {
	LineID    string          `json:"lineId"`
	ProductID string          `json:"productId"`
	Name      string          `json:"name"`
	UnitPrice decimal.Decimal `json:"unitPrice"`
	ImageRef  string          `json:"imageRef,omitempty"`
	Quantity  int             `json:"quantity"`
}

func (l Line) Subtotal() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// Snapshot is the whole cart. Total is always the sum of line subtotals.
type Snapshot struct {
	Lines     []Line          `json:"lines"`
	Total     decimal.Decimal `json:"total"`
	SyncState SyncState       `json:"syncState"`
}

func emptySnapshot() Snapshot {
	return Snapshot{Lines: []Line{}, Total: decimal.Zero, SyncState: SyncIdle}
}

// Clone returns a copy that shares no memory with s.
func (s Snapshot) Clone() Snapshot {
	out := s
	out.Lines = slices.Clone(s.Lines)
	if out.Lines == nil {
		out.Lines = []Line{}
	}
	return out
}

func (s Snapshot) Line(lineID string) (Line, bool) {
	if i := s.indexOfLine(lineID); i >= 0 {
		return s.Lines[i], true
	}
	return Line{}, false
}

func (s Snapshot) LineByProduct(productID string) (Line, bool) {
	if i := s.indexOfProduct(productID); i >= 0 {
		return s.Lines[i], true
	}
	return Line{}, false
}

// ItemCount is the total quantity across lines.
func (s Snapshot) ItemCount() int {
	n := 0
	for _, l := range s.Lines {
		n += l.Quantity
	}
	return n
}

func (s Snapshot) indexOfLine(lineID string) int {
	return slices.IndexFunc(s.Lines, func(l Line) bool { return l.LineID == lineID })
}

func (s Snapshot) indexOfProduct(productID string) int {
	return slices.IndexFunc(s.Lines, func(l Line) bool { return l.ProductID == productID })
}

func total(lines []Line) decimal.Decimal {
	sum := decimal.Zero
	for _, l := range lines {
		sum = sum.Add(l.Subtotal())
	}
	return sum
}

// withLines is the only way transitions build a new snapshot, so Total is
// never carried across a mutation.
func withLines(s Snapshot, lines []Line) Snapshot {
	return Snapshot{Lines: lines, Total: total(lines), SyncState: s.SyncState}
}
