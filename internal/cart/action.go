package cart

import (
	"errors"
	"slices"
	"strings"
)

var (
	ErrMissingProductID = errors.New("cart: product id is required")
	ErrMissingLineID    = errors.New("cart: line id is required")
	ErrInvalidQuantity  = errors.New("cart: invalid quantity")
	ErrInvalidPrice     = errors.New("cart: price must not be negative")
	ErrUnknownAction    = errors.New("cart: unknown action")
)

// Action is a cart transition. The set of variants is closed: Hydrate,
// AddItem, SetQuantity, RemoveItem and Clear.
type Action interface {
	action()
}

// Hydrate replaces every line with the server-of-record's copy.
type Hydrate struct {
	Lines []Line
}

// AddItem merges into the line holding Product.ID or appends a new line
// identified by LineID.
type AddItem struct {
	Product  Product
	Quantity int
	LineID   string
}

// SetQuantity replaces the quantity of LineID; zero removes the line.
type SetQuantity struct {
	LineID   string
	Quantity int
}

type RemoveItem struct {
	LineID string
}

type Clear struct{}

func (Hydrate) action()     {}
func (AddItem) action()     {}
func (SetQuantity) action() {}
func (RemoveItem) action()  {}
func (Clear) action()       {}

// Reduce applies a to s and returns the next snapshot. It never mutates s.
// Validation failures return s unchanged with an error.
func Reduce(s Snapshot, a Action) (Snapshot, error) {
	switch a := a.(type) {
	case Hydrate:
		return applyHydrate(s, a)
	case AddItem:
		return applyAdd(s, a)
	case SetQuantity:
		return applySetQuantity(s, a)
	case RemoveItem:
		return applyRemove(s, a), nil
	case Clear:
		return applyClear(s), nil
	default:
		return s, ErrUnknownAction
	}
}

func applyHydrate(s Snapshot, a Hydrate) (Snapshot, error) {
	lines := make([]Line, 0, len(a.Lines))
	for _, l := range a.Lines {
		if err := validateLine(l); err != nil {
			return s, err
		}
		if i := slices.IndexFunc(lines, func(x Line) bool { return x.ProductID == l.ProductID }); i >= 0 {
			lines[i].Quantity += l.Quantity
			continue
		}
		lines = append(lines, l)
	}
	next := withLines(s, lines)
	next.SyncState = SyncIdle
	return next, nil
}

func applyAdd(s Snapshot, a AddItem) (Snapshot, error) {
	productID := strings.TrimSpace(a.Product.ID)
	if productID == "" {
		return s, ErrMissingProductID
	}
	if a.Quantity <= 0 {
		return s, ErrInvalidQuantity
	}
	if a.Product.Price.IsNegative() {
		return s, ErrInvalidPrice
	}
	lines := slices.Clone(s.Lines)
	if i := s.indexOfProduct(productID); i >= 0 {
		lines[i].Quantity += a.Quantity
		return withLines(s, lines), nil
	}
	if a.LineID == "" {
		return s, ErrMissingLineID
	}
	lines = append(lines, Line{
		LineID:    a.LineID,
		ProductID: productID,
		Name:      a.Product.Name,
		UnitPrice: a.Product.Price,
		ImageRef:  a.Product.Image,
		Quantity:  a.Quantity,
	})
	return withLines(s, lines), nil
}

func applySetQuantity(s Snapshot, a SetQuantity) (Snapshot, error) {
	if a.Quantity < 0 {
		return s, ErrInvalidQuantity
	}
	i := s.indexOfLine(a.LineID)
	if i < 0 {
		return s, nil
	}
	if a.Quantity == 0 {
		return applyRemove(s, RemoveItem{LineID: a.LineID}), nil
	}
	lines := slices.Clone(s.Lines)
	lines[i].Quantity = a.Quantity
	return withLines(s, lines), nil
}

func applyRemove(s Snapshot, a RemoveItem) Snapshot {
	i := s.indexOfLine(a.LineID)
	if i < 0 {
		return s
	}
	lines := slices.Delete(slices.Clone(s.Lines), i, i+1)
	return withLines(s, lines)
}

func applyClear(s Snapshot) Snapshot {
	return withLines(s, []Line{})
}

func validateLine(l Line) error {
	switch {
	case strings.TrimSpace(l.ProductID) == "":
		return ErrMissingProductID
	case l.LineID == "":
		return ErrMissingLineID
	case l.Quantity <= 0:
		return ErrInvalidQuantity
	case l.UnitPrice.IsNegative():
		return ErrInvalidPrice
	}
	return nil
}
