package cart

import "context"

// Identity is the signed-in user as reported by the session source.
// The zero value means anonymous.
type Identity struct {
	UserID string
	Token  string
}

func (i Identity) IsZero() bool { return i.UserID == "" }

// SessionSource reports the current identity and notifies on change.
type SessionSource interface {
	Current() Identity
	Subscribe(fn func(Identity)) (unsubscribe func())
}

// Remote is the cart store that owns the durable cart. Every line operation
// is keyed by product id.
type Remote interface {
	LoadCart(ctx context.Context, id Identity) ([]Line, error)
	// UpsertLine adds delta to the product's line, creating it when absent.
	UpsertLine(ctx context.Context, id Identity, productID string, delta int) error
	ReplaceQuantity(ctx context.Context, id Identity, productID string, quantity int) error
	DeleteLine(ctx context.Context, id Identity, productID string) error
	ClearCart(ctx context.Context, id Identity) error
}
