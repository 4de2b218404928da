package store

import (
	"context"
	"errors"

	"storefront/internal/domain"
)

var (
	ErrNotFound = errors.New("not found")
	ErrConflict = errors.New("conflict")
)

// Store is the server-of-record used by the HTTP layer. Cart lines are unique
// per (user cart, product); every cart method addresses lines by product id.
type Store interface {
	CreateUser(ctx context.Context, user domain.User) (domain.User, error)
	UserByEmail(ctx context.Context, email string) (domain.User, error)
	UserByID(ctx context.Context, id string) (domain.User, error)

	CreateProduct(ctx context.Context, p domain.Product) (domain.Product, error)
	UpdateProduct(ctx context.Context, p domain.Product) (domain.Product, error)
	DeleteProduct(ctx context.Context, id string) error
	GetProduct(ctx context.Context, id string) (domain.Product, error)
	ListProducts(ctx context.Context, q domain.ProductQuery) (domain.ProductPage, error)

	// CartItems finds or creates the user's cart and returns its lines.
	CartItems(ctx context.Context, userID string) ([]domain.CartItem, error)
	// AddToCart increments the line for productID, creating cart and line as needed.
	AddToCart(ctx context.Context, userID, productID string, quantity int) error
	// SetCartQuantity replaces the quantity; zero deletes the line.
	// Returns ErrNotFound when the user has no cart, except for a zero
	// quantity, which succeeds with nothing to delete.
	SetCartQuantity(ctx context.Context, userID, productID string, quantity int) error
	RemoveFromCart(ctx context.Context, userID, productID string) error
	ClearCart(ctx context.Context, userID string) error

	ListOrders(ctx context.Context, userID string) ([]domain.Order, error)

	Close() error
}
