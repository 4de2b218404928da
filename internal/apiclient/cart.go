package apiclient

import (
	"context"
	"net/http"

	"storefront/internal/cart"
	"storefront/internal/domain"
)

var _ cart.Remote = (*Client)(nil)

func (c *Client) LoadCart(ctx context.Context, id cart.Identity) ([]cart.Line, error) {
	var out struct {
		Items []domain.CartItem `json:"items"`
	}
	err := c.do(ctx, request{
		op:         "load cart",
		method:     http.MethodGet,
		path:       "/api/cart",
		token:      id.Token,
		idempotent: true,
	}, &out)
	if err != nil {
		return nil, err
	}
	lines := make([]cart.Line, 0, len(out.Items))
	for _, item := range out.Items {
		lines = append(lines, cart.Line{
			LineID:    item.ID,
			ProductID: item.ProductID,
			Name:      item.Name,
			UnitPrice: item.Price,
			ImageRef:  item.Image,
			Quantity:  item.Quantity,
		})
	}
	return lines, nil
}

// UpsertLine is never retried: the server adds delta on every delivery.
func (c *Client) UpsertLine(ctx context.Context, id cart.Identity, productID string, delta int) error {
	return c.do(ctx, request{
		op:     "add to cart",
		method: http.MethodPost,
		path:   "/api/cart",
		token:  id.Token,
		body:   map[string]interface{}{"productId": productID, "quantity": delta},
	}, nil)
}

func (c *Client) ReplaceQuantity(ctx context.Context, id cart.Identity, productID string, quantity int) error {
	return c.do(ctx, request{
		op:         "update cart",
		method:     http.MethodPut,
		path:       "/api/cart",
		token:      id.Token,
		body:       map[string]interface{}{"productId": productID, "quantity": quantity},
		idempotent: true,
	}, nil)
}

func (c *Client) DeleteLine(ctx context.Context, id cart.Identity, productID string) error {
	return c.do(ctx, request{
		op:         "remove from cart",
		method:     http.MethodDelete,
		path:       "/api/cart",
		token:      id.Token,
		body:       map[string]string{"productId": productID},
		idempotent: true,
	}, nil)
}

func (c *Client) ClearCart(ctx context.Context, id cart.Identity) error {
	return c.do(ctx, request{
		op:         "clear cart",
		method:     http.MethodPost,
		path:       "/api/cart/clear",
		token:      id.Token,
		idempotent: true,
	}, nil)
}
