// Package apiclient talks to the storefront JSON API. It implements
// cart.Remote so the cart engine can sync against the server of record.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/google/uuid"

	"storefront/internal/cart"
	"storefront/internal/domain"
)

type Client struct {
	baseURL    string
	httpClient *http.Client
	maxRetries int
	retryBase  time.Duration
	retryMax   time.Duration
}

// NewClient returns a client for the API at baseURL. Idempotent requests are
// retried up to maxRetries times on transport errors and 5xx/429 responses.
func NewClient(baseURL string, timeout time.Duration, maxRetries int, retryBase, retryMax time.Duration) *Client {
	if maxRetries < 0 {
		maxRetries = 0
	}
	if retryBase <= 0 {
		retryBase = 200 * time.Millisecond
	}
	if retryMax < retryBase {
		retryMax = retryBase
	}
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
		maxRetries: maxRetries,
		retryBase:  retryBase,
		retryMax:   retryMax,
	}
}

// StatusError is a non-2xx response.
type StatusError struct {
	Op         string
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s: http %d", e.Op, e.StatusCode)
	}
	return fmt.Sprintf("%s: http %d: %s", e.Op, e.StatusCode, e.Message)
}

// IsStatus reports whether err is a StatusError with the given code.
func IsStatus(err error, code int) bool {
	var se *StatusError
	return errors.As(err, &se) && se.StatusCode == code
}

type request struct {
	op         string
	method     string
	path       string
	query      url.Values
	token      string
	body       interface{}
	idempotent bool
}

func (c *Client) do(ctx context.Context, req request, out interface{}) error {
	var payload []byte
	if req.body != nil {
		raw, err := json.Marshal(req.body)
		if err != nil {
			return fmt.Errorf("%s: encode body: %w", req.op, err)
		}
		payload = raw
	}
	target := c.baseURL + req.path
	if len(req.query) > 0 {
		target += "?" + req.query.Encode()
	}

	attempts := 1
	if req.idempotent {
		attempts += c.maxRetries
	}
	requestID := uuid.NewString()

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			if err := c.sleep(ctx, attempt); err != nil {
				return lastErr
			}
		}
		retry, err := c.once(ctx, req, target, payload, requestID, out)
		if err == nil {
			return nil
		}
		lastErr = err
		if !retry {
			return err
		}
	}
	return lastErr
}

func (c *Client) once(ctx context.Context, req request, target string, payload []byte, requestID string, out interface{}) (bool, error) {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	httpReq, err := http.NewRequestWithContext(ctx, req.method, target, body)
	if err != nil {
		return false, fmt.Errorf("%s: %w", req.op, err)
	}
	if payload != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("X-Request-Id", requestID)
	if req.token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+req.token)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return ctx.Err() == nil, fmt.Errorf("%s: %w", req.op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var apiErr struct {
			Error string `json:"error"`
		}
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		if json.Unmarshal(raw, &apiErr) != nil || apiErr.Error == "" {
			apiErr.Error = string(bytes.TrimSpace(raw))
		}
		retry := resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests
		return retry, &StatusError{Op: req.op, StatusCode: resp.StatusCode, Message: apiErr.Error}
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return false, nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return false, fmt.Errorf("%s: decode response: %w", req.op, err)
	}
	return false, nil
}

func (c *Client) sleep(ctx context.Context, attempt int) error {
	wait := c.retryBase << (attempt - 1)
	if wait > c.retryMax || wait <= 0 {
		wait = c.retryMax
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

type User struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
}

// Session is the result of a successful login.
type Session struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	Type      string    `json:"type"`
	User      User      `json:"user"`
}

func (s Session) Identity() cart.Identity {
	return cart.Identity{UserID: s.User.ID, Token: s.Token}
}

func (c *Client) Register(ctx context.Context, email, name, password string) (User, error) {
	var out User
	err := c.do(ctx, request{
		op:     "register",
		method: http.MethodPost,
		path:   "/api/auth/register",
		body:   map[string]string{"email": email, "name": name, "password": password},
	}, &out)
	return out, err
}

func (c *Client) Login(ctx context.Context, email, password string) (Session, error) {
	var out Session
	err := c.do(ctx, request{
		op:     "login",
		method: http.MethodPost,
		path:   "/api/auth/login",
		body:   map[string]string{"email": email, "password": password},
	}, &out)
	return out, err
}

// ProductFilter mirrors the catalog listing query parameters. Empty fields
// are omitted.
type ProductFilter struct {
	Query string
	Price string
	Page  int
	Limit int
}

func (f ProductFilter) values() url.Values {
	v := url.Values{}
	if f.Query != "" {
		v.Set("query", f.Query)
	}
	if f.Price != "" {
		v.Set("price", f.Price)
	}
	if f.Page > 0 {
		v.Set("page", strconv.Itoa(f.Page))
	}
	if f.Limit > 0 {
		v.Set("limit", strconv.Itoa(f.Limit))
	}
	return v
}

func (c *Client) Products(ctx context.Context, filter ProductFilter) (domain.ProductPage, error) {
	var out domain.ProductPage
	err := c.do(ctx, request{
		op:         "list products",
		method:     http.MethodGet,
		path:       "/api/products",
		query:      filter.values(),
		idempotent: true,
	}, &out)
	return out, err
}

func (c *Client) Product(ctx context.Context, id string) (domain.Product, error) {
	var out domain.Product
	err := c.do(ctx, request{
		op:         "get product",
		method:     http.MethodGet,
		path:       "/api/products/" + url.PathEscape(id),
		idempotent: true,
	}, &out)
	return out, err
}

// CartProduct converts a catalog product into the shape the cart captures.
func CartProduct(p domain.Product) cart.Product {
	return cart.Product{ID: p.ID, Name: p.Name, Price: p.Price, Image: p.Image}
}

type OrderReceipt struct {
	Message string `json:"message"`
	OrderID string `json:"orderId"`
}

func (c *Client) PlaceOrder(ctx context.Context, token string) (OrderReceipt, error) {
	var out OrderReceipt
	err := c.do(ctx, request{
		op:     "place order",
		method: http.MethodPost,
		path:   "/api/orders",
		token:  token,
	}, &out)
	return out, err
}

func (c *Client) Orders(ctx context.Context, token string) ([]domain.Order, error) {
	var out []domain.Order
	err := c.do(ctx, request{
		op:         "list orders",
		method:     http.MethodGet,
		path:       "/api/orders",
		token:      token,
		idempotent: true,
	}, &out)
	return out, err
}
