package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	OrderStatusPending OrderStatus = "PENDING"
	OrderStatusPaid    OrderStatus = "PAID"
	OrderStatusShipped OrderStatus = "SHIPPED"
)

type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	Name         string    `json:"name"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

type Product struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
	Image       string          `json:"image,omitempty"`
	UserID      string          `json:"userId,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// ProductQuery filters the catalog listing. A nil bound is open.
type ProductQuery struct {
	Search   string
	MinPrice *decimal.Decimal
	MaxPrice *decimal.Decimal
	Page     int
	PageSize int
}

// Offset is the number of rows skipped for the 1-based Page.
func (q ProductQuery) Offset() int {
	if q.Page <= 1 {
		return 0
	}
	return (q.Page - 1) * q.PageSize
}

type ProductPage struct {
	Products []Product `json:"products"`
	Total    int       `json:"total"`
	Page     int       `json:"page"`
	PageSize int       `json:"page_size"`
}

// CartItem is one persisted cart row joined with its product.
type CartItem struct {
	ID        string          `json:"id"`
	ProductID string          `json:"productId"`
	Name      string          `json:"name"`
	Price     decimal.Decimal `json:"price"`
	Image     string          `json:"image,omitempty"`
	Quantity  int             `json:"quantity"`
}

type OrderItem struct {
	ID        string          `json:"id"`
	ProductID string          `json:"productId"`
	Name      string          `json:"name"`
	Price     decimal.Decimal `json:"price"`
	Image     string          `json:"image,omitempty"`
	Quantity  int             `json:"quantity"`
}

type Order struct {
	ID          string          `json:"id"`
	UserID      string          `json:"-"`
	TotalAmount decimal.Decimal `json:"totalAmount"`
	Status      OrderStatus     `json:"status"`
	Items       []OrderItem     `json:"items"`
	CreatedAt   time.Time       `json:"createdAt"`
}
