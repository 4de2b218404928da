// Package catalog holds the product listing rules shared by every store
// implementation: query parsing, search matching and seeding.
package catalog

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/cases"

	"storefront/internal/domain"
)

const MaxPageSize = 100

var ErrInvalidQuery = errors.New("invalid catalog query")

// ParseQuery reads query, price ("min-max" or "min-") and page/limit from values.
func ParseQuery(values url.Values, defaultPageSize int) (domain.ProductQuery, error) {
	q := domain.ProductQuery{
		Search:   strings.TrimSpace(values.Get("query")),
		Page:     1,
		PageSize: defaultPageSize,
	}
	if q.PageSize <= 0 {
		q.PageSize = 8
	}
	if raw := values.Get("page"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			return domain.ProductQuery{}, fmt.Errorf("%w: page %q", ErrInvalidQuery, raw)
		}
		q.Page = n
	}
	if raw := values.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			return domain.ProductQuery{}, fmt.Errorf("%w: limit %q", ErrInvalidQuery, raw)
		}
		q.PageSize = min(n, MaxPageSize)
	}
	if raw := strings.TrimSpace(values.Get("price")); raw != "" {
		lo, hi, err := ParsePriceRange(raw)
		if err != nil {
			return domain.ProductQuery{}, err
		}
		q.MinPrice, q.MaxPrice = lo, hi
	}
	return q, nil
}

// ParsePriceRange parses "10-50", "10-" or "10". A missing max leaves the range open.
func ParsePriceRange(raw string) (*decimal.Decimal, *decimal.Decimal, error) {
	minRaw, maxRaw, _ := strings.Cut(raw, "-")
	lo, err := decimal.NewFromString(strings.TrimSpace(minRaw))
	if err != nil || lo.IsNegative() {
		return nil, nil, fmt.Errorf("%w: price %q", ErrInvalidQuery, raw)
	}
	maxRaw = strings.TrimSpace(maxRaw)
	if maxRaw == "" {
		return &lo, nil, nil
	}
	hi, err := decimal.NewFromString(maxRaw)
	if err != nil || hi.LessThan(lo) {
		return nil, nil, fmt.Errorf("%w: price %q", ErrInvalidQuery, raw)
	}
	return &lo, &hi, nil
}

// Fold returns s case-folded for comparisons.
func Fold(s string) string {
	return cases.Fold().String(s)
}

// Matches reports whether p passes the search and price filters of q.
func Matches(p domain.Product, q domain.ProductQuery) bool {
	if q.Search != "" && !strings.Contains(Fold(p.Name), Fold(q.Search)) {
		return false
	}
	if q.MinPrice != nil && p.Price.LessThan(*q.MinPrice) {
		return false
	}
	if q.MaxPrice != nil && p.Price.GreaterThan(*q.MaxPrice) {
		return false
	}
	return true
}
