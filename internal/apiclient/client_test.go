package apiclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"storefront/internal/cart"
)

func TestLoadCartRetriesAndSucceeds(t *testing.T) {
	var attempts int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&attempts, 1)
		if r.Header.Get("Authorization") != "Bearer tok" {
			t.Errorf("missing bearer token")
		}
		if n < 3 {
			w.WriteHeader(http.StatusBadGateway)
			_, _ = w.Write([]byte("upstream error"))
			return
		}
		_, _ = w.Write([]byte(`{"items":[{"id":"c1","productId":"p1","name":"Tee","price":"19.99","quantity":2}]}`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, 2*time.Second, 3, 5*time.Millisecond, 20*time.Millisecond)
	lines, err := client.LoadCart(context.Background(), cart.Identity{UserID: "u1", Token: "tok"})
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if atomic.LoadInt32(&attempts) != 3 {
		t.Fatalf("expected 3 attempts, got %d", attempts)
	}
	if len(lines) != 1 || lines[0].LineID != "c1" || lines[0].ProductID != "p1" || lines[0].Quantity != 2 {
		t.Fatalf("unexpected lines: %+v", lines)
	}
	if lines[0].UnitPrice.String() != "19.99" {
		t.Fatalf("unexpected price %s", lines[0].UnitPrice)
	}
}

func TestClearFailsAfterMaxRetries(t *testing.T) {
	var attempts int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&attempts, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, 2*time.Second, 2, 5*time.Millisecond, 20*time.Millisecond)
	err := client.ClearCart(context.Background(), cart.Identity{UserID: "u1", Token: "tok"})
	if !IsStatus(err, http.StatusServiceUnavailable) {
		t.Fatalf("expected 503 status error, got %v", err)
	}
	if atomic.LoadInt32(&attempts) != 3 { // initial + 2 retries
		t.Fatalf("expected 3 attempts, got %d", attempts)
	}
}

func TestUpsertIsNeverRetried(t *testing.T) {
	var attempts int32
	var body map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&attempts, 1)
		_ = json.NewDecoder(r.Body).Decode(&body)
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"db down"}`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, 2*time.Second, 5, time.Millisecond, time.Millisecond)
	err := client.UpsertLine(context.Background(), cart.Identity{UserID: "u1", Token: "tok"}, "p1", 2)
	if err == nil {
		t.Fatalf("expected failure, got nil")
	}
	if got := err.Error(); got != "add to cart: http 500: db down" {
		t.Fatalf("unexpected error %q", got)
	}
	if atomic.LoadInt32(&attempts) != 1 {
		t.Fatalf("expected 1 attempt, got %d", attempts)
	}
	if body["productId"] != "p1" || body["quantity"] != float64(2) {
		t.Fatalf("unexpected body %+v", body)
	}
}

func TestClientErrorIsNotRetried(t *testing.T) {
	var attempts int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&attempts, 1)
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":"cart not found"}`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, time.Second, 3, time.Millisecond, time.Millisecond)
	err := client.ReplaceQuantity(context.Background(), cart.Identity{UserID: "u1", Token: "tok"}, "p1", 4)
	if !IsStatus(err, http.StatusNotFound) {
		t.Fatalf("expected 404, got %v", err)
	}
	if atomic.LoadInt32(&attempts) != 1 {
		t.Fatalf("expected 1 attempt, got %d", attempts)
	}
}

func TestProductsSendsFilter(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if r.URL.Path != "/api/products" || q.Get("query") != "tee" || q.Get("price") != "10-20" || q.Get("page") != "2" {
			t.Errorf("unexpected request %s", r.URL.String())
		}
		if q.Has("limit") {
			t.Errorf("limit should be omitted")
		}
		_, _ = w.Write([]byte(`{"products":[{"id":"p1","name":"Tee","price":"12.5"}],"total":9,"page":2,"page_size":8}`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, time.Second, 0, 0, 0)
	page, err := client.Products(context.Background(), ProductFilter{Query: "tee", Price: "10-20", Page: 2})
	if err != nil {
		t.Fatalf("products: %v", err)
	}
	if page.Total != 9 || len(page.Products) != 1 {
		t.Fatalf("unexpected page %+v", page)
	}
	p := CartProduct(page.Products[0])
	if p.ID != "p1" || p.Price.String() != "12.5" {
		t.Fatalf("unexpected cart product %+v", p)
	}
}

func TestRetryStopsWhenContextDone(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, time.Second, 10, time.Second, time.Second)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	err := client.DeleteLine(ctx, cart.Identity{Token: "tok"}, "p1")
	if !IsStatus(err, http.StatusBadGateway) {
		t.Fatalf("expected last status error, got %v", err)
	}
	if time.Since(start) > 500*time.Millisecond {
		t.Fatalf("retry loop ignored context")
	}
}
