package http

import (
	"net/http"
	"strings"
)

func (s *Server) handleGetCart(w http.ResponseWriter, r *http.Request) {
	items, err := s.store.CartItems(r.Context(), userIDFromContext(r.Context()))
	if err != nil {
		s.writeStoreError(w, r, err, "")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"items": items})
}

func (s *Server) handleAddToCart(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ProductID string `json:"productId"`
		Quantity  *int   `json:"quantity"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	req.ProductID = strings.TrimSpace(req.ProductID)
	quantity := 1
	if req.Quantity != nil {
		quantity = *req.Quantity
	}
	if req.ProductID == "" {
		writeError(w, http.StatusBadRequest, "productId is required")
		return
	}
	if quantity <= 0 {
		writeError(w, http.StatusBadRequest, "quantity must be positive")
		return
	}

	userID := userIDFromContext(r.Context())
	product, err := s.store.GetProduct(r.Context(), req.ProductID)
	if err != nil {
		s.writeStoreError(w, r, err, "product not found")
		return
	}
	if product.UserID == userID {
		writeError(w, http.StatusForbidden, "cannot add your own product to the cart")
		return
	}
	if err := s.store.AddToCart(r.Context(), userID, req.ProductID, quantity); err != nil {
		s.writeStoreError(w, r, err, "product not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "item added to cart"})
}

func (s *Server) handleUpdateCart(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ProductID string `json:"productId"`
		Quantity  *int   `json:"quantity"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	req.ProductID = strings.TrimSpace(req.ProductID)
	if req.ProductID == "" || req.Quantity == nil {
		writeError(w, http.StatusBadRequest, "productId and quantity are required")
		return
	}
	if *req.Quantity < 0 {
		writeError(w, http.StatusBadRequest, "quantity must not be negative")
		return
	}
	err := s.store.SetCartQuantity(r.Context(), userIDFromContext(r.Context()), req.ProductID, *req.Quantity)
	if err != nil {
		s.writeStoreError(w, r, err, "cart not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "cart updated"})
}

func (s *Server) handleRemoveFromCart(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ProductID string `json:"productId"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	req.ProductID = strings.TrimSpace(req.ProductID)
	if req.ProductID == "" {
		writeError(w, http.StatusBadRequest, "productId is required")
		return
	}
	if err := s.store.RemoveFromCart(r.Context(), userIDFromContext(r.Context()), req.ProductID); err != nil {
		s.writeStoreError(w, r, err, "cart not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "item removed from cart"})
}

func (s *Server) handleClearCart(w http.ResponseWriter, r *http.Request) {
	if err := s.store.ClearCart(r.Context(), userIDFromContext(r.Context())); err != nil {
		s.writeStoreError(w, r, err, "")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "cart cleared"})
}
