package http

import (
	"encoding/binary"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

func (s *Server) handleListOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := s.store.ListOrders(r.Context(), userIDFromContext(r.Context()))
	if err != nil {
		s.writeStoreError(w, r, err, "")
		return
	}
	writeJSON(w, http.StatusOK, orders)
}

// handlePlaceOrder acknowledges checkout without persisting anything.
func (s *Server) handlePlaceOrder(w http.ResponseWriter, r *http.Request) {
	orderID := newOrderID()
	s.logger.Info("order placed", "user_id", userIDFromContext(r.Context()), "order_id", orderID)
	writeJSON(w, http.StatusOK, map[string]string{
		"message": "order placed successfully",
		"orderId": orderID,
	})
}

// newOrderID returns "order_" followed by 8 base36 characters.
func newOrderID() string {
	id := uuid.New()
	n := binary.BigEndian.Uint64(id[:8])
	suffix := strconv.FormatUint(n, 36)
	if len(suffix) < 8 {
		suffix = strings.Repeat("0", 8-len(suffix)) + suffix
	}
	return "order_" + suffix[len(suffix)-8:]
}
