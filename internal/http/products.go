package http

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"storefront/internal/catalog"
	"storefront/internal/domain"
	storepkg "storefront/internal/store"
)

type productInput struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
	Image       string          `json:"image"`
}

func (in productInput) validate() string {
	if strings.TrimSpace(in.Name) == "" {
		return "name is required"
	}
	if in.Price.IsNegative() {
		return "price must not be negative"
	}
	return ""
}

func (s *Server) handleListProducts(w http.ResponseWriter, r *http.Request) {
	q, err := catalog.ParseQuery(r.URL.Query(), s.cfg.PageSize)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	page, err := s.store.ListProducts(r.Context(), q)
	if err != nil {
		s.writeStoreError(w, r, err, "")
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (s *Server) handleGetProduct(w http.ResponseWriter, r *http.Request) {
	p, err := s.store.GetProduct(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeStoreError(w, r, err, "product not found")
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleCreateProduct(w http.ResponseWriter, r *http.Request) {
	var in productInput
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if msg := in.validate(); msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}
	p, err := s.store.CreateProduct(r.Context(), domain.Product{
		Name:        strings.TrimSpace(in.Name),
		Description: in.Description,
		Price:       in.Price,
		Image:       in.Image,
		UserID:      userIDFromContext(r.Context()),
	})
	if err != nil {
		s.writeStoreError(w, r, err, "")
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

func (s *Server) handleUpdateProduct(w http.ResponseWriter, r *http.Request) {
	existing, ok := s.ownedProduct(w, r)
	if !ok {
		return
	}
	var in productInput
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if msg := in.validate(); msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}
	existing.Name = strings.TrimSpace(in.Name)
	existing.Description = in.Description
	existing.Price = in.Price
	existing.Image = in.Image
	p, err := s.store.UpdateProduct(r.Context(), existing)
	if err != nil {
		s.writeStoreError(w, r, err, "product not found")
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleDeleteProduct(w http.ResponseWriter, r *http.Request) {
	existing, ok := s.ownedProduct(w, r)
	if !ok {
		return
	}
	if err := s.store.DeleteProduct(r.Context(), existing.ID); err != nil {
		s.writeStoreError(w, r, err, "product not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ownedProduct loads the {id} product and writes 404/403 unless the caller
// owns it.
func (s *Server) ownedProduct(w http.ResponseWriter, r *http.Request) (domain.Product, bool) {
	p, err := s.store.GetProduct(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, storepkg.ErrNotFound) {
		writeError(w, http.StatusNotFound, "product not found")
		return domain.Product{}, false
	}
	if err != nil {
		s.writeStoreError(w, r, err, "")
		return domain.Product{}, false
	}
	if p.UserID != userIDFromContext(r.Context()) {
		writeError(w, http.StatusForbidden, "not the product owner")
		return domain.Product{}, false
	}
	return p, true
}
