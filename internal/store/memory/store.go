package memory

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"storefront/internal/catalog"
	"storefront/internal/domain"
	storepkg "storefront/internal/store"
)

var _ storepkg.Store = (*Store)(nil)

type cartLine struct {
	id        string
	productID string
	quantity  int
}

type Store struct {
	mu sync.RWMutex

	users        map[string]domain.User
	userIDByMail map[string]string

	products     map[string]domain.Product
	productOrder []string

	// carts holds each user's lines in insertion order.
	carts map[string][]cartLine

	orders map[string][]domain.Order

	now func() time.Time
}

func NewStore() *Store {
	return &Store{
		users:        make(map[string]domain.User),
		userIDByMail: make(map[string]string),
		products:     make(map[string]domain.Product),
		productOrder: make([]string, 0, 64),
		carts:        make(map[string][]cartLine),
		orders:       make(map[string][]domain.Order),
		now:          func() time.Time { return time.Now().UTC() },
	}
}

func (s *Store) CreateUser(_ context.Context, user domain.User) (domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	email := strings.ToLower(strings.TrimSpace(user.Email))
	if _, exists := s.userIDByMail[email]; exists {
		return domain.User{}, storepkg.ErrConflict
	}
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	user.Email = email
	user.CreatedAt = s.now()
	s.users[user.ID] = user
	s.userIDByMail[email] = user.ID
	return user, nil
}

func (s *Store) UserByEmail(_ context.Context, email string) (domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.userIDByMail[strings.ToLower(strings.TrimSpace(email))]
	if !ok {
		return domain.User{}, storepkg.ErrNotFound
	}
	return s.users[id], nil
}

func (s *Store) UserByID(_ context.Context, id string) (domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return domain.User{}, storepkg.ErrNotFound
	}
	return u, nil
}

func (s *Store) CreateProduct(_ context.Context, p domain.Product) (domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if _, exists := s.products[p.ID]; exists {
		return domain.Product{}, storepkg.ErrConflict
	}
	// Strictly increasing timestamps keep newest-first listing stable.
	now := s.now()
	if n := len(s.productOrder); n > 0 {
		last := s.products[s.productOrder[n-1]].CreatedAt
		if !now.After(last) {
			now = last.Add(time.Microsecond)
		}
	}
	p.CreatedAt = now
	p.UpdatedAt = now
	s.products[p.ID] = p
	s.productOrder = append(s.productOrder, p.ID)
	return p, nil
}

func (s *Store) UpdateProduct(_ context.Context, p domain.Product) (domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.products[p.ID]
	if !ok {
		return domain.Product{}, storepkg.ErrNotFound
	}
	existing.Name = p.Name
	existing.Description = p.Description
	existing.Price = p.Price
	existing.Image = p.Image
	existing.UpdatedAt = s.now()
	s.products[p.ID] = existing
	return existing, nil
}

func (s *Store) DeleteProduct(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.products[id]; !ok {
		return storepkg.ErrNotFound
	}
	delete(s.products, id)
	s.productOrder = slices.DeleteFunc(s.productOrder, func(v string) bool { return v == id })
	for userID, lines := range s.carts {
		s.carts[userID] = slices.DeleteFunc(lines, func(l cartLine) bool { return l.productID == id })
	}
	return nil
}

func (s *Store) GetProduct(_ context.Context, id string) (domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.products[id]
	if !ok {
		return domain.Product{}, storepkg.ErrNotFound
	}
	return p, nil
}

func (s *Store) ListProducts(_ context.Context, q domain.ProductQuery) (domain.ProductPage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	matched := make([]domain.Product, 0, len(s.productOrder))
	for i := len(s.productOrder) - 1; i >= 0; i-- {
		p := s.products[s.productOrder[i]]
		if catalog.Matches(p, q) {
			matched = append(matched, p)
		}
	}
	page := domain.ProductPage{
		Products: []domain.Product{},
		Total:    len(matched),
		Page:     max(q.Page, 1),
		PageSize: q.PageSize,
	}
	start := q.Offset()
	if start >= len(matched) {
		return page, nil
	}
	end := min(start+q.PageSize, len(matched))
	page.Products = slices.Clone(matched[start:end])
	return page, nil
}

func (s *Store) CartItems(_ context.Context, userID string) ([]domain.CartItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	lines, ok := s.carts[userID]
	if !ok {
		s.carts[userID] = []cartLine{}
		return []domain.CartItem{}, nil
	}
	out := make([]domain.CartItem, 0, len(lines))
	for _, l := range lines {
		p := s.products[l.productID]
		out = append(out, domain.CartItem{
			ID:        l.id,
			ProductID: l.productID,
			Name:      p.Name,
			Price:     p.Price,
			Image:     p.Image,
			Quantity:  l.quantity,
		})
	}
	return out, nil
}

func (s *Store) AddToCart(_ context.Context, userID, productID string, quantity int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.products[productID]; !ok {
		return storepkg.ErrNotFound
	}
	lines := s.carts[userID]
	for i := range lines {
		if lines[i].productID == productID {
			lines[i].quantity += quantity
			return nil
		}
	}
	s.carts[userID] = append(lines, cartLine{id: uuid.NewString(), productID: productID, quantity: quantity})
	return nil
}

func (s *Store) SetCartQuantity(_ context.Context, userID, productID string, quantity int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	lines, ok := s.carts[userID]
	if !ok {
		if quantity == 0 {
			return nil
		}
		return storepkg.ErrNotFound
	}
	if quantity == 0 {
		s.carts[userID] = slices.DeleteFunc(lines, func(l cartLine) bool { return l.productID == productID })
		return nil
	}
	for i := range lines {
		if lines[i].productID == productID {
			lines[i].quantity = quantity
		}
	}
	return nil
}

func (s *Store) RemoveFromCart(ctx context.Context, userID, productID string) error {
	return s.SetCartQuantity(ctx, userID, productID, 0)
}

func (s *Store) ClearCart(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.carts[userID]; ok {
		s.carts[userID] = []cartLine{}
	}
	return nil
}

func (s *Store) ListOrders(_ context.Context, userID string) ([]domain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	orders := slices.Clone(s.orders[userID])
	slices.SortStableFunc(orders, func(a, b domain.Order) int { return b.CreatedAt.Compare(a.CreatedAt) })
	if orders == nil {
		orders = []domain.Order{}
	}
	return orders, nil
}

// SaveOrder records an order for userID. Order creation over HTTP is mocked,
// so only seeding and tests write orders.
func (s *Store) SaveOrder(order domain.Order) domain.Order {
	s.mu.Lock()
	defer s.mu.Unlock()
	if order.ID == "" {
		order.ID = uuid.NewString()
	}
	if order.CreatedAt.IsZero() {
		order.CreatedAt = s.now()
	}
	s.orders[order.UserID] = append(s.orders[order.UserID], order)
	return order
}

func (s *Store) Close() error { return nil }
