// Package session holds the signed-in identity for one client process and
// fans identity changes out to subscribers such as the cart engine.
package session

import (
	"sync"
	"time"

	"storefront/internal/cart"
)

// Source is a subscribable identity holder. The zero value is anonymous and
// ready to use.
type Source struct {
	// notifyMu orders whole updates, fan-out included, so subscribers see
	// changes in the order they were applied.
	notifyMu  sync.Mutex
	mu        sync.Mutex
	identity  cart.Identity
	expiresAt time.Time
	nextID    int
	subs      map[int]func(cart.Identity)
}

func New() *Source {
	return &Source{}
}

func (s *Source) Current() cart.Identity {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.identity
}

// ExpiresAt is the token expiry reported at sign-in, zero when anonymous.
func (s *Source) ExpiresAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.expiresAt
}

// Subscribe registers fn for every later change. Callbacks run on the
// goroutine calling Set or Clear, one update at a time and in update order.
// A callback may read Current or unsubscribe but must not call Set or Clear.
func (s *Source) Subscribe(fn func(cart.Identity)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.subs == nil {
		s.subs = map[int]func(cart.Identity){}
	}
	id := s.nextID
	s.nextID++
	s.subs[id] = fn
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.subs, id)
	}
}

func (s *Source) Set(id cart.Identity, expiresAt time.Time) {
	s.update(id, expiresAt)
}

func (s *Source) Clear() {
	s.update(cart.Identity{}, time.Time{})
}

func (s *Source) update(id cart.Identity, expiresAt time.Time) {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()

	s.mu.Lock()
	if s.identity == id && s.expiresAt.Equal(expiresAt) {
		s.mu.Unlock()
		return
	}
	s.identity = id
	s.expiresAt = expiresAt
	subs := make([]func(cart.Identity), 0, len(s.subs))
	for _, fn := range s.subs {
		subs = append(subs, fn)
	}
	s.mu.Unlock()

	for _, fn := range subs {
		fn(id)
	}
}
