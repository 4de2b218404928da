package session

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"storefront/internal/cart"
)

func TestSourceNotifiesSubscribers(t *testing.T) {
	s := New()
	var got []cart.Identity
	unsubscribe := s.Subscribe(func(id cart.Identity) { got = append(got, id) })

	alice := cart.Identity{UserID: "u1", Token: "t1"}
	s.Set(alice, time.Unix(100, 0))
	s.Set(alice, time.Unix(100, 0))
	s.Clear()
	unsubscribe()
	s.Set(alice, time.Unix(200, 0))

	assert.Equal(t, []cart.Identity{alice, {}}, got)
	assert.Equal(t, alice, s.Current())
	assert.Equal(t, time.Unix(200, 0), s.ExpiresAt())
}

func TestSourceCallbackMayReadCurrent(t *testing.T) {
	s := New()
	var seen cart.Identity
	s.Subscribe(func(cart.Identity) { seen = s.Current() })

	s.Set(cart.Identity{UserID: "u2"}, time.Time{})
	assert.Equal(t, "u2", seen.UserID)
}

func TestSourceDrivesEngine(t *testing.T) {
	s := New()
	e := cart.New(nil, s, cart.Options{})
	defer e.Close()

	assert.Equal(t, cart.PhaseAnonymous, e.Phase())
	s.Clear()
	assert.Equal(t, cart.PhaseAnonymous, e.Phase())
}

func TestSourceConcurrentUpdatesDeliverLatestLast(t *testing.T) {
	alice := cart.Identity{UserID: "u1", Token: "t1"}
	for i := 0; i < 200; i++ {
		s := New()
		var (
			mu   sync.Mutex
			last cart.Identity
		)
		s.Subscribe(func(id cart.Identity) {
			mu.Lock()
			last = id
			mu.Unlock()
		})

		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			s.Set(alice, time.Unix(100, 0))
		}()
		go func() {
			defer wg.Done()
			s.Clear()
		}()
		wg.Wait()

		mu.Lock()
		got := last
		mu.Unlock()
		assert.Equal(t, s.Current(), got, "run %d", i)
	}
}
