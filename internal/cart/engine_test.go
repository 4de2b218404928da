package cart

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storefront/internal/obs"
)

type remoteCall struct {
	Op        string
	UserID    string
	ProductID string
	Quantity  int
}

// fakeRemote records every call. fail makes matching ops return an error and
// gate, when set for an op, blocks the call until a value is received.
type fakeRemote struct {
	mu    sync.Mutex
	calls []remoteCall
	lines map[string][]Line
	fail  map[string]error
	gate  map[string]chan struct{}
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{lines: map[string][]Line{}, fail: map[string]error{}, gate: map[string]chan struct{}{}}
}

func (f *fakeRemote) record(c remoteCall) error {
	f.mu.Lock()
	f.calls = append(f.calls, c)
	gate := f.gate[c.Op]
	err := f.fail[c.Op]
	f.mu.Unlock()
	if gate != nil {
		<-gate
	}
	return err
}

func (f *fakeRemote) setFail(op string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fail[op] = err
}

func (f *fakeRemote) hold(op string) chan struct{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch := make(chan struct{})
	f.gate[op] = ch
	return ch
}

func (f *fakeRemote) release(op string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.gate, op)
}

func (f *fakeRemote) Calls() []remoteCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]remoteCall(nil), f.calls...)
}

func (f *fakeRemote) LoadCart(_ context.Context, id Identity) ([]Line, error) {
	f.mu.Lock()
	lines := append([]Line(nil), f.lines[id.UserID]...)
	f.mu.Unlock()
	if err := f.record(remoteCall{Op: "load", UserID: id.UserID}); err != nil {
		return nil, err
	}
	return lines, nil
}

func (f *fakeRemote) UpsertLine(_ context.Context, id Identity, productID string, delta int) error {
	return f.record(remoteCall{Op: "upsert", UserID: id.UserID, ProductID: productID, Quantity: delta})
}

func (f *fakeRemote) ReplaceQuantity(_ context.Context, id Identity, productID string, quantity int) error {
	return f.record(remoteCall{Op: "replace", UserID: id.UserID, ProductID: productID, Quantity: quantity})
}

func (f *fakeRemote) DeleteLine(_ context.Context, id Identity, productID string) error {
	return f.record(remoteCall{Op: "delete", UserID: id.UserID, ProductID: productID})
}

func (f *fakeRemote) ClearCart(_ context.Context, id Identity) error {
	return f.record(remoteCall{Op: "clear", UserID: id.UserID})
}

type fakeSession struct {
	mu   sync.Mutex
	id   Identity
	subs []func(Identity)
}

func (s *fakeSession) Current() Identity {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.id
}

func (s *fakeSession) Subscribe(fn func(Identity)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subs = append(s.subs, fn)
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.subs = nil
	}
}

func (s *fakeSession) set(id Identity) {
	s.mu.Lock()
	s.id = id
	subs := slices.Clone(s.subs)
	s.mu.Unlock()
	for _, fn := range subs {
		fn(id)
	}
}

func newTestEngine(t *testing.T, remote Remote, session SessionSource) *Engine {
	t.Helper()
	var n atomic.Int64
	e := New(remote, session, Options{
		SyncTimeout: time.Second,
		Logger:      obs.Discard(),
		NewLineID: func() string {
			return fmt.Sprintf("line-%d", n.Add(1))
		},
	})
	t.Cleanup(func() {
		e.Close()
		e.Wait()
	})
	return e
}

func signedIn(t *testing.T, remote *fakeRemote, userID string) (*Engine, *fakeSession) {
	t.Helper()
	session := &fakeSession{id: Identity{UserID: userID, Token: "tok-" + userID}}
	e := newTestEngine(t, remote, session)
	e.Wait()
	require.Equal(t, PhaseHydrated, e.Phase())
	return e, session
}

func TestEngineAnonymousMakesNoRemoteCalls(t *testing.T) {
	remote := newFakeRemote()
	e := newTestEngine(t, remote, &fakeSession{})

	require.NoError(t, e.AddItem(tee(), 1))
	require.NoError(t, e.AddItem(tee(), 1))
	s := e.State()
	require.NoError(t, e.SetQuantity(s.Lines[0].LineID, 5))
	require.NoError(t, e.Clear())
	e.Wait()

	assert.Empty(t, remote.Calls())
	assert.Equal(t, PhaseAnonymous, e.Phase())
	assert.ErrorIs(t, e.Reload(), ErrNoIdentity)
}

func TestEngineDoubleAddSyncsDeltas(t *testing.T) {
	remote := newFakeRemote()
	e, _ := signedIn(t, remote, "u1")

	require.NoError(t, e.AddItem(tee(), 1))
	require.NoError(t, e.AddItem(tee(), 1))
	s := e.State()
	require.Len(t, s.Lines, 1)
	assert.Equal(t, 2, s.Lines[0].Quantity)
	assert.Equal(t, "39.98", s.Total.StringFixed(2))

	e.Wait()
	assert.Equal(t, []remoteCall{
		{Op: "load", UserID: "u1"},
		{Op: "upsert", UserID: "u1", ProductID: "p1", Quantity: 1},
		{Op: "upsert", UserID: "u1", ProductID: "p1", Quantity: 1},
	}, remote.Calls())
	assert.Equal(t, SyncIdle, e.State().SyncState)
}

func TestEngineUpsertSendsTrimmedProductID(t *testing.T) {
	remote := newFakeRemote()
	e, _ := signedIn(t, remote, "u1")

	padded := tee()
	padded.ID = "  " + padded.ID + "\t"
	require.NoError(t, e.AddItem(padded, 2))
	e.Wait()

	require.Len(t, e.State().Lines, 1)
	assert.Equal(t, tee().ID, e.State().Lines[0].ProductID)
	assert.Equal(t, []remoteCall{
		{Op: "load", UserID: "u1"},
		{Op: "upsert", UserID: "u1", ProductID: tee().ID, Quantity: 2},
	}, remote.Calls())
}

func TestEngineProjectsLineIDToProductID(t *testing.T) {
	remote := newFakeRemote()
	remote.lines["u1"] = []Line{{LineID: "srv-1", ProductID: "p9", UnitPrice: decimal.NewFromInt(10), Quantity: 3}}
	e, _ := signedIn(t, remote, "u1")

	// settle each call so the recorded order is the dispatch order
	require.NoError(t, e.SetQuantity("srv-1", 4))
	e.Wait()
	require.NoError(t, e.SetQuantity("srv-1", 0))
	e.Wait()
	require.NoError(t, e.RemoveItem("srv-1"))
	require.NoError(t, e.SetQuantity("unknown", 2))
	e.Wait()

	assert.Equal(t, []remoteCall{
		{Op: "load", UserID: "u1"},
		{Op: "replace", UserID: "u1", ProductID: "p9", Quantity: 4},
		{Op: "delete", UserID: "u1", ProductID: "p9"},
	}, remote.Calls())
	assert.Empty(t, e.State().Lines)
}

func TestEngineRemoteFailureKeepsLocalState(t *testing.T) {
	remote := newFakeRemote()
	e, _ := signedIn(t, remote, "u1")
	remote.setFail("upsert", errors.New("boom"))

	require.NoError(t, e.AddItem(tee(), 1))
	e.Wait()

	s := e.State()
	require.Len(t, s.Lines, 1)
	assert.Equal(t, "p1", s.Lines[0].ProductID)
	assert.Equal(t, SyncError, s.SyncState)
	failure, ok := e.LastFailure()
	require.True(t, ok)
	assert.Equal(t, "upsert", failure.Op)
	assert.Equal(t, "p1", failure.ProductID)
	assert.EqualError(t, failure.Err, "boom")
}

func TestEngineLastResponseWinsSyncState(t *testing.T) {
	remote := newFakeRemote()
	e, _ := signedIn(t, remote, "u1")
	remote.setFail("upsert", errors.New("down"))
	require.NoError(t, e.AddItem(tee(), 1))
	e.Wait()
	require.Equal(t, SyncError, e.State().SyncState)

	remote.setFail("upsert", nil)
	require.NoError(t, e.AddItem(tee(), 1))
	e.Wait()
	assert.Equal(t, SyncIdle, e.State().SyncState)
}

func TestEngineReloadDiscardsUnsyncedLines(t *testing.T) {
	remote := newFakeRemote()
	remote.lines["u1"] = []Line{{LineID: "srv-1", ProductID: "p2", UnitPrice: decimal.NewFromInt(4), Quantity: 1}}
	e, _ := signedIn(t, remote, "u1")
	remote.setFail("upsert", errors.New("down"))

	require.NoError(t, e.AddItem(Product{ID: "x", Price: decimal.NewFromInt(1)}, 1))
	e.Wait()
	gate := remote.hold("load")
	require.NoError(t, e.Reload())
	assert.Equal(t, SyncLoading, e.State().SyncState)
	remote.release("load")
	close(gate)
	e.Wait()

	s := e.State()
	_, ok := s.LineByProduct("x")
	assert.False(t, ok)
	require.Len(t, s.Lines, 1)
	assert.Equal(t, SyncIdle, s.SyncState)
	_, failed := e.LastFailure()
	assert.False(t, failed)
}

func TestEngineHydrateFailureKeepsSnapshot(t *testing.T) {
	remote := newFakeRemote()
	e, _ := signedIn(t, remote, "u1")
	require.NoError(t, e.AddItem(tee(), 2))
	e.Wait()

	remote.setFail("load", errors.New("unavailable"))
	require.NoError(t, e.Reload())
	e.Wait()

	s := e.State()
	require.Len(t, s.Lines, 1)
	assert.Equal(t, 2, s.Lines[0].Quantity)
	assert.Equal(t, SyncError, s.SyncState)
	failure, ok := e.LastFailure()
	require.True(t, ok)
	assert.Equal(t, "load", failure.Op)
}

func TestEngineMutationSuccessDoesNotEndLoading(t *testing.T) {
	remote := newFakeRemote()
	e, _ := signedIn(t, remote, "u1")

	gate := remote.hold("load")
	require.NoError(t, e.Reload())
	require.NoError(t, e.AddItem(tee(), 1))

	require.Eventually(t, func() bool {
		for _, c := range remote.Calls() {
			if c.Op == "upsert" {
				return true
			}
		}
		return false
	}, time.Second, 5*time.Millisecond)
	// give the upsert completion a chance to land
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, SyncLoading, e.State().SyncState)

	remote.release("load")
	close(gate)
	e.Wait()
	assert.Equal(t, SyncIdle, e.State().SyncState)
}

func TestEngineLogoutClearsLocallyAndDropsStaleResults(t *testing.T) {
	remote := newFakeRemote()
	e, session := signedIn(t, remote, "u1")

	gate := remote.hold("upsert")
	remote.setFail("upsert", errors.New("late failure"))
	require.NoError(t, e.AddItem(tee(), 1))
	require.Eventually(t, func() bool { return len(remote.Calls()) == 2 }, time.Second, 5*time.Millisecond)

	session.set(Identity{})
	assert.Equal(t, PhaseAnonymous, e.Phase())
	assert.Empty(t, e.State().Lines)

	remote.release("upsert")
	close(gate)
	e.Wait()

	s := e.State()
	assert.Equal(t, SyncIdle, s.SyncState)
	_, failed := e.LastFailure()
	assert.False(t, failed)
	for _, c := range remote.Calls() {
		assert.NotEqual(t, "clear", c.Op, "logout must not clear the server cart")
	}
}

func TestEngineIdentitySwitchHydratesNewUser(t *testing.T) {
	remote := newFakeRemote()
	remote.lines["u1"] = []Line{{LineID: "a", ProductID: "p1", UnitPrice: decimal.NewFromInt(1), Quantity: 1}}
	remote.lines["u2"] = []Line{{LineID: "b", ProductID: "p2", UnitPrice: decimal.NewFromInt(2), Quantity: 2}}
	e, session := signedIn(t, remote, "u1")

	session.set(Identity{UserID: "u2", Token: "tok-u2"})
	assert.Equal(t, PhaseHydrating, e.Phase())
	assert.Empty(t, e.State().Lines)
	e.Wait()

	s := e.State()
	require.Len(t, s.Lines, 1)
	assert.Equal(t, "p2", s.Lines[0].ProductID)
	assert.Equal(t, "u2", e.Identity().UserID)
}

func TestEngineOnlyLatestLoadApplies(t *testing.T) {
	remote := newFakeRemote()
	remote.lines["u1"] = []Line{{LineID: "a", ProductID: "old", UnitPrice: decimal.NewFromInt(1), Quantity: 1}}
	e, _ := signedIn(t, remote, "u1")

	gate := remote.hold("load")
	require.NoError(t, e.Reload())
	require.Eventually(t, func() bool { return len(remote.Calls()) == 2 }, time.Second, 5*time.Millisecond)

	remote.mu.Lock()
	remote.lines["u1"] = []Line{{LineID: "b", ProductID: "new", UnitPrice: decimal.NewFromInt(1), Quantity: 1}}
	remote.mu.Unlock()
	remote.release("load")
	require.NoError(t, e.Reload())
	require.Eventually(t, func() bool { return e.State().SyncState == SyncIdle }, time.Second, 5*time.Millisecond)

	// the first load finishes last with the old lines
	close(gate)
	e.Wait()

	s := e.State()
	require.Len(t, s.Lines, 1)
	assert.Equal(t, "new", s.Lines[0].ProductID)
}

func TestEngineCloseDropsInflightAndRejectsMutations(t *testing.T) {
	remote := newFakeRemote()
	e, _ := signedIn(t, remote, "u1")

	gate := remote.hold("upsert")
	remote.setFail("upsert", errors.New("late"))
	require.NoError(t, e.AddItem(tee(), 1))
	e.Close()
	remote.release("upsert")
	close(gate)
	e.Wait()

	assert.NotEqual(t, SyncError, e.State().SyncState)
	assert.ErrorIs(t, e.AddItem(tee(), 1), ErrClosed)
	assert.ErrorIs(t, e.Reload(), ErrClosed)
}

func TestEngineDispatchRejectsHydrate(t *testing.T) {
	e := newTestEngine(t, newFakeRemote(), nil)
	assert.ErrorIs(t, e.Dispatch(Hydrate{}), ErrNotMutation)
}

func TestEngineConcurrentMutationsKeepTotal(t *testing.T) {
	remote := newFakeRemote()
	e, _ := signedIn(t, remote, "u1")

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			p := Product{ID: fmt.Sprintf("p%d", i%3), Price: decimal.RequireFromString("0.10")}
			for j := 0; j < 25; j++ {
				_ = e.AddItem(p, 1)
				assertTotal(t, e.State())
			}
		}(i)
	}
	wg.Wait()
	e.Wait()

	s := e.State()
	assert.Len(t, s.Lines, 3)
	assert.Equal(t, 200, s.ItemCount())
	assert.Equal(t, "20.00", s.Total.StringFixed(2))
}
