package cart

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	ErrClosed      = errors.New("cart: engine closed")
	ErrNoIdentity  = errors.New("cart: no signed-in identity")
	ErrNotMutation = errors.New("cart: hydrate is applied only from a load")
)

type Phase string

const (
	PhaseAnonymous Phase = "anonymous"
	PhaseHydrating Phase = "hydrating"
	PhaseHydrated  Phase = "hydrated"
)

type Options struct {
	// SyncTimeout bounds every remote call. Defaults to 5s.
	SyncTimeout time.Duration
	Logger      *slog.Logger
	// NewLineID generates ids for lines created locally. Defaults to uuid.
	NewLineID func() string
	Now       func() time.Time
}

// Engine owns one cart snapshot for one session context. Mutations apply
// synchronously under a mutex; their remote projections run in the
// background and only ever affect SyncState.
type Engine struct {
	remote      Remote
	logger      *slog.Logger
	syncTimeout time.Duration
	newLineID   func() string
	now         func() time.Time

	mu          sync.Mutex
	snap        Snapshot
	phase       Phase
	identity    Identity
	epoch       uint64 // bumped on identity change and Close
	loadSeq     uint64 // only the latest load may hydrate
	closed      bool
	lastFailure *SyncFailure
	unsubscribe func()

	inflight sync.WaitGroup
}

// New builds an engine and subscribes it to session. A nil session keeps the
// engine anonymous and local-only.
func New(remote Remote, session SessionSource, opts Options) *Engine {
	if opts.SyncTimeout <= 0 {
		opts.SyncTimeout = 5 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.NewLineID == nil {
		opts.NewLineID = uuid.NewString
	}
	if opts.Now == nil {
		opts.Now = func() time.Time { return time.Now().UTC() }
	}
	e := &Engine{
		remote:      remote,
		logger:      opts.Logger,
		syncTimeout: opts.SyncTimeout,
		newLineID:   opts.NewLineID,
		now:         opts.Now,
		snap:        emptySnapshot(),
		phase:       PhaseAnonymous,
	}
	if session != nil {
		unsubscribe := session.Subscribe(e.onIdentity)
		e.mu.Lock()
		e.unsubscribe = unsubscribe
		e.mu.Unlock()
		e.onIdentity(session.Current())
	}
	return e
}

// State returns a copy of the current snapshot.
func (e *Engine) State() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snap.Clone()
}

func (e *Engine) Phase() Phase {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.phase
}

func (e *Engine) Identity() Identity {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.identity
}

// LastFailure returns the most recent remote failure since the last
// successful hydrate.
func (e *Engine) LastFailure() (SyncFailure, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.lastFailure == nil {
		return SyncFailure{}, false
	}
	return *e.lastFailure, true
}

func (e *Engine) AddItem(p Product, quantity int) error {
	return e.Dispatch(AddItem{Product: p, Quantity: quantity, LineID: e.newLineID()})
}

func (e *Engine) SetQuantity(lineID string, quantity int) error {
	return e.Dispatch(SetQuantity{LineID: lineID, Quantity: quantity})
}

func (e *Engine) RemoveItem(lineID string) error {
	return e.Dispatch(RemoveItem{LineID: lineID})
}

func (e *Engine) Clear() error {
	return e.Dispatch(Clear{})
}

// Dispatch applies a mutation locally and, when signed in, sends its remote
// projection without waiting for it. Only validation errors are returned.
func (e *Engine) Dispatch(a Action) error {
	if _, ok := a.(Hydrate); ok {
		return ErrNotMutation
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrClosed
	}
	prev := e.snap
	next, err := Reduce(prev, a)
	if err != nil {
		return err
	}
	e.snap = next
	if e.identity.IsZero() {
		return nil
	}
	if op, ok := project(prev, a); ok {
		e.launchLocked(op)
	}
	return nil
}

// Reload re-reads the cart from the server-of-record. The result replaces
// local lines wholesale.
func (e *Engine) Reload() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrClosed
	}
	if e.identity.IsZero() {
		return ErrNoIdentity
	}
	e.phase = PhaseHydrating
	e.startLoadLocked()
	return nil
}

// Wait blocks until every remote call launched so far has completed.
func (e *Engine) Wait() {
	e.inflight.Wait()
}

// Close stops the engine. Calls still in flight complete but their results
// are dropped.
func (e *Engine) Close() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	e.epoch++
	unsubscribe := e.unsubscribe
	e.unsubscribe = nil
	e.mu.Unlock()
	if unsubscribe != nil {
		unsubscribe()
	}
}

func (e *Engine) onIdentity(id Identity) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	switch {
	case id.IsZero():
		if e.phase != PhaseAnonymous {
			e.logoutLocked()
		}
	case id.UserID == e.identity.UserID:
		e.identity = id
		if e.phase == PhaseHydrating {
			e.startLoadLocked()
		}
	default:
		if e.phase != PhaseAnonymous {
			e.logoutLocked()
		}
		e.identity = id
		e.phase = PhaseHydrating
		e.startLoadLocked()
	}
}

// logoutLocked empties the local cart only; the server copy is kept for the
// next sign-in.
func (e *Engine) logoutLocked() {
	e.epoch++
	e.identity = Identity{}
	e.phase = PhaseAnonymous
	e.lastFailure = nil
	e.snap = applyClear(e.snap)
	e.snap.SyncState = SyncIdle
}

func (e *Engine) startLoadLocked() {
	e.loadSeq++
	seq, epoch, identity := e.loadSeq, e.epoch, e.identity
	e.snap.SyncState = SyncLoading
	e.inflight.Add(1)
	go func() {
		defer e.inflight.Done()
		ctx, cancel := context.WithTimeout(context.Background(), e.syncTimeout)
		defer cancel()
		lines, err := e.remote.LoadCart(ctx, identity)
		e.finishLoad(epoch, seq, lines, err)
	}()
}

func (e *Engine) finishLoad(epoch, seq uint64, lines []Line, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed || epoch != e.epoch || seq != e.loadSeq {
		e.logger.Debug("cart load result discarded", "user_id", e.identity.UserID)
		return
	}
	if err == nil {
		var next Snapshot
		if next, err = Reduce(e.snap, Hydrate{Lines: lines}); err == nil {
			e.snap = next
			e.phase = PhaseHydrated
			e.lastFailure = nil
			return
		}
	}
	e.snap.SyncState = SyncError
	e.lastFailure = &SyncFailure{Op: string(opLoad), Err: err, At: e.now()}
	e.logger.Warn("cart hydrate failed", "user_id", e.identity.UserID, "error", err)
}
