package cart

import (
	"context"
	"strings"
	"time"
)

type opKind string

const (
	opLoad    opKind = "load"
	opUpsert  opKind = "upsert"
	opReplace opKind = "replace"
	opDelete  opKind = "delete"
	opClear   opKind = "clear"
)

// SyncFailure describes the most recent failed remote call.
type SyncFailure struct {
	Op        string
	ProductID string
	Err       error
	At        time.Time
}

type syncOp struct {
	kind      opKind
	productID string
	quantity  int
}

func (op syncOp) run(ctx context.Context, remote Remote, id Identity) error {
	switch op.kind {
	case opUpsert:
		return remote.UpsertLine(ctx, id, op.productID, op.quantity)
	case opReplace:
		return remote.ReplaceQuantity(ctx, id, op.productID, op.quantity)
	case opDelete:
		return remote.DeleteLine(ctx, id, op.productID)
	case opClear:
		return remote.ClearCart(ctx, id)
	}
	return ErrUnknownAction
}

// project maps an applied mutation onto the remote call that mirrors it.
// prev is the snapshot before the mutation, used to resolve line ids to
// product ids. It reports false when nothing needs to be sent.
func project(prev Snapshot, a Action) (syncOp, bool) {
	switch a := a.(type) {
	case AddItem:
		return syncOp{kind: opUpsert, productID: strings.TrimSpace(a.Product.ID), quantity: a.Quantity}, true
	case SetQuantity:
		line, ok := prev.Line(a.LineID)
		if !ok {
			return syncOp{}, false
		}
		if a.Quantity == 0 {
			return syncOp{kind: opDelete, productID: line.ProductID}, true
		}
		return syncOp{kind: opReplace, productID: line.ProductID, quantity: a.Quantity}, true
	case RemoveItem:
		line, ok := prev.Line(a.LineID)
		if !ok {
			return syncOp{}, false
		}
		return syncOp{kind: opDelete, productID: line.ProductID}, true
	case Clear:
		return syncOp{kind: opClear}, true
	}
	return syncOp{}, false
}

// launchLocked sends op in the background. Callers hold e.mu.
func (e *Engine) launchLocked(op syncOp) {
	epoch, identity := e.epoch, e.identity
	e.inflight.Add(1)
	go func() {
		defer e.inflight.Done()
		ctx, cancel := context.WithTimeout(context.Background(), e.syncTimeout)
		defer cancel()
		err := op.run(ctx, e.remote, identity)
		e.finishSync(epoch, op, err)
	}()
}

func (e *Engine) finishSync(epoch uint64, op syncOp, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed || epoch != e.epoch {
		e.logger.Debug("cart sync result discarded", "op", op.kind, "product_id", op.productID)
		return
	}
	if err != nil {
		e.snap.SyncState = SyncError
		e.lastFailure = &SyncFailure{Op: string(op.kind), ProductID: op.productID, Err: err, At: e.now()}
		e.logger.Warn("cart sync failed", "op", op.kind, "product_id", op.productID, "error", err)
		return
	}
	// A pending load owns the loading state until it completes.
	if e.snap.SyncState != SyncLoading {
		e.snap.SyncState = SyncIdle
	}
}
