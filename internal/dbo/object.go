// Package dbo implements the per-entity tracking object and the counted handle
// user code holds to it.
//
// An Object mediates between a domain payload, the session that owns it and
// the backing store. It owns a reference count, a lifecycle state and a
// non-owning back-reference to its session. Objects are not safe for
// concurrent use; the owning session is the synchronization boundary.
package dbo

import (
	"fmt"

	"trackdb/internal/core/apperror"
	"trackdb/internal/core/id"
	"trackdb/internal/dbo/state"
)

// Session is what an Object needs from the session that tracks it.
type Session interface {
	// EnqueueForFlush registers o on the pending-flush set. Repeated calls
	// for the same object are no-ops.
	EnqueueForFlush(o *Object)

	// DiscardPending removes a never-persisted object from the pending-flush
	// set and the identity map.
	DiscardPending(o *Object)

	// IsFlushing reports whether a flush is in progress.
	IsFlushing() bool

	// Forget is called exactly once when o is destroyed while still attached.
	Forget(o *Object)
}

// Object is the bookkeeping record for one domain entity.
type Object struct {
	refCount  int
	state     state.State
	session   Session
	payload   any
	identity  id.ID
	snapshot  state.Lifecycle
	destroyed bool
}

// NewObject creates an unattached object in the given lifecycle. The
// reference count starts at zero; the first Ptr takes the first reference.
func NewObject(payload any, lifecycle state.Lifecycle) *Object {
	return &Object{
		state:   state.State{Lifecycle: lifecycle},
		payload: payload,
	}
}

// IncRef takes one reference.
func (o *Object) IncRef() {
	if o.destroyed {
		panic("dbo: IncRef on destroyed object")
	}
	o.refCount++
}

// DecRef drops one reference and destroys the object when none remain.
func (o *Object) DecRef() {
	if o.destroyed || o.refCount <= 0 {
		panic(fmt.Sprintf("dbo: DecRef with refcount %d", o.refCount))
	}
	o.refCount--
	if o.refCount == 0 {
		o.destroy()
	}
}

func (o *Object) destroy() {
	o.destroyed = true
	if s := o.session; s != nil {
		o.session = nil
		s.Forget(o)
	}
	o.payload = nil
}

// RefCount returns the number of outstanding references.
func (o *Object) RefCount() int { return o.refCount }

// IsDestroyed reports whether the last reference has been dropped.
func (o *Object) IsDestroyed() bool { return o.destroyed }

// State returns the current state.
func (o *Object) State() state.State { return o.state }

// Lifecycle returns the current lifecycle.
func (o *Object) Lifecycle() state.Lifecycle { return o.state.Lifecycle }

// Session returns the owning session, or nil when detached.
func (o *Object) Session() Session { return o.session }

// Payload returns the domain entity.
func (o *Object) Payload() any { return o.payload }

// ID returns the primary key. It is only meaningful once the object is persisted.
func (o *Object) ID() id.ID { return o.identity }

// Snapshot returns the lifecycle recorded at the first mutation of the
// current transaction and whether one was taken.
func (o *Object) Snapshot() (state.Lifecycle, bool) {
	return o.snapshot, o.state.Has(state.InTransaction)
}

// MarkDirty schedules the object for saving. It is a no-op once the object
// is deleted or scheduled for deletion.
func (o *Object) MarkDirty() error {
	if err := o.checkNotOrphaned(); err != nil {
		return err
	}
	if o.state.IsDeleted() || o.state.Has(state.NeedsSave) {
		return nil
	}

	o.state = o.state.With(state.NeedsSave)
	if o.session != nil {
		o.session.EnqueueForFlush(o)
	}
	return nil
}

// Remove schedules a persisted object for deletion. A new object that was
// added to a session but never flushed is dropped from the session instead.
func (o *Object) Remove() error {
	if err := o.checkNotOrphaned(); err != nil {
		return err
	}

	switch {
	case o.state.IsDeleted():
		// already removed or being removed in this transaction
	case o.session == nil:
		// never added to a session
	case o.state.Lifecycle == state.Persisted:
		o.state = o.state.With(state.NeedsDelete)
		o.session.EnqueueForFlush(o)
	default:
		s := o.session
		s.DiscardPending(o)
		o.state = o.state.Without(state.NeedsSave)
		o.session = nil
	}
	return nil
}

func (o *Object) checkNotOrphaned() error {
	if o.state.IsOrphaned() {
		return apperror.NewOrphanedHandle().WithDetail("id", o.identity.String())
	}
	return nil
}

// --- Session-only operations ---

// Attach sets the owning session.
func (o *Object) Attach(s Session) error {
	if err := o.checkNotOrphaned(); err != nil {
		return err
	}
	o.session = s
	return nil
}

// Detach releases the session's ownership. The object becomes orphaned:
// mutations fault from now on but handles stay readable and releasable.
func (o *Object) Detach() {
	o.session = nil
	o.state = o.state.With(state.Orphaned)
}

// SetState replaces the lifecycle and keeps every flag. While attached it may
// only be called during a flush.
func (o *Object) SetState(l state.Lifecycle) error {
	if o.session != nil && !o.session.IsFlushing() {
		return apperror.NewContract("SetState outside of a flush").
			WithDetail("lifecycle", l.String())
	}
	o.state = o.state.WithLifecycle(l)
	return nil
}

// SetIdentity assigns the primary key (on load and on insert).
func (o *Object) SetIdentity(v id.ID) {
	o.identity = v
}

// SetTransactionFlag sets transaction scoped flags. Other bits are ignored.
func (o *Object) SetTransactionFlag(f state.Flag) {
	o.state = o.state.With(f & state.TransactionFlags)
}

// ClearFlags clears transaction scoped flags, used when a flush step completes.
func (o *Object) ClearFlags(f state.Flag) {
	o.state = o.state.Without(f & state.TransactionFlags)
}

// ResetTransactionFlags clears every transaction scoped flag (commit).
func (o *Object) ResetTransactionFlags() {
	o.state = o.state.ResetTransaction()
}

// TakeSnapshot records the lifecycle before the first mutation inside a
// transaction and marks the object InTransaction. It returns true only for
// the call that took the snapshot.
func (o *Object) TakeSnapshot() bool {
	if o.state.Has(state.InTransaction) {
		return false
	}
	o.snapshot = o.state.Lifecycle
	o.SetTransactionFlag(state.InTransaction)
	return true
}

// RestoreSnapshot reverts the lifecycle to the transaction snapshot, if one
// was taken, and clears every transaction scoped flag (rollback).
func (o *Object) RestoreSnapshot() state.Lifecycle {
	if o.state.Has(state.InTransaction) {
		o.state = o.state.WithLifecycle(o.snapshot)
	}
	o.state = o.state.ResetTransaction()
	return o.state.Lifecycle
}
