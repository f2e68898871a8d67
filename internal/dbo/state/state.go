// Package state models the lifecycle of a tracked object.
//
// A State is a lifecycle (New, Persisted or Deleted) plus a set of flags.
// NeedsSave, NeedsDelete and InTransaction are transaction scoped and are
// cleared at every transaction boundary. Orphaned is terminal.
package state

import "strings"

// Lifecycle is the durable classification of a tracked entity.
type Lifecycle uint8

const (
	// New means no row exists in storage yet.
	New Lifecycle = iota
	// Persisted means a row exists and the identity is valid.
	Persisted
	// Deleted means the row existed and its deletion has been issued.
	Deleted
)

func (l Lifecycle) String() string {
	switch l {
	case New:
		return "new"
	case Persisted:
		return "persisted"
	case Deleted:
		return "deleted"
	default:
		return "unknown"
	}
}

// Flag is a transient or terminal marker carried next to the lifecycle.
type Flag uint8

const (
	NeedsSave Flag = 1 << iota
	NeedsDelete
	InTransaction
	Orphaned
)

// TransactionFlags are cleared on commit and rollback.
const TransactionFlags = NeedsSave | NeedsDelete | InTransaction

var flagNames = []struct {
	flag Flag
	name string
}{
	{NeedsSave, "needs_save"},
	{NeedsDelete, "needs_delete"},
	{InTransaction, "in_transaction"},
	{Orphaned, "orphaned"},
}

func (f Flag) String() string {
	if f == 0 {
		return "none"
	}
	var parts []string
	for _, fn := range flagNames {
		if f&fn.flag != 0 {
			parts = append(parts, fn.name)
		}
	}
	return strings.Join(parts, "|")
}

// State is the full state of a tracked object. The zero value is a New
// object with no flags.
type State struct {
	Lifecycle Lifecycle
	Flags     Flag
}

// Has reports whether every flag in f is set.
func (s State) Has(f Flag) bool {
	return s.Flags&f == f
}

// HasAny reports whether at least one flag in f is set.
func (s State) HasAny(f Flag) bool {
	return s.Flags&f != 0
}

// With returns s with f set.
func (s State) With(f Flag) State {
	s.Flags |= f
	return s
}

// Without returns s with f cleared.
func (s State) Without(f Flag) State {
	s.Flags &^= f
	return s
}

// WithLifecycle replaces the lifecycle and keeps every flag.
func (s State) WithLifecycle(l Lifecycle) State {
	s.Lifecycle = l
	return s
}

// ResetTransaction clears the transaction scoped flags.
func (s State) ResetTransaction() State {
	return s.Without(TransactionFlags)
}

// IsDeleted reports whether the row is gone or its deletion is scheduled.
func (s State) IsDeleted() bool {
	return s.Lifecycle == Deleted || s.Has(NeedsDelete)
}

// IsDirty reports whether the object belongs in a pending-flush set.
func (s State) IsDirty() bool {
	return s.HasAny(NeedsSave | NeedsDelete)
}

// IsOrphaned reports whether the session has detached the object.
func (s State) IsOrphaned() bool {
	return s.Has(Orphaned)
}

func (s State) String() string {
	return s.Lifecycle.String() + "[" + s.Flags.String() + "]"
}

// Operation is the statement kind a flush must issue for an object.
type Operation uint8

const (
	// OpNone means nothing is pending.
	OpNone Operation = iota
	OpDelete
	OpInsert
	OpUpdate
)

func (o Operation) String() string {
	switch o {
	case OpDelete:
		return "delete"
	case OpInsert:
		return "insert"
	case OpUpdate:
		return "update"
	default:
		return "none"
	}
}

// PendingOperation picks the statement a flush must emit. A scheduled delete
// wins over a pending save.
func (s State) PendingOperation() Operation {
	switch {
	case s.Has(NeedsDelete):
		return OpDelete
	case s.Has(NeedsSave) && s.Lifecycle == New:
		return OpInsert
	case s.Has(NeedsSave) && s.Lifecycle == Persisted:
		return OpUpdate
	default:
		return OpNone
	}
}
