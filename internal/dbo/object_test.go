package dbo

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trackdb/internal/core/apperror"
	"trackdb/internal/dbo/state"
)

// fakeSession records every call an Object makes into its session.
type fakeSession struct {
	pending   map[*Object]bool
	enqueues  int
	discarded []*Object
	forgotten []*Object
	flushing  bool
}

func newFakeSession() *fakeSession {
	return &fakeSession{pending: make(map[*Object]bool)}
}

func (s *fakeSession) EnqueueForFlush(o *Object) {
	if !s.pending[o] {
		s.enqueues++
	}
	s.pending[o] = true
}

func (s *fakeSession) DiscardPending(o *Object) {
	delete(s.pending, o)
	s.discarded = append(s.discarded, o)
}

func (s *fakeSession) IsFlushing() bool { return s.flushing }

func (s *fakeSession) Forget(o *Object) {
	delete(s.pending, o)
	s.forgotten = append(s.forgotten, o)
}

type item struct {
	Name string
}

func attached(t *testing.T, s *fakeSession, lifecycle state.Lifecycle) *Object {
	t.Helper()
	o := NewObject(&item{Name: "widget"}, lifecycle)
	require.NoError(t, o.Attach(s))
	o.IncRef()
	return o
}

func TestObject_MarkDirtyEnqueuesOnce(t *testing.T) {
	s := newFakeSession()
	o := attached(t, s, state.New)

	for i := 0; i < 5; i++ {
		require.NoError(t, o.MarkDirty())
	}

	assert.Equal(t, 1, s.enqueues)
	assert.True(t, o.State().Has(state.NeedsSave))
	assert.True(t, s.pending[o])
}

func TestObject_MarkDirtyWithoutSession(t *testing.T) {
	o := NewObject(&item{}, state.New)

	require.NoError(t, o.MarkDirty())

	assert.True(t, o.State().Has(state.NeedsSave))
	assert.Nil(t, o.Session())
}

func TestObject_MarkDirtyIgnoredOnceDeleted(t *testing.T) {
	s := newFakeSession()

	deleted := attached(t, s, state.Deleted)
	require.NoError(t, deleted.MarkDirty())
	assert.False(t, deleted.State().Has(state.NeedsSave))

	scheduled := attached(t, s, state.Persisted)
	require.NoError(t, scheduled.Remove())
	require.NoError(t, scheduled.MarkDirty())
	assert.False(t, scheduled.State().Has(state.NeedsSave))
	assert.True(t, scheduled.State().Has(state.NeedsDelete))
}

func TestObject_RemovePersisted(t *testing.T) {
	s := newFakeSession()
	o := attached(t, s, state.Persisted)

	require.NoError(t, o.Remove())
	require.NoError(t, o.Remove())

	assert.True(t, o.State().Has(state.NeedsDelete))
	assert.Equal(t, state.Persisted, o.Lifecycle())
	assert.Equal(t, 1, s.enqueues)
	assert.Same(t, s, o.Session())
}

func TestObject_RemoveNewDiscardsFromSession(t *testing.T) {
	s := newFakeSession()
	o := attached(t, s, state.New)
	require.NoError(t, o.MarkDirty())

	require.NoError(t, o.Remove())

	assert.False(t, s.pending[o])
	assert.Equal(t, []*Object{o}, s.discarded)
	assert.Nil(t, o.Session())
	assert.False(t, o.State().IsDirty())
	assert.Equal(t, state.New, o.Lifecycle())
}

func TestObject_RemoveNoOps(t *testing.T) {
	detachedNew := NewObject(&item{}, state.New)
	require.NoError(t, detachedNew.Remove())
	assert.Equal(t, state.State{}, detachedNew.State())

	s := newFakeSession()
	deleted := attached(t, s, state.Deleted)
	require.NoError(t, deleted.Remove())
	assert.False(t, deleted.State().Has(state.NeedsDelete))
	assert.Zero(t, s.enqueues)
}

func TestObject_OrphanedMutationsFault(t *testing.T) {
	s := newFakeSession()
	o := attached(t, s, state.Persisted)
	o.Detach()
	before := o.State()

	err := o.MarkDirty()
	assert.True(t, apperror.IsOrphanedHandle(err))

	err = o.Remove()
	assert.True(t, apperror.IsOrphanedHandle(err))

	err = o.Attach(s)
	assert.True(t, apperror.IsOrphanedHandle(err))

	assert.Equal(t, before, o.State())
	assert.Nil(t, o.Session())
	assert.Zero(t, s.enqueues)
}

func TestObject_DecRefToZeroDestroysOnce(t *testing.T) {
	s := newFakeSession()
	o := attached(t, s, state.Persisted)
	o.IncRef()

	o.DecRef()
	assert.False(t, o.IsDestroyed())

	o.DecRef()
	assert.True(t, o.IsDestroyed())
	assert.Equal(t, []*Object{o}, s.forgotten)
	assert.Nil(t, o.Payload())
	assert.Nil(t, o.Session())

	assert.Panics(t, func() { o.DecRef() })
	assert.Panics(t, func() { o.IncRef() })
}

func TestObject_SetStateOnlyDuringFlush(t *testing.T) {
	s := newFakeSession()
	o := attached(t, s, state.New)
	require.NoError(t, o.MarkDirty())

	err := o.SetState(state.Persisted)
	assert.True(t, apperror.HasCode(err, apperror.CodeContract))
	assert.Equal(t, state.New, o.Lifecycle())

	s.flushing = true
	require.NoError(t, o.SetState(state.Persisted))
	assert.Equal(t, state.Persisted, o.Lifecycle())
	assert.True(t, o.State().Has(state.NeedsSave), "SetState keeps transaction flags")
}

func TestObject_SnapshotAndRestore(t *testing.T) {
	s := newFakeSession()
	s.flushing = true
	o := attached(t, s, state.Persisted)
	require.NoError(t, o.Remove())

	assert.True(t, o.TakeSnapshot())
	assert.True(t, o.State().Has(state.InTransaction))
	assert.False(t, o.TakeSnapshot(), "snapshot is taken once per transaction")

	require.NoError(t, o.SetState(state.Deleted))
	o.ClearFlags(state.NeedsDelete)

	snap, ok := o.Snapshot()
	assert.True(t, ok)
	assert.Equal(t, state.Persisted, snap)

	assert.Equal(t, state.Persisted, o.RestoreSnapshot())
	assert.Zero(t, o.State().Flags)
}

func TestObject_TransactionFlagsIgnoreTerminalBits(t *testing.T) {
	o := NewObject(&item{}, state.Persisted)

	o.SetTransactionFlag(state.InTransaction | state.Orphaned)
	assert.True(t, o.State().Has(state.InTransaction))
	assert.False(t, o.State().IsOrphaned())

	o.ResetTransactionFlags()
	assert.Zero(t, o.State().Flags)
}
