// Package session tracks domain objects against a PostgreSQL store.
//
// A Session owns an identity map, a pending-flush set and the per-type
// mappers that turn tracked objects into SQL. It is the synchronization
// boundary for every object it tracks: use one Session from one goroutine at
// a time. Different sessions are independent.
package session

import (
	"context"
	"fmt"
	"reflect"

	"go.opentelemetry.io/otel"

	"trackdb/internal/core/apperror"
	"trackdb/internal/core/entity"
	"trackdb/internal/core/id"
	"trackdb/internal/core/tx"
	"trackdb/internal/dbo"
	"trackdb/internal/dbo/state"
	"trackdb/internal/infrastructure/storage/postgres"
	"trackdb/pkg/logger"
)

var tracer = otel.Tracer("trackdb/session")

// Compile-time check that Session implements the contract objects rely on.
var _ dbo.Session = (*Session)(nil)

// Store is the transactional backing store. *postgres.TxManager implements it.
type Store interface {
	tx.Manager
	GetQuerier(ctx context.Context) postgres.Querier
}

// Config holds session configuration.
type Config struct {
	// Name identifies the session in logs and traces
	Name string

	// NewID assigns primary keys to inserted objects that have none (default id.New)
	NewID id.Generator

	// MaxFlushRounds bounds how often a flush re-drains objects dirtied while it runs
	MaxFlushRounds int

	Logger *logger.Logger
}

// DefaultConfig returns the configuration used by New when fields are zero.
func DefaultConfig() Config {
	return Config{
		Name:           "session",
		NewID:          id.New,
		MaxFlushRounds: 16,
	}
}

type identityKey struct {
	table string
	id    id.ID
}

// txRecord is what rollback needs beyond the object's own lifecycle snapshot.
type txRecord struct {
	identity  id.ID
	payloadID id.ID
	version   int
}

// Session tracks objects and flushes their changes.
type Session struct {
	cfg   Config
	store Store
	log   *logger.Logger

	mappers  map[reflect.Type]Mapper
	tracked  map[*dbo.Object]Mapper
	identity map[identityKey]*dbo.Object
	pending  *pendingSet
	touched  map[*dbo.Object]txRecord

	lastFlush FlushStats

	inTx     bool
	flushing bool
	closed   bool
}

// New creates a session on store.
func New(store Store, cfg Config) *Session {
	def := DefaultConfig()
	if cfg.Name == "" {
		cfg.Name = def.Name
	}
	if cfg.NewID == nil {
		cfg.NewID = def.NewID
	}
	if cfg.MaxFlushRounds <= 0 {
		cfg.MaxFlushRounds = def.MaxFlushRounds
	}
	log := cfg.Logger
	if log == nil {
		log = logger.Default()
	}

	return &Session{
		cfg:      cfg,
		store:    store,
		log:      log.WithComponent("session").With("session", cfg.Name),
		mappers:  make(map[reflect.Type]Mapper),
		tracked:  make(map[*dbo.Object]Mapper),
		identity: make(map[identityKey]*dbo.Object),
		pending:  newPendingSet(),
		touched:  make(map[*dbo.Object]txRecord),
	}
}

// Register maps payloads of type *T through m.
func Register[T any](s *Session, m Mapper) {
	s.mappers[reflect.TypeOf((*T)(nil))] = m
}

func (s *Session) mapperFor(t reflect.Type) (Mapper, error) {
	m, ok := s.mappers[t]
	if !ok {
		return nil, apperror.NewContract(fmt.Sprintf("no mapper registered for %s", t))
	}
	return m, nil
}

func (s *Session) checkOpen() error {
	if s.closed {
		return apperror.NewContract("session is closed")
	}
	return nil
}

func (s *Session) track(o *dbo.Object, m Mapper) error {
	if err := o.Attach(s); err != nil {
		return err
	}
	s.tracked[o] = m
	if o.Lifecycle() == state.Persisted {
		s.identity[identityKey{m.Table(), o.ID()}] = o
	}
	return nil
}

// untrack removes every session-side reference to o except the pending
// reference, which the caller releases.
func (s *Session) untrack(o *dbo.Object) bool {
	m, ok := s.tracked[o]
	if !ok {
		return false
	}
	delete(s.tracked, o)
	delete(s.touched, o)
	key := identityKey{m.Table(), o.ID()}
	if s.identity[key] == o {
		delete(s.identity, key)
	}
	return true
}

// Add starts tracking a new entity. The object is New and scheduled for insert.
func Add[T any](s *Session, v *T) (*dbo.Ptr[T], error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	m, err := s.mapperFor(reflect.TypeOf(v))
	if err != nil {
		return nil, err
	}
	if _, ok := any(v).(entity.Record); !ok {
		return nil, apperror.NewContract(fmt.Sprintf("%T does not embed entity.BaseEntity", v))
	}

	o := dbo.NewObject(v, state.New)
	if err := s.track(o, m); err != nil {
		return nil, err
	}
	p := dbo.NewPtr[T](o)
	if err := o.MarkDirty(); err != nil {
		p.Release()
		return nil, err
	}
	return p, nil
}

// Load returns a handle to the persisted entity with the given key. An entity
// already in the identity map is returned without querying the store.
func Load[T any](ctx context.Context, s *Session, key id.ID) (*dbo.Ptr[T], error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	m, err := s.mapperFor(reflect.TypeOf((*T)(nil)))
	if err != nil {
		return nil, err
	}
	if o, ok := s.identity[identityKey{m.Table(), key}]; ok {
		return dbo.NewPtr[T](o), nil
	}

	rec, err := s.load(ctx, m, key)
	if err != nil {
		return nil, err
	}

	o := dbo.NewObject(rec, state.Persisted)
	o.SetIdentity(key)
	if err := s.track(o, m); err != nil {
		return nil, err
	}
	logger.Debug(ctx, "loaded object", "table", m.Table(), "id", key)
	return dbo.NewPtr[T](o), nil
}

// load reads one row. Outside a session transaction the read runs in a
// read-only store transaction when the store supports one.
func (s *Session) load(ctx context.Context, m Mapper, key id.ID) (entity.Record, error) {
	ro, ok := s.store.(tx.ReadOnlyManager)
	if s.inTx || !ok {
		return m.Load(ctx, s.store.GetQuerier(ctx), key)
	}
	var rec entity.Record
	err := ro.ReadOnly(ctx, func(txCtx context.Context) error {
		var err error
		rec, err = m.Load(txCtx, s.store.GetQuerier(txCtx), key)
		return err
	})
	return rec, err
}

// --- dbo.Session ---

// EnqueueForFlush registers o on the pending-flush set, taking a reference
// that the flush releases. Inside a transaction the object is snapshotted.
func (s *Session) EnqueueForFlush(o *dbo.Object) {
	if _, ok := s.tracked[o]; !ok {
		return
	}
	if s.pending.add(o) {
		o.IncRef()
	}
	if s.inTx {
		s.touch(o)
	}
}

// DiscardPending drops a never-persisted object from all tracking.
func (s *Session) DiscardPending(o *dbo.Object) {
	s.untrack(o)
	if s.pending.remove(o) {
		o.DecRef()
	}
}

// IsFlushing reports whether a flush is in progress.
func (s *Session) IsFlushing() bool {
	return s.flushing
}

// Forget drops a destroyed object from the identity map and pending set.
func (s *Session) Forget(o *dbo.Object) {
	s.untrack(o)
	s.pending.remove(o)
}

// touch takes the lazy pre-transaction snapshot of o.
func (s *Session) touch(o *dbo.Object) {
	if !o.TakeSnapshot() {
		return
	}
	rec := txRecord{identity: o.ID()}
	if r, ok := o.Payload().(entity.Record); ok {
		rec.payloadID = r.GetID()
		rec.version = r.GetVersion()
	}
	s.touched[o] = rec
}

// --- ownership ---

// Detach stops tracking o. The object becomes orphaned: its handles stay
// readable but every mutation faults. Pending work on o is dropped and no
// later rollback reaches it.
func (s *Session) Detach(o *dbo.Object) {
	if o == nil || !s.untrack(o) {
		return
	}
	o.ResetTransactionFlags()
	o.Detach()
	if s.pending.remove(o) {
		o.DecRef()
	}
}

// Close detaches every tracked object. A closed session refuses new work.
func (s *Session) Close() {
	objs := make([]*dbo.Object, 0, len(s.tracked))
	for o := range s.tracked {
		objs = append(objs, o)
	}
	for _, o := range objs {
		s.Detach(o)
	}
	s.closed = true
}

// --- introspection ---

// IsPending reports whether o is on the pending-flush set.
func (s *Session) IsPending(o *dbo.Object) bool {
	return s.pending.contains(o)
}

// PendingCount returns the size of the pending-flush set.
func (s *Session) PendingCount() int {
	return s.pending.len()
}

// Contains reports whether the session tracks o.
func (s *Session) Contains(o *dbo.Object) bool {
	_, ok := s.tracked[o]
	return ok
}

// Tracked returns the number of tracked objects.
func (s *Session) Tracked() int {
	return len(s.tracked)
}

// LastFlush returns the statement counts of the most recent flush.
func (s *Session) LastFlush() FlushStats {
	return s.lastFlush
}

// InTransaction reports whether RunInTransaction is active.
func (s *Session) InTransaction() bool {
	return s.inTx
}
