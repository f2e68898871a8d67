package session

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"trackdb/internal/core/apperror"
	appctx "trackdb/internal/core/context"
	"trackdb/internal/core/entity"
	"trackdb/internal/core/id"
	"trackdb/internal/dbo"
	"trackdb/internal/dbo/state"
	"trackdb/internal/infrastructure/storage/postgres"
)

// flushPhases is the statement order within one flush round: deletes free
// unique keys before inserts reuse them, inserts assign identities before
// updates reference them.
var flushPhases = []state.Operation{state.OpDelete, state.OpInsert, state.OpUpdate}

// FlushStats counts the statements one flush issued.
type FlushStats struct {
	Deletes int
	Inserts int
	Updates int
	Rounds  int
}

// RunInTransaction runs fn in a store transaction, flushes, and commits.
// Any failure from fn, the flush or the commit rolls back every object the
// transaction touched. Nested calls run fn inside the outer transaction.
func (s *Session) RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if s.inTx {
		return fn(ctx)
	}
	if err := s.checkOpen(); err != nil {
		return err
	}
	if appctx.GetTrace(ctx) == nil {
		ctx = appctx.WithTrace(ctx, appctx.NewTraceContext(s.cfg.Name))
	}

	s.inTx = true
	err := s.store.RunInTransaction(ctx, func(txCtx context.Context) error {
		if err := fn(txCtx); err != nil {
			return err
		}
		return s.flushInto(txCtx)
	})
	s.inTx = false

	if err != nil {
		s.rollback(ctx, err)
		return err
	}
	s.commit(ctx)
	return nil
}

// Flush writes every pending change. Outside a transaction it opens one and
// commits it; inside one it only issues the statements.
func (s *Session) Flush(ctx context.Context) error {
	if s.flushing {
		return apperror.NewContract("flush called while flushing")
	}
	if !s.inTx {
		return s.RunInTransaction(ctx, func(context.Context) error { return nil })
	}
	return s.flushInto(ctx)
}

func (s *Session) flushInto(ctx context.Context) error {
	stats, err := s.flush(ctx)
	if stats.Rounds > 0 {
		s.lastFlush = stats
	}
	return err
}

func (s *Session) flush(ctx context.Context) (FlushStats, error) {
	var stats FlushStats
	if s.pending.len() == 0 {
		return stats, nil
	}

	ctx, span := tracer.Start(ctx, "session.flush",
		trace.WithAttributes(
			attribute.String("session", s.cfg.Name),
			attribute.String("trace_id", appctx.GetTraceID(ctx)),
			attribute.Int("pending", s.pending.len()),
		))
	defer span.End()

	s.flushing = true
	defer func() { s.flushing = false }()

	q := s.store.GetQuerier(ctx)
	for s.pending.len() > 0 {
		if stats.Rounds == s.cfg.MaxFlushRounds {
			err := apperror.NewInternal(fmt.Errorf("flush did not settle after %d rounds", stats.Rounds))
			span.RecordError(err)
			span.SetStatus(codes.Error, "flush did not settle")
			return stats, err
		}
		stats.Rounds++

		batch := s.pending.ordered()
		for _, phase := range flushPhases {
			for _, o := range batch {
				if !s.pending.contains(o) || o.State().PendingOperation() != phase {
					continue
				}
				if err := s.flushOne(ctx, q, o, phase); err != nil {
					span.RecordError(err)
					span.SetStatus(codes.Error, "flush failed")
					return stats, err
				}
				switch phase {
				case state.OpDelete:
					stats.Deletes++
				case state.OpInsert:
					stats.Inserts++
				case state.OpUpdate:
					stats.Updates++
				}
			}
		}

		// Whatever is left in this batch has nothing to write.
		for _, o := range batch {
			if s.pending.contains(o) && o.State().PendingOperation() == state.OpNone {
				s.pending.remove(o)
				o.ClearFlags(state.NeedsSave | state.NeedsDelete)
				o.DecRef()
			}
		}
	}

	s.log.WithContext(ctx).Debugw("flush completed",
		"deletes", stats.Deletes,
		"inserts", stats.Inserts,
		"updates", stats.Updates,
		"rounds", stats.Rounds,
	)
	return stats, nil
}

// flushOne issues the statement for o and applies the lifecycle transition.
// o leaves the pending set before the statement runs, so a mark made while
// it runs enqueues it again for the next round.
func (s *Session) flushOne(ctx context.Context, q postgres.Querier, o *dbo.Object, op state.Operation) error {
	m := s.tracked[o]
	rec, ok := o.Payload().(entity.Record)
	if m == nil || !ok {
		return apperror.NewContract("pending object is not tracked by this session")
	}

	s.touch(o)
	s.pending.remove(o)
	defer o.DecRef()

	switch op {
	case state.OpDelete:
		o.ClearFlags(state.NeedsDelete | state.NeedsSave)
		if err := s.exec(ctx, q, m, rec, m.DeleteSQL, "delete"); err != nil {
			return err
		}
		return o.SetState(state.Deleted)

	case state.OpInsert:
		o.ClearFlags(state.NeedsSave)
		o.SetIdentity(id.Ensure(rec.GetID(), s.cfg.NewID))
		rec.SetID(o.ID())
		if m.Versioned() {
			rec.SetVersion(1)
		}
		if err := s.exec(ctx, q, m, rec, m.InsertSQL, "insert"); err != nil {
			return err
		}
		if err := o.SetState(state.Persisted); err != nil {
			return err
		}
		s.identity[identityKey{m.Table(), o.ID()}] = o
		return nil

	case state.OpUpdate:
		o.ClearFlags(state.NeedsSave)
		if err := s.exec(ctx, q, m, rec, m.UpdateSQL, "update"); err != nil {
			return err
		}
		if m.Versioned() {
			rec.SetVersion(rec.GetVersion() + 1)
		}
		return nil
	}
	return nil
}

func (s *Session) exec(
	ctx context.Context,
	q postgres.Querier,
	m Mapper,
	rec entity.Record,
	build func(entity.Record) (string, []any, error),
	verb string,
) error {
	sql, args, err := build(rec)
	if err != nil {
		return err
	}
	tag, err := q.Exec(ctx, sql, args...)
	if err != nil {
		return apperror.NewDatabase(verb+" "+m.Table(), err).WithDetail("id", rec.GetID().String())
	}
	if verb != "insert" && m.Versioned() && tag.RowsAffected() == 0 {
		return apperror.NewConcurrentModification(m.Table(), rec.GetID().String())
	}
	return nil
}

// commit ends the transaction for every touched object.
func (s *Session) commit(ctx context.Context) {
	for o := range s.touched {
		o.ResetTransactionFlags()
		if o.Lifecycle() == state.Deleted {
			m := s.tracked[o]
			key := identityKey{m.Table(), o.ID()}
			if s.identity[key] == o {
				delete(s.identity, key)
			}
		}
	}
	n := len(s.touched)
	s.touched = make(map[*dbo.Object]txRecord)
	s.log.WithContext(ctx).Debugw("transaction committed", "objects", n)
}

// rollback reverts every touched object to its pre-transaction lifecycle and
// clears its transaction flags. Objects that revert to New lose the identity
// the flush assigned them.
func (s *Session) rollback(ctx context.Context, cause error) {
	touched := s.touched
	s.touched = make(map[*dbo.Object]txRecord)

	var release []*dbo.Object
	for o, rec := range touched {
		m := s.tracked[o]
		key := identityKey{m.Table(), o.ID()}

		if o.RestoreSnapshot() == state.New && s.identity[key] == o {
			delete(s.identity, key)
		}
		o.SetIdentity(rec.identity)
		if r, ok := o.Payload().(entity.Record); ok {
			r.SetID(rec.payloadID)
			r.SetVersion(rec.version)
		}
		if s.pending.remove(o) {
			release = append(release, o)
		}
	}
	for _, o := range release {
		o.DecRef()
	}

	s.log.WithContext(ctx).Warnw("transaction rolled back",
		"objects", len(touched),
		"error", cause,
	)
}
