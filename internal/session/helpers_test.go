package session

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"trackdb/internal/core/apperror"
	"trackdb/internal/core/entity"
	"trackdb/internal/core/id"
	"trackdb/internal/infrastructure/storage/postgres"
	"trackdb/pkg/logger"
)

type product struct {
	entity.BaseEntity
	SKU  string `db:"sku"`
	Name string `db:"name"`
}

type execCall struct {
	sql  string
	args []any
}

// fakeDB is a Store whose transactions always run and whose statements are
// recorded instead of executed.
type fakeDB struct {
	execs     []execCall
	failOn    string // statement prefix that returns an error
	zeroRows  string // statement prefix that affects no rows
	commits   int
	rollbacks int
}

var errBoom = errors.New("boom")

func (f *fakeDB) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	f.execs = append(f.execs, execCall{sql: sql, args: args})
	if f.failOn != "" && strings.HasPrefix(sql, f.failOn) {
		return pgconn.CommandTag{}, errBoom
	}
	verb := strings.Fields(sql)[0]
	if f.zeroRows != "" && strings.HasPrefix(sql, f.zeroRows) {
		return pgconn.NewCommandTag(verb + " 0"), nil
	}
	if verb == "INSERT" {
		return pgconn.NewCommandTag("INSERT 0 1"), nil
	}
	return pgconn.NewCommandTag(verb + " 1"), nil
}

func (f *fakeDB) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return nil, errors.New("fakeDB: Query not supported")
}

func (f *fakeDB) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	return nil
}

func (f *fakeDB) RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := fn(ctx); err != nil {
		f.rollbacks++
		return err
	}
	f.commits++
	return nil
}

// readOnlyDB adds read-only transactions to fakeDB.
type readOnlyDB struct {
	*fakeDB
	readOnly int
}

func (r *readOnlyDB) ReadOnly(ctx context.Context, fn func(ctx context.Context) error) error {
	r.readOnly++
	return fn(ctx)
}

func (f *fakeDB) GetQuerier(ctx context.Context) postgres.Querier {
	return f
}

func (f *fakeDB) verbs() []string {
	out := make([]string, 0, len(f.execs))
	for _, e := range f.execs {
		out = append(out, strings.Fields(e.sql)[0])
	}
	return out
}

// memMapper serves loads from memory and emits SQL through the real TableMapper.
type memMapper struct {
	*TableMapper[product, *product]
	rows  map[id.ID]product
	loads int
}

func (m *memMapper) Load(ctx context.Context, q postgres.Querier, key id.ID) (entity.Record, error) {
	m.loads++
	row, ok := m.rows[key]
	if !ok {
		return nil, apperror.NewNotFound(m.Table(), key.String())
	}
	return &row, nil
}

type fixture struct {
	db      *fakeDB
	mapper  *memMapper
	session *Session
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := &fakeDB{}
	m := &memMapper{
		TableMapper: NewTableMapper[product]("demo_products"),
		rows:        make(map[id.ID]product),
	}
	s := New(db, Config{Name: t.Name(), Logger: logger.Nop()})
	Register[product](s, m)
	return &fixture{db: db, mapper: m, session: s}
}

// seed stores a persisted row and returns its key.
func (f *fixture) seed(sku string) id.ID {
	key := id.New()
	f.mapper.rows[key] = product{
		BaseEntity: entity.BaseEntity{ID: key, Version: 1},
		SKU:        sku,
		Name:       "Seeded " + sku,
	}
	return key
}
