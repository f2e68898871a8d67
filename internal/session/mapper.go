package session

import (
	"context"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"trackdb/internal/core/apperror"
	"trackdb/internal/core/entity"
	"trackdb/internal/core/id"
	"trackdb/internal/infrastructure/storage/postgres"
)

// Mapper emits the statements for one entity type. The session owns one
// Mapper per registered type and dispatches every flush step to it.
type Mapper interface {
	// Table is the mapped table name; it also scopes the identity map.
	Table() string

	// Versioned reports whether updates and deletes carry an optimistic lock.
	Versioned() bool

	InsertSQL(rec entity.Record) (string, []any, error)
	UpdateSQL(rec entity.Record) (string, []any, error)
	DeleteSQL(rec entity.Record) (string, []any, error)

	// Load reads the row with the given key. It returns a NOT_FOUND AppError
	// when no row matches.
	Load(ctx context.Context, q postgres.Querier, key id.ID) (entity.Record, error)
}

// TableMapper maps a db-tagged struct T embedding entity.BaseEntity to a table.
type TableMapper[T any, PT interface {
	*T
	entity.Record
}] struct {
	table     string
	columns   []string
	versioned bool
}

// NewTableMapper creates a versioned mapper for T. Columns come from T's db tags.
//
//	products := session.NewTableMapper[Product]("demo_products")
func NewTableMapper[T any, PT interface {
	*T
	entity.Record
}](table string) *TableMapper[T, PT] {
	return &TableMapper[T, PT]{
		table:     table,
		columns:   postgres.ExtractDBColumns[T](),
		versioned: true,
	}
}

// Unversioned turns optimistic locking off: updates and deletes match on id only.
func (m *TableMapper[T, PT]) Unversioned() *TableMapper[T, PT] {
	m.versioned = false
	return m
}

// Table returns the mapped table name.
func (m *TableMapper[T, PT]) Table() string { return m.table }

// Versioned reports whether optimistic locking is on.
func (m *TableMapper[T, PT]) Versioned() bool { return m.versioned }

// Columns returns the mapped columns in field order.
func (m *TableMapper[T, PT]) Columns() []string { return m.columns }

// Builder returns a new squirrel builder with PostgreSQL placeholder format.
func (m *TableMapper[T, PT]) Builder() squirrel.StatementBuilderType {
	return squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)
}

func (m *TableMapper[T, PT]) values(rec entity.Record) (map[string]any, error) {
	if _, ok := rec.(PT); !ok {
		return nil, apperror.NewContract(fmt.Sprintf("%s mapper cannot handle %T", m.table, rec))
	}
	data := postgres.StructToMap(rec)
	if len(data) == 0 {
		return nil, fmt.Errorf("no db tags found in %T", rec)
	}
	return data, nil
}

// InsertSQL builds the INSERT for rec, including id and version.
func (m *TableMapper[T, PT]) InsertSQL(rec entity.Record) (string, []any, error) {
	data, err := m.values(rec)
	if err != nil {
		return "", nil, err
	}
	skip := []string{}
	if !m.versioned {
		skip = append(skip, "version")
	}

	sql, args, err := m.Builder().
		Insert(m.table).
		SetMap(postgres.PickColumns(data, m.columns, skip...)).
		ToSql()
	if err != nil {
		return "", nil, fmt.Errorf("build insert: %w", err)
	}
	return sql, args, nil
}

// UpdateSQL builds the UPDATE for rec. When versioned it bumps the version
// and matches the version the object was loaded with.
func (m *TableMapper[T, PT]) UpdateSQL(rec entity.Record) (string, []any, error) {
	data, err := m.values(rec)
	if err != nil {
		return "", nil, err
	}

	q := m.Builder().
		Update(m.table).
		SetMap(postgres.PickColumns(data, m.columns, "id", "version")).
		Where(squirrel.Eq{"id": rec.GetID()})
	if m.versioned {
		q = q.Set("version", squirrel.Expr("version + 1")).
			Where(squirrel.Eq{"version": rec.GetVersion()})
	}

	sql, args, err := q.ToSql()
	if err != nil {
		return "", nil, fmt.Errorf("build update: %w", err)
	}
	return sql, args, nil
}

// DeleteSQL builds the DELETE for rec.
func (m *TableMapper[T, PT]) DeleteSQL(rec entity.Record) (string, []any, error) {
	if _, err := m.values(rec); err != nil {
		return "", nil, err
	}

	q := m.Builder().
		Delete(m.table).
		Where(squirrel.Eq{"id": rec.GetID()})
	if m.versioned {
		q = q.Where(squirrel.Eq{"version": rec.GetVersion()})
	}

	sql, args, err := q.ToSql()
	if err != nil {
		return "", nil, fmt.Errorf("build delete: %w", err)
	}
	return sql, args, nil
}

// SelectSQL builds the single-row SELECT used by Load.
func (m *TableMapper[T, PT]) SelectSQL(key id.ID) (string, []any, error) {
	sql, args, err := m.Builder().
		Select(m.columns...).
		From(m.table).
		Where(squirrel.Eq{"id": key}).
		ToSql()
	if err != nil {
		return "", nil, fmt.Errorf("build select: %w", err)
	}
	return sql, args, nil
}

// Load reads one row into a fresh T.
func (m *TableMapper[T, PT]) Load(ctx context.Context, q postgres.Querier, key id.ID) (entity.Record, error) {
	sql, args, err := m.SelectSQL(key)
	if err != nil {
		return nil, err
	}

	dst := PT(new(T))
	if err := pgxscan.Get(ctx, q, dst, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, apperror.NewNotFound(m.table, key.String())
		}
		return nil, apperror.NewDatabase("load "+m.table, err)
	}
	return dst, nil
}
