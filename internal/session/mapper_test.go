package session

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trackdb/internal/core/apperror"
	"trackdb/internal/core/entity"
	"trackdb/internal/core/id"
)

func TestTableMapper_Columns(t *testing.T) {
	m := NewTableMapper[product]("demo_products")

	assert.Equal(t, []string{"id", "version", "sku", "name"}, m.Columns())
	assert.True(t, m.Versioned())
}

func TestTableMapper_UpdateSQL(t *testing.T) {
	m := NewTableMapper[product]("demo_products")
	key := id.New()
	rec := &product{BaseEntity: entity.BaseEntity{ID: key, Version: 3}, SKU: "S", Name: "N"}

	sql, args, err := m.UpdateSQL(rec)
	require.NoError(t, err)

	assert.Equal(t, "UPDATE demo_products SET name = $1, sku = $2, version = version + 1 WHERE id = $3 AND version = $4", sql)
	assert.Equal(t, []any{"N", "S", key.String(), 3}, args)
}

func TestTableMapper_UnversionedUpdateAndDelete(t *testing.T) {
	m := NewTableMapper[product]("demo_products").Unversioned()
	key := id.New()
	rec := &product{BaseEntity: entity.BaseEntity{ID: key, Version: 3}, SKU: "S", Name: "N"}

	sql, args, err := m.UpdateSQL(rec)
	require.NoError(t, err)
	assert.Equal(t, "UPDATE demo_products SET name = $1, sku = $2 WHERE id = $3", sql)
	assert.Equal(t, []any{"N", "S", key.String()}, args)

	sql, args, err = m.DeleteSQL(rec)
	require.NoError(t, err)
	assert.Equal(t, "DELETE FROM demo_products WHERE id = $1", sql)
	assert.Equal(t, []any{key.String()}, args)
}

func TestTableMapper_InsertSQL(t *testing.T) {
	m := NewTableMapper[product]("demo_products")
	key := id.New()
	rec := &product{BaseEntity: entity.BaseEntity{ID: key, Version: 1}, SKU: "S", Name: "N"}

	sql, args, err := m.InsertSQL(rec)
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(sql, "INSERT INTO demo_products "), sql)
	for _, col := range []string{"id", "version", "sku", "name"} {
		assert.Contains(t, sql, col)
	}
	assert.Len(t, args, 4)
	assert.Contains(t, args, key)
}

func TestTableMapper_SelectSQL(t *testing.T) {
	m := NewTableMapper[product]("demo_products")
	key := id.New()

	sql, args, err := m.SelectSQL(key)
	require.NoError(t, err)

	assert.Equal(t, "SELECT id, version, sku, name FROM demo_products WHERE id = $1", sql)
	assert.Equal(t, []any{key.String()}, args)
}

func TestTableMapper_RejectsForeignRecord(t *testing.T) {
	type other struct {
		entity.BaseEntity
		Code string `db:"code"`
	}
	m := NewTableMapper[product]("demo_products")

	_, _, err := m.DeleteSQL(&other{})

	assert.True(t, apperror.HasCode(err, apperror.CodeContract))
}

func TestTableMapper_LoadWrapsQueryError(t *testing.T) {
	m := NewTableMapper[product]("demo_products")

	_, err := m.Load(context.Background(), &fakeDB{}, id.New())

	assert.True(t, apperror.HasCode(err, apperror.CodeDatabase))
}
