package postgres

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"trackdb/internal/core/entity"
	"trackdb/internal/core/id"
)

type mockRecord struct {
	entity.BaseEntity
	Code    string `db:"code"`
	Name    string `db:"name"`
	Comment string `db:"-"`
	scratch int
}

func TestExtractDBColumns_FlattensBaseEntity(t *testing.T) {
	cols := ExtractDBColumns[mockRecord]()

	assert.Equal(t, []string{"id", "version", "code", "name"}, cols)
}

func TestStructToMap(t *testing.T) {
	rec := &mockRecord{
		BaseEntity: entity.BaseEntity{ID: id.New(), Version: 5},
		Code:       "SKU-1",
		Name:       "Widget",
		Comment:    "ignored",
		scratch:    1,
	}

	m := StructToMap(rec)

	assert.Len(t, m, 4)
	assert.Equal(t, rec.ID, m["id"])
	assert.Equal(t, 5, m["version"])
	assert.Equal(t, "SKU-1", m["code"])
	assert.Equal(t, "Widget", m["name"])
}

func TestStructToMap_NonStruct(t *testing.T) {
	var nilRec *mockRecord
	assert.Nil(t, StructToMap(nilRec))
	assert.Nil(t, StructToMap(42))
}

func TestPickColumns(t *testing.T) {
	data := map[string]any{"id": 1, "version": 2, "code": "c", "extra": true}

	got := PickColumns(data, []string{"id", "version", "code", "name"}, "id", "version")

	assert.Equal(t, map[string]any{"code": "c"}, got)
}
