package postgres

import (
	"reflect"
	"sync"
)

// fieldInfo describes one db-tagged field, or an embedded struct to recurse into.
type fieldInfo struct {
	index    int
	column   string
	embedded bool
}

// typeCache holds []fieldInfo per struct type.
var typeCache sync.Map // map[reflect.Type][]fieldInfo

func fieldsOf(t reflect.Type) []fieldInfo {
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if cached, ok := typeCache.Load(t); ok {
		return cached.([]fieldInfo)
	}

	var fields []fieldInfo
	if t.Kind() == reflect.Struct {
		for i := 0; i < t.NumField(); i++ {
			f := t.Field(i)
			if f.Anonymous {
				fields = append(fields, fieldInfo{index: i, embedded: true})
				continue
			}
			tag := f.Tag.Get("db")
			if tag == "" || tag == "-" {
				continue
			}
			fields = append(fields, fieldInfo{index: i, column: tag})
		}
	}

	typeCache.Store(t, fields)
	return fields
}

// ExtractDBColumns returns the column names from "db" tags of T in field
// order, flattening embedded structs (entity.BaseEntity first when embedded first).
//
//	columns := ExtractDBColumns[Product]()
//	// ["id", "version", "sku", "name", "price"]
func ExtractDBColumns[T any]() []string {
	return columnsOf(reflect.TypeOf((*T)(nil)).Elem())
}

func columnsOf(t reflect.Type) []string {
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	var cols []string
	for _, fi := range fieldsOf(t) {
		if fi.embedded {
			cols = append(cols, columnsOf(t.Field(fi.index).Type)...)
			continue
		}
		cols = append(cols, fi.column)
	}
	return cols
}

// StructToMap converts a struct (or pointer to one) to column → value using "db" tags.
// A nil pointer or non-struct yields nil.
func StructToMap(v any) map[string]any {
	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Ptr {
		if rv.IsNil() {
			return nil
		}
		rv = rv.Elem()
	}
	if rv.Kind() != reflect.Struct {
		return nil
	}

	res := make(map[string]any)
	collect(rv, res)
	return res
}

func collect(rv reflect.Value, res map[string]any) {
	for _, fi := range fieldsOf(rv.Type()) {
		fv := rv.Field(fi.index)
		if !fi.embedded {
			res[fi.column] = fv.Interface()
			continue
		}
		for fv.Kind() == reflect.Ptr {
			if fv.IsNil() {
				break
			}
			fv = fv.Elem()
		}
		if fv.Kind() == reflect.Struct {
			collect(fv, res)
		}
	}
}

// PickColumns returns the entries of data whose keys are in cols, skipping
// any column listed in skip.
func PickColumns(data map[string]any, cols []string, skip ...string) map[string]any {
	out := make(map[string]any, len(cols))
outer:
	for _, col := range cols {
		for _, s := range skip {
			if col == s {
				continue outer
			}
		}
		if val, ok := data[col]; ok {
			out[col] = val
		}
	}
	return out
}
