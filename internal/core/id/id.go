// Package id provides the primary keys assigned to tracked objects.
// Keys are UUIDv7, so rows inserted by one flush sort in insertion order.
package id

import (
	"github.com/google/uuid"
)

// ID is the primary key of every mapped table.
type ID = uuid.UUID

// Generator produces identities for objects persisted by a flush.
type Generator func() ID

// New generates a time-ordered UUIDv7, falling back to a random v4 when the
// clock source fails.
func New() ID {
	v, err := uuid.NewV7()
	if err != nil {
		return uuid.New()
	}
	return v
}

// Ensure returns v unless it is nil, in which case gen (or New) supplies one.
func Ensure(v ID, gen Generator) ID {
	if !IsNil(v) {
		return v
	}
	if gen == nil {
		return New()
	}
	return gen()
}

// Parse converts string to ID with validation.
func Parse(s string) (ID, error) {
	return uuid.Parse(s)
}

// MustParse converts string to ID, panics on error.
// Use only for constants and tests.
func MustParse(s string) ID {
	return uuid.MustParse(s)
}

// Nil returns the zero identity carried by objects that were never persisted.
func Nil() ID {
	return uuid.Nil
}

// IsNil checks if ID is zero-value.
func IsNil(v ID) bool {
	return v == uuid.Nil
}
