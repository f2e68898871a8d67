// Package entity provides the column set shared by every mapped record.
package entity

import (
	"trackdb/internal/core/id"
)

// Record is implemented by payloads the session can persist through a TableMapper.
// BaseEntity satisfies it; embed BaseEntity in every mapped struct.
type Record interface {
	GetID() id.ID
	SetID(id.ID)
	GetVersion() int
	SetVersion(int)
}

// BaseEntity contains the primary key and optimistic-locking version columns.
type BaseEntity struct {
	// ID is the primary key (UUIDv7), nil until the first insert
	ID id.ID `db:"id" json:"id"`

	// Version for optimistic locking (incremented on each update)
	Version int `db:"version" json:"version"`
}

// GetID returns the primary key.
func (b *BaseEntity) GetID() id.ID {
	return b.ID
}

// SetID assigns the primary key (used by the session on insert).
func (b *BaseEntity) SetID(v id.ID) {
	b.ID = v
}

// GetVersion returns the last flushed version.
func (b *BaseEntity) GetVersion() int {
	return b.Version
}

// SetVersion updates the version number (used by the session after a flush).
func (b *BaseEntity) SetVersion(v int) {
	b.Version = v
}
