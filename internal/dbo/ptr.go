package dbo

import (
	"fmt"

	"trackdb/internal/core/apperror"
	"trackdb/internal/core/id"
	"trackdb/internal/dbo/state"
)

// Ptr is a counted handle to an Object whose payload is a *T.
//
// Every non-null Ptr holds one reference. Clone takes another one, Release
// gives it back, Move hands it to a new Ptr without touching the count.
// Copying a Ptr struct by value does not take a reference; always pass *Ptr.
type Ptr[T any] struct {
	obj *Object
}

// NewPtr returns a handle to o, taking one reference. A nil o yields a null handle.
func NewPtr[T any](o *Object) *Ptr[T] {
	if o != nil {
		o.IncRef()
	}
	return &Ptr[T]{obj: o}
}

// Null returns a handle that points nowhere.
func Null[T any]() *Ptr[T] {
	return &Ptr[T]{}
}

// IsNull reports whether p points nowhere.
func (p *Ptr[T]) IsNull() bool {
	return p == nil || p.obj == nil
}

// Object returns the tracked object, or nil for a null handle.
func (p *Ptr[T]) Object() *Object {
	if p == nil {
		return nil
	}
	return p.obj
}

// Clone returns a second handle to the same object.
func (p *Ptr[T]) Clone() *Ptr[T] {
	return NewPtr[T](p.Object())
}

// Move transfers the reference to a new handle and leaves p null.
func (p *Ptr[T]) Move() *Ptr[T] {
	q := &Ptr[T]{obj: p.Object()}
	if p != nil {
		p.obj = nil
	}
	return q
}

// Assign points p at the object other refers to. The new target is
// referenced before the old one is released, so self-assignment is safe.
func (p *Ptr[T]) Assign(other *Ptr[T]) {
	next := other.Object()
	if next != nil {
		next.IncRef()
	}
	prev := p.obj
	p.obj = next
	if prev != nil {
		prev.DecRef()
	}
}

// Release drops the reference and leaves p null. Releasing a null handle is a no-op.
func (p *Ptr[T]) Release() {
	if p == nil || p.obj == nil {
		return
	}
	o := p.obj
	p.obj = nil
	o.DecRef()
}

// Equal reports whether both handles refer to the same object.
// Two null handles are equal.
func (p *Ptr[T]) Equal(other *Ptr[T]) bool {
	return p.Object() == other.Object()
}

// Get returns the payload for reading. Orphaned objects stay readable.
func (p *Ptr[T]) Get() (*T, error) {
	if p.IsNull() {
		return nil, apperror.NewNullHandle()
	}
	v, ok := p.obj.payload.(*T)
	if !ok {
		return nil, apperror.NewContract(fmt.Sprintf("payload is %T, not *%T", p.obj.payload, *new(T)))
	}
	return v, nil
}

// Modify marks the object dirty and returns the payload for writing.
func (p *Ptr[T]) Modify() (*T, error) {
	v, err := p.Get()
	if err != nil {
		return nil, err
	}
	if err := p.obj.MarkDirty(); err != nil {
		return nil, err
	}
	return v, nil
}

// MarkDirty forwards to the object.
func (p *Ptr[T]) MarkDirty() error {
	if p.IsNull() {
		return apperror.NewNullHandle()
	}
	return p.obj.MarkDirty()
}

// Remove forwards to the object.
func (p *Ptr[T]) Remove() error {
	if p.IsNull() {
		return apperror.NewNullHandle()
	}
	return p.obj.Remove()
}

// ID returns the object's primary key, or the nil ID for a null handle.
func (p *Ptr[T]) ID() id.ID {
	if p.IsNull() {
		return id.Nil()
	}
	return p.obj.identity
}

// State returns the object's state. A null handle reports the zero State.
func (p *Ptr[T]) State() state.State {
	if p.IsNull() {
		return state.State{}
	}
	return p.obj.state
}
