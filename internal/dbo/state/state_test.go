package state

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestState_WithLifecycleKeepsFlags(t *testing.T) {
	s := State{Lifecycle: New}.With(NeedsSave | InTransaction)

	s = s.WithLifecycle(Persisted)

	assert.Equal(t, Persisted, s.Lifecycle)
	assert.True(t, s.Has(NeedsSave|InTransaction))
}

func TestState_ResetTransactionKeepsOrphaned(t *testing.T) {
	s := State{Lifecycle: Persisted}.With(NeedsDelete | InTransaction | Orphaned)

	s = s.ResetTransaction()

	assert.Equal(t, Orphaned, s.Flags)
	assert.True(t, s.IsOrphaned())
	assert.False(t, s.IsDirty())
}

func TestState_PendingOperation(t *testing.T) {
	tests := []struct {
		name  string
		state State
		want  Operation
	}{
		{"clean new", State{Lifecycle: New}, OpNone},
		{"dirty new", State{Lifecycle: New, Flags: NeedsSave}, OpInsert},
		{"dirty persisted", State{Lifecycle: Persisted, Flags: NeedsSave}, OpUpdate},
		{"delete wins over save", State{Lifecycle: Persisted, Flags: NeedsSave | NeedsDelete}, OpDelete},
		{"already deleted", State{Lifecycle: Deleted, Flags: NeedsSave}, OpNone},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.state.PendingOperation())
		})
	}
}

func TestState_IsDeleted(t *testing.T) {
	assert.False(t, State{Lifecycle: Persisted}.IsDeleted())
	assert.True(t, State{Lifecycle: Persisted, Flags: NeedsDelete}.IsDeleted())
	assert.True(t, State{Lifecycle: Deleted}.IsDeleted())
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "new[none]", State{}.String())
	assert.Equal(t, "persisted[needs_save|in_transaction]",
		State{Lifecycle: Persisted, Flags: NeedsSave | InTransaction}.String())
}
