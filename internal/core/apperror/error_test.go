package apperror

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAppError_WrappedCodeLookup(t *testing.T) {
	err := fmt.Errorf("flush product: %w", NewConcurrentModification("demo_products", "42"))

	assert.True(t, IsConcurrentModification(err))
	assert.False(t, IsNotFound(err))

	appErr, ok := AsAppError(err)
	assert.True(t, ok)
	assert.Equal(t, "demo_products", appErr.Details["entity"])
}

func TestAppError_ErrorIncludesCause(t *testing.T) {
	cause := errors.New("connection reset")
	err := NewDatabase("insert demo_products", cause)

	assert.Equal(t, "DATABASE_ERROR: insert demo_products (caused by: connection reset)", err.Error())
	assert.ErrorIs(t, err, cause)
}

func TestAppError_HandleFaults(t *testing.T) {
	assert.True(t, IsOrphanedHandle(NewOrphanedHandle()))
	assert.True(t, IsNullHandle(NewNullHandle()))
	assert.False(t, IsNullHandle(errors.New("plain")))
	assert.False(t, IsAppError(nil))
}

func TestAppError_InternalKeepsCause(t *testing.T) {
	cause := errors.New("flush did not settle")
	err := NewInternal(cause)

	assert.Equal(t, CodeInternal, err.Code)
	assert.ErrorIs(t, err, cause)
	assert.Same(t, err, err.WithCause(cause))
}
