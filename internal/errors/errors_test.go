package errors

import (
	stderrors "errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorMessage(t *testing.T) {
	e := New(InvalidInput, "min_similarity must be in [0,1]")
	assert.Equal(t, "InvalidInput: min_similarity must be in [0,1]", e.Error())
}

func TestWrapPreservesCause(t *testing.T) {
	cause := stderrors.New("exit status 2")
	e := Wrap(ExecutionError, cause, "ast-grep exited nonzero")

	assert.ErrorIs(t, e, cause)
	assert.Contains(t, e.Error(), "exit status 2")
}

func TestIsMatchesByCode(t *testing.T) {
	e := New(Timeout, "candidate enrichment exceeded deadline")
	assert.ErrorIs(t, e, ErrTimeout)
	assert.False(t, stderrors.Is(e, ErrInvalidInput))
}

func TestCodeOf(t *testing.T) {
	e := New(IntegrityFailure, "hash mismatch for foo.go")
	code, ok := CodeOf(e)
	require.True(t, ok)
	assert.Equal(t, IntegrityFailure, code)

	_, ok = CodeOf(stderrors.New("plain error"))
	assert.False(t, ok)
}

func TestWithDetails(t *testing.T) {
	base := New(ValidationFailure, "post-apply parse failed")
	withDetails := base.WithDetails(map[string]any{"file": "foo.go", "line": 12})

	assert.Nil(t, base.Details)
	assert.Equal(t, "foo.go", withDetails.Details["file"])
}
