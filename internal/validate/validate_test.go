package validate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dupesmith/dupesmith/internal/normalize"
)

func TestCheckDetectsValidAndInvalidGo(t *testing.T) {
	g := New(normalize.New())

	state, err := g.Check("a.go", "go", []byte("package a\nfunc F() {}\n"))
	require.NoError(t, err)
	assert.False(t, state.HasSyntaxError)

	state, err = g.Check("b.go", "go", []byte("package a\nfunc F() {\n"))
	require.NoError(t, err)
	assert.True(t, state.HasSyntaxError)
}
