// Package validate provides the fast local syntax gate the applicator runs
// before and after writing edits, ahead of any round-trip through the
// external matcher's own parser.
package validate

import (
	"github.com/dupesmith/dupesmith/internal/normalize"
)

// Gate wraps a Normalizer to check source text for syntax errors per
// language.
type Gate struct {
	normalizer *normalize.Normalizer
}

// New returns a Gate backed by n.
func New(n *normalize.Normalizer) *Gate {
	return &Gate{normalizer: n}
}

// ParseState is a pre/post-write snapshot used to decide whether a rewrite
// resolved (or introduced) a structural violation.
type ParseState struct {
	FilePath    string
	HasSyntaxError bool
}

// Check parses content as language and reports whether it contains a
// syntax error.
func (g *Gate) Check(filePath, language string, content []byte) (ParseState, error) {
	hasErr, err := g.normalizer.HasSyntaxError(language, content)
	if err != nil {
		return ParseState{}, err
	}
	return ParseState{FilePath: filePath, HasSyntaxError: hasErr}, nil
}
