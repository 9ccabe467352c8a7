// Package normalize turns source text into a normalized token stream using
// per-language tree-sitter grammars, and derives the structural hash the
// duplication detector buckets matches by.
package normalize

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"sync"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/golang"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/python"
	"github.com/smacker/go-tree-sitter/rust"
	"github.com/smacker/go-tree-sitter/typescript/typescript"

	dserrors "github.com/dupesmith/dupesmith/internal/errors"
)

// TokenKind classifies a token for both normalization and variation
// alignment.
type TokenKind string

const (
	KindIdentifier  TokenKind = "identifier"
	KindLiteral     TokenKind = "literal"
	KindKeyword     TokenKind = "keyword"
	KindPunctuation TokenKind = "punctuation"
	KindComment     TokenKind = "comment"
)

// Token is one leaf of the parsed tree, classified for normalization.
type Token struct {
	Kind TokenKind
	Text string
	// LiteralType holds the type placeholder for KindLiteral tokens (e.g.
	// "int", "str", "float"); empty for every other kind.
	LiteralType string
}

// Normalizer tokenizes source text per language using tree-sitter. It is
// safe for concurrent use: each call takes its own parser instance from a
// per-language pool rather than sharing one across goroutines.
type Normalizer struct {
	mu     sync.Mutex
	pools  map[string][]*sitter.Parser
	langs  map[string]*sitter.Language
}

// New returns a Normalizer supporting go, python, javascript, typescript,
// and rust.
func New() *Normalizer {
	return &Normalizer{
		pools: make(map[string][]*sitter.Parser),
		langs: map[string]*sitter.Language{
			"go":         golang.GetLanguage(),
			"python":     python.GetLanguage(),
			"javascript": javascript.GetLanguage(),
			"typescript": typescript.GetLanguage(),
			"rust":       rust.GetLanguage(),
		},
	}
}

func (n *Normalizer) acquireParser(language string) (*sitter.Parser, error) {
	lang, ok := n.langs[language]
	if !ok {
		return nil, dserrors.Newf(dserrors.InvalidInput, "unsupported language: %s", language)
	}

	n.mu.Lock()
	if pool := n.pools[language]; len(pool) > 0 {
		p := pool[len(pool)-1]
		n.pools[language] = pool[:len(pool)-1]
		n.mu.Unlock()
		return p, nil
	}
	n.mu.Unlock()

	p := sitter.NewParser()
	p.SetLanguage(lang)
	return p, nil
}

func (n *Normalizer) releaseParser(language string, p *sitter.Parser) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.pools[language] = append(n.pools[language], p)
}

// identifierNodeSuffixes, literalNodeSuffixes and commentNodeSuffixes hold
// the substrings classify looks for in a lowercased tree-sitter node type
// to decide a leaf's TokenKind.
var identifierNodeSuffixes = []string{"identifier"}
var literalNodeSuffixes = []string{"literal", "string", "number", "int", "float", "rune", "char"}
var commentNodeSuffixes = []string{"comment"}

func classify(nodeType string, named bool) TokenKind {
	lower := strings.ToLower(nodeType)
	for _, s := range commentNodeSuffixes {
		if strings.Contains(lower, s) {
			return KindComment
		}
	}
	for _, s := range identifierNodeSuffixes {
		if strings.Contains(lower, s) {
			return KindIdentifier
		}
	}
	for _, s := range literalNodeSuffixes {
		if strings.Contains(lower, s) {
			return KindLiteral
		}
	}
	if !named {
		return KindKeyword
	}
	return KindPunctuation
}

// literalType maps a tree-sitter literal node type (plus its source text,
// for grammars that lump every number under one generic node) to the type
// placeholder the duplication detector hashes literals by: «int», «str»,
// «float», «char», «bool», or «lit» for anything that doesn't match a
// narrower bucket.
func literalType(nodeType, text string) string {
	lower := strings.ToLower(nodeType)
	switch {
	case strings.Contains(lower, "string"):
		return "str"
	case strings.Contains(lower, "rune"), strings.Contains(lower, "char"):
		return "char"
	case strings.Contains(lower, "bool"):
		return "bool"
	case strings.Contains(lower, "float"), strings.Contains(lower, "double"):
		return "float"
	case strings.Contains(lower, "int"):
		return "int"
	case strings.Contains(lower, "number"):
		if strings.ContainsAny(text, ".eE") {
			return "float"
		}
		return "int"
	default:
		return "lit"
	}
}

// Tokenize parses content as language and returns its leaf tokens in
// source order, with comments stripped.
func (n *Normalizer) Tokenize(language string, content []byte) ([]Token, error) {
	parser, err := n.acquireParser(language)
	if err != nil {
		return nil, err
	}
	defer n.releaseParser(language, parser)

	tree, err := parser.ParseCtx(context.Background(), nil, content)
	if err != nil {
		return nil, dserrors.Wrap(dserrors.ExecutionError, err, "tree-sitter parse failed")
	}
	defer tree.Close()

	var tokens []Token
	var walk func(node *sitter.Node)
	walk = func(node *sitter.Node) {
		if int(node.ChildCount()) == 0 {
			kind := classify(node.Type(), node.IsNamed())
			if kind == KindComment {
				return
			}
			text := node.Content(content)
			if strings.TrimSpace(text) == "" {
				return
			}
			tok := Token{Kind: kind, Text: text}
			if kind == KindLiteral {
				tok.LiteralType = literalType(node.Type(), text)
			}
			tokens = append(tokens, tok)
			return
		}
		for i := 0; i < int(node.ChildCount()); i++ {
			walk(node.Child(i))
		}
	}
	walk(tree.RootNode())

	return tokens, nil
}

// HasSyntaxError reports whether a parsed tree contains ERROR or MISSING
// nodes, used as a fast local syntax gate before the matcher's own
// parse-check.
func (n *Normalizer) HasSyntaxError(language string, content []byte) (bool, error) {
	parser, err := n.acquireParser(language)
	if err != nil {
		return false, err
	}
	defer n.releaseParser(language, parser)

	tree, err := parser.ParseCtx(context.Background(), nil, content)
	if err != nil {
		return false, dserrors.Wrap(dserrors.ExecutionError, err, "tree-sitter parse failed")
	}
	defer tree.Close()

	var hasError bool
	var walk func(node *sitter.Node)
	walk = func(node *sitter.Node) {
		if hasError {
			return
		}
		if node.IsError() || node.IsMissing() {
			hasError = true
			return
		}
		for i := 0; i < int(node.ChildCount()); i++ {
			walk(node.Child(i))
		}
	}
	walk(tree.RootNode())

	return hasError, nil
}

// Hash computes the normalized structural hash of a token stream: every
// identifier token is replaced by the placeholder α, and every literal is
// replaced by its type placeholder («int», «str», «float», ...), so two
// instances differing only in names/values hash identically while two
// instances differing in a literal's *type* (an int literal standing where
// a string literal stood) do not collide. Keywords and punctuation
// contribute their literal text, so structurally different code does not
// collide either.
func Hash(tokens []Token) string {
	var b strings.Builder
	for _, t := range tokens {
		switch t.Kind {
		case KindIdentifier:
			b.WriteString("α")
		case KindLiteral:
			b.WriteString("«")
			b.WriteString(t.LiteralType)
			b.WriteString("»")
		default:
			b.WriteString(t.Text)
		}
		b.WriteByte('\x00')
	}
	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}

// SimilarityRatio computes the ratio of the longest common subsequence of
// two normalized token streams to the length of the longer stream, used to
// merge near-duplicate buckets below min_similarity = 1.0. Identifiers are
// compared by kind only and literals by kind+type (matching Hash's
// abstraction); keywords and punctuation are compared by exact text.
func SimilarityRatio(a, b []Token) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1.0
	}
	if len(a) == 0 || len(b) == 0 {
		return 0.0
	}

	lcs := lcsLength(a, b)
	maxLen := len(a)
	if len(b) > maxLen {
		maxLen = len(b)
	}
	return float64(lcs) / float64(maxLen)
}

// AlignOp classifies one step of a token-stream alignment produced by
// Align.
type AlignOp string

const (
	// AlignMatch: both sides hold the exact same token (same kind, same
	// text).
	AlignMatch AlignOp = "match"
	// AlignSubstitute: both sides hold a token of the same kind
	// (typically identifier or literal) but differing text — a candidate
	// parameter slot.
	AlignSubstitute AlignOp = "substitute"
	// AlignInsert: a token present only in the second (peer) stream.
	AlignInsert AlignOp = "insert"
	// AlignDelete: a token present only in the first (baseline) stream.
	AlignDelete AlignOp = "delete"
)

// AlignStep is one element of the alignment returned by Align.
type AlignStep struct {
	Op AlignOp
	A  *Token
	B  *Token
}

// Align computes a global alignment between two token streams using
// edit-distance dynamic programming: diagonal moves cost 0 when the tokens'
// abstracted keys match (see tokenKey) and 1 otherwise, insert/delete moves
// always cost 1. The backtrace prefers diagonal moves on ties, which keeps
// alignments stable and favors substitution over insert+delete pairs. This
// is the primitive the variation analyzer walks to find candidate
// parameter slots and structural variations between a baseline instance
// and each peer.
func Align(a, b []Token) []AlignStep {
	m, n := len(a), len(b)
	d := make([][]int, m+1)
	for i := range d {
		d[i] = make([]int, n+1)
		d[i][0] = i
	}
	for j := 0; j <= n; j++ {
		d[0][j] = j
	}
	for i := 1; i <= m; i++ {
		for j := 1; j <= n; j++ {
			subCost := 0
			if tokenKey(a[i-1]) != tokenKey(b[j-1]) {
				subCost = 1
			}
			diag := d[i-1][j-1] + subCost
			del := d[i-1][j] + 1
			ins := d[i][j-1] + 1
			best := diag
			if del < best {
				best = del
			}
			if ins < best {
				best = ins
			}
			d[i][j] = best
		}
	}

	var steps []AlignStep
	i, j := m, n
	for i > 0 || j > 0 {
		switch {
		case i > 0 && j > 0 && d[i][j] == d[i-1][j-1]+boolCost(tokenKey(a[i-1]) != tokenKey(b[j-1])):
			tokA, tokB := a[i-1], b[j-1]
			op := AlignSubstitute
			if tokA.Kind == tokB.Kind && tokA.Text == tokB.Text {
				op = AlignMatch
			}
			steps = append(steps, AlignStep{Op: op, A: &tokA, B: &tokB})
			i--
			j--
		case i > 0 && d[i][j] == d[i-1][j]+1:
			tokA := a[i-1]
			steps = append(steps, AlignStep{Op: AlignDelete, A: &tokA})
			i--
		default:
			tokB := b[j-1]
			steps = append(steps, AlignStep{Op: AlignInsert, B: &tokB})
			j--
		}
	}
	// reverse into source order
	for l, r := 0, len(steps)-1; l < r; l, r = l+1, r-1 {
		steps[l], steps[r] = steps[r], steps[l]
	}
	return steps
}

func boolCost(b bool) int {
	if b {
		return 1
	}
	return 0
}

func tokenKey(t Token) string {
	switch t.Kind {
	case KindIdentifier:
		return string(t.Kind)
	case KindLiteral:
		return string(t.Kind) + ":" + t.LiteralType
	default:
		return t.Text
	}
}

func lcsLength(a, b []Token) int {
	m, n := len(a), len(b)
	prev := make([]int, n+1)
	curr := make([]int, n+1)

	for i := 1; i <= m; i++ {
		for j := 1; j <= n; j++ {
			if tokenKey(a[i-1]) == tokenKey(b[j-1]) {
				curr[j] = prev[j-1] + 1
			} else if prev[j] >= curr[j-1] {
				curr[j] = prev[j]
			} else {
				curr[j] = curr[j-1]
			}
		}
		prev, curr = curr, prev
	}
	return prev[n]
}
