// Package variation implements the variation analyzer (C5): given a
// duplicate group, it aligns every peer instance against a baseline and
// derives the parameterization plan (parameter slots and structural
// variations) that the code generator later turns into an extracted
// function.
package variation

import (
	"regexp"
	"sort"
	"strings"

	dserrors "github.com/dupesmith/dupesmith/internal/errors"
	"github.com/dupesmith/dupesmith/internal/model"
	"github.com/dupesmith/dupesmith/internal/normalize"
)

// Analyzer aligns instances of a duplicate group and produces a
// VariationPlan.
type Analyzer struct {
	Normalizer *normalize.Normalizer
}

// New returns an Analyzer using the given normalizer.
func New(n *normalize.Normalizer) *Analyzer {
	return &Analyzer{Normalizer: n}
}

// conditionalKeywords mark a structural variation as kind "conditional".
var conditionalKeywords = map[string]bool{
	"if": true, "else": true, "switch": true, "case": true, "for": true, "while": true,
}

type slotAccumulator struct {
	baselineText string
	isLiteral    bool
	samples      []string
	seen         map[string]bool
}

func (s *slotAccumulator) add(value string) {
	if s.seen == nil {
		s.seen = make(map[string]bool)
	}
	if s.seen[value] {
		return
	}
	s.seen[value] = true
	s.samples = append(s.samples, value)
}

// Analyze computes the VariationPlan for a group of at least two instances.
func (a *Analyzer) Analyze(group model.DuplicateGroup, language string) (model.VariationPlan, error) {
	if len(group.Instances) < 2 {
		return model.VariationPlan{}, dserrors.New(dserrors.InvalidInput, "a duplicate group needs at least two instances to analyze variation")
	}

	baseline := group.Instances[0]
	baselineTokens, err := a.Normalizer.Tokenize(language, []byte(baseline.Text))
	if err != nil {
		return model.VariationPlan{}, err
	}

	slots := make(map[int]*slotAccumulator)
	var slotOrder []int
	var structural []model.StructuralVariation
	seenStructural := make(map[model.StructuralVariationKind]bool)

	for _, peer := range group.Instances[1:] {
		peerTokens, err := a.Normalizer.Tokenize(language, []byte(peer.Text))
		if err != nil {
			return model.VariationPlan{}, err
		}

		steps := normalize.Align(baselineTokens, peerTokens)

		baselineIdx := -1
		var runTokens []normalize.Token
		flushRun := func() {
			if len(runTokens) == 0 {
				return
			}
			kind := classifyStructuralRun(runTokens)
			if kind != "" && !seenStructural[kind] {
				seenStructural[kind] = true
				structural = append(structural, model.StructuralVariation{Kind: kind, Severity: "info"})
			}
			runTokens = nil
		}

		for _, step := range steps {
			switch step.Op {
			case normalize.AlignMatch:
				flushRun()
				baselineIdx++
			case normalize.AlignSubstitute:
				flushRun()
				baselineIdx++
				if step.A.Kind != normalize.KindIdentifier && step.A.Kind != normalize.KindLiteral {
					continue
				}
				acc, ok := slots[baselineIdx]
				if !ok {
					acc = &slotAccumulator{baselineText: step.A.Text, isLiteral: step.A.Kind == normalize.KindLiteral}
					acc.add(step.A.Text)
					slots[baselineIdx] = acc
					slotOrder = append(slotOrder, baselineIdx)
				}
				acc.add(step.B.Text)
			case normalize.AlignDelete:
				runTokens = append(runTokens, *step.A)
				baselineIdx++
			case normalize.AlignInsert:
				runTokens = append(runTokens, *step.B)
			}
		}
		flushRun()
	}

	sort.Ints(slotOrder)
	var parameterSlots []model.ParameterSlot
	for _, idx := range slotOrder {
		acc := slots[idx]
		name := inferName(acc.samples)
		parameterSlots = append(parameterSlots, model.ParameterSlot{
			Name:         name,
			InferredType: inferType(acc.samples),
			SampleValues: acc.samples,
		})
	}

	return model.VariationPlan{
		ParameterSlots:       parameterSlots,
		StructuralVariations: structural,
	}, nil
}

// classifyStructuralRun inspects a contiguous run of inserted/deleted
// tokens and classifies it as a structural variation, or "" if the run
// doesn't rise to one of the kinds this analyzer records.
func classifyStructuralRun(run []normalize.Token) model.StructuralVariationKind {
	for _, tok := range run {
		if tok.Kind == normalize.KindKeyword && conditionalKeywords[tok.Text] {
			return model.VariationConditional
		}
	}
	for _, tok := range run {
		if tok.Text == "import" {
			return model.VariationImport
		}
	}
	return ""
}

// inferName assigns a parameter name: a common prefix/suffix across
// samples if one exists and is at least two characters, else the most
// frequent sample, else a generic placeholder.
func inferName(samples []string) string {
	if prefix := commonAffix(samples, true); len(prefix) >= 2 {
		return sanitizeIdent(prefix)
	}
	if suffix := commonAffix(samples, false); len(suffix) >= 2 {
		return sanitizeIdent(suffix)
	}
	if mode := mostFrequent(samples); mode != "" {
		return sanitizeIdent(mode)
	}
	return "arg0"
}

func commonAffix(samples []string, prefix bool) string {
	if len(samples) == 0 {
		return ""
	}
	ref := samples[0]
	if !prefix {
		ref = reverseString(ref)
	}
	affix := ref
	for _, s := range samples[1:] {
		cand := s
		if !prefix {
			cand = reverseString(cand)
		}
		affix = commonPrefix(affix, cand)
		if affix == "" {
			return ""
		}
	}
	if !prefix {
		affix = reverseString(affix)
	}
	return affix
}

func commonPrefix(a, b string) string {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	i := 0
	for i < n && a[i] == b[i] {
		i++
	}
	return a[:i]
}

func reverseString(s string) string {
	r := []rune(s)
	for i, j := 0, len(r)-1; i < j; i, j = i+1, j-1 {
		r[i], r[j] = r[j], r[i]
	}
	return string(r)
}

func mostFrequent(samples []string) string {
	counts := make(map[string]int)
	for _, s := range samples {
		counts[s]++
	}
	best := ""
	bestCount := 0
	// stable over insertion order for deterministic ties
	for _, s := range samples {
		if counts[s] > bestCount || (counts[s] == bestCount && best == "") {
			best = s
			bestCount = counts[s]
		}
	}
	return best
}

var identSafe = regexp.MustCompile(`[^A-Za-z0-9_]`)

func sanitizeIdent(s string) string {
	s = identSafe.ReplaceAllString(s, "")
	s = strings.TrimSpace(s)
	if s == "" {
		return "arg0"
	}
	return s
}

var (
	boolRe    = regexp.MustCompile(`^(true|false)$`)
	intRe     = regexp.MustCompile(`^-?\d+$`)
	floatRe   = regexp.MustCompile(`^-?\d+\.\d+$`)
	stringRe  = regexp.MustCompile(`^(".*"|'.*')$`)
)

func sampleType(s string) string {
	switch {
	case boolRe.MatchString(s):
		return "boolean"
	case floatRe.MatchString(s):
		return "float"
	case intRe.MatchString(s):
		return "integer"
	case stringRe.MatchString(s):
		return "string"
	default:
		return "any"
	}
}

// inferType returns the most specific common type of the samples: if every
// sample infers to the same concrete type that type is used, otherwise
// "any".
func inferType(samples []string) string {
	if len(samples) == 0 {
		return "any"
	}
	first := sampleType(samples[0])
	for _, s := range samples[1:] {
		if sampleType(s) != first {
			return "any"
		}
	}
	return first
}
