// Package ranker implements the ranker (C6): a weighted, memoized scoring
// function over duplication candidates, used to order them before
// enrichment and application.
package ranker

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/dupesmith/dupesmith/internal/model"
)

const (
	weightSavings    = 0.40
	weightComplexity = 0.20
	weightRisk       = 0.25
	weightEffort     = 0.15

	riskLow    = 0.1
	riskMedium = 0.3
	riskHigh   = 0.6
)

// Ranker scores and orders candidates. Safe for concurrent use.
type Ranker struct {
	cache sync.Map // canonical hash -> cachedScore
}

type cachedScore struct {
	score      float64
	components model.ScoreComponents
}

// New returns an empty Ranker.
func New() *Ranker {
	return &Ranker{}
}

// Rank scores every candidate, sorts the full set, and truncates to max (if
// max > 0) only after the full sort — ordering always considers every
// candidate.
func (r *Ranker) Rank(candidates []model.Candidate, max int) []model.Candidate {
	scored := make([]model.Candidate, len(candidates))
	copy(scored, candidates)

	for i := range scored {
		score, components := r.scoreOne(scored[i])
		scored[i].Score = score
		scored[i].ScoreComponents = components
		scored[i].RiskLevel = riskLevelOf(components.Risk)
		scored[i].EffortLevel = effortLevelOf(components.Effort)
		scored[i].EstimatedSavingsLines = linesSaved(scored[i].Group)
	}

	sort.SliceStable(scored, func(i, j int) bool {
		a, b := scored[i], scored[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		savedA, savedB := linesSaved(a.Group), linesSaved(b.Group)
		if savedA != savedB {
			return savedA > savedB
		}
		filesA, filesB := filesTouched(a.Group), filesTouched(b.Group)
		if filesA != filesB {
			return filesA < filesB
		}
		return repKey(a.Group.Representative) < repKey(b.Group.Representative)
	})

	if max > 0 && max < len(scored) {
		scored = scored[:max]
	}
	return scored
}

func (r *Ranker) scoreOne(c model.Candidate) (float64, model.ScoreComponents) {
	key := canonicalKey(c)
	if cached, ok := r.cache.Load(key); ok {
		cs := cached.(cachedScore)
		return cs.score, cs.components
	}

	lineCount := c.Group.LineCount
	instanceCount := c.Group.InstanceCount
	saved := float64((instanceCount - 1) * lineCount)
	savings := minFloat(1, saved/100)

	planComplexity := float64(len(c.Plan.ParameterSlots) + len(c.Plan.StructuralVariations))
	complexity := 1 - minFloat(1, planComplexity/10)

	files := filesTouched(c.Group)
	hasImportVariation := false
	for _, v := range c.Plan.StructuralVariations {
		if v.Kind == model.VariationImport {
			hasImportVariation = true
		}
	}
	hasCoverage := c.Enrichment != nil && c.Enrichment.TestCoverage != nil && c.Enrichment.TestCoverage.Covered

	riskFactors := 0
	if hasImportVariation {
		riskFactors++
	}
	if files > 2 {
		riskFactors++
	}
	if !hasCoverage {
		riskFactors++
	}
	riskFactor := riskLow
	switch {
	case riskFactors >= 2:
		riskFactor = riskHigh
	case riskFactors == 1:
		riskFactor = riskMedium
	}
	risk := 1 - riskFactor

	effort := 1 - minFloat(1, float64(files)/10)

	score := weightSavings*savings + weightComplexity*complexity + weightRisk*risk + weightEffort*effort

	components := model.ScoreComponents{
		Savings:    savings,
		Complexity: complexity,
		Risk:       risk,
		Effort:     effort,
	}

	r.cache.Store(key, cachedScore{score: score, components: components})
	return score, components
}

func linesSaved(g model.DuplicateGroup) int {
	return (g.InstanceCount - 1) * g.LineCount
}

func filesTouched(g model.DuplicateGroup) int {
	seen := make(map[string]bool)
	for _, inst := range g.Instances {
		seen[inst.FilePath] = true
	}
	return len(seen)
}

func repKey(inst model.DuplicateInstance) string {
	return fmt.Sprintf("%s:%d", inst.FilePath, inst.StartLine)
}

func riskLevelOf(riskComponent float64) model.RiskLevel {
	// Compare the component itself: 1-(1-riskMedium) rounds above riskMedium
	// in float64, which would put a one-signal candidate in the high bucket.
	switch {
	case riskComponent >= 1-riskLow:
		return model.RiskLow
	case riskComponent >= 1-riskMedium:
		return model.RiskMedium
	default:
		return model.RiskHigh
	}
}

func effortLevelOf(effortComponent float64) model.EffortLevel {
	switch {
	case effortComponent >= 0.8:
		return model.EffortLow
	case effortComponent >= 0.5:
		return model.EffortMedium
	default:
		return model.EffortHigh
	}
}

func minFloat(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

// canonicalKey hashes the scoring inputs spec.md names: instance count,
// line count, plan size, file set, and test-coverage flag. Identical inputs
// always produce the same cache key, and therefore byte-identical cached
// score components.
func canonicalKey(c model.Candidate) string {
	files := make([]string, 0, len(c.Group.Instances))
	for _, inst := range c.Group.Instances {
		files = append(files, inst.FilePath)
	}
	sort.Strings(files)

	hasCoverage := c.Enrichment != nil && c.Enrichment.TestCoverage != nil && c.Enrichment.TestCoverage.Covered

	var b strings.Builder
	fmt.Fprintf(&b, "instances=%d|lines=%d|plan=%d|coverage=%t|files=%s",
		c.Group.InstanceCount,
		c.Group.LineCount,
		len(c.Plan.ParameterSlots)+len(c.Plan.StructuralVariations),
		hasCoverage,
		strings.Join(files, ","),
	)
	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}
