// Package detector implements the duplication detector (C4): it buckets
// matcher output by normalized structural hash, merges near-duplicate
// buckets by token-level similarity, and resolves overlapping spans.
package detector

import (
	"context"
	"fmt"
	"sort"

	dserrors "github.com/dupesmith/dupesmith/internal/errors"
	"github.com/dupesmith/dupesmith/internal/executor"
	"github.com/dupesmith/dupesmith/internal/logging"
	"github.com/dupesmith/dupesmith/internal/model"
	"github.com/dupesmith/dupesmith/internal/normalize"
)

// defaultConstructRules maps a construct_type to the rule document used to find
// it. These are intentionally minimal pattern-id rules; a deployment may
// override them via Detector.Rules for project-specific grammars.
var defaultConstructRules = map[string]string{
	"function_definition": "rule:\n  kind: function_declaration\n",
	"class_definition":     "rule:\n  kind: class_declaration\n",
	"block":                "rule:\n  kind: block\n",
}

// Params configures find_duplicates.
type Params struct {
	MinSimilarity float64
	MinLines      int
	ConstructType string
	ExcludePatterns []string
}

// Detector finds duplicate code spans across a project.
type Detector struct {
	Executor   *executor.Executor
	Normalizer *normalize.Normalizer
	Rules      map[string]string
}

// New returns a Detector using the given executor and normalizer.
func New(exec *executor.Executor, norm *normalize.Normalizer) *Detector {
	return &Detector{Executor: exec, Normalizer: norm, Rules: defaultConstructRules}
}

type bucketedInstance struct {
	instance model.DuplicateInstance
	tokens   []normalize.Token
}

// FindDuplicates enumerates all construct-type matches in projectPath,
// buckets them by normalized hash, merges near-duplicate buckets under
// min_similarity, and resolves overlapping spans.
func (d *Detector) FindDuplicates(ctx context.Context, projectPath, language string, params Params) ([]model.DuplicateGroup, error) {
	if params.MinSimilarity < 0 || params.MinSimilarity > 1 {
		return nil, dserrors.Newf(dserrors.InvalidInput, "min_similarity must be in [0,1], got %f", params.MinSimilarity)
	}
	if params.MinLines <= 0 {
		params.MinLines = 5
	}
	if params.ConstructType == "" {
		params.ConstructType = "function_definition"
	}

	ruleDoc, ok := d.Rules[params.ConstructType]
	if !ok {
		return nil, dserrors.Newf(dserrors.InvalidInput, "unsupported construct_type: %s", params.ConstructType)
	}

	matches, _, err := d.Executor.RunRule(ctx, ruleDoc, language, projectPath, executor.Options{
		ExcludePatterns: params.ExcludePatterns,
	})
	if err != nil {
		return nil, err
	}

	if params.ConstructType != "block" {
		matches = topLevelMatches(matches)
	}

	buckets := make(map[string][]bucketedInstance)
	for _, m := range matches {
		lineCount := m.EndLine - m.StartLine + 1
		if lineCount < params.MinLines {
			continue
		}
		tokens, err := d.Normalizer.Tokenize(language, []byte(m.Text))
		if err != nil {
			logging.Get(logging.CategoryDetector).Warn("failed to tokenize match in %s: %v", m.FilePath, err)
			continue
		}
		hash := normalize.Hash(tokens)
		inst := model.DuplicateInstance{Match: m, NormalizedHash: hash}
		buckets[hash] = append(buckets[hash], bucketedInstance{instance: inst, tokens: tokens})
	}

	var hashes []string
	for h, b := range buckets {
		if len(b) >= 2 {
			hashes = append(hashes, h)
		}
	}
	// Process buckets by descending size; tie-break lexicographic hash.
	sort.Slice(hashes, func(i, j int) bool {
		if len(buckets[hashes[i]]) != len(buckets[hashes[j]]) {
			return len(buckets[hashes[i]]) > len(buckets[hashes[j]])
		}
		return hashes[i] < hashes[j]
	})

	merged := mergeBySimilarity(hashes, buckets, params.MinSimilarity)
	groups := buildGroups(merged)
	groups = resolveOverlaps(groups)

	return groups, nil
}

// mergeBySimilarity computes the transitive closure of the "similar enough"
// relation between buckets (when min_similarity < 1.0) and returns the
// merged clusters of instances, in the processing order given by hashes.
func mergeBySimilarity(hashes []string, buckets map[string][]bucketedInstance, minSimilarity float64) [][]bucketedInstance {
	n := len(hashes)
	parent := make([]int, n)
	for i := range parent {
		parent[i] = i
	}
	var find func(int) int
	find = func(x int) int {
		if parent[x] != x {
			parent[x] = find(parent[x])
		}
		return parent[x]
	}
	union := func(a, b int) {
		ra, rb := find(a), find(b)
		if ra != rb {
			parent[rb] = ra
		}
	}

	if minSimilarity < 1.0 {
		for i := 0; i < n; i++ {
			repTokensI := buckets[hashes[i]][0].tokens
			for j := i + 1; j < n; j++ {
				repTokensJ := buckets[hashes[j]][0].tokens
				if normalize.SimilarityRatio(repTokensI, repTokensJ) >= minSimilarity {
					union(i, j)
				}
			}
		}
	}

	clusters := make(map[int][]bucketedInstance)
	for i, h := range hashes {
		root := find(i)
		clusters[root] = append(clusters[root], buckets[h]...)
	}

	var result [][]bucketedInstance
	var roots []int
	for r := range clusters {
		roots = append(roots, r)
	}
	sort.Ints(roots)
	for _, r := range roots {
		result = append(result, clusters[r])
	}
	return result
}

func buildGroups(clusters [][]bucketedInstance) []model.DuplicateGroup {
	var groups []model.DuplicateGroup
	for _, cluster := range clusters {
		instances := make([]model.DuplicateInstance, len(cluster))
		lineCount := 0
		for i, bi := range cluster {
			instances[i] = bi.instance
			lc := bi.instance.EndLine - bi.instance.StartLine + 1
			if lc > lineCount {
				lineCount = lc
			}
		}
		groups = append(groups, model.DuplicateGroup{
			Instances:      instances,
			LineCount:      lineCount,
			InstanceCount:  len(instances),
			Representative: canonicalRepresentative(instances),
		})
	}
	return groups
}

// canonicalRepresentative is the instance with the lexicographically
// smallest (file_path, start_line) pair.
func canonicalRepresentative(instances []model.DuplicateInstance) model.DuplicateInstance {
	rep := instances[0]
	for _, inst := range instances[1:] {
		if inst.FilePath < rep.FilePath || (inst.FilePath == rep.FilePath && inst.StartLine < rep.StartLine) {
			rep = inst
		}
	}
	return rep
}

func spanKey(inst model.DuplicateInstance) string {
	return fmt.Sprintf("%s:%d-%d", inst.FilePath, inst.StartLine, inst.EndLine)
}

// contains reports whether outer's span strictly contains inner's span in
// the same file (same span doesn't count as containment).
func contains(outer, inner model.Match) bool {
	if outer.FilePath != inner.FilePath {
		return false
	}
	if outer.StartLine == inner.StartLine && outer.EndLine == inner.EndLine {
		return false
	}
	return outer.StartLine <= inner.StartLine && outer.EndLine >= inner.EndLine
}

// topLevelMatches drops any match whose span is strictly contained in
// another match from the same scan, keeping only the outermost match per
// nesting chain. Used for every construct_type except "block", where
// nested matches (a block inside a block) are legitimate separate
// deduplication targets rather than overlap noise.
func topLevelMatches(matches []model.Match) []model.Match {
	var result []model.Match
	for i, m := range matches {
		contained := false
		for j, other := range matches {
			if i == j {
				continue
			}
			if contains(other, m) {
				contained = true
				break
			}
		}
		if !contained {
			result = append(result, m)
		}
	}
	return result
}

// resolveOverlaps ensures a source span appears in at most one group: when
// a span is claimed by more than one group, it's kept in the group with
// the largest instance_count, tie-broken by larger line_count, then by
// lexicographic canonical representative.
func resolveOverlaps(groups []model.DuplicateGroup) []model.DuplicateGroup {
	owner := make(map[string]int) // span -> winning group index

	better := func(a, b int) bool {
		ga, gb := groups[a], groups[b]
		if ga.InstanceCount != gb.InstanceCount {
			return ga.InstanceCount > gb.InstanceCount
		}
		if ga.LineCount != gb.LineCount {
			return ga.LineCount > gb.LineCount
		}
		return repKey(ga.Representative) < repKey(gb.Representative)
	}

	for gi, g := range groups {
		for _, inst := range g.Instances {
			key := spanKey(inst)
			if cur, ok := owner[key]; !ok || better(gi, cur) {
				owner[key] = gi
			}
		}
	}

	var result []model.DuplicateGroup
	for gi, g := range groups {
		var kept []model.DuplicateInstance
		for _, inst := range g.Instances {
			if owner[spanKey(inst)] == gi {
				kept = append(kept, inst)
			}
		}
		if len(kept) < 2 {
			continue
		}
		lineCount := 0
		for _, inst := range kept {
			if lc := inst.EndLine - inst.StartLine + 1; lc > lineCount {
				lineCount = lc
			}
		}
		result = append(result, model.DuplicateGroup{
			Instances:      kept,
			LineCount:      lineCount,
			InstanceCount:  len(kept),
			Representative: canonicalRepresentative(kept),
		})
	}
	return result
}

func repKey(inst model.DuplicateInstance) string {
	return fmt.Sprintf("%s:%d", inst.FilePath, inst.StartLine)
}
