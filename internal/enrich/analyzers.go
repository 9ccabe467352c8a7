package enrich

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/dupesmith/dupesmith/internal/model"
)

// DefaultImpact derives impact-analysis data straight from the candidate's
// own duplicate group: files_affected is the number of distinct files its
// instances span, call_sites is the instance count itself (each instance is
// a call site once the group is deduplicated into one definition).
func DefaultImpact(_ context.Context, c model.Candidate) (model.Impact, error) {
	files := make(map[string]struct{})
	for _, inst := range c.Group.Instances {
		files[inst.FilePath] = struct{}{}
	}
	return model.Impact{
		FilesAffected: len(files),
		CallSites:     len(c.Group.Instances),
	}, nil
}

// DefaultRecommendation derives a human-facing recommendation from the
// candidate's own score and plan: confidence tracks the composite score
// (candidates are already ranked on savings/complexity/risk/effort, so a
// high-scoring candidate is also a high-confidence one), and the summary
// names the proposed strategy plus the estimated line savings.
func DefaultRecommendation(_ context.Context, c model.Candidate) (model.Recommendation, error) {
	strategy := strings.ReplaceAll(string(c.Strategy), "_", " ")
	if strategy == "" {
		strategy = "extraction"
	}
	summary := fmt.Sprintf(
		"%s across %d instances saves an estimated %d lines (risk: %s, effort: %s)",
		strategy, len(c.Group.Instances), c.EstimatedSavingsLines, c.RiskLevel, c.EffortLevel,
	)
	return model.Recommendation{
		Summary:    summary,
		Confidence: c.Score,
	}, nil
}

// FilesystemTestCoverage looks for a same-directory test file next to each
// instance (per-language test-file naming: `*_test.*` or `test_*.*`) and
// reports covered=true if every instance's directory has one. It does not
// run any test suite or parse coverage output — it's a cheap, local
// proxy for "does this duplication already sit behind some test file",
// not a substitute for a real coverage tool.
func FilesystemTestCoverage(_ context.Context, c model.Candidate) (model.TestCoverage, error) {
	var testFiles []string
	seenDirs := make(map[string]bool)
	covered := len(c.Group.Instances) > 0

	for _, inst := range c.Group.Instances {
		dir := filepath.Dir(inst.FilePath)
		if seenDirs[dir] {
			continue
		}
		seenDirs[dir] = true

		found, err := adjacentTestFile(dir)
		if err != nil {
			return model.TestCoverage{}, err
		}
		if found == "" {
			covered = false
			continue
		}
		testFiles = append(testFiles, found)
	}

	percentage := 0.0
	if len(seenDirs) > 0 {
		percentage = float64(len(testFiles)) / float64(len(seenDirs)) * 100
	}

	return model.TestCoverage{
		Covered:    covered,
		Percentage: percentage,
		TestFiles:  testFiles,
	}, nil
}

func adjacentTestFile(dir string) (string, error) {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		ext := filepath.Ext(name)
		base := strings.TrimSuffix(name, ext)
		if strings.HasSuffix(base, "_test") || strings.HasPrefix(name, "test_") {
			return filepath.Join(dir, name), nil
		}
	}
	return "", nil
}
