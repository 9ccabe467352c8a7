package tools

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dupesmith/dupesmith/internal/applicator"
	"github.com/dupesmith/dupesmith/internal/backup"
	"github.com/dupesmith/dupesmith/internal/cache"
	"github.com/dupesmith/dupesmith/internal/detector"
	"github.com/dupesmith/dupesmith/internal/executor"
	"github.com/dupesmith/dupesmith/internal/normalize"
	"github.com/dupesmith/dupesmith/internal/ranker"
	"github.com/dupesmith/dupesmith/internal/trend"
	"github.com/dupesmith/dupesmith/internal/validate"
	"github.com/dupesmith/dupesmith/internal/vocabulary"
)

func writeFakeMatcher(t *testing.T, lines []string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fake matcher script requires a POSIX shell")
	}
	dir := t.TempDir()
	path := filepath.Join(dir, "fake-matcher.sh")
	script := "#!/bin/sh\n"
	for _, l := range lines {
		script += "echo '" + l + "'\n"
	}
	require.NoError(t, os.WriteFile(path, []byte(script), 0755))
	return path
}

func TestRegisterAllWiresEveryToolWithDeps(t *testing.T) {
	bin := writeFakeMatcher(t, []string{
		`{"file":"a.go","range":{"start":{"line":1},"end":{"line":1}},"text":"x"}`,
	})
	store, err := backup.New(t.TempDir())
	require.NoError(t, err)
	trendStore, err := trend.Open(filepath.Join(t.TempDir(), "trends.db"))
	require.NoError(t, err)
	t.Cleanup(func() { trendStore.Close() })

	exec := executor.New(bin, 0)
	deps := Deps{
		Executor:   exec,
		Cache:      cache.New(100, time.Minute),
		Detector:   detector.New(exec, normalize.New()),
		Ranker:     ranker.New(),
		Applicator: applicator.New(store, validate.New(normalize.New())),
		Backup:     store,
		Vocabulary: vocabulary.New("http://example.invalid"),
		Trend:      trendStore,
	}

	reg := NewRegistry()
	require.NoError(t, RegisterAll(reg, deps))

	for _, name := range []string{
		"structural_search", "structural_rule_scan", "structural_stream",
		"find_duplicates", "rank_candidates", "preview_deduplication",
		"apply_deduplication", "rewrite", "rollback", "list_backups",
		"verify_backup", "cache_stats", "vocabulary_lookup",
		"record_complexity_trend", "query_complexity_trend",
	} {
		assert.True(t, reg.Has(name), "expected %s to be registered", name)
	}
}

func TestStructuralSearchToolReturnsMatches(t *testing.T) {
	bin := writeFakeMatcher(t, []string{
		`{"file":"a.go","range":{"start":{"line":2},"end":{"line":2}},"text":"foo()"}`,
	})
	exec := executor.New(bin, 0)
	tool := structuralSearchTool(exec, cache.New(10, time.Minute))

	result, err := tool.Execute(context.Background(), map[string]any{
		"pattern": "foo()", "language": "go", "target_path": t.TempDir(),
	})
	require.NoError(t, err)

	var matches []map[string]any
	require.NoError(t, json.Unmarshal([]byte(result), &matches))
	require.Len(t, matches, 1)
	assert.Equal(t, "a.go", matches[0]["file_path"])
}

func TestCacheStatsToolReportsSize(t *testing.T) {
	c := cache.New(10, time.Minute)
	c.Put("k", "v")
	tool := cacheStatsTool(c)

	result, err := tool.Execute(context.Background(), nil)
	require.NoError(t, err)
	assert.Contains(t, result, `"Size": 1`)
}

func TestRewriteToolDryRunDoesNotWrite(t *testing.T) {
	store, err := backup.New(t.TempDir())
	require.NoError(t, err)
	a := applicator.New(store, validate.New(normalize.New()))
	tool := rewriteTool(a)

	file := filepath.Join(t.TempDir(), "a.go")
	require.NoError(t, os.WriteFile(file, []byte("package a\n"), 0644))

	result, err := tool.Execute(context.Background(), map[string]any{
		"file_path": file, "new_content": "package a\n\nfunc B() {}\n", "language": "go", "dry_run": true,
	})
	require.NoError(t, err)
	assert.Contains(t, result, "dry_run")

	content, err := os.ReadFile(file)
	require.NoError(t, err)
	assert.Equal(t, "package a\n", string(content))
}
