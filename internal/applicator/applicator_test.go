package applicator

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dupesmith/dupesmith/internal/backup"
	"github.com/dupesmith/dupesmith/internal/generator"
	"github.com/dupesmith/dupesmith/internal/model"
	"github.com/dupesmith/dupesmith/internal/normalize"
	"github.com/dupesmith/dupesmith/internal/validate"
)

func newApplicator(t *testing.T) *Applicator {
	t.Helper()
	store, err := backup.New(t.TempDir())
	require.NoError(t, err)
	return New(store, validate.New(normalize.New()))
}

func TestApplyDryRunLeavesFilesystemUntouched(t *testing.T) {
	project := t.TempDir()
	fileA := filepath.Join(project, "a.go")
	target := filepath.Join(project, "shared.go")
	require.NoError(t, os.WriteFile(fileA, []byte("package a\n\nfunc A() {\n\told()\n}\n"), 0644))
	require.NoError(t, os.WriteFile(target, []byte("package a\n"), 0644))

	a := newApplicator(t)
	extractions := []Extraction{
		{
			Language: "go",
			Generated: generator.Generated{
				ExtractedDefinition: "func Shared() {}\n",
				CallSites: []generator.CallSite{
					{FilePath: fileA, StartLine: 4, EndLine: 4, Replacement: "\tShared()"},
				},
			},
		},
	}

	report, err := a.Apply(context.Background(), project, extractions, Options{DryRun: true, TargetFile: target})
	require.NoError(t, err)
	assert.Equal(t, model.StatusDryRun, report.Status)
	assert.NotEmpty(t, report.Diffs)

	content, err := os.ReadFile(fileA)
	require.NoError(t, err)
	assert.Contains(t, string(content), "old()")
}

func TestApplyWritesAndCommits(t *testing.T) {
	project := t.TempDir()
	fileA := filepath.Join(project, "a.go")
	target := filepath.Join(project, "shared.go")
	require.NoError(t, os.WriteFile(fileA, []byte("package a\n\nfunc A() {\n\told()\n}\n"), 0644))
	require.NoError(t, os.WriteFile(target, []byte("package a\n"), 0644))

	a := newApplicator(t)
	extractions := []Extraction{
		{
			Language: "go",
			Generated: generator.Generated{
				ExtractedDefinition: "func Shared() {}\n",
				CallSites: []generator.CallSite{
					{FilePath: fileA, StartLine: 4, EndLine: 4, Replacement: "\tShared()"},
				},
			},
		},
	}

	report, err := a.Apply(context.Background(), project, extractions, Options{DryRun: false, TargetFile: target})
	require.NoError(t, err)
	assert.Equal(t, model.StatusApplied, report.Status)
	assert.NotEmpty(t, report.BackupID)

	content, err := os.ReadFile(fileA)
	require.NoError(t, err)
	assert.Contains(t, string(content), "Shared()")
	assert.NotContains(t, string(content), "old()")

	targetContent, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Contains(t, string(targetContent), "func Shared()")
}

func TestApplyRequiresTargetFile(t *testing.T) {
	a := newApplicator(t)
	_, err := a.Apply(context.Background(), t.TempDir(), nil, Options{DryRun: true})
	require.Error(t, err)
}
