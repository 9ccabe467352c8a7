package diff

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComputeDiffDetectsAddedLine(t *testing.T) {
	oldContent := "line1\nline2\nline3"
	newContent := "line1\nline2\nline2.5\nline3"

	engine := NewEngine()
	fd := engine.ComputeDiff("old.txt", "new.txt", oldContent, newContent)

	require.NotNil(t, fd)
	require.Len(t, fd.Hunks, 1)
	assert.False(t, fd.IsNew)
	assert.False(t, fd.IsDelete)

	var added string
	for _, line := range fd.Hunks[0].Lines {
		if line.Type == LineAdded {
			added = line.Content
		}
	}
	assert.Equal(t, "line2.5", added)
}

func TestComputeDiffDetectsRemovedLine(t *testing.T) {
	oldContent := "line1\nline2\nline3\nline4"
	newContent := "line1\nline2\nline4"

	engine := NewEngine()
	fd := engine.ComputeDiff("old.txt", "new.txt", oldContent, newContent)

	require.Len(t, fd.Hunks, 1)
	var removed string
	for _, line := range fd.Hunks[0].Lines {
		if line.Type == LineRemoved {
			removed = line.Content
		}
	}
	assert.Equal(t, "line3", removed)
}

func TestComputeDiffMarksNewFile(t *testing.T) {
	engine := NewEngine()
	fd := engine.ComputeDiff("", "new.txt", "", "new file content\nline 2")
	assert.True(t, fd.IsNew)
}

func TestComputeDiffMarksDeletedFile(t *testing.T) {
	engine := NewEngine()
	fd := engine.ComputeDiff("old.txt", "", "old file content\nline 2", "")
	assert.True(t, fd.IsDelete)
}

func TestComputeDiffNoChangesYieldsNoHunks(t *testing.T) {
	content := "line1\nline2\nline3"
	engine := NewEngine()
	fd := engine.ComputeDiff("file.txt", "file.txt", content, content)
	assert.Empty(t, fd.Hunks)
}

func TestComputeDiffIncludesContextLines(t *testing.T) {
	oldContent := "line1\nline2\nline3\nline4\nline5"
	newContent := "line1\nline2\nCHANGED\nline4\nline5"

	engine := NewEngine()
	fd := engine.ComputeDiff("old.txt", "new.txt", oldContent, newContent)
	require.Len(t, fd.Hunks, 1)

	var hasContext bool
	for _, line := range fd.Hunks[0].Lines {
		if line.Type == LineContext {
			hasContext = true
			break
		}
	}
	assert.True(t, hasContext)
}

func TestComputeDiffCachesByContentReusesHunksAcrossPaths(t *testing.T) {
	oldContent := "line1\nline2\nline3"
	newContent := "line1\nline2\nline3\nline4"

	engine := NewEngine()
	first := engine.ComputeDiff("old.txt", "new.txt", oldContent, newContent)
	second := engine.ComputeDiff("old2.txt", "new2.txt", oldContent, newContent)

	assert.Equal(t, len(first.Hunks), len(second.Hunks))
	assert.Equal(t, "old2.txt", second.OldPath)
	assert.Equal(t, "new2.txt", second.NewPath)
}

func TestComputeDiffHunkCountsMatchLineTally(t *testing.T) {
	oldContent := "line1\nline2\nline3"
	newContent := "line1\nNEW\nline3"

	engine := NewEngine()
	fd := engine.ComputeDiff("old.txt", "new.txt", oldContent, newContent)
	require.Len(t, fd.Hunks, 1)
	hunk := fd.Hunks[0]

	var oldCount, newCount int
	for _, line := range hunk.Lines {
		if line.Type == LineRemoved || line.Type == LineContext {
			oldCount++
		}
		if line.Type == LineAdded || line.Type == LineContext {
			newCount++
		}
	}
	assert.Equal(t, oldCount, hunk.OldCount)
	assert.Equal(t, newCount, hunk.NewCount)
}

func TestComputeDiffLargeFileProducesHunks(t *testing.T) {
	var oldLines, newLines []string
	for i := 0; i < 1000; i++ {
		oldLines = append(oldLines, "line "+string(rune(i)))
		newLines = append(newLines, "line "+string(rune(i)))
	}
	newLines[500] = "CHANGED LINE"

	oldContent := strings.Join(oldLines, "\n")
	newContent := strings.Join(newLines, "\n")

	engine := NewEngine()
	fd := engine.ComputeDiff("old.txt", "new.txt", oldContent, newContent)
	assert.NotEmpty(t, fd.Hunks)
}

func TestRenderUnifiedFormatsHunksAsUnifiedDiff(t *testing.T) {
	oldContent := "line1\nline2\nline3"
	newContent := "line1\nCHANGED\nline3"

	fd := ComputeDiff("a.go", "a.go", oldContent, newContent)
	rendered := RenderUnified(fd)

	assert.Contains(t, rendered, "--- a.go\n+++ a.go\n")
	assert.Contains(t, rendered, "@@ -")
	assert.Contains(t, rendered, "-line2\n")
	assert.Contains(t, rendered, "+CHANGED\n")
}

func TestRenderUnifiedOnNoChangesHasHeaderOnly(t *testing.T) {
	content := "line1\nline2\n"
	fd := ComputeDiff("a.go", "a.go", content, content)
	rendered := RenderUnified(fd)
	assert.Equal(t, "--- a.go\n+++ a.go\n", rendered)
}

func BenchmarkComputeDiffSmall(b *testing.B) {
	oldContent := "line1\nline2\nline3"
	newContent := "line1\nCHANGED\nline3"
	engine := NewEngine()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		engine.ComputeDiff("old.txt", "new.txt", oldContent, newContent)
	}
}

func BenchmarkComputeDiffLarge(b *testing.B) {
	var lines []string
	for i := 0; i < 1000; i++ {
		lines = append(lines, "line content here "+string(rune(i)))
	}
	oldContent := strings.Join(lines, "\n")
	lines[500] = "CHANGED"
	newContent := strings.Join(lines, "\n")

	engine := NewEngine()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		engine.ComputeDiff("old.txt", "new.txt", oldContent, newContent)
	}
}
