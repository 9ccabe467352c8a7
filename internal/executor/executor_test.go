package executor

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dserrors "github.com/dupesmith/dupesmith/internal/errors"
)

// writeFakeMatcher writes a shell script standing in for the external
// matcher binary: it prints one JSON match per line from lines, then
// exits 0. On windows this suite is skipped since there's no sh.
func writeFakeMatcher(t *testing.T, lines []string, sleep time.Duration) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fake matcher script requires a POSIX shell")
	}

	dir := t.TempDir()
	path := filepath.Join(dir, "ast-grep")

	var body strings.Builder
	body.WriteString("#!/bin/sh\n")
	if sleep > 0 {
		fmt.Fprintf(&body, "sleep %f\n", sleep.Seconds())
	}
	for _, l := range lines {
		fmt.Fprintf(&body, "echo '%s'\n", l)
	}
	require.NoError(t, os.WriteFile(path, []byte(body.String()), 0755))
	return path
}

func matchLine(file string, start, end int, text string) string {
	return fmt.Sprintf(`{"file":%q,"range":{"start":{"line":%d},"end":{"line":%d}},"text":%q}`, file, start, end, text)
}

func TestRunStructuralParsesMatches(t *testing.T) {
	target := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(target, "a.go"), []byte("package a\n"), 0644))

	bin := writeFakeMatcher(t, []string{
		matchLine("a.go", 1, 3, "func a() {}"),
		matchLine("a.go", 5, 7, "func b() {}"),
	}, 0)

	e := New(bin, 4)
	matches, _, err := e.RunStructural(context.Background(), "func $F() {}", "go", target, Options{})
	require.NoError(t, err)
	require.Len(t, matches, 2)
	assert.Equal(t, "a.go", matches[0].FilePath)
	assert.Equal(t, 1, matches[0].StartLine)
}

func TestRunStructuralMalformedLineIsSkippedNotFatal(t *testing.T) {
	target := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(target, "a.go"), []byte("package a\n"), 0644))

	bin := writeFakeMatcher(t, []string{
		"not json",
		matchLine("a.go", 1, 3, "func a() {}"),
	}, 0)

	e := New(bin, 4)
	matches, _, err := e.RunStructural(context.Background(), "func $F() {}", "go", target, Options{})
	require.NoError(t, err)
	require.Len(t, matches, 1)
}

func TestRunStructuralToolNotInstalled(t *testing.T) {
	e := New("", 4)
	_, _, err := e.RunStructural(context.Background(), "x", "go", t.TempDir(), Options{})
	require.Error(t, err)
	code, ok := dserrors.CodeOf(err)
	require.True(t, ok)
	assert.Equal(t, dserrors.ToolNotInstalled, code)
}

func TestRunStructuralTimeoutKillsChild(t *testing.T) {
	target := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(target, "a.go"), []byte("package a\n"), 0644))

	bin := writeFakeMatcher(t, []string{matchLine("a.go", 1, 1, "x")}, 2*time.Second)

	e := New(bin, 4)
	_, _, err := e.RunStructural(context.Background(), "x", "go", target, Options{TimeoutMS: 50})
	require.Error(t, err)
	code, ok := dserrors.CodeOf(err)
	require.True(t, ok)
	assert.Equal(t, dserrors.Timeout, code)
}

func TestRunStructuralMaxResultsTerminatesEarly(t *testing.T) {
	target := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(target, "a.go"), []byte("package a\n"), 0644))

	bin := writeFakeMatcher(t, []string{
		matchLine("a.go", 1, 1, "x"),
		matchLine("a.go", 2, 2, "y"),
		matchLine("a.go", 3, 3, "z"),
	}, 0)

	e := New(bin, 4)
	matches, _, err := e.RunStructural(context.Background(), "x", "go", target, Options{MaxResults: 1})
	require.NoError(t, err)
	assert.Len(t, matches, 1)
}

func TestWalkAppliesMaxFileSize(t *testing.T) {
	target := t.TempDir()
	small := filepath.Join(target, "small.go")
	big := filepath.Join(target, "big.go")
	require.NoError(t, os.WriteFile(small, []byte("x"), 0644))
	require.NoError(t, os.WriteFile(big, make([]byte, 2*1024*1024), 0644))

	e := New("ast-grep", 4)
	files, stats, err := e.walk(context.Background(), target, Options{MaxFileSizeMB: 1})
	require.NoError(t, err)
	assert.Equal(t, 2, stats.FilesConsidered)
	assert.Equal(t, 1, stats.FilesSkipped)
	assert.Contains(t, files, small)
	assert.NotContains(t, files, big)
}

func TestWalkAppliesExcludePatterns(t *testing.T) {
	target := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(target, "keep.go"), []byte("x"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(target, "skip_test.go"), []byte("x"), 0644))

	e := New("ast-grep", 4)
	files, _, err := e.walk(context.Background(), target, Options{ExcludePatterns: []string{"*_test.go"}})
	require.NoError(t, err)

	var names []string
	for _, f := range files {
		names = append(names, filepath.Base(f))
	}
	assert.Contains(t, names, "keep.go")
	assert.NotContains(t, names, "skip_test.go")
}

// writeStaggeredMatcher writes a matcher script that echoes its first
// match immediately and its second only after sleeping, so a test can
// distinguish "delivered while the subprocess is still running" from
// "delivered only once the subprocess has exited".
func writeStaggeredMatcher(t *testing.T, first, second string, delay time.Duration) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fake matcher script requires a POSIX shell")
	}
	dir := t.TempDir()
	path := filepath.Join(dir, "ast-grep")
	var body strings.Builder
	body.WriteString("#!/bin/sh\n")
	fmt.Fprintf(&body, "echo '%s'\n", first)
	fmt.Fprintf(&body, "sleep %f\n", delay.Seconds())
	fmt.Fprintf(&body, "echo '%s'\n", second)
	require.NoError(t, os.WriteFile(path, []byte(body.String()), 0755))
	return path
}

func TestStreamDeliversMatchesBeforeSubprocessExits(t *testing.T) {
	target := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(target, "a.go"), []byte("package a\n"), 0644))

	bin := writeStaggeredMatcher(t,
		matchLine("a.go", 1, 1, "x"),
		matchLine("a.go", 2, 2, "y"),
		500*time.Millisecond,
	)

	e := New(bin, 4)
	matches, errc := e.Stream(context.Background(), "x", "go", target, Options{})

	select {
	case m, ok := <-matches:
		require.True(t, ok)
		assert.Equal(t, 1, m.StartLine)
	case <-time.After(300 * time.Millisecond):
		t.Fatal("first match was not delivered before the subprocess's sleep finished; Stream is buffering instead of streaming")
	}

	var rest []string
	for m := range matches {
		rest = append(rest, m.Text)
	}
	require.NoError(t, <-errc)
	assert.Len(t, rest, 1, "the second, delayed match must still arrive once produced")
}

func TestStreamClosesChannelsOnCompletion(t *testing.T) {
	target := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(target, "a.go"), []byte("package a\n"), 0644))

	bin := writeFakeMatcher(t, []string{
		matchLine("a.go", 1, 1, "x"),
		matchLine("a.go", 2, 2, "y"),
	}, 0)

	e := New(bin, 4)
	matches, errc := e.Stream(context.Background(), "x", "go", target, Options{})

	var got []string
	for m := range matches {
		got = append(got, m.Text)
	}
	require.NoError(t, <-errc)
	assert.Len(t, got, 2)
}

func TestStreamStopsEarlyWhenContextCancelled(t *testing.T) {
	target := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(target, "a.go"), []byte("package a\n"), 0644))

	bin := writeStaggeredMatcher(t,
		matchLine("a.go", 1, 1, "x"),
		matchLine("a.go", 2, 2, "y"),
		2*time.Second,
	)

	e := New(bin, 4)
	ctx, cancel := context.WithCancel(context.Background())
	matches, errc := e.Stream(ctx, "x", "go", target, Options{})

	<-matches
	cancel()

	select {
	case _, ok := <-matches:
		assert.False(t, ok, "the channel must close once the context is cancelled")
	case <-time.After(1 * time.Second):
		t.Fatal("Stream did not stop after context cancellation")
	}
	<-errc
}
