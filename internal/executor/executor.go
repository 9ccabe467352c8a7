// Package executor implements the matcher executor (C1): it invokes an
// external structural-pattern matcher binary (ast-grep compatible),
// streaming its JSON output into Match values, bounding the file set walked
// beforehand, and enforcing timeouts without leaving zombie processes.
package executor

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	dserrors "github.com/dupesmith/dupesmith/internal/errors"
	"github.com/dupesmith/dupesmith/internal/logging"
	"github.com/dupesmith/dupesmith/internal/model"
)

// Options configures a single executor operation. All fields are optional;
// a zero value for a numeric field means "unbounded" unless stated.
type Options struct {
	MaxResults      int
	MaxFileSizeMB   int
	TimeoutMS       int
	IncludePatterns []string
	ExcludePatterns []string
}

// Stats reports file-walk-level counters for a single invocation.
type Stats struct {
	FilesConsidered int
	FilesSkipped    int
}

// Executor invokes the configured matcher binary.
type Executor struct {
	BinaryPath     string
	WalkConcurrency int64
}

// New returns an Executor bound to the given matcher binary path. If
// walkConcurrency is <= 0 it defaults to 8.
func New(binaryPath string, walkConcurrency int64) *Executor {
	if walkConcurrency <= 0 {
		walkConcurrency = 8
	}
	return &Executor{BinaryPath: binaryPath, WalkConcurrency: walkConcurrency}
}

// matcherMatch mirrors the external matcher's per-line JSON shape.
type matcherMatch struct {
	File  string `json:"file"`
	Range struct {
		Start struct {
			Line int `json:"line"`
		} `json:"start"`
		End struct {
			Line int `json:"line"`
		} `json:"end"`
	} `json:"range"`
	Text string `json:"text"`
}

// RunStructural runs a structural pattern search synchronously, returning
// every match.
func (e *Executor) RunStructural(ctx context.Context, pattern, language, targetPath string, opts Options) ([]model.Match, Stats, error) {
	return e.run(ctx, []string{"run", "--pattern", pattern, "--lang", language}, targetPath, opts, nil)
}

// RunRule runs a declarative rule document synchronously, returning every
// match.
func (e *Executor) RunRule(ctx context.Context, ruleDoc, language, targetPath string, opts Options) ([]model.Match, Stats, error) {
	tmp, err := os.CreateTemp("", "dupesmith-rule-*.yml")
	if err != nil {
		return nil, Stats{}, dserrors.Wrap(dserrors.ExecutionError, err, "failed to write rule document to temp file")
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.WriteString(ruleDoc); err != nil {
		tmp.Close()
		return nil, Stats{}, dserrors.Wrap(dserrors.ExecutionError, err, "failed to write rule document")
	}
	tmp.Close()

	return e.run(ctx, []string{"scan", "--rule", tmp.Name(), "--lang", language}, targetPath, opts, nil)
}

// Stream runs a structural pattern search (patternOrRule is passed to the
// matcher as --pattern; a rule document is not run as a rule) and emits
// matches incrementally on
// the returned channel as the matcher subprocess's stdout produces them —
// unlike RunStructural/RunRule, it never waits for the subprocess to
// finish before the first match is visible. The channel is closed when the
// operation finishes. Any terminal error is sent on errc before it is
// closed. Early termination (e.g. the caller stops draining) is supported
// by cancelling ctx: the sink passed to run then returns false on its next
// call, which kills the subprocess instead of running it to completion.
func (e *Executor) Stream(ctx context.Context, patternOrRule, language, targetPath string, opts Options) (<-chan model.Match, <-chan error) {
	matches := make(chan model.Match)
	errc := make(chan error, 1)

	sink := func(m model.Match) bool {
		select {
		case matches <- m:
			return true
		case <-ctx.Done():
			return false
		}
	}

	go func() {
		defer close(matches)
		defer close(errc)

		_, _, err := e.run(ctx, []string{"run", "--pattern", patternOrRule, "--lang", language}, targetPath, opts, sink)
		if err != nil && ctx.Err() == nil {
			errc <- err
		}
	}()

	return matches, errc
}

// run invokes the matcher binary and scans its stdout line by line. When
// sink is non-nil, it is called synchronously with each match as soon as
// its JSON line is parsed — before the next line is read, and long before
// the subprocess exits — which is what makes Stream's delivery genuinely
// incremental rather than a buffer-then-replay. sink returning false stops
// the scan early, same as hitting MaxResults. When sink is nil (the
// RunStructural/RunRule path), matches still accumulate into the returned
// slice exactly as before.
func (e *Executor) run(ctx context.Context, baseArgs []string, targetPath string, opts Options, sink func(model.Match) bool) ([]model.Match, Stats, error) {
	log := logging.Get(logging.CategoryMatcher)

	if e.BinaryPath == "" {
		return nil, Stats{}, dserrors.New(dserrors.ToolNotInstalled, "matcher binary path is not configured")
	}
	if _, err := exec.LookPath(e.BinaryPath); err != nil {
		return nil, Stats{}, dserrors.Wrap(dserrors.ToolNotInstalled, err, fmt.Sprintf("matcher binary %q not found", e.BinaryPath))
	}

	files, stats, err := e.walk(ctx, targetPath, opts)
	if err != nil {
		return nil, stats, err
	}

	args := append([]string{}, baseArgs...)
	args = append(args, "--json=stream")
	args = append(args, files...)

	timeout := time.Duration(opts.TimeoutMS) * time.Millisecond
	runCtx := ctx
	var cancel context.CancelFunc
	if timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(runCtx, e.BinaryPath, args...)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, stats, dserrors.Wrap(dserrors.ExecutionError, err, "failed to open matcher stdout")
	}
	var stderr strings.Builder
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return nil, stats, dserrors.Wrap(dserrors.ExecutionError, err, "failed to start matcher process")
	}

	var matches []model.Match
	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	terminated := false
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var mm matcherMatch
		if err := json.Unmarshal([]byte(line), &mm); err != nil {
			log.Warn("skipping malformed matcher output line: %v", err)
			continue
		}
		m := model.Match{
			FilePath:  mm.File,
			StartLine: mm.Range.Start.Line,
			EndLine:   mm.Range.End.Line,
			Text:      mm.Text,
			Language:  "",
		}
		matches = append(matches, m)
		if sink != nil && !sink(m) {
			terminated = true
			_ = cmd.Process.Kill()
			break
		}
		if opts.MaxResults > 0 && len(matches) >= opts.MaxResults {
			terminated = true
			_ = cmd.Process.Kill()
			break
		}
	}
	if terminated {
		_, _ = io.Copy(io.Discard, stdout)
	}

	waitErr := cmd.Wait()

	if runCtx.Err() == context.DeadlineExceeded {
		return matches, stats, dserrors.New(dserrors.Timeout, fmt.Sprintf("matcher timed out after %v", timeout))
	}

	if waitErr != nil && !terminated {
		if len(matches) == 0 && stderr.Len() > 0 {
			tail := tailString(stderr.String(), 4096)
			return matches, stats, dserrors.Newf(dserrors.ExecutionError, "matcher exited nonzero: %s", tail).WithDetails(map[string]any{"stderr": tail})
		}
	}

	return matches, stats, nil
}

func tailString(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}

// walk enumerates candidate files under targetPath, applying include/
// exclude glob filters and the max-file-size threshold concurrently
// (bounded by WalkConcurrency), before the matcher binary is ever invoked.
func (e *Executor) walk(ctx context.Context, targetPath string, opts Options) ([]string, Stats, error) {
	info, err := os.Stat(targetPath)
	if err != nil {
		return nil, Stats{}, dserrors.Wrap(dserrors.InvalidInput, err, "target_path does not exist")
	}
	if !info.IsDir() {
		return []string{targetPath}, Stats{FilesConsidered: 1}, nil
	}

	var candidates []string
	err = filepath.WalkDir(targetPath, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if !matchesPatterns(path, opts.IncludePatterns, opts.ExcludePatterns) {
			return nil
		}
		candidates = append(candidates, path)
		return nil
	})
	if err != nil {
		return nil, Stats{}, dserrors.Wrap(dserrors.InvalidInput, err, "failed to walk target_path")
	}

	if opts.MaxFileSizeMB <= 0 {
		return candidates, Stats{FilesConsidered: len(candidates)}, nil
	}

	maxBytes := int64(opts.MaxFileSizeMB) * 1024 * 1024
	sem := semaphore.NewWeighted(e.WalkConcurrency)
	var mu sync.Mutex
	var accepted []string
	var skipped int
	var wg sync.WaitGroup

	for _, path := range candidates {
		path := path
		if err := sem.Acquire(ctx, 1); err != nil {
			break
		}
		wg.Add(1)
		go func() {
			defer sem.Release(1)
			defer wg.Done()
			fi, statErr := os.Stat(path)
			mu.Lock()
			defer mu.Unlock()
			if statErr != nil || fi.Size() > maxBytes {
				skipped++
				return
			}
			accepted = append(accepted, path)
		}()
	}
	wg.Wait()

	return accepted, Stats{FilesConsidered: len(candidates), FilesSkipped: skipped}, nil
}

func matchesPatterns(path string, include, exclude []string) bool {
	base := filepath.Base(path)
	for _, pat := range exclude {
		if ok, _ := filepath.Match(pat, base); ok {
			return false
		}
		if ok, _ := filepath.Match(pat, path); ok {
			return false
		}
	}
	if len(include) == 0 {
		return true
	}
	for _, pat := range include {
		if ok, _ := filepath.Match(pat, base); ok {
			return true
		}
		if ok, _ := filepath.Match(pat, path); ok {
			return true
		}
	}
	return false
}
