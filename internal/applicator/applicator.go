// Package applicator implements the applicator (C9): the transactional
// protocol that turns generated extractions into file edits, backed by the
// backup store for atomic rollback and the validate gate for pre/post
// syntax checks.
package applicator

import (
	"context"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"

	dserrors "github.com/dupesmith/dupesmith/internal/errors"
	"github.com/dupesmith/dupesmith/internal/backup"
	"github.com/dupesmith/dupesmith/internal/diff"
	"github.com/dupesmith/dupesmith/internal/generator"
	"github.com/dupesmith/dupesmith/internal/logging"
	"github.com/dupesmith/dupesmith/internal/model"
	"github.com/dupesmith/dupesmith/internal/validate"
)

// Extraction bundles one candidate's generated output with the language it
// was generated for (insertion-point rules are language-specific).
type Extraction struct {
	Generated generator.Generated
	Language  string
}

// Options configures one Apply call.
type Options struct {
	// DryRun, when true, reports the planned edits without writing. The zero
	// value performs a real write; the tool catalog passes true unless the
	// caller sets dry_run to false.
	DryRun     bool
	TargetFile string
}

// Applicator runs the apply transaction described in spec.md §4.9.
type Applicator struct {
	Backup   *backup.Store
	Validate *validate.Gate

	locks sync.Map // project root -> *sync.Mutex
}

// New returns an Applicator using the given backup store and validate
// gate.
func New(store *backup.Store, gate *validate.Gate) *Applicator {
	return &Applicator{Backup: store, Validate: gate}
}

type plannedEdit struct {
	filePath    string
	startLine   int
	endLine     int
	replacement string
}

// Apply applies (or, under dry_run, previews) every extraction's call-site
// rewrites and inserts their extracted definitions into opts.TargetFile.
// At most one Apply runs per projectRoot at a time.
func (a *Applicator) Apply(ctx context.Context, projectRoot string, extractions []Extraction, opts Options) (model.ApplicationReport, error) {
	lock := a.lockFor(projectRoot)
	lock.Lock()
	defer lock.Unlock()

	if opts.TargetFile == "" {
		return model.ApplicationReport{}, dserrors.New(dserrors.InvalidInput, "target_file is required")
	}

	edits := make(map[string][]plannedEdit)
	for _, ext := range extractions {
		for _, cs := range ext.Generated.CallSites {
			edits[cs.FilePath] = append(edits[cs.FilePath], plannedEdit{
				filePath:    cs.FilePath,
				startLine:   cs.StartLine,
				endLine:     cs.EndLine,
				replacement: cs.Replacement,
			})
		}
	}
	for file := range edits {
		sort.Slice(edits[file], func(i, j int) bool {
			return edits[file][i].startLine > edits[file][j].startLine
		})
	}

	files := make([]string, 0, len(edits)+1)
	for f := range edits {
		files = append(files, f)
	}
	if _, ok := edits[opts.TargetFile]; !ok {
		files = append(files, opts.TargetFile)
	}
	sort.Strings(files)

	originals := make(map[string]string)
	for _, f := range files {
		data, err := os.ReadFile(f)
		if err != nil {
			return model.ApplicationReport{}, dserrors.Wrap(dserrors.InvalidInput, err, "failed to read "+f)
		}
		originals[f] = string(data)
	}

	extractedDefs := make([]string, 0, len(extractions))
	primaryLanguage := "go"
	for _, ext := range extractions {
		extractedDefs = append(extractedDefs, ext.Generated.ExtractedDefinition)
		primaryLanguage = ext.Language
	}

	newContents := computeNewContents(originals, edits, opts.TargetFile, extractedDefs, primaryLanguage)

	if opts.DryRun {
		var diffs []string
		for _, f := range files {
			fd := diff.ComputeDiff(f, f, originals[f], newContents[f])
			diffs = append(diffs, diff.RenderUnified(fd))
		}
		return model.ApplicationReport{
			Status:       model.StatusDryRun,
			FilesChanged: files,
			Diffs:        diffs,
		}, nil
	}

	preStates := make(map[string]bool)
	for _, f := range files {
		state, err := a.Validate.Check(f, primaryLanguage, []byte(originals[f]))
		if err != nil {
			return model.ApplicationReport{}, err
		}
		preStates[f] = state.HasSyntaxError
	}

	backupID, err := a.Backup.Begin(files)
	if err != nil {
		return model.ApplicationReport{}, err
	}

	log := logging.Get(logging.CategoryApplicator)

	for _, f := range files {
		if err := os.WriteFile(f, []byte(newContents[f]), 0644); err != nil {
			log.Error("write failed for %s, rolling back backup %s: %v", f, backupID, err)
			a.Backup.Restore(backupID)
			return model.ApplicationReport{}, dserrors.Wrap(dserrors.ExecutionError, err, "failed to write "+f)
		}
	}

	var validationErrors []string
	for _, f := range files {
		state, err := a.Validate.Check(f, primaryLanguage, []byte(newContents[f]))
		if err != nil {
			validationErrors = append(validationErrors, f+": "+err.Error())
			continue
		}
		if state.HasSyntaxError && !preStates[f] {
			validationErrors = append(validationErrors, f+": introduced a syntax error")
		}
	}

	if len(validationErrors) > 0 {
		if _, err := a.Backup.Restore(backupID); err != nil {
			return model.ApplicationReport{}, err
		}
		return model.ApplicationReport{
			Status:           model.StatusRolledBack,
			BackupID:         backupID,
			ValidationErrors: validationErrors,
		}, dserrors.New(dserrors.ValidationFailure, "post-apply validation failed; changes rolled back")
	}

	if err := a.Backup.Commit(backupID); err != nil {
		return model.ApplicationReport{}, err
	}

	var diffs []string
	for _, f := range files {
		fd := diff.ComputeDiff(f, f, originals[f], newContents[f])
		diffs = append(diffs, diff.RenderUnified(fd))
	}

	log.Info("applied %d file(s) under backup %s", len(files), backupID)
	return model.ApplicationReport{
		Status:       model.StatusApplied,
		BackupID:     backupID,
		FilesChanged: files,
		Diffs:        diffs,
	}, nil
}

func (a *Applicator) lockFor(projectRoot string) *sync.Mutex {
	abs, err := filepath.Abs(projectRoot)
	if err != nil {
		abs = projectRoot
	}
	l, _ := a.locks.LoadOrStore(abs, &sync.Mutex{})
	return l.(*sync.Mutex)
}

// computeNewContents applies call-site edits to each file (descending start
// line, so earlier edits never invalidate later offsets) and inserts every
// extracted definition into targetFile at a language-appropriate point.
func computeNewContents(originals map[string]string, edits map[string][]plannedEdit, targetFile string, extractedDefs []string, language string) map[string]string {
	result := make(map[string]string, len(originals))
	for file, content := range originals {
		if fileEdits, ok := edits[file]; ok {
			content = applyLineEdits(content, fileEdits)
		}
		result[file] = content
	}

	if len(extractedDefs) > 0 {
		result[targetFile] = insertDefinitions(result[targetFile], extractedDefs, language)
	}
	return result
}

func applyLineEdits(content string, edits []plannedEdit) string {
	lines := strings.Split(content, "\n")
	for _, e := range edits {
		start, end := e.startLine-1, e.endLine-1
		if start < 0 || end >= len(lines) || start > end {
			continue
		}
		replacement := []string{e.replacement}
		lines = append(lines[:start], append(replacement, lines[end+1:]...)...)
	}
	return strings.Join(lines, "\n")
}

var (
	pyImportRe  = regexp.MustCompile(`(?m)^(import |from ).*$`)
	jsImportRe  = regexp.MustCompile(`(?m)^import .*$`)
	javaClassRe = regexp.MustCompile(`(?m)^.*\bclass\b[^{]*\{`)
)

// insertDefinitions places the extracted definitions into content at a
// language-appropriate insertion point: after the last top-level import for
// Python, after the last top-level import for TypeScript/JavaScript, just
// inside the class block for Java, and at end of file otherwise.
func insertDefinitions(content string, defs []string, language string) string {
	block := "\n" + strings.Join(defs, "\n\n") + "\n"

	var re *regexp.Regexp
	switch language {
	case "python":
		re = pyImportRe
	case "javascript", "typescript":
		re = jsImportRe
	case "java":
		re = javaClassRe
	default:
		return content + block
	}

	matches := re.FindAllStringIndex(content, -1)
	if len(matches) == 0 {
		return content + block
	}
	last := matches[len(matches)-1]
	return content[:last[1]] + block + content[last[1]:]
}
