package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	dserrors "github.com/dupesmith/dupesmith/internal/errors"

	"github.com/dupesmith/dupesmith/internal/applicator"
	"github.com/dupesmith/dupesmith/internal/backup"
	"github.com/dupesmith/dupesmith/internal/cache"
	"github.com/dupesmith/dupesmith/internal/detector"
	"github.com/dupesmith/dupesmith/internal/diff"
	"github.com/dupesmith/dupesmith/internal/enrich"
	"github.com/dupesmith/dupesmith/internal/executor"
	"github.com/dupesmith/dupesmith/internal/generator"
	"github.com/dupesmith/dupesmith/internal/model"
	"github.com/dupesmith/dupesmith/internal/ranker"
	"github.com/dupesmith/dupesmith/internal/smell"
	"github.com/dupesmith/dupesmith/internal/trend"
	"github.com/dupesmith/dupesmith/internal/variation"
	"github.com/dupesmith/dupesmith/internal/vocabulary"
)

// Deps bundles every component the catalog fronts. RegisterAll wires one
// Tool per component operation into a Registry; a nil field simply leaves
// the tools that depend on it unregistered, so callers can assemble a
// partial catalog (e.g. in tests).
type Deps struct {
	Executor    *executor.Executor
	Cache       *cache.Cache
	Detector    *detector.Detector
	Variation   *variation.Analyzer
	Ranker      *ranker.Ranker
	Enrichment  *enrich.Orchestrator
	Applicator  *applicator.Applicator
	Backup      *backup.Store
	Smell       *smell.Enforcer
	Vocabulary  *vocabulary.Client
	Trend       *trend.Store
}

// RegisterAll registers every tool deps supports into r.
func RegisterAll(r *Registry, deps Deps) error {
	for _, t := range buildTools(deps) {
		if err := r.Register(t); err != nil {
			return fmt.Errorf("registering tool %s: %w", t.Name, err)
		}
	}
	return nil
}

func buildTools(deps Deps) []*Tool {
	var out []*Tool

	if deps.Executor != nil {
		out = append(out,
			structuralSearchTool(deps.Executor, deps.Cache),
			structuralRuleScanTool(deps.Executor, deps.Cache),
			structuralStreamTool(deps.Executor),
		)
	}
	if deps.Detector != nil {
		out = append(out, findDuplicatesTool(deps.Detector))
	}
	if deps.Ranker != nil {
		out = append(out, rankCandidatesTool(deps.Ranker))
	}
	if deps.Enrichment != nil {
		out = append(out, enrichCandidatesTool(deps.Enrichment))
	}
	if deps.Applicator != nil {
		out = append(out,
			previewDeduplicationTool(deps.Applicator),
			applyDeduplicationTool(deps.Applicator),
			rewriteTool(deps.Applicator),
		)
	}
	if deps.Backup != nil {
		out = append(out,
			rollbackTool(deps.Backup),
			listBackupsTool(deps.Backup),
			verifyBackupTool(deps.Backup),
		)
	}
	if deps.Variation != nil {
		out = append(out, planVariationTool(deps.Variation))
	}
	if deps.Cache != nil {
		out = append(out, cacheStatsTool(deps.Cache))
	}
	if deps.Smell != nil {
		out = append(out, checkSmellsTool(deps.Smell))
	}
	if deps.Vocabulary != nil {
		out = append(out, vocabularyLookupTool(deps.Vocabulary))
	}
	if deps.Trend != nil {
		out = append(out,
			recordTrendTool(deps.Trend),
			queryTrendTool(deps.Trend),
		)
	}
	return out
}

// --- argument helpers -------------------------------------------------

func strArg(args map[string]any, key, def string) string {
	if v, ok := args[key]; ok {
		if s, ok := v.(string); ok && s != "" {
			return s
		}
	}
	return def
}

func requireStrArg(args map[string]any, key string) (string, error) {
	v, ok := args[key]
	if !ok {
		return "", dserrors.Newf(dserrors.InvalidInput, "%s is required", key)
	}
	s, ok := v.(string)
	if !ok || s == "" {
		return "", dserrors.Newf(dserrors.InvalidInput, "%s must be a non-empty string", key)
	}
	return s, nil
}

func intArg(args map[string]any, key string, def int) int {
	switch v := args[key].(type) {
	case int:
		return v
	case float64:
		return int(v)
	}
	return def
}

func floatArg(args map[string]any, key string, def float64) float64 {
	switch v := args[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	}
	return def
}

func boolArg(args map[string]any, key string, def bool) bool {
	if v, ok := args[key].(bool); ok {
		return v
	}
	return def
}

func strSliceArg(args map[string]any, key string) []string {
	raw, ok := args[key].([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// jsonArg decodes a JSON-object or JSON-string argument (accepting either
// a pre-decoded map/slice from the caller, or a raw JSON string) into out.
func jsonArg(args map[string]any, key string, out any) error {
	v, ok := args[key]
	if !ok {
		return dserrors.Newf(dserrors.InvalidInput, "%s is required", key)
	}
	if s, ok := v.(string); ok {
		return json.Unmarshal([]byte(s), out)
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return dserrors.Wrap(dserrors.InvalidInput, err, "failed to re-marshal "+key)
	}
	return json.Unmarshal(raw, out)
}

func toJSON(v any) (string, error) {
	raw, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", dserrors.Wrap(dserrors.ExecutionError, err, "failed to marshal tool result")
	}
	return string(raw), nil
}

// --- search tools (C1) --------------------------------------------------

func structuralSearchTool(exec *executor.Executor, c *cache.Cache) *Tool {
	return &Tool{
		Name:        "structural_search",
		Description: "Run a structural pattern search over a project and return every match.",
		Category:    CategorySearch,
		Schema: ToolSchema{
			Required: []string{"pattern", "language", "target_path"},
			Properties: map[string]Property{
				"pattern":     {Type: "string", Description: "ast-grep compatible structural pattern"},
				"language":    {Type: "string", Description: "source language"},
				"target_path": {Type: "string", Description: "file or directory to search"},
			},
		},
		Execute: func(ctx context.Context, args map[string]any) (string, error) {
			pattern, err := requireStrArg(args, "pattern")
			if err != nil {
				return "", err
			}
			language, err := requireStrArg(args, "language")
			if err != nil {
				return "", err
			}
			targetPath, err := requireStrArg(args, "target_path")
			if err != nil {
				return "", err
			}
			opts := executor.Options{
				MaxResults: intArg(args, "max_results", 0),
				TimeoutMS:  intArg(args, "timeout_ms", 0),
			}

			key := cache.FingerprintKey("structural_search", pattern, language, targetPath, args)
			if c != nil {
				if cached, ok := c.Get(key); ok {
					return toJSON(cached)
				}
			}

			matches, _, err := exec.RunStructural(ctx, pattern, language, targetPath, opts)
			if err != nil {
				return "", err
			}
			if c != nil {
				c.Put(key, matches)
			}
			return toJSON(matches)
		},
	}
}

func structuralRuleScanTool(exec *executor.Executor, c *cache.Cache) *Tool {
	return &Tool{
		Name:        "structural_rule_scan",
		Description: "Run a declarative structural rule document over a project.",
		Category:    CategorySearch,
		Schema: ToolSchema{
			Required: []string{"rule", "language", "target_path"},
			Properties: map[string]Property{
				"rule":        {Type: "string", Description: "YAML rule document"},
				"language":    {Type: "string", Description: "source language"},
				"target_path": {Type: "string", Description: "file or directory to scan"},
			},
		},
		Execute: func(ctx context.Context, args map[string]any) (string, error) {
			rule, err := requireStrArg(args, "rule")
			if err != nil {
				return "", err
			}
			language, err := requireStrArg(args, "language")
			if err != nil {
				return "", err
			}
			targetPath, err := requireStrArg(args, "target_path")
			if err != nil {
				return "", err
			}
			opts := executor.Options{TimeoutMS: intArg(args, "timeout_ms", 0)}

			key := cache.FingerprintKey("structural_rule_scan", rule, language, targetPath, args)
			if c != nil {
				if cached, ok := c.Get(key); ok {
					return toJSON(cached)
				}
			}

			matches, _, err := exec.RunRule(ctx, rule, language, targetPath, opts)
			if err != nil {
				return "", err
			}
			if c != nil {
				c.Put(key, matches)
			}
			return toJSON(matches)
		},
	}
}

func structuralStreamTool(exec *executor.Executor) *Tool {
	return &Tool{
		Name:        "structural_stream",
		Description: "Run a structural search, draining the streamed results into a single response.",
		Category:    CategorySearch,
		Schema: ToolSchema{
			Required: []string{"pattern", "language", "target_path"},
			Properties: map[string]Property{
				"pattern":     {Type: "string"},
				"language":    {Type: "string"},
				"target_path": {Type: "string"},
			},
		},
		Execute: func(ctx context.Context, args map[string]any) (string, error) {
			pattern, err := requireStrArg(args, "pattern")
			if err != nil {
				return "", err
			}
			language, err := requireStrArg(args, "language")
			if err != nil {
				return "", err
			}
			targetPath, err := requireStrArg(args, "target_path")
			if err != nil {
				return "", err
			}
			opts := executor.Options{TimeoutMS: intArg(args, "timeout_ms", 0)}

			matches, errc := exec.Stream(ctx, pattern, language, targetPath, opts)
			var results []model.Match
			for m := range matches {
				results = append(results, m)
			}
			if err := <-errc; err != nil {
				return "", err
			}
			return toJSON(results)
		},
	}
}

// --- duplication pipeline tools (C4-C9) ---------------------------------

func findDuplicatesTool(d *detector.Detector) *Tool {
	return &Tool{
		Name:        "find_duplicates",
		Description: "Find duplicated constructs across a project.",
		Category:    CategoryDuplication,
		Schema: ToolSchema{
			Required: []string{"project_path", "language"},
			Properties: map[string]Property{
				"project_path":   {Type: "string"},
				"language":       {Type: "string"},
				"min_similarity": {Type: "number", Default: 1.0},
				"min_lines":      {Type: "integer", Default: 3},
				"construct_type": {Type: "string", Default: "function_definition"},
			},
		},
		Execute: func(ctx context.Context, args map[string]any) (string, error) {
			projectPath, err := requireStrArg(args, "project_path")
			if err != nil {
				return "", err
			}
			language, err := requireStrArg(args, "language")
			if err != nil {
				return "", err
			}
			params := detector.Params{
				MinSimilarity:   floatArg(args, "min_similarity", 1.0),
				MinLines:        intArg(args, "min_lines", 3),
				ConstructType:   strArg(args, "construct_type", "function_definition"),
				ExcludePatterns: strSliceArg(args, "exclude_patterns"),
			}
			groups, err := d.FindDuplicates(ctx, projectPath, language, params)
			if err != nil {
				return "", err
			}
			return toJSON(groups)
		},
	}
}

func planVariationTool(a *variation.Analyzer) *Tool {
	return &Tool{
		Name:        "plan_variation",
		Description: "Analyze a duplicate group's parameter slots and structural variations.",
		Category:    CategoryDuplication,
		Schema: ToolSchema{
			Required: []string{"group", "language"},
			Properties: map[string]Property{
				"group":    {Type: "object", Description: "a DuplicateGroup, as JSON"},
				"language": {Type: "string"},
			},
		},
		Execute: func(ctx context.Context, args map[string]any) (string, error) {
			var group model.DuplicateGroup
			if err := jsonArg(args, "group", &group); err != nil {
				return "", err
			}
			language, err := requireStrArg(args, "language")
			if err != nil {
				return "", err
			}
			plan, err := a.Analyze(group, language)
			if err != nil {
				return "", err
			}
			return toJSON(plan)
		},
	}
}

func rankCandidatesTool(rk *ranker.Ranker) *Tool {
	return &Tool{
		Name:        "rank_candidates",
		Description: "Score and rank refactoring candidates by estimated savings, complexity, risk, and effort.",
		Category:    CategoryDuplication,
		Schema: ToolSchema{
			Required: []string{"candidates"},
			Properties: map[string]Property{
				"candidates": {Type: "array", Description: "candidates to score, as JSON"},
				"max":        {Type: "integer", Default: 0},
			},
		},
		Execute: func(ctx context.Context, args map[string]any) (string, error) {
			var candidates []model.Candidate
			if err := jsonArg(args, "candidates", &candidates); err != nil {
				return "", err
			}
			max := intArg(args, "max", len(candidates))
			ranked := rk.Rank(candidates, max)
			return toJSON(ranked)
		},
	}
}

func enrichCandidatesTool(o *enrich.Orchestrator) *Tool {
	return &Tool{
		Name:        "enrich_candidates",
		Description: "Attach test coverage, impact, and recommendation data to ranked candidates.",
		Category:    CategoryDuplication,
		Schema: ToolSchema{
			Required: []string{"candidates"},
			Properties: map[string]Property{
				"candidates":             {Type: "array", Description: "ranked candidates, as JSON"},
				"parallel":               {Type: "boolean", Default: true},
				"max_workers":            {Type: "integer", Default: 4},
				"include_test_coverage":  {Type: "boolean", Default: false},
				"max_candidates":         {Type: "integer", Default: 0},
			},
		},
		Execute: func(ctx context.Context, args map[string]any) (string, error) {
			var candidates []model.Candidate
			if err := jsonArg(args, "candidates", &candidates); err != nil {
				return "", err
			}
			opts := enrich.Options{
				Parallel:            boolArg(args, "parallel", true),
				MaxWorkers:          intArg(args, "max_workers", 0),
				IncludeTestCoverage: boolArg(args, "include_test_coverage", false),
				MaxCandidates:       intArg(args, "max_candidates", 0),
			}
			enriched, err := o.Enrich(ctx, candidates, opts)
			if err != nil {
				return "", err
			}
			return toJSON(enriched)
		},
	}
}

// --- apply / backup tools (C9, C3) --------------------------------------

func extractionsFromArgs(args map[string]any) ([]applicator.Extraction, error) {
	var raw []struct {
		Generated generator.Generated `json:"generated"`
		Language  string              `json:"language"`
	}
	if err := jsonArg(args, "extractions", &raw); err != nil {
		return nil, err
	}
	out := make([]applicator.Extraction, len(raw))
	for i, r := range raw {
		out[i] = applicator.Extraction{Generated: r.Generated, Language: r.Language}
	}
	return out, nil
}

func previewDeduplicationTool(a *applicator.Applicator) *Tool {
	return &Tool{
		Name:        "preview_deduplication",
		Description: "Preview the file edits a deduplication would make, without touching the filesystem.",
		Category:    CategoryDuplication,
		Mutates:     false,
		Schema: ToolSchema{
			Required: []string{"project_path", "extractions", "target_file"},
			Properties: map[string]Property{
				"project_path": {Type: "string"},
				"extractions":  {Type: "array"},
				"target_file":  {Type: "string"},
			},
		},
		Execute: func(ctx context.Context, args map[string]any) (string, error) {
			projectPath, err := requireStrArg(args, "project_path")
			if err != nil {
				return "", err
			}
			targetFile, err := requireStrArg(args, "target_file")
			if err != nil {
				return "", err
			}
			extractions, err := extractionsFromArgs(args)
			if err != nil {
				return "", err
			}
			report, err := a.Apply(ctx, projectPath, extractions, applicator.Options{DryRun: true, TargetFile: targetFile})
			if err != nil {
				return "", err
			}
			return toJSON(report)
		},
	}
}

func applyDeduplicationTool(a *applicator.Applicator) *Tool {
	return &Tool{
		Name:        "apply_deduplication",
		Description: "Apply a deduplication's file edits, backing up originals and rolling back on validation failure.",
		Category:    CategoryDuplication,
		Mutates:     true,
		Schema: ToolSchema{
			Required: []string{"project_path", "extractions", "target_file"},
			Properties: map[string]Property{
				"project_path": {Type: "string"},
				"extractions":  {Type: "array"},
				"target_file":  {Type: "string"},
				"dry_run":      {Type: "boolean", Default: true},
			},
		},
		Execute: func(ctx context.Context, args map[string]any) (string, error) {
			projectPath, err := requireStrArg(args, "project_path")
			if err != nil {
				return "", err
			}
			targetFile, err := requireStrArg(args, "target_file")
			if err != nil {
				return "", err
			}
			extractions, err := extractionsFromArgs(args)
			if err != nil {
				return "", err
			}
			opts := applicator.Options{
				DryRun:     boolArg(args, "dry_run", true),
				TargetFile: targetFile,
			}
			report, err := a.Apply(ctx, projectPath, extractions, opts)
			if err != nil {
				return "", err
			}
			return toJSON(report)
		},
	}
}

// rewriteTool performs a direct single-file structural rewrite using the
// applicator's write/validate/rollback machinery, but without C9's
// duplication-specific call-site planning: the caller supplies the new
// file contents directly.
func rewriteTool(a *applicator.Applicator) *Tool {
	return &Tool{
		Name:        "rewrite",
		Description: "Rewrite a single file's contents, validating the result and rolling back on a new syntax error.",
		Category:    CategoryDuplication,
		Mutates:     true,
		Schema: ToolSchema{
			Required: []string{"file_path", "new_content", "language"},
			Properties: map[string]Property{
				"file_path":   {Type: "string"},
				"new_content": {Type: "string"},
				"language":    {Type: "string"},
				"dry_run":     {Type: "boolean", Default: true},
			},
		},
		Execute: func(ctx context.Context, args map[string]any) (string, error) {
			filePath, err := requireStrArg(args, "file_path")
			if err != nil {
				return "", err
			}
			newContent, err := requireStrArg(args, "new_content")
			if err != nil {
				return "", err
			}
			language, err := requireStrArg(args, "language")
			if err != nil {
				return "", err
			}

			original, err := os.ReadFile(filePath)
			if err != nil {
				return "", dserrors.Wrap(dserrors.InvalidInput, err, "failed to read "+filePath)
			}

			fd := diff.ComputeDiff(filePath, filePath, string(original), newContent)
			rendered := diff.RenderUnified(fd)

			if boolArg(args, "dry_run", true) {
				return toJSON(map[string]any{"status": "dry_run", "diff": rendered})
			}

			preState, err := a.Validate.Check(filePath, language, original)
			if err != nil {
				return "", err
			}

			backupID, err := a.Backup.Begin([]string{filePath})
			if err != nil {
				return "", err
			}
			if err := os.WriteFile(filePath, []byte(newContent), 0644); err != nil {
				a.Backup.Restore(backupID)
				return "", dserrors.Wrap(dserrors.ExecutionError, err, "failed to write "+filePath)
			}

			postState, err := a.Validate.Check(filePath, language, []byte(newContent))
			if err != nil || (postState.HasSyntaxError && !preState.HasSyntaxError) {
				if _, rerr := a.Backup.Restore(backupID); rerr != nil {
					return "", rerr
				}
				return "", dserrors.New(dserrors.ValidationFailure, "rewrite introduced a syntax error; rolled back")
			}

			if err := a.Backup.Commit(backupID); err != nil {
				return "", err
			}
			return toJSON(map[string]any{"status": "applied", "backup_id": backupID, "diff": rendered})
		},
	}
}

func rollbackTool(store *backup.Store) *Tool {
	return &Tool{
		Name:        "rollback",
		Description: "Restore every file in a committed backup to its pre-apply contents.",
		Category:    CategoryBackup,
		Mutates:     true,
		Schema: ToolSchema{
			Required: []string{"backup_id"},
			Properties: map[string]Property{
				"backup_id": {Type: "string"},
				"dry_run":   {Type: "boolean", Default: true},
			},
		},
		Execute: func(ctx context.Context, args map[string]any) (string, error) {
			backupID, err := requireStrArg(args, "backup_id")
			if err != nil {
				return "", err
			}
			if boolArg(args, "dry_run", true) {
				report, err := store.Verify(backupID)
				if err != nil {
					return "", err
				}
				return toJSON(map[string]any{"would_restore": report})
			}
			report, err := store.Restore(backupID)
			if err != nil {
				return "", err
			}
			return toJSON(report)
		},
	}
}

func listBackupsTool(store *backup.Store) *Tool {
	return &Tool{
		Name:        "list_backups",
		Description: "List every committed backup, newest first.",
		Category:    CategoryBackup,
		Schema:      ToolSchema{},
		Execute: func(ctx context.Context, args map[string]any) (string, error) {
			summaries, err := store.List()
			if err != nil {
				return "", err
			}
			return toJSON(summaries)
		},
	}
}

func verifyBackupTool(store *backup.Store) *Tool {
	return &Tool{
		Name:        "verify_backup",
		Description: "Verify a backup's stored files still match their recorded checksums.",
		Category:    CategoryBackup,
		Schema: ToolSchema{
			Required:   []string{"backup_id"},
			Properties: map[string]Property{"backup_id": {Type: "string"}},
		},
		Execute: func(ctx context.Context, args map[string]any) (string, error) {
			backupID, err := requireStrArg(args, "backup_id")
			if err != nil {
				return "", err
			}
			report, err := store.Verify(backupID)
			if err != nil {
				return "", err
			}
			return toJSON(report)
		},
	}
}

// --- misc tools (C2, C11, C12, C13) --------------------------------------

func cacheStatsTool(c *cache.Cache) *Tool {
	return &Tool{
		Name:        "cache_stats",
		Description: "Report query cache hit/miss counts and current size.",
		Category:    CategorySearch,
		Schema:      ToolSchema{},
		Execute: func(ctx context.Context, args map[string]any) (string, error) {
			return toJSON(c.Stats())
		},
	}
}

func checkSmellsTool(e *smell.Enforcer) *Tool {
	return &Tool{
		Name:        "check_smells",
		Description: "Run the configured smell/lint rules over a project.",
		Category:    CategoryLint,
		Schema: ToolSchema{
			Required: []string{"project_path", "language"},
			Properties: map[string]Property{
				"project_path": {Type: "string"},
				"language":     {Type: "string"},
			},
		},
		Execute: func(ctx context.Context, args map[string]any) (string, error) {
			projectPath, err := requireStrArg(args, "project_path")
			if err != nil {
				return "", err
			}
			language, err := requireStrArg(args, "language")
			if err != nil {
				return "", err
			}
			findings, err := e.Check(ctx, projectPath, language, executor.Options{})
			if err != nil {
				return "", err
			}
			return toJSON(findings)
		},
	}
}

func vocabularyLookupTool(c *vocabulary.Client) *Tool {
	return &Tool{
		Name:        "vocabulary_lookup",
		Description: "Look up a domain-vocabulary term's definition.",
		Category:    CategoryVocabulary,
		Schema: ToolSchema{
			Required:   []string{"term"},
			Properties: map[string]Property{"term": {Type: "string"}},
		},
		Execute: func(ctx context.Context, args map[string]any) (string, error) {
			term, err := requireStrArg(args, "term")
			if err != nil {
				return "", err
			}
			result, err := c.Lookup(ctx, term)
			if err != nil {
				return "", err
			}
			return toJSON(result)
		},
	}
}

func recordTrendTool(t *trend.Store) *Tool {
	return &Tool{
		Name:        "record_complexity_trend",
		Description: "Record a complexity snapshot for a file.",
		Category:    CategoryComplexity,
		Mutates:     true,
		Schema: ToolSchema{
			Required: []string{"file_path", "metric", "value"},
			Properties: map[string]Property{
				"file_path": {Type: "string"},
				"metric":    {Type: "string"},
				"value":     {Type: "number"},
				"dry_run":   {Type: "boolean", Default: true},
			},
		},
		Execute: func(ctx context.Context, args map[string]any) (string, error) {
			filePath, err := requireStrArg(args, "file_path")
			if err != nil {
				return "", err
			}
			metric, err := requireStrArg(args, "metric")
			if err != nil {
				return "", err
			}
			if boolArg(args, "dry_run", true) {
				return toJSON(map[string]any{"would_record": true, "file_path": filePath, "metric": metric})
			}
			snap := model.TrendSnapshot{
				FilePath: filePath,
				Metric:   metric,
				Value:    floatArg(args, "value", 0),
			}
			if err := t.Record(ctx, snap); err != nil {
				return "", err
			}
			return toJSON(map[string]any{"recorded": true})
		},
	}
}

func queryTrendTool(t *trend.Store) *Tool {
	return &Tool{
		Name:        "query_complexity_trend",
		Description: "Query recorded complexity snapshots for a file since a point in time.",
		Category:    CategoryComplexity,
		Schema: ToolSchema{
			Required: []string{"file_path"},
			Properties: map[string]Property{
				"file_path": {Type: "string"},
				"since":     {Type: "string", Description: "RFC3339 timestamp; defaults to the zero time"},
			},
		},
		Execute: func(ctx context.Context, args map[string]any) (string, error) {
			filePath, err := requireStrArg(args, "file_path")
			if err != nil {
				return "", err
			}
			var since time.Time
			if s, ok := args["since"].(string); ok && s != "" {
				parsed, err := time.Parse(time.RFC3339, s)
				if err != nil {
					return "", dserrors.Wrap(dserrors.InvalidInput, err, "invalid since timestamp")
				}
				since = parsed
			}
			snapshots, err := t.Query(ctx, filePath, since)
			if err != nil {
				return "", err
			}
			return toJSON(snapshots)
		},
	}
}
