// Package main implements the dupesmith CLI - a structural duplication
// detection, ranking, and safe-extraction tool.
//
// This file is the entry point and command registration hub. Direct-action
// subcommands front a subset of the tool catalog's operations
// (internal/tools), not all of them.
package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/dupesmith/dupesmith/internal/applicator"
	"github.com/dupesmith/dupesmith/internal/backup"
	"github.com/dupesmith/dupesmith/internal/cache"
	"github.com/dupesmith/dupesmith/internal/config"
	"github.com/dupesmith/dupesmith/internal/detector"
	"github.com/dupesmith/dupesmith/internal/enrich"
	"github.com/dupesmith/dupesmith/internal/executor"
	"github.com/dupesmith/dupesmith/internal/logging"
	"github.com/dupesmith/dupesmith/internal/normalize"
	"github.com/dupesmith/dupesmith/internal/ranker"
	"github.com/dupesmith/dupesmith/internal/smell"
	"github.com/dupesmith/dupesmith/internal/tools"
	"github.com/dupesmith/dupesmith/internal/trend"
	"github.com/dupesmith/dupesmith/internal/validate"
	"github.com/dupesmith/dupesmith/internal/variation"
	"github.com/dupesmith/dupesmith/internal/vocabulary"
)

var (
	// Global flags
	verbose     bool
	workspace   string
	configPath  string
	opTimeout   time.Duration

	// wired at PersistentPreRunE time
	cfg      *config.Config
	registry *tools.Registry
	cliLog   *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "dupesmith",
	Short: "Find, rank, and safely extract duplicated code",
	Long: `dupesmith finds structurally duplicated code across a project,
ranks candidates for extraction by estimated savings versus risk, and
applies the extraction transactionally with automatic rollback on any
validation failure.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		ws := workspace
		if ws == "" {
			var err error
			ws, err = os.Getwd()
			if err != nil {
				return fmt.Errorf("resolve workspace: %w", err)
			}
		}
		if abs, err := filepath.Abs(ws); err == nil {
			ws = abs
		}
		workspace = ws

		zapCfg := zap.NewProductionConfig()
		if verbose {
			zapCfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		built, err := zapCfg.Build()
		if err != nil {
			return fmt.Errorf("initialize logger: %w", err)
		}
		cliLog = built

		if err := logging.Initialize(ws); err != nil {
			fmt.Fprintf(os.Stderr, "warning: failed to initialize file logging: %v\n", err)
		}

		path := configPath
		if path == "" {
			path = filepath.Join(ws, ".dupesmith", "config.yaml")
		}
		loaded, err := config.Load(path)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		if loaded.ProjectRoot == "." {
			loaded.ProjectRoot = ws
		}
		cfg = loaded

		reg, err := buildRegistry(cfg)
		if err != nil {
			return fmt.Errorf("wire components: %w", err)
		}
		registry = reg
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if cliLog != nil {
			_ = cliLog.Sync()
		}
		logging.CloseAll()
	},
}

// buildRegistry constructs every core component from cfg and wires them
// into a fresh tool registry.
func buildRegistry(cfg *config.Config) (*tools.Registry, error) {
	exec := executor.New(cfg.Matcher.BinaryPath, 0)
	norm := normalize.New()
	c := cache.New(cfg.Cache.Size, time.Duration(cfg.Cache.TTLSeconds)*time.Second)
	det := detector.New(exec, norm)
	varAnalyzer := variation.New(norm)
	rk := ranker.New()

	backupRoot := cfg.Backup.Root
	if !filepath.IsAbs(backupRoot) {
		backupRoot = filepath.Join(cfg.ProjectRoot, backupRoot)
	}
	store, err := backup.New(backupRoot)
	if err != nil {
		return nil, err
	}
	gate := validate.New(norm)
	app := applicator.New(store, gate)

	enrichOrch := enrich.New(enrich.FilesystemTestCoverage, enrich.DefaultImpact, enrich.DefaultRecommendation)

	smellEnforcer := smell.New(exec, nil)

	var vocab *vocabulary.Client
	if cfg.Vocabulary.BaseURL != "" {
		vocab = vocabulary.New(cfg.Vocabulary.BaseURL)
	}

	trendPath := cfg.Trend.DatabasePath
	if !filepath.IsAbs(trendPath) {
		trendPath = filepath.Join(cfg.ProjectRoot, trendPath)
	}
	if err := os.MkdirAll(filepath.Dir(trendPath), 0755); err != nil {
		return nil, fmt.Errorf("create trend database directory: %w", err)
	}
	trendStore, err := trend.Open(trendPath)
	if err != nil {
		return nil, err
	}

	reg := tools.NewRegistry()
	if err := tools.RegisterAll(reg, tools.Deps{
		Executor:   exec,
		Cache:      c,
		Detector:   det,
		Variation:  varAnalyzer,
		Ranker:     rk,
		Enrichment: enrichOrch,
		Applicator: app,
		Backup:     store,
		Smell:      smellEnforcer,
		Vocabulary: vocab,
		Trend:      trendStore,
	}); err != nil {
		return nil, err
	}
	return reg, nil
}

// runTool is shared by every direct-action subcommand: it executes a named
// tool against the registry and prints its JSON result.
func runTool(name string, args map[string]any) error {
	ctx := context.Background()
	if opTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opTimeout)
		defer cancel()
	}
	if cliLog != nil {
		cliLog.Debug("executing tool", zap.String("tool", name))
	}
	result, err := registry.Execute(ctx, name, args)
	if err != nil {
		if cliLog != nil {
			cliLog.Error("tool execution failed", zap.String("tool", name), zap.Error(err))
		}
		return err
	}
	if result.Error != nil {
		return result.Error
	}
	fmt.Println(result.Result)
	return nil
}

var findDuplicatesCmd = &cobra.Command{
	Use:   "find-duplicates <project_path> <language>",
	Short: "Find duplicated constructs across a project",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		minSimilarity, _ := cmd.Flags().GetFloat64("min-similarity")
		minLines, _ := cmd.Flags().GetInt("min-lines")
		constructType, _ := cmd.Flags().GetString("construct-type")
		return runTool("find_duplicates", map[string]any{
			"project_path":   args[0],
			"language":       args[1],
			"min_similarity": minSimilarity,
			"min_lines":      minLines,
			"construct_type": constructType,
		})
	},
}

var checkSmellsCmd = &cobra.Command{
	Use:   "check-smells <project_path> <language>",
	Short: "Run smell/lint rules over a project",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runTool("check_smells", map[string]any{
			"project_path": args[0],
			"language":     args[1],
		})
	},
}

var vocabularyLookupCmd = &cobra.Command{
	Use:   "vocabulary-lookup <term>",
	Short: "Look up a domain-vocabulary term",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runTool("vocabulary_lookup", map[string]any{"term": args[0]})
	},
}

var listBackupsCmd = &cobra.Command{
	Use:   "list-backups",
	Short: "List every committed backup, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runTool("list_backups", nil)
	},
}

var verifyBackupCmd = &cobra.Command{
	Use:   "verify-backup <backup_id>",
	Short: "Verify a backup's stored files against their recorded checksums",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runTool("verify_backup", map[string]any{"backup_id": args[0]})
	},
}

var rollbackCmd = &cobra.Command{
	Use:   "rollback <backup_id>",
	Short: "Restore every file in a committed backup",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		apply, _ := cmd.Flags().GetBool("apply")
		return runTool("rollback", map[string]any{
			"backup_id": args[0],
			"dry_run":   !apply,
		})
	},
}

var cacheStatsCmd = &cobra.Command{
	Use:   "cache-stats",
	Short: "Report query cache hit/miss counts and current size",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runTool("cache_stats", nil)
	},
}

var rewriteCmd = &cobra.Command{
	Use:   "rewrite <file_path> <language>",
	Short: "Rewrite a single file's contents from stdin, validating and rolling back on a new syntax error",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		content, err := readAllStdin()
		if err != nil {
			return err
		}
		apply, _ := cmd.Flags().GetBool("apply")
		return runTool("rewrite", map[string]any{
			"file_path":   args[0],
			"language":    args[1],
			"new_content": content,
			"dry_run":     !apply,
		})
	},
}

var structuralSearchCmd = &cobra.Command{
	Use:   "structural-search <pattern> <language> <target_path>",
	Short: "Run a structural pattern search",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runTool("structural_search", map[string]any{
			"pattern":     args[0],
			"language":    args[1],
			"target_path": args[2],
		})
	},
}

var recordTrendCmd = &cobra.Command{
	Use:   "record-trend <file_path> <metric> <value>",
	Short: "Record a complexity snapshot for a file",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		value, err := strconv.ParseFloat(args[2], 64)
		if err != nil {
			return fmt.Errorf("invalid value %q: %w", args[2], err)
		}
		apply, _ := cmd.Flags().GetBool("apply")
		return runTool("record_complexity_trend", map[string]any{
			"file_path": args[0],
			"metric":    args[1],
			"value":     value,
			"dry_run":   !apply,
		})
	},
}

var queryTrendCmd = &cobra.Command{
	Use:   "query-trend <file_path>",
	Short: "Query recorded complexity snapshots for a file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		since, _ := cmd.Flags().GetString("since")
		return runTool("query_complexity_trend", map[string]any{
			"file_path": args[0],
			"since":     since,
		})
	},
}

func readAllStdin() (string, error) {
	var buf []byte
	chunk := make([]byte, 4096)
	for {
		n, err := os.Stdin.Read(chunk)
		if n > 0 {
			buf = append(buf, chunk[:n]...)
		}
		if err != nil {
			break
		}
	}
	return string(buf), nil
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVarP(&workspace, "workspace", "w", "", "project root (default: current directory)")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to config.yaml (default: <workspace>/.dupesmith/config.yaml)")
	rootCmd.PersistentFlags().DurationVar(&opTimeout, "timeout", 0, "operation timeout (0 = unbounded)")

	findDuplicatesCmd.Flags().Float64("min-similarity", 1.0, "minimum bucket-merge similarity in [0,1]")
	findDuplicatesCmd.Flags().Int("min-lines", 3, "minimum construct line count")
	findDuplicatesCmd.Flags().String("construct-type", "function_definition", "function_definition, class_definition, or block")

	rollbackCmd.Flags().Bool("apply", false, "actually restore (default previews what would be restored)")
	rewriteCmd.Flags().Bool("apply", false, "actually write the file (default previews the diff)")
	recordTrendCmd.Flags().Bool("apply", false, "actually record the snapshot (default previews it)")
	queryTrendCmd.Flags().String("since", "", "RFC3339 timestamp lower bound")

	rootCmd.AddCommand(
		findDuplicatesCmd,
		checkSmellsCmd,
		vocabularyLookupCmd,
		listBackupsCmd,
		verifyBackupCmd,
		rollbackCmd,
		cacheStatsCmd,
		rewriteCmd,
		structuralSearchCmd,
		recordTrendCmd,
		queryTrendCmd,
	)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
