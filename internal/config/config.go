package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/dupesmith/dupesmith/internal/logging"
)

// Config holds all dupesmith configuration.
type Config struct {
	// ProjectRoot is the path to scan.
	ProjectRoot string `yaml:"project_root"`

	Matcher    MatcherConfig    `yaml:"matcher"`
	Cache      CacheConfig      `yaml:"cache"`
	Enrichment EnrichmentConfig `yaml:"enrichment"`
	Detection  DetectionConfig  `yaml:"detection"`
	Backup     BackupConfig     `yaml:"backup"`
	Vocabulary VocabularyConfig `yaml:"vocabulary"`
	Trend      TrendConfig      `yaml:"trend"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// MatcherConfig configures the external structural matcher subprocess (C1).
type MatcherConfig struct {
	BinaryPath     string `yaml:"binary_path"`
	MaxFileSizeMB  int    `yaml:"max_file_size_mb"`
	TimeoutMS      int    `yaml:"timeout_ms"`
}

// CacheConfig configures the query cache (C2).
type CacheConfig struct {
	Size           int `yaml:"cache_size"`
	TTLSeconds     int `yaml:"cache_ttl_seconds"`
}

// EnrichmentConfig configures the enrichment orchestrator (C7).
type EnrichmentConfig struct {
	MaxWorkers                 int  `yaml:"max_workers"`
	TimeoutPerCandidateSeconds int  `yaml:"timeout_per_candidate_seconds"`
	IncludeTestCoverage        bool `yaml:"include_test_coverage"`
}

// DetectionConfig configures the duplication detector (C4).
type DetectionConfig struct {
	MinSimilarity float64 `yaml:"min_similarity"`
	MinLines      int     `yaml:"min_lines"`
	ConstructType string  `yaml:"construct_type"`
}

// BackupConfig configures the backup store (C3).
type BackupConfig struct {
	Root string `yaml:"backup_root"`
}

// VocabularyConfig configures the vocabulary client (C11).
type VocabularyConfig struct {
	BaseURL string `yaml:"base_url"`
}

// TrendConfig configures the complexity trend store (C12).
type TrendConfig struct {
	DatabasePath string `yaml:"database_path"`
}

// LoggingConfig mirrors logging.loggingConfig; kept here as the canonical
// source so Load/Save round-trip it along with everything else.
type LoggingConfig struct {
	DebugMode  bool            `yaml:"debug_mode"`
	Categories map[string]bool `yaml:"categories"`
	Level      string          `yaml:"level"`
	JSONFormat bool            `yaml:"json_format"`
}

// DefaultConfig returns the default configuration, matching every default
// named in the configuration surface.
func DefaultConfig() *Config {
	return &Config{
		ProjectRoot: ".",

		Matcher: MatcherConfig{
			BinaryPath:    "ast-grep",
			MaxFileSizeMB: 10,
			TimeoutMS:     30000,
		},

		Cache: CacheConfig{
			Size:       1000,
			TTLSeconds: 300,
		},

		Enrichment: EnrichmentConfig{
			MaxWorkers:                 4,
			TimeoutPerCandidateSeconds: 30,
			IncludeTestCoverage:        false,
		},

		Detection: DetectionConfig{
			MinSimilarity: 0.8,
			MinLines:      5,
			ConstructType: "function_definition",
		},

		Backup: BackupConfig{
			Root: filepath.Join(".", ".backups"),
		},

		Vocabulary: VocabularyConfig{
			BaseURL: "",
		},

		Trend: TrendConfig{
			DatabasePath: filepath.Join(".", ".dupesmith", "trends.db"),
		},

		Logging: LoggingConfig{
			Level:      "info",
			DebugMode:  false,
			JSONFormat: false,
		},
	}
}

// Load loads configuration from a YAML file, applying defaults for any
// field the file omits and then environment overrides.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	logging.Boot("loading config from: %s", path)

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			logging.Boot("config file not found, using defaults: %s", path)
			cfg.applyEnvOverrides()
			return cfg, cfg.Validate()
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	logging.Boot("config loaded: project_root=%s backup_root=%s", cfg.ProjectRoot, cfg.Backup.Root)
	return cfg, nil
}

// Save writes configuration to a YAML file, creating its directory if
// necessary.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// applyEnvOverrides applies DUPESMITH_-prefixed environment variable
// overrides, following the convention of one var per field.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("DUPESMITH_PROJECT_ROOT"); v != "" {
		c.ProjectRoot = v
	}
	if v := os.Getenv("DUPESMITH_MATCHER_BINARY_PATH"); v != "" {
		c.Matcher.BinaryPath = v
	}
	if v := os.Getenv("DUPESMITH_CACHE_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Cache.Size = n
		}
	}
	if v := os.Getenv("DUPESMITH_CACHE_TTL_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Cache.TTLSeconds = n
		}
	}
	if v := os.Getenv("DUPESMITH_MAX_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Enrichment.MaxWorkers = n
		}
	}
	if v := os.Getenv("DUPESMITH_TIMEOUT_PER_CANDIDATE_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Enrichment.TimeoutPerCandidateSeconds = n
		}
	}
	if v := os.Getenv("DUPESMITH_MIN_SIMILARITY"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.Detection.MinSimilarity = f
		}
	}
	if v := os.Getenv("DUPESMITH_MIN_LINES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Detection.MinLines = n
		}
	}
	if v := os.Getenv("DUPESMITH_BACKUP_ROOT"); v != "" {
		c.Backup.Root = v
	}
	if v := os.Getenv("DUPESMITH_VOCABULARY_BASE_URL"); v != "" {
		c.Vocabulary.BaseURL = v
	}
	if v := os.Getenv("DUPESMITH_TREND_DATABASE_PATH"); v != "" {
		c.Trend.DatabasePath = v
	}
	if v := os.Getenv("DUPESMITH_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("DUPESMITH_DEBUG_MODE"); v != "" {
		c.Logging.DebugMode = v == "1" || v == "true"
	}
}

var validConstructTypes = map[string]bool{
	"function_definition": true,
	"class_definition":    true,
	"block":               true,
}

// Validate checks the configuration against the ranges named in the
// configuration surface.
func (c *Config) Validate() error {
	if c.ProjectRoot == "" {
		return fmt.Errorf("project_root must not be empty")
	}
	if c.Enrichment.MaxWorkers < 1 || c.Enrichment.MaxWorkers > 16 {
		return fmt.Errorf("max_workers must be in [1,16], got %d", c.Enrichment.MaxWorkers)
	}
	if c.Enrichment.TimeoutPerCandidateSeconds < 1 || c.Enrichment.TimeoutPerCandidateSeconds > 300 {
		return fmt.Errorf("timeout_per_candidate_seconds must be in [1,300], got %d", c.Enrichment.TimeoutPerCandidateSeconds)
	}
	if c.Detection.MinSimilarity < 0 || c.Detection.MinSimilarity > 1 {
		return fmt.Errorf("min_similarity must be in [0,1], got %f", c.Detection.MinSimilarity)
	}
	if c.Detection.MinLines < 1 {
		return fmt.Errorf("min_lines must be >= 1, got %d", c.Detection.MinLines)
	}
	if !validConstructTypes[c.Detection.ConstructType] {
		return fmt.Errorf("construct_type must be one of function_definition, class_definition, block; got %q", c.Detection.ConstructType)
	}
	if c.Cache.Size < 1 {
		return fmt.Errorf("cache_size must be >= 1, got %d", c.Cache.Size)
	}
	if c.Cache.TTLSeconds < 1 {
		return fmt.Errorf("cache_ttl_seconds must be >= 1, got %d", c.Cache.TTLSeconds)
	}
	return nil
}

// MatcherTimeout returns the matcher's timeout as a duration.
func (c *Config) MatcherTimeout() time.Duration {
	return time.Duration(c.Matcher.TimeoutMS) * time.Millisecond
}

// CacheTTL returns the cache TTL as a duration.
func (c *Config) CacheTTL() time.Duration {
	return time.Duration(c.Cache.TTLSeconds) * time.Second
}

// EnrichmentTimeoutPerCandidate returns the per-candidate enrichment
// timeout as a duration.
func (c *Config) EnrichmentTimeoutPerCandidate() time.Duration {
	return time.Duration(c.Enrichment.TimeoutPerCandidateSeconds) * time.Second
}

// ResolveBackupRoot returns the configured backup root, defaulting to
// <project_root>/.backups when unset.
func (c *Config) ResolveBackupRoot() string {
	if c.Backup.Root != "" {
		return c.Backup.Root
	}
	return filepath.Join(c.ProjectRoot, ".backups")
}
