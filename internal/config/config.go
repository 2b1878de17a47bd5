package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Fallback policies applied when a search returns no results.
const (
	// FallbackNumeric enriches only queries that look like a barcode (N+ digits).
	FallbackNumeric = "numeric"
	// FallbackAlways enriches every non-wildcard query that misses.
	FallbackAlways = "always"
)

// Config holds application configuration.
type Config struct {
	// APIBaseURL is the origin of the catalog backend (search, add_product, ...).
	APIBaseURL string `json:"api_base_url"`

	// AIFallback selects what happens when a search misses: "numeric" or "always".
	AIFallback string `json:"ai_fallback"`

	// NumericMinDigits is the minimum digit count for the numeric fallback policy.
	NumericMinDigits int `json:"numeric_min_digits"`

	// DefaultProvider is the enrichment provider used when none is selected ("gemini", "chatgpt").
	DefaultProvider string `json:"default_provider"`

	// OpenAIModel is the chat model used when chatgpt enrichment runs locally.
	// The API key is read from OPENAI_API_KEY, never from this file.
	OpenAIModel string `json:"openai_model"`

	// CartKey is the fixed storage key the cart is persisted under.
	CartKey string `json:"cart_key"`

	// RequestTimeoutSeconds bounds each backend call.
	RequestTimeoutSeconds int `json:"request_timeout_seconds"`

	// ImportConcurrency limits in-flight add_product calls during a catalog import.
	ImportConcurrency int `json:"import_concurrency"`

	// ConfirmDestructive asks before cart remove/clear. Nil means the default (true).
	ConfirmDestructive *bool `json:"confirm_destructive,omitempty"`

	// ExportsDir is the default directory for CSV exports.
	// Defaults to <baseDir>/exports.
	ExportsDir string `json:"exports_dir,omitempty"`

	// AllowedPaths is an allowlist of directories for import/export operations.
	// Paths outside ExportsDir require either being in this list or AllowUnsafePaths=true.
	// Paths should be absolute (relative paths are ignored).
	AllowedPaths []string `json:"allowed_paths,omitempty"`

	// AllowUnsafePaths disables directory restrictions for import/export.
	// When true, any directory is allowed (but symlink and extension checks still apply).
	AllowUnsafePaths bool `json:"allow_unsafe_paths,omitempty"`

	// DBMaxOpenConns limits the maximum number of open database connections.
	// 0 means use sql.DB default (unlimited).
	DBMaxOpenConns int `json:"db_max_open_conns,omitempty"`

	// DBMaxIdleConns limits the maximum number of idle database connections.
	DBMaxIdleConns int `json:"db_max_idle_conns,omitempty"`

	// DisabledTools is a list of MCP tool names to exclude from registration.
	// Unknown tool names are logged as warnings.
	DisabledTools []string `json:"disabled_tools,omitempty"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		APIBaseURL:            "http://localhost:8080",
		AIFallback:            FallbackNumeric,
		NumericMinDigits:      8,
		DefaultProvider:       "gemini",
		OpenAIModel:           "gpt-4o-mini",
		CartKey:               "skuManagementCart",
		RequestTimeoutSeconds: 30,
		ImportConcurrency:     4,
	}
}

// RequestTimeout returns the backend call timeout as a duration.
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutSeconds) * time.Second
}

// ShouldConfirm reports whether destructive cart actions need confirmation.
func (c *Config) ShouldConfirm() bool {
	if c.ConfirmDestructive == nil {
		return true
	}
	return *c.ConfirmDestructive
}

// Validate checks values that cannot be defaulted.
func (c *Config) Validate() error {
	switch c.AIFallback {
	case FallbackNumeric, FallbackAlways:
	default:
		return fmt.Errorf("ai_fallback must be one of: %s, %s (got %q)", FallbackNumeric, FallbackAlways, c.AIFallback)
	}
	if c.NumericMinDigits < 1 {
		return fmt.Errorf("numeric_min_digits must be positive")
	}
	if strings.TrimSpace(c.CartKey) == "" {
		return fmt.Errorf("cart_key must not be empty")
	}
	return nil
}

// Load loads configuration from baseDir/config.json.
// Returns default config if the file doesn't exist.
// The baseDir parameter allows tests to use t.TempDir() instead of ~/.skumate.
func Load(baseDir string) (*Config, error) {
	cfg, err := loadFile(filepath.Join(baseDir, "config.json"))
	if err != nil {
		return nil, err
	}
	return withExportsDir(cfg, baseDir), nil
}

// LoadWithRepo loads configuration from both global (~/.skumate) and repo (.skumate) directories.
// Repo config is found by walking upward from startDir to find the nearest .skumate/config.json.
// Repo config takes precedence for scalar values; arrays are merged (deduplicated).
// Either or both configs may be missing.
func LoadWithRepo(globalDir, startDir string) (*Config, error) {
	global, err := loadFileRaw(filepath.Join(globalDir, "config.json"))
	if err != nil {
		return nil, err
	}

	repo, err := loadFileRaw(FindRepoConfig(startDir))
	if err != nil {
		return nil, err
	}

	// Apply defaults, then global, then repo
	return withExportsDir(Merge(Merge(DefaultConfig(), global), repo), globalDir), nil
}

// FindRepoConfig walks upward from startDir to find the nearest .skumate/config.json.
// Returns the path if found, or empty string if not found.
func FindRepoConfig(startDir string) string {
	dir := startDir
	for {
		configPath := filepath.Join(dir, ".skumate", "config.json")
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

func withExportsDir(cfg *Config, baseDir string) *Config {
	if cfg.ExportsDir == "" {
		cfg.ExportsDir = filepath.Join(baseDir, "exports")
	}
	return cfg
}

// loadFileRaw loads configuration from a specific file path.
// Returns zero-valued config if the file doesn't exist (not defaults).
func loadFileRaw(configPath string) (*Config, error) {
	if configPath == "" {
		return &Config{}, nil
	}
	data, err := os.ReadFile(configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &Config{}, nil
		}
		return nil, err
	}

	cfg := &Config{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// loadFile loads configuration from a specific file path.
// Returns default config if the file doesn't exist.
func loadFile(configPath string) (*Config, error) {
	cfg, err := loadFileRaw(configPath)
	if err != nil {
		return nil, err
	}
	return Merge(DefaultConfig(), cfg), nil
}

// Merge combines base and overlay configs.
// Overlay values take precedence for scalars; arrays are merged and deduplicated.
func Merge(base, overlay *Config) *Config {
	result := &Config{
		APIBaseURL:            pickString(base.APIBaseURL, overlay.APIBaseURL),
		AIFallback:            pickString(base.AIFallback, overlay.AIFallback),
		NumericMinDigits:      pickInt(base.NumericMinDigits, overlay.NumericMinDigits),
		DefaultProvider:       pickString(base.DefaultProvider, overlay.DefaultProvider),
		OpenAIModel:           pickString(base.OpenAIModel, overlay.OpenAIModel),
		CartKey:               pickString(base.CartKey, overlay.CartKey),
		RequestTimeoutSeconds: pickInt(base.RequestTimeoutSeconds, overlay.RequestTimeoutSeconds),
		ImportConcurrency:     pickInt(base.ImportConcurrency, overlay.ImportConcurrency),
		ExportsDir:            pickString(base.ExportsDir, overlay.ExportsDir),
		DBMaxOpenConns:        pickInt(base.DBMaxOpenConns, overlay.DBMaxOpenConns),
		DBMaxIdleConns:        pickInt(base.DBMaxIdleConns, overlay.DBMaxIdleConns),
	}

	// Tri-state: overlay wins when set
	result.ConfirmDestructive = base.ConfirmDestructive
	if overlay.ConfirmDestructive != nil {
		v := *overlay.ConfirmDestructive
		result.ConfirmDestructive = &v
	}

	// Booleans: overlay wins if true, else base
	result.AllowUnsafePaths = base.AllowUnsafePaths || overlay.AllowUnsafePaths

	// Arrays: merge and deduplicate
	result.AllowedPaths = mergeStringSlice(base.AllowedPaths, overlay.AllowedPaths)
	result.DisabledTools = mergeStringSlice(base.DisabledTools, overlay.DisabledTools)

	return result
}

func pickString(base, overlay string) string {
	if strings.TrimSpace(overlay) != "" {
		return overlay
	}
	return base
}

func pickInt(base, overlay int) int {
	if overlay != 0 {
		return overlay
	}
	return base
}

// mergeStringSlice combines two slices, trims whitespace, and removes duplicates.
func mergeStringSlice(a, b []string) []string {
	seen := make(map[string]bool)
	result := make([]string, 0, len(a)+len(b))

	for _, s := range append(append([]string{}, a...), b...) {
		s = strings.TrimSpace(s)
		if s != "" && !seen[s] {
			seen[s] = true
			result = append(result, s)
		}
	}

	if len(result) == 0 {
		return nil
	}
	return result
}
