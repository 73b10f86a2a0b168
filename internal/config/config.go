package config

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the complete hybridstore configuration.
type Config struct {
	Version     int               `yaml:"version" json:"version"`
	Store       StoreConfig       `yaml:"store" json:"store"`
	Segmenter   SegmenterConfig   `yaml:"segmenter" json:"segmenter"`
	Lexical     LexicalConfig     `yaml:"lexical" json:"lexical"`
	Vector      VectorConfig      `yaml:"vector" json:"vector"`
	Fusion      FusionConfig      `yaml:"fusion" json:"fusion"`
	Embeddings  EmbeddingsConfig  `yaml:"embeddings" json:"embeddings"`
	Server      ServerConfig      `yaml:"server" json:"server"`
	Performance PerformanceConfig `yaml:"performance" json:"performance"`
}

// StoreConfig configures the primary store's on-disk location.
type StoreConfig struct {
	DataDir string `yaml:"data_dir" json:"data_dir"`
}

// SegmenterConfig configures the (min, max, cap) length bounds used to cut
// block streams into chunks.
type SegmenterConfig struct {
	MinChars                      int  `yaml:"min_chars" json:"min_chars"`
	MaxChars                      int  `yaml:"max_chars" json:"max_chars"`
	CapChars                      int  `yaml:"cap_chars" json:"cap_chars"`
	PenalizeShortLine             bool `yaml:"penalize_short_line" json:"penalize_short_line"`
	PenalizePageBoundaryNoNewline bool `yaml:"penalize_page_boundary_no_newline" json:"penalize_page_boundary_no_newline"`
}

// LexicalConfig configures the lexical index's on-disk location.
// FetchFactor is loaded from config but not passed to the orchestrator,
// which uses its own default fetch factor.
type LexicalConfig struct {
	IndexDir    string `yaml:"index_dir" json:"index_dir"`
	FetchFactor int    `yaml:"fetch_factor" json:"fetch_factor"`
}

// VectorConfig configures the ANN index's graph parameters and
// fetch discipline.
type VectorConfig struct {
	IndexDir    string  `yaml:"index_dir" json:"index_dir"`
	M           int     `yaml:"m" json:"m"`
	EfSearch    int     `yaml:"ef_search" json:"ef_search"`
	Ml          float64 `yaml:"ml" json:"ml"`
	FetchFactor int     `yaml:"fetch_factor" json:"fetch_factor"`
}

// FusionConfig configures hybrid fusion weighting between the lexical and
// vector result streams.
type FusionConfig struct {
	// TextWeight is the weight given to lexical scores (0.0-1.0).
	// Must sum to 1.0 with VectorWeight.
	TextWeight float64 `yaml:"text_weight" json:"text_weight"`

	// VectorWeight is the weight given to vector scores (0.0-1.0).
	// Must sum to 1.0 with TextWeight.
	VectorWeight float64 `yaml:"vector_weight" json:"vector_weight"`

	// DefaultTopK is loaded from config but not consulted by the query
	// surface; a non-positive top_k falls back to the orchestrator's
	// built-in default instead.
	DefaultTopK int `yaml:"default_top_k" json:"default_top_k"`
}

// EmbeddingsConfig configures the embedding backend.
type EmbeddingsConfig struct {
	// Provider selects the embedder implementation: "static" (default,
	// deterministic hash-based) or "native" (bound runtime library).
	Provider string `yaml:"provider" json:"provider"`

	// NativeLibPath is the path to the native runtime library, used
	// only when Provider is "native".
	NativeLibPath string `yaml:"native_lib_path" json:"native_lib_path"`

	Dimensions     int `yaml:"dimensions" json:"dimensions"`
	MaxInputTokens int `yaml:"max_input_tokens" json:"max_input_tokens"`
	BatchSize      int `yaml:"batch_size" json:"batch_size"`
	CacheSize      int `yaml:"cache_size" json:"cache_size"`

	// InterBatchDelay is a duration string (e.g. "200ms", "0") loaded from
	// config; it is not passed to the embedding loop, so batches are sent
	// back to back.
	InterBatchDelay string `yaml:"inter_batch_delay" json:"inter_batch_delay"`
}

// ServerConfig configures the MCP server transport.
type ServerConfig struct {
	Transport string `yaml:"transport" json:"transport"`
	Port      int    `yaml:"port" json:"port"`
	LogLevel  string `yaml:"log_level" json:"log_level"`
}

// PerformanceConfig configures resource usage.
type PerformanceConfig struct {
	IngestWorkers int `yaml:"ingest_workers" json:"ingest_workers"`
}

// NewConfig returns a Config populated with sensible defaults.
func NewConfig() *Config {
	return &Config{
		Version: 1,
		Store: StoreConfig{
			DataDir: defaultDataDir(),
		},
		Segmenter: SegmenterConfig{
			MinChars:                      400,
			MaxChars:                      600,
			CapChars:                      800,
			PenalizeShortLine:             true,
			PenalizePageBoundaryNoNewline: true,
		},
		Lexical: LexicalConfig{
			IndexDir:    "",
			FetchFactor: 4,
		},
		Vector: VectorConfig{
			IndexDir:    "",
			M:           16,
			EfSearch:    20,
			Ml:          0.25,
			FetchFactor: 4,
		},
		Fusion: FusionConfig{
			TextWeight:   0.5,
			VectorWeight: 0.5,
			DefaultTopK:  20,
		},
		Embeddings: EmbeddingsConfig{
			Provider:        "static",
			NativeLibPath:   "",
			Dimensions:      768,
			MaxInputTokens:  8192,
			BatchSize:       32,
			CacheSize:       1000,
			InterBatchDelay: "",
		},
		Server: ServerConfig{
			Transport: "stdio",
			Port:      8765,
			LogLevel:  "info",
		},
		Performance: PerformanceConfig{
			IngestWorkers: runtime.NumCPU(),
		},
	}
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".hybridstore", "data")
	}
	return filepath.Join(home, ".hybridstore", "data")
}

// GetUserConfigPath returns the path to the user/global configuration file,
// honouring XDG_CONFIG_HOME if set.
func GetUserConfigPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "hybridstore", "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".config", "hybridstore", "config.yaml")
	}
	return filepath.Join(home, ".config", "hybridstore", "config.yaml")
}

// GetUserConfigDir returns the directory containing the user configuration.
func GetUserConfigDir() string {
	return filepath.Dir(GetUserConfigPath())
}

// UserConfigExists reports whether the user configuration file exists.
func UserConfigExists() bool {
	return fileExists(GetUserConfigPath())
}

func loadUserConfig() (*Config, error) {
	path := GetUserConfigPath()
	if !fileExists(path) {
		return nil, nil
	}
	cfg := NewConfig()
	if err := cfg.loadYAML(path); err != nil {
		return nil, fmt.Errorf("load user config from %s: %w", path, err)
	}
	return cfg, nil
}

// Load builds a Config in order of increasing precedence:
//  1. Hardcoded defaults
//  2. User/global config (~/.config/hybridstore/config.yaml)
//  3. Project config (.hybridstore.yaml in dir)
//  4. Environment variables (HYBRIDSTORE_*)
func Load(dir string) (*Config, error) {
	cfg := NewConfig()

	if userCfg, err := loadUserConfig(); err != nil {
		return nil, fmt.Errorf("load user config: %w", err)
	} else if userCfg != nil {
		cfg.mergeWith(userCfg)
	}

	if err := cfg.loadFromFile(dir); err != nil {
		return nil, err
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func (c *Config) loadFromFile(dir string) error {
	yamlPath := filepath.Join(dir, ".hybridstore.yaml")
	if fileExists(yamlPath) {
		return c.loadYAML(yamlPath)
	}
	ymlPath := filepath.Join(dir, ".hybridstore.yml")
	if fileExists(ymlPath) {
		return c.loadYAML(ymlPath)
	}
	return nil
}

func (c *Config) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file %s: %w", path, err)
	}
	var parsed Config
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	c.mergeWith(&parsed)
	return nil
}

// mergeWith merges non-zero values from other into c.
func (c *Config) mergeWith(other *Config) {
	if other.Version != 0 {
		c.Version = other.Version
	}

	if other.Store.DataDir != "" {
		c.Store.DataDir = other.Store.DataDir
	}

	if other.Segmenter.MinChars != 0 {
		c.Segmenter.MinChars = other.Segmenter.MinChars
	}
	if other.Segmenter.MaxChars != 0 {
		c.Segmenter.MaxChars = other.Segmenter.MaxChars
	}
	if other.Segmenter.CapChars != 0 {
		c.Segmenter.CapChars = other.Segmenter.CapChars
	}

	if other.Lexical.IndexDir != "" {
		c.Lexical.IndexDir = other.Lexical.IndexDir
	}
	if other.Lexical.FetchFactor != 0 {
		c.Lexical.FetchFactor = other.Lexical.FetchFactor
	}

	if other.Vector.IndexDir != "" {
		c.Vector.IndexDir = other.Vector.IndexDir
	}
	if other.Vector.M != 0 {
		c.Vector.M = other.Vector.M
	}
	if other.Vector.EfSearch != 0 {
		c.Vector.EfSearch = other.Vector.EfSearch
	}
	if other.Vector.Ml != 0 {
		c.Vector.Ml = other.Vector.Ml
	}
	if other.Vector.FetchFactor != 0 {
		c.Vector.FetchFactor = other.Vector.FetchFactor
	}

	if other.Fusion.TextWeight != 0 {
		c.Fusion.TextWeight = other.Fusion.TextWeight
	}
	if other.Fusion.VectorWeight != 0 {
		c.Fusion.VectorWeight = other.Fusion.VectorWeight
	}
	if other.Fusion.DefaultTopK != 0 {
		c.Fusion.DefaultTopK = other.Fusion.DefaultTopK
	}

	if other.Embeddings.Provider != "" {
		c.Embeddings.Provider = other.Embeddings.Provider
	}
	if other.Embeddings.NativeLibPath != "" {
		c.Embeddings.NativeLibPath = other.Embeddings.NativeLibPath
	}
	if other.Embeddings.Dimensions != 0 {
		c.Embeddings.Dimensions = other.Embeddings.Dimensions
	}
	if other.Embeddings.MaxInputTokens != 0 {
		c.Embeddings.MaxInputTokens = other.Embeddings.MaxInputTokens
	}
	if other.Embeddings.BatchSize != 0 {
		c.Embeddings.BatchSize = other.Embeddings.BatchSize
	}
	if other.Embeddings.CacheSize != 0 {
		c.Embeddings.CacheSize = other.Embeddings.CacheSize
	}
	if other.Embeddings.InterBatchDelay != "" {
		c.Embeddings.InterBatchDelay = other.Embeddings.InterBatchDelay
	}

	if other.Server.Transport != "" {
		c.Server.Transport = other.Server.Transport
	}
	if other.Server.Port != 0 {
		c.Server.Port = other.Server.Port
	}
	if other.Server.LogLevel != "" {
		c.Server.LogLevel = other.Server.LogLevel
	}

	if other.Performance.IngestWorkers != 0 {
		c.Performance.IngestWorkers = other.Performance.IngestWorkers
	}
}

// applyEnvOverrides applies HYBRIDSTORE_* environment variable overrides,
// the highest-precedence layer.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("HYBRIDSTORE_TEXT_WEIGHT"); v != "" {
		if w, err := parseFloat64(v); err == nil && w >= 0 && w <= 1 {
			c.Fusion.TextWeight = w
		}
	}
	if v := os.Getenv("HYBRIDSTORE_VECTOR_WEIGHT"); v != "" {
		if w, err := parseFloat64(v); err == nil && w >= 0 && w <= 1 {
			c.Fusion.VectorWeight = w
		}
	}
	if v := os.Getenv("HYBRIDSTORE_DATA_DIR"); v != "" {
		c.Store.DataDir = v
	}
	if v := os.Getenv("HYBRIDSTORE_EMBEDDINGS_PROVIDER"); v != "" {
		c.Embeddings.Provider = v
	}
	if v := os.Getenv("HYBRIDSTORE_NATIVE_LIB_PATH"); v != "" {
		c.Embeddings.NativeLibPath = v
	}
	if v := os.Getenv("HYBRIDSTORE_LOG_LEVEL"); v != "" {
		c.Server.LogLevel = v
	}
	if v := os.Getenv("HYBRIDSTORE_TRANSPORT"); v != "" {
		c.Server.Transport = v
	}
}

func parseFloat64(s string) (float64, error) {
	return strconv.ParseFloat(strings.TrimSpace(s), 64)
}

// Validate checks the configuration for internally inconsistent values.
func (c *Config) Validate() error {
	if c.Fusion.TextWeight < 0 || c.Fusion.TextWeight > 1 {
		return fmt.Errorf("fusion.text_weight must be between 0 and 1, got %f", c.Fusion.TextWeight)
	}
	if c.Fusion.VectorWeight < 0 || c.Fusion.VectorWeight > 1 {
		return fmt.Errorf("fusion.vector_weight must be between 0 and 1, got %f", c.Fusion.VectorWeight)
	}
	if sum := c.Fusion.TextWeight + c.Fusion.VectorWeight; math.Abs(sum-1.0) > 0.01 {
		return fmt.Errorf("fusion.text_weight + fusion.vector_weight must equal 1.0, got %.2f", sum)
	}

	if c.Segmenter.MinChars <= 0 || c.Segmenter.MaxChars <= 0 || c.Segmenter.CapChars <= 0 {
		return fmt.Errorf("segmenter bounds must be positive, got (%d, %d, %d)",
			c.Segmenter.MinChars, c.Segmenter.MaxChars, c.Segmenter.CapChars)
	}
	if !(c.Segmenter.MinChars <= c.Segmenter.MaxChars && c.Segmenter.MaxChars <= c.Segmenter.CapChars) {
		return fmt.Errorf("segmenter bounds must satisfy min <= max <= cap, got (%d, %d, %d)",
			c.Segmenter.MinChars, c.Segmenter.MaxChars, c.Segmenter.CapChars)
	}

	validProviders := map[string]bool{"static": true, "native": true}
	if !validProviders[strings.ToLower(c.Embeddings.Provider)] {
		return fmt.Errorf("embeddings.provider must be 'static' or 'native', got %s", c.Embeddings.Provider)
	}
	if c.Embeddings.Provider == "native" && c.Embeddings.NativeLibPath == "" {
		return fmt.Errorf("embeddings.native_lib_path is required when provider is 'native'")
	}

	validTransports := map[string]bool{"stdio": true, "sse": true}
	if !validTransports[strings.ToLower(c.Server.Transport)] {
		return fmt.Errorf("server.transport must be 'stdio' or 'sse', got %s", c.Server.Transport)
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Server.LogLevel)] {
		return fmt.Errorf("server.log_level must be 'debug', 'info', 'warn', or 'error', got %s", c.Server.LogLevel)
	}

	return nil
}

// WriteYAML writes the configuration to path as YAML.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}
	return nil
}

// LoadUserConfig loads the user configuration file, returning nil config
// and nil error if it does not exist.
func LoadUserConfig() (*Config, error) {
	return loadUserConfig()
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return !info.IsDir()
}
