package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds the ragfolio API configuration.
type Config struct {
	HTTP      HTTPConfig      `yaml:"http"`
	Corpus    CorpusConfig    `yaml:"corpus"`
	Cache     CacheConfig     `yaml:"cache"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Answer    AnswerConfig    `yaml:"answer"`
	Query     QueryConfig     `yaml:"query"`
	Scoring   ScoringConfig   `yaml:"scoring"`
	Auth      AuthConfig      `yaml:"auth"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error (default: determined by env)
}

// AuthConfig holds API authentication settings.
type AuthConfig struct {
	APIKeys []string `yaml:"api_keys"`
}

// HTTPConfig holds HTTP server settings.
type HTTPConfig struct {
	Port            int `yaml:"port"`
	ReadTimeoutSec  int `yaml:"read_timeout_sec"`
	WriteTimeoutSec int `yaml:"write_timeout_sec"`
	ShutdownSec     int `yaml:"shutdown_timeout_sec"`
}

// CorpusConfig holds corpus file locations and presentation settings.
type CorpusConfig struct {
	Dir          string `yaml:"dir"`           // directory holding the corpus JSON files
	ProjectsFile string `yaml:"projects_file"` // default: projects.json
	AwardsFile   string `yaml:"awards_file"`   // default: awards.json
	CompanyName  string `yaml:"company_name"`  // named in answer prompts
}

// CacheConfig holds the optional embedding-cache store settings.
// Empty addrs disables the cache.
type CacheConfig struct {
	Addrs    []string `yaml:"addrs"`
	Username string   `yaml:"username"`
	Password string   `yaml:"password"`
}

// EmbeddingConfig holds embedding provider settings.
type EmbeddingConfig struct {
	APIKey     string `yaml:"api_key"`
	BaseURL    string `yaml:"base_url"`
	Model      string `yaml:"model"`
	Dimensions int    `yaml:"dimensions"`
	Provider   string `yaml:"provider"` // label for logs/metrics
}

// AnswerConfig holds answer model settings.
type AnswerConfig struct {
	Model           string  `yaml:"model"`
	Temperature     float32 `yaml:"temperature"`
	MaxContextChars int     `yaml:"max_context_chars"`
}

// QueryConfig holds orchestrator settings.
type QueryConfig struct {
	TopK               int `yaml:"top_k"`
	ExternalTimeoutSec int `yaml:"external_timeout_sec"`
	RetryAttempts      int `yaml:"retry_attempts"`
	RetryBackoffMs     int `yaml:"retry_backoff_ms"`
}

// ScoringConfig holds the hybrid scorer boost table. Field weights left
// empty fall back to the built-in defaults.
type ScoringConfig struct {
	FieldWeights map[string]float64 `yaml:"field_weights"`
	MaxBoost     float64            `yaml:"max_boost"`
	MinScore     float64            `yaml:"min_score"`
}

// Load reads configuration from a YAML file by environment name (local, dev, prod).
func Load(env string) (Config, error) {
	configPath := findConfigPath(env)

	data, err := os.ReadFile(filepath.Clean(configPath))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", configPath, err)
	}

	// Substitute env variables of the form ${VAR}
	data = expandEnvVars(data)

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// MustLoad loads configuration or panics.
func MustLoad(env string) Config {
	cfg, err := Load(env)
	if err != nil {
		panic(err)
	}
	return cfg
}

// GetEnv returns the current environment from the ENV variable, defaulting to "local".
func GetEnv() string {
	if env := os.Getenv("ENV"); env != "" {
		return env
	}
	return "local"
}

// ApplyDefaults fills empty fields with default values.
func (c *Config) ApplyDefaults() {
	if c.HTTP.ReadTimeoutSec <= 0 {
		c.HTTP.ReadTimeoutSec = 10
	}
	if c.HTTP.WriteTimeoutSec <= 0 {
		c.HTTP.WriteTimeoutSec = 60
	}
	if c.HTTP.ShutdownSec <= 0 {
		c.HTTP.ShutdownSec = 10
	}
	if c.Corpus.Dir == "" {
		c.Corpus.Dir = "data"
	}
	if c.Corpus.ProjectsFile == "" {
		c.Corpus.ProjectsFile = "projects.json"
	}
	if c.Corpus.AwardsFile == "" {
		c.Corpus.AwardsFile = "awards.json"
	}
	if c.Corpus.CompanyName == "" {
		c.Corpus.CompanyName = "the company"
	}
	if c.Embedding.Model == "" {
		c.Embedding.Model = "text-embedding-3-small"
	}
	if c.Embedding.Provider == "" {
		c.Embedding.Provider = "openai"
	}
	if c.Answer.Model == "" {
		c.Answer.Model = "gpt-4o-mini"
	}
	if c.Answer.Temperature <= 0 {
		c.Answer.Temperature = 0.2
	}
	if c.Answer.MaxContextChars <= 0 {
		c.Answer.MaxContextChars = 8000
	}
	if c.Query.TopK <= 0 {
		c.Query.TopK = 5
	}
	if c.Query.ExternalTimeoutSec <= 0 {
		c.Query.ExternalTimeoutSec = 30
	}
	if c.Query.RetryAttempts <= 0 {
		c.Query.RetryAttempts = 3
	}
	if c.Query.RetryBackoffMs <= 0 {
		c.Query.RetryBackoffMs = 200
	}
	if c.Scoring.MaxBoost <= 0 {
		c.Scoring.MaxBoost = 3.0
	}
	if c.Scoring.MinScore < 0 {
		c.Scoring.MinScore = 0
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}
	if c.Embedding.APIKey == "" {
		return fmt.Errorf("embedding.api_key is required")
	}
	if c.Answer.Temperature > 2 {
		return fmt.Errorf("answer.temperature must be <= 2, got %v", c.Answer.Temperature)
	}
	if c.Scoring.MinScore > 1 {
		return fmt.Errorf("scoring.min_score must be <= 1, got %v", c.Scoring.MinScore)
	}
	for name, w := range c.Scoring.FieldWeights {
		if w < 0 {
			return fmt.Errorf("scoring.field_weights.%s must be >= 0, got %v", name, w)
		}
	}
	return nil
}

// findConfigPath locates the config file.
func findConfigPath(env string) string {
	filename := fmt.Sprintf("%s.yaml", env)

	// 1. Check ./config/
	if path := filepath.Join("config", filename); fileExists(path) {
		return path
	}

	// 2. Check relative to the source file
	_, b, _, _ := runtime.Caller(0)
	projectRoot := filepath.Dir(filepath.Dir(filepath.Dir(b))) // internal/config -> project root
	if path := filepath.Join(projectRoot, "config", filename); fileExists(path) {
		return path
	}

	// 3. Fallback to ./config/
	return filepath.Join("config", filename)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// expandEnvVars replaces ${VAR} and ${VAR:-default} with environment variable values.
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

func expandEnvVars(data []byte) []byte {
	return envVarRegex.ReplaceAllFunc(data, func(match []byte) []byte {
		expr := string(match[2 : len(match)-1]) // strip ${ and }
		varName, defaultVal, hasDefault := strings.Cut(expr, ":-")
		val := os.Getenv(varName)
		if val == "" && hasDefault {
			val = defaultVal
		}
		return []byte(val)
	})
}
