package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration. Credentials are never
// stored here; they are read from the environment only.
type Config struct {
	Repos  []string `yaml:"repos,omitempty"`
	Labels []string `yaml:"labels,omitempty"`

	MaxReadmeChars    int `yaml:"max_readme_chars,omitempty"`
	MaxThreadComments int `yaml:"max_thread_comments,omitempty"`
	MaxRetries        int `yaml:"max_retries,omitempty"`
	Concurrency       int `yaml:"concurrency,omitempty"`

	BatchTimeout Duration `yaml:"batch_timeout,omitempty"`

	LLM    *LLMConfig   `yaml:"llm,omitempty"`
	MCP    *MCPConfig   `yaml:"mcp,omitempty"`
	Store  *StoreConfig `yaml:"store,omitempty"`
	Digest bool         `yaml:"digest,omitempty"`
}

// Duration wraps time.Duration so YAML values like "10m" parse.
type Duration time.Duration

// UnmarshalYAML accepts either a duration string ("90s", "10m") or a
// plain integer number of seconds.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err == nil {
		parsed, perr := time.ParseDuration(s)
		if perr != nil {
			return fmt.Errorf("invalid duration %q: %w", s, perr)
		}
		*d = Duration(parsed)
		return nil
	}

	var secs int64
	if err := value.Decode(&secs); err != nil {
		return fmt.Errorf("invalid duration value: %w", err)
	}
	*d = Duration(time.Duration(secs) * time.Second)
	return nil
}

// MarshalYAML renders the duration in string form.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// LLMConfig tunes the analysis model calls.
type LLMConfig struct {
	Model             string   `yaml:"model,omitempty"`
	Timeout           Duration `yaml:"timeout,omitempty"`
	MaxTokens         int      `yaml:"max_tokens,omitempty"`
	CorrectiveRetries int      `yaml:"corrective_retries,omitempty"`
}

// MCPConfig points at the context-enrichment MCP server.
type MCPConfig struct {
	Endpoint string `yaml:"endpoint,omitempty"`
}

// StoreConfig selects the delivered-issue store backend.
type StoreConfig struct {
	Backend string `yaml:"backend,omitempty"` // "file" or "redis"
	Path    string `yaml:"path,omitempty"`    // file backend only; defaults under the user cache dir
}

// Backend values for StoreConfig.
const (
	StoreFile  = "file"
	StoreRedis = "redis"
)

// DefaultLabels are the issue labels scanned when none are configured.
func DefaultLabels() []string {
	return []string{
		"good first issue",
		"good-first-issue",
		"help wanted",
		"beginner friendly",
	}
}

// DefaultConfig returns a fully populated config with all default values.
// Useful for generating a complete config file template.
func DefaultConfig() *Config {
	return &Config{
		Repos:             []string{},
		Labels:            DefaultLabels(),
		MaxReadmeChars:    8000,
		MaxThreadComments: 20,
		MaxRetries:        3,
		Concurrency:       4,
		BatchTimeout:      Duration(10 * time.Minute),
		LLM: &LLMConfig{
			Model:             "claude-sonnet-4-5-20250929",
			Timeout:           Duration(60 * time.Second),
			MaxTokens:         2048,
			CorrectiveRetries: 2,
		},
		MCP:   &MCPConfig{Endpoint: "http://localhost:8000/mcp"},
		Store: &StoreConfig{Backend: StoreFile},
	}
}

// DefaultConfigDir returns the default config directory
func DefaultConfigDir() string {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return ".scout"
	}
	return filepath.Join(configDir, "scout")
}

// ConfigPath returns the path to the config file
func ConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.yaml")
}

// LocalConfigPath returns the path to the local config file in the current directory
func LocalConfigPath() string {
	return ".scout.yaml"
}

// ConfigFileExists returns true if the config file exists on disk
func ConfigFileExists() bool {
	_, err := os.Stat(ConfigPath())
	return err == nil
}

// Load loads the configuration from disk.
// It first loads the global config from the XDG config directory, then merges
// any local .scout.yaml config on top (local values take precedence), then
// fills remaining zero values from defaults.
func Load() (*Config, error) {
	cfg := &Config{}

	globalPath := ConfigPath()
	if _, err := os.Stat(globalPath); err == nil {
		data, err := os.ReadFile(globalPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read global config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse global config file: %w", err)
		}
	}

	localPath := LocalConfigPath()
	if _, err := os.Stat(localPath); err == nil {
		data, err := os.ReadFile(localPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read local config file: %w", err)
		}

		var localCfg Config
		if err := yaml.Unmarshal(data, &localCfg); err != nil {
			return nil, fmt.Errorf("failed to parse local config file: %w", err)
		}

		cfg = mergeConfig(cfg, &localCfg)
	}

	applyDefaults(cfg)
	return cfg, nil
}

// mergeConfig merges local config on top of global config.
// Local values take precedence; unset local values preserve global values.
func mergeConfig(global, local *Config) *Config {
	result := &Config{}

	if len(local.Repos) > 0 {
		result.Repos = local.Repos
	} else {
		result.Repos = global.Repos
	}
	if len(local.Labels) > 0 {
		result.Labels = local.Labels
	} else {
		result.Labels = global.Labels
	}

	result.MaxReadmeChars = pickInt(global.MaxReadmeChars, local.MaxReadmeChars)
	result.MaxThreadComments = pickInt(global.MaxThreadComments, local.MaxThreadComments)
	result.MaxRetries = pickInt(global.MaxRetries, local.MaxRetries)
	result.Concurrency = pickInt(global.Concurrency, local.Concurrency)
	if local.BatchTimeout != 0 {
		result.BatchTimeout = local.BatchTimeout
	} else {
		result.BatchTimeout = global.BatchTimeout
	}
	result.Digest = global.Digest || local.Digest

	result.LLM = mergeLLM(global.LLM, local.LLM)
	result.MCP = mergeMCP(global.MCP, local.MCP)
	result.Store = mergeStore(global.Store, local.Store)

	return result
}

func pickInt(global, local int) int {
	if local != 0 {
		return local
	}
	return global
}

func mergeLLM(global, local *LLMConfig) *LLMConfig {
	if global == nil && local == nil {
		return nil
	}
	result := &LLMConfig{}
	if global != nil {
		*result = *global
	}
	if local != nil {
		if local.Model != "" {
			result.Model = local.Model
		}
		if local.Timeout != 0 {
			result.Timeout = local.Timeout
		}
		if local.MaxTokens != 0 {
			result.MaxTokens = local.MaxTokens
		}
		if local.CorrectiveRetries != 0 {
			result.CorrectiveRetries = local.CorrectiveRetries
		}
	}
	return result
}

func mergeMCP(global, local *MCPConfig) *MCPConfig {
	if global == nil && local == nil {
		return nil
	}
	result := &MCPConfig{}
	if global != nil {
		*result = *global
	}
	if local != nil && local.Endpoint != "" {
		result.Endpoint = local.Endpoint
	}
	return result
}

func mergeStore(global, local *StoreConfig) *StoreConfig {
	if global == nil && local == nil {
		return nil
	}
	result := &StoreConfig{}
	if global != nil {
		*result = *global
	}
	if local != nil {
		if local.Backend != "" {
			result.Backend = local.Backend
		}
		if local.Path != "" {
			result.Path = local.Path
		}
	}
	return result
}

// applyDefaults fills zero values in place from DefaultConfig.
func applyDefaults(cfg *Config) {
	def := DefaultConfig()

	if len(cfg.Labels) == 0 {
		cfg.Labels = def.Labels
	}
	if cfg.MaxReadmeChars == 0 {
		cfg.MaxReadmeChars = def.MaxReadmeChars
	}
	if cfg.MaxThreadComments == 0 {
		cfg.MaxThreadComments = def.MaxThreadComments
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = def.MaxRetries
	}
	if cfg.Concurrency == 0 {
		cfg.Concurrency = def.Concurrency
	}
	if cfg.BatchTimeout == 0 {
		cfg.BatchTimeout = def.BatchTimeout
	}
	if cfg.LLM == nil {
		cfg.LLM = def.LLM
	} else {
		if cfg.LLM.Model == "" {
			cfg.LLM.Model = def.LLM.Model
		}
		if cfg.LLM.Timeout == 0 {
			cfg.LLM.Timeout = def.LLM.Timeout
		}
		if cfg.LLM.MaxTokens == 0 {
			cfg.LLM.MaxTokens = def.LLM.MaxTokens
		}
		if cfg.LLM.CorrectiveRetries == 0 {
			cfg.LLM.CorrectiveRetries = def.LLM.CorrectiveRetries
		}
	}
	if cfg.MCP == nil || cfg.MCP.Endpoint == "" {
		cfg.MCP = def.MCP
	}
	if cfg.Store == nil {
		cfg.Store = def.Store
	} else if cfg.Store.Backend == "" {
		cfg.Store.Backend = StoreFile
	}
}

// Validate reports configuration problems that make a run impossible.
func (c *Config) Validate() error {
	if len(c.Repos) == 0 {
		return fmt.Errorf("no repos configured: add at least one owner/repo entry")
	}
	for _, repo := range c.Repos {
		if !isRepoSlug(repo) {
			return fmt.Errorf("invalid repo %q: expected owner/repo", repo)
		}
	}
	if c.Store != nil {
		switch c.Store.Backend {
		case StoreFile, StoreRedis:
		default:
			return fmt.Errorf("invalid store backend %q: expected %q or %q", c.Store.Backend, StoreFile, StoreRedis)
		}
	}
	return nil
}

func isRepoSlug(s string) bool {
	var slashes int
	for _, r := range s {
		if r == '/' {
			slashes++
		}
	}
	if slashes != 1 {
		return false
	}
	return s[0] != '/' && s[len(s)-1] != '/'
}

// Save saves the configuration to disk
func (c *Config) Save() error {
	configDir := DefaultConfigDir()

	if err := os.MkdirAll(configDir, 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	configPath := ConfigPath()
	if err := os.WriteFile(configPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// GetGitHubToken returns the GitHub token from the GITHUB_TOKEN environment
// variable. Following 12-factor app practice, tokens are only read from the
// environment.
func (c *Config) GetGitHubToken() string {
	return os.Getenv("GITHUB_TOKEN")
}

// GetAnthropicAPIKey returns the Anthropic API key from the environment.
func (c *Config) GetAnthropicAPIKey() string {
	return os.Getenv("ANTHROPIC_API_KEY")
}

// GetFeishuWebhookURL returns the Feishu webhook URL from the environment.
func (c *Config) GetFeishuWebhookURL() string {
	return os.Getenv("FEISHU_WEBHOOK_URL")
}

// GetRedisURL returns the Redis connection URL from the environment.
func (c *Config) GetRedisURL() string {
	return os.Getenv("REDIS_URL")
}

// ToYAML returns the config as a YAML string
func (c *Config) ToYAML() (string, error) {
	data, err := yaml.Marshal(c)
	if err != nil {
		return "", fmt.Errorf("failed to marshal config: %w", err)
	}
	return string(data), nil
}

// ConfigPathInfo contains information about config file paths
type ConfigPathInfo struct {
	GlobalPath   string
	GlobalExists bool
	LocalPath    string
	LocalExists  bool
}

// GetConfigPaths returns path info for both global and local configs
func GetConfigPaths() ConfigPathInfo {
	globalPath := ConfigPath()
	localPath := LocalConfigPath()

	absLocalPath, err := filepath.Abs(localPath)
	if err != nil {
		absLocalPath = localPath
	}

	_, globalErr := os.Stat(globalPath)
	_, localErr := os.Stat(localPath)

	return ConfigPathInfo{
		GlobalPath:   globalPath,
		GlobalExists: globalErr == nil,
		LocalPath:    absLocalPath,
		LocalExists:  localErr == nil,
	}
}

// MinimalConfig returns a minimal config template with comments
func MinimalConfig() string {
	return `# Scout configuration file
# Credentials come from the environment:
#   GITHUB_TOKEN, ANTHROPIC_API_KEY, FEISHU_WEBHOOK_URL (and REDIS_URL for the redis store)

# Repositories to scan
repos:
  - apache/doris

# Labels treated as newcomer-friendly (optional, defaults shown)
# labels:
#   - good first issue
#   - good-first-issue
#   - help wanted

# Delivered-issue store: file (default) or redis
# store:
#   backend: file

# Post a per-run summary card after each batch
# digest: true

# See README.md for full configuration options
`
}

// SaveTo writes content to a specific path, creating directories as needed
func SaveTo(path string, content string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		return fmt.Errorf("failed to write file %s: %w", path, err)
	}

	return nil
}
