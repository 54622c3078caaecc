// Package config provides configuration management for the application.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"regexp"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"chatgate/internal/storage"
)

// Provider document sources.
const (
	SourceFile  = "file"
	SourceRedis = "redis"
)

// configPaths are searched in order for the optional YAML file.
var configPaths = []string{"config/config.yaml", "config.yaml"}

// Config holds the application configuration
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Providers ProvidersConfig `yaml:"providers"`
	HTTP      HTTPConfig      `yaml:"http"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Logging   LogConfig       `yaml:"logging"`
	Usage     UsageConfig     `yaml:"usage"`
	Storage   storage.Config  `yaml:"storage"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port string `yaml:"port"`

	// MasterKey, when set, is required as a Bearer token on every route
	// except health, metrics and swagger.
	MasterKey string `yaml:"master_key"`

	// BodySizeLimit caps request bodies, e.g. "10M".
	BodySizeLimit string `yaml:"body_size_limit"`

	SwaggerEnabled bool `yaml:"swagger_enabled"`
}

// ProvidersConfig locates the provider configuration document.
type ProvidersConfig struct {
	// Source is "file" or "redis".
	Source string `yaml:"source"`

	// Path is the document file for the file source. Files ending in
	// .yaml or .yml are parsed as YAML, anything else as JSON.
	Path string `yaml:"path"`

	RedisURL string `yaml:"redis_url"`
	RedisKey string `yaml:"redis_key"`

	// ReuseUnchanged skips re-parsing when the document bytes are unchanged.
	// The document is still read on every request.
	ReuseUnchanged bool `yaml:"reuse_unchanged"`
}

// HTTPConfig holds the outbound client timeouts, in seconds.
type HTTPConfig struct {
	Timeout               int `yaml:"timeout"`
	ResponseHeaderTimeout int `yaml:"response_header_timeout"`
}

// MetricsConfig holds Prometheus exposition settings.
type MetricsConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Endpoint string `yaml:"endpoint"`
}

// LogConfig holds process logging settings.
type LogConfig struct {
	// Format is auto, json or pretty.
	Format string `yaml:"format"`
	Level  string `yaml:"level"`
}

// UsageConfig holds token usage tracking settings.
type UsageConfig struct {
	Enabled bool `yaml:"enabled"`

	BufferSize int `yaml:"buffer_size"`

	// FlushInterval is in seconds.
	FlushInterval int `yaml:"flush_interval"`

	// RetentionDays is how long to keep entries; 0 keeps them forever.
	RetentionDays int `yaml:"retention_days"`
}

// LoadResult is the outcome of Load.
type LoadResult struct {
	Config *Config

	// Path is the YAML file that was read, or empty when none was found.
	Path string
}

// Load builds the configuration from defaults, the optional config.yaml and
// environment variables, in increasing order of precedence. A .env file in
// the working directory is loaded into the environment first.
func Load() (*LoadResult, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	cfg := buildDefaultConfig()

	path, err := applyYAML(cfg)
	if err != nil {
		return nil, err
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &LoadResult{Config: cfg, Path: path}, nil
}

// buildDefaultConfig returns the configuration used when nothing is set.
func buildDefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:           "8080",
			BodySizeLimit:  "10M",
			SwaggerEnabled: true,
		},
		Providers: ProvidersConfig{
			Source:         SourceFile,
			Path:           "config.json",
			RedisKey:       "chatgate:providers",
			ReuseUnchanged: true,
		},
		HTTP: HTTPConfig{
			Timeout:               600,
			ResponseHeaderTimeout: 600,
		},
		Metrics: MetricsConfig{
			Endpoint: "/metrics",
		},
		Logging: LogConfig{
			Format: "auto",
			Level:  "info",
		},
		Usage: UsageConfig{
			BufferSize:    1000,
			FlushInterval: 5,
			RetentionDays: 90,
		},
		Storage: storage.DefaultConfig(),
	}
}

// applyYAML decodes the first config file found over cfg and returns its path.
func applyYAML(cfg *Config) (string, error) {
	for _, path := range configPaths {
		data, err := os.ReadFile(path)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return "", fmt.Errorf("failed to read %s: %w", path, err)
		}
		if err := decodeYAML(data, cfg); err != nil {
			return "", fmt.Errorf("failed to parse %s: %w", path, err)
		}
		return path, nil
	}
	return "", nil
}

// decodeYAML expands ${VAR} placeholders in every scalar before decoding.
func decodeYAML(data []byte, cfg *Config) error {
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return err
	}
	if root.Kind == 0 {
		return nil
	}
	expandNode(&root)
	return root.Decode(cfg)
}

func expandNode(node *yaml.Node) {
	if node.Kind == yaml.ScalarNode {
		if expanded := expandString(node.Value); expanded != node.Value {
			// Re-resolve so "${PORT:-8080}" can fill an int or bool field.
			node.Value = expanded
			node.Tag = ""
			node.Style = 0
			if expanded == "" {
				node.Tag = "!!str"
				node.Style = yaml.DoubleQuotedStyle
			}
		}
		return
	}
	for _, child := range node.Content {
		expandNode(child)
	}
}

var placeholder = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(:-([^}]*))?\}`)

// expandString replaces ${VAR} and ${VAR:-default}. A variable that is unset
// or empty takes the default when one is given and is otherwise left as is.
func expandString(s string) string {
	if !strings.Contains(s, "${") {
		return s
	}
	return placeholder.ReplaceAllStringFunc(s, func(match string) string {
		parts := placeholder.FindStringSubmatch(match)
		if value := os.Getenv(parts[1]); value != "" {
			return value
		}
		if parts[2] != "" {
			return parts[3]
		}
		return match
	})
}

// applyEnvOverrides sets fields from environment variables that are present.
func applyEnvOverrides(cfg *Config) error {
	strs := []struct {
		env   string
		field *string
	}{
		{"PORT", &cfg.Server.Port},
		{"CHATGATE_MASTER_KEY", &cfg.Server.MasterKey},
		{"BODY_SIZE_LIMIT", &cfg.Server.BodySizeLimit},
		{"PROVIDERS_SOURCE", &cfg.Providers.Source},
		{"PROVIDERS_CONFIG_PATH", &cfg.Providers.Path},
		{"PROVIDERS_REDIS_URL", &cfg.Providers.RedisURL},
		{"PROVIDERS_REDIS_KEY", &cfg.Providers.RedisKey},
		{"METRICS_ENDPOINT", &cfg.Metrics.Endpoint},
		{"LOG_FORMAT", &cfg.Logging.Format},
		{"LOG_LEVEL", &cfg.Logging.Level},
		{"STORAGE_TYPE", &cfg.Storage.Type},
		{"SQLITE_PATH", &cfg.Storage.SQLite.Path},
		{"POSTGRES_URL", &cfg.Storage.PostgreSQL.URL},
		{"MONGODB_URL", &cfg.Storage.MongoDB.URL},
		{"MONGODB_DATABASE", &cfg.Storage.MongoDB.Database},
	}
	for _, o := range strs {
		if v, ok := os.LookupEnv(o.env); ok && v != "" {
			*o.field = v
		}
	}

	bools := []struct {
		env   string
		field *bool
	}{
		{"SWAGGER_ENABLED", &cfg.Server.SwaggerEnabled},
		{"PROVIDERS_REUSE_UNCHANGED", &cfg.Providers.ReuseUnchanged},
		{"METRICS_ENABLED", &cfg.Metrics.Enabled},
		{"USAGE_ENABLED", &cfg.Usage.Enabled},
	}
	for _, o := range bools {
		v, ok := os.LookupEnv(o.env)
		if !ok || v == "" {
			continue
		}
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", o.env, v, err)
		}
		*o.field = b
	}

	ints := []struct {
		env   string
		field *int
	}{
		{"HTTP_TIMEOUT", &cfg.HTTP.Timeout},
		{"HTTP_RESPONSE_HEADER_TIMEOUT", &cfg.HTTP.ResponseHeaderTimeout},
		{"USAGE_BUFFER_SIZE", &cfg.Usage.BufferSize},
		{"USAGE_FLUSH_INTERVAL", &cfg.Usage.FlushInterval},
		{"USAGE_RETENTION_DAYS", &cfg.Usage.RetentionDays},
		{"POSTGRES_MAX_CONNS", &cfg.Storage.PostgreSQL.MaxConns},
	}
	for _, o := range ints {
		v, ok := os.LookupEnv(o.env)
		if !ok || v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", o.env, v, err)
		}
		*o.field = n
	}

	return nil
}

// Validate checks settings whose mistakes would otherwise surface only on
// the first request.
func (c *Config) Validate() error {
	switch c.Providers.Source {
	case SourceFile:
		if c.Providers.Path == "" {
			return fmt.Errorf("providers.path is required for the file source")
		}
	case SourceRedis:
		if c.Providers.RedisURL == "" {
			return fmt.Errorf("providers.redis_url is required for the redis source")
		}
		if c.Providers.RedisKey == "" {
			return fmt.Errorf("providers.redis_key is required for the redis source")
		}
	default:
		return fmt.Errorf("unknown providers.source %q (valid: file, redis)", c.Providers.Source)
	}

	if c.HTTP.Timeout < 0 || c.HTTP.ResponseHeaderTimeout < 0 {
		return fmt.Errorf("http timeouts must not be negative")
	}
	if c.Metrics.Enabled && !strings.HasPrefix(c.Metrics.Endpoint, "/") {
		return fmt.Errorf("metrics.endpoint must start with /")
	}
	if c.Usage.RetentionDays < 0 {
		return fmt.Errorf("usage.retention_days must not be negative")
	}
	return nil
}
