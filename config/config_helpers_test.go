package config

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// TestExpandString tests the expandString function with various scenarios
func TestExpandString(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		envVars  map[string]string
		expected string
	}{
		{
			name:     "empty string",
			input:    "",
			envVars:  map[string]string{},
			expected: "",
		},
		{
			name:     "string without placeholders",
			input:    "simple-string",
			envVars:  map[string]string{},
			expected: "simple-string",
		},
		{
			name:     "simple variable expansion",
			input:    "${API_KEY}",
			envVars:  map[string]string{"API_KEY": "sk-12345"},
			expected: "sk-12345",
		},
		{
			name:     "variable in middle of string",
			input:    "prefix-${API_KEY}-suffix",
			envVars:  map[string]string{"API_KEY": "sk-12345"},
			expected: "prefix-sk-12345-suffix",
		},
		{
			name:     "multiple variables",
			input:    "${SCHEME}://${HOST}:${PORT}",
			envVars:  map[string]string{"SCHEME": "redis", "HOST": "cache.internal", "PORT": "6379"},
			expected: "redis://cache.internal:6379",
		},
		{
			name:     "variable with default value - env var exists",
			input:    "${REDIS_URL:-redis://localhost:6379}",
			envVars:  map[string]string{"REDIS_URL": "redis://prod:6379"},
			expected: "redis://prod:6379",
		},
		{
			name:     "variable with default value - env var missing",
			input:    "${REDIS_URL:-redis://localhost:6379}",
			envVars:  map[string]string{},
			expected: "redis://localhost:6379",
		},
		{
			name:     "variable with default value - env var empty",
			input:    "${API_KEY:-default-key}",
			envVars:  map[string]string{"API_KEY": ""},
			expected: "default-key",
		},
		{
			name:     "unresolved variable - no default",
			input:    "${MISSING_VAR}",
			envVars:  map[string]string{},
			expected: "${MISSING_VAR}",
		},
		{
			name:     "mixed resolved and unresolved with defaults",
			input:    "${RESOLVED}:${UNRESOLVED:-fallback}:${MISSING}",
			envVars:  map[string]string{"RESOLVED": "value1"},
			expected: "value1:fallback:${MISSING}",
		},
		{
			name:     "default value with colon in it",
			input:    "${URL:-http://localhost:8080}",
			envVars:  map[string]string{},
			expected: "http://localhost:8080",
		},
		{
			name:     "environment variable set to empty string (no default)",
			input:    "${EMPTY_VAR}",
			envVars:  map[string]string{"EMPTY_VAR": ""},
			expected: "${EMPTY_VAR}",
		},
		{
			name:     "empty default value - env var missing",
			input:    "${OPTIONAL_VAR:-}",
			envVars:  map[string]string{},
			expected: "",
		},
		{
			name:     "master key pattern - set to value",
			input:    "${CHATGATE_MASTER_KEY:-}",
			envVars:  map[string]string{"CHATGATE_MASTER_KEY": "secret-key"},
			expected: "secret-key",
		},
		{
			name:     "multiple placeholders some resolved some not",
			input:    "prefix-${VAR1}-${VAR2}-${VAR3}-suffix",
			envVars:  map[string]string{"VAR1": "a", "VAR3": "c"},
			expected: "prefix-a-${VAR2}-c-suffix",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.envVars {
				t.Setenv(k, v)
			}
			// Empty behaves as unset.
			for _, k := range []string{"API_KEY", "MISSING_VAR", "UNRESOLVED", "MISSING", "URL", "OPTIONAL_VAR", "VAR2", "REDIS_URL"} {
				if _, set := tt.envVars[k]; !set {
					t.Setenv(k, "")
				}
			}

			result := expandString(tt.input)
			if result != tt.expected {
				t.Errorf("expandString(%q) = %q, want %q", tt.input, result, tt.expected)
			}
		})
	}
}

// TestApplyEnvOverrides tests the applyEnvOverrides function
func TestApplyEnvOverrides(t *testing.T) {
	tests := []struct {
		name    string
		envVars map[string]string
		check   func(t *testing.T, cfg *Config)
	}{
		{
			name:    "PORT override",
			envVars: map[string]string{"PORT": "3000"},
			check: func(t *testing.T, cfg *Config) {
				if cfg.Server.Port != "3000" {
					t.Errorf("Server.Port = %q, want %q", cfg.Server.Port, "3000")
				}
			},
		},
		{
			name:    "CHATGATE_MASTER_KEY override",
			envVars: map[string]string{"CHATGATE_MASTER_KEY": "my-secret"},
			check: func(t *testing.T, cfg *Config) {
				if cfg.Server.MasterKey != "my-secret" {
					t.Errorf("Server.MasterKey = %q, want %q", cfg.Server.MasterKey, "my-secret")
				}
			},
		},
		{
			name: "provider source overrides",
			envVars: map[string]string{
				"PROVIDERS_SOURCE":          "redis",
				"PROVIDERS_REDIS_URL":       "redis://localhost:6379/0",
				"PROVIDERS_REDIS_KEY":       "gw:providers",
				"PROVIDERS_REUSE_UNCHANGED": "false",
			},
			check: func(t *testing.T, cfg *Config) {
				if cfg.Providers.Source != SourceRedis {
					t.Errorf("Providers.Source = %q, want %q", cfg.Providers.Source, SourceRedis)
				}
				if cfg.Providers.RedisURL != "redis://localhost:6379/0" {
					t.Errorf("Providers.RedisURL = %q", cfg.Providers.RedisURL)
				}
				if cfg.Providers.RedisKey != "gw:providers" {
					t.Errorf("Providers.RedisKey = %q", cfg.Providers.RedisKey)
				}
				if cfg.Providers.ReuseUnchanged {
					t.Error("Providers.ReuseUnchanged should be false")
				}
			},
		},
		{
			name:    "storage overrides",
			envVars: map[string]string{"STORAGE_TYPE": "postgresql", "POSTGRES_URL": "postgres://localhost/test", "POSTGRES_MAX_CONNS": "20"},
			check: func(t *testing.T, cfg *Config) {
				if cfg.Storage.Type != "postgresql" {
					t.Errorf("Storage.Type = %q, want %q", cfg.Storage.Type, "postgresql")
				}
				if cfg.Storage.PostgreSQL.URL != "postgres://localhost/test" {
					t.Errorf("Storage.PostgreSQL.URL = %q, want %q", cfg.Storage.PostgreSQL.URL, "postgres://localhost/test")
				}
				if cfg.Storage.PostgreSQL.MaxConns != 20 {
					t.Errorf("Storage.PostgreSQL.MaxConns = %d, want %d", cfg.Storage.PostgreSQL.MaxConns, 20)
				}
			},
		},
		{
			name:    "bool overrides",
			envVars: map[string]string{"METRICS_ENABLED": "true", "USAGE_ENABLED": "1", "SWAGGER_ENABLED": "false"},
			check: func(t *testing.T, cfg *Config) {
				if !cfg.Metrics.Enabled {
					t.Error("Metrics.Enabled should be true")
				}
				if !cfg.Usage.Enabled {
					t.Error("Usage.Enabled should be true")
				}
				if cfg.Server.SwaggerEnabled {
					t.Error("Server.SwaggerEnabled should be false")
				}
			},
		},
		{
			name:    "HTTP timeout overrides",
			envVars: map[string]string{"HTTP_TIMEOUT": "30", "HTTP_RESPONSE_HEADER_TIMEOUT": "60"},
			check: func(t *testing.T, cfg *Config) {
				if cfg.HTTP.Timeout != 30 {
					t.Errorf("HTTP.Timeout = %d, want 30", cfg.HTTP.Timeout)
				}
				if cfg.HTTP.ResponseHeaderTimeout != 60 {
					t.Errorf("HTTP.ResponseHeaderTimeout = %d, want 60", cfg.HTTP.ResponseHeaderTimeout)
				}
			},
		},
		{
			name:    "logging overrides",
			envVars: map[string]string{"LOG_FORMAT": "json", "LOG_LEVEL": "debug"},
			check: func(t *testing.T, cfg *Config) {
				if cfg.Logging.Format != "json" || cfg.Logging.Level != "debug" {
					t.Errorf("Logging = %+v", cfg.Logging)
				}
			},
		},
		{
			name:    "no env vars set preserves defaults",
			envVars: map[string]string{},
			check: func(t *testing.T, cfg *Config) {
				if cfg.Server.Port != "8080" {
					t.Errorf("Server.Port = %q, want %q", cfg.Server.Port, "8080")
				}
				if cfg.HTTP.Timeout != 600 {
					t.Errorf("HTTP.Timeout = %d, want 600", cfg.HTTP.Timeout)
				}
				if cfg.Providers.Path != "config.json" {
					t.Errorf("Providers.Path = %q, want config.json", cfg.Providers.Path)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.envVars {
				t.Setenv(k, v)
			}

			cfg := buildDefaultConfig()
			require.NoError(t, applyEnvOverrides(cfg))
			tt.check(t, cfg)
		})
	}
}

func TestApplyEnvOverrides_InvalidValues(t *testing.T) {
	for env, value := range map[string]string{
		"METRICS_ENABLED": "maybe",
		"HTTP_TIMEOUT":    "ten",
	} {
		t.Run(env, func(t *testing.T) {
			t.Setenv(env, value)
			require.Error(t, applyEnvOverrides(buildDefaultConfig()))
		})
	}
}
