package providers

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrSourceNotFound is returned by a Source whose document does not exist.
var ErrSourceNotFound = errors.New("configuration source not found")

// Document formats understood by ParseConfiguration.
const (
	FormatJSON = "json"
	FormatYAML = "yaml"
)

// Source provides the raw provider configuration document.
// Implementations must not modify the underlying document.
type Source interface {
	// Read returns the current document bytes. It wraps ErrSourceNotFound
	// when the document does not exist.
	Read(ctx context.Context) ([]byte, error)

	// Format returns FormatJSON or FormatYAML.
	Format() string

	// String describes the source for logs.
	String() string
}

// FileSource reads the provider document from the local filesystem.
type FileSource struct {
	Path string
}

// NewFileSource creates a file-backed source.
func NewFileSource(path string) *FileSource {
	return &FileSource{Path: path}
}

// Read reads the whole file on every call.
func (s *FileSource) Read(_ context.Context) ([]byte, error) {
	data, err := os.ReadFile(s.Path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrSourceNotFound, s.Path)
		}
		return nil, fmt.Errorf("failed to read %s: %w", s.Path, err)
	}
	return data, nil
}

// Format derives the document format from the file extension.
func (s *FileSource) Format() string {
	switch strings.ToLower(filepath.Ext(s.Path)) {
	case ".yaml", ".yml":
		return FormatYAML
	default:
		return FormatJSON
	}
}

func (s *FileSource) String() string {
	return "file:" + s.Path
}

const (
	// DefaultRedisKey is the default key holding the provider document in Redis.
	DefaultRedisKey = "chatgate:providers"
)

// RedisConfig holds Redis connection configuration.
type RedisConfig struct {
	// URL is the Redis connection URL (e.g., "redis://localhost:6379" or "redis://:password@host:6379/0")
	URL string

	// Key holds the JSON provider document (defaults to "chatgate:providers")
	Key string
}

// RedisSource reads the provider document from a single Redis string key.
// This lets several gateway instances share one provider configuration.
type RedisSource struct {
	client *redis.Client
	key    string
}

// NewRedisSource connects to Redis and verifies the connection.
func NewRedisSource(cfg RedisConfig) (*RedisSource, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	src := NewRedisSourceWithClient(client, cfg.Key)
	slog.Info("redis provider source connected", "key", src.key)
	return src, nil
}

// NewRedisSourceWithClient wraps an existing client. An empty key selects DefaultRedisKey.
func NewRedisSourceWithClient(client *redis.Client, key string) *RedisSource {
	if key == "" {
		key = DefaultRedisKey
	}
	return &RedisSource{client: client, key: key}
}

// Read fetches the document with GET.
func (s *RedisSource) Read(ctx context.Context) ([]byte, error) {
	data, err := s.client.Get(ctx, s.key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("%w: redis key %s", ErrSourceNotFound, s.key)
		}
		return nil, fmt.Errorf("failed to get provider document from redis: %w", err)
	}
	return data, nil
}

// Format is always JSON for Redis-held documents.
func (s *RedisSource) Format() string {
	return FormatJSON
}

func (s *RedisSource) String() string {
	return "redis:" + s.key
}

// Close closes the Redis connection.
func (s *RedisSource) Close() error {
	if s.client != nil {
		return s.client.Close()
	}
	return nil
}
