package app

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatgate/config"
	"chatgate/internal/core"
	"chatgate/internal/providers"
	"chatgate/internal/storage"
)

type echoProvider struct{}

func (echoProvider) ChatCompletion(_ context.Context, req *core.InvokeRequest) (json.RawMessage, error) {
	return json.RawMessage(`{"model":"` + req.Model + `","usage":{"prompt_tokens":3,"completion_tokens":4}}`), nil
}

func testFactory() *providers.ProviderFactory {
	factory := providers.NewProviderFactory(nil)
	factory.Add(providers.Registration{
		Type: "echo",
		New: func(providers.ProviderOptions) (core.Provider, error) {
			return echoProvider{}, nil
		},
	})
	return factory
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"local":{"type":"echo"}}`), 0o600))

	return &config.Config{
		Server: config.ServerConfig{Port: "0", BodySizeLimit: "1M"},
		Providers: config.ProvidersConfig{
			Source:         config.SourceFile,
			Path:           path,
			ReuseUnchanged: true,
		},
		Metrics: config.MetricsConfig{Endpoint: "/metrics"},
		Storage: storage.DefaultConfig(),
	}
}

func newTestApp(t *testing.T, cfg *config.Config, reg *prometheus.Registry) *App {
	t.Helper()
	a, err := New(context.Background(), Config{
		AppConfig: &config.LoadResult{Config: cfg},
		Factory:   testFactory(),
		Registry:  reg,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Shutdown(context.Background()) })
	return a
}

func serve(a *App, method, target, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	a.Server().ServeHTTP(rec, req)
	return rec
}

func TestNew_Validation(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr string
	}{
		{name: "nil app config", cfg: Config{Factory: testFactory()}, wantErr: "app config is required"},
		{name: "nil config", cfg: Config{AppConfig: &config.LoadResult{}, Factory: testFactory()}, wantErr: "nil Config"},
		{name: "nil factory", cfg: Config{AppConfig: &config.LoadResult{Config: &config.Config{}}}, wantErr: "factory is required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(context.Background(), tt.cfg)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestNew_UnknownSource(t *testing.T) {
	cfg := testConfig(t)
	cfg.Providers.Source = "etcd"

	_, err := New(context.Background(), Config{AppConfig: &config.LoadResult{Config: cfg}, Factory: testFactory()})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown provider source: etcd")
}

func TestNew_UnknownStorage(t *testing.T) {
	cfg := testConfig(t)
	cfg.Usage.Enabled = true
	cfg.Storage.Type = "cassandra"

	_, err := New(context.Background(), Config{AppConfig: &config.LoadResult{Config: cfg}, Factory: testFactory()})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to initialize usage tracking")
}

func TestApp_FileSource(t *testing.T) {
	a := newTestApp(t, testConfig(t), nil)

	rec := serve(a, http.MethodGet, "/providers", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"providers":["local"]}`, rec.Body.String())

	rec = serve(a, http.MethodPost, "/completions", `{"model":"local:tiny","messages":[{"role":"user","content":"hi"}]}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"response":{"model":"tiny","usage":{"prompt_tokens":3,"completion_tokens":4}}}`, rec.Body.String())

	rec = serve(a, http.MethodPost, "/completions", `{"model":"remote:tiny","messages":[]}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestApp_RedisSource(t *testing.T) {
	mr := miniredis.RunT(t)
	require.NoError(t, mr.Set("gateway:providers", `{"alpha":{"type":"echo"},"beta":{"type":"echo"}}`))

	cfg := testConfig(t)
	cfg.Providers.Source = config.SourceRedis
	cfg.Providers.RedisURL = "redis://" + mr.Addr()
	cfg.Providers.RedisKey = "gateway:providers"

	a := newTestApp(t, cfg, nil)
	assert.Contains(t, a.Loader().Source().String(), "gateway:providers")

	rec := serve(a, http.MethodGet, "/providers", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"providers":["alpha","beta"]}`, rec.Body.String())

	// The document is re-read per request.
	require.NoError(t, mr.Set("gateway:providers", `{"gamma":{"type":"echo"}}`))
	rec = serve(a, http.MethodGet, "/providers", "")
	assert.JSONEq(t, `{"providers":["gamma"]}`, rec.Body.String())
}

func TestApp_Metrics(t *testing.T) {
	cfg := testConfig(t)
	cfg.Metrics.Enabled = true
	reg := prometheus.NewRegistry()

	a := newTestApp(t, cfg, reg)
	rec := serve(a, http.MethodPost, "/completions", `{"model":"local:tiny","messages":[]}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = serve(a, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `chatgate_dispatch_total{outcome="success",provider="local"} 1`)
}

func TestApp_UsageSQLite(t *testing.T) {
	cfg := testConfig(t)
	cfg.Usage = config.UsageConfig{Enabled: true, BufferSize: 10, FlushInterval: 60, RetentionDays: 0}
	cfg.Storage.Type = storage.TypeSQLite
	cfg.Storage.SQLite.Path = filepath.Join(t.TempDir(), "usage.db")

	a := newTestApp(t, cfg, nil)
	assert.True(t, a.UsageLogger().Config().Enabled)

	rec := serve(a, http.MethodPost, "/completions", `{"model":"local:tiny","messages":[]}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = serve(a, http.MethodGet, "/usage/summary", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestShutdown_Idempotent(t *testing.T) {
	a, err := New(context.Background(), Config{
		AppConfig: &config.LoadResult{Config: testConfig(t)},
		Factory:   testFactory(),
	})
	require.NoError(t, err)

	require.NoError(t, a.Shutdown(context.Background()))
	require.NoError(t, a.Shutdown(context.Background()))
}
