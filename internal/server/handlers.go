// Package server provides HTTP handlers and server setup for the LLM gateway.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"chatgate/internal/core"
	"chatgate/internal/providers"
	"chatgate/internal/usage"
)

// ConfigLoader loads the provider configuration. It is called once per
// request that needs it.
type ConfigLoader interface {
	Load(ctx context.Context) (providers.Configuration, error)
}

// Dispatcher routes a completion request to the provider it names.
type Dispatcher interface {
	Dispatch(ctx context.Context, req *core.ChatCompletionRequest, registry *providers.Registry) (json.RawMessage, error)
}

// Handler holds the HTTP handlers
type Handler struct {
	loader      ConfigLoader
	dispatcher  Dispatcher
	usage       usage.Recorder
	usageReader usage.UsageReader
}

// NewHandler creates a new handler. recorder and reader may be nil.
func NewHandler(loader ConfigLoader, dispatcher Dispatcher, recorder usage.Recorder, reader usage.UsageReader) *Handler {
	if recorder == nil {
		recorder = usage.NoopLogger{}
	}
	return &Handler{
		loader:      loader,
		dispatcher:  dispatcher,
		usage:       recorder,
		usageReader: reader,
	}
}

// Health handles GET /health
//
// @Summary      Liveness probe
// @Tags         system
// @Produce      plain
// @Success      200  {string}  string  "healthy"
// @Router       /health [get]
func (h *Handler) Health(c echo.Context) error {
	return c.String(http.StatusOK, "healthy")
}

// Completions handles POST /completions
//
// @Summary      Create a chat completion
// @Description  Routes the request to the provider named by the model prefix and wraps its result.
// @Tags         completions
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        request  body      core.ChatCompletionRequest  true  "Completion request"
// @Success      200      {object}  core.ChatCompletionResponse
// @Failure      400      {object}  map[string]interface{}
// @Failure      401      {object}  map[string]interface{}
// @Failure      500      {object}  map[string]interface{}
// @Router       /completions [post]
func (h *Handler) Completions(c echo.Context) error {
	var req core.ChatCompletionRequest
	if err := c.Bind(&req); err != nil {
		return handleError(c, core.NewInvalidRequestError("invalid request body", err))
	}

	ctx := c.Request().Context()
	registry, err := h.registry(ctx)
	if err != nil {
		return handleError(c, err)
	}

	start := time.Now()
	raw, err := h.dispatcher.Dispatch(ctx, &req, registry)
	h.recordDispatch(usage.Dispatch{
		RequestID: core.GetRequestID(ctx),
		Model:     req.Model,
		Result:    raw,
		Err:       err,
		Elapsed:   time.Since(start),
	})
	if err != nil {
		return handleError(c, err)
	}

	return c.JSON(http.StatusOK, providers.Normalize(raw))
}

// Providers handles GET /providers
//
// @Summary      List configured providers
// @Tags         completions
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  core.ActiveProvidersResponse
// @Failure      401  {object}  map[string]interface{}
// @Failure      500  {object}  map[string]interface{}
// @Router       /providers [get]
func (h *Handler) Providers(c echo.Context) error {
	registry, err := h.registry(c.Request().Context())
	if err != nil {
		return handleError(c, err)
	}
	return c.JSON(http.StatusOK, core.ActiveProvidersResponse{Providers: registry.ListProviders()})
}

// UsageSummary handles GET /usage/summary
//
// @Summary      Get usage summary
// @Tags         usage
// @Produce      json
// @Security     BearerAuth
// @Param        start_date  query     string  false  "Start date (YYYY-MM-DD)"
// @Param        end_date    query     string  false  "End date (YYYY-MM-DD)"
// @Param        provider    query     string  false  "Provider name"
// @Success      200  {object}  usage.UsageSummary
// @Failure      400  {object}  map[string]interface{}
// @Failure      401  {object}  map[string]interface{}
// @Router       /usage/summary [get]
func (h *Handler) UsageSummary(c echo.Context) error {
	if h.usageReader == nil {
		return c.JSON(http.StatusOK, usage.UsageSummary{Providers: []usage.ProviderUsage{}})
	}

	params, err := parseUsageParams(c)
	if err != nil {
		return handleError(c, err)
	}

	summary, err := h.usageReader.GetSummary(c.Request().Context(), params)
	if err != nil {
		return handleError(c, err)
	}

	return c.JSON(http.StatusOK, summary)
}

// registry loads the configuration and builds this request's registry.
func (h *Handler) registry(ctx context.Context) (*providers.Registry, error) {
	cfg, err := h.loader.Load(ctx)
	if err != nil {
		return nil, err
	}
	return providers.NewRegistry(cfg), nil
}

// recordDispatch adds the dispatch to the ledger, whatever its outcome.
func (h *Handler) recordDispatch(d usage.Dispatch) {
	if !h.usage.Config().Enabled {
		return
	}
	h.usage.Write(usage.NewEntry(d))
}

// parseUsageParams extracts UsageQueryParams from the request query string.
// Returns an error if date parameters are provided but malformed.
func parseUsageParams(c echo.Context) (usage.UsageQueryParams, error) {
	params := usage.UsageQueryParams{Provider: c.QueryParam("provider")}

	if s := c.QueryParam("start_date"); s != "" {
		t, err := time.Parse(time.DateOnly, s)
		if err != nil {
			return params, core.NewInvalidRequestError("invalid start_date format, expected YYYY-MM-DD", err)
		}
		params.StartDate = t
	}
	if s := c.QueryParam("end_date"); s != "" {
		t, err := time.Parse(time.DateOnly, s)
		if err != nil {
			return params, core.NewInvalidRequestError("invalid end_date format, expected YYYY-MM-DD", err)
		}
		params.EndDate = t
	}
	if !params.StartDate.IsZero() && !params.EndDate.IsZero() && params.EndDate.Before(params.StartDate) {
		return params, core.NewInvalidRequestError("end_date must not be before start_date", nil)
	}
	return params, nil
}

// handleError converts gateway errors to appropriate HTTP responses.
// Caller mistakes are logged at info; everything else is a server fault and
// is logged with its full cause chain, which never reaches the client.
func handleError(c echo.Context, err error) error {
	ctx := c.Request().Context()
	requestID := core.GetRequestID(ctx)

	var gatewayErr *core.GatewayError
	if !errors.As(err, &gatewayErr) {
		slog.ErrorContext(ctx, "unexpected error", "error", err, "request_id", requestID)
		return c.JSON(http.StatusInternalServerError, map[string]interface{}{
			"error": map[string]interface{}{
				"type":    "internal_error",
				"message": "Internal Server Error",
			},
		})
	}

	attrs := []any{
		"kind", gatewayErr.Kind.String(),
		"model", gatewayErr.Model,
		"provider", gatewayErr.Provider,
		"request_id", requestID,
	}
	if gatewayErr.Kind.IsClientError() {
		slog.InfoContext(ctx, "request rejected", append(attrs, "message", gatewayErr.Message)...)
	} else {
		slog.ErrorContext(ctx, "request failed", append(attrs, "error", err)...)
	}

	return c.JSON(gatewayErr.HTTPStatusCode(), gatewayErr.ToJSON())
}
