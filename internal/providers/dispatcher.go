package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"chatgate/internal/core"
)

// errEmptyResult is returned when a provider succeeds without a body.
var errEmptyResult = errors.New("provider returned an empty result")

// Dispatcher routes validated completion requests to the provider invoker.
// It holds no per-request state and is safe for concurrent use.
type Dispatcher struct {
	invoker core.Invoker
	hooks   Hooks
}

// NewDispatcher creates a dispatcher. hooks may be nil.
func NewDispatcher(invoker core.Invoker, hooks Hooks) (*Dispatcher, error) {
	if invoker == nil {
		return nil, fmt.Errorf("invoker cannot be nil")
	}
	if hooks == nil {
		hooks = NoopHooks{}
	}
	return &Dispatcher{
		invoker: invoker,
		hooks:   hooks,
	}, nil
}

// Dispatch parses req.Model, checks the provider against registry and
// invokes it. The returned result is the provider's body, unmodified.
//
// Errors are *core.GatewayError values of kind KindInvalidModel,
// KindUnknownProvider or KindProviderInvocationFailed. The invoker is never
// called for the first two. Failed invocations are not retried.
func (d *Dispatcher) Dispatch(ctx context.Context, req *core.ChatCompletionRequest, registry *Registry) (json.RawMessage, error) {
	start := time.Now()

	id, err := ParseModelID(req.Model)
	if err != nil {
		gwErr := core.NewInvalidModelError(req.Model, err)
		d.hooks.OnDispatch("", gwErr, time.Since(start))
		return nil, gwErr
	}

	settings, err := registry.SettingsFor(id.Provider)
	if err != nil {
		gwErr := core.NewUnknownProviderError(req.Model, id.Provider)
		d.hooks.OnDispatch("", gwErr, time.Since(start))
		return nil, gwErr
	}

	raw, err := d.invoker.Invoke(ctx, &core.InvokeRequest{
		Provider: id.Provider,
		Model:    id.Name,
		Settings: settings,
		Messages: req.Messages,
		Params:   req.Kwargs,
	})
	if err == nil && len(bytes.TrimSpace(raw)) == 0 {
		err = errEmptyResult
	}
	if err != nil {
		gwErr := core.NewInvocationError(id.Provider, id.Name, err)
		d.hooks.OnDispatch(id.Provider, gwErr, time.Since(start))
		return nil, gwErr
	}

	d.hooks.OnDispatch(id.Provider, nil, time.Since(start))
	return raw, nil
}
