package providers

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatgate/internal/core"
)

// fakeInvoker records calls and returns a fixed result.
type fakeInvoker struct {
	calls  atomic.Int32
	last   atomic.Pointer[core.InvokeRequest]
	result json.RawMessage
	err    error
}

func (f *fakeInvoker) Invoke(_ context.Context, req *core.InvokeRequest) (json.RawMessage, error) {
	f.calls.Add(1)
	f.last.Store(req)
	return f.result, f.err
}

func newTestDispatcher(t *testing.T, invoker core.Invoker, hooks Hooks) *Dispatcher {
	t.Helper()
	d, err := NewDispatcher(invoker, hooks)
	require.NoError(t, err)
	return d
}

func TestNewDispatcher_NilInvoker(t *testing.T) {
	_, err := NewDispatcher(nil, nil)
	require.Error(t, err)
}

func TestDispatch_Success(t *testing.T) {
	invoker := &fakeInvoker{result: json.RawMessage(`{"choices":[{"message":{"content":"hi"}}]}`)}
	hooks := &recordingHooks{}
	d := newTestDispatcher(t, invoker, hooks)

	req := &core.ChatCompletionRequest{
		Model:    "openai:gpt-4",
		Messages: []core.Message{{"role": "user", "content": "hello"}},
		Kwargs:   map[string]any{"temperature": 0.5},
	}
	raw, err := d.Dispatch(context.Background(), req, NewRegistry(testConfiguration()))
	require.NoError(t, err)
	assert.Equal(t, string(invoker.result), string(raw))

	require.EqualValues(t, 1, invoker.calls.Load())
	got := invoker.last.Load()
	assert.Equal(t, "openai", got.Provider)
	assert.Equal(t, "gpt-4", got.Model)
	assert.Equal(t, "sk", got.Settings.String("api_key", ""))
	assert.Equal(t, req.Messages, got.Messages)
	assert.Equal(t, req.Kwargs, got.Params)

	require.Len(t, hooks.dispatches, 1)
	assert.Equal(t, "openai", hooks.dispatches[0].provider)
	assert.NoError(t, hooks.dispatches[0].err)
}

func TestDispatch_ModelNameKeepsSeparators(t *testing.T) {
	invoker := &fakeInvoker{result: json.RawMessage(`{}`)}
	d := newTestDispatcher(t, invoker, nil)

	cfg := Configuration{"ollama": core.NewProviderSettings(json.RawMessage(`{}`))}
	_, err := d.Dispatch(context.Background(), &core.ChatCompletionRequest{Model: "ollama:llama3:8b"}, NewRegistry(cfg))
	require.NoError(t, err)
	assert.Equal(t, "llama3:8b", invoker.last.Load().Model)
}

func TestDispatch_InvalidModel(t *testing.T) {
	invoker := &fakeInvoker{result: json.RawMessage(`{}`)}
	hooks := &recordingHooks{}
	d := newTestDispatcher(t, invoker, hooks)

	_, err := d.Dispatch(context.Background(), &core.ChatCompletionRequest{Model: "gpt-4"}, NewRegistry(testConfiguration()))

	var gwErr *core.GatewayError
	require.ErrorAs(t, err, &gwErr)
	assert.Equal(t, core.KindInvalidModel, gwErr.Kind)
	assert.ErrorIs(t, err, ErrInvalidModelID)
	assert.Equal(t, 400, gwErr.HTTPStatusCode())
	assert.Zero(t, invoker.calls.Load())

	require.Len(t, hooks.dispatches, 1)
	assert.Empty(t, hooks.dispatches[0].provider)
}

func TestDispatch_UnknownProvider(t *testing.T) {
	tests := []string{"unknownprov:some-model", ":gpt-4", "OpenAI:gpt-4"}

	for _, model := range tests {
		t.Run(model, func(t *testing.T) {
			invoker := &fakeInvoker{result: json.RawMessage(`{}`)}
			d := newTestDispatcher(t, invoker, nil)

			_, err := d.Dispatch(context.Background(), &core.ChatCompletionRequest{Model: model}, NewRegistry(testConfiguration()))

			var gwErr *core.GatewayError
			require.ErrorAs(t, err, &gwErr)
			assert.Equal(t, core.KindUnknownProvider, gwErr.Kind)
			assert.Equal(t, model, gwErr.Model)
			assert.Contains(t, gwErr.Message, model)
			assert.True(t, core.IsClientError(err))
			assert.Zero(t, invoker.calls.Load(), "invoker must not be called for an unknown provider")
		})
	}
}

func TestDispatch_EmptyRegistry(t *testing.T) {
	invoker := &fakeInvoker{result: json.RawMessage(`{}`)}
	d := newTestDispatcher(t, invoker, nil)

	_, err := d.Dispatch(context.Background(), &core.ChatCompletionRequest{Model: "openai:gpt-4"}, NewRegistry(Configuration{}))
	assert.Equal(t, core.KindUnknownProvider, core.KindOf(err))
	assert.Zero(t, invoker.calls.Load())
}

func TestDispatch_InvocationFailed(t *testing.T) {
	cause := errors.New("connection refused")
	invoker := &fakeInvoker{err: cause}
	hooks := &recordingHooks{}
	d := newTestDispatcher(t, invoker, hooks)

	_, err := d.Dispatch(context.Background(), &core.ChatCompletionRequest{Model: "anthropic:claude-3"}, NewRegistry(testConfiguration()))

	var gwErr *core.GatewayError
	require.ErrorAs(t, err, &gwErr)
	assert.Equal(t, core.KindProviderInvocationFailed, gwErr.Kind)
	assert.Equal(t, "anthropic", gwErr.Provider)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, 500, gwErr.HTTPStatusCode())
	assert.False(t, core.IsClientError(err))

	// No retry in the core.
	assert.EqualValues(t, 1, invoker.calls.Load())

	require.Len(t, hooks.dispatches, 1)
	assert.Equal(t, "anthropic", hooks.dispatches[0].provider)
	assert.Error(t, hooks.dispatches[0].err)
}

func TestDispatch_EmptyResult(t *testing.T) {
	for _, result := range []json.RawMessage{nil, json.RawMessage("  ")} {
		d := newTestDispatcher(t, &fakeInvoker{result: result}, nil)

		_, err := d.Dispatch(context.Background(), &core.ChatCompletionRequest{Model: "openai:gpt-4"}, NewRegistry(testConfiguration()))
		assert.Equal(t, core.KindProviderInvocationFailed, core.KindOf(err))
	}
}

func TestDispatch_Concurrent(t *testing.T) {
	invoker := &fakeInvoker{result: json.RawMessage(`{"ok":true}`)}
	d := newTestDispatcher(t, invoker, &recordingHooks{})
	registry := NewRegistry(testConfiguration())

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			model := "openai:gpt-4"
			if i%2 == 0 {
				model = "missing:gpt-4"
			}
			_, _ = d.Dispatch(context.Background(), &core.ChatCompletionRequest{Model: model}, registry)
		}(i)
	}
	wg.Wait()

	assert.EqualValues(t, 25, invoker.calls.Load())
}

func TestNormalize(t *testing.T) {
	raw := json.RawMessage(`{"id":"chatcmpl-1","choices":[]}`)
	resp := Normalize(raw)
	assert.Equal(t, string(raw), string(resp.Response))

	body, err := json.Marshal(resp)
	require.NoError(t, err)
	assert.JSONEq(t, `{"response":{"id":"chatcmpl-1","choices":[]}}`, string(body))

	body, err = json.Marshal(Normalize(json.RawMessage(`"plain text"`)))
	require.NoError(t, err)
	assert.JSONEq(t, `{"response":"plain text"}`, string(body))
}
