// Package core provides core types and interfaces for the chat completion gateway.
package core

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorKind classifies every failure the gateway can surface to a caller.
type ErrorKind int

const (
	// KindConfigMissing indicates the provider configuration source does not exist.
	KindConfigMissing ErrorKind = iota + 1
	// KindConfigMalformed indicates the provider configuration could not be parsed.
	KindConfigMalformed
	// KindConfigUnavailable indicates any other failure reading the configuration source.
	KindConfigUnavailable
	// KindInvalidModel indicates a model identifier without a provider prefix.
	KindInvalidModel
	// KindUnknownProvider indicates a well-formed identifier naming an unconfigured provider.
	KindUnknownProvider
	// KindProviderInvocationFailed indicates the provider call itself failed.
	KindProviderInvocationFailed
	// KindInvalidRequest indicates a request the inbound surface could not decode.
	KindInvalidRequest
)

// String returns the snake_case name used in logs, metrics and error bodies.
func (k ErrorKind) String() string {
	switch k {
	case KindConfigMissing:
		return "config_missing"
	case KindConfigMalformed:
		return "config_malformed"
	case KindConfigUnavailable:
		return "config_unavailable"
	case KindInvalidModel:
		return "invalid_model"
	case KindUnknownProvider:
		return "unknown_provider"
	case KindProviderInvocationFailed:
		return "provider_invocation_failed"
	case KindInvalidRequest:
		return "invalid_request_error"
	default:
		return "internal_error"
	}
}

// IsClientError reports whether the kind is caused by caller input.
func (k ErrorKind) IsClientError() bool {
	switch k {
	case KindInvalidModel, KindUnknownProvider, KindInvalidRequest:
		return true
	default:
		return false
	}
}

// GatewayError is the base error type for all gateway errors
type GatewayError struct {
	Kind     ErrorKind
	Message  string
	Model    string
	Provider string
	// Original error for debugging (not exposed to clients)
	Err error
}

// Error implements the error interface
func (e *GatewayError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Kind, e.Message)
	if e.Provider != "" {
		msg = fmt.Sprintf("[%s] %s", e.Provider, msg)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap implements the error unwrapping interface
func (e *GatewayError) Unwrap() error {
	return e.Err
}

// HTTPStatusCode returns the status code the boundary layer must answer with.
func (e *GatewayError) HTTPStatusCode() int {
	switch e.Kind {
	case KindInvalidModel, KindUnknownProvider, KindInvalidRequest:
		return http.StatusBadRequest
	case KindConfigMissing, KindConfigMalformed, KindConfigUnavailable, KindProviderInvocationFailed:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

// ToJSON converts the error to a JSON-compatible map.
// Server-side failures carry a fixed message; detail stays in the logs.
func (e *GatewayError) ToJSON() map[string]interface{} {
	message := "Internal Server Error"
	errType := "internal_error"
	if e.Kind.IsClientError() {
		message = e.Message
		errType = e.Kind.String()
	}
	return map[string]interface{}{
		"error": map[string]interface{}{
			"type":    errType,
			"message": message,
		},
	}
}

// KindOf returns the kind of the first GatewayError in err's chain, or 0.
func KindOf(err error) ErrorKind {
	var gwErr *GatewayError
	if errors.As(err, &gwErr) {
		return gwErr.Kind
	}
	return 0
}

// IsClientError reports whether err was caused by caller input.
func IsClientError(err error) bool {
	return KindOf(err).IsClientError()
}

// NewConfigError creates a configuration loading error of the given kind.
func NewConfigError(kind ErrorKind, message string, err error) *GatewayError {
	return &GatewayError{
		Kind:    kind,
		Message: message,
		Err:     err,
	}
}

// NewInvalidModelError creates an error for a model identifier that cannot be parsed.
func NewInvalidModelError(model string, err error) *GatewayError {
	return &GatewayError{
		Kind:    KindInvalidModel,
		Message: fmt.Sprintf("invalid model identifier %q, expected the form 'provider:model'", model),
		Model:   model,
		Err:     err,
	}
}

// NewUnknownProviderError creates an error for a model whose provider is not configured.
func NewUnknownProviderError(model, provider string) *GatewayError {
	return &GatewayError{
		Kind:     KindUnknownProvider,
		Message:  fmt.Sprintf("No model found with name %s, please check the providers route to find out what models are available", model),
		Model:    model,
		Provider: provider,
	}
}

// NewInvocationError wraps a failure returned by a provider call.
func NewInvocationError(provider, model string, err error) *GatewayError {
	return &GatewayError{
		Kind:     KindProviderInvocationFailed,
		Message:  "provider invocation failed",
		Model:    model,
		Provider: provider,
		Err:      err,
	}
}

// NewInvalidRequestError creates an error for an undecodable request.
func NewInvalidRequestError(message string, err error) *GatewayError {
	return &GatewayError{
		Kind:    KindInvalidRequest,
		Message: message,
		Err:     err,
	}
}
