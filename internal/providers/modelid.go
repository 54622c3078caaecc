package providers

import (
	"errors"
	"fmt"
	"strings"
)

// ModelIDSeparator separates the provider prefix from the model name.
const ModelIDSeparator = ":"

// ErrInvalidModelID is returned for identifiers without a provider prefix.
var ErrInvalidModelID = errors.New("model identifier has no provider prefix")

// ModelID is a parsed "provider:model" identifier.
type ModelID struct {
	Provider string
	Name     string
}

// String joins the identifier back together.
func (m ModelID) String() string {
	return m.Provider + ModelIDSeparator + m.Name
}

// ParseModelID splits raw on the first separator. The model name keeps any
// further separators, so "ollama:llama3:8b" is ("ollama", "llama3:8b").
// Whether the provider exists is checked by the Dispatcher.
func ParseModelID(raw string) (ModelID, error) {
	provider, name, found := strings.Cut(raw, ModelIDSeparator)
	if !found {
		return ModelID{}, fmt.Errorf("%w: %q", ErrInvalidModelID, raw)
	}
	return ModelID{Provider: provider, Name: name}, nil
}
