package core

import (
	"encoding/json"

	"github.com/tidwall/gjson"
)

// ProviderSettings is the opaque settings document configured for one provider.
// The dispatch core only checks its presence; provider backends read fields
// from it with Get.
type ProviderSettings struct {
	raw json.RawMessage
}

// NewProviderSettings wraps a raw JSON document.
func NewProviderSettings(raw json.RawMessage) ProviderSettings {
	return ProviderSettings{raw: raw}
}

// Raw returns the settings document as configured.
func (s ProviderSettings) Raw() json.RawMessage {
	return s.raw
}

// Get returns the value at a gjson path, e.g. "api_key" or "headers.X-Org".
func (s ProviderSettings) Get(path string) gjson.Result {
	return gjson.GetBytes(s.raw, path)
}

// String returns the string at path, or def when it is absent or empty.
func (s ProviderSettings) String(path, def string) string {
	if v := s.Get(path); v.Exists() && v.String() != "" {
		return v.String()
	}
	return def
}

// Int returns the integer at path, or def when it is absent.
func (s ProviderSettings) Int(path string, def int) int {
	if v := s.Get(path); v.Exists() {
		return int(v.Int())
	}
	return def
}

// StringMap returns the object at path as a string map. Non-string values
// are rendered with their JSON text.
func (s ProviderSettings) StringMap(path string) map[string]string {
	v := s.Get(path)
	if !v.IsObject() {
		return nil
	}
	out := make(map[string]string)
	v.ForEach(func(key, value gjson.Result) bool {
		out[key.String()] = value.String()
		return true
	})
	return out
}
