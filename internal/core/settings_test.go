package core

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestProviderSettings(t *testing.T) {
	s := NewProviderSettings(json.RawMessage(`{
		"api_key": "sk-1",
		"max_retries": 5,
		"empty": "",
		"headers": {"X-Org": "acme", "X-Count": 3}
	}`))

	assert.Equal(t, "sk-1", s.String("api_key", "def"))
	assert.Equal(t, "def", s.String("missing", "def"))
	assert.Equal(t, "def", s.String("empty", "def"))
	assert.Equal(t, 5, s.Int("max_retries", 2))
	assert.Equal(t, 2, s.Int("missing", 2))
	assert.Equal(t, map[string]string{"X-Org": "acme", "X-Count": "3"}, s.StringMap("headers"))
	assert.Nil(t, s.StringMap("api_key"))
}

func TestProviderSettings_Zero(t *testing.T) {
	var s ProviderSettings

	assert.Nil(t, s.Raw())
	assert.Equal(t, "x", s.String("type", "x"))
	assert.Nil(t, s.StringMap("headers"))
}
