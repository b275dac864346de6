package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitizeKVsRedactsSensitiveKeys(t *testing.T) {
	out := sanitizeKVs([]interface{}{"user_id", "u1", "service_token", "abc", "solution", "sa-ri", "dangling"})

	assert.Equal(t, []interface{}{"user_id", "u1", "service_token", "[REDACTED]", "solution", "[REDACTED]", "dangling"}, out)
}

func TestNewFallsBackToDevelopment(t *testing.T) {
	l, err := New("local")
	assert.NoError(t, err)
	assert.NotNil(t, l.SugaredLogger)
	l.With("component", "test").Debug("hello", "k", 1)
}
