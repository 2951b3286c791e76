package config

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearClientEnv(t *testing.T) {
	t.Helper()
	for _, name := range []string{
		"EV2_API_URL", "EV2_API_KEY", "EV2_TIMEOUT", "EV2_LOCALE",
		"EV2_PAGE_SIZE", "EV2_PRECISION", "EV2_SEARCH_DELAY", "EV2_LOG_LEVEL", "EV2_LOG_FORMAT",
	} {
		t.Setenv(name, "")
	}
}

func TestLoadClient_Defaults(t *testing.T) {
	clearClientEnv(t)

	cfg, err := LoadClient(nil)
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8080", cfg.APIURL)
	assert.Equal(t, 10*time.Second, cfg.Timeout)
	assert.Equal(t, "en", cfg.Locale)
	assert.Equal(t, 25, cfg.PageSize)
	assert.Equal(t, NoPrecision, cfg.Precision)
	assert.Equal(t, 500*time.Millisecond, cfg.SearchDelay)
	assert.Equal(t, "warn", cfg.Logging.Level)
}

func TestLoadClient_Environment(t *testing.T) {
	clearClientEnv(t)
	t.Setenv("EV2_API_URL", "https://admin.example.com")
	t.Setenv("EV2_API_KEY", "k-123")
	t.Setenv("EV2_LOCALE", "de")
	t.Setenv("EV2_PRECISION", "2")
	t.Setenv("EV2_TIMEOUT", "3s")

	cfg, err := LoadClient(nil)
	require.NoError(t, err)
	assert.Equal(t, "https://admin.example.com", cfg.APIURL)
	assert.Equal(t, "k-123", cfg.APIKey)
	assert.Equal(t, "de", cfg.Locale)
	assert.Equal(t, 2, cfg.Precision)
	assert.Equal(t, 3*time.Second, cfg.Timeout)
}

func TestLoadClient_ExplicitOverridesEnvironment(t *testing.T) {
	clearClientEnv(t)
	t.Setenv("EV2_PAGE_SIZE", "50")

	v := NewClientViper()
	v.Set(KeyPageSize, 100)

	cfg, err := LoadClient(v)
	require.NoError(t, err)
	assert.Equal(t, 100, cfg.PageSize)
}

func TestLoadClient_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		key     string
		value   any
		mention string
	}{
		{"bad scheme", KeyAPIURL, "ftp://x", "EV2_API_URL"},
		{"empty url", KeyAPIURL, " ", "EV2_API_URL"},
		{"precision too high", KeyPrecision, 9, "EV2_PRECISION"},
		{"zero page size", KeyPageSize, 0, "EV2_PAGE_SIZE"},
		{"bad level", KeyLogLevel, "chatty", "EV2_LOG_LEVEL"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearClientEnv(t)
			v := NewClientViper()
			v.Set(tt.key, tt.value)

			_, err := LoadClient(v)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.mention)
		})
	}
}

func TestClientConfigString_MasksKey(t *testing.T) {
	cfg := &ClientConfig{APIURL: "http://x", APIKey: "very-secret"}
	s := cfg.String()
	assert.False(t, strings.Contains(s, "very-secret"))
	assert.Contains(t, s, "MASKED")
}
