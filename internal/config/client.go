package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Client configuration keys. Each is also read from EV2_<KEY>.
const (
	KeyAPIURL      = "api_url"
	KeyAPIKey      = "api_key"
	KeyTimeout     = "timeout"
	KeyLocale      = "locale"
	KeyPageSize    = "page_size"
	KeyPrecision   = "precision"
	KeySearchDelay = "search_delay"
	KeyLogLevel    = "log_level"
	KeyLogFormat   = "log_format"
)

// NoPrecision disables rounding of numeric input.
const NoPrecision = -1

// ClientConfig holds ev2ctl settings.
type ClientConfig struct {
	APIURL      string
	APIKey      string
	Timeout     time.Duration
	Locale      string
	PageSize    int
	Precision   int
	SearchDelay time.Duration
	Logging     LoggingConfig
}

// NewClientViper returns a viper instance with the client defaults and the
// EV2_ environment prefix. Callers may bind flags before LoadClient.
func NewClientViper() *viper.Viper {
	v := viper.New()
	v.SetDefault(KeyAPIURL, "http://localhost:8080")
	v.SetDefault(KeyAPIKey, "")
	v.SetDefault(KeyTimeout, "10s")
	v.SetDefault(KeyLocale, "en")
	v.SetDefault(KeyPageSize, 25)
	v.SetDefault(KeyPrecision, NoPrecision)
	v.SetDefault(KeySearchDelay, "500ms")
	v.SetDefault(KeyLogLevel, "warn")
	v.SetDefault(KeyLogFormat, "text")

	v.SetEnvPrefix("EV2")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	return v
}

// LoadClient reads the client configuration from v, or from a fresh
// NewClientViper when v is nil.
func LoadClient(v *viper.Viper) (*ClientConfig, error) {
	if v == nil {
		v = NewClientViper()
	}

	cfg := &ClientConfig{
		APIURL:      strings.TrimSpace(v.GetString(KeyAPIURL)),
		APIKey:      v.GetString(KeyAPIKey),
		Timeout:     v.GetDuration(KeyTimeout),
		Locale:      v.GetString(KeyLocale),
		PageSize:    v.GetInt(KeyPageSize),
		Precision:   v.GetInt(KeyPrecision),
		SearchDelay: v.GetDuration(KeySearchDelay),
		Logging: LoggingConfig{
			Level:  v.GetString(KeyLogLevel),
			Format: v.GetString(KeyLogFormat),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	return cfg, nil
}

// Validate checks that the client configuration is usable.
func (c *ClientConfig) Validate() error {
	var errs []string

	if c.APIURL == "" {
		errs = append(errs, "EV2_API_URL is required")
	} else if !strings.HasPrefix(c.APIURL, "http://") && !strings.HasPrefix(c.APIURL, "https://") {
		errs = append(errs, fmt.Sprintf("EV2_API_URL (%q) must start with http:// or https://", c.APIURL))
	}
	if c.Timeout <= 0 {
		errs = append(errs, "EV2_TIMEOUT must be positive")
	}
	if c.PageSize <= 0 {
		errs = append(errs, "EV2_PAGE_SIZE must be positive")
	}
	if c.Precision < NoPrecision || c.Precision > 8 {
		errs = append(errs, fmt.Sprintf("EV2_PRECISION (%d) must be -1 (off) or 0-8", c.Precision))
	}
	if c.SearchDelay < 0 {
		errs = append(errs, "EV2_SEARCH_DELAY must be non-negative")
	}
	if !validLevel(c.Logging.Level) {
		errs = append(errs, fmt.Sprintf("EV2_LOG_LEVEL (%q) must be one of: debug, info, warn, error", c.Logging.Level))
	}
	if !validFormat(c.Logging.Format) {
		errs = append(errs, fmt.Sprintf("EV2_LOG_FORMAT (%q) must be one of: text, json", c.Logging.Format))
	}

	if len(errs) > 0 {
		return fmt.Errorf("validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// String masks the API key.
func (c *ClientConfig) String() string {
	key := ""
	if c.APIKey != "" {
		key = "[MASKED]"
	}
	return fmt.Sprintf("ClientConfig{APIURL: %q, APIKey: %q, Locale: %q, PageSize: %d, Precision: %d}",
		c.APIURL, key, c.Locale, c.PageSize, c.Precision)
}
