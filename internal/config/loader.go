package config

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

// envBinding ties one Config field to its viper key and environment names.
type envBinding struct {
	key      string
	env      string
	required bool
	target   any
}

// Load reads configuration from environment variables.
// It applies defaults for unset values and validates the result.
// Returns an error if required values are missing or validation fails.
func Load() (*Config, error) {
	cfg := &Config{}
	v := viper.New()

	bindings := bindStruct(v, reflect.ValueOf(cfg).Elem(), "")
	for _, b := range bindings {
		raw := v.Get(b.key)
		if s, ok := raw.(string); raw == nil || (ok && s == "") {
			if b.required {
				return nil, fmt.Errorf("config load: required environment variable %s is not set", b.env)
			}
			continue
		}
		if err := decodeValue(raw, b.target); err != nil {
			return nil, fmt.Errorf("config load: invalid value for %s=%v: %w", b.env, raw, err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

// bindStruct registers every env-tagged field under a dotted viper key, with
// its envAlt fallback and default.
func bindStruct(v *viper.Viper, sv reflect.Value, prefix string) []envBinding {
	var out []envBinding
	st := sv.Type()
	for i := range st.NumField() {
		field := st.Field(i)
		key := prefix + strings.ToLower(field.Name)

		if field.Type.Kind() == reflect.Struct {
			out = append(out, bindStruct(v, sv.Field(i), key+".")...)
			continue
		}
		env := field.Tag.Get("env")
		if env == "" {
			continue
		}

		names := []string{key, env}
		if alt := field.Tag.Get("envAlt"); alt != "" {
			names = append(names, alt)
		}
		_ = v.BindEnv(names...)
		if def, ok := field.Tag.Lookup("default"); ok {
			v.SetDefault(key, def)
		}

		out = append(out, envBinding{
			key:      key,
			env:      env,
			required: field.Tag.Get("required") == "true",
			target:   sv.Field(i).Addr().Interface(),
		})
	}
	return out
}

func decodeValue(raw, target any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           target,
		WeaklyTypedInput: true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			commaListHook,
		),
	})
	if err != nil {
		return err
	}
	return dec.Decode(raw)
}

// commaListHook splits "a, b,,c" into trimmed, non-empty strings.
func commaListHook(from, to reflect.Type, data any) (any, error) {
	if from.Kind() != reflect.String || to != reflect.TypeOf([]string(nil)) {
		return data, nil
	}
	var out []string
	for _, part := range strings.Split(data.(string), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out, nil
}

// Validate checks that the configuration is valid.
// Returns an error describing all validation failures.
func (c *Config) Validate() error {
	var errs []string

	// Database validation
	if c.Database.URL == "" {
		errs = append(errs, "DATABASE_URL is required")
	}
	if c.Database.MaxConns < c.Database.MinConns {
		errs = append(errs, fmt.Sprintf("DB_MAX_CONNS (%d) must be >= DB_MIN_CONNS (%d)",
			c.Database.MaxConns, c.Database.MinConns))
	}
	if c.Database.MaxConns <= 0 {
		errs = append(errs, "DB_MAX_CONNS must be positive")
	}
	if c.Database.MinConns < 0 {
		errs = append(errs, "DB_MIN_CONNS must be non-negative")
	}

	// Server validation
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("SERVER_PORT (%d) must be 1-65535", c.Server.Port))
	}
	if c.Server.ReadTimeout < 0 {
		errs = append(errs, "SERVER_READ_TIMEOUT must be non-negative")
	}
	if c.Server.ShutdownTimeout <= 0 {
		errs = append(errs, "SERVER_SHUTDOWN_TIMEOUT must be positive")
	}

	// Batch validation
	if c.Batch.MaxItems <= 0 {
		errs = append(errs, "BATCH_MAX_ITEMS must be positive")
	}
	if c.Batch.MaxConcurrent <= 0 {
		errs = append(errs, "BATCH_MAX_CONCURRENT must be positive")
	}
	if c.Batch.MaxWaitTime <= 0 {
		errs = append(errs, "BATCH_MAX_WAIT_TIME must be positive")
	}
	if c.Batch.Timeout <= 0 {
		errs = append(errs, "BATCH_TIMEOUT must be positive")
	}
	if c.Batch.QueryTimeout <= 0 {
		errs = append(errs, "QUERY_TIMEOUT must be positive")
	}
	if c.Server.MaxBodySize <= 0 {
		errs = append(errs, "SERVER_MAX_BODY_SIZE must be positive")
	}

	// Rate limit validation
	if c.Rate.Enabled && c.Rate.RequestsPerMinute <= 0 {
		errs = append(errs, "RATE_LIMIT_REQUESTS_PER_MINUTE must be positive when rate limiting is enabled")
	}
	if c.Rate.Enabled && c.Rate.MutationLimit <= 0 {
		errs = append(errs, "RATE_LIMIT_MUTATIONS must be positive when rate limiting is enabled")
	}
	if c.Rate.Burst < 0 {
		errs = append(errs, "RATE_LIMIT_BURST must be non-negative")
	}

	// Audit validation
	if c.Audit.RetentionDays <= 0 {
		errs = append(errs, "AUDIT_RETENTION_DAYS must be positive")
	}
	if c.Audit.BatchSize <= 0 {
		errs = append(errs, "AUDIT_PRUNE_BATCH_SIZE must be positive")
	}
	if c.Audit.CheckInterval <= 0 {
		errs = append(errs, "AUDIT_CHECK_INTERVAL must be positive")
	}

	// Security validation
	if c.Security.RequireAPIKey && len(c.Security.APIKeys) == 0 {
		errs = append(errs, "REQUIRE_API_KEY is true but API_KEYS is empty; configure at least one API key or disable auth")
	}

	// Logging validation
	if !validLevel(c.Logging.Level) {
		errs = append(errs, fmt.Sprintf("LOG_LEVEL (%q) must be one of: debug, info, warn, error", c.Logging.Level))
	}

	if !validFormat(c.Logging.Format) {
		errs = append(errs, fmt.Sprintf("LOG_FORMAT (%q) must be one of: text, json", c.Logging.Format))
	}

	if len(errs) > 0 {
		return fmt.Errorf("validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}

	return nil
}

func validLevel(level string) bool {
	switch strings.ToLower(level) {
	case "debug", "info", "warn", "error":
		return true
	}
	return false
}

func validFormat(format string) bool {
	switch strings.ToLower(format) {
	case "text", "json":
		return true
	}
	return false
}

// String returns a safe string representation of the config for logging.
// Sensitive values like database URLs and API keys are masked.
func (c *Config) String() string {
	var b strings.Builder
	b.WriteString("Config{")
	b.WriteString(fmt.Sprintf("Server: {Host: %q, Port: %d}, ", c.Server.Host, c.Server.Port))
	b.WriteString(fmt.Sprintf("Database: {URL: [MASKED], MaxConns: %d, MinConns: %d}, ",
		c.Database.MaxConns, c.Database.MinConns))
	b.WriteString(fmt.Sprintf("Batch: {MaxItems: %d, MaxConcurrent: %d, Timeout: %s}, ",
		c.Batch.MaxItems, c.Batch.MaxConcurrent, c.Batch.Timeout))
	b.WriteString(fmt.Sprintf("Rate: {Enabled: %v, RequestsPerMinute: %d, MutationLimit: %d}, ",
		c.Rate.Enabled, c.Rate.RequestsPerMinute, c.Rate.MutationLimit))
	b.WriteString(fmt.Sprintf("Security: {RequireAPIKey: %v, APIKeys: [%d MASKED]}, ",
		c.Security.RequireAPIKey, len(c.Security.APIKeys)))
	b.WriteString(fmt.Sprintf("Logging: {Level: %q, Format: %q}",
		c.Logging.Level, c.Logging.Format))
	b.WriteString("}")
	return b.String()
}
