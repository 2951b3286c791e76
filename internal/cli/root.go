package cli

import (
	"fmt"
	"log/slog"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"k8s.io/utils/clock"

	"github.com/JonMunkholm/ev2/internal/config"
	"github.com/JonMunkholm/ev2/internal/i18n"
	"github.com/JonMunkholm/ev2/internal/logging"
)

// flagKeys maps persistent flags to their configuration keys.
var flagKeys = map[string]string{
	"api-url":      config.KeyAPIURL,
	"api-key":      config.KeyAPIKey,
	"timeout":      config.KeyTimeout,
	"locale":       config.KeyLocale,
	"page-size":    config.KeyPageSize,
	"precision":    config.KeyPrecision,
	"search-delay": config.KeySearchDelay,
	"log-level":    config.KeyLogLevel,
	"log-format":   config.KeyLogFormat,
}

// NewRootCommand returns the ev2ctl command tree talking to the real API.
func NewRootCommand() *cobra.Command {
	return newRootCommand(Connect, clock.RealClock{})
}

func newRootCommand(connect ConnectFunc, clk clock.WithDelayedExecution) *cobra.Command {
	v := config.NewClientViper()
	a := &app{clock: clk}

	root := &cobra.Command{
		Use:           "ev2ctl",
		Short:         "Browse and edit EV2 collections",
		SilenceUsage:  true,
		SilenceErrors: true,
		Long: `ev2ctl lists, edits, imports and deletes items of the collections
served by an EV2 API server.

Configuration sources (in order of precedence):
  1. Command line flags
  2. Environment variables (EV2_API_URL, EV2_API_KEY, EV2_LOCALE, ...)
  3. A .env file in the working directory
  4. Built-in defaults`,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			// A missing .env is the normal case
			_ = godotenv.Load()

			cfg, err := config.LoadClient(v)
			if err != nil {
				return err
			}
			a.cfg = cfg
			a.log = logging.New(cmd.ErrOrStderr(), cfg.Logging.Level, cfg.Logging.Format)
			a.tr = i18n.New(cfg.Locale)

			backend, err := connect(cfg, a.log)
			if err != nil {
				return fmt.Errorf("connect: %w", err)
			}
			a.backend = backend
			a.log.Debug("client configured", "config", cfg.String())
			return nil
		},
	}

	flags := root.PersistentFlags()
	flags.String("api-url", "", "API base URL (default http://localhost:8080)")
	flags.String("api-key", "", "API key sent as X-API-Key")
	flags.Duration("timeout", 0, "request timeout (default 10s)")
	flags.String("locale", "", "locale for messages and numbers (default en)")
	flags.Int("page-size", 0, "items per page: 10, 25, 50 or 100 (default 25)")
	flags.Int("precision", 0, "decimal places for prices, -1 for none (default -1)")
	flags.Duration("search-delay", 0, "search debounce in the shell (default 500ms)")
	flags.String("log-level", "", "debug, info, warn or error (default warn)")
	flags.String("log-format", "", "text or json (default text)")

	for name, key := range flagKeys {
		if err := v.BindPFlag(key, flags.Lookup(name)); err != nil {
			slog.Error("Error binding flag", "flag", name, "error", err)
		}
	}

	root.AddCommand(
		newCollectionsCommand(a),
		newListCommand(a),
		newSetCommand(a),
		newDeleteCommand(a),
		newImportCommand(a),
		newShellCommand(a),
	)
	return root
}
