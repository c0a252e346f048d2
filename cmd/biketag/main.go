// Package main provides the CLI entry point for biketag.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/biketag-game/biketag-go"
	"github.com/biketag-game/biketag-go/internal/backend"
	"github.com/biketag-game/biketag-go/internal/cache"
	"github.com/biketag-game/biketag-go/internal/config"
	"github.com/biketag-game/biketag-go/internal/logging"
	"github.com/biketag-game/biketag-go/internal/realtime"
	"github.com/biketag-game/biketag-go/internal/tracing"
	"github.com/biketag-game/biketag-go/internal/transport"
)

// Output format constants.
const (
	outputJSON = "json"
	outputYAML = "yaml"
	outputText = "text"
)

var (
	// Global flags
	flagConfigPath string
	flagGame       string
	flagHost       string
	flagSource     string
	flagOutput     string
	flagLogLevel   string
	flagLogFormat  string
	flagNoKeyring  bool
	flagNoCache    bool

	// Tags flags
	tagsLimit int

	// Login flags
	loginValue string

	// Loaded once per invocation
	cfg           *config.Config
	client        *biketag.Client
	responseCache *cache.Cache
	logger        *slog.Logger

	shutdownTracing func(context.Context) error
)

// Exit codes. Commands use these semantically:
//   - exitValidation: invalid flags, arguments, or configuration
//   - exitBackend: the backend answered with a failure envelope
const (
	exitValidation = 1
	exitBackend    = 2
)

// ExitError is an error that carries a specific exit code.
type ExitError struct {
	Code    int
	Message string
}

func (e *ExitError) Error() string {
	return e.Message
}

// exitErr creates an ExitError with the given code and message.
func exitErr(code int, msg string) error {
	return &ExitError{Code: code, Message: msg}
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		var exitError *ExitError
		if errors.As(err, &exitError) {
			fmt.Fprintln(os.Stderr, exitError.Message)
			os.Exit(exitError.Code)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "biketag",
	Short: "BikeTag CLI - read tags and games from any configured backend",
	Long: `biketag reads BikeTag game data from whichever backend is configured:
the BikeTag API, Sanity, Imgur, Reddit, or Twitter.

Calls go to the most available backend unless --source names one.
Secrets are read from BIKETAG_* environment variables or the OS keyring
(see 'biketag login').`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		var err error
		shutdownTracing, err = tracing.Setup(cmd.Context(), tracing.DefaultConfig())
		if err != nil {
			return fmt.Errorf("setup tracing: %w", err)
		}
		return nil
	},
	PersistentPostRunE: func(cmd *cobra.Command, _ []string) error {
		if responseCache != nil && responseCache.Dir() != "" {
			responseCache.Prune()
			if err := responseCache.Save(); err != nil {
				logging.Get().Warn("save response cache", "error", err)
			}
		}
		if shutdownTracing != nil {
			return shutdownTracing(cmd.Context())
		}
		return nil
	},
}

// initConfig loads the configuration with proper precedence.
func initConfig() error {
	if cfg != nil {
		return nil
	}

	var err error
	cfg, err = config.Load(config.LoadOptions{
		ExplicitPath: flagConfigPath,
		UseKeyring:   !flagNoKeyring,
	})
	if err != nil {
		return exitErr(exitValidation, fmt.Sprintf("load config: %v", err))
	}

	cfg.ApplyCLIOverrides(config.CLIOverrides{
		Game:      flagGame,
		Host:      flagHost,
		LogLevel:  flagLogLevel,
		LogFormat: flagLogFormat,
	})

	logger = logging.Setup(logging.Config{Format: cfg.Log.Format, Level: cfg.Log.Level})
	return nil
}

// initClient builds the facade from the loaded configuration. Called only for
// commands that talk to a backend.
func initClient() error {
	if client != nil {
		return nil
	}
	if err := initConfig(); err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return exitErr(exitValidation, fmt.Sprintf("invalid config: %v", err))
	}

	responseCache = openCache(cfg.CacheTTLDuration())
	client = biketag.New(cfg.Credentials(),
		biketag.WithCache(responseCache),
		biketag.WithTransport(transport.WithLogger(logger)),
		biketag.WithRealtime(realtime.Options{Logger: logger}),
	)
	logger.Debug("client ready", "game", cfg.BikeTag.Game, "most_available", client.MostAvailable())
	return nil
}

// openCache loads the on-disk response cache. Failures fall back to a
// memory-only cache.
func openCache(ttl time.Duration) *cache.Cache {
	if flagNoCache {
		return cache.New("", ttl)
	}
	dir, err := cache.ResolveDir()
	if err != nil {
		logger.Debug("no cache directory", "error", err)
		return cache.New("", ttl)
	}
	rc := cache.New(dir, ttl)
	if err := rc.Load(); err != nil {
		logger.Debug("response cache not loaded", "dir", dir, "error", err)
	}
	return rc
}

// sourceOverload turns --source into call overloads.
func sourceOverload() ([]biketag.Options, error) {
	if flagSource == "" {
		return nil, nil
	}
	kind, ok := backend.ParseKind(flagSource)
	if !ok {
		return nil, exitErr(exitValidation, fmt.Sprintf("unknown source %q", flagSource))
	}
	return []biketag.Options{{Source: kind}}, nil
}

// tagArg maps a positional argument to a call argument: a number addresses a
// tag by number, anything else by slug. No argument means the latest tag.
func tagArg(args []string) biketag.Arg {
	if len(args) == 0 {
		return nil
	}
	if n, err := strconv.Atoi(args[0]); err == nil {
		return biketag.TagNumber(n)
	}
	return biketag.Slug(args[0])
}

// tagNumbersArg parses every argument as a tag number.
func tagNumbersArg(args []string) (biketag.TagNumbers, error) {
	ns := make(biketag.TagNumbers, 0, len(args))
	for _, a := range args {
		n, err := strconv.Atoi(a)
		if err != nil || n <= 0 {
			return nil, exitErr(exitValidation, fmt.Sprintf("invalid tag number %q", a))
		}
		ns = append(ns, n)
	}
	return ns, nil
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfigPath, "config", "", "Custom config file path")
	rootCmd.PersistentFlags().StringVar(&flagGame, "game", "", "Game name")
	rootCmd.PersistentFlags().StringVar(&flagHost, "host", "", "BikeTag API prefix")
	rootCmd.PersistentFlags().StringVarP(&flagSource, "source", "s", "", "Backend to call (biketag, sanity, imgur, reddit, twitter)")
	rootCmd.PersistentFlags().StringVarP(&flagOutput, "output", "o", outputText, "Output format (text, json, yaml)")
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&flagLogFormat, "log-format", "", "Log format (text, json)")
	rootCmd.PersistentFlags().BoolVar(&flagNoKeyring, "no-keyring", false, "Don't read secrets from the OS keyring")
	rootCmd.PersistentFlags().BoolVar(&flagNoCache, "no-cache", false, "Don't load or save the on-disk response cache")

	tagsGetCmd.Flags().IntVarP(&tagsLimit, "limit", "l", 0, "Maximum number of tags")
	loginCmd.Flags().StringVar(&loginValue, "value", "", "Secret value (read from stdin when empty)")

	tagCmd.AddCommand(tagGetCmd)
	tagsCmd.AddCommand(tagsGetCmd)
	gameCmd.AddCommand(gameGetCmd)
	dataCmd.AddCommand(dataGetCmd)
	configCmd.AddCommand(configShowCmd)
	cacheCmd.AddCommand(cacheClearCmd)

	rootCmd.AddCommand(tagCmd)
	rootCmd.AddCommand(tagsCmd)
	rootCmd.AddCommand(browseCmd)
	rootCmd.AddCommand(gameCmd)
	rootCmd.AddCommand(dataCmd)
	rootCmd.AddCommand(backendsCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(cacheCmd)
	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(logoutCmd)
}
