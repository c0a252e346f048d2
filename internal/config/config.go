// Package config provides configuration management for the BikeTag client.
// Configuration is loaded from YAML files with environment variable overrides;
// secrets never live in files and are read from the environment or the OS keyring.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/biketag-game/biketag-go/internal/auth"
)

// Version is the current config schema version.
const Version = "1"

// Default file paths.
const (
	GlobalConfigDir   = ".config/biketag"
	GlobalConfigFile  = "config.yaml"
	ProjectConfigFile = ".biketag.yaml"
)

// Default values.
const (
	DefaultHost           = "https://api.biketag.org/api"
	DefaultSanityDataset  = "production"
	DefaultSanityVersion  = "2021-06-07"
	DefaultRedditAgent    = "biketag-go"
	DefaultCacheTTL       = "15m"
	DefaultLogFormat      = "text"
	DefaultLogLevel       = "info"
	DefaultRequestTimeout = "30s"
)

// Environment variable names.
const (
	EnvGame               = "BIKETAG_GAME"
	EnvHost               = "BIKETAG_HOST"
	EnvPeer               = "BIKETAG_PEER"
	EnvAPIKey             = "BIKETAG_API_KEY" //nolint:gosec // Env var name, not a credential
	EnvSanityProjectID    = "BIKETAG_SANITY_PROJECT_ID"
	EnvSanityDataset      = "BIKETAG_SANITY_DATASET"
	EnvSanityToken        = "BIKETAG_SANITY_TOKEN" //nolint:gosec // Env var name, not a credential
	EnvImgurClientID      = "BIKETAG_IMGUR_CLIENT_ID"
	EnvImgurClientSecret  = "BIKETAG_IMGUR_CLIENT_SECRET" //nolint:gosec // Env var name, not a credential
	EnvImgurAccessToken   = "BIKETAG_IMGUR_ACCESS_TOKEN"  //nolint:gosec // Env var name, not a credential
	EnvImgurHash          = "BIKETAG_IMGUR_HASH"
	EnvRedditClientID     = "BIKETAG_REDDIT_CLIENT_ID"
	EnvRedditClientSecret = "BIKETAG_REDDIT_CLIENT_SECRET" //nolint:gosec // Env var name, not a credential
	EnvRedditUsername     = "BIKETAG_REDDIT_USERNAME"
	EnvRedditPassword     = "BIKETAG_REDDIT_PASSWORD" //nolint:gosec // Env var name, not a credential
	EnvRedditSubreddit    = "BIKETAG_REDDIT_SUBREDDIT"
	EnvTwitterBearerToken = "BIKETAG_TWITTER_BEARER_TOKEN" //nolint:gosec // Env var name, not a credential
	EnvTwitterAccount     = "BIKETAG_TWITTER_ACCOUNT"
	EnvCacheTTL           = "BIKETAG_CACHE_TTL"
	EnvLogLevel           = "BIKETAG_LOG_LEVEL"
	EnvLogFormat          = "BIKETAG_LOG_FORMAT"
)

// Config represents the complete client configuration file.
type Config struct {
	Version string             `yaml:"version"`
	BikeTag BikeTagCredentials `yaml:"biketag"`
	Sanity  SanityCredentials  `yaml:"sanity"`
	Imgur   ImgurCredentials   `yaml:"imgur"`
	Reddit  RedditCredentials  `yaml:"reddit"`
	Twitter TwitterCredentials `yaml:"twitter"`
	Cache   CacheConfig        `yaml:"cache"`
	Log     LogConfig          `yaml:"log"`
	Timeout string             `yaml:"timeout"`
}

// CacheConfig holds response cache settings.
type CacheConfig struct {
	TTL string `yaml:"ttl" json:"ttl"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Format string `yaml:"format" json:"format"`
	Level  string `yaml:"level" json:"level"`
}

// Errors.
var (
	ErrInvalidConfig = errors.New("invalid configuration")
	ErrNoGame        = errors.New("biketag.game is required")
)

// New creates a Config with default values.
func New() *Config {
	return &Config{
		Version: Version,
		BikeTag: BikeTagCredentials{
			Host: DefaultHost,
		},
		Sanity: SanityCredentials{
			Dataset:    DefaultSanityDataset,
			APIVersion: DefaultSanityVersion,
		},
		Reddit: RedditCredentials{
			UserAgent: DefaultRedditAgent,
		},
		Cache: CacheConfig{
			TTL: DefaultCacheTTL,
		},
		Log: LogConfig{
			Format: DefaultLogFormat,
			Level:  DefaultLogLevel,
		},
		Timeout: DefaultRequestTimeout,
	}
}

// LoadOptions configures config loading behavior.
type LoadOptions struct {
	// ExplicitPath overrides config discovery (--config flag).
	ExplicitPath string
	// SkipGlobal skips loading global config (~/.config/biketag/config.yaml).
	SkipGlobal bool
	// SkipProject skips loading project config (.biketag.yaml).
	SkipProject bool
	// SkipEnv skips environment variable overrides.
	SkipEnv bool
	// UseKeyring fills secrets still empty after env overrides from the OS keyring.
	UseKeyring bool
}

// Load loads configuration with the following precedence (highest to lowest):
// 1. Environment variables (then the OS keyring, for secrets only)
// 2. Project config (.biketag.yaml in repo root)
// 3. Global config (~/.config/biketag/config.yaml)
// 4. Built-in defaults
//
// If ExplicitPath is set, it replaces both global and project configs.
func Load(opts LoadOptions) (*Config, error) {
	cfg := New()

	if !opts.SkipGlobal && opts.ExplicitPath == "" {
		globalPath, err := globalConfigPath()
		if err == nil {
			if loadErr := loadFile(cfg, globalPath); loadErr != nil && !os.IsNotExist(loadErr) {
				return nil, fmt.Errorf("load global config: %w", loadErr)
			}
		}
	}

	if !opts.SkipProject && opts.ExplicitPath == "" {
		projectPath, err := discoverProjectConfig()
		if err == nil {
			if loadErr := loadFile(cfg, projectPath); loadErr != nil && !os.IsNotExist(loadErr) {
				return nil, fmt.Errorf("load project config: %w", loadErr)
			}
		}
	}

	if opts.ExplicitPath != "" {
		if err := loadFile(cfg, opts.ExplicitPath); err != nil {
			return nil, fmt.Errorf("load config %s: %w", opts.ExplicitPath, err)
		}
	}

	if !opts.SkipEnv {
		applyEnvOverrides(cfg)
	}

	if opts.UseKeyring {
		applyKeyringSecrets(cfg)
	}

	return cfg, nil
}

// loadFile reads and unmarshals a YAML config file into cfg.
// Fields not present in the file retain their current values (merge behavior).
func loadFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path) //nolint:gosec // Config path from trusted source
	if err != nil {
		return err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	return nil
}

// globalConfigPath returns the path to the global config file.
func globalConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, GlobalConfigDir, GlobalConfigFile), nil
}

// discoverProjectConfig walks up from CWD looking for .biketag.yaml.
// Stops at git root or filesystem root.
func discoverProjectConfig() (string, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return "", err
	}

	dir := cwd
	for {
		path := filepath.Join(dir, ProjectConfigFile)
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}

		if _, err := os.Stat(filepath.Join(dir, ".git")); err == nil {
			break
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return "", os.ErrNotExist
}

// envOverrides maps environment variables to the fields they set.
func envOverrides(cfg *Config) map[string]*string {
	return map[string]*string{
		EnvGame:               &cfg.BikeTag.Game,
		EnvHost:               &cfg.BikeTag.Host,
		EnvPeer:               &cfg.BikeTag.Peer,
		EnvAPIKey:             &cfg.BikeTag.APIKey,
		EnvSanityProjectID:    &cfg.Sanity.ProjectID,
		EnvSanityDataset:      &cfg.Sanity.Dataset,
		EnvSanityToken:        &cfg.Sanity.Token,
		EnvImgurClientID:      &cfg.Imgur.ClientID,
		EnvImgurClientSecret:  &cfg.Imgur.ClientSecret,
		EnvImgurAccessToken:   &cfg.Imgur.AccessToken,
		EnvImgurHash:          &cfg.Imgur.Hash,
		EnvRedditClientID:     &cfg.Reddit.ClientID,
		EnvRedditClientSecret: &cfg.Reddit.ClientSecret,
		EnvRedditUsername:     &cfg.Reddit.Username,
		EnvRedditPassword:     &cfg.Reddit.Password,
		EnvRedditSubreddit:    &cfg.Reddit.Subreddit,
		EnvTwitterBearerToken: &cfg.Twitter.BearerToken,
		EnvTwitterAccount:     &cfg.Twitter.Account,
		EnvCacheTTL:           &cfg.Cache.TTL,
		EnvLogFormat:          &cfg.Log.Format,
	}
}

// applyEnvOverrides applies environment variable overrides to config.
func applyEnvOverrides(cfg *Config) {
	for name, field := range envOverrides(cfg) {
		if v := os.Getenv(name); v != "" {
			*field = v
		}
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		cfg.Log.Level = strings.ToLower(v)
	}
}

// secretFields maps keyring entries to the secret fields they fill.
func secretFields(cfg *Config) map[auth.SecretKey]*string {
	return map[auth.SecretKey]*string{
		{Backend: "biketag", Field: "api_key"}:      &cfg.BikeTag.APIKey,
		{Backend: "sanity", Field: "token"}:         &cfg.Sanity.Token,
		{Backend: "imgur", Field: "client_secret"}:  &cfg.Imgur.ClientSecret,
		{Backend: "imgur", Field: "access_token"}:   &cfg.Imgur.AccessToken,
		{Backend: "reddit", Field: "client_secret"}: &cfg.Reddit.ClientSecret,
		{Backend: "reddit", Field: "password"}:      &cfg.Reddit.Password,
		{Backend: "twitter", Field: "bearer_token"}: &cfg.Twitter.BearerToken,
	}
}

// SecretKeys lists every secret the keyring can provide.
func SecretKeys() []auth.SecretKey {
	keys := make([]auth.SecretKey, 0, 7)
	for k := range secretFields(New()) {
		keys = append(keys, k)
	}
	return keys
}

// applyKeyringSecrets fills empty secret fields from the OS keyring.
// Missing entries and an unavailable keyring are not errors.
func applyKeyringSecrets(cfg *Config) {
	for key, field := range secretFields(cfg) {
		if *field != "" {
			continue
		}
		if v, err := auth.LoadSecret(key); err == nil {
			*field = v
		}
	}
}

// CLIOverrides contains values from CLI flags that override config.
type CLIOverrides struct {
	Game      string
	Host      string
	CacheTTL  string
	LogLevel  string
	LogFormat string
}

// ApplyCLIOverrides applies CLI flag values to config.
// Only non-empty values are applied (highest priority).
func (cfg *Config) ApplyCLIOverrides(o CLIOverrides) {
	if o.Game != "" {
		cfg.BikeTag.Game = o.Game
	}
	if o.Host != "" {
		cfg.BikeTag.Host = o.Host
	}
	if o.CacheTTL != "" {
		cfg.Cache.TTL = o.CacheTTL
	}
	if o.LogLevel != "" {
		cfg.Log.Level = strings.ToLower(o.LogLevel)
	}
	if o.LogFormat != "" {
		cfg.Log.Format = strings.ToLower(o.LogFormat)
	}
}

// Validate checks the configuration for errors.
func (cfg *Config) Validate() error {
	if cfg.BikeTag.Game == "" {
		return ErrNoGame
	}

	if !validURL(cfg.BikeTag.Host, true) {
		return fmt.Errorf("%w: invalid biketag.host %q", ErrInvalidConfig, cfg.BikeTag.Host)
	}
	if !validURL(cfg.BikeTag.Peer, true) {
		return fmt.Errorf("%w: invalid biketag.peer %q", ErrInvalidConfig, cfg.BikeTag.Peer)
	}

	switch strings.ToLower(cfg.Log.Format) {
	case "", "text", "json":
	default:
		return fmt.Errorf("%w: log.format must be 'text' or 'json', got %q", ErrInvalidConfig, cfg.Log.Format)
	}

	for name, value := range map[string]string{"cache.ttl": cfg.Cache.TTL, "timeout": cfg.Timeout} {
		if value == "" {
			continue
		}
		if _, err := time.ParseDuration(value); err != nil {
			return fmt.Errorf("%w: invalid %s %q: %w", ErrInvalidConfig, name, value, err)
		}
	}

	return nil
}

// defaultCacheTTLDuration is the parsed default cache TTL.
var defaultCacheTTLDuration = mustParseDuration(DefaultCacheTTL)

// defaultTimeoutDuration is the parsed default request timeout.
var defaultTimeoutDuration = mustParseDuration(DefaultRequestTimeout)

func mustParseDuration(s string) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		panic("invalid default duration: " + s)
	}
	return d
}

// CacheTTLDuration returns the cache TTL as a time.Duration.
// Returns DefaultCacheTTL parsed if TTL is empty or invalid.
func (cfg *Config) CacheTTLDuration() time.Duration {
	return parseDurationOr(cfg.Cache.TTL, defaultCacheTTLDuration)
}

// TimeoutDuration returns the per-request timeout.
func (cfg *Config) TimeoutDuration() time.Duration {
	return parseDurationOr(cfg.Timeout, defaultTimeoutDuration)
}

func parseDurationOr(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}

// Credentials returns the per-backend credential records. Sections without
// their identifying field are reported as absent.
func (cfg *Config) Credentials() Configuration {
	var out Configuration
	if cfg.BikeTag.Game != "" {
		out.BikeTag = clonePtr(&cfg.BikeTag)
	}
	if cfg.Sanity.ProjectID != "" {
		out.Sanity = clonePtr(&cfg.Sanity)
	}
	if cfg.Imgur.ClientID != "" {
		out.Imgur = clonePtr(&cfg.Imgur)
	}
	if cfg.Reddit.ClientID != "" {
		out.Reddit = clonePtr(&cfg.Reddit)
	}
	if cfg.Twitter.BearerToken != "" || cfg.Twitter.Account != "" {
		out.Twitter = clonePtr(&cfg.Twitter)
	}
	return out
}

// String returns a human-readable representation of the config.
// Secrets are shown as [REDACTED] when set.
func (cfg *Config) String() string {
	type secrets struct {
		BikeTagAPIKey      string `yaml:"biketag_api_key,omitempty"`
		SanityToken        string `yaml:"sanity_token,omitempty"`
		ImgurClientSecret  string `yaml:"imgur_client_secret,omitempty"`
		ImgurAccessToken   string `yaml:"imgur_access_token,omitempty"`
		RedditClientSecret string `yaml:"reddit_client_secret,omitempty"`
		RedditPassword     string `yaml:"reddit_password,omitempty"`
		TwitterBearerToken string `yaml:"twitter_bearer_token,omitempty"`
	}
	display := struct {
		Config  `yaml:",inline"`
		Secrets secrets `yaml:"secrets,omitempty"`
	}{
		Config: *cfg,
		Secrets: secrets{
			BikeTagAPIKey:      redact(cfg.BikeTag.APIKey),
			SanityToken:        redact(cfg.Sanity.Token),
			ImgurClientSecret:  redact(cfg.Imgur.ClientSecret),
			ImgurAccessToken:   redact(cfg.Imgur.AccessToken),
			RedditClientSecret: redact(cfg.Reddit.ClientSecret),
			RedditPassword:     redact(cfg.Reddit.Password),
			TwitterBearerToken: redact(cfg.Twitter.BearerToken),
		},
	}

	data, err := yaml.Marshal(&display)
	if err != nil {
		return fmt.Sprintf("config error: %v", err)
	}
	return string(data)
}

func redact(s string) string {
	if s == "" {
		return ""
	}
	return "[REDACTED]"
}

// SaveTo writes the config to the specified path.
// Creates parent directories if needed. Secrets are never written.
func (cfg *Config) SaveTo(path string) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}

	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}

	return nil
}

// DiscoveredPaths returns which config files were found.
// Returns empty strings for paths that don't exist or can't be determined.
func DiscoveredPaths() (global, project string) {
	globalPath, err := globalConfigPath()
	if err == nil {
		if _, statErr := os.Stat(globalPath); statErr == nil {
			global = globalPath
		}
	}
	projectPath, err := discoverProjectConfig()
	if err == nil {
		project = projectPath
	}
	return global, project
}
