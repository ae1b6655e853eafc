// Package main provides the playmusic CLI application entry point.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/subosito/gotenv"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"playmusic/internal/core"
)

const (
	envPrefix         = "PLAYMUSIC"
	defaultServerHost = "0.0.0.0"
)

var (
	cfgFile string
	config  *core.Config
	logger  *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "playmusic",
	Short: "playmusic - Google Play Music catalog tool",
	Long: `playmusic resolves Google Play Music links, looks up tracks, albums and playlists,
and finds where their audio and cover art can be downloaded from.`,
	SilenceUsage: true,
}

func main() {
	if err := execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func execute() error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	return rootCmd.ExecuteContext(ctx)
}

func init() {
	cobra.OnInitialize(initConfig)

	defaults := core.DefaultConfig()

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (default is .env)")
	flags.String("log-level", defaults.Log.Level, "log level (debug, info, warn, error)")
	flags.String("playmusic-email", "", "Google account email shown for the session")
	flags.String("playmusic-display-name", "", "Display name shown for the session")
	flags.String("playmusic-token-path", defaults.PlayMusic.TokenPath, "Path of the saved OAuth token")
	flags.String("playmusic-stream-quality", string(defaults.PlayMusic.StreamQuality), "Stream quality (low, med, hi)")
	flags.String("playmusic-signing-key", "", "Key used to sign stream requests")
	flags.String("playmusic-base-url", defaults.PlayMusic.BaseURL, "Catalog API base URL")
	flags.String("playmusic-client-id", "", "OAuth client ID used to refresh tokens")
	flags.String("playmusic-client-secret", "", "OAuth client secret used to refresh tokens")
	flags.String("playmusic-token-url", defaults.PlayMusic.TokenURL, "OAuth token endpoint")
	flags.String("server-host", defaultServerHost, "HTTP server host")
	flags.Int("server-port", defaults.Server.Port, "HTTP server port")
	flags.Int("rate-limit-per-minute", defaults.Server.RateLimitPerMinute,
		"Lookups each client may make per minute on the HTTP server (0 disables the limit)")
	flags.Int("cache-size", defaults.App.RecordCacheSize, "Number of catalog records kept in memory")
	flags.Int("missing-cache-size", defaults.App.MissingCacheSize, "Number of not-found ids remembered")
	flags.Int("request-timeout-secs", defaults.App.RequestTimeoutSecs, "Timeout for each catalog request in seconds")

	if err := viper.BindPFlags(flags); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to bind flags: %v\n", err)
		os.Exit(1)
	}

	rootCmd.AddCommand(
		newResolveCmd(),
		newTrackCmd(),
		newAlbumCmd(),
		newPlaylistCmd(),
		newStreamCmd(),
		newCoverCmd(),
		newAuthCmd(),
		newLogoutCmd(),
		newServeCmd(),
		newEnvExampleCmd(),
	)
}

func initConfig() {
	// Load .env file explicitly using gotenv
	envFile := ".env"
	if cfgFile != "" {
		envFile = cfgFile
	}

	if err := gotenv.Load(envFile); err != nil {
		if !os.IsNotExist(err) {
			fmt.Fprintf(os.Stderr, "Error loading .env file: %v\n", err)
		}
	}

	viper.SetEnvPrefix(envPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	config = buildConfig()
	logger = buildLogger(config.Log.Level)
}

func buildConfig() *core.Config {
	cfg := core.DefaultConfig()

	configurePlayMusic(cfg)
	configureServer(cfg)
	configureApp(cfg)

	return cfg
}

func configurePlayMusic(cfg *core.Config) {
	cfg.PlayMusic.Email = viper.GetString("playmusic-email")
	cfg.PlayMusic.DisplayName = viper.GetString("playmusic-display-name")
	cfg.PlayMusic.TokenPath = viper.GetString("playmusic-token-path")
	cfg.PlayMusic.SigningKey = viper.GetString("playmusic-signing-key")
	cfg.PlayMusic.BaseURL = viper.GetString("playmusic-base-url")
	cfg.PlayMusic.ClientID = viper.GetString("playmusic-client-id")
	cfg.PlayMusic.ClientSecret = viper.GetString("playmusic-client-secret")
	cfg.PlayMusic.TokenURL = viper.GetString("playmusic-token-url")

	// Unknown values are kept as given so validation can report them.
	rawQuality := viper.GetString("playmusic-stream-quality")
	quality, err := core.ParseStreamQuality(rawQuality)
	if err != nil {
		quality = core.StreamQuality(rawQuality)
	}
	cfg.PlayMusic.StreamQuality = quality
}

func configureServer(cfg *core.Config) {
	cfg.Server.Host = viper.GetString("server-host")
	if cfg.Server.Host == "" {
		cfg.Server.Host = defaultServerHost
	}
	cfg.Server.Port = viper.GetInt("server-port")
	cfg.Server.RateLimitPerMinute = viper.GetInt("rate-limit-per-minute")
	cfg.Log.Level = viper.GetString("log-level")
}

func configureApp(cfg *core.Config) {
	cfg.App.RecordCacheSize = viper.GetInt("cache-size")
	cfg.App.MissingCacheSize = viper.GetInt("missing-cache-size")
	cfg.App.RequestTimeoutSecs = viper.GetInt("request-timeout-secs")
	if cfg.App.RequestTimeoutSecs <= 0 {
		fmt.Fprintf(os.Stderr, "Warning: Invalid request timeout (%d), using default (%d)\n",
			cfg.App.RequestTimeoutSecs, core.DefaultRequestTimeoutSecs)
		cfg.App.RequestTimeoutSecs = core.DefaultRequestTimeoutSecs
	}
}

func buildLogger(level string) *zap.Logger {
	var zapLevel zapcore.Level
	switch strings.ToLower(level) {
	case "debug":
		zapLevel = zapcore.DebugLevel
	case "info":
		zapLevel = zapcore.InfoLevel
	case "warn":
		zapLevel = zapcore.WarnLevel
	case "error":
		zapLevel = zapcore.ErrorLevel
	default:
		zapLevel = zapcore.InfoLevel
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(zapLevel)

	builtLogger, err := cfg.Build()
	if err != nil {
		panic(fmt.Sprintf("Failed to build logger: %v", err))
	}

	return builtLogger
}
