package cmd

import (
	"context"
	stdErrors "errors"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/alecthomas/kong"
	"github.com/lepinkainen/humanlog"
	"github.com/spf13/viper"

	"github.com/lepinkainen/folio/internal/cache"
	"github.com/lepinkainen/folio/internal/config"
)

// CLI represents the complete command structure for the folio application
type CLI struct {
	// Global flags override the matching config.yaml keys when set
	CatalogDB   string `help:"Path to the catalog SQLite database (catalog.dbfile)"`
	CacheDBFile string `help:"Path to the vendor response cache database (cache.dbfile)"`
	CacheTTL    string `help:"Vendor response cache time-to-live, e.g. 720h (cache.ttl)"`
	Debug       bool   `help:"Log at debug level"`

	Coverage CoverageCmd `cmd:"" help:"Run coverage providers and inspect their records"`
	Lanes    LanesCmd    `cmd:"" help:"Load and inspect lanes"`
	Serve    ServeCmd    `cmd:"" help:"Serve lanes and grouped feeds over HTTP"`
	Cache    CacheCmd    `cmd:"" help:"Manage the vendor response cache"`
}

// CacheCmd groups the cache maintenance commands.
type CacheCmd struct {
	Invalidate cache.InvalidateCacheCmd `cmd:"" help:"Drop every cached response of one vendor"`
}

// Execute runs the Kong-based CLI
func Execute() {
	initLogging(false)
	if err := initConfig(); err != nil {
		slog.Error("Fatal error in config file", "error", err)
		os.Exit(1)
	}

	var cli CLI
	ctx := kong.Parse(&cli,
		kong.Name("folio"),
		kong.Description("Keeps a library catalog's bibliographic coverage up to date and serves it as lanes."),
		kong.UsageOnError(),
	)

	if cli.Debug {
		initLogging(true)
	}
	updateGlobalConfig(&cli)

	runCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx.BindTo(runCtx, (*context.Context)(nil))

	if err := ctx.Run(); err != nil {
		slog.Error("Command failed", "error", err)
		stop()
		os.Exit(1)
	}
}

// initConfig registers defaults and reads ./config.yaml, writing one with
// the defaults when there is none.
func initConfig() error {
	config.SetDefaults()
	viper.SetEnvPrefix("folio")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !stdErrors.As(err, &notFound) {
			return err
		}
		slog.Info("Config file not found, writing default config file...")
		if err := viper.SafeWriteConfig(); err != nil {
			slog.Error("Error writing config file", "error", err)
		}
	}
	return nil
}

func updateGlobalConfig(cli *CLI) {
	if cli.CatalogDB != "" {
		viper.Set("catalog.dbfile", cli.CatalogDB)
	}
	if cli.CacheDBFile != "" {
		viper.Set("cache.dbfile", cli.CacheDBFile)
	}
	if cli.CacheTTL != "" {
		viper.Set("cache.ttl", cli.CacheTTL)
	}
}

// logLevel reads FOLIO_LOG_LEVEL, defaulting to info.
func logLevel(debug bool) slog.Level {
	if debug {
		return slog.LevelDebug
	}
	switch strings.ToLower(os.Getenv("FOLIO_LOG_LEVEL")) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

func initLogging(debug bool) {
	handler := humanlog.NewHandler(os.Stdout, &humanlog.Options{
		Level: logLevel(debug),
	})
	slog.SetDefault(slog.New(handler))
}
