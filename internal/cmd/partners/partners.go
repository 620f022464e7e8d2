// Package partners parses partners command flags and composes the gateway
// entrypoint.
package partners

import (
	"context"
	"flag"
	"fmt"
	"time"

	entrypoint "github.com/partnerhub/partnerhub/internal/platform/cmd"
	server "github.com/partnerhub/partnerhub/internal/services/partners/app"
	"github.com/partnerhub/partnerhub/internal/services/partners/token"
)

// Config holds partners command configuration.
type Config struct {
	HTTPAddr   string        `env:"PARTNERHUB_HTTP_ADDR"   envDefault:":8080"`
	DBPath     string        `env:"PARTNERHUB_DB_PATH"     envDefault:"partners.db"`
	RateLimit  int           `env:"PARTNERHUB_RATE_LIMIT"  envDefault:"10"`
	RateWindow time.Duration `env:"PARTNERHUB_RATE_WINDOW" envDefault:"10s"`
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}

	fs.StringVar(&cfg.HTTPAddr, "http-addr", cfg.HTTPAddr, "partners HTTP listen address")
	fs.StringVar(&cfg.DBPath, "db-path", cfg.DBPath, "partners SQLite database path")
	fs.IntVar(&cfg.RateLimit, "rate-limit", cfg.RateLimit, "messages admitted per rate window per user")
	fs.DurationVar(&cfg.RateWindow, "rate-window", cfg.RateWindow, "rate limiter window size")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run builds the partners app and starts the realtime transport.
func Run(ctx context.Context, cfg Config) error {
	tokenConfig, err := token.LoadConfigFromEnv(nil)
	if err != nil {
		return fmt.Errorf("load token config: %w", err)
	}
	return entrypoint.Run(ctx, entrypoint.ServicePartners, func(ctx context.Context) error {
		if err := server.Run(ctx, server.Config{
			HTTPAddr:   cfg.HTTPAddr,
			DBPath:     cfg.DBPath,
			Token:      tokenConfig,
			RateLimit:  cfg.RateLimit,
			RateWindow: cfg.RateWindow,
		}); err != nil {
			return fmt.Errorf("serve partners: %w", err)
		}
		return nil
	})
}
