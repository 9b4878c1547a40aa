package main

import (
	"context"
	"fmt"
	"os"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/gcbaptista/patient-search/config"
	"github.com/gcbaptista/patient-search/internal/corpus"
	"github.com/gcbaptista/patient-search/internal/engine"
	"github.com/gcbaptista/patient-search/internal/logger"
)

// version is set at build time with -ldflags "-X main.version=..."
var version = "dev"

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:    "patient-search",
		Usage:   "Patient search and relevance ranking service",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to the YAML configuration file",
				EnvVars: []string{"PATIENT_SEARCH_CONFIG"},
			},
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "Override the logging level (debug, info, warn, error)",
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "Run the HTTP API and, when enabled, the Kafka message bridge",
				Action: serveCommand,
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "port",
						Usage: "HTTP port (overrides http.port)",
					},
				},
			},
			{
				Name:      "search",
				Usage:     "Run one search against the configured corpus and print the ranked hits as JSON",
				ArgsUsage: "<query>",
				Action:    searchCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "site",
						Usage: "Only consider patients on this site",
					},
					&cli.StringFlag{
						Name:  "floor",
						Usage: "Only consider patients on this floor",
					},
					&cli.IntFlag{
						Name:  "limit",
						Usage: "Maximum number of hits to print (0 = all)",
					},
				},
			},
		},
	}
}

// deps holds what every command needs after startup.
type deps struct {
	cfg     config.Config
	logger  *zap.Logger
	engine  *engine.Engine
	cleanup func()
}

func setup(c *cli.Context) (*deps, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, err
	}
	if port := c.Int("port"); port > 0 {
		cfg.HTTP.Port = port
	}
	level := cfg.Logging.Level
	if override := c.String("log-level"); override != "" {
		level = override
	}

	log, err := logger.NewLogger(cfg.Env, level)
	if err != nil {
		return nil, err
	}

	provider, closeProvider, err := corpus.Build(c.Context, cfg, log)
	if err != nil {
		_ = log.Sync()
		return nil, fmt.Errorf("failed to build corpus provider: %w", err)
	}

	eng, err := engine.New(engine.Options{
		Provider: provider,
		Corpus:   cfg.Corpus,
		Search:   cfg.Search,
		Sync:     cfg.Sync,
		Logger:   log,
	})
	if err != nil {
		_ = closeProvider()
		_ = log.Sync()
		return nil, err
	}

	return &deps{
		cfg:    cfg,
		logger: log,
		engine: eng,
		cleanup: func() {
			eng.Close()
			if err := closeProvider(); err != nil {
				log.Warn("failed to close corpus provider", zap.Error(err))
			}
			_ = log.Sync()
		},
	}, nil
}

func warmup(ctx context.Context, rt *deps) error {
	ctx, cancel := context.WithTimeout(ctx, rt.cfg.Corpus.ProviderTimeout)
	defer cancel()
	return rt.engine.Warmup(ctx)
}
