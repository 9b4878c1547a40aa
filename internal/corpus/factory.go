package corpus

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/gcbaptista/patient-search/config"
)

// Invalidator is implemented by providers that keep a cache in front of their source.
type Invalidator interface {
	Invalidate(ctx context.Context) error
}

// Build assembles the provider chain described by cfg.
// The returned cleanup function closes every connection Build opened.
func Build(ctx context.Context, cfg config.Config, logger *zap.Logger) (Provider, func() error, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	var closers []func() error
	cleanup := func() error {
		var errs []error
		for i := len(closers) - 1; i >= 0; i-- {
			errs = append(errs, closers[i]())
		}
		return errors.Join(errs...)
	}

	var provider Provider
	switch cfg.Corpus.Provider {
	case config.ProviderSynthetic:
		provider = NewSyntheticProvider(cfg.Corpus.SyntheticSize)
	case config.ProviderPostgres:
		db, err := OpenPostgres(ctx, cfg.Postgres)
		if err != nil {
			return nil, nil, err
		}
		closers = append(closers, db.Close)
		provider = NewPostgresProvider(db)
	default:
		return nil, nil, fmt.Errorf("unknown corpus provider %q", cfg.Corpus.Provider)
	}

	if cfg.Redis.Enabled {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			_ = cleanup()
			return nil, nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.Redis.Addr, err)
		}
		closers = append(closers, client.Close)
		provider = NewCachedProvider(provider, client, cfg.Redis.KeyPrefix, cfg.Redis.TTL, logger)
	}

	logger.Info("corpus provider ready",
		zap.String("provider", provider.Name()),
		zap.Bool("redis_cache", cfg.Redis.Enabled))
	return provider, cleanup, nil
}
