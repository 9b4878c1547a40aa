package corpus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/gcbaptista/patient-search/model"
)

const cacheKey = "corpus"

// CachedProvider is a read-through Redis cache in front of another provider.
// Cache failures are logged and fall through to the wrapped provider.
type CachedProvider struct {
	next   Provider
	client redis.Cmdable
	key    string
	ttl    time.Duration
	logger *zap.Logger
}

// NewCachedProvider caches next under <prefix>corpus for ttl.
func NewCachedProvider(next Provider, client redis.Cmdable, prefix string, ttl time.Duration, logger *zap.Logger) *CachedProvider {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CachedProvider{
		next:   next,
		client: client,
		key:    prefix + cacheKey,
		ttl:    ttl,
		logger: logger.Named("corpus_cache"),
	}
}

func (p *CachedProvider) Name() string { return p.next.Name() }

func (p *CachedProvider) Patients(ctx context.Context) ([]model.Patient, error) {
	data, err := p.client.Get(ctx, p.key).Bytes()
	switch {
	case err == nil:
		var patients []model.Patient
		jsonErr := json.Unmarshal(data, &patients)
		if jsonErr == nil {
			p.logger.Debug("corpus cache hit", zap.String("key", p.key), zap.Int("patients", len(patients)))
			return patients, nil
		}
		p.logger.Warn("discarding undecodable corpus cache entry", zap.String("key", p.key), zap.Error(jsonErr))
	case errors.Is(err, redis.Nil):
		p.logger.Debug("corpus cache miss", zap.String("key", p.key))
	default:
		p.logger.Warn("corpus cache unavailable", zap.String("key", p.key), zap.Error(err))
	}

	patients, err := p.next.Patients(ctx)
	if err != nil {
		return nil, err
	}

	encoded, err := json.Marshal(patients)
	if err != nil {
		return nil, fmt.Errorf("failed to encode corpus for cache: %w", err)
	}
	if err := p.client.Set(ctx, p.key, encoded, p.ttl).Err(); err != nil {
		p.logger.Warn("failed to populate corpus cache", zap.String("key", p.key), zap.Error(err))
	}
	return patients, nil
}

// Invalidate drops the cached corpus so the next call reaches the wrapped provider.
func (p *CachedProvider) Invalidate(ctx context.Context) error {
	if err := p.client.Del(ctx, p.key).Err(); err != nil {
		return fmt.Errorf("failed to invalidate corpus cache: %w", err)
	}
	return nil
}
