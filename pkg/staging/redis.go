package staging

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-orgchart/pkg/models"
)

const (
	redisDataPrefix  = "orgchart:staging:data:"
	redisIndexPrefix = "orgchart:staging:index:"
	redisScanCount   = 100
)

// RedisStore keeps staged datasets in Redis. Keys carry a TTL so abandoned
// uploads expire even if Sweep never runs.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
	codec  codec
	now    func() time.Time
	logger *zap.Logger
}

// NewRedisStore creates a RedisStore whose keys expire after ttl.
func NewRedisStore(client *redis.Client, ttl time.Duration, logger *zap.Logger, opts ...Option) *RedisStore {
	return &RedisStore{
		client: client,
		ttl:    ttl,
		codec:  newCodec(opts),
		now:    time.Now,
		logger: logger.Named("staging-redis"),
	}
}

var _ Store = (*RedisStore)(nil)

func dataKey(handle string) string {
	return redisDataPrefix + handle
}

// indexKey points at the current handle of (session, kind).
func indexKey(sessionID string, kind models.DatasetKind) string {
	return redisIndexPrefix + strings.TrimSuffix(keyPrefix(sessionID, kind), ".")
}

func (s *RedisStore) Put(ctx context.Context, sessionID string, kind models.DatasetKind, ds *models.ParsedDataset) (string, error) {
	if err := checkPut(sessionID, kind, ds); err != nil {
		return "", err
	}

	payload, err := s.codec.encode(&envelope{Kind: kind, StagedAt: s.now(), Dataset: ds})
	if err != nil {
		return "", err
	}

	idx := indexKey(sessionID, kind)
	prior, err := s.client.Get(ctx, idx).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return "", fmt.Errorf("failed to read staging index: %w", err)
	}

	handle := newHandle(sessionID, kind)
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		if prior != "" {
			pipe.Del(ctx, dataKey(prior))
		}
		pipe.Set(ctx, dataKey(handle), payload, s.ttl)
		pipe.Set(ctx, idx, handle, s.ttl)
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("failed to store staged dataset: %w", err)
	}
	return handle, nil
}

func (s *RedisStore) Get(ctx context.Context, handle string) (*models.ParsedDataset, error) {
	if !validHandle(handle) {
		return nil, notFound(handle)
	}

	payload, err := s.client.Get(ctx, dataKey(handle)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, notFound(handle)
		}
		return nil, fmt.Errorf("failed to read staged dataset: %w", err)
	}

	env, err := s.codec.decode(payload)
	if err != nil {
		return nil, err
	}
	if env.Dataset == nil {
		return nil, notFound(handle)
	}
	return env.Dataset, nil
}

func (s *RedisStore) Delete(ctx context.Context, handle string) error {
	if !validHandle(handle) {
		return nil
	}
	if err := s.client.Del(ctx, dataKey(handle)).Err(); err != nil {
		return fmt.Errorf("failed to delete staged dataset: %w", err)
	}
	return nil
}

// Sweep scans staged datasets and removes those older than maxAge.
func (s *RedisStore) Sweep(ctx context.Context, maxAge time.Duration) (int, error) {
	cutoff := s.now().Add(-maxAge)
	removed := 0

	iter := s.client.Scan(ctx, 0, redisDataPrefix+"*", redisScanCount).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		payload, err := s.client.Get(ctx, key).Bytes()
		if err != nil {
			continue // expired between SCAN and GET
		}
		env, err := s.codec.decode(payload)
		if err != nil {
			s.logger.Warn("Removing undecodable staged dataset", zap.String("key", key), zap.Error(err))
		} else if !env.StagedAt.Before(cutoff) {
			continue
		}
		if err := s.client.Del(ctx, key).Err(); err != nil {
			return removed, fmt.Errorf("failed to sweep staged dataset: %w", err)
		}
		removed++
	}
	if err := iter.Err(); err != nil {
		return removed, fmt.Errorf("failed to scan staged datasets: %w", err)
	}
	return removed, nil
}
