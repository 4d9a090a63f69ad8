package sessions

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-orgchart/pkg/models"
)

const (
	redisKeyPrefix = "orgchart:session:"
	// maxUpdateAttempts bounds optimistic retries of one Update.
	maxUpdateAttempts = 10
)

// RedisStore keeps sessions in Redis. Expiry is enforced by key TTL.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

var _ Store = (*RedisStore)(nil)

func NewRedisStore(client *redis.Client, ttl time.Duration, logger *zap.Logger) *RedisStore {
	return &RedisStore{
		client: client,
		ttl:    ttl,
		logger: logger.Named("session-store"),
	}
}

func (s *RedisStore) Load(ctx context.Context, id string) (*models.SessionState, error) {
	data, err := s.client.Get(ctx, redisKeyPrefix+id).Bytes()
	return s.decode(data, err)
}

// Update runs fn inside an optimistic WATCH/MULTI transaction on the
// session key and retries when another writer got there first.
func (s *RedisStore) Update(ctx context.Context, id string, fn UpdateFunc) (*models.SessionState, error) {
	key := redisKeyPrefix + id

	var (
		updated *models.SessionState
		fnErr   error
	)
	txf := func(tx *redis.Tx) error {
		state, err := s.decode(tx.Get(ctx, key).Bytes())
		if err != nil {
			return err
		}
		if fnErr = fn(state); fnErr != nil {
			return fnErr
		}
		data, err := json.Marshal(state)
		if err != nil {
			return fmt.Errorf("failed to encode session: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, s.ttl)
			return nil
		})
		if err == nil {
			updated = state
		}
		return err
	}

	for attempt := 0; attempt < maxUpdateAttempts; attempt++ {
		err := s.client.Watch(ctx, txf, key)
		switch {
		case err == nil:
			return updated, nil
		case fnErr != nil:
			return nil, fnErr
		case errors.Is(err, redis.TxFailedErr):
			s.logger.Debug("Session changed during update, retrying", zap.Int("attempt", attempt+1))
			continue
		default:
			return nil, fmt.Errorf("failed to save session: %w", err)
		}
	}
	return nil, fmt.Errorf("failed to save session: gave up after %d conflicting updates", maxUpdateAttempts)
}

// Sweep is a no-op; Redis expires session keys on its own.
func (s *RedisStore) Sweep(ctx context.Context) (int, error) {
	return 0, nil
}

func (s *RedisStore) decode(data []byte, err error) (*models.SessionState, error) {
	if errors.Is(err, redis.Nil) {
		return models.NewSessionState(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}

	state := models.NewSessionState()
	if err := json.Unmarshal(data, state); err != nil {
		// A corrupt entry is treated like an expired one.
		s.logger.Warn("Discarding undecodable session state", zap.Error(err))
		return models.NewSessionState(), nil
	}
	state.Normalize()
	return state, nil
}
