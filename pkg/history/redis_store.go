package history

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// RedisStore keeps one JSON-encoded turn sequence per user under the key
// "<userID>_data". Append is fetch-whole, append, write-whole; it is not
// transactional across writers, which is why the assembler serializes turns
// per user.
type RedisStore struct {
	client *redis.Client
}

var _ Store = &RedisStore{}

// NewRedisStore connects to the given address and verifies the connection.
func NewRedisStore(ctx context.Context, addr, password string, db int) (*RedisStore, error) {
	if strings.TrimSpace(addr) == "" {
		return nil, errors.New("redis history store: addr is empty")
	}
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, errors.Wrapf(ErrUnavailable, "redis ping %s: %v", addr, err)
	}
	log.Debug().Str("component", "history").Str("addr", addr).Msg("connected to redis")
	return &RedisStore{client: client}, nil
}

func historyKey(userID string) string { return userID + "_data" }

func (s *RedisStore) Get(ctx context.Context, userID string) ([]Turn, error) {
	if s == nil || s.client == nil {
		return nil, errors.New("redis history store: nil client")
	}
	if strings.TrimSpace(userID) == "" {
		return nil, errors.New("redis history store: userID is empty")
	}

	raw, err := s.client.Get(ctx, historyKey(userID)).Bytes()
	if err == redis.Nil {
		// Cold start: never throw on a user without history.
		return []Turn{}, nil
	}
	if err != nil {
		return nil, errors.Wrapf(ErrUnavailable, "redis get %s: %v", historyKey(userID), err)
	}

	var turns []Turn
	if err := json.Unmarshal(raw, &turns); err != nil {
		return nil, errors.Wrapf(err, "redis history store: decode history for %s", userID)
	}
	return turns, nil
}

func (s *RedisStore) Append(ctx context.Context, userID string, turn Turn) error {
	if s == nil || s.client == nil {
		return errors.New("redis history store: nil client")
	}
	if strings.TrimSpace(userID) == "" {
		return errors.New("redis history store: userID is empty")
	}

	turns, err := s.Get(ctx, userID)
	if err != nil {
		return err
	}
	turns = append(turns, turn)

	raw, err := json.Marshal(turns)
	if err != nil {
		return errors.Wrapf(err, "redis history store: encode history for %s", userID)
	}
	if err := s.client.Set(ctx, historyKey(userID), raw, 0).Err(); err != nil {
		return errors.Wrapf(ErrUnavailable, "redis set %s: %v", historyKey(userID), err)
	}
	return nil
}

func (s *RedisStore) Close() error {
	if s == nil || s.client == nil {
		return nil
	}
	return s.client.Close()
}
