package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/digkill/LetterDesk/internal/models"
)

const defaultKeyPrefix = "letterdesk:session:"

// RedisStore keeps workspaces as JSON values with a sliding TTL.
type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

func NewRedisStore(client *redis.Client, prefix string, ttl time.Duration) *RedisStore {
	if prefix == "" {
		prefix = defaultKeyPrefix
	}
	return &RedisStore{client: client, prefix: prefix, ttl: ttl}
}

func (r *RedisStore) key(clientID string) string {
	return r.prefix + clientID
}

func (r *RedisStore) Load(ctx context.Context, clientID string) (State, bool, error) {
	data, err := r.client.Get(ctx, r.key(clientID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return State{}, false, nil
		}
		return State{}, false, fmt.Errorf("redis get session: %w", err)
	}
	var st State
	if err := json.Unmarshal(data, &st); err != nil {
		return State{}, false, fmt.Errorf("decode session: %w", err)
	}
	if st.History == nil {
		st.History = []models.Document{}
	}
	return st, true, nil
}

func (r *RedisStore) Save(ctx context.Context, clientID string, st State) error {
	data, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	if err := r.client.Set(ctx, r.key(clientID), data, r.ttl).Err(); err != nil {
		return fmt.Errorf("redis set session: %w", err)
	}
	return nil
}

func (r *RedisStore) Delete(ctx context.Context, clientID string) error {
	if err := r.client.Del(ctx, r.key(clientID)).Err(); err != nil {
		return fmt.Errorf("redis delete session: %w", err)
	}
	return nil
}
