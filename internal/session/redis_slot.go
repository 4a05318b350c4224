package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"testquest-backend/internal/models"
)

const slotKeyPrefix = "session:"

// RedisSlot stores the session user as JSON under session:<sid>.
type RedisSlot struct {
	client *redis.Client
	key    string
	ttl    time.Duration
}

// RedisSlots returns a SlotFactory backed by client. Records expire after ttl.
func RedisSlots(client *redis.Client, ttl time.Duration) SlotFactory {
	return func(sid string) Slot {
		return &RedisSlot{client: client, key: slotKeyPrefix + sid, ttl: ttl}
	}
}

func (s *RedisSlot) Save(ctx context.Context, user *models.User) error {
	data, err := json.Marshal(user)
	if err != nil {
		return fmt.Errorf("failed to encode session user: %w", err)
	}
	return s.client.Set(ctx, s.key, data, s.ttl).Err()
}

func (s *RedisSlot) Replace(ctx context.Context, user *models.User) (bool, error) {
	data, err := json.Marshal(user)
	if err != nil {
		return false, fmt.Errorf("failed to encode session user: %w", err)
	}
	return s.client.SetXX(ctx, s.key, data, s.ttl).Result()
}

func (s *RedisSlot) Load(ctx context.Context) (*models.User, error) {
	data, err := s.client.Get(ctx, s.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var user models.User
	if err := json.Unmarshal(data, &user); err != nil {
		return nil, fmt.Errorf("failed to decode session user: %w", err)
	}
	if !user.Role.Valid() {
		return nil, fmt.Errorf("malformed session record for role %q", user.Role)
	}
	return &user, nil
}

func (s *RedisSlot) Clear(ctx context.Context) error {
	return s.client.Del(ctx, s.key).Err()
}
