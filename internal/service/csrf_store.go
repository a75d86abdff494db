package service

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// CSRFTokenStore guarda el token CSRF vigente por usuario. Un solo valor por
// usuario: cada reemision pisa el anterior.
type CSRFTokenStore interface {
	Put(ctx context.Context, userID, token string, ttl time.Duration) error
	Get(ctx context.Context, userID string) (string, error)
	Delete(ctx context.Context, userID string) error
}

type redisCSRFStore struct {
	client redis.UniversalClient
	prefix string
}

func NewRedisCSRFStore(client redis.UniversalClient) CSRFTokenStore {
	return &redisCSRFStore{
		client: client,
		prefix: "csrf:",
	}
}

func (s *redisCSRFStore) Put(ctx context.Context, userID, token string, ttl time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
	defer cancel()
	if err := s.client.Set(ctx, s.prefix+userID, token, ttl).Err(); err != nil {
		return storeErr(err)
	}
	return nil
}

func (s *redisCSRFStore) Get(ctx context.Context, userID string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
	defer cancel()
	token, err := s.client.Get(ctx, s.prefix+userID).Result()
	if err != nil {
		if err == redis.Nil {
			return "", nil
		}
		return "", storeErr(err)
	}
	return token, nil
}

func (s *redisCSRFStore) Delete(ctx context.Context, userID string) error {
	ctx, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
	defer cancel()
	if err := s.client.Del(ctx, s.prefix+userID).Err(); err != nil {
		return storeErr(err)
	}
	return nil
}
