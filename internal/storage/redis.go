package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/go-redis/redis/v8"

	"zork-argento/server/internal/config"
	"zork-argento/server/internal/models"
)

const recentListKeyPrefix = "adventures:recent:"

// RedisStore caches per-user adventure listings. The cache is an
// optimization only: every miss or redis failure falls through to the
// document store.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisStore(cfg config.RedisConfig) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	return &RedisStore{client: client, ttl: cfg.ListTTL}, nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

// GetRecentList returns the cached listing for a user, or nil on miss.
func (s *RedisStore) GetRecentList(ctx context.Context, userID string) []*models.AdventureDocument {
	data, err := s.client.Get(ctx, recentListKeyPrefix+userID).Result()
	if err != nil {
		if err != redis.Nil {
			log.Printf("[redis] list read failed: %v", err)
		}
		return nil
	}
	var docs []*models.AdventureDocument
	if err := json.Unmarshal([]byte(data), &docs); err != nil {
		return nil
	}
	return docs
}

// SetRecentList caches a user's listing with the configured TTL.
func (s *RedisStore) SetRecentList(ctx context.Context, userID string, docs []*models.AdventureDocument) {
	data, err := json.Marshal(docs)
	if err != nil {
		return
	}
	if err := s.client.Set(ctx, recentListKeyPrefix+userID, data, s.ttl).Err(); err != nil {
		log.Printf("[redis] list write failed: %v", err)
	}
}

// InvalidateRecentList drops a user's cached listing after a write.
func (s *RedisStore) InvalidateRecentList(ctx context.Context, userID string) {
	if err := s.client.Del(ctx, recentListKeyPrefix+userID).Err(); err != nil {
		log.Printf("[redis] list invalidation failed: %v", err)
	}
}
