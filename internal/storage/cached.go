package storage

import (
	"context"

	"zork-argento/server/internal/interfaces"
	"zork-argento/server/internal/models"
)

// CachedStore layers the redis listing cache over a document store.
// Writes invalidate the owning user's cached listing; a nil cache makes
// it a transparent pass-through, mirroring how the server degrades when
// redis is unavailable.
type CachedStore struct {
	store interfaces.AdventureStore
	cache *RedisStore
}

func NewCachedStore(store interfaces.AdventureStore, cache *RedisStore) *CachedStore {
	return &CachedStore{store: store, cache: cache}
}

func (s *CachedStore) Create(ctx context.Context, userID string, adventure *models.Adventure) (string, error) {
	id, err := s.store.Create(ctx, userID, adventure)
	if err == nil && s.cache != nil {
		s.cache.InvalidateRecentList(ctx, userID)
	}
	return id, err
}

func (s *CachedStore) Update(ctx context.Context, userID, adventureID string, fields map[string]interface{}) error {
	err := s.store.Update(ctx, userID, adventureID, fields)
	if err == nil && s.cache != nil {
		s.cache.InvalidateRecentList(ctx, userID)
	}
	return err
}

func (s *CachedStore) Get(ctx context.Context, userID, adventureID string) (*models.AdventureDocument, error) {
	return s.store.Get(ctx, userID, adventureID)
}

func (s *CachedStore) ListByUser(ctx context.Context, userID string, limit int) ([]*models.AdventureDocument, error) {
	if s.cache != nil {
		if docs := s.cache.GetRecentList(ctx, userID); docs != nil {
			return docs, nil
		}
	}
	docs, err := s.store.ListByUser(ctx, userID, limit)
	if err == nil && s.cache != nil {
		s.cache.SetRecentList(ctx, userID, docs)
	}
	return docs, err
}
