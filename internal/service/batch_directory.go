package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

type batchStore interface {
	Exists(ctx context.Context, id string) (bool, error)
}

type studentBatchStore interface {
	CurrentBatchID(ctx context.Context, userID string) (*string, error)
}

// BatchDirectory answers batch existence and student membership lookups.
// Batch existence reads through the cache; membership always comes from the store
// because students move between batches.
type BatchDirectory struct {
	batches batchStore
	users   studentBatchStore
	cache   *CacheService
	ttl     time.Duration
	logger  *zap.Logger
}

// NewBatchDirectory constructs the directory. A nil cache reads straight from the stores.
func NewBatchDirectory(batches batchStore, users studentBatchStore, cache *CacheService, ttl time.Duration, logger *zap.Logger) *BatchDirectory {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BatchDirectory{batches: batches, users: users, cache: cache, ttl: ttl, logger: logger}
}

// BatchExists reports whether the batch exists. Only positive answers are cached
// so a freshly created batch becomes visible immediately.
func (d *BatchDirectory) BatchExists(ctx context.Context, id string) (bool, error) {
	key := fmt.Sprintf("batch:exists:%s", id)
	var exists bool
	if hit, _ := d.cache.Get(ctx, key, &exists); hit && exists {
		return true, nil
	}
	exists, err := d.batches.Exists(ctx, id)
	if err != nil {
		return false, err
	}
	if exists {
		_ = d.cache.Set(ctx, key, true, d.ttl)
	}
	return exists, nil
}

// StudentBatchID returns the student's current batch. Unknown users are treated
// as unassigned.
func (d *BatchDirectory) StudentBatchID(ctx context.Context, userID string) (*string, error) {
	batchID, err := d.users.CurrentBatchID(ctx, userID)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		d.logger.Warn("student not found while resolving batch", zap.String("user_id", userID))
		return nil, nil
	}
	return batchID, nil
}
