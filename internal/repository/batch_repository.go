package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// BatchRepository reads student batches.
type BatchRepository struct {
	db *sqlx.DB
}

// NewBatchRepository constructs the repository.
func NewBatchRepository(db *sqlx.DB) *BatchRepository {
	return &BatchRepository{db: db}
}

// Exists reports whether a batch with the identifier exists.
func (r *BatchRepository) Exists(ctx context.Context, id string) (bool, error) {
	var exists bool
	if err := r.db.GetContext(ctx, &exists, "SELECT EXISTS(SELECT 1 FROM batches WHERE id = $1)", id); err != nil {
		return false, fmt.Errorf("check batch exists: %w", err)
	}
	return exists, nil
}
