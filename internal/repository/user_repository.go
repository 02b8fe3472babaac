package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// UserRepository provides read access to users.
type UserRepository struct {
	db *sqlx.DB
}

// NewUserRepository creates a new instance of UserRepository.
func NewUserRepository(db *sqlx.DB) *UserRepository {
	return &UserRepository{db: db}
}

// CurrentBatchID returns the batch the user currently belongs to, nil when unassigned.
func (r *UserRepository) CurrentBatchID(ctx context.Context, userID string) (*string, error) {
	var batchID sql.NullString
	if err := r.db.GetContext(ctx, &batchID, "SELECT batch_id FROM users WHERE id = $1", userID); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find user batch: %w", err)
	}
	if !batchID.Valid {
		return nil, nil
	}
	return &batchID.String, nil
}
