package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/sma-announcement-api/internal/models"
)

// AnnouncementReadRepository stores read receipts.
type AnnouncementReadRepository struct {
	db *sqlx.DB
}

// NewAnnouncementReadRepository constructs the repository.
func NewAnnouncementReadRepository(db *sqlx.DB) *AnnouncementReadRepository {
	return &AnnouncementReadRepository{db: db}
}

// MarkRead inserts the receipt unless one already exists. It reports whether a row was created.
func (r *AnnouncementReadRepository) MarkRead(ctx context.Context, read models.AnnouncementRead) (bool, error) {
	const query = `INSERT INTO announcement_reads (announcement_id, user_id, read_at) VALUES ($1, $2, $3)
ON CONFLICT (announcement_id, user_id) DO NOTHING`
	res, err := r.db.ExecContext(ctx, query, read.AnnouncementID, read.UserID, read.ReadAt)
	if err != nil {
		return false, fmt.Errorf("mark announcement read: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("mark announcement read rows affected: %w", err)
	}
	return affected > 0, nil
}

// ReadAnnouncementIDs returns which of the given announcements the user has read.
func (r *AnnouncementReadRepository) ReadAnnouncementIDs(ctx context.Context, userID string, announcementIDs []string) (map[string]bool, error) {
	read := make(map[string]bool, len(announcementIDs))
	if len(announcementIDs) == 0 {
		return read, nil
	}
	const query = `SELECT announcement_id FROM announcement_reads WHERE user_id = $1 AND announcement_id = ANY($2)`
	var ids []string
	if err := r.db.SelectContext(ctx, &ids, query, userID, pq.Array(announcementIDs)); err != nil {
		return nil, fmt.Errorf("list read announcements: %w", err)
	}
	for _, id := range ids {
		read[id] = true
	}
	return read, nil
}

// ListReaders returns every receipt of an announcement joined with the reader profile.
func (r *AnnouncementReadRepository) ListReaders(ctx context.Context, announcementID string) ([]models.AnnouncementReader, error) {
	const query = `SELECT ar.user_id, u.full_name, u.role, ar.read_at
FROM announcement_reads ar
JOIN users u ON u.id = ar.user_id
WHERE ar.announcement_id = $1
ORDER BY ar.read_at, u.full_name`
	var readers []models.AnnouncementReader
	if err := r.db.SelectContext(ctx, &readers, query, announcementID); err != nil {
		return nil, fmt.Errorf("list announcement readers: %w", err)
	}
	return readers, nil
}
