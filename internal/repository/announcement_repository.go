package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/sma-announcement-api/internal/models"
	"github.com/noah-isme/sma-announcement-api/pkg/database"
)

const announcementDetailSelect = `SELECT a.id, a.title, a.message, a.batch_id, a.created_by_id, a.is_published, a.scheduled_at, a.published_at, a.created_at, a.updated_at,
u.full_name AS creator_name, u.role AS creator_role, b.batch_year,
(SELECT COUNT(*) FROM announcement_reads ar WHERE ar.announcement_id = a.id) AS read_count
FROM announcements a
JOIN users u ON u.id = a.created_by_id
LEFT JOIN batches b ON b.id = a.batch_id`

// AnnouncementRepository provides persistence for announcements.
type AnnouncementRepository struct {
	db *sqlx.DB
}

// NewAnnouncementRepository creates the repository.
func NewAnnouncementRepository(db *sqlx.DB) *AnnouncementRepository {
	return &AnnouncementRepository{db: db}
}

// List returns the announcements matched by the visibility scope, newest first.
func (r *AnnouncementRepository) List(ctx context.Context, scope models.AnnouncementScope) ([]models.AnnouncementDetail, error) {
	var where []string
	var args []interface{}

	if !scope.IncludeUnpublished {
		if scope.UnpublishedOwnerID != "" {
			where = append(where, fmt.Sprintf("(a.is_published = TRUE OR a.created_by_id = $%d)", len(args)+1))
			args = append(args, scope.UnpublishedOwnerID)
		} else {
			where = append(where, "a.is_published = TRUE")
		}
	}
	if scope.RestrictToBatch {
		if scope.BatchID != nil {
			where = append(where, fmt.Sprintf("(a.batch_id IS NULL OR a.batch_id = $%d)", len(args)+1))
			args = append(args, *scope.BatchID)
		} else {
			where = append(where, "a.batch_id IS NULL")
		}
	}

	query := announcementDetailSelect
	if len(where) > 0 {
		query += "\nWHERE " + strings.Join(where, " AND ")
	}
	query += "\nORDER BY a.created_at DESC, a.id"

	var items []models.AnnouncementDetail
	if err := r.db.SelectContext(ctx, &items, query, args...); err != nil {
		return nil, fmt.Errorf("list announcements: %w", err)
	}
	return items, nil
}

// GetByID returns an announcement with its author, batch and read count.
func (r *AnnouncementRepository) GetByID(ctx context.Context, id string) (*models.AnnouncementDetail, error) {
	query := announcementDetailSelect + "\nWHERE a.id = $1"
	var item models.AnnouncementDetail
	if err := r.db.GetContext(ctx, &item, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("get announcement: %w", err)
	}
	return &item, nil
}

// Create inserts a new announcement.
func (r *AnnouncementRepository) Create(ctx context.Context, announcement *models.Announcement) error {
	if announcement.ID == "" {
		announcement.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if announcement.CreatedAt.IsZero() {
		announcement.CreatedAt = now
	}
	announcement.UpdatedAt = announcement.CreatedAt
	const query = `INSERT INTO announcements (id, title, message, batch_id, created_by_id, is_published, scheduled_at, published_at, created_at, updated_at)
VALUES (:id, :title, :message, :batch_id, :created_by_id, :is_published, :scheduled_at, :published_at, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, announcement); err != nil {
		return fmt.Errorf("create announcement: %w", err)
	}
	return nil
}

// Update writes only the columns carried by the patch. It returns sql.ErrNoRows when
// the announcement no longer exists.
func (r *AnnouncementRepository) Update(ctx context.Context, id string, patch models.AnnouncementPatch, updatedAt time.Time) error {
	var sets []string
	var args []interface{}
	set := func(column string, value interface{}) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	if patch.Title != nil {
		set("title", *patch.Title)
	}
	if patch.Message != nil {
		set("message", *patch.Message)
	}
	if patch.BatchIDSet {
		set("batch_id", patch.BatchID)
	}
	if patch.Publication != nil {
		set("is_published", patch.Publication.IsPublished)
		set("scheduled_at", patch.Publication.ScheduledAt)
		set("published_at", patch.Publication.PublishedAt)
	}
	set("updated_at", updatedAt)

	args = append(args, id)
	query := fmt.Sprintf("UPDATE announcements SET %s WHERE id = $%d", strings.Join(sets, ", "), len(args))
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update announcement: %w", err)
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// Delete removes an announcement together with its read receipts.
func (r *AnnouncementRepository) Delete(ctx context.Context, id string) error {
	return database.WithTx(ctx, r.db, func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx, "DELETE FROM announcement_reads WHERE announcement_id = $1", id); err != nil {
			return fmt.Errorf("delete announcement reads: %w", err)
		}
		res, err := tx.ExecContext(ctx, "DELETE FROM announcements WHERE id = $1", id)
		if err != nil {
			return fmt.Errorf("delete announcement: %w", err)
		}
		if affected, err := res.RowsAffected(); err == nil && affected == 0 {
			return sql.ErrNoRows
		}
		return nil
	})
}

// ListDueIDs returns unpublished announcements whose schedule has elapsed at now.
func (r *AnnouncementRepository) ListDueIDs(ctx context.Context, now time.Time) ([]string, error) {
	const query = `SELECT id FROM announcements WHERE is_published = FALSE AND scheduled_at <= $1 ORDER BY scheduled_at, id`
	var ids []string
	if err := r.db.SelectContext(ctx, &ids, query, now); err != nil {
		return nil, fmt.Errorf("list due announcements: %w", err)
	}
	return ids, nil
}

// PublishByIDs publishes exactly the given announcements at now. Rows re-armed to a later
// schedule or published in the meantime are left untouched.
func (r *AnnouncementRepository) PublishByIDs(ctx context.Context, ids []string, now time.Time) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	const query = `UPDATE announcements SET is_published = TRUE, published_at = $1, scheduled_at = NULL, updated_at = $1
WHERE id = ANY($2) AND is_published = FALSE AND scheduled_at <= $1`
	res, err := r.db.ExecContext(ctx, query, now, pq.Array(ids))
	if err != nil {
		return 0, fmt.Errorf("publish announcements: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("publish announcements rows affected: %w", err)
	}
	return affected, nil
}
