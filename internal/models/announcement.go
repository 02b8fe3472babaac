package models

import "time"

// Announcement represents a persisted announcement row.
//
// IsPublished is true exactly when PublishedAt is set, and a published row never
// carries a pending ScheduledAt.
type Announcement struct {
	ID          string     `db:"id" json:"id"`
	Title       string     `db:"title" json:"title"`
	Message     string     `db:"message" json:"message"`
	BatchID     *string    `db:"batch_id" json:"batchId"`
	CreatedByID string     `db:"created_by_id" json:"createdById"`
	IsPublished bool       `db:"is_published" json:"isPublished"`
	ScheduledAt *time.Time `db:"scheduled_at" json:"scheduledAt"`
	PublishedAt *time.Time `db:"published_at" json:"publishedAt"`
	CreatedAt   time.Time  `db:"created_at" json:"createdAt"`
	UpdatedAt   time.Time  `db:"updated_at" json:"updatedAt"`
}

// PublicationState holds the three publication columns of an announcement.
type PublicationState struct {
	ScheduledAt *time.Time
	IsPublished bool
	PublishedAt *time.Time
}

// Apply copies the publication columns onto the announcement.
func (s PublicationState) Apply(a *Announcement) {
	a.ScheduledAt = s.ScheduledAt
	a.IsPublished = s.IsPublished
	a.PublishedAt = s.PublishedAt
}

// IsGlobal reports whether the announcement is visible to students of every batch.
func (a *Announcement) IsGlobal() bool {
	return a.BatchID == nil
}

// AnnouncementDetail joins an announcement with its author, batch and read count.
type AnnouncementDetail struct {
	Announcement
	CreatorName string   `db:"creator_name"`
	CreatorRole UserRole `db:"creator_role"`
	BatchYear   *int     `db:"batch_year"`
	ReadCount   int      `db:"read_count"`
}

// AnnouncementScope is the store-level visibility filter for listing announcements.
// The zero value matches published announcements of every batch.
type AnnouncementScope struct {
	// IncludeUnpublished matches rows in every publication state.
	IncludeUnpublished bool
	// UnpublishedOwnerID additionally matches unpublished rows created by this user.
	UnpublishedOwnerID string
	// RestrictToBatch limits rows to global announcements plus those targeting BatchID.
	RestrictToBatch bool
	BatchID         *string
}

// AnnouncementPatch carries the columns an update touches; nil/false fields are left alone.
type AnnouncementPatch struct {
	Title       *string
	Message     *string
	BatchIDSet  bool
	BatchID     *string
	Publication *PublicationState
}

// Empty reports whether the patch changes nothing.
func (p AnnouncementPatch) Empty() bool {
	return p.Title == nil && p.Message == nil && !p.BatchIDSet && p.Publication == nil
}

// AnnouncementRead is a read receipt keyed by (announcement, user).
type AnnouncementRead struct {
	AnnouncementID string    `db:"announcement_id" json:"announcementId"`
	UserID         string    `db:"user_id" json:"userId"`
	ReadAt         time.Time `db:"read_at" json:"readAt"`
}

// AnnouncementReader is a read receipt joined with the reader's profile.
type AnnouncementReader struct {
	UserID   string    `db:"user_id" json:"userId"`
	FullName string    `db:"full_name" json:"name"`
	Role     UserRole  `db:"role" json:"role"`
	ReadAt   time.Time `db:"read_at" json:"readAt"`
}
