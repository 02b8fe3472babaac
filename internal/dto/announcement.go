package dto

import (
	"time"

	"github.com/noah-isme/sma-announcement-api/internal/models"
)

// CreateAnnouncementRequest describes the create payload.
type CreateAnnouncementRequest struct {
	Title       string  `json:"title" validate:"required,min=1,max=200"`
	Message     string  `json:"message" validate:"required,min=1,max=5000"`
	ScheduledAt *string `json:"scheduledAt" validate:"omitempty,iso8601"`
	BatchID     *string `json:"batchId" validate:"omitempty,uuid"`
}

// UpdateAnnouncementRequest is a partial payload; only keys present in the body are applied.
// scheduledAt and batchId accept an explicit null (publish now / make global).
type UpdateAnnouncementRequest struct {
	Title       *string          `json:"title" validate:"omitnil,min=1,max=200"`
	Message     *string          `json:"message" validate:"omitnil,min=1,max=5000"`
	ScheduledAt Optional[string] `json:"scheduledAt" validate:"omitempty,iso8601" swaggertype:"string"`
	BatchID     Optional[string] `json:"batchId" validate:"omitempty,uuid" swaggertype:"string"`
}

// CreatorSummary is the embedded author of an announcement.
type CreatorSummary struct {
	ID   string          `json:"id"`
	Name string          `json:"name"`
	Role models.UserRole `json:"role"`
}

// BatchSummary is the embedded target batch of an announcement.
type BatchSummary struct {
	ID        string `json:"id"`
	BatchYear int    `json:"batchYear"`
}

// AnnouncementView is the response shape of a single announcement.
// ReadCount is omitted for student viewers.
type AnnouncementView struct {
	ID          string         `json:"id"`
	Title       string         `json:"title"`
	Message     string         `json:"message"`
	IsPublished bool           `json:"isPublished"`
	ScheduledAt *time.Time     `json:"scheduledAt"`
	PublishedAt *time.Time     `json:"publishedAt"`
	BatchID     *string        `json:"batchId"`
	CreatedAt   time.Time      `json:"createdAt"`
	UpdatedAt   time.Time      `json:"updatedAt"`
	CreatedByID string         `json:"createdById"`
	CreatedBy   CreatorSummary `json:"createdBy"`
	Batch       *BatchSummary  `json:"batch"`
	IsRead      bool           `json:"isRead"`
	ReadCount   *int           `json:"readCount,omitempty"`
}

// DeleteAnnouncementResult acknowledges a deletion.
type DeleteAnnouncementResult struct {
	ID string `json:"id"`
}

// MarkAsReadResult acknowledges a read receipt.
type MarkAsReadResult struct {
	AnnouncementID string `json:"announcementId"`
	UserID         string `json:"userId"`
	Read           bool   `json:"read"`
}

// ReadReceiptExport is a rendered read receipt document.
type ReadReceiptExport struct {
	Filename    string
	ContentType string
	Body        []byte
}
