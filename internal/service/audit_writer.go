package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-announcement-api/internal/models"
	"github.com/noah-isme/sma-announcement-api/pkg/jobs"
)

const auditWriteTimeout = 5 * time.Second

// AuditWriter moves audit log inserts off the request path. Entries are written
// synchronously whenever the background queue is not running or is full.
type AuditWriter struct {
	store  auditLogRepository
	queue  *jobs.Queue[*models.AuditLog]
	logger *zap.Logger
}

// NewAuditWriter constructs the writer around the audit store.
func NewAuditWriter(store auditLogRepository, cfg jobs.QueueConfig, logger *zap.Logger) *AuditWriter {
	if logger == nil {
		logger = zap.NewNop()
	}
	w := &AuditWriter{store: store, logger: logger}
	cfg.Logger = logger
	w.queue = jobs.NewQueue("audit-log", w.handle, cfg)
	return w
}

// Start launches the background workers.
func (w *AuditWriter) Start(ctx context.Context) {
	w.queue.Start(ctx)
}

// Stop flushes buffered entries and stops the workers.
func (w *AuditWriter) Stop() {
	w.queue.Stop()
}

// CreateAuditLog stamps the entry and hands it to the queue.
func (w *AuditWriter) CreateAuditLog(ctx context.Context, entry *models.AuditLog) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	if w.queue.Running() {
		err := w.queue.Enqueue(entry.ID, entry)
		if err == nil {
			return nil
		}
		w.logger.Debug("audit queue unavailable, writing inline", zap.String("audit_id", entry.ID), zap.Error(err))
	}
	return w.store.CreateAuditLog(ctx, entry)
}

func (w *AuditWriter) handle(ctx context.Context, job jobs.Job[*models.AuditLog]) error {
	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), auditWriteTimeout)
	defer cancel()
	return w.store.CreateAuditLog(writeCtx, job.Payload)
}
