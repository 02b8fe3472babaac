package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"time"

	"github.com/go-openapi/strfmt"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/noah-isme/sma-announcement-api/internal/dto"
	"github.com/noah-isme/sma-announcement-api/internal/models"
	appErrors "github.com/noah-isme/sma-announcement-api/pkg/errors"
	"github.com/noah-isme/sma-announcement-api/pkg/export"
)

type announcementRepository interface {
	List(ctx context.Context, scope models.AnnouncementScope) ([]models.AnnouncementDetail, error)
	GetByID(ctx context.Context, id string) (*models.AnnouncementDetail, error)
	Create(ctx context.Context, announcement *models.Announcement) error
	Update(ctx context.Context, id string, patch models.AnnouncementPatch, updatedAt time.Time) error
	Delete(ctx context.Context, id string) error
}

type announcementReadRepository interface {
	MarkRead(ctx context.Context, read models.AnnouncementRead) (bool, error)
	ReadAnnouncementIDs(ctx context.Context, userID string, announcementIDs []string) (map[string]bool, error)
	ListReaders(ctx context.Context, announcementID string) ([]models.AnnouncementReader, error)
}

type batchDirectory interface {
	BatchExists(ctx context.Context, id string) (bool, error)
	StudentBatchID(ctx context.Context, userID string) (*string, error)
}

type auditLogRepository interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

// AnnouncementService handles announcement workflows.
type AnnouncementService struct {
	repo      announcementRepository
	reads     announcementReadRepository
	directory batchDirectory
	audit     auditLogRepository
	validator *validator.Validate
	logger    *zap.Logger
	now       func() time.Time
}

// NewAnnouncementService constructs the service. audit may be nil.
func NewAnnouncementService(repo announcementRepository, reads announcementReadRepository, directory batchDirectory, audit auditLogRepository, validate *validator.Validate, logger *zap.Logger) *AnnouncementService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	registerAnnouncementValidations(validate)
	return &AnnouncementService{
		repo:      repo,
		reads:     reads,
		directory: directory,
		audit:     audit,
		validator: validate,
		logger:    logger,
		now:       time.Now,
	}
}

// registerAnnouncementValidations exposes a present Optional as a pointer so that
// omitempty only skips omitted or null keys and an empty string is still validated.
func registerAnnouncementValidations(v *validator.Validate) {
	v.RegisterCustomTypeFunc(func(field reflect.Value) interface{} {
		if opt, ok := field.Interface().(dto.Optional[string]); ok && opt.Value != nil {
			return opt.Value
		}
		return nil
	}, dto.Optional[string]{})
	if err := v.RegisterValidation("iso8601", func(fl validator.FieldLevel) bool {
		return strfmt.IsDateTime(fl.Field().String())
	}); err != nil {
		panic(fmt.Sprintf("register iso8601 validation: %v", err))
	}
}

// Create registers a new announcement authored by the actor.
func (s *AnnouncementService) Create(ctx context.Context, actor *models.JWTClaims, req dto.CreateAnnouncementRequest) (*dto.AnnouncementView, error) {
	viewer, err := actorViewer(actor)
	if err != nil {
		return nil, err
	}
	if viewer.Kind == ViewerStudent {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only administrators and teachers can create announcements")
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid announcement payload")
	}

	now := s.now().UTC()
	state, err := resolveCreateSchedule(req.ScheduledAt, now)
	if err != nil {
		return nil, err
	}
	if req.BatchID != nil {
		if err := s.ensureBatchExists(ctx, *req.BatchID); err != nil {
			return nil, err
		}
	}

	announcement := &models.Announcement{
		ID:          uuid.NewString(),
		Title:       req.Title,
		Message:     req.Message,
		BatchID:     req.BatchID,
		CreatedByID: viewer.ID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	state.Apply(announcement)
	if err := s.repo.Create(ctx, announcement); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create announcement")
	}
	s.recordAudit(ctx, viewer.ID, models.AuditActionAnnouncementCreate, announcement.ID, nil, announcement)
	s.logger.Info("announcement created",
		zap.String("announcement_id", announcement.ID),
		zap.String("created_by", viewer.ID),
		zap.Bool("published", announcement.IsPublished),
	)

	detail, err := s.repo.GetByID(ctx, announcement.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load announcement")
	}
	view := toAnnouncementView(detail, viewer, false)
	return &view, nil
}

// List returns every announcement visible to the actor, newest first.
func (s *AnnouncementService) List(ctx context.Context, actor *models.JWTClaims) ([]dto.AnnouncementView, error) {
	viewer, err := s.readerViewer(ctx, actor)
	if err != nil {
		return nil, err
	}
	items, err := s.repo.List(ctx, viewer.Scope())
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list announcements")
	}
	return s.annotate(ctx, viewer, items)
}

// Get returns a single announcement. Announcements hidden from the actor are reported as not found.
func (s *AnnouncementService) Get(ctx context.Context, actor *models.JWTClaims, id string) (*dto.AnnouncementView, error) {
	viewer, err := s.readerViewer(ctx, actor)
	if err != nil {
		return nil, err
	}
	detail, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !viewer.CanView(&detail.Announcement) {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "announcement not found")
	}
	views, err := s.annotate(ctx, viewer, []models.AnnouncementDetail{*detail})
	if err != nil {
		return nil, err
	}
	return &views[0], nil
}

// Update applies a partial patch. Keys absent from the payload are left untouched.
func (s *AnnouncementService) Update(ctx context.Context, actor *models.JWTClaims, id string, req dto.UpdateAnnouncementRequest) (*dto.AnnouncementView, error) {
	viewer, err := actorViewer(actor)
	if err != nil {
		return nil, err
	}
	if _, err := uuid.Parse(id); err != nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "announcement not found")
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid announcement payload")
	}
	now := s.now().UTC()
	publication, err := resolvePatchSchedule(req.ScheduledAt, now)
	if err != nil {
		return nil, err
	}

	var (
		existing    *models.AnnouncementDetail
		batchExists = true
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		detail, err := s.repo.GetByID(gctx, id)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil
			}
			return err
		}
		existing = detail
		return nil
	})
	if req.BatchID.Set && req.BatchID.Value != nil {
		batchID := *req.BatchID.Value
		g.Go(func() error {
			ok, err := s.directory.BatchExists(gctx, batchID)
			if err != nil {
				return err
			}
			batchExists = ok
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load announcement")
	}
	if existing == nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "announcement not found")
	}
	if !viewer.CanMutate(&existing.Announcement) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "you can only modify your own announcements")
	}
	if !batchExists {
		return nil, appErrors.Clone(appErrors.ErrDependencyNotFound, "batch not found")
	}

	patch := models.AnnouncementPatch{
		Title:       req.Title,
		Message:     req.Message,
		BatchIDSet:  req.BatchID.Set,
		BatchID:     req.BatchID.Value,
		Publication: publication,
	}
	if !patch.Empty() {
		if err := s.repo.Update(ctx, id, patch, now); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, appErrors.Clone(appErrors.ErrNotFound, "announcement not found")
			}
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update announcement")
		}
		s.recordAudit(ctx, viewer.ID, models.AuditActionAnnouncementUpdate, id, existing.Announcement, patch)
		s.logger.Info("announcement updated", zap.String("announcement_id", id), zap.String("updated_by", viewer.ID))
	}

	detail, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "announcement not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load announcement")
	}
	views, err := s.annotate(ctx, viewer, []models.AnnouncementDetail{*detail})
	if err != nil {
		return nil, err
	}
	return &views[0], nil
}

// Delete removes an announcement together with its read receipts.
func (s *AnnouncementService) Delete(ctx context.Context, actor *models.JWTClaims, id string) (*dto.DeleteAnnouncementResult, error) {
	viewer, err := actorViewer(actor)
	if err != nil {
		return nil, err
	}
	existing, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !viewer.CanMutate(&existing.Announcement) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "you can only delete your own announcements")
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "announcement not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete announcement")
	}
	s.recordAudit(ctx, viewer.ID, models.AuditActionAnnouncementDelete, id, existing.Announcement, nil)
	s.logger.Info("announcement deleted", zap.String("announcement_id", id), zap.String("deleted_by", viewer.ID))
	return &dto.DeleteAnnouncementResult{ID: id}, nil
}

// MarkAsRead records that the actor has read a published announcement. Repeated calls succeed without change.
func (s *AnnouncementService) MarkAsRead(ctx context.Context, actor *models.JWTClaims, id string) (*dto.MarkAsReadResult, error) {
	viewer, err := s.readerViewer(ctx, actor)
	if err != nil {
		return nil, err
	}
	existing, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !viewer.CanMarkRead(&existing.Announcement) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "announcement cannot be marked as read")
	}
	created, err := s.reads.MarkRead(ctx, models.AnnouncementRead{
		AnnouncementID: id,
		UserID:         viewer.ID,
		ReadAt:         s.now().UTC(),
	})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to mark announcement as read")
	}
	if created {
		s.logger.Debug("announcement read", zap.String("announcement_id", id), zap.String("user_id", viewer.ID))
	}
	return &dto.MarkAsReadResult{AnnouncementID: id, UserID: viewer.ID, Read: true}, nil
}

// ExportReads renders the read receipts of an announcement as CSV or PDF.
func (s *AnnouncementService) ExportReads(ctx context.Context, actor *models.JWTClaims, id, format string) (*dto.ReadReceiptExport, error) {
	viewer, err := actorViewer(actor)
	if err != nil {
		return nil, err
	}
	f, err := export.ParseFormat(format)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "format must be csv or pdf")
	}
	existing, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !viewer.CanMutate(&existing.Announcement) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "you can only export your own announcements")
	}
	readers, err := s.reads.ListReaders(ctx, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load read receipts")
	}

	table := export.Table{
		Title:   fmt.Sprintf("Read receipts: %s", existing.Title),
		Headers: []string{"Name", "Role", "Read At"},
		Rows:    make([][]string, 0, len(readers)),
	}
	for _, r := range readers {
		table.Rows = append(table.Rows, []string{r.FullName, string(r.Role), r.ReadAt.UTC().Format(time.RFC3339)})
	}
	body, err := export.Render(f, table)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render read receipts")
	}
	s.recordAudit(ctx, viewer.ID, models.AuditActionAnnouncementExport, id, nil, map[string]interface{}{"format": f, "rows": len(readers)})

	return &dto.ReadReceiptExport{
		Filename:    fmt.Sprintf("announcement-%s-reads.%s", id, f),
		ContentType: f.ContentType(),
		Body:        body,
	}, nil
}

// actorViewer maps claims to a viewer without resolving student batch membership.
func actorViewer(actor *models.JWTClaims) (Viewer, error) {
	if actor == nil || actor.UserID == "" {
		return Viewer{}, appErrors.ErrUnauthorized
	}
	switch actor.Role {
	case models.RoleSuperAdmin, models.RoleAdmin:
		return AdminViewer(actor.UserID), nil
	case models.RoleTeacher:
		return TeacherViewer(actor.UserID), nil
	case models.RoleStudent:
		return StudentViewer(actor.UserID, nil), nil
	default:
		return Viewer{}, appErrors.Clone(appErrors.ErrForbidden, "role cannot access announcements")
	}
}

func (s *AnnouncementService) readerViewer(ctx context.Context, actor *models.JWTClaims) (Viewer, error) {
	viewer, err := actorViewer(actor)
	if err != nil || viewer.Kind != ViewerStudent {
		return viewer, err
	}
	batchID, err := s.directory.StudentBatchID(ctx, viewer.ID)
	if err != nil {
		return Viewer{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve student batch")
	}
	return StudentViewer(viewer.ID, batchID), nil
}

func (s *AnnouncementService) load(ctx context.Context, id string) (*models.AnnouncementDetail, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "announcement not found")
	}
	detail, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "announcement not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to get announcement")
	}
	return detail, nil
}

func (s *AnnouncementService) ensureBatchExists(ctx context.Context, batchID string) error {
	ok, err := s.directory.BatchExists(ctx, batchID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to verify batch")
	}
	if !ok {
		return appErrors.Clone(appErrors.ErrDependencyNotFound, "batch not found")
	}
	return nil
}

// annotate derives isRead with one lookup for the whole page and readCount per viewer role.
func (s *AnnouncementService) annotate(ctx context.Context, viewer Viewer, items []models.AnnouncementDetail) ([]dto.AnnouncementView, error) {
	views := make([]dto.AnnouncementView, 0, len(items))
	if len(items) == 0 {
		return views, nil
	}
	ids := make([]string, len(items))
	for i := range items {
		ids[i] = items[i].ID
	}
	read, err := s.reads.ReadAnnouncementIDs(ctx, viewer.ID, ids)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load read receipts")
	}
	for i := range items {
		views = append(views, toAnnouncementView(&items[i], viewer, read[items[i].ID]))
	}
	return views, nil
}

func (s *AnnouncementService) recordAudit(ctx context.Context, userID, action, resourceID string, oldValues, newValues interface{}) {
	if s.audit == nil {
		return
	}
	entry := &models.AuditLog{
		UserID:     &userID,
		Action:     action,
		Resource:   "announcement",
		ResourceID: &resourceID,
		OldValues:  auditJSON(oldValues),
		NewValues:  auditJSON(newValues),
	}
	if err := s.audit.CreateAuditLog(ctx, entry); err != nil {
		s.logger.Warn("failed to record announcement audit log", zap.String("action", action), zap.Error(err))
	}
}

func auditJSON(v interface{}) []byte {
	if v == nil {
		return nil
	}
	payload, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return payload
}

func toAnnouncementView(d *models.AnnouncementDetail, viewer Viewer, isRead bool) dto.AnnouncementView {
	view := dto.AnnouncementView{
		ID:          d.ID,
		Title:       d.Title,
		Message:     d.Message,
		IsPublished: d.IsPublished,
		ScheduledAt: d.ScheduledAt,
		PublishedAt: d.PublishedAt,
		BatchID:     d.BatchID,
		CreatedAt:   d.CreatedAt,
		UpdatedAt:   d.UpdatedAt,
		CreatedByID: d.CreatedByID,
		CreatedBy: dto.CreatorSummary{
			ID:   d.CreatedByID,
			Name: d.CreatorName,
			Role: d.CreatorRole,
		},
		IsRead: isRead,
	}
	if d.BatchID != nil && d.BatchYear != nil {
		view.Batch = &dto.BatchSummary{ID: *d.BatchID, BatchYear: *d.BatchYear}
	}
	if viewer.ShowsReadCount() {
		count := d.ReadCount
		view.ReadCount = &count
	}
	return view
}
