package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-announcement-api/internal/dto"
	"github.com/noah-isme/sma-announcement-api/internal/models"
	appErrors "github.com/noah-isme/sma-announcement-api/pkg/errors"
	"github.com/noah-isme/sma-announcement-api/pkg/response"
)

type announcementService interface {
	Create(ctx context.Context, actor *models.JWTClaims, req dto.CreateAnnouncementRequest) (*dto.AnnouncementView, error)
	List(ctx context.Context, actor *models.JWTClaims) ([]dto.AnnouncementView, error)
	Get(ctx context.Context, actor *models.JWTClaims, id string) (*dto.AnnouncementView, error)
	Update(ctx context.Context, actor *models.JWTClaims, id string, req dto.UpdateAnnouncementRequest) (*dto.AnnouncementView, error)
	Delete(ctx context.Context, actor *models.JWTClaims, id string) (*dto.DeleteAnnouncementResult, error)
	MarkAsRead(ctx context.Context, actor *models.JWTClaims, id string) (*dto.MarkAsReadResult, error)
	ExportReads(ctx context.Context, actor *models.JWTClaims, id, format string) (*dto.ReadReceiptExport, error)
}

// AnnouncementHandler exposes announcement endpoints.
type AnnouncementHandler struct {
	service announcementService
}

// NewAnnouncementHandler constructs the handler.
func NewAnnouncementHandler(service announcementService) *AnnouncementHandler {
	return &AnnouncementHandler{service: service}
}

// List godoc
// @Summary List announcements visible to the caller
// @Tags Announcements
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Envelope
// @Router /announcements [get]
func (h *AnnouncementHandler) List(c *gin.Context) {
	items, err := h.service.List(c.Request.Context(), claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, map[string]interface{}{"total": len(items)})
}

// Get godoc
// @Summary Get announcement
// @Tags Announcements
// @Produce json
// @Security BearerAuth
// @Param id path string true "Announcement ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /announcements/{id} [get]
func (h *AnnouncementHandler) Get(c *gin.Context) {
	item, err := h.service.Get(c.Request.Context(), claimsFromContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, item)
}

// Create godoc
// @Summary Create announcement
// @Description A scheduledAt in the future keeps the announcement unpublished until the scheduler releases it.
// @Tags Announcements
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param payload body dto.CreateAnnouncementRequest true "Announcement payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /announcements [post]
func (h *AnnouncementHandler) Create(c *gin.Context) {
	var req dto.CreateAnnouncementRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid announcement payload"))
		return
	}
	item, err := h.service.Create(c.Request.Context(), claimsFromContext(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, item)
}

// Update godoc
// @Summary Partially update announcement
// @Description Only keys present in the body are applied. scheduledAt null publishes now, batchId null makes the announcement global.
// @Tags Announcements
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Announcement ID"
// @Param payload body dto.UpdateAnnouncementRequest true "Partial announcement payload"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /announcements/{id} [patch]
func (h *AnnouncementHandler) Update(c *gin.Context) {
	var req dto.UpdateAnnouncementRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid announcement payload"))
		return
	}
	item, err := h.service.Update(c.Request.Context(), claimsFromContext(c), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, item)
}

// Delete godoc
// @Summary Delete announcement
// @Tags Announcements
// @Produce json
// @Security BearerAuth
// @Param id path string true "Announcement ID"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /announcements/{id} [delete]
func (h *AnnouncementHandler) Delete(c *gin.Context) {
	result, err := h.service.Delete(c.Request.Context(), claimsFromContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result)
}

// MarkAsRead godoc
// @Summary Mark announcement as read
// @Tags Announcements
// @Produce json
// @Security BearerAuth
// @Param id path string true "Announcement ID"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /announcements/{id}/read [post]
func (h *AnnouncementHandler) MarkAsRead(c *gin.Context) {
	result, err := h.service.MarkAsRead(c.Request.Context(), claimsFromContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result)
}

// ExportReads godoc
// @Summary Download read receipts
// @Tags Announcements
// @Produce text/csv
// @Produce application/pdf
// @Security BearerAuth
// @Param id path string true "Announcement ID"
// @Param format query string false "csv or pdf" default(csv)
// @Success 200 {file} file
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /announcements/{id}/reads [get]
func (h *AnnouncementHandler) ExportReads(c *gin.Context) {
	doc, err := h.service.ExportReads(c.Request.Context(), claimsFromContext(c), c.Param("id"), c.Query("format"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Attachment(c, doc.Filename, doc.ContentType, doc.Body)
}
