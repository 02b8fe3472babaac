package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-announcement-api/internal/dto"
	"github.com/noah-isme/sma-announcement-api/internal/middleware"
	"github.com/noah-isme/sma-announcement-api/internal/models"
	appErrors "github.com/noah-isme/sma-announcement-api/pkg/errors"
)

type announcementServiceMock struct {
	lastActor  *models.JWTClaims
	lastID     string
	lastCreate dto.CreateAnnouncementRequest
	lastUpdate dto.UpdateAnnouncementRequest
	lastFormat string
	listResp   []dto.AnnouncementView
	err        error
}

func (m *announcementServiceMock) Create(ctx context.Context, actor *models.JWTClaims, req dto.CreateAnnouncementRequest) (*dto.AnnouncementView, error) {
	m.lastActor, m.lastCreate = actor, req
	if m.err != nil {
		return nil, m.err
	}
	return &dto.AnnouncementView{ID: "new", Title: req.Title, Message: req.Message, IsPublished: true}, nil
}

func (m *announcementServiceMock) List(ctx context.Context, actor *models.JWTClaims) ([]dto.AnnouncementView, error) {
	m.lastActor = actor
	return m.listResp, m.err
}

func (m *announcementServiceMock) Get(ctx context.Context, actor *models.JWTClaims, id string) (*dto.AnnouncementView, error) {
	m.lastActor, m.lastID = actor, id
	if m.err != nil {
		return nil, m.err
	}
	return &dto.AnnouncementView{ID: id}, nil
}

func (m *announcementServiceMock) Update(ctx context.Context, actor *models.JWTClaims, id string, req dto.UpdateAnnouncementRequest) (*dto.AnnouncementView, error) {
	m.lastActor, m.lastID, m.lastUpdate = actor, id, req
	if m.err != nil {
		return nil, m.err
	}
	return &dto.AnnouncementView{ID: id}, nil
}

func (m *announcementServiceMock) Delete(ctx context.Context, actor *models.JWTClaims, id string) (*dto.DeleteAnnouncementResult, error) {
	m.lastActor, m.lastID = actor, id
	if m.err != nil {
		return nil, m.err
	}
	return &dto.DeleteAnnouncementResult{ID: id}, nil
}

func (m *announcementServiceMock) MarkAsRead(ctx context.Context, actor *models.JWTClaims, id string) (*dto.MarkAsReadResult, error) {
	m.lastActor, m.lastID = actor, id
	if m.err != nil {
		return nil, m.err
	}
	return &dto.MarkAsReadResult{AnnouncementID: id, UserID: actor.UserID, Read: true}, nil
}

func (m *announcementServiceMock) ExportReads(ctx context.Context, actor *models.JWTClaims, id, format string) (*dto.ReadReceiptExport, error) {
	m.lastActor, m.lastID, m.lastFormat = actor, id, format
	if m.err != nil {
		return nil, m.err
	}
	return &dto.ReadReceiptExport{Filename: "announcement-" + id + "-reads.csv", ContentType: "text/csv", Body: []byte("Name,Role,Read At\n")}, nil
}

func newAnnouncementRouter(svc *announcementServiceMock, claims *models.JWTClaims) *gin.Engine {
	gin.SetMode(gin.TestMode)
	handler := NewAnnouncementHandler(svc)
	router := gin.New()
	group := router.Group("/announcements", func(c *gin.Context) {
		c.Set(middleware.ContextUserKey, claims)
		c.Next()
	})
	group.GET("", handler.List)
	group.GET("/:id", handler.Get)
	group.POST("", handler.Create)
	group.PATCH("/:id", handler.Update)
	group.DELETE("/:id", handler.Delete)
	group.POST("/:id/read", handler.MarkAsRead)
	group.GET("/:id/reads", handler.ExportReads)
	return router
}

func performRequest(router http.Handler, method, path string, body []byte) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestAnnouncementHandlerCreate(t *testing.T) {
	svc := &announcementServiceMock{}
	teacher := &models.JWTClaims{UserID: "teacher-1", Role: models.RoleTeacher}
	router := newAnnouncementRouter(svc, teacher)

	w := performRequest(router, http.MethodPost, "/announcements", []byte(`{"title":"Exam","message":"Room 4","scheduledAt":"2030-01-01T07:00:00Z"}`))
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Same(t, teacher, svc.lastActor)
	require.NotNil(t, svc.lastCreate.ScheduledAt)
	assert.Equal(t, "2030-01-01T07:00:00Z", *svc.lastCreate.ScheduledAt)
	assert.Nil(t, svc.lastCreate.BatchID)

	var envelope struct {
		Data dto.AnnouncementView `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	assert.Equal(t, "Exam", envelope.Data.Title)
	assert.Equal(t, "no-store", w.Header().Get("Cache-Control"))
}

func TestAnnouncementHandlerCreateInvalidBody(t *testing.T) {
	svc := &announcementServiceMock{}
	router := newAnnouncementRouter(svc, &models.JWTClaims{UserID: "admin", Role: models.RoleAdmin})

	w := performRequest(router, http.MethodPost, "/announcements", []byte(`{"title":`))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Nil(t, svc.lastActor)
}

func TestAnnouncementHandlerUpdateKeepsNullDistinctFromOmitted(t *testing.T) {
	svc := &announcementServiceMock{}
	router := newAnnouncementRouter(svc, &models.JWTClaims{UserID: "admin", Role: models.RoleAdmin})

	w := performRequest(router, http.MethodPatch, "/announcements/ann-1", []byte(`{"scheduledAt":null}`))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ann-1", svc.lastID)
	assert.True(t, svc.lastUpdate.ScheduledAt.IsNull())
	assert.False(t, svc.lastUpdate.BatchID.Set)
	assert.Nil(t, svc.lastUpdate.Title)

	w = performRequest(router, http.MethodPatch, "/announcements/ann-1", []byte(`{"batchId":"b0000000-0000-4000-8000-00000000000b"}`))
	require.Equal(t, http.StatusOK, w.Code)
	assert.False(t, svc.lastUpdate.ScheduledAt.Set)
	require.True(t, svc.lastUpdate.BatchID.Set)
	assert.Equal(t, "b0000000-0000-4000-8000-00000000000b", *svc.lastUpdate.BatchID.Value)
}

func TestAnnouncementHandlerMapsServiceErrors(t *testing.T) {
	cases := []struct {
		err    error
		status int
		code   string
	}{
		{appErrors.Clone(appErrors.ErrNotFound, "announcement not found"), http.StatusNotFound, "NOT_FOUND"},
		{appErrors.Clone(appErrors.ErrForbidden, "you can only modify your own announcements"), http.StatusForbidden, "FORBIDDEN"},
		{appErrors.Clone(appErrors.ErrDependencyNotFound, "batch not found"), http.StatusNotFound, "DEPENDENCY_NOT_FOUND"},
		{appErrors.Clone(appErrors.ErrValidation, "scheduledAt must be an ISO-8601 date-time"), http.StatusBadRequest, "VALIDATION_ERROR"},
	}
	for _, tc := range cases {
		t.Run(tc.code, func(t *testing.T) {
			svc := &announcementServiceMock{err: tc.err}
			router := newAnnouncementRouter(svc, &models.JWTClaims{UserID: "teacher-1", Role: models.RoleTeacher})

			w := performRequest(router, http.MethodPatch, "/announcements/ann-1", []byte(`{"title":"x"}`))
			assert.Equal(t, tc.status, w.Code)
			var envelope struct {
				Error appErrors.Error `json:"error"`
			}
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
			assert.Equal(t, tc.code, envelope.Error.Code)
		})
	}
}

func TestAnnouncementHandlerListGetDeleteAndRead(t *testing.T) {
	published := time.Date(2026, 10, 18, 9, 0, 0, 0, time.UTC)
	svc := &announcementServiceMock{listResp: []dto.AnnouncementView{{ID: "ann-1", IsPublished: true, PublishedAt: &published}}}
	student := &models.JWTClaims{UserID: "student-1", Role: models.RoleStudent}
	router := newAnnouncementRouter(svc, student)

	w := performRequest(router, http.MethodGet, "/announcements", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var list struct {
		Data []map[string]interface{} `json:"data"`
		Meta map[string]interface{}   `json:"meta"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	require.Len(t, list.Data, 1)
	assert.Equal(t, "2026-10-18T09:00:00Z", list.Data[0]["publishedAt"])
	assert.NotContains(t, list.Data[0], "readCount")
	assert.EqualValues(t, 1, list.Meta["total"])

	w = performRequest(router, http.MethodGet, "/announcements/ann-1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ann-1", svc.lastID)

	w = performRequest(router, http.MethodPost, "/announcements/ann-1/read", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"data":{"announcementId":"ann-1","userId":"student-1","read":true}}`, w.Body.String())

	w = performRequest(router, http.MethodDelete, "/announcements/ann-2", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"data":{"id":"ann-2"}}`, w.Body.String())
}

func TestAnnouncementHandlerExportReads(t *testing.T) {
	svc := &announcementServiceMock{}
	router := newAnnouncementRouter(svc, &models.JWTClaims{UserID: "admin", Role: models.RoleAdmin})

	w := performRequest(router, http.MethodGet, "/announcements/ann-1/reads?format=csv", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "csv", svc.lastFormat)
	assert.Equal(t, "text/csv", w.Header().Get("Content-Type"))
	assert.Equal(t, `attachment; filename="announcement-ann-1-reads.csv"`, w.Header().Get("Content-Disposition"))
	assert.Equal(t, "Name,Role,Read At\n", w.Body.String())
}
