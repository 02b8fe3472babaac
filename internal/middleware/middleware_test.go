package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-announcement-api/internal/models"
	"github.com/noah-isme/sma-announcement-api/internal/service"
	appErrors "github.com/noah-isme/sma-announcement-api/pkg/errors"
)

type stubValidator struct {
	claims *models.JWTClaims
	err    error
	seen   string
}

func (s *stubValidator) ValidateToken(token string) (*models.JWTClaims, error) {
	s.seen = token
	return s.claims, s.err
}

func newProtectedRouter(validator TokenValidator, roles ...models.UserRole) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.GET("/protected", JWT(validator), RequireRoles(roles...), func(c *gin.Context) {
		claims := c.MustGet(ContextUserKey).(*models.JWTClaims)
		c.String(http.StatusOK, claims.UserID)
	})
	return router
}

func request(router http.Handler, authorization string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	if authorization != "" {
		req.Header.Set("Authorization", authorization)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestJWTRequiresBearerToken(t *testing.T) {
	validator := &stubValidator{claims: &models.JWTClaims{UserID: "u1", Role: models.RoleTeacher}}
	router := newProtectedRouter(validator, models.RoleTeacher)

	assert.Equal(t, http.StatusUnauthorized, request(router, "").Code)
	assert.Equal(t, http.StatusUnauthorized, request(router, "Basic abc").Code)
	assert.Equal(t, http.StatusUnauthorized, request(router, "Bearer ").Code)
	assert.Empty(t, validator.seen)

	w := request(router, "bearer token-1")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "u1", w.Body.String())
	assert.Equal(t, "token-1", validator.seen)
}

func TestJWTPropagatesValidatorError(t *testing.T) {
	validator := &stubValidator{err: appErrors.Clone(appErrors.ErrUnauthorized, "invalid token")}
	router := newProtectedRouter(validator, models.RoleTeacher)

	assert.Equal(t, http.StatusUnauthorized, request(router, "Bearer expired").Code)
}

func TestRBACRoles(t *testing.T) {
	cases := []struct {
		role   models.UserRole
		status int
	}{
		{models.RoleAdmin, http.StatusOK},
		{models.RoleSuperAdmin, http.StatusOK},
		{models.RoleTeacher, http.StatusOK},
		{models.RoleStudent, http.StatusForbidden},
	}
	for _, tc := range cases {
		t.Run(string(tc.role), func(t *testing.T) {
			validator := &stubValidator{claims: &models.JWTClaims{UserID: "u1", Role: tc.role}}
			router := newProtectedRouter(validator, models.RoleAdmin, models.RoleTeacher)
			assert.Equal(t, tc.status, request(router, "Bearer t").Code)
		})
	}
}

func TestRBACWithoutClaims(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.GET("/protected", RBAC(models.RoleAdmin), func(c *gin.Context) { c.Status(http.StatusOK) })

	assert.Equal(t, http.StatusUnauthorized, request(router, "").Code)
}

func TestMetricsMiddlewareRecordsRoute(t *testing.T) {
	gin.SetMode(gin.TestMode)
	metrics := service.NewMetricsService()
	router := gin.New()
	router.Use(Metrics(metrics))
	router.GET("/announcements/:id", func(c *gin.Context) {
		time.Sleep(time.Millisecond)
		c.Status(http.StatusNoContent)
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/announcements/abc", nil))
	require.Equal(t, http.StatusNoContent, w.Code)

	count, err := testutil.GatherAndCount(metrics.Registry(), "http_requests_total")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}
