package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-merit-api/internal/models"
	"github.com/noah-isme/sma-merit-api/internal/service"
	appErrors "github.com/noah-isme/sma-merit-api/pkg/errors"
	"github.com/noah-isme/sma-merit-api/pkg/logger"
)

type validatorStub struct {
	claims *models.JWTClaims
	err    error
	token  string
}

func (v *validatorStub) ValidateToken(ctx context.Context, token string) (*models.JWTClaims, error) {
	v.token = token
	return v.claims, v.err
}

func serve(r *gin.Engine, header string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	r.ServeHTTP(w, req)
	return w
}

func TestJWTMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	auth := &validatorStub{claims: &models.JWTClaims{UserID: "user-1", Role: models.RoleTeacher}}

	var actor string
	r := gin.New()
	r.Use(JWT(auth))
	r.GET("/", func(c *gin.Context) {
		actor = c.GetString(logger.ActorKey)
		c.Status(http.StatusOK)
	})

	assert.Equal(t, http.StatusUnauthorized, serve(r, "").Code)
	assert.Equal(t, http.StatusUnauthorized, serve(r, "Basic abc").Code)
	assert.Equal(t, http.StatusUnauthorized, serve(r, "Bearer ").Code)

	w := serve(r, "bearer token-1")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "token-1", auth.token)
	assert.Equal(t, "user-1", actor)

	auth.err = appErrors.Clone(appErrors.ErrUnauthorized, "token expired")
	w = serve(r, "Bearer token-2")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "token expired")
}

func TestRequireRoles(t *testing.T) {
	gin.SetMode(gin.TestMode)

	build := func(claims *models.JWTClaims) *gin.Engine {
		r := gin.New()
		r.Use(func(c *gin.Context) {
			if claims != nil {
				c.Set(ContextUserKey, claims)
			}
		})
		r.Use(RequireRoles(models.RoleAdmin, models.RoleTeacher))
		r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })
		return r
	}

	assert.Equal(t, http.StatusUnauthorized, serve(build(nil), "").Code)
	assert.Equal(t, http.StatusForbidden, serve(build(&models.JWTClaims{Role: models.RoleStudent}), "").Code)
	assert.Equal(t, http.StatusOK, serve(build(&models.JWTClaims{Role: models.RoleTeacher}), "").Code)
}

func TestUserKeyFallsBackToIP(t *testing.T) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPost, "/", nil)
	c.Request.RemoteAddr = "192.0.2.1:1234"

	assert.Equal(t, "192.0.2.1", UserKey(c))
	c.Set(ContextUserKey, &models.JWTClaims{UserID: "user-9"})
	assert.Equal(t, "user-9", UserKey(c))
}

func TestAuditContextCarriesClientInfo(t *testing.T) {
	gin.SetMode(gin.TestMode)
	store := &captureStore{}
	audit := service.NewAuditService(store, service.AuditConfig{}, nil)

	r := gin.New()
	r.Use(AuditContext())
	r.GET("/", func(c *gin.Context) {
		audit.Record(c.Request.Context(), models.AuditLog{Action: models.AuditActionEventCreate, Resource: "event"})
		c.Status(http.StatusOK)
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "198.51.100.4:5555"
	req.Header.Set("User-Agent", "merit-web")
	r.ServeHTTP(w, req)

	require.Len(t, store.entries, 1)
	assert.Equal(t, "198.51.100.4", store.entries[0].IPAddress)
	assert.Equal(t, "merit-web", store.entries[0].UserAgent)
}

type captureStore struct {
	entries []models.AuditLog
}

func (s *captureStore) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	s.entries = append(s.entries, *log)
	return nil
}

func TestResponseMetaAndMetrics(t *testing.T) {
	gin.SetMode(gin.TestMode)
	metrics := service.NewMetricsService()

	var meta map[string]interface{}
	r := gin.New()
	r.Use(Metrics(metrics), ResponseMeta())
	r.GET("/events/:id", func(c *gin.Context) {
		SetCacheHit(c, true)
		meta = ExtractMeta(c)
		c.Status(http.StatusOK)
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/events/abc", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, meta[cacheHitKey])
	assert.Contains(t, meta, "processing_time_ms")

	body := httptest.NewRecorder()
	r2 := gin.New()
	r2.GET("/metrics", gin.WrapH(metrics.Handler()))
	r2.ServeHTTP(body, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Contains(t, body.Body.String(), `/events/:id`)
	assert.NotContains(t, body.Body.String(), `/events/abc`)
}
