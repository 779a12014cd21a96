package main

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-merit-api/internal/handler"
	"github.com/noah-isme/sma-merit-api/internal/service"
	"github.com/noah-isme/sma-merit-api/pkg/config"
)

func testRouter(env string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	cfg := &config.Config{Env: env, APIPrefix: "/api/v1"}
	metrics := service.NewMetricsService()
	return newRouter(cfg, zap.NewNop(), routeDeps{
		auth:        service.NewAuthService(nil, nil, service.AuthConfig{AccessTokenSecret: "secret"}),
		metrics:     metrics,
		events:      handler.NewEventHandler(nil, nil),
		permissions: handler.NewPermissionHandler(nil),
		probes:      handler.NewMetricsHandler(metrics, nil),
	})
}

func TestRouterRegistersMeritRoutes(t *testing.T) {
	r := testRouter(config.EnvDevelopment)

	registered := map[string]bool{}
	for _, route := range r.Routes() {
		registered[route.Method+" "+route.Path] = true
	}

	for _, want := range []string{
		"POST /api/v1/events",
		"POST /api/v1/events/bulk",
		"POST /api/v1/events/sync",
		"POST /api/v1/events/approve",
		"GET /api/v1/events/pending",
		"GET /api/v1/events/:id",
		"PUT /api/v1/events/:id",
		"PATCH /api/v1/events/:id",
		"DELETE /api/v1/events/:id",
		"POST /api/v1/events/:id/review",
		"GET /api/v1/student-permissions",
		"POST /api/v1/student-permissions",
		"PATCH /api/v1/student-permissions/:id",
		"DELETE /api/v1/student-permissions/:id",
		"GET /api/v1/student-permissions/check/:studentId",
		"GET /health",
		"GET /ready",
		"GET /metrics",
		"GET /docs/*any",
	} {
		assert.True(t, registered[want], want)
	}
}

func TestRouterHidesDocsInProduction(t *testing.T) {
	r := testRouter(config.EnvProduction)
	for _, route := range r.Routes() {
		assert.NotEqual(t, "/docs/*any", route.Path)
	}
}

func TestRouterRequiresBearerToken(t *testing.T) {
	r := testRouter(config.EnvDevelopment)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/events/pending", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
