package main

import (
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-merit-api/internal/handler"
	internalmiddleware "github.com/noah-isme/sma-merit-api/internal/middleware"
	"github.com/noah-isme/sma-merit-api/internal/models"
	"github.com/noah-isme/sma-merit-api/internal/service"
	"github.com/noah-isme/sma-merit-api/pkg/config"
	"github.com/noah-isme/sma-merit-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/sma-merit-api/pkg/middleware/cors"
	"github.com/noah-isme/sma-merit-api/pkg/middleware/ratelimit"
	reqidmiddleware "github.com/noah-isme/sma-merit-api/pkg/middleware/requestid"
)

type routeDeps struct {
	auth        *service.AuthService
	metrics     *service.MetricsService
	events      *handler.EventHandler
	permissions *handler.PermissionHandler
	probes      *handler.MetricsHandler
}

func newRouter(cfg *config.Config, logr *zap.Logger, deps routeDeps) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(internalmiddleware.Metrics(deps.metrics))
	r.Use(internalmiddleware.ResponseMeta())

	r.GET("/health", deps.probes.Health)
	r.GET("/ready", deps.probes.Ready)
	r.GET("/metrics", deps.probes.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	limiter := ratelimit.New(cfg.RateLimit.WriteRPS, cfg.RateLimit.WriteBurst)
	writeLimit := ratelimit.Middleware(limiter, internalmiddleware.UserKey)

	api := r.Group(cfg.APIPrefix)
	api.Use(internalmiddleware.JWT(deps.auth), internalmiddleware.AuditContext())

	events := api.Group("/events")
	events.GET("/pending", deps.events.Pending)
	events.GET("/:id", deps.events.Get)
	events.POST("", writeLimit, deps.events.Create)
	events.POST("/bulk", writeLimit, deps.events.CreateBatch)
	events.POST("/sync", writeLimit, deps.events.Sync)
	events.POST("/approve", writeLimit, deps.events.Approve)
	events.PUT("/:id", writeLimit, deps.events.Update)
	events.PATCH("/:id", writeLimit, deps.events.Update)
	events.DELETE("/:id", writeLimit, deps.events.Delete)
	events.POST("/:id/review", writeLimit, deps.events.Review)

	perms := api.Group("/student-permissions")
	perms.GET("/check/:studentId", deps.permissions.Check)

	staff := perms.Group("", internalmiddleware.RequireRoles(models.RoleSuperAdmin, models.RoleAdmin, models.RoleTeacher))
	staff.GET("", deps.permissions.List)
	staff.POST("", writeLimit, deps.permissions.Grant)
	staff.PATCH("/:id", writeLimit, deps.permissions.Update)
	staff.DELETE("/:id", writeLimit, deps.permissions.Revoke)

	return r
}
