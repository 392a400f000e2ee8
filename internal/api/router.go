package api

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/your-org/facegate/internal/alert"
	"github.com/your-org/facegate/internal/api/handlers"
	"github.com/your-org/facegate/internal/api/ws"
	"github.com/your-org/facegate/internal/auth"
	"github.com/your-org/facegate/internal/observability"
	"github.com/your-org/facegate/internal/queue"
	"github.com/your-org/facegate/internal/storage"
)

type RouterConfig struct {
	APIKey     string
	DB         *storage.PostgresStore
	MinIO      *storage.MinIOStore
	Producer   *queue.Producer
	Hub        *ws.Hub
	Engine     *auth.Engine
	Controller *auth.Controller
	Mailer     *alert.Mailer
	Collector  *observability.Collector
	// EmbedFn extracts a face embedding from image bytes (from vision pipeline).
	EmbedFn func(imageData []byte) ([]float32, error)
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(LoggingMiddleware())
	r.Use(cors.Default())

	// System endpoints (no auth)
	systemH := handlers.NewSystemHandler(cfg.DB, cfg.MinIO, cfg.Producer, cfg.Collector)
	r.GET("/healthz", systemH.Healthz)
	r.GET("/readyz", systemH.Readyz)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// API v1 (with auth)
	v1 := r.Group("/v1")
	v1.Use(APIKeyMiddleware(cfg.APIKey))

	// WebSocket: ?channel=tick or ?channel=session to filter
	v1.GET("/ws", cfg.Hub.HandleWS)

	// Users & enrollment
	userH := handlers.NewUserHandler(cfg.DB, cfg.MinIO)
	userH.EmbedFn = cfg.EmbedFn
	v1.POST("/users", userH.Create)
	v1.GET("/users", userH.List)
	v1.GET("/users/admin-exists", userH.AdminExists)
	v1.GET("/users/:id", userH.Get)
	v1.PUT("/users/:id", userH.Update)
	v1.DELETE("/users/:id", userH.Delete)
	v1.POST("/users/:id/faces", userH.AddFace)
	v1.DELETE("/users/:id/faces/:faceId", userH.DeleteFace)

	// Audit panels
	logH := handlers.NewLogHandler(cfg.DB, cfg.MinIO)
	v1.GET("/access-logs", logH.ListAccessLogs)
	v1.GET("/access-logs/export", logH.ExportAccessLogsCSV)
	v1.DELETE("/access-logs", logH.PurgeAccessLogs)
	v1.GET("/unauthorized", logH.ListUnauthorized)
	v1.DELETE("/unauthorized/:id", logH.DeleteUnauthorized)
	v1.GET("/snapshot", logH.Snapshot)

	// Session control
	sessionH := handlers.NewSessionHandler(cfg.Engine, cfg.Controller)
	v1.GET("/session", sessionH.Status)
	v1.POST("/session/logout", sessionH.Logout)
	v1.POST("/session/fail", sessionH.Fail)

	// Notification settings
	settingsH := handlers.NewSettingsHandler(cfg.Mailer)
	v1.GET("/settings/notifications", settingsH.Get)
	v1.PUT("/settings/notifications", settingsH.Update)
	v1.POST("/settings/notifications/test", settingsH.Test)

	// Aggregate stats
	v1.GET("/stats", systemH.Stats)

	return r
}
