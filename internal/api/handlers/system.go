package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/your-org/facegate/internal/observability"
	"github.com/your-org/facegate/internal/queue"
	"github.com/your-org/facegate/internal/storage"
	"github.com/your-org/facegate/pkg/dto"
)

type SystemHandler struct {
	db        *storage.PostgresStore
	minio     *storage.MinIOStore
	producer  *queue.Producer
	collector *observability.Collector
}

func NewSystemHandler(db *storage.PostgresStore, minio *storage.MinIOStore, producer *queue.Producer, collector *observability.Collector) *SystemHandler {
	return &SystemHandler{db: db, minio: minio, producer: producer, collector: collector}
}

func (h *SystemHandler) Healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *SystemHandler) Readyz(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()

	checks := map[string]string{}
	healthy := true

	if err := h.db.Ping(ctx); err != nil {
		checks["postgres"] = err.Error()
		healthy = false
	} else {
		checks["postgres"] = "ok"
	}

	if err := h.minio.Ping(ctx); err != nil {
		checks["minio"] = err.Error()
		healthy = false
	} else {
		checks["minio"] = "ok"
	}

	if err := h.producer.Ping(); err != nil {
		checks["nats"] = err.Error()
		healthy = false
	} else {
		checks["nats"] = "ok"
	}

	status := http.StatusOK
	if !healthy {
		status = http.StatusServiceUnavailable
	}

	c.JSON(status, dto.HealthResponse{
		Status: map[bool]string{true: "ready", false: "not ready"}[healthy],
		Checks: checks,
		Time:   time.Now(),
	})
}

// Stats returns the aggregate attempt counters kept by the collector.
func (h *SystemHandler) Stats(c *gin.Context) {
	if h.collector == nil {
		c.JSON(http.StatusOK, dto.StatsResponse{})
		return
	}
	s := h.collector.CurrentStats()
	c.JSON(http.StatusOK, dto.StatsResponse{
		TotalAttempts:   s.TotalAttempts,
		SuccessfulAuths: s.SuccessfulAuths,
		FailedAuths:     s.FailedAuths,
		Accuracy:        s.Accuracy,
	})
}
