package handlers

import (
	"encoding/csv"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/your-org/facegate/internal/storage"
	"github.com/your-org/facegate/pkg/dto"
)

type LogHandler struct {
	db    *storage.PostgresStore
	minio *storage.MinIOStore
}

func NewLogHandler(db *storage.PostgresStore, minio *storage.MinIOStore) *LogHandler {
	return &LogHandler{db: db, minio: minio}
}

func parseTimeRange(c *gin.Context) (from, to *time.Time, err error) {
	if v := c.Query("from"); v != "" {
		t, perr := time.Parse(time.RFC3339, v)
		if perr != nil {
			return nil, nil, fmt.Errorf("invalid from: %w", perr)
		}
		from = &t
	}
	if v := c.Query("to"); v != "" {
		t, perr := time.Parse(time.RFC3339, v)
		if perr != nil {
			return nil, nil, fmt.Errorf("invalid to: %w", perr)
		}
		to = &t
	}
	return from, to, nil
}

func (h *LogHandler) ListAccessLogs(c *gin.Context) {
	from, to, err := parseTimeRange(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var userID *int64
	if v := c.Query("user_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user_id"})
			return
		}
		userID = &id
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	logs, total, err := h.db.QueryAccessLogs(c.Request.Context(), from, to, userID, limit, offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, dto.AccessLogPage{
		Logs:   logs,
		Total:  total,
		Limit:  limit,
		Offset: offset,
	})
}

// ExportAccessLogsCSV streams the filtered logs as a CSV download.
func (h *LogHandler) ExportAccessLogsCSV(c *gin.Context) {
	from, to, err := parseTimeRange(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	logs, _, err := h.db.QueryAccessLogs(c.Request.Context(), from, to, nil, 500, 0)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.Header("Content-Type", "text/csv")
	c.Header("Content-Disposition", `attachment; filename="access_logs.csv"`)

	w := csv.NewWriter(c.Writer)
	_ = w.Write([]string{"id", "timestamp", "user_id", "user_name", "status", "confidence"})
	for _, l := range logs {
		conf := ""
		if l.Confidence != nil {
			conf = fmt.Sprintf("%.2f", *l.Confidence)
		}
		_ = w.Write([]string{
			strconv.FormatInt(l.ID, 10),
			l.Timestamp.Format(time.RFC3339),
			strconv.FormatInt(l.UserID, 10),
			l.UserName,
			l.Status,
			conf,
		})
	}
	w.Flush()
}

// PurgeAccessLogs deletes all access log rows and their snapshots.
func (h *LogHandler) PurgeAccessLogs(c *gin.Context) {
	deleted, err := h.db.PurgeAccessLogs(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	// Best-effort snapshot cleanup; rows are already gone.
	if keys, err := h.minio.ListObjects(c.Request.Context(), "access/"); err == nil && len(keys) > 0 {
		_ = h.minio.DeleteObjects(c.Request.Context(), keys)
	}

	c.JSON(http.StatusOK, dto.PurgeResponse{Deleted: deleted})
}

func (h *LogHandler) ListUnauthorized(c *gin.Context) {
	from, to, err := parseTimeRange(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	attempts, total, err := h.db.QueryUnauthorizedAttempts(c.Request.Context(), from, to, limit, offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, dto.UnauthorizedPage{
		Attempts: attempts,
		Total:    total,
		Limit:    limit,
		Offset:   offset,
	})
}

// DeleteUnauthorized removes one attempt row and its stored snapshot.
func (h *LogHandler) DeleteUnauthorized(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid attempt id"})
		return
	}

	key, err := h.db.DeleteUnauthorizedAttempt(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}

	// Best-effort snapshot cleanup; the row is already gone.
	if key != "" {
		_ = h.minio.DeleteObject(c.Request.Context(), key)
	}

	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}

// Snapshot serves the stored JPEG for a log row by its object key.
func (h *LogHandler) Snapshot(c *gin.Context) {
	key := c.Query("key")
	if key == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "key required"})
		return
	}

	data, err := h.minio.GetObject(c.Request.Context(), key)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "snapshot not found"})
		return
	}
	c.Data(http.StatusOK, "image/jpeg", data)
}
