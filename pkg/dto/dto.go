// Package dto holds the request/response and WebSocket message shapes
// shared between the API and its clients.
package dto

import (
	"encoding/json"
	"time"

	"github.com/your-org/facegate/internal/models"
)

// WSMessage is the envelope for everything pushed over the WebSocket.
// Type is "tick" for render descriptors and "session" for lifecycle
// events; clients may subscribe to one channel or both.
type WSMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

const (
	WSTypeTick    = "tick"
	WSTypeSession = "session"
)

type CreateUserRequest struct {
	Name string      `json:"name" binding:"required"`
	Role models.Role `json:"role" binding:"required"`
}

type UpdateUserRequest struct {
	Name string      `json:"name" binding:"required"`
	Role models.Role `json:"role" binding:"required"`
}

type AddFaceResponse struct {
	FaceID    int64   `json:"face_id"`
	UserID    int64   `json:"user_id"`
	Duplicate bool    `json:"duplicate"`
	MatchName string  `json:"match_name,omitempty"`
	Score     float32 `json:"score,omitempty"`
}

type AccessLogPage struct {
	Logs   []models.AccessLog `json:"logs"`
	Total  int                `json:"total"`
	Limit  int                `json:"limit"`
	Offset int                `json:"offset"`
}

type UnauthorizedPage struct {
	Attempts []models.UnauthorizedAttempt `json:"attempts"`
	Total    int                          `json:"total"`
	Limit    int                          `json:"limit"`
	Offset   int                          `json:"offset"`
}

type PurgeResponse struct {
	Deleted int64 `json:"deleted"`
}

type StatsResponse struct {
	TotalAttempts   int     `json:"total_attempts"`
	SuccessfulAuths int     `json:"successful_auths"`
	FailedAuths     int     `json:"failed_auths"`
	Accuracy        float64 `json:"accuracy"`
}

type HealthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
	Time   time.Time         `json:"time"`
}
