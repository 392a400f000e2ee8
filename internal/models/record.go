package models

import "time"

// AccessLog records one successful verification. The snapshot JPEG is
// stored in the object store; the row carries its key.
type AccessLog struct {
	ID          int64     `json:"id" db:"id"`
	Timestamp   time.Time `json:"timestamp" db:"timestamp"`
	UserID      int64     `json:"user_id" db:"user_id"`
	UserName    string    `json:"user_name,omitempty" db:"user_name"`
	Status      string    `json:"status" db:"status"`
	SnapshotKey string    `json:"snapshot_key,omitempty" db:"snapshot_key"`
	Confidence  *float32  `json:"confidence,omitempty" db:"confidence"`
}

// UnauthorizedAttempt records a sustained low-confidence presence.
type UnauthorizedAttempt struct {
	ID          int64     `json:"id" db:"id"`
	Timestamp   time.Time `json:"timestamp" db:"timestamp"`
	SnapshotKey string    `json:"snapshot_key" db:"snapshot_key"`
	Confidence  float32   `json:"confidence" db:"confidence"`
}

// Side-effect job kinds published to the work queue.
const (
	JobAccessLog    = "access_log"
	JobUnauthorized = "unauthorized"
	JobAlert        = "alert"
)

// SideEffectJob is the message published to NATS for the worker. The
// engine fires these and forgets them; delivery failures never reach
// the decision logic.
type SideEffectJob struct {
	Kind       string    `json:"kind"`
	Timestamp  time.Time `json:"timestamp"`
	UserID     int64     `json:"user_id,omitempty"`
	Status     string    `json:"status,omitempty"`
	Image      []byte    `json:"image,omitempty"`
	Confidence float32   `json:"confidence"`
}

// SessionEvent is published on verification, handoff, and logout.
type SessionEvent struct {
	Type      string    `json:"type"` // session.verified, session.handoff, session.logout, session.error
	Timestamp time.Time `json:"timestamp"`
	UserID    int64     `json:"user_id,omitempty"`
	UserName  string    `json:"user_name,omitempty"`
	Role      Role      `json:"role,omitempty"`
	Message   string    `json:"message,omitempty"`
}
