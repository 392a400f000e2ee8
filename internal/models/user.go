package models

import "time"

type Role string

const (
	RoleUser  Role = "USER"
	RoleAdmin Role = "ADMIN"
)

// Valid reports whether r is one of the two known roles.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAdmin
}

// User is an enrolled identity. IDs are stable integers assigned at
// enrollment; the engine only ever reads users.
type User struct {
	ID        int64     `json:"id" db:"id"`
	Name      string    `json:"name" db:"name"`
	Role      Role      `json:"role" db:"role"`
	FaceCount int       `json:"face_count" db:"face_count"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// EmbeddingSample is one stored face embedding. Vectors are
// L2-normalized at write time so matching reduces to a dot product.
type EmbeddingSample struct {
	ID        int64     `json:"id" db:"id"`
	UserID    int64     `json:"user_id" db:"user_id"`
	Embedding []float32 `json:"-" db:"embedding"`
	SourceKey string    `json:"source_key" db:"source_key"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}
