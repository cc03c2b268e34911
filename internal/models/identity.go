package models

import (
	"time"

	"github.com/google/uuid"
)

// EmbeddingDim is the dimensionality of face embeddings produced by the
// ArcFace model. Every stored embedding must have exactly this length.
const EmbeddingDim = 512

// Identity is a registered person (employee/student) known to the system.
type Identity struct {
	ID          uuid.UUID   `json:"id" db:"id"`
	Name        string      `json:"name" db:"name"`
	EmployeeID  string      `json:"employee_id" db:"employee_id"`
	Email       string      `json:"email,omitempty" db:"email"`
	Department  string      `json:"department,omitempty" db:"department"`
	Embeddings  [][]float32 `json:"-" db:"-"`
	IsActive    bool        `json:"is_active" db:"is_active"`
	CreatedAt   time.Time   `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at" db:"updated_at"`
}

// FaceEmbedding is one stored embedding for an identity. An identity may own
// several, captured from different angles during enrollment.
type FaceEmbedding struct {
	ID         uuid.UUID `json:"id" db:"id"`
	IdentityID uuid.UUID `json:"identity_id" db:"identity_id"`
	Embedding  []float32 `json:"-" db:"embedding"`
	Quality    float32   `json:"quality" db:"quality"`
	SourceKey  string    `json:"source_key" db:"source_key"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
}
