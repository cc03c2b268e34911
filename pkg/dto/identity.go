package dto

import "github.com/google/uuid"

type CreateIdentityRequest struct {
	Name       string `json:"name" binding:"required"`
	EmployeeID string `json:"employee_id" binding:"required"`
	Email      string `json:"email"`
	Department string `json:"department"`
}

type UpdateIdentityRequest struct {
	Name       string `json:"name" binding:"required"`
	Email      string `json:"email"`
	Department string `json:"department"`
}

type IdentityResponse struct {
	ID         uuid.UUID `json:"id"`
	Name       string    `json:"name"`
	EmployeeID string    `json:"employee_id"`
	Email      string    `json:"email,omitempty"`
	Department string    `json:"department,omitempty"`
	IsActive   bool      `json:"is_active"`
	FaceCount  int       `json:"face_count"`
	CreatedAt  string    `json:"created_at"`
}

type FaceEmbeddingResponse struct {
	ID         uuid.UUID `json:"id"`
	IdentityID uuid.UUID `json:"identity_id"`
	Quality    float32   `json:"quality"`
	SourceKey  string    `json:"source_key"`
	CreatedAt  string    `json:"created_at"`
}

// IdentifyResult is one hit from the photo identification endpoint.
type IdentifyResult struct {
	IdentityID uuid.UUID `json:"identity_id"`
	Name       string    `json:"name"`
	Distance   float32   `json:"distance"`
	Confidence float32   `json:"confidence"`
}
