package models

import "github.com/google/uuid"

// Detection is one face found in a frame by the embedder: bounding box,
// embedding vector and the eye landmark sets used for liveness. Ephemeral,
// never persisted.
type Detection struct {
	Box        Box          `json:"box"`
	Confidence float32      `json:"confidence"`
	Embedding  []float32    `json:"embedding"`
	LeftEye    EyeLandmarks `json:"left_eye"`
	RightEye   EyeLandmarks `json:"right_eye"`
}

// MatchResult is the outcome of matching one detection against the identity
// index. IdentityID is nil when no known identity is within tolerance; such
// faces carry a session-local PseudoID instead.
type MatchResult struct {
	IdentityID *uuid.UUID `json:"identity_id,omitempty"`
	Name       string     `json:"name,omitempty"`
	PseudoID   string     `json:"pseudo_id,omitempty"`
	Distance   float32    `json:"distance"`
	Confidence float32    `json:"confidence"`
	Box        Box        `json:"box"`
	// Stale marks a result replayed from the skip-frame cache. Stale results
	// are feedback-only: they must never drive an attendance transition.
	Stale bool `json:"stale"`
}

// Matched reports whether the result resolved to a known identity.
func (m MatchResult) Matched() bool { return m.IdentityID != nil }
