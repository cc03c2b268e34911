package models

import (
	"time"

	"github.com/google/uuid"
)

type CameraType string

const (
	CameraTypeRTSP CameraType = "rtsp"
	CameraTypeHTTP CameraType = "http"
)

type CameraStatus string

const (
	CameraStatusStopped CameraStatus = "stopped"
	CameraStatusRunning CameraStatus = "running"
	CameraStatusError   CameraStatus = "error"
)

// Camera is a registered attendance camera. Each running camera owns exactly
// one recognition+liveness session in the worker.
type Camera struct {
	ID           uuid.UUID    `json:"id" db:"id"`
	Name         string       `json:"name" db:"name"`
	URL          string       `json:"url" db:"url"`
	CameraType   CameraType   `json:"camera_type" db:"camera_type"`
	Location     string       `json:"location,omitempty" db:"location"`
	FPS          int          `json:"fps" db:"fps"`
	Action       Action       `json:"action" db:"action"`
	Status       CameraStatus `json:"status" db:"status"`
	ErrorMessage string       `json:"error_message,omitempty" db:"error_message"`
	CreatedAt    time.Time    `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time    `json:"updated_at" db:"updated_at"`
}
