package dto

import (
	"encoding/json"

	"github.com/google/uuid"
)

type CreateCameraRequest struct {
	Name       string `json:"name" binding:"required"`
	URL        string `json:"url" binding:"required"`
	CameraType string `json:"camera_type" binding:"required"`
	Location   string `json:"location"`
	FPS        int    `json:"fps"`
	Action     string `json:"action"`
}

type CameraResponse struct {
	ID           uuid.UUID `json:"id"`
	Name         string    `json:"name"`
	URL          string    `json:"url"`
	CameraType   string    `json:"camera_type"`
	Location     string    `json:"location,omitempty"`
	FPS          int       `json:"fps"`
	Action       string    `json:"action"`
	Status       string    `json:"status"`
	ErrorMessage string    `json:"error_message,omitempty"`
	CreatedAt    string    `json:"created_at"`
	UpdatedAt    string    `json:"updated_at"`
}

type CameraListResponse struct {
	Cameras []CameraResponse `json:"cameras"`
	Total   int              `json:"total"`
}

// WSEvent is a WebSocket message for real-time delivery. Data carries the
// marshalled attendance event; CameraID is duplicated at the top level so
// the hub can filter without decoding the payload.
type WSEvent struct {
	Type     string          `json:"type"` // attendance_event, camera_status
	CameraID uuid.UUID       `json:"camera_id"`
	Data     json.RawMessage `json:"data,omitempty"`
	Status   string          `json:"status,omitempty"`
}
