package models

import (
	"time"

	"github.com/google/uuid"
)

// FrameTask is the message published to NATS for worker processing.
type FrameTask struct {
	CameraID  uuid.UUID `json:"camera_id"`
	FrameID   uuid.UUID `json:"frame_id"`
	Sequence  uint64    `json:"sequence"`
	Timestamp time.Time `json:"timestamp"`
	FrameRef  string    `json:"frame_ref"` // MinIO object key
}

// AttendanceEvent is the worker's per-face output for one processed frame:
// the recognition result, the liveness state at that moment, and the
// attendance outcome, if any.
type AttendanceEvent struct {
	ID          uuid.UUID   `json:"id"`
	CameraID    uuid.UUID   `json:"camera_id"`
	Timestamp   time.Time   `json:"timestamp"`
	Match       MatchResult `json:"match"`
	Verdict     Verdict     `json:"verdict"`
	Blinks      int         `json:"blinks"`
	Action      Action      `json:"action,omitempty"`
	Outcome     string      `json:"outcome,omitempty"`
	StoreFailed bool        `json:"store_failed,omitempty"`
	SnapshotKey string      `json:"snapshot_key,omitempty"`
	CreatedAt   time.Time   `json:"created_at"`
}
