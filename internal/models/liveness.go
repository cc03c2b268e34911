package models

import "time"

// LivenessState is a read-only snapshot of a liveness session's counters,
// exposed for per-frame UI feedback.
type LivenessState struct {
	SessionStart  time.Time     `json:"session_start"`
	Closing       bool          `json:"closing"`
	ClosedFrames  int           `json:"closed_frames"`
	TotalBlinks   int           `json:"total_blinks"`
	LastBlinkTime time.Time     `json:"last_blink_time,omitempty"`
	Elapsed       time.Duration `json:"elapsed"`
}
