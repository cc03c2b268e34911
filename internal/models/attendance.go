package models

import (
	"time"

	"github.com/google/uuid"
)

// Action is a requested attendance transition.
type Action string

const (
	ActionCheckIn  Action = "check_in"
	ActionCheckOut Action = "check_out"
	// ActionAuto resolves to check_in before local noon and check_out after.
	ActionAuto Action = "auto"
)

// DayStatus describes where an identity stands in today's attendance flow.
type DayStatus string

const (
	StatusNoRecord  DayStatus = "no_record"
	StatusPending   DayStatus = "pending"
	StatusCheckedIn DayStatus = "checked_in"
	StatusCompleted DayStatus = "completed"
)

// Verdict is a liveness session decision. Pending means the session has not
// gathered enough evidence either way and must not be treated as live or
// not-live.
type Verdict string

const (
	VerdictLive    Verdict = "live"
	VerdictNotLive Verdict = "not_live"
	VerdictPending Verdict = "pending"
)

// DayRecord is the unique per-identity-per-date attendance row. Exactly one
// exists per (identity, date) once the identity checks in; check-out mutates
// the same row.
type DayRecord struct {
	ID                 uuid.UUID  `json:"id" db:"id"`
	IdentityID         uuid.UUID  `json:"identity_id" db:"identity_id"`
	Date               time.Time  `json:"date" db:"date"`
	CheckInTime        *time.Time `json:"check_in_time,omitempty" db:"check_in_time"`
	CheckOutTime       *time.Time `json:"check_out_time,omitempty" db:"check_out_time"`
	CheckInConfidence  float32    `json:"check_in_confidence" db:"check_in_confidence"`
	CheckOutConfidence float32    `json:"check_out_confidence" db:"check_out_confidence"`
}

// Status derives the day state from which timestamps are set.
func (r *DayRecord) Status() DayStatus {
	switch {
	case r == nil:
		return StatusNoRecord
	case r.CheckInTime != nil && r.CheckOutTime != nil:
		return StatusCompleted
	case r.CheckInTime != nil:
		return StatusCheckedIn
	default:
		return StatusPending
	}
}

// LogEntry is one row of the append-only attendance audit log. Distinct from
// DayRecord: every attempt lands here, whether or not it changed state.
type LogEntry struct {
	ID         uuid.UUID `json:"id" db:"id"`
	IdentityID uuid.UUID `json:"identity_id" db:"identity_id"`
	Timestamp  time.Time `json:"timestamp" db:"timestamp"`
	Action     Action    `json:"action" db:"action"`
	Outcome    string    `json:"outcome" db:"outcome"`
	Confidence float32   `json:"confidence" db:"confidence"`
}
