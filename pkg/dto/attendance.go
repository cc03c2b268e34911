package dto

import "github.com/google/uuid"

type RecordResponse struct {
	ID                 uuid.UUID `json:"id"`
	IdentityID         uuid.UUID `json:"identity_id"`
	Name               string    `json:"name"`
	EmployeeID         string    `json:"employee_id"`
	Date               string    `json:"date"`
	Status             string    `json:"status"`
	CheckInTime        *string   `json:"check_in_time,omitempty"`
	CheckOutTime       *string   `json:"check_out_time,omitempty"`
	CheckInConfidence  float32   `json:"check_in_confidence,omitempty"`
	CheckOutConfidence float32   `json:"check_out_confidence,omitempty"`
}

type RecordListResponse struct {
	Records []RecordResponse `json:"records"`
	Total   int              `json:"total"`
}

type RecordQuery struct {
	IdentityID string `form:"identity_id"`
	From       string `form:"from"`
	To         string `form:"to"`
	Limit      int    `form:"limit"`
	Offset     int    `form:"offset"`
}

type LogEntryResponse struct {
	ID         uuid.UUID `json:"id"`
	IdentityID uuid.UUID `json:"identity_id"`
	Timestamp  string    `json:"timestamp"`
	Action     string    `json:"action"`
	Outcome    string    `json:"outcome"`
	Confidence float32   `json:"confidence"`
}

type LogListResponse struct {
	Entries []LogEntryResponse `json:"entries"`
	Total   int                `json:"total"`
}

type SummaryResponse struct {
	Date      string `json:"date"`
	Total     int    `json:"total"`
	CheckedIn int    `json:"checked_in"`
	Completed int    `json:"completed"`
	NoRecord  int    `json:"no_record"`
}

// StatusResponse is one identity's position in today's attendance flow.
type StatusResponse struct {
	IdentityID uuid.UUID       `json:"identity_id"`
	Date       string          `json:"date"`
	Status     string          `json:"status"`
	Record     *RecordResponse `json:"record,omitempty"`
}
