package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/your-org/faceclock/internal/storage"
	"github.com/your-org/faceclock/pkg/dto"
)

type AttendanceHandler struct {
	db *storage.PostgresStore
}

func NewAttendanceHandler(db *storage.PostgresStore) *AttendanceHandler {
	return &AttendanceHandler{db: db}
}

// ListRecords returns day records, filterable by identity and date range.
func (h *AttendanceHandler) ListRecords(c *gin.Context) {
	var q dto.RecordQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var identityID *uuid.UUID
	if q.IdentityID != "" {
		id, err := uuid.Parse(q.IdentityID)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid identity_id"})
			return
		}
		identityID = &id
	}

	from, to, err := parseDateRange(q.From, q.To)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	records, total, err := h.db.QueryRecords(c.Request.Context(), identityID, from, to, q.Limit, q.Offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	resp := make([]dto.RecordResponse, 0, len(records))
	for _, r := range records {
		resp = append(resp, recordToResponse(r))
	}

	c.JSON(http.StatusOK, dto.RecordListResponse{Records: resp, Total: total})
}

// Status reports one identity's current day status.
func (h *AttendanceHandler) Status(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid identity id"})
		return
	}

	date := today()
	if d := c.Query("date"); d != "" {
		parsed, err := time.ParseInLocation("2006-01-02", d, time.Local)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid date, expected YYYY-MM-DD"})
			return
		}
		date = parsed
	}

	rec, err := h.db.GetDayRecord(c.Request.Context(), id, date)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	resp := dto.StatusResponse{
		IdentityID: id,
		Date:       date.Format("2006-01-02"),
		Status:     string(rec.Status()),
	}
	if rec != nil {
		rr := recordToResponse(storage.RecordRow{DayRecord: *rec})
		resp.Record = &rr
	}

	c.JSON(http.StatusOK, resp)
}

// Summary returns per-status counts for one date.
func (h *AttendanceHandler) Summary(c *gin.Context) {
	date := today()
	if d := c.Query("date"); d != "" {
		parsed, err := time.ParseInLocation("2006-01-02", d, time.Local)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid date, expected YYYY-MM-DD"})
			return
		}
		date = parsed
	}

	sum, err := h.db.SummarizeDay(c.Request.Context(), date)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, dto.SummaryResponse{
		Date:      sum.Date.Format("2006-01-02"),
		Total:     sum.Total,
		CheckedIn: sum.CheckedIn,
		Completed: sum.Completed,
		NoRecord:  sum.NoRecord,
	})
}

// ListLogs exposes the append-only attempt log.
func (h *AttendanceHandler) ListLogs(c *gin.Context) {
	var q dto.RecordQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var identityID *uuid.UUID
	if q.IdentityID != "" {
		id, err := uuid.Parse(q.IdentityID)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid identity_id"})
			return
		}
		identityID = &id
	}

	from, to, err := parseDateRange(q.From, q.To)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	entries, total, err := h.db.QueryLogs(c.Request.Context(), identityID, from, to, q.Limit, q.Offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	resp := make([]dto.LogEntryResponse, 0, len(entries))
	for _, e := range entries {
		resp = append(resp, dto.LogEntryResponse{
			ID:         e.ID,
			IdentityID: e.IdentityID,
			Timestamp:  e.Timestamp.Format(time.RFC3339),
			Action:     string(e.Action),
			Outcome:    e.Outcome,
			Confidence: e.Confidence,
		})
	}

	c.JSON(http.StatusOK, dto.LogListResponse{Entries: resp, Total: total})
}

func recordToResponse(r storage.RecordRow) dto.RecordResponse {
	resp := dto.RecordResponse{
		ID:                 r.ID,
		IdentityID:         r.IdentityID,
		Name:               r.Name,
		EmployeeID:         r.EmployeeID,
		Date:               r.Date.Format("2006-01-02"),
		Status:             string(r.DayRecord.Status()),
		CheckInConfidence:  r.CheckInConfidence,
		CheckOutConfidence: r.CheckOutConfidence,
	}
	if r.CheckInTime != nil {
		v := r.CheckInTime.Format(time.RFC3339)
		resp.CheckInTime = &v
	}
	if r.CheckOutTime != nil {
		v := r.CheckOutTime.Format(time.RFC3339)
		resp.CheckOutTime = &v
	}
	return resp
}

func parseDateRange(from, to string) (*time.Time, *time.Time, error) {
	var fromT, toT *time.Time
	if from != "" {
		t, err := time.ParseInLocation("2006-01-02", from, time.Local)
		if err != nil {
			return nil, nil, err
		}
		fromT = &t
	}
	if to != "" {
		t, err := time.ParseInLocation("2006-01-02", to, time.Local)
		if err != nil {
			return nil, nil, err
		}
		toT = &t
	}
	return fromT, toT, nil
}

func today() time.Time {
	y, m, d := time.Now().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.Local)
}
