package attendance

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/your-org/faceclock/internal/models"
)

// fakeStore keeps day records in memory with the same conditional-write
// contract as the Postgres store.
type fakeStore struct {
	mu      sync.Mutex
	records map[string]*models.DayRecord
	failAll bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{records: make(map[string]*models.DayRecord)}
}

func key(id uuid.UUID, date time.Time) string {
	return id.String() + "|" + date.Format("2006-01-02")
}

func (f *fakeStore) GetDayRecord(_ context.Context, identityID uuid.UUID, date time.Time) (*models.DayRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAll {
		return nil, errors.New("store down")
	}
	r, ok := f.records[key(identityID, date)]
	if !ok {
		return nil, nil
	}
	cp := *r
	return &cp, nil
}

func (f *fakeStore) CheckIn(_ context.Context, identityID uuid.UUID, date, t time.Time, confidence float32) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAll {
		return false, errors.New("store down")
	}
	k := key(identityID, date)
	r, ok := f.records[k]
	if !ok {
		f.records[k] = &models.DayRecord{
			ID:                uuid.New(),
			IdentityID:        identityID,
			Date:              date,
			CheckInTime:       &t,
			CheckInConfidence: confidence,
		}
		return true, nil
	}
	if r.CheckInTime != nil {
		return false, nil
	}
	r.CheckInTime = &t
	r.CheckInConfidence = confidence
	return true, nil
}

func (f *fakeStore) CheckOut(_ context.Context, identityID uuid.UUID, date, t time.Time, confidence float32) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAll {
		return false, errors.New("store down")
	}
	r, ok := f.records[key(identityID, date)]
	if !ok || r.CheckInTime == nil || r.CheckOutTime != nil {
		return false, nil
	}
	r.CheckOutTime = &t
	r.CheckOutConfidence = confidence
	return true, nil
}

type fakeAuditor struct {
	mu      sync.Mutex
	entries []models.LogEntry
}

func (f *fakeAuditor) Record(entry models.LogEntry) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = append(f.entries, entry)
}

func (f *fakeAuditor) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.entries)
}

func (f *fakeAuditor) last() models.LogEntry {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.entries[len(f.entries)-1]
}

func newTestMachine() (*Machine, *fakeStore, *fakeAuditor) {
	store := newFakeStore()
	auditor := &fakeAuditor{}
	return NewMachine(store, auditor, Config{ConfidenceThreshold: 0.6}), store, auditor
}

var morning = time.Date(2026, 3, 2, 9, 0, 0, 0, time.Local)

func TestAttemptCheckInFlow(t *testing.T) {
	m, _, auditor := newTestMachine()
	ctx := context.Background()
	id := uuid.New()

	res, err := m.Attempt(ctx, id, models.ActionCheckIn, 0.9, models.VerdictLive, morning)
	require.NoError(t, err)
	assert.True(t, res.Applied)
	assert.Equal(t, OutcomeCheckedIn, res.Outcome)

	// Second attempt the same day is a no-op with an explanation.
	res, err = m.Attempt(ctx, id, models.ActionCheckIn, 0.9, models.VerdictLive, morning.Add(time.Minute))
	require.NoError(t, err)
	assert.False(t, res.Applied)
	assert.Equal(t, OutcomeAlreadyCheckedIn, res.Outcome)

	// Every attempt is audited, applied or not.
	assert.Equal(t, 2, auditor.count())
}

func TestAttemptCheckOutFlow(t *testing.T) {
	m, _, _ := newTestMachine()
	ctx := context.Background()
	id := uuid.New()

	// Check-out without a check-in never creates a record.
	res, err := m.Attempt(ctx, id, models.ActionCheckOut, 0.9, models.VerdictLive, morning)
	require.NoError(t, err)
	assert.False(t, res.Applied)
	assert.Equal(t, OutcomeNoCheckIn, res.Outcome)

	_, err = m.Attempt(ctx, id, models.ActionCheckIn, 0.9, models.VerdictLive, morning)
	require.NoError(t, err)

	res, err = m.Attempt(ctx, id, models.ActionCheckOut, 0.85, models.VerdictLive, morning.Add(8*time.Hour))
	require.NoError(t, err)
	assert.True(t, res.Applied)
	assert.Equal(t, OutcomeCheckedOut, res.Outcome)

	// Day already completed: both further transitions are refused.
	res, err = m.Attempt(ctx, id, models.ActionCheckOut, 0.85, models.VerdictLive, morning.Add(9*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, OutcomeAlreadyCompleted, res.Outcome)

	res, err = m.Attempt(ctx, id, models.ActionCheckIn, 0.85, models.VerdictLive, morning.Add(9*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, OutcomeAlreadyCompleted, res.Outcome)
}

func TestAttemptGating(t *testing.T) {
	tests := []struct {
		name        string
		confidence  float32
		verdict     models.Verdict
		wantOutcome string
	}{
		{name: "pending verdict is rejected", confidence: 0.9, verdict: models.VerdictPending, wantOutcome: OutcomeNotLive},
		{name: "not-live verdict is rejected", confidence: 0.9, verdict: models.VerdictNotLive, wantOutcome: OutcomeNotLive},
		{name: "weak match is rejected", confidence: 0.5, verdict: models.VerdictLive, wantOutcome: OutcomeLowConfidence},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, store, auditor := newTestMachine()
			id := uuid.New()

			res, err := m.Attempt(context.Background(), id, models.ActionCheckIn, tt.confidence, tt.verdict, morning)
			require.NoError(t, err)
			assert.False(t, res.Applied)
			assert.Equal(t, tt.wantOutcome, res.Outcome)

			// Rejections never touch the store but are still audited.
			rec, err := store.GetDayRecord(context.Background(), id, morning)
			require.NoError(t, err)
			assert.Nil(t, rec)
			assert.Equal(t, 1, auditor.count())
			assert.Equal(t, tt.wantOutcome, auditor.last().Outcome)
		})
	}
}

func TestAttemptAutoActionResolution(t *testing.T) {
	m, _, _ := newTestMachine()
	ctx := context.Background()

	beforeNoon := time.Date(2026, 3, 2, 11, 59, 0, 0, time.Local)
	afterNoon := time.Date(2026, 3, 2, 12, 0, 0, 0, time.Local)

	id := uuid.New()
	res, err := m.Attempt(ctx, id, models.ActionAuto, 0.9, models.VerdictLive, beforeNoon)
	require.NoError(t, err)
	assert.Equal(t, models.ActionCheckIn, res.Action)
	assert.True(t, res.Applied)

	res, err = m.Attempt(ctx, id, models.ActionAuto, 0.9, models.VerdictLive, afterNoon)
	require.NoError(t, err)
	assert.Equal(t, models.ActionCheckOut, res.Action)
	assert.True(t, res.Applied)
}

func TestAttemptNewDayNewRecord(t *testing.T) {
	m, _, _ := newTestMachine()
	ctx := context.Background()
	id := uuid.New()

	_, err := m.Attempt(ctx, id, models.ActionCheckIn, 0.9, models.VerdictLive, morning)
	require.NoError(t, err)

	nextDay := morning.Add(24 * time.Hour)
	res, err := m.Attempt(ctx, id, models.ActionCheckIn, 0.9, models.VerdictLive, nextDay)
	require.NoError(t, err)
	assert.True(t, res.Applied)
	assert.Equal(t, OutcomeCheckedIn, res.Outcome)
}

func TestAttemptStoreError(t *testing.T) {
	m, store, auditor := newTestMachine()
	store.failAll = true

	_, err := m.Attempt(context.Background(), uuid.New(), models.ActionCheckIn, 0.9, models.VerdictLive, morning)
	assert.Error(t, err)

	// A failed write is still an attempt: it must land in the audit trail
	// with an outcome naming the failure.
	require.Equal(t, 1, auditor.count())
	assert.Equal(t, OutcomeStoreError, auditor.last().Outcome)
}

func TestStatusFor(t *testing.T) {
	m, _, _ := newTestMachine()
	ctx := context.Background()
	id := uuid.New()

	status, err := m.StatusFor(ctx, id, morning)
	require.NoError(t, err)
	assert.Equal(t, models.StatusNoRecord, status)

	_, err = m.Attempt(ctx, id, models.ActionCheckIn, 0.9, models.VerdictLive, morning)
	require.NoError(t, err)

	status, err = m.StatusFor(ctx, id, morning.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, models.StatusCheckedIn, status)

	_, err = m.Attempt(ctx, id, models.ActionCheckOut, 0.9, models.VerdictLive, morning.Add(8*time.Hour))
	require.NoError(t, err)

	status, err = m.StatusFor(ctx, id, morning.Add(9*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, status)
}
