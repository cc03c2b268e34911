package attendance

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/your-org/faceclock/internal/models"
	"github.com/your-org/faceclock/internal/observability"
)

// Outcomes recorded for every attendance attempt. Only CheckedIn and
// CheckedOut changed state; the rest explain why nothing happened.
const (
	OutcomeCheckedIn        = "checked_in"
	OutcomeCheckedOut       = "checked_out"
	OutcomeAlreadyCheckedIn = "already_checked_in"
	OutcomeAlreadyCompleted = "already_completed"
	OutcomeNoCheckIn        = "no_check_in"
	OutcomeLowConfidence    = "low_confidence"
	OutcomeNotLive          = "not_live"
	OutcomeStoreError       = "store_error"
)

// Store is the persistence the state machine drives. CheckIn and CheckOut
// must be conditional writes: they apply the transition only when the
// current row allows it and report whether they did. That keeps the
// day-record invariants intact even if two workers race on one identity.
type Store interface {
	GetDayRecord(ctx context.Context, identityID uuid.UUID, date time.Time) (*models.DayRecord, error)
	CheckIn(ctx context.Context, identityID uuid.UUID, date time.Time, t time.Time, confidence float32) (bool, error)
	CheckOut(ctx context.Context, identityID uuid.UUID, date time.Time, t time.Time, confidence float32) (bool, error)
}

// Auditor receives one entry per attempt, applied or not. Implementations
// must not block the caller.
type Auditor interface {
	Record(entry models.LogEntry)
}

// Config tunes the transition gate.
type Config struct {
	// ConfidenceThreshold is the minimum match confidence allowed to
	// change attendance state.
	ConfidenceThreshold float64
}

// Result describes what one attempt did.
type Result struct {
	Action  models.Action
	Outcome string
	// Applied is true only when attendance state actually changed.
	Applied bool
}

// Machine applies attendance transitions for recognized, live identities.
// It serializes attempts per identity so a burst of frames for the same
// person cannot double-apply, and audits every attempt regardless of
// outcome.
type Machine struct {
	store Store
	audit Auditor
	cfg   Config

	mu    sync.Mutex
	locks map[uuid.UUID]*sync.Mutex
}

func NewMachine(store Store, audit Auditor, cfg Config) *Machine {
	if cfg.ConfidenceThreshold <= 0 {
		cfg.ConfidenceThreshold = 0.6
	}
	return &Machine{
		store: store,
		audit: audit,
		cfg:   cfg,
		locks: make(map[uuid.UUID]*sync.Mutex),
	}
}

// Attempt runs one gated attendance transition. The verdict and confidence
// are checked first: a non-live verdict or a weak match is rejected without
// touching the store, but still audited. Store errors are returned so the
// caller can surface them, and still audited with a store_error outcome;
// state is never left half-applied because the store writes are conditional.
func (m *Machine) Attempt(ctx context.Context, identityID uuid.UUID, action models.Action, confidence float32, verdict models.Verdict, now time.Time) (Result, error) {
	action = resolveAction(action, now)

	if verdict != models.VerdictLive {
		return m.reject(identityID, action, confidence, OutcomeNotLive, now), nil
	}
	if float64(confidence) < m.cfg.ConfidenceThreshold {
		return m.reject(identityID, action, confidence, OutcomeLowConfidence, now), nil
	}

	lock := m.identityLock(identityID)
	lock.Lock()
	defer lock.Unlock()

	date := dayOf(now)

	var (
		applied bool
		err     error
	)
	switch action {
	case models.ActionCheckIn:
		applied, err = m.store.CheckIn(ctx, identityID, date, now, confidence)
	case models.ActionCheckOut:
		applied, err = m.store.CheckOut(ctx, identityID, date, now, confidence)
	default:
		return Result{}, fmt.Errorf("unknown action %q", action)
	}
	if err != nil {
		m.record(identityID, action, confidence, OutcomeStoreError, now)
		return Result{Action: action}, fmt.Errorf("apply %s: %w", action, err)
	}

	outcome := ""
	if applied {
		if action == models.ActionCheckIn {
			outcome = OutcomeCheckedIn
		} else {
			outcome = OutcomeCheckedOut
		}
	} else {
		outcome, err = m.explainNoop(ctx, identityID, action, date)
		if err != nil {
			m.record(identityID, action, confidence, OutcomeStoreError, now)
			return Result{Action: action}, err
		}
	}

	res := Result{Action: action, Outcome: outcome, Applied: applied}
	m.record(identityID, action, confidence, outcome, now)
	return res, nil
}

// StatusFor reports the identity's current day status.
func (m *Machine) StatusFor(ctx context.Context, identityID uuid.UUID, now time.Time) (models.DayStatus, error) {
	rec, err := m.store.GetDayRecord(ctx, identityID, dayOf(now))
	if err != nil {
		return "", err
	}
	return rec.Status(), nil
}

// explainNoop maps a conditional write that changed nothing to the outcome
// describing why.
func (m *Machine) explainNoop(ctx context.Context, identityID uuid.UUID, action models.Action, date time.Time) (string, error) {
	rec, err := m.store.GetDayRecord(ctx, identityID, date)
	if err != nil {
		return "", fmt.Errorf("read day record: %w", err)
	}

	status := rec.Status()
	switch action {
	case models.ActionCheckIn:
		if status == models.StatusCompleted {
			return OutcomeAlreadyCompleted, nil
		}
		return OutcomeAlreadyCheckedIn, nil
	default:
		if status == models.StatusCompleted {
			return OutcomeAlreadyCompleted, nil
		}
		return OutcomeNoCheckIn, nil
	}
}

func (m *Machine) reject(identityID uuid.UUID, action models.Action, confidence float32, outcome string, now time.Time) Result {
	m.record(identityID, action, confidence, outcome, now)
	return Result{Action: action, Outcome: outcome}
}

func (m *Machine) record(identityID uuid.UUID, action models.Action, confidence float32, outcome string, now time.Time) {
	observability.AttendanceTransitions.WithLabelValues(string(action), outcome).Inc()
	if m.audit == nil {
		return
	}
	m.audit.Record(models.LogEntry{
		ID:         uuid.New(),
		IdentityID: identityID,
		Timestamp:  now,
		Action:     action,
		Outcome:    outcome,
		Confidence: confidence,
	})
}

func (m *Machine) identityLock(id uuid.UUID) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	if l, ok := m.locks[id]; ok {
		return l
	}
	l := &sync.Mutex{}
	m.locks[id] = l
	return l
}

// resolveAction maps the auto action to a concrete one: check-in before
// local noon, check-out from noon on.
func resolveAction(action models.Action, now time.Time) models.Action {
	if action != models.ActionAuto {
		return action
	}
	if now.Hour() < 12 {
		return models.ActionCheckIn
	}
	return models.ActionCheckOut
}

// dayOf truncates a timestamp to its local calendar date.
func dayOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
