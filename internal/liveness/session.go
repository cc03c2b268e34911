package liveness

import (
	"time"

	"github.com/your-org/faceclock/internal/models"
)

// eyeState tracks where the blink state machine currently is.
type eyeState int

const (
	stateOpen eyeState = iota
	stateClosing
)

// Config tunes one liveness session.
type Config struct {
	// ClosedEARThreshold: EAR below this counts as eyes closed.
	ClosedEARThreshold float64
	// MinClosedFrames: a dip must last at least this many consecutive
	// frames to register as a completed blink.
	MinClosedFrames int
	// SessionWindow: total time the session has to observe a blink before
	// the verdict becomes not-live.
	SessionWindow time.Duration
}

// DefaultConfig matches the tuned production values.
func DefaultConfig() Config {
	return Config{
		ClosedEARThreshold: 0.22,
		MinClosedFrames:    2,
		SessionWindow:      6 * time.Second,
	}
}

// Session is a single-owner blink-based liveness detector. One session serves
// one verification attempt on one camera; it is not safe for concurrent use
// and must be Reset (or discarded) between attempts.
type Session struct {
	cfg Config

	started       bool
	sessionStart  time.Time
	state         eyeState
	closedFrames  int
	totalBlinks   int
	lastBlinkTime time.Time
}

func NewSession(cfg Config) *Session {
	if cfg.ClosedEARThreshold <= 0 {
		cfg.ClosedEARThreshold = 0.22
	}
	if cfg.MinClosedFrames <= 0 {
		cfg.MinClosedFrames = 2
	}
	if cfg.SessionWindow <= 0 {
		cfg.SessionWindow = 6 * time.Second
	}
	return &Session{cfg: cfg}
}

// Start begins a verification attempt at the given time. Processing a frame
// on an unstarted session starts it implicitly at that frame's timestamp.
func (s *Session) Start(now time.Time) {
	s.sessionStart = now
	s.started = true
	s.state = stateOpen
	s.closedFrames = 0
	s.totalBlinks = 0
	s.lastBlinkTime = time.Time{}
}

// Reset clears all state so the session can serve a fresh attempt.
func (s *Session) Reset() {
	s.started = false
	s.sessionStart = time.Time{}
	s.state = stateOpen
	s.closedFrames = 0
	s.totalBlinks = 0
	s.lastBlinkTime = time.Time{}
}

// Observe feeds one frame's averaged EAR into the blink state machine.
// Returns true when this frame completed a blink.
func (s *Session) Observe(ear float64, now time.Time) bool {
	if !s.started {
		s.Start(now)
	}

	if ear < s.cfg.ClosedEARThreshold {
		if s.state == stateOpen {
			s.state = stateClosing
			s.closedFrames = 1
		} else {
			s.closedFrames++
		}
		return false
	}

	blinked := false
	if s.state == stateClosing && s.closedFrames >= s.cfg.MinClosedFrames {
		s.totalBlinks++
		s.lastBlinkTime = now
		blinked = true
	}
	s.state = stateOpen
	s.closedFrames = 0
	return blinked
}

// ObserveEyes is Observe over raw eye landmark sets.
func (s *Session) ObserveEyes(left, right models.EyeLandmarks, now time.Time) bool {
	return s.Observe(AverageEAR(left, right), now)
}

// TotalBlinks returns the number of completed blinks this session.
func (s *Session) TotalBlinks() int { return s.totalBlinks }

// Elapsed returns time since the session started, zero if not started.
func (s *Session) Elapsed(now time.Time) time.Duration {
	if !s.started {
		return 0
	}
	return now.Sub(s.sessionStart)
}

// Verdict decides liveness at the given time. Callers must treat Pending as
// neither live nor not-live: the session simply has not seen enough yet.
//
//   - >=1 blink and >=3s elapsed: live (early accept)
//   - >=1 blink and >=5s elapsed: live
//   - window fully elapsed with zero blinks: not live
//   - otherwise: pending
func (s *Session) Verdict(now time.Time) models.Verdict {
	if !s.started {
		return models.VerdictPending
	}

	elapsed := now.Sub(s.sessionStart)

	if s.totalBlinks >= 1 {
		if elapsed >= 3*time.Second {
			return models.VerdictLive
		}
		return models.VerdictPending
	}

	if elapsed >= s.cfg.SessionWindow {
		return models.VerdictNotLive
	}
	return models.VerdictPending
}

// State exposes a snapshot of the mutable counters for UI feedback.
func (s *Session) State(now time.Time) models.LivenessState {
	return models.LivenessState{
		SessionStart:  s.sessionStart,
		Closing:       s.state == stateClosing,
		ClosedFrames:  s.closedFrames,
		TotalBlinks:   s.totalBlinks,
		LastBlinkTime: s.lastBlinkTime,
		Elapsed:       s.Elapsed(now),
	}
}
