package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/your-org/faceclock/internal/attendance"
	"github.com/your-org/faceclock/internal/liveness"
	"github.com/your-org/faceclock/internal/models"
	"github.com/your-org/faceclock/internal/observability"
	"github.com/your-org/faceclock/internal/recognition"
)

// EventSink publishes per-face events for UI feedback and persistence.
type EventSink interface {
	PublishEvent(ctx context.Context, cameraID string, data interface{}) error
}

// faceAbsenceReset is how long the camera may see no face before the
// liveness session resets. A new person stepping up starts from scratch.
const faceAbsenceReset = 2 * time.Second

// Session owns the recognition and liveness state for one camera. Frames
// enter through HandleFrame in arrival order; embedder completions come back
// through the pool's ordered delivery goroutine. Both paths take the session
// mutex, so engine and liveness state see a single serialized frame
// sequence.
type Session struct {
	cameraID uuid.UUID
	action   models.Action

	engine *recognition.Engine
	live   *liveness.Session
	gate   *attendance.Machine
	pool   *Pool
	events EventSink

	mu           sync.Mutex
	lastFaceSeen time.Time
}

func New(cameraID uuid.UUID, action models.Action, engine *recognition.Engine, live *liveness.Session, gate *attendance.Machine, pool *Pool, events EventSink) *Session {
	return &Session{
		cameraID: cameraID,
		action:   action,
		engine:   engine,
		live:     live,
		gate:     gate,
		pool:     pool,
		events:   events,
	}
}

// HandleFrame processes one frame. Cached results are emitted immediately as
// stale feedback; fresh frames go to the embedder pool and finish in
// applyCompletion. A frame that fails to decode is logged and skipped.
func (s *Session) HandleFrame(ctx context.Context, raw []byte, ts time.Time, frameRef string) error {
	observability.FramesProcessed.WithLabelValues(s.cameraID.String()).Inc()

	s.mu.Lock()
	cached, frame, err := s.engine.Intake(raw, ts)
	if err != nil {
		s.mu.Unlock()
		slog.Warn("skip undecodable frame", "camera_id", s.cameraID, "error", err)
		return nil
	}

	if frame == nil {
		// Stale replay: feedback only, liveness and attendance untouched.
		verdict := s.live.Verdict(ts)
		blinks := s.live.TotalBlinks()
		s.mu.Unlock()
		s.emit(ctx, cached, verdict, blinks, nil, false, frameRef, ts)
		return nil
	}
	s.mu.Unlock()

	s.pool.Submit(frame, func(c Completion) {
		s.applyCompletion(ctx, c, frameRef)
	})
	return nil
}

// applyCompletion finishes one freshly computed frame: match results, blink
// observation, verdict, and the attendance attempt when everything lines up.
// Runs on the pool's delivery goroutine, in frame order.
func (s *Session) applyCompletion(ctx context.Context, c Completion, frameRef string) {
	if c.Err != nil {
		slog.Warn("embedder failed, treating frame as faceless",
			"camera_id", s.cameraID, "error", c.Err)
	}

	ts := c.Frame.Timestamp

	s.mu.Lock()
	results := s.engine.Complete(c.Frame, c.Detections, c.Err, ts)

	if len(results) == 0 {
		if !s.lastFaceSeen.IsZero() && ts.Sub(s.lastFaceSeen) > faceAbsenceReset {
			s.live.Reset()
			s.lastFaceSeen = time.Time{}
		}
		s.mu.Unlock()
		return
	}

	observability.FacesDetected.WithLabelValues(s.cameraID.String()).Add(float64(len(results)))
	s.lastFaceSeen = ts

	// Liveness tracks the primary face: the strongest match, falling back
	// to the first detection when nobody is recognized.
	primary := s.primaryIndex(results)
	blinked := s.live.ObserveEyes(c.Detections[primary].LeftEye, c.Detections[primary].RightEye, ts)
	if blinked {
		observability.BlinksDetected.WithLabelValues(s.cameraID.String()).Inc()
	}

	verdict := s.live.Verdict(ts)
	blinks := s.live.TotalBlinks()
	match := results[primary]
	s.mu.Unlock()

	var (
		gateRes     *attendance.Result
		storeFailed bool
	)
	if match.Matched() {
		observability.FacesRecognized.WithLabelValues(s.cameraID.String()).Inc()

		res, err := s.gate.Attempt(ctx, *match.IdentityID, s.action, match.Confidence, verdict, ts)
		if err != nil {
			slog.Error("attendance transition failed",
				"camera_id", s.cameraID, "identity_id", match.IdentityID, "error", err)
			storeFailed = true
		} else {
			gateRes = &res
		}

		if gateRes != nil && gateRes.Applied {
			s.mu.Lock()
			s.live.Reset()
			s.mu.Unlock()
		}
	}

	s.emit(ctx, results, verdict, blinks, gateRes, storeFailed, frameRef, ts)
}

// End releases the session's liveness and cache state. The manager calls it
// when a camera stops.
func (s *Session) End() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.live.Reset()
	s.engine.Reset()
}

func (s *Session) primaryIndex(results []models.MatchResult) int {
	best := 0
	bestConf := float32(-1)
	for i, r := range results {
		if r.Matched() && r.Confidence > bestConf {
			best = i
			bestConf = r.Confidence
		}
	}
	return best
}

func (s *Session) emit(ctx context.Context, results []models.MatchResult, verdict models.Verdict, blinks int, gateRes *attendance.Result, storeFailed bool, frameRef string, ts time.Time) {
	for _, r := range results {
		ev := models.AttendanceEvent{
			ID:          uuid.New(),
			CameraID:    s.cameraID,
			Timestamp:   ts,
			Match:       r,
			Verdict:     verdict,
			Blinks:      blinks,
			StoreFailed: storeFailed,
			SnapshotKey: frameRef,
			CreatedAt:   time.Now(),
		}
		if gateRes != nil && r.Matched() {
			ev.Action = gateRes.Action
			ev.Outcome = gateRes.Outcome
		}
		if err := s.events.PublishEvent(ctx, s.cameraID.String(), ev); err != nil {
			slog.Error("publish event", "camera_id", s.cameraID, "error", err)
		}
	}
}
