package session

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/your-org/faceclock/internal/attendance"
	"github.com/your-org/faceclock/internal/identity"
	"github.com/your-org/faceclock/internal/liveness"
	"github.com/your-org/faceclock/internal/models"
	"github.com/your-org/faceclock/internal/recognition"
)

// frameBytes produces a decodable frame whose fingerprint depends on seed.
func frameBytes(t *testing.T, seed uint8) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 16, 16))
	for y := 0; y < 16; y++ {
		for x := 0; x < 16; x++ {
			img.Set(x, y, color.RGBA{R: seed, G: uint8(x), B: uint8(y), A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

// openEye is a width-4 eye with EAR 0.3, comfortably open.
func openEye() models.EyeLandmarks {
	return models.EyeLandmarks{
		{X: 0, Y: 0},
		{X: 1, Y: -0.6},
		{X: 3, Y: -0.6},
		{X: 4, Y: 0},
		{X: 3, Y: 0.6},
		{X: 1, Y: 0.6},
	}
}

// stubEmbedder reports the same single detection for every frame.
type stubEmbedder struct {
	det models.Detection
}

func (s *stubEmbedder) DetectAndEncode(image.Image) ([]models.Detection, error) {
	return []models.Detection{s.det}, nil
}

type nopStore struct{}

func (nopStore) GetDayRecord(context.Context, uuid.UUID, time.Time) (*models.DayRecord, error) {
	return nil, nil
}

func (nopStore) CheckIn(context.Context, uuid.UUID, time.Time, time.Time, float32) (bool, error) {
	return false, nil
}

func (nopStore) CheckOut(context.Context, uuid.UUID, time.Time, time.Time, float32) (bool, error) {
	return false, nil
}

// countingAuditor counts gate attempts: the machine audits every Attempt,
// so the entry count equals the number of times the gate was consulted.
type countingAuditor struct {
	mu sync.Mutex
	n  int
}

func (a *countingAuditor) Record(models.LogEntry) {
	a.mu.Lock()
	a.n++
	a.mu.Unlock()
}

func (a *countingAuditor) count() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.n
}

type captureSink struct {
	mu     sync.Mutex
	events []models.AttendanceEvent
}

func (c *captureSink) PublishEvent(_ context.Context, _ string, data interface{}) error {
	ev := data.(models.AttendanceEvent)
	c.mu.Lock()
	c.events = append(c.events, ev)
	c.mu.Unlock()
	return nil
}

func (c *captureSink) all() []models.AttendanceEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]models.AttendanceEvent, len(c.events))
	copy(out, c.events)
	return out
}

func TestCachedResultsNeverReachAttendanceGate(t *testing.T) {
	identityID := uuid.New()
	ix := identity.NewIndex()
	ix.Load([]models.Identity{
		{ID: identityID, Name: "Alice", Embeddings: [][]float32{{1, 0, 0}}},
	})

	auditor := &countingAuditor{}
	gate := attendance.NewMachine(nopStore{}, auditor, attendance.Config{ConfidenceThreshold: 0.6})

	engine := recognition.NewEngine(ix, recognition.Config{
		Tolerance:    0.6,
		ScaleFactor:  1,
		SkipFrames:   2,
		CacheTimeout: 2 * time.Second,
	})

	emb := &stubEmbedder{det: models.Detection{
		Box:        models.Box{Top: 10, Right: 60, Bottom: 60, Left: 10},
		Confidence: 0.9,
		Embedding:  []float32{1, 0, 0},
		LeftEye:    openEye(),
		RightEye:   openEye(),
	}}
	pool := NewPool([]recognition.Embedder{emb})
	sink := &captureSink{}

	sess := New(uuid.New(), models.ActionCheckIn, engine,
		liveness.NewSession(liveness.DefaultConfig()), gate, pool, sink)

	ctx := context.Background()
	base := time.Now()
	fresh := frameBytes(t, 1)

	require.NoError(t, sess.HandleFrame(ctx, fresh, base, "frames/a"))

	// Wait until the fresh frame's completion has been applied and emitted.
	require.Eventually(t, func() bool { return len(sink.all()) == 1 }, time.Second, 5*time.Millisecond)
	require.Equal(t, 1, auditor.count())

	// A different frame inside the skip budget and an identical frame inside
	// the fingerprint TTL both replay cached results.
	require.NoError(t, sess.HandleFrame(ctx, frameBytes(t, 2), base.Add(100*time.Millisecond), "frames/b"))
	require.NoError(t, sess.HandleFrame(ctx, fresh, base.Add(200*time.Millisecond), "frames/c"))

	pool.Close()

	// Only the fresh frame consulted the gate.
	assert.Equal(t, 1, auditor.count())

	events := sink.all()
	require.Len(t, events, 3)
	assert.False(t, events[0].Match.Stale)
	assert.Equal(t, attendance.OutcomeNotLive, events[0].Outcome)
	for _, ev := range events[1:] {
		assert.True(t, ev.Match.Stale)
		assert.Empty(t, ev.Outcome)
	}
}
