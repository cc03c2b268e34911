package session

import (
	"image"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/your-org/faceclock/internal/models"
	"github.com/your-org/faceclock/internal/recognition"
)

// slowEncoder stalls for a per-call duration pulled from delays, simulating
// workers finishing out of order.
type slowEncoder struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (s *slowEncoder) DetectAndEncode(_ image.Image) ([]models.Detection, error) {
	s.mu.Lock()
	var d time.Duration
	if len(s.delays) > 0 {
		d = s.delays[0]
		s.delays = s.delays[1:]
	}
	s.mu.Unlock()
	time.Sleep(d)
	return nil, nil
}

func testFrame(ts time.Time) *recognition.Frame {
	return &recognition.Frame{
		Img:       image.NewRGBA(image.Rect(0, 0, 4, 4)),
		Timestamp: ts,
	}
}

func TestPoolDeliversInSubmissionOrder(t *testing.T) {
	// Two workers with deliberately uneven latency: later frames finish
	// first, yet applies must still run in submission order.
	enc := &slowEncoder{delays: []time.Duration{
		80 * time.Millisecond,
		10 * time.Millisecond,
		10 * time.Millisecond,
		10 * time.Millisecond,
	}}
	pool := NewPool([]recognition.Embedder{enc, enc})

	var mu sync.Mutex
	var applied []time.Time

	base := time.Now()
	for i := 0; i < 4; i++ {
		ts := base.Add(time.Duration(i) * 66 * time.Millisecond)
		pool.Submit(testFrame(ts), func(c Completion) {
			mu.Lock()
			applied = append(applied, c.Frame.Timestamp)
			mu.Unlock()
		})
	}

	pool.Close()

	assert.Len(t, applied, 4)
	for i := 1; i < len(applied); i++ {
		assert.True(t, applied[i].After(applied[i-1]),
			"completion %d applied out of order", i)
	}
}

func TestPoolCloseFlushesPending(t *testing.T) {
	enc := &slowEncoder{delays: []time.Duration{20 * time.Millisecond, 20 * time.Millisecond}}
	pool := NewPool([]recognition.Embedder{enc})

	var count int
	var mu sync.Mutex
	for i := 0; i < 2; i++ {
		pool.Submit(testFrame(time.Now()), func(Completion) {
			mu.Lock()
			count++
			mu.Unlock()
		})
	}

	pool.Close()
	assert.Equal(t, 2, count)
}
