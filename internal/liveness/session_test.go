package liveness

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/your-org/faceclock/internal/models"
)

const (
	openEar   = 0.30
	closedEar = 0.15
)

func TestObserveBlinkDetection(t *testing.T) {
	tests := []struct {
		name       string
		ears       []float64
		wantBlinks int
	}{
		{
			name:       "dip of min length counts as one blink",
			ears:       []float64{openEar, closedEar, closedEar, openEar},
			wantBlinks: 1,
		},
		{
			name:       "single-frame dip is noise, not a blink",
			ears:       []float64{openEar, closedEar, openEar},
			wantBlinks: 0,
		},
		{
			name:       "long dip still counts once",
			ears:       []float64{openEar, closedEar, closedEar, closedEar, closedEar, openEar},
			wantBlinks: 1,
		},
		{
			name:       "two separate dips count twice",
			ears:       []float64{openEar, closedEar, closedEar, openEar, closedEar, closedEar, openEar},
			wantBlinks: 2,
		},
		{
			name:       "eyes never close",
			ears:       []float64{openEar, openEar, openEar, openEar},
			wantBlinks: 0,
		},
		{
			name:       "still closed at end, blink not yet completed",
			ears:       []float64{openEar, closedEar, closedEar},
			wantBlinks: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewSession(DefaultConfig())
			now := time.Now()
			for i, ear := range tt.ears {
				s.Observe(ear, now.Add(time.Duration(i)*66*time.Millisecond))
			}
			assert.Equal(t, tt.wantBlinks, s.TotalBlinks())
		})
	}
}

func TestObserveThresholdBoundary(t *testing.T) {
	s := NewSession(DefaultConfig())
	now := time.Now()

	// EAR exactly at the threshold is open; only strictly below closes.
	s.Observe(0.22, now)
	s.Observe(0.22, now.Add(66*time.Millisecond))
	s.Observe(openEar, now.Add(132*time.Millisecond))
	assert.Equal(t, 0, s.TotalBlinks())

	s.Observe(0.219, now.Add(198*time.Millisecond))
	s.Observe(0.219, now.Add(264*time.Millisecond))
	s.Observe(openEar, now.Add(330*time.Millisecond))
	assert.Equal(t, 1, s.TotalBlinks())
}

func TestVerdict(t *testing.T) {
	start := time.Now()

	blinkAt := func(s *Session, at time.Time) {
		s.Observe(closedEar, at)
		s.Observe(closedEar, at.Add(66*time.Millisecond))
		s.Observe(openEar, at.Add(132*time.Millisecond))
	}

	t.Run("unstarted session is pending", func(t *testing.T) {
		s := NewSession(DefaultConfig())
		assert.Equal(t, models.VerdictPending, s.Verdict(start))
	})

	t.Run("blink before 3s is still pending", func(t *testing.T) {
		s := NewSession(DefaultConfig())
		s.Start(start)
		blinkAt(s, start.Add(500*time.Millisecond))
		assert.Equal(t, models.VerdictPending, s.Verdict(start.Add(1*time.Second)))
	})

	t.Run("blink plus 3s elapsed is live", func(t *testing.T) {
		s := NewSession(DefaultConfig())
		s.Start(start)
		blinkAt(s, start.Add(500*time.Millisecond))
		assert.Equal(t, models.VerdictLive, s.Verdict(start.Add(3*time.Second)))
	})

	t.Run("no blink within window is not live", func(t *testing.T) {
		s := NewSession(DefaultConfig())
		s.Start(start)
		s.Observe(openEar, start.Add(time.Second))
		assert.Equal(t, models.VerdictPending, s.Verdict(start.Add(5*time.Second)))
		assert.Equal(t, models.VerdictNotLive, s.Verdict(start.Add(6*time.Second)))
	})
}

func TestObserveStartsImplicitly(t *testing.T) {
	s := NewSession(DefaultConfig())
	frameTime := time.Now()

	s.Observe(openEar, frameTime)

	assert.Equal(t, time.Duration(0), s.Elapsed(frameTime))
	assert.Equal(t, 4*time.Second, s.Elapsed(frameTime.Add(4*time.Second)))
}

func TestReset(t *testing.T) {
	s := NewSession(DefaultConfig())
	start := time.Now()
	s.Start(start)
	s.Observe(closedEar, start)
	s.Observe(closedEar, start.Add(66*time.Millisecond))
	s.Observe(openEar, start.Add(132*time.Millisecond))
	assert.Equal(t, 1, s.TotalBlinks())

	s.Reset()

	assert.Equal(t, 0, s.TotalBlinks())
	assert.Equal(t, models.VerdictPending, s.Verdict(start.Add(10*time.Second)))
}

func TestObserveEyes(t *testing.T) {
	s := NewSession(DefaultConfig())
	now := time.Now()

	closed := eyeWithOpening(0.4) // EAR 0.1
	open := eyeWithOpening(1.2)   // EAR 0.3

	assert.False(t, s.ObserveEyes(closed, closed, now))
	assert.False(t, s.ObserveEyes(closed, closed, now.Add(66*time.Millisecond)))
	assert.True(t, s.ObserveEyes(open, open, now.Add(132*time.Millisecond)))
	assert.Equal(t, 1, s.TotalBlinks())
}
