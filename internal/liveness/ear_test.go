package liveness

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/your-org/faceclock/internal/models"
)

// eyeWithOpening builds a horizontal 6-point eye of width 4 whose two
// vertical pairs are each `opening` apart, giving EAR = opening/4.
func eyeWithOpening(opening float32) models.EyeLandmarks {
	half := opening / 2
	return models.EyeLandmarks{
		{X: 0, Y: 0},     // left corner
		{X: 1, Y: -half}, // top1
		{X: 3, Y: -half}, // top2
		{X: 4, Y: 0},     // right corner
		{X: 3, Y: half},  // bottom2
		{X: 1, Y: half},  // bottom1
	}
}

func TestEyeAspectRatio(t *testing.T) {
	tests := []struct {
		name    string
		opening float32
		want    float64
	}{
		{name: "wide open", opening: 1.2, want: 0.3},
		{name: "half closed", opening: 0.6, want: 0.15},
		{name: "fully closed", opening: 0, want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := EyeAspectRatio(eyeWithOpening(tt.opening))
			assert.InDelta(t, tt.want, got, 1e-6)
		})
	}
}

func TestEyeAspectRatioDegenerate(t *testing.T) {
	// All points coincident: zero horizontal span must yield the open
	// sentinel, never a division by zero or a fake "closed" reading.
	var eye models.EyeLandmarks
	assert.Equal(t, 0.3, EyeAspectRatio(eye))
}

func TestAverageEAR(t *testing.T) {
	left := eyeWithOpening(1.2)  // 0.3
	right := eyeWithOpening(0.4) // 0.1
	assert.InDelta(t, 0.2, AverageEAR(left, right), 1e-6)
}
