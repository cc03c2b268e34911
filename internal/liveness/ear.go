package liveness

import (
	"math"

	"github.com/your-org/faceclock/internal/models"
)

// openEAR is the sentinel returned for degenerate landmark sets: treating
// bad input as "eyes open" means it can never fake a blink.
const openEAR = 0.3

// EyeAspectRatio computes the 6-point EAR for one eye:
//
//	EAR = (|p1-p5| + |p2-p4|) / (2 * |p0-p3|)
//
// with points ordered [left corner, top1, top2, right corner, bottom2,
// bottom1]. Low values mean the eye is closed.
func EyeAspectRatio(eye models.EyeLandmarks) float64 {
	a := dist(eye[1], eye[5])
	b := dist(eye[2], eye[4])
	c := dist(eye[0], eye[3])

	if c == 0 {
		return openEAR
	}
	return (a + b) / (2 * c)
}

// AverageEAR returns the mean EAR over both eyes.
func AverageEAR(left, right models.EyeLandmarks) float64 {
	return (EyeAspectRatio(left) + EyeAspectRatio(right)) / 2
}

func dist(p, q models.Point) float64 {
	dx := float64(p.X - q.X)
	dy := float64(p.Y - q.Y)
	return math.Sqrt(dx*dx + dy*dy)
}
