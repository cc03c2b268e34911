package models

// Box is a face bounding box in source-frame pixel coordinates,
// (top, right, bottom, left) order.
type Box struct {
	Top    int `json:"top"`
	Right  int `json:"right"`
	Bottom int `json:"bottom"`
	Left   int `json:"left"`
}

// Width returns the box width in pixels.
func (b Box) Width() int { return b.Right - b.Left }

// Height returns the box height in pixels.
func (b Box) Height() int { return b.Bottom - b.Top }

// Center returns the box center point.
func (b Box) Center() (x, y int) {
	return (b.Left + b.Right) / 2, (b.Top + b.Bottom) / 2
}

// Point is a 2D landmark point in pixel coordinates.
type Point struct {
	X float32 `json:"x"`
	Y float32 `json:"y"`
}

// EyeLandmarks holds the 6-point landmark set for one eye, in the order
// [left corner, top1, top2, right corner, bottom2, bottom1], the layout the
// eye-aspect-ratio computation expects.
type EyeLandmarks [6]Point
