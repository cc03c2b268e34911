package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	FramesProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "faceclock",
		Name:      "frames_processed_total",
		Help:      "Total number of frames processed",
	}, []string{"camera_id"})

	FacesDetected = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "faceclock",
		Name:      "faces_detected_total",
		Help:      "Total number of faces detected",
	}, []string{"camera_id"})

	FacesRecognized = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "faceclock",
		Name:      "faces_recognized_total",
		Help:      "Total number of faces matched to a known identity",
	}, []string{"camera_id"})

	BlinksDetected = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "faceclock",
		Name:      "blinks_detected_total",
		Help:      "Total number of completed blinks registered by liveness sessions",
	}, []string{"camera_id"})

	AttendanceTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "faceclock",
		Name:      "attendance_transitions_total",
		Help:      "Attendance attempts by outcome",
	}, []string{"action", "outcome"})

	InferenceDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "faceclock",
		Name:      "inference_duration_seconds",
		Help:      "Duration of ML inference stages",
		Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10),
	}, []string{"stage"})

	QueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "faceclock",
		Name:      "queue_depth",
		Help:      "Number of pending frame tasks in queue",
	})

	ActiveCameras = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "faceclock",
		Name:      "active_cameras",
		Help:      "Number of currently active camera sessions",
	})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "faceclock",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request duration",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	WSConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "faceclock",
		Name:      "ws_connections",
		Help:      "Number of active WebSocket connections",
	})
)
