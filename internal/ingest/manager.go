package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/your-org/faceclock/internal/models"
	"github.com/your-org/faceclock/internal/queue"
	"github.com/your-org/faceclock/internal/storage"
)

// CameraCommand is a start/stop command from the API.
type CameraCommand struct {
	Action   string `json:"action"` // start, stop
	CameraID string `json:"camera_id"`
	URL      string `json:"url"`
	Type     string `json:"type"`
	FPS      int    `json:"fps"`
}

type activeCamera struct {
	cancel    context.CancelFunc
	extractor *FFmpegExtractor
	sequence  atomic.Uint64
}

// Manager manages camera feed ingestion lifecycle: one ffmpeg pipeline per
// started camera, each frame uploaded to MinIO and announced on the frame
// queue with a per-camera sequence number.
type Manager struct {
	producer  *queue.Producer
	minio     *storage.MinIOStore
	db        *storage.PostgresStore
	width     int
	retention int

	mu      sync.RWMutex
	cameras map[string]*activeCamera
}

func NewManager(producer *queue.Producer, minio *storage.MinIOStore, db *storage.PostgresStore, frameWidth, frameRetention int) *Manager {
	if frameRetention <= 0 {
		frameRetention = 300
	}
	return &Manager{
		producer:  producer,
		minio:     minio,
		db:        db,
		width:     frameWidth,
		retention: frameRetention,
		cameras:   make(map[string]*activeCamera),
	}
}

// HandleCommand processes a camera control command.
func (m *Manager) HandleCommand(ctx context.Context, cmd CameraCommand) error {
	switch cmd.Action {
	case "start":
		return m.startCamera(ctx, cmd)
	case "stop":
		return m.stopCamera(cmd.CameraID)
	default:
		return fmt.Errorf("unknown action: %s", cmd.Action)
	}
}

func (m *Manager) startCamera(ctx context.Context, cmd CameraCommand) error {
	m.mu.Lock()
	if _, exists := m.cameras[cmd.CameraID]; exists {
		m.mu.Unlock()
		return fmt.Errorf("camera %s already running", cmd.CameraID)
	}
	m.mu.Unlock()

	fps := cmd.FPS
	if fps <= 0 {
		fps = 15
	}

	camCtx, cancel := context.WithCancel(ctx)
	extractor := &FFmpegExtractor{}

	ac := &activeCamera{
		cancel:    cancel,
		extractor: extractor,
	}

	m.mu.Lock()
	m.cameras[cmd.CameraID] = ac
	m.mu.Unlock()

	m.updateStatus(cmd.CameraID, models.CameraStatusRunning, "")

	slog.Info("starting camera ingestion", "camera_id", cmd.CameraID, "url", cmd.URL, "fps", fps)

	go func() {
		defer func() {
			m.mu.Lock()
			delete(m.cameras, cmd.CameraID)
			m.mu.Unlock()
			slog.Info("camera ingestion stopped", "camera_id", cmd.CameraID)
		}()

		const maxRetries = 3

		for attempt := 0; attempt <= maxRetries; attempt++ {
			if attempt > 0 {
				delay := time.Duration(1<<uint(attempt)) * time.Second // 2s, 4s, 8s
				slog.Warn("retrying camera extraction",
					"camera_id", cmd.CameraID,
					"attempt", attempt,
					"delay", delay,
				)
				select {
				case <-camCtx.Done():
					m.updateStatus(cmd.CameraID, models.CameraStatusStopped, "")
					return
				case <-time.After(delay):
				}

				// Need a fresh extractor for retry
				extractor = &FFmpegExtractor{}
			}

			err := extractor.StartExtraction(camCtx, cmd.URL, fps, m.width, func(frameData []byte) error {
				return m.publishFrame(camCtx, cmd.CameraID, ac, frameData)
			})

			if err == nil || camCtx.Err() != nil {
				// Clean exit or user stopped the camera
				m.updateStatus(cmd.CameraID, models.CameraStatusStopped, "")
				return
			}

			slog.Error("camera extraction failed",
				"camera_id", cmd.CameraID,
				"attempt", attempt,
				"error", err,
			)
		}

		m.updateStatus(cmd.CameraID, models.CameraStatusError, "camera failed after retries")
	}()

	return nil
}

// publishFrame uploads one frame and queues its task. Sequence-prefixed keys
// keep per-camera frames lexically ordered, which the retention sweep relies
// on.
func (m *Manager) publishFrame(ctx context.Context, cameraID string, ac *activeCamera, frameData []byte) error {
	frameID := uuid.New()
	cameraUUID, _ := uuid.Parse(cameraID)
	seq := ac.sequence.Add(1)

	key := fmt.Sprintf("frames/%s/%012d_%s.jpg", cameraID, seq, frameID.String())
	if err := m.minio.PutObject(ctx, key, frameData, "image/jpeg"); err != nil {
		return fmt.Errorf("upload frame: %w", err)
	}

	task := models.FrameTask{
		CameraID:  cameraUUID,
		FrameID:   frameID,
		Sequence:  seq,
		Timestamp: time.Now(),
		FrameRef:  key,
	}

	if err := m.producer.PublishFrame(ctx, cameraID, task); err != nil {
		return fmt.Errorf("publish frame task: %w", err)
	}
	return nil
}

func (m *Manager) stopCamera(cameraID string) error {
	m.mu.RLock()
	ac, exists := m.cameras[cameraID]
	m.mu.RUnlock()

	if !exists {
		return nil // already stopped
	}

	ac.extractor.Stop()
	ac.cancel()

	slog.Info("stop command sent", "camera_id", cameraID)
	return nil
}

func (m *Manager) updateStatus(cameraID string, status models.CameraStatus, errMsg string) {
	id, err := uuid.Parse(cameraID)
	if err != nil {
		return
	}
	if err := m.db.UpdateCameraStatus(context.Background(), id, status, errMsg); err != nil {
		slog.Error("update camera status", "camera_id", cameraID, "error", err)
	}
}

// ActiveCount returns the number of currently running cameras.
func (m *Manager) ActiveCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.cameras)
}

// StopAll stops all running cameras.
func (m *Manager) StopAll() {
	m.mu.RLock()
	ids := make([]string, 0, len(m.cameras))
	for id := range m.cameras {
		ids = append(ids, id)
	}
	m.mu.RUnlock()

	for _, id := range ids {
		_ = m.stopCamera(id)
	}
}

// RunRetentionSweep periodically trims each active camera's stored frames
// down to the configured retention count. Frames already consumed by the
// worker are just bytes in MinIO; only the newest matter for debugging.
func (m *Manager) RunRetentionSweep(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.mu.RLock()
			ids := make([]string, 0, len(m.cameras))
			for id := range m.cameras {
				ids = append(ids, id)
			}
			m.mu.RUnlock()

			for _, id := range ids {
				if err := m.trimFrames(ctx, id); err != nil {
					slog.Warn("frame retention sweep", "camera_id", id, "error", err)
				}
			}
		}
	}
}

func (m *Manager) trimFrames(ctx context.Context, cameraID string) error {
	keys, err := m.minio.ListObjects(ctx, fmt.Sprintf("frames/%s/", cameraID))
	if err != nil {
		return err
	}
	if len(keys) <= m.retention {
		return nil
	}

	sort.Strings(keys)
	stale := keys[:len(keys)-m.retention]
	return m.minio.DeleteObjects(ctx, stale)
}

// ParseCommand parses a NATS control message into a CameraCommand.
func ParseCommand(data []byte) (CameraCommand, error) {
	var cmd CameraCommand
	if err := json.Unmarshal(data, &cmd); err != nil {
		return cmd, fmt.Errorf("parse command: %w", err)
	}
	return cmd, nil
}
