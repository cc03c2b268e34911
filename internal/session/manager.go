package session

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/your-org/faceclock/internal/attendance"
	"github.com/your-org/faceclock/internal/identity"
	"github.com/your-org/faceclock/internal/liveness"
	"github.com/your-org/faceclock/internal/models"
	"github.com/your-org/faceclock/internal/observability"
	"github.com/your-org/faceclock/internal/recognition"
	"github.com/your-org/faceclock/internal/storage"
)

// Manager routes frame tasks to per-camera sessions, creating each session
// lazily on a camera's first frame. Sessions share the embedder pool, the
// identity index and the attendance machine; recognition and liveness state
// is per camera.
type Manager struct {
	index  *identity.Index
	gate   *attendance.Machine
	pool   *Pool
	events EventSink
	frames *storage.MinIOStore
	db     *storage.PostgresStore

	engineCfg recognition.Config
	liveCfg   liveness.Config

	mu       sync.Mutex
	sessions map[uuid.UUID]*Session
}

func NewManager(index *identity.Index, gate *attendance.Machine, pool *Pool, events EventSink, frames *storage.MinIOStore, db *storage.PostgresStore, engineCfg recognition.Config, liveCfg liveness.Config) *Manager {
	return &Manager{
		index:     index,
		gate:      gate,
		pool:      pool,
		events:    events,
		frames:    frames,
		db:        db,
		engineCfg: engineCfg,
		liveCfg:   liveCfg,
		sessions:  make(map[uuid.UUID]*Session),
	}
}

// HandleTask processes one queued frame task: fetch the frame bytes and feed
// them to the camera's session in arrival order.
func (m *Manager) HandleTask(ctx context.Context, task models.FrameTask) error {
	data, err := m.frames.GetObject(ctx, task.FrameRef)
	if err != nil {
		return fmt.Errorf("fetch frame %s: %w", task.FrameRef, err)
	}

	sess, err := m.sessionFor(ctx, task.CameraID)
	if err != nil {
		return err
	}

	return sess.HandleFrame(ctx, data, task.Timestamp, task.FrameRef)
}

// EndSession tears down a camera's session, if one exists. Called when a
// camera is stopped or deleted.
func (m *Manager) EndSession(cameraID uuid.UUID) {
	m.mu.Lock()
	sess, ok := m.sessions[cameraID]
	if ok {
		delete(m.sessions, cameraID)
	}
	m.mu.Unlock()

	if ok {
		sess.End()
		observability.ActiveCameras.Dec()
	}
}

func (m *Manager) sessionFor(ctx context.Context, cameraID uuid.UUID) (*Session, error) {
	m.mu.Lock()
	if sess, ok := m.sessions[cameraID]; ok {
		m.mu.Unlock()
		return sess, nil
	}
	m.mu.Unlock()

	cam, err := m.db.GetCamera(ctx, cameraID)
	if err != nil {
		return nil, fmt.Errorf("load camera %s: %w", cameraID, err)
	}

	action := models.ActionAuto
	if cam != nil && cam.Action != "" {
		action = cam.Action
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if sess, ok := m.sessions[cameraID]; ok {
		return sess, nil
	}

	sess := New(
		cameraID,
		action,
		recognition.NewEngine(m.index, m.engineCfg),
		liveness.NewSession(m.liveCfg),
		m.gate,
		m.pool,
		m.events,
	)
	m.sessions[cameraID] = sess
	observability.ActiveCameras.Inc()
	return sess, nil
}
