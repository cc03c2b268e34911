package identity

import (
	"context"
	"log/slog"
	"time"

	"github.com/your-org/faceclock/internal/models"
)

// LoadFunc fetches the current active identities with their embeddings.
type LoadFunc func(ctx context.Context) ([]models.Identity, error)

// Reloader refreshes an Index strictly on demand. The index is loaded once at
// startup and again only when Notify is called (enrollment changes arriving
// over the control subject), never on a timer.
type Reloader struct {
	index *Index
	load  LoadFunc
	kick  chan struct{}
}

func NewReloader(index *Index, load LoadFunc) *Reloader {
	return &Reloader{
		index: index,
		load:  load,
		kick:  make(chan struct{}, 1),
	}
}

// Notify requests a reload. Non-blocking; requests arriving while a reload
// is already pending coalesce into one.
func (r *Reloader) Notify() {
	select {
	case r.kick <- struct{}{}:
	default:
	}
}

// Run serves reload requests until the context is cancelled. A failed load
// keeps the previous snapshot in place.
func (r *Reloader) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-r.kick:
			if err := r.reload(ctx); err != nil {
				slog.Warn("reload identity index", "error", err)
			}
		}
	}
}

func (r *Reloader) reload(ctx context.Context) error {
	loadCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	identities, err := r.load(loadCtx)
	if err != nil {
		return err
	}
	r.index.Load(identities)
	slog.Info("identity index reloaded", "size", r.index.Size())
	return nil
}
