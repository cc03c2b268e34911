package identity

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/your-org/faceclock/internal/models"
)

func TestReloaderReloadsOnlyOnNotify(t *testing.T) {
	var loads atomic.Int32

	ix := NewIndex()
	r := NewReloader(ix, func(context.Context) ([]models.Identity, error) {
		loads.Add(1)
		return []models.Identity{
			{ID: uuid.New(), Name: "Alice", Embeddings: [][]float32{{1, 0, 0}}},
		}, nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go r.Run(ctx)

	// Nothing may load until someone asks.
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(0), loads.Load())
	assert.Equal(t, 0, ix.Size())

	r.Notify()
	require.Eventually(t, func() bool { return ix.Size() == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, int32(1), loads.Load())

	// And nothing loads again until the next request.
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(1), loads.Load())
}

func TestReloaderCoalescesPendingRequests(t *testing.T) {
	var loads atomic.Int32

	ix := NewIndex()
	r := NewReloader(ix, func(context.Context) ([]models.Identity, error) {
		loads.Add(1)
		return nil, nil
	})

	// Requests queued before the loop drains them collapse into one reload.
	r.Notify()
	r.Notify()
	r.Notify()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go r.Run(ctx)

	require.Eventually(t, func() bool { return loads.Load() == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(1), loads.Load())
}
