package recognition

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/your-org/faceclock/internal/identity"
	"github.com/your-org/faceclock/internal/models"
)

// frameBytes produces a decodable frame whose pixels (and hence fingerprint)
// depend on seed.
func frameBytes(t *testing.T, seed uint8) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 16, 16))
	for y := 0; y < 16; y++ {
		for x := 0; x < 16; x++ {
			img.Set(x, y, color.RGBA{R: seed, G: uint8(x), B: uint8(y), A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func loadedIndex(id uuid.UUID) *identity.Index {
	ix := identity.NewIndex()
	ix.Load([]models.Identity{
		{ID: id, Name: "Alice", Embeddings: [][]float32{{1, 0, 0}}},
	})
	return ix
}

func detection(emb []float32, box models.Box) models.Detection {
	return models.Detection{Box: box, Embedding: emb, Confidence: 0.9}
}

func TestIntakeFreshFrame(t *testing.T) {
	e := NewEngine(identity.NewIndex(), Config{Tolerance: 0.6, ScaleFactor: 1})

	cached, frame, err := e.Intake(frameBytes(t, 1), time.Now())
	require.NoError(t, err)
	assert.Nil(t, cached)
	require.NotNil(t, frame)
	assert.Equal(t, 16, frame.Img.Bounds().Dx())
}

func TestIntakeDecodeError(t *testing.T) {
	e := NewEngine(identity.NewIndex(), Config{Tolerance: 0.6, ScaleFactor: 1})

	cached, frame, err := e.Intake([]byte("not an image"), time.Now())
	assert.Error(t, err)
	assert.Nil(t, cached)
	assert.Nil(t, frame)
}

func TestIntakeScalesFrame(t *testing.T) {
	e := NewEngine(identity.NewIndex(), Config{Tolerance: 0.6, ScaleFactor: 0.5})

	_, frame, err := e.Intake(frameBytes(t, 1), time.Now())
	require.NoError(t, err)
	require.NotNil(t, frame)
	assert.Equal(t, 8, frame.Img.Bounds().Dx())
	assert.Equal(t, 8, frame.Img.Bounds().Dy())
}

func TestSkipFrameReplay(t *testing.T) {
	id := uuid.New()
	e := NewEngine(loadedIndex(id), Config{Tolerance: 0.6, ScaleFactor: 1, SkipFrames: 2})
	now := time.Now()

	_, frame, err := e.Intake(frameBytes(t, 1), now)
	require.NoError(t, err)
	require.NotNil(t, frame)

	results := e.Complete(frame, []models.Detection{
		detection([]float32{1, 0, 0}, models.Box{Top: 10, Right: 40, Bottom: 40, Left: 10}),
	}, nil, now)
	require.Len(t, results, 1)
	assert.False(t, results[0].Stale)

	// The next SkipFrames distinct frames replay the last result set,
	// marked stale.
	for i := 0; i < 2; i++ {
		cached, frame, err := e.Intake(frameBytes(t, uint8(10+i)), now.Add(time.Duration(i+1)*66*time.Millisecond))
		require.NoError(t, err)
		assert.Nil(t, frame)
		require.Len(t, cached, 1)
		assert.True(t, cached[0].Stale)
		assert.Equal(t, id, *cached[0].IdentityID)
	}

	// The skip budget is spent; the next frame must be computed fresh.
	cached, frame, err := e.Intake(frameBytes(t, 20), now.Add(time.Second))
	require.NoError(t, err)
	assert.Nil(t, cached)
	assert.NotNil(t, frame)
}

func TestFingerprintCache(t *testing.T) {
	id := uuid.New()
	e := NewEngine(loadedIndex(id), Config{Tolerance: 0.6, ScaleFactor: 1, CacheTimeout: 2 * time.Second})
	now := time.Now()
	raw := frameBytes(t, 1)

	_, frame, err := e.Intake(raw, now)
	require.NoError(t, err)
	e.Complete(frame, []models.Detection{
		detection([]float32{1, 0, 0}, models.Box{Top: 0, Right: 10, Bottom: 10, Left: 0}),
	}, nil, now)

	// Identical bytes within the TTL short-circuit the embedder entirely.
	cached, frame, err := e.Intake(raw, now.Add(time.Second))
	require.NoError(t, err)
	assert.Nil(t, frame)
	require.Len(t, cached, 1)
	assert.True(t, cached[0].Stale)

	// Past the TTL the fingerprint entry is dead and the frame recomputes.
	cached, frame, err = e.Intake(raw, now.Add(3*time.Second))
	require.NoError(t, err)
	assert.Nil(t, cached)
	assert.NotNil(t, frame)
}

func TestCompleteEmbedderError(t *testing.T) {
	e := NewEngine(identity.NewIndex(), Config{Tolerance: 0.6, ScaleFactor: 1})
	now := time.Now()

	_, frame, err := e.Intake(frameBytes(t, 1), now)
	require.NoError(t, err)

	results := e.Complete(frame, []models.Detection{
		detection([]float32{1, 0, 0}, models.Box{}),
	}, assert.AnError, now)

	assert.Empty(t, results)
}

func TestCompleteRescalesBoxes(t *testing.T) {
	id := uuid.New()
	e := NewEngine(loadedIndex(id), Config{Tolerance: 0.6, ScaleFactor: 0.5})
	now := time.Now()

	_, frame, err := e.Intake(frameBytes(t, 1), now)
	require.NoError(t, err)

	results := e.Complete(frame, []models.Detection{
		detection([]float32{1, 0, 0}, models.Box{Top: 5, Right: 20, Bottom: 20, Left: 5}),
	}, nil, now)

	require.Len(t, results, 1)
	assert.Equal(t, models.Box{Top: 10, Right: 40, Bottom: 40, Left: 10}, results[0].Box)
}

func TestPseudoIDStability(t *testing.T) {
	e := NewEngine(identity.NewIndex(), Config{Tolerance: 0.6, ScaleFactor: 1})
	now := time.Now()
	box := models.Box{Top: 100, Right: 150, Bottom: 150, Left: 100}

	_, frame, err := e.Intake(frameBytes(t, 1), now)
	require.NoError(t, err)
	first := e.Complete(frame, []models.Detection{detection([]float32{0, 1, 0}, box)}, nil, now)
	require.Len(t, first, 1)
	assert.Nil(t, first[0].IdentityID)
	assert.NotEmpty(t, first[0].PseudoID)

	// The same unknown face in roughly the same place keeps its pseudo-ID
	// on the next compute.
	later := now.Add(200 * time.Millisecond)
	_, frame, err = e.Intake(frameBytes(t, 2), later)
	require.NoError(t, err)
	nearby := models.Box{Top: 96, Right: 146, Bottom: 146, Left: 96}
	second := e.Complete(frame, []models.Detection{detection([]float32{0, 1, 0}, nearby)}, nil, later)
	require.Len(t, second, 1)
	assert.Equal(t, first[0].PseudoID, second[0].PseudoID)
}

func TestResetDropsCaches(t *testing.T) {
	e := NewEngine(identity.NewIndex(), Config{Tolerance: 0.6, ScaleFactor: 1, SkipFrames: 3})
	now := time.Now()

	_, frame, err := e.Intake(frameBytes(t, 1), now)
	require.NoError(t, err)
	e.Complete(frame, nil, nil, now)

	e.Reset()

	// No replay after reset: the frame is computed fresh.
	cached, frame, err := e.Intake(frameBytes(t, 2), now.Add(66*time.Millisecond))
	require.NoError(t, err)
	assert.Nil(t, cached)
	assert.NotNil(t, frame)
}
