package identity

import (
	"math"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/your-org/faceclock/internal/models"
)

func vec(vals ...float32) []float32 { return vals }

func TestMatchEmptyIndex(t *testing.T) {
	ix := NewIndex()

	m := ix.Match(vec(1, 0, 0), 0.6)

	assert.Nil(t, m.IdentityID)
	assert.True(t, math.IsInf(float64(m.Distance), 1))
}

func TestMatchNearestWithinTolerance(t *testing.T) {
	alice := uuid.New()
	bob := uuid.New()

	ix := NewIndex()
	ix.Load([]models.Identity{
		{ID: alice, Name: "Alice", Embeddings: [][]float32{vec(1, 0, 0)}},
		{ID: bob, Name: "Bob", Embeddings: [][]float32{vec(0, 1, 0)}},
	})

	m := ix.Match(vec(0.9, 0, 0), 0.6)

	require.NotNil(t, m.IdentityID)
	assert.Equal(t, alice, *m.IdentityID)
	assert.Equal(t, "Alice", m.Name)
	assert.InDelta(t, 0.1, float64(m.Distance), 1e-4)
	assert.InDelta(t, 0.9, float64(m.Confidence), 1e-4)
}

func TestMatchToleranceBoundary(t *testing.T) {
	id := uuid.New()
	ix := NewIndex()
	ix.Load([]models.Identity{
		{ID: id, Name: "Alice", Embeddings: [][]float32{vec(0, 0)}},
	})

	// Distance exactly at tolerance matches; just beyond does not.
	at := ix.Match(vec(0.6, 0), 0.6)
	require.NotNil(t, at.IdentityID)
	assert.Equal(t, id, *at.IdentityID)

	beyond := ix.Match(vec(0.601, 0), 0.6)
	assert.Nil(t, beyond.IdentityID)
}

func TestMatchTieKeepsFirstLoaded(t *testing.T) {
	first := uuid.New()
	second := uuid.New()

	ix := NewIndex()
	ix.Load([]models.Identity{
		{ID: first, Name: "First", Embeddings: [][]float32{vec(1, 0)}},
		{ID: second, Name: "Second", Embeddings: [][]float32{vec(1, 0)}},
	})

	m := ix.Match(vec(1, 0), 0.6)

	require.NotNil(t, m.IdentityID)
	assert.Equal(t, first, *m.IdentityID)
}

func TestMatchLengthMismatch(t *testing.T) {
	ix := NewIndex()
	ix.Load([]models.Identity{
		{ID: uuid.New(), Name: "Alice", Embeddings: [][]float32{vec(1, 0, 0)}},
	})

	m := ix.Match(vec(1, 0), 0.6)
	assert.Nil(t, m.IdentityID)
}

func TestLoadReplacesAndSkipsEmpty(t *testing.T) {
	kept := uuid.New()

	ix := NewIndex()
	ix.Load([]models.Identity{
		{ID: uuid.New(), Name: "Old", Embeddings: [][]float32{vec(5, 5)}},
	})
	assert.Equal(t, 1, ix.Size())

	ix.Load([]models.Identity{
		{ID: kept, Name: "Kept", Embeddings: [][]float32{vec(1, 0), vec(0.9, 0.1)}},
		{ID: uuid.New(), Name: "NoFaces"},
		{ID: uuid.New(), Name: "EmptyVec", Embeddings: [][]float32{{}}},
	})

	assert.Equal(t, 2, ix.Size())
	m := ix.Match(vec(5, 5), 10)
	require.NotNil(t, m.IdentityID)
	assert.Equal(t, kept, *m.IdentityID)
}

func TestMatchMultipleEmbeddingsPerIdentity(t *testing.T) {
	id := uuid.New()
	ix := NewIndex()
	ix.Load([]models.Identity{
		{ID: id, Name: "Alice", Embeddings: [][]float32{vec(1, 0), vec(0, 1)}},
	})

	// Either stored pose should resolve to the same identity.
	m1 := ix.Match(vec(0.95, 0), 0.6)
	m2 := ix.Match(vec(0, 0.95), 0.6)

	require.NotNil(t, m1.IdentityID)
	require.NotNil(t, m2.IdentityID)
	assert.Equal(t, id, *m1.IdentityID)
	assert.Equal(t, id, *m2.IdentityID)
}
