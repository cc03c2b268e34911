package identity

import (
	"math"
	"sync"

	"github.com/google/uuid"

	"github.com/your-org/faceclock/internal/models"
)

// Index holds the known (identity, embedding) pairs and answers
// nearest-match queries. The whole set is replaced atomically by Load;
// queries are pure reads over the loaded snapshot.
type Index struct {
	mu      sync.RWMutex
	entries []entry
}

type entry struct {
	identityID uuid.UUID
	name       string
	embedding  []float32
}

func NewIndex() *Index {
	return &Index{}
}

// Load replaces the entire index with the given identities. Identities with
// no embeddings are skipped; they cannot participate in matching. Each
// embedding becomes an independent candidate point owned by its identity.
func (ix *Index) Load(identities []models.Identity) {
	var entries []entry
	for _, id := range identities {
		for _, emb := range id.Embeddings {
			if len(emb) == 0 {
				continue
			}
			entries = append(entries, entry{
				identityID: id.ID,
				name:       id.Name,
				embedding:  emb,
			})
		}
	}

	ix.mu.Lock()
	ix.entries = entries
	ix.mu.Unlock()
}

// Size returns the number of candidate embeddings currently loaded.
func (ix *Index) Size() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.entries)
}

// Match finds the globally closest stored embedding to the query and declares
// a match when its Euclidean distance is within tolerance (inclusive). An
// empty index yields unmatched with a +Inf distance, never an error. Ties
// keep the first candidate in load order.
func (ix *Index) Match(embedding []float32, tolerance float64) models.MatchResult {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	best := -1
	bestDist := float32(math.Inf(1))

	for i := range ix.entries {
		d := euclideanDistance(embedding, ix.entries[i].embedding)
		if d < bestDist {
			bestDist = d
			best = i
		}
	}

	if best < 0 || float64(bestDist) > tolerance {
		return models.MatchResult{Distance: bestDist, Confidence: 0}
	}

	e := ix.entries[best]
	id := e.identityID
	conf := 1 - bestDist
	if conf < 0 {
		conf = 0
	}
	return models.MatchResult{
		IdentityID: &id,
		Name:       e.name,
		Distance:   bestDist,
		Confidence: conf,
	}
}

// euclideanDistance returns the L2 distance between two vectors. Vectors of
// different lengths are maximally distant.
func euclideanDistance(a, b []float32) float32 {
	if len(a) != len(b) {
		return float32(math.Inf(1))
	}
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return float32(math.Sqrt(sum))
}
