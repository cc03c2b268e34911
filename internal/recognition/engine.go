package recognition

import (
	"fmt"
	"image"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"

	"github.com/your-org/faceclock/internal/identity"
	"github.com/your-org/faceclock/internal/models"
	"github.com/your-org/faceclock/internal/vision"
)

// Embedder detects faces in an image and produces their embeddings and eye
// landmarks. It must return an empty slice (not an error) for frames with no
// faces; errors mean the frame itself could not be processed.
type Embedder interface {
	DetectAndEncode(img image.Image) ([]models.Detection, error)
}

// Config tunes one recognition engine.
type Config struct {
	// Tolerance is the maximum embedding distance accepted as a match.
	Tolerance float64
	// ScaleFactor downsizes frames before detection, in (0,1].
	ScaleFactor float64
	// SkipFrames is how many consecutive frames may reuse the previous
	// result set before a fresh compute is forced.
	SkipFrames int
	// CacheTimeout bounds the exact-frame fingerprint cache.
	CacheTimeout time.Duration
}

// Engine runs per-frame detection + matching for a single camera session.
// It is owned exclusively by that session: Intake is called from the frame
// intake path and Complete from the in-order result applier, so internal
// state needs no locking beyond that discipline.
//
// Two caches bound per-frame cost: a skip-frame cache replaying the last
// computed result set for up to SkipFrames frames, and an exact-frame
// fingerprint cache short-circuiting the embedder for byte-identical frames.
// Results served from either cache carry Stale=true and must never drive an
// attendance transition.
type Engine struct {
	index *identity.Index
	cfg   Config

	framesSinceCompute int
	haveResults        bool
	lastResults        []models.MatchResult

	frameCache map[uint64]frameCacheEntry
	unknowns   map[gridKey]unknownEntry
}

type frameCacheEntry struct {
	results  []models.MatchResult
	cachedAt time.Time
}

// gridKey quantizes a box center so the same unknown face maps to a stable
// key across small movements.
type gridKey struct {
	cx, cy int
}

const unknownGridCell = 64

// unknownTTL is how long a pseudo-identity survives without being seen.
const unknownTTL = 10 * time.Second

type unknownEntry struct {
	pseudoID string
	lastSeen time.Time
}

// Frame is a prepared unit of embedder work: the downscaled image plus the
// bookkeeping Complete needs to finish the frame.
type Frame struct {
	Img         image.Image
	Fingerprint uint64
	Timestamp   time.Time
}

func NewEngine(index *identity.Index, cfg Config) *Engine {
	if cfg.ScaleFactor <= 0 || cfg.ScaleFactor > 1 {
		cfg.ScaleFactor = 1
	}
	if cfg.CacheTimeout <= 0 {
		cfg.CacheTimeout = 2 * time.Second
	}
	return &Engine{
		index:      index,
		cfg:        cfg,
		frameCache: make(map[uint64]frameCacheEntry),
		unknowns:   make(map[gridKey]unknownEntry),
	}
}

// Intake decides what to do with an arriving frame. It returns either cached
// results (stale, feedback-only) or a prepared Frame for the embedder pool.
// A decode failure is a transient per-frame error: the caller logs it, skips
// the frame, and continues.
func (e *Engine) Intake(raw []byte, now time.Time) (cached []models.MatchResult, frame *Frame, err error) {
	fp := xxhash.Sum64(raw)

	// Exact-frame cache: identical bytes seen within the TTL.
	if entry, ok := e.frameCache[fp]; ok {
		if now.Sub(entry.cachedAt) <= e.cfg.CacheTimeout {
			return markStale(entry.results), nil, nil
		}
		delete(e.frameCache, fp)
	}

	// Skip-frame cache: replay the previous result set for bounded cost.
	if e.haveResults && e.framesSinceCompute < e.cfg.SkipFrames {
		e.framesSinceCompute++
		return markStale(e.lastResults), nil, nil
	}

	img, err := vision.DecodeImage(raw)
	if err != nil {
		return nil, nil, fmt.Errorf("decode frame: %w", err)
	}

	if e.cfg.ScaleFactor < 1 {
		w := int(float64(img.Bounds().Dx()) * e.cfg.ScaleFactor)
		h := int(float64(img.Bounds().Dy()) * e.cfg.ScaleFactor)
		if w > 0 && h > 0 {
			img = vision.Resize(img, w, h)
		}
	}

	return nil, &Frame{Img: img, Fingerprint: fp, Timestamp: now}, nil
}

// Complete finishes a frame whose embedder work ran on the pool: rescales
// boxes back to source coordinates, matches each detection against the
// identity index, assigns stable pseudo-IDs to unknown faces, and refreshes
// both caches. An embedder error degrades to "no faces this frame".
func (e *Engine) Complete(f *Frame, detections []models.Detection, embedErr error, now time.Time) []models.MatchResult {
	if embedErr != nil {
		detections = nil
	}

	results := make([]models.MatchResult, 0, len(detections))
	for _, det := range detections {
		m := e.index.Match(det.Embedding, e.cfg.Tolerance)
		m.Box = rescaleBox(det.Box, e.cfg.ScaleFactor)
		if !m.Matched() {
			m.PseudoID = e.pseudoID(m.Box, now)
		}
		results = append(results, m)
	}

	e.lastResults = results
	e.haveResults = true
	e.framesSinceCompute = 0
	e.frameCache[f.Fingerprint] = frameCacheEntry{results: results, cachedAt: now}
	e.pruneFrameCache(now)

	return results
}

// Reset drops all cached state (index reload, session restart).
func (e *Engine) Reset() {
	e.framesSinceCompute = 0
	e.haveResults = false
	e.lastResults = nil
	e.frameCache = make(map[uint64]frameCacheEntry)
	e.unknowns = make(map[gridKey]unknownEntry)
}

// pseudoID returns a stable session-local identifier for an unknown face at
// roughly this location, so the same stranger is not re-announced every
// frame. This is a weak location heuristic, not re-identification.
func (e *Engine) pseudoID(box models.Box, now time.Time) string {
	cx, cy := box.Center()
	key := gridKey{cx: cx / unknownGridCell, cy: cy / unknownGridCell}

	if entry, ok := e.unknowns[key]; ok && now.Sub(entry.lastSeen) <= unknownTTL {
		entry.lastSeen = now
		e.unknowns[key] = entry
		return entry.pseudoID
	}

	id := "unknown-" + uuid.NewString()[:8]
	e.unknowns[key] = unknownEntry{pseudoID: id, lastSeen: now}

	for k, v := range e.unknowns {
		if now.Sub(v.lastSeen) > unknownTTL {
			delete(e.unknowns, k)
		}
	}
	return id
}

// pruneFrameCache lazily evicts fingerprint entries past the TTL.
func (e *Engine) pruneFrameCache(now time.Time) {
	for fp, entry := range e.frameCache {
		if now.Sub(entry.cachedAt) > e.cfg.CacheTimeout {
			delete(e.frameCache, fp)
		}
	}
}

// rescaleBox maps a box from detection coordinates back to source-frame
// coordinates by dividing by the scale factor.
func rescaleBox(b models.Box, scale float64) models.Box {
	if scale >= 1 || scale <= 0 {
		return b
	}
	return models.Box{
		Top:    int(float64(b.Top) / scale),
		Right:  int(float64(b.Right) / scale),
		Bottom: int(float64(b.Bottom) / scale),
		Left:   int(float64(b.Left) / scale),
	}
}

func markStale(results []models.MatchResult) []models.MatchResult {
	out := make([]models.MatchResult, len(results))
	copy(out, results)
	for i := range out {
		out[i].Stale = true
	}
	return out
}
