package vision

import (
	"errors"
	"fmt"
	"image"
	"log/slog"
	"path/filepath"
	"time"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/your-org/faceclock/internal/models"
	"github.com/your-org/faceclock/internal/observability"
)

// minEnrollFaceSize is the smallest face crop (shorter side, pixels)
// accepted for enrollment. Smaller faces embed too poorly to match against.
const minEnrollFaceSize = 80

// ErrNoFace is returned by EncodeImage when the photo contains no
// detectable face of acceptable quality.
var ErrNoFace = errors.New("no usable face in image")

// FaceEncoder runs the full per-frame face analysis:
// detect, then per face landmark + embed. One encoder owns three ONNX
// sessions; Run calls on those sessions are not reentrant, so an encoder
// must be driven by one goroutine at a time.
type FaceEncoder struct {
	detector  *Detector
	embedder  *Embedder
	landmarks *LandmarkPredictor
}

// NewFaceEncoder initialises all ONNX models from modelsDir.
func NewFaceEncoder(modelsDir string, detectionThreshold float32, opts *ort.SessionOptions) (*FaceEncoder, error) {
	detPath := filepath.Join(modelsDir, "det_10g.onnx")
	embPath := filepath.Join(modelsDir, "w600k_r50.onnx")
	lmkPath := filepath.Join(modelsDir, "2d106det.onnx")

	slog.Info("loading detection model", "path", detPath)
	det, err := NewDetector(detPath, detectionThreshold, opts)
	if err != nil {
		return nil, fmt.Errorf("load detector: %w", err)
	}

	slog.Info("loading embedding model", "path", embPath)
	emb, err := NewEmbedder(embPath)
	if err != nil {
		det.Close()
		return nil, fmt.Errorf("load embedder: %w", err)
	}

	slog.Info("loading landmark model", "path", lmkPath)
	lmk, err := NewLandmarkPredictor(lmkPath)
	if err != nil {
		det.Close()
		emb.Close()
		return nil, fmt.Errorf("load landmarks: %w", err)
	}

	slog.Info("face encoder ready")

	return &FaceEncoder{
		detector:  det,
		embedder:  emb,
		landmarks: lmk,
	}, nil
}

// DetectAndEncode finds every face in the image and returns, per face, its
// box, embedding and eye landmarks in the image's coordinate space. A face
// whose embedding or landmarks fail is dropped with a warning rather than
// failing the frame.
func (fe *FaceEncoder) DetectAndEncode(img image.Image) ([]models.Detection, error) {
	bounds := img.Bounds()
	origW := bounds.Dx()
	origH := bounds.Dy()

	start := time.Now()
	detInput := preprocessForDetection(img, fe.detector.inputW, fe.detector.inputH)
	observability.InferenceDuration.WithLabelValues("preprocess").Observe(time.Since(start).Seconds())

	start = time.Now()
	raw, err := fe.detector.Detect(detInput, origW, origH)
	if err != nil {
		return nil, fmt.Errorf("detect: %w", err)
	}
	observability.InferenceDuration.WithLabelValues("detect").Observe(time.Since(start).Seconds())

	detections := make([]models.Detection, 0, len(raw))
	for _, rd := range raw {
		box := boxFromBBox(rd.BBox)

		crop, origin := cropFace(img, box)
		if crop == nil {
			continue
		}
		cropW := crop.Bounds().Dx()
		cropH := crop.Bounds().Dy()

		start = time.Now()
		embInput := preprocessForEmbedding(crop, fe.embedder.inputW, fe.embedder.inputH)
		embedding, err := fe.embedder.Extract(embInput)
		if err != nil {
			slog.Warn("embed face", "error", err)
			continue
		}
		observability.InferenceDuration.WithLabelValues("embed").Observe(time.Since(start).Seconds())

		start = time.Now()
		lmkInput := preprocessForLandmarks(crop, fe.landmarks.inputW, fe.landmarks.inputH)
		left, right, err := fe.landmarks.EyePoints(lmkInput, cropW, cropH, origin)
		if err != nil {
			slog.Warn("eye landmarks", "error", err)
			continue
		}
		observability.InferenceDuration.WithLabelValues("landmarks").Observe(time.Since(start).Seconds())

		detections = append(detections, models.Detection{
			Box:        box,
			Confidence: rd.Confidence,
			Embedding:  embedding,
			LeftEye:    left,
			RightEye:   right,
		})
	}

	return detections, nil
}

// EncodeImage extracts a single enrollment embedding from a photo. It picks
// the highest-confidence face, rejects crops below the minimum size, and
// returns the detection confidence as the stored quality score.
func (fe *FaceEncoder) EncodeImage(raw []byte) ([]float32, float32, error) {
	img, err := DecodeImage(raw)
	if err != nil {
		return nil, 0, err
	}

	bounds := img.Bounds()
	detInput := preprocessForDetection(img, fe.detector.inputW, fe.detector.inputH)
	dets, err := fe.detector.Detect(detInput, bounds.Dx(), bounds.Dy())
	if err != nil {
		return nil, 0, fmt.Errorf("detect: %w", err)
	}
	if len(dets) == 0 {
		return nil, 0, ErrNoFace
	}

	best := dets[0]
	for _, d := range dets[1:] {
		if d.Confidence > best.Confidence {
			best = d
		}
	}

	box := boxFromBBox(best.BBox)
	if box.Width() < minEnrollFaceSize || box.Height() < minEnrollFaceSize {
		return nil, 0, fmt.Errorf("%w: face too small (%dx%d)", ErrNoFace, box.Width(), box.Height())
	}

	crop, _ := cropFace(img, box)
	if crop == nil {
		return nil, 0, ErrNoFace
	}

	embInput := preprocessForEmbedding(crop, fe.embedder.inputW, fe.embedder.inputH)
	embedding, err := fe.embedder.Extract(embInput)
	if err != nil {
		return nil, 0, fmt.Errorf("embed: %w", err)
	}

	return embedding, best.Confidence, nil
}

// Close releases all ONNX sessions.
func (fe *FaceEncoder) Close() {
	if fe.detector != nil {
		fe.detector.Close()
	}
	if fe.embedder != nil {
		fe.embedder.Close()
	}
	if fe.landmarks != nil {
		fe.landmarks.Close()
	}
}

func boxFromBBox(b [4]float32) models.Box {
	return models.Box{
		Left:   int(b[0]),
		Top:    int(b[1]),
		Right:  int(b[2]),
		Bottom: int(b[3]),
	}
}
