package vision

import (
	"fmt"
	"image"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/your-org/faceclock/internal/models"
)

// numLandmarks is the point count of the InsightFace 2d106det model.
const numLandmarks = 106

// Six-point eye subsets of the 106-point layout, ordered the way the eye
// aspect ratio expects: left corner, upper pair, right corner, lower pair.
var (
	leftEyeIdx  = [6]int{35, 41, 40, 39, 37, 36}
	rightEyeIdx = [6]int{89, 95, 94, 93, 91, 90}
)

// LandmarkPredictor locates dense facial landmarks on a face crop using the
// InsightFace 2d106det model. Only the eye subsets are consumed downstream.
type LandmarkPredictor struct {
	session      *ort.AdvancedSession
	inputTensor  *ort.Tensor[float32]
	outputTensor *ort.Tensor[float32]
	inputW       int
	inputH       int
}

// NewLandmarkPredictor loads the 106-point landmark ONNX model.
func NewLandmarkPredictor(modelPath string) (*LandmarkPredictor, error) {
	// 2d106det expects 192x192 input
	inputW, inputH := 192, 192

	inputShape := ort.NewShape(1, 3, int64(inputH), int64(inputW))
	inputTensor, err := ort.NewEmptyTensor[float32](inputShape)
	if err != nil {
		return nil, fmt.Errorf("create input tensor: %w", err)
	}

	// Output: [1, 212], x,y pairs in [-1,1] model space
	outputShape := ort.NewShape(1, int64(numLandmarks*2))
	outputTensor, err := ort.NewEmptyTensor[float32](outputShape)
	if err != nil {
		inputTensor.Destroy()
		return nil, fmt.Errorf("create output tensor: %w", err)
	}

	session, err := ort.NewAdvancedSession(modelPath,
		[]string{"data"},
		[]string{"fc1"},
		[]ort.Value{inputTensor},
		[]ort.Value{outputTensor},
		nil,
	)
	if err != nil {
		inputTensor.Destroy()
		outputTensor.Destroy()
		return nil, fmt.Errorf("create landmark session: %w", err)
	}

	return &LandmarkPredictor{
		session:      session,
		inputTensor:  inputTensor,
		outputTensor: outputTensor,
		inputW:       inputW,
		inputH:       inputH,
	}, nil
}

// EyePoints runs landmark prediction on a face crop and returns both eyes'
// six-point sets in source-image coordinates. faceData should be CHW format
// [3, 192, 192]; cropW/cropH are the crop's pixel dimensions and origin is
// the crop's offset in the source image.
func (p *LandmarkPredictor) EyePoints(faceData []float32, cropW, cropH int, origin image.Point) (left, right models.EyeLandmarks, err error) {
	inputSlice := p.inputTensor.GetData()
	copy(inputSlice, faceData)

	if err := p.session.Run(); err != nil {
		return left, right, fmt.Errorf("run landmarks: %w", err)
	}

	data := p.outputTensor.GetData()
	if len(data) < numLandmarks*2 {
		return left, right, fmt.Errorf("unexpected output size: %d", len(data))
	}

	// Model space is [-1,1] over the input square; map back through the
	// crop dimensions to source coordinates.
	point := func(i int) models.Point {
		mx := (data[i*2] + 1) / 2
		my := (data[i*2+1] + 1) / 2
		return models.Point{
			X: mx*float32(cropW) + float32(origin.X),
			Y: my*float32(cropH) + float32(origin.Y),
		}
	}

	for i, idx := range leftEyeIdx {
		left[i] = point(idx)
	}
	for i, idx := range rightEyeIdx {
		right[i] = point(idx)
	}

	return left, right, nil
}

// InputSize returns the expected face crop dimensions.
func (p *LandmarkPredictor) InputSize() (int, int) {
	return p.inputW, p.inputH
}

func (p *LandmarkPredictor) Close() {
	if p.session != nil {
		p.session.Destroy()
	}
	if p.inputTensor != nil {
		p.inputTensor.Destroy()
	}
	if p.outputTensor != nil {
		p.outputTensor.Destroy()
	}
}
