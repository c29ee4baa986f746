// Package tflite implements vision.Detector on top of
// github.com/mattn/go-tflite, mirroring scout-vision/src/tflite.rs (a
// hand-rolled cgo binding to the same C API go-tflite already wraps).
package tflite

import (
	"bytes"
	"fmt"
	"image"
	"image/draw"
	"image/jpeg"
	"sync"

	xdraw "golang.org/x/image/draw"

	tfl "github.com/mattn/go-tflite"

	"github.com/flightpath-dev/navscout/internal/vision"
)

// Detector runs Ultralytics-layout object detection through a loaded
// TFLite model. Not safe for concurrent Detect calls against a single
// instance (the underlying interpreter isn't); callers serialize through
// the mission loop anyway, but Detector guards with a mutex regardless.
type Detector struct {
	mu     sync.Mutex
	cfg    vision.Config
	model  *tfl.Model
	opts   *tfl.InterpreterOptions
	interp *tfl.Interpreter
}

// New loads the model named by cfg.ModelPath and allocates tensors.
// cfg.UseCoral=true is rejected with an error; ModelPathEdgeTPU is not read.
func New(cfg vision.Config) (*Detector, error) {
	if cfg.UseCoral {
		return nil, fmt.Errorf("tflite: vision.use_coral=true requires an EdgeTPU delegate, not wired in this build")
	}

	modelPath := cfg.ModelPath
	model := tfl.NewModelFromFile(modelPath)
	if model == nil {
		return nil, fmt.Errorf("tflite: failed to load model %s", modelPath)
	}

	opts := tfl.NewInterpreterOptions()
	opts.SetNumThread(2)

	interp := tfl.NewInterpreter(model, opts)
	if interp == nil {
		opts.Delete()
		model.Delete()
		return nil, fmt.Errorf("tflite: failed to create interpreter")
	}

	if status := interp.AllocateTensors(); status != tfl.OK {
		interp.Delete()
		opts.Delete()
		model.Delete()
		return nil, fmt.Errorf("tflite: AllocateTensors failed: %v", status)
	}

	return &Detector{cfg: cfg, model: model, opts: opts, interp: interp}, nil
}

// Close releases the underlying model, options, and interpreter.
func (d *Detector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.interp != nil {
		d.interp.Delete()
	}
	if d.opts != nil {
		d.opts.Delete()
	}
	if d.model != nil {
		d.model.Delete()
	}
	return nil
}

// Inspect reports the loaded model's input/output tensor shapes, used by
// `scout vision inspect` to help an operator pick the right output_layout.
func (d *Detector) Inspect() (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	input := d.interp.GetInputTensor(0)
	if input == nil {
		return "", fmt.Errorf("tflite: no input tensor")
	}
	output := d.interp.GetOutputTensor(0)
	if output == nil {
		return "", fmt.Errorf("tflite: no output tensor 0")
	}

	return fmt.Sprintf(
		"TFLite inspect:\n- input[0] dims=%v\n- output[0] dims=%v\n",
		tensorDims(input), tensorDims(output),
	), nil
}

// Detect runs inference on the full jpeg frame.
func (d *Detector) Detect(jpeg []byte) ([]vision.Detection, error) {
	img, err := decodeJPEG(jpeg)
	if err != nil {
		return nil, err
	}
	return d.detectImage(img)
}

// DetectWithROI crops jpeg to roi expanded by the configured margin, runs
// inference on the crop, then remaps every detection back into the
// original (uncropped) image's normalized coordinate frame so tracker
// state stays stable across Scan/Track ROI transitions.
func (d *Detector) DetectWithROI(jpegBytes []byte, roi *vision.ROI) ([]vision.Detection, error) {
	if roi == nil {
		return d.Detect(jpegBytes)
	}
	img, err := decodeJPEG(jpegBytes)
	if err != nil {
		return nil, err
	}

	margin := d.cfg.ROIMargin
	if margin == 0 {
		margin = 0.2
	}
	b := img.Bounds()
	w, h := float32(b.Dx()), float32(b.Dy())

	roiW := minf(roi.W*(1+margin), 1) * w
	roiH := minf(roi.H*(1+margin), 1) * h
	roiX := clampf(roi.Cx*w-roiW/2, 0, w-roiW)
	roiY := clampf(roi.Cy*h-roiH/2, 0, h-roiH)

	cropRect := image.Rect(int(roiX), int(roiY), int(roiX+roiW), int(roiY+roiH))
	cropped := image.NewRGBA(image.Rect(0, 0, cropRect.Dx(), cropRect.Dy()))
	draw.Draw(cropped, cropped.Bounds(), img, cropRect.Min, draw.Src)

	dets, err := d.detectImage(cropped)
	if err != nil {
		return nil, err
	}

	cropWNorm := float32(cropRect.Dx()) / w
	cropHNorm := float32(cropRect.Dy()) / h
	cropXNorm := float32(cropRect.Min.X) / w
	cropYNorm := float32(cropRect.Min.Y) / h

	remapped := make([]vision.Detection, len(dets))
	for i, det := range dets {
		remapped[i] = vision.Detection{
			ClassID: det.ClassID,
			Conf:    det.Conf,
			Cx:      cropXNorm + det.Cx*cropWNorm,
			Cy:      cropYNorm + det.Cy*cropHNorm,
			W:       det.W * cropWNorm,
			H:       det.H * cropHNorm,
		}
	}
	return remapped, nil
}

func (d *Detector) detectImage(img image.Image) ([]vision.Detection, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	resized := image.NewRGBA(image.Rect(0, 0, int(d.cfg.ImgW), int(d.cfg.ImgH)))
	xdraw.BiLinear.Scale(resized, resized.Bounds(), img, img.Bounds(), xdraw.Over, nil)

	rgb := rgbaToRGB(resized)

	input := d.interp.GetInputTensor(0)
	if input == nil {
		return nil, fmt.Errorf("tflite: no input tensor")
	}
	inBuf := input.UInt8s()
	if len(inBuf) < len(rgb) {
		return nil, fmt.Errorf("tflite: input tensor too small: %d < %d", len(inBuf), len(rgb))
	}
	copy(inBuf, rgb)

	if status := d.interp.Invoke(); status != tfl.OK {
		return nil, fmt.Errorf("tflite: Invoke failed: %v", status)
	}

	output := d.interp.GetOutputTensor(0)
	if output == nil {
		return nil, fmt.Errorf("tflite: no output tensor 0")
	}
	dims := tensorDims(output)
	numPreds, stride, err := predStride(dims)
	if err != nil {
		return nil, err
	}

	expectedStride := 5 + d.cfg.NumClasses
	if stride != expectedStride {
		return nil, fmt.Errorf("tflite: stride mismatch: got %d, expected %d (dims %v); run `scout vision inspect`", stride, expectedStride, dims)
	}

	raw := output.Float32s()

	var dets []vision.Detection
	switch d.cfg.OutputLayout {
	case "ultralytics":
		dets = vision.PostprocessUltralytics(raw, numPreds, d.cfg.NumClasses, d.cfg.ConfThreshold)
	default:
		return nil, fmt.Errorf("tflite: unsupported output_layout %q (dims=%v)", d.cfg.OutputLayout, dims)
	}

	return vision.NMSFilter(dets, d.cfg.NMSIoUThreshold, d.cfg.MaxDetections), nil
}

func predStride(dims []int) (numPreds, stride int, err error) {
	switch len(dims) {
	case 3:
		return dims[1], dims[2], nil
	case 2:
		return dims[0], dims[1], nil
	default:
		return 0, 0, fmt.Errorf("tflite: unexpected output dims %v", dims)
	}
}

func tensorDims(t *tfl.Tensor) []int {
	n := t.NumDims()
	dims := make([]int, n)
	for i := 0; i < n; i++ {
		dims[i] = t.Dim(i)
	}
	return dims
}

func decodeJPEG(data []byte) (image.Image, error) {
	img, err := jpeg.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("tflite: decode jpeg: %w", err)
	}
	return img, nil
}

func rgbaToRGB(img *image.RGBA) []byte {
	b := img.Bounds()
	out := make([]byte, 0, b.Dx()*b.Dy()*3)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		rowStart := img.PixOffset(b.Min.X, y)
		row := img.Pix[rowStart : rowStart+b.Dx()*4]
		for x := 0; x < b.Dx(); x++ {
			out = append(out, row[x*4], row[x*4+1], row[x*4+2])
		}
	}
	return out
}

func minf(a, b float32) float32 {
	if a < b {
		return a
	}
	return b
}

func clampf(v, lo, hi float32) float32 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

var _ vision.Detector = (*Detector)(nil)
