// Package stub provides a dependency-free vision.Detector used in tests
// and on hosts without a TFLite runtime installed. It never touches the
// image bytes; it exists to exercise the mission loop's vision wiring
// without requiring github.com/mattn/go-tflite's cgo runtime.
package stub

import (
	"fmt"

	"github.com/flightpath-dev/navscout/internal/vision"
)

// Detector returns a fixed, configurable sequence of detections,
// ignoring the actual JPEG bytes it's handed.
type Detector struct {
	fixed []vision.Detection
}

// New constructs a Detector that always returns fixed on Detect /
// DetectWithROI calls.
func New(fixed []vision.Detection) *Detector {
	return &Detector{fixed: fixed}
}

func (d *Detector) Detect(jpeg []byte) ([]vision.Detection, error) {
	return append([]vision.Detection(nil), d.fixed...), nil
}

func (d *Detector) DetectWithROI(jpeg []byte, roi *vision.ROI) ([]vision.Detection, error) {
	return d.Detect(jpeg)
}

func (d *Detector) Inspect() (string, error) {
	return fmt.Sprintf("stub detector: %d fixed detections configured", len(d.fixed)), nil
}

func (d *Detector) Close() error { return nil }

var _ vision.Detector = (*Detector)(nil)
