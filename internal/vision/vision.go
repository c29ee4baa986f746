// Package vision defines the detector-agnostic types shared by the
// onboard inference backends, mirroring scout-vision/src/lib.rs: ROI
// geometry, the Detection shape, Ultralytics-layout postprocessing, and
// greedy-NMS filtering.
package vision

import "sort"

// ROI is a normalized (0..1) region of interest expressed in the same
// center+size convention as Detection and tracker.Detection.
type ROI struct {
	Cx, Cy, W, H float32
}

// Clamp01 clamps every field into [0,1].
func (r ROI) Clamp01() ROI {
	return ROI{
		Cx: clamp01(r.Cx),
		Cy: clamp01(r.Cy),
		W:  clamp01(r.W),
		H:  clamp01(r.H),
	}
}

func clamp01(v float32) float32 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}

// Detection is one postprocessed model output, normalized 0..1 in the
// original (not cropped) image frame.
type Detection struct {
	ClassID int32
	Conf    float32
	Cx, Cy, W, H float32
}

// Config describes a configured vision backend, matching the YAML
// schema's vision: section.
type Config struct {
	Enable            bool
	Backend           string // "tflite"
	UseCoral          bool
	ModelPath         string
	ModelPathEdgeTPU  string
	ImgW, ImgH        uint32
	NumClasses        int
	ClassNames        []string
	ConfThreshold     float32
	NMSIoUThreshold   float32
	MaxDetections     int
	OutputLayout      string // "ultralytics"
	ROIEnable         bool
	ROIMargin         float32
	ROIMinSize        float32
}

// Detector is implemented by every inference backend (tflite, stub).
type Detector interface {
	// Detect runs full-frame inference on a JPEG-encoded image.
	Detect(jpeg []byte) ([]Detection, error)
	// DetectWithROI runs inference on a crop of jpeg expanded from roi by
	// the configured margin; implementations must remap results back to
	// the original image's coordinate frame before returning.
	DetectWithROI(jpeg []byte, roi *ROI) ([]Detection, error)
	// Inspect reports the loaded model's input/output tensor shapes.
	Inspect() (string, error)
	Close() error
}

// PostprocessUltralytics decodes a flat Ultralytics-style export tensor
// ([cx, cy, w, h, obj, cls0..clsN] per prediction) into Detections whose
// confidence (obj * best-class-prob) meets confTh.
func PostprocessUltralytics(raw []float32, numPreds, numClasses int, confTh float32) []Detection {
	stride := 5 + numClasses
	out := make([]Detection, 0, numPreds)

	for i := 0; i < numPreds; i++ {
		base := i * stride
		if base+stride > len(raw) {
			break
		}
		cx, cy, w, h, obj := raw[base], raw[base+1], raw[base+2], raw[base+3], raw[base+4]

		bestClass := 0
		bestProb := float32(0)
		for c := 0; c < numClasses; c++ {
			p := raw[base+5+c]
			if p > bestProb {
				bestProb = p
				bestClass = c
			}
		}

		conf := obj * bestProb
		if conf >= confTh {
			out = append(out, Detection{ClassID: int32(bestClass), Conf: conf, Cx: cx, Cy: cy, W: w, H: h})
		}
	}
	return out
}

// NMSFilter greedily keeps the highest-confidence detections, discarding
// any candidate whose IoU against an already-kept box meets or exceeds
// iouTh, until maxDet detections are kept.
func NMSFilter(dets []Detection, iouTh float32, maxDet int) []Detection {
	sorted := make([]Detection, len(dets))
	copy(sorted, dets)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Conf > sorted[j].Conf })

	kept := make([]Detection, 0, maxDet)
outer:
	for _, d := range sorted {
		for _, k := range kept {
			if boxIoU(d, k) >= iouTh {
				continue outer
			}
		}
		kept = append(kept, d)
		if len(kept) >= maxDet {
			break
		}
	}
	return kept
}

func boxIoU(a, b Detection) float32 {
	ax1, ay1, ax2, ay2 := a.Cx-a.W/2, a.Cy-a.H/2, a.Cx+a.W/2, a.Cy+a.H/2
	bx1, by1, bx2, by2 := b.Cx-b.W/2, b.Cy-b.H/2, b.Cx+b.W/2, b.Cy+b.H/2

	ix1, iy1 := max32(ax1, bx1), max32(ay1, by1)
	ix2, iy2 := min32(ax2, bx2), min32(ay2, by2)

	iw, ih := max32(ix2-ix1, 0), max32(iy2-iy1, 0)
	inter := iw * ih

	area1 := max32(ax2-ax1, 0) * max32(ay2-ay1, 0)
	area2 := max32(bx2-bx1, 0) * max32(by2-by1, 0)
	union := area1 + area2 - inter
	if union <= 0 {
		return 0
	}
	return inter / union
}

func max32(a, b float32) float32 {
	if a > b {
		return a
	}
	return b
}

func min32(a, b float32) float32 {
	if a < b {
		return a
	}
	return b
}
