package vision

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestROIClamp01(t *testing.T) {
	r := ROI{Cx: -0.5, Cy: 1.5, W: 0.5, H: 2}
	c := r.Clamp01()
	require.Equal(t, ROI{Cx: 0, Cy: 1, W: 0.5, H: 1}, c)
}

func TestPostprocessUltralyticsPicksBestClassAboveThreshold(t *testing.T) {
	// one prediction: cx,cy,w,h,obj, cls0, cls1
	raw := []float32{0.5, 0.5, 0.2, 0.2, 0.9, 0.1, 0.8}
	dets := PostprocessUltralytics(raw, 1, 2, 0.5)
	require.Len(t, dets, 1)
	require.Equal(t, int32(1), dets[0].ClassID)
	require.InDelta(t, 0.9*0.8, dets[0].Conf, 1e-6)
}

func TestPostprocessUltralyticsDropsBelowThreshold(t *testing.T) {
	raw := []float32{0.5, 0.5, 0.2, 0.2, 0.1, 0.1, 0.1}
	dets := PostprocessUltralytics(raw, 1, 2, 0.5)
	require.Empty(t, dets)
}

func TestNMSFilterDropsOverlappingLowerConfidenceBox(t *testing.T) {
	dets := []Detection{
		{ClassID: 0, Conf: 0.9, Cx: 0.5, Cy: 0.5, W: 0.2, H: 0.2},
		{ClassID: 0, Conf: 0.8, Cx: 0.51, Cy: 0.51, W: 0.2, H: 0.2}, // heavy overlap
		{ClassID: 0, Conf: 0.7, Cx: 0.1, Cy: 0.1, W: 0.1, H: 0.1},   // distinct
	}
	kept := NMSFilter(dets, 0.5, 10)
	require.Len(t, kept, 2)
	require.InDelta(t, 0.9, kept[0].Conf, 1e-6)
	require.InDelta(t, 0.7, kept[1].Conf, 1e-6)
}

// TestNMSFilterNoOverlapInvariant verifies that no two kept detections
// have IoU at or above the threshold (spec.md invariant 7).
func TestNMSFilterNoOverlapInvariant(t *testing.T) {
	dets := []Detection{
		{Conf: 0.95, Cx: 0.50, Cy: 0.50, W: 0.3, H: 0.3},
		{Conf: 0.90, Cx: 0.55, Cy: 0.50, W: 0.3, H: 0.3},
		{Conf: 0.85, Cx: 0.20, Cy: 0.80, W: 0.2, H: 0.2},
		{Conf: 0.80, Cx: 0.22, Cy: 0.81, W: 0.2, H: 0.2},
		{Conf: 0.70, Cx: 0.90, Cy: 0.10, W: 0.1, H: 0.1},
	}
	kept := NMSFilter(dets, 0.3, 10)
	for i := 0; i < len(kept); i++ {
		for j := i + 1; j < len(kept); j++ {
			require.Less(t, boxIoU(kept[i], kept[j]), float32(0.3))
		}
	}
}

func TestNMSFilterRespectsMaxDetections(t *testing.T) {
	dets := []Detection{
		{Conf: 0.9, Cx: 0.1, Cy: 0.1, W: 0.05, H: 0.05},
		{Conf: 0.8, Cx: 0.3, Cy: 0.3, W: 0.05, H: 0.05},
		{Conf: 0.7, Cx: 0.5, Cy: 0.5, W: 0.05, H: 0.05},
	}
	kept := NMSFilter(dets, 0.5, 2)
	require.Len(t, kept, 2)
}
