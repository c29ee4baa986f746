package geo

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHaversineMetersZero(t *testing.T) {
	d := HaversineMeters(47.0, 8.0, 47.0, 8.0)
	assert.InDelta(t, 0.0, d, 1e-6)
}

func TestHaversineMetersKnownDistance(t *testing.T) {
	// 1 degree of latitude is ~111.2km at any longitude.
	d := HaversineMeters(0, 0, 1, 0)
	assert.InDelta(t, 111195.0, d, 500.0)
}

func TestPointInCorridorRequiresTwoWaypoints(t *testing.T) {
	assert.False(t, PointInCorridor([]Point{{Lat: 47, Lon: 8}}, 60, 47, 8))
	assert.False(t, PointInCorridor(nil, 60, 47, 8))
}

func TestPointInCorridorOnPath(t *testing.T) {
	wp := []Point{{Lat: 47.0, Lon: 8.0}, {Lat: 47.001, Lon: 8.0}}
	require.True(t, PointInCorridor(wp, 60, 47.0005, 8.0))
	assert.False(t, PointInCorridor(wp, 10, 47.0005, 8.001))
}

func TestPointInPolygonRequiresThreeVertices(t *testing.T) {
	assert.False(t, PointInPolygon([]Point{{Lat: 0, Lon: 0}, {Lat: 1, Lon: 1}}, 0.5, 0.5))
}

// Invariant: a square polygon's containment test is invariant under
// relabeling which vertex the list starts from (rotation of the vertex
// order doesn't change which points are inside).
func TestPointInPolygonRotationInvariant(t *testing.T) {
	square := []Point{
		{Lat: 0, Lon: 0},
		{Lat: 0, Lon: 1},
		{Lat: 1, Lon: 1},
		{Lat: 1, Lon: 0},
	}
	inside := PointInPolygon(square, 0.5, 0.5)
	outside := PointInPolygon(square, 2, 2)
	require.True(t, inside)
	require.False(t, outside)

	for shift := 1; shift < len(square); shift++ {
		rotated := append(append([]Point{}, square[shift:]...), square[:shift]...)
		assert.Equal(t, inside, PointInPolygon(rotated, 0.5, 0.5), "shift=%d", shift)
		assert.Equal(t, outside, PointInPolygon(rotated, 2, 2), "shift=%d", shift)
	}
}
