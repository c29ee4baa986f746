// Package geo implements the small geodesy helpers the navigation engine
// needs: great-circle distance, corridor containment, and polygon
// containment. All three operate on plain WGS84 lat/lon degrees and are
// accurate enough for the corridor/geofence scales NAVscout flies at (tens
// of meters to a few kilometers); they are not suitable for long-range
// navigation.
package geo

import "math"

const earthRadiusM = 6_371_000.0

// Point is a WGS84 coordinate in degrees.
type Point struct {
	Lat float64
	Lon float64
}

// HaversineMeters returns the great-circle distance between two points.
func HaversineMeters(lat1, lon1, lat2, lon2 float64) float64 {
	dLat := toRad(lat2 - lat1)
	dLon := toRad(lon2 - lon1)
	a := math.Pow(math.Sin(dLat/2), 2) +
		math.Cos(toRad(lat1))*math.Cos(toRad(lat2))*math.Pow(math.Sin(dLon/2), 2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return earthRadiusM * c
}

// PointInCorridor reports whether (lat,lon) lies within corridorWidthM/2 of
// any segment of the waypoint polyline. Fewer than two waypoints can form no
// corridor and always returns false.
func PointInCorridor(waypoints []Point, corridorWidthM, lat, lon float64) bool {
	if len(waypoints) < 2 {
		return false
	}
	half := corridorWidthM / 2
	for i := 0; i < len(waypoints)-1; i++ {
		a, b := waypoints[i], waypoints[i+1]
		if distPointToSegmentM(lat, lon, a.Lat, a.Lon, b.Lat, b.Lon) <= half {
			return true
		}
	}
	return false
}

// distPointToSegmentM projects onto a local equirectangular plane centered
// on the segment's first endpoint; accurate for small (sub-city-scale)
// areas, which is the only regime NAVscout's corridors operate in.
func distPointToSegmentM(px, py, ax, ay, bx, by float64) float64 {
	x, y := toXY(px, py, ax, ay)
	bx2, by2 := toXY(bx, by, ax, ay)

	vx, vy := bx2, by2
	wx, wy := x, y

	c1 := wx*vx + wy*vy
	if c1 <= 0 {
		return math.Hypot(wx, wy)
	}
	c2 := vx*vx + vy*vy
	if c2 <= c1 {
		return math.Hypot(x-bx2, y-by2)
	}
	t := c1 / c2
	projX, projY := t*vx, t*vy
	return math.Hypot(x-projX, y-projY)
}

func toXY(lat, lon, lat0, lon0 float64) (float64, float64) {
	x := toRad(lon-lon0) * earthRadiusM * math.Cos(toRad(lat0))
	y := toRad(lat-lat0) * earthRadiusM
	return x, y
}

// PointInPolygon reports whether (lat,lon) lies inside the polygon using
// even-odd ray casting. Polygons with fewer than three vertices contain
// nothing.
func PointInPolygon(poly []Point, lat, lon float64) bool {
	n := len(poly)
	if n < 3 {
		return false
	}
	inside := false
	j := n - 1
	for i := 0; i < n; i++ {
		xi, yi := poly[i].Lon, poly[i].Lat
		xj, yj := poly[j].Lon, poly[j].Lat
		intersect := (yi > lat) != (yj > lat) &&
			lon < (xj-xi)*(lat-yi)/(yj-yi+1e-12)+xi
		if intersect {
			inside = !inside
		}
		j = i
	}
	return inside
}

func toRad(deg float64) float64 {
	return deg * math.Pi / 180
}
