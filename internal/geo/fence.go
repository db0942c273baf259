package geo

import "github.com/rollcall/rollcall/pkg/polyline"

// DefaultCircleSegments is the vertex count used when drawing a fence.
const DefaultCircleSegments = 36

// Circle approximates the fence of radiusMeters around center with a closed
// ring of segments+1 points; the last point repeats the first.
func Circle(center Point, radiusMeters float64, segments int) []Point {
	if segments < 3 {
		segments = DefaultCircleSegments
	}
	ring := make([]Point, 0, segments+1)
	step := 360.0 / float64(segments)
	for i := 0; i < segments; i++ {
		ring = append(ring, Destination(center, float64(i)*step, radiusMeters))
	}
	return append(ring, ring[0])
}

// PathLength sums the great-circle length of consecutive segments.
func PathLength(points []Point) float64 {
	var total float64
	for i := 1; i < len(points); i++ {
		total += Distance(points[i-1], points[i])
	}
	return total
}

// EncodePath encodes points in Google polyline format.
func EncodePath(points []Point) string {
	coords := make([]polyline.Coordinate, len(points))
	for i, p := range points {
		coords[i] = polyline.Coordinate{Lat: p.Lat, Lng: p.Lng}
	}
	return polyline.Encode(coords)
}
