// Package polyline implements Google's encoded polyline format.
// See https://developers.google.com/maps/documentation/utilities/polylinealgorithm
package polyline

import "math"

// DefaultPrecision is the number of decimal places used by Google Maps.
const DefaultPrecision = 5

// Coordinate is a latitude/longitude pair in degrees.
type Coordinate struct {
	Lat float64
	Lng float64
}

// Encode encodes coords at DefaultPrecision.
func Encode(coords []Coordinate) string {
	return EncodePrecision(coords, DefaultPrecision)
}

// Decode decodes a string produced by Encode.
func Decode(encoded string) []Coordinate {
	return DecodePrecision(encoded, DefaultPrecision)
}

// EncodePrecision encodes coords keeping precision decimal places.
func EncodePrecision(coords []Coordinate, precision int) string {
	if len(coords) == 0 {
		return ""
	}

	factor := math.Pow10(precision)
	buf := make([]byte, 0, len(coords)*8)
	prevLat, prevLng := 0, 0

	for _, c := range coords {
		lat := int(math.Round(c.Lat * factor))
		lng := int(math.Round(c.Lng * factor))

		buf = appendValue(buf, lat-prevLat)
		buf = appendValue(buf, lng-prevLng)

		prevLat, prevLng = lat, lng
	}

	return string(buf)
}

// DecodePrecision decodes a string encoded with the given precision.
// Trailing garbage that does not form a full pair is ignored.
func DecodePrecision(encoded string, precision int) []Coordinate {
	if encoded == "" {
		return nil
	}

	factor := math.Pow10(precision)
	var coords []Coordinate
	lat, lng := 0, 0

	for i := 0; i < len(encoded); {
		dLat, next, ok := readValue(encoded, i)
		if !ok {
			break
		}
		dLng, next, ok := readValue(encoded, next)
		if !ok {
			break
		}
		i = next

		lat += dLat
		lng += dLng
		coords = append(coords, Coordinate{Lat: float64(lat) / factor, Lng: float64(lng) / factor})
	}

	return coords
}

// readValue reads one zig-zag varint starting at i.
func readValue(s string, i int) (value, next int, ok bool) {
	shift, result := 0, 0
	for i < len(s) {
		b := int(s[i]) - 63
		i++
		result |= (b & 0x1f) << shift
		shift += 5
		if b < 0x20 {
			if result&1 != 0 {
				return ^(result >> 1), i, true
			}
			return result >> 1, i, true
		}
	}
	return 0, i, false
}

// appendValue appends value as a zig-zag varint in 5-bit chunks.
func appendValue(buf []byte, value int) []byte {
	if value < 0 {
		value = ^(value << 1)
	} else {
		value <<= 1
	}

	for value >= 0x20 {
		buf = append(buf, byte((value&0x1f)|0x20)+63)
		value >>= 5
	}
	return append(buf, byte(value)+63)
}
