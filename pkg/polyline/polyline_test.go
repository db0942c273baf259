package polyline

import (
	"math"
	"testing"
)

var googleExample = []Coordinate{
	{Lat: 38.5, Lng: -120.2},
	{Lat: 40.7, Lng: -120.95},
	{Lat: 43.252, Lng: -126.453},
}

const googleEncoded = "_p~iF~ps|U_ulLnnqC_mqNvxq`@"

func TestEncode_GoogleExample(t *testing.T) {
	if got := Encode(googleExample); got != googleEncoded {
		t.Errorf("expected %q, got %q", googleEncoded, got)
	}
}

func TestDecode_GoogleExample(t *testing.T) {
	got := Decode(googleEncoded)
	if len(got) != len(googleExample) {
		t.Fatalf("expected %d coordinates, got %d", len(googleExample), len(got))
	}
	for i := range got {
		if !coordsEqual(got[i], googleExample[i], 1e-9) {
			t.Errorf("coordinate %d: expected %+v, got %+v", i, googleExample[i], got[i])
		}
	}
}

func TestEmpty(t *testing.T) {
	if got := Encode(nil); got != "" {
		t.Errorf("expected empty string, got %q", got)
	}
	if got := Decode(""); got != nil {
		t.Errorf("expected nil, got %v", got)
	}
}

func TestDecode_Truncated(t *testing.T) {
	// Drop the final longitude byte of the three-point example.
	got := Decode(googleEncoded[:len(googleEncoded)-1])
	if len(got) != 2 {
		t.Fatalf("expected 2 complete coordinates, got %d", len(got))
	}
}

func TestRoundTrip_Precision(t *testing.T) {
	coords := []Coordinate{
		{Lat: 19.997512, Lng: 73.789834},
		{Lat: 19.998411, Lng: 73.789834},
		{Lat: -33.868820, Lng: 151.209296},
	}

	tests := []struct {
		precision int
		tolerance float64
	}{
		{precision: 5, tolerance: 1e-5},
		{precision: 6, tolerance: 1e-6},
	}

	for _, tt := range tests {
		decoded := DecodePrecision(EncodePrecision(coords, tt.precision), tt.precision)
		if len(decoded) != len(coords) {
			t.Fatalf("precision %d: expected %d coordinates, got %d", tt.precision, len(coords), len(decoded))
		}
		for i := range coords {
			if !coordsEqual(decoded[i], coords[i], tt.tolerance) {
				t.Errorf("precision %d coordinate %d: expected %+v, got %+v", tt.precision, i, coords[i], decoded[i])
			}
		}
	}
}

func coordsEqual(a, b Coordinate, tolerance float64) bool {
	return math.Abs(a.Lat-b.Lat) <= tolerance && math.Abs(a.Lng-b.Lng) <= tolerance
}

func BenchmarkEncode(b *testing.B) {
	for i := 0; i < b.N; i++ {
		Encode(googleExample)
	}
}
