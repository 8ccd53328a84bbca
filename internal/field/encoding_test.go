package field

import (
	"math"
	"testing"

	"github.com/banshee-data/radiance.report/internal/geom"
)

func TestEncodedSize(t *testing.T) {
	cases := []struct{ freq, want int }{
		{0, 3},
		{1, 9},
		{4, 27},
		{10, 63},
	}
	for _, c := range cases {
		if got := EncodedSize(c.freq); got != c.want {
			t.Errorf("EncodedSize(%d) = %d, want %d", c.freq, got, c.want)
		}
	}
}

func TestEncodeLength(t *testing.T) {
	v := geom.V(0.3, -1.2, 4.5)
	for _, freq := range []int{0, 1, 2, 6, 10} {
		got := Encode(v, freq)
		if len(got) != EncodedSize(freq) {
			t.Errorf("Encode with %d bands: length %d, want %d", freq, len(got), EncodedSize(freq))
		}
	}
}

func TestEncodeLayout(t *testing.T) {
	v := geom.V(0.5, -0.25, 2)
	out := Encode(v, 2)

	// Raw components lead.
	if out[0] != v.X || out[1] != v.Y || out[2] != v.Z {
		t.Fatalf("raw components wrong: %v", out[:3])
	}

	// Band 0 (scale 1) then band 1 (scale 2), each sin/cos per component.
	want := []float64{
		math.Sin(v.X), math.Cos(v.X),
		math.Sin(v.Y), math.Cos(v.Y),
		math.Sin(v.Z), math.Cos(v.Z),
		math.Sin(2 * v.X), math.Cos(2 * v.X),
		math.Sin(2 * v.Y), math.Cos(2 * v.Y),
		math.Sin(2 * v.Z), math.Cos(2 * v.Z),
	}
	for i, w := range want {
		if out[3+i] != w {
			t.Errorf("feature %d = %v, want %v", 3+i, out[3+i], w)
		}
	}
}

func TestEncodeDeterminism(t *testing.T) {
	v := geom.V(1.7, 0.01, -3.3)
	a := Encode(v, 8)
	b := Encode(v, 8)
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("feature %d differs between identical calls: %v vs %v", i, a[i], b[i])
		}
	}
}

func TestEncodeIntoMatchesEncode(t *testing.T) {
	v := geom.V(-0.9, 2.4, 0.125)
	const freq = 5

	want := Encode(v, freq)
	dst := make([]float64, EncodedSize(freq))
	EncodeInto(dst, v, freq)

	for i := range want {
		if dst[i] != want[i] {
			t.Errorf("EncodeInto[%d] = %v, Encode = %v", i, dst[i], want[i])
		}
	}
}

func TestEncodeZeroFrequencies(t *testing.T) {
	v := geom.V(3, 2, 1)
	out := Encode(v, 0)
	if len(out) != 3 || out[0] != 3 || out[1] != 2 || out[2] != 1 {
		t.Errorf("zero bands should pass through raw components, got %v", out)
	}
}
