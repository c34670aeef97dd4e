package utils

import (
	"math"
	"testing"
)

func TestNormalizeL2(t *testing.T) {
	v := []float32{3, 4}
	NormalizeL2(v)
	if math.Abs(float64(v[0])-0.6) > 1e-6 || math.Abs(float64(v[1])-0.8) > 1e-6 {
		t.Errorf("got %v", v)
	}
	zero := []float32{0, 0}
	NormalizeL2(zero)
	if zero[0] != 0 || zero[1] != 0 {
		t.Errorf("zero vector changed: %v", zero)
	}
}

func TestFloat32Bytes(t *testing.T) {
	in := []float32{1.5, -2, 0}
	out := BytesToFloat32s(Float32sToBytes(in))
	if len(out) != len(in) {
		t.Fatalf("len: got %d", len(out))
	}
	for i := range in {
		if in[i] != out[i] {
			t.Errorf("index %d: got %v want %v", i, out[i], in[i])
		}
	}
	if got := Float64sToFloat32s([]float64{0.25}); got[0] != 0.25 {
		t.Errorf("Float64sToFloat32s: got %v", got)
	}
}
