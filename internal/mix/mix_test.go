package mix

import (
	"math"
	"testing"
)

func TestLevelsEndpoints(t *testing.T) {
	tests := []struct {
		position float64
		wantA    float64
		wantB    float64
	}{
		{0, 1, 0},
		{1, 0, 1},
	}
	for _, tt := range tests {
		a, b := Levels(tt.position)
		if math.Abs(a-tt.wantA) > 1e-12 {
			t.Errorf("Levels(%v) levelA = %v, want %v", tt.position, a, tt.wantA)
		}
		if math.Abs(b-tt.wantB) > 1e-12 {
			t.Errorf("Levels(%v) levelB = %v, want %v", tt.position, b, tt.wantB)
		}
	}
}

func TestLevelsMonotonic(t *testing.T) {
	prevA, prevB := Levels(0)
	for i := 1; i <= 100; i++ {
		p := float64(i) / 100
		a, b := Levels(p)
		if a >= prevA {
			t.Errorf("levelA not strictly decreasing at p=%v: %v >= %v", p, a, prevA)
		}
		if b <= prevB {
			t.Errorf("levelB not strictly increasing at p=%v: %v <= %v", p, b, prevB)
		}
		prevA, prevB = a, b
	}
}

func TestLevelsMidpoint(t *testing.T) {
	a, b := Levels(0.5)
	if math.Abs(a-b) > 1e-12 {
		t.Errorf("midpoint levels differ: a=%v b=%v", a, b)
	}
	// Equal-power: no loudness dip at the midpoint.
	want := math.Cos(math.Pi / 4)
	if math.Abs(a-want) > 1e-12 {
		t.Errorf("midpoint level = %v, want %v", a, want)
	}
}

func TestLevelsClampsOutOfRange(t *testing.T) {
	a0, b0 := Levels(-0.3)
	if a0 != 1 || math.Abs(b0) > 1e-12 {
		t.Errorf("Levels(-0.3) = (%v, %v), want (1, 0)", a0, b0)
	}
	a1, b1 := Levels(1.7)
	if math.Abs(a1) > 1e-12 || b1 != 1 {
		t.Errorf("Levels(1.7) = (%v, %v), want (0, 1)", a1, b1)
	}
}
