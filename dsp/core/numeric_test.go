package core

import (
	"math"
	"testing"
)

func TestClamp(t *testing.T) {
	tests := []struct {
		name     string
		value    float64
		min      float64
		max      float64
		expected float64
	}{
		{name: "inside", value: 0.5, min: 0, max: 1, expected: 0.5},
		{name: "below", value: -1, min: 0, max: 1, expected: 0},
		{name: "above", value: 2, min: 0, max: 1, expected: 1},
		{name: "swapped", value: 2, min: 1, max: 0, expected: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Clamp(tt.value, tt.min, tt.max)
			if got != tt.expected {
				t.Fatalf("Clamp() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestGainConversions(t *testing.T) {
	g := DBToGain(-6)
	if db := GainToDB(g); !NearlyEqual(db, -6, 1e-10) {
		t.Fatalf("GainToDB(DBToGain(-6)) = %v, want -6", db)
	}
	if DBToGain(math.Inf(-1)) != 0 {
		t.Fatal("-Inf dB must map to zero gain")
	}
	if !math.IsInf(GainToDB(0), -1) {
		t.Fatal("expected -Inf for zero")
	}
	if !math.IsNaN(GainToDB(-1)) {
		t.Fatal("expected NaN for negative gain")
	}
}

func TestFastGainConversions(t *testing.T) {
	for _, db := range []float64{-60, -20, -6, 0, 6} {
		if got := FastGainToDB(DBToGain(db)); math.Abs(got-db) > 0.1 {
			t.Fatalf("FastGainToDB(%v dB) = %v", db, got)
		}
		if got := FastDBToGain(db); math.Abs(got-DBToGain(db)) > 0.01*DBToGain(db) {
			t.Fatalf("FastDBToGain(%v) = %v", db, got)
		}
	}
	if !math.IsInf(FastGainToDB(0), -1) {
		t.Fatal("expected -Inf for zero")
	}
}

func TestRMS(t *testing.T) {
	if got := RMS([]float64{1, -1, 1, -1}); math.Abs(got-1) > 1e-3 {
		t.Fatalf("RMS = %v, want 1", got)
	}
	if RMS(nil) != 0 {
		t.Fatal("empty RMS must be zero")
	}
}

func TestFlushDenormalsBlock(t *testing.T) {
	buf := []float64{1e-40, 0.5, -1e-35}
	FlushDenormalsBlock(buf)
	if buf[0] != 0 || buf[1] != 0.5 || buf[2] != 0 {
		t.Fatalf("unexpected %v", buf)
	}
}
