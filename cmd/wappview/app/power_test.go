package app

import (
	"math"
	"testing"
)

func ptr(v float64) *float64 { return &v }

func TestPowerHistogram_Bounds(t *testing.T) {
	t.Run("too few samples", func(t *testing.T) {
		h := NewPowerHistogram(0.01)
		for i := 0; i < minimumSampleCount-1; i++ {
			h.Update(ptr(1))
		}
		if got := h.GetPercentileBounds(); got != defaultPowerBounds() {
			t.Errorf("Expected default bounds, got %+v", got)
		}
	})

	t.Run("percentiles", func(t *testing.T) {
		h := NewPowerHistogram(0.01)
		// one sample in the middle of each bin from 0 to 3
		for i := 0; i < 300; i++ {
			h.Update(ptr((float64(i) + 0.5) / 100))
		}
		h.Update(nil)
		h.Update(ptr(math.NaN()))

		if h.Count() != 300 {
			t.Fatalf("Expected 300 samples, got %d", h.Count())
		}

		b := h.GetPercentileBounds()
		// 5th percentile bin 14, 95th bin 285 upper edge 286, margin 27 bins
		if math.Abs(b.Min-(-0.13)) > 1e-9 || math.Abs(b.Max-3.13) > 1e-9 {
			t.Errorf("Expected bounds [-0.13, 3.13], got [%g, %g]", b.Min, b.Max)
		}
		if math.Abs(b.Mean-1.5) > 1e-9 {
			t.Errorf("Expected mean 1.5, got %g", b.Mean)
		}
	})

	t.Run("minimum span", func(t *testing.T) {
		h := NewPowerHistogram(0.01)
		for i := 0; i < 100; i++ {
			h.Update(ptr(1.5))
		}

		b := h.GetPercentileBounds()
		if span := b.Max - b.Min; span < minimumBoundsBins*0.01-1e-9 {
			t.Errorf("Expected a span of at least %g, got %g", minimumBoundsBins*0.01, span)
		}
		if b.Min > 1.5 || b.Max < 1.5 {
			t.Errorf("Expected bounds around 1.5, got [%g, %g]", b.Min, b.Max)
		}
	})

	t.Run("clear", func(t *testing.T) {
		h := NewPowerHistogram(0)
		for i := 0; i < 50; i++ {
			h.Update(ptr(2))
		}
		h.Clear()
		if h.Count() != 0 {
			t.Errorf("Expected an empty histogram, got %d samples", h.Count())
		}
	})
}

func TestPowerBounds_Override(t *testing.T) {
	b := PowerBounds{Min: 1, Max: 2}

	tests := []struct {
		name     string
		min, max *float64
		want     PowerBounds
	}{
		{name: "none", want: PowerBounds{Min: 1, Max: 2}},
		{name: "both", min: ptr(0), max: ptr(3), want: PowerBounds{Min: 0, Max: 3}},
		{name: "min only", min: ptr(1.5), want: PowerBounds{Min: 1.5, Max: 2}},
		{name: "min above max", min: ptr(2.5), want: PowerBounds{Min: 2.5, Max: 2.5 + minimumBoundsBins*defaultBinWidth}},
		{name: "max below min", max: ptr(0.5), want: PowerBounds{Min: 0.5 - minimumBoundsBins*defaultBinWidth, Max: 0.5}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := b.Override(tt.min, tt.max)
			if math.Abs(got.Min-tt.want.Min) > 1e-9 || math.Abs(got.Max-tt.want.Max) > 1e-9 {
				t.Errorf("Expected %+v, got %+v", tt.want, got)
			}
		})
	}
}
