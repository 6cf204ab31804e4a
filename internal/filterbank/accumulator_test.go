package filterbank

import (
	"testing"

	"github.com/roman-kulish/wapp-stream/internal/stream"
	"github.com/roman-kulish/wapp-stream/internal/wapp"
)

func testPlan() *stream.Plan {
	return &stream.Plan{
		Info: &wapp.Info{
			MJD:       wapp.MJD{Day: 53079, Frac: 0.5},
			NumChan:   2,
			LowFreq:   1000,
			ChanWidth: 10,
		},
		PointsPerBlock: 2,
		NumChan:        2,
		DT:             0.5,
	}
}

func TestAccumulator_Spectrum(t *testing.T) {
	acc, err := NewAccumulator(testPlan(), 2, 0, 3)
	if err != nil {
		t.Fatalf("Failed to create accumulator: %v", err)
	}

	if _, ok := acc.Add([]byte{0, 255, 0, 255}, 0, false); ok {
		t.Fatal("Expected no spectrum after the first block")
	}
	s, ok := acc.Add([]byte{128, 128, 128, 128}, 1, true)
	if !ok {
		t.Fatal("Expected a spectrum after the second block")
	}

	if s.Block != 0 || s.Offset != 0 {
		t.Errorf("Expected block 0 at offset 0, got block %d at %g", s.Block, s.Offset)
	}
	if !s.Padding {
		t.Error("Expected the spectrum to be flagged as padded")
	}
	if s.FrequencyStart != 1000 || s.FrequencyEnd != 1010 {
		t.Errorf("Expected frequencies 1000-1010, got %g-%g", s.FrequencyStart, s.FrequencyEnd)
	}
	if len(s.Channels) != 2 {
		t.Fatalf("Expected 2 channels, got %d", len(s.Channels))
	}

	for i, want := range []float64{0, 3} {
		ch := s.Channels[i]
		if ch.Power == nil {
			t.Fatalf("Channel %d: expected power, got nil", i)
		}
		if *ch.Power != want {
			t.Errorf("Channel %d: expected power %g, got %g", i, want, *ch.Power)
		}
		if ch.NumPoints != 2 {
			t.Errorf("Channel %d: expected 2 points averaged, got %d", i, ch.NumPoints)
		}
		if ch.Frequency != 1000+10*float64(i) || ch.Width != 10 {
			t.Errorf("Channel %d: unexpected frequency %g or width %g", i, ch.Frequency, ch.Width)
		}
	}
}

func TestAccumulator_PaddingOnly(t *testing.T) {
	acc, err := NewAccumulator(testPlan(), 2, 0, 3)
	if err != nil {
		t.Fatalf("Failed to create accumulator: %v", err)
	}

	acc.Add([]byte{128, 128, 128, 128}, 2, true)
	s, ok := acc.Add([]byte{128, 128, 128, 128}, 3, true)
	if !ok {
		t.Fatal("Expected a spectrum after the second block")
	}
	for i, ch := range s.Channels {
		if ch.Power != nil {
			t.Errorf("Channel %d: expected nil power, got %g", i, *ch.Power)
		}
	}
}

func TestAccumulator_Flush(t *testing.T) {
	acc, err := NewAccumulator(testPlan(), 4, 0, 3)
	if err != nil {
		t.Fatalf("Failed to create accumulator: %v", err)
	}

	if _, ok := acc.Flush(); ok {
		t.Error("Expected nothing to flush")
	}

	acc.Add([]byte{51, 51, 51, 51}, 4, false)
	s, ok := acc.Flush()
	if !ok {
		t.Fatal("Expected a partial spectrum")
	}

	// One block is PointsPerBlock*DT = 1 second
	if s.Block != 4 || s.Offset != 4 {
		t.Errorf("Expected block 4 at 4 s, got block %d at %g", s.Block, s.Offset)
	}
	want := testPlan().Info.MJD.Add(4).Time()
	if !s.Timestamp.Equal(want) {
		t.Errorf("Expected timestamp %s, got %s", want, s.Timestamp)
	}
	if p := s.Channels[0].Power; p == nil || *p != 0.6 {
		t.Errorf("Expected power 0.6, got %v", p)
	}

	if _, ok = acc.Flush(); ok {
		t.Error("Expected the accumulator to be empty after a flush")
	}
}

func TestNewAccumulator_Invalid(t *testing.T) {
	if _, err := NewAccumulator(testPlan(), 0, 0, 3); err == nil {
		t.Error("Expected an error for zero blocks per spectrum")
	}
	if _, err := NewAccumulator(testPlan(), 1, 3, 3); err == nil {
		t.Error("Expected an error for an empty scale")
	}
}

func TestAccumulator_PartiallyPaddedBlock(t *testing.T) {
	// the second file starts at point 10, two points into block 2
	plan := testPlan()
	plan.PointsPerBlock = 4
	plan.Files = []stream.FileGeometry{
		{DataStart: 0, NumPoints: 8, PadPoints: 2},
		{DataStart: 10, NumPoints: 6, PadPoints: 0},
	}

	acc, err := NewAccumulator(plan, 1, 0, 3)
	if err != nil {
		t.Fatalf("Failed to create accumulator: %v", err)
	}

	// points 8 and 9 are padding, 10 and 11 are data
	s, ok := acc.Add([]byte{128, 128, 128, 128, 0, 255, 0, 255}, 2, true)
	if !ok {
		t.Fatal("Expected a spectrum")
	}
	if !s.Padding {
		t.Error("Expected the spectrum to be flagged as padded")
	}

	for i, want := range []float64{0, 3} {
		ch := s.Channels[i]
		if ch.NumPoints != 2 {
			t.Errorf("Channel %d: expected 2 points averaged, got %d", i, ch.NumPoints)
		}
		if ch.Power == nil {
			t.Fatalf("Channel %d: expected power, got nil", i)
		}
		if *ch.Power != want {
			t.Errorf("Channel %d: expected power %g, got %g", i, want, *ch.Power)
		}
	}

	// block 1 is all data even when flagged
	s, _ = acc.Add([]byte{51, 51, 51, 51, 51, 51, 51, 51}, 1, true)
	if s.Channels[0].NumPoints != 4 {
		t.Errorf("Expected 4 points averaged, got %d", s.Channels[0].NumPoints)
	}
}
