package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/roman-kulish/wapp-stream/internal/filterbank"
)

func newTestStore(t *testing.T) *SqliteStore {
	t.Helper()

	s := NewSqliteStore(filepath.Join(t.TempDir(), "catalogue.db"))
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func power(v float64) *float64 { return &v }

func testSpectrum(block int64, freqs ...float64) *filterbank.Spectrum {
	s := &filterbank.Spectrum{
		Block:     block,
		Offset:    float64(block) * 0.5,
		Timestamp: time.Date(2004, 3, 15, 12, 0, int(block), 0, time.UTC),
	}
	for i, f := range freqs {
		s.Channels = append(s.Channels, filterbank.Channel{
			Frequency: f,
			Power:     power(float64(i) + 0.5),
			Width:     10,
			NumPoints: 8,
		})
	}
	if len(freqs) > 0 {
		s.FrequencyStart = freqs[0]
		s.FrequencyEnd = freqs[len(freqs)-1]
	}
	return s
}

func TestSqliteStore_Sessions(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	id, err := s.CreateSession(ctx, "run-1", "B0329+54", 53079.5, 4, map[string]int{"level": 3})
	if err != nil {
		t.Fatalf("Failed to create session: %v", err)
	}
	if _, err = s.CreateSession(ctx, "run-2", "B0329+54", 53080, 4, nil); err != nil {
		t.Fatalf("Failed to create session: %v", err)
	}
	if _, err = s.CreateSession(ctx, "run-1", "dup", 0, 4, nil); err == nil {
		t.Error("Expected an error for a duplicate run ID")
	}

	sess, err := s.Session(ctx, id)
	if err != nil {
		t.Fatalf("Failed to load session: %v", err)
	}
	if sess.RunID != "run-1" || sess.Source != "B0329+54" || sess.MJD != 53079.5 || sess.NumChan != 4 {
		t.Errorf("Unexpected session: %+v", sess)
	}
	if sess.Info == nil || *sess.Info != `{"level":3}` {
		t.Errorf("Expected info {\"level\":3}, got %v", sess.Info)
	}

	all, err := s.Sessions(ctx)
	if err != nil {
		t.Fatalf("Failed to list sessions: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("Expected 2 sessions, got %d", len(all))
	}
	if all[1].Info != nil {
		t.Errorf("Expected no info, got %q", *all[1].Info)
	}
}

func TestSqliteStore_Files(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	id, err := s.CreateSession(ctx, "run", "src", 53079.5, 2, nil)
	if err != nil {
		t.Fatalf("Failed to create session: %v", err)
	}

	files := []filterbank.File{
		{Index: 0, Path: "a.wapp", DataLen: 64, NumPoints: 8, PadPoints: 8, DataStart: 0, StartBlock: 1, EndBlock: 2, MJD: 53079.5},
		{Index: 1, Path: "b.wapp", DataLen: 64, NumPoints: 8, DataStart: 16, StartBlock: 5, EndBlock: 6, MJD: 53079.6},
	}
	if err = s.StoreFiles(ctx, id, files); err != nil {
		t.Fatalf("Failed to store files: %v", err)
	}

	got, err := s.Files(ctx, id)
	if err != nil {
		t.Fatalf("Failed to load files: %v", err)
	}
	if len(got) != len(files) {
		t.Fatalf("Expected %d files, got %d", len(files), len(got))
	}
	for i := range files {
		if got[i] != files[i] {
			t.Errorf("File %d: expected %+v, got %+v", i, files[i], got[i])
		}
	}

	// the same index twice violates the unique constraint and nothing is kept
	if err = s.StoreFiles(ctx, id, []filterbank.File{{Index: 2}, {Index: 2}}); err == nil {
		t.Error("Expected an error for a duplicate file index")
	}
	if got, _ = s.Files(ctx, id); len(got) != len(files) {
		t.Errorf("Expected the failed batch to roll back, got %d files", len(got))
	}
}

func TestSqliteStore_ReadSpectra(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	id, err := s.CreateSession(ctx, "run", "src", 53079.5, 3, nil)
	if err != nil {
		t.Fatalf("Failed to create session: %v", err)
	}

	padded := testSpectrum(4, 1000, 1010, 1020)
	padded.Padding = true
	padded.Channels[1].Power = nil

	for _, spec := range []*filterbank.Spectrum{
		testSpectrum(0, 1000, 1010, 1020),
		padded,
		testSpectrum(8, 1000, 1020), // 1010 missing
	} {
		if err = s.StoreSpectrum(ctx, id, spec); err != nil {
			t.Fatalf("Failed to store spectrum: %v", err)
		}
	}

	t.Run("all", func(t *testing.T) {
		r, err := s.ReadSpectra(ctx, id)
		if err != nil {
			t.Fatalf("Failed to create reader: %v", err)
		}
		defer r.Close()

		if r.Session().RunID != "run" {
			t.Errorf("Expected session run, got %q", r.Session().RunID)
		}

		var blocks []int64
		var spectra []*filterbank.Spectrum
		for r.Next(ctx) {
			spectra = append(spectra, r.Current())
			blocks = append(blocks, r.Current().Block)
		}
		if err := r.Error(); err != nil {
			t.Fatalf("Failed to read spectra: %v", err)
		}

		if len(blocks) != 3 || blocks[0] != 0 || blocks[1] != 4 || blocks[2] != 8 {
			t.Fatalf("Expected blocks [0 4 8], got %v", blocks)
		}
		for i, spec := range spectra {
			if len(spec.Channels) != 3 {
				t.Fatalf("Spectrum %d: expected 3 channels, got %d", i, len(spec.Channels))
			}
			if spec.FrequencyStart != 1000 || spec.FrequencyEnd != 1020 {
				t.Errorf("Spectrum %d: expected 1000-1020, got %g-%g", i, spec.FrequencyStart, spec.FrequencyEnd)
			}
		}

		if !spectra[1].Padding || spectra[1].Channels[1].Power != nil {
			t.Error("Expected the padded spectrum to keep its flag and nil power")
		}
		if spectra[1].Offset != 2 {
			t.Errorf("Expected offset 2, got %g", spectra[1].Offset)
		}
		if !spectra[1].Timestamp.Equal(time.Date(2004, 3, 15, 12, 0, 4, 0, time.UTC)) {
			t.Errorf("Unexpected timestamp %v", spectra[1].Timestamp)
		}

		gap := spectra[2].Channels[1]
		if gap.Frequency != 1010 || gap.Power == nil || *gap.Power != 0 {
			t.Errorf("Expected a zero power fill at 1010, got %+v", gap)
		}
		if spectra[2].Channels[2].Power == nil || *spectra[2].Channels[2].Power != 1.5 {
			t.Error("Expected the stored channel after the gap to keep its power")
		}
	})

	t.Run("filtered", func(t *testing.T) {
		r, err := s.ReadSpectra(ctx, id, WithBlockRange(4, 8), WithFreqRange(1010, 1020))
		if err != nil {
			t.Fatalf("Failed to create reader: %v", err)
		}
		defer r.Close()

		var n int
		for r.Next(ctx) {
			spec := r.Current()
			if spec.Block < 4 {
				t.Errorf("Expected blocks from 4, got %d", spec.Block)
			}
			if len(spec.Channels) != 2 || spec.Channels[0].Frequency != 1010 {
				t.Errorf("Expected channels 1010-1020, got %+v", spec.Channels)
			}
			n++
		}
		if err := r.Error(); err != nil {
			t.Fatalf("Failed to read spectra: %v", err)
		}
		if n != 2 {
			t.Errorf("Expected 2 spectra, got %d", n)
		}
	})

	t.Run("invalid filters", func(t *testing.T) {
		if _, err := s.ReadSpectra(ctx, id, WithBlockRange(8, 0)); err == nil {
			t.Error("Expected an error for an inverted block range")
		}
		if _, err := s.ReadSpectra(ctx, id, WithFreqRange(1020, 1000)); err == nil {
			t.Error("Expected an error for an inverted frequency range")
		}
	})

	t.Run("no data", func(t *testing.T) {
		empty, err := s.CreateSession(ctx, "empty", "src", 53079.5, 3, nil)
		if err != nil {
			t.Fatalf("Failed to create session: %v", err)
		}
		if _, err = s.ReadSpectra(ctx, empty); !errors.Is(err, ErrNoData) {
			t.Errorf("Expected ErrNoData, got %v", err)
		}
	})
}

func TestSqliteStore_Close(t *testing.T) {
	s := NewSqliteStore(filepath.Join(t.TempDir(), "catalogue.db"))

	if _, err := s.CreateSession(context.Background(), "run", "src", 0, 1, nil); err != nil {
		t.Fatalf("Failed to create session: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Failed to close store: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Errorf("Expected a second Close to succeed, got %v", err)
	}
}

func TestFillFrequencyRange(t *testing.T) {
	tests := []struct {
		name       string
		start, end float64
		width      float64
		want       int
	}{
		{name: "two missing", start: 1010, end: 1030, width: 10, want: 2},
		{name: "adjacent", start: 1010, end: 1010, width: 10, want: 0},
		{name: "within tolerance", start: 1010, end: 1010.05, width: 10, want: 0},
		{name: "invalid width", start: 1000, end: 1030, width: 0, want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := fillFrequencyRange(tt.start, tt.end, tt.width)
			if len(got) != tt.want {
				t.Fatalf("Expected %d channels, got %d", tt.want, len(got))
			}
			for i, ch := range got {
				if ch.Power == nil || *ch.Power != 0 {
					t.Errorf("Channel %d: expected zero power", i)
				}
			}
		})
	}
}
