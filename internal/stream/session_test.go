package stream

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
)

func TestNewSession(t *testing.T) {
	s, raws := testSession(t, []testFile{{"12:00:00", 8}, {"12:00:08", 8}})

	if len(s.Headers) != 2 {
		t.Fatalf("Expected 2 headers, got %d", len(s.Headers))
	}
	for i, fh := range s.Headers {
		if fh.Preamble != "WAPP raw data\nsynthetic" {
			t.Errorf("File %d: unexpected preamble %q", i+1, fh.Preamble)
		}
		if len(raws[i]) != int(s.Plan.Files[i].NumPoints) {
			t.Errorf("File %d: expected %d points, got %d", i+1, len(raws[i]), s.Plan.Files[i].NumPoints)
		}
	}
	if s.Plan.Info.Object != "J1012+5307" {
		t.Errorf("Expected object J1012+5307, got %s", s.Plan.Info.Object)
	}
	if s.Codec.NumChan() != testNumChan {
		t.Errorf("Expected %d channels, got %d", testNumChan, s.Codec.NumChan())
	}
}

func TestNewSession_MixedByteOrder(t *testing.T) {
	little, rawsA := buildSource(t, testHeader("12:00:00", testNumChan), binary.LittleEndian, 8, 0)
	big, rawsB := buildSource(t, testHeader("12:00:04", testNumChan), binary.BigEndian, 8, 7)

	s, err := NewSession([]Source{little, big}, WithPointsPerBlock(testPPB))
	if err != nil {
		t.Fatalf("Failed to create session: %v", err)
	}
	defer s.Close()

	if s.Headers[0].Order.String() == s.Headers[1].Order.String() {
		t.Errorf("Expected files in different byte orders, got %s for both", s.Headers[0].Order)
	}

	want, _ := expectedStream(t, s.Plan, [][][]uint32{rawsA, rawsB})
	got := make([]byte, len(want))
	read, _, err := s.Reader.ReadBlocks(got, int(s.Plan.NumBlocks()))
	if err != nil {
		t.Fatalf("Failed to read blocks: %v", err)
	}
	if int64(read) != s.Plan.NumBlocks() {
		t.Errorf("Expected %d blocks, got %d", s.Plan.NumBlocks(), read)
	}
	if !bytes.Equal(got, want) {
		t.Errorf("Expected %v, got %v", want, got)
	}
}

func TestNewSession_Errors(t *testing.T) {
	if _, err := NewSession(nil); !errors.Is(err, ErrNoFiles) {
		t.Errorf("Expected ErrNoFiles, got %v", err)
	}

	if _, err := NewSession([]Source{bytes.NewReader([]byte("no header"))}); err == nil {
		t.Error("Expected an error for a file without a header")
	}
}

func TestOpen(t *testing.T) {
	dir := t.TempDir()

	var paths []string
	var raws [][][]uint32
	for i, clock := range []string{"12:00:00", "12:00:06"} {
		src, r := buildSource(t, testHeader(clock, testNumChan), binary.LittleEndian, 8, 7*i)
		data, err := io.ReadAll(io.NewSectionReader(src, 0, src.Size()))
		if err != nil {
			t.Fatalf("Failed to read source: %v", err)
		}

		path := filepath.Join(dir, "raw"+string(rune('0'+i))+".wapp")
		if err = os.WriteFile(path, data, 0o644); err != nil {
			t.Fatalf("Failed to write raw file: %v", err)
		}
		paths = append(paths, path)
		raws = append(raws, r)
	}

	s, err := Open(paths, WithPointsPerBlock(testPPB))
	if err != nil {
		t.Fatalf("Failed to open session: %v", err)
	}

	want, _ := expectedStream(t, s.Plan, raws)
	var got []byte
	for {
		block, _, err := s.Reader.ReadBlock()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			t.Fatalf("Failed to read block: %v", err)
		}
		got = append(got, block...)
	}
	if !bytes.Equal(got, want) {
		t.Errorf("Expected %v, got %v", want, got)
	}

	if err = s.Close(); err != nil {
		t.Errorf("Failed to close session: %v", err)
	}
}

func TestOpen_Errors(t *testing.T) {
	if _, err := Open([]string{filepath.Join(t.TempDir(), "missing.wapp")}); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("Expected os.ErrNotExist, got %v", err)
	}

	paths := []string{"a", "b", "c"}
	if _, err := Open(paths, WithMaxFiles(2)); !errors.Is(err, ErrTooManyFiles) {
		t.Errorf("Expected ErrTooManyFiles, got %v", err)
	}
}
