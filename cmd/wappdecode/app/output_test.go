package app

import (
	"bytes"
	"encoding/binary"
	"io"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/zstd"
)

func TestCreateOutput(t *testing.T) {
	payload := bytes.Repeat([]byte{0, 128, 255, 7}, 1024)

	tests := []struct {
		name     string
		compress bool
	}{
		{name: "plain", compress: false},
		{name: "zstd", compress: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "out.fil")

			out, err := createOutput(path, tt.compress, "fastest")
			if err != nil {
				t.Fatalf("Failed to create output: %v", err)
			}
			if _, err = out.Write(payload); err != nil {
				t.Fatalf("Failed to write output: %v", err)
			}
			if err = out.Close(); err != nil {
				t.Fatalf("Failed to close output: %v", err)
			}
			if out.Written() != int64(len(payload)) {
				t.Errorf("Expected %d bytes written, got %d", len(payload), out.Written())
			}

			data, err := os.ReadFile(path)
			if err != nil {
				t.Fatalf("Failed to read output: %v", err)
			}

			if tt.compress {
				if len(data) >= len(payload) {
					t.Errorf("Expected compressed output below %d bytes, got %d", len(payload), len(data))
				}
				dec, err := zstd.NewReader(bytes.NewReader(data))
				if err != nil {
					t.Fatalf("Failed to create decoder: %v", err)
				}
				defer dec.Close()

				if data, err = io.ReadAll(dec); err != nil {
					t.Fatalf("Failed to decompress output: %v", err)
				}
			}

			if !bytes.Equal(data, payload) {
				t.Error("Expected the output to hold the payload")
			}
		})
	}
}

func TestCreateOutput_Discard(t *testing.T) {
	out, err := createOutput("", true, "default")
	if err != nil {
		t.Fatalf("Failed to create output: %v", err)
	}
	if _, err = out.Write([]byte{1, 2, 3}); err != nil {
		t.Fatalf("Failed to write output: %v", err)
	}
	if out.Written() != 3 {
		t.Errorf("Expected 3 bytes written, got %d", out.Written())
	}
	if err = out.Close(); err != nil {
		t.Errorf("Failed to close output: %v", err)
	}
}

func TestFileWriter_WriteFloats(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.f32")

	out, err := createOutput(path, false, "default")
	if err != nil {
		t.Fatalf("Failed to create output: %v", err)
	}
	values := []float32{0, 1.5, -2, 384}
	if err = out.WriteFloats(values); err != nil {
		t.Fatalf("Failed to write floats: %v", err)
	}
	if err = out.Close(); err != nil {
		t.Fatalf("Failed to close output: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read output: %v", err)
	}
	if len(data) != 4*len(values) {
		t.Fatalf("Expected %d bytes, got %d", 4*len(values), len(data))
	}
	for i, want := range values {
		got := math.Float32frombits(binary.LittleEndian.Uint32(data[4*i:]))
		if got != want {
			t.Errorf("Value %d: expected %g, got %g", i, want, got)
		}
	}
}
