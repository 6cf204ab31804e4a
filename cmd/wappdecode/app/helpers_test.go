package app

import (
	"bytes"
	"encoding/binary"
	"io"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/roman-kulish/wapp-stream/internal/lags"
	"github.com/roman-kulish/wapp-stream/internal/wapp"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// writeRawFile writes a two channel, 32-bit, 3-level raw file starting at
// clock on 2004-03-15 with points samples of 0.5 s
func writeRawFile(t *testing.T, dir, name, clock string, points int) string {
	t.Helper()

	h := &wapp.Header{
		Version:    2,
		HeaderSize: wapp.HeaderSize,
		SrcName:    wapp.FixedString("J1012+5307"),
		ObsDate:    wapp.FixedString("20040315"),
		StartTime:  wapp.FixedString(clock),
		ObsTime:    60,
		SampTime:   500000,
		WappTime:   500000,
		CentFreq:   1420,
		Bandwidth:  100,
		NumLags:    2,
		NumIFs:     1,
		Level:      1,
		LagFormat:  1,
	}

	info, err := h.Info()
	if err != nil {
		t.Fatalf("Failed to derive header info: %v", err)
	}
	scale := lags.ParamsFromInfo(info).Scale()

	var buf bytes.Buffer
	buf.WriteString("WAPP raw data")
	buf.WriteByte(0)
	if err = h.Encode(&buf, binary.LittleEndian); err != nil {
		t.Fatalf("Failed to encode header: %v", err)
	}

	var word [4]byte
	for k := 0; k < points; k++ {
		lag0 := 0.3 + 0.01*float64(k%40)
		for _, lag := range []float64{lag0, lag0 * 0.15} {
			binary.LittleEndian.PutUint32(word[:], uint32(math.Round((1+lag)/scale)))
			buf.Write(word[:])
		}
	}

	path := filepath.Join(dir, name)
	if err = os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatalf("Failed to write raw file: %v", err)
	}
	return path
}
