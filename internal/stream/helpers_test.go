package stream

import (
	"bytes"
	"encoding/binary"
	"math"
	"testing"

	"github.com/roman-kulish/wapp-stream/internal/lags"
	"github.com/roman-kulish/wapp-stream/internal/wapp"
)

const (
	testNumChan = 2
	testPPB     = 4
)

// testFile is one raw file of a synthetic stream, starting at clock on
// 2004-03-15 with the given number of points at 0.5 s
type testFile struct {
	clock  string
	points int
}

func testHeader(clock string, numChan int) *wapp.Header {
	return &wapp.Header{
		Version:    2,
		HeaderSize: wapp.HeaderSize,
		SrcName:    wapp.FixedString("J1012+5307"),
		ObsDate:    wapp.FixedString("20040315"),
		StartTime:  wapp.FixedString(clock),
		ProjectID:  wapp.FixedString("a1234"),
		Observers:  wapp.FixedString("Nobody"),
		ObsTime:    60,
		SampTime:   500000,
		WappTime:   500000,
		CentFreq:   1420,
		Bandwidth:  100,
		NumLags:    int32(numChan),
		NumIFs:     1,
		Level:      1,
		LagFormat:  1,
	}
}

// testRaw returns the raw lag counts of point k of a file. Points differ so
// misplaced data shows up in the decoded stream.
func testRaw(t *testing.T, h *wapp.Header, seed, k int) []uint32 {
	t.Helper()

	info, err := h.Info()
	if err != nil {
		t.Fatalf("Failed to derive header info: %v", err)
	}
	scale := lags.ParamsFromInfo(info).Scale()

	raw := make([]uint32, h.NumLags)
	lag0 := 0.3 + 0.01*float64((seed+k)%40)
	for c := range raw {
		lag := lag0
		if c > 0 {
			lag = lag0 * 0.3 / float64(c+1)
		}
		raw[c] = uint32(math.Round((1 + lag) / scale))
	}
	return raw
}

// buildSource encodes a raw file holding points points and returns it with the
// raw counts of every point
func buildSource(t *testing.T, h *wapp.Header, order binary.ByteOrder, points, seed int) (Source, [][]uint32) {
	t.Helper()

	var buf bytes.Buffer
	buf.WriteString("WAPP raw data\nsynthetic")
	buf.WriteByte(0)
	if err := h.Encode(&buf, order); err != nil {
		t.Fatalf("Failed to encode header: %v", err)
	}

	var word [4]byte
	raws := make([][]uint32, points)
	for k := range raws {
		raws[k] = testRaw(t, h, seed, k)
		for _, v := range raws[k] {
			order.PutUint32(word[:], v)
			buf.Write(word[:])
		}
	}
	return bytes.NewReader(buf.Bytes()), raws
}

// testSession builds a stream of files and returns the session with the raw
// counts of each file
func testSession(t *testing.T, files []testFile, opts ...Option) (*Session, [][][]uint32) {
	t.Helper()

	sources := make([]Source, len(files))
	raws := make([][][]uint32, len(files))
	for i, f := range files {
		sources[i], raws[i] = buildSource(t, testHeader(f.clock, testNumChan), binary.LittleEndian, f.points, 7*i)
	}

	opts = append([]Option{WithPointsPerBlock(testPPB)}, opts...)
	s, err := NewSession(sources, opts...)
	if err != nil {
		t.Fatalf("Failed to create session: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s, raws
}

// expectedStream lays the decoded points of every file out at their planned
// positions, padding everything else. covered marks real data points.
func expectedStream(t *testing.T, plan *Plan, raws [][][]uint32) (data []byte, covered []bool) {
	t.Helper()

	codec, err := lags.NewCodec(plan.NumChan, lags.ParamsFromInfo(plan.Info))
	if err != nil {
		t.Fatalf("Failed to create codec: %v", err)
	}
	defer codec.Close()

	nc := plan.NumChan
	data = bytes.Repeat([]byte{PadValue}, int(plan.N)*nc)
	covered = make([]bool, plan.N)
	for i, g := range plan.Files {
		for k := int64(0); k < g.NumPoints; k++ {
			p := g.DataStart + k
			codec.ConvertPoint(raws[i][k], data[p*int64(nc):(p+1)*int64(nc)])
			covered[p] = true
		}
	}
	return data, covered
}

func blockHasPadding(covered []bool, block, ppb int) bool {
	for _, c := range covered[block*ppb : (block+1)*ppb] {
		if !c {
			return true
		}
	}
	return false
}
