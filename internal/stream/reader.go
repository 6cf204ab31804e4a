package stream

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/roman-kulish/wapp-stream/internal/lags"
)

var (
	ErrSeekOutOfRange = errors.New("block out of range")
	ErrChannelRange   = errors.New("channel out of range")
)

// ReadError reports a failed read of raw lag data that is not the end of a file
type ReadError struct {
	File  int   // 1-based file number
	Block int64 // Aggregate block being assembled
	Err   error
}

func (e *ReadError) Error() string {
	return fmt.Sprintf("reading raw data of file %d at block %d: %v", e.File, e.Block, e.Err)
}

func (e *ReadError) Unwrap() error {
	return e.Err
}

// Input is the lag data of one raw file
type Input struct {
	Data  io.ReaderAt      // Lag blocks, starting right after the binary header
	Order binary.ByteOrder // Byte order of the lags
}

// Reader produces fixed-size blocks of decoded bytes from the aggregate stream
// described by a Plan. File boundaries and timing gaps are hidden: gaps are
// filled with PadValue, and a block may combine the tail of one file, padding
// and the head of the next.
//
// A Reader is not safe for concurrent use.
type Reader struct {
	plan   *Plan
	inputs []Input
	codec  *lags.Codec
	logger *slog.Logger

	ppb        int
	numChan    int
	blockBytes int

	raw []byte // One raw block
	buf []byte // Carried points followed by one decoded block
	out []byte // Block returned by ReadBlock

	file        int   // Current file
	rawBlock    int64 // Next raw block of the current file
	block       int64 // Aggregate blocks emitted
	carry       int   // Points held at the head of buf
	carryPadded bool  // Whether the carried points include padding
	padded      int64 // Padding points emitted after the current file
}

// NewReader creates a reader over inputs, one per planned file, decoding with
// codec. The codec must match the plan's channel count and lag width.
func NewReader(plan *Plan, inputs []Input, codec *lags.Codec, opts ...Option) (*Reader, error) {
	o := applyOptions(opts)

	if len(inputs) != len(plan.Files) {
		return nil, fmt.Errorf("got %d inputs for %d planned files", len(inputs), len(plan.Files))
	}
	if codec.NumChan() != plan.NumChan || codec.BytesPerPoint() != plan.BytesPerPoint {
		return nil, fmt.Errorf("codec decodes %d channels in %d bytes per point, plan needs %d in %d",
			codec.NumChan(), codec.BytesPerPoint(), plan.NumChan, plan.BytesPerPoint)
	}

	blockBytes := plan.BlockBytes()
	return &Reader{
		plan:       plan,
		inputs:     inputs,
		codec:      codec,
		logger:     o.logger,
		ppb:        plan.PointsPerBlock,
		numChan:    plan.NumChan,
		blockBytes: blockBytes,
		raw:        make([]byte, plan.RawBlockBytes()),
		buf:        make([]byte, 2*blockBytes),
		out:        make([]byte, blockBytes),
	}, nil
}

// Plan returns the plan the reader follows
func (r *Reader) Plan() *Plan { return r.plan }

// Block returns the 0-based aggregate index of the next block to be read
func (r *Reader) Block() int64 { return r.block }

// BlockBytes returns the size of one decoded block
func (r *Reader) BlockBytes() int { return r.blockBytes }

// ReadBlock returns the next block of PointsPerBlock*NumChan bytes. padding is
// true when any point in it was synthesized. The returned slice is reused by
// the next call. io.EOF is returned after the last block.
func (r *Reader) ReadBlock() (block []byte, padding bool, err error) {
	padding, err = r.readBlock(r.out)
	if err != nil {
		return nil, false, err
	}
	return r.out, padding, nil
}

// ReadBlocks reads up to n blocks into dst, which must hold n*BlockBytes bytes.
// It returns the number of blocks read and whether any of them held padding.
// A short count at the end of the stream is returned without error, the next
// call returns io.EOF.
func (r *Reader) ReadBlocks(dst []byte, n int) (read int, padding bool, err error) {
	if len(dst) < n*r.blockBytes {
		return 0, false, fmt.Errorf("destination holds %d bytes, %d blocks need %d", len(dst), n, n*r.blockBytes)
	}

	for read < n {
		pad, err := r.readBlock(dst[read*r.blockBytes : (read+1)*r.blockBytes])
		if errors.Is(err, io.EOF) && read > 0 {
			break
		}
		if err != nil {
			return read, padding, err
		}
		padding = padding || pad
		read++
	}
	return read, padding, nil
}

// readBlock runs the reader state machine until one block is written to out.
// Every iteration either returns or moves to the next file, so the loop ends
// once the files are exhausted.
func (r *Reader) readBlock(out []byte) (bool, error) {
	nc := r.numChan

	for {
		if r.file >= len(r.inputs) {
			return false, io.EOF
		}
		g := &r.plan.Files[r.file]

		if r.rawBlock < g.NumBlocks {
			err := r.decodeRaw(r.rawBlock, r.buf[r.carry*nc:])
			switch {
			case err == nil:
				r.rawBlock++
				copy(out, r.buf[:r.blockBytes])
				copy(r.buf, r.buf[r.blockBytes:r.blockBytes+r.carry*nc])
				padding := r.carryPadded
				r.carryPadded = false
				r.block++
				return padding, nil
			case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
				r.logger.Warn("raw file is shorter than planned",
					"file", r.file+1, "block", r.rawBlock, "planned", g.NumBlocks)
				r.rawBlock = g.NumBlocks
				continue
			default:
				return false, &ReadError{File: r.file + 1, Block: r.block, Err: err}
			}
		}

		owed := g.PadPoints - r.padded
		if owed <= 0 {
			r.nextFile()
			continue
		}

		room := int64(r.ppb - r.carry)
		if owed >= room {
			fill(r.buf[r.carry*nc:r.blockBytes], PadValue)
			copy(out, r.buf[:r.blockBytes])
			r.carry = 0
			r.carryPadded = false
			r.padded += room
			r.block++
			if r.padded == g.PadPoints {
				r.nextFile()
			}
			return true, nil
		}

		// Less than a block of padding is owed: keep it with the carried points
		// and complete the block from the next file
		fill(r.buf[r.carry*nc:(r.carry+int(owed))*nc], PadValue)
		r.carry += int(owed)
		r.carryPadded = true
		r.nextFile()
	}
}

func (r *Reader) nextFile() {
	r.file++
	r.rawBlock = 0
	r.padded = 0
	if r.file < len(r.inputs) {
		r.logger.Debug("advancing to next file", "file", r.file+1, "block", r.block, "carry", r.carry)
	}
}

// decodeRaw reads raw block index of the current file and decodes it into dst
func (r *Reader) decodeRaw(index int64, dst []byte) error {
	in := r.inputs[r.file]
	n, err := in.Data.ReadAt(r.raw, index*int64(len(r.raw)))
	if n < len(r.raw) {
		if err == nil || errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return err
	}
	r.codec.ConvertBlock(r.raw, in.Order, dst)
	return nil
}

// Seek positions the reader so the next block read is the 0-based aggregate
// block. The state matches that of a reader that read every preceding block.
func (r *Reader) Seek(block int64) error {
	if block < 0 || block >= r.plan.NumBlocks() {
		return fmt.Errorf("%w: %d not in [0, %d)", ErrSeekOutOfRange, block, r.plan.NumBlocks())
	}

	ppb := int64(r.ppb)
	point := block * ppb

	// The owner is the last file whose data starts at or before the point, each
	// file owning its data and the padding that follows it
	file := 0
	for i := range r.plan.Files {
		if r.plan.Files[i].DataStart <= point {
			file = i
		}
	}
	g := &r.plan.Files[file]

	r.file = file
	r.block = block
	r.carryPadded = false

	// Within a file the reader carries a constant number of points, the offset
	// of the file's first point from a block boundary
	carry := g.DataStart % ppb

	if point < g.DataEnd() {
		consumed := (point - g.DataStart + carry) / ppb
		r.rawBlock = consumed
		r.padded = 0
		r.carry = int(carry)
		if carry > 0 {
			// Re-decode the raw block whose tail is carried
			if err := r.decodeRaw(consumed-1, r.buf); err != nil {
				return &ReadError{File: file + 1, Block: block, Err: err}
			}
			copy(r.buf, r.buf[(ppb-carry)*int64(r.numChan):ppb*int64(r.numChan)])
		}
		return nil
	}

	// Nothing is carried in the padding region: either the file ends on a block
	// boundary or the first padding block flushed the carried points
	r.rawBlock = g.NumBlocks
	r.padded = point - g.DataEnd()
	r.carry = 0
	return nil
}

// Channel copies channel ch of the decoded blocks in data to dst and returns
// the number of points copied. Channel 0 is the lowest frequency.
func (r *Reader) Channel(ch int, data []byte, dst []float32) (int, error) {
	if ch < 0 || ch >= r.numChan {
		return 0, fmt.Errorf("%w: %d not in [0, %d)", ErrChannelRange, ch, r.numChan)
	}

	points := min(len(data)/r.numChan, len(dst))
	for i := 0; i < points; i++ {
		dst[i] = float32(data[i*r.numChan+ch])
	}
	return points, nil
}

func fill(b []byte, v byte) {
	for i := range b {
		b[i] = v
	}
}
