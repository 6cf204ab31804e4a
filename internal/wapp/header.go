package wapp

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"math/bits"
)

const (
	// HeaderSize is the size in bytes of the fixed binary header record
	HeaderSize = 2048

	// MaxPreambleLen bounds the NUL-terminated ASCII preamble. The format itself
	// declares no length, this only stops a reader from scanning a file that has
	// no terminator at all.
	MaxPreambleLen = 1 << 20

	// MaxIFs is the largest IF count the byte-order heuristic treats as plausible
	MaxIFs = 4
)

// Header is the fixed binary header record of a WAPP raw file. Field order and
// widths define the on-disk layout; see binary.Size(Header{}) == HeaderSize.
type Header struct {
	Version       int32        // Header version
	HeaderSize    int32        // Declared size of this record in bytes
	SrcName       [24]byte     // Source name
	ObsDate       [24]byte     // Observation date, YYYYMMDD
	StartTime     [24]byte     // Observation start time, HH:MM:SS (UT)
	ProjectID     [24]byte     // Project ID
	Observers     [24]byte     // Observer names
	ScanNumber    int32        // Scan number
	SrcRA         float64      // Right ascension, packed HHMMSS.SSSS (J2000)
	SrcDec        float64      // Declination, packed DDMMSS.SSSS (J2000)
	StartAz       float64      // Starting azimuth in degrees
	StartZA       float64      // Starting zenith angle in degrees
	StartAST      float64      // Starting AST in seconds
	StartLST      float64      // Starting LST in seconds
	ObsTime       float64      // Integration time in seconds
	SampTime      float64      // Requested sample time in microseconds
	WappTime      float64      // Actual sample time in microseconds
	CentFreq      float64      // Centre frequency in MHz
	Bandwidth     float64      // Total bandwidth in MHz
	PowerAnalog   [2]float64   // Analog power levels
	PsrDM         float64      // Dispersion measure
	NumLags       int32        // Number of lags (channels)
	NumIFs        int32        // Number of IFs
	Level         int32        // Correlator level code: 1 = 3-level, 2 = 9-level
	Sum           int32        // 1 if the IFs were summed
	FreqInversion int32        // 1 if the band is inverted
	LagFormat     int32        // Lag format code: 0 = 16 bit, 1 = 32 bit
	LagTrunc      int32        // Lag truncation code
	TimeOff       int64        // Time offset
	RPhase        [9]float64   // Polyco reference phases
	PsrF0         [9]float64   // Polyco reference frequencies
	PolyTMid      [9]float64   // Polyco mid-point epochs
	NumCoeffs     [9]int32     // Polyco coefficient counts
	Coeff         [144]float64 // Polyco coefficients
	Reserved      [364]byte
}

// FileHeader holds everything in front of the lag data of one raw file
type FileHeader struct {
	*Header

	Preamble string           // ASCII preamble without its terminator
	Length   int64            // Bytes consumed: preamble, terminator and binary header
	Swapped  bool             // Whether the file byte order is the opposite of the host's
	Order    binary.ByteOrder // Byte order of multi-byte values in the file
}

type readOptions struct {
	order binary.ByteOrder
}

// ReadOption configures ReadFileHeader
type ReadOption func(*readOptions)

// WithByteOrder disables the byte-order heuristic and decodes the header and the
// lag data in the given order.
func WithByteOrder(order binary.ByteOrder) ReadOption {
	return func(o *readOptions) {
		o.order = order
	}
}

// ReadFileHeader consumes the ASCII preamble and the binary header from r.
// The preamble is read one byte at a time, so r is left positioned at the first
// lag block. Wrap unbuffered readers in a bufio.Reader.
func ReadFileHeader(r io.Reader, options ...ReadOption) (*FileHeader, error) {
	var opts readOptions
	for _, option := range options {
		option(&opts)
	}

	preamble, err := readPreamble(r)
	if err != nil {
		return nil, err
	}

	order := opts.order
	if order == nil {
		order = binary.NativeEndian
	}

	var h Header
	if err = binary.Read(r, order, &h); err != nil {
		return nil, fmt.Errorf("%w: reading binary header: %w", ErrMalformedHeader, err)
	}

	fh := FileHeader{
		Header:   &h,
		Preamble: preamble,
		Length:   int64(len(preamble)) + 1 + HeaderSize,
		Order:    order,
		Swapped:  !sameOrder(order, binary.NativeEndian),
	}

	if opts.order == nil && h.NeedsSwap() {
		h.Swap()
		fh.Swapped = true
		fh.Order = oppositeOrder(binary.NativeEndian)
	}

	return &fh, nil
}

func readPreamble(r io.Reader) (string, error) {
	var buf bytes.Buffer
	var b [1]byte
	for {
		if _, err := io.ReadFull(r, b[:]); err != nil {
			if errors.Is(err, io.EOF) {
				err = io.ErrUnexpectedEOF
			}
			return "", fmt.Errorf("%w: reading ASCII preamble: %w", ErrMalformedHeader, err)
		}
		if b[0] == 0 {
			return buf.String(), nil
		}
		if buf.Len() >= MaxPreambleLen {
			return "", fmt.Errorf("%w: ASCII preamble exceeds %d bytes", ErrMalformedHeader, MaxPreambleLen)
		}
		buf.WriteByte(b[0])
	}
}

// NeedsSwap reports whether the record looks byte-swapped: the declared header
// size is not HeaderSize and the IF count is implausible. This is a heuristic;
// use WithByteOrder when it guesses wrong.
func (h *Header) NeedsSwap() bool {
	return h.HeaderSize != HeaderSize && (h.NumIFs < 1 || h.NumIFs > MaxIFs)
}

// Swap reverses the byte order of every multi-byte field in place.
// Swapping twice restores the original record.
func (h *Header) Swap() {
	for _, p := range []*int32{
		&h.Version, &h.HeaderSize, &h.ScanNumber, &h.NumLags, &h.NumIFs,
		&h.Level, &h.Sum, &h.FreqInversion, &h.LagFormat, &h.LagTrunc,
	} {
		*p = swapInt32(*p)
	}
	for _, p := range []*float64{
		&h.SrcRA, &h.SrcDec, &h.StartAz, &h.StartZA, &h.StartAST, &h.StartLST,
		&h.ObsTime, &h.SampTime, &h.WappTime, &h.CentFreq, &h.Bandwidth,
		&h.PowerAnalog[0], &h.PowerAnalog[1], &h.PsrDM,
	} {
		*p = swapFloat64(*p)
	}
	h.TimeOff = int64(bits.ReverseBytes64(uint64(h.TimeOff)))
	for i := range h.RPhase {
		h.RPhase[i] = swapFloat64(h.RPhase[i])
		h.PsrF0[i] = swapFloat64(h.PsrF0[i])
		h.PolyTMid[i] = swapFloat64(h.PolyTMid[i])
		h.NumCoeffs[i] = swapInt32(h.NumCoeffs[i])
	}
	for i := range h.Coeff {
		h.Coeff[i] = swapFloat64(h.Coeff[i])
	}
}

// Encode writes the binary record to w in the given byte order
func (h *Header) Encode(w io.Writer, order binary.ByteOrder) error {
	return binary.Write(w, order, h)
}

// Validate checks the settings the decoder depends on
func (h *Header) Validate() error {
	_, _, err := h.Quantization()
	return err
}

// Quantization returns the correlator level (3 or 9) and the lag width in bits
// (16 or 32). Headers declaring anything but a single IF are rejected.
func (h *Header) Quantization() (level, lagBits int, err error) {
	if h.NumIFs != 1 {
		return 0, 0, fmt.Errorf("%w: %d (only 1 IF is supported)", ErrUnsupportedIFs, h.NumIFs)
	}
	if level, err = h.CorrelatorLevel(); err != nil {
		return 0, 0, err
	}
	if lagBits, err = h.LagBits(); err != nil {
		return 0, 0, err
	}
	return level, lagBits, nil
}

// CorrelatorLevel returns the number of quantization levels, 3 or 9
func (h *Header) CorrelatorLevel() (int, error) {
	switch h.Level {
	case 1:
		return 3, nil
	case 2:
		return 9, nil
	default:
		return 0, NewConfigError("level", h.Level)
	}
}

// LagBits returns the width of one lag value in bits, 16 or 32
func (h *Header) LagBits() (int, error) {
	switch h.LagFormat {
	case 0:
		return 16, nil
	case 1:
		return 32, nil
	default:
		return 0, NewConfigError("lag format", h.LagFormat)
	}
}

// BytesPerPoint returns the size of one time sample of lags for all channels and IFs
func (h *Header) BytesPerPoint() int {
	b, err := h.LagBits()
	if err != nil {
		return 0
	}
	return int(h.NumLags) * int(h.NumIFs) * b / 8
}

func (h *Header) Source() string     { return cString(h.SrcName[:]) }
func (h *Header) Date() string       { return cString(h.ObsDate[:]) }
func (h *Header) Time() string       { return cString(h.StartTime[:]) }
func (h *Header) Project() string    { return cString(h.ProjectID[:]) }
func (h *Header) Observer() string   { return cString(h.Observers[:]) }
func (h *Header) IFsSummed() bool    { return h.Sum != 0 }
func (h *Header) BandInverted() bool { return h.FreqInversion != 0 }

// FixedString packs s into a NUL padded header text field, truncating if needed
func FixedString(s string) [24]byte {
	var b [24]byte
	copy(b[:len(b)-1], s)
	return b
}

func cString(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}
	return string(b)
}

func swapInt32(v int32) int32 {
	return int32(bits.ReverseBytes32(uint32(v)))
}

func swapFloat64(v float64) float64 {
	return math.Float64frombits(bits.ReverseBytes64(math.Float64bits(v)))
}

func sameOrder(a, b binary.ByteOrder) bool {
	var buf [2]byte
	a.PutUint16(buf[:], 1)
	return b.Uint16(buf[:]) == 1
}

func oppositeOrder(order binary.ByteOrder) binary.ByteOrder {
	if sameOrder(order, binary.LittleEndian) {
		return binary.BigEndian
	}
	return binary.LittleEndian
}
