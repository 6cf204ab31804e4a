package lags

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/roman-kulish/wapp-stream/internal/wapp"
	"gonum.org/v1/gonum/dsp/fourier"
)

const (
	// DeadTime is the correlator dead time per sample in microseconds
	DeadTime = 0.34

	DefaultScaleMin = 0.0
	DefaultScaleMax = 3.0
)

var ErrInvalidParams = errors.New("invalid quantization parameters")

// Params are the quantization settings of one stream. All files of a stream
// share the parameters of the first file.
type Params struct {
	Level      int     // Correlator levels, 3 or 9
	Bits       int     // Lag width, 16 or 32
	Summed     bool    // IFs were summed
	Inverted   bool    // Band is frequency inverted
	SampleTime float64 // Calibrated sample time in microseconds
	Bandwidth  float64 // Total bandwidth in MHz
	ScaleMin   float64 // Power mapped to byte 0
	ScaleMax   float64 // Power mapped to byte 255
}

// ParamsFromInfo derives the parameters from header metadata using the default
// output scaling
func ParamsFromInfo(info *wapp.Info) Params {
	return Params{
		Level:      info.Level,
		Bits:       info.Bits,
		Summed:     info.Summed,
		Inverted:   info.Inverted,
		SampleTime: info.DT * 1e6,
		Bandwidth:  info.Bandwidth,
		ScaleMin:   DefaultScaleMin,
		ScaleMax:   DefaultScaleMax,
	}
}

// Validate checks that the parameters describe a decodable stream
func (p Params) Validate() error {
	if p.Level != 3 && p.Level != 9 {
		return fmt.Errorf("%w: level must be 3 or 9, got %d", ErrInvalidParams, p.Level)
	}
	if p.Bits != 16 && p.Bits != 32 {
		return fmt.Errorf("%w: lag width must be 16 or 32 bits, got %d", ErrInvalidParams, p.Bits)
	}
	if p.SampleTime <= DeadTime {
		return fmt.Errorf("%w: sample time %g us does not exceed the dead time", ErrInvalidParams, p.SampleTime)
	}
	if p.Bandwidth == 0 {
		return fmt.Errorf("%w: zero bandwidth", ErrInvalidParams)
	}
	if p.ScaleMax <= p.ScaleMin {
		return fmt.Errorf("%w: scale max %g must be above scale min %g", ErrInvalidParams, p.ScaleMax, p.ScaleMin)
	}
	return nil
}

// Scale returns the factor converting raw lag counts to normalised lags
func (p Params) Scale() float64 {
	scale := 1.0 / (p.SampleTime - DeadTime) / p.Bandwidth
	if p.Level == 9 {
		scale /= 16.0
	}
	if p.Summed {
		scale /= 2.0
	}
	return scale
}

// BytesPerPoint returns the raw size of one point of numChan lags
func (p Params) BytesPerPoint(numChan int) int {
	return numChan * p.Bits / 8
}

// Codec converts raw correlator lags to quantized filterbank powers, one point
// (all channels at one time tick) at a time. A Codec holds scratch buffers and
// must not be shared between goroutines.
type Codec struct {
	numChan int
	params  Params
	scale   float64
	pfact   float64

	fft    *fourier.FFT
	lag    []float64
	acf    []float64
	coeffs []complex128
	raw    []uint32
}

// NewCodec creates a codec for numChan channels. The real FFT over the 2*numChan
// point autocorrelation is planned once here and released by Close.
func NewCodec(numChan int, p Params) (*Codec, error) {
	if numChan < 2 {
		return nil, fmt.Errorf("%w: need at least 2 channels, got %d", ErrInvalidParams, numChan)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}

	return &Codec{
		numChan: numChan,
		params:  p,
		scale:   p.Scale(),
		pfact:   255.0 / (p.ScaleMax - p.ScaleMin),
		fft:     fourier.NewFFT(2 * numChan),
		lag:     make([]float64, numChan),
		acf:     make([]float64, 2*numChan),
		coeffs:  make([]complex128, numChan+1),
		raw:     make([]uint32, numChan),
	}, nil
}

// NumChan returns the number of channels per point
func (c *Codec) NumChan() int { return c.numChan }

// Params returns the quantization parameters
func (c *Codec) Params() Params { return c.params }

// BytesPerPoint returns the raw size of one point
func (c *Codec) BytesPerPoint() int { return c.params.BytesPerPoint(c.numChan) }

// ConvertPoint converts one point of raw lag counts into numChan bytes.
// raw and out must hold at least NumChan values.
func (c *Codec) ConvertPoint(raw []uint32, out []byte) {
	lag := c.lag
	for i := range lag {
		lag[i] = c.scale*float64(raw[i]) - 1.0
	}

	power := zeroLagPower(lag[0])

	if c.params.Level == 9 {
		vanVleck9(lag)
	} else {
		vanVleck3(lag)
	}

	// Even autocorrelation: acf[i] == acf[2n-i], acf[n] == 0
	n := c.numChan
	for i := 1; i < n; i++ {
		v := power * lag[i]
		c.acf[i] = v
		c.acf[2*n-i] = v
	}
	c.acf[0] = power * lag[0]
	c.acf[n] = 0

	c.coeffs = c.fft.Coefficients(c.coeffs, c.acf)
	for i := range lag {
		lag[i] = real(c.coeffs[i])
	}

	if c.params.Inverted {
		for i, j := 0, n-1; i < j; i, j = i+1, j-1 {
			lag[i], lag[j] = lag[j], lag[i]
		}
	}

	for i, v := range lag {
		out[i] = c.quantize(v)
	}
}

// ConvertRaw decodes one point of packed 16 or 32 bit lags stored in the given
// byte order and converts it into out
func (c *Codec) ConvertRaw(b []byte, order binary.ByteOrder, out []byte) {
	if c.params.Bits == 16 {
		for i := range c.raw {
			c.raw[i] = uint32(order.Uint16(b[2*i:]))
		}
	} else {
		for i := range c.raw {
			c.raw[i] = order.Uint32(b[4*i:])
		}
	}
	c.ConvertPoint(c.raw, out)
}

// ConvertBlock converts every whole point in b, writing NumChan bytes per point
// to out. It returns the number of points converted.
func (c *Codec) ConvertBlock(b []byte, order binary.ByteOrder, out []byte) int {
	bpp := c.BytesPerPoint()
	points := len(b) / bpp
	for p := 0; p < points; p++ {
		c.ConvertRaw(b[p*bpp:(p+1)*bpp], order, out[p*c.numChan:(p+1)*c.numChan])
	}
	return points
}

// Close releases the transform and scratch buffers. The codec is unusable afterwards.
func (c *Codec) Close() error {
	c.fft = nil
	c.lag, c.acf, c.coeffs, c.raw = nil, nil, nil, nil
	return nil
}

func (c *Codec) quantize(v float64) byte {
	x := (v-c.params.ScaleMin)*c.pfact + 0.5
	switch {
	case math.IsNaN(x) || x < 1:
		return 0
	case x >= 255:
		return 255
	}
	return byte(x)
}
