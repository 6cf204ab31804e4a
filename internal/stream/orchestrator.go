package stream

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
)

var (
	ErrNotOpen      = errors.New("orchestrator is not open")
	ErrPointsLength = errors.New("points per read mismatch")
	ErrBadDelays    = errors.New("invalid dispersion delays")
	ErrBadSubbands  = errors.New("invalid number of subbands")
)

// ReadResult describes one group of points returned by the Orchestrator
type ReadResult struct {
	Points  int  // Points read from the stream, zero at the end
	Padding bool // Whether any block of the group held padding
	Masked  int  // Channels masked in the group
}

// Orchestrator reads groups of blocks, blanks masked channels and hands the
// current and previous group to a Dedisperser. Output lags the stream by one
// group: Open reads the first group without producing any.
type Orchestrator struct {
	r             *Reader
	blocksPerRead int
	numPoints     int
	numChan       int

	masker Masker
	dedisp Dedisperser
	delays []int
	logger *slog.Logger

	current  []byte
	previous []byte
	scratch  []float32
}

// OrchestratorOption configures an Orchestrator
type OrchestratorOption func(*Orchestrator)

// WithMasker sets the channel masking collaborator. Without one nothing is masked.
func WithMasker(m Masker) OrchestratorOption {
	return func(o *Orchestrator) {
		o.masker = m
	}
}

// WithDedisperser replaces the ShiftDedisperser
func WithDedisperser(d Dedisperser) OrchestratorOption {
	return func(o *Orchestrator) {
		if d != nil {
			o.dedisp = d
		}
	}
}

// WithDelays sets the per-channel delays in samples. Without them channels are
// summed unshifted.
func WithDelays(delays []int) OrchestratorOption {
	return func(o *Orchestrator) {
		o.delays = delays
	}
}

// NewOrchestrator creates an orchestrator reading blocksPerRead blocks from r
// per call. It logs through the reader's logger.
func NewOrchestrator(r *Reader, blocksPerRead int, opts ...OrchestratorOption) (*Orchestrator, error) {
	if blocksPerRead < 1 {
		return nil, fmt.Errorf("blocks per read must be positive, got %d", blocksPerRead)
	}

	o := &Orchestrator{
		r:             r,
		blocksPerRead: blocksPerRead,
		numPoints:     blocksPerRead * r.ppb,
		numChan:       r.numChan,
		dedisp:        ShiftDedisperser{},
		logger:        r.logger,
	}
	for _, opt := range opts {
		opt(o)
	}

	if o.delays == nil {
		o.delays = make([]int, o.numChan)
	}
	if len(o.delays) != o.numChan {
		return nil, fmt.Errorf("%w: %d delays for %d channels", ErrBadDelays, len(o.delays), o.numChan)
	}
	for c, d := range o.delays {
		if d < 0 || d > o.numPoints {
			return nil, fmt.Errorf("%w: channel %d delay %d outside [0, %d]", ErrBadDelays, c, d, o.numPoints)
		}
	}

	return o, nil
}

// NumPoints returns the number of points per read
func (o *Orchestrator) NumPoints() int { return o.numPoints }

// Open allocates the group buffers and reads the first group. It returns
// io.EOF when the stream holds no blocks.
func (o *Orchestrator) Open() error {
	size := o.numPoints * o.numChan
	o.current = make([]byte, size)
	o.previous = make([]byte, size)

	if _, err := o.readGroup(); err != nil {
		o.release()
		return err
	}
	o.swap()

	o.logger.Debug("orchestrator primed", "points", o.numPoints, "max_delay", MaxDelay(o.delays))
	return nil
}

// Close releases the group buffers
func (o *Orchestrator) Close() error {
	o.release()
	return nil
}

// ReadFull dedisperses the next group into out, which must hold numPoints
// values. numPoints must equal NumPoints.
func (o *Orchestrator) ReadFull(numPoints int, out []float32) (ReadResult, error) {
	if numPoints != o.numPoints {
		return ReadResult{}, fmt.Errorf("%w: asked for %d, reads hold %d", ErrPointsLength, numPoints, o.numPoints)
	}
	if len(out) < numPoints {
		return ReadResult{}, fmt.Errorf("output holds %d points, need %d", len(out), numPoints)
	}

	res, err := o.readGroup()
	if err != nil {
		return res, err
	}

	o.dedisp.Dedisperse(o.current, o.previous, o.numPoints, o.numChan, o.delays, out)
	o.swap()
	return res, nil
}

// ReadSubbands dedisperses the next group into numSubbands subbands of
// adjacent channels. out must hold NumPoints*numSubbands values. The layout is
// time-major, out[point*numSubbands+subband], or with transpose subband-major,
// out[subband*NumPoints+point], lowest frequency subband first.
func (o *Orchestrator) ReadSubbands(numSubbands int, transpose bool, out []float32) (ReadResult, error) {
	if numSubbands < 1 || numSubbands > o.numChan || o.numChan%numSubbands != 0 {
		return ReadResult{}, fmt.Errorf("%w: %d subbands of %d channels", ErrBadSubbands, numSubbands, o.numChan)
	}
	size := o.numPoints * numSubbands
	if len(out) < size {
		return ReadResult{}, fmt.Errorf("output holds %d values, need %d", len(out), size)
	}

	res, err := o.readGroup()
	if err != nil {
		return res, err
	}

	if !transpose {
		o.dedisp.Subbands(o.current, o.previous, o.numPoints, o.numChan, o.delays, numSubbands, out)
		o.swap()
		return res, nil
	}

	if cap(o.scratch) < size {
		o.scratch = make([]float32, size)
	}
	scratch := o.scratch[:size]
	o.dedisp.Subbands(o.current, o.previous, o.numPoints, o.numChan, o.delays, numSubbands, scratch)
	o.swap()

	for p := 0; p < o.numPoints; p++ {
		for s := 0; s < numSubbands; s++ {
			out[s*o.numPoints+p] = scratch[p*numSubbands+s]
		}
	}
	return res, nil
}

// readGroup fills the current buffer with the next group and masks it
func (o *Orchestrator) readGroup() (ReadResult, error) {
	if o.current == nil {
		return ReadResult{}, ErrNotOpen
	}

	start := float64(o.r.Block()) * o.r.plan.BlockDuration()

	read, padding, err := o.r.ReadBlocks(o.current, o.blocksPerRead)
	if err != nil {
		return ReadResult{}, err
	}
	if read < o.blocksPerRead {
		fill(o.current[read*o.r.blockBytes:], PadValue)
	}

	res := ReadResult{
		Points:  read * o.r.ppb,
		Padding: padding,
	}

	if o.masker == nil {
		return res, nil
	}

	channels, all := o.masker.MaskedChannels(start, float64(o.blocksPerRead)*o.r.plan.BlockDuration())
	if all {
		fill(o.current, PadValue)
		res.Masked = o.numChan
		return res, nil
	}

	for p := 0; p < o.numPoints; p++ {
		row := o.current[p*o.numChan : (p+1)*o.numChan]
		for _, ch := range channels {
			if ch >= 0 && ch < o.numChan {
				row[ch] = PadValue
			}
		}
	}
	res.Masked = len(channels)
	return res, nil
}

func (o *Orchestrator) swap() {
	o.current, o.previous = o.previous, o.current
}

func (o *Orchestrator) release() {
	o.current, o.previous, o.scratch = nil, nil, nil
}

// Drain reads groups until the end of the stream, calling fn with each
// dedispersed group. It stops at the first error fn returns.
func (o *Orchestrator) Drain(out []float32, fn func(ReadResult, []float32) error) error {
	for {
		res, err := o.ReadFull(o.numPoints, out)
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		if err = fn(res, out[:o.numPoints]); err != nil {
			return err
		}
	}
}
