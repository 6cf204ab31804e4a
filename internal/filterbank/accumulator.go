package filterbank

import (
	"errors"
	"fmt"
	"sort"

	"github.com/roman-kulish/wapp-stream/internal/stream"
)

// Accumulator averages decoded blocks into spectra. Padding points are counted
// towards the spectrum length but not averaged, so a spectrum made of padding
// only has nil powers.
//
// An Accumulator is not safe for concurrent use.
type Accumulator struct {
	plan     *stream.Plan
	perSpec  int
	scaleMin float64
	scaleMax float64

	sums    []uint64
	points  int
	blocks  int
	first   int64
	padding bool
}

// NewAccumulator creates an accumulator emitting one spectrum per
// blocksPerSpectrum blocks of the plan's stream. Bytes are mapped back to
// power over [scaleMin, scaleMax], the range the codec quantized with.
func NewAccumulator(plan *stream.Plan, blocksPerSpectrum int, scaleMin, scaleMax float64) (*Accumulator, error) {
	if blocksPerSpectrum < 1 {
		return nil, fmt.Errorf("blocks per spectrum must be positive, got %d", blocksPerSpectrum)
	}
	if scaleMax <= scaleMin {
		return nil, errors.New("scale max must be above scale min")
	}

	return &Accumulator{
		plan:     plan,
		perSpec:  blocksPerSpectrum,
		scaleMin: scaleMin,
		scaleMax: scaleMax,
		sums:     make([]uint64, plan.NumChan),
	}, nil
}

// Add accumulates the decoded block with the given 0-based aggregate index. It
// returns a spectrum once blocksPerSpectrum blocks were added.
func (a *Accumulator) Add(block []byte, index int64, padding bool) (*Spectrum, bool) {
	if a.blocks == 0 {
		a.first = index
	}
	a.blocks++
	a.padding = a.padding || padding

	nc := a.plan.NumChan
	point := index * int64(a.plan.PointsPerBlock)
	for p := 0; p+nc <= len(block); p, point = p+nc, point+1 {
		if padding && !a.isData(point) {
			continue
		}
		for c, v := range block[p : p+nc] {
			a.sums[c] += uint64(v)
		}
		a.points++
	}

	if a.blocks < a.perSpec {
		return nil, false
	}
	return a.Flush()
}

// isData reports whether the aggregate point holds decoded data rather than
// padding
func (a *Accumulator) isData(point int64) bool {
	files := a.plan.Files
	i := sort.Search(len(files), func(i int) bool { return files[i].DataEnd() > point })
	return i < len(files) && files[i].DataStart <= point
}

// Flush returns the spectrum of the blocks added since the last one, if any
func (a *Accumulator) Flush() (*Spectrum, bool) {
	if a.blocks == 0 {
		return nil, false
	}

	info := a.plan.Info
	offset := float64(a.first) * a.plan.BlockDuration()
	s := &Spectrum{
		Block:          a.first,
		Offset:         offset,
		Timestamp:      info.MJD.Add(offset).Time(),
		Padding:        a.padding,
		FrequencyStart: info.LowFreq,
		FrequencyEnd:   info.HighFreq(),
		Channels:       make([]Channel, len(a.sums)),
	}

	for c, sum := range a.sums {
		ch := Channel{
			Frequency: info.LowFreq + float64(c)*info.ChanWidth,
			Width:     info.ChanWidth,
			NumPoints: a.points,
		}
		if a.points > 0 {
			power := a.power(float64(sum) / float64(a.points))
			ch.Power = &power
		}
		s.Channels[c] = ch
	}

	clear(a.sums)
	a.points, a.blocks, a.padding = 0, 0, false
	return s, true
}

// power maps a mean quantized byte back onto the power scale
func (a *Accumulator) power(mean float64) float64 {
	return a.scaleMin + mean*(a.scaleMax-a.scaleMin)/255
}
