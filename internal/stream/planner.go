package stream

import (
	"errors"
	"fmt"
	"io"
	"math"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/roman-kulish/wapp-stream/internal/wapp"
)

var (
	ErrNoFiles      = errors.New("no input files")
	ErrTooManyFiles = errors.New("too many input files")
)

// FileGeometry is the place of one raw file in the aggregate stream
type FileGeometry struct {
	DataLen   int64    // Bytes of lag data following the headers
	NumBlocks int64    // Whole raw blocks in the file
	NumPoints int64    // Points in whole raw blocks
	Duration  float64  // NumPoints * dt in seconds
	Elapsed   float64  // Seconds from the start of the first file
	MJD       wapp.MJD // Start of the file, re-derived for continuation files

	// StartBlock and EndBlock are 1-based block numbers of the first and last
	// data point. They are fractional when the file does not start on a block
	// boundary of the aggregate stream.
	StartBlock float64
	EndBlock   float64

	PadPoints int64 // Synthesized points following this file's data
	DataStart int64 // Aggregate index of the file's first point
}

// DataEnd returns the aggregate index one past the file's last data point
func (g *FileGeometry) DataEnd() int64 {
	return g.DataStart + g.NumPoints
}

// Plan lays a sequence of independently timestamped raw files out on one
// continuous time axis, with padding where files leave gaps
type Plan struct {
	Files          []FileGeometry
	Info           *wapp.Info // Metadata of the first file
	PointsPerBlock int
	NumChan        int
	BytesPerPoint  int
	DT             float64 // Sample interval in seconds
	N              int64   // Points in the aggregate stream, padding included
	T              float64 // Duration of the aggregate stream in seconds
}

// NewPlan computes the geometry of every file. dataLens holds the number of
// lag data bytes in each file, after its headers. The first file defines the
// sample interval and the channel count, later files that disagree are
// accepted with a warning.
func NewPlan(headers []*wapp.Header, dataLens []int64, opts ...Option) (*Plan, error) {
	o := applyOptions(opts)
	logger := o.logger

	if len(headers) == 0 {
		return nil, ErrNoFiles
	}
	if len(headers) > o.maxFiles {
		return nil, fmt.Errorf("%w: %d files, at most %d are supported", ErrTooManyFiles, len(headers), o.maxFiles)
	}
	if len(dataLens) != len(headers) {
		return nil, fmt.Errorf("got %d data lengths for %d headers", len(dataLens), len(headers))
	}

	infos := make([]*wapp.Info, len(headers))
	for i, h := range headers {
		info, err := h.Info()
		if err != nil {
			return nil, fmt.Errorf("file %d: %w", i+1, err)
		}
		if info.Correction != 0 {
			logger.Warn("sample time calibration correction applied",
				"file", i+1, "mjd", info.MJD.Float(), "correction_us", info.Correction)
		}
		infos[i] = info
	}

	info0 := infos[0]
	ppb := int64(o.pointsPerBlock)
	p := &Plan{
		Files:          make([]FileGeometry, len(headers)),
		Info:           info0,
		PointsPerBlock: o.pointsPerBlock,
		NumChan:        info0.NumChan,
		BytesPerPoint:  info0.NumChan * int(headers[0].NumIFs) * info0.Bits / 8,
		DT:             info0.DT,
	}
	if p.BytesPerPoint <= 0 {
		return nil, fmt.Errorf("file 1: %w", wapp.NewConfigError("number of lags", headers[0].NumLags))
	}
	bpp := int64(p.BytesPerPoint)
	bpb := ppb * bpp
	dt := p.DT

	for i := range p.Files {
		g := &p.Files[i]
		g.DataLen = max(dataLens[i], 0)
		g.NumBlocks = g.DataLen / bpb
		g.NumPoints = g.NumBlocks * ppb
		g.Duration = float64(g.NumPoints) * dt
		g.MJD = infos[i].MJD

		if i == 0 {
			g.StartBlock = 1
			g.EndBlock = float64(g.NumPoints) / float64(ppb)
			p.N = g.NumPoints
			continue
		}

		if infos[i].NumChan != p.NumChan {
			logger.Warn("number of channels differs from the first file, using the first file's",
				"file", i+1, "channels", infos[i].NumChan, "expected", p.NumChan)
		}
		if infos[i].DT != dt {
			logger.Warn("sample time differs from the first file, using the first file's",
				"file", i+1, "dt", infos[i].DT, "expected", dt)
		}

		prev := &p.Files[i-1]
		var elapsed float64
		if g.MJD == p.Files[0].MJD {
			// Continuation files repeat the first file's timestamp, derive the
			// real start from the length of the previous file
			elapsed = float64(prev.DataLen/bpp) * dt
			g.MJD = prev.MJD.Add(elapsed)
		} else {
			elapsed = g.MJD.Sub(prev.MJD)
		}

		pad := int64(math.Floor((elapsed-prev.Duration)/dt + 0.5))
		if pad < 0 {
			logger.Warn("file overlaps the previous one, no padding inserted",
				"file", i+1, "overlap_points", -pad)
			pad = 0
		}
		prev.PadPoints = pad

		g.Elapsed = elapsed + prev.Elapsed
		p.N += g.NumPoints + pad
		g.DataStart = p.N - g.NumPoints
		g.StartBlock = float64(g.DataStart)/float64(ppb) + 1
		g.EndBlock = float64(p.N) / float64(ppb)
	}

	last := &p.Files[len(p.Files)-1]
	last.PadPoints = int64(math.Ceil(last.EndBlock))*ppb - p.N
	p.N += last.PadPoints
	p.T = float64(p.N) * dt

	info0.OnOff = p.OnOff()

	return p, nil
}

// NumBlocks returns the number of blocks in the aggregate stream
func (p *Plan) NumBlocks() int64 {
	return p.N / int64(p.PointsPerBlock)
}

// BlockBytes returns the size of one decoded block
func (p *Plan) BlockBytes() int {
	return p.PointsPerBlock * p.NumChan
}

// RawBlockBytes returns the size of one raw block of lags
func (p *Plan) RawBlockBytes() int {
	return p.PointsPerBlock * p.BytesPerPoint
}

// BlockDuration returns the duration of one block in seconds
func (p *Plan) BlockDuration() float64 {
	return float64(p.PointsPerBlock) * p.DT
}

// OnOff returns the [first, last] aggregate point indices of each contiguous
// run of real data. Runs of adjacent files without padding between them are
// merged. When the stream ends in padding a final [N-1, N-1] pair marks its end.
// A single file without padding has no ranges.
func (p *Plan) OnOff() [][2]float64 {
	if len(p.Files) == 1 && p.Files[0].PadPoints == 0 {
		return nil
	}

	var ranges [][2]float64
	for _, g := range p.Files {
		if g.NumPoints == 0 {
			continue
		}
		first, last := float64(g.DataStart), float64(g.DataEnd()-1)
		if n := len(ranges); n > 0 && ranges[n-1][1] == first-1 {
			ranges[n-1][1] = last
			continue
		}
		ranges = append(ranges, [2]float64{first, last})
	}

	if p.Files[len(p.Files)-1].PadPoints > 0 {
		end := float64(p.N - 1)
		ranges = append(ranges, [2]float64{end, end})
	}
	return ranges
}

// Table writes a summary of the plan and the per-file geometry
func (p *Plan) Table(w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', tabwriter.AlignRight)

	fmt.Fprintf(tw, "Number of files\t%d\t\n", len(p.Files))
	fmt.Fprintf(tw, "Points/block\t%d\t\n", p.PointsPerBlock)
	fmt.Fprintf(tw, "Channels\t%d\t\n", p.NumChan)
	fmt.Fprintf(tw, "Total points (N)\t%s\t\n", humanize.Comma(p.N))
	fmt.Fprintf(tw, "Sample time (dt)\t%.14g\t\n", p.DT)
	fmt.Fprintf(tw, "Total time (s)\t%.14g\t\n", p.T)
	fmt.Fprintln(tw, "\t\t")

	fmt.Fprintln(tw, "File\tStart block\tLast block\tPoints\tData\tElapsed (s)\tTime (s)\tMJD\tPadding\t")
	for i, g := range p.Files {
		fmt.Fprintf(tw, "%d\t%.11g\t%.11g\t%d\t%s\t%.13g\t%.13g\t%s\t%d\t\n",
			i+1, g.StartBlock, g.EndBlock, g.NumPoints, humanize.IBytes(uint64(g.DataLen)),
			g.Elapsed, g.Duration, g.MJD, g.PadPoints)
	}

	return tw.Flush()
}
