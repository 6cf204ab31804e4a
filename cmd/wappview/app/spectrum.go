package app

import (
	"math"
	"time"

	"github.com/roman-kulish/wapp-stream/internal/filterbank"
)

// SpectrumData is a waterfall of spectra, one row per spectrum in stream
// order and one column per channel
type SpectrumData struct {
	Width, Height                int
	FrequencyMin, FrequencyMax   float64 // Channel centres in MHz
	ChannelWidth                 float64 // MHz
	OffsetStart, OffsetEnd       float64 // Seconds from the start of the stream
	TimestampStart, TimestampEnd time.Time
	Histogram                    *PowerHistogram
	Rows                         []Row
}

// Row is one spectrum of the waterfall
type Row struct {
	Block     int64
	Offset    float64
	Timestamp time.Time
	Padding   bool
	Powers    []*float64
}

func NewSpectrumData(h *PowerHistogram) *SpectrumData {
	return &SpectrumData{
		FrequencyMin: math.MaxFloat64,
		Histogram:    h,
	}
}

func (s *SpectrumData) Update(spec *filterbank.Spectrum) {
	if len(spec.Channels) > 0 {
		s.Width = max(s.Width, len(spec.Channels))
		s.FrequencyMin = min(s.FrequencyMin, spec.FrequencyStart)
		s.FrequencyMax = max(s.FrequencyMax, spec.FrequencyEnd)
		s.ChannelWidth = math.Abs(spec.Channels[0].Width)
	}

	if s.Height == 0 || spec.Offset < s.OffsetStart {
		s.OffsetStart, s.TimestampStart = spec.Offset, spec.Timestamp
	}
	if s.Height == 0 || spec.Offset > s.OffsetEnd {
		s.OffsetEnd, s.TimestampEnd = spec.Offset, spec.Timestamp
	}
	s.Height++

	powers := make([]*float64, len(spec.Channels))
	for i, ch := range spec.Channels {
		powers[i] = ch.Power
		s.Histogram.Update(ch.Power)
	}
	s.Rows = append(s.Rows, Row{
		Block:     spec.Block,
		Offset:    spec.Offset,
		Timestamp: spec.Timestamp,
		Padding:   spec.Padding,
		Powers:    powers,
	})
}

// Empty reports whether no channel was read
func (s *SpectrumData) Empty() bool {
	return s.Width == 0 || s.Height == 0
}

// PaddedRows counts the spectra that averaged padding
func (s *SpectrumData) PaddedRows() int {
	var n int
	for _, r := range s.Rows {
		if r.Padding {
			n++
		}
	}
	return n
}

// RowDuration returns the seconds between consecutive spectra
func (s *SpectrumData) RowDuration() float64 {
	if s.Height < 2 {
		return 0
	}
	return (s.OffsetEnd - s.OffsetStart) / float64(s.Height-1)
}
