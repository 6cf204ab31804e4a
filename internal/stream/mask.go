package stream

import "slices"

// Masker decides which channels to blank for a span of the stream
type Masker interface {
	// MaskedChannels returns the channels masked over [start, start+duration)
	// seconds from the start of the stream. all is true when every channel is.
	MaskedChannels(start, duration float64) (channels []int, all bool)
}

// Interval is a span of the stream in seconds
type Interval struct {
	Start float64 `yaml:"start"`
	End   float64 `yaml:"end"`
}

// IntervalMask blanks a fixed set of channels everywhere and every channel in
// the given time intervals
type IntervalMask struct {
	Channels  []int
	Intervals []Interval
}

// NewIntervalMask creates a mask over numChan channels. Channels outside the
// range are dropped, duplicates removed.
func NewIntervalMask(numChan int, channels []int, intervals []Interval) *IntervalMask {
	m := &IntervalMask{Intervals: slices.Clone(intervals)}
	for _, ch := range channels {
		if ch >= 0 && ch < numChan {
			m.Channels = append(m.Channels, ch)
		}
	}
	slices.Sort(m.Channels)
	m.Channels = slices.Compact(m.Channels)
	return m
}

func (m *IntervalMask) MaskedChannels(start, duration float64) ([]int, bool) {
	end := start + duration
	for _, iv := range m.Intervals {
		if iv.Start < end && start < iv.End {
			return nil, true
		}
	}
	return m.Channels, false
}

// Empty reports whether the mask never blanks anything
func (m *IntervalMask) Empty() bool {
	return len(m.Channels) == 0 && len(m.Intervals) == 0
}
