package app

import "math"

const (
	defaultMinPower = 0.0
	defaultMaxPower = 3.0

	// Width of a histogram bin on the decoded power scale
	defaultBinWidth = 0.005

	// Narrowest span of the bounds, in bins
	minimumBoundsBins = 20

	// For 20 samples:
	// - 5% percentile  = 1 sample
	// - 95% percentile = 19th sample
	minimumSampleCount = 20
)

// PowerBounds represents the calculated power boundaries
type PowerBounds struct {
	Min  float64 // 5th percentile, less a margin
	Max  float64 // 95th percentile, plus a margin
	Mean float64
}

func defaultPowerBounds() PowerBounds {
	return PowerBounds{
		Min:  defaultMinPower,
		Max:  defaultMaxPower,
		Mean: (defaultMinPower + defaultMaxPower) / 2,
	}
}

// Override replaces the bounds with the manual limits that are set
func (b PowerBounds) Override(minPower, maxPower *float64) PowerBounds {
	if minPower != nil {
		b.Min = *minPower
	}
	if maxPower != nil {
		b.Max = *maxPower
	}
	if b.Min >= b.Max {
		switch {
		case minPower != nil && maxPower == nil:
			b.Max = b.Min + minimumBoundsBins*defaultBinWidth
		case maxPower != nil && minPower == nil:
			b.Min = b.Max - minimumBoundsBins*defaultBinWidth
		}
	}
	return b
}

// PowerHistogram counts power values in fixed width bins
type PowerHistogram struct {
	binWidth   float64
	bins       map[int]uint32 // Map of bin index to count
	sum        float64
	totalCount uint64
	minBin     int
	maxBin     int
}

// NewPowerHistogram creates a histogram with bins binWidth wide
func NewPowerHistogram(binWidth float64) *PowerHistogram {
	if binWidth <= 0 {
		binWidth = defaultBinWidth
	}
	h := &PowerHistogram{binWidth: binWidth}
	h.Clear()
	return h
}

func (h *PowerHistogram) binIndex(power float64) int {
	return int(math.Floor(power / h.binWidth))
}

// scaleDown halves all bin counts
func (h *PowerHistogram) scaleDown() {
	h.minBin = math.MaxInt32
	h.maxBin = math.MinInt32

	for bin := range h.bins {
		h.bins[bin] /= 2
		if h.bins[bin] == 0 {
			delete(h.bins, bin)
			continue
		}

		h.minBin = min(h.minBin, bin)
		h.maxBin = max(h.maxBin, bin)
	}
	h.totalCount /= 2
	h.sum /= 2
}

// Update adds a power value to the histogram, nil and non-finite values are
// ignored
func (h *PowerHistogram) Update(power *float64) {
	if power == nil || math.IsNaN(*power) || math.IsInf(*power, 0) {
		return
	}

	bin := h.binIndex(*power)
	if h.bins[bin] == math.MaxUint32 || h.totalCount == math.MaxUint64 {
		h.scaleDown()
	}

	h.bins[bin]++
	h.totalCount++
	h.sum += *power

	h.minBin = min(h.minBin, bin)
	h.maxBin = max(h.maxBin, bin)
}

// Count returns the number of values counted
func (h *PowerHistogram) Count() uint64 {
	return h.totalCount
}

func (h *PowerHistogram) Clear() {
	h.bins = make(map[int]uint32)
	h.sum = 0
	h.totalCount = 0
	h.minBin = math.MaxInt32
	h.maxBin = math.MinInt32
}

// GetPercentileBounds returns the 5th to 95th percentile range widened by a
// 10% margin. Too few samples give the default bounds.
func (h *PowerHistogram) GetPercentileBounds() PowerBounds {
	if h.totalCount < minimumSampleCount {
		return defaultPowerBounds()
	}

	target := h.totalCount * 5 / 100

	var count uint64
	lo, hi := h.minBin, h.maxBin
	for bin := h.minBin; bin <= h.maxBin; bin++ {
		count += uint64(h.bins[bin])
		if count >= target {
			lo = bin
			break
		}
	}

	count = 0
	for bin := h.maxBin; bin >= h.minBin; bin-- {
		count += uint64(h.bins[bin])
		if count >= target {
			hi = bin + 1 // upper edge of the bin
			break
		}
	}

	if hi-lo < minimumBoundsBins {
		center := (hi + lo) / 2
		lo = center - minimumBoundsBins/2
		hi = center + minimumBoundsBins/2
	}

	margin := (hi - lo) / 10
	return PowerBounds{
		Min:  float64(lo-margin) * h.binWidth,
		Max:  float64(hi+margin) * h.binWidth,
		Mean: h.sum / float64(h.totalCount),
	}
}
