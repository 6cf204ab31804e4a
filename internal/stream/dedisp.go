package stream

import "math"

// DispersionConstant is the cold-plasma dispersion delay in seconds for
// DM = 1 pc/cm^3 at 1 MHz
const DispersionConstant = 4.148808e3

// Dedisperser combines the channels of two time-adjacent groups of decoded
// points. previous holds the earlier group; output is aligned to it.
type Dedisperser interface {
	// Dedisperse writes numPoints sums over all channels to out, reading channel
	// c delays[c] points later than the output sample
	Dedisperse(current, previous []byte, numPoints, numChan int, delays []int, out []float32)

	// Subbands writes numPoints*numSubbands sums over groups of adjacent
	// channels to out, time-major: out[point*numSubbands+subband]
	Subbands(current, previous []byte, numPoints, numChan int, delays []int, numSubbands int, out []float32)
}

// ShiftDedisperser shifts each channel by a whole number of samples and sums.
// Delays must not exceed the group length.
type ShiftDedisperser struct{}

func (ShiftDedisperser) Dedisperse(current, previous []byte, numPoints, numChan int, delays []int, out []float32) {
	clear(out[:numPoints])
	for c := 0; c < numChan; c++ {
		accumulate(current, previous, numPoints, numChan, c, delays[c], 1, out)
	}
}

func (ShiftDedisperser) Subbands(current, previous []byte, numPoints, numChan int, delays []int, numSubbands int, out []float32) {
	clear(out[:numPoints*numSubbands])
	perBand := numChan / numSubbands
	for c := 0; c < perBand*numSubbands; c++ {
		accumulate(current, previous, numPoints, numChan, c, delays[c], numSubbands, out[c/perBand:])
	}
}

// accumulate adds channel c, shifted by delay points, to every stride-th value of out
func accumulate(current, previous []byte, numPoints, numChan, c, delay, stride int, out []float32) {
	split := numPoints - delay
	for i := 0; i < split; i++ {
		out[i*stride] += float32(previous[(i+delay)*numChan+c])
	}
	for i := max(split, 0); i < numPoints; i++ {
		out[i*stride] += float32(current[(i-split)*numChan+c])
	}
}

// DispersionDelays returns per-channel delays in samples relative to the
// highest channel. Channel 0 is centred on loFreq MHz, channels are chanWidth
// MHz apart and dt is the sample interval in seconds.
func DispersionDelays(dm, loFreq, chanWidth float64, numChan int, dt float64) []int {
	hiFreq := loFreq + float64(numChan-1)*chanWidth
	delays := make([]int, numChan)
	for c := range delays {
		delays[c] = delayBins(dm, loFreq+float64(c)*chanWidth, hiFreq, dt)
	}
	return delays
}

// SubbandDelays returns per-channel delays relative to the highest channel of
// each of numSubbands groups of adjacent channels, so that summing within a
// subband leaves the subband referenced to its own top frequency
func SubbandDelays(dm, loFreq, chanWidth float64, numChan, numSubbands int, dt float64) []int {
	perBand := numChan / max(numSubbands, 1)
	delays := make([]int, numChan)
	for c := range delays {
		band := c / max(perBand, 1)
		top := min((band+1)*perBand-1, numChan-1)
		delays[c] = delayBins(dm, loFreq+float64(c)*chanWidth, loFreq+float64(top)*chanWidth, dt)
	}
	return delays
}

// MaxDelay returns the largest delay in delays
func MaxDelay(delays []int) int {
	m := 0
	for _, d := range delays {
		m = max(m, d)
	}
	return m
}

func delayBins(dm, freq, refFreq, dt float64) int {
	seconds := DispersionConstant * dm * (1/(freq*freq) - 1/(refFreq*refFreq))
	return int(math.Round(seconds / dt))
}
