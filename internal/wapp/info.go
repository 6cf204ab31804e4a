package wapp

import (
	"fmt"
	"math"
	"strings"
)

const (
	speedOfLight = 299792458.0 // m/s
	degToRad     = math.Pi / 180.0

	Telescope  = "Arecibo"
	Instrument = "WAPP"
)

// Angle is a sexagesimal angle as packed in the header, DDMMSS.SSSS or HHMMSS.SSSS
type Angle struct {
	Negative bool    `json:"negative,omitempty"`
	Whole    int     `json:"whole"`
	Minutes  int     `json:"minutes"`
	Seconds  float64 `json:"seconds"`
}

// SplitPacked splits a packed DDMMSS.SSSS value into its components
func SplitPacked(v float64) Angle {
	a := Angle{Negative: v < 0}
	v = math.Abs(v)
	a.Whole = int(math.Floor(v / 10000.0))
	a.Minutes = int(math.Floor((v - float64(a.Whole)*10000) / 100.0))
	a.Seconds = v - float64(a.Whole)*10000 - float64(a.Minutes)*100
	return a
}

func (a Angle) String() string {
	sign := ""
	if a.Negative {
		sign = "-"
	}
	return fmt.Sprintf("%s%02d:%02d:%07.4f", sign, a.Whole, a.Minutes, a.Seconds)
}

// Info is the observation metadata derived from a header
type Info struct {
	Object     string  `json:"object"`
	RA         Angle   `json:"ra"`
	Dec        Angle   `json:"dec"`
	Telescope  string  `json:"telescope"`
	Instrument string  `json:"instrument"`
	Observer   string  `json:"observer"`
	MJD        MJD     `json:"mjd"`
	DT         float64 `json:"dt"`         // Sample interval in seconds, calibration corrected
	N          float64 `json:"n"`          // Points implied by the integration time
	NumChan    int     `json:"numChan"`    // Channels
	Bandwidth  float64 `json:"bandwidth"`  // Total bandwidth in MHz
	ChanWidth  float64 `json:"chanWidth"`  // Channel width in MHz
	LowFreq    float64 `json:"lowFreq"`    // Centre of the lowest channel in MHz
	FOV        float64 `json:"fov"`        // Beam width in arcseconds
	Level      int     `json:"level"`      // Correlator levels
	Bits       int     `json:"bits"`       // Lag width in bits
	Summed     bool    `json:"summed"`     // Whether IFs were summed
	Inverted   bool    `json:"inverted"`   // Whether the band is inverted
	Notes      string  `json:"notes"`      // Free text
	Correction float64 `json:"correction"` // Calibration offset applied to DT, in microseconds

	// OnOff holds topocentric [on, off] point ranges of real data in the
	// aggregate stream. Empty for a single file without padding.
	OnOff [][2]float64 `json:"onoff,omitempty"`
}

// Info derives the observation metadata. It fails for headers the decoder
// cannot process, see Quantization.
func (h *Header) Info() (*Info, error) {
	level, lagBits, err := h.Quantization()
	if err != nil {
		return nil, err
	}

	mjd, err := ParseUT(h.Date(), h.Time())
	if err != nil {
		return nil, err
	}

	info := Info{
		Object:     h.Source(),
		RA:         SplitPacked(h.SrcRA),
		Dec:        SplitPacked(h.SrcDec),
		Telescope:  Telescope,
		Instrument: Instrument,
		Observer:   h.Observer(),
		MJD:        mjd,
		NumChan:    int(h.NumLags),
		Bandwidth:  h.Bandwidth,
		Level:      level,
		Bits:       lagBits,
		Summed:     h.IFsSummed(),
		Inverted:   h.BandInverted(),
		Correction: CalibrationOffset(mjd.Float()),
	}
	info.DT = (info.Correction + h.WappTime) / 1e6
	info.N = h.ObsTime / info.DT
	if info.NumChan > 0 {
		info.ChanWidth = math.Abs(info.Bandwidth / float64(info.NumChan))
	}
	info.LowFreq = h.CentFreq - 0.5*info.Bandwidth + 0.5*info.ChanWidth
	info.FOV = 1.2 * speedOfLight * 3600.0 / (1e6 * info.LowFreq * 300.0 * degToRad)
	info.Notes = h.notes(level, lagBits)

	return &info, nil
}

// HighFreq returns the centre of the highest channel in MHz
func (i *Info) HighFreq() float64 {
	return i.LowFreq + float64(i.NumChan-1)*i.ChanWidth
}

func (h *Header) notes(level, lagBits int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Starting azimuth %.15g deg, zenith angle %.15g deg\n", h.StartAz, h.StartZA)
	fmt.Fprintf(&b, "Project %s, scan %d, date %s %s\n", h.Project(), h.ScanNumber, h.Date(), h.Time())
	summed := "were not summed"
	if h.IFsSummed() {
		summed = "were summed"
	}
	fmt.Fprintf(&b, "%d %d-level IF(s) %s, lags are %d bit ints\n", h.NumIFs, level, summed, lagBits)
	return b.String()
}
