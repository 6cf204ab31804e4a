package wapp

import (
	"fmt"
	"math"
	"time"
)

// SecondsPerDay is the length of an MJD day in seconds
const SecondsPerDay = 86400.0

// mjdEpoch is MJD 0, 1858-11-17 00:00 UTC
var mjdEpoch = time.Date(1858, time.November, 17, 0, 0, 0, 0, time.UTC)

// MJD is a Modified Julian Date split into the integer day and the fraction of
// that day, so sub-second offsets survive arithmetic far from the epoch.
type MJD struct {
	Day  int
	Frac float64
}

// ParseUT converts the header date (YYYYMMDD) and start time (HH:MM:SS) strings
// to an MJD
func ParseUT(date, clock string) (MJD, error) {
	d, err := time.Parse("20060102", date)
	if err != nil {
		return MJD{}, fmt.Errorf("parsing observation date %q: %w", date, err)
	}

	var hour, minute, sec int
	if _, err = fmt.Sscanf(clock, "%2d:%2d:%2d", &hour, &minute, &sec); err != nil {
		return MJD{}, fmt.Errorf("parsing start time %q: %w", clock, err)
	}

	return MJD{
		Day:  daysSinceEpoch(d),
		Frac: (float64(hour) + (float64(minute)+float64(sec)/60.0)/60.0) / 24.0,
	}, nil
}

// FromTime returns the MJD of t
func FromTime(t time.Time) MJD {
	t = t.UTC()
	midnight := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	return MJD{
		Day:  daysSinceEpoch(midnight),
		Frac: t.Sub(midnight).Seconds() / SecondsPerDay,
	}
}

func daysSinceEpoch(midnight time.Time) int {
	return int((midnight.Unix() - mjdEpoch.Unix()) / int64(SecondsPerDay))
}

// Float returns the MJD as a single number of days
func (m MJD) Float() float64 {
	return float64(m.Day) + m.Frac
}

// Add returns m shifted by the given number of seconds, carrying whole days
// into Day so that Frac stays in [0, 1)
func (m MJD) Add(seconds float64) MJD {
	frac := m.Frac + seconds/SecondsPerDay
	whole := math.Floor(frac)
	return MJD{
		Day:  m.Day + int(whole),
		Frac: frac - whole,
	}
}

// Sub returns m - o in seconds
func (m MJD) Sub(o MJD) float64 {
	return float64(m.Day-o.Day)*SecondsPerDay + (m.Frac-o.Frac)*SecondsPerDay
}

// Time converts m to a UTC time, rounded to the microsecond
func (m MJD) Time() time.Time {
	frac := time.Duration(math.Round(m.Frac*SecondsPerDay*1e6)) * time.Microsecond
	return mjdEpoch.AddDate(0, 0, m.Day).Add(frac)
}

func (m MJD) String() string {
	return fmt.Sprintf("%.12f", m.Float())
}

// CalibrationOffset returns the correction in microseconds to add to the
// correlator sample time for observations in known mis-calibrated epochs
func CalibrationOffset(mjd float64) float64 {
	switch {
	case mjd >= 51829.0 && mjd < 51834.0:
		return -0.08
	case mjd >= 51834.0 && mjd < 51854.0:
		return -0.68
	case mjd >= 51854.0 && mjd < 51969.0:
		return +0.04
	default:
		return 0
	}
}
