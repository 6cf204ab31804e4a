package filterbank

import (
	"time"
)

// Session represents a single decode run over one stream of raw WAPP files.
// Each session captures metadata about what was decoded and how.
type Session struct {
	ID        int64     `json:"ID"`                    // Unique identifier for the session
	RunID     string    `json:"runID"`                 // Globally unique run identifier
	StartTime time.Time `json:"startTime"`             // When the decode run began
	Source    string    `json:"source"`                // Observed object
	MJD       float64   `json:"mjd"`                   // Start of the stream
	NumChan   int       `json:"numChan"`               // Channels per spectrum
	Info      *string   `json:"info,string,omitempty"` // Observation metadata in JSON format
}

// File is the place of one raw file in a decoded stream
type File struct {
	Index      int     `json:"index"`      // 0-based position in the stream
	Path       string  `json:"path"`       // Path the file was read from
	DataLen    int64   `json:"dataLen"`    // Bytes of lag data
	NumPoints  int64   `json:"numPoints"`  // Points decoded from the file
	PadPoints  int64   `json:"padPoints"`  // Padding points following the file
	DataStart  int64   `json:"dataStart"`  // Aggregate index of the first point
	StartBlock float64 `json:"startBlock"` // 1-based, fractional
	EndBlock   float64 `json:"endBlock"`   // 1-based, fractional
	MJD        float64 `json:"mjd"`        // Start of the file
}

// Channel is the averaged power of one filterbank channel
type Channel struct {
	Frequency float64  `json:"frequency"`       // Centre frequency in MHz
	Power     *float64 `json:"power,omitempty"` // Mean power, nil when only padding was averaged
	Width     float64  `json:"width"`           // Channel width in MHz
	NumPoints int      `json:"numPoints"`       // Points averaged
}

// Spectrum is the average of a run of consecutive decoded blocks, one channel
// per frequency, lowest frequency first
type Spectrum struct {
	Block          int64     `json:"block"`              // First aggregate block averaged
	Offset         float64   `json:"offset"`             // Seconds from the start of the stream
	Timestamp      time.Time `json:"timestamp"`          // Absolute time of the first block
	Padding        bool      `json:"padding"`            // Whether any averaged block held padding
	FrequencyStart float64   `json:"frequencyStart"`     // Lowest channel centre in MHz
	FrequencyEnd   float64   `json:"frequencyEnd"`       // Highest channel centre in MHz
	Channels       []Channel `json:"channels,omitempty"` // Ordered by frequency
}
