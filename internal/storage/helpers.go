package storage

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"github.com/roman-kulish/wapp-stream/internal/filterbank"
)

func closeWithError(cl interface{ Close() error }, err *error) {
	if cErr := cl.Close(); cErr != nil && *err == nil {
		*err = cErr
	}
}

func rollbackWithError(rb interface{ Rollback() error }, err *error) {
	if cErr := rb.Rollback(); cErr != nil && *err == nil && !errors.Is(cErr, sql.ErrTxDone) {
		*err = cErr
	}
}

// toNullString accepts a string, []byte or a JSON-serializable value
func toNullString(v any) (sql.NullString, error) {
	switch v := v.(type) {
	case nil:
		return sql.NullString{}, nil
	case string:
		return sql.NullString{String: v, Valid: true}, nil
	case []byte:
		return sql.NullString{String: string(v), Valid: true}, nil
	default:
		p, err := json.Marshal(v)
		if err != nil {
			return sql.NullString{}, fmt.Errorf("marshaling info: %w", err)
		}
		return sql.NullString{String: string(p), Valid: true}, nil
	}
}

func toSpectrumData(sessionID int64, s *filterbank.Spectrum, ch filterbank.Channel) *spectrumData {
	var power sql.NullFloat64
	if ch.Power != nil {
		power.Float64 = *ch.Power
		power.Valid = true
	}

	return &spectrumData{
		SessionID: sessionID,
		Block:     s.Block,
		Elapsed:   s.Offset,
		Timestamp: s.Timestamp.UTC(),
		Padding:   s.Padding,
		Frequency: ch.Frequency,
		Width:     ch.Width,
		Power:     power,
		NumPoints: ch.NumPoints,
	}
}

func (d *sessionData) toSession() *filterbank.Session {
	sess := &filterbank.Session{
		ID:        d.ID,
		RunID:     d.RunID,
		StartTime: d.StartTime,
		Source:    d.Source,
		MJD:       d.MJD,
		NumChan:   d.NumChan,
	}
	if d.Info.Valid {
		sess.Info = &d.Info.String
	}
	return sess
}

// freqCompare compares channel frequencies with a tolerance of 1% of the
// channel width. Returns -1 if a < b, 0 if a ≈ b and +1 if a > b.
func freqCompare(a, b, width float64) int {
	tolerance := math.Abs(width) * 0.01

	diff := a - b
	if math.Abs(diff) <= tolerance {
		return 0
	}
	if diff < 0 {
		return -1
	}
	return 1
}

// freqLess returns true if a is less than b with width-based tolerance
func freqLess(a, b, width float64) bool {
	return freqCompare(a, b, width) < 0
}
