package storage

import (
	"database/sql"
	"time"
)

type spectrumData struct {
	SessionID int64
	Block     int64
	Elapsed   float64
	Timestamp time.Time
	Padding   bool
	Frequency float64
	Width     float64
	Power     sql.NullFloat64
	NumPoints int
}

type sessionData struct {
	ID        int64
	RunID     string
	StartTime time.Time
	Source    string
	MJD       float64
	NumChan   int
	Info      sql.NullString
}
