package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/roman-kulish/wapp-stream/internal/filterbank"
)

// ErrNoData indicates either that no spectra exist for the given parameters,
// or that all available spectra have been read from the reader.
var ErrNoData = fmt.Errorf("no data available")

// SpectrumReader provides an iterator-based interface for reading stored
// spectra with optional block and frequency filtering.
type SpectrumReader interface {
	// Session returns metadata about the decode run this reader is accessing.
	Session() *filterbank.Session

	// Next advances the iterator and returns true if there is another spectrum
	// to read, false when the iteration is complete or if an error occurred.
	Next(context.Context) bool

	// Current returns the current spectrum in the iteration.
	// If called after Next() returns false, the behavior is undefined.
	Current() *filterbank.Spectrum

	// Error returns any error that occurred during iteration.
	// If Next() returns false, Error() should be checked to distinguish between
	// end of data and an error condition.
	Error() error

	// Close releases any resources associated with the reader.
	Close() error
}

var _ SpectrumReader = (*SqliteSpectrumReader)(nil)

// ReaderOption configures a SqliteSpectrumReader with specific filtering criteria.
type ReaderOption func(*SqliteSpectrumReader)

// WithMinFreq sets the minimum frequency filter, in MHz.
func WithMinFreq(f float64) ReaderOption {
	return func(r *SqliteSpectrumReader) {
		r.minFreq = &f
	}
}

// WithMaxFreq sets the maximum frequency filter, in MHz.
func WithMaxFreq(f float64) ReaderOption {
	return func(r *SqliteSpectrumReader) {
		r.maxFreq = &f
	}
}

// WithFreqRange sets both minimum and maximum frequency filters.
func WithFreqRange(minFreq, maxFreq float64) ReaderOption {
	return func(r *SqliteSpectrumReader) {
		r.minFreq = &minFreq
		r.maxFreq = &maxFreq
	}
}

// WithBlockRange limits the reader to spectra whose first block lies in
// [first, last].
func WithBlockRange(first, last int64) ReaderOption {
	return func(r *SqliteSpectrumReader) {
		r.firstBlock = &first
		r.lastBlock = &last
	}
}

func newSqliteSpectrumReader(ctx context.Context, db *sql.DB, sessionID int64, opts ...ReaderOption) (*SqliteSpectrumReader, error) {
	sr := &SqliteSpectrumReader{
		db:        db,
		sessionID: sessionID,
	}
	for _, opt := range opts {
		opt(sr)
	}
	if err := sr.init(ctx); err != nil {
		return nil, fmt.Errorf("initializing reader: %w", err)
	}
	return sr, nil
}

// SqliteSpectrumReader implements SpectrumReader for SQLite database backend.
// Rows are grouped into one spectrum per block; channels missing from a
// stored spectrum are filled with zero power.
type SqliteSpectrumReader struct {
	db *sql.DB

	sessionID int64
	session   *filterbank.Session
	numChan   int

	firstBlock *int64
	lastBlock  *int64
	minFreq    *float64
	maxFreq    *float64

	current *filterbank.Spectrum
	next    *spectrumData
	rows    *sql.Rows
	err     error
}

func (sr *SqliteSpectrumReader) init(ctx context.Context) error {
	if sr.db == nil {
		return errors.New("database connection required")
	}
	if sr.sessionID <= 0 {
		return errors.New("session ID required")
	}

	steps := []struct {
		msg string
		fn  func(context.Context) error
	}{
		{msg: "loading session", fn: sr.loadSession},
		{msg: "initializing filters", fn: sr.initFilters},
		{msg: "initializing query", fn: sr.initQuery},
	}
	for _, s := range steps {
		if err := s.fn(ctx); err != nil {
			return fmt.Errorf("%s: %w", s.msg, err)
		}
	}
	return nil
}

func (sr *SqliteSpectrumReader) loadSession(ctx context.Context) (err error) {
	sr.session, err = querySession(ctx, sr.db, sr.sessionID)
	if err != nil {
		return err
	}
	sr.numChan = sr.session.NumChan
	return nil
}

func (sr *SqliteSpectrumReader) initFilters(ctx context.Context) (err error) {
	blockFiltersSet := sr.firstBlock != nil && sr.lastBlock != nil
	freqFiltersSet := sr.minFreq != nil && sr.maxFreq != nil

	if blockFiltersSet && *sr.firstBlock > *sr.lastBlock {
		return fmt.Errorf("first block %d is after last block %d", *sr.firstBlock, *sr.lastBlock)
	}
	if freqFiltersSet && *sr.minFreq > *sr.maxFreq {
		return fmt.Errorf("min frequency %f is greater than max frequency %f", *sr.minFreq, *sr.maxFreq)
	}
	if blockFiltersSet && freqFiltersSet {
		return nil
	}

	stmt, err := sr.db.PrepareContext(ctx, selectFilterValuesSQL)
	if err != nil {
		return fmt.Errorf("preparing statement: %w", err)
	}
	defer closeWithError(stmt, &err)

	var minFreq, maxFreq sql.NullFloat64
	var firstBlock, lastBlock sql.NullInt64
	if err = stmt.QueryRowContext(ctx, sr.sessionID).Scan(&minFreq, &maxFreq, &firstBlock, &lastBlock); err != nil {
		return fmt.Errorf("scanning filters data: %w", err)
	}
	if !minFreq.Valid {
		return ErrNoData
	}

	if sr.minFreq == nil {
		sr.minFreq = &minFreq.Float64
	}
	if sr.maxFreq == nil {
		sr.maxFreq = &maxFreq.Float64
	}
	if sr.firstBlock == nil {
		sr.firstBlock = &firstBlock.Int64
	}
	if sr.lastBlock == nil {
		sr.lastBlock = &lastBlock.Int64
	}
	return nil
}

func (sr *SqliteSpectrumReader) initQuery(ctx context.Context) (err error) {
	stmt, err := sr.db.PrepareContext(ctx, selectSpectraSQL)
	if err != nil {
		return fmt.Errorf("preparing statement: %w", err)
	}
	defer closeWithError(stmt, &err)

	sr.rows, err = stmt.QueryContext(ctx, sr.sessionID, *sr.firstBlock, *sr.lastBlock, *sr.minFreq, *sr.maxFreq)
	return err
}

func (sr *SqliteSpectrumReader) scanRow() (*spectrumData, error) {
	var d spectrumData
	var timestamp time.Time

	err := sr.rows.Scan(&d.Block, &d.Elapsed, &timestamp, &d.Padding, &d.Frequency, &d.Width, &d.Power, &d.NumPoints)
	if err != nil {
		return nil, fmt.Errorf("scanning spectrum: %w", err)
	}
	d.Timestamp = timestamp
	d.SessionID = sr.sessionID
	return &d, nil
}

func (sr *SqliteSpectrumReader) startSpectrum(d *spectrumData) {
	sr.current = &filterbank.Spectrum{
		Block:          d.Block,
		Offset:         d.Elapsed,
		Timestamp:      d.Timestamp,
		Padding:        d.Padding,
		FrequencyStart: *sr.minFreq,
		Channels:       make([]filterbank.Channel, 0, sr.numChan),
	}
	if freqLess(*sr.minFreq, d.Frequency, d.Width) {
		sr.current.Channels = append(sr.current.Channels, fillFrequencyRange(*sr.minFreq, d.Frequency, d.Width)...)
	} else {
		sr.current.FrequencyStart = d.Frequency
	}
	sr.appendChannel(d)
}

func (sr *SqliteSpectrumReader) appendChannel(d *spectrumData) {
	if n := len(sr.current.Channels); n > 0 {
		last := sr.current.Channels[n-1]
		if freqLess(last.Frequency+last.Width, d.Frequency, last.Width) {
			sr.current.Channels = append(sr.current.Channels, fillFrequencyRange(last.Frequency+last.Width, d.Frequency, last.Width)...)
		}
	}

	ch := filterbank.Channel{
		Frequency: d.Frequency,
		Width:     d.Width,
		NumPoints: d.NumPoints,
	}
	if d.Power.Valid {
		power := d.Power.Float64
		ch.Power = &power
	}
	sr.current.Channels = append(sr.current.Channels, ch)
}

func (sr *SqliteSpectrumReader) finishSpectrum() {
	last := sr.current.Channels[len(sr.current.Channels)-1]
	sr.current.FrequencyEnd = last.Frequency

	if freqLess(last.Frequency, *sr.maxFreq, last.Width) {
		fill := fillFrequencyRange(last.Frequency+last.Width, *sr.maxFreq+last.Width, last.Width)
		sr.current.Channels = append(sr.current.Channels, fill...)
		sr.current.FrequencyEnd = sr.current.Channels[len(sr.current.Channels)-1].Frequency
	}
}

// fillFrequencyRange returns zero power channels from start up to, but not
// including, end.
func fillFrequencyRange(start, end, width float64) []filterbank.Channel {
	if width <= 0 {
		return nil
	}

	var channels []filterbank.Channel
	for freq := start; freqLess(freq, end, width); freq += width {
		zero := 0.0
		channels = append(channels, filterbank.Channel{
			Frequency: freq,
			Power:     &zero,
			Width:     width,
		})
	}
	return channels
}

func (sr *SqliteSpectrumReader) Session() *filterbank.Session {
	return sr.session
}

func (sr *SqliteSpectrumReader) Next(ctx context.Context) bool {
	if sr.err != nil || sr.rows == nil {
		return false
	}

	sr.current = nil
	if sr.next != nil {
		sr.startSpectrum(sr.next)
		sr.next = nil
	}

	for {
		select {
		case <-ctx.Done():
			sr.err = ctx.Err()
			return false
		default:
		}

		if !sr.rows.Next() {
			if sr.current != nil {
				sr.finishSpectrum()
				sr.err = ErrNoData
				return true
			}
			return false
		}

		d, err := sr.scanRow()
		if err != nil {
			sr.err = err
			return false
		}

		if sr.current == nil {
			sr.startSpectrum(d)
			continue
		}

		// A new block starts the next spectrum
		if d.Block != sr.current.Block {
			sr.finishSpectrum()
			sr.next = d
			return true
		}

		sr.appendChannel(d)
	}
}

func (sr *SqliteSpectrumReader) Current() *filterbank.Spectrum {
	return sr.current
}

func (sr *SqliteSpectrumReader) Error() error {
	if sr.err != nil && !errors.Is(sr.err, ErrNoData) {
		return sr.err
	}
	if sr.rows != nil {
		return sr.rows.Err()
	}
	return nil
}

func (sr *SqliteSpectrumReader) Close() error {
	if sr.rows != nil {
		err := sr.rows.Close()
		sr.current = nil
		sr.next = nil
		sr.rows = nil
		return err
	}
	return nil
}
