package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/roman-kulish/wapp-stream/internal/filterbank"
)

var _ Store = (*SqliteStore)(nil)

// SqliteStore handles database operations
type SqliteStore struct {
	dbPath string

	writeDB     *sql.DB
	writeDBOnce sync.Once
	writeDBErr  error

	readDB     *sql.DB
	readDBOnce sync.Once
	readDBErr  error

	closeOnce sync.Once
	closeErr  error
}

// NewSqliteStore creates a store backed by the Sqlite database at dbPath.
// Connections are opened, and the schema initialized, on first use.
func NewSqliteStore(dbPath string) *SqliteStore {
	return &SqliteStore{dbPath: dbPath}
}

func runSQLCommand(db *sql.DB, sql string) error {
	_, err := db.Exec(sql)
	return err
}

func (s *SqliteStore) getWriteDB() (*sql.DB, error) {
	s.writeDBOnce.Do(func() {
		db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?%s", s.dbPath, "_journal_mode=WAL&_synchronous=NORMAL"))
		if err != nil {
			s.writeDBErr = fmt.Errorf("opening write connection: %w", err)
			return
		}
		db.SetMaxOpenConns(1)

		if err = runSQLCommand(db, initSchemaSQL); err != nil {
			_ = db.Close()
			s.writeDBErr = fmt.Errorf("initializing schema: %w", err)
			return
		}

		s.writeDB = db
	})

	return s.writeDB, s.writeDBErr
}

func (s *SqliteStore) getReadDB() (*sql.DB, error) {
	s.readDBOnce.Do(func() {
		db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?%s", s.dbPath, "mode=ro"))
		if err != nil {
			s.readDBErr = fmt.Errorf("opening read connection: %w", err)
			return
		}
		s.readDB = db
	})

	return s.readDB, s.readDBErr
}

func (s *SqliteStore) CreateSession(ctx context.Context, runID, source string, mjd float64, numChan int, info any) (sessionID int64, err error) {
	infoData, err := toNullString(info)
	if err != nil {
		return
	}

	db, err := s.getWriteDB()
	if err != nil {
		err = fmt.Errorf("getting write connection: %w", err)
		return
	}

	stmt, err := db.PrepareContext(ctx, insertSessionSQL)
	if err != nil {
		err = fmt.Errorf("preparing statement: %w", err)
		return
	}
	defer closeWithError(stmt, &err)

	result, err := stmt.ExecContext(ctx, runID, source, mjd, numChan, infoData)
	if err != nil {
		err = fmt.Errorf("inserting session: %w", err)
		return
	}

	sessionID, err = result.LastInsertId()
	if err != nil {
		err = fmt.Errorf("getting session ID: %w", err)
	}
	return
}

func (s *SqliteStore) Session(ctx context.Context, id int64) (session *filterbank.Session, err error) {
	db, err := s.getReadDB()
	if err != nil {
		err = fmt.Errorf("getting read connection: %w", err)
		return
	}
	return querySession(ctx, db, id)
}

func querySession(ctx context.Context, db *sql.DB, id int64) (session *filterbank.Session, err error) {
	stmt, err := db.PrepareContext(ctx, selectSessionSQL)
	if err != nil {
		err = fmt.Errorf("preparing statement: %w", err)
		return
	}
	defer closeWithError(stmt, &err)

	var d sessionData
	if err = stmt.QueryRowContext(ctx, id).Scan(&d.ID, &d.RunID, &d.StartTime, &d.Source, &d.MJD, &d.NumChan, &d.Info); err != nil {
		err = fmt.Errorf("scanning session: %w", err)
		return
	}
	return d.toSession(), nil
}

func (s *SqliteStore) Sessions(ctx context.Context) (sessions []*filterbank.Session, err error) {
	db, err := s.getReadDB()
	if err != nil {
		err = fmt.Errorf("getting read connection: %w", err)
		return
	}

	rows, err := db.QueryContext(ctx, selectSessionsSQL)
	if err != nil {
		err = fmt.Errorf("querying sessions: %w", err)
		return
	}
	defer closeWithError(rows, &err)

	for rows.Next() {
		var d sessionData
		if err = rows.Scan(&d.ID, &d.RunID, &d.StartTime, &d.Source, &d.MJD, &d.NumChan, &d.Info); err != nil {
			err = fmt.Errorf("scanning session: %w", err)
			return
		}
		sessions = append(sessions, d.toSession())
	}
	err = rows.Err()
	return
}

func (s *SqliteStore) StoreFiles(ctx context.Context, sessionID int64, files []filterbank.File) (err error) {
	if len(files) == 0 {
		return
	}

	db, err := s.getWriteDB()
	if err != nil {
		return fmt.Errorf("getting write connection: %w", err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer rollbackWithError(tx, &err)

	stmt, err := tx.PrepareContext(ctx, insertFileSQL)
	if err != nil {
		return fmt.Errorf("preparing statement: %w", err)
	}
	defer closeWithError(stmt, &err)

	for _, f := range files {
		_, err = stmt.ExecContext(ctx,
			sessionID,
			f.Index,
			f.Path,
			f.DataLen,
			f.NumPoints,
			f.PadPoints,
			f.DataStart,
			f.StartBlock,
			f.EndBlock,
			f.MJD,
		)
		if err != nil {
			return fmt.Errorf("inserting file %d: %w", f.Index, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

func (s *SqliteStore) Files(ctx context.Context, sessionID int64) (files []filterbank.File, err error) {
	db, err := s.getReadDB()
	if err != nil {
		err = fmt.Errorf("getting read connection: %w", err)
		return
	}

	rows, err := db.QueryContext(ctx, selectFilesSQL, sessionID)
	if err != nil {
		err = fmt.Errorf("querying files: %w", err)
		return
	}
	defer closeWithError(rows, &err)

	for rows.Next() {
		var f filterbank.File
		err = rows.Scan(&f.Index, &f.Path, &f.DataLen, &f.NumPoints, &f.PadPoints, &f.DataStart, &f.StartBlock, &f.EndBlock, &f.MJD)
		if err != nil {
			err = fmt.Errorf("scanning file: %w", err)
			return
		}
		files = append(files, f)
	}
	err = rows.Err()
	return
}

// ReadSpectra creates a SqliteSpectrumReader iterating over the spectra of a
// decode run in block order.
//
// Parameters:
//   - ctx: Context for cancellation and timeouts
//   - sessionID: Unique identifier of the decode run to read from
//   - opts: Optional filters (WithBlockRange, WithFreqRange, WithMinFreq, WithMaxFreq)
//
// The returned reader must be closed after use to release database resources.
func (s *SqliteStore) ReadSpectra(ctx context.Context, sessionID int64, opts ...ReaderOption) (*SqliteSpectrumReader, error) {
	db, err := s.getReadDB()
	if err != nil {
		return nil, fmt.Errorf("getting read connection: %w", err)
	}
	return newSqliteSpectrumReader(ctx, db, sessionID, opts...)
}

func (s *SqliteStore) StoreSpectrum(ctx context.Context, sessionID int64, spec *filterbank.Spectrum) (err error) {
	if len(spec.Channels) == 0 {
		return
	}

	db, err := s.getWriteDB()
	if err != nil {
		return fmt.Errorf("getting write connection: %w", err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer rollbackWithError(tx, &err)

	values := make([]any, 0, len(spec.Channels)*9)
	valuesPlaceholder := "(?, ?, ?, ?, ?, ?, ?, ?, ?)"

	var sb strings.Builder
	sb.WriteString(insertSpectrumSQL)

	for i, ch := range spec.Channels {
		data := toSpectrumData(sessionID, spec, ch)
		values = append(values,
			data.SessionID,
			data.Block,
			data.Elapsed,
			data.Timestamp,
			data.Padding,
			data.Frequency,
			data.Width,
			data.Power,
			data.NumPoints,
		)

		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(valuesPlaceholder)
	}

	// Single batch insert
	if _, err = tx.ExecContext(ctx, sb.String(), values...); err != nil {
		return fmt.Errorf("batch inserting spectrum: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

func (s *SqliteStore) Close() error {
	s.closeOnce.Do(func() {
		var writeErr, readErr error

		if s.writeDB != nil {
			_ = runSQLCommand(s.writeDB, initIndexesSQL)

			writeErr = s.writeDB.Close()
			s.writeDB = nil
		}

		if s.readDB != nil {
			readErr = s.readDB.Close()
			s.readDB = nil
		}

		s.closeErr = errors.Join(writeErr, readErr)
	})

	return s.closeErr
}
