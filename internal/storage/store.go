package storage

import (
	"context"

	_ "github.com/mattn/go-sqlite3"
	"github.com/roman-kulish/wapp-stream/internal/filterbank"
)

// Store catalogues decode runs: the session, the geometry of every raw file
// and the averaged spectra of the decoded stream.
type Store interface {
	// CreateSession records a new decode run and returns its identifier.
	//
	// Parameters:
	//   - ctx: Context for cancellation and timeouts
	//   - runID: Globally unique run identifier
	//   - source: Observed object
	//   - mjd: Start of the stream
	//   - numChan: Channels per spectrum
	//   - info: Optional observation metadata. Can be string, []byte, or JSON-serializable object
	CreateSession(ctx context.Context, runID, source string, mjd float64, numChan int, info any) (sessionID int64, err error)

	// Session retrieves a decode run by its ID.
	Session(ctx context.Context, id int64) (session *filterbank.Session, err error)

	// Sessions returns all decode runs ordered by start time.
	Sessions(ctx context.Context) (sessions []*filterbank.Session, err error)

	// StoreFiles saves the geometry of the raw files of a session in a single
	// transaction.
	StoreFiles(ctx context.Context, sessionID int64, files []filterbank.File) error

	// Files returns the raw files of a session in stream order.
	Files(ctx context.Context, sessionID int64) ([]filterbank.File, error)

	// StoreSpectrum saves one averaged spectrum. All channels are stored in a
	// single atomic transaction.
	StoreSpectrum(ctx context.Context, sessionID int64, s *filterbank.Spectrum) error

	// Close releases all database connections and resources.
	// It is safe to call Close multiple times.
	Close() error
}
