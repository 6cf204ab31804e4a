package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/roman-kulish/wapp-stream/internal/filterbank"
	"github.com/roman-kulish/wapp-stream/internal/storage"
	"github.com/roman-kulish/wapp-stream/internal/stream"
)

const (
	storageDir = "data"
)

// Run decodes the configured stream: the decoded blocks go to the output, the
// averaged spectra and the stream geometry to the catalogue, and optionally a
// dedispersed time series to its own output
func Run(ctx context.Context, config *Config, logger *slog.Logger) error {
	session, err := stream.Open(config.Input.Files, config.Input.Options(logger)...)
	if err != nil {
		return fmt.Errorf("opening stream: %w", err)
	}
	defer session.Close()

	plan := session.Plan
	logSummary(session, logger)

	var table strings.Builder
	if err = plan.Table(&table); err != nil {
		return fmt.Errorf("writing plan table: %w", err)
	}
	logger.Debug("stream plan\n" + table.String())

	store, err := createStorage(&config.Storage)
	if err != nil {
		return fmt.Errorf("failed to create storage: %w", err)
	}
	defer store.Close()

	runID := uuid.New().String()
	sessionID, err := store.CreateSession(ctx, runID, plan.Info.Object, plan.Info.MJD.Float(), plan.NumChan, plan.Info)
	if err != nil {
		return fmt.Errorf("creating session: %w", err)
	}
	if err = store.StoreFiles(ctx, sessionID, catalogueFiles(config.Input.Files, plan)); err != nil {
		return fmt.Errorf("storing files: %w", err)
	}
	logger.Info("catalogue session created", slog.String("run_id", runID), slog.Int64("session_id", sessionID))

	var metrics *Metrics
	if config.Metrics.Listen != "" {
		reg := prometheus.NewRegistry()
		metrics = NewMetrics(reg)
		metrics.totalBlocks.Set(float64(plan.NumBlocks()))
		serveMetrics(ctx, config.Metrics.Listen, reg, logger)
	}

	if config.Input.StartBlock > 0 {
		if err = session.Reader.Seek(config.Input.StartBlock); err != nil {
			return fmt.Errorf("seeking to block %d: %w", config.Input.StartBlock, err)
		}
	}

	if err = decode(ctx, session, store, sessionID, config, metrics, logger); err != nil {
		return err
	}

	if config.Dedisperse != nil {
		if err = session.Reader.Seek(config.Input.StartBlock); err != nil {
			return fmt.Errorf("seeking to block %d: %w", config.Input.StartBlock, err)
		}

		out, err := createOutput(config.Dedisperse.Output, config.Output.Compress, config.Output.Level)
		if err != nil {
			return err
		}
		if err = dedisperse(ctx, session.Reader, config.Dedisperse, out, metrics, logger); err != nil {
			_ = out.Close()
			return fmt.Errorf("dedispersing: %w", err)
		}
		if err = out.Close(); err != nil {
			return fmt.Errorf("closing dedispersed output: %w", err)
		}
		logger.Info("dedispersed series written",
			slog.String("path", config.Dedisperse.Output),
			slog.String("size", humanize.IBytes(uint64(out.Written()))))
	}

	return nil
}

func decode(ctx context.Context, session *stream.Session, store storage.Store, sessionID int64, config *Config,
	metrics *Metrics, logger *slog.Logger) error {
	params := session.Codec.Params()
	acc, err := filterbank.NewAccumulator(session.Plan, config.Storage.BlocksPerSpectrum, params.ScaleMin, params.ScaleMax)
	if err != nil {
		return fmt.Errorf("creating accumulator: %w", err)
	}

	out, err := createOutput(config.Output.Path, config.Output.Compress, config.Output.Level)
	if err != nil {
		return err
	}

	started := time.Now()
	p := NewPipeline(session.Reader, acc, store, sessionID, out, logger,
		WithMetrics(metrics),
		WithProgressInterval(time.Duration(config.Settings.ProgressInterval)),
	)
	if err = p.Run(ctx); err != nil {
		_ = out.Close()
		return fmt.Errorf("decoding: %w", err)
	}
	if err = out.Close(); err != nil {
		return fmt.Errorf("closing output: %w", err)
	}

	logger.Info("decoded stream written",
		slog.String("path", config.Output.Path),
		slog.String("size", humanize.IBytes(uint64(out.Written()))),
		slog.Duration("took", time.Since(started)),
	)
	return nil
}

func logSummary(session *stream.Session, logger *slog.Logger) {
	info := session.Plan.Info
	first := session.Headers[0]

	logger.Info("stream opened",
		slog.String("source", info.Object),
		slog.String("ra", info.RA.String()),
		slog.String("dec", info.Dec.String()),
		slog.String("start", info.MJD.Time().Format(time.RFC3339Nano)),
		slog.String("mjd", info.MJD.String()),
		slog.Int("files", len(session.Plan.Files)),
		slog.Int("channels", info.NumChan),
		slog.Float64("dt", info.DT),
		slog.Float64("low_freq_mhz", info.LowFreq),
		slog.Float64("chan_width_mhz", info.ChanWidth),
		slog.Int("level", info.Level),
		slog.Int("bits", info.Bits),
		slog.String("byte_order", first.Order.String()),
		slog.String("points", humanize.Comma(session.Plan.N)),
	)
}

func catalogueFiles(paths []string, plan *stream.Plan) []filterbank.File {
	files := make([]filterbank.File, len(plan.Files))
	for i, g := range plan.Files {
		files[i] = filterbank.File{
			Index:      i,
			Path:       paths[i],
			DataLen:    g.DataLen,
			NumPoints:  g.NumPoints,
			PadPoints:  g.PadPoints,
			DataStart:  g.DataStart,
			StartBlock: g.StartBlock,
			EndBlock:   g.EndBlock,
			MJD:        g.MJD.Float(),
		}
	}
	return files
}

func createStorage(config *StorageConfig) (*storage.SqliteStore, error) {
	dbPath := config.DataDirectory
	if dbPath == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get current working directory: %w", err)
		}
		dbPath = filepath.Join(wd, storageDir)
	}

	stat, err := os.Stat(dbPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("storage directory '%s' does not exist: %w", dbPath, err)
		}
		return nil, fmt.Errorf("checking storage directory: %w", err)
	}
	if !stat.IsDir() {
		return nil, fmt.Errorf("invalid storage directory '%s'", dbPath)
	}

	return storage.NewSqliteStore(filepath.Join(dbPath, config.Database)), nil
}
