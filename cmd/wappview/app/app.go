package app

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"log/slog"
	"math"
	"os"
	"time"

	"github.com/roman-kulish/wapp-stream/internal/storage"
)

// Run renders a waterfall of the spectra of one catalogue session
func Run(ctx context.Context, config *Config, logger *slog.Logger) error {
	if _, err := os.Stat(config.DBPath); err != nil && os.IsNotExist(err) {
		return fmt.Errorf("database file '%s' does not exist: %w", config.DBPath, err)
	}

	store := storage.NewSqliteStore(config.DBPath)
	defer store.Close()

	spec, title, err := readSpectra(ctx, store, config, logger)
	if err != nil {
		return err
	}

	bounds := spec.Histogram.GetPercentileBounds().Override(config.MinPower, config.MaxPower)

	logger.Info("finished reading spectra",
		slog.Group("stats",
			slog.Int("spectra", spec.Height),
			slog.Int("channels", spec.Width),
			slog.Int("padded", spec.PaddedRows()),
			slog.String("start", spec.TimestampStart.In(config.TimeZone).Format(time.DateTime)),
			slog.String("end", spec.TimestampEnd.In(config.TimeZone).Format(time.DateTime)),
			slog.String("minFreq", formatFrequency(spec.FrequencyMin)),
			slog.String("maxFreq", formatFrequency(spec.FrequencyMax)),
			slog.String("minPower", fmt.Sprintf("%0.3f", bounds.Min)),
			slog.String("maxPower", fmt.Sprintf("%0.3f", bounds.Max)),
		))

	renderer, err := NewSpectrumRenderer(RenderConfig{
		Location:      config.TimeZone,
		ColorTheme:    config.Theme,
		MinWidth:      config.MinWidth,
		Title:         title,
		NoAnnotations: config.NoAnnotations,
	})
	if err != nil {
		return fmt.Errorf("creating spectrum renderer: %w", err)
	}

	img, err := renderer.Render(spec, bounds)
	if err != nil {
		return fmt.Errorf("rendering spectrum: %w", err)
	}

	logger.Info("writing image",
		slog.Group("image",
			slog.String("destination", config.OutputFile),
			slog.String("format", string(config.Format)),
			slog.String("theme", string(config.Theme)),
			slog.Int("width", img.Bounds().Dx()),
			slog.Int("height", img.Bounds().Dy()),
		))

	return writeImage(config.OutputFile, config.Format, img)
}

func readSpectra(ctx context.Context, store *storage.SqliteStore, config *Config, logger *slog.Logger) (*SpectrumData, string, error) {
	var opts []storage.ReaderOption
	var filters []any
	switch {
	case config.MinFrequency != nil && config.MaxFrequency != nil:
		opts = append(opts, storage.WithFreqRange(*config.MinFrequency, *config.MaxFrequency))
		filters = append(filters,
			slog.String("minFreq", formatFrequency(*config.MinFrequency)),
			slog.String("maxFreq", formatFrequency(*config.MaxFrequency)))

	case config.MinFrequency != nil:
		opts = append(opts, storage.WithMinFreq(*config.MinFrequency))
		filters = append(filters, slog.String("minFreq", formatFrequency(*config.MinFrequency)))

	case config.MaxFrequency != nil:
		opts = append(opts, storage.WithMaxFreq(*config.MaxFrequency))
		filters = append(filters, slog.String("maxFreq", formatFrequency(*config.MaxFrequency)))
	}

	if config.FirstBlock != nil || config.LastBlock != nil {
		first, last := int64(0), int64(math.MaxInt64)
		if config.FirstBlock != nil {
			first = *config.FirstBlock
		}
		if config.LastBlock != nil {
			last = *config.LastBlock
		}
		opts = append(opts, storage.WithBlockRange(first, last))
		filters = append(filters, slog.Int64("firstBlock", first), slog.Int64("lastBlock", last))
	}

	logger.Info("reader configuration", filters...)

	iter, err := store.ReadSpectra(ctx, config.SessionID, opts...)
	if errors.Is(err, storage.ErrNoData) {
		return nil, "", fmt.Errorf("session %d has no spectra in range: %w", config.SessionID, err)
	}
	if err != nil {
		return nil, "", err
	}
	defer iter.Close()

	sess := iter.Session()
	logger.Info("reading spectra",
		slog.String("source", sess.Source),
		slog.String("runID", sess.RunID),
		slog.Int("channels", sess.NumChan))

	spec := NewSpectrumData(NewPowerHistogram(defaultBinWidth))
	for iter.Next(ctx) {
		spec.Update(iter.Current())
	}
	if err = iter.Error(); err != nil {
		return nil, "", err
	}
	if spec.Empty() {
		return nil, "", fmt.Errorf("session %d has no spectra in range", config.SessionID)
	}

	return spec, fmt.Sprintf("%s (MJD %.6f)", sess.Source, sess.MJD), nil
}

func writeImage(path string, format ImageFormat, img image.Image) (err error) {
	out, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := out.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	switch format {
	case ImageJPEG:
		return jpeg.Encode(out, img, &jpeg.Options{Quality: 98})
	default:
		return png.Encode(out, img)
	}
}
