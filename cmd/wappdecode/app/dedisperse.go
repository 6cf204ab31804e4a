package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/roman-kulish/wapp-stream/internal/stream"
)

// dedisperse writes the dedispersed time series of the stream, from the
// reader's current block, as little-endian float32 values. With subbands the
// layout follows Orchestrator.ReadSubbands.
func dedisperse(ctx context.Context, r *stream.Reader, config *DedisperseConfig, out *fileWriter,
	metrics *Metrics, logger *slog.Logger) error {
	plan := r.Plan()
	info := plan.Info

	var delays []int
	if config.Subbands > 0 {
		delays = stream.SubbandDelays(config.DM, info.LowFreq, info.ChanWidth, plan.NumChan, config.Subbands, plan.DT)
	} else {
		delays = stream.DispersionDelays(config.DM, info.LowFreq, info.ChanWidth, plan.NumChan, plan.DT)
	}

	// every delay must fit in the previous group
	blocksPerRead := config.BlocksPerRead
	if maxDelay := stream.MaxDelay(delays); maxDelay > blocksPerRead*plan.PointsPerBlock {
		blocksPerRead = (maxDelay + plan.PointsPerBlock - 1) / plan.PointsPerBlock
		logger.Warn("raising blocks per read to cover the dispersion sweep",
			slog.Int("max_delay", maxDelay), slog.Int("blocks_per_read", blocksPerRead))
	}

	opts := []stream.OrchestratorOption{stream.WithDelays(delays)}
	mask := stream.NewIntervalMask(plan.NumChan, config.Mask.Channels, config.Mask.Intervals)
	if !mask.Empty() {
		opts = append(opts, stream.WithMasker(mask))
	}

	o, err := stream.NewOrchestrator(r, blocksPerRead, opts...)
	if err != nil {
		return fmt.Errorf("creating orchestrator: %w", err)
	}

	if err = o.Open(); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("opening orchestrator: %w", err)
	}
	defer o.Close()

	logger.Info("dedispersing",
		slog.Float64("dm", config.DM),
		slog.Int("subbands", config.Subbands),
		slog.Int("points_per_read", o.NumPoints()),
		slog.Int("max_delay", stream.MaxDelay(delays)),
	)

	handle := func(res stream.ReadResult, values []float32) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		metrics.groupDedispersed(res.Masked, plan.NumChan)
		return out.WriteFloats(values)
	}

	if config.Subbands == 0 {
		return o.Drain(make([]float32, o.NumPoints()), handle)
	}

	values := make([]float32, o.NumPoints()*config.Subbands)
	for {
		res, err := o.ReadSubbands(config.Subbands, config.Transpose, values)
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("reading subbands: %w", err)
		}
		if err = handle(res, values); err != nil {
			return err
		}
	}
}
