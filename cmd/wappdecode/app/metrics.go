package app

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the prometheus collectors of one decode run
type Metrics struct {
	blocks       *prometheus.CounterVec // Decoded blocks, by kind (data or padding)
	bytesWritten prometheus.Counter     // Uncompressed output bytes
	spectra      prometheus.Counter     // Spectra stored in the catalogue
	storeErrors  prometheus.Counter     // Spectra the catalogue rejected
	currentBlock prometheus.Gauge       // Next aggregate block to decode
	totalBlocks  prometheus.Gauge       // Blocks in the aggregate stream
	groups       *prometheus.CounterVec // Dedispersed groups, by masking (none, partial or full)
}

// NewMetrics registers the decoder collectors with reg
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		blocks: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "wapp_blocks_decoded_total",
				Help: "Decoded blocks of the aggregate stream",
			},
			[]string{"kind"},
		),
		bytesWritten: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "wapp_output_bytes_total",
				Help: "Uncompressed bytes written to the output",
			},
		),
		spectra: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "wapp_spectra_stored_total",
				Help: "Averaged spectra stored in the catalogue",
			},
		),
		storeErrors: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "wapp_spectra_store_errors_total",
				Help: "Spectra that could not be stored",
			},
		),
		currentBlock: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "wapp_current_block",
				Help: "Next aggregate block to decode",
			},
		),
		totalBlocks: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "wapp_total_blocks",
				Help: "Blocks in the aggregate stream",
			},
		),
		groups: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "wapp_dedispersed_groups_total",
				Help: "Dedispersed groups of blocks, by masking",
			},
			[]string{"mask"},
		),
	}
}

func (m *Metrics) blockDecoded(index int64, padding bool, size int) {
	if m == nil {
		return
	}
	kind := "data"
	if padding {
		kind = "padding"
	}
	m.blocks.WithLabelValues(kind).Inc()
	m.bytesWritten.Add(float64(size))
	m.currentBlock.Set(float64(index + 1))
}

func (m *Metrics) spectrumStored(err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.storeErrors.Inc()
		return
	}
	m.spectra.Inc()
}

func (m *Metrics) groupDedispersed(masked, numChan int) {
	if m == nil {
		return
	}
	switch {
	case masked == 0:
		m.groups.WithLabelValues("none").Inc()
	case masked >= numChan:
		m.groups.WithLabelValues("full").Inc()
	default:
		m.groups.WithLabelValues("partial").Inc()
	}
}

// serveMetrics exposes the registry on addr until ctx is done
func serveMetrics(ctx context.Context, addr string, reg *prometheus.Registry, logger *slog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	go func() {
		logger.Info("serving metrics", slog.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", slog.String("error", err.Error()))
		}
	}()
}
