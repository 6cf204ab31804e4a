package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/roman-kulish/wapp-stream/internal/filterbank"
	"github.com/roman-kulish/wapp-stream/internal/storage"
	"github.com/roman-kulish/wapp-stream/internal/stream"
)

const queueSize = 64

// WithMetrics sets the collectors the pipeline reports to
func WithMetrics(m *Metrics) func(*Pipeline) {
	return func(p *Pipeline) {
		p.metrics = m
	}
}

// WithProgressInterval sets how often decoding progress is logged. Zero
// disables progress logging.
func WithProgressInterval(d time.Duration) func(*Pipeline) {
	return func(p *Pipeline) {
		p.progressInterval = d
	}
}

// WithQueueSize sets the number of decoded blocks buffered between the reader
// and the writer
func WithQueueSize(n int) func(*Pipeline) {
	return func(p *Pipeline) {
		if n > 0 {
			p.queueSize = n
		}
	}
}

type decodedBlock struct {
	index   int64
	data    []byte
	padding bool
}

// Pipeline decodes a stream block by block. A reader goroutine feeds the
// blocks to the writer, which appends them to the output and averages them
// into spectra handed to a storage goroutine.
type Pipeline struct {
	reader    *stream.Reader
	acc       *filterbank.Accumulator
	store     storage.Store
	sessionID int64
	out       io.Writer

	logger           *slog.Logger
	metrics          *Metrics
	progressInterval time.Duration
	queueSize        int

	stored int
	failed int
}

// NewPipeline creates a pipeline writing the blocks of reader to out and
// storing the spectra of acc under sessionID
func NewPipeline(reader *stream.Reader, acc *filterbank.Accumulator, store storage.Store, sessionID int64, out io.Writer,
	logger *slog.Logger, options ...func(*Pipeline)) *Pipeline {
	p := Pipeline{
		reader:    reader,
		acc:       acc,
		store:     store,
		sessionID: sessionID,
		out:       out,
		logger:    logger,
		queueSize: queueSize,
	}

	for _, option := range options {
		option(&p)
	}

	return &p
}

// Run decodes from the reader's current block to the end of the stream
func (p *Pipeline) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	blocks := make(chan decodedBlock, p.queueSize)
	spectra := make(chan *filterbank.Spectrum, p.queueSize)

	var wg sync.WaitGroup
	var decodeErr error

	wg.Add(2)
	go func() {
		defer wg.Done()
		decodeErr = p.decode(ctx, blocks)
	}()
	go func() {
		defer wg.Done()
		p.handleSpectra(context.WithoutCancel(ctx), spectra)
	}()

	writeErr := p.write(blocks, spectra)
	if writeErr != nil {
		cancel() // unblock the reader goroutine
	}
	close(spectra)

	wg.Wait()

	p.logger.Info("spectra stored", slog.Int("stored", p.stored), slog.Int("failed", p.failed))
	return errors.Join(decodeErr, writeErr)
}

func (p *Pipeline) decode(ctx context.Context, blocks chan<- decodedBlock) error {
	defer close(blocks)

	for {
		index := p.reader.Block()
		data, padding, err := p.reader.ReadBlock()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("decoding block %d: %w", index, err)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case blocks <- decodedBlock{index: index, data: slices.Clone(data), padding: padding}:
		}
	}
}

func (p *Pipeline) write(blocks <-chan decodedBlock, spectra chan<- *filterbank.Spectrum) error {
	total := p.reader.Plan().NumBlocks()
	lastProgress := time.Now()

	for b := range blocks {
		if _, err := p.out.Write(b.data); err != nil {
			return fmt.Errorf("writing block %d: %w", b.index, err)
		}
		p.metrics.blockDecoded(b.index, b.padding, len(b.data))

		if s, ok := p.acc.Add(b.data, b.index, b.padding); ok {
			spectra <- s
		}

		if p.progressInterval > 0 && time.Since(lastProgress) >= p.progressInterval {
			lastProgress = time.Now()
			p.logger.Info("decoding",
				slog.String("block", humanize.Comma(b.index+1)),
				slog.String("of", humanize.Comma(total)),
				slog.String("done", fmt.Sprintf("%.1f%%", 100*float64(b.index+1)/float64(total))),
			)
		}
	}

	if s, ok := p.acc.Flush(); ok {
		spectra <- s
	}
	return nil
}

func (p *Pipeline) handleSpectra(ctx context.Context, spectra <-chan *filterbank.Spectrum) {
	for s := range spectra {
		err := p.store.StoreSpectrum(ctx, p.sessionID, s)
		p.metrics.spectrumStored(err)
		if err != nil {
			p.failed++
			p.logger.Error(fmt.Sprintf("storing spectrum at block %d: %s", s.Block, err.Error()))
			continue
		}
		p.stored++
	}
}
