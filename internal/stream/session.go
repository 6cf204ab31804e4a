package stream

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/roman-kulish/wapp-stream/internal/lags"
	"github.com/roman-kulish/wapp-stream/internal/wapp"
)

// Source is one raw WAPP file: ASCII preamble, binary header and lag data
type Source interface {
	io.ReaderAt
	Size() int64
}

// Session owns everything needed to decode one stream of raw files
type Session struct {
	Headers []*wapp.FileHeader
	Plan    *Plan
	Reader  *Reader
	Codec   *lags.Codec

	closers []io.Closer
}

// Open opens the raw files at paths, in stream order, and prepares a session
// over them. The files stay open until Close.
func Open(paths []string, opts ...Option) (*Session, error) {
	o := applyOptions(opts)
	if len(paths) > o.maxFiles {
		return nil, fmt.Errorf("%w: %d files, at most %d are supported", ErrTooManyFiles, len(paths), o.maxFiles)
	}

	sources := make([]Source, 0, len(paths))
	closers := make([]io.Closer, 0, len(paths))
	closeAll := func() {
		for _, c := range closers {
			_ = c.Close()
		}
	}

	for _, path := range paths {
		f, err := os.Open(path)
		if err != nil {
			closeAll()
			return nil, fmt.Errorf("opening raw file: %w", err)
		}
		closers = append(closers, f)

		stat, err := f.Stat()
		if err != nil {
			closeAll()
			return nil, fmt.Errorf("reading raw file size: %w", err)
		}
		sources = append(sources, io.NewSectionReader(f, 0, stat.Size()))
	}

	s, err := NewSession(sources, opts...)
	if err != nil {
		closeAll()
		return nil, err
	}
	s.closers = closers
	return s, nil
}

// NewSession reads the headers of every source, plans the stream and creates
// its codec and reader
func NewSession(sources []Source, opts ...Option) (*Session, error) {
	o := applyOptions(opts)

	var headerOpts []wapp.ReadOption
	if o.order != nil {
		headerOpts = append(headerOpts, wapp.WithByteOrder(o.order))
	}

	s := &Session{Headers: make([]*wapp.FileHeader, len(sources))}
	headers := make([]*wapp.Header, len(sources))
	dataLens := make([]int64, len(sources))
	inputs := make([]Input, len(sources))

	for i, src := range sources {
		fh, err := wapp.ReadFileHeader(bufio.NewReader(io.NewSectionReader(src, 0, src.Size())), headerOpts...)
		if err != nil {
			return nil, fmt.Errorf("file %d: %w", i+1, err)
		}
		if fh.Swapped {
			o.logger.Info("raw file is byte-swapped", "file", i+1, "order", fh.Order)
		}

		s.Headers[i] = fh
		headers[i] = fh.Header
		dataLens[i] = src.Size() - fh.Length
		inputs[i] = Input{
			Data:  io.NewSectionReader(src, fh.Length, dataLens[i]),
			Order: fh.Order,
		}
	}

	plan, err := NewPlan(headers, dataLens, opts...)
	if err != nil {
		return nil, err
	}

	params := lags.ParamsFromInfo(plan.Info)
	params.ScaleMin, params.ScaleMax = o.scaleMin, o.scaleMax

	codec, err := lags.NewCodec(plan.NumChan, params)
	if err != nil {
		return nil, err
	}

	reader, err := NewReader(plan, inputs, codec, opts...)
	if err != nil {
		_ = codec.Close()
		return nil, err
	}

	s.Plan = plan
	s.Reader = reader
	s.Codec = codec
	return s, nil
}

// Close releases the codec and closes the files opened by Open
func (s *Session) Close() error {
	var errs []error
	if s.Codec != nil {
		errs = append(errs, s.Codec.Close())
	}
	for _, c := range s.closers {
		errs = append(errs, c.Close())
	}
	s.closers = nil
	return errors.Join(errs...)
}
