package app

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/klauspost/compress/zstd"
)

const writeBufferSize = 1 << 20

// fileWriter writes a decoded stream to a file, optionally zstd compressed
type fileWriter struct {
	f   *os.File
	buf *bufio.Writer
	enc *zstd.Encoder
	w   io.Writer

	written int64 // Uncompressed bytes
}

// createOutput creates the file at path. With compress the stream is zstd
// compressed at level, one of fastest, default, better or best. An empty path
// discards everything written.
func createOutput(path string, compress bool, level string) (*fileWriter, error) {
	if path == "" {
		return &fileWriter{w: io.Discard}, nil
	}

	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("creating output: %w", err)
	}

	fw := &fileWriter{f: f, buf: bufio.NewWriterSize(f, writeBufferSize)}
	fw.w = fw.buf

	if compress {
		_, lvl := zstd.EncoderLevelFromString(level)
		if fw.enc, err = zstd.NewWriter(fw.buf, zstd.WithEncoderLevel(lvl)); err != nil {
			_ = f.Close()
			return nil, fmt.Errorf("creating zstd encoder: %w", err)
		}
		fw.w = fw.enc
	}

	return fw, nil
}

func (fw *fileWriter) Write(p []byte) (int, error) {
	n, err := fw.w.Write(p)
	fw.written += int64(n)
	return n, err
}

// WriteFloats writes values as little-endian IEEE 754 single precision
func (fw *fileWriter) WriteFloats(values []float32) error {
	var word [4]byte
	for _, v := range values {
		binary.LittleEndian.PutUint32(word[:], math.Float32bits(v))
		if _, err := fw.Write(word[:]); err != nil {
			return err
		}
	}
	return nil
}

// Written returns the number of uncompressed bytes written
func (fw *fileWriter) Written() int64 {
	return fw.written
}

// Close flushes the encoder and the buffer, then closes the file
func (fw *fileWriter) Close() error {
	if fw.f == nil {
		return nil
	}

	var errs []error
	if fw.enc != nil {
		errs = append(errs, fw.enc.Close())
	}
	errs = append(errs, fw.buf.Flush(), fw.f.Close())
	return errors.Join(errs...)
}
