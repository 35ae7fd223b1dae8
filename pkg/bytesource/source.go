// Package bytesource presents plain, gzip-compressed and xz-compressed files
// as one blocking byte stream.
package bytesource

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"firestige.xyz/pcapmerge/internal/core"
	"firestige.xyz/pcapmerge/internal/log"
)

// DefaultChunkSize is the size of the input and output chunks kept by the
// decompressing sources.
const DefaultChunkSize = 4096

// Source is a blocking reader over one logical byte stream.
//
// Read fills p completely unless the stream ends or fails first. A short
// count means the end of the logical stream (io.EOF when nothing was read,
// io.ErrUnexpectedEOF otherwise) of a plain file. Any other error, including
// a decompressor reporting a cut-off compressed stream, is fatal for the
// source and every later Read returns it without touching the underlying file.
type Source interface {
	io.ReadCloser

	// EOF reports whether the end of the logical stream was reached.
	EOF() bool
	// Good reports whether the next Read may return data.
	Good() bool
	// Valid reports whether the source was opened successfully.
	Valid() bool
	// Err returns the open or decode failure, if any.
	Err() error
	// Name identifies the source in logs.
	Name() string
}

type Option func(*options)

type options struct {
	chunkSize int
	logger    log.Logger
}

// WithChunkSize sets the input and output chunk sizes.
func WithChunkSize(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.chunkSize = n
		}
	}
}

// WithLogger sets the logger receiving open and decode warnings.
func WithLogger(l log.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

func newOptions(opts []Option) *options {
	o := &options{chunkSize: DefaultChunkSize}
	for _, opt := range opts {
		opt(o)
	}
	if o.logger == nil {
		o.logger = log.GetLogger()
	}
	return o
}

// Open opens path and selects the decoder from its suffix. Open never fails
// loudly: a missing or undecodable file yields an invalid source, logs a
// warning, and keeps the cause in Err. Callers check Valid before reading.
func Open(path string, opts ...Option) Source {
	o := newOptions(opts)

	f, err := os.Open(path)
	if err != nil {
		return newInvalid(path, fmt.Errorf("open: %w", err), o)
	}
	return build(path, f, f, CompressionFor(path), o)
}

// New wraps an already open reader. The source does not own r unless r
// implements io.Closer.
func New(name string, r io.Reader, c Compression, opts ...Option) Source {
	var closer io.Closer
	if rc, ok := r.(io.Closer); ok {
		closer = rc
	}
	return build(name, r, closer, c, newOptions(opts))
}

func build(name string, r io.Reader, closer io.Closer, c Compression, o *options) Source {
	input := bufio.NewReaderSize(r, o.chunkSize)

	decoded, err := c.newDecoder(input)
	if err != nil {
		if closer != nil {
			_ = closer.Close()
		}
		return newInvalid(name, fmt.Errorf("%s decoder: %w", c, err), o)
	}

	s := &stream{
		name:   name,
		r:      decoded,
		closer: closer,
		valid:  true,
		logger: o.logger.WithField("file", name),
	}
	if c != Raw {
		s.dec = &decodeReader{r: decoded}
		s.r = bufio.NewReaderSize(s.dec, o.chunkSize)
	}
	return s
}

// decodeReader keeps the first error the decompressor reports other than
// io.EOF, so a cut-off stream is told apart from a clean end once
// io.ReadFull has folded both into a short read.
type decodeReader struct {
	r   io.Reader
	err error
}

func (d *decodeReader) Read(p []byte) (int, error) {
	n, err := d.r.Read(p)
	if err != nil && err != io.EOF && d.err == nil {
		d.err = err
	}
	return n, err
}

// stream implements Source for every compression kind.
type stream struct {
	name   string
	r      io.Reader
	dec    *decodeReader
	closer io.Closer
	valid  bool
	eof    bool
	err    error
	logger log.Logger
}

func newInvalid(name string, err error, o *options) *stream {
	o.logger.WithField("file", name).WithError(err).Warn("file open error")
	return &stream{name: name, err: err, logger: o.logger}
}

func (s *stream) Read(p []byte) (int, error) {
	if !s.valid {
		return 0, fmt.Errorf("%w: %v", core.ErrSourceInvalid, s.err)
	}
	if s.err != nil {
		return 0, s.err
	}
	if s.eof {
		return 0, io.EOF
	}

	n, err := io.ReadFull(s.r, p)
	switch {
	case err == nil:
	case s.dec != nil && s.dec.err != nil:
		err = s.dec.err
		s.err = err
		s.logger.WithError(err).Warn("stream read failed")
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
		s.eof = true
	default:
		s.err = err
		s.logger.WithError(err).Warn("stream read failed")
	}
	return n, err
}

func (s *stream) EOF() bool    { return s.eof }
func (s *stream) Good() bool   { return s.valid && s.err == nil && !s.eof }
func (s *stream) Valid() bool  { return s.valid }
func (s *stream) Err() error   { return s.err }
func (s *stream) Name() string { return s.name }

// Close releases the underlying file. It is safe to call more than once.
func (s *stream) Close() error {
	if s.closer == nil {
		return nil
	}
	c := s.closer
	s.closer = nil
	return c.Close()
}

// hasSuffix matches case-insensitively so "trace.PCAP.GZ" is still gzip.
func hasSuffix(path, suffix string) bool {
	return strings.HasSuffix(strings.ToLower(path), suffix)
}
