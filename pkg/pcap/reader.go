package pcap

import (
	"fmt"
	"time"

	"firestige.xyz/pcapmerge/internal/core"
	"firestige.xyz/pcapmerge/internal/log"
	"firestige.xyz/pcapmerge/pkg/bytesource"
)

// State is the lifecycle position of a Reader.
type State int

const (
	// StateActive readers may return more packets.
	StateActive State = iota
	// StateInvalid readers failed to open or had a bad global header.
	StateInvalid
	// StateEOF readers ended on a record boundary.
	StateEOF
	// StateTruncated readers ended inside a record header or record data.
	StateTruncated
	// StateCorrupt readers met an oversize record or a failing byte source.
	StateCorrupt
)

func (s State) String() string {
	switch s {
	case StateActive:
		return "active"
	case StateInvalid:
		return "invalid"
	case StateEOF:
		return "eof"
	case StateTruncated:
		return "truncated"
	case StateCorrupt:
		return "corrupt"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Terminal reports whether no more packets will be produced.
func (s State) Terminal() bool {
	return s != StateActive
}

type Option func(*options)

type options struct {
	logger     log.Logger
	buffers    int
	sourceOpts []bytesource.Option
}

// WithLogger sets the logger receiving header and record warnings.
func WithLogger(l log.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithBuffers rotates n capture buffers so a returned packet stays valid for
// n-1 further reads. The default is a single buffer.
func WithBuffers(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.buffers = n
		}
	}
}

// WithSourceOptions passes options to the byte source opened by Open.
func WithSourceOptions(opts ...bytesource.Option) Option {
	return func(o *options) {
		o.sourceOpts = append(o.sourceOpts, opts...)
	}
}

func newOptions(opts []Option) *options {
	o := &options{buffers: 1}
	for _, opt := range opts {
		opt(o)
	}
	if o.logger == nil {
		o.logger = log.GetLogger()
	}
	return o
}

// Reader produces the packets of one capture file.
//
// A Reader is either invalid from the start (Valid returns false) or active
// until its records run out or turn out corrupt. It never resynchronises:
// after the first bad record it returns only invalid packets.
type Reader struct {
	src      bytesource.Source
	header   FileHeader
	scale    int64
	capacity int
	bufs     [][]byte
	next     int
	rec      [RecordHeaderSize]byte
	state    State
	err      error
	logger   log.Logger
}

// Open opens the capture file at path. Suffix ".gz" or ".xz" selects
// transparent decompression. Failures are logged and leave the Reader
// invalid; Open never returns an error.
func Open(path string, opts ...Option) *Reader {
	o := newOptions(opts)
	srcOpts := append([]bytesource.Option{bytesource.WithLogger(o.logger)}, o.sourceOpts...)
	return newReader(bytesource.Open(path, srcOpts...), o)
}

// NewReader reads a capture file from an already opened byte source. The
// Reader takes ownership of src.
func NewReader(src bytesource.Source, opts ...Option) *Reader {
	return newReader(src, newOptions(opts))
}

func newReader(src bytesource.Source, o *options) *Reader {
	r := &Reader{
		src:    src,
		state:  StateActive,
		logger: o.logger.WithField("file", src.Name()),
	}

	if !src.Valid() {
		// The byte source already logged why.
		r.state = StateInvalid
		r.err = src.Err()
		return r
	}

	if err := r.readFileHeader(); err != nil {
		r.logger.WithError(err).Warn("capture file header rejected")
		r.state = StateInvalid
		r.err = err
		return r
	}

	r.capacity = int(r.header.SnapLen)
	if r.capacity == 0 {
		r.capacity = MaxSnapLen
	}
	r.bufs = make([][]byte, o.buffers)
	for i := range r.bufs {
		r.bufs[i] = make([]byte, r.capacity)
	}
	return r
}

func (r *Reader) readFileHeader() error {
	var b [FileHeaderSize]byte
	if n, _ := r.src.Read(b[:]); n != FileHeaderSize {
		return fmt.Errorf("read capture header: got %d of %d bytes", n, FileHeaderSize)
	}

	h := parseFileHeader(b[:])
	if err := h.Validate(); err != nil {
		return err
	}

	r.header = h
	r.scale = 1
	if !h.Nanosecond() {
		r.scale = 1000
	}

	r.logger.WithFields(map[string]interface{}{
		"version":  fmt.Sprintf("%d.%d", h.VersionMajor, h.VersionMinor),
		"snaplen":  h.SnapLen,
		"thiszone": h.ThisZone,
		"nanos":    h.Nanosecond(),
	}).Debug("capture file opened")
	return nil
}

// ReadPacket returns the next record, or an invalid Packet once the file is
// exhausted or a record is corrupt. The returned Data is only valid until the
// next call (see WithBuffers).
func (r *Reader) ReadPacket() Packet {
	if r.state != StateActive {
		return Packet{}
	}

	if n, _ := r.src.Read(r.rec[:]); n != RecordHeaderSize {
		switch {
		case n != 0:
			r.logger.Warnf("record header read %d of %d bytes", n, RecordHeaderSize)
			r.state = StateTruncated
			r.err = fmt.Errorf("%w: record header read %d of %d bytes", core.ErrTruncatedCapture, n, RecordHeaderSize)
		case r.src.Err() != nil:
			r.state = StateCorrupt
			r.err = r.src.Err()
		default:
			r.state = StateEOF
		}
		return Packet{}
	}

	hdr := parseRecordHeader(r.rec[:])
	if hdr.CapLen > uint32(r.capacity) {
		r.logger.Warnf("record captured length %d greater than buffer size %d", hdr.CapLen, r.capacity)
		r.state = StateCorrupt
		r.err = fmt.Errorf("%w: %d > %d", core.ErrCaptureTooLarge, hdr.CapLen, r.capacity)
		return Packet{}
	}

	buf := r.bufs[r.next]
	r.next = (r.next + 1) % len(r.bufs)

	data := buf[:hdr.CapLen]
	if n, _ := r.src.Read(data); n != len(data) {
		r.logger.Warnf("record data read %d of %d bytes", n, len(data))
		r.state = StateTruncated
		if err := r.src.Err(); err != nil {
			r.state = StateCorrupt
			r.err = err
		} else {
			r.err = fmt.Errorf("%w: record data read %d of %d bytes", core.ErrTruncatedCapture, n, len(data))
		}
		return Packet{}
	}

	return Packet{
		Timestamp:     time.Unix(int64(hdr.TsSec), int64(hdr.TsFrac)*r.scale).UTC(),
		CaptureLength: hdr.CapLen,
		Length:        hdr.Len,
		Data:          data,
	}
}

// Header returns the validated global header. It is zero for invalid readers.
func (r *Reader) Header() FileHeader { return r.header }

// Valid reports whether the file opened and its header was accepted.
func (r *Reader) Valid() bool { return r.state != StateInvalid }

// Good reports whether the next ReadPacket may return a packet.
func (r *Reader) Good() bool { return r.state == StateActive && r.src.Good() }

// EOF reports whether the underlying stream reached its end.
func (r *Reader) EOF() bool { return r.src.EOF() }

// State returns the lifecycle state.
func (r *Reader) State() State { return r.state }

// Err returns why the reader stopped. It is nil while the reader is active
// and after a clean end of file.
func (r *Reader) Err() error { return r.err }

// Name returns the path or name of the underlying byte source.
func (r *Reader) Name() string { return r.src.Name() }

// BufferSize returns the capacity of each capture buffer.
func (r *Reader) BufferSize() int { return r.capacity }

// Close releases the underlying byte source.
func (r *Reader) Close() error {
	return r.src.Close()
}
