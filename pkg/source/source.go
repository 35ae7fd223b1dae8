// Package source merges several capture files into one stream of packets in
// non-decreasing timestamp order.
package source

import (
	"container/heap"
	"errors"

	"firestige.xyz/pcapmerge/internal/filter"
	"firestige.xyz/pcapmerge/internal/log"
	"firestige.xyz/pcapmerge/internal/metrics"
	"firestige.xyz/pcapmerge/pkg/pcap"
)

// A reader refills right after its packet is popped, while that packet is
// still with the caller, so every reader needs two capture buffers.
const refillBuffers = 2

type Option func(*options)

type options struct {
	logger     log.Logger
	readerOpts []pcap.Option
	filter     filter.Filter
}

func WithLogger(l log.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithReaderOptions passes options to every reader opened by AddFile. The
// buffer count is always set by the packet source.
func WithReaderOptions(opts ...pcap.Option) Option {
	return func(o *options) {
		o.readerOpts = append(o.readerOpts, opts...)
	}
}

// WithFilter skips packets f does not match. Skipped packets still advance
// their reader.
func WithFilter(f filter.Filter) Option {
	return func(o *options) {
		o.filter = f
	}
}

// PacketSource owns a set of readers and yields their packets merged by
// timestamp. It is not safe for concurrent use.
type PacketSource struct {
	readers []*pcap.Reader
	pending pending
	onDone  func()

	logger     log.Logger
	readerOpts []pcap.Option
	filter     filter.Filter
}

func New(opts ...Option) *PacketSource {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	if o.logger == nil {
		o.logger = log.GetLogger()
	}

	readerOpts := []pcap.Option{pcap.WithLogger(o.logger)}
	readerOpts = append(readerOpts, o.readerOpts...)
	readerOpts = append(readerOpts, pcap.WithBuffers(refillBuffers))

	return &PacketSource{
		logger:     o.logger,
		readerOpts: readerOpts,
		filter:     o.filter,
	}
}

// AddFile opens path and adds it to the merge. A file that cannot be opened
// or has a bad global header is logged and ignored.
func (s *PacketSource) AddFile(path string) {
	r := pcap.Open(path, s.readerOpts...)
	if !r.Valid() {
		s.logger.WithField("file", path).Warn("capture file rejected")
		metrics.ReadersRejectedTotal.Inc()
		r.Close()
		return
	}

	metrics.ReadersOpenedTotal.Inc()
	s.readers = append(s.readers, r)

	e := &entry{reader: r, seq: len(s.readers) - 1}
	if s.fill(e) {
		heap.Push(&s.pending, e)
	}
}

// fill reads the next packet of e's reader into e. It reports false once the
// reader has nothing more to give.
func (s *PacketSource) fill(e *entry) bool {
	e.packet = e.reader.ReadPacket()
	if e.packet.Valid() {
		return true
	}

	state := e.reader.State()
	metrics.ReadersFinishedTotal.WithLabelValues(state.String()).Inc()

	l := s.logger.WithFields(map[string]interface{}{
		"file":  e.reader.Name(),
		"state": state.String(),
	})
	if err := e.reader.Err(); err != nil {
		l = l.WithError(err)
	}
	l.Debug("reader finished")
	return false
}

// Next returns the packet with the smallest timestamp across all readers.
// The packet's Data stays valid until the following call to Next or
// Process. When every reader is exhausted Next calls the done callback, if
// any, and returns an invalid packet; it does so on every such call.
func (s *PacketSource) Next() pcap.Packet {
	for len(s.pending) > 0 {
		head := s.pending[0]
		p := head.packet

		if s.fill(head) {
			heap.Fix(&s.pending, 0)
		} else {
			heap.Pop(&s.pending)
		}

		if s.filter != nil && !s.filter.Match(p.Data) {
			metrics.PacketsFilteredTotal.Inc()
			continue
		}

		metrics.PacketsDeliveredTotal.Inc()
		metrics.BytesDeliveredTotal.Add(float64(len(p.Data)))
		return p
	}

	if s.onDone != nil {
		s.onDone()
	}
	return pcap.Packet{}
}

// Process hands the next packet to fn and reports whether there was one.
func (s *PacketSource) Process(fn func(pcap.Packet)) bool {
	p := s.Next()
	if !p.Valid() {
		return false
	}
	fn(p)
	return true
}

// IsDone reports whether no reader has packets left.
func (s *PacketSource) IsDone() bool { return len(s.pending) == 0 }

// SetDoneCallback sets the function Next calls when the merge is exhausted.
func (s *PacketSource) SetDoneCallback(fn func()) { s.onDone = fn }

// Readers returns the number of readers accepted so far, finished ones
// included.
func (s *PacketSource) Readers() int { return len(s.readers) }

// Close closes every reader. Packets previously returned become invalid.
func (s *PacketSource) Close() error {
	var errs []error
	for _, r := range s.readers {
		if err := r.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	s.readers = nil
	s.pending = nil
	return errors.Join(errs...)
}
