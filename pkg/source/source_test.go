package source

import (
	"bytes"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
	"github.com/klauspost/compress/gzip"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ulikunitz/xz"

	"firestige.xyz/pcapmerge/internal/filter"
	"firestige.xyz/pcapmerge/internal/log"
	"firestige.xyz/pcapmerge/internal/metrics"
	"firestige.xyz/pcapmerge/pkg/pcap"
)

var base = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func testLogger() (log.Logger, *test.Hook) {
	l, hook := test.NewNullLogger()
	l.SetLevel(logrus.DebugLevel)
	return log.NewLogrusLogger(logrus.NewEntry(l)), hook
}

func warnings(hook *test.Hook) []string {
	var msgs []string
	for _, e := range hook.AllEntries() {
		if e.Level == logrus.WarnLevel {
			msgs = append(msgs, e.Message)
		}
	}
	return msgs
}

// tagged returns a frame whose first two bytes identify the file and the
// record within it.
func tagged(file, seq byte) []byte {
	data := make([]byte, 60)
	data[0], data[1] = file, seq
	return data
}

// writeCapture writes one record per offset, compressed according to the
// file name suffix.
func writeCapture(t *testing.T, dir, name string, file byte, offsets ...time.Duration) string {
	t.Helper()

	var buf bytes.Buffer
	w := pcapgo.NewWriterNanos(&buf)
	require.NoError(t, w.WriteFileHeader(65535, layers.LinkTypeEthernet))
	for i, off := range offsets {
		data := tagged(file, byte(i))
		ci := gopacket.CaptureInfo{
			Timestamp:     base.Add(off),
			CaptureLength: len(data),
			Length:        len(data),
		}
		require.NoError(t, w.WritePacket(ci, data))
	}

	data := buf.Bytes()
	var out bytes.Buffer
	switch filepath.Ext(name) {
	case ".gz":
		zw := gzip.NewWriter(&out)
		_, err := zw.Write(data)
		require.NoError(t, err)
		require.NoError(t, zw.Close())
		data = out.Bytes()
	case ".xz":
		xw, err := xz.NewWriter(&out)
		require.NoError(t, err)
		_, err = xw.Write(data)
		require.NoError(t, err)
		require.NoError(t, xw.Close())
		data = out.Bytes()
	}

	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, data, 0644))
	return path
}

type delivered struct {
	file, seq byte
	ts        int64
}

func drain(s *PacketSource) []delivered {
	var got []delivered
	for {
		p := s.Next()
		if !p.Valid() {
			return got
		}
		got = append(got, delivered{file: p.Data[0], seq: p.Data[1], ts: p.UnixNano()})
	}
}

func assertMerged(t *testing.T, got []delivered) {
	t.Helper()
	last := map[byte]int{}
	for i, d := range got {
		if i > 0 {
			assert.LessOrEqual(t, got[i-1].ts, d.ts, "packet %d out of order", i)
		}
		if prev, ok := last[d.file]; ok {
			assert.Equal(t, prev+1, int(d.seq), "file %d reordered", d.file)
		} else {
			assert.Equal(t, 0, int(d.seq), "file %d did not start at its first record", d.file)
		}
		last[d.file] = int(d.seq)
	}
}

func TestMergeOrdersByTimestamp(t *testing.T) {
	dir := t.TempDir()
	us := time.Microsecond
	a := writeCapture(t, dir, "a.pcap", 1, 0, 2*us, 4*us, 6*us, 8*us)
	b := writeCapture(t, dir, "b.pcap", 2, 1*us, 3*us, 5*us, 100*us)
	c := writeCapture(t, dir, "c.pcap", 3, 2*us, 2*us, 7*us)

	logger, _ := testLogger()
	s := New(WithLogger(logger))
	defer s.Close()
	s.AddFile(a)
	s.AddFile(b)
	s.AddFile(c)
	require.Equal(t, 3, s.Readers())
	assert.False(t, s.IsDone())

	got := drain(s)
	require.Len(t, got, 12)
	assertMerged(t, got)
	assert.Equal(t, byte(2), got[len(got)-1].file)
	assert.True(t, s.IsDone())
}

func TestMergeCompressedInputs(t *testing.T) {
	dir := t.TempDir()
	ns := time.Nanosecond
	raw := writeCapture(t, dir, "raw.pcap", 1, 10*ns, 40*ns)
	gz := writeCapture(t, dir, "gz.pcap.gz", 2, 20*ns, 50*ns)
	xzPath := writeCapture(t, dir, "xz.pcap.xz", 3, 30*ns, 60*ns)

	logger, _ := testLogger()
	s := New(WithLogger(logger))
	defer s.Close()
	for _, p := range []string{xzPath, gz, raw} {
		s.AddFile(p)
	}

	got := drain(s)
	require.Len(t, got, 6)
	for i, d := range got {
		assert.Equal(t, byte(i%3+1), d.file)
		assert.Equal(t, base.Add(time.Duration(i+1)*10*ns).UnixNano(), d.ts)
	}
}

func TestInvalidFilesIgnored(t *testing.T) {
	dir := t.TempDir()
	good := writeCapture(t, dir, "good.pcap", 1, 0, time.Millisecond)
	junk := filepath.Join(dir, "junk.pcap")
	require.NoError(t, os.WriteFile(junk, []byte("definitely not a capture file"), 0644))

	rejected := testutil.ToFloat64(metrics.ReadersRejectedTotal)
	opened := testutil.ToFloat64(metrics.ReadersOpenedTotal)

	logger, hook := testLogger()
	s := New(WithLogger(logger))
	defer s.Close()
	s.AddFile(filepath.Join(dir, "missing.pcap"))
	s.AddFile(junk)
	s.AddFile(good)

	assert.Equal(t, 1, s.Readers())
	assert.Contains(t, warnings(hook), "capture file rejected")
	assert.Equal(t, rejected+2, testutil.ToFloat64(metrics.ReadersRejectedTotal))
	assert.Equal(t, opened+1, testutil.ToFloat64(metrics.ReadersOpenedTotal))
	assert.Len(t, drain(s), 2)
}

func TestEmptySource(t *testing.T) {
	s := New()
	assert.True(t, s.IsDone())
	assert.Equal(t, 0, s.Readers())

	calls := 0
	s.SetDoneCallback(func() { calls++ })
	assert.False(t, s.Next().Valid())
	assert.False(t, s.Next().Valid())
	assert.Equal(t, 2, calls)
	assert.False(t, s.Process(func(pcap.Packet) { t.Fatal("callback on empty source") }))
	assert.Equal(t, 3, calls)
}

func TestOnlyMissingFiles(t *testing.T) {
	dir := t.TempDir()
	logger, hook := testLogger()
	s := New(WithLogger(logger))
	defer s.Close()

	s.AddFile(filepath.Join(dir, "missing-a.pcap"))
	s.AddFile(filepath.Join(dir, "missing-b.pcap.gz"))

	assert.Equal(t, 0, s.Readers())
	assert.True(t, s.IsDone())

	calls := 0
	s.SetDoneCallback(func() { calls++ })
	assert.False(t, s.Next().Valid())
	assert.True(t, s.IsDone())
	assert.Equal(t, 1, calls)
	assert.Contains(t, warnings(hook), "capture file rejected")
}

func TestEmptyCaptureFile(t *testing.T) {
	dir := t.TempDir()
	empty := writeCapture(t, dir, "empty.pcap", 1)

	logger, hook := testLogger()
	s := New(WithLogger(logger))
	defer s.Close()
	s.AddFile(empty)

	assert.Equal(t, 1, s.Readers())
	assert.True(t, s.IsDone())
	assert.Empty(t, warnings(hook))
}

func TestDoneCallbackAfterDrain(t *testing.T) {
	dir := t.TempDir()
	path := writeCapture(t, dir, "a.pcap", 1, 0, time.Second)

	logger, _ := testLogger()
	s := New(WithLogger(logger))
	defer s.Close()
	s.AddFile(path)

	calls := 0
	s.SetDoneCallback(func() { calls++ })

	n := 0
	for s.Process(func(p pcap.Packet) {
		assert.Equal(t, byte(n), p.Data[1])
		n++
	}) {
	}
	assert.Equal(t, 2, n)
	assert.Equal(t, 1, calls)
	assert.True(t, s.IsDone())
}

func TestPacketValidUntilNextCall(t *testing.T) {
	dir := t.TempDir()
	path := writeCapture(t, dir, "a.pcap", 7, 0, time.Second, 2*time.Second)

	logger, _ := testLogger()
	s := New(WithLogger(logger))
	defer s.Close()
	s.AddFile(path)

	// The reader has already refilled with record 1 when record 0 is returned.
	p := s.Next()
	require.True(t, p.Valid())
	assert.Equal(t, tagged(7, 0), p.Data)

	q := s.Next()
	require.True(t, q.Valid())
	assert.Equal(t, tagged(7, 1), q.Data)

	kept := q.Clone()
	s.Next()
	assert.Equal(t, tagged(7, 1), kept.Data)
}

// corruptCapture holds one good record followed by a record whose capture
// length exceeds the snapshot length.
func corruptCapture(t *testing.T, dir string) string {
	t.Helper()
	var b bytes.Buffer

	var h [pcap.FileHeaderSize]byte
	binary.LittleEndian.PutUint32(h[0:4], pcap.MagicNanoseconds)
	binary.LittleEndian.PutUint16(h[4:6], 2)
	binary.LittleEndian.PutUint16(h[6:8], 4)
	binary.LittleEndian.PutUint32(h[16:20], 128)
	binary.LittleEndian.PutUint32(h[20:24], pcap.LinkTypeEthernet)
	b.Write(h[:])

	record := func(ts time.Time, caplen uint32, data []byte) {
		var r [pcap.RecordHeaderSize]byte
		binary.LittleEndian.PutUint32(r[0:4], uint32(ts.Unix()))
		binary.LittleEndian.PutUint32(r[4:8], uint32(ts.Nanosecond()))
		binary.LittleEndian.PutUint32(r[8:12], caplen)
		binary.LittleEndian.PutUint32(r[12:16], caplen)
		b.Write(r[:])
		b.Write(data)
	}
	record(base.Add(time.Microsecond), 60, tagged(9, 0))
	record(base.Add(3*time.Microsecond), 5000, tagged(9, 1))
	record(base.Add(5*time.Microsecond), 60, tagged(9, 2))

	path := filepath.Join(dir, "corrupt.pcap")
	require.NoError(t, os.WriteFile(path, b.Bytes(), 0644))
	return path
}

func TestCorruptReaderDropsOut(t *testing.T) {
	dir := t.TempDir()
	us := time.Microsecond
	good := writeCapture(t, dir, "good.pcap", 1, 0, 2*us, 4*us, 6*us)
	bad := corruptCapture(t, dir)

	finished := testutil.ToFloat64(metrics.ReadersFinishedTotal.WithLabelValues("corrupt"))

	logger, hook := testLogger()
	s := New(WithLogger(logger))
	defer s.Close()
	s.AddFile(good)
	s.AddFile(bad)
	require.Equal(t, 2, s.Readers())

	got := drain(s)
	require.Len(t, got, 5)
	assertMerged(t, got)

	fromBad := 0
	for _, d := range got {
		if d.file == 9 {
			fromBad++
		}
	}
	assert.Equal(t, 1, fromBad)
	assert.NotEmpty(t, warnings(hook))
	assert.Equal(t, finished+1, testutil.ToFloat64(metrics.ReadersFinishedTotal.WithLabelValues("corrupt")))
}

func TestFilterSkipsPackets(t *testing.T) {
	dir := t.TempDir()
	us := time.Microsecond
	a := writeCapture(t, dir, "a.pcap", 1, 0, 2*us, 4*us)
	b := writeCapture(t, dir, "b.pcap", 2, 1*us, 3*us, 5*us)

	filtered := testutil.ToFloat64(metrics.PacketsFilteredTotal)
	delivered := testutil.ToFloat64(metrics.PacketsDeliveredTotal)

	logger, _ := testLogger()
	onlyB := filter.Func(func(data []byte) bool { return data[0] == 2 })
	s := New(WithLogger(logger), WithFilter(onlyB))
	defer s.Close()
	s.AddFile(a)
	s.AddFile(b)

	got := drain(s)
	require.Len(t, got, 3)
	for i, d := range got {
		assert.Equal(t, byte(2), d.file)
		assert.Equal(t, byte(i), d.seq)
	}
	assert.True(t, s.IsDone())
	assert.Equal(t, filtered+3, testutil.ToFloat64(metrics.PacketsFilteredTotal))
	assert.Equal(t, delivered+3, testutil.ToFloat64(metrics.PacketsDeliveredTotal))
}

func TestReaderOptionsApplied(t *testing.T) {
	dir := t.TempDir()
	path := writeCapture(t, dir, "a.pcap", 1, 0)

	logger, hook := testLogger()
	other, otherHook := testLogger()
	s := New(WithLogger(logger), WithReaderOptions(pcap.WithLogger(other)))
	defer s.Close()
	s.AddFile(path)
	drain(s)

	// Only the merge itself logs through the source logger.
	for _, e := range hook.AllEntries() {
		assert.Equal(t, "reader finished", e.Message)
	}
	assert.NotEmpty(t, otherHook.AllEntries())
}

func TestClose(t *testing.T) {
	dir := t.TempDir()
	path := writeCapture(t, dir, "a.pcap", 1, 0, time.Second)

	s := New()
	s.AddFile(path)
	require.False(t, s.IsDone())

	assert.NoError(t, s.Close())
	assert.Equal(t, 0, s.Readers())
	assert.True(t, s.IsDone())
	assert.False(t, s.Next().Valid())
}
