package pcap

import (
	"time"

	"github.com/google/gopacket"
)

// Packet is one captured record.
//
// Data is borrowed from the Reader that produced the packet: it is
// overwritten by the next ReadPacket on that Reader (or, for a Reader opened
// with WithBuffers(n), by the n-th next read). Use Clone to keep the bytes.
// The zero Packet is invalid and marks the end of a reader's records.
type Packet struct {
	Timestamp     time.Time
	CaptureLength uint32
	Length        uint32
	Data          []byte
}

// Valid reports whether the packet carries data.
func (p Packet) Valid() bool {
	return p.Data != nil
}

// UnixNano returns the capture time in nanoseconds since the epoch.
func (p Packet) UnixNano() int64 {
	return p.Timestamp.UnixNano()
}

// Clone returns a copy of p whose Data is owned by the caller.
func (p Packet) Clone() Packet {
	if p.Data == nil {
		return p
	}
	data := make([]byte, len(p.Data))
	copy(data, p.Data)
	p.Data = data
	return p
}

// CaptureInfo converts the record metadata for gopacket consumers such as
// pcapgo.Writer.
func (p Packet) CaptureInfo() gopacket.CaptureInfo {
	return gopacket.CaptureInfo{
		Timestamp:     p.Timestamp,
		CaptureLength: int(p.CaptureLength),
		Length:        int(p.Length),
	}
}
