// Package pcap reads classic libpcap capture files record by record.
package pcap

import (
	"encoding/binary"
	"fmt"
	"math/bits"

	"firestige.xyz/pcapmerge/internal/core"
)

//                            1                   2                   3
//        0 1 2 3 4 5 6 7 8 9 0 1 2 3 4 5 6 7 8 9 0 1 2 3 4 5 6 7 8 9 0 1
//       +-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
//     0 |                          Magic Number                         |
//       +-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
//     4 |          Major Version        |         Minor Version         |
//       +-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
//     8 |                      This Zone (GMT offset)                   |
//       +-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
//    12 |                       Significant Figures                     |
//       +-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
//    16 |                            SnapLen                            |
//       +-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
//    20 |                            LinkType                           |
//       +-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+

const (
	// MagicMicroseconds marks files whose record timestamps carry microseconds.
	MagicMicroseconds uint32 = 0xa1b2c3d4
	// MagicNanoseconds marks files whose record timestamps carry nanoseconds.
	MagicNanoseconds uint32 = 0xa1b23c4d

	// MaxSnapLen is the largest snapshot length accepted in a file header.
	MaxSnapLen = 65535

	// LinkTypeEthernet is the only link type accepted.
	LinkTypeEthernet uint32 = 1

	FileHeaderSize   = 24
	RecordHeaderSize = 16
)

// FileHeader is the global header at the start of every capture file.
type FileHeader struct {
	Magic        uint32
	VersionMajor uint16
	VersionMinor uint16
	ThisZone     int32
	SigFigs      uint32
	SnapLen      uint32
	LinkType     uint32
}

// Nanosecond reports whether record timestamps carry nanoseconds.
func (h FileHeader) Nanosecond() bool {
	return h.Magic == MagicNanoseconds
}

// RecordHeader precedes the captured bytes of every packet.
type RecordHeader struct {
	TsSec  uint32
	TsFrac uint32 // microseconds or nanoseconds, depending on the file magic
	CapLen uint32
	Len    uint32
}

// parseFileHeader decodes b, which must hold FileHeaderSize bytes.
func parseFileHeader(b []byte) FileHeader {
	return FileHeader{
		Magic:        binary.LittleEndian.Uint32(b[0:4]),
		VersionMajor: binary.LittleEndian.Uint16(b[4:6]),
		VersionMinor: binary.LittleEndian.Uint16(b[6:8]),
		ThisZone:     int32(binary.LittleEndian.Uint32(b[8:12])),
		SigFigs:      binary.LittleEndian.Uint32(b[12:16]),
		SnapLen:      binary.LittleEndian.Uint32(b[16:20]),
		LinkType:     binary.LittleEndian.Uint32(b[20:24]),
	}
}

// parseRecordHeader decodes b, which must hold RecordHeaderSize bytes.
func parseRecordHeader(b []byte) RecordHeader {
	return RecordHeader{
		TsSec:  binary.LittleEndian.Uint32(b[0:4]),
		TsFrac: binary.LittleEndian.Uint32(b[4:8]),
		CapLen: binary.LittleEndian.Uint32(b[8:12]),
		Len:    binary.LittleEndian.Uint32(b[12:16]),
	}
}

// Validate checks the header against what the reader supports.
func (h FileHeader) Validate() error {
	switch h.Magic {
	case MagicMicroseconds, MagicNanoseconds:
	case bits.ReverseBytes32(MagicMicroseconds), bits.ReverseBytes32(MagicNanoseconds):
		return fmt.Errorf("%w: byte swapped capture files are not supported", core.ErrInvalidCapture)
	default:
		return fmt.Errorf("%w: unknown magic %08x", core.ErrInvalidCapture, h.Magic)
	}

	if h.SnapLen > MaxSnapLen {
		return fmt.Errorf("%w: snapshot length %d bigger than maximum of %d", core.ErrInvalidCapture, h.SnapLen, MaxSnapLen)
	}

	if h.LinkType != LinkTypeEthernet {
		return fmt.Errorf("%w: link type %d not supported", core.ErrInvalidCapture, h.LinkType)
	}

	return nil
}
