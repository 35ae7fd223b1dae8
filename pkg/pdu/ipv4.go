package pdu

import (
	"encoding/binary"
	"net/netip"
)

const (
	IPv4HeaderSize = 20

	// Protocol numbers
	ProtocolTCP = 6
	ProtocolUDP = 17
)

// IPv4 is a view over a fixed 20-byte IPv4 header.
//
// Options are never skipped: Payload always starts 20 bytes in, so the view
// is only correct for headers without options (IHL == 5). Callers check
// Version before trusting any other field.
type IPv4 struct {
	b []byte
}

// NewIPv4 builds a view over b. It fails when b cannot hold 20 bytes.
func NewIPv4(b []byte) (IPv4, error) {
	if len(b) < IPv4HeaderSize {
		return IPv4{}, tooShort("ipv4", len(b), IPv4HeaderSize)
	}
	return IPv4{b: b}, nil
}

func (ip IPv4) Valid() bool { return ip.b != nil }

func (ip IPv4) Version() uint8 { return ip.b[0] >> 4 }

// IHL returns the header length field in 32-bit words.
func (ip IPv4) IHL() uint8 { return ip.b[0] & 0x0F }

func (ip IPv4) TotalLength() uint16 { return binary.BigEndian.Uint16(ip.b[2:4]) }
func (ip IPv4) TTL() uint8          { return ip.b[8] }
func (ip IPv4) Protocol() uint8     { return ip.b[9] }
func (ip IPv4) Checksum() uint16    { return binary.BigEndian.Uint16(ip.b[10:12]) }

func (ip IPv4) Source() netip.Addr {
	return netip.AddrFrom4([4]byte(ip.b[12:16]))
}

func (ip IPv4) Destination() netip.Addr {
	return netip.AddrFrom4([4]byte(ip.b[16:20]))
}

func (ip IPv4) Payload() []byte  { return ip.b[IPv4HeaderSize:] }
func (ip IPv4) PayloadSize() int { return len(ip.b) - IPv4HeaderSize }
