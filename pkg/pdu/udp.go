package pdu

import "encoding/binary"

const UDPHeaderSize = 8

// UDP is a view over a UDP header.
type UDP struct {
	b []byte
}

// NewUDP builds a view over b. It fails when b cannot hold 8 bytes.
func NewUDP(b []byte) (UDP, error) {
	if len(b) < UDPHeaderSize {
		return UDP{}, tooShort("udp", len(b), UDPHeaderSize)
	}
	return UDP{b: b}, nil
}

func (u UDP) Valid() bool { return u.b != nil }

func (u UDP) Source() uint16      { return binary.BigEndian.Uint16(u.b[0:2]) }
func (u UDP) Destination() uint16 { return binary.BigEndian.Uint16(u.b[2:4]) }

// Length returns the datagram length field, header included.
func (u UDP) Length() uint16   { return binary.BigEndian.Uint16(u.b[4:6]) }
func (u UDP) Checksum() uint16 { return binary.BigEndian.Uint16(u.b[6:8]) }

func (u UDP) Payload() []byte  { return u.b[UDPHeaderSize:] }
func (u UDP) PayloadSize() int { return len(u.b) - UDPHeaderSize }
