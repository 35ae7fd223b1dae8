// Package pdu provides zero-copy views over fixed protocol headers.
//
// Every view borrows the slice it was built from and Payload returns a
// sub-slice of it, so walking Ethernet, IPv4 and UDP never copies the frame. A view must not
// outlive the buffer it was built over.
package pdu

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"net"

	"firestige.xyz/pcapmerge/internal/core"
)

const (
	EthernetHeaderSize = 14
	VLANTagSize        = 4

	// EtherType values
	EtherTypeIPv4 = 0x0800
	EtherTypeIPv6 = 0x86DD
	EtherTypeVLAN = 0x8100
)

func tooShort(proto string, got, need int) error {
	return fmt.Errorf("%s: %w: %d bytes, header needs %d", proto, core.ErrPacketTooShort, got, need)
}

// EthernetII is a view over an Ethernet II frame header.
type EthernetII struct {
	b []byte
}

// NewEthernetII builds a view over b. It fails when b cannot hold the
// 14-byte header.
func NewEthernetII(b []byte) (EthernetII, error) {
	if len(b) < EthernetHeaderSize {
		return EthernetII{}, tooShort("ethernet", len(b), EthernetHeaderSize)
	}
	return EthernetII{b: b}, nil
}

// Valid reports whether the view was built successfully.
func (e EthernetII) Valid() bool { return e.b != nil }

// Destination returns a copy of the destination hardware address.
func (e EthernetII) Destination() net.HardwareAddr { return bytes.Clone(e.b[0:6]) }

// Source returns a copy of the source hardware address.
func (e EthernetII) Source() net.HardwareAddr { return bytes.Clone(e.b[6:12]) }

// Protocol returns the EtherType in host byte order.
func (e EthernetII) Protocol() uint16 { return binary.BigEndian.Uint16(e.b[12:14]) }

func (e EthernetII) Payload() []byte  { return e.b[EthernetHeaderSize:] }
func (e EthernetII) PayloadSize() int { return len(e.b) - EthernetHeaderSize }

// VLAN is a view over a single 802.1Q tag that follows an Ethernet header
// whose EtherType is EtherTypeVLAN.
type VLAN struct {
	b []byte
}

// NewVLAN builds a view over b. It fails when b cannot hold the 4-byte tag.
func NewVLAN(b []byte) (VLAN, error) {
	if len(b) < VLANTagSize {
		return VLAN{}, tooShort("802.1q", len(b), VLANTagSize)
	}
	return VLAN{b: b}, nil
}

func (v VLAN) Valid() bool { return v.b != nil }

// Priority returns the PCP bits.
func (v VLAN) Priority() uint8 { return v.b[0] >> 5 }

// ID returns the 12-bit VLAN identifier.
func (v VLAN) ID() uint16 { return binary.BigEndian.Uint16(v.b[0:2]) & 0x0FFF }

// Protocol returns the EtherType of the tagged payload.
func (v VLAN) Protocol() uint16 { return binary.BigEndian.Uint16(v.b[2:4]) }

func (v VLAN) Payload() []byte  { return v.b[VLANTagSize:] }
func (v VLAN) PayloadSize() int { return len(v.b) - VLANTagSize }

// SkipVLAN returns the payload of eth past one 802.1Q tag together with the
// inner EtherType. Untagged frames are returned unchanged.
func SkipVLAN(eth EthernetII) (payload []byte, etherType uint16, err error) {
	if eth.Protocol() != EtherTypeVLAN {
		return eth.Payload(), eth.Protocol(), nil
	}
	vlan, err := NewVLAN(eth.Payload())
	if err != nil {
		return nil, 0, err
	}
	return vlan.Payload(), vlan.Protocol(), nil
}
