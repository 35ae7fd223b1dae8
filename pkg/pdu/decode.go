package pdu

// Frame holds the views Decode could build. Layers that do not apply to the
// frame are left invalid.
type Frame struct {
	Ethernet EthernetII
	VLAN     VLAN
	IPv4     IPv4
	UDP      UDP
}

// Payload returns the bytes after the innermost decoded header.
func (f Frame) Payload() []byte {
	switch {
	case f.UDP.Valid():
		return f.UDP.Payload()
	case f.IPv4.Valid():
		return f.IPv4.Payload()
	case f.VLAN.Valid():
		return f.VLAN.Payload()
	case f.Ethernet.Valid():
		return f.Ethernet.Payload()
	default:
		return nil
	}
}

// Decode walks Ethernet, an optional 802.1Q tag, IPv4 and UDP over frame.
// IPv4 is only decoded for EtherType IPv4 and kept only when its version
// is 4; UDP is only decoded when the IPv4 protocol is UDP. A header that does
// not fit returns the layers decoded so far and the error.
func Decode(frame []byte) (Frame, error) {
	var f Frame

	eth, err := NewEthernetII(frame)
	if err != nil {
		return f, err
	}
	f.Ethernet = eth

	etherType, payload := eth.Protocol(), eth.Payload()
	if etherType == EtherTypeVLAN {
		vlan, err := NewVLAN(payload)
		if err != nil {
			return f, err
		}
		f.VLAN = vlan
		etherType, payload = vlan.Protocol(), vlan.Payload()
	}

	if etherType != EtherTypeIPv4 {
		return f, nil
	}

	ip, err := NewIPv4(payload)
	if err != nil {
		return f, err
	}
	if ip.Version() != 4 {
		return f, nil
	}
	f.IPv4 = ip

	if ip.Protocol() != ProtocolUDP {
		return f, nil
	}

	udp, err := NewUDP(ip.Payload())
	if err != nil {
		return f, err
	}
	f.UDP = udp

	return f, nil
}
