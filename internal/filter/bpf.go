package filter

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"golang.org/x/net/bpf"

	"firestige.xyz/pcapmerge/pkg/pdu"
)

const acceptAll = 0x40000

// UDPPort returns a filter equivalent to "udp port N" over IPv4, for frames
// with or without a single 802.1Q tag. Non-first fragments never match.
func UDPPort(port uint16) (*BPF, error) {
	prog := []bpf.Instruction{
		bpf.LoadAbsolute{Off: 12, Size: 2},
		bpf.JumpIf{Cond: bpf.JumpEqual, Val: pdu.EtherTypeVLAN, SkipTrue: 12},
	}
	prog = append(prog, udpPortBlock(pdu.EthernetHeaderSize, port)...)
	prog = append(prog, bpf.LoadAbsolute{Off: pdu.EthernetHeaderSize + 2, Size: 2})
	prog = append(prog, udpPortBlock(pdu.EthernetHeaderSize+pdu.VLANTagSize, port)...)
	return NewBPF(prog)
}

// udpPortBlock expects the EtherType in A and an IPv4 header at off. It always
// returns and never falls through.
func udpPortBlock(off uint32, port uint16) []bpf.Instruction {
	p := uint32(port)
	return []bpf.Instruction{
		bpf.JumpIf{Cond: bpf.JumpNotEqual, Val: pdu.EtherTypeIPv4, SkipTrue: 10},
		bpf.LoadAbsolute{Off: off + 9, Size: 1},
		bpf.JumpIf{Cond: bpf.JumpNotEqual, Val: pdu.ProtocolUDP, SkipTrue: 8},
		bpf.LoadAbsolute{Off: off + 6, Size: 2},
		bpf.JumpIf{Cond: bpf.JumpBitsSet, Val: 0x1fff, SkipTrue: 6},
		bpf.LoadMemShift{Off: off},
		bpf.LoadIndirect{Off: off, Size: 2},
		bpf.JumpIf{Cond: bpf.JumpEqual, Val: p, SkipTrue: 2},
		bpf.LoadIndirect{Off: off + 2, Size: 2},
		bpf.JumpIf{Cond: bpf.JumpNotEqual, Val: p, SkipTrue: 1},
		bpf.RetConstant{Val: acceptAll},
		bpf.RetConstant{Val: 0},
	}
}

// ParseRaw reads a program in the decimal format printed by tcpdump -ddd:
// an instruction count followed by one "code jt jf k" line per instruction.
func ParseRaw(r io.Reader) ([]bpf.RawInstruction, error) {
	sc := bufio.NewScanner(r)
	var (
		raw   []bpf.RawInstruction
		count = -1
		line  int
	)
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		if count < 0 {
			n, err := strconv.Atoi(text)
			if err != nil || n <= 0 {
				return nil, fmt.Errorf("line %d: bad instruction count %q", line, text)
			}
			count = n
			raw = make([]bpf.RawInstruction, 0, n)
			continue
		}
		var ins bpf.RawInstruction
		if _, err := fmt.Sscan(text, &ins.Op, &ins.Jt, &ins.Jf, &ins.K); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		raw = append(raw, ins)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if count < 0 {
		return nil, fmt.Errorf("empty bpf program")
	}
	if len(raw) != count {
		return nil, fmt.Errorf("bpf program declares %d instructions, found %d", count, len(raw))
	}
	return raw, nil
}
