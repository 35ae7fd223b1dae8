// Package filter selects which packets a merge delivers.
package filter

import (
	"fmt"

	"golang.org/x/net/bpf"
)

// Filter reports whether a captured frame should be delivered.
type Filter interface {
	Match(data []byte) bool
}

// Func adapts a plain function to Filter.
type Func func(data []byte) bool

func (f Func) Match(data []byte) bool { return f(data) }

// BPF runs a classic BPF program over each frame in the pure-Go VM.
// A frame matches when the program accepts a non-zero number of bytes.
type BPF struct {
	prog []bpf.Instruction
	vm   *bpf.VM
}

// NewBPF validates prog and prepares a VM for it.
func NewBPF(prog []bpf.Instruction) (*BPF, error) {
	vm, err := bpf.NewVM(prog)
	if err != nil {
		return nil, fmt.Errorf("invalid bpf program: %w", err)
	}
	return &BPF{prog: prog, vm: vm}, nil
}

// NewBPFRaw builds a filter from already assembled instructions, such as the
// output of tcpdump -ddd.
func NewBPFRaw(raw []bpf.RawInstruction) (*BPF, error) {
	prog, ok := bpf.Disassemble(raw)
	if !ok {
		return nil, fmt.Errorf("invalid bpf program: unknown instruction")
	}
	return NewBPF(prog)
}

func (f *BPF) Match(data []byte) bool {
	n, err := f.vm.Run(data)
	return err == nil && n > 0
}

// Instructions returns the program the filter runs.
func (f *BPF) Instructions() []bpf.Instruction { return f.prog }

// Raw assembles the program into its wire encoding.
func (f *BPF) Raw() ([]bpf.RawInstruction, error) {
	return bpf.Assemble(f.prog)
}
