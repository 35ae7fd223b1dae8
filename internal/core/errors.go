// Package core defines sentinel errors.
package core

import "errors"

// Sentinel errors, wrapped with fmt.Errorf("...: %w") at the failure site.
var (
	// Byte source errors
	ErrUnsupportedCompression = errors.New("pcapmerge: unsupported compression")
	ErrSourceInvalid          = errors.New("pcapmerge: byte source invalid")

	// Capture file errors
	ErrInvalidCapture   = errors.New("pcapmerge: invalid capture file")
	ErrTruncatedCapture = errors.New("pcapmerge: truncated capture file")
	ErrCaptureTooLarge  = errors.New("pcapmerge: captured length exceeds buffer")

	// Packet decoding errors
	ErrPacketTooShort = errors.New("pcapmerge: packet too short")

	// Configuration errors
	ErrConfigInvalid = errors.New("pcapmerge: invalid configuration")
)
