package bytesource

import (
	"fmt"
	"io"

	"github.com/klauspost/compress/gzip"
	"github.com/ulikunitz/xz"

	"firestige.xyz/pcapmerge/internal/core"
)

// Compression identifies how a file is stored on disk.
type Compression int

const (
	Raw Compression = iota
	Gzip
	XZ
)

func (c Compression) String() string {
	switch c {
	case Raw:
		return "raw"
	case Gzip:
		return "gzip"
	case XZ:
		return "xz"
	default:
		return fmt.Sprintf("compression(%d)", int(c))
	}
}

// CompressionFor selects the compression from the filename suffix:
// ".gz" is gzip, ".xz" is xz, anything else is read raw.
func CompressionFor(path string) Compression {
	switch {
	case hasSuffix(path, ".gz"):
		return Gzip
	case hasSuffix(path, ".xz"):
		return XZ
	default:
		return Raw
	}
}

// newDecoder returns the logical byte stream over the compressed input.
// Concatenated gzip members and concatenated xz streams read as one stream.
func (c Compression) newDecoder(input io.Reader) (io.Reader, error) {
	switch c {
	case Raw:
		return input, nil
	case Gzip:
		zr, err := gzip.NewReader(input)
		if err != nil {
			return nil, err
		}
		zr.Multistream(true)
		return zr, nil
	case XZ:
		// The default reader config is multi-stream.
		return xz.NewReader(input)
	default:
		return nil, fmt.Errorf("%w: %s", core.ErrUnsupportedCompression, c)
	}
}
