package cmd

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/klauspost/compress/gzip"
	"github.com/ulikunitz/xz"

	"firestige.xyz/pcapmerge/pkg/bytesource"
)

// outputFile is a buffered file, compressed according to its name the same
// way inputs are decompressed.
type outputFile struct {
	file *os.File
	buf  *bufio.Writer
	enc  io.WriteCloser
	w    io.Writer
}

func createOutput(path string, chunkSize int) (*outputFile, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create output: %w", err)
	}

	o := &outputFile{file: f, buf: bufio.NewWriterSize(f, chunkSize)}
	o.w = o.buf

	switch c := bytesource.CompressionFor(path); c {
	case bytesource.Gzip:
		o.enc = gzip.NewWriter(o.buf)
	case bytesource.XZ:
		o.enc, err = xz.NewWriter(o.buf)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to create %s writer: %w", c, err)
		}
	}
	if o.enc != nil {
		o.w = o.enc
	}
	return o, nil
}

func (o *outputFile) Write(p []byte) (int, error) { return o.w.Write(p) }

func (o *outputFile) Close() error {
	var errs []error
	if o.enc != nil {
		errs = append(errs, o.enc.Close())
	}
	errs = append(errs, o.buf.Flush(), o.file.Close())
	return errors.Join(errs...)
}
