// Package codec implements the content codecs this module supports
// (store, DEFLATE, BZIP2) plus the running-CRC32 tap shared by the write
// and read pipelines.
package codec

import (
	"fmt"
	"io"

	"github.com/martin-sucha/zipcore/format"
)

// Level is an archive-wide compression-level knob, independent of method.
type Level int

const (
	LevelNone    Level = iota // with DEFLATE as the archive default, entries are stored instead
	LevelFast
	LevelDefault
	LevelBest
)

// Compressor wraps w, returning a WriteCloser whose Close flushes any
// buffered compressed output (but never closes w itself).
type Compressor func(w io.Writer, level Level) (io.WriteCloser, error)

// Decompressor wraps r, returning a Reader that produces uncompressed
// bytes from method-encoded input.
type Decompressor func(r io.Reader) (io.Reader, error)

var compressors = map[uint16]Compressor{
	format.Store:   storeCompressor,
	format.Deflate: deflateCompressor,
	format.BZip2:   bzip2Compressor,
}

var decompressors = map[uint16]Decompressor{
	format.Store:   storeDecompressor,
	format.Deflate: deflateDecompressor,
	format.BZip2:   bzip2Decompressor,
}

// ErrUnsupportedMethod is returned when an entry's compression method
// isn't one this module emits or decodes (LZMA, PPMd, enhanced deflate,
// and anything else beyond store/deflate/bzip2).
type ErrUnsupportedMethod uint16

func (e ErrUnsupportedMethod) Error() string {
	return fmt.Sprintf("zipcore: unsupported compression method %d", uint16(e))
}

// NewCompressor returns a Compressor for method, or ErrUnsupportedMethod.
func NewCompressor(method uint16) (Compressor, error) {
	c, ok := compressors[method]
	if !ok {
		return nil, ErrUnsupportedMethod(method)
	}
	return c, nil
}

// NewDecompressor returns a Decompressor for method, or
// ErrUnsupportedMethod.
func NewDecompressor(method uint16) (Decompressor, error) {
	d, ok := decompressors[method]
	if !ok {
		return nil, ErrUnsupportedMethod(method)
	}
	return d, nil
}
