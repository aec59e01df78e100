package codec

import (
	"io"

	"github.com/klauspost/compress/flate"
)

// deflateLevel maps an archive-wide Level to the flate package's numeric
// levels. LevelNone is handled one layer up (forces method=Store), but is
// mapped here too so a caller that reaches this codec directly for some
// other reason still gets a sane level instead of a panic.
func deflateLevel(l Level) int {
	switch l {
	case LevelNone:
		return flate.NoCompression
	case LevelFast:
		return flate.BestSpeed
	case LevelBest:
		return flate.BestCompression
	default:
		return flate.DefaultCompression
	}
}

func deflateCompressor(w io.Writer, level Level) (io.WriteCloser, error) {
	return flate.NewWriter(w, deflateLevel(level))
}

func deflateDecompressor(r io.Reader) (io.Reader, error) {
	return flate.NewReader(r), nil
}
