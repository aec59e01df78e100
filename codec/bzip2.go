package codec

import (
	"io"

	"github.com/dsnet/compress/bzip2"
)

func bzip2Level(l Level) int {
	switch l {
	case LevelNone, LevelFast:
		return bzip2.BestSpeed
	case LevelBest:
		return bzip2.BestCompression
	default:
		return bzip2.DefaultCompression
	}
}

// bzip2WriteCloser adapts dsnet/compress/bzip2's Writer (which reports its
// own write/flush errors via Close) to io.WriteCloser.
type bzip2WriteCloser struct {
	*bzip2.Writer
}

func bzip2Compressor(w io.Writer, level Level) (io.WriteCloser, error) {
	zw, err := bzip2.NewWriter(w, &bzip2.WriterConfig{Level: bzip2Level(level)})
	if err != nil {
		return nil, err
	}
	return bzip2WriteCloser{zw}, nil
}

func bzip2Decompressor(r io.Reader) (io.Reader, error) {
	return bzip2.NewReader(r, nil)
}
