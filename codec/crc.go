package codec

import (
	"hash"
	"hash/crc32"
	"io"
)

// CRCWriter tees writes through a running CRC32 (IEEE) while forwarding
// them to the wrapped writer, used on the write pipeline to compute the
// checksum of the uncompressed bytes as they're produced. The CRC always
// covers the plaintext, before compression and encryption.
type CRCWriter struct {
	w    io.Writer
	hash hash.Hash32
}

func NewCRCWriter(w io.Writer) *CRCWriter {
	return &CRCWriter{w: w, hash: crc32.NewIEEE()}
}

func (c *CRCWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.hash.Write(p[:n])
	return n, err
}

func (c *CRCWriter) Sum32() uint32 { return c.hash.Sum32() }

// CRCReader tees reads through a running CRC32, used on the read pipeline
// to verify the decompressed bytes against the header's recorded value.
type CRCReader struct {
	r    io.Reader
	hash hash.Hash32
}

func NewCRCReader(r io.Reader) *CRCReader {
	return &CRCReader{r: r, hash: crc32.NewIEEE()}
}

func (c *CRCReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.hash.Write(p[:n])
	return n, err
}

func (c *CRCReader) Sum32() uint32 { return c.hash.Sum32() }
