package entry

import (
	"io"

	"github.com/martin-sucha/zipcore/cipher"
	"github.com/martin-sucha/zipcore/codec"
	"github.com/martin-sucha/zipcore/format"
)

// aesStrength maps a cipher.Kind to the AES strength byte the cipher and
// format packages use (1 = AES-128, 3 = AES-256; 2/AES-192 has no WinZip
// wire representation and is never produced).
func aesStrength(kind cipher.Kind) byte {
	switch kind {
	case cipher.WinZipAES128:
		return 1
	case cipher.WinZipAES256:
		return 3
	default:
		return 0
	}
}

// countWriter tallies bytes written, used to learn an entry's on-wire
// compressed size (which, for encrypted entries, includes the cipher's
// header and trailer overhead per the classic PKZIP compressed-size
// convention) as it streams out.
type countWriter struct {
	w     io.Writer
	Count int64
}

func (c *countWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.Count += int64(n)
	return n, err
}

// WritePipeline is the write-direction assembly: source -> CRC-tap ->
// compressor -> cipher -> archive-stream. Construct with
// NewWritePipeline, stream plaintext through Write, and call Close to
// flush the compressor and emit any cipher trailer (the AES HMAC).
type WritePipeline struct {
	crc         *codec.CRCWriter
	compressor  io.WriteCloser
	enc         cipher.Encrypter // nil when Cipher == cipher.None
	count       *countWriter
	uncompressed int64
}

// NewWritePipeline builds the write pipeline for one entry. crc32Hint is
// the 32-bit value PKZIP-weak's encryption header check byte is taken from
// (its high byte), needed up front: the entry's expected CRC32 when known,
// or, as Save passes for entries written with a data descriptor, the
// "strong header" hint built from the entry's DOS time. The check byte is
// only the traditional cipher's early-reject heuristic, never correctness:
// the CRC-tap on read still independently verifies content.
func NewWritePipeline(dst io.Writer, method uint16, level codec.Level, kind cipher.Kind, password string, crc32Hint uint32) (*WritePipeline, error) {
	cw := &countWriter{w: dst}

	var enc cipher.Encrypter
	var err error
	var inner io.Writer = cw
	switch kind {
	case cipher.None:
	case cipher.PKZIPWeak:
		enc, err = cipher.NewWeakEncrypter(cw, password, crc32Hint)
	case cipher.WinZipAES128, cipher.WinZipAES256:
		enc, err = cipher.NewAESEncrypter(cw, password, aesStrength(kind))
	}
	if err != nil {
		return nil, err
	}
	if enc != nil {
		inner = enc
	}

	compFn, err := codec.NewCompressor(method)
	if err != nil {
		return nil, err
	}
	comp, err := compFn(inner, level)
	if err != nil {
		return nil, err
	}

	return &WritePipeline{
		crc:        codec.NewCRCWriter(comp),
		compressor: comp,
		enc:        enc,
		count:      cw,
	}, nil
}

func (p *WritePipeline) Write(b []byte) (int, error) {
	n, err := p.crc.Write(b)
	p.uncompressed += int64(n)
	return n, err
}

// Close flushes the compressor and, for an encrypted entry, appends the
// cipher trailer (nothing for PKZIP-weak, the 10-byte HMAC for AES).
func (p *WritePipeline) Close() error {
	if err := p.compressor.Close(); err != nil {
		return err
	}
	if p.enc != nil {
		return p.enc.Close()
	}
	return nil
}

// CRC32 returns the running CRC32 of the plaintext written so far.
func (p *WritePipeline) CRC32() uint32 { return p.crc.Sum32() }

// UncompressedSize returns the number of plaintext bytes written so far.
func (p *WritePipeline) UncompressedSize() int64 { return p.uncompressed }

// CompressedSize returns the number of bytes emitted downstream so far,
// including any cipher header/trailer overhead - the value the LFH/CDH
// "compressed size" field records for an encrypted entry.
func (p *WritePipeline) CompressedSize() int64 { return p.count.Count }

// ReadPipeline is the read-direction assembly: archive-stream -> cipher ->
// decompressor -> CRC-tap -> consumer. Construct with NewReadPipeline,
// drain with Read/io.Copy, then call Close (which runs the AES HMAC
// verification, if applicable) before comparing CRC32() to the header's
// recorded value.
type ReadPipeline struct {
	crc *codec.CRCReader
	dec cipher.Decrypter // nil when Cipher == cipher.None
}

// cipherOverhead returns the header and trailer byte counts a cipher kind
// adds around the raw ciphertext.
func cipherOverhead(kind cipher.Kind) (header, trailer int) {
	switch kind {
	case cipher.PKZIPWeak:
		return 12, 0
	case cipher.WinZipAES128:
		return format.AESSaltLen(1) + 2, 10
	case cipher.WinZipAES256:
		return format.AESSaltLen(3) + 2, 10
	default:
		return 0, 0
	}
}

// NewReadPipeline builds the read pipeline for one entry. src must be
// positioned at the first byte following the local header, and
// compressedSize is the on-wire compressed-size field (including cipher
// overhead) from the local/central header - it bounds how much of src
// this pipeline is allowed to consume. checkByte is the PKZIP-weak
// "strong header" check byte (high byte of CRC32, or of the DOS time when
// GP bit 3 is set); ignored for other cipher kinds.
func NewReadPipeline(src io.Reader, method uint16, kind cipher.Kind, password string, compressedSize int64, checkByte byte) (*ReadPipeline, error) {
	lr := io.LimitReader(src, compressedSize)
	header, trailer := cipherOverhead(kind)
	cipherLen := compressedSize - int64(header) - int64(trailer)

	var body io.Reader
	var dec cipher.Decrypter
	var err error
	switch kind {
	case cipher.None:
		body = lr
	case cipher.PKZIPWeak:
		dec, err = cipher.NewWeakDecrypter(lr, password, checkByte)
		body = dec
	case cipher.WinZipAES128:
		dec, err = cipher.NewAESDecrypter(lr, password, 1, cipherLen)
		body = dec
	case cipher.WinZipAES256:
		dec, err = cipher.NewAESDecrypter(lr, password, 3, cipherLen)
		body = dec
	}
	if err != nil {
		return nil, err
	}

	decompFn, err := codec.NewDecompressor(method)
	if err != nil {
		return nil, err
	}
	decompressed, err := decompFn(body)
	if err != nil {
		return nil, err
	}

	return &ReadPipeline{crc: codec.NewCRCReader(decompressed), dec: dec}, nil
}

func (p *ReadPipeline) Read(b []byte) (int, error) { return p.crc.Read(b) }

// Close runs the cipher's final verification (the AES HMAC check; a
// no-op for PKZIP-weak and for unencrypted entries).
func (p *ReadPipeline) Close() error {
	if p.dec != nil {
		return p.dec.Close()
	}
	return nil
}

// CRC32 returns the running CRC32 of the plaintext read so far.
func (p *ReadPipeline) CRC32() uint32 { return p.crc.Sum32() }

// CheckPassword verifies a password against an already-positioned entry
// stream without decompressing or returning any plaintext.
func CheckPassword(src io.Reader, kind cipher.Kind, password string, compressedSize int64, checkByte byte) (bool, error) {
	if kind == cipher.None {
		return true, nil
	}
	lr := io.LimitReader(src, compressedSize)
	header, trailer := cipherOverhead(kind)
	cipherLen := compressedSize - int64(header) - int64(trailer)
	return cipher.CheckPassword(func() (cipher.Decrypter, error) {
		switch kind {
		case cipher.PKZIPWeak:
			return cipher.NewWeakDecrypter(lr, password, checkByte)
		case cipher.WinZipAES128:
			return cipher.NewAESDecrypter(lr, password, 1, cipherLen)
		case cipher.WinZipAES256:
			return cipher.NewAESDecrypter(lr, password, 3, cipherLen)
		default:
			return nil, nil
		}
	})
}
