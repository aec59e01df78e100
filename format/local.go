package format

import (
	"errors"
	"io"
)

// ErrLongName is returned when a name exceeds the 16-bit length field.
var ErrLongName = errors.New("zipcore: name too long")

// ErrLongExtra is returned when an extra-field block exceeds the 16-bit
// length field.
var ErrLongExtra = errors.New("zipcore: extra field too long")

// ErrLongComment is returned when a comment exceeds the 16-bit length field.
var ErrLongComment = errors.New("zipcore: comment too long")

// LocalHeader is the decoded form of a local file header (LFH), the record
// that immediately precedes each entry's data.
type LocalHeader struct {
	ReaderVersion    uint16
	Flags            uint16
	Method           uint16
	ModDate          uint16
	ModTime          uint16
	CRC32            uint32
	CompressedSize   uint64
	UncompressedSize uint64
	Name             string
	Extra            []byte
}

// NeedsZip64 reports whether this entry's sizes require a ZIP64 extra
// field. Offsets are a central-directory concern, not a local-header one.
func (h *LocalHeader) NeedsZip64() bool {
	return h.CompressedSize >= Uint32Max || h.UncompressedSize >= Uint32Max
}

// Encode writes the local file header to w. When withDataDescriptor is
// true, the CRC32/size fields are written as zero and the real values
// follow in a trailing DataDescriptor instead. When false, the header
// carries real values, promoting itself to ZIP64 (appending a 0x0001
// extra field) if needed.
func (h *LocalHeader) Encode(w io.Writer, withDataDescriptor bool) error {
	if len(h.Name) > Uint16Max {
		return ErrLongName
	}
	extra := h.Extra
	if !withDataDescriptor && h.NeedsZip64() {
		h.ReaderVersion = VersionZip64
		z := BuildZip64Extra(Zip64Fields{UncompressedSize: h.UncompressedSize, CompressedSize: h.CompressedSize}, true, true, false, false)
		extra = append(append([]byte{}, extra...), BuildFields([]Field{{Tag: ExtraZip64, Payload: z}})...)
	}
	if len(extra) > Uint16Max {
		return ErrLongExtra
	}

	buf := make([]byte, LenLocalFileHeader)
	b := writeBuf(buf)
	b.uint32(SigLocalFileHeader)
	b.uint16(h.ReaderVersion)
	b.uint16(h.Flags)
	b.uint16(h.Method)
	b.uint16(h.ModTime)
	b.uint16(h.ModDate)
	if withDataDescriptor {
		b.uint32(0)
		b.uint32(0)
		b.uint32(0)
	} else if h.NeedsZip64() {
		b.uint32(h.CRC32)
		b.uint32(Uint32Max)
		b.uint32(Uint32Max)
	} else {
		b.uint32(h.CRC32)
		b.uint32(uint32(h.CompressedSize))
		b.uint32(uint32(h.UncompressedSize))
	}
	b.uint16(uint16(len(h.Name)))
	b.uint16(uint16(len(extra)))
	if _, err := w.Write(buf); err != nil {
		return err
	}
	if _, err := io.WriteString(w, h.Name); err != nil {
		return err
	}
	_, err := w.Write(extra)
	return err
}

// DecodeLocalHeader reads a local file header from r, starting at its
// signature: the signature is read and validated here as part of the fixed
// 30-byte prefix, so callers need not consume it first.
func DecodeLocalHeader(r io.Reader) (*LocalHeader, error) {
	buf := make([]byte, LenLocalFileHeader)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	b := readBuf(buf)
	sig := b.uint32()
	if sig != SigLocalFileHeader {
		return nil, ErrNotLocalHeader
	}
	h := &LocalHeader{}
	h.ReaderVersion = b.uint16()
	h.Flags = b.uint16()
	h.Method = b.uint16()
	h.ModTime = b.uint16()
	h.ModDate = b.uint16()
	h.CRC32 = b.uint32()
	compressed := uint64(b.uint32())
	uncompressed := uint64(b.uint32())
	nameLen := int(b.uint16())
	extraLen := int(b.uint16())

	name := make([]byte, nameLen)
	if _, err := io.ReadFull(r, name); err != nil {
		return nil, err
	}
	extra := make([]byte, extraLen)
	if _, err := io.ReadFull(r, extra); err != nil {
		return nil, err
	}
	h.Name = string(name)
	h.Extra = extra
	h.CompressedSize = compressed
	h.UncompressedSize = uncompressed

	if compressed == Uint32Max || uncompressed == Uint32Max {
		if z, ok := FindField(ParseFields(extra), ExtraZip64); ok {
			zf, err := ParseZip64Extra(z, uncompressed == Uint32Max, compressed == Uint32Max, false, false)
			if err == nil {
				if uncompressed == Uint32Max {
					h.UncompressedSize = zf.UncompressedSize
				}
				if compressed == Uint32Max {
					h.CompressedSize = zf.CompressedSize
				}
			}
		}
	}
	return h, nil
}

// ErrNotLocalHeader is returned by DecodeLocalHeader when the signature
// doesn't match; callers scanning for resync points rely on being able to
// distinguish this from an I/O error.
var ErrNotLocalHeader = errors.New("zipcore: not a local file header")

// DataDescriptor is the optional trailing record written when GP bit 3 is
// set (non-seekable output).
type DataDescriptor struct {
	CRC32            uint32
	CompressedSize   uint64
	UncompressedSize uint64
	Zip64            bool
	// WithSignature controls whether the de-facto 0x08074b50 signature is
	// emitted; nearly every modern reader (and OS X Finder, per the
	// original APPNOTE comment this carries forward) requires it.
	WithSignature bool
}

// Encode writes the data descriptor.
func (d *DataDescriptor) Encode(w io.Writer) error {
	size := LenDataDescriptor
	if d.Zip64 {
		size = LenDataDescriptor64
	}
	if !d.WithSignature {
		size -= 4
	}
	buf := make([]byte, size)
	b := writeBuf(buf)
	if d.WithSignature {
		b.uint32(SigDataDescriptor)
	}
	b.uint32(d.CRC32)
	if d.Zip64 {
		b.uint64(d.CompressedSize)
		b.uint64(d.UncompressedSize)
	} else {
		b.uint32(uint32(d.CompressedSize))
		b.uint32(uint32(d.UncompressedSize))
	}
	_, err := w.Write(buf)
	return err
}

// DecodeDataDescriptor reads a data descriptor from r. zip64 must be known
// in advance (from the entry's size fields having sentineled in the local
// header) since the record carries no independent length marker of its
// own; readers recognize the optional designed signature by peeking the
// first 4 bytes under the assumption that real CRC32 values essentially
// never collide with it. peek4, if non-nil, must be exactly those 4
// already-consumed bytes.
func DecodeDataDescriptor(r io.Reader, zip64 bool, peek4 []byte) (*DataDescriptor, error) {
	d := &DataDescriptor{Zip64: zip64}

	sizeFieldsLen := 8
	if zip64 {
		sizeFieldsLen = 16
	}

	first4 := make([]byte, 4)
	copy(first4, peek4)
	if len(peek4) < 4 {
		if _, err := io.ReadFull(r, first4[len(peek4):]); err != nil {
			return nil, err
		}
	}

	rest := make([]byte, 4+sizeFieldsLen)
	if readBuf(first4).peekUint32() == SigDataDescriptor {
		d.WithSignature = true
		if _, err := io.ReadFull(r, rest); err != nil {
			return nil, err
		}
	} else {
		copy(rest, first4)
		if _, err := io.ReadFull(r, rest[4:]); err != nil {
			return nil, err
		}
	}

	b := readBuf(rest)
	d.CRC32 = b.uint32()
	if zip64 {
		d.CompressedSize = b.uint64()
		d.UncompressedSize = b.uint64()
	} else {
		d.CompressedSize = uint64(b.uint32())
		d.UncompressedSize = uint64(b.uint32())
	}
	return d, nil
}

func (b readBuf) peekUint32() uint32 {
	if len(b) < 4 {
		return 0
	}
	cp := b
	return cp.uint32()
}
