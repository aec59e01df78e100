package format

import "io"

// CentralDirHeader is the decoded form of one central directory header
// (CDH) entry.
type CentralDirHeader struct {
	CreatorVersion    uint16
	ReaderVersion     uint16
	Flags             uint16
	Method            uint16
	ModDate           uint16
	ModTime           uint16
	CRC32             uint32
	CompressedSize    uint64
	UncompressedSize  uint64
	Disk              uint32
	InternalAttrs     uint16
	ExternalAttrs     uint32
	LocalHeaderOffset uint64
	Name              string
	Extra             []byte
	Comment           string
}

// zip64Need reports which classic fields must be sentineled to 0xFFFF../
// 0xFFFFFFFF and backed by a ZIP64 extra field.
func (h *CentralDirHeader) zip64Need() (uncompressed, compressed, offset, disk bool) {
	uncompressed = h.UncompressedSize >= Uint32Max
	compressed = h.CompressedSize >= Uint32Max
	offset = h.LocalHeaderOffset >= Uint32Max
	disk = h.Disk >= Uint16Max
	return
}

// Encode appends the encoded header (fixed portion + name + extra +
// comment) to the writer. When any field requires ZIP64, a 0x0001 extra
// field is appended to a copy of h.Extra; h.Extra itself is left
// untouched since CentralDirHeader values may be encoded more than once.
func (h *CentralDirHeader) Encode(w io.Writer) error {
	if len(h.Name) > Uint16Max {
		return ErrLongName
	}
	if len(h.Comment) > Uint16Max {
		return ErrLongComment
	}

	wantU, wantC, wantO, wantD := h.zip64Need()
	extra := h.Extra
	if wantU || wantC || wantO || wantD {
		z := BuildZip64Extra(Zip64Fields{
			UncompressedSize:  h.UncompressedSize,
			CompressedSize:    h.CompressedSize,
			LocalHeaderOffset: h.LocalHeaderOffset,
			Disk:              h.Disk,
		}, wantU, wantC, wantO, wantD)
		extra = append(append([]byte{}, extra...), BuildFields([]Field{{Tag: ExtraZip64, Payload: z}})...)
	}
	if len(extra) > Uint16Max {
		return ErrLongExtra
	}

	buf := make([]byte, LenCentralDirHeader)
	b := writeBuf(buf)
	b.uint32(SigCentralDirHeader)
	b.uint16(h.CreatorVersion)
	b.uint16(h.ReaderVersion)
	b.uint16(h.Flags)
	b.uint16(h.Method)
	b.uint16(h.ModTime)
	b.uint16(h.ModDate)
	b.uint32(h.CRC32)
	if wantC {
		b.uint32(Uint32Max)
	} else {
		b.uint32(uint32(h.CompressedSize))
	}
	if wantU {
		b.uint32(Uint32Max)
	} else {
		b.uint32(uint32(h.UncompressedSize))
	}
	b.uint16(uint16(len(h.Name)))
	b.uint16(uint16(len(extra)))
	b.uint16(uint16(len(h.Comment)))
	if wantD {
		b.uint16(Uint16Max)
	} else {
		b.uint16(uint16(h.Disk))
	}
	b.uint16(h.InternalAttrs)
	b.uint32(h.ExternalAttrs)
	if wantO {
		b.uint32(Uint32Max)
	} else {
		b.uint32(uint32(h.LocalHeaderOffset))
	}
	if _, err := w.Write(buf); err != nil {
		return err
	}
	if _, err := io.WriteString(w, h.Name); err != nil {
		return err
	}
	if _, err := w.Write(extra); err != nil {
		return err
	}
	_, err := io.WriteString(w, h.Comment)
	return err
}

// DecodeCentralDirHeader reads one CDH, including its name/extra/comment,
// from r, starting at its 4-byte signature, which is read and checked here:
// a record that is not a CDH yields ErrNotCentralHeader.
func DecodeCentralDirHeader(r io.Reader) (*CentralDirHeader, error) {
	buf := make([]byte, LenCentralDirHeader)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	b := readBuf(buf)
	sig := b.uint32()
	if sig != SigCentralDirHeader {
		return nil, ErrNotCentralHeader
	}
	h := &CentralDirHeader{}
	h.CreatorVersion = b.uint16()
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
	commentLen := int(b.uint16())
	disk := uint32(b.uint16())
	h.InternalAttrs = b.uint16()
	h.ExternalAttrs = b.uint32()
	offset := uint64(b.uint32())

	name := make([]byte, nameLen)
	if _, err := io.ReadFull(r, name); err != nil {
		return nil, err
	}
	extra := make([]byte, extraLen)
	if _, err := io.ReadFull(r, extra); err != nil {
		return nil, err
	}
	comment := make([]byte, commentLen)
	if _, err := io.ReadFull(r, comment); err != nil {
		return nil, err
	}
	h.Name = string(name)
	h.Extra = extra
	h.Comment = string(comment)
	h.CompressedSize = compressed
	h.UncompressedSize = uncompressed
	h.Disk = disk
	h.LocalHeaderOffset = offset

	// Only the fields whose classic value is the sentinel are taken from the
	// ZIP64 extra; a classic field holding a real value is kept as is.
	if z, ok := FindField(ParseFields(extra), ExtraZip64); ok {
		zf, err := ParseZip64Extra(z,
			uncompressed == Uint32Max,
			compressed == Uint32Max,
			offset == Uint32Max,
			disk == Uint16Max,
		)
		if err == nil {
			if uncompressed == Uint32Max {
				h.UncompressedSize = zf.UncompressedSize
			}
			if compressed == Uint32Max {
				h.CompressedSize = zf.CompressedSize
			}
			if offset == Uint32Max {
				h.LocalHeaderOffset = zf.LocalHeaderOffset
			}
			if disk == Uint16Max {
				h.Disk = zf.Disk
			}
		}
	}
	return h, nil
}

// ErrNotCentralHeader is returned when a caller asks DecodeCentralDirHeader
// to decode a record whose signature isn't a CDH; seen when directory
// parsing reaches the EOCD.
var ErrNotCentralHeader = errorString("zipcore: not a central directory header")

type errorString string

func (e errorString) Error() string { return string(e) }

// IsDirectoryEntry reports whether h describes a directory: name ends
// with '/', OR the external-attributes directory bit is set, OR both
// sizes are zero and method is Store.
func (h *CentralDirHeader) IsDirectoryEntry() bool {
	if len(h.Name) > 0 && h.Name[len(h.Name)-1] == '/' {
		return true
	}
	if h.CreatorVersion>>8 == CreatorUnix || h.CreatorVersion>>8 == CreatorMacOSX {
		if h.ExternalAttrs>>16&0o40000 != 0 { // S_IFDIR
			return true
		}
	}
	if h.ExternalAttrs&0x10 != 0 { // FAT directory bit
		return true
	}
	return h.CompressedSize == 0 && h.UncompressedSize == 0 && h.Method == Store
}
