package format

import (
	"encoding/binary"
	"errors"
	"time"
)

// ErrTruncatedExtra is returned when an extra-field payload is shorter than
// its own declared length, or a fixed-shape extra field (ZIP64, NTFS, AES)
// is shorter than the minimum that field requires.
var ErrTruncatedExtra = errors.New("zipcore: truncated extra field")

// Field is one (tag, payload) tuple from a local/central extra-field block.
type Field struct {
	Tag     uint16
	Payload []byte
}

// ParseFields splits a raw extra-field block into its (tag, len, payload)
// tuples. It has to tolerate producers that pad or truncate; a tuple
// whose declared length runs past the end of b stops parsing rather than
// panicking, returning the fields seen so far.
func ParseFields(b []byte) []Field {
	var fields []Field
	for len(b) >= 4 {
		rb := readBuf(b)
		tag := rb.uint16()
		size := int(rb.uint16())
		if size > len(rb) {
			break
		}
		fields = append(fields, Field{Tag: tag, Payload: rb.take(size)})
		b = rb
	}
	return fields
}

// BuildFields serializes fields back into a raw extra-field block.
func BuildFields(fields []Field) []byte {
	size := 0
	for _, f := range fields {
		size += 4 + len(f.Payload)
	}
	out := make([]byte, size)
	b := writeBuf(out)
	for _, f := range fields {
		b.uint16(f.Tag)
		b.uint16(uint16(len(f.Payload)))
		b.bytes(f.Payload)
	}
	return out
}

// FindField returns the payload of the first field with the given tag.
func FindField(fields []Field, tag uint16) ([]byte, bool) {
	for _, f := range fields {
		if f.Tag == tag {
			return f.Payload, true
		}
	}
	return nil, false
}

// Zip64Fields holds whichever of the four ZIP64 values a header sentineled
// as "see ZIP64 extra". Decoders take from the ZIP64 extra only the fields
// whose classic value is the sentinel; a classic field holding a real value
// is kept as is even when a ZIP64 extra is present.
type Zip64Fields struct {
	UncompressedSize  uint64
	CompressedSize    uint64
	LocalHeaderOffset uint64
	Disk              uint32
}

// BuildZip64Extra serializes only the fields the caller flags as present,
// in the fixed APPNOTE order: uncompressed size, compressed size, local
// header offset, disk number.
func BuildZip64Extra(f Zip64Fields, wantUncompressed, wantCompressed, wantOffset, wantDisk bool) []byte {
	size := 0
	if wantUncompressed {
		size += 8
	}
	if wantCompressed {
		size += 8
	}
	if wantOffset {
		size += 8
	}
	if wantDisk {
		size += 4
	}
	buf := make([]byte, size)
	b := writeBuf(buf)
	if wantUncompressed {
		b.uint64(f.UncompressedSize)
	}
	if wantCompressed {
		b.uint64(f.CompressedSize)
	}
	if wantOffset {
		b.uint64(f.LocalHeaderOffset)
	}
	if wantDisk {
		b.uint32(f.Disk)
	}
	return buf
}

// ParseZip64Extra decodes a ZIP64 extra payload, reading only the fields
// flagged present, in APPNOTE order. Producers differ in which subset they
// emit, so the caller must tell us which ones the classic header
// sentineled.
func ParseZip64Extra(payload []byte, wantUncompressed, wantCompressed, wantOffset, wantDisk bool) (Zip64Fields, error) {
	var f Zip64Fields
	b := readBuf(payload)
	if wantUncompressed {
		if len(b) < 8 {
			return f, ErrTruncatedExtra
		}
		f.UncompressedSize = b.uint64()
	}
	if wantCompressed {
		if len(b) < 8 {
			return f, ErrTruncatedExtra
		}
		f.CompressedSize = b.uint64()
	}
	if wantOffset {
		if len(b) < 8 {
			return f, ErrTruncatedExtra
		}
		f.LocalHeaderOffset = b.uint64()
	}
	if wantDisk {
		if len(b) < 4 {
			return f, ErrTruncatedExtra
		}
		f.Disk = b.uint32()
	}
	return f, nil
}

const ntfsEpochOffsetTicks = 116444736000000000 // 1601-01-01 -> 1970-01-01, in 100ns ticks

// BuildNTFSTimeExtra encodes the 0x000a extra field carrying 64-bit NTFS
// FILETIME values (100ns ticks since 1601-01-01) for mtime/atime/ctime.
func BuildNTFSTimeExtra(mtime, atime, ctime time.Time) []byte {
	buf := make([]byte, 32)
	b := writeBuf(buf)
	b.uint32(0) // reserved
	b.uint16(1) // attribute tag 1: file times
	b.uint16(24)
	b.uint64(timeToNTFSTicks(mtime))
	b.uint64(timeToNTFSTicks(atime))
	b.uint64(timeToNTFSTicks(ctime))
	return buf
}

// ParseNTFSTimeExtra decodes the 0x000a payload, ignoring any attribute
// tags this module doesn't recognize (only tag 1 "file times" is defined
// by the format today, but future tags may be appended after it).
func ParseNTFSTimeExtra(payload []byte) (mtime, atime, ctime time.Time, ok bool) {
	if len(payload) < 4 {
		return
	}
	b := readBuf(payload[4:])
	for len(b) >= 4 {
		tag := b.uint16()
		size := int(b.uint16())
		if size > len(b) {
			return
		}
		sub := b.take(size)
		if tag == 1 && size >= 24 {
			sb := readBuf(sub)
			mtime = ntfsTicksToTime(sb.uint64())
			atime = ntfsTicksToTime(sb.uint64())
			ctime = ntfsTicksToTime(sb.uint64())
			ok = true
			return
		}
	}
	return
}

func timeToNTFSTicks(t time.Time) uint64 {
	if t.IsZero() {
		return 0
	}
	unixTicks := t.UnixNano() / 100
	return uint64(unixTicks + ntfsEpochOffsetTicks)
}

func ntfsTicksToTime(ticks uint64) time.Time {
	if ticks == 0 {
		return time.Time{}
	}
	unixTicks := int64(ticks) - ntfsEpochOffsetTicks
	return time.Unix(0, unixTicks*100).UTC()
}

// BuildUnixTimeExtra encodes the 0x5455 "extended timestamp" extra field.
// forCentral trims the payload to the modification time only, the
// conventional shape for the central-directory copy of this field. A zero
// mtime is left out (flag bit 0 clear).
func BuildUnixTimeExtra(mtime, atime, ctime time.Time, hasAccess, hasCreate, forCentral bool) []byte {
	hasMod := !mtime.IsZero()
	var flags byte
	if hasMod {
		flags |= 1 // bit 0: modtime present
	}
	if hasAccess {
		flags |= 1 << 1
	}
	if hasCreate {
		flags |= 1 << 2
	}
	n := 1
	if hasMod {
		n += 4
	}
	if !forCentral {
		if hasAccess {
			n += 4
		}
		if hasCreate {
			n += 4
		}
	}
	buf := make([]byte, n)
	b := writeBuf(buf)
	b.uint8(flags)
	if hasMod {
		b.uint32(uint32(mtime.Unix()))
	}
	if !forCentral {
		if hasAccess {
			b.uint32(uint32(atime.Unix()))
		}
		if hasCreate {
			b.uint32(uint32(ctime.Unix()))
		}
	}
	return buf
}

// ParseUnixTimeExtra decodes the 0x5455 payload.
func ParseUnixTimeExtra(payload []byte) (mtime, atime, ctime time.Time, hasMod, hasAccess, hasCreate bool) {
	if len(payload) < 1 {
		return
	}
	flags := payload[0]
	rest := payload[1:]
	hasMod = flags&1 != 0
	hasAccess = flags&2 != 0
	hasCreate = flags&4 != 0
	if hasMod && len(rest) >= 4 {
		mtime = time.Unix(int64(int32(binary.LittleEndian.Uint32(rest))), 0).UTC()
		rest = rest[4:]
	} else {
		hasMod = false
	}
	if hasAccess && len(rest) >= 4 {
		atime = time.Unix(int64(int32(binary.LittleEndian.Uint32(rest))), 0).UTC()
		rest = rest[4:]
	} else {
		hasAccess = false
	}
	if hasCreate && len(rest) >= 4 {
		ctime = time.Unix(int64(int32(binary.LittleEndian.Uint32(rest))), 0).UTC()
	} else {
		hasCreate = false
	}
	return
}

// AESExtra is the decoded form of the 0x9901 extra field that WinZip AES
// entries carry in place of their real compression method.
type AESExtra struct {
	VendorVersion uint16 // 1 = AE-1, 2 = AE-2
	Strength      byte   // 1 = AES-128, 3 = AES-256
	Method        uint16 // the real compression method
}

// BuildAESExtra encodes the 0x9901 payload.
func BuildAESExtra(a AESExtra) []byte {
	buf := make([]byte, 7)
	b := writeBuf(buf)
	b.uint16(a.VendorVersion)
	b.uint8('A')
	b.uint8('E')
	b.uint8(a.Strength)
	b.uint16(a.Method)
	return buf
}

// ParseAESExtra decodes the 0x9901 payload.
func ParseAESExtra(payload []byte) (AESExtra, bool) {
	if len(payload) < 7 {
		return AESExtra{}, false
	}
	b := readBuf(payload)
	version := b.uint16()
	vendor := b.take(2)
	strength := b.uint8()
	method := b.uint16()
	if string(vendor) != "AE" {
		return AESExtra{}, false
	}
	return AESExtra{VendorVersion: version, Strength: strength, Method: method}, true
}

// AESKeyLen returns the raw key length in bytes for an AES strength byte.
func AESKeyLen(strength byte) int {
	switch strength {
	case 1:
		return 16
	case 2:
		return 24
	case 3:
		return 32
	}
	return 0
}

// AESSaltLen returns the salt length in bytes for an AES strength byte.
func AESSaltLen(strength byte) int {
	switch strength {
	case 1:
		return 8
	case 2:
		return 12
	case 3:
		return 16
	}
	return 0
}
