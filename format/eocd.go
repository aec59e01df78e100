package format

import (
	"bytes"
	"errors"
	"io"
)

// ErrNoEOCD is returned when no end-of-central-directory signature could
// be found while scanning backward from the end of a file.
var ErrNoEOCD = errors.New("zipcore: end of central directory record not found")

// EndOfCentralDir is the classic (32-bit) EOCD record.
type EndOfCentralDir struct {
	DiskNumber      uint16
	CentralDirDisk  uint16
	EntriesThisDisk uint16
	EntriesTotal    uint16
	Size            uint32
	Offset          uint32
	Comment         string
}

func (e *EndOfCentralDir) Encode(w io.Writer) error {
	if len(e.Comment) > Uint16Max {
		return ErrLongComment
	}
	buf := make([]byte, LenEndOfCentralDir)
	b := writeBuf(buf)
	b.uint32(SigEndOfCentralDir)
	b.uint16(e.DiskNumber)
	b.uint16(e.CentralDirDisk)
	b.uint16(e.EntriesThisDisk)
	b.uint16(e.EntriesTotal)
	b.uint32(e.Size)
	b.uint32(e.Offset)
	b.uint16(uint16(len(e.Comment)))
	if _, err := w.Write(buf); err != nil {
		return err
	}
	_, err := io.WriteString(w, e.Comment)
	return err
}

// DecodeEndOfCentralDir decodes the fixed 22-byte record plus its trailing
// comment from buf, which must contain exactly the record starting at its
// signature (as produced by LocateEOCD).
func DecodeEndOfCentralDir(buf []byte) (*EndOfCentralDir, error) {
	if len(buf) < LenEndOfCentralDir {
		return nil, ErrNoEOCD
	}
	b := readBuf(buf)
	if b.uint32() != SigEndOfCentralDir {
		return nil, ErrNoEOCD
	}
	e := &EndOfCentralDir{}
	e.DiskNumber = b.uint16()
	e.CentralDirDisk = b.uint16()
	e.EntriesThisDisk = b.uint16()
	e.EntriesTotal = b.uint16()
	e.Size = b.uint32()
	e.Offset = b.uint32()
	commentLen := int(b.uint16())
	rest := []byte(b)
	if commentLen > len(rest) {
		commentLen = len(rest)
	}
	e.Comment = string(rest[:commentLen])
	return e, nil
}

// Zip64EndOfCentralDir is the ZIP64 EOCD record (APPNOTE 4.3.14).
type Zip64EndOfCentralDir struct {
	VersionMadeBy   uint16
	VersionNeeded   uint16
	DiskNumber      uint32
	CentralDirDisk  uint32
	EntriesThisDisk uint64
	EntriesTotal    uint64
	Size            uint64
	Offset          uint64
}

func (e *Zip64EndOfCentralDir) Encode(w io.Writer) error {
	buf := make([]byte, LenZip64EndOfCentralDir)
	b := writeBuf(buf)
	b.uint32(SigZip64EndOfCentralDir)
	b.uint64(LenZip64EndOfCentralDir - 12) // size of record minus sig(4) and this field(8)
	b.uint16(e.VersionMadeBy)
	b.uint16(e.VersionNeeded)
	b.uint32(e.DiskNumber)
	b.uint32(e.CentralDirDisk)
	b.uint64(e.EntriesThisDisk)
	b.uint64(e.EntriesTotal)
	b.uint64(e.Size)
	b.uint64(e.Offset)
	_, err := w.Write(buf)
	return err
}

// DecodeZip64EndOfCentralDir decodes the fixed portion of the record; any
// trailing extensible data sector is read past and discarded since this module
// never emits one and has nothing registered to read from it.
func DecodeZip64EndOfCentralDir(r io.Reader) (*Zip64EndOfCentralDir, error) {
	buf := make([]byte, 12)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	b := readBuf(buf)
	if b.uint32() != SigZip64EndOfCentralDir {
		return nil, ErrNoEOCD
	}
	size := b.uint64()
	rest := make([]byte, LenZip64EndOfCentralDir-12)
	if _, err := io.ReadFull(r, rest); err != nil {
		return nil, err
	}
	rb := readBuf(rest)
	e := &Zip64EndOfCentralDir{}
	e.VersionMadeBy = rb.uint16()
	e.VersionNeeded = rb.uint16()
	e.DiskNumber = rb.uint32()
	e.CentralDirDisk = rb.uint32()
	e.EntriesThisDisk = rb.uint64()
	e.EntriesTotal = rb.uint64()
	e.Size = rb.uint64()
	e.Offset = rb.uint64()
	if extra := int64(size) - (LenZip64EndOfCentralDir - 12); extra > 0 {
		if _, err := io.CopyN(io.Discard, r, extra); err != nil {
			return nil, err
		}
	}
	return e, nil
}

// Zip64EOCDLocator is the 20-byte record pointing at the ZIP64 EOCD.
type Zip64EOCDLocator struct {
	CentralDirDisk uint32
	Offset         uint64
	TotalDisks     uint32
}

func (l *Zip64EOCDLocator) Encode(w io.Writer) error {
	buf := make([]byte, LenZip64EOCDLocator)
	b := writeBuf(buf)
	b.uint32(SigZip64EOCDLocator)
	b.uint32(l.CentralDirDisk)
	b.uint64(l.Offset)
	b.uint32(l.TotalDisks)
	_, err := w.Write(buf)
	return err
}

func DecodeZip64EOCDLocator(r io.Reader) (*Zip64EOCDLocator, error) {
	buf := make([]byte, LenZip64EOCDLocator)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	b := readBuf(buf)
	if b.uint32() != SigZip64EOCDLocator {
		return nil, ErrNoEOCD
	}
	l := &Zip64EOCDLocator{}
	l.CentralDirDisk = b.uint32()
	l.Offset = b.uint64()
	l.TotalDisks = b.uint32()
	return l, nil
}

// maxEOCDSearch is the largest tail we scan for the EOCD signature: the
// fixed record (22 bytes) plus the largest possible comment (65535 bytes),
// mirroring every production ZIP reader's backward-scan bound.
const maxEOCDSearch = LenEndOfCentralDir + Uint16Max

// LocateEOCD scans the last bytes of a stream of the given total size for
// the EOCD signature, searching backward so that a spurious signature
// occurring inside a legitimate comment doesn't shadow the real record
// (the real EOCD is always the last one in the file). A candidate only
// counts when its declared comment length makes the record end exactly at
// the end of the stream; trailing garbage after an otherwise-intact
// archive therefore reads as "no EOCD" rather than silently parsing the
// buried record. It returns the record's absolute offset and its raw
// bytes (fixed portion + comment).
func LocateEOCD(ra io.ReaderAt, size int64) (offset int64, raw []byte, err error) {
	searchLen := int64(maxEOCDSearch)
	if searchLen > size {
		searchLen = size
	}
	buf := make([]byte, searchLen)
	if _, err := ra.ReadAt(buf, size-searchLen); err != nil && err != io.EOF {
		return 0, nil, err
	}
	sigBytes := []byte{0x50, 0x4b, 0x05, 0x06}
	for i := len(buf) - LenEndOfCentralDir; i >= 0; i-- {
		if !bytes.Equal(buf[i:i+4], sigBytes) {
			continue
		}
		commentLen := int(buf[i+20]) | int(buf[i+21])<<8
		if i+LenEndOfCentralDir+commentLen != len(buf) {
			continue
		}
		recordStart := size - searchLen + int64(i)
		return recordStart, buf[i:], nil
	}
	return 0, nil, ErrNoEOCD
}
