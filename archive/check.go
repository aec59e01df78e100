package archive

import (
	"bytes"
	"encoding/binary"
	"io"
	"os"
	"time"

	"github.com/martin-sucha/zipcore"
	"github.com/martin-sucha/zipcore/entry"
	"github.com/martin-sucha/zipcore/format"
	"github.com/martin-sucha/zipcore/fsys"
	"github.com/martin-sucha/zipcore/segment"
)

// Status is the coarse health classification Check returns.
type Status int

const (
	// StatusOK means the archive's central directory parsed cleanly.
	StatusOK Status = iota
	// StatusNeedsFix means the tail EOCD record couldn't be located (or
	// didn't parse), but the file may still be recoverable via
	// FixDirectory's full local-header scan.
	StatusNeedsFix
)

func (s Status) String() string {
	if s == StatusOK {
		return "OK"
	}
	return "NeedsFix"
}

// Check attempts to locate and parse path's central directory. A failure
// to do so classifies as StatusNeedsFix rather than
// returning an error outright, since that's the signal callers use to
// decide whether to call FixDirectory.
func Check(fs fsys.FS, path string) (Status, error) {
	probe, err := New(WithFS(fs))
	if err != nil {
		return StatusNeedsFix, err
	}
	if err := probe.Read(path); err != nil {
		if zerr, ok := err.(*zipcore.Error); ok &&
			(zerr.Kind == zipcore.KindNotAZip || zerr.Kind == zipcore.KindCorrupt) {
			return StatusNeedsFix, nil
		}
		return StatusNeedsFix, err
	}
	if probe.readSource != nil && probe.readSource.sr != nil {
		probe.readSource.sr.Close()
	}
	return StatusOK, nil
}

// CheckPassword verifies password against e without decompressing or
// returning any plaintext. e must already belong to this archive (i.e.
// have been produced by Read or a prior Save).
func (a *Archive) CheckPassword(e *entry.Entry, password string) (bool, error) {
	return a.CheckEntryPassword(e, password)
}

// FixDirectory rebuilds path's central directory by scanning for local
// file header signatures from the start of the file, synthesizing a
// central directory entry from each local header plus its data (and
// trailing data descriptor, when GP bit 3 is set), then re-saving the
// recovered archive over path.
func (a *Archive) FixDirectory(path string) error {
	names, err := segment.DiscoverSegments(a.opts.FS, path)
	if err != nil {
		return zipcore.NewError(zipcore.KindIo, "FixDirectory", path, err)
	}
	sr, err := segment.OpenReader(a.opts.FS, names)
	if err != nil {
		return zipcore.NewError(zipcore.KindIo, "FixDirectory", path, err)
	}

	a.entries = nil
	a.index = make(map[string]int)

	if err := sr.Seek(0, 0); err != nil {
		sr.Close()
		return zipcore.NewError(zipcore.KindIo, "FixDirectory", path, err)
	}

	scanner := &headerScanner{sr: sr}
	for {
		headerDisk, headerOffset, lfh, err := scanner.next()
		if err == io.EOF {
			break
		}
		if err != nil {
			sr.Close()
			return zipcore.NewError(zipcore.KindIrreparablyCorrupt, "FixDirectory", path, err)
		}
		e, err := synthesizeEntry(scanner, lfh, headerDisk, headerOffset)
		if err != nil {
			sr.Close()
			return zipcore.NewError(zipcore.KindIrreparablyCorrupt, "FixDirectory", path, err)
		}
		a.index[a.foldName(e.Name)] = len(a.entries)
		a.entries = append(a.entries, e)
	}

	if len(a.entries) == 0 {
		sr.Close()
		return zipcore.NewError(zipcore.KindIrreparablyCorrupt, "FixDirectory", path,
			errMissingReadSource("no recoverable local file headers found"))
	}

	a.readSource = &readState{path: path, names: names, sr: sr}
	a.numSegments = sr.NumSegments()
	a.opts.Logger.Printf("recovered %d entries from %s, rewriting", len(a.entries), path)
	return a.Save(path)
}

// headerScanner reads forward through a segment.Reader byte by byte,
// tracking the (disk, offset) of each byte so a matched 4-byte signature
// can be reported with the position of its first byte even when the
// match straddles a segment boundary.
type headerScanner struct {
	sr     *segment.Reader
	window [4]byte
	pos    [4]struct {
		disk   int
		offset int64
	}
	filled int
}

func (s *headerScanner) readByte() (byte, int, int64, error) {
	disk, offset := s.sr.Disk(), s.sr.Offset()
	var b [1]byte
	for {
		n, err := s.sr.Read(b[:])
		if n == 1 {
			return b[0], disk, offset, nil
		}
		if err != nil {
			return 0, 0, 0, err
		}
	}
}

func (s *headerScanner) push(b byte, disk int, offset int64) {
	if s.filled < 4 {
		s.window[s.filled] = b
		s.pos[s.filled] = struct {
			disk   int
			offset int64
		}{disk, offset}
		s.filled++
		return
	}
	copy(s.window[0:3], s.window[1:4])
	copy(s.pos[0:3], s.pos[1:4])
	s.window[3] = b
	s.pos[3] = struct {
		disk   int
		offset int64
	}{disk, offset}
}

func (s *headerScanner) sig() uint32 {
	return binary.LittleEndian.Uint32(s.window[:])
}

// next scans forward for the next local file header signature and
// decodes the full header (fixed prefix, name, extra) that follows it,
// returning the header's own start position.
func (s *headerScanner) next() (int, int64, *format.LocalHeader, error) {
	for {
		b, disk, offset, err := s.readByte()
		if err != nil {
			return 0, 0, nil, err
		}
		s.push(b, disk, offset)
		if s.filled < 4 || s.sig() != format.SigLocalFileHeader {
			continue
		}
		startDisk, startOffset := s.pos[0].disk, s.pos[0].offset
		rest := make([]byte, format.LenLocalFileHeader-4)
		if _, err := io.ReadFull(s.sr, rest); err != nil {
			return 0, 0, nil, err
		}
		full := append(append([]byte{}, s.window[:]...), rest...)
		lfh, err := format.DecodeLocalHeader(io.MultiReader(bytes.NewReader(full), s.sr))
		s.filled = 0
		if err != nil {
			// False positive (four bytes that happened to match the
			// signature inside unrelated data); resume scanning right
			// after them.
			continue
		}
		return startDisk, startOffset, lfh, nil
	}
}

// synthesizeEntry reads past a just-located local header's compressed
// data (scanning for the data descriptor's signature when GP bit 3 is
// set, since the real compressed size isn't known up front) and builds
// the corresponding *entry.Entry.
func synthesizeEntry(scanner *headerScanner, lfh *format.LocalHeader, headerDisk int, headerOffset int64) (*entry.Entry, error) {
	sr := scanner.sr
	if lfh.Flags&format.FlagDataDescriptor != 0 {
		crc, compressed, uncompressed, err := scanForDataDescriptor(scanner)
		if err != nil {
			return nil, err
		}
		lfh.CRC32 = crc
		lfh.CompressedSize = compressed
		lfh.UncompressedSize = uncompressed
	} else {
		if _, err := io.CopyN(io.Discard, sr, int64(lfh.CompressedSize)); err != nil {
			return nil, err
		}
	}
	endDisk, endOffset := sr.Disk(), sr.Offset()

	name := lfh.Name
	isDir := len(name) > 0 && name[len(name)-1] == '/'

	e := entry.New(name, entry.PriorArchiveSource{
		StartDisk:   headerDisk,
		StartOffset: headerOffset,
		EndDisk:     endDisk,
		EndOffset:   endOffset,
	})
	e.Method = lfh.Method
	if lfh.Method == format.AESMethod {
		if aesExtra, ok := aesExtraFromHeaders(lfh.Extra); ok {
			e.Method = aesExtra.Method
		}
	}
	e.ApplyTimestampExtra(lfh.Extra)
	if e.Times.Modified.IsZero() {
		e.Times.Modified = format.MSDOSToTime(lfh.ModDate, lfh.ModTime, time.UTC)
	}
	if lfh.Flags&format.FlagEncrypted != 0 {
		e.Cipher = cipherKindFromHeader(lfh.Method, lfh.Extra)
	}
	if isDir {
		e.Mode |= os.ModeDir
	}

	e.Freeze(entry.State{
		CRC32:             lfh.CRC32,
		CompressedSize:    lfh.CompressedSize,
		UncompressedSize:  lfh.UncompressedSize,
		StartDisk:         uint32(headerDisk),
		LocalHeaderOffset: uint64(headerOffset),
		Flags:             lfh.Flags,
		WireMethod:        lfh.Method,
		ReaderVersion:     lfh.ReaderVersion,
	})
	return e, nil
}

// scanForDataDescriptor reads the compressed payload and trailing data
// descriptor for an entry whose sizes were unknown at write time (GP bit
// 3), by scanning forward for the data descriptor's designated signature -
// the standard recovery technique absent a directory to supply the real
// compressed size. Sizes beyond the 32-bit range aren't recoverable this
// way (the descriptor's own width isn't knowable without the directory
// entry this scan is trying to reconstruct); recovery is best-effort and
// non-ZIP64.
func scanForDataDescriptor(scanner *headerScanner) (crc uint32, compressed, uncompressed uint64, err error) {
	scanner.filled = 0
	for {
		b, _, _, rerr := scanner.readByte()
		if rerr != nil {
			return 0, 0, 0, rerr
		}
		scanner.push(b, 0, 0)
		if scanner.filled < 4 || scanner.sig() != format.SigDataDescriptor {
			continue
		}
		rest := make([]byte, 12)
		if _, err := io.ReadFull(scanner.sr, rest); err != nil {
			return 0, 0, 0, err
		}
		crc = binary.LittleEndian.Uint32(rest[0:4])
		compressed = uint64(binary.LittleEndian.Uint32(rest[4:8]))
		uncompressed = uint64(binary.LittleEndian.Uint32(rest[8:12]))
		return crc, compressed, uncompressed, nil
	}
}
