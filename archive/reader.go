package archive

import (
	"io"
	"time"

	"github.com/martin-sucha/zipcore"
	"github.com/martin-sucha/zipcore/cipher"
	"github.com/martin-sucha/zipcore/entry"
	"github.com/martin-sucha/zipcore/format"
	"github.com/martin-sucha/zipcore/fsys"
	"github.com/martin-sucha/zipcore/segment"
)

// readState is what Read binds to an Archive so a later Save can
// copy-through unchanged entries and safely save over the same file it
// read from: the source segment reader is kept open until a save that
// targets the same path completes.
type readState struct {
	path  string
	names []string
	sr    *segment.Reader
}

// seekReaderAt adapts an fsys.File (Seek+Read) to io.ReaderAt for
// format.LocateEOCD's backward scan. Not safe for concurrent use, which
// is fine: archives are single-owner.
type seekReaderAt struct{ f fsys.File }

func (s seekReaderAt) ReadAt(p []byte, off int64) (int, error) {
	if _, err := s.f.Seek(off, io.SeekStart); err != nil {
		return 0, err
	}
	return io.ReadFull(s.f, p)
}

// Read opens the archive at path (discovering any prior .zNN segments
// alongside it) and populates the archive's entry list from its central
// directory. Each resulting entry's Source is a
// entry.PriorArchiveSource pointing back at the bytes just read, enabling
// a later Save to copy them through unchanged.
func (a *Archive) Read(path string) error {
	names, err := segment.DiscoverSegments(a.opts.FS, path)
	if err != nil {
		return zipcore.NewError(zipcore.KindIo, "Read", path, err)
	}

	finalFile, err := a.opts.FS.OpenRead(names[len(names)-1])
	if err != nil {
		return zipcore.NewError(zipcore.KindIo, "Read", path, err)
	}
	size, err := finalFile.Size()
	if err != nil {
		finalFile.Close()
		return zipcore.NewError(zipcore.KindIo, "Read", path, err)
	}
	eocdOffset, raw, err := format.LocateEOCD(seekReaderAt{finalFile}, size)
	finalFile.Close()
	if err != nil {
		return zipcore.NewError(zipcore.KindNotAZip, "Read", path, err)
	}
	eocd, err := format.DecodeEndOfCentralDir(raw)
	if err != nil {
		return zipcore.NewError(zipcore.KindNotAZip, "Read", path, err)
	}

	cdDisk := uint32(eocd.CentralDirDisk)
	cdOffset := uint64(eocd.Offset)
	cdCount := uint64(eocd.EntriesTotal)

	if z64 := tryReadZip64(a.opts.FS, names, eocdOffset); z64 != nil {
		cdDisk = z64.CentralDirDisk
		cdOffset = z64.Offset
		cdCount = z64.EntriesTotal
	}

	sr, err := segment.OpenReader(a.opts.FS, names)
	if err != nil {
		return zipcore.NewError(zipcore.KindIo, "Read", path, err)
	}
	if err := sr.Seek(int(cdDisk), int64(cdOffset)); err != nil {
		sr.Close()
		return zipcore.NewError(zipcore.KindCorrupt, "Read", path, err)
	}

	a.entries = nil
	a.index = make(map[string]int)
	a.comment = eocd.Comment

	for i := uint64(0); i < cdCount; i++ {
		cdh, err := format.DecodeCentralDirHeader(sr)
		if err != nil {
			sr.Close()
			return zipcore.NewError(zipcore.KindCorrupt, "Read", path, err)
		}
		e, err := entryFromCentralHeader(sr, cdh)
		if err != nil {
			sr.Close()
			return zipcore.NewError(zipcore.KindCorrupt, "Read", path, err)
		}
		a.index[a.foldName(e.Name)] = len(a.entries)
		a.entries = append(a.entries, e)
	}

	a.readSource = &readState{path: path, names: names, sr: sr}
	a.numSegments = sr.NumSegments()
	return nil
}

// tryReadZip64 looks for a ZIP64 EOCD locator immediately before the
// classic EOCD record (the fixed layout APPNOTE guarantees when ZIP64 is
// in play) and, if found, returns the real entry count/offset/disk it
// points at. Returns nil when the archive has no ZIP64 directory, which
// is the common case and not an error.
func tryReadZip64(fs fsys.FS, names []string, eocdOffset int64) *format.Zip64EndOfCentralDir {
	if eocdOffset < format.LenZip64EOCDLocator {
		return nil
	}
	f, err := fs.OpenRead(names[len(names)-1])
	if err != nil {
		return nil
	}
	defer f.Close()
	if _, err := f.Seek(eocdOffset-format.LenZip64EOCDLocator, io.SeekStart); err != nil {
		return nil
	}
	loc, err := format.DecodeZip64EOCDLocator(f)
	if err != nil {
		return nil
	}
	locF, err := fs.OpenRead(names[loc.CentralDirDisk])
	if err != nil {
		return nil
	}
	defer locF.Close()
	if _, err := locF.Seek(int64(loc.Offset), io.SeekStart); err != nil {
		return nil
	}
	rec, err := format.DecodeZip64EndOfCentralDir(locF)
	if err != nil {
		return nil
	}
	return rec
}

// entryFromCentralHeader decodes the local header at cdh's recorded
// offset (through sr, which must already be positioned to read cdh's
// successor in the directory - reading the local header temporarily
// repositions sr and the caller must already be done with cdh's own
// bytes) to learn the prior archive's exact byte span for this entry, and
// builds the corresponding *entry.Entry.
func entryFromCentralHeader(sr *segment.Reader, cdh *format.CentralDirHeader) (*entry.Entry, error) {
	curDisk, curOffset := sr.Disk(), sr.Offset()

	startDisk := int(cdh.Disk)
	startOffset := int64(cdh.LocalHeaderOffset)
	if err := sr.Seek(startDisk, startOffset); err != nil {
		return nil, err
	}
	lfh, err := format.DecodeLocalHeader(sr)
	if err != nil {
		return nil, err
	}
	if _, err := io.CopyN(io.Discard, sr, int64(cdh.CompressedSize)); err != nil {
		return nil, err
	}
	if lfh.Flags&format.FlagDataDescriptor != 0 {
		zip64 := cdh.CompressedSize >= format.Uint32Max || cdh.UncompressedSize >= format.Uint32Max
		if _, err := format.DecodeDataDescriptor(sr, zip64, nil); err != nil {
			return nil, err
		}
	}
	endDisk, endOffset := sr.Disk(), sr.Offset()

	if err := sr.Seek(curDisk, curOffset); err != nil {
		return nil, err
	}

	name := cdh.Name
	isDir := cdh.IsDirectoryEntry()
	if isDir && (len(name) == 0 || name[len(name)-1] != '/') {
		name += "/"
	}

	e := entry.New(name, entry.PriorArchiveSource{
		StartDisk:   startDisk,
		StartOffset: startOffset,
		EndDisk:     endDisk,
		EndOffset:   endOffset,
	})
	e.Method = cdh.Method
	if cdh.Method == format.AESMethod {
		// The header's method field only marks the entry as AES; the real
		// compression method travels in the 0x9901 extra field.
		if aesExtra, ok := aesExtraFromHeaders(cdh.Extra, lfh.Extra); ok {
			e.Method = aesExtra.Method
		}
	}
	e.Mode = format.ModeFromExternalAttrs(cdh.CreatorVersion, cdh.ExternalAttrs, isDir)
	e.Comment = cdh.Comment
	e.TextFlag = cdh.InternalAttrs&1 != 0
	if cdh.Flags&format.FlagEncrypted != 0 {
		e.Cipher = cipherKindFromHeader(cdh.Method, cdh.Extra, lfh.Extra)
	}
	e.Times.Modified = format.MSDOSToTime(cdh.ModDate, cdh.ModTime, time.UTC)
	e.ApplyTimestampExtra(cdh.Extra)

	e.Freeze(entry.State{
		CRC32:             cdh.CRC32,
		CompressedSize:    cdh.CompressedSize,
		UncompressedSize:  cdh.UncompressedSize,
		StartDisk:         uint32(startDisk),
		LocalHeaderOffset: uint64(startOffset),
		Flags:             cdh.Flags,
		WireMethod:        cdh.Method,
		ReaderVersion:     cdh.ReaderVersion,
	})
	return e, nil
}

// aesExtraFromHeaders returns the first parseable 0x9901 extra field found
// in any of the raw extra blocks, central-directory copy first.
func aesExtraFromHeaders(extras ...[]byte) (format.AESExtra, bool) {
	for _, raw := range extras {
		if payload, ok := format.FindField(format.ParseFields(raw), format.ExtraAES); ok {
			if aesExtra, ok := format.ParseAESExtra(payload); ok {
				return aesExtra, true
			}
		}
	}
	return format.AESExtra{}, false
}

func cipherKindFromHeader(method uint16, extras ...[]byte) cipher.Kind {
	if method == format.AESMethod {
		if aesExtra, ok := aesExtraFromHeaders(extras...); ok && aesExtra.Strength == 3 {
			return cipher.WinZipAES256
		}
		return cipher.WinZipAES128
	}
	return cipher.PKZIPWeak
}
