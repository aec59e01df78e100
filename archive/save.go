package archive

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"time"

	"github.com/martin-sucha/zipcore"
	"github.com/martin-sucha/zipcore/cipher"
	"github.com/martin-sucha/zipcore/codec"
	"github.com/martin-sucha/zipcore/entry"
	"github.com/martin-sucha/zipcore/format"
	"github.com/martin-sucha/zipcore/progress"
	"github.com/martin-sucha/zipcore/segment"
)

// copyChunkSize bounds a single read while streaming entry bytes, small
// enough that a cancellation request is noticed promptly instead of only
// between whole entries.
const copyChunkSize = 256 * 1024

// weakCipherHint derives the 32-bit value the traditional cipher's 12-byte
// encryption header check bytes are computed from. Since Save always writes
// entries with a trailing data descriptor (see Save's doc comment), the real
// CRC32 isn't known before the first byte goes out, so the "strong header"
// convention applies: the hint carries the entry's own DOS time field in its
// high 16 bits rather than its CRC32, so the check byte is the high byte of
// the DOS time field. Both Save (encrypting) and Extract/CheckPassword
// (decrypting) call this with the same entry, so the two sides always agree.
func weakCipherHint(modTime time.Time) uint32 {
	_, t := format.TimeToMSDOS(modTime)
	return uint32(t) << 16
}

func weakCheckByte(modTime time.Time) byte {
	return byte(weakCipherHint(modTime) >> 24)
}

// weakEntryCheckByte returns the byte a traditional-cipher entry's 12-byte
// encryption header must end with on decrypt: the high byte of the
// entry's CRC32, or of its DOS time field when the entry was written with GP
// bit 3 set (the CRC wasn't known when the header went out, so the
// "strong header" substitution applies). Entries this library writes
// always carry bit 3; the CRC branch is for foreign archives that don't.
func weakEntryCheckByte(e *entry.Entry) byte {
	st := e.State()
	if st.Flags&format.FlagDataDescriptor != 0 {
		return weakCheckByte(e.Times.Modified)
	}
	return byte(st.CRC32 >> 24)
}

// Save writes the archive's current entry list to path. Unchanged entries
// (Source is an entry.PriorArchiveSource) are copied through byte-for-byte
// from the archive's read source rather than recompressed; everything else
// is freshly encoded. Every freshly-encoded file entry is written with GP
// bit 3 set and a trailing data descriptor (directory entries, which carry
// no data, are written without one): this sidesteps needing to patch a
// placeholder header back in after the fact (which would be unsafe once a
// segment has rolled over and been persisted), at the cost of never using
// the "seekable, header written with real sizes up front" variant. The
// central directory is always written fresh and always lands contiguously
// in the final segment.
//
// On success every entry's Source becomes a fresh entry.PriorArchiveSource
// pointing into the file just written, so a subsequent Save copies through
// anything not removed/re-added in the meantime.
func (a *Archive) Save(path string) error {
	a.opts.Progress.OnProgress(progress.Event{Kind: progress.SavingStarted})

	sw, err := segment.NewWriter(a.opts.FS, path, a.opts.MaxSegmentSize)
	if err != nil {
		return zipcore.NewError(zipcore.KindIo, "Save", path, err)
	}

	fail := func(err error) error {
		if aerr := sw.Abort(); aerr != nil {
			a.opts.Logger.Printf("save %s: cleanup after error: %v", path, aerr)
		}
		a.opts.Progress.OnProgress(progress.Event{Kind: progress.SavingCompleted, Err: err})
		return err
	}
	// A panic while encoding still removes the partial temp segments
	// before it propagates; after Commit, Abort is a no-op.
	defer func() {
		if r := recover(); r != nil {
			sw.Abort()
			panic(r)
		}
	}()

	// A split archive carries the 4-byte split marker at offset 0 of its
	// first segment; write it whenever segmentation is on, since whether
	// more than one segment will materialize isn't knowable up front.
	if a.opts.MaxSegmentSize > 0 {
		if _, err := sw.Write(segment.SplitSignature[:]); err != nil {
			return fail(zipcore.NewError(zipcore.KindIo, "Save", path, err))
		}
	}

	cdhs := make([]*format.CentralDirHeader, len(a.entries))
	newSpans := make([]entry.PriorArchiveSource, len(a.entries))
	anyZip64 := false

	for i, e := range a.entries {
		if a.opts.Canceler.Canceled() {
			return fail(zipcore.NewError(zipcore.KindCanceled, "Save", e.Name, nil))
		}
		a.opts.Progress.OnProgress(progress.Event{Kind: progress.BeforeEntry, EntryName: e.Name})

		var span entry.PriorArchiveSource
		var zip64 bool
		var writeErr error
		if src, ok := e.Source.(entry.PriorArchiveSource); ok {
			span, zip64, writeErr = a.copyThroughEntry(sw, e, src)
		} else {
			span, zip64, writeErr = a.recodeEntry(sw, e)
		}
		if writeErr != nil {
			kind := zipcore.KindIo
			var unsupported codec.ErrUnsupportedMethod
			if errors.As(writeErr, &unsupported) {
				kind = zipcore.KindUnsupportedCompression
			}
			if zerr, ok := writeErr.(*zipcore.Error); ok {
				return fail(zerr)
			}
			return fail(zipcore.NewError(kind, "Save", e.Name, writeErr))
		}
		if zip64 && a.opts.Zip64Policy == Zip64Never {
			return fail(zipcore.NewError(zipcore.KindZip64Required, "Save", e.Name, nil))
		}
		anyZip64 = anyZip64 || zip64

		newSpans[i] = span
		cdhs[i] = buildCDH(e)

		a.opts.Progress.OnProgress(progress.Event{Kind: progress.AfterEntry, EntryName: e.Name})
	}

	var cdBuf bytes.Buffer
	for _, cdh := range cdhs {
		if err := cdh.Encode(&cdBuf); err != nil {
			return fail(err)
		}
	}
	cdDisk, cdOffset := sw.ComputeSegment(int64(cdBuf.Len()))

	entriesTotal := len(cdhs)
	cdSize := int64(cdBuf.Len())
	dirZip64 := entriesTotal >= format.Uint16Max ||
		cdSize >= format.Uint32Max ||
		cdOffset >= format.Uint32Max ||
		cdDisk >= format.Uint16Max
	zip64Required := anyZip64 || dirZip64
	if zip64Required && a.opts.Zip64Policy == Zip64Never {
		return fail(zipcore.NewError(zipcore.KindZip64Required, "Save", "", nil))
	}
	emitZip64 := zip64Required || a.opts.Zip64Policy == Zip64Always

	if len(a.comment) > format.Uint16Max {
		return fail(zipcore.NewError(zipcore.KindInvalidArgument, "Save", "", format.ErrLongComment))
	}

	if _, err := sw.WriteContiguous(cdBuf.Bytes()); err != nil {
		return fail(err)
	}

	// The ZIP64 EOCD, its locator, and the classic EOCD are written as one
	// contiguous tail block (mirroring how the central directory itself is
	// kept contiguous above) so LocateEOCD's backward scan of the final
	// segment always finds a complete, unsplit record even at a tight
	// max-segment-size.
	zip64Len := 0
	if emitZip64 {
		zip64Len = format.LenZip64EndOfCentralDir + format.LenZip64EOCDLocator
	}
	classicLen := format.LenEndOfCentralDir + len(a.comment)
	tailDisk, tailOffset := sw.ComputeSegment(int64(zip64Len + classicLen))

	var tailBuf bytes.Buffer
	if emitZip64 {
		z64 := &format.Zip64EndOfCentralDir{
			VersionMadeBy:   format.VersionZip64,
			VersionNeeded:   format.VersionZip64,
			DiskNumber:      uint32(tailDisk),
			CentralDirDisk:  uint32(cdDisk),
			EntriesThisDisk: uint64(entriesTotal),
			EntriesTotal:    uint64(entriesTotal),
			Size:            uint64(cdSize),
			Offset:          uint64(cdOffset),
		}
		if err := z64.Encode(&tailBuf); err != nil {
			return fail(err)
		}
		loc := &format.Zip64EOCDLocator{
			CentralDirDisk: uint32(tailDisk),
			Offset:         uint64(tailOffset),
			TotalDisks:     uint32(tailDisk + 1),
		}
		if err := loc.Encode(&tailBuf); err != nil {
			return fail(err)
		}
	}
	eocd := &format.EndOfCentralDir{
		DiskNumber:      clamp16(uint64(tailDisk)),
		CentralDirDisk:  clamp16(uint64(cdDisk)),
		EntriesThisDisk: clamp16(uint64(entriesTotal)),
		EntriesTotal:    clamp16(uint64(entriesTotal)),
		Size:            clamp32(uint64(cdSize)),
		Offset:          clamp32(uint64(cdOffset)),
		Comment:         a.comment,
	}
	if err := eocd.Encode(&tailBuf); err != nil {
		return fail(err)
	}
	if _, err := sw.WriteContiguous(tailBuf.Bytes()); err != nil {
		return fail(err)
	}

	a.opts.Progress.OnProgress(progress.Event{Kind: progress.SavingBeforeRename})
	if err := sw.Commit(); err != nil {
		return fail(err)
	}
	a.opts.Progress.OnProgress(progress.Event{Kind: progress.SavingAfterRename})
	a.opts.Logger.Printf("saved %s: %d entries, %d segment(s)", path, len(a.entries), sw.Disk()+1)

	// Rebind: every entry's recorded position is already authoritative
	// (updated as it was written), and since the bytes landed in path,
	// every entry becomes copy-through eligible for the next Save, whether
	// it was copy-through or recoded this time.
	for i, e := range a.entries {
		e.Source = newSpans[i]
	}

	if a.readSource != nil {
		a.readSource.sr.Close()
	}
	newNames, err := segment.DiscoverSegments(a.opts.FS, path)
	if err != nil {
		return zipcore.NewError(zipcore.KindIo, "Save", path, err)
	}
	newSR, err := segment.OpenReader(a.opts.FS, newNames)
	if err != nil {
		return zipcore.NewError(zipcore.KindIo, "Save", path, err)
	}
	a.readSource = &readState{path: path, names: newNames, sr: newSR}
	a.numSegments = newSR.NumSegments()

	a.opts.Progress.OnProgress(progress.Event{Kind: progress.SavingCompleted})
	return nil
}

// copyThroughEntry streams the entry's already-valid bytes (local header
// through trailing data descriptor) from the archive's bound read source
// into sw, unmodified. The local header block itself is re-read and written
// contiguously so it never straddles a segment boundary in the new archive,
// whatever the old segmentation was. It reports whether the copied span
// needs ZIP64 (from the entry's already-frozen State, which copy-through
// never changes beyond the new position).
func (a *Archive) copyThroughEntry(sw *segment.Writer, e *entry.Entry, src entry.PriorArchiveSource) (entry.PriorArchiveSource, bool, error) {
	var none entry.PriorArchiveSource
	if a.readSource == nil || a.readSource.sr == nil {
		return none, false, zipcore.NewError(zipcore.KindCorrupt, "Save", e.Name,
			errMissingReadSource("entry has a prior-archive source but the archive has none bound"))
	}
	sr := a.readSource.sr
	if err := sr.Seek(src.StartDisk, src.StartOffset); err != nil {
		return none, false, err
	}

	fixed := make([]byte, format.LenLocalFileHeader)
	if _, err := io.ReadFull(sr, fixed); err != nil {
		return none, false, err
	}
	if binary.LittleEndian.Uint32(fixed[:4]) != format.SigLocalFileHeader {
		return none, false, zipcore.NewError(zipcore.KindCorrupt, "Save", e.Name, nil)
	}
	nameLen := int(binary.LittleEndian.Uint16(fixed[26:28]))
	extraLen := int(binary.LittleEndian.Uint16(fixed[28:30]))
	header := make([]byte, len(fixed)+nameLen+extraLen)
	copy(header, fixed)
	if _, err := io.ReadFull(sr, header[len(fixed):]); err != nil {
		return none, false, err
	}

	startDisk, startOffset := sw.ComputeSegment(int64(len(header)))
	if _, err := sw.WriteContiguous(header); err != nil {
		return none, false, err
	}

	for {
		if sr.Disk() == src.EndDisk && sr.Offset() >= src.EndOffset {
			break
		}
		var want int64
		if sr.Disk() == src.EndDisk {
			want = src.EndOffset - sr.Offset()
		} else {
			want = sr.SegmentSize(sr.Disk()) - sr.Offset()
		}
		if want > 0 {
			if err := a.copyN(sw, sr, want, e.Name); err != nil {
				return none, false, err
			}
		}
		if sr.Disk() == src.EndDisk {
			break
		}
		if err := sr.Seek(sr.Disk()+1, 0); err != nil {
			return none, false, err
		}
	}

	st := e.State()
	st.StartDisk = uint32(startDisk)
	st.LocalHeaderOffset = uint64(startOffset)
	e.Freeze(st)
	zip64 := st.CompressedSize >= format.Uint32Max || st.UncompressedSize >= format.Uint32Max
	return entry.PriorArchiveSource{
		StartDisk: startDisk, StartOffset: startOffset,
		EndDisk: sw.Disk(), EndOffset: sw.Offset(),
	}, zip64, nil
}

// aesExtraField builds the 0x9901 extra field recording an AES entry's real
// compression method; the header's own method field carries the AES marker
// instead.
func aesExtraField(e *entry.Entry) format.Field {
	strength := byte(1)
	if e.Cipher == cipher.WinZipAES256 {
		strength = 3
	}
	return format.Field{
		Tag: format.ExtraAES,
		Payload: format.BuildAESExtra(format.AESExtra{
			VendorVersion: 2,
			Strength:      strength,
			Method:        e.Method,
		}),
	}
}

// recodeEntry runs the entry's source bytes through a fresh
// compress/encrypt pipeline and writes a local header (with a trailing
// data descriptor) plus the entry's content to sw. The header block is
// written contiguously so it never straddles a segment boundary; entry
// data may. Directory entries are special-cased: zero bytes, Store, no
// encryption, no data descriptor, all sizes known (zero) up front.
func (a *Archive) recodeEntry(sw *segment.Writer, e *entry.Entry) (entry.PriorArchiveSource, bool, error) {
	var none entry.PriorArchiveSource
	if e.IsDir() {
		return a.recodeDirEntry(sw, e)
	}

	wireMethod := e.Method
	isAES := e.Cipher == cipher.WinZipAES128 || e.Cipher == cipher.WinZipAES256
	if isAES {
		wireMethod = format.AESMethod
	}

	readerVersion := uint16(format.VersionDefault)
	if e.Method == format.BZip2 && format.VersionBZip2 > readerVersion {
		readerVersion = format.VersionBZip2
	}
	if isAES && format.VersionAES > readerVersion {
		readerVersion = format.VersionAES
	}

	flags := format.FlagDataDescriptor
	if e.Cipher != cipher.None {
		flags |= format.FlagEncrypted
	}
	_, utf8Required := format.DetectUTF8(e.Name)
	if utf8Required || a.opts.EncodingPolicy == EncodingAlways {
		if a.opts.EncodingPolicy != EncodingNever {
			flags |= format.FlagUTF8
		}
	}

	dosDate, dosTime := format.TimeToMSDOS(e.Times.Modified)
	extraFields := e.TimestampExtraFields(false)
	if isAES {
		extraFields = append(extraFields, aesExtraField(e))
	}
	lfh := &format.LocalHeader{
		ReaderVersion: readerVersion,
		Flags:         flags,
		Method:        wireMethod,
		ModDate:       dosDate,
		ModTime:       dosTime,
		Name:          e.Name,
		Extra:         format.BuildFields(extraFields),
	}
	var lfhBuf bytes.Buffer
	if err := lfh.Encode(&lfhBuf, true); err != nil {
		return none, false, err
	}
	startDisk, startOffset := sw.ComputeSegment(int64(lfhBuf.Len()))
	if _, err := sw.WriteContiguous(lfhBuf.Bytes()); err != nil {
		return none, false, err
	}

	password := e.Password
	if password == "" {
		password = a.opts.Password
	}
	crcHint := uint32(0)
	if e.Cipher == cipher.PKZIPWeak {
		crcHint = weakCipherHint(e.Times.Modified)
	}
	wp, err := entry.NewWritePipeline(sw, e.Method, e.Level, e.Cipher, password, crcHint)
	if err != nil {
		return none, false, err
	}

	src, closeFn, err := resolveSource(a, e)
	if err != nil {
		return none, false, err
	}
	if ws, ok := e.Source.(entry.WriteDelegateSource); ok {
		err = ws.Write(wp)
	} else {
		err = a.copyAll(wp, src, e.Name)
	}
	if closeFn != nil {
		closeFn()
	}
	if err != nil {
		wp.Close()
		return none, false, err
	}
	if err := wp.Close(); err != nil {
		return none, false, err
	}

	crc := wp.CRC32()
	if isAES {
		// AE-2: the CRC32 field is zero on the wire; integrity comes from
		// the trailing HMAC instead.
		crc = 0
	}
	compressedSize := wp.CompressedSize()
	uncompressedSize := wp.UncompressedSize()
	sizesZip64 := compressedSize >= format.Uint32Max || uncompressedSize >= format.Uint32Max
	zip64 := sizesZip64 || a.opts.Zip64Policy == Zip64Always

	// The descriptor's width is inferred by readers from the entry's sizes
	// alone, so it must depend only on them, never on archive policy.
	dd := &format.DataDescriptor{
		CRC32:            crc,
		CompressedSize:   uint64(compressedSize),
		UncompressedSize: uint64(uncompressedSize),
		Zip64:            sizesZip64,
		WithSignature:    true,
	}
	if err := dd.Encode(sw); err != nil {
		return none, false, err
	}

	if zip64 && readerVersion < format.VersionZip64 {
		readerVersion = format.VersionZip64
	}
	e.Freeze(entry.State{
		CRC32:             crc,
		CompressedSize:    uint64(compressedSize),
		UncompressedSize:  uint64(uncompressedSize),
		StartDisk:         uint32(startDisk),
		LocalHeaderOffset: uint64(startOffset),
		Flags:             flags,
		WireMethod:        wireMethod,
		ReaderVersion:     readerVersion,
	})
	return entry.PriorArchiveSource{
		StartDisk: startDisk, StartOffset: startOffset,
		EndDisk: sw.Disk(), EndOffset: sw.Offset(),
	}, zip64, nil
}

func (a *Archive) recodeDirEntry(sw *segment.Writer, e *entry.Entry) (entry.PriorArchiveSource, bool, error) {
	var none entry.PriorArchiveSource
	dosDate, dosTime := format.TimeToMSDOS(e.Times.Modified)
	extraFields := e.TimestampExtraFields(false)
	var flags uint16
	_, utf8Required := format.DetectUTF8(e.Name)
	if utf8Required || a.opts.EncodingPolicy == EncodingAlways {
		if a.opts.EncodingPolicy != EncodingNever {
			flags |= format.FlagUTF8
		}
	}
	lfh := &format.LocalHeader{
		ReaderVersion: format.VersionDefault,
		Flags:         flags,
		Method:        format.Store,
		ModDate:       dosDate,
		ModTime:       dosTime,
		Name:          e.Name,
		Extra:         format.BuildFields(extraFields),
	}
	var lfhBuf bytes.Buffer
	if err := lfh.Encode(&lfhBuf, false); err != nil {
		return none, false, err
	}
	startDisk, startOffset := sw.ComputeSegment(int64(lfhBuf.Len()))
	if _, err := sw.WriteContiguous(lfhBuf.Bytes()); err != nil {
		return none, false, err
	}
	e.Freeze(entry.State{
		StartDisk:         uint32(startDisk),
		LocalHeaderOffset: uint64(startOffset),
		Flags:             flags,
		WireMethod:        format.Store,
		ReaderVersion:     format.VersionDefault,
	})
	return entry.PriorArchiveSource{
		StartDisk: startDisk, StartOffset: startOffset,
		EndDisk: sw.Disk(), EndOffset: sw.Offset(),
	}, false, nil
}

// resolveSource opens e's Source for reading, returning a reader and an
// optional cleanup func (nil for sources that own nothing to close).
// WriteDelegateSource is handled by the caller instead, since it is
// push-based rather than pull-based.
func resolveSource(a *Archive, e *entry.Entry) (io.Reader, func(), error) {
	switch src := e.Source.(type) {
	case entry.BytesSource:
		return bytes.NewReader(src.Data), nil, nil
	case entry.FileSource:
		f, err := a.opts.FS.OpenRead(src.Path)
		if err != nil {
			return nil, nil, err
		}
		return f, func() { f.Close() }, nil
	case entry.StreamSource:
		rc, err := src.Open()
		if err != nil {
			return nil, nil, err
		}
		return rc, func() { rc.Close() }, nil
	case entry.WriteDelegateSource:
		return nil, nil, nil
	default:
		return bytes.NewReader(nil), nil, nil
	}
}

// copyAll streams all of src into dst in bounded chunks, checking the
// canceler and reporting cumulative transferred bytes between chunks.
func (a *Archive) copyAll(dst io.Writer, src io.Reader, name string) error {
	buf := make([]byte, copyChunkSize)
	var total int64
	for {
		if a.opts.Canceler.Canceled() {
			return zipcore.NewError(zipcore.KindCanceled, "Save", name, nil)
		}
		n, rerr := src.Read(buf)
		if n > 0 {
			if _, werr := dst.Write(buf[:n]); werr != nil {
				return werr
			}
			total += int64(n)
			a.opts.Progress.OnProgress(progress.Event{
				Kind: progress.BytesTransferred, EntryName: name, Bytes: total,
			})
		}
		if rerr == io.EOF {
			return nil
		}
		if rerr != nil {
			return rerr
		}
	}
}

// copyN copies exactly n bytes from src to dst in bounded chunks.
func (a *Archive) copyN(dst io.Writer, src io.Reader, n int64, name string) error {
	return a.copyAll(dst, io.LimitReader(src, n), name)
}

type errMissingReadSource string

func (e errMissingReadSource) Error() string { return string(e) }

func clamp16(v uint64) uint16 {
	if v >= format.Uint16Max {
		return format.Uint16Max
	}
	return uint16(v)
}

func clamp32(v uint64) uint32 {
	if v >= format.Uint32Max {
		return format.Uint32Max
	}
	return uint32(v)
}

// buildCDH constructs a fresh central directory header from e's current
// metadata and State. Called only after the entry's local header/data has
// been written (copy-through or recode), so State reflects the bytes and
// position that physically went out this time.
func buildCDH(e *entry.Entry) *format.CentralDirHeader {
	st := e.State()
	dosDate, dosTime := format.TimeToMSDOS(e.Times.Modified)
	creatorHigh, extAttrs := e.ExternalAttrs()

	extraFields := e.TimestampExtraFields(true)
	if e.Cipher == cipher.WinZipAES128 || e.Cipher == cipher.WinZipAES256 {
		extraFields = append(extraFields, aesExtraField(e))
	}

	var internalAttrs uint16
	if e.TextFlag {
		internalAttrs = 1
	}

	return &format.CentralDirHeader{
		CreatorVersion:    creatorHigh<<8 | (st.ReaderVersion & 0xff),
		ReaderVersion:     st.ReaderVersion,
		Flags:             st.Flags,
		Method:            st.WireMethod,
		ModDate:           dosDate,
		ModTime:           dosTime,
		CRC32:             st.CRC32,
		CompressedSize:    st.CompressedSize,
		UncompressedSize:  st.UncompressedSize,
		Disk:              st.StartDisk,
		InternalAttrs:     internalAttrs,
		ExternalAttrs:     extAttrs,
		LocalHeaderOffset: st.LocalHeaderOffset,
		Name:              e.Name,
		Extra:             format.BuildFields(extraFields),
		Comment:           e.Comment,
	}
}
