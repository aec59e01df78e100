package segment

import (
	"errors"
	"fmt"
	"io"

	"github.com/martin-sucha/zipcore/fsys"
)

// ErrCorrupt is returned when a read comes up short of a segment's known
// size (the last segment included) - a sign that the segment was truncated
// or replaced out from under the reader.
var ErrCorrupt = errors.New("zipcore/segment: short read before end of segment")

// Writer drives the temp-segment-then-persist write protocol of the
// segmented stream: writes land in a temp file in the target's directory;
// once an append would exceed maxSize, the temp file is closed and a
// fresh temp is opened as the next segment. No temp takes its persisted
// name (base.z01, base.z02, ..., base itself last) until Commit, so a
// save over an existing archive never disturbs the old segments - which a
// concurrent copy-through read may still be pulling from - before the new
// archive is complete.
type Writer struct {
	fs      fsys.FS
	dir     string
	base    string
	maxSize int64 // 0 means unbounded: a single segment, never rolls over

	disk int // 0-based index of the segment currently being written

	// tempPaths[i] holds the closed temp file carrying segment i's bytes;
	// persisted collects their final names as Commit renames them.
	tempPaths []string
	persisted []string

	temp     fsys.File
	tempPath string
	pos      int64 // bytes written into the current segment so far

	committed bool
	aborted   bool
}

// NewWriter starts a new segmented write transaction for the archive that
// will ultimately be committed to target. maxSize of 0 means unbounded
// (single segment, final name only).
func NewWriter(fs fsys.FS, target string, maxSize int64) (*Writer, error) {
	if maxSize != 0 && maxSize < MinSegmentSize {
		return nil, fmt.Errorf("zipcore/segment: max segment size %d below %d byte floor", maxSize, MinSegmentSize)
	}
	w := &Writer{
		fs:      fs,
		dir:     fs.Parent(target),
		base:    target,
		maxSize: maxSize,
	}
	if err := w.openTemp(); err != nil {
		return nil, err
	}
	return w, nil
}

func (w *Writer) openTemp() error {
	path := w.fs.Join(w.dir, w.fs.RandomName()+".tmp")
	f, err := w.fs.OpenReadWrite(path, fsys.OpenCreateNew)
	if err != nil {
		return err
	}
	w.temp = f
	w.tempPath = path
	w.pos = 0
	return nil
}

// Disk returns the 0-based index of the segment currently being written.
func (w *Writer) Disk() int { return w.disk }

// Offset returns the write position within the current segment.
func (w *Writer) Offset() int64 { return w.pos }

// remaining reports how many more bytes fit in the current segment before
// a rollover is required. An unbounded writer always has "infinite" room.
func (w *Writer) remaining() int64 {
	if w.maxSize == 0 {
		return int64(1)<<62 - w.pos
	}
	return w.maxSize - w.pos
}

// ComputeSegment reports the disk and in-segment offset at which a
// subsequent contiguous write of length bytes would land, without
// mutating any state. It is used to learn a header block's final position
// before committing the bytes.
func (w *Writer) ComputeSegment(length int64) (disk int, offset int64) {
	if w.maxSize == 0 || length <= w.remaining() || w.pos == 0 {
		return w.disk, w.pos
	}
	return w.disk + 1, 0
}

// Write splits p at segment boundaries as needed, rolling over mid-write
// when the current segment fills up.
func (w *Writer) Write(p []byte) (int, error) {
	total := 0
	for len(p) > 0 {
		room := w.remaining()
		chunk := p
		if w.maxSize != 0 && int64(len(chunk)) > room {
			chunk = p[:room]
		}
		if len(chunk) > 0 {
			n, err := w.temp.Write(chunk)
			w.pos += int64(n)
			total += n
			if err != nil {
				return total, err
			}
		}
		p = p[len(chunk):]
		if len(p) > 0 {
			if err := w.rollover(); err != nil {
				return total, err
			}
		}
	}
	return total, nil
}

// WriteContiguous writes p as an indivisible unit: if it would not fit in
// the remaining space of the current segment, the current segment is
// closed early (even though not full) and p is written at offset 0 of a
// fresh segment. A block larger than the segment bound still lands whole,
// producing a single segment over the nominal size - PKZIP permits an
// oversized segment, and an unsplittable block leaves no alternative.
func (w *Writer) WriteContiguous(p []byte) (int, error) {
	if w.maxSize != 0 && int64(len(p)) > w.remaining() && w.pos > 0 {
		if err := w.rollover(); err != nil {
			return 0, err
		}
	}
	n, err := w.temp.Write(p)
	w.pos += int64(n)
	return n, err
}

// rollover closes the current temp segment, records it for persistence at
// Commit, and opens a fresh temp segment as the new current one.
func (w *Writer) rollover() error {
	if err := w.temp.Close(); err != nil {
		return err
	}
	w.tempPaths = append(w.tempPaths, w.tempPath)
	w.disk++
	return w.openTemp()
}

// TruncateBackward discards everything written after (disk, offset): the
// current temp segment is closed and discarded, temp segments strictly
// between disk and the current one are deleted, and disk itself is
// reopened as a fresh temp by copying its first offset bytes out of the
// old temp, which is then removed.
func (w *Writer) TruncateBackward(disk int, offset int64) error {
	if disk > w.disk || (disk == w.disk && offset > w.pos) {
		return fmt.Errorf("zipcore/segment: truncate target (%d,%d) is ahead of current position (%d,%d)", disk, offset, w.disk, w.pos)
	}
	if err := w.temp.Close(); err != nil {
		return err
	}

	var oldPath string
	if disk == w.disk {
		oldPath = w.tempPath
	} else {
		if err := w.fs.DeleteFile(w.tempPath); err != nil {
			return err
		}
		for d := w.disk - 1; d > disk; d-- {
			if err := w.fs.DeleteFile(w.tempPaths[d]); err != nil {
				return err
			}
		}
		oldPath = w.tempPaths[disk]
		w.tempPaths = w.tempPaths[:disk]
	}

	src, err := w.fs.OpenRead(oldPath)
	if err != nil {
		return err
	}

	w.disk = disk
	if err := w.openTemp(); err != nil {
		src.Close()
		return err
	}
	if _, err := io.CopyN(w.temp, src, offset); err != nil {
		src.Close()
		return err
	}
	src.Close()
	w.pos = offset
	return w.fs.DeleteFile(oldPath)
}

// moveReplace renames src to dst. When dst already exists, the zombie
// protocol is used instead of a delete-then-move: the existing file is
// renamed aside to a "zombie" name, src takes dst's name, and only then
// is the zombie deleted. If a crash happens between the two renames, the
// zombie is left behind for manual cleanup rather than having silently
// lost the pre-existing file.
func (w *Writer) moveReplace(src, dst string) error {
	exists, err := w.fs.ExistsFile(dst)
	if err != nil {
		return err
	}
	if !exists {
		return w.fs.Move(src, dst)
	}
	zombie := w.fs.Join(w.fs.Parent(dst), w.fs.Basename(dst)+".PendingOverwrite."+w.fs.RandomName())
	if err := w.fs.Move(dst, zombie); err != nil {
		return err
	}
	if err := w.fs.Move(src, dst); err != nil {
		return err
	}
	return w.fs.DeleteFile(zombie)
}

// Commit closes the current (final) temp segment, renames every rolled-
// over temp into its persisted .zNN name in order, then renames the final
// temp to the archive's target path, completing the transaction. Stale
// tail segments left by a previous, larger save of the same archive are
// deleted last, so a shrinking re-save never leaves a dangling .zNN.
func (w *Writer) Commit() error {
	if err := w.temp.Close(); err != nil {
		return err
	}
	for i, tmp := range w.tempPaths {
		final := SegmentName(w.base, i+1)
		if err := w.moveReplace(tmp, final); err != nil {
			return err
		}
		w.persisted = append(w.persisted, final)
	}
	w.tempPaths = nil
	if err := w.moveReplace(w.tempPath, FinalSegmentName(w.base)); err != nil {
		return err
	}
	for i := w.disk + 1; ; i++ {
		name := SegmentName(w.base, i)
		exists, err := w.fs.ExistsFile(name)
		if err != nil || !exists {
			break
		}
		if err := w.fs.DeleteFile(name); err != nil {
			return err
		}
	}
	w.committed = true
	return nil
}

// Abort deletes every temp segment written so far; nothing of a
// pre-existing archive at the target path has been touched yet, so the
// old archive survives an aborted save intact.
func (w *Writer) Abort() error {
	if w.committed || w.aborted {
		return nil
	}
	w.aborted = true
	w.temp.Close()
	for _, tmp := range w.tempPaths {
		w.fs.DeleteFile(tmp)
	}
	w.tempPaths = nil
	return w.fs.DeleteFile(w.tempPath)
}

// Segments returns the ordered final names of every segment persisted by
// Commit (not including the archive's own final path).
func (w *Writer) Segments() []string {
	return append([]string(nil), w.persisted...)
}

// Reader provides transparent cross-segment reads over an already-saved
// archive's segment files, rolling from one physical file to the next as
// reads exhaust the current one.
type Reader struct {
	fs    fsys.FS
	names []string
	sizes []int64

	disk int
	pos  int64
	cur  fsys.File
}

// DiscoverSegments probes the directory containing base for prior
// segments base.z01, base.z02, ... (by increasing index, stopping at the
// first index that doesn't exist) and returns the full ordered segment
// path list, base itself always last.
func DiscoverSegments(fs fsys.FS, base string) ([]string, error) {
	var names []string
	for i := 1; ; i++ {
		name := SegmentName(base, i)
		exists, err := fs.ExistsFile(name)
		if err != nil {
			return nil, err
		}
		if !exists {
			break
		}
		names = append(names, name)
	}
	return append(names, base), nil
}

// OpenReader builds a Reader over the given ordered list of segment
// paths (as returned by DiscoverSegments).
func OpenReader(fs fsys.FS, names []string) (*Reader, error) {
	sizes := make([]int64, len(names))
	for i, name := range names {
		f, err := fs.OpenRead(name)
		if err != nil {
			return nil, err
		}
		size, err := f.Size()
		f.Close()
		if err != nil {
			return nil, err
		}
		sizes[i] = size
	}
	r := &Reader{fs: fs, names: names, sizes: sizes}
	return r, nil
}

// NumSegments returns how many physical segments make up the archive.
func (r *Reader) NumSegments() int { return len(r.names) }

// SegmentSize returns the size of segment disk.
func (r *Reader) SegmentSize(disk int) int64 { return r.sizes[disk] }

// Seek positions the reader at (disk, offset), opening that segment file
// if it is not already the one open.
func (r *Reader) Seek(disk int, offset int64) error {
	if disk < 0 || disk >= len(r.names) {
		return fmt.Errorf("zipcore/segment: disk %d out of range [0,%d)", disk, len(r.names))
	}
	if r.cur == nil || r.disk != disk {
		if r.cur != nil {
			r.cur.Close()
			r.cur = nil
		}
		f, err := r.fs.OpenRead(r.names[disk])
		if err != nil {
			return err
		}
		r.cur = f
		r.disk = disk
	}
	if _, err := r.cur.Seek(offset, io.SeekStart); err != nil {
		return err
	}
	r.pos = offset
	return nil
}

// Disk returns the reader's current disk index.
func (r *Reader) Disk() int { return r.disk }

// Offset returns the reader's current offset within the current disk.
func (r *Reader) Offset() int64 { return r.pos }

// Read implements transparent cross-segment reads: once the current
// segment is exhausted it rolls to the next one automatically. A read that
// hits end of file before the segment's known size, in any segment, is
// reported as ErrCorrupt rather than silently truncated.
func (r *Reader) Read(p []byte) (int, error) {
	if r.cur == nil {
		if err := r.Seek(0, 0); err != nil {
			return 0, err
		}
	}
	n, err := r.cur.Read(p)
	r.pos += int64(n)
	if err == io.EOF || (n == 0 && err == nil) {
		if r.pos < r.sizes[r.disk] {
			return n, ErrCorrupt
		}
		if r.disk+1 >= len(r.names) {
			return n, io.EOF
		}
		if err := r.Seek(r.disk+1, 0); err != nil {
			return n, err
		}
		if n > 0 {
			return n, nil
		}
		return r.Read(p)
	}
	return n, err
}

// Close releases the currently open segment file, if any.
func (r *Reader) Close() error {
	if r.cur == nil {
		return nil
	}
	err := r.cur.Close()
	r.cur = nil
	return err
}
