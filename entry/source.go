package entry

import "io"

// Source is the closed set of places an entry's uncompressed bytes can
// come from. It is a sealed interface (isSource is unexported) so package
// entry is the only package that can add a new kind.
type Source interface {
	isSource()
}

// FileSource reads its bytes from a path on the host filesystem at save
// time.
type FileSource struct {
	Path string
}

func (FileSource) isSource() {}

// StreamSource lazily opens a stream at save time via Open, and always
// calls Close (even on error) once the pipeline is done with it. Modeled
// as a single io.ReadCloser factory since io.Closer already gives us the
// closer half for free.
type StreamSource struct {
	Open func() (io.ReadCloser, error)
}

func (StreamSource) isSource() {}

// BytesSource holds the entry's bytes already in memory.
type BytesSource struct {
	Data []byte
}

func (BytesSource) isSource() {}

// WriteDelegateSource lets the caller produce bytes by writing to a
// supplied io.Writer, rather than handing back a Reader - useful when the
// natural way to produce the content is push-based (e.g. a template
// renderer or another archive's streaming API).
type WriteDelegateSource struct {
	Write func(w io.Writer) error
}

func (WriteDelegateSource) isSource() {}

// PriorArchiveSource identifies bytes that already exist, verbatim, in an
// archive this engine previously read - the source for the copy-through
// fast path in the save/update transaction. StartDisk/
// StartOffset locate the entry's local header in the prior archive;
// EndDisk/EndOffset locate the first byte after the entry (local header
// through trailing data descriptor, inclusive) - expressed as a
// disk/offset pair rather than a byte count since the span may cross a
// segment boundary.
type PriorArchiveSource struct {
	StartDisk   int
	StartOffset int64
	EndDisk     int
	EndOffset   int64
}

func (PriorArchiveSource) isSource() {}
