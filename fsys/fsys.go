// Package fsys is the small filesystem/stream boundary the core engine
// requires of its host. It exists so the save/update
// transaction and segmented-stream manager never call os.* directly,
// keeping them testable against an in-memory host and, in principle,
// portable to hosts that aren't a local filesystem at all.
package fsys

import "io"

// File is the seekable read/write handle the engine operates on.
type File interface {
	io.Reader
	io.Writer
	io.Seeker
	io.Closer
	// Truncate resizes the file; used when truncating a segment
	// backward after an update shrinks the archive.
	Truncate(size int64) error
	// Size reports the file's current size.
	Size() (int64, error)
}

// FS is the filesystem abstraction consumed by the core.
type FS interface {
	OpenRead(path string) (File, error)
	// OpenReadWrite opens path for read/write, per mode.
	OpenReadWrite(path string, mode OpenMode) (File, error)
	ExistsFile(path string) (bool, error)
	ExistsDir(path string) (bool, error)
	CreateDirAll(path string) error
	// Move renames src to dst. The destination must not already exist;
	// callers that need to replace an existing file do the zombie dance
	// (see the archive package's save transaction) rather than relying on
	// Move to overwrite.
	Move(src, dst string) error
	// DeleteFile removes path. It is idempotent: deleting a path that
	// does not exist is not an error.
	DeleteFile(path string) error
	// RandomName returns a filesystem-safe random basename suitable for a
	// temp file, with no extension.
	RandomName() string

	Join(elem ...string) string
	Parent(path string) string
	Basename(path string) string
	IsAbsolute(path string) bool
	Separator() rune
}

// OpenMode selects OpenReadWrite's create/replace/open-if-exists behavior.
type OpenMode int

const (
	// OpenCreateNew fails if path already exists.
	OpenCreateNew OpenMode = iota
	// OpenCreateOrReplace creates path, truncating it if it already exists.
	OpenCreateOrReplace
	// OpenExisting fails if path does not already exist.
	OpenExisting
	// OpenExistingOrCreate opens path if present, else creates it.
	OpenExistingOrCreate
)
