package archive

import (
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/martin-sucha/zipcore"
	"github.com/martin-sucha/zipcore/codec"
	"github.com/martin-sucha/zipcore/entry"
	"github.com/martin-sucha/zipcore/format"
	"github.com/martin-sucha/zipcore/fsys"
	"github.com/martin-sucha/zipcore/progress"
)

// Archive is the in-memory model of a PKZIP archive: an ordered entry
// collection plus archive-level options. It is single-owner and not safe
// for concurrent use: two goroutines must never operate on the same
// *Archive concurrently.
type Archive struct {
	opts    Options
	comment string

	entries []*entry.Entry
	index   map[string]int // fold(name) -> index into entries, kept in sync by insert/remove

	// readSource, when non-nil, is the archive this instance was Read
	// from: its segment reader backs any PriorArchiveSource entries during
	// a subsequent Save (the copy-through fast path), and it is what a
	// self-save must keep open until the new file is fully written.
	readSource     *readState
	numSegments    int
}

// New constructs an empty Archive. Options default to: no encryption, no
// password, Store method, default compression level, as-needed alternate
// encoding, single-file (unsegmented) output, as-needed ZIP64,
// case-insensitive lookup, duplicate names rejected, a no-op logger, a
// no-op progress sink, a fresh cancellation flag, and the local
// filesystem.
func New(opts ...Option) (*Archive, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if o.MaxSegmentSize != 0 {
		if err := validateSegmentSize(o.MaxSegmentSize); err != nil {
			return nil, err
		}
	}
	return &Archive{
		opts:  o,
		index: make(map[string]int),
	}, nil
}

func validateSegmentSize(n int64) error {
	const minSegmentSize = 64 * 1024
	if n < minSegmentSize {
		return zipcore.NewError(zipcore.KindInvalidArgument, "New", "",
			errInvalidSegmentSize(n))
	}
	return nil
}

type errInvalidSegmentSize int64

func (e errInvalidSegmentSize) Error() string {
	return "max segment size below the 64 KiB floor"
}

// Comment returns the archive-level comment.
func (a *Archive) Comment() string { return a.comment }

// SetComment sets the archive-level comment (up to 65535 bytes; callers
// exceeding this limit will get ErrInvalidArgument at Save).
func (a *Archive) SetComment(c string) { a.comment = c }

// Entries returns the entry list in insertion order. The returned slice
// must not be mutated by the caller; use the Add*/Remove*/Update* methods
// instead so the name index stays consistent.
func (a *Archive) Entries() []*entry.Entry {
	out := make([]*entry.Entry, len(a.entries))
	copy(out, a.entries)
	return out
}

// normalizeName canonicalizes an in-archive name: forward-slash path
// separator, no leading separator, volume letters stripped.
func normalizeName(name string) string {
	name = strings.ReplaceAll(name, `\`, "/")
	if len(name) >= 2 && name[1] == ':' && ((name[0] >= 'a' && name[0] <= 'z') || (name[0] >= 'A' && name[0] <= 'Z')) {
		name = name[2:]
	}
	for strings.HasPrefix(name, "/") {
		name = name[1:]
	}
	return name
}

func (a *Archive) foldName(name string) string {
	if a.opts.CaseSensitiveRetrieval {
		return name
	}
	return strings.ToLower(name)
}

// FindEntry returns the first entry (in insertion order) whose name
// matches, applying the archive's case-(in)sensitivity policy.
func (a *Archive) FindEntry(name string) (*entry.Entry, bool) {
	name = normalizeName(name)
	i, ok := a.index[a.foldName(name)]
	if !ok {
		return nil, false
	}
	return a.entries[i], true
}

// add appends e to the archive, rejecting a duplicate name unless
// AllowDuplicateNames is set.
func (a *Archive) add(e *entry.Entry) error {
	a.opts.Progress.OnProgress(progress.Event{Kind: progress.AddStarted, EntryName: e.Name})
	e.Name = normalizeName(e.Name)
	key := a.foldName(e.Name)
	if !a.opts.AllowDuplicateNames {
		if _, exists := a.index[key]; exists {
			err := zipcore.NewError(zipcore.KindDuplicateName, "Add", e.Name, nil)
			a.opts.Progress.OnProgress(progress.Event{Kind: progress.AddCompleted, EntryName: e.Name, Err: err})
			return err
		}
	}
	a.index[key] = len(a.entries)
	a.entries = append(a.entries, e)
	a.opts.Progress.OnProgress(progress.Event{Kind: progress.AddCompleted, EntryName: e.Name})
	return nil
}

// AddBytes adds an in-memory buffer as a new entry named name.
func (a *Archive) AddBytes(name string, data []byte) (*entry.Entry, error) {
	e := entry.New(name, entry.BytesSource{Data: data})
	a.applyDefaults(e)
	if err := a.add(e); err != nil {
		return nil, err
	}
	return e, nil
}

// AddFromStream adds a new entry named name whose bytes are produced by
// calling open lazily at save time; the returned ReadCloser's Close is
// always invoked once the pipeline is done with it, success or failure.
func (a *Archive) AddFromStream(name string, open func() (io.ReadCloser, error)) (*entry.Entry, error) {
	e := entry.New(name, entry.StreamSource{Open: open})
	a.applyDefaults(e)
	if err := a.add(e); err != nil {
		return nil, err
	}
	return e, nil
}

// AddWriteDelegate adds a new entry named name whose bytes are produced by
// calling write with the pipeline's input writer at save time.
func (a *Archive) AddWriteDelegate(name string, write func(w io.Writer) error) (*entry.Entry, error) {
	e := entry.New(name, entry.WriteDelegateSource{Write: write})
	a.applyDefaults(e)
	if err := a.add(e); err != nil {
		return nil, err
	}
	return e, nil
}

// AddFile adds the host file at hostPath as a new entry, named by
// joining archiveDir (may be "") with the file's base name. The file's
// bytes are read (at save time) through the archive's configured fsys.FS,
// so a non-local FS must have hostPath populated under that same path for
// Save to succeed; metadata (size, mode, mtime) is read directly from the
// host via os.Stat.
func (a *Archive) AddFile(hostPath, archiveDir string) (*entry.Entry, error) {
	info, err := os.Stat(hostPath)
	if err != nil {
		return nil, zipcore.NewError(zipcore.KindNotFound, "AddFile", hostPath, err)
	}
	if info.IsDir() {
		return nil, zipcore.NewError(zipcore.KindInvalidArgument, "AddFile", hostPath, nil)
	}
	name := filepath.Base(hostPath)
	if archiveDir != "" {
		name = archiveDir + "/" + name
	}
	e := entry.New(name, entry.FileSource{Path: hostPath})
	entry.FromFileInfo(e, info)
	a.applyDefaults(e)
	if err := a.add(e); err != nil {
		return nil, err
	}
	return e, nil
}

// AddDirectory recursively adds every file under hostPath, rooted at
// archiveDir (may be "") inside the archive; directories themselves
// become zero-data entries with a trailing "/" name.
func (a *Archive) AddDirectory(hostPath, archiveDir string) error {
	base := filepath.Clean(hostPath)
	return filepath.Walk(hostPath, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, rerr := filepath.Rel(base, p)
		if rerr != nil {
			return rerr
		}
		rel = filepath.ToSlash(rel)
		var name string
		switch {
		case rel == ".":
			name = archiveDir
		case archiveDir == "":
			name = rel
		default:
			name = archiveDir + "/" + rel
		}
		if name == "" {
			return nil
		}
		if info.IsDir() {
			e := entry.New(name+"/", nil)
			entry.FromFileInfo(e, info)
			a.applyDefaults(e)
			return a.add(e)
		}
		e := entry.New(name, entry.FileSource{Path: p})
		entry.FromFileInfo(e, info)
		a.applyDefaults(e)
		return a.add(e)
	})
}

// applyDefaults fills in an entry's method/level/cipher/password from the
// archive's policy context, called once at add time so later
// archive-option changes don't silently reach back into already-added
// entries: entries carry only intrinsic data, policy is resolved at the
// call site, not via a back-reference to the archive.
func (a *Archive) applyDefaults(e *entry.Entry) {
	ctx := a.opts.context()
	e.Method = ctx.DefaultMethod
	if ctx.Level == codec.LevelNone && ctx.DefaultMethod == format.Deflate {
		// A "no compression" level means the entry is stored outright
		// rather than wrapped in uncompressed DEFLATE framing.
		e.Method = format.Store
	}
	e.Level = ctx.Level
	e.Cipher = ctx.DefaultCipher
	e.Password = ctx.Password
	e.TextFlag = ctx.TextMode
}

// UpdateFile replaces any existing entry of the same archive name (as
// AddFile would derive it) with a freshly-sourced one; remove+add
// semantics.
func (a *Archive) UpdateFile(hostPath, archiveDir string) (*entry.Entry, error) {
	name := filepath.Base(hostPath)
	if archiveDir != "" {
		name = archiveDir + "/" + name
	}
	_ = a.RemoveEntry(name)
	return a.AddFile(hostPath, archiveDir)
}

// UpdateItem replaces any existing entry named name with one sourced from
// data; remove+add semantics.
func (a *Archive) UpdateItem(name string, data []byte) (*entry.Entry, error) {
	_ = a.RemoveEntry(name)
	return a.AddBytes(name, data)
}

// RemoveEntry removes the entry identified by name (or, if it already is
// one, the *entry.Entry itself), reindexing the remaining entries.
func (a *Archive) RemoveEntry(nameOrEntry interface{}) error {
	var name string
	switch v := nameOrEntry.(type) {
	case string:
		name = normalizeName(v)
	case *entry.Entry:
		name = v.Name
	default:
		return zipcore.NewError(zipcore.KindInvalidArgument, "RemoveEntry", "", nil)
	}
	key := a.foldName(name)
	i, ok := a.index[key]
	if !ok {
		return zipcore.NewError(zipcore.KindNotFound, "RemoveEntry", name, nil)
	}
	a.entries = append(a.entries[:i], a.entries[i+1:]...)
	a.rebuildIndex()
	return nil
}

func (a *Archive) rebuildIndex() {
	a.index = make(map[string]int, len(a.entries))
	for i, e := range a.entries {
		a.index[a.foldName(e.Name)] = i
	}
}

// FS returns the filesystem boundary this archive was configured with.
func (a *Archive) FS() fsys.FS { return a.opts.FS }

// NumSegments reports how many physical segment files back the archive's
// current read source: 1 for a single-file archive, 0 before any Read or
// Save has bound one.
func (a *Archive) NumSegments() int { return a.numSegments }

// Options returns a copy of the archive's current options.
func (a *Archive) Options() Options { return a.opts }
