// Package entry implements the per-entry model and write/read pipeline
// assembly: immutable-after-commit metadata plus the compression/
// encryption/CRC layering, streaming in both directions.
//
// State is the single owned struct threaded through the save/read code
// paths. Only the archive package (outside this one) ever mutates it, and
// it does so through Entry.Freeze/Entry.State rather than exported fields.
package entry

import (
	"os"
	"time"

	"github.com/martin-sucha/zipcore/cipher"
	"github.com/martin-sucha/zipcore/codec"
	"github.com/martin-sucha/zipcore/format"
)

// TimestampKind is a bitmask selecting which extra-field timestamp
// flavors get emitted for an entry; at least one is always emitted, more
// are allowed.
type TimestampKind int

const (
	TimestampDOS TimestampKind = 1 << iota
	TimestampNTFS
	TimestampUnix
)

// DefaultTimestampKinds emits the DOS header times plus the Unix extended
// timestamp extra field: cheap, portable, and readable by every unzip
// implementation in practice.
const DefaultTimestampKinds = TimestampDOS | TimestampUnix

// Times holds an entry's three possible timestamps. Fields left zero are
// simply not recorded (DOS time falls back to "unknown" -> both 0 in that
// extra/header field).
type Times struct {
	Modified time.Time
	Accessed time.Time
	Created  time.Time
}

// State is the mutable-until-frozen portion of an entry: everything that
// is populated by a write and stays authoritative until a re-save
// invalidates it. A zero State is the state of an entry that has never
// been written.
type State struct {
	CRC32             uint32
	CompressedSize    uint64
	UncompressedSize  uint64
	StartDisk         uint32
	LocalHeaderOffset uint64
	// AESVerified records whether an AES entry's trailing HMAC has been
	// checked (set by a successful Extract, not by Save - Save doesn't
	// decrypt what it just encrypted).
	AESVerified bool

	// Flags, WireMethod and ReaderVersion record the exact on-wire values
	// this entry's local/central header carried on its last write or read -
	// needed to rebuild a faithful central directory header for a
	// copy-through entry, whose physical bytes (and therefore whatever GP
	// flags and method marker they were written with) are never touched.
	Flags         uint16
	WireMethod    uint16
	ReaderVersion uint16
}

// Entry is one member of an Archive: its immutable source-of-truth plus a
// mutable State that gets filled in (and re-filled in, on re-save) by the
// archive package's save/read code paths.
type Entry struct {
	Name string

	Source Source

	Times          Times
	TimestampKinds TimestampKind

	Mode os.FileMode // governs DOS attribute byte + unix external attrs

	Method    uint16 // format.Store / format.Deflate / format.BZip2
	Level     codec.Level
	Cipher    cipher.Kind
	Password  string // per-entry override; empty means "use archive default"
	TextFlag  bool
	Comment   string

	// frozen is set true the first time this entry is successfully
	// written; subsequent saves are free to re-derive State (a re-save
	// invalidates the old numbers) but the Source/metadata fields above
	// are no longer meant to be mutated by callers once true.
	frozen bool
	state  State
}

// New constructs an Entry with sane per-field defaults (store, no
// encryption, default timestamp kinds). The archive package's Add* methods
// build their entries with it and then apply the archive's defaults.
func New(name string, src Source) *Entry {
	return &Entry{
		Name:           name,
		Source:         src,
		TimestampKinds: DefaultTimestampKinds,
		Method:         format.Store,
		Mode:           0o644,
	}
}

// FromFileInfo populates Mode and Times.Modified from a host os.FileInfo.
func FromFileInfo(e *Entry, info os.FileInfo) {
	e.Mode = info.Mode()
	e.Times.Modified = info.ModTime().UTC()
}

// IsDir reports whether this entry represents a directory (name ends in
// '/' or the mode says so).
func (e *Entry) IsDir() bool {
	return e.Mode.IsDir() || (len(e.Name) > 0 && e.Name[len(e.Name)-1] == '/')
}

// State returns a copy of the entry's current mutable state.
func (e *Entry) State() State { return e.state }

// Frozen reports whether this entry has ever been successfully written.
func (e *Entry) Frozen() bool { return e.frozen }

// Freeze records a newly-computed State, e.g. after a successful write or
// read, and marks the entry as frozen. This is the entry package's only
// exported mutator of State.
func (e *Entry) Freeze(s State) {
	e.state = s
	e.frozen = true
}

// ExternalAttrs derives the external-attributes dword and creator-version
// high byte the central directory header needs, from Mode.
func (e *Entry) ExternalAttrs() (creatorHighByte uint16, attrs uint32) {
	return format.ExternalAttrsFromMode(e.Mode)
}

// Clone returns a deep-enough copy of e suitable for use as a fresh,
// unfrozen entry: metadata is kept, State is cleared and the copy is not
// frozen, so saving it re-encodes the entry.
func (e *Entry) Clone() *Entry {
	c := *e
	c.frozen = false
	c.state = State{}
	return &c
}
