package zipcore

import "fmt"

// ErrorKind classifies a failure from the engine so callers can switch
// on failure class without string matching.
type ErrorKind int

const (
	KindOther ErrorKind = iota
	KindIo
	KindNotAZip
	KindCorrupt
	KindUnsupportedCompression
	KindUnsupportedEncryption
	KindBadPassword
	KindZip64Required
	KindDuplicateName
	KindCanceled
	KindInvalidArgument
	KindNotFound
	KindIrreparablyCorrupt
)

func (k ErrorKind) String() string {
	switch k {
	case KindIo:
		return "Io"
	case KindNotAZip:
		return "NotAZip"
	case KindCorrupt:
		return "Corrupt"
	case KindUnsupportedCompression:
		return "UnsupportedCompression"
	case KindUnsupportedEncryption:
		return "UnsupportedEncryption"
	case KindBadPassword:
		return "BadPassword"
	case KindZip64Required:
		return "Zip64Required"
	case KindDuplicateName:
		return "DuplicateName"
	case KindCanceled:
		return "Canceled"
	case KindInvalidArgument:
		return "InvalidArgument"
	case KindNotFound:
		return "NotFound"
	case KindIrreparablyCorrupt:
		return "IrreparablyCorrupt"
	default:
		return "Other"
	}
}

// Error is the concrete error type the engine returns. It carries enough
// structure (Kind, Op, Path) for errors.Is/errors.As-based dispatch while
// still reading as a normal wrapped error in a log line.
type Error struct {
	Kind ErrorKind
	Op   string
	Path string
	Err  error
}

func (e *Error) Error() string {
	switch {
	case e.Path != "" && e.Err != nil:
		return fmt.Sprintf("zipcore: %s %s: %s: %v", e.Op, e.Path, e.Kind, e.Err)
	case e.Path != "":
		return fmt.Sprintf("zipcore: %s %s: %s", e.Op, e.Path, e.Kind)
	case e.Err != nil:
		return fmt.Sprintf("zipcore: %s: %s: %v", e.Op, e.Kind, e.Err)
	default:
		return fmt.Sprintf("zipcore: %s: %s", e.Op, e.Kind)
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is a sentinel for the same Kind, so
// errors.Is(err, zipcore.ErrBadPassword) works against a wrapping *Error.
func (e *Error) Is(target error) bool {
	sentinel, ok := target.(kindSentinel)
	return ok && sentinel.kind() == e.Kind
}

// NewError constructs an *Error; helper used throughout entry/archive/fsys
// call sites instead of ad-hoc fmt.Errorf so the Kind always travels with
// the message.
func NewError(kind ErrorKind, op, path string, err error) *Error {
	return &Error{Kind: kind, Op: op, Path: path, Err: err}
}

type kindSentinel ErrorKind

func (k kindSentinel) kind() ErrorKind { return ErrorKind(k) }

func (k kindSentinel) Error() string { return ErrorKind(k).String() }

// Sentinel values usable with errors.Is against any *Error of the
// matching Kind.
var (
	ErrIo                     = kindSentinel(KindIo)
	ErrNotAZip                = kindSentinel(KindNotAZip)
	ErrCorrupt                = kindSentinel(KindCorrupt)
	ErrUnsupportedCompression = kindSentinel(KindUnsupportedCompression)
	ErrUnsupportedEncryption  = kindSentinel(KindUnsupportedEncryption)
	ErrBadPassword            = kindSentinel(KindBadPassword)
	ErrZip64Required          = kindSentinel(KindZip64Required)
	ErrDuplicateName          = kindSentinel(KindDuplicateName)
	ErrCanceled               = kindSentinel(KindCanceled)
	ErrInvalidArgument        = kindSentinel(KindInvalidArgument)
	ErrNotFound               = kindSentinel(KindNotFound)
	ErrIrreparablyCorrupt     = kindSentinel(KindIrreparablyCorrupt)
)
