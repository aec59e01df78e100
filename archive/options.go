// Package archive implements the archive model and its operations: the
// ordered entry collection, the central-directory reader with full-scan
// recovery, extraction, and the save/update transaction.
package archive

import (
	"github.com/martin-sucha/zipcore"
	"github.com/martin-sucha/zipcore/cipher"
	"github.com/martin-sucha/zipcore/codec"
	"github.com/martin-sucha/zipcore/format"
	"github.com/martin-sucha/zipcore/fsys"
	"github.com/martin-sucha/zipcore/progress"
)

// EncodingPolicy controls when names/comments not representable in CP437
// get the UTF-8 general-purpose flag.
type EncodingPolicy int

const (
	EncodingAsNeeded EncodingPolicy = iota // default: UTF-8 flag only when CP437 can't represent the string
	EncodingAlways
	EncodingNever
)

// Zip64Policy controls when ZIP64 markers are emitted.
type Zip64Policy int

const (
	Zip64AsNeeded Zip64Policy = iota // default
	Zip64Never
	Zip64Always
)

// Options holds the archive-level policy knobs, constructed via
// functional options (archive.New(opts...)).
type Options struct {
	DefaultCipher  cipher.Kind
	Password       string
	DefaultMethod  uint16
	Level          codec.Level
	TextMode       bool
	EncodingPolicy EncodingPolicy
	MaxSegmentSize int64
	Zip64Policy    Zip64Policy

	CaseSensitiveRetrieval bool
	AllowDuplicateNames    bool

	Logger   zipcore.Logger
	Progress progress.Sink
	Canceler *progress.Canceler
	FS       fsys.FS
}

func defaultOptions() Options {
	return Options{
		DefaultCipher:  cipher.None,
		DefaultMethod:  format.Store,
		Level:          codec.LevelDefault,
		EncodingPolicy: EncodingAsNeeded,
		MaxSegmentSize: 0,
		Zip64Policy:    Zip64AsNeeded,
		Logger:         zipcore.NopLogger{},
		Progress:       progress.NopSink{},
		Canceler:       &progress.Canceler{},
		FS:             fsys.NewLocal(),
	}
}

// Option mutates an in-progress Options during New.
type Option func(*Options)

func WithDefaultCipher(k cipher.Kind) Option { return func(o *Options) { o.DefaultCipher = k } }
func WithPassword(p string) Option           { return func(o *Options) { o.Password = p } }
func WithDefaultMethod(m uint16) Option      { return func(o *Options) { o.DefaultMethod = m } }
func WithLevel(l codec.Level) Option         { return func(o *Options) { o.Level = l } }
func WithTextMode(b bool) Option             { return func(o *Options) { o.TextMode = b } }
func WithEncodingPolicy(p EncodingPolicy) Option {
	return func(o *Options) { o.EncodingPolicy = p }
}
func WithMaxSegmentSize(n int64) Option    { return func(o *Options) { o.MaxSegmentSize = n } }
func WithZip64Policy(p Zip64Policy) Option { return func(o *Options) { o.Zip64Policy = p } }
func WithCaseSensitiveRetrieval(b bool) Option {
	return func(o *Options) { o.CaseSensitiveRetrieval = b }
}
func WithAllowDuplicateNames(b bool) Option {
	return func(o *Options) { o.AllowDuplicateNames = b }
}
func WithLogger(l zipcore.Logger) Option           { return func(o *Options) { o.Logger = l } }
func WithProgress(s progress.Sink) Option          { return func(o *Options) { o.Progress = s } }
func WithCanceler(c *progress.Canceler) Option     { return func(o *Options) { o.Canceler = c } }
func WithFS(fs fsys.FS) Option                     { return func(o *Options) { o.FS = fs } }

// Context is the small, back-reference-free bundle passed into entry-level
// operations that need archive policy (default cipher/password/method/
// level) without an entry holding a pointer back to its owning Archive.
type Context struct {
	DefaultCipher cipher.Kind
	Password      string
	DefaultMethod uint16
	Level         codec.Level
	TextMode      bool
	Zip64Policy   Zip64Policy
}

func (o *Options) context() Context {
	return Context{
		DefaultCipher: o.DefaultCipher,
		Password:      o.Password,
		DefaultMethod: o.DefaultMethod,
		Level:         o.Level,
		TextMode:      o.TextMode,
		Zip64Policy:   o.Zip64Policy,
	}
}
