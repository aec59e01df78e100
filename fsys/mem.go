package fsys

import (
	"bytes"
	"fmt"
	"io"
	"path"
	"sort"
	"sync"
)

// Mem is an in-memory FS used by this module's own tests, so the
// segment/archive packages can exercise save/update transactions without
// touching a real disk. It is not part of the engine's product surface.
type Mem struct {
	mu      sync.Mutex
	files   map[string]*memBuf
	dirs    map[string]bool
	counter int
}

// NewMem returns an empty in-memory FS rooted at "/".
func NewMem() *Mem {
	return &Mem{
		files: make(map[string]*memBuf),
		dirs:  map[string]bool{"/": true},
	}
}

type memBuf struct{ data []byte }

func (m *Mem) OpenRead(p string) (File, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.files[p]
	if !ok {
		return nil, fmt.Errorf("zipcore/fsys: %s: %w", p, errNotExist)
	}
	return newMemFile(b), nil
}

func (m *Mem) OpenReadWrite(p string, mode OpenMode) (File, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, exists := m.files[p]
	switch mode {
	case OpenCreateNew:
		if exists {
			return nil, fmt.Errorf("zipcore/fsys: %s: %w", p, errExist)
		}
		b = &memBuf{}
		m.files[p] = b
	case OpenCreateOrReplace:
		b = &memBuf{}
		m.files[p] = b
	case OpenExisting:
		if !exists {
			return nil, fmt.Errorf("zipcore/fsys: %s: %w", p, errNotExist)
		}
	case OpenExistingOrCreate:
		if !exists {
			b = &memBuf{}
			m.files[p] = b
		}
	default:
		return nil, fmt.Errorf("zipcore/fsys: invalid OpenMode")
	}
	return newMemFile(b), nil
}

func (m *Mem) ExistsFile(p string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.files[p]
	return ok, nil
}

func (m *Mem) ExistsDir(p string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.dirs[p], nil
}

func (m *Mem) CreateDirAll(p string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for d := p; d != "/" && d != "."; d = path.Dir(d) {
		m.dirs[d] = true
	}
	return nil
}

func (m *Mem) Move(src, dst string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.files[dst]; ok {
		return fmt.Errorf("zipcore/fsys: %s: %w", dst, errExist)
	}
	b, ok := m.files[src]
	if !ok {
		return fmt.Errorf("zipcore/fsys: %s: %w", src, errNotExist)
	}
	m.files[dst] = b
	delete(m.files, src)
	return nil
}

func (m *Mem) DeleteFile(p string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.files, p)
	return nil
}

func (m *Mem) RandomName() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counter++
	return fmt.Sprintf("mem-tmp-%08d", m.counter)
}

func (m *Mem) Join(elem ...string) string { return path.Join(elem...) }
func (m *Mem) Parent(p string) string     { return path.Dir(p) }
func (m *Mem) Basename(p string) string   { return path.Base(p) }
func (m *Mem) IsAbsolute(p string) bool   { return path.IsAbs(p) }
func (m *Mem) Separator() rune            { return '/' }

// Names returns the sorted list of file paths currently stored, for test
// assertions.
func (m *Mem) Names() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	names := make([]string, 0, len(m.files))
	for n := range m.files {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

type memFile struct {
	buf    *memBuf
	r      *bytes.Reader
	closed bool
}

func newMemFile(b *memBuf) *memFile {
	return &memFile{buf: b, r: bytes.NewReader(b.data)}
}

func (f *memFile) Read(p []byte) (int, error) { return f.r.Read(p) }

func (f *memFile) Write(p []byte) (int, error) {
	pos, _ := f.r.Seek(0, io.SeekCurrent)
	end := pos + int64(len(p))
	if end > int64(len(f.buf.data)) {
		grown := make([]byte, end)
		copy(grown, f.buf.data)
		f.buf.data = grown
	}
	n := copy(f.buf.data[pos:end], p)
	f.r = bytes.NewReader(f.buf.data)
	f.r.Seek(end, io.SeekStart)
	return n, nil
}

func (f *memFile) Seek(offset int64, whence int) (int64, error) {
	return f.r.Seek(offset, whence)
}

func (f *memFile) Close() error {
	f.closed = true
	return nil
}

func (f *memFile) Truncate(size int64) error {
	if size <= int64(len(f.buf.data)) {
		f.buf.data = f.buf.data[:size]
	} else {
		grown := make([]byte, size)
		copy(grown, f.buf.data)
		f.buf.data = grown
	}
	pos, _ := f.r.Seek(0, io.SeekCurrent)
	f.r = bytes.NewReader(f.buf.data)
	if pos > size {
		pos = size
	}
	f.r.Seek(pos, io.SeekStart)
	return nil
}

func (f *memFile) Size() (int64, error) {
	return int64(len(f.buf.data)), nil
}

type memError string

func (e memError) Error() string { return string(e) }

const (
	errNotExist memError = "file does not exist"
	errExist    memError = "file already exists"
)
