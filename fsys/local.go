package fsys

import (
	"errors"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// Local is the FS implementation backed directly by the local filesystem
// via package os (Mem, in mem.go, is the in-memory one used by tests).
type Local struct{}

// NewLocal returns the local-filesystem implementation of FS.
func NewLocal() Local { return Local{} }

func (Local) OpenRead(path string) (File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	return osFile{f}, nil
}

func (Local) OpenReadWrite(path string, mode OpenMode) (File, error) {
	var flag int
	switch mode {
	case OpenCreateNew:
		flag = os.O_RDWR | os.O_CREATE | os.O_EXCL
	case OpenCreateOrReplace:
		flag = os.O_RDWR | os.O_CREATE | os.O_TRUNC
	case OpenExisting:
		flag = os.O_RDWR
	case OpenExistingOrCreate:
		flag = os.O_RDWR | os.O_CREATE
	default:
		return nil, errors.New("zipcore/fsys: invalid OpenMode")
	}
	f, err := os.OpenFile(path, flag, 0o666)
	if err != nil {
		return nil, err
	}
	return osFile{f}, nil
}

func (Local) ExistsFile(path string) (bool, error) {
	info, err := os.Stat(path)
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return !info.IsDir(), nil
}

func (Local) ExistsDir(path string) (bool, error) {
	info, err := os.Stat(path)
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return info.IsDir(), nil
}

func (Local) CreateDirAll(path string) error {
	return os.MkdirAll(path, 0o777)
}

func (Local) Move(src, dst string) error {
	if exists, err := (Local{}).ExistsFile(dst); err != nil {
		return err
	} else if exists {
		return os.ErrExist
	}
	return os.Rename(src, dst)
}

func (Local) DeleteFile(path string) error {
	err := os.Remove(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

func (Local) RandomName() string {
	return uuid.NewString()
}

func (Local) Join(elem ...string) string  { return filepath.Join(elem...) }
func (Local) Parent(path string) string   { return filepath.Dir(path) }
func (Local) Basename(path string) string { return filepath.Base(path) }
func (Local) IsAbsolute(path string) bool { return filepath.IsAbs(path) }
func (Local) Separator() rune             { return filepath.Separator }

// osFile adapts *os.File to the File interface (Size in particular isn't
// part of os.File's own method set).
type osFile struct{ *os.File }

func (f osFile) Size() (int64, error) {
	info, err := f.Stat()
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}
