package filemanager

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
)

// IOError reports a local filesystem failure.
type IOError struct {
	Op   string
	Path string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *IOError) Unwrap() error {
	return e.Err
}

// ScratchDir is a temporary directory owned by one processing step. Close
// removes it and is safe to call more than once.
type ScratchDir struct {
	path string
	once sync.Once
	err  error
}

func NewScratchDir(prefix string) (*ScratchDir, error) {
	path, err := os.MkdirTemp("", prefix)
	if err != nil {
		return nil, &IOError{Op: "mkdir", Path: filepath.Join(os.TempDir(), prefix), Err: err}
	}
	return &ScratchDir{path: path}, nil
}

func (s *ScratchDir) Path() string {
	return s.path
}

// Join returns name inside the scratch directory. Only the base of name is
// used so a hostile URL cannot escape the directory.
func (s *ScratchDir) Join(name string) string {
	base := filepath.Base(name)
	if base == "." || base == "/" || base == ".." {
		base = "download"
	}
	return filepath.Join(s.path, base)
}

func (s *ScratchDir) Close() error {
	s.once.Do(func() {
		if err := os.RemoveAll(s.path); err != nil {
			s.err = &IOError{Op: "remove", Path: s.path, Err: err}
		}
	})
	return s.err
}

// WriteFile streams r into a new file at path.
func WriteFile(path string, r io.Reader) error {
	f, err := os.Create(path)
	if err != nil {
		return &IOError{Op: "create", Path: path, Err: err}
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		return &IOError{Op: "write", Path: path, Err: err}
	}
	if err := f.Close(); err != nil {
		return &IOError{Op: "close", Path: path, Err: err}
	}
	return nil
}

// ReadFile reads a local file, wrapping failures as IOError.
func ReadFile(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &IOError{Op: "read", Path: path, Err: err}
	}
	return data, nil
}
