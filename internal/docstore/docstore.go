package docstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/gofrs/flock"
)

// File is a JSON document kept in a single file. Reads load the whole
// document, writes replace it atomically. A sibling .lock file serialises
// writers across processes; the mutex does so within one.
type File struct {
	path string
	lock *flock.Flock
	mu   sync.Mutex
}

func New(path string) *File {
	return &File{
		path: path,
		lock: flock.New(path + ".lock"),
	}
}

// Load decodes the document into v. It reports false when the file does not exist.
func (f *File) Load(v any) (bool, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("read %s: %w", filepath.Base(f.path), err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return true, fmt.Errorf("decode %s: %w", filepath.Base(f.path), err)
	}
	return true, nil
}

// Modify runs a read-modify-write cycle under the document lock. fn receives
// whether the document existed and may mutate v before it is written back.
func (f *File) Modify(v any, fn func(exists bool) error) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.withLock(func() error {
		exists, err := f.Load(v)
		if err != nil {
			return err
		}
		if err := fn(exists); err != nil {
			return err
		}
		return f.write(v)
	})
}

func (f *File) withLock(fn func() error) error {
	if err := os.MkdirAll(filepath.Dir(f.path), 0o755); err != nil {
		return fmt.Errorf("create document dir: %w", err)
	}
	if err := f.lock.Lock(); err != nil {
		return fmt.Errorf("lock %s: %w", filepath.Base(f.path), err)
	}
	defer func() { _ = f.lock.Unlock() }()
	return fn()
}

func (f *File) write(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", filepath.Base(f.path), err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(f.path), "."+filepath.Base(f.path)+"-*")
	if err != nil {
		return fmt.Errorf("create temp document: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("write temp document: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("close temp document: %w", err)
	}
	if err := os.Rename(tmp.Name(), f.path); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("replace %s: %w", filepath.Base(f.path), err)
	}
	return nil
}
