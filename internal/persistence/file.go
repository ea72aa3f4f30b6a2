// Package persistence owns the on-disk JSON document.
//
// The document is read once at startup and rewritten wholesale after every
// mutation. Writes go to a temp file in the same directory which is fsynced
// and then renamed over the target, so a crash mid-write leaves the previous
// version intact.
package persistence

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// File is a JSON document stored at a fixed path.
type File struct {
	path string
	perm os.FileMode
}

// NewFile returns a File for path. The parent directory is created on the
// first Save if it does not exist yet.
func NewFile(path string) *File {
	return &File{path: path, perm: 0644}
}

// Path returns the location of the document.
func (f *File) Path() string {
	return f.path
}

// Load decodes the document into v. It reports false, with no error, when the
// file does not exist yet.
func (f *File) Load(v any) (bool, error) {
	file, err := os.Open(f.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	defer file.Close()

	if err := json.NewDecoder(bufio.NewReader(file)).Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return false, fmt.Errorf("decode %s: empty document", f.path)
		}
		return false, fmt.Errorf("decode %s: %w", f.path, err)
	}
	return true, nil
}

// Save pretty-prints v and atomically replaces the document with it.
func (f *File) Save(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode document: %w", err)
	}
	data = append(data, '\n')

	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(f.path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer func() {
		_ = tmp.Close()
		if tmpName != "" {
			_ = os.Remove(tmpName)
		}
	}()

	if err := tmp.Chmod(f.perm); err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		return err
	}
	if err := tmp.Sync(); err != nil {
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmpName, f.path); err != nil {
		return err
	}
	tmpName = ""

	// Best-effort: fsync the directory so the rename is durable on POSIX.
	if d, err := os.Open(dir); err == nil {
		_ = d.Sync()
		_ = d.Close()
	}
	return nil
}
