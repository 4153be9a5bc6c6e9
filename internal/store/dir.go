package store

import (
	"os"
	"path/filepath"
	"strings"
)

// Dir is the directory holding QuickNotes' small local state files.
// The zero value resolves to ConfigDir().
type Dir struct {
	Path string
}

func ConfigDir() (string, error) {
	// Test/advanced override (keeps unit tests from touching ~/.quicknotes).
	if v := strings.TrimSpace(os.Getenv("QUICKNOTES_CONFIG_DIR")); v != "" {
		return v, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".quicknotes"), nil
}

func Open(path string) (Dir, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		p, err := ConfigDir()
		if err != nil {
			return Dir{}, err
		}
		path = p
	}
	return Dir{Path: path}, nil
}

func (d Dir) Ensure() error {
	return os.MkdirAll(d.Path, 0o700)
}

func (d Dir) file(name string) string {
	return filepath.Join(d.Path, name)
}

func atomicWriteFile(dir, tmpPattern, path string, b []byte, perm os.FileMode) error {
	f, err := os.CreateTemp(dir, tmpPattern)
	if err != nil {
		return err
	}
	tmp := f.Name()
	defer func() { _ = os.Remove(tmp) }()
	if _, err := f.Write(b); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	_ = os.Chmod(tmp, perm)
	return os.Rename(tmp, path)
}
