package filexfer

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// PartialFile is a file being received. Commit makes it visible under its
// final name; Abort discards it.
type PartialFile interface {
	io.WriterAt
	Commit() error
	Abort() error
}

// Store resolves file names for a serving peer.
type Store interface {
	// Create starts receiving name.
	Create(name string) (PartialFile, error)

	// Open returns name for reading along with its size.
	Open(name string) (io.ReadCloser, int64, error)
}

// DirStore serves files from a directory. Names are slash-separated paths
// relative to Root and may not escape it.
type DirStore struct {
	Root string
}

func (d DirStore) path(name string) (string, error) {
	local := filepath.FromSlash(name)
	if name == "" || !filepath.IsLocal(local) {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return filepath.Join(d.Root, local), nil
}

// Create writes into a temporary file next to the destination.
func (d DirStore) Create(name string) (PartialFile, error) {
	dst, err := d.path(name)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return nil, fmt.Errorf("create directory: %w", err)
	}

	f, err := os.CreateTemp(filepath.Dir(dst), "."+filepath.Base(dst)+".*.part")
	if err != nil {
		return nil, fmt.Errorf("create temp file: %w", err)
	}
	return &partialFile{File: f, dst: dst}, nil
}

func (d DirStore) Open(name string) (io.ReadCloser, int64, error) {
	src, err := d.path(name)
	if err != nil {
		return nil, 0, err
	}
	f, err := os.Open(src)
	if err != nil {
		return nil, 0, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, 0, err
	}
	if !info.Mode().IsRegular() {
		f.Close()
		return nil, 0, fmt.Errorf("%w: %q is not a regular file", ErrInvalidName, name)
	}
	return f, info.Size(), nil
}

type partialFile struct {
	*os.File
	dst string
}

func (p *partialFile) Commit() error {
	if err := p.File.Close(); err != nil {
		os.Remove(p.Name())
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(p.Name(), p.dst); err != nil {
		os.Remove(p.Name())
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}

func (p *partialFile) Abort() error {
	p.File.Close()
	return os.Remove(p.Name())
}
