package assets

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
)

// ErrNotFound is returned when a resource id has no backing stream.
var ErrNotFound = errors.New("resource not found")

// Store resolves resource ids (names without extension) to readable streams.
// Returned readers implement io.Seeker so loop bodies can be rewound.
type Store interface {
	Open(id string) (io.ReadCloser, error)
}

// DirStore serves resources from a directory on disk.
type DirStore struct {
	Root string
	Ext  string // appended to ids, e.g. ".ogg"
}

// NewDirStore creates a store rooted at dir. ext defaults to ".ogg".
func NewDirStore(dir, ext string) *DirStore {
	if ext == "" {
		ext = ".ogg"
	}
	return &DirStore{Root: dir, Ext: ext}
}

func (s *DirStore) Open(id string) (io.ReadCloser, error) {
	name, err := resourceName(id, s.Ext)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(filepath.Join(s.Root, filepath.FromSlash(name)))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return nil, fmt.Errorf("open %s: %w", id, err)
	}
	return f, nil
}

// FSStore serves resources from an fs.FS such as an embed.FS.
type FSStore struct {
	FS  fs.FS
	Ext string
}

// NewFSStore creates a store over fsys. ext defaults to ".ogg".
func NewFSStore(fsys fs.FS, ext string) *FSStore {
	if ext == "" {
		ext = ".ogg"
	}
	return &FSStore{FS: fsys, Ext: ext}
}

func (s *FSStore) Open(id string) (io.ReadCloser, error) {
	name, err := resourceName(id, s.Ext)
	if err != nil {
		return nil, err
	}
	f, err := s.FS.Open(name)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return nil, fmt.Errorf("open %s: %w", id, err)
	}
	if rc, ok := f.(io.ReadSeekCloser); ok {
		return rc, nil
	}

	// Not every fs.File can seek; buffer those in memory.
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", id, err)
	}
	return NewReader(data), nil
}

// MemStore is an in-memory store, mostly useful for tools and tests.
type MemStore struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewMemStore creates an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{data: make(map[string][]byte)}
}

// Put registers data under id, replacing any previous value.
func (s *MemStore) Put(id string, data []byte) {
	s.mu.Lock()
	s.data[id] = data
	s.mu.Unlock()
}

func (s *MemStore) Open(id string) (io.ReadCloser, error) {
	s.mu.RLock()
	data, ok := s.data[id]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return NewReader(data), nil
}

// Reader is a seekable in-memory ReadCloser.
type Reader struct {
	*bytes.Reader
}

// NewReader wraps data in a Reader.
func NewReader(data []byte) *Reader {
	return &Reader{Reader: bytes.NewReader(data)}
}

// Close is a no-op.
func (r *Reader) Close() error { return nil }

func resourceName(id, ext string) (string, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return "", fmt.Errorf("%w: empty id", ErrNotFound)
	}
	clean := path.Clean("/" + filepath.ToSlash(id))[1:]
	if clean == "" || clean != filepath.ToSlash(id) {
		return "", fmt.Errorf("%w: invalid id %q", ErrNotFound, id)
	}
	if path.Ext(clean) == "" {
		clean += ext
	}
	return clean, nil
}
