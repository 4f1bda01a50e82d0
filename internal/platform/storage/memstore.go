package storage

import (
	"bytes"
	"context"
	"io"
	"sync"
	"time"
)

// MemStore is a thread-safe in-memory Store for tests and development.
type MemStore struct {
	mu    sync.RWMutex
	files map[string][]byte
}

func NewMemStore() *MemStore {
	return &MemStore{files: make(map[string][]byte)}
}

func (s *MemStore) Save(_ context.Context, kind Kind, originalName string, content io.Reader) (*StoredFile, error) {
	data, ext, err := validate(kind, originalName, content)
	if err != nil {
		return nil, err
	}

	rel := kind.Dir + "/" + kind.newName(originalName)

	s.mu.Lock()
	s.files[rel] = data
	s.mu.Unlock()

	return &StoredFile{
		Path:         rel,
		OriginalName: originalName,
		Extension:    ext,
		Size:         int64(len(data)),
		SavedAt:      time.Now().UTC(),
	}, nil
}

func (s *MemStore) Open(_ context.Context, relPath string) (io.ReadCloser, error) {
	rel, err := cleanRelPath(relPath)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	data, ok := s.files[rel]
	s.mu.RUnlock()

	if !ok {
		return nil, ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (s *MemStore) Remove(_ context.Context, relPath string) error {
	rel, err := cleanRelPath(relPath)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.files[rel]; !ok {
		return ErrNotFound
	}
	delete(s.files, rel)
	return nil
}

// Len reports how many files are held, for test assertions.
func (s *MemStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.files)
}
