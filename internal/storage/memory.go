package storage

import (
	"context"
	"sync"
)

type memoryStore struct {
	mu     sync.RWMutex
	blobs  map[string][]byte
	closed bool
}

// NewMemory returns a process-local BlobStore. Data is lost on exit.
func NewMemory() BlobStore {
	return &memoryStore{blobs: map[string][]byte{}}
}

func memKey(namespace, key string) string { return namespace + "\x00" + key }

func (s *memoryStore) Get(_ context.Context, namespace, key string) ([]byte, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, false, ErrClosed
	}
	b, ok := s.blobs[memKey(namespace, key)]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), b...), true, nil
}

func (s *memoryStore) Put(_ context.Context, namespace, key string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	s.blobs[memKey(namespace, key)] = append([]byte(nil), data...)
	return nil
}

func (s *memoryStore) Close() error {
	s.mu.Lock()
	s.closed = true
	s.blobs = nil
	s.mu.Unlock()
	return nil
}
