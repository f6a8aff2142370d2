package storage

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
)

// MemoryArtifactStore keeps artifacts in memory for tests and local development.
type MemoryArtifactStore struct {
	mu      sync.RWMutex
	objects map[string]memoryObject
}

type memoryObject struct {
	contentType string
	data        []byte
}

// NewMemoryArtifactStore constructs an empty in-memory store.
func NewMemoryArtifactStore() *MemoryArtifactStore {
	return &MemoryArtifactStore{objects: make(map[string]memoryObject)}
}

// Put stores the object.
func (s *MemoryArtifactStore) Put(_ context.Context, object string, contentType string, data []byte) error {
	object = strings.TrimSpace(object)
	if object == "" {
		return errInvalidObject
	}

	copied := make([]byte, len(data))
	copy(copied, data)

	s.mu.Lock()
	s.objects[object] = memoryObject{contentType: contentType, data: copied}
	s.mu.Unlock()
	return nil
}

// Delete removes the object if present.
func (s *MemoryArtifactStore) Delete(_ context.Context, object string) error {
	s.mu.Lock()
	delete(s.objects, strings.TrimSpace(object))
	s.mu.Unlock()
	return nil
}

// SignedURL returns a synthetic URL for stored objects.
func (s *MemoryArtifactStore) SignedURL(_ context.Context, object string, _ time.Duration) (string, error) {
	object = strings.TrimSpace(object)

	s.mu.RLock()
	_, ok := s.objects[object]
	s.mu.RUnlock()
	if !ok {
		return "", ErrObjectNotFound
	}
	return fmt.Sprintf("memory://artifacts/%s", object), nil
}

// Get returns the stored payload, for test assertions.
func (s *MemoryArtifactStore) Get(object string) ([]byte, string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	obj, ok := s.objects[strings.TrimSpace(object)]
	if !ok {
		return nil, "", false
	}
	return obj.data, obj.contentType, true
}

// Len reports the number of stored objects.
func (s *MemoryArtifactStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.objects)
}
