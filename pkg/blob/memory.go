package blob

import (
	"context"
	"fmt"
	"sync"
)

// MemoryStore is an in-process Store used by tests and local development.
type MemoryStore struct {
	mu      sync.RWMutex
	objects map[string][]byte
	types   map[string]string
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		objects: make(map[string][]byte),
		types:   make(map[string]string),
	}
}

func (s *MemoryStore) Put(ctx context.Context, container, key string, data []byte, contentType string) (Locator, error) {
	if err := ctx.Err(); err != nil {
		return Locator{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	buf := make([]byte, len(data))
	copy(buf, data)
	id := container + "/" + key
	s.objects[id] = buf
	s.types[id] = contentType
	return Locator{
		Container:   container,
		Key:         key,
		ContentType: contentType,
		SizeBytes:   int64(len(data)),
		Checksum:    Checksum(data),
	}, nil
}

func (s *MemoryStore) Get(ctx context.Context, container, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.objects[container+"/"+key]
	if !ok {
		return nil, fmt.Errorf("blob %s/%s not found", container, key)
	}
	buf := make([]byte, len(data))
	copy(buf, data)
	return buf, nil
}

func (s *MemoryStore) Delete(ctx context.Context, container, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	id := container + "/" + key
	delete(s.objects, id)
	delete(s.types, id)
	return nil
}

// Len reports the number of stored objects; used by tests asserting cascade
// deletes.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.objects)
}
