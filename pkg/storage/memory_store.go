package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"
	"time"
)

type memoryObject struct {
	data        []byte
	contentType string
}

// MemoryBlobStore keeps blobs in-process. It mirrors the kind-addressed
// destroy semantics of MinioStore and is used by tests.
type MemoryBlobStore struct {
	mu      sync.RWMutex
	objects map[string]memoryObject

	// DestroyErr, when set, is consulted before each destroy so tests can
	// inject non-retryable failures per blob.
	DestroyErr func(kind ResourceKind, publicID string) error
}

// NewMemoryBlobStore initializes an empty in-memory blob store.
func NewMemoryBlobStore() *MemoryBlobStore {
	return &MemoryBlobStore{objects: make(map[string]memoryObject)}
}

// Put stores blob bytes under the kind prefix.
func (m *MemoryBlobStore) Put(_ context.Context, kind ResourceKind, publicID string, r io.Reader, _ int64, contentType string) (PutResult, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return PutResult{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[objectKey(kind, publicID)] = memoryObject{data: data, contentType: contentType}
	return PutResult{ETag: fmt.Sprintf("mem-%d", len(data))}, nil
}

// Get opens a stored blob for reading.
func (m *MemoryBlobStore) Get(_ context.Context, kind ResourceKind, publicID string) (io.ReadCloser, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	obj, ok := m.objects[objectKey(kind, publicID)]
	if !ok {
		return nil, fmt.Errorf("blob %s/%s not found", kind, publicID)
	}
	return io.NopCloser(bytes.NewReader(obj.data)), nil
}

// PresignGet returns a fake URL for the blob.
func (m *MemoryBlobStore) PresignGet(_ context.Context, kind ResourceKind, publicID, _ string, _ time.Duration) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	key := objectKey(kind, publicID)
	if _, ok := m.objects[key]; !ok {
		return "", fmt.Errorf("blob %s not found", key)
	}
	return "memory://" + key, nil
}

// Destroy removes a blob, honoring the wrong-kind retry contract.
func (m *MemoryBlobStore) Destroy(_ context.Context, kind ResourceKind, publicID string) error {
	if m.DestroyErr != nil {
		if err := m.DestroyErr(kind, publicID); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	key := objectKey(kind, publicID)
	if _, ok := m.objects[key]; !ok {
		return ErrWrongResourceKind
	}
	delete(m.objects, key)
	return nil
}

// Has reports whether a blob exists under the given kind.
func (m *MemoryBlobStore) Has(kind ResourceKind, publicID string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.objects[objectKey(kind, publicID)]
	return ok
}
