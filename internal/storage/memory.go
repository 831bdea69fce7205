package storage

import (
	"bytes"
	"context"
	"io"
	"sync"
	"time"
)

type memoryObject struct {
	data        []byte
	contentType string
}

// MemoryStore keeps objects in process memory. Used for tests and the
// single-binary dev setup.
type MemoryStore struct {
	mu      sync.RWMutex
	objects map[string]memoryObject
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{objects: make(map[string]memoryObject)}
}

func memoryKey(bucket, object string) string {
	return bucket + "/" + object
}

func (s *MemoryStore) PutObject(ctx context.Context, bucket, object string, reader io.Reader, size int64, opts PutOptions) error {
	data, err := io.ReadAll(reader)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.objects[memoryKey(bucket, object)] = memoryObject{data: data, contentType: opts.ContentType}
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) GetObject(ctx context.Context, bucket, object string) (io.ReadCloser, ObjectInfo, error) {
	s.mu.RLock()
	obj, ok := s.objects[memoryKey(bucket, object)]
	s.mu.RUnlock()
	if !ok {
		return nil, ObjectInfo{}, ErrObjectNotFound
	}
	info := ObjectInfo{ObjectName: object, Size: int64(len(obj.data)), ContentType: obj.contentType}
	return io.NopCloser(bytes.NewReader(obj.data)), info, nil
}

func (s *MemoryStore) StatObject(ctx context.Context, bucket, object string) (ObjectInfo, error) {
	s.mu.RLock()
	obj, ok := s.objects[memoryKey(bucket, object)]
	s.mu.RUnlock()
	if !ok {
		return ObjectInfo{}, ErrObjectNotFound
	}
	return ObjectInfo{ObjectName: object, Size: int64(len(obj.data)), ContentType: obj.contentType}, nil
}

func (s *MemoryStore) RemoveObject(ctx context.Context, bucket, object string) error {
	s.mu.Lock()
	delete(s.objects, memoryKey(bucket, object))
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) PresignedGetObject(ctx context.Context, bucket, object string, expiry time.Duration) (string, error) {
	return "", ErrPresignUnsupported
}

// Len reports how many objects are stored.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.objects)
}
