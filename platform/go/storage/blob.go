package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"

	gcs "cloud.google.com/go/storage"
)

// BlobStore reads and writes document blobs at resolved locations.
// The API layer depends on this interface so handler tests can run
// against the in-memory implementation.
type BlobStore interface {
	Put(ctx context.Context, loc ObjectLocation, contentType string, r io.Reader) (int64, error)
	Open(ctx context.Context, loc ObjectLocation) (io.ReadCloser, error)
	Delete(ctx context.Context, loc ObjectLocation) error
}

// GCSBlobStore stores blobs in Google Cloud Storage.
type GCSBlobStore struct {
	client *gcs.Client
}

func NewGCSBlobStore(client *gcs.Client) *GCSBlobStore {
	if client == nil {
		panic("storage client is required")
	}
	return &GCSBlobStore{client: client}
}

func (s *GCSBlobStore) Put(ctx context.Context, loc ObjectLocation, contentType string, r io.Reader) (int64, error) {
	w := s.client.Bucket(loc.Bucket).Object(loc.FullPath).NewWriter(ctx)
	w.ContentType = contentType

	n, err := io.Copy(w, r)
	if err != nil {
		_ = w.Close()
		return 0, fmt.Errorf("write object %s/%s: %w", loc.Bucket, loc.FullPath, err)
	}
	if err := w.Close(); err != nil {
		return 0, fmt.Errorf("close object %s/%s: %w", loc.Bucket, loc.FullPath, err)
	}

	return n, nil
}

func (s *GCSBlobStore) Open(ctx context.Context, loc ObjectLocation) (io.ReadCloser, error) {
	r, err := s.client.Bucket(loc.Bucket).Object(loc.FullPath).NewReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("open object %s/%s: %w", loc.Bucket, loc.FullPath, err)
	}
	return r, nil
}

func (s *GCSBlobStore) Delete(ctx context.Context, loc ObjectLocation) error {
	if err := s.client.Bucket(loc.Bucket).Object(loc.FullPath).Delete(ctx); err != nil {
		return fmt.Errorf("delete object %s/%s: %w", loc.Bucket, loc.FullPath, err)
	}
	return nil
}

// MemoryBlobStore keeps blobs in process memory. Used by tests and local development.
type MemoryBlobStore struct {
	mu    sync.RWMutex
	blobs map[string][]byte
}

func NewMemoryBlobStore() *MemoryBlobStore {
	return &MemoryBlobStore{blobs: map[string][]byte{}}
}

func (s *MemoryBlobStore) key(loc ObjectLocation) string {
	return loc.Bucket + "/" + loc.FullPath
}

func (s *MemoryBlobStore) Put(ctx context.Context, loc ObjectLocation, contentType string, r io.Reader) (int64, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.blobs[s.key(loc)] = data

	return int64(len(data)), nil
}

func (s *MemoryBlobStore) Open(ctx context.Context, loc ObjectLocation) (io.ReadCloser, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, ok := s.blobs[s.key(loc)]
	if !ok {
		return nil, fmt.Errorf("object %s not found", s.key(loc))
	}

	return io.NopCloser(bytes.NewReader(data)), nil
}

func (s *MemoryBlobStore) Delete(ctx context.Context, loc ObjectLocation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.blobs, s.key(loc))
	return nil
}

var _ BlobStore = (*GCSBlobStore)(nil)
var _ BlobStore = (*MemoryBlobStore)(nil)
