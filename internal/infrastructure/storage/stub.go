package storage

import (
	"context"
	"sync"
	"time"

	govapp "github.com/costgov/backend/internal/application/governance"
)

var _ govapp.ArchiveStorage = (*StubObjectStorage)(nil)

// StubObjectStorage keeps archives in memory and returns fake download
// URLs. Use it for development and tests when no S3 backend is configured.
type StubObjectStorage struct {
	// BaseURL prefixes generated download URLs
	BaseURL string

	mu      sync.RWMutex
	objects map[string]StoredObject
}

// StoredObject is an archive held by StubObjectStorage
type StoredObject struct {
	Data        []byte
	ContentType string
}

// NewStubObjectStorage creates a new StubObjectStorage
func NewStubObjectStorage() *StubObjectStorage {
	return &StubObjectStorage{
		BaseURL: "https://storage.example.com",
		objects: make(map[string]StoredObject),
	}
}

// Upload stores a copy of data under key
func (s *StubObjectStorage) Upload(_ context.Context, key string, data []byte, contentType string) error {
	if key == "" {
		return errKeyRequired
	}
	buf := make([]byte, len(data))
	copy(buf, data)

	s.mu.Lock()
	s.objects[key] = StoredObject{Data: buf, ContentType: contentType}
	s.mu.Unlock()
	return nil
}

// GenerateDownloadURL returns a fake URL for key
func (s *StubObjectStorage) GenerateDownloadURL(_ context.Context, key string, expiresIn time.Duration) (string, time.Time, error) {
	if key == "" {
		return "", time.Time{}, errKeyRequired
	}
	if expiresIn <= 0 {
		expiresIn = defaultPresignExpiry
	}
	expiresAt := time.Now().Add(expiresIn)
	return s.BaseURL + "/download/" + key + "?expires=" + expiresAt.UTC().Format(time.RFC3339), expiresAt, nil
}

// Object returns the stored archive for key
func (s *StubObjectStorage) Object(key string) (StoredObject, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	obj, ok := s.objects[key]
	return obj, ok
}
