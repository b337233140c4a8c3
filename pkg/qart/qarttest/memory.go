// Package qarttest provides an in-memory qart.Store for tests.
package qarttest

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/quatton/batchffmpeg/pkg/qart"
)

// MemoryStore keeps objects in a map keyed by "bucket/key" and records
// every call so tests can assert on transfers.
type MemoryStore struct {
	mu      sync.Mutex
	objects map[string][]byte

	Downloads []string
	Uploads   []string
	Puts      []string
	Probes    []string

	// Fail makes every operation on the listed "bucket/key" return an error.
	Fail map[string]error
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		objects: make(map[string][]byte),
		Fail:    make(map[string]error),
	}
}

func id(loc qart.Location) string {
	return loc.Bucket + "/" + loc.Key
}

// Seed stores body at bucket/key without recording a transfer.
func (s *MemoryStore) Seed(bucket, key string, body []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[bucket+"/"+key] = body
}

// Object returns the stored body and whether it exists.
func (s *MemoryStore) Object(bucket, key string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	body, ok := s.objects[bucket+"/"+key]
	return body, ok
}

func (s *MemoryStore) failure(loc qart.Location) error {
	if err, ok := s.Fail[id(loc)]; ok {
		return err
	}
	return nil
}

func (s *MemoryStore) Download(ctx context.Context, loc qart.Location, path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Downloads = append(s.Downloads, id(loc))
	if err := s.failure(loc); err != nil {
		return err
	}
	body, ok := s.objects[id(loc)]
	if !ok {
		return fmt.Errorf("%w: %s", qart.ErrNotFound, loc)
	}
	return os.WriteFile(path, body, 0o644)
}

func (s *MemoryStore) Upload(ctx context.Context, loc qart.Location, path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Uploads = append(s.Uploads, id(loc))
	if err := s.failure(loc); err != nil {
		return err
	}
	body, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	s.objects[id(loc)] = body
	return nil
}

func (s *MemoryStore) Put(ctx context.Context, loc qart.Location, body []byte, contentType string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Puts = append(s.Puts, id(loc))
	if err := s.failure(loc); err != nil {
		return err
	}
	s.objects[id(loc)] = append([]byte(nil), body...)
	return nil
}

func (s *MemoryStore) Exists(ctx context.Context, loc qart.Location) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Probes = append(s.Probes, id(loc))
	if err := s.failure(loc); err != nil {
		return false, err
	}
	_, ok := s.objects[id(loc)]
	return ok, nil
}

// Ensure MemoryStore implements qart.Store.
var _ qart.Store = (*MemoryStore)(nil)
