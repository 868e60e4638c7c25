// Package storetest provides DataStore and BlobStore doubles for tests:
// an in-memory store with per-operation error injection, call counting and
// an optional hook that can hold a write until the test releases it.
package storetest

import (
	"context"
	"fmt"
	"sync"

	"local.dev/postboard/internal/datastore"
	"local.dev/postboard/internal/datastore/memory"
)

type Store struct {
	*memory.Store

	mu        sync.Mutex
	ListErr   error
	GetErr    error
	CreateErr error
	// BeforeCreate runs before every CreateDocument; returning an error fails the write.
	BeforeCreate func(ctx context.Context, collection string, fields map[string]interface{}) error

	lists, gets, creates int
}

func NewStore(opts ...memory.Option) *Store {
	return &Store{Store: memory.NewStore(opts...)}
}

var _ datastore.DataStore = (*Store)(nil)

// Fail sets the same error for every operation; nil heals the store.
func (s *Store) Fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ListErr, s.GetErr, s.CreateErr = err, err, err
}

func (s *Store) SetCreateErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CreateErr = err
}

func (s *Store) ListDocuments(ctx context.Context, collection string, q datastore.Query) ([]datastore.Document, error) {
	s.mu.Lock()
	s.lists++
	err := s.ListErr
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return s.Store.ListDocuments(ctx, collection, q)
}

func (s *Store) GetDocument(ctx context.Context, collection, id string) (datastore.Document, error) {
	s.mu.Lock()
	s.gets++
	err := s.GetErr
	s.mu.Unlock()
	if err != nil {
		return datastore.Document{}, err
	}
	return s.Store.GetDocument(ctx, collection, id)
}

func (s *Store) CreateDocument(ctx context.Context, collection string, fields map[string]interface{}) (string, error) {
	s.mu.Lock()
	s.creates++
	hook := s.BeforeCreate
	s.mu.Unlock()
	if hook != nil {
		if err := hook(ctx, collection, fields); err != nil {
			return "", err
		}
	}
	s.mu.Lock()
	err := s.CreateErr
	s.mu.Unlock()
	if err != nil {
		return "", err
	}
	return s.Store.CreateDocument(ctx, collection, fields)
}

// Calls returns how many times each operation was invoked.
func (s *Store) Calls() (lists, gets, creates int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lists, s.gets, s.creates
}

// Blobs is an in-memory BlobStore.
type Blobs struct {
	mu        sync.Mutex
	objects   map[string][]byte
	UploadErr error
	URLErr    error
}

func NewBlobs() *Blobs {
	return &Blobs{objects: map[string][]byte{}}
}

var _ datastore.BlobStore = (*Blobs)(nil)

func (b *Blobs) Upload(_ context.Context, path string, data []byte, _ string) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.UploadErr != nil {
		return "", b.UploadErr
	}
	b.objects[path] = append([]byte(nil), data...)
	return path, nil
}

func (b *Blobs) URL(_ context.Context, ref string) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.URLErr != nil {
		return "", b.URLErr
	}
	if _, ok := b.objects[ref]; !ok {
		return "", fmt.Errorf("no object %s", ref)
	}
	return "https://blobs.test/" + ref, nil
}

// Paths lists the stored object names.
func (b *Blobs) Paths() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, 0, len(b.objects))
	for p := range b.objects {
		out = append(out, p)
	}
	return out
}
