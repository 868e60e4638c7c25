// Package memory is an in-process DataStore. It backs NO_AUTH development
// sessions and the repository tests, and can snapshot itself to a JSON file.
package memory

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"local.dev/postboard/internal/datastore"
)

type record struct {
	ID     string                 `json:"id"`
	Fields map[string]interface{} `json:"fields"`
}

type Store struct {
	mu          sync.RWMutex
	collections map[string][]record // collection path -> records in insertion order
	last        time.Time
	now         func() time.Time
	snapshot    string
}

type Option func(*Store)

// WithClock replaces time.Now for server timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithSnapshot loads path now and rewrites it after every write.
func WithSnapshot(path string) Option {
	return func(s *Store) { s.snapshot = path }
}

func NewStore(opts ...Option) *Store {
	s := &Store{
		collections: map[string][]record{},
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.snapshot != "" {
		_ = s.load(s.snapshot)
	}
	return s
}

var _ datastore.DataStore = (*Store)(nil)

func (s *Store) ListDocuments(ctx context.Context, collection string, q datastore.Query) ([]datastore.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	recs := s.collections[collection]
	out := make([]datastore.Document, 0, len(recs))
	for _, r := range recs {
		out = append(out, toDocument(r))
	}
	s.mu.RUnlock()

	datastore.SortDocuments(out, q)
	return out, nil
}

func (s *Store) GetDocument(ctx context.Context, collection, id string) (datastore.Document, error) {
	if err := ctx.Err(); err != nil {
		return datastore.Document{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, r := range s.collections[collection] {
		if r.ID == id {
			return toDocument(r), nil
		}
	}
	return datastore.Document{}, datastore.ErrNotFound
}

func (s *Store) CreateDocument(ctx context.Context, collection string, fields map[string]interface{}) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	r := record{ID: newID(), Fields: make(map[string]interface{}, len(fields))}
	for k, v := range fields {
		if datastore.IsServerTimestamp(v) {
			v = s.stamp()
		}
		r.Fields[k] = v
	}
	s.collections[collection] = append(s.collections[collection], r)
	if s.snapshot != "" {
		_ = writeJSONFile(s.snapshot, s.collections)
	}
	return r.ID, nil
}

// Len reports how many documents a collection holds.
func (s *Store) Len(collection string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.collections[collection])
}

// stamp returns a strictly increasing write time; callers hold mu.
func (s *Store) stamp() time.Time {
	t := s.now().UTC().Truncate(time.Microsecond)
	if !t.After(s.last) {
		t = s.last.Add(time.Microsecond)
	}
	s.last = t
	return t
}

// Firestore-style 20 character ids.
func newID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:20]
}

func toDocument(r record) datastore.Document {
	fields := make(map[string]interface{}, len(r.Fields))
	for k, v := range r.Fields {
		fields[k] = v
	}
	return datastore.Document{ID: r.ID, Fields: fields}
}

// load restores a snapshot. Fields named *At come back as timestamps.
func (s *Store) load(path string) error {
	var cols map[string][]record
	if err := readJSONFile(path, &cols); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for name, recs := range cols {
		for _, r := range recs {
			datastore.RestoreTimes(r.Fields)
			for _, v := range r.Fields {
				if t, ok := v.(time.Time); ok && t.After(s.last) {
					s.last = t
				}
			}
		}
		s.collections[name] = recs
	}
	return nil
}

func readJSONFile[T any](path string, out *T) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, out)
}

func writeJSONFile(path string, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_ = os.MkdirAll(filepath.Dir(path), 0o755)
	return os.WriteFile(path, b, 0o644)
}
