// Package firestore adapts Cloud Firestore to the datastore.DataStore boundary.
package firestore

import (
	"context"
	"errors"
	"fmt"

	gfs "cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"local.dev/postboard/internal/datastore"
)

type Store struct {
	client *gfs.Client
}

func New(client *gfs.Client) *Store {
	return &Store{client: client}
}

var _ datastore.DataStore = (*Store)(nil)

func (s *Store) ListDocuments(ctx context.Context, collection string, q datastore.Query) ([]datastore.Document, error) {
	query := s.client.Collection(collection).Query
	if q.OrderBy != "" {
		dir := gfs.Asc
		if q.Descending {
			dir = gfs.Desc
		}
		query = query.OrderBy(q.OrderBy, dir)
	}

	iter := query.Documents(ctx)
	defer iter.Stop()

	out := make([]datastore.Document, 0)
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("list %s: %w", collection, err)
		}
		out = append(out, datastore.Document{ID: snap.Ref.ID, Fields: snap.Data()})
	}
	return out, nil
}

func (s *Store) GetDocument(ctx context.Context, collection, id string) (datastore.Document, error) {
	snap, err := s.client.Collection(collection).Doc(id).Get(ctx)
	if status.Code(err) == codes.NotFound {
		return datastore.Document{}, datastore.ErrNotFound
	}
	if err != nil {
		return datastore.Document{}, fmt.Errorf("get %s/%s: %w", collection, id, err)
	}
	return datastore.Document{ID: snap.Ref.ID, Fields: snap.Data()}, nil
}

func (s *Store) CreateDocument(ctx context.Context, collection string, fields map[string]interface{}) (string, error) {
	ref, _, err := s.client.Collection(collection).Add(ctx, toFirestore(fields))
	if err != nil {
		return "", fmt.Errorf("add to %s: %w", collection, err)
	}
	return ref.ID, nil
}

// toFirestore swaps the boundary's timestamp marker for Firestore's sentinel.
func toFirestore(fields map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(fields))
	for k, v := range fields {
		if datastore.IsServerTimestamp(v) {
			out[k] = gfs.ServerTimestamp
			continue
		}
		out[k] = v
	}
	return out
}
