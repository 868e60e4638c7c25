// Package datastore defines the boundary to the remote document store and
// blob storage. Adapters live in the sub-packages and in internal/blob.
package datastore

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"
)

// ErrNotFound is returned by GetDocument when the document does not exist.
var ErrNotFound = errors.New("document not found")

// Collection names.
const (
	CollectionPosts = "posts"
)

// CommentsCollection is the per-post comments sub-collection path.
func CommentsCollection(postID string) string {
	return CollectionPosts + "/" + postID + "/comments"
}

// Document is a stored record: its store-assigned id plus fields.
type Document struct {
	ID     string
	Fields map[string]interface{}
}

// Query narrows ListDocuments. The zero value lists in store order.
type Query struct {
	OrderBy    string
	Descending bool
}

type serverTimestamp struct{}

// ServerTimestamp as a field value asks the store to stamp its own write time.
var ServerTimestamp interface{} = serverTimestamp{}

// IsServerTimestamp reports whether v is the ServerTimestamp marker.
func IsServerTimestamp(v interface{}) bool {
	_, ok := v.(serverTimestamp)
	return ok
}

// DataStore is the remote document store. Every call may block on the network.
type DataStore interface {
	ListDocuments(ctx context.Context, collection string, q Query) ([]Document, error)
	GetDocument(ctx context.Context, collection, id string) (Document, error)
	CreateDocument(ctx context.Context, collection string, fields map[string]interface{}) (string, error)
}

// BlobStore holds uploaded binary objects.
type BlobStore interface {
	Upload(ctx context.Context, path string, data []byte, contentType string) (string, error)
	URL(ctx context.Context, ref string) (string, error)
}

// String returns a string field or "".
func (d Document) String(key string) string {
	s, _ := d.Fields[key].(string)
	return s
}

// OptionalString returns a string field, or nil when missing, null or empty.
func (d Document) OptionalString(key string) *string {
	s, ok := d.Fields[key].(string)
	if !ok || s == "" {
		return nil
	}
	return &s
}

// Time returns a timestamp field. Stores that round-trip through text hand
// back RFC 3339 strings, so those are parsed too.
func (d Document) Time(key string) time.Time {
	switch v := d.Fields[key].(type) {
	case time.Time:
		return v
	case *time.Time:
		if v != nil {
			return *v
		}
	case string:
		if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
			return t
		}
	}
	return time.Time{}
}

// SortDocuments orders docs in place by q.OrderBy. Timestamps, strings and
// numbers compare naturally; missing values sort first. The sort is stable so
// ties keep store order.
func SortDocuments(docs []Document, q Query) {
	if q.OrderBy == "" {
		return
	}
	sort.SliceStable(docs, func(i, j int) bool {
		a, b := docs[i].Fields[q.OrderBy], docs[j].Fields[q.OrderBy]
		if q.Descending {
			return less(b, a)
		}
		return less(a, b)
	})
}

func less(a, b interface{}) bool {
	switch av := a.(type) {
	case time.Time:
		bv, ok := b.(time.Time)
		return ok && av.Before(bv)
	case string:
		bv, ok := b.(string)
		return ok && av < bv
	case float64:
		bv, ok := b.(float64)
		return ok && av < bv
	case int64:
		bv, ok := b.(int64)
		return ok && av < bv
	case int:
		bv, ok := b.(int)
		return ok && av < bv
	case nil:
		return b != nil
	}
	return false
}

// RestoreTimes turns RFC 3339 strings held in fields named *At back into
// time.Time after a round trip through JSON.
func RestoreTimes(fields map[string]interface{}) {
	for k, v := range fields {
		if !strings.HasSuffix(k, "At") {
			continue
		}
		s, ok := v.(string)
		if !ok {
			continue
		}
		if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
			fields[k] = t.UTC()
		}
	}
}
