// Package redisstore keeps documents in Redis so several development
// clients can share one store without Firebase.
//
// Layout: each document is a JSON string at doc:<collection>:<id>, and
// idx:<collection> is a list of ids in insertion order. Server timestamps come
// from the Redis TIME command.
package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"local.dev/postboard/internal/datastore"
)

type Store struct {
	rdb *redis.Client
}

func New(rdb *redis.Client) *Store {
	return &Store{rdb: rdb}
}

var _ datastore.DataStore = (*Store)(nil)

func docKey(collection, id string) string { return fmt.Sprintf("doc:%s:%s", collection, id) }
func idxKey(collection string) string     { return "idx:" + collection }

func (s *Store) ListDocuments(ctx context.Context, collection string, q datastore.Query) ([]datastore.Document, error) {
	ids, err := s.rdb.LRange(ctx, idxKey(collection), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", collection, err)
	}
	out := make([]datastore.Document, 0, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = docKey(collection, id)
	}
	vals, err := s.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", collection, err)
	}
	for i, v := range vals {
		raw, ok := v.(string)
		if !ok {
			continue // indexed but deleted out from under us
		}
		doc, err := decode(ids[i], raw)
		if err != nil {
			return nil, fmt.Errorf("list %s: %w", collection, err)
		}
		out = append(out, doc)
	}

	datastore.SortDocuments(out, q)
	return out, nil
}

func (s *Store) GetDocument(ctx context.Context, collection, id string) (datastore.Document, error) {
	raw, err := s.rdb.Get(ctx, docKey(collection, id)).Result()
	if errors.Is(err, redis.Nil) {
		return datastore.Document{}, datastore.ErrNotFound
	}
	if err != nil {
		return datastore.Document{}, fmt.Errorf("get %s/%s: %w", collection, id, err)
	}
	return decode(id, raw)
}

func (s *Store) CreateDocument(ctx context.Context, collection string, fields map[string]interface{}) (string, error) {
	now, err := s.rdb.Time(ctx).Result()
	if err != nil {
		return "", fmt.Errorf("server time: %w", err)
	}

	data := make(map[string]interface{}, len(fields))
	for k, v := range fields {
		if datastore.IsServerTimestamp(v) {
			v = now.UTC()
		}
		data[k] = v
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return "", fmt.Errorf("encode document: %w", err)
	}

	id := strings.ReplaceAll(uuid.NewString(), "-", "")[:20]
	_, err = s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, docKey(collection, id), raw, 0)
		pipe.RPush(ctx, idxKey(collection), id)
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("add to %s: %w", collection, err)
	}
	return id, nil
}

func decode(id, raw string) (datastore.Document, error) {
	fields := map[string]interface{}{}
	if err := json.Unmarshal([]byte(raw), &fields); err != nil {
		return datastore.Document{}, fmt.Errorf("decode %s: %w", id, err)
	}
	datastore.RestoreTimes(fields)
	return datastore.Document{ID: id, Fields: fields}, nil
}

// Ping checks connectivity at startup.
func (s *Store) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	return s.rdb.Ping(ctx).Err()
}
