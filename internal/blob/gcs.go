package blob

import (
	"context"
	"fmt"
	"net/url"

	"cloud.google.com/go/storage"
	"github.com/google/uuid"

	"local.dev/postboard/internal/datastore"
)

// downloadTokenKey is the object metadata key Firebase Storage reads
// download tokens from.
const downloadTokenKey = "firebaseStorageDownloadTokens"

// GCSStore uploads into the Firebase Storage bucket.
type GCSStore struct {
	bucket *storage.BucketHandle
	name   string
}

func NewGCSStore(bucket *storage.BucketHandle, name string) *GCSStore {
	return &GCSStore{bucket: bucket, name: name}
}

var _ datastore.BlobStore = (*GCSStore)(nil)

func (s *GCSStore) Upload(ctx context.Context, path string, data []byte, contentType string) (string, error) {
	w := s.bucket.Object(path).NewWriter(ctx)
	w.ContentType = contentType
	w.Metadata = map[string]string{downloadTokenKey: uuid.NewString()}
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("write object: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("finalize object: %w", err)
	}
	return path, nil
}

// URL returns the tokenized download URL for an uploaded object.
func (s *GCSStore) URL(ctx context.Context, ref string) (string, error) {
	attrs, err := s.bucket.Object(ref).Attrs(ctx)
	if err != nil {
		return "", fmt.Errorf("object attrs: %w", err)
	}
	token := attrs.Metadata[downloadTokenKey]
	if token == "" {
		return "", fmt.Errorf("object %s has no download token", ref)
	}
	return downloadURL(s.name, ref, token), nil
}

func downloadURL(bucket, path, token string) string {
	return fmt.Sprintf("https://firebasestorage.googleapis.com/v0/b/%s/o/%s?alt=media&token=%s",
		bucket, url.PathEscape(path), url.QueryEscape(token))
}
