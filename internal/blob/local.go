package blob

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"local.dev/postboard/internal/datastore"
)

// LocalStore writes objects under a directory. URLs are file:// links unless
// a base URL is set, e.g. the /uploads/ route of the feed server.
type LocalStore struct {
	dir     string
	baseURL string
}

func NewLocalStore(dir string) *LocalStore {
	return &LocalStore{dir: dir}
}

// WithBaseURL serves URLs as base + "/" + ref.
func (s *LocalStore) WithBaseURL(base string) *LocalStore {
	s.baseURL = strings.TrimRight(base, "/")
	return s
}

var _ datastore.BlobStore = (*LocalStore)(nil)

func (s *LocalStore) Upload(ctx context.Context, path string, data []byte, _ string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	dst, err := s.resolve(path)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return "", fmt.Errorf("create dir: %w", err)
	}
	if err := os.WriteFile(dst, data, 0o644); err != nil {
		return "", fmt.Errorf("write file: %w", err)
	}
	return path, nil
}

func (s *LocalStore) URL(_ context.Context, ref string) (string, error) {
	p, err := s.resolve(ref)
	if err != nil {
		return "", err
	}
	if _, err := os.Stat(p); err != nil {
		return "", fmt.Errorf("stat %s: %w", ref, err)
	}
	if s.baseURL != "" {
		rel, err := filepath.Rel(s.dir, p)
		if err != nil {
			return "", err
		}
		return s.baseURL + "/" + (&url.URL{Path: filepath.ToSlash(rel)}).EscapedPath(), nil
	}
	abs, err := filepath.Abs(p)
	if err != nil {
		return "", err
	}
	return (&url.URL{Scheme: "file", Path: filepath.ToSlash(abs)}).String(), nil
}

// resolve keeps refs inside dir.
func (s *LocalStore) resolve(ref string) (string, error) {
	if strings.TrimSpace(ref) == "" {
		return "", fmt.Errorf("empty object path")
	}
	return filepath.Join(s.dir, filepath.Clean("/"+ref)), nil
}
