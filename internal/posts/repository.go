// Package posts maps Post entities onto the "posts" collection and owns the
// newest-first ordering of the post list.
package posts

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"local.dev/postboard/internal/blob"
	"local.dev/postboard/internal/datastore"
	"local.dev/postboard/internal/logger"
	"local.dev/postboard/internal/models"
)

// ErrNotFound is returned by GetPost for an id the store does not know.
var ErrNotFound = errors.New("post not found")

type Repository struct {
	store datastore.DataStore
	blobs datastore.BlobStore
	log   *logger.Logger
}

// NewRepository wires the store handles. blobs may be nil when image uploads
// are not configured.
func NewRepository(store datastore.DataStore, blobs datastore.BlobStore, log *logger.Logger) *Repository {
	return &Repository{store: store, blobs: blobs, log: log}
}

// ListPosts returns every post, newest first. An empty store yields an empty
// slice, not an error.
func (r *Repository) ListPosts(ctx context.Context) ([]models.Post, error) {
	docs, err := r.store.ListDocuments(ctx, datastore.CollectionPosts, datastore.Query{
		OrderBy:    "createdAt",
		Descending: true,
	})
	if err != nil {
		return nil, &models.DataAccessError{Op: models.OpListPosts, Err: err}
	}

	out := make([]models.Post, 0, len(docs))
	for _, d := range docs {
		out = append(out, fromDocument(d))
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// GetPost looks a single post up. A missing post is ErrNotFound; anything
// else is a *models.DataAccessError.
func (r *Repository) GetPost(ctx context.Context, id string) (*models.Post, error) {
	doc, err := r.store.GetDocument(ctx, datastore.CollectionPosts, id)
	if errors.Is(err, datastore.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, &models.DataAccessError{Op: models.OpGetPost, Err: err}
	}
	p := fromDocument(doc)
	return &p, nil
}

// CreatePost uploads the optional image, then writes the post document with
// a server-assigned createdAt. The two steps are not transactional: if the
// document write fails the uploaded object is left behind.
func (r *Repository) CreatePost(ctx context.Context, user *models.User, in models.PostInput, img *models.Image) (string, error) {
	if strings.TrimSpace(in.Title) == "" || strings.TrimSpace(in.Content) == "" {
		return "", models.NewValidationError("post", "Title and content cannot be empty.")
	}
	if user == nil {
		return "", models.NewValidationError("user", "You must be signed in to create a post.")
	}

	var imageURL interface{}
	if img != nil && len(img.Data) > 0 {
		url, err := r.uploadImage(ctx, img)
		if err != nil {
			return "", err
		}
		imageURL = url
	}

	id, err := r.store.CreateDocument(ctx, datastore.CollectionPosts, map[string]interface{}{
		"userId":    user.ID,
		"author":    user.AuthorName(),
		"title":     in.Title,
		"content":   in.Content,
		"imageUrl":  imageURL,
		"createdAt": datastore.ServerTimestamp,
	})
	if err != nil {
		if imageURL != nil {
			r.log.Warn("post document write failed, image %v is orphaned", imageURL)
		}
		return "", &models.DataAccessError{Op: models.OpCreatePost, Err: err}
	}
	r.log.Info("created post %s by %s", id, user.ID)
	return id, nil
}

func (r *Repository) uploadImage(ctx context.Context, img *models.Image) (string, error) {
	contentType, ext, err := blob.DetectImage(img.Data, img.Name)
	if err != nil {
		return "", err
	}
	if img.ContentType != "" {
		contentType = img.ContentType
	}
	path := blob.ObjectPath(img.Name, ext)
	if r.blobs == nil {
		return "", &models.UploadError{Path: path, Err: fmt.Errorf("no blob storage configured")}
	}

	ref, err := r.blobs.Upload(ctx, path, img.Data, contentType)
	if err != nil {
		return "", &models.UploadError{Path: path, Err: err}
	}
	url, err := r.blobs.URL(ctx, ref)
	if err != nil {
		return "", &models.UploadError{Path: path, Err: err}
	}
	return url, nil
}

func fromDocument(d datastore.Document) models.Post {
	return models.Post{
		ID:        d.ID,
		UserID:    d.String("userId"),
		Author:    d.String("author"),
		Title:     d.String("title"),
		Content:   d.String("content"),
		ImageURL:  d.OptionalString("imageUrl"),
		CreatedAt: d.Time("createdAt"),
	}
}
