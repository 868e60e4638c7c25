package posts

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"local.dev/postboard/internal/datastore"
	"local.dev/postboard/internal/datastore/storetest"
	"local.dev/postboard/internal/logger"
	"local.dev/postboard/internal/models"
)

var pngBytes = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n', 0, 0, 0, 0x0d, 'I', 'H', 'D', 'R'}

var jane = &models.User{ID: "u1", DisplayName: "Jane"}

func newRepo() (*Repository, *storetest.Store, *storetest.Blobs) {
	store := storetest.NewStore()
	blobs := storetest.NewBlobs()
	return NewRepository(store, blobs, logger.Discard()), store, blobs
}

func seedPost(t *testing.T, store datastore.DataStore, title string, at interface{}) string {
	t.Helper()
	id, err := store.CreateDocument(context.Background(), datastore.CollectionPosts, map[string]interface{}{
		"userId":    "u1",
		"author":    "Jane",
		"title":     title,
		"content":   "body of " + title,
		"imageUrl":  nil,
		"createdAt": at,
	})
	require.NoError(t, err)
	return id
}

func TestListPostsNewestFirst(t *testing.T) {
	repo, store, _ := newRepo()
	t1 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	t2 := t1.Add(time.Hour)
	p1 := seedPost(t, store, "A", t1)
	p2 := seedPost(t, store, "B", t2)

	got, err := repo.ListPosts(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, p2, got[0].ID)
	assert.Equal(t, "B", got[0].Title)
	assert.Equal(t, p1, got[1].ID)
	assert.Nil(t, got[0].ImageURL)
}

func TestListPostsIsNonIncreasing(t *testing.T) {
	repo, store, _ := newRepo()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for _, offset := range []int{5, 1, 9, 3, 3, 7, 0} {
		seedPost(t, store, "p", base.Add(time.Duration(offset)*time.Minute))
	}
	for i := 0; i < 3; i++ {
		seedPost(t, store, "server", datastore.ServerTimestamp)
	}

	got, err := repo.ListPosts(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 10)
	for i := 1; i < len(got); i++ {
		assert.False(t, got[i].CreatedAt.After(got[i-1].CreatedAt), "post %d is newer than post %d", i, i-1)
	}
}

func TestListPostsEmpty(t *testing.T) {
	repo, _, _ := newRepo()
	got, err := repo.ListPosts(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestListPostsFailure(t *testing.T) {
	repo, store, _ := newRepo()
	store.Fail(errors.New("unavailable"))

	got, err := repo.ListPosts(context.Background())
	assert.Nil(t, got)
	require.Error(t, err)
	assert.True(t, models.IsDataAccessError(err))
	assert.Equal(t, "Failed to load posts.", models.UserMessage(err))
}

func TestGetPost(t *testing.T) {
	repo, store, _ := newRepo()
	id := seedPost(t, store, "A", datastore.ServerTimestamp)

	p, err := repo.GetPost(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "A", p.Title)
	assert.Equal(t, "Jane", p.Author)
	assert.False(t, p.CreatedAt.IsZero())

	_, err = repo.GetPost(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.False(t, models.IsDataAccessError(err))

	store.Fail(errors.New("offline"))
	_, err = repo.GetPost(context.Background(), id)
	assert.NotErrorIs(t, err, ErrNotFound)
	assert.True(t, models.IsDataAccessError(err))
}

func TestCreatePostWithoutImage(t *testing.T) {
	repo, store, blobs := newRepo()

	id, err := repo.CreatePost(context.Background(), jane, models.PostInput{Title: "Hello", Content: "World"}, nil)
	require.NoError(t, err)

	p, err := repo.GetPost(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "u1", p.UserID)
	assert.Equal(t, "Jane", p.Author)
	assert.Equal(t, "Hello", p.Title)
	assert.Equal(t, "World", p.Content)
	assert.Nil(t, p.ImageURL)
	assert.False(t, p.CreatedAt.IsZero(), "createdAt is stamped by the store")
	assert.Empty(t, blobs.Paths())
	_, _, creates := store.Calls()
	assert.Equal(t, 1, creates)
}

func TestCreatePostWithImage(t *testing.T) {
	repo, _, blobs := newRepo()

	id, err := repo.CreatePost(context.Background(), jane,
		models.PostInput{Title: "Pic", Content: "See"},
		&models.Image{Name: "cat photo.png", Data: pngBytes})
	require.NoError(t, err)

	paths := blobs.Paths()
	require.Len(t, paths, 1)
	assert.True(t, strings.HasPrefix(paths[0], "images/"))
	assert.True(t, strings.HasSuffix(paths[0], "-cat-photo.png"))

	p, err := repo.GetPost(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, p.ImageURL)
	assert.Equal(t, "https://blobs.test/"+paths[0], *p.ImageURL)
}

func TestCreatePostValidation(t *testing.T) {
	repo, store, blobs := newRepo()
	img := &models.Image{Name: "a.png", Data: pngBytes}

	tests := []struct {
		name  string
		user  *models.User
		input models.PostInput
		msg   string
	}{
		{"blank title", jane, models.PostInput{Title: "  ", Content: "x"}, "Title and content cannot be empty."},
		{"blank content", jane, models.PostInput{Title: "x", Content: "\n\t"}, "Title and content cannot be empty."},
		{"signed out", nil, models.PostInput{Title: "x", Content: "y"}, "You must be signed in to create a post."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := repo.CreatePost(context.Background(), tt.user, tt.input, img)
			require.Error(t, err)
			assert.True(t, models.IsValidationError(err))
			assert.Equal(t, tt.msg, models.UserMessage(err))
		})
	}
	_, _, creates := store.Calls()
	assert.Zero(t, creates)
	assert.Empty(t, blobs.Paths())
}

func TestCreatePostRejectsNonImage(t *testing.T) {
	repo, store, blobs := newRepo()
	_, err := repo.CreatePost(context.Background(), jane, models.PostInput{Title: "a", Content: "b"},
		&models.Image{Name: "notes.txt", Data: []byte("hello")})
	assert.True(t, models.IsValidationError(err))
	_, _, creates := store.Calls()
	assert.Zero(t, creates)
	assert.Empty(t, blobs.Paths())
}

func TestCreatePostUploadFailureAborts(t *testing.T) {
	repo, store, blobs := newRepo()
	blobs.UploadErr = errors.New("bucket gone")

	_, err := repo.CreatePost(context.Background(), jane, models.PostInput{Title: "a", Content: "b"},
		&models.Image{Name: "a.png", Data: pngBytes})
	require.Error(t, err)
	assert.True(t, models.IsUploadError(err))
	_, _, creates := store.Calls()
	assert.Zero(t, creates, "no post document after a failed upload")
}

func TestCreatePostURLFailureIsUploadError(t *testing.T) {
	repo, store, blobs := newRepo()
	blobs.URLErr = errors.New("no token")

	_, err := repo.CreatePost(context.Background(), jane, models.PostInput{Title: "a", Content: "b"},
		&models.Image{Name: "a.png", Data: pngBytes})
	assert.True(t, models.IsUploadError(err))
	_, _, creates := store.Calls()
	assert.Zero(t, creates)
}

func TestCreatePostDocumentFailureOrphansBlob(t *testing.T) {
	repo, store, blobs := newRepo()
	store.SetCreateErr(errors.New("permission denied"))

	_, err := repo.CreatePost(context.Background(), jane, models.PostInput{Title: "a", Content: "b"},
		&models.Image{Name: "a.png", Data: pngBytes})
	require.Error(t, err)
	assert.True(t, models.IsDataAccessError(err))
	assert.Equal(t, "Failed to create post. Please try again.", models.UserMessage(err))
	assert.Len(t, blobs.Paths(), 1, "uploaded image is not cleaned up")
	assert.Zero(t, store.Len(datastore.CollectionPosts))
}

func TestCreatePostWithoutBlobStore(t *testing.T) {
	store := storetest.NewStore()
	repo := NewRepository(store, nil, logger.Discard())

	_, err := repo.CreatePost(context.Background(), jane, models.PostInput{Title: "a", Content: "b"},
		&models.Image{Name: "a.png", Data: pngBytes})
	assert.True(t, models.IsUploadError(err))

	_, err = repo.CreatePost(context.Background(), jane, models.PostInput{Title: "a", Content: "b"}, nil)
	assert.NoError(t, err)
}
