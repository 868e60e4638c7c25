package httpx

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"local.dev/postboard/internal/comments"
	"local.dev/postboard/internal/datastore"
	"local.dev/postboard/internal/datastore/storetest"
	"local.dev/postboard/internal/logger"
	"local.dev/postboard/internal/models"
	"local.dev/postboard/internal/posts"
)

var pngBytes = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n', 0, 0, 0, 0x0d, 'I', 'H', 'D', 'R'}

func newTestApp(t *testing.T) (*AppCtx, *storetest.Store) {
	t.Helper()
	store := storetest.NewStore()
	blobs := storetest.NewBlobs()
	log := logger.Discard()
	return &AppCtx{
		Posts:    posts.NewRepository(store, blobs, log),
		Comments: comments.NewRepository(store, log),
		Blobs:    blobs,
		NoAuth:   true,
		Log:      log,
	}, store
}

func seedPost(t *testing.T, store datastore.DataStore, title string) string {
	t.Helper()
	id, err := store.CreateDocument(context.Background(), datastore.CollectionPosts, map[string]interface{}{
		"userId": "u1", "author": "Jane", "title": title, "content": "c", "imageUrl": nil,
		"createdAt": datastore.ServerTimestamp,
	})
	require.NoError(t, err)
	return id
}

func TestHealthz(t *testing.T) {
	app, _ := newTestApp(t)
	rec := httptest.NewRecorder()
	NewMux(app).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
}

func TestListPosts(t *testing.T) {
	app, store := newTestApp(t)
	seedPost(t, store, "A")
	seedPost(t, store, "B")

	rec := httptest.NewRecorder()
	NewMux(app).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/posts", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))

	var got []models.Post
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&got))
	require.Len(t, got, 2)
	assert.Equal(t, "B", got[0].Title)
}

func TestListPostsFailure(t *testing.T) {
	app, store := newTestApp(t)
	store.Fail(errors.New("down"))

	rec := httptest.NewRecorder()
	NewMux(app).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/posts", nil))
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Contains(t, rec.Body.String(), "Failed to load posts.")
}

func TestGetPost(t *testing.T) {
	app, store := newTestApp(t)
	id := seedPost(t, store, "A")
	mux := NewMux(app)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/posts/"+id, nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var p models.Post
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&p))
	assert.Equal(t, id, p.ID)

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/posts/missing", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAddAndListComments(t *testing.T) {
	app, store := newTestApp(t)
	id := seedPost(t, store, "A")
	mux := NewMux(app)

	req := httptest.NewRequest(http.MethodPost, "/posts/"+id+"/comments", strings.NewReader(`{"content":"hi"}`))
	req.Header.Set("Authorization", "Debug Jane")
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var created []models.Comment
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&created))
	require.Len(t, created, 1)
	assert.Equal(t, "Jane", created[0].Author)
	assert.False(t, comments.IsProvisional(created[0].ID))

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/posts/"+id+"/comments", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var listed []models.Comment
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&listed))
	assert.Equal(t, created[0].ID, listed[0].ID)
}

func TestAddCommentErrors(t *testing.T) {
	app, store := newTestApp(t)
	id := seedPost(t, store, "A")
	mux := NewMux(app)

	post := func(path, body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
		req.Header.Set("Authorization", "Debug jane@example.com")
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, req)
		return rec
	}

	rec := post("/posts/"+id+"/comments", `{"content":"   "}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "Comment cannot be empty.")

	rec = post("/posts/missing/comments", `{"content":"hi"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	store.SetCreateErr(errors.New("down"))
	rec = post("/posts/"+id+"/comments", `{"content":"hi"}`)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Contains(t, rec.Body.String(), "Failed to post comment. Please try again.")
	assert.Zero(t, store.Len(datastore.CommentsCollection(id)))
}

func TestCreatePostMultipart(t *testing.T) {
	app, _ := newTestApp(t)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	require.NoError(t, mw.WriteField("title", "Hello"))
	require.NoError(t, mw.WriteField("content", "World"))
	fw, err := mw.CreateFormFile("file", "cat.png")
	require.NoError(t, err)
	_, _ = fw.Write(pngBytes)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/posts", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	NewMux(app).ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var p models.Post
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&p))
	assert.Equal(t, "Hello", p.Title)
	require.NotNil(t, p.ImageURL)
	assert.Contains(t, *p.ImageURL, "images/")
	assert.True(t, strings.HasPrefix(p.Author, "dev_"), "cookie-less caller gets a dev identity")
	assert.NotEmpty(t, rec.Result().Cookies())
}

func TestAuthRequiredOutsideNoAuth(t *testing.T) {
	app, store := newTestApp(t)
	app.NoAuth = false
	id := seedPost(t, store, "A")

	req := httptest.NewRequest(http.MethodPost, "/posts/"+id+"/comments", strings.NewReader(`{"content":"hi"}`))
	rec := httptest.NewRecorder()
	NewMux(app).ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestUploadsServed(t *testing.T) {
	app, _ := newTestApp(t)
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "images"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "images", "a.png"), pngBytes, 0o644))
	app.UploadsDir = dir

	rec := httptest.NewRecorder()
	NewMux(app).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/uploads/images/a.png", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, pngBytes, rec.Body.Bytes())
}

func TestDevClaimsFromBearer(t *testing.T) {
	payload := `{"email":"Jane@Example.com","user_id":"abc"}`
	tok := "Bearer x." + base64URL(payload) + ".sig"
	email, uid := devClaimsFromBearer(tok)
	assert.Equal(t, "Jane@Example.com", email)
	assert.Equal(t, "abc", uid)
	assert.Equal(t, "jane@example.com", pickKey(email, uid))

	email, uid = devClaimsFromBearer("Bearer garbage")
	assert.Empty(t, email+uid)
}

func base64URL(s string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(s))
}
