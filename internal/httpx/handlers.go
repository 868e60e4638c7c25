package httpx

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"local.dev/postboard/internal/comments"
	"local.dev/postboard/internal/models"
	"local.dev/postboard/internal/posts"
)

// NewMux builds the feed server routes.
func NewMux(app *AppCtx) http.Handler {
	mux := http.NewServeMux()

	// health check
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	// ---- static files: /uploads/* (local blob backend)
	if app.UploadsDir != "" {
		mux.Handle("/uploads/", http.StripPrefix("/uploads/", http.FileServer(http.Dir(app.UploadsDir))))
	}

	mux.HandleFunc("/posts", HandlePosts(app))
	mux.HandleFunc("/posts/", HandlePostDetail(app))
	return WithCORS(mux)
}

// ---- Posts ----
func HandlePosts(app *AppCtx) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			list, err := app.Posts.ListPosts(r.Context())
			if err != nil {
				app.Log.Error("list posts: %v", err)
				writeError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, list)

		case http.MethodPost:
			// multipart: title, content, optional file
			WithAuth(app, func(w http.ResponseWriter, r *http.Request) {
				r.Body = http.MaxBytesReader(w, r.Body, 20<<20) // 20MB
				if err := r.ParseMultipartForm(25 << 20); err != nil {
					http.Error(w, "parse form: "+err.Error(), http.StatusBadRequest)
					return
				}
				in := models.PostInput{Title: r.FormValue("title"), Content: r.FormValue("content")}

				var img *models.Image
				if file, hdr, err := r.FormFile("file"); err == nil {
					defer file.Close()
					data, err := io.ReadAll(file)
					if err != nil {
						http.Error(w, "read file: "+err.Error(), http.StatusBadRequest)
						return
					}
					img = &models.Image{Name: hdr.Filename, Data: data}
				}

				id, err := app.Posts.CreatePost(r.Context(), currentUser(r), in, img)
				if err != nil {
					if !models.IsValidationError(err) {
						app.Log.Error("create post: %v", err)
					}
					writeError(w, err)
					return
				}
				p, err := app.Posts.GetPost(r.Context(), id)
				if err != nil {
					writeJSON(w, http.StatusCreated, map[string]string{"id": id})
					return
				}
				writeJSON(w, http.StatusCreated, p)
			})(w, r)

		default:
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		}
	}
}

// /posts/{id} and /posts/{id}/comments
func HandlePostDetail(app *AppCtx) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/posts/"), "/")
		if path == "" {
			http.NotFound(w, r)
			return
		}
		parts := strings.Split(path, "/")
		id := parts[0]

		switch {
		case len(parts) == 1 && r.Method == http.MethodGet:
			p, err := app.Posts.GetPost(r.Context(), id)
			if errors.Is(err, posts.ErrNotFound) {
				http.NotFound(w, r)
				return
			}
			if err != nil {
				app.Log.Error("get post %s: %v", id, err)
				writeError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, p)

		case len(parts) == 2 && parts[1] == "comments" && r.Method == http.MethodGet:
			list, err := app.Comments.ListComments(r.Context(), id)
			if err != nil {
				app.Log.Error("list comments %s: %v", id, err)
				writeError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, list)

		case len(parts) == 2 && parts[1] == "comments" && r.Method == http.MethodPost:
			WithAuth(app, func(w http.ResponseWriter, r *http.Request) {
				var req struct {
					Content string `json:"content"`
				}
				if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
					http.Error(w, err.Error(), http.StatusBadRequest)
					return
				}
				if _, err := app.Posts.GetPost(r.Context(), id); err != nil {
					if errors.Is(err, posts.ErrNotFound) {
						http.NotFound(w, r)
						return
					}
					writeError(w, err)
					return
				}
				th := comments.NewThread(id, nil)
				res := app.Comments.AddComment(r.Context(), th, currentUser(r), req.Content)
				if res.Err != nil {
					writeError(w, res.Err)
					return
				}
				writeJSON(w, http.StatusCreated, res.Comments)
			})(w, r)

		case len(parts) <= 2:
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)

		default:
			http.NotFound(w, r)
		}
	}
}
