// internal/httpx/middleware.go
package httpx

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"local.dev/postboard/internal/comments"
	"local.dev/postboard/internal/datastore"
	"local.dev/postboard/internal/identity"
	"local.dev/postboard/internal/logger"
	"local.dev/postboard/internal/models"
	"local.dev/postboard/internal/posts"
)

type ctxKey string

const userKey ctxKey = "user"

// AppCtx carries the process-wide handles into the handlers.
type AppCtx struct {
	Posts      *posts.Repository
	Comments   *comments.Repository
	Blobs      datastore.BlobStore
	Auth       identity.TokenVerifier // nil in NO_AUTH mode
	NoAuth     bool
	UploadsDir string // served under /uploads/ when set
	Log        *logger.Logger
}

func currentUser(r *http.Request) *models.User {
	if u, ok := r.Context().Value(userKey).(*models.User); ok {
		return u
	}
	return nil
}

// identity key: lowercased email, else uid
func pickKey(email, uid string) string {
	e := strings.TrimSpace(strings.ToLower(email))
	u := strings.TrimSpace(uid)
	if e != "" {
		return e
	}
	return u
}

// ---- NO_AUTH: cookie is the last fallback, one dev_ id per browser ----
const devUIDCookie = "DEV_UID"

func devKeyFromCookie(r *http.Request) string {
	if c, err := r.Cookie(devUIDCookie); err == nil {
		return c.Value
	}
	return ""
}

func setDevCookie(w http.ResponseWriter, id string) {
	http.SetCookie(w, &http.Cookie{
		Name:     devUIDCookie,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Expires:  time.Now().Add(365 * 24 * time.Hour),
	})
}

// ---- NO_AUTH: accept a Bearer JWT but only read email/uid from its payload (signature NOT checked) ----
func devClaimsFromBearer(authz string) (email, uid string) {
	raw := strings.TrimSpace(strings.TrimPrefix(authz, "Bearer "))
	parts := strings.Split(raw, ".")
	if len(parts) < 2 {
		return "", ""
	}
	payload, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return "", ""
	}
	var m map[string]any
	if err := json.Unmarshal(payload, &m); err != nil {
		return "", ""
	}
	get := func(k string) string {
		if v, ok := m[k]; ok && v != nil {
			return strings.TrimSpace(fmt.Sprintf("%v", v))
		}
		return ""
	}
	email = get("email")
	uid = get("user_id")
	if uid == "" {
		uid = get("uid")
	}
	if uid == "" {
		uid = get("sub")
	}
	return email, uid
}

// WithAuth resolves the caller and stores it on the request context.
func WithAuth(app *AppCtx, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		authz := r.Header.Get("Authorization")

		if app.NoAuth {
			// Debug > Bearer (payload only) > cookie
			var key string
			switch {
			case strings.HasPrefix(authz, "Debug "):
				key = strings.TrimSpace(strings.TrimPrefix(authz, "Debug "))
			case strings.HasPrefix(authz, "Bearer "):
				key = pickKey(devClaimsFromBearer(authz))
			}
			fromCookie := false
			if key == "" {
				key = devKeyFromCookie(r)
				fromCookie = true
			}
			u, _ := identity.DevResolver{Key: key}.Resolve(r.Context())
			if fromCookie && key == "" {
				setDevCookie(w, u.ID)
			}
			next(w, r.WithContext(context.WithValue(r.Context(), userKey, u)))
			return
		}

		if !strings.HasPrefix(authz, "Bearer ") || app.Auth == nil {
			http.Error(w, "missing bearer token", http.StatusUnauthorized)
			return
		}
		u, err := identity.FirebaseResolver{Client: app.Auth, IDToken: authz}.Resolve(r.Context())
		if err != nil {
			http.Error(w, "invalid token", http.StatusUnauthorized)
			return
		}
		next(w, r.WithContext(context.WithValue(r.Context(), userKey, u)))
	}
}

// CORS (browsers can read the feed too)
func WithCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps the error taxonomy onto status codes; the body is the
// same notice the shell would show.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case models.IsValidationError(err):
		status = http.StatusBadRequest
	case models.IsUploadError(err), models.IsDataAccessError(err), models.IsCommentSubmitError(err):
		status = http.StatusBadGateway
	}
	writeJSON(w, status, map[string]string{"error": models.UserMessage(err)})
}
