package identity

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"

	"firebase.google.com/go/v4/auth"

	"local.dev/postboard/internal/models"
)

// TokenVerifier is the slice of *auth.Client the Firebase resolver needs.
type TokenVerifier interface {
	VerifyIDToken(ctx context.Context, idToken string) (*auth.Token, error)
	GetUser(ctx context.Context, uid string) (*auth.UserRecord, error)
}

// FirebaseResolver verifies a Firebase ID token and loads the user's profile.
type FirebaseResolver struct {
	Client  TokenVerifier
	IDToken string
}

func (r FirebaseResolver) Resolve(ctx context.Context) (*models.User, error) {
	raw := strings.TrimSpace(strings.TrimPrefix(r.IDToken, "Bearer "))
	if raw == "" {
		return nil, fmt.Errorf("missing ID token: set FIREBASE_ID_TOKEN")
	}
	tok, err := r.Client.VerifyIDToken(ctx, raw)
	if err != nil {
		return nil, fmt.Errorf("invalid token: %w", err)
	}

	u := &models.User{ID: tok.UID}
	if em, ok := tok.Claims["email"].(string); ok {
		u.Email = em
	}
	if n, ok := tok.Claims["name"].(string); ok {
		u.DisplayName = n
	}

	rec, err := r.Client.GetUser(ctx, tok.UID)
	if err != nil {
		// claims are enough to comment; profile lookup is best effort
		return u, nil
	}
	if rec.DisplayName != "" {
		u.DisplayName = rec.DisplayName
	}
	if rec.Email != "" {
		u.Email = rec.Email
	}
	return u, nil
}

// DevResolver is the NO_AUTH identity. Key may be an email or any id; when
// empty a random dev_ id is generated for the session.
type DevResolver struct {
	Key string
}

func (r DevResolver) Resolve(_ context.Context) (*models.User, error) {
	key := strings.TrimSpace(r.Key)
	if key == "" {
		key = genDevUID()
	}
	u := &models.User{ID: key}
	if strings.Contains(key, "@") {
		u.ID = strings.ToLower(key)
		u.Email = u.ID
		return u, nil
	}
	u.DisplayName = key
	return u, nil
}

func genDevUID() string {
	var b [16]byte
	_, _ = rand.Read(b[:])
	return "dev_" + hex.EncodeToString(b[:])
}
