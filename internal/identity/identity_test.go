package identity

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"firebase.google.com/go/v4/auth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"local.dev/postboard/internal/logger"
	"local.dev/postboard/internal/models"
)

type recorder struct {
	mu     sync.Mutex
	states []State
}

func (r *recorder) add(s State) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states = append(r.states, s)
}

func (r *recorder) all() []State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]State(nil), r.states...)
}

func TestProviderStartsLoading(t *testing.T) {
	p := NewProvider(logger.Discard())
	st := p.Current()
	assert.True(t, st.Loading)
	assert.Nil(t, st.User)
}

func TestSubscribeAndUnsubscribe(t *testing.T) {
	p := NewProvider(logger.Discard())
	rec := &recorder{}

	unsubscribe := p.Subscribe(rec.add)
	require.Len(t, rec.all(), 1, "subscriber gets the current state immediately")
	assert.True(t, rec.all()[0].Loading)

	p.Set(&models.User{ID: "u1", DisplayName: "Jane"})
	states := rec.all()
	require.Len(t, states, 2)
	assert.False(t, states[1].Loading)
	assert.Equal(t, "Jane", states[1].User.DisplayName)

	unsubscribe()
	unsubscribe() // safe to call twice
	p.Set(nil)
	assert.Len(t, rec.all(), 2)
	assert.Nil(t, p.Current().User)
}

func TestSetCopiesUser(t *testing.T) {
	p := NewProvider(logger.Discard())
	u := &models.User{ID: "u1", DisplayName: "Jane"}
	p.Set(u)
	u.DisplayName = "changed"
	assert.Equal(t, "Jane", p.Current().User.DisplayName)
}

type stubResolver struct {
	user *models.User
	err  error
}

func (s stubResolver) Resolve(context.Context) (*models.User, error) { return s.user, s.err }

func TestStart(t *testing.T) {
	p := NewProvider(logger.Discard())
	<-p.Start(context.Background(), stubResolver{user: &models.User{ID: "u1"}})
	st := p.Current()
	assert.False(t, st.Loading)
	require.NotNil(t, st.User)
	assert.Equal(t, "u1", st.User.ID)
}

func TestStartFailureSignsOut(t *testing.T) {
	p := NewProvider(logger.Discard())
	<-p.Start(context.Background(), stubResolver{err: errors.New("bad token")})
	st := p.Current()
	assert.False(t, st.Loading)
	assert.Nil(t, st.User)
}

type fakeVerifier struct {
	token   *auth.Token
	record  *auth.UserRecord
	verErr  error
	userErr error
	gotTok  string
}

func (f *fakeVerifier) VerifyIDToken(_ context.Context, idToken string) (*auth.Token, error) {
	f.gotTok = idToken
	return f.token, f.verErr
}

func (f *fakeVerifier) GetUser(context.Context, string) (*auth.UserRecord, error) {
	return f.record, f.userErr
}

func TestFirebaseResolver(t *testing.T) {
	v := &fakeVerifier{
		token: &auth.Token{UID: "uid-1", Claims: map[string]interface{}{"email": "jane@example.com"}},
		record: &auth.UserRecord{UserInfo: &auth.UserInfo{
			UID:         "uid-1",
			DisplayName: "Jane Doe",
			Email:       "jane@example.com",
		}},
	}

	u, err := FirebaseResolver{Client: v, IDToken: "Bearer abc.def.ghi"}.Resolve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "abc.def.ghi", v.gotTok)
	assert.Equal(t, "uid-1", u.ID)
	assert.Equal(t, "Jane Doe", u.DisplayName)
	assert.Equal(t, "jane@example.com", u.Email)
}

func TestFirebaseResolverProfileLookupIsBestEffort(t *testing.T) {
	v := &fakeVerifier{
		token:   &auth.Token{UID: "uid-2", Claims: map[string]interface{}{"email": "x@example.com"}},
		userErr: errors.New("unavailable"),
	}
	u, err := FirebaseResolver{Client: v, IDToken: "tok"}.Resolve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "x@example.com", u.AuthorName())
}

func TestFirebaseResolverErrors(t *testing.T) {
	_, err := FirebaseResolver{Client: &fakeVerifier{}}.Resolve(context.Background())
	assert.ErrorContains(t, err, "missing ID token")

	_, err = FirebaseResolver{Client: &fakeVerifier{verErr: errors.New("expired")}, IDToken: "t"}.Resolve(context.Background())
	assert.ErrorContains(t, err, "expired")
}

func TestDevResolver(t *testing.T) {
	u, err := DevResolver{Key: "Alice@Example.com"}.Resolve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", u.ID)
	assert.Equal(t, "alice@example.com", u.AuthorName())

	u, err = DevResolver{Key: "bob"}.Resolve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "bob", u.AuthorName())

	u, err = DevResolver{}.Resolve(context.Background())
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(u.ID, "dev_"))
	assert.Len(t, u.ID, len("dev_")+32)
}
