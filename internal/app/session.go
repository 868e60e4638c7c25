// Package app ties the view controller, the repositories and the identity
// provider into one running session. Each mode's data lives here and is only
// touched while that mode is on screen; late results for a view that has
// since gone away are dropped.
package app

import (
	"context"
	"errors"
	"sync"
	"time"

	"local.dev/postboard/internal/comments"
	"local.dev/postboard/internal/identity"
	"local.dev/postboard/internal/logger"
	"local.dev/postboard/internal/models"
	"local.dev/postboard/internal/posts"
	"local.dev/postboard/internal/view"
)

// ErrStale is returned when a result arrived after its view was left.
var ErrStale = errors.New("view changed before the result arrived")

// Deps are the process-wide handles, built once in main.
type Deps struct {
	Posts    *posts.Repository
	Comments *comments.Repository
	Identity *identity.Provider
	Log      *logger.Logger
}

type Level int

const (
	LevelInfo Level = iota
	LevelError
)

// Notice is a user-visible message queued for the renderer.
type Notice struct {
	Level Level
	Text  string
	At    time.Time
}

// Snapshot is everything a renderer needs for the active mode.
type Snapshot struct {
	Mode       view.Mode
	Generation uint64

	User        *models.User
	AuthLoading bool

	// List
	Posts        []models.Post
	PostsLoading bool

	// Create
	CreateSubmitting bool

	// Detail
	Post              *models.Post
	Comments          []models.Comment
	CommentsLoading   bool
	Draft             string
	CommentSubmitting bool
}

type Session struct {
	deps Deps
	ctrl *view.Controller

	mu           sync.Mutex
	started      bool
	unsubscribe  func()
	auth         identity.State
	posts        []models.Post
	postsLoading bool
	refreshSeq   uint64
	creating     bool
	thread       *comments.Thread
	notices      []Notice
}

func NewSession(deps Deps) *Session {
	if deps.Log == nil {
		deps.Log = logger.Discard()
	}
	return &Session{
		deps:  deps,
		ctrl:  view.NewController(),
		auth:  identity.State{Loading: true},
		posts: []models.Post{},
	}
}

// Start subscribes to identity changes and loads the post list. The
// subscription is held until Close.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return nil
	}
	s.started = true
	s.mu.Unlock()

	unsub := s.deps.Identity.Subscribe(func(st identity.State) {
		s.mu.Lock()
		s.auth = st
		s.mu.Unlock()
	})
	s.mu.Lock()
	s.unsubscribe = unsub
	s.mu.Unlock()

	return s.RefreshPosts(ctx)
}

// Close releases the identity subscription. It is safe to call twice.
func (s *Session) Close() {
	s.mu.Lock()
	unsub := s.unsubscribe
	s.unsubscribe = nil
	s.mu.Unlock()
	if unsub != nil {
		unsub()
	}
}

// User is the signed-in identity, or nil.
func (s *Session) User() *models.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.auth.User
}

// RefreshPosts reloads the post list. It only applies while the list is
// showing; on failure the previous list stays.
func (s *Session) RefreshPosts(ctx context.Context) error {
	st := s.ctrl.State()
	if st.Mode != view.List {
		return view.ErrInvalidTransition
	}
	s.mu.Lock()
	s.refreshSeq++
	seq := s.refreshSeq
	s.postsLoading = true
	s.mu.Unlock()

	list, err := s.deps.Posts.ListPosts(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	if seq == s.refreshSeq {
		// no newer refresh took over the flag
		s.postsLoading = false
	}
	if !s.ctrl.IsCurrent(st.Generation) {
		return ErrStale
	}
	if err != nil {
		s.deps.Log.Error("fetch posts: %v", err)
		s.noticeLocked(LevelError, models.UserMessage(err))
		return err
	}
	s.posts = list
	return nil
}

// SelectPost opens the detail view for id and loads its comments.
func (s *Session) SelectPost(ctx context.Context, id string) error {
	if st := s.ctrl.State(); st.Mode != view.List {
		return view.ErrInvalidTransition
	}
	p := s.cachedPost(id)
	if p == nil {
		var err error
		p, err = s.deps.Posts.GetPost(ctx, id)
		if err != nil {
			if !errors.Is(err, posts.ErrNotFound) {
				s.deps.Log.Error("fetch post %s: %v", id, err)
			}
			s.notice(LevelError, postLookupMessage(err))
			return err
		}
	}

	st, err := s.ctrl.SelectPost(p)
	if err != nil {
		return err
	}
	gen := st.Generation
	th := comments.NewThread(p.ID, func() bool { return s.ctrl.IsCurrent(gen) })
	s.mu.Lock()
	s.thread = th
	s.mu.Unlock()

	if err := s.deps.Comments.Load(ctx, th); err != nil {
		if th.Live() {
			s.notice(LevelError, models.UserMessage(err))
		}
		return err
	}
	return nil
}

func (s *Session) cachedPost(id string) *models.Post {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.posts {
		if s.posts[i].ID == id {
			p := s.posts[i]
			return &p
		}
	}
	return nil
}

func postLookupMessage(err error) string {
	if errors.Is(err, posts.ErrNotFound) {
		return "Post not found."
	}
	return models.UserMessage(err)
}

func (s *Session) StartCreate() error {
	_, err := s.ctrl.StartCreate()
	return err
}

// CancelCreate closes the create form and reloads the list.
func (s *Session) CancelCreate(ctx context.Context) error {
	if _, err := s.ctrl.Cancel(); err != nil {
		return err
	}
	return s.RefreshPosts(ctx)
}

// SubmitPost creates a post from the create form. On success the view
// returns to the list and the list is reloaded; on failure the form stays.
func (s *Session) SubmitPost(ctx context.Context, in models.PostInput, img *models.Image) (string, error) {
	st := s.ctrl.State()
	if st.Mode != view.Create {
		return "", view.ErrInvalidTransition
	}
	s.mu.Lock()
	if s.creating {
		s.mu.Unlock()
		return "", models.NewValidationError("post", "A post is already being created.")
	}
	s.creating = true
	user := s.auth.User
	s.mu.Unlock()

	id, err := s.deps.Posts.CreatePost(ctx, user, in, img)

	s.mu.Lock()
	s.creating = false
	s.mu.Unlock()
	if err != nil {
		if !models.IsValidationError(err) {
			s.deps.Log.Error("create post: %v", err)
		}
		s.notice(LevelError, models.UserMessage(err))
		return "", err
	}

	s.deps.Log.Info("created post %s", id)
	if !s.ctrl.IsCurrent(st.Generation) {
		return id, nil
	}
	if _, err := s.ctrl.PostCreated(); err != nil {
		return id, nil
	}
	_ = s.RefreshPosts(ctx)
	return id, nil
}

// Back leaves the detail view, drops its comment thread and reloads the list.
func (s *Session) Back(ctx context.Context) error {
	if _, err := s.ctrl.Back(); err != nil {
		return err
	}
	s.mu.Lock()
	s.thread = nil
	s.mu.Unlock()
	return s.RefreshPosts(ctx)
}

// SetDraft updates the comment input of the open post.
func (s *Session) SetDraft(text string) error {
	th, err := s.currentThread()
	if err != nil {
		return err
	}
	th.SetDraft(text)
	return nil
}

// SubmitComment posts the current draft on the open post. It blocks until
// the write is reconciled or rolled back; the placeholder shows in View
// meanwhile.
func (s *Session) SubmitComment(ctx context.Context) (comments.Result, error) {
	finish, err := s.StartComment()
	if err != nil {
		return comments.Result{Outcome: comments.Rejected, Err: err}, err
	}
	return finish(ctx)
}

// StartComment takes the current draft, shows its placeholder and clears the
// input before returning. The returned finish runs the store write and the
// resync; it may run on another goroutine.
func (s *Session) StartComment() (finish func(context.Context) (comments.Result, error), err error) {
	th, err := s.currentThread()
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	user := s.auth.User
	s.mu.Unlock()

	attempt, err := s.deps.Comments.Begin(th, user, th.Draft())
	if err != nil {
		s.notice(LevelError, models.UserMessage(err))
		return nil, err
	}
	return func(ctx context.Context) (comments.Result, error) {
		res := attempt.Finish(ctx)
		if res.Err != nil && th.Live() {
			s.notice(LevelError, models.UserMessage(res.Err))
		}
		return res, res.Err
	}, nil
}

func (s *Session) currentThread() (*comments.Thread, error) {
	if s.ctrl.State().Mode != view.Detail {
		return nil, view.ErrInvalidTransition
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.thread == nil || !s.thread.Live() {
		return nil, view.ErrInvalidTransition
	}
	return s.thread, nil
}

// View returns a snapshot of the active mode.
func (s *Session) View() Snapshot {
	st := s.ctrl.State()
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{
		Mode:        st.Mode,
		Generation:  st.Generation,
		User:        s.auth.User,
		AuthLoading: s.auth.Loading,
	}
	switch st.Mode {
	case view.List:
		snap.Posts = append([]models.Post(nil), s.posts...)
		snap.PostsLoading = s.postsLoading
	case view.Create:
		snap.CreateSubmitting = s.creating
	case view.Detail:
		snap.Post = st.Post
		if th := s.thread; th != nil {
			snap.Comments = th.Comments()
			snap.CommentsLoading = th.Loading()
			snap.Draft = th.Draft()
			snap.CommentSubmitting = th.Submitting()
		}
	}
	return snap
}

// Notices drains the queued user-visible messages.
func (s *Session) Notices() []Notice {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.notices
	s.notices = nil
	return out
}

func (s *Session) notice(level Level, text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.noticeLocked(level, text)
}

func (s *Session) noticeLocked(level Level, text string) {
	s.notices = append(s.notices, Notice{Level: level, Text: text, At: time.Now()})
}
