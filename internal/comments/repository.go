// Package comments reads and writes a post's comments and implements the
// optimistic submit protocol: show the comment at once, write it, then either
// resync the whole list from the store or roll the placeholder back.
package comments

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"local.dev/postboard/internal/datastore"
	"local.dev/postboard/internal/logger"
	"local.dev/postboard/internal/models"
)

// ProvisionalPrefix marks ids the client made up before the store answered.
const ProvisionalPrefix = "temp-"

// RollbackPolicy decides which placeholders a failed submit removes.
type RollbackPolicy int

const (
	// PurgeAllProvisional removes every placeholder in the thread, including
	// those of other submissions still in flight.
	PurgeAllProvisional RollbackPolicy = iota
	// PurgeOwnAttempt removes only the failed submission's placeholder.
	PurgeOwnAttempt
)

// Outcome is how an AddComment call ended.
type Outcome int

const (
	// Rejected: input failed validation, nothing was written or shown.
	Rejected Outcome = iota
	// Reconciled: the store accepted the write and the list was resynced.
	Reconciled
	// RolledBack: the write (or the resync) failed and placeholders were purged.
	RolledBack
)

func (o Outcome) String() string {
	switch o {
	case Rejected:
		return "rejected"
	case Reconciled:
		return "reconciled"
	case RolledBack:
		return "rolled back"
	}
	return fmt.Sprintf("Outcome(%d)", int(o))
}

// Result reports an AddComment call. Comments is the thread's list after the
// call, or nil when the thread's view had already gone away. Err is nil only
// for Reconciled.
type Result struct {
	Outcome     Outcome
	Placeholder models.Comment
	Comments    []models.Comment
	Err         error
}

type Repository struct {
	store  datastore.DataStore
	log    *logger.Logger
	now    func() time.Time
	policy RollbackPolicy
	seq    atomic.Uint64
}

type Option func(*Repository)

func WithRollbackPolicy(p RollbackPolicy) Option {
	return func(r *Repository) { r.policy = p }
}

// WithClock replaces time.Now for placeholder ids and timestamps.
func WithClock(now func() time.Time) Option {
	return func(r *Repository) { r.now = now }
}

func NewRepository(store datastore.DataStore, log *logger.Logger, opts ...Option) *Repository {
	r := &Repository{store: store, log: log, now: time.Now, policy: PurgeAllProvisional}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// ListComments returns the post's comments in the order the store recorded them.
func (r *Repository) ListComments(ctx context.Context, postID string) ([]models.Comment, error) {
	docs, err := r.store.ListDocuments(ctx, datastore.CommentsCollection(postID), datastore.Query{OrderBy: "createdAt"})
	if err != nil {
		return nil, &models.DataAccessError{Op: models.OpListComments, Err: err}
	}
	out := make([]models.Comment, 0, len(docs))
	for _, d := range docs {
		c := models.Comment{
			ID:        d.ID,
			PostID:    d.String("postId"),
			Author:    d.String("author"),
			Content:   d.String("content"),
			CreatedAt: d.Time("createdAt"),
		}
		if c.PostID == "" {
			c.PostID = postID
		}
		out = append(out, c)
	}
	return out, nil
}

// Load fetches the thread's comments and applies them if its view is still live.
func (r *Repository) Load(ctx context.Context, t *Thread) error {
	list, err := r.ListComments(ctx, t.PostID())
	if err != nil {
		r.log.Error("fetch comments for %s: %v", t.PostID(), err)
		t.LoadFailed()
		return err
	}
	t.Replace(list)
	return nil
}

// AddComment runs the optimistic submit protocol on t:
//
//  1. reject blank content or a missing user without touching the network;
//  2. append a placeholder with a provisional id and clear the input field;
//  3. write the comment to the store (this blocks on the network);
//  4. on success, re-read the whole list and replace the thread's list;
//  5. on failure, purge placeholders per the rollback policy.
//
// When AddComment returns, no placeholder of this attempt is left in t.
// Callers that must not block on the network use Begin and Finish instead.
func (r *Repository) AddComment(ctx context.Context, t *Thread, user *models.User, content string) Result {
	a, err := r.Begin(t, user, content)
	if err != nil {
		return Result{Outcome: Rejected, Err: err}
	}
	return a.Finish(ctx)
}

// Attempt is a submitted comment whose placeholder is already showing and
// whose store write has not run yet.
type Attempt struct {
	r           *Repository
	t           *Thread
	placeholder models.Comment
	finished    atomic.Bool
}

// Begin validates and inserts the placeholder (steps 1 and 2) without any
// I/O. The returned Attempt must be finished exactly once.
func (r *Repository) Begin(t *Thread, user *models.User, content string) (*Attempt, error) {
	if strings.TrimSpace(content) == "" {
		return nil, models.NewValidationError("content", "Comment cannot be empty.")
	}
	if user == nil {
		return nil, models.NewValidationError("user", "You must be signed in to post a comment.")
	}

	placeholder := models.Comment{
		ID:        r.provisionalID(),
		PostID:    t.PostID(),
		Author:    user.AuthorName(),
		Content:   content,
		CreatedAt: r.now(),
	}
	t.insertPlaceholder(placeholder)
	return &Attempt{r: r, t: t, placeholder: placeholder}, nil
}

// Placeholder is the provisional entry Begin inserted.
func (a *Attempt) Placeholder() models.Comment { return a.placeholder }

// Finish writes the comment and reconciles or rolls back (steps 3 to 5).
func (a *Attempt) Finish(ctx context.Context) Result {
	if !a.finished.CompareAndSwap(false, true) {
		return Result{Outcome: RolledBack, Placeholder: a.placeholder, Err: errors.New("comment attempt already finished")}
	}
	r, t, placeholder := a.r, a.t, a.placeholder
	defer t.done()

	_, err := r.store.CreateDocument(ctx, datastore.CommentsCollection(t.PostID()), map[string]interface{}{
		"postId":    t.PostID(),
		"author":    placeholder.Author,
		"content":   placeholder.Content,
		"createdAt": datastore.ServerTimestamp,
	})
	if err != nil {
		return r.rollback(t, placeholder, models.StageWrite, err)
	}

	list, err := r.ListComments(ctx, t.PostID())
	if err != nil {
		return r.rollback(t, placeholder, models.StageReconcile, err)
	}
	res := Result{Outcome: Reconciled, Placeholder: placeholder}
	if t.Replace(list) {
		res.Comments = t.Comments()
	} else {
		t.purge(placeholder.ID)
	}
	return res
}

func (r *Repository) rollback(t *Thread, placeholder models.Comment, stage string, cause error) Result {
	r.log.Error("add comment to %s (%s): %v", t.PostID(), stage, cause)
	own := ""
	if r.policy == PurgeOwnAttempt || !t.Live() {
		own = placeholder.ID
	}
	removed := t.purge(own)
	if removed > 1 {
		r.log.Warn("rollback on %s removed %d pending comments", t.PostID(), removed)
	}

	res := Result{
		Outcome:     RolledBack,
		Placeholder: placeholder,
		Err:         &models.CommentSubmitError{PostID: t.PostID(), Stage: stage, Err: cause},
	}
	if t.Live() {
		res.Comments = t.Comments()
	}
	return res
}

// provisionalID is time-derived with a sequence suffix so two submits in the
// same millisecond still differ.
func (r *Repository) provisionalID() string {
	return fmt.Sprintf("%s%d-%d", ProvisionalPrefix, r.now().UnixMilli(), r.seq.Add(1))
}
