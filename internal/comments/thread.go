package comments

import (
	"strings"
	"sync"

	"local.dev/postboard/internal/models"
)

// Thread is the in-memory comment list shown for one post, plus the
// pending input field. The detail view owns it; nothing else mutates it.
//
// live reports whether the view that owns the thread is still on screen.
// Once it returns false every late result is dropped.
type Thread struct {
	postID string
	live   func() bool

	mu         sync.Mutex
	items      []models.Comment
	draft      string
	loading    bool
	submitting int
}

func NewThread(postID string, live func() bool) *Thread {
	if live == nil {
		live = func() bool { return true }
	}
	return &Thread{postID: postID, live: live, loading: true, items: []models.Comment{}}
}

func (t *Thread) PostID() string { return t.postID }

// Live reports whether results may still be applied.
func (t *Thread) Live() bool { return t.live() }

// Comments returns a copy of the current list.
func (t *Thread) Comments() []models.Comment {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]models.Comment(nil), t.items...)
}

func (t *Thread) Draft() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.draft
}

func (t *Thread) SetDraft(s string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.draft = s
}

// Loading is true until the first list result (or failure) lands.
func (t *Thread) Loading() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.loading
}

// Submitting is true while any addComment on this thread is in flight.
func (t *Thread) Submitting() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.submitting > 0
}

// ProvisionalCount reports how many placeholders are showing.
func (t *Thread) ProvisionalCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	for _, c := range t.items {
		if IsProvisional(c.ID) {
			n++
		}
	}
	return n
}

// Replace swaps in an authoritative list. It reports false, and changes
// nothing, when the owning view is gone.
func (t *Thread) Replace(list []models.Comment) bool {
	if !t.live() {
		return false
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.items = append([]models.Comment{}, list...)
	t.loading = false
	return true
}

// LoadFailed ends the loading state without touching the list.
func (t *Thread) LoadFailed() {
	if !t.live() {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.loading = false
}

// insertPlaceholder appends c and clears the input field in one step.
func (t *Thread) insertPlaceholder(c models.Comment) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.items = append(t.items, c)
	t.draft = ""
	t.submitting++
}

func (t *Thread) done() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.submitting--
}

// purge drops placeholders. With own set, only that id goes; otherwise every
// provisional entry does. Durable comments are never touched.
func (t *Thread) purge(own string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	kept := t.items[:0:0]
	removed := 0
	for _, c := range t.items {
		drop := IsProvisional(c.ID) && (own == "" || c.ID == own)
		if drop {
			removed++
			continue
		}
		kept = append(kept, c)
	}
	t.items = kept
	return removed
}

// IsProvisional reports whether id is a client-side placeholder id.
func IsProvisional(id string) bool {
	return strings.HasPrefix(id, ProvisionalPrefix)
}
