package shell

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/fatih/color"

	"local.dev/postboard/internal/app"
	"local.dev/postboard/internal/comments"
	"local.dev/postboard/internal/models"
	"local.dev/postboard/internal/view"
)

var (
	bold   = color.New(color.Bold).SprintFunc()
	faint  = color.New(color.Faint).SprintFunc()
	cyan   = color.New(color.FgCyan).SprintFunc()
	red    = color.New(color.FgRed).SprintFunc()
	yellow = color.New(color.FgYellow).SprintFunc()
)

// Render writes the active mode of snap as text.
func Render(w io.Writer, snap app.Snapshot, now time.Time) {
	switch snap.Mode {
	case view.List:
		renderList(w, snap, now)
	case view.Create:
		renderCreate(w, snap)
	case view.Detail:
		renderDetail(w, snap, now)
	}
}

func renderList(w io.Writer, snap app.Snapshot, now time.Time) {
	fmt.Fprintln(w, bold("Posts"))
	if snap.PostsLoading && len(snap.Posts) == 0 {
		fmt.Fprintln(w, faint("  loading..."))
		return
	}
	if len(snap.Posts) == 0 {
		fmt.Fprintln(w, faint("  no posts yet, type 'new' to write one"))
		return
	}
	for i, p := range snap.Posts {
		img := ""
		if p.ImageURL != nil {
			img = " " + faint("[image]")
		}
		fmt.Fprintf(w, "  %s %s%s\n", cyan(fmt.Sprintf("%2d.", i+1)), bold(p.Title), img)
		fmt.Fprintf(w, "      %s\n", faint(fmt.Sprintf("by %s, %s", p.Author, RelativeTime(p.CreatedAt, now))))
	}
}

func renderCreate(w io.Writer, snap app.Snapshot) {
	fmt.Fprintln(w, bold("New post"))
	if snap.CreateSubmitting {
		fmt.Fprintln(w, faint("  creating..."))
		return
	}
	fmt.Fprintln(w, faint("  title <text> | content <text> | image <path> | submit | cancel"))
}

func renderDetail(w io.Writer, snap app.Snapshot, now time.Time) {
	p := snap.Post
	if p == nil {
		return
	}
	fmt.Fprintln(w, bold(p.Title))
	fmt.Fprintln(w, faint(fmt.Sprintf("by %s, %s", p.Author, RelativeTime(p.CreatedAt, now))))
	if p.ImageURL != nil {
		fmt.Fprintf(w, "%s %s\n", faint("image:"), *p.ImageURL)
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, p.Content)
	fmt.Fprintln(w)

	fmt.Fprintln(w, bold(fmt.Sprintf("Comments (%d)", len(snap.Comments))))
	switch {
	case snap.CommentsLoading:
		fmt.Fprintln(w, faint("  loading..."))
	case len(snap.Comments) == 0:
		fmt.Fprintln(w, faint("  no comments yet"))
	}
	for _, c := range snap.Comments {
		when := RelativeTime(c.CreatedAt, now)
		if comments.IsProvisional(c.ID) {
			when = yellow("sending...")
		}
		fmt.Fprintf(w, "  %s %s\n", cyan(c.Author), faint(when))
		fmt.Fprintf(w, "    %s\n", c.Content)
	}
	if snap.Draft != "" {
		fmt.Fprintf(w, "%s %s\n", faint("draft:"), snap.Draft)
	}
}

// RenderNotices prints queued notices, errors in red.
func RenderNotices(w io.Writer, notices []app.Notice) {
	for _, n := range notices {
		if n.Level == app.LevelError {
			fmt.Fprintln(w, red("! "+n.Text))
			continue
		}
		fmt.Fprintln(w, "* "+n.Text)
	}
}

// RenderUser prints who is signed in.
func RenderUser(w io.Writer, snap app.Snapshot) {
	switch {
	case snap.AuthLoading:
		fmt.Fprintln(w, faint("signing in..."))
	case snap.User == nil:
		fmt.Fprintln(w, "not signed in")
	default:
		u := snap.User
		parts := []string{bold(u.AuthorName()), faint("id=" + u.ID)}
		if u.Email != "" && u.Email != u.AuthorName() {
			parts = append(parts, faint("email="+u.Email))
		}
		fmt.Fprintln(w, strings.Join(parts, " "))
	}
}

// RelativeTime formats t against now like "3 minutes ago".
func RelativeTime(t, now time.Time) string {
	if t.IsZero() {
		return "just now"
	}
	d := now.Sub(t)
	if d < 0 {
		d = 0
	}
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return plural(int(d/time.Minute), "minute")
	case d < 24*time.Hour:
		return plural(int(d/time.Hour), "hour")
	case d < 30*24*time.Hour:
		return plural(int(d/(24*time.Hour)), "day")
	}
	return t.Local().Format("Jan 2, 2006")
}

func plural(n int, unit string) string {
	if n == 1 {
		return "1 " + unit + " ago"
	}
	return fmt.Sprintf("%d %ss ago", n, unit)
}

func postLabel(p *models.Post) string {
	if p == nil {
		return ""
	}
	return p.Title
}
