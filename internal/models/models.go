package models

import (
	"strings"
	"time"
)

// User is the signed-in identity as reported by the identity provider.
type User struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName,omitempty"`
	Email       string `json:"email,omitempty"`
}

// AuthorName is the display identity stamped on posts and comments.
func (u *User) AuthorName() string {
	if u == nil {
		return "Anonymous"
	}
	if n := strings.TrimSpace(u.DisplayName); n != "" {
		return n
	}
	if e := strings.TrimSpace(u.Email); e != "" {
		return e
	}
	return "Anonymous"
}

type Post struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	Author    string    `json:"author"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	ImageURL  *string   `json:"imageUrl"` // nil when the post has no image
	CreatedAt time.Time `json:"createdAt"`
}

type Comment struct {
	ID        string    `json:"id"`
	PostID    string    `json:"postId"`
	Author    string    `json:"author"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
}

// PostInput is what the create form collects; the author fields come from the session.
type PostInput struct {
	Title   string
	Content string
}

// Image is an optional attachment uploaded before the post document is written.
type Image struct {
	Name        string
	Data        []byte
	ContentType string // sniffed when empty
}
