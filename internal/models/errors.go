package models

import (
	"errors"
	"fmt"
)

// ValidationError is bad user input caught before any I/O.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error (%s): %s", e.Field, e.Message)
}

func NewValidationError(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}

// DataAccessError is a listing, lookup or document write that failed in the store.
type DataAccessError struct {
	Op  string
	Err error
}

func (e *DataAccessError) Error() string {
	return fmt.Sprintf("data access %s: %v", e.Op, e.Err)
}

func (e *DataAccessError) Unwrap() error { return e.Err }

// Comment submission stages.
const (
	StageWrite     = "write"
	StageReconcile = "reconcile"
)

// CommentSubmitError is a failed durable write (or the resync after it) during addComment.
type CommentSubmitError struct {
	PostID string
	Stage  string
	Err    error
}

func (e *CommentSubmitError) Error() string {
	return fmt.Sprintf("submit comment on %s (%s): %v", e.PostID, e.Stage, e.Err)
}

func (e *CommentSubmitError) Unwrap() error { return e.Err }

// UploadError is a blob upload failure; post creation stops there.
type UploadError struct {
	Path string
	Err  error
}

func (e *UploadError) Error() string {
	return fmt.Sprintf("upload %s: %v", e.Path, e.Err)
}

func (e *UploadError) Unwrap() error { return e.Err }

func IsValidationError(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

func IsDataAccessError(err error) bool {
	var d *DataAccessError
	return errors.As(err, &d)
}

func IsCommentSubmitError(err error) bool {
	var c *CommentSubmitError
	return errors.As(err, &c)
}

func IsUploadError(err error) bool {
	var u *UploadError
	return errors.As(err, &u)
}

// UserMessage turns an operation failure into the notice shown to the user.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	var (
		v *ValidationError
		c *CommentSubmitError
		u *UploadError
		d *DataAccessError
	)
	switch {
	case errors.As(err, &v):
		return v.Message
	case errors.As(err, &c):
		return "Failed to post comment. Please try again."
	case errors.As(err, &u):
		return "Failed to upload image. Please try again."
	case errors.As(err, &d):
		switch d.Op {
		case OpListPosts:
			return "Failed to load posts."
		case OpListComments:
			return "Failed to load comments."
		case OpGetPost:
			return "Failed to load post."
		case OpCreatePost:
			return "Failed to create post. Please try again."
		}
		return "Something went wrong. Please try again."
	}
	return "Something went wrong. Please try again."
}

// Operation names carried by DataAccessError.
const (
	OpListPosts    = "list posts"
	OpGetPost      = "get post"
	OpCreatePost   = "create post"
	OpListComments = "list comments"
)
