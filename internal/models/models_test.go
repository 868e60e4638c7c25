package models

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAuthorName(t *testing.T) {
	tests := []struct {
		name string
		user *User
		want string
	}{
		{"display name wins", &User{DisplayName: "Jane", Email: "jane@example.com"}, "Jane"},
		{"falls back to email", &User{Email: "jane@example.com"}, "jane@example.com"},
		{"blank display name", &User{DisplayName: "  ", Email: "j@x.io"}, "j@x.io"},
		{"nothing set", &User{ID: "u1"}, "Anonymous"},
		{"nil user", nil, "Anonymous"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.user.AuthorName())
		})
	}
}

func TestErrorKinds(t *testing.T) {
	cause := errors.New("unavailable")

	validation := NewValidationError("content", "Comment cannot be empty.")
	access := fmt.Errorf("wrapped: %w", &DataAccessError{Op: OpListPosts, Err: cause})
	submit := &CommentSubmitError{PostID: "p1", Stage: StageWrite, Err: cause}
	upload := &UploadError{Path: "images/a.png", Err: cause}

	assert.True(t, IsValidationError(validation))
	assert.False(t, IsValidationError(access))
	assert.True(t, IsDataAccessError(access))
	assert.True(t, IsCommentSubmitError(submit))
	assert.True(t, IsUploadError(upload))

	assert.ErrorIs(t, access, cause)
	assert.ErrorIs(t, submit, cause)
	assert.ErrorIs(t, upload, cause)
}

func TestUserMessage(t *testing.T) {
	cause := errors.New("boom")

	assert.Equal(t, "", UserMessage(nil))
	assert.Equal(t, "Comment cannot be empty.", UserMessage(NewValidationError("content", "Comment cannot be empty.")))
	assert.Equal(t, "Failed to post comment. Please try again.", UserMessage(&CommentSubmitError{Err: cause}))
	assert.Equal(t, "Failed to upload image. Please try again.", UserMessage(&UploadError{Err: cause}))
	assert.Equal(t, "Failed to load posts.", UserMessage(&DataAccessError{Op: OpListPosts, Err: cause}))
	assert.Equal(t, "Failed to create post. Please try again.", UserMessage(&DataAccessError{Op: OpCreatePost, Err: cause}))
	assert.Equal(t, "Something went wrong. Please try again.", UserMessage(cause))
}
