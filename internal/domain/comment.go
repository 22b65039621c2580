package domain

import (
	"strings"
	"time"
)

// Comment stores one message on a project's discussion thread.
type Comment struct {
	ID         string
	ProjectID  string
	AuthorID   string
	AuthorName string
	Message    string
	CreatedAt  time.Time
}

// CommentInput holds input values for comment creation operations.
type CommentInput struct {
	ID         string
	ProjectID  string
	AuthorID   string
	AuthorName string
	Message    string
}

// NewComment constructs a normalized comment.
func NewComment(in CommentInput, now time.Time) (Comment, error) {
	in.ID = strings.TrimSpace(in.ID)
	in.ProjectID = strings.TrimSpace(in.ProjectID)
	if in.ID == "" || in.ProjectID == "" {
		return Comment{}, ErrInvalidID
	}
	message := strings.TrimSpace(in.Message)
	if message == "" {
		return Comment{}, ErrInvalidMessage
	}
	authorName := strings.TrimSpace(in.AuthorName)
	if authorName == "" {
		authorName = "anonymous"
	}
	return Comment{
		ID:         in.ID,
		ProjectID:  in.ProjectID,
		AuthorID:   strings.TrimSpace(in.AuthorID),
		AuthorName: authorName,
		Message:    message,
		CreatedAt:  now.UTC(),
	}, nil
}
