package models

import (
	"time"

	"github.com/google/uuid"
)

// Post is authored by exactly one Character and is immutable once published.
type Post struct {
	ID      uuid.UUID `json:"id"`
	Date    time.Time `json:"date"`
	Author  uuid.UUID `json:"author"`
	Title   string    `json:"title"`
	Content string    `json:"content"`
}

// PostView is a Post enriched with engagement counts derived at read time.
// It carries no collections of the joined likes or comments.
type PostView struct {
	Post
	LikeCount    int `json:"likeCount"`
	CommentCount int `json:"commentCount"`
}
