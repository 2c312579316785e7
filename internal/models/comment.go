package models

import (
	"bytes"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// CommentKey identifies a comment. Seq separates comments by the same author
// on the same post that share a timestamp. The struct is comparable and is
// used directly as a map key.
type CommentKey struct {
	Post   uuid.UUID `json:"post"`
	Author uuid.UUID `json:"author"`
	Date   time.Time `json:"date"`
	Seq    int       `json:"seq"`
}

// Compare orders keys by post, date, author, then seq. It returns -1, 0 or +1.
func (k CommentKey) Compare(o CommentKey) int {
	if c := bytes.Compare(k.Post[:], o.Post[:]); c != 0 {
		return c
	}
	if c := k.Date.Compare(o.Date); c != 0 {
		return c
	}
	if c := bytes.Compare(k.Author[:], o.Author[:]); c != 0 {
		return c
	}
	switch {
	case k.Seq < o.Seq:
		return -1
	case k.Seq > o.Seq:
		return 1
	}
	return 0
}

func (k CommentKey) String() string {
	return fmt.Sprintf("%s/%s@%s#%d", k.Post, k.Author, k.Date.Format(time.RFC3339Nano), k.Seq)
}

// Normalized returns the key with its date in storage form. Two keys are
// equal under == only after normalization.
func (k CommentKey) Normalized() CommentKey {
	k.Date = Timestamp(k.Date)
	return k
}

type Comment struct {
	Key     CommentKey `json:"id"`
	Content string     `json:"content"`
}

// LikeKey identifies a like; a character likes a post at most once.
type LikeKey struct {
	Post   uuid.UUID `json:"post"`
	Author uuid.UUID `json:"author"`
}

func (k LikeKey) Compare(o LikeKey) int {
	if c := bytes.Compare(k.Post[:], o.Post[:]); c != 0 {
		return c
	}
	return bytes.Compare(k.Author[:], o.Author[:])
}

func (k LikeKey) String() string {
	return k.Post.String() + "/" + k.Author.String()
}

type Like struct {
	Key       LikeKey   `json:"id"`
	CreatedAt time.Time `json:"date"`
}
