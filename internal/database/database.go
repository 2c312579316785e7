package database

import (
	"context"
	"fmt"
	"time"

	"tavern-net/internal/models"

	"github.com/google/uuid"
)

// EntityStore is the storage boundary consumed by the integrity layer and the
// engagement view. Every insert fails with utils.ErrDuplicateIdentity when the
// primary or a unique key exists; every Get fails with utils.ErrNotFound.
// List methods return matches oldest first; entities created at the same
// instant come back in insertion order on the memory and SQL backends.
//
// Stores do not validate cross-entity references; that is the integrity
// layer's job. Backends that also enforce them natively report a violation as
// utils.ErrDanglingReference.
type EntityStore interface {
	// Lifecycle
	Bootstrap(ctx context.Context) error
	Ping(ctx context.Context) error
	Close(ctx context.Context) error

	// Accounts
	InsertAccount(ctx context.Context, account *models.Account) error
	GetAccount(ctx context.Context, username string) (*models.Account, error)
	// SetActiveCharacter points the account at characterID when at is later
	// than the timestamp of the current value. It reports whether it applied.
	// The character must exist and belong to username when the write lands,
	// else it fails with utils.ErrNotFound or utils.ErrOwnershipMismatch and
	// the account is left unchanged.
	SetActiveCharacter(ctx context.Context, username string, characterID uuid.UUID, at time.Time) (bool, error)
	// ClearActiveCharacter unsets the active character if it is characterID.
	ClearActiveCharacter(ctx context.Context, username string, characterID uuid.UUID) error

	// Characters
	InsertCharacter(ctx context.Context, character *models.Character) error
	UpdateCharacter(ctx context.Context, character *models.Character) error
	GetCharacter(ctx context.Context, id uuid.UUID) (*models.Character, error)
	GetCharacterByName(ctx context.Context, owner, name string) (*models.Character, error)
	ListCharactersByAccount(ctx context.Context, owner string) ([]*models.Character, error)
	DeleteCharacter(ctx context.Context, id uuid.UUID) error

	// Posts
	InsertPost(ctx context.Context, post *models.Post) error
	GetPost(ctx context.Context, id uuid.UUID) (*models.Post, error)
	ListPosts(ctx context.Context) ([]*models.Post, error)
	ListPostsByCharacter(ctx context.Context, characterID uuid.UUID) ([]*models.Post, error)
	// DeletePost removes the post with its comments and likes.
	DeletePost(ctx context.Context, id uuid.UUID) error

	// Comments
	InsertComment(ctx context.Context, comment *models.Comment) error
	GetComment(ctx context.Context, key models.CommentKey) (*models.Comment, error)
	ListCommentsByPost(ctx context.Context, postID uuid.UUID) ([]*models.Comment, error)

	// Likes
	InsertLike(ctx context.Context, like *models.Like) error
	HasLike(ctx context.Context, key models.LikeKey) (bool, error)
	DeleteLike(ctx context.Context, key models.LikeKey) error
	ListLikesByPost(ctx context.Context, postID uuid.UUID) ([]*models.Like, error)
}

// EngagementQuerier is implemented by backends that can compute post
// engagement counts in a single query.
type EngagementQuerier interface {
	GetPostView(ctx context.Context, id uuid.UUID) (*models.PostView, error)
	ListPostViews(ctx context.Context, characterID *uuid.UUID) ([]*models.PostView, error)
}

// Backend type names accepted by Open.
const (
	TypeMongo    = "mongo"
	TypePostgres = "postgres"
	TypeMemory   = "memory"
)

// Open connects to the backend named by dbType.
func Open(dbType, uri, name string) (EntityStore, error) {
	switch dbType {
	case TypeMongo:
		return NewMongoDB(uri, name)
	case TypePostgres:
		return NewPostgresDB(uri)
	case TypeMemory:
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unsupported database type %q", dbType)
	}
}
