// internal/database/like_repository.go
package database

import (
	"context"
	"time"

	"tavern-net/internal/models"
	"tavern-net/internal/utils"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// LikeKeyDocument is the composite _id of a like: one per (post, author).
type LikeKeyDocument struct {
	Post   string `bson:"post"`
	Author string `bson:"author"`
}

type LikeDocument struct {
	ID   LikeKeyDocument `bson:"_id"`
	Date time.Time       `bson:"date"`
}

func likeKeyToDocument(key models.LikeKey) LikeKeyDocument {
	return LikeKeyDocument{Post: key.Post.String(), Author: key.Author.String()}
}

func documentToLike(doc *LikeDocument) (*models.Like, error) {
	ids, err := parseUUIDs(doc.ID.Post, doc.ID.Author)
	if err != nil {
		return nil, err
	}
	return &models.Like{
		Key:       models.LikeKey{Post: ids[0], Author: ids[1]},
		CreatedAt: models.Timestamp(doc.Date),
	}, nil
}

func (m *MongoDB) InsertLike(ctx context.Context, like *models.Like) error {
	doc := LikeDocument{ID: likeKeyToDocument(like.Key), Date: like.CreatedAt}
	if _, err := m.Likes.InsertOne(ctx, doc); err != nil {
		return mongoWriteError("Like", like.Key.String(), err)
	}
	return nil
}

func (m *MongoDB) HasLike(ctx context.Context, key models.LikeKey) (bool, error) {
	count, err := m.Likes.CountDocuments(ctx, bson.M{"_id": likeKeyToDocument(key)})
	if err != nil {
		return false, utils.NewAppError(utils.ErrDatabase, "failed to check like", err)
	}
	return count > 0, nil
}

func (m *MongoDB) DeleteLike(ctx context.Context, key models.LikeKey) error {
	result, err := m.Likes.DeleteOne(ctx, bson.M{"_id": likeKeyToDocument(key)})
	if err != nil {
		return utils.NewAppError(utils.ErrDatabase, "failed to delete like", err)
	}
	if result.DeletedCount == 0 {
		return utils.NewNotFoundError("Like", key.String())
	}
	return nil
}

func (m *MongoDB) ListLikesByPost(ctx context.Context, postID uuid.UUID) ([]*models.Like, error) {
	opts := options.Find().SetSort(bson.D{{Key: "date", Value: 1}, {Key: "_id.author", Value: 1}})
	cursor, err := m.Likes.Find(ctx, bson.M{"_id.post": postID.String()}, opts)
	if err != nil {
		return nil, utils.NewAppError(utils.ErrDatabase, "failed to list likes", err)
	}
	return decodeAll(ctx, cursor, documentToLike)
}
