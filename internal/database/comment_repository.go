// internal/database/comment_repository.go
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

// CommentKeyDocument is the composite _id of a comment. Field order is part
// of the key in MongoDB, so it must not change.
type CommentKeyDocument struct {
	Post   string    `bson:"post"`
	Author string    `bson:"author"`
	Date   time.Time `bson:"date"`
	Seq    int       `bson:"seq"`
}

// CommentDocument represents comment data in MongoDB
type CommentDocument struct {
	ID      CommentKeyDocument `bson:"_id"`
	Content string             `bson:"content"`
}

func commentKeyToDocument(key models.CommentKey) CommentKeyDocument {
	key = key.Normalized()
	return CommentKeyDocument{
		Post:   key.Post.String(),
		Author: key.Author.String(),
		Date:   key.Date,
		Seq:    key.Seq,
	}
}

func documentToComment(doc *CommentDocument) (*models.Comment, error) {
	ids, err := parseUUIDs(doc.ID.Post, doc.ID.Author)
	if err != nil {
		return nil, err
	}
	return &models.Comment{
		Key: models.CommentKey{
			Post:   ids[0],
			Author: ids[1],
			Date:   models.Timestamp(doc.ID.Date),
			Seq:    doc.ID.Seq,
		},
		Content: doc.Content,
	}, nil
}

func (m *MongoDB) InsertComment(ctx context.Context, comment *models.Comment) error {
	doc := CommentDocument{
		ID:      commentKeyToDocument(comment.Key),
		Content: comment.Content,
	}
	if _, err := m.Comments.InsertOne(ctx, doc); err != nil {
		return mongoWriteError("Comment", comment.Key.String(), err)
	}
	return nil
}

func (m *MongoDB) GetComment(ctx context.Context, key models.CommentKey) (*models.Comment, error) {
	var doc CommentDocument
	err := m.Comments.FindOne(ctx, bson.M{"_id": commentKeyToDocument(key)}).Decode(&doc)
	if err != nil {
		return nil, mongoReadError("Comment", key.String(), err)
	}
	return documentToComment(&doc)
}

func (m *MongoDB) ListCommentsByPost(ctx context.Context, postID uuid.UUID) ([]*models.Comment, error) {
	opts := options.Find().SetSort(bson.D{
		{Key: "_id.date", Value: 1},
		{Key: "_id.author", Value: 1},
		{Key: "_id.seq", Value: 1},
	})
	cursor, err := m.Comments.Find(ctx, bson.M{"_id.post": postID.String()}, opts)
	if err != nil {
		return nil, utils.NewAppError(utils.ErrDatabase, "failed to list comments", err)
	}
	return decodeAll(ctx, cursor, documentToComment)
}
