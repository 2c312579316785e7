// internal/database/post_repository.go
package database

import (
	"context"
	"log"
	"time"

	"tavern-net/internal/models"
	"tavern-net/internal/utils"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// PostDocument represents the MongoDB schema for a post.
type PostDocument struct {
	ID        string    `bson:"_id"`
	Date      time.Time `bson:"date"`
	Character string    `bson:"character"` // Author character ID
	Title     string    `bson:"title"`
	Content   string    `bson:"content"`
}

// PostViewDocument is a row of the posts_view view.
type PostViewDocument struct {
	PostDocument `bson:",inline"`
	Likes        int `bson:"n_likes"`
	Comments     int `bson:"n_comments"`
}

func postToDocument(post *models.Post) *PostDocument {
	return &PostDocument{
		ID:        post.ID.String(),
		Date:      post.Date,
		Character: post.Author.String(),
		Title:     post.Title,
		Content:   post.Content,
	}
}

func documentToPost(doc *PostDocument) (*models.Post, error) {
	ids, err := parseUUIDs(doc.ID, doc.Character)
	if err != nil {
		return nil, err
	}
	return &models.Post{
		ID:      ids[0],
		Date:    models.Timestamp(doc.Date),
		Author:  ids[1],
		Title:   doc.Title,
		Content: doc.Content,
	}, nil
}

func documentToPostView(doc *PostViewDocument) (*models.PostView, error) {
	post, err := documentToPost(&doc.PostDocument)
	if err != nil {
		return nil, err
	}
	return &models.PostView{
		Post:         *post,
		LikeCount:    doc.Likes,
		CommentCount: doc.Comments,
	}, nil
}

var postSort = bson.D{{Key: "date", Value: 1}, {Key: "_id", Value: 1}}

func (m *MongoDB) InsertPost(ctx context.Context, post *models.Post) error {
	if _, err := m.Posts.InsertOne(ctx, postToDocument(post)); err != nil {
		return mongoWriteError("Post", post.ID.String(), err)
	}
	return nil
}

func (m *MongoDB) GetPost(ctx context.Context, id uuid.UUID) (*models.Post, error) {
	var doc PostDocument
	if err := m.Posts.FindOne(ctx, bson.M{"_id": id.String()}).Decode(&doc); err != nil {
		return nil, mongoReadError("Post", id.String(), err)
	}
	return documentToPost(&doc)
}

func (m *MongoDB) ListPosts(ctx context.Context) ([]*models.Post, error) {
	cursor, err := m.Posts.Find(ctx, bson.M{}, options.Find().SetSort(postSort))
	if err != nil {
		return nil, utils.NewAppError(utils.ErrDatabase, "failed to list posts", err)
	}
	return decodeAll(ctx, cursor, documentToPost)
}

func (m *MongoDB) ListPostsByCharacter(ctx context.Context, characterID uuid.UUID) ([]*models.Post, error) {
	filter := bson.M{"character": characterID.String()}
	cursor, err := m.Posts.Find(ctx, filter, options.Find().SetSort(postSort))
	if err != nil {
		return nil, utils.NewAppError(utils.ErrDatabase, "failed to list character posts", err)
	}
	return decodeAll(ctx, cursor, documentToPost)
}

// DeletePost removes a post together with its comments and likes.
func (m *MongoDB) DeletePost(ctx context.Context, id uuid.UUID) error {
	return m.inTransaction(ctx, func(ctx context.Context) error {
		result, err := m.Posts.DeleteOne(ctx, bson.M{"_id": id.String()})
		if err != nil {
			return utils.NewAppError(utils.ErrDatabase, "failed to delete post", err)
		}
		if result.DeletedCount == 0 {
			return utils.NewNotFoundError("Post", id.String())
		}
		return m.deletePostChildren(ctx, id.String())
	})
}

// deletePostChildren removes comments and likes whose post matches postFilter,
// which is either a single ID or an operator document such as {$in: [...]}.
func (m *MongoDB) deletePostChildren(ctx context.Context, postFilter interface{}) error {
	comments, err := m.Comments.DeleteMany(ctx, bson.M{"_id.post": postFilter})
	if err != nil {
		return utils.NewAppError(utils.ErrDatabase, "failed to delete comments", err)
	}
	likes, err := m.Likes.DeleteMany(ctx, bson.M{"_id.post": postFilter})
	if err != nil {
		return utils.NewAppError(utils.ErrDatabase, "failed to delete likes", err)
	}
	log.Printf("Cascade removed %d comments and %d likes", comments.DeletedCount, likes.DeletedCount)
	return nil
}

// GetPostView reads one post with its counts from posts_view.
func (m *MongoDB) GetPostView(ctx context.Context, id uuid.UUID) (*models.PostView, error) {
	var doc PostViewDocument
	if err := m.PostsView.FindOne(ctx, bson.M{"_id": id.String()}).Decode(&doc); err != nil {
		return nil, mongoReadError("Post", id.String(), err)
	}
	return documentToPostView(&doc)
}

// ListPostViews reads posts_view, optionally restricted to one author.
func (m *MongoDB) ListPostViews(ctx context.Context, characterID *uuid.UUID) ([]*models.PostView, error) {
	filter := bson.M{}
	if characterID != nil {
		filter["character"] = characterID.String()
	}
	cursor, err := m.PostsView.Find(ctx, filter, options.Find().SetSort(postSort))
	if err != nil {
		return nil, utils.NewAppError(utils.ErrDatabase, "failed to list post views", err)
	}
	return decodeAll(ctx, cursor, documentToPostView)
}
