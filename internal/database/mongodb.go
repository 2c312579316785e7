// internal/database/mongodb.go
package database

import (
	"context"
	"fmt"
	"log"
	"time"

	"tavern-net/internal/utils"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const postsViewName = "posts_view"

type MongoDB struct {
	Client     *mongo.Client
	DB         *mongo.Database
	Users      *mongo.Collection
	Characters *mongo.Collection
	Posts      *mongo.Collection
	Comments   *mongo.Collection
	Likes      *mongo.Collection
	PostsView  *mongo.Collection

	// transactions is set when the deployment is a replica set or sharded
	// cluster; standalone servers reject multi-document transactions.
	transactions bool
}

func NewMongoDB(uri, name string) (*MongoDB, error) {
	serverAPI := options.ServerAPI(options.ServerAPIVersion1)
	opts := options.Client().ApplyURI(uri).SetServerAPIOptions(serverAPI)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %v", err)
	}

	// Ping the database to verify connection
	if err := client.Database("admin").RunCommand(ctx, bson.D{{Key: "ping", Value: 1}}).Err(); err != nil {
		return nil, fmt.Errorf("failed to ping MongoDB: %v", err)
	}

	log.Println("Successfully connected to MongoDB!")

	var hello struct {
		SetName string `bson:"setName"`
		Msg     string `bson:"msg"`
	}
	if err := client.Database("admin").RunCommand(ctx, bson.D{{Key: "hello", Value: 1}}).Decode(&hello); err != nil {
		return nil, fmt.Errorf("failed to query MongoDB topology: %v", err)
	}
	transactions := hello.SetName != "" || hello.Msg == "isdbgrid"
	if !transactions {
		log.Println("MongoDB is standalone, cascading deletes run without a transaction")
	}

	// Initialize database and collections
	db := client.Database(name)
	return &MongoDB{
		Client:     client,
		DB:         db,
		Users:      db.Collection("users"),
		Characters: db.Collection("characters"),
		Posts:      db.Collection("posts"),
		Comments:   db.Collection("comments"),
		Likes:      db.Collection("likes"),
		PostsView:  db.Collection(postsViewName),

		transactions: transactions,
	}, nil
}

// inTransaction runs fn in a multi-document transaction when the deployment
// supports one, and directly otherwise.
func (m *MongoDB) inTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if !m.transactions {
		return fn(ctx)
	}
	session, err := m.Client.StartSession()
	if err != nil {
		return utils.NewAppError(utils.ErrDatabase, "failed to start session", err)
	}
	defer session.EndSession(ctx)

	_, err = session.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		return nil, fn(sc)
	})
	return err
}

func (m *MongoDB) Close(ctx context.Context) error {
	return m.Client.Disconnect(ctx)
}

func (m *MongoDB) Ping(ctx context.Context) error {
	return m.Client.Database("admin").RunCommand(ctx, bson.D{{Key: "ping", Value: 1}}).Err()
}

// Bootstrap creates the indexes and the posts_view view. Safe to run on
// every start.
func (m *MongoDB) Bootstrap(ctx context.Context) error {
	// Fast lookup of characters by owner and name, and no repeated names per owner
	_, err := m.Characters.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "user", Value: 1}, {Key: "name", Value: 1}},
		Options: options.Index().SetUnique(true).SetName("user_name_unique"),
	})
	if err != nil {
		return fmt.Errorf("failed to create characters index: %v", err)
	}

	_, err = m.Posts.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "character", Value: 1}, {Key: "date", Value: 1}},
	})
	if err != nil {
		return fmt.Errorf("failed to create posts index: %v", err)
	}

	_, err = m.Comments.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "_id.post", Value: 1}, {Key: "_id.date", Value: 1}}},
		{Keys: bson.D{{Key: "_id.author", Value: 1}}},
	})
	if err != nil {
		return fmt.Errorf("failed to create comments indexes: %v", err)
	}

	_, err = m.Likes.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "_id.post", Value: 1}, {Key: "date", Value: 1}}},
		{Keys: bson.D{{Key: "_id.author", Value: 1}}},
	})
	if err != nil {
		return fmt.Errorf("failed to create likes indexes: %v", err)
	}

	return m.ensurePostsView(ctx)
}

// postsViewPipeline joins likes and comments onto each post, keeps only the
// cardinalities and drops the joined arrays.
func postsViewPipeline() mongo.Pipeline {
	return mongo.Pipeline{
		{{Key: "$lookup", Value: bson.D{
			{Key: "from", Value: "likes"},
			{Key: "localField", Value: "_id"},
			{Key: "foreignField", Value: "_id.post"},
			{Key: "as", Value: "likes_docs"},
		}}},
		{{Key: "$lookup", Value: bson.D{
			{Key: "from", Value: "comments"},
			{Key: "localField", Value: "_id"},
			{Key: "foreignField", Value: "_id.post"},
			{Key: "as", Value: "comments_docs"},
		}}},
		{{Key: "$addFields", Value: bson.D{
			{Key: "n_likes", Value: bson.D{{Key: "$size", Value: "$likes_docs"}}},
			{Key: "n_comments", Value: bson.D{{Key: "$size", Value: "$comments_docs"}}},
		}}},
		{{Key: "$project", Value: bson.D{
			{Key: "likes_docs", Value: 0},
			{Key: "comments_docs", Value: 0},
		}}},
	}
}

func (m *MongoDB) ensurePostsView(ctx context.Context) error {
	names, err := m.DB.ListCollectionNames(ctx, bson.M{"name": postsViewName})
	if err != nil {
		return fmt.Errorf("failed to list collections: %v", err)
	}
	if len(names) > 0 {
		return nil
	}

	// Not materialized: every read of the view runs the pipeline
	if err := m.DB.CreateView(ctx, postsViewName, "posts", postsViewPipeline()); err != nil {
		return fmt.Errorf("failed to create %s view: %v", postsViewName, err)
	}
	log.Printf("Created %q view", postsViewName)
	return nil
}

// Helpers shared by the repositories

func mongoWriteError(entity, id string, err error) error {
	if mongo.IsDuplicateKeyError(err) {
		return utils.NewDuplicateError(entity, id, err)
	}
	return utils.NewAppError(utils.ErrDatabase, fmt.Sprintf("failed to write %s", entity), err)
}

func mongoReadError(entity, id string, err error) error {
	if err == mongo.ErrNoDocuments {
		return utils.NewNotFoundError(entity, id)
	}
	return utils.NewAppError(utils.ErrDatabase, fmt.Sprintf("failed to read %s", entity), err)
}

func parseUUIDs(ids ...string) ([]uuid.UUID, error) {
	out := make([]uuid.UUID, len(ids))
	for i, s := range ids {
		id, err := uuid.Parse(s)
		if err != nil {
			return nil, fmt.Errorf("invalid id %q in database: %v", s, err)
		}
		out[i] = id
	}
	return out, nil
}

// decodeAll drains a cursor, converting each document with convert.
func decodeAll[D any, T any](ctx context.Context, cursor *mongo.Cursor, convert func(*D) (*T, error)) ([]*T, error) {
	defer cursor.Close(ctx)

	out := make([]*T, 0)
	for cursor.Next(ctx) {
		var doc D
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("failed to decode document: %v", err)
		}
		item, err := convert(&doc)
		if err != nil {
			return nil, err
		}
		out = append(out, item)
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("cursor iteration failed: %v", err)
	}
	return out, nil
}

var (
	_ EntityStore       = (*MongoDB)(nil)
	_ EngagementQuerier = (*MongoDB)(nil)
)
