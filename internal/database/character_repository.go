// internal/database/character_repository.go
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

// CharacterDocument represents the MongoDB schema for a character
type CharacterDocument struct {
	ID        string       `bson:"_id"`
	Name      string       `bson:"name"`
	User      string       `bson:"user"`
	Creation  time.Time    `bson:"creation"`
	Updated   time.Time    `bson:"updated"`
	Biography string       `bson:"biography"`
	Alignment string       `bson:"alignment"`
	Race      string       `bson:"race"`
	Languages []string     `bson:"languages"`
	Stats     models.Stats `bson:"stats"`
}

func characterToDocument(c *models.Character) *CharacterDocument {
	return &CharacterDocument{
		ID:        c.ID.String(),
		Name:      c.Name,
		User:      c.Owner,
		Creation:  c.CreatedAt,
		Updated:   c.UpdatedAt,
		Biography: c.Biography,
		Alignment: string(c.Alignment),
		Race:      c.Race,
		Languages: c.Languages,
		Stats:     c.Stats,
	}
}

func documentToCharacter(doc *CharacterDocument) (*models.Character, error) {
	ids, err := parseUUIDs(doc.ID)
	if err != nil {
		return nil, err
	}
	languages := doc.Languages
	if languages == nil {
		languages = []string{}
	}
	return &models.Character{
		ID:        ids[0],
		Name:      doc.Name,
		Owner:     doc.User,
		CreatedAt: models.Timestamp(doc.Creation),
		UpdatedAt: models.Timestamp(doc.Updated),
		Biography: doc.Biography,
		Alignment: models.Alignment(doc.Alignment),
		Race:      doc.Race,
		Languages: languages,
		Stats:     doc.Stats,
	}, nil
}

// InsertCharacter relies on the user_name_unique index for (owner, name).
func (m *MongoDB) InsertCharacter(ctx context.Context, character *models.Character) error {
	if _, err := m.Characters.InsertOne(ctx, characterToDocument(character)); err != nil {
		return mongoWriteError("Character", character.Owner+"/"+character.Name, err)
	}
	return nil
}

// UpdateCharacter replaces the mutable fields. Owner and creation never change.
func (m *MongoDB) UpdateCharacter(ctx context.Context, character *models.Character) error {
	doc := characterToDocument(character)
	update := bson.M{"$set": bson.M{
		"name":      doc.Name,
		"updated":   doc.Updated,
		"biography": doc.Biography,
		"alignment": doc.Alignment,
		"race":      doc.Race,
		"languages": doc.Languages,
		"stats":     doc.Stats,
	}}

	result, err := m.Characters.UpdateOne(ctx, bson.M{"_id": doc.ID}, update)
	if err != nil {
		return mongoWriteError("Character", character.Owner+"/"+character.Name, err)
	}
	if result.MatchedCount == 0 {
		return utils.NewNotFoundError("Character", doc.ID)
	}
	return nil
}

func (m *MongoDB) GetCharacter(ctx context.Context, id uuid.UUID) (*models.Character, error) {
	var doc CharacterDocument
	if err := m.Characters.FindOne(ctx, bson.M{"_id": id.String()}).Decode(&doc); err != nil {
		return nil, mongoReadError("Character", id.String(), err)
	}
	return documentToCharacter(&doc)
}

func (m *MongoDB) GetCharacterByName(ctx context.Context, owner, name string) (*models.Character, error) {
	var doc CharacterDocument
	if err := m.Characters.FindOne(ctx, bson.M{"user": owner, "name": name}).Decode(&doc); err != nil {
		return nil, mongoReadError("Character", owner+"/"+name, err)
	}
	return documentToCharacter(&doc)
}

func (m *MongoDB) ListCharactersByAccount(ctx context.Context, owner string) ([]*models.Character, error) {
	opts := options.Find().SetSort(bson.D{{Key: "creation", Value: 1}, {Key: "_id", Value: 1}})
	cursor, err := m.Characters.Find(ctx, bson.M{"user": owner}, opts)
	if err != nil {
		return nil, utils.NewAppError(utils.ErrDatabase, "failed to list characters", err)
	}
	return decodeAll(ctx, cursor, documentToCharacter)
}

// DeleteCharacter removes the character, its posts (with their comments and
// likes) and every comment or like it authored elsewhere.
func (m *MongoDB) DeleteCharacter(ctx context.Context, id uuid.UUID) error {
	return m.inTransaction(ctx, func(ctx context.Context) error {
		if _, err := m.GetCharacter(ctx, id); err != nil {
			return err
		}

		posts, err := m.ListPostsByCharacter(ctx, id)
		if err != nil {
			return err
		}
		postIDs := make(bson.A, len(posts))
		for i, p := range posts {
			postIDs[i] = p.ID.String()
		}

		if len(postIDs) > 0 {
			if err := m.deletePostChildren(ctx, bson.M{"$in": postIDs}); err != nil {
				return err
			}
			if _, err := m.Posts.DeleteMany(ctx, bson.M{"_id": bson.M{"$in": postIDs}}); err != nil {
				return utils.NewAppError(utils.ErrDatabase, "failed to delete character posts", err)
			}
		}

		if _, err := m.Comments.DeleteMany(ctx, bson.M{"_id.author": id.String()}); err != nil {
			return utils.NewAppError(utils.ErrDatabase, "failed to delete character comments", err)
		}
		if _, err := m.Likes.DeleteMany(ctx, bson.M{"_id.author": id.String()}); err != nil {
			return utils.NewAppError(utils.ErrDatabase, "failed to delete character likes", err)
		}

		result, err := m.Characters.DeleteOne(ctx, bson.M{"_id": id.String()})
		if err != nil {
			return utils.NewAppError(utils.ErrDatabase, "failed to delete character", err)
		}
		if result.DeletedCount == 0 {
			return utils.NewNotFoundError("Character", id.String())
		}
		return nil
	})
}
