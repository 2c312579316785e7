// internal/database/account_repository.go
package database

import (
	"context"
	"fmt"
	"log"
	"time"

	"tavern-net/internal/models"
	"tavern-net/internal/utils"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// AccountDocument represents the MongoDB schema for an account
type AccountDocument struct {
	ID       string     `bson:"_id"`      // Username
	Password string     `bson:"password"` // bcrypt hash
	Active   *string    `bson:"active"`   // Active character ID, null when unset
	ActiveAt *time.Time `bson:"activeAt,omitempty"`
	Creation time.Time  `bson:"creation"`
}

func accountToDocument(account *models.Account) *AccountDocument {
	doc := &AccountDocument{
		ID:       account.Username,
		Password: account.PasswordHash,
		Creation: account.CreatedAt,
	}
	if account.Active != nil {
		active := account.Active.String()
		doc.Active = &active
		activeAt := account.ActiveAt
		doc.ActiveAt = &activeAt
	}
	return doc
}

func documentToAccount(doc *AccountDocument) (*models.Account, error) {
	account := &models.Account{
		Username:     doc.ID,
		PasswordHash: doc.Password,
		CreatedAt:    models.Timestamp(doc.Creation),
	}
	if doc.Active != nil {
		id, err := uuid.Parse(*doc.Active)
		if err != nil {
			return nil, fmt.Errorf("invalid active character ID: %v", err)
		}
		account.Active = &id
	}
	if doc.ActiveAt != nil {
		account.ActiveAt = models.Timestamp(*doc.ActiveAt)
	}
	return account, nil
}

// InsertAccount creates a new account; the username is the primary key.
func (m *MongoDB) InsertAccount(ctx context.Context, account *models.Account) error {
	if _, err := m.Users.InsertOne(ctx, accountToDocument(account)); err != nil {
		return mongoWriteError("Account", account.Username, err)
	}
	return nil
}

// GetAccount retrieves an account by username.
func (m *MongoDB) GetAccount(ctx context.Context, username string) (*models.Account, error) {
	var doc AccountDocument

	err := m.Users.FindOne(ctx, bson.M{"_id": username}).Decode(&doc)
	if err != nil {
		return nil, mongoReadError("Account", username, err)
	}
	return documentToAccount(&doc)
}

// SetActiveCharacter only matches when the stored activeAt is older than at
// (or missing), so replays and stale events leave the document untouched.
// SetActiveCharacter checks the character before the conditional update and
// again after it. A character deleted in between has its write rolled back;
// the rollback only matches this exact write, so a newer one is never undone.
func (m *MongoDB) SetActiveCharacter(ctx context.Context, username string, characterID uuid.UUID, at time.Time) (bool, error) {
	count, err := m.Users.CountDocuments(ctx, bson.M{"_id": username})
	if err != nil {
		return false, utils.NewAppError(utils.ErrDatabase, "failed to check account", err)
	}
	if count == 0 {
		return false, utils.NewNotFoundError("Account", username)
	}
	if err := m.checkCharacterOwner(ctx, username, characterID); err != nil {
		return false, err
	}

	at = models.Timestamp(at)
	filter := bson.M{
		"_id": username,
		"$or": bson.A{
			bson.M{"activeAt": bson.M{"$lt": at}},
			bson.M{"activeAt": nil},
		},
	}
	update := bson.M{"$set": bson.M{
		"active":   characterID.String(),
		"activeAt": at,
	}}

	result, err := m.Users.UpdateOne(ctx, filter, update)
	if err != nil {
		return false, utils.NewAppError(utils.ErrDatabase, "failed to update active character", err)
	}
	if result.MatchedCount > 0 {
		if err := m.checkCharacterOwner(ctx, username, characterID); err != nil {
			m.rollbackActiveCharacter(ctx, username, characterID, at)
			return false, err
		}
		return true, nil
	}
	// A newer write already holds the account
	return false, nil
}

func (m *MongoDB) checkCharacterOwner(ctx context.Context, username string, characterID uuid.UUID) error {
	var doc struct {
		User string `bson:"user"`
	}
	opts := options.FindOne().SetProjection(bson.M{"user": 1})
	err := m.Characters.FindOne(ctx, bson.M{"_id": characterID.String()}, opts).Decode(&doc)
	if err != nil {
		return mongoReadError("Character", characterID.String(), err)
	}
	if doc.User != username {
		return utils.NewOwnershipError(characterID.String(), doc.User, username)
	}
	return nil
}

func (m *MongoDB) rollbackActiveCharacter(ctx context.Context, username string, characterID uuid.UUID, at time.Time) {
	filter := bson.M{"_id": username, "active": characterID.String(), "activeAt": at}
	update := bson.M{"$set": bson.M{"active": nil}}
	if _, err := m.Users.UpdateOne(ctx, filter, update); err != nil {
		log.Printf("Failed to roll back active character %s for %s: %v", characterID, username, err)
	}
}

func (m *MongoDB) ClearActiveCharacter(ctx context.Context, username string, characterID uuid.UUID) error {
	filter := bson.M{"_id": username, "active": characterID.String()}
	update := bson.M{"$set": bson.M{"active": nil}}

	if _, err := m.Users.UpdateOne(ctx, filter, update); err != nil {
		return utils.NewAppError(utils.ErrDatabase, "failed to clear active character", err)
	}
	return nil
}
