package engine

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"tavern-net/internal/database"
	"tavern-net/internal/models"
	"tavern-net/internal/utils"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// maxCommentSeq bounds the Seq retries for comments sharing a timestamp.
const maxCommentSeq = 16

// Publisher receives events after a write commits. *eventstream.EventStream
// from the actor system satisfies it.
type Publisher interface {
	Publish(evt interface{})
}

// CharacterInput carries the fields of a new character.
type CharacterInput struct {
	Name      string
	Biography string
	Alignment string
	Race      string
	Languages []string
	Stats     *models.Stats // nil means DefaultStats
}

// CharacterPatch replaces the fields that are set. Stats cannot be patched.
type CharacterPatch struct {
	Name      *string
	Biography *string
	Alignment *string
	Race      *string
	Languages []string // nil keeps the current list
}

// IntegrityLayer validates every write against the model's invariants before
// it reaches the store. Checks and the single store write run under one lock,
// and the stores' own constraints back them up across processes.
type IntegrityLayer struct {
	store   database.EntityStore
	events  Publisher
	metrics *utils.MetricsCollector
	mu      sync.Mutex
	now     func() time.Time
	last    time.Time // last issued write timestamp, guarded by mu
}

func NewIntegrityLayer(store database.EntityStore, events Publisher, metrics *utils.MetricsCollector) *IntegrityLayer {
	if metrics == nil {
		metrics = utils.NewMetricsCollector()
	}
	return &IntegrityLayer{
		store:   store,
		events:  events,
		metrics: metrics,
		now:     time.Now,
	}
}

// track takes err by pointer so a deferred call sees the returned error.
func (l *IntegrityLayer) track(operation string, start time.Time, err *error) {
	l.metrics.Track(operation, start, *err)
}

// timestamp issues the time of a write. Values are strictly increasing so two
// writes in the same tick still order. Callers hold l.mu.
func (l *IntegrityLayer) timestamp() time.Time {
	t := models.Timestamp(l.now())
	if !t.After(l.last) {
		t = l.last.Add(models.TimestampResolution)
	}
	l.last = t
	return t
}

// referenced turns a NOT_FOUND on a referenced entity into DANGLING_REFERENCE.
func referenced(err error, entity, id string) error {
	if utils.IsErrorCode(err, utils.ErrNotFound) {
		return utils.NewDanglingReferenceError(entity, id)
	}
	return err
}

func (l *IntegrityLayer) publish(character *models.Character, at time.Time) {
	if l.events == nil {
		return
	}
	l.events.Publish(&models.CharacterUpserted{
		CharacterID: character.ID,
		Owner:       character.Owner,
		At:          at,
	})
}

// Accounts

func (l *IntegrityLayer) CreateAccount(ctx context.Context, username, password string) (account *models.Account, err error) {
	defer l.track("create_account", time.Now(), &err)

	username = strings.TrimSpace(username)
	if username == "" {
		return nil, utils.NewInvalidInputError("username is required")
	}
	if password == "" {
		return nil, utils.NewInvalidInputError("password is required")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, utils.NewAppError(utils.ErrInvalidInput, "failed to hash password", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	account = &models.Account{
		Username:     username,
		PasswordHash: string(hash),
		CreatedAt:    l.timestamp(),
	}
	if err = l.store.InsertAccount(ctx, account); err != nil {
		return nil, err
	}
	log.Printf("Created account %s", username)
	return account, nil
}

// CheckPassword reports whether password matches the account's credential.
func (l *IntegrityLayer) CheckPassword(ctx context.Context, username, password string) (bool, error) {
	account, err := l.store.GetAccount(ctx, username)
	if err != nil {
		return false, err
	}
	return bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(password)) == nil, nil
}

// SetActiveCharacter points the account at one of its own characters.
func (l *IntegrityLayer) SetActiveCharacter(ctx context.Context, username string, characterID uuid.UUID) (err error) {
	defer l.track("set_active_character", time.Now(), &err)

	l.mu.Lock()
	defer l.mu.Unlock()

	if _, err = l.store.GetAccount(ctx, username); err != nil {
		return err
	}
	character, err := l.store.GetCharacter(ctx, characterID)
	if err != nil {
		return referenced(err, "Character", characterID.String())
	}
	if character.Owner != username {
		return utils.NewOwnershipError(characterID.String(), character.Owner, username)
	}

	_, err = l.store.SetActiveCharacter(ctx, username, characterID, l.timestamp())
	return err
}

// Characters

func (l *IntegrityLayer) CreateCharacter(ctx context.Context, owner string, input CharacterInput) (character *models.Character, err error) {
	defer l.track("create_character", time.Now(), &err)

	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, utils.NewInvalidInputError("character name is required")
	}
	alignment, err := models.ParseAlignment(input.Alignment)
	if err != nil {
		return nil, utils.NewInvalidInputError(err.Error())
	}
	stats := models.DefaultStats()
	if input.Stats != nil {
		stats = *input.Stats
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if _, err = l.store.GetAccount(ctx, owner); err != nil {
		return nil, referenced(err, "Account", owner)
	}
	if err = l.checkNameFree(ctx, owner, name); err != nil {
		return nil, err
	}

	now := l.timestamp()
	character = &models.Character{
		ID:        uuid.New(),
		Name:      name,
		Owner:     owner,
		CreatedAt: now,
		UpdatedAt: now,
		Biography: input.Biography,
		Alignment: alignment,
		Race:      strings.TrimSpace(input.Race),
		Languages: models.NormalizeLanguages(input.Languages),
		Stats:     stats,
	}
	if err = l.store.InsertCharacter(ctx, character); err != nil {
		return nil, nameConflict(err, owner, name)
	}

	log.Printf("Created character %s (%s) for %s", name, character.ID, owner)
	l.publish(character, now)
	return character, nil
}

func (l *IntegrityLayer) checkNameFree(ctx context.Context, owner, name string) error {
	_, err := l.store.GetCharacterByName(ctx, owner, name)
	switch {
	case err == nil:
		return utils.NewAppError(utils.ErrConstraintViolation,
			fmt.Sprintf("account %s already has a character named %s", owner, name), nil)
	case utils.IsErrorCode(err, utils.ErrNotFound):
		return nil
	default:
		return err
	}
}

// nameConflict reports a unique index hit on (owner, name) as the invariant
// it protects.
func nameConflict(err error, owner, name string) error {
	if utils.IsErrorCode(err, utils.ErrDuplicateIdentity) {
		return utils.NewAppError(utils.ErrConstraintViolation,
			fmt.Sprintf("account %s already has a character named %s", owner, name), err)
	}
	return err
}

func (l *IntegrityLayer) UpdateCharacter(ctx context.Context, owner, name string, patch CharacterPatch) (character *models.Character, err error) {
	defer l.track("update_character", time.Now(), &err)

	l.mu.Lock()
	defer l.mu.Unlock()

	character, err = l.store.GetCharacterByName(ctx, owner, name)
	if err != nil {
		return nil, err
	}

	if patch.Name != nil {
		newName := strings.TrimSpace(*patch.Name)
		if newName == "" {
			return nil, utils.NewInvalidInputError("character name is required")
		}
		if newName != character.Name {
			if err = l.checkNameFree(ctx, owner, newName); err != nil {
				return nil, err
			}
			character.Name = newName
		}
	}
	if patch.Biography != nil {
		character.Biography = *patch.Biography
	}
	if patch.Alignment != nil {
		alignment, err := models.ParseAlignment(*patch.Alignment)
		if err != nil {
			return nil, utils.NewInvalidInputError(err.Error())
		}
		character.Alignment = alignment
	}
	if patch.Race != nil {
		character.Race = strings.TrimSpace(*patch.Race)
	}
	if patch.Languages != nil {
		character.Languages = models.NormalizeLanguages(patch.Languages)
	}

	now := l.timestamp()
	character.UpdatedAt = now
	if err = l.store.UpdateCharacter(ctx, character); err != nil {
		return nil, nameConflict(err, owner, character.Name)
	}

	l.publish(character, now)
	return character, nil
}

// DeleteCharacter removes the character with its posts and everything it
// authored, and unsets it as the owner's active character.
func (l *IntegrityLayer) DeleteCharacter(ctx context.Context, owner, name string) (err error) {
	defer l.track("delete_character", time.Now(), &err)

	l.mu.Lock()
	defer l.mu.Unlock()

	character, err := l.store.GetCharacterByName(ctx, owner, name)
	if err != nil {
		return err
	}
	if err = l.store.DeleteCharacter(ctx, character.ID); err != nil {
		return err
	}
	if err = l.store.ClearActiveCharacter(ctx, owner, character.ID); err != nil {
		return err
	}
	log.Printf("Deleted character %s (%s) of %s", name, character.ID, owner)
	return nil
}

// Posts

func (l *IntegrityLayer) CreatePost(ctx context.Context, authorID uuid.UUID, title, content string) (post *models.Post, err error) {
	defer l.track("create_post", time.Now(), &err)

	if strings.TrimSpace(title) == "" {
		return nil, utils.NewInvalidInputError("post title is required")
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if _, err = l.store.GetCharacter(ctx, authorID); err != nil {
		return nil, referenced(err, "Character", authorID.String())
	}

	post = &models.Post{
		ID:      uuid.New(),
		Date:    l.timestamp(),
		Author:  authorID,
		Title:   title,
		Content: content,
	}
	if err = l.store.InsertPost(ctx, post); err != nil {
		return nil, err
	}
	return post, nil
}

func (l *IntegrityLayer) DeletePost(ctx context.Context, postID uuid.UUID) (err error) {
	defer l.track("delete_post", time.Now(), &err)

	l.mu.Lock()
	defer l.mu.Unlock()

	return l.store.DeletePost(ctx, postID)
}

// Comments

// AddComment stores a comment keyed by (post, author, date, seq). When the
// key is already taken, e.g. by another process writing in the same tick,
// Seq is raised until the insert succeeds.
func (l *IntegrityLayer) AddComment(ctx context.Context, postID, authorID uuid.UUID, content string) (comment *models.Comment, err error) {
	defer l.track("add_comment", time.Now(), &err)

	if strings.TrimSpace(content) == "" {
		return nil, utils.NewInvalidInputError("comment content is required")
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if err = l.checkEngagementRefs(ctx, postID, authorID); err != nil {
		return nil, err
	}

	key := models.CommentKey{Post: postID, Author: authorID, Date: l.timestamp()}
	for key.Seq = 0; key.Seq < maxCommentSeq; key.Seq++ {
		comment = &models.Comment{Key: key, Content: content}
		err = l.store.InsertComment(ctx, comment)
		if err == nil {
			return comment, nil
		}
		if !utils.IsErrorCode(err, utils.ErrDuplicateIdentity) {
			return nil, err
		}
	}
	return nil, err
}

// Likes

// AddLike records that a character likes a post. A second like by the same
// character fails with DUPLICATE_IDENTITY and stores nothing.
func (l *IntegrityLayer) AddLike(ctx context.Context, postID, authorID uuid.UUID) (like *models.Like, err error) {
	defer l.track("add_like", time.Now(), &err)

	l.mu.Lock()
	defer l.mu.Unlock()

	if err = l.checkEngagementRefs(ctx, postID, authorID); err != nil {
		return nil, err
	}

	like = &models.Like{
		Key:       models.LikeKey{Post: postID, Author: authorID},
		CreatedAt: l.timestamp(),
	}
	if err = l.store.InsertLike(ctx, like); err != nil {
		return nil, err
	}
	return like, nil
}

func (l *IntegrityLayer) RemoveLike(ctx context.Context, postID, authorID uuid.UUID) (err error) {
	defer l.track("remove_like", time.Now(), &err)

	l.mu.Lock()
	defer l.mu.Unlock()

	return l.store.DeleteLike(ctx, models.LikeKey{Post: postID, Author: authorID})
}

func (l *IntegrityLayer) checkEngagementRefs(ctx context.Context, postID, authorID uuid.UUID) error {
	if _, err := l.store.GetPost(ctx, postID); err != nil {
		return referenced(err, "Post", postID.String())
	}
	if _, err := l.store.GetCharacter(ctx, authorID); err != nil {
		return referenced(err, "Character", authorID.String())
	}
	return nil
}
