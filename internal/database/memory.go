package database

import (
	"context"
	"sync"
	"time"

	"tavern-net/internal/models"
	"tavern-net/internal/utils"

	"github.com/google/uuid"
)

type ownerName struct {
	owner string
	name  string
}

// MemoryStore keeps every collection in process memory. Each collection keeps
// an index map and an insertion-ordered slice; values are copied on the way in
// and out so callers never share state with the store.
type MemoryStore struct {
	mu sync.RWMutex

	accounts map[string]*models.Account

	characters       map[uuid.UUID]*models.Character
	characterByName  map[ownerName]uuid.UUID
	charactersByUser map[string][]uuid.UUID

	posts       map[uuid.UUID]*models.Post
	postOrder   []uuid.UUID
	postsByChar map[uuid.UUID][]uuid.UUID

	comments       map[models.CommentKey]*models.Comment
	commentsByPost map[uuid.UUID][]models.CommentKey

	likes       map[models.LikeKey]*models.Like
	likesByPost map[uuid.UUID][]models.LikeKey
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		accounts:         make(map[string]*models.Account),
		characters:       make(map[uuid.UUID]*models.Character),
		characterByName:  make(map[ownerName]uuid.UUID),
		charactersByUser: make(map[string][]uuid.UUID),
		posts:            make(map[uuid.UUID]*models.Post),
		postsByChar:      make(map[uuid.UUID][]uuid.UUID),
		comments:         make(map[models.CommentKey]*models.Comment),
		commentsByPost:   make(map[uuid.UUID][]models.CommentKey),
		likes:            make(map[models.LikeKey]*models.Like),
		likesByPost:      make(map[uuid.UUID][]models.LikeKey),
	}
}

func (s *MemoryStore) Bootstrap(ctx context.Context) error { return nil }
func (s *MemoryStore) Ping(ctx context.Context) error      { return ctx.Err() }
func (s *MemoryStore) Close(ctx context.Context) error     { return nil }

func copyAccount(a *models.Account) *models.Account {
	c := *a
	if a.Active != nil {
		id := *a.Active
		c.Active = &id
	}
	return &c
}

func copyCharacter(ch *models.Character) *models.Character {
	c := *ch
	c.Languages = append([]string(nil), ch.Languages...)
	return &c
}

func removeID(ids []uuid.UUID, id uuid.UUID) []uuid.UUID {
	out := ids[:0]
	for _, v := range ids {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}

// Accounts

func (s *MemoryStore) InsertAccount(ctx context.Context, account *models.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.accounts[account.Username]; exists {
		return utils.NewDuplicateError("Account", account.Username, nil)
	}
	s.accounts[account.Username] = copyAccount(account)
	return nil
}

func (s *MemoryStore) GetAccount(ctx context.Context, username string) (*models.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	account, exists := s.accounts[username]
	if !exists {
		return nil, utils.NewNotFoundError("Account", username)
	}
	return copyAccount(account), nil
}

func (s *MemoryStore) SetActiveCharacter(ctx context.Context, username string, characterID uuid.UUID, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	account, exists := s.accounts[username]
	if !exists {
		return false, utils.NewNotFoundError("Account", username)
	}
	character, exists := s.characters[characterID]
	if !exists {
		return false, utils.NewNotFoundError("Character", characterID.String())
	}
	if character.Owner != username {
		return false, utils.NewOwnershipError(characterID.String(), character.Owner, username)
	}
	at = models.Timestamp(at)
	if !at.After(account.ActiveAt) {
		return false, nil
	}
	id := characterID
	account.Active = &id
	account.ActiveAt = at
	return true, nil
}

func (s *MemoryStore) ClearActiveCharacter(ctx context.Context, username string, characterID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	account, exists := s.accounts[username]
	if !exists {
		return utils.NewNotFoundError("Account", username)
	}
	if account.HasActive(characterID) {
		account.Active = nil
	}
	return nil
}

// Characters

func (s *MemoryStore) InsertCharacter(ctx context.Context, character *models.Character) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.characters[character.ID]; exists {
		return utils.NewDuplicateError("Character", character.ID.String(), nil)
	}
	key := ownerName{character.Owner, character.Name}
	if _, exists := s.characterByName[key]; exists {
		return utils.NewDuplicateError("Character", character.Owner+"/"+character.Name, nil)
	}

	s.characters[character.ID] = copyCharacter(character)
	s.characterByName[key] = character.ID
	s.charactersByUser[character.Owner] = append(s.charactersByUser[character.Owner], character.ID)
	return nil
}

func (s *MemoryStore) UpdateCharacter(ctx context.Context, character *models.Character) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, exists := s.characters[character.ID]
	if !exists {
		return utils.NewNotFoundError("Character", character.ID.String())
	}
	oldKey := ownerName{current.Owner, current.Name}
	newKey := ownerName{current.Owner, character.Name}
	if oldKey != newKey {
		if _, taken := s.characterByName[newKey]; taken {
			return utils.NewDuplicateError("Character", newKey.owner+"/"+newKey.name, nil)
		}
		delete(s.characterByName, oldKey)
		s.characterByName[newKey] = character.ID
	}

	updated := copyCharacter(character)
	updated.Owner = current.Owner
	updated.CreatedAt = current.CreatedAt
	s.characters[character.ID] = updated
	return nil
}

func (s *MemoryStore) GetCharacter(ctx context.Context, id uuid.UUID) (*models.Character, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	character, exists := s.characters[id]
	if !exists {
		return nil, utils.NewNotFoundError("Character", id.String())
	}
	return copyCharacter(character), nil
}

func (s *MemoryStore) GetCharacterByName(ctx context.Context, owner, name string) (*models.Character, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, exists := s.characterByName[ownerName{owner, name}]
	if !exists {
		return nil, utils.NewNotFoundError("Character", owner+"/"+name)
	}
	return copyCharacter(s.characters[id]), nil
}

func (s *MemoryStore) ListCharactersByAccount(ctx context.Context, owner string) ([]*models.Character, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := s.charactersByUser[owner]
	characters := make([]*models.Character, 0, len(ids))
	for _, id := range ids {
		characters = append(characters, copyCharacter(s.characters[id]))
	}
	return characters, nil
}

func (s *MemoryStore) DeleteCharacter(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	character, exists := s.characters[id]
	if !exists {
		return utils.NewNotFoundError("Character", id.String())
	}

	for _, postID := range append([]uuid.UUID(nil), s.postsByChar[id]...) {
		s.deletePostLocked(postID)
	}
	delete(s.postsByChar, id)
	s.deleteAuthoredLocked(id)

	delete(s.characters, id)
	delete(s.characterByName, ownerName{character.Owner, character.Name})
	s.charactersByUser[character.Owner] = removeID(s.charactersByUser[character.Owner], id)
	return nil
}

// deleteAuthoredLocked drops the comments and likes a character left on
// other characters' posts.
func (s *MemoryStore) deleteAuthoredLocked(author uuid.UUID) {
	for key := range s.comments {
		if key.Author != author {
			continue
		}
		delete(s.comments, key)
		keys := s.commentsByPost[key.Post]
		out := keys[:0]
		for _, k := range keys {
			if k != key {
				out = append(out, k)
			}
		}
		s.commentsByPost[key.Post] = out
	}

	for key := range s.likes {
		if key.Author == author {
			s.removeLikeLocked(key)
		}
	}
}

// Posts

func (s *MemoryStore) InsertPost(ctx context.Context, post *models.Post) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.posts[post.ID]; exists {
		return utils.NewDuplicateError("Post", post.ID.String(), nil)
	}
	p := *post
	s.posts[post.ID] = &p
	s.postOrder = append(s.postOrder, post.ID)
	s.postsByChar[post.Author] = append(s.postsByChar[post.Author], post.ID)
	return nil
}

func (s *MemoryStore) GetPost(ctx context.Context, id uuid.UUID) (*models.Post, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	post, exists := s.posts[id]
	if !exists {
		return nil, utils.NewNotFoundError("Post", id.String())
	}
	p := *post
	return &p, nil
}

func (s *MemoryStore) ListPosts(ctx context.Context) ([]*models.Post, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.postsLocked(s.postOrder), nil
}

func (s *MemoryStore) ListPostsByCharacter(ctx context.Context, characterID uuid.UUID) ([]*models.Post, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.postsLocked(s.postsByChar[characterID]), nil
}

func (s *MemoryStore) postsLocked(ids []uuid.UUID) []*models.Post {
	posts := make([]*models.Post, 0, len(ids))
	for _, id := range ids {
		p := *s.posts[id]
		posts = append(posts, &p)
	}
	return posts
}

func (s *MemoryStore) DeletePost(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	post, exists := s.posts[id]
	if !exists {
		return utils.NewNotFoundError("Post", id.String())
	}
	s.postsByChar[post.Author] = removeID(s.postsByChar[post.Author], id)
	s.deletePostLocked(id)
	return nil
}

// deletePostLocked removes the post and everything hanging off it, leaving
// the per-character index to the caller.
func (s *MemoryStore) deletePostLocked(id uuid.UUID) {
	for _, key := range s.commentsByPost[id] {
		delete(s.comments, key)
	}
	delete(s.commentsByPost, id)

	for _, key := range s.likesByPost[id] {
		delete(s.likes, key)
	}
	delete(s.likesByPost, id)

	delete(s.posts, id)
	s.postOrder = removeID(s.postOrder, id)
}

// Comments

func (s *MemoryStore) InsertComment(ctx context.Context, comment *models.Comment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := comment.Key.Normalized()
	if _, exists := s.comments[key]; exists {
		return utils.NewDuplicateError("Comment", key.String(), nil)
	}
	c := *comment
	c.Key = key
	s.comments[key] = &c
	s.commentsByPost[key.Post] = append(s.commentsByPost[key.Post], key)
	return nil
}

func (s *MemoryStore) GetComment(ctx context.Context, key models.CommentKey) (*models.Comment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	comment, exists := s.comments[key.Normalized()]
	if !exists {
		return nil, utils.NewNotFoundError("Comment", key.String())
	}
	c := *comment
	return &c, nil
}

func (s *MemoryStore) ListCommentsByPost(ctx context.Context, postID uuid.UUID) ([]*models.Comment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := s.commentsByPost[postID]
	comments := make([]*models.Comment, 0, len(keys))
	for _, key := range keys {
		c := *s.comments[key]
		comments = append(comments, &c)
	}
	return comments, nil
}

// Likes

func (s *MemoryStore) InsertLike(ctx context.Context, like *models.Like) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.likes[like.Key]; exists {
		return utils.NewDuplicateError("Like", like.Key.String(), nil)
	}
	l := *like
	s.likes[like.Key] = &l
	s.likesByPost[like.Key.Post] = append(s.likesByPost[like.Key.Post], like.Key)
	return nil
}

func (s *MemoryStore) HasLike(ctx context.Context, key models.LikeKey) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, exists := s.likes[key]
	return exists, nil
}

func (s *MemoryStore) DeleteLike(ctx context.Context, key models.LikeKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.likes[key]; !exists {
		return utils.NewNotFoundError("Like", key.String())
	}
	s.removeLikeLocked(key)
	return nil
}

func (s *MemoryStore) removeLikeLocked(key models.LikeKey) {
	delete(s.likes, key)

	keys := s.likesByPost[key.Post]
	out := keys[:0]
	for _, k := range keys {
		if k != key {
			out = append(out, k)
		}
	}
	s.likesByPost[key.Post] = out
}

func (s *MemoryStore) ListLikesByPost(ctx context.Context, postID uuid.UUID) ([]*models.Like, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := s.likesByPost[postID]
	likes := make([]*models.Like, 0, len(keys))
	for _, key := range keys {
		l := *s.likes[key]
		likes = append(likes, &l)
	}
	return likes, nil
}
