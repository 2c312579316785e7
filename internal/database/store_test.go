package database

import (
	"context"
	"os"
	"testing"
	"time"

	"tavern-net/internal/models"
	"tavern-net/internal/utils"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
)

// testStoreContract exercises the EntityStore behavior every backend shares.
// Names are made unique per run so shared databases can be reused.
func testStoreContract(t *testing.T, store EntityStore) {
	ctx := context.Background()
	suffix := uuid.NewString()[:8]
	owner := "jeremias-" + suffix
	other := "kate-" + suffix
	base := models.Timestamp(time.Date(2024, 3, 1, 20, 0, 0, 0, time.UTC))

	created := 0
	newCharacter := func(owner, name string) *models.Character {
		created++
		at := base.Add(time.Duration(created) * time.Millisecond)
		return &models.Character{
			ID:        uuid.New(),
			Name:      name,
			Owner:     owner,
			CreatedAt: at,
			UpdatedAt: at,
			Alignment: models.ChaoticGood,
			Race:      "elf",
			Languages: []string{"Common", "Elvish"},
			Stats:     models.DefaultStats(),
		}
	}

	// Accounts
	require.NoError(t, store.InsertAccount(ctx, &models.Account{Username: owner, PasswordHash: "x", CreatedAt: base}))
	require.NoError(t, store.InsertAccount(ctx, &models.Account{Username: other, PasswordHash: "y", CreatedAt: base}))
	err := store.InsertAccount(ctx, &models.Account{Username: owner, PasswordHash: "z", CreatedAt: base})
	assert.ErrorIs(t, err, utils.DuplicateIdentity)

	account, err := store.GetAccount(ctx, owner)
	require.NoError(t, err)
	assert.Equal(t, "x", account.PasswordHash)
	assert.Nil(t, account.Active)
	assert.Equal(t, base, account.CreatedAt)

	_, err = store.GetAccount(ctx, "ghost-"+suffix)
	assert.ErrorIs(t, err, utils.NotFound)

	// Characters
	zarion := newCharacter(owner, "Zarion")
	mirela := newCharacter(owner, "Mirela")
	jolly := newCharacter(other, "Jolly")
	require.NoError(t, store.InsertCharacter(ctx, zarion))
	require.NoError(t, store.InsertCharacter(ctx, mirela))
	require.NoError(t, store.InsertCharacter(ctx, jolly))

	err = store.InsertCharacter(ctx, newCharacter(owner, "Zarion"))
	assert.ErrorIs(t, err, utils.DuplicateIdentity)
	require.NoError(t, store.InsertCharacter(ctx, newCharacter(other, "Zarion")))

	got, err := store.GetCharacterByName(ctx, owner, "Zarion")
	require.NoError(t, err)
	assert.Equal(t, zarion.ID, got.ID)
	assert.Equal(t, []string{"Common", "Elvish"}, got.Languages)
	assert.Equal(t, models.DefaultStats(), got.Stats)
	assert.Equal(t, models.ChaoticGood, got.Alignment)

	characters, err := store.ListCharactersByAccount(ctx, owner)
	require.NoError(t, err)
	require.Len(t, characters, 2)
	assert.Equal(t, zarion.ID, characters[0].ID)
	assert.Equal(t, mirela.ID, characters[1].ID)

	mirela.Name = "Zarion"
	assert.ErrorIs(t, store.UpdateCharacter(ctx, mirela), utils.DuplicateIdentity)
	mirela.Name = "Mirela the Wise"
	mirela.Biography = "Reads too much."
	mirela.UpdatedAt = base.Add(time.Minute)
	require.NoError(t, store.UpdateCharacter(ctx, mirela))
	got, err = store.GetCharacter(ctx, mirela.ID)
	require.NoError(t, err)
	assert.Equal(t, "Mirela the Wise", got.Name)
	assert.Equal(t, "Reads too much.", got.Biography)
	assert.Equal(t, mirela.CreatedAt, got.CreatedAt)
	_, err = store.GetCharacterByName(ctx, owner, "Mirela")
	assert.ErrorIs(t, err, utils.NotFound)

	// Active character, last writer wins
	applied, err := store.SetActiveCharacter(ctx, owner, zarion.ID, base.Add(time.Second))
	require.NoError(t, err)
	assert.True(t, applied)
	applied, err = store.SetActiveCharacter(ctx, owner, zarion.ID, base.Add(time.Second))
	require.NoError(t, err)
	assert.False(t, applied, "replaying the same write is a no-op")
	applied, err = store.SetActiveCharacter(ctx, owner, mirela.ID, base)
	require.NoError(t, err)
	assert.False(t, applied, "an older write never wins")
	account, err = store.GetAccount(ctx, owner)
	require.NoError(t, err)
	assert.True(t, account.HasActive(zarion.ID))

	applied, err = store.SetActiveCharacter(ctx, owner, mirela.ID, base.Add(2*time.Second))
	require.NoError(t, err)
	assert.True(t, applied)

	require.NoError(t, store.ClearActiveCharacter(ctx, owner, zarion.ID))
	account, err = store.GetAccount(ctx, owner)
	require.NoError(t, err)
	assert.True(t, account.HasActive(mirela.ID), "clearing another character is a no-op")
	require.NoError(t, store.ClearActiveCharacter(ctx, owner, mirela.ID))
	account, err = store.GetAccount(ctx, owner)
	require.NoError(t, err)
	assert.Nil(t, account.Active)

	_, err = store.SetActiveCharacter(ctx, "ghost-"+suffix, zarion.ID, base)
	assert.ErrorIs(t, err, utils.NotFound)
	_, err = store.SetActiveCharacter(ctx, owner, jolly.ID, base.Add(3*time.Second))
	assert.ErrorIs(t, err, utils.OwnershipMismatch)
	_, err = store.SetActiveCharacter(ctx, owner, uuid.New(), base.Add(3*time.Second))
	assert.ErrorIs(t, err, utils.NotFound)
	account, err = store.GetAccount(ctx, owner)
	require.NoError(t, err)
	assert.Nil(t, account.Active, "a rejected write leaves the account unchanged")

	// Posts
	p1 := &models.Post{ID: uuid.New(), Date: base, Author: zarion.ID, Title: "The Prancing Pony", Content: "Ale!"}
	p2 := &models.Post{ID: uuid.New(), Date: base.Add(time.Minute), Author: jolly.ID, Title: "Second breakfast"}
	require.NoError(t, store.InsertPost(ctx, p1))
	require.NoError(t, store.InsertPost(ctx, p2))
	assert.ErrorIs(t, store.InsertPost(ctx, p1), utils.DuplicateIdentity)

	post, err := store.GetPost(ctx, p1.ID)
	require.NoError(t, err)
	assert.Equal(t, p1, post)

	byZarion, err := store.ListPostsByCharacter(ctx, zarion.ID)
	require.NoError(t, err)
	require.Len(t, byZarion, 1)
	assert.Equal(t, p1.ID, byZarion[0].ID)

	all, err := store.ListPosts(ctx)
	require.NoError(t, err)
	ids := make([]uuid.UUID, 0, len(all))
	for _, p := range all {
		ids = append(ids, p.ID)
	}
	assert.Contains(t, ids, p1.ID)
	assert.Contains(t, ids, p2.ID)

	// Comments
	c1 := &models.Comment{Key: models.CommentKey{Post: p1.ID, Author: zarion.ID, Date: base.Add(time.Second)}, Content: "first"}
	c2 := &models.Comment{Key: models.CommentKey{Post: p1.ID, Author: zarion.ID, Date: base.Add(2 * time.Second)}, Content: "second"}
	require.NoError(t, store.InsertComment(ctx, c1))
	require.NoError(t, store.InsertComment(ctx, c2))
	assert.ErrorIs(t, store.InsertComment(ctx, c1), utils.DuplicateIdentity)
	widened := &models.Comment{Key: c1.Key, Content: "same tick"}
	widened.Key.Seq = 1
	require.NoError(t, store.InsertComment(ctx, widened))

	comment, err := store.GetComment(ctx, c2.Key)
	require.NoError(t, err)
	assert.Equal(t, "second", comment.Content)
	assert.Equal(t, c2.Key, comment.Key)

	comments, err := store.ListCommentsByPost(ctx, p1.ID)
	require.NoError(t, err)
	assert.Len(t, comments, 3)

	// Likes
	like := &models.Like{Key: models.LikeKey{Post: p1.ID, Author: jolly.ID}, CreatedAt: base.Add(time.Second)}
	require.NoError(t, store.InsertLike(ctx, like))
	assert.ErrorIs(t, store.InsertLike(ctx, like), utils.DuplicateIdentity)
	has, err := store.HasLike(ctx, like.Key)
	require.NoError(t, err)
	assert.True(t, has)

	own := &models.Like{Key: models.LikeKey{Post: p1.ID, Author: zarion.ID}, CreatedAt: base.Add(2 * time.Second)}
	require.NoError(t, store.InsertLike(ctx, own))
	require.NoError(t, store.DeleteLike(ctx, own.Key))
	assert.ErrorIs(t, store.DeleteLike(ctx, own.Key), utils.NotFound)

	likes, err := store.ListLikesByPost(ctx, p1.ID)
	require.NoError(t, err)
	require.Len(t, likes, 1)
	assert.Equal(t, like.Key, likes[0].Key)

	if querier, ok := store.(EngagementQuerier); ok {
		view, err := querier.GetPostView(ctx, p1.ID)
		require.NoError(t, err)
		assert.Equal(t, 1, view.LikeCount)
		assert.Equal(t, 3, view.CommentCount)
		assert.Equal(t, p1.Title, view.Title)

		views, err := querier.ListPostViews(ctx, &jolly.ID)
		require.NoError(t, err)
		require.Len(t, views, 1)
		assert.Equal(t, p2.ID, views[0].ID)
		assert.Zero(t, views[0].LikeCount)
	}

	// Jolly's comment on p1 must disappear with Jolly
	require.NoError(t, store.InsertComment(ctx, &models.Comment{
		Key:     models.CommentKey{Post: p1.ID, Author: jolly.ID, Date: base.Add(time.Hour)},
		Content: "bye",
	}))

	// Cascades
	require.NoError(t, store.DeleteCharacter(ctx, jolly.ID))
	_, err = store.GetPost(ctx, p2.ID)
	assert.ErrorIs(t, err, utils.NotFound)
	likes, err = store.ListLikesByPost(ctx, p1.ID)
	require.NoError(t, err)
	assert.Empty(t, likes)
	comments, err = store.ListCommentsByPost(ctx, p1.ID)
	require.NoError(t, err)
	assert.Len(t, comments, 3)
	assert.ErrorIs(t, store.DeleteCharacter(ctx, jolly.ID), utils.NotFound)
	_, err = store.SetActiveCharacter(ctx, other, jolly.ID, base.Add(time.Hour))
	assert.ErrorIs(t, err, utils.NotFound, "a deleted character can never become active")

	require.NoError(t, store.DeletePost(ctx, p1.ID))
	comments, err = store.ListCommentsByPost(ctx, p1.ID)
	require.NoError(t, err)
	assert.Empty(t, comments)
	assert.ErrorIs(t, store.DeletePost(ctx, p1.ID), utils.NotFound)
}

func TestMemoryStore(t *testing.T) {
	store := NewMemoryStore()
	require.NoError(t, store.Bootstrap(context.Background()))
	testStoreContract(t, store)
}

func TestMemoryStoreCopiesValues(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, store.InsertAccount(ctx, &models.Account{Username: "jeremias"}))

	character := &models.Character{ID: uuid.New(), Name: "Zarion", Owner: "jeremias", Languages: []string{"Common"}}
	require.NoError(t, store.InsertCharacter(ctx, character))
	character.Languages[0] = "Orcish"
	character.Name = "Changed"

	got, err := store.GetCharacter(ctx, character.ID)
	require.NoError(t, err)
	assert.Equal(t, "Zarion", got.Name)
	assert.Equal(t, []string{"Common"}, got.Languages)
}

func TestMemoryStoreNormalizesCommentKeys(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	at := time.Date(2024, 3, 1, 20, 0, 0, 123456789, time.FixedZone("CET", 3600))
	key := models.CommentKey{Post: uuid.New(), Author: uuid.New(), Date: at}

	require.NoError(t, store.InsertComment(ctx, &models.Comment{Key: key, Content: "hi"}))

	same := key
	same.Date = at.UTC().Add(400 * time.Microsecond)
	assert.ErrorIs(t, store.InsertComment(ctx, &models.Comment{Key: same}), utils.DuplicateIdentity)

	got, err := store.GetComment(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, key.Normalized(), got.Key)
}

func TestMongoDBStore(t *testing.T) {
	store := newTestMongoDB(t)
	require.NoError(t, store.Bootstrap(context.Background()), "bootstrap is idempotent")
	testStoreContract(t, store)
}

func newTestMongoDB(t *testing.T) *MongoDB {
	t.Helper()
	uri := os.Getenv("TEST_MONGO_URI")
	if uri == "" {
		t.Skip("TEST_MONGO_URI not set")
	}
	ctx := context.Background()

	store, err := NewMongoDB(uri, "tavernnet_test_"+uuid.NewString()[:8])
	require.NoError(t, err)
	t.Cleanup(func() {
		store.DB.Drop(ctx)
		store.Close(ctx)
	})
	require.NoError(t, store.Bootstrap(ctx))
	return store
}

func TestMongoDBCascadeRollsBackOnFailure(t *testing.T) {
	store := newTestMongoDB(t)
	if !store.transactions {
		t.Skip("MongoDB deployment does not support transactions")
	}
	ctx := context.Background()

	post := &models.Post{ID: uuid.New(), Date: models.Timestamp(time.Now()), Author: uuid.New(), Title: "Kept"}
	require.NoError(t, store.InsertPost(ctx, post))
	key := models.CommentKey{Post: post.ID, Author: uuid.New(), Date: post.Date}
	require.NoError(t, store.InsertComment(ctx, &models.Comment{Key: key, Content: "still here"}))

	failure := utils.NewAppError(utils.ErrDatabase, "interrupted", nil)
	err := store.inTransaction(ctx, func(ctx context.Context) error {
		if err := store.deletePostChildren(ctx, post.ID.String()); err != nil {
			return err
		}
		if _, err := store.Posts.DeleteOne(ctx, bson.M{"_id": post.ID.String()}); err != nil {
			return err
		}
		return failure
	})
	assert.ErrorIs(t, err, failure)

	_, err = store.GetPost(ctx, post.ID)
	assert.NoError(t, err)
	_, err = store.GetComment(ctx, key)
	assert.NoError(t, err)
}

func TestMongoDBRollbackOnlyUndoesItsOwnWrite(t *testing.T) {
	store := newTestMongoDB(t)
	ctx := context.Background()
	at := models.Timestamp(time.Now())

	require.NoError(t, store.InsertAccount(ctx, &models.Account{Username: "jeremias", CreatedAt: at}))
	zarion := &models.Character{ID: uuid.New(), Name: "Zarion", Owner: "jeremias", CreatedAt: at, UpdatedAt: at, Languages: []string{}, Stats: models.DefaultStats()}
	require.NoError(t, store.InsertCharacter(ctx, zarion))
	applied, err := store.SetActiveCharacter(ctx, "jeremias", zarion.ID, at)
	require.NoError(t, err)
	require.True(t, applied)

	store.rollbackActiveCharacter(ctx, "jeremias", zarion.ID, at.Add(-time.Second))
	account, err := store.GetAccount(ctx, "jeremias")
	require.NoError(t, err)
	assert.True(t, account.HasActive(zarion.ID), "an older write's rollback must not clear a newer one")

	store.rollbackActiveCharacter(ctx, "jeremias", zarion.ID, at)
	account, err = store.GetAccount(ctx, "jeremias")
	require.NoError(t, err)
	assert.Nil(t, account.Active)
}

func TestPostgresStore(t *testing.T) {
	uri := os.Getenv("TEST_DATABASE_URL")
	if uri == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	ctx := context.Background()

	store, err := NewPostgresDB(uri)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close(ctx) })

	require.NoError(t, store.Bootstrap(ctx))
	require.NoError(t, store.Bootstrap(ctx), "bootstrap is idempotent")
	testStoreContract(t, store)
}

func TestPostgresRejectsDanglingReferences(t *testing.T) {
	uri := os.Getenv("TEST_DATABASE_URL")
	if uri == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	ctx := context.Background()

	store, err := NewPostgresDB(uri)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close(ctx) })
	require.NoError(t, store.Bootstrap(ctx))

	like := &models.Like{Key: models.LikeKey{Post: uuid.New(), Author: uuid.New()}, CreatedAt: time.Now()}
	assert.ErrorIs(t, store.InsertLike(ctx, like), utils.DanglingReference)
}

func TestOpenUnknownBackend(t *testing.T) {
	_, err := Open("sqlite", "", "")
	assert.Error(t, err)

	store, err := Open(TypeMemory, "", "")
	require.NoError(t, err)
	assert.IsType(t, &MemoryStore{}, store)
}
