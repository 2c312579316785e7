package engine

import (
	"context"
	"encoding/json"
	"testing"

	"tavern-net/internal/database"
	"tavern-net/internal/models"
	"tavern-net/internal/utils"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// pushdownStore answers view queries itself, as the database backends do.
type pushdownStore struct {
	*database.MemoryStore
	calls int
}

func (s *pushdownStore) GetPostView(ctx context.Context, id uuid.UUID) (*models.PostView, error) {
	s.calls++
	post, err := s.GetPost(ctx, id)
	if err != nil {
		return nil, err
	}
	likes, _ := s.ListLikesByPost(ctx, id)
	comments, _ := s.ListCommentsByPost(ctx, id)
	return &models.PostView{Post: *post, LikeCount: len(likes), CommentCount: len(comments)}, nil
}

func (s *pushdownStore) ListPostViews(ctx context.Context, characterID *uuid.UUID) ([]*models.PostView, error) {
	s.calls++
	var posts []*models.Post
	if characterID != nil {
		posts, _ = s.ListPostsByCharacter(ctx, *characterID)
	} else {
		posts, _ = s.ListPosts(ctx)
	}
	views := make([]*models.PostView, 0, len(posts))
	for _, p := range posts {
		v, err := s.GetPostView(ctx, p.ID)
		if err != nil {
			return nil, err
		}
		views = append(views, v)
	}
	return views, nil
}

func TestViewCountsFollowWrites(t *testing.T) {
	layer, store, _ := newTestLayer(t)
	ctx := context.Background()
	zarion, jolly := seedTavern(t, layer)
	view := NewEngagementView(store, nil)

	post, err := layer.CreatePost(ctx, zarion.ID, "Riddles", "")
	require.NoError(t, err)

	projected, err := view.Project(ctx, post)
	require.NoError(t, err)
	assert.Zero(t, projected.LikeCount)
	assert.Zero(t, projected.CommentCount)

	_, err = layer.AddLike(ctx, post.ID, jolly.ID)
	require.NoError(t, err)
	_, err = layer.AddLike(ctx, post.ID, zarion.ID)
	require.NoError(t, err)
	_, err = layer.AddLike(ctx, post.ID, jolly.ID)
	require.Error(t, err)

	projected, err = view.Project(ctx, post)
	require.NoError(t, err)
	assert.Equal(t, 2, projected.LikeCount, "duplicate like attempts are not counted")

	require.NoError(t, layer.RemoveLike(ctx, post.ID, zarion.ID))
	projected, err = view.ProjectByID(ctx, post.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, projected.LikeCount)
}

func TestViewProjectByMissingID(t *testing.T) {
	view := NewEngagementView(database.NewMemoryStore(), nil)
	_, err := view.ProjectByID(context.Background(), uuid.New())
	assert.ErrorIs(t, err, utils.NotFound)
}

func TestViewListings(t *testing.T) {
	layer, store, _ := newTestLayer(t)
	ctx := context.Background()
	zarion, jolly := seedTavern(t, layer)
	view := NewEngagementView(store, nil)

	first, err := layer.CreatePost(ctx, zarion.ID, "First", "")
	require.NoError(t, err)
	second, err := layer.CreatePost(ctx, jolly.ID, "Second", "")
	require.NoError(t, err)
	third, err := layer.CreatePost(ctx, zarion.ID, "Third", "")
	require.NoError(t, err)
	_, err = layer.AddComment(ctx, third.ID, jolly.ID, "late to the party")
	require.NoError(t, err)

	all, err := view.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []uuid.UUID{first.ID, second.ID, third.ID}, []uuid.UUID{all[0].ID, all[1].ID, all[2].ID})
	assert.Equal(t, 1, all[2].CommentCount)

	mine, err := view.ListByCharacter(ctx, zarion.ID)
	require.NoError(t, err)
	require.Len(t, mine, 2)
	assert.Equal(t, first.ID, mine[0].ID)
	assert.Equal(t, third.ID, mine[1].ID)

	many, err := view.ProjectMany(ctx, []*models.Post{third, first})
	require.NoError(t, err)
	require.Len(t, many, 2)
	assert.Equal(t, third.ID, many[0].ID)
	assert.Equal(t, 1, many[0].CommentCount)

	none, err := view.ListByCharacter(ctx, uuid.New())
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestViewUsesPushdown(t *testing.T) {
	store := &pushdownStore{MemoryStore: database.NewMemoryStore()}
	layer := NewIntegrityLayer(store, nil, nil)
	ctx := context.Background()
	zarion, jolly := seedTavern(t, layer)
	post, err := layer.CreatePost(ctx, zarion.ID, "Pushed", "")
	require.NoError(t, err)
	_, err = layer.AddLike(ctx, post.ID, jolly.ID)
	require.NoError(t, err)

	view := NewEngagementView(store, nil)
	projected, err := view.ProjectByID(ctx, post.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, projected.LikeCount)
	assert.Equal(t, 1, store.calls)

	_, err = view.ListByCharacter(ctx, zarion.ID)
	require.NoError(t, err)
	assert.Greater(t, store.calls, 1)
}

func TestPostViewJSONHasNoJoinArrays(t *testing.T) {
	layer, store, _ := newTestLayer(t)
	ctx := context.Background()
	zarion, jolly := seedTavern(t, layer)
	post, err := layer.CreatePost(ctx, zarion.ID, "Serialized", "body")
	require.NoError(t, err)
	_, err = layer.AddLike(ctx, post.ID, jolly.ID)
	require.NoError(t, err)

	projected, err := NewEngagementView(store, nil).Project(ctx, post)
	require.NoError(t, err)

	raw, err := json.Marshal(projected)
	require.NoError(t, err)
	var fields map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &fields))

	assert.Len(t, fields, 7)
	assert.Equal(t, float64(1), fields["likeCount"])
	assert.Equal(t, float64(0), fields["commentCount"])
	assert.NotContains(t, fields, "likes")
	assert.NotContains(t, fields, "comments")
}
