package engine

import (
	"context"
	"time"

	"tavern-net/internal/database"
	"tavern-net/internal/models"
	"tavern-net/internal/utils"

	"github.com/google/uuid"
)

// EngagementView projects posts into PostViews carrying like and comment
// counts. Counts are derived on every read and never stored.
type EngagementView struct {
	store   database.EntityStore
	querier database.EngagementQuerier // nil when the backend cannot push counts down
	metrics *utils.MetricsCollector
}

func NewEngagementView(store database.EntityStore, metrics *utils.MetricsCollector) *EngagementView {
	if metrics == nil {
		metrics = utils.NewMetricsCollector()
	}
	v := &EngagementView{store: store, metrics: metrics}
	if q, ok := store.(database.EngagementQuerier); ok {
		v.querier = q
	}
	return v
}

func (v *EngagementView) track(operation string, start time.Time, err *error) {
	v.metrics.Track(operation, start, *err)
}

// Project joins one post with its likes and comments and keeps the counts.
func (v *EngagementView) Project(ctx context.Context, post *models.Post) (view *models.PostView, err error) {
	defer v.track("project_post", time.Now(), &err)
	return v.project(ctx, post)
}

func (v *EngagementView) project(ctx context.Context, post *models.Post) (*models.PostView, error) {
	likes, err := v.store.ListLikesByPost(ctx, post.ID)
	if err != nil {
		return nil, err
	}
	comments, err := v.store.ListCommentsByPost(ctx, post.ID)
	if err != nil {
		return nil, err
	}
	return &models.PostView{
		Post:         *post,
		LikeCount:    len(likes),
		CommentCount: len(comments),
	}, nil
}

func (v *EngagementView) ProjectByID(ctx context.Context, postID uuid.UUID) (view *models.PostView, err error) {
	defer v.track("project_post", time.Now(), &err)

	if v.querier != nil {
		return v.querier.GetPostView(ctx, postID)
	}
	post, err := v.store.GetPost(ctx, postID)
	if err != nil {
		return nil, err
	}
	return v.project(ctx, post)
}

// ProjectMany keeps the order of posts.
func (v *EngagementView) ProjectMany(ctx context.Context, posts []*models.Post) (views []*models.PostView, err error) {
	defer v.track("project_posts", time.Now(), &err)
	return v.projectAll(ctx, posts)
}

// List projects every post in publish order.
func (v *EngagementView) List(ctx context.Context) (views []*models.PostView, err error) {
	defer v.track("list_post_views", time.Now(), &err)

	if v.querier != nil {
		return v.querier.ListPostViews(ctx, nil)
	}
	posts, err := v.store.ListPosts(ctx)
	if err != nil {
		return nil, err
	}
	return v.projectAll(ctx, posts)
}

// ListByCharacter projects the posts authored by one character.
func (v *EngagementView) ListByCharacter(ctx context.Context, characterID uuid.UUID) (views []*models.PostView, err error) {
	defer v.track("list_post_views", time.Now(), &err)

	if v.querier != nil {
		return v.querier.ListPostViews(ctx, &characterID)
	}
	posts, err := v.store.ListPostsByCharacter(ctx, characterID)
	if err != nil {
		return nil, err
	}
	return v.projectAll(ctx, posts)
}

func (v *EngagementView) projectAll(ctx context.Context, posts []*models.Post) ([]*models.PostView, error) {
	views := make([]*models.PostView, 0, len(posts))
	for _, post := range posts {
		view, err := v.project(ctx, post)
		if err != nil {
			return nil, err
		}
		views = append(views, view)
	}
	return views, nil
}
