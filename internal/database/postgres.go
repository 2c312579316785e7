// internal/database/postgres.go
package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"time"

	"tavern-net/internal/models"
	"tavern-net/internal/utils"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

// PostgresDB represents a PostgreSQL database connection
type PostgresDB struct {
	DB *sqlx.DB
}

// NewPostgresDB creates a new PostgreSQL database connection
func NewPostgresDB(connectionString string) (*PostgresDB, error) {
	db, err := sqlx.Connect("postgres", connectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL: %v", err)
	}

	// Configure connection pool
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	// Ping the database to verify connection
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping PostgreSQL: %v", err)
	}

	log.Println("Successfully connected to PostgreSQL!")

	return &PostgresDB{DB: db}, nil
}

// Close closes the database connection
func (p *PostgresDB) Close(ctx context.Context) error {
	log.Println("Closing PostgreSQL connection...")
	return p.DB.Close()
}

func (p *PostgresDB) Ping(ctx context.Context) error {
	return p.DB.PingContext(ctx)
}

// Bootstrap creates all tables and the posts_view view if they don't exist.
// Foreign keys cascade, so deleting a post or a character removes what hangs
// off it.
func (p *PostgresDB) Bootstrap(ctx context.Context) error {
	statements := []struct {
		name  string
		query string
	}{
		{"accounts", `
			CREATE TABLE IF NOT EXISTS accounts (
				username VARCHAR(64) PRIMARY KEY,
				password_hash VARCHAR(100) NOT NULL,
				active_character UUID,
				active_at TIMESTAMP WITH TIME ZONE,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL
			)`},
		{"characters", `
			CREATE TABLE IF NOT EXISTS characters (
				id UUID PRIMARY KEY,
				owner VARCHAR(64) NOT NULL REFERENCES accounts(username) ON DELETE CASCADE,
				name VARCHAR(100) NOT NULL,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL,
				biography TEXT NOT NULL DEFAULT '',
				alignment VARCHAR(32) NOT NULL DEFAULT '',
				race VARCHAR(64) NOT NULL DEFAULT '',
				languages TEXT[] NOT NULL DEFAULT '{}',
				stats JSONB NOT NULL,
				position BIGSERIAL,
				CONSTRAINT characters_owner_name_unique UNIQUE (owner, name)
			)`},
		{"posts", `
			CREATE TABLE IF NOT EXISTS posts (
				id UUID PRIMARY KEY,
				character_id UUID NOT NULL REFERENCES characters(id) ON DELETE CASCADE,
				date TIMESTAMP WITH TIME ZONE NOT NULL,
				title TEXT NOT NULL,
				content TEXT NOT NULL,
				position BIGSERIAL
			)`},
		{"comments", `
			CREATE TABLE IF NOT EXISTS comments (
				post_id UUID NOT NULL REFERENCES posts(id) ON DELETE CASCADE,
				author_id UUID NOT NULL REFERENCES characters(id) ON DELETE CASCADE,
				date TIMESTAMP WITH TIME ZONE NOT NULL,
				seq INTEGER NOT NULL DEFAULT 0,
				content TEXT NOT NULL,
				position BIGSERIAL,
				PRIMARY KEY (post_id, author_id, date, seq)
			)`},
		{"likes", `
			CREATE TABLE IF NOT EXISTS likes (
				post_id UUID NOT NULL REFERENCES posts(id) ON DELETE CASCADE,
				author_id UUID NOT NULL REFERENCES characters(id) ON DELETE CASCADE,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				position BIGSERIAL,
				PRIMARY KEY (post_id, author_id)
			)`},
		{"accounts active character key", `
			DO $$
			BEGIN
				IF NOT EXISTS (SELECT 1 FROM pg_constraint WHERE conname = 'accounts_active_character_fkey') THEN
					ALTER TABLE accounts ADD CONSTRAINT accounts_active_character_fkey
						FOREIGN KEY (active_character) REFERENCES characters(id) ON DELETE SET NULL;
				END IF;
			END
			$$`},
		{"posts index", `CREATE INDEX IF NOT EXISTS idx_posts_character ON posts(character_id, position)`},
		{"comments index", `CREATE INDEX IF NOT EXISTS idx_comments_author ON comments(author_id)`},
		{"likes index", `CREATE INDEX IF NOT EXISTS idx_likes_author ON likes(author_id)`},
		{postsViewName, `
			CREATE OR REPLACE VIEW ` + postsViewName + ` AS
			SELECT p.id, p.character_id, p.date, p.title, p.content, p.position,
				(SELECT COUNT(*) FROM likes l WHERE l.post_id = p.id) AS n_likes,
				(SELECT COUNT(*) FROM comments c WHERE c.post_id = p.id) AS n_comments
			FROM posts p`},
	}

	for _, stmt := range statements {
		if _, err := p.DB.ExecContext(ctx, stmt.query); err != nil {
			return fmt.Errorf("failed to create %s: %v", stmt.name, err)
		}
	}
	log.Println("PostgreSQL schema is ready")
	return nil
}

// pgWriteError maps constraint violations to the store's error codes.
func pgWriteError(entity, id string, err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code.Name() {
		case "unique_violation":
			return utils.NewDuplicateError(entity, id, err)
		case "foreign_key_violation":
			return utils.NewAppError(utils.ErrDanglingReference,
				fmt.Sprintf("%s %s references a missing row (%s)", entity, id, pqErr.Constraint), err)
		}
	}
	return utils.NewAppError(utils.ErrDatabase, fmt.Sprintf("failed to write %s", entity), err)
}

func pgReadError(entity, id string, err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return utils.NewNotFoundError(entity, id)
	}
	return utils.NewAppError(utils.ErrDatabase, fmt.Sprintf("failed to read %s", entity), err)
}

// Rows

type accountRow struct {
	Username        string        `db:"username"`
	PasswordHash    string        `db:"password_hash"`
	ActiveCharacter uuid.NullUUID `db:"active_character"`
	ActiveAt        sql.NullTime  `db:"active_at"`
	CreatedAt       time.Time     `db:"created_at"`
}

func (r *accountRow) toModel() *models.Account {
	account := &models.Account{
		Username:     r.Username,
		PasswordHash: r.PasswordHash,
		CreatedAt:    models.Timestamp(r.CreatedAt),
	}
	if r.ActiveCharacter.Valid {
		id := r.ActiveCharacter.UUID
		account.Active = &id
	}
	if r.ActiveAt.Valid {
		account.ActiveAt = models.Timestamp(r.ActiveAt.Time)
	}
	return account
}

type characterRow struct {
	ID        uuid.UUID      `db:"id"`
	Owner     string         `db:"owner"`
	Name      string         `db:"name"`
	CreatedAt time.Time      `db:"created_at"`
	UpdatedAt time.Time      `db:"updated_at"`
	Biography string         `db:"biography"`
	Alignment string         `db:"alignment"`
	Race      string         `db:"race"`
	Languages pq.StringArray `db:"languages"`
	Stats     models.Stats   `db:"stats"`
}

func (r *characterRow) toModel() *models.Character {
	languages := []string(r.Languages)
	if languages == nil {
		languages = []string{}
	}
	return &models.Character{
		ID:        r.ID,
		Name:      r.Name,
		Owner:     r.Owner,
		CreatedAt: models.Timestamp(r.CreatedAt),
		UpdatedAt: models.Timestamp(r.UpdatedAt),
		Biography: r.Biography,
		Alignment: models.Alignment(r.Alignment),
		Race:      r.Race,
		Languages: languages,
		Stats:     r.Stats,
	}
}

type postRow struct {
	ID        uuid.UUID `db:"id"`
	Character uuid.UUID `db:"character_id"`
	Date      time.Time `db:"date"`
	Title     string    `db:"title"`
	Content   string    `db:"content"`
}

func (r *postRow) toModel() *models.Post {
	return &models.Post{
		ID:      r.ID,
		Date:    models.Timestamp(r.Date),
		Author:  r.Character,
		Title:   r.Title,
		Content: r.Content,
	}
}

type postViewRow struct {
	postRow
	Likes    int `db:"n_likes"`
	Comments int `db:"n_comments"`
}

type commentRow struct {
	Post    uuid.UUID `db:"post_id"`
	Author  uuid.UUID `db:"author_id"`
	Date    time.Time `db:"date"`
	Seq     int       `db:"seq"`
	Content string    `db:"content"`
}

func (r *commentRow) toModel() *models.Comment {
	return &models.Comment{
		Key: models.CommentKey{
			Post:   r.Post,
			Author: r.Author,
			Date:   models.Timestamp(r.Date),
			Seq:    r.Seq,
		},
		Content: r.Content,
	}
}

type likeRow struct {
	Post      uuid.UUID `db:"post_id"`
	Author    uuid.UUID `db:"author_id"`
	CreatedAt time.Time `db:"created_at"`
}

func (r *likeRow) toModel() *models.Like {
	return &models.Like{
		Key:       models.LikeKey{Post: r.Post, Author: r.Author},
		CreatedAt: models.Timestamp(r.CreatedAt),
	}
}

// Accounts

func (p *PostgresDB) InsertAccount(ctx context.Context, account *models.Account) error {
	query := `
		INSERT INTO accounts (username, password_hash, created_at)
		VALUES ($1, $2, $3)
	`
	_, err := p.DB.ExecContext(ctx, query, account.Username, account.PasswordHash, account.CreatedAt)
	if err != nil {
		return pgWriteError("Account", account.Username, err)
	}
	return nil
}

func (p *PostgresDB) GetAccount(ctx context.Context, username string) (*models.Account, error) {
	query := `SELECT username, password_hash, active_character, active_at, created_at FROM accounts WHERE username = $1`
	var row accountRow
	if err := p.DB.GetContext(ctx, &row, query, username); err != nil {
		return nil, pgReadError("Account", username, err)
	}
	return row.toModel(), nil
}

// SetActiveCharacter applies only when at is newer than the stored active_at
// and the character exists and belongs to username.
func (p *PostgresDB) SetActiveCharacter(ctx context.Context, username string, characterID uuid.UUID, at time.Time) (bool, error) {
	query := `
		UPDATE accounts SET active_character = $2, active_at = $3
		WHERE username = $1 AND (active_at IS NULL OR active_at < $3)
			AND EXISTS (SELECT 1 FROM characters WHERE id = $2 AND owner = $1)
	`
	result, err := p.DB.ExecContext(ctx, query, username, characterID, models.Timestamp(at))
	if err != nil {
		return false, utils.NewAppError(utils.ErrDatabase, "failed to update active character", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, utils.NewAppError(utils.ErrDatabase, "failed to read update result", err)
	}
	if rows > 0 {
		return true, nil
	}

	var exists bool
	if err := p.DB.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM accounts WHERE username = $1)`, username); err != nil {
		return false, utils.NewAppError(utils.ErrDatabase, "failed to check account", err)
	}
	if !exists {
		return false, utils.NewNotFoundError("Account", username)
	}

	var owner string
	if err := p.DB.GetContext(ctx, &owner, `SELECT owner FROM characters WHERE id = $1`, characterID); err != nil {
		return false, pgReadError("Character", characterID.String(), err)
	}
	if owner != username {
		return false, utils.NewOwnershipError(characterID.String(), owner, username)
	}
	return false, nil
}

func (p *PostgresDB) ClearActiveCharacter(ctx context.Context, username string, characterID uuid.UUID) error {
	query := `UPDATE accounts SET active_character = NULL WHERE username = $1 AND active_character = $2`
	if _, err := p.DB.ExecContext(ctx, query, username, characterID); err != nil {
		return utils.NewAppError(utils.ErrDatabase, "failed to clear active character", err)
	}
	return nil
}

// Characters

// languagesArray keeps an empty list from being written as NULL.
func languagesArray(languages []string) pq.StringArray {
	if languages == nil {
		return pq.StringArray{}
	}
	return pq.StringArray(languages)
}

const characterColumns = `id, owner, name, created_at, updated_at, biography, alignment, race, languages, stats`

func (p *PostgresDB) InsertCharacter(ctx context.Context, c *models.Character) error {
	query := `
		INSERT INTO characters (` + characterColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err := p.DB.ExecContext(ctx, query,
		c.ID,
		c.Owner,
		c.Name,
		c.CreatedAt,
		c.UpdatedAt,
		c.Biography,
		string(c.Alignment),
		c.Race,
		languagesArray(c.Languages),
		c.Stats,
	)
	if err != nil {
		return pgWriteError("Character", c.Owner+"/"+c.Name, err)
	}
	return nil
}

func (p *PostgresDB) UpdateCharacter(ctx context.Context, c *models.Character) error {
	query := `
		UPDATE characters SET
			name = $2, updated_at = $3, biography = $4, alignment = $5,
			race = $6, languages = $7, stats = $8
		WHERE id = $1
	`
	result, err := p.DB.ExecContext(ctx, query,
		c.ID,
		c.Name,
		c.UpdatedAt,
		c.Biography,
		string(c.Alignment),
		c.Race,
		languagesArray(c.Languages),
		c.Stats,
	)
	if err != nil {
		return pgWriteError("Character", c.Owner+"/"+c.Name, err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return utils.NewAppError(utils.ErrDatabase, "failed to read update result", err)
	}
	if rows == 0 {
		return utils.NewNotFoundError("Character", c.ID.String())
	}
	return nil
}

func (p *PostgresDB) GetCharacter(ctx context.Context, id uuid.UUID) (*models.Character, error) {
	query := `SELECT ` + characterColumns + ` FROM characters WHERE id = $1`
	var row characterRow
	if err := p.DB.GetContext(ctx, &row, query, id); err != nil {
		return nil, pgReadError("Character", id.String(), err)
	}
	return row.toModel(), nil
}

func (p *PostgresDB) GetCharacterByName(ctx context.Context, owner, name string) (*models.Character, error) {
	query := `SELECT ` + characterColumns + ` FROM characters WHERE owner = $1 AND name = $2`
	var row characterRow
	if err := p.DB.GetContext(ctx, &row, query, owner, name); err != nil {
		return nil, pgReadError("Character", owner+"/"+name, err)
	}
	return row.toModel(), nil
}

func (p *PostgresDB) ListCharactersByAccount(ctx context.Context, owner string) ([]*models.Character, error) {
	query := `SELECT ` + characterColumns + ` FROM characters WHERE owner = $1 ORDER BY position`
	var rows []characterRow
	if err := p.DB.SelectContext(ctx, &rows, query, owner); err != nil {
		return nil, utils.NewAppError(utils.ErrDatabase, "failed to list characters", err)
	}
	characters := make([]*models.Character, len(rows))
	for i := range rows {
		characters[i] = rows[i].toModel()
	}
	return characters, nil
}

// DeleteCharacter relies on ON DELETE CASCADE for posts, comments and likes.
func (p *PostgresDB) DeleteCharacter(ctx context.Context, id uuid.UUID) error {
	tx, err := p.DB.BeginTxx(ctx, nil)
	if err != nil {
		return utils.NewAppError(utils.ErrDatabase, "failed to begin transaction", err)
	}
	defer tx.Rollback() // Rollback is ignored if tx is committed.

	result, err := tx.ExecContext(ctx, `DELETE FROM characters WHERE id = $1`, id)
	if err != nil {
		return utils.NewAppError(utils.ErrDatabase, "failed to delete character", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return utils.NewAppError(utils.ErrDatabase, "failed to read delete result", err)
	}
	if rows == 0 {
		return utils.NewNotFoundError("Character", id.String())
	}

	_, err = tx.ExecContext(ctx, `UPDATE accounts SET active_character = NULL WHERE active_character = $1`, id)
	if err != nil {
		return utils.NewAppError(utils.ErrDatabase, "failed to clear active character", err)
	}
	return tx.Commit()
}

// Posts

const postColumns = `id, character_id, date, title, content`

func (p *PostgresDB) InsertPost(ctx context.Context, post *models.Post) error {
	query := `INSERT INTO posts (` + postColumns + `) VALUES ($1, $2, $3, $4, $5)`
	_, err := p.DB.ExecContext(ctx, query, post.ID, post.Author, post.Date, post.Title, post.Content)
	if err != nil {
		return pgWriteError("Post", post.ID.String(), err)
	}
	return nil
}

func (p *PostgresDB) GetPost(ctx context.Context, id uuid.UUID) (*models.Post, error) {
	query := `SELECT ` + postColumns + ` FROM posts WHERE id = $1`
	var row postRow
	if err := p.DB.GetContext(ctx, &row, query, id); err != nil {
		return nil, pgReadError("Post", id.String(), err)
	}
	return row.toModel(), nil
}

func (p *PostgresDB) ListPosts(ctx context.Context) ([]*models.Post, error) {
	return p.selectPosts(ctx, `SELECT `+postColumns+` FROM posts ORDER BY position`)
}

func (p *PostgresDB) ListPostsByCharacter(ctx context.Context, characterID uuid.UUID) ([]*models.Post, error) {
	return p.selectPosts(ctx, `SELECT `+postColumns+` FROM posts WHERE character_id = $1 ORDER BY position`, characterID)
}

func (p *PostgresDB) selectPosts(ctx context.Context, query string, args ...interface{}) ([]*models.Post, error) {
	var rows []postRow
	if err := p.DB.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, utils.NewAppError(utils.ErrDatabase, "failed to list posts", err)
	}
	posts := make([]*models.Post, len(rows))
	for i := range rows {
		posts[i] = rows[i].toModel()
	}
	return posts, nil
}

func (p *PostgresDB) DeletePost(ctx context.Context, id uuid.UUID) error {
	result, err := p.DB.ExecContext(ctx, `DELETE FROM posts WHERE id = $1`, id)
	if err != nil {
		return utils.NewAppError(utils.ErrDatabase, "failed to delete post", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return utils.NewAppError(utils.ErrDatabase, "failed to read delete result", err)
	}
	if rows == 0 {
		return utils.NewNotFoundError("Post", id.String())
	}
	return nil
}

func (r *postViewRow) toModel() *models.PostView {
	return &models.PostView{
		Post:         *r.postRow.toModel(),
		LikeCount:    r.Likes,
		CommentCount: r.Comments,
	}
}

func (p *PostgresDB) GetPostView(ctx context.Context, id uuid.UUID) (*models.PostView, error) {
	query := `SELECT ` + postColumns + `, n_likes, n_comments FROM ` + postsViewName + ` WHERE id = $1`
	var row postViewRow
	if err := p.DB.GetContext(ctx, &row, query, id); err != nil {
		return nil, pgReadError("Post", id.String(), err)
	}
	return row.toModel(), nil
}

func (p *PostgresDB) ListPostViews(ctx context.Context, characterID *uuid.UUID) ([]*models.PostView, error) {
	query := `SELECT ` + postColumns + `, n_likes, n_comments FROM ` + postsViewName
	var args []interface{}
	if characterID != nil {
		query += ` WHERE character_id = $1`
		args = append(args, *characterID)
	}
	query += ` ORDER BY position`

	var rows []postViewRow
	if err := p.DB.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, utils.NewAppError(utils.ErrDatabase, "failed to list post views", err)
	}
	views := make([]*models.PostView, len(rows))
	for i := range rows {
		views[i] = rows[i].toModel()
	}
	return views, nil
}

// Comments

const commentColumns = `post_id, author_id, date, seq, content`

func (p *PostgresDB) InsertComment(ctx context.Context, comment *models.Comment) error {
	key := comment.Key.Normalized()
	query := `INSERT INTO comments (` + commentColumns + `) VALUES ($1, $2, $3, $4, $5)`
	_, err := p.DB.ExecContext(ctx, query, key.Post, key.Author, key.Date, key.Seq, comment.Content)
	if err != nil {
		return pgWriteError("Comment", key.String(), err)
	}
	return nil
}

func (p *PostgresDB) GetComment(ctx context.Context, key models.CommentKey) (*models.Comment, error) {
	key = key.Normalized()
	query := `SELECT ` + commentColumns + ` FROM comments
		WHERE post_id = $1 AND author_id = $2 AND date = $3 AND seq = $4`
	var row commentRow
	if err := p.DB.GetContext(ctx, &row, query, key.Post, key.Author, key.Date, key.Seq); err != nil {
		return nil, pgReadError("Comment", key.String(), err)
	}
	return row.toModel(), nil
}

func (p *PostgresDB) ListCommentsByPost(ctx context.Context, postID uuid.UUID) ([]*models.Comment, error) {
	query := `SELECT ` + commentColumns + ` FROM comments WHERE post_id = $1 ORDER BY position`
	var rows []commentRow
	if err := p.DB.SelectContext(ctx, &rows, query, postID); err != nil {
		return nil, utils.NewAppError(utils.ErrDatabase, "failed to list comments", err)
	}
	comments := make([]*models.Comment, len(rows))
	for i := range rows {
		comments[i] = rows[i].toModel()
	}
	return comments, nil
}

// Likes

func (p *PostgresDB) InsertLike(ctx context.Context, like *models.Like) error {
	query := `INSERT INTO likes (post_id, author_id, created_at) VALUES ($1, $2, $3)`
	_, err := p.DB.ExecContext(ctx, query, like.Key.Post, like.Key.Author, like.CreatedAt)
	if err != nil {
		return pgWriteError("Like", like.Key.String(), err)
	}
	return nil
}

func (p *PostgresDB) HasLike(ctx context.Context, key models.LikeKey) (bool, error) {
	var exists bool
	query := `SELECT EXISTS(SELECT 1 FROM likes WHERE post_id = $1 AND author_id = $2)`
	if err := p.DB.GetContext(ctx, &exists, query, key.Post, key.Author); err != nil {
		return false, utils.NewAppError(utils.ErrDatabase, "failed to check like", err)
	}
	return exists, nil
}

func (p *PostgresDB) DeleteLike(ctx context.Context, key models.LikeKey) error {
	result, err := p.DB.ExecContext(ctx, `DELETE FROM likes WHERE post_id = $1 AND author_id = $2`, key.Post, key.Author)
	if err != nil {
		return utils.NewAppError(utils.ErrDatabase, "failed to delete like", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return utils.NewAppError(utils.ErrDatabase, "failed to read delete result", err)
	}
	if rows == 0 {
		return utils.NewNotFoundError("Like", key.String())
	}
	return nil
}

func (p *PostgresDB) ListLikesByPost(ctx context.Context, postID uuid.UUID) ([]*models.Like, error) {
	query := `SELECT post_id, author_id, created_at FROM likes WHERE post_id = $1 ORDER BY position`
	var rows []likeRow
	if err := p.DB.SelectContext(ctx, &rows, query, postID); err != nil {
		return nil, utils.NewAppError(utils.ErrDatabase, "failed to list likes", err)
	}
	likes := make([]*models.Like, len(rows))
	for i := range rows {
		likes[i] = rows[i].toModel()
	}
	return likes, nil
}

var (
	_ EntityStore       = (*PostgresDB)(nil)
	_ EngagementQuerier = (*PostgresDB)(nil)
)
