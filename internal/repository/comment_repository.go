package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/scorehub/scorehub-api/internal/models"
)

const commentColumns = `id, revision_id, parent_comment_id, user_id, body, vote_score, is_deleted, created_at, updated_at`

// CommentRepository manages persistence for revision comments and votes.
type CommentRepository struct {
	db *sqlx.DB
}

// NewCommentRepository constructs a new repository.
func NewCommentRepository(db *sqlx.DB) *CommentRepository {
	return &CommentRepository{db: db}
}

// Create inserts a new comment.
func (r *CommentRepository) Create(ctx context.Context, comment *models.RevisionComment) error {
	if comment.ID == "" {
		comment.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if comment.CreatedAt.IsZero() {
		comment.CreatedAt = now
	}
	comment.UpdatedAt = now
	query := `INSERT INTO revision_comments (id, revision_id, parent_comment_id, user_id, body, vote_score, is_deleted, created_at, updated_at)
VALUES (:id, :revision_id, :parent_comment_id, :user_id, :body, :vote_score, :is_deleted, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, comment); err != nil {
		return fmt.Errorf("create comment: %w", err)
	}
	return nil
}

// GetByID loads a comment row.
func (r *CommentRepository) GetByID(ctx context.Context, id string) (*models.RevisionComment, error) {
	var comment models.RevisionComment
	query := fmt.Sprintf("SELECT %s FROM revision_comments WHERE id = $1", commentColumns)
	if err := r.db.GetContext(ctx, &comment, query, id); err != nil {
		return nil, fmt.Errorf("get comment: %w", err)
	}
	return &comment, nil
}

// ListByRevision returns all comments of a revision, oldest first.
func (r *CommentRepository) ListByRevision(ctx context.Context, revisionID string) ([]models.RevisionComment, error) {
	var comments []models.RevisionComment
	query := fmt.Sprintf("SELECT %s FROM revision_comments WHERE revision_id = $1 ORDER BY created_at", commentColumns)
	if err := r.db.SelectContext(ctx, &comments, query, revisionID); err != nil {
		return nil, fmt.Errorf("list comments: %w", err)
	}
	return comments, nil
}

// SoftDelete marks a comment deleted; the row stays to keep reply threads
// intact.
func (r *CommentRepository) SoftDelete(ctx context.Context, id string) error {
	query := `UPDATE revision_comments SET is_deleted = TRUE, updated_at = $2 WHERE id = $1`
	res, err := r.db.ExecContext(ctx, query, id, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("soft delete comment: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// VoteResult describes the comment's state after a toggle.
type VoteResult struct {
	VoteScore int
	Voted     bool
	Direction models.VoteDirection
}

// ToggleVote applies the vote state machine inside one transaction. The
// score delta is always computed against the persisted score, never a
// caller-supplied value: no vote inserts (±1), a repeated vote removes the
// stored one (∓1), an opposite vote flips it (±2).
func (r *CommentRepository) ToggleVote(ctx context.Context, commentID, userID string, direction models.VoteDirection) (*VoteResult, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin vote tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	var score int
	if err := tx.QueryRowxContext(ctx, "SELECT vote_score FROM revision_comments WHERE id = $1 FOR UPDATE", commentID).Scan(&score); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sql.ErrNoRows
		}
		return nil, fmt.Errorf("lock comment: %w", err)
	}

	var existing models.CommentVote
	err = tx.GetContext(ctx, &existing,
		"SELECT id, comment_id, user_id, direction, created_at FROM comment_votes WHERE comment_id = $1 AND user_id = $2 FOR UPDATE",
		commentID, userID)

	result := &VoteResult{}
	var delta int
	switch {
	case errors.Is(err, sql.ErrNoRows):
		vote := models.CommentVote{
			ID:        uuid.NewString(),
			CommentID: commentID,
			UserID:    userID,
			Direction: direction,
			CreatedAt: time.Now().UTC(),
		}
		if _, err := tx.NamedExecContext(ctx,
			"INSERT INTO comment_votes (id, comment_id, user_id, direction, created_at) VALUES (:id, :comment_id, :user_id, :direction, :created_at)",
			vote); err != nil {
			return nil, fmt.Errorf("insert vote: %w", err)
		}
		delta = direction.Delta()
		result.Voted = true
		result.Direction = direction
	case err != nil:
		return nil, fmt.Errorf("load vote: %w", err)
	case existing.Direction == direction:
		// Toggle off: remove the vote and revert its contribution.
		if _, err := tx.ExecContext(ctx, "DELETE FROM comment_votes WHERE id = $1", existing.ID); err != nil {
			return nil, fmt.Errorf("delete vote: %w", err)
		}
		delta = -direction.Delta()
	default:
		// Flip: double-magnitude delta moves the score across zero in one
		// step.
		if _, err := tx.ExecContext(ctx, "UPDATE comment_votes SET direction = $2 WHERE id = $1", existing.ID, direction); err != nil {
			return nil, fmt.Errorf("flip vote: %w", err)
		}
		delta = 2 * direction.Delta()
		result.Voted = true
		result.Direction = direction
	}

	if err := tx.QueryRowxContext(ctx,
		"UPDATE revision_comments SET vote_score = vote_score + $2, updated_at = $3 WHERE id = $1 RETURNING vote_score",
		commentID, delta, time.Now().UTC()).Scan(&result.VoteScore); err != nil {
		return nil, fmt.Errorf("apply vote delta: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit vote tx: %w", err)
	}
	return result, nil
}
