package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"go.uber.org/zap"

	"github.com/scorehub/scorehub-api/internal/models"
	"github.com/scorehub/scorehub-api/internal/repository"
	appErrors "github.com/scorehub/scorehub-api/pkg/errors"
)

type commentStore interface {
	Create(ctx context.Context, comment *models.RevisionComment) error
	GetByID(ctx context.Context, id string) (*models.RevisionComment, error)
	ListByRevision(ctx context.Context, revisionID string) ([]models.RevisionComment, error)
	SoftDelete(ctx context.Context, id string) error
	ToggleVote(ctx context.Context, commentID, userID string, direction models.VoteDirection) (*repository.VoteResult, error)
}

// CommentService manages single-level comment threads and vote toggling.
type CommentService struct {
	comments  commentStore
	revisions revisionLookup
	sanitizer *bluemonday.Policy
	logger    *zap.Logger
}

// NewCommentService constructs the comment service.
func NewCommentService(comments commentStore, revisions revisionLookup, logger *zap.Logger) *CommentService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CommentService{
		comments:  comments,
		revisions: revisions,
		sanitizer: bluemonday.StrictPolicy(),
		logger:    logger,
	}
}

// Create posts a comment, or a reply when parentCommentID is set. Replies
// always attach to the root comment: replying to a reply is rejected, which
// keeps threads exactly one level deep.
func (s *CommentService) Create(ctx context.Context, revisionID string, actor *models.JWTClaims, body string, parentCommentID *string) (*models.RevisionComment, error) {
	cleaned := strings.TrimSpace(s.sanitizer.Sanitize(body))
	if cleaned == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "comment body is empty")
	}

	if _, err := s.revisions.GetByID(ctx, revisionID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "revision not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load revision")
	}

	if parentCommentID != nil {
		parent, err := s.comments.GetByID(ctx, *parentCommentID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, appErrors.Clone(appErrors.ErrNotFound, "parent comment not found")
			}
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load parent comment")
		}
		if parent.RevisionID != revisionID {
			return nil, appErrors.Clone(appErrors.ErrValidation, "parent comment belongs to another revision")
		}
		if parent.ParentCommentID != nil {
			return nil, appErrors.Clone(appErrors.ErrValidation, "replies to replies are not allowed")
		}
	}

	comment := &models.RevisionComment{
		RevisionID:      revisionID,
		ParentCommentID: parentCommentID,
		UserID:          actor.UserID,
		Body:            cleaned,
	}
	if err := s.comments.Create(ctx, comment); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store comment")
	}
	return comment, nil
}

// List returns the revision's comments threaded one level deep, roots in
// chronological order with replies nested under them.
func (s *CommentService) List(ctx context.Context, revisionID string) ([]models.RevisionComment, error) {
	flat, err := s.comments.ListByRevision(ctx, revisionID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list comments")
	}

	roots := make([]models.RevisionComment, 0, len(flat))
	index := make(map[string]int)
	for _, c := range flat {
		if c.ParentCommentID == nil {
			roots = append(roots, c)
			index[c.ID] = len(roots) - 1
		}
	}
	for _, c := range flat {
		if c.ParentCommentID == nil {
			continue
		}
		if i, ok := index[*c.ParentCommentID]; ok {
			roots[i].Replies = append(roots[i].Replies, c)
		}
	}
	for i := range roots {
		if roots[i].IsDeleted {
			roots[i].Body = ""
		}
		for j := range roots[i].Replies {
			if roots[i].Replies[j].IsDeleted {
				roots[i].Replies[j].Body = ""
			}
		}
	}
	return roots, nil
}

// Delete soft-deletes a comment. Authors may delete their own comments,
// admins any.
func (s *CommentService) Delete(ctx context.Context, commentID string, actor *models.JWTClaims) error {
	comment, err := s.comments.GetByID(ctx, commentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "comment not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load comment")
	}
	if comment.UserID != actor.UserID && !actor.IsAdmin() {
		return appErrors.Clone(appErrors.ErrForbidden, "only the author or an admin may delete a comment")
	}
	if err := s.comments.SoftDelete(ctx, commentID); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete comment")
	}
	return nil
}

// Vote toggles the actor's vote on a comment and reports the new score.
func (s *CommentService) Vote(ctx context.Context, commentID string, actor *models.JWTClaims, direction models.VoteDirection) (*repository.VoteResult, error) {
	if !direction.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "vote direction must be up or down")
	}
	result, err := s.comments.ToggleVote(ctx, commentID, actor.UserID, direction)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "comment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to toggle vote")
	}
	return result, nil
}
