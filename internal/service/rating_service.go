package service

import (
	"context"
	"database/sql"
	"errors"

	"go.uber.org/zap"

	"github.com/scorehub/scorehub-api/internal/models"
	"github.com/scorehub/scorehub-api/internal/repository"
	appErrors "github.com/scorehub/scorehub-api/pkg/errors"
)

type ratingStore interface {
	Insert(ctx context.Context, rating *models.RevisionRating) error
	Histogram(ctx context.Context, revisionID string) ([]models.RatingBucket, int, error)
}

type revisionLookup interface {
	GetByID(ctx context.Context, id string) (*models.SourceRevision, error)
}

// RatingService records star ratings and serves histograms. Ratings are
// insert-only; a user rates a revision at most once and the rater's admin
// flag is frozen at submission time.
type RatingService struct {
	ratings   ratingStore
	revisions revisionLookup
	logger    *zap.Logger
}

// NewRatingService constructs the rating service.
func NewRatingService(ratings ratingStore, revisions revisionLookup, logger *zap.Logger) *RatingService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RatingService{ratings: ratings, revisions: revisions, logger: logger}
}

// Rate submits a 1-5 star rating on behalf of the actor.
func (s *RatingService) Rate(ctx context.Context, revisionID string, actor *models.JWTClaims, stars int) (*models.RevisionRating, error) {
	if stars < 1 || stars > 5 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "stars must be between 1 and 5")
	}
	if _, err := s.revisions.GetByID(ctx, revisionID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "revision not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load revision")
	}

	rating := &models.RevisionRating{
		RevisionID: revisionID,
		UserID:     actor.UserID,
		Stars:      stars,
		IsAdmin:    actor.IsAdmin(),
	}
	if err := s.ratings.Insert(ctx, rating); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "revision already rated by this user")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store rating")
	}
	return rating, nil
}

// Histogram returns the dense per-star breakdown for a revision.
func (s *RatingService) Histogram(ctx context.Context, revisionID string) (*models.RatingHistogram, error) {
	buckets, total, err := s.ratings.Histogram(ctx, revisionID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load rating histogram")
	}
	return &models.RatingHistogram{RevisionID: revisionID, Total: total, Buckets: buckets}, nil
}
