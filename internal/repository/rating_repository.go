package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/scorehub/scorehub-api/internal/models"
)

// RatingRepository manages persistence for revision ratings.
type RatingRepository struct {
	db *sqlx.DB
}

// NewRatingRepository constructs a new repository.
func NewRatingRepository(db *sqlx.DB) *RatingRepository {
	return &RatingRepository{db: db}
}

// Insert stores a rating. A second rating by the same (revision, user) pair
// violates the unique constraint and surfaces as ErrDuplicate.
func (r *RatingRepository) Insert(ctx context.Context, rating *models.RevisionRating) error {
	if rating.ID == "" {
		rating.ID = uuid.NewString()
	}
	if rating.CreatedAt.IsZero() {
		rating.CreatedAt = time.Now().UTC()
	}
	query := `INSERT INTO revision_ratings (id, revision_id, user_id, stars, is_admin, created_at)
VALUES (:id, :revision_id, :user_id, :stars, :is_admin, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, rating); err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("insert rating: %w", err)
	}
	return nil
}

type ratingGroup struct {
	Stars   int  `db:"stars"`
	IsAdmin bool `db:"is_admin"`
	Count   int  `db:"count"`
}

// Histogram groups stored ratings by (stars, is_admin).
func (r *RatingRepository) Histogram(ctx context.Context, revisionID string) ([]models.RatingBucket, int, error) {
	var groups []ratingGroup
	query := `SELECT stars, is_admin, COUNT(*) AS count FROM revision_ratings WHERE revision_id = $1 GROUP BY stars, is_admin`
	if err := r.db.SelectContext(ctx, &groups, query, revisionID); err != nil {
		return nil, 0, fmt.Errorf("rating histogram: %w", err)
	}

	buckets := make([]models.RatingBucket, 5)
	for i := range buckets {
		buckets[i].Stars = i + 1
	}
	total := 0
	for _, g := range groups {
		if g.Stars < 1 || g.Stars > 5 {
			continue
		}
		if g.IsAdmin {
			buckets[g.Stars-1].Admin += g.Count
		} else {
			buckets[g.Stars-1].NonAdmin += g.Count
		}
		total += g.Count
	}
	return buckets, total, nil
}
