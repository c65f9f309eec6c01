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

const diffColumns = `id, source_id, from_revision, to_revision, report, html, pdf, created_at`

// DiffRepository caches inter-revision diff artifacts keyed by the ordered
// revision pair.
type DiffRepository struct {
	db *sqlx.DB
}

// NewDiffRepository constructs a new repository.
func NewDiffRepository(db *sqlx.DB) *DiffRepository {
	return &DiffRepository{db: db}
}

// GetByPair returns the cached diff for (from, to), or nil when none exists.
func (r *DiffRepository) GetByPair(ctx context.Context, fromRevision, toRevision string) (*models.RevisionDiff, error) {
	var diff models.RevisionDiff
	query := fmt.Sprintf("SELECT %s FROM revision_diffs WHERE from_revision = $1 AND to_revision = $2", diffColumns)
	if err := r.db.GetContext(ctx, &diff, query, fromRevision, toRevision); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get revision diff: %w", err)
	}
	return &diff, nil
}

// Create inserts a diff row. A concurrent writer winning the race is not an
// error; the caller re-reads the cached row.
func (r *DiffRepository) Create(ctx context.Context, diff *models.RevisionDiff) error {
	if diff.ID == "" {
		diff.ID = uuid.NewString()
	}
	if diff.CreatedAt.IsZero() {
		diff.CreatedAt = time.Now().UTC()
	}
	query := `INSERT INTO revision_diffs (id, source_id, from_revision, to_revision, report, html, pdf, created_at)
VALUES (:id, :source_id, :from_revision, :to_revision, :report, :html, :pdf, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, diff); err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("create revision diff: %w", err)
	}
	return nil
}

// ListBySource returns every cached diff of a source; used when collecting
// locators for cascade deletion.
func (r *DiffRepository) ListBySource(ctx context.Context, sourceID string) ([]models.RevisionDiff, error) {
	var diffs []models.RevisionDiff
	query := fmt.Sprintf("SELECT %s FROM revision_diffs WHERE source_id = $1", diffColumns)
	if err := r.db.SelectContext(ctx, &diffs, query, sourceID); err != nil {
		return nil, fmt.Errorf("list revision diffs: %w", err)
	}
	return diffs, nil
}

// DeleteBySource removes all diff rows of a source.
func (r *DiffRepository) DeleteBySource(ctx context.Context, sourceID string) error {
	if _, err := r.db.ExecContext(ctx, "DELETE FROM revision_diffs WHERE source_id = $1", sourceID); err != nil {
		return fmt.Errorf("delete revision diffs: %w", err)
	}
	return nil
}
