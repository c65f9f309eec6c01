package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/scorehub/scorehub-api/internal/models"
)

// ErrDuplicate reports a uniqueness-constraint violation to the caller.
var ErrDuplicate = errors.New("duplicate row")

const uniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && string(pqErr.Code) == uniqueViolation
}

const workColumns = `id, catalogue_id, title, composer, catalogue_number, source_count, available_formats,
has_reference_pdf, has_verified_sources, has_flagged_sources, latest_revision_at, created_at, updated_at`

// WorkRepository manages persistence for catalogued works.
type WorkRepository struct {
	db *sqlx.DB
}

// NewWorkRepository constructs a new repository.
func NewWorkRepository(db *sqlx.DB) *WorkRepository {
	return &WorkRepository{db: db}
}

// GetByID loads a work row.
func (r *WorkRepository) GetByID(ctx context.Context, id string) (*models.Work, error) {
	var work models.Work
	query := fmt.Sprintf("SELECT %s FROM works WHERE id = $1", workColumns)
	if err := r.db.GetContext(ctx, &work, query, id); err != nil {
		return nil, fmt.Errorf("get work: %w", err)
	}
	return &work, nil
}

// GetByCatalogueID loads a work by its external catalogue id.
func (r *WorkRepository) GetByCatalogueID(ctx context.Context, catalogueID string) (*models.Work, error) {
	var work models.Work
	query := fmt.Sprintf("SELECT %s FROM works WHERE catalogue_id = $1", workColumns)
	if err := r.db.GetContext(ctx, &work, query, catalogueID); err != nil {
		return nil, fmt.Errorf("get work by catalogue id: %w", err)
	}
	return &work, nil
}

// EnsureByCatalogueID returns the work for the catalogue id, creating it on
// first reference.
func (r *WorkRepository) EnsureByCatalogueID(ctx context.Context, catalogueID, title, composer, catalogueNumber string) (*models.Work, error) {
	work, err := r.GetByCatalogueID(ctx, catalogueID)
	if err == nil {
		return work, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}

	now := time.Now().UTC()
	created := &models.Work{
		ID:               uuid.NewString(),
		CatalogueID:      catalogueID,
		Title:            title,
		Composer:         composer,
		CatalogueNumber:  catalogueNumber,
		AvailableFormats: pq.StringArray{},
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	query := `INSERT INTO works (id, catalogue_id, title, composer, catalogue_number, available_formats, created_at, updated_at)
VALUES (:id, :catalogue_id, :title, :composer, :catalogue_number, :available_formats, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, created); err != nil {
		if isUniqueViolation(err) {
			// Lost a create race; the row exists now.
			return r.GetByCatalogueID(ctx, catalogueID)
		}
		return nil, fmt.Errorf("create work: %w", err)
	}
	return created, nil
}

// List returns a page of works ordered by composer and title, plus the
// total count.
func (r *WorkRepository) List(ctx context.Context, p models.Pagination) ([]models.Work, int, error) {
	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM works"); err != nil {
		return nil, 0, fmt.Errorf("count works: %w", err)
	}
	var works []models.Work
	query := fmt.Sprintf("SELECT %s FROM works ORDER BY composer, title LIMIT $1 OFFSET $2", workColumns)
	if err := r.db.SelectContext(ctx, &works, query, p.Limit, p.Offset()); err != nil {
		return nil, 0, fmt.Errorf("list works: %w", err)
	}
	return works, total, nil
}

// UpdateStats persists a recomputed aggregate snapshot.
func (r *WorkRepository) UpdateStats(ctx context.Context, workID string, stats models.WorkStats) error {
	query := `UPDATE works SET source_count = $2, available_formats = $3, has_reference_pdf = $4,
has_verified_sources = $5, has_flagged_sources = $6, latest_revision_at = $7, updated_at = $8
WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query,
		workID,
		stats.SourceCount,
		pq.Array(stats.AvailableFormats),
		stats.HasReferencePdf,
		stats.HasVerifiedSources,
		stats.HasFlaggedSources,
		stats.LatestRevisionAt,
		time.Now().UTC(),
	); err != nil {
		return fmt.Errorf("update work stats: %w", err)
	}
	return nil
}

// UpdateMetadata edits the cached catalogue fields.
func (r *WorkRepository) UpdateMetadata(ctx context.Context, workID, title, composer, catalogueNumber string) error {
	query := `UPDATE works SET title = $2, composer = $3, catalogue_number = $4, updated_at = $5 WHERE id = $1`
	res, err := r.db.ExecContext(ctx, query, workID, title, composer, catalogueNumber, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update work metadata: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// Delete removes a work row; used only by explicit admin purge.
func (r *WorkRepository) Delete(ctx context.Context, workID string) error {
	if _, err := r.db.ExecContext(ctx, "DELETE FROM works WHERE id = $1", workID); err != nil {
		return fmt.Errorf("delete work: %w", err)
	}
	return nil
}
