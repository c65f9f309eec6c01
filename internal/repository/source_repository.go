package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/scorehub/scorehub-api/internal/models"
)

const sourceColumns = `id, work_id, label, source_type, format, original_filename, is_primary, uploaded_by,
admin_verified, verified_by, verified_at, admin_flagged, flagged_by, flagged_at, flag_reason,
revision_seq, latest_revision_id, latest_revision_at, derivatives, created_at, updated_at`

// SourceRepository manages persistence for sources.
type SourceRepository struct {
	db *sqlx.DB
}

// NewSourceRepository constructs a new repository.
func NewSourceRepository(db *sqlx.DB) *SourceRepository {
	return &SourceRepository{db: db}
}

// Create inserts a new source.
func (r *SourceRepository) Create(ctx context.Context, source *models.Source) error {
	if source.ID == "" {
		source.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if source.CreatedAt.IsZero() {
		source.CreatedAt = now
	}
	source.UpdatedAt = now
	query := `INSERT INTO sources (id, work_id, label, source_type, format, original_filename, is_primary, uploaded_by, derivatives, created_at, updated_at)
VALUES (:id, :work_id, :label, :source_type, :format, :original_filename, :is_primary, :uploaded_by, :derivatives, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, source); err != nil {
		return fmt.Errorf("create source: %w", err)
	}
	return nil
}

// GetByID loads a source row.
func (r *SourceRepository) GetByID(ctx context.Context, id string) (*models.Source, error) {
	var source models.Source
	query := fmt.Sprintf("SELECT %s FROM sources WHERE id = $1", sourceColumns)
	if err := r.db.GetContext(ctx, &source, query, id); err != nil {
		return nil, fmt.Errorf("get source: %w", err)
	}
	return &source, nil
}

// ListByWork returns every source of a work.
func (r *SourceRepository) ListByWork(ctx context.Context, workID string) ([]models.Source, error) {
	var sources []models.Source
	query := fmt.Sprintf("SELECT %s FROM sources WHERE work_id = $1 ORDER BY created_at", sourceColumns)
	if err := r.db.SelectContext(ctx, &sources, query, workID); err != nil {
		return nil, fmt.Errorf("list sources: %w", err)
	}
	return sources, nil
}

// AllocateSequence bumps the source's revision counter and returns the new
// value. The single UPDATE..RETURNING statement is atomic, so concurrent
// uploads never observe the same number.
func (r *SourceRepository) AllocateSequence(ctx context.Context, sourceID string) (int, error) {
	var seq int
	query := `UPDATE sources SET revision_seq = revision_seq + 1, updated_at = $2 WHERE id = $1 RETURNING revision_seq`
	if err := r.db.QueryRowxContext(ctx, query, sourceID, time.Now().UTC()).Scan(&seq); err != nil {
		if err == sql.ErrNoRows {
			return 0, sql.ErrNoRows
		}
		return 0, fmt.Errorf("allocate revision sequence: %w", err)
	}
	return seq, nil
}

// UpdateLatest promotes a revision to the source's latest pointer and
// mirrors its derivatives onto the source row.
func (r *SourceRepository) UpdateLatest(ctx context.Context, sourceID, revisionID string, at time.Time, derivatives models.DerivativeArtifacts) error {
	query := `UPDATE sources SET latest_revision_id = $2, latest_revision_at = $3, derivatives = $4, updated_at = $5 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, sourceID, revisionID, at, derivatives, time.Now().UTC()); err != nil {
		return fmt.Errorf("update source latest revision: %w", err)
	}
	return nil
}

// SetVerified toggles the admin verification mark with actor and timestamp.
func (r *SourceRepository) SetVerified(ctx context.Context, sourceID string, verified bool, actorID string) error {
	now := time.Now().UTC()
	var query string
	var args []interface{}
	if verified {
		query = `UPDATE sources SET admin_verified = TRUE, verified_by = $2, verified_at = $3, updated_at = $3 WHERE id = $1`
		args = []interface{}{sourceID, actorID, now}
	} else {
		query = `UPDATE sources SET admin_verified = FALSE, verified_by = NULL, verified_at = NULL, updated_at = $2 WHERE id = $1`
		args = []interface{}{sourceID, now}
	}
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("set source verified: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// SetFlagged raises the moderation flag with actor, timestamp and reason.
func (r *SourceRepository) SetFlagged(ctx context.Context, sourceID, actorID, reason string) error {
	now := time.Now().UTC()
	query := `UPDATE sources SET admin_flagged = TRUE, flagged_by = $2, flagged_at = $3, flag_reason = $4, updated_at = $3 WHERE id = $1`
	res, err := r.db.ExecContext(ctx, query, sourceID, actorID, now, reason)
	if err != nil {
		return fmt.Errorf("flag source: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// ClearFlag removes the moderation flag.
func (r *SourceRepository) ClearFlag(ctx context.Context, sourceID string) error {
	query := `UPDATE sources SET admin_flagged = FALSE, flagged_by = NULL, flagged_at = NULL, flag_reason = NULL, updated_at = $2 WHERE id = $1`
	res, err := r.db.ExecContext(ctx, query, sourceID, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("clear source flag: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// Delete removes a source row. Revisions cascade at the schema level.
func (r *SourceRepository) Delete(ctx context.Context, sourceID string) error {
	if _, err := r.db.ExecContext(ctx, "DELETE FROM sources WHERE id = $1", sourceID); err != nil {
		return fmt.Errorf("delete source: %w", err)
	}
	return nil
}
