package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/scorehub/scorehub-api/internal/models"
)

const revisionColumns = `id, source_id, sequence_number, branch, created_by, created_at, raw_storage,
derivatives, validation, pipeline_error, status, approval_owner_id, decided_at, decided_by, decision`

// RevisionRepository manages persistence for source revisions.
type RevisionRepository struct {
	db *sqlx.DB
}

// NewRevisionRepository constructs a new repository.
func NewRevisionRepository(db *sqlx.DB) *RevisionRepository {
	return &RevisionRepository{db: db}
}

// Create inserts a new revision. The sequence number must already be
// allocated; the unique constraint on (source_id, sequence_number) backstops
// the allocator.
func (r *RevisionRepository) Create(ctx context.Context, revision *models.SourceRevision) error {
	if revision.ID == "" {
		revision.ID = uuid.NewString()
	}
	if revision.CreatedAt.IsZero() {
		revision.CreatedAt = time.Now().UTC()
	}
	if revision.Branch == "" {
		revision.Branch = models.TrunkBranch
	}
	if revision.Validation.Status == "" {
		revision.Validation.Status = models.ValidationPending
	}
	query := `INSERT INTO source_revisions (id, source_id, sequence_number, branch, created_by, created_at, raw_storage, derivatives, validation, status, approval_owner_id)
VALUES (:id, :source_id, :sequence_number, :branch, :created_by, :created_at, :raw_storage, :derivatives, :validation, :status, :approval_owner_id)`
	if _, err := r.db.NamedExecContext(ctx, query, revision); err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("create revision: %w", err)
	}
	return nil
}

// GetByID loads a revision row.
func (r *RevisionRepository) GetByID(ctx context.Context, id string) (*models.SourceRevision, error) {
	var revision models.SourceRevision
	query := fmt.Sprintf("SELECT %s FROM source_revisions WHERE id = $1", revisionColumns)
	if err := r.db.GetContext(ctx, &revision, query, id); err != nil {
		return nil, fmt.Errorf("get revision: %w", err)
	}
	return &revision, nil
}

// ListBySource returns all revisions of a source, newest first.
func (r *RevisionRepository) ListBySource(ctx context.Context, sourceID string) ([]models.SourceRevision, error) {
	var revisions []models.SourceRevision
	query := fmt.Sprintf("SELECT %s FROM source_revisions WHERE source_id = $1 ORDER BY sequence_number DESC", revisionColumns)
	if err := r.db.SelectContext(ctx, &revisions, query, sourceID); err != nil {
		return nil, fmt.Errorf("list revisions: %w", err)
	}
	return revisions, nil
}

// PreviousOnBranch returns the newest revision on the branch with a lower
// sequence number, or nil when the given revision is the branch's first.
func (r *RevisionRepository) PreviousOnBranch(ctx context.Context, sourceID, branch string, beforeSequence int) (*models.SourceRevision, error) {
	var revisions []models.SourceRevision
	query := fmt.Sprintf(`SELECT %s FROM source_revisions
WHERE source_id = $1 AND branch = $2 AND sequence_number < $3
ORDER BY sequence_number DESC LIMIT 1`, revisionColumns)
	if err := r.db.SelectContext(ctx, &revisions, query, sourceID, branch, beforeSequence); err != nil {
		return nil, fmt.Errorf("previous revision on branch: %w", err)
	}
	if len(revisions) == 0 {
		return nil, nil
	}
	return &revisions[0], nil
}

// UpdateDecision persists an approval-state transition.
func (r *RevisionRepository) UpdateDecision(ctx context.Context, revisionID string, status models.RevisionStatus, decision models.ApprovalDecision, decidedBy string, decidedAt time.Time) error {
	query := `UPDATE source_revisions SET status = $2, decision = $3, decided_by = $4, decided_at = $5 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, revisionID, status, decision, decidedBy, decidedAt); err != nil {
		return fmt.Errorf("update revision decision: %w", err)
	}
	return nil
}

// UpdateDerivatives replaces the derivative set and validation snapshot.
// Called by the pipeline after each completed stage.
func (r *RevisionRepository) UpdateDerivatives(ctx context.Context, revisionID string, derivatives models.DerivativeArtifacts, validation models.ValidationState) error {
	query := `UPDATE source_revisions SET derivatives = $2, validation = $3 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, revisionID, derivatives, validation); err != nil {
		return fmt.Errorf("update revision derivatives: %w", err)
	}
	return nil
}

// SetPipelineError records a stage failure. Completed derivatives are left
// untouched.
func (r *RevisionRepository) SetPipelineError(ctx context.Context, revisionID, message string) error {
	query := `UPDATE source_revisions SET pipeline_error = $2 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, revisionID, message); err != nil {
		return fmt.Errorf("set revision pipeline error: %w", err)
	}
	return nil
}

// DistinctCreators lists the distinct non-system creator ids across the
// source's revisions; feeds the sole-creator delete rule.
func (r *RevisionRepository) DistinctCreators(ctx context.Context, sourceID string) ([]string, error) {
	var creators []string
	query := `SELECT DISTINCT created_by FROM source_revisions WHERE source_id = $1 AND created_by <> $2`
	if err := r.db.SelectContext(ctx, &creators, query, sourceID, models.SystemUserID); err != nil {
		return nil, fmt.Errorf("distinct revision creators: %w", err)
	}
	return creators, nil
}

// DeleteBySource removes all revision rows of a source.
func (r *RevisionRepository) DeleteBySource(ctx context.Context, sourceID string) error {
	if _, err := r.db.ExecContext(ctx, "DELETE FROM source_revisions WHERE source_id = $1", sourceID); err != nil {
		return fmt.Errorf("delete revisions: %w", err)
	}
	return nil
}
