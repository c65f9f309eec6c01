package service

import (
	"context"
	"database/sql"
	"errors"

	"go.uber.org/zap"

	"github.com/scorehub/scorehub-api/internal/models"
	appErrors "github.com/scorehub/scorehub-api/pkg/errors"
)

type moderationSourceStore interface {
	GetByID(ctx context.Context, id string) (*models.Source, error)
	ListByWork(ctx context.Context, workID string) ([]models.Source, error)
	SetVerified(ctx context.Context, sourceID string, verified bool, actorID string) error
	SetFlagged(ctx context.Context, sourceID, actorID, reason string) error
	ClearFlag(ctx context.Context, sourceID string) error
}

// SourceService serves source reads and the admin moderation toggles. Every
// toggle feeds the aggregation engine so the work's flag booleans track
// reality.
type SourceService struct {
	sources moderationSourceStore
	stats   statsRecomputer
	logger  *zap.Logger
}

// NewSourceService constructs the source service.
func NewSourceService(sources moderationSourceStore, stats statsRecomputer, logger *zap.Logger) *SourceService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SourceService{sources: sources, stats: stats, logger: logger}
}

// Get loads a source.
func (s *SourceService) Get(ctx context.Context, sourceID string) (*models.Source, error) {
	source, err := s.sources.GetByID(ctx, sourceID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "source not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load source")
	}
	return source, nil
}

// ListByWork returns every source of a work.
func (s *SourceService) ListByWork(ctx context.Context, workID string) ([]models.Source, error) {
	sources, err := s.sources.ListByWork(ctx, workID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list sources")
	}
	return sources, nil
}

// SetVerified toggles the admin verification mark.
func (s *SourceService) SetVerified(ctx context.Context, sourceID string, verified bool, actor *models.JWTClaims) (*models.Source, error) {
	if err := Authorize(actor, ActionModerateSource, PolicyInput{}); err != nil {
		return nil, err
	}
	if err := s.sources.SetVerified(ctx, sourceID, verified, actor.UserID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "source not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update verification")
	}
	return s.afterModeration(ctx, sourceID)
}

// Flag raises the moderation flag with a required reason.
func (s *SourceService) Flag(ctx context.Context, sourceID, reason string, actor *models.JWTClaims) (*models.Source, error) {
	if err := Authorize(actor, ActionModerateSource, PolicyInput{}); err != nil {
		return nil, err
	}
	if reason == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "flag reason is required")
	}
	if err := s.sources.SetFlagged(ctx, sourceID, actor.UserID, reason); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "source not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to flag source")
	}
	return s.afterModeration(ctx, sourceID)
}

// ClearFlag removes the moderation flag.
func (s *SourceService) ClearFlag(ctx context.Context, sourceID string, actor *models.JWTClaims) (*models.Source, error) {
	if err := Authorize(actor, ActionModerateSource, PolicyInput{}); err != nil {
		return nil, err
	}
	if err := s.sources.ClearFlag(ctx, sourceID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "source not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to clear source flag")
	}
	return s.afterModeration(ctx, sourceID)
}

func (s *SourceService) afterModeration(ctx context.Context, sourceID string) (*models.Source, error) {
	source, err := s.sources.GetByID(ctx, sourceID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to reload source")
	}
	if _, err := s.stats.RecomputeWorkStats(ctx, source.WorkID); err != nil {
		s.logger.Sugar().Warnw("work stats recompute failed after moderation", "work_id", source.WorkID, "error", err)
	}
	return source, nil
}
