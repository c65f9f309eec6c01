package service

import (
	"context"
	"database/sql"
	"errors"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/scorehub/scorehub-api/internal/models"
	appErrors "github.com/scorehub/scorehub-api/pkg/errors"
)

type aggregationWorkStore interface {
	GetByID(ctx context.Context, id string) (*models.Work, error)
	UpdateStats(ctx context.Context, workID string, stats models.WorkStats) error
}

type aggregationSourceStore interface {
	ListByWork(ctx context.Context, workID string) ([]models.Source, error)
}

// AggregationService recomputes work-level aggregates. Every recompute is a
// full recalculation from the work's current sources; nothing is incremented
// in place, so the snapshot self-heals after partial failures.
type AggregationService struct {
	works   aggregationWorkStore
	sources aggregationSourceStore
	index   SearchIndex
	logger  *zap.Logger
}

// NewAggregationService constructs the aggregation engine.
func NewAggregationService(works aggregationWorkStore, sources aggregationSourceStore, index SearchIndex, logger *zap.Logger) *AggregationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AggregationService{works: works, sources: sources, index: index, logger: logger}
}

// RecomputeWorkStats rebuilds the work's aggregate snapshot, persists it,
// and pushes the summary to the search index. Index failures are logged and
// swallowed: search lags behind rather than failing the triggering change.
func (s *AggregationService) RecomputeWorkStats(ctx context.Context, workID string) (*models.WorkStats, error) {
	work, err := s.works.GetByID(ctx, workID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "work not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load work")
	}

	sources, err := s.sources.ListByWork(ctx, workID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list sources")
	}

	stats := computeWorkStats(workID, sources)
	if err := s.works.UpdateStats(ctx, workID, stats); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to persist work stats")
	}

	if s.index != nil {
		doc := models.WorkSummaryDocument{
			WorkID:          work.ID,
			CatalogueID:     work.CatalogueID,
			Title:           work.Title,
			Composer:        work.Composer,
			CatalogueNumber: work.CatalogueNumber,
			Stats:           stats,
			IndexedAt:       time.Now().UTC(),
		}
		if err := s.index.UpsertWork(ctx, doc); err != nil {
			s.logger.Sugar().Warnw("search index push failed", "work_id", workID, "error", err)
		}
	}
	return &stats, nil
}

func computeWorkStats(workID string, sources []models.Source) models.WorkStats {
	stats := models.WorkStats{WorkID: workID, SourceCount: len(sources)}

	formats := make(map[string]struct{})
	for i := range sources {
		src := &sources[i]
		// availableFormats is a content-type set; raw extension strings
		// are resolved the same way upload storage resolves them.
		if src.Format != "" {
			formats[contentTypeForFormat(src.Format)] = struct{}{}
		}
		for _, ct := range src.Derivatives.ContentTypes() {
			formats[ct] = struct{}{}
		}
		if src.IsReferencePdf() {
			stats.HasReferencePdf = true
		}
		if src.AdminVerified {
			stats.HasVerifiedSources = true
		}
		if src.AdminFlagged {
			stats.HasFlaggedSources = true
		}
		if src.LatestRevisionAt != nil {
			if stats.LatestRevisionAt == nil || src.LatestRevisionAt.After(*stats.LatestRevisionAt) {
				stats.LatestRevisionAt = src.LatestRevisionAt
			}
		}
	}

	stats.AvailableFormats = make([]string, 0, len(formats))
	for f := range formats {
		stats.AvailableFormats = append(stats.AvailableFormats, f)
	}
	sort.Strings(stats.AvailableFormats)
	return stats
}
