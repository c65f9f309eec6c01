package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/scorehub/scorehub-api/internal/models"
	"github.com/scorehub/scorehub-api/pkg/blob"
	appErrors "github.com/scorehub/scorehub-api/pkg/errors"
)

type searchIndexStub struct {
	upserts []models.WorkSummaryDocument
	removed []string
	err     error
}

func (s *searchIndexStub) UpsertWork(ctx context.Context, doc models.WorkSummaryDocument) error {
	if s.err != nil {
		return s.err
	}
	s.upserts = append(s.upserts, doc)
	return nil
}

func (s *searchIndexStub) RemoveWork(ctx context.Context, workID string) error {
	s.removed = append(s.removed, workID)
	return nil
}

func TestRecomputeWorkStatsFullRecalculation(t *testing.T) {
	works := newWorkStoreStub()
	sources := newSourceStoreStub()
	index := &searchIndexStub{}
	works.add(&models.Work{ID: "work-1", CatalogueID: "bwv-1", Title: "Cantata", Composer: "Bach"})

	older := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	newer := time.Date(2026, 6, 2, 10, 0, 0, 0, time.UTC)
	sources.add(&models.Source{
		ID: "src-1", WorkID: "work-1", Format: "musicxml", AdminVerified: true,
		LatestRevisionAt: &older,
		Derivatives: models.DerivativeArtifacts{
			Linearized: &blob.Locator{Container: "derived", Key: "a", ContentType: ContentTypeLMX},
		},
	})
	sources.add(&models.Source{
		ID: "src-2", WorkID: "work-1", Format: "pdf", SourceType: models.SourceTypeReferencePdf,
		AdminFlagged: true, LatestRevisionAt: &newer,
	})

	svc := NewAggregationService(works, sources, index, nil)
	stats, err := svc.RecomputeWorkStats(context.Background(), "work-1")
	require.NoError(t, err)

	require.Equal(t, 2, stats.SourceCount)
	require.Equal(t, []string{ContentTypePDF, ContentTypeMusicXML, ContentTypeLMX}, stats.AvailableFormats)
	require.True(t, stats.HasReferencePdf)
	require.True(t, stats.HasVerifiedSources)
	require.True(t, stats.HasFlaggedSources)
	require.Equal(t, newer, *stats.LatestRevisionAt)

	// Snapshot lands on the work row.
	require.Equal(t, *stats, works.stats["work-1"])

	require.Len(t, index.upserts, 1)
	require.Equal(t, "bwv-1", index.upserts[0].CatalogueID)
	require.Equal(t, *stats, index.upserts[0].Stats)
}

func TestAvailableFormatsAreContentTypes(t *testing.T) {
	stats := computeWorkStats("work-1", []models.Source{
		{Format: "mscz"}, {Format: "musicxml"}, {Format: "xml"},
	})
	require.Equal(t, []string{ContentTypeMusicXML, "application/x-musescore"}, stats.AvailableFormats)
}

func TestRecomputeWorkStatsSelfHealsToEmpty(t *testing.T) {
	works := newWorkStoreStub()
	sources := newSourceStoreStub()
	works.add(&models.Work{ID: "work-1", SourceCount: 7, HasReferencePdf: true})

	svc := NewAggregationService(works, sources, nil, nil)
	stats, err := svc.RecomputeWorkStats(context.Background(), "work-1")
	require.NoError(t, err)
	require.Equal(t, 0, stats.SourceCount)
	require.False(t, stats.HasReferencePdf)
	require.Empty(t, stats.AvailableFormats)
	require.False(t, works.works["work-1"].HasReferencePdf)
}

func TestRecomputeWorkStatsIndexFailureIsSwallowed(t *testing.T) {
	works := newWorkStoreStub()
	sources := newSourceStoreStub()
	works.add(&models.Work{ID: "work-1"})
	index := &searchIndexStub{err: errors.New("redis down")}

	svc := NewAggregationService(works, sources, index, nil)
	_, err := svc.RecomputeWorkStats(context.Background(), "work-1")
	require.NoError(t, err)
}

func TestRecomputeWorkStatsUnknownWork(t *testing.T) {
	svc := NewAggregationService(newWorkStoreStub(), newSourceStoreStub(), nil, nil)

	_, err := svc.RecomputeWorkStats(context.Background(), "missing")
	require.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}
