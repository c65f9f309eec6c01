package service

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/scorehub/scorehub-api/internal/models"
	appErrors "github.com/scorehub/scorehub-api/pkg/errors"
)

func newWorkFixture() (*WorkService, *workStoreStub, *sourceStoreStub, *searchIndexStub) {
	works := newWorkStoreStub()
	sources := newSourceStoreStub()
	index := &searchIndexStub{}
	svc := NewWorkService(works, sources, index, nil)
	return svc, works, sources, index
}

func TestWorkGetFallsBackToCatalogueID(t *testing.T) {
	svc, works, _, _ := newWorkFixture()
	works.add(&models.Work{ID: "work-1", CatalogueID: "bwv-1", Title: "Cantata"})

	byID, err := svc.Get(context.Background(), "work-1")
	require.NoError(t, err)
	require.Equal(t, "bwv-1", byID.CatalogueID)

	byCatalogue, err := svc.Get(context.Background(), "bwv-1")
	require.NoError(t, err)
	require.Equal(t, "work-1", byCatalogue.ID)

	_, err = svc.Get(context.Background(), "missing")
	require.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestWorkUpdateMetadataIsAdminOnly(t *testing.T) {
	svc, works, _, _ := newWorkFixture()
	works.add(&models.Work{ID: "work-1", CatalogueID: "bwv-1", Title: "Old"})

	err := svc.UpdateMetadata(context.Background(), "work-1", "New", "Bach", "BWV 1", contributorClaims("user-1"))
	require.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)

	require.NoError(t, svc.UpdateMetadata(context.Background(), "work-1", "New", "Bach", "BWV 1", adminClaims("admin-1")))
	work, err := svc.Get(context.Background(), "work-1")
	require.NoError(t, err)
	require.Equal(t, "New", work.Title)
	require.Equal(t, "BWV 1", work.CatalogueNumber)
}

func TestWorkPurgeRemovesEmptyWork(t *testing.T) {
	svc, works, _, index := newWorkFixture()
	works.add(&models.Work{ID: "work-1", CatalogueID: "bwv-1"})

	require.NoError(t, svc.Purge(context.Background(), "bwv-1", adminClaims("admin-1")))

	_, err := svc.Get(context.Background(), "work-1")
	require.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
	require.Equal(t, []string{"work-1"}, index.removed)
}

func TestWorkPurgeRefusesWhenSourcesRemain(t *testing.T) {
	svc, works, sources, index := newWorkFixture()
	works.add(&models.Work{ID: "work-1", CatalogueID: "bwv-1"})
	sources.add(&models.Source{ID: "src-1", WorkID: "work-1"})

	err := svc.Purge(context.Background(), "work-1", adminClaims("admin-1"))
	require.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
	require.Empty(t, index.removed)

	work, err := svc.Get(context.Background(), "work-1")
	require.NoError(t, err)
	require.Equal(t, "work-1", work.ID)
}

func TestWorkPurgeIsAdminOnly(t *testing.T) {
	svc, works, _, _ := newWorkFixture()
	works.add(&models.Work{ID: "work-1", CatalogueID: "bwv-1"})

	err := svc.Purge(context.Background(), "work-1", contributorClaims("user-1"))
	require.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestWorkExportCSVListsSources(t *testing.T) {
	svc, works, sources, _ := newWorkFixture()
	works.add(&models.Work{ID: "work-1", CatalogueID: "bwv-1", Title: "Cantata", Composer: "Bach"})
	sources.add(&models.Source{
		ID: "src-1", WorkID: "work-1", Label: "urtext",
		SourceType: models.SourceTypeTranscription, Format: "musicxml", AdminVerified: true,
	})

	export, err := svc.Export(context.Background(), "work-1", WorkExportCSV)
	require.NoError(t, err)
	require.Equal(t, "work-bwv-1-sources.csv", export.Filename)
	require.Equal(t, "text/csv", export.ContentType)

	body := string(export.Data)
	require.True(t, strings.Contains(body, "urtext"))
	require.True(t, strings.Contains(body, "musicxml"))
}

func TestWorkExportRejectsUnknownFormat(t *testing.T) {
	svc, works, _, _ := newWorkFixture()
	works.add(&models.Work{ID: "work-1", CatalogueID: "bwv-1"})

	_, err := svc.Export(context.Background(), "work-1", WorkExportFormat("xlsx"))
	require.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}
