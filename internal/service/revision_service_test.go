package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/scorehub/scorehub-api/internal/dto"
	"github.com/scorehub/scorehub-api/internal/models"
	"github.com/scorehub/scorehub-api/pkg/blob"
	appErrors "github.com/scorehub/scorehub-api/pkg/errors"
)

type ledgerFixture struct {
	works     *workStoreStub
	sources   *sourceStoreStub
	revisions *revisionStoreStub
	diffs     *diffStoreStub
	blobs     *blob.MemoryStore
	stats     *statsStub
	queue     *queueStub
	branches  *branchRepoStub
	notifier  *notifierStub
	service   *RevisionService
}

func newLedgerFixture() *ledgerFixture {
	f := &ledgerFixture{
		works:     newWorkStoreStub(),
		sources:   newSourceStoreStub(),
		revisions: newRevisionStoreStub(),
		diffs:     newDiffStoreStub(),
		blobs:     blob.NewMemoryStore(),
		stats:     &statsStub{},
		queue:     &queueStub{},
		branches:  &branchRepoStub{},
		notifier:  &notifierStub{},
	}
	f.service = NewRevisionService(
		f.works, f.sources, f.revisions, f.diffs, f.blobs,
		f.stats, f.queue, f.branches, f.notifier, nil,
		RevisionServiceConfig{RawContainer: "raw"},
	)
	return f
}

func TestCreateSourceTrunkUploadIsAutoApproved(t *testing.T) {
	f := newLedgerFixture()

	resp, err := f.service.CreateSource(context.Background(), dto.CreateSourceRequest{
		CatalogueID:   "imslp-123",
		Title:         "Nocturne",
		Composer:      "Chopin",
		Label:         "Urtext",
		CorrelationID: "corr-1",
	}, "nocturne.mscz", []byte("score bytes"), contributorClaims("user-1"))
	require.NoError(t, err)
	require.Equal(t, 1, resp.SequenceNumber)
	require.Equal(t, models.TrunkBranch, resp.Branch)
	require.Equal(t, string(models.RevisionApproved), resp.Status)

	rev, err := f.revisions.GetByID(context.Background(), resp.RevisionID)
	require.NoError(t, err)
	require.Equal(t, "user-1", rev.CreatedBy)
	require.NotEmpty(t, rev.RawStorage.Checksum)

	source, err := f.sources.GetByID(context.Background(), resp.SourceID)
	require.NoError(t, err)
	require.NotNil(t, source.LatestRevisionID)
	require.Equal(t, resp.RevisionID, *source.LatestRevisionID)

	require.Len(t, f.queue.jobs, 1)
	require.Equal(t, PipelineJobType, f.queue.jobs[0].Type)
	require.Equal(t, "corr-1", f.queue.jobs[0].CorrelationID)
	require.Equal(t, []string{resp.WorkID}, f.stats.calls)
	require.Equal(t, 1, f.blobs.Len())
}

func TestCreateRevisionByOtherUserIsPending(t *testing.T) {
	f := newLedgerFixture()
	f.works.add(&models.Work{ID: "work-1", CatalogueID: "imslp-1"})
	f.sources.add(&models.Source{ID: "src-1", WorkID: "work-1", UploadedBy: "user-1", Format: "mscz"})

	resp, err := f.service.CreateRevision(context.Background(), "src-1", dto.CreateRevisionRequest{},
		"edit.mscz", []byte("edited"), contributorClaims("user-2"))
	require.NoError(t, err)
	require.Equal(t, string(models.RevisionPendingApproval), resp.Status)

	rev, err := f.revisions.GetByID(context.Background(), resp.RevisionID)
	require.NoError(t, err)
	require.NotNil(t, rev.ApprovalOwnerID)
	require.Equal(t, "user-1", *rev.ApprovalOwnerID)

	// Pending revisions never move the latest pointer.
	source, err := f.sources.GetByID(context.Background(), "src-1")
	require.NoError(t, err)
	require.Nil(t, source.LatestRevisionID)
}

func TestSequenceNumbersAreGapless(t *testing.T) {
	f := newLedgerFixture()
	f.works.add(&models.Work{ID: "work-1"})
	f.sources.add(&models.Source{ID: "src-1", WorkID: "work-1", UploadedBy: "user-1"})

	for want := 1; want <= 3; want++ {
		resp, err := f.service.CreateRevision(context.Background(), "src-1", dto.CreateRevisionRequest{},
			"v.musicxml", []byte("x"), contributorClaims("user-1"))
		require.NoError(t, err)
		require.Equal(t, want, resp.SequenceNumber)
	}
}

func TestApproveByOwnerPromotesAndNotifies(t *testing.T) {
	f := newLedgerFixture()
	f.works.add(&models.Work{ID: "work-1"})
	f.sources.add(&models.Source{ID: "src-1", WorkID: "work-1", UploadedBy: "owner"})
	owner := "owner"
	f.revisions.add(&models.SourceRevision{
		ID: "rev-1", SourceID: "src-1", SequenceNumber: 1, Branch: models.TrunkBranch,
		CreatedBy: "user-2", Status: models.RevisionPendingApproval, ApprovalOwnerID: &owner,
	})

	rev, err := f.service.Approve(context.Background(), "work-1", "src-1", "rev-1", contributorClaims("owner"))
	require.NoError(t, err)
	require.Equal(t, models.RevisionApproved, rev.Status)

	source, err := f.sources.GetByID(context.Background(), "src-1")
	require.NoError(t, err)
	require.NotNil(t, source.LatestRevisionID)
	require.Equal(t, "rev-1", *source.LatestRevisionID)
	require.Equal(t, []string{"work-1"}, f.stats.calls)
	require.Equal(t, []string{EventRevisionApproved}, f.notifier.events)
}

func TestApproveIsIdempotent(t *testing.T) {
	f := newLedgerFixture()
	f.works.add(&models.Work{ID: "work-1"})
	f.sources.add(&models.Source{ID: "src-1", WorkID: "work-1", UploadedBy: "owner"})
	owner := "owner"
	f.revisions.add(&models.SourceRevision{
		ID: "rev-1", SourceID: "src-1", SequenceNumber: 1,
		CreatedBy: "user-2", Status: models.RevisionPendingApproval, ApprovalOwnerID: &owner,
	})

	_, err := f.service.Approve(context.Background(), "work-1", "src-1", "rev-1", adminClaims("admin"))
	require.NoError(t, err)
	_, err = f.service.Approve(context.Background(), "work-1", "src-1", "rev-1", adminClaims("admin"))
	require.NoError(t, err)

	// One promotion, one recompute, one notification.
	require.Equal(t, []string{"work-1"}, f.stats.calls)
	require.Len(t, f.notifier.events, 1)
}

func TestApproveAfterRejectConflicts(t *testing.T) {
	f := newLedgerFixture()
	f.sources.add(&models.Source{ID: "src-1", WorkID: "work-1", UploadedBy: "owner"})
	owner := "owner"
	f.revisions.add(&models.SourceRevision{
		ID: "rev-1", SourceID: "src-1", SequenceNumber: 1,
		CreatedBy: "user-2", Status: models.RevisionRejected, ApprovalOwnerID: &owner,
	})

	_, err := f.service.Approve(context.Background(), "work-1", "src-1", "rev-1", adminClaims("admin"))
	require.Error(t, err)
}

func TestApproveByNonOwnerForbidden(t *testing.T) {
	f := newLedgerFixture()
	owner := "owner"
	f.revisions.add(&models.SourceRevision{
		ID: "rev-1", SourceID: "src-1", SequenceNumber: 1,
		CreatedBy: "user-2", Status: models.RevisionPendingApproval, ApprovalOwnerID: &owner,
	})

	_, err := f.service.Approve(context.Background(), "work-1", "src-1", "rev-1", contributorClaims("user-3"))
	require.Error(t, err)
	require.Empty(t, f.notifier.events)
}

func TestRejectLeavesPointerAlone(t *testing.T) {
	f := newLedgerFixture()
	f.sources.add(&models.Source{ID: "src-1", WorkID: "work-1", UploadedBy: "owner"})
	owner := "owner"
	f.revisions.add(&models.SourceRevision{
		ID: "rev-1", SourceID: "src-1", SequenceNumber: 1,
		CreatedBy: "user-2", Status: models.RevisionPendingApproval, ApprovalOwnerID: &owner,
	})

	rev, err := f.service.Reject(context.Background(), "work-1", "src-1", "rev-1", adminClaims("admin"))
	require.NoError(t, err)
	require.Equal(t, models.RevisionRejected, rev.Status)

	source, err := f.sources.GetByID(context.Background(), "src-1")
	require.NoError(t, err)
	require.Nil(t, source.LatestRevisionID)
	require.Empty(t, f.stats.calls)
}

func TestRevisionVisibility(t *testing.T) {
	owner := "owner"
	pending := &models.SourceRevision{
		Status: models.RevisionPendingApproval, CreatedBy: "creator", ApprovalOwnerID: &owner,
	}
	approved := &models.SourceRevision{Status: models.RevisionApproved, CreatedBy: "creator"}

	require.True(t, RevisionVisible(approved, nil))
	require.True(t, RevisionVisible(approved, contributorClaims("stranger")))

	require.False(t, RevisionVisible(pending, nil))
	require.False(t, RevisionVisible(pending, contributorClaims("stranger")))
	require.True(t, RevisionVisible(pending, contributorClaims("creator")))
	require.True(t, RevisionVisible(pending, contributorClaims("owner")))
	require.True(t, RevisionVisible(pending, adminClaims("admin")))
}

func TestDeleteSourceMultiCreatorRequiresAdmin(t *testing.T) {
	f := newLedgerFixture()
	f.works.add(&models.Work{ID: "work-1"})
	f.sources.add(&models.Source{ID: "src-1", WorkID: "work-1", UploadedBy: "user-1"})
	f.revisions.add(&models.SourceRevision{ID: "rev-1", SourceID: "src-1", SequenceNumber: 1, CreatedBy: "user-1"})
	f.revisions.add(&models.SourceRevision{ID: "rev-2", SourceID: "src-1", SequenceNumber: 2, CreatedBy: "user-2"})

	err := f.service.DeleteSource(context.Background(), "work-1", "src-1", contributorClaims("user-1"))
	require.Error(t, err)
	err = f.service.DeleteSource(context.Background(), "work-1", "src-1", contributorClaims("user-2"))
	require.Error(t, err)

	require.NoError(t, f.service.DeleteSource(context.Background(), "work-1", "src-1", adminClaims("admin")))
}

func TestDeleteSourceCascadesBlobsAndRows(t *testing.T) {
	f := newLedgerFixture()
	f.works.add(&models.Work{ID: "work-1"})
	f.sources.add(&models.Source{ID: "src-1", WorkID: "work-1", UploadedBy: "user-1"})

	ctx := context.Background()
	raw, err := f.blobs.Put(ctx, "raw", "src-1/1/score.mscz", []byte("raw"), "application/x-musescore")
	require.NoError(t, err)
	canonical, err := f.blobs.Put(ctx, "derived", "src-1/1/score.musicxml", []byte("xml"), ContentTypeMusicXML)
	require.NoError(t, err)
	pdf, err := f.blobs.Put(ctx, "derived", "src-1/diffs/a_b.pdf", []byte("pdf"), ContentTypePDF)
	require.NoError(t, err)

	f.revisions.add(&models.SourceRevision{
		ID: "rev-1", SourceID: "src-1", SequenceNumber: 1, CreatedBy: "user-1",
		RawStorage:  models.StorageLocator{Locator: raw},
		Derivatives: models.DerivativeArtifacts{Canonical: &canonical},
	})
	require.NoError(t, f.diffs.Create(ctx, &models.RevisionDiff{
		SourceID: "src-1", FromRevision: "a", ToRevision: "b",
		PDF: &models.StorageLocator{Locator: pdf},
	}))

	require.NoError(t, f.service.DeleteSource(ctx, "work-1", "src-1", contributorClaims("user-1")))

	require.Equal(t, 0, f.blobs.Len())
	require.Equal(t, []string{"work-1/src-1"}, f.branches.removed)
	_, err = f.sources.GetByID(ctx, "src-1")
	require.Error(t, err)
	remaining, err := f.revisions.ListBySource(ctx, "src-1")
	require.NoError(t, err)
	require.Empty(t, remaining)
	require.Equal(t, []string{"work-1"}, f.stats.calls)
}

func TestDeleteSourceSurvivesBranchWorkspaceFailure(t *testing.T) {
	f := newLedgerFixture()
	f.works.add(&models.Work{ID: "work-1"})
	f.sources.add(&models.Source{ID: "src-1", WorkID: "work-1", UploadedBy: "user-1"})
	f.branches.err = errors.New("workspace locked")

	require.NoError(t, f.service.DeleteSource(context.Background(), "work-1", "src-1", contributorClaims("user-1")))

	_, err := f.sources.GetByID(context.Background(), "src-1")
	require.Error(t, err)
}

func TestRepeatDecisionStillRequiresAuthorization(t *testing.T) {
	f := newLedgerFixture()
	f.works.add(&models.Work{ID: "work-1"})
	f.sources.add(&models.Source{ID: "src-1", WorkID: "work-1", UploadedBy: "owner"})
	owner := "owner"
	f.revisions.add(&models.SourceRevision{
		ID: "rev-1", SourceID: "src-1", SequenceNumber: 1,
		CreatedBy: "user-2", Status: models.RevisionPendingApproval, ApprovalOwnerID: &owner,
	})

	_, err := f.service.Approve(context.Background(), "work-1", "src-1", "rev-1", contributorClaims("owner"))
	require.NoError(t, err)

	// A stranger re-sending the decision gets Forbidden, not a 200 echo.
	_, err = f.service.Approve(context.Background(), "work-1", "src-1", "rev-1", contributorClaims("stranger"))
	require.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)

	// The owner's repeat stays an idempotent no-op.
	rev, err := f.service.Approve(context.Background(), "work-1", "src-1", "rev-1", contributorClaims("owner"))
	require.NoError(t, err)
	require.Equal(t, models.RevisionApproved, rev.Status)
	require.Equal(t, []string{"work-1"}, f.stats.calls)
}

func TestCreateSourceRejectsUnknownFormat(t *testing.T) {
	f := newLedgerFixture()
	f.service.cfg.AllowedFormats = []string{"mscz", "musicxml"}

	_, err := f.service.CreateSource(context.Background(), dto.CreateSourceRequest{
		CatalogueID: "imslp-1", Label: "x",
	}, "notes.txt", []byte("x"), contributorClaims("user-1"))
	require.Error(t, err)
}
