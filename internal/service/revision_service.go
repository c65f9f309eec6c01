package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"mime"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/scorehub/scorehub-api/internal/dto"
	"github.com/scorehub/scorehub-api/internal/models"
	"github.com/scorehub/scorehub-api/pkg/blob"
	appErrors "github.com/scorehub/scorehub-api/pkg/errors"
	"github.com/scorehub/scorehub-api/pkg/jobs"
)

type ledgerWorkStore interface {
	EnsureByCatalogueID(ctx context.Context, catalogueID, title, composer, catalogueNumber string) (*models.Work, error)
	GetByID(ctx context.Context, id string) (*models.Work, error)
}

type ledgerSourceStore interface {
	Create(ctx context.Context, source *models.Source) error
	GetByID(ctx context.Context, id string) (*models.Source, error)
	AllocateSequence(ctx context.Context, sourceID string) (int, error)
	UpdateLatest(ctx context.Context, sourceID, revisionID string, at time.Time, derivatives models.DerivativeArtifacts) error
	Delete(ctx context.Context, sourceID string) error
}

type ledgerRevisionStore interface {
	Create(ctx context.Context, revision *models.SourceRevision) error
	GetByID(ctx context.Context, id string) (*models.SourceRevision, error)
	ListBySource(ctx context.Context, sourceID string) ([]models.SourceRevision, error)
	UpdateDecision(ctx context.Context, revisionID string, status models.RevisionStatus, decision models.ApprovalDecision, decidedBy string, decidedAt time.Time) error
	SetPipelineError(ctx context.Context, revisionID, message string) error
	DistinctCreators(ctx context.Context, sourceID string) ([]string, error)
	DeleteBySource(ctx context.Context, sourceID string) error
}

type ledgerDiffStore interface {
	ListBySource(ctx context.Context, sourceID string) ([]models.RevisionDiff, error)
	DeleteBySource(ctx context.Context, sourceID string) error
}

type statsRecomputer interface {
	RecomputeWorkStats(ctx context.Context, workID string) (*models.WorkStats, error)
}

type pipelineDispatcher interface {
	Enqueue(job jobs.Job) error
}

// RevisionServiceConfig names the blob container raw uploads land in.
type RevisionServiceConfig struct {
	RawContainer   string
	AllowedFormats []string
}

// RevisionService owns the revision ledger: sequencing, branching, the
// approval state machine, and cascading source deletion.
type RevisionService struct {
	works     ledgerWorkStore
	sources   ledgerSourceStore
	revisions ledgerRevisionStore
	diffs     ledgerDiffStore
	blobs     blob.Store
	stats     statsRecomputer
	pipeline  pipelineDispatcher
	branches  BranchRepo
	notifier  Notifier
	logger    *zap.Logger
	cfg       RevisionServiceConfig
}

// NewRevisionService constructs the ledger service.
func NewRevisionService(
	works ledgerWorkStore,
	sources ledgerSourceStore,
	revisions ledgerRevisionStore,
	diffs ledgerDiffStore,
	blobs blob.Store,
	stats statsRecomputer,
	pipeline pipelineDispatcher,
	branches BranchRepo,
	notifier Notifier,
	logger *zap.Logger,
	cfg RevisionServiceConfig,
) *RevisionService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.RawContainer == "" {
		cfg.RawContainer = "raw"
	}
	return &RevisionService{
		works:     works,
		sources:   sources,
		revisions: revisions,
		diffs:     diffs,
		blobs:     blobs,
		stats:     stats,
		pipeline:  pipeline,
		branches:  branches,
		notifier:  notifier,
		logger:    logger,
		cfg:       cfg,
	}
}

// CreateSource handles a first upload: the work is created on first sight of
// the catalogue id, then the source and its revision 1.
func (s *RevisionService) CreateSource(ctx context.Context, req dto.CreateSourceRequest, filename string, data []byte, actor *models.JWTClaims) (*dto.RevisionAcceptedResponse, error) {
	format, err := s.uploadFormat(filename)
	if err != nil {
		return nil, err
	}

	work, err := s.works.EnsureByCatalogueID(ctx, req.CatalogueID, req.Title, req.Composer, req.CatalogueNumber)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve work")
	}

	sourceType := models.SourceType(req.SourceType)
	if sourceType == "" {
		sourceType = models.SourceTypeTranscription
		if format == "pdf" {
			sourceType = models.SourceTypeReferencePdf
		}
	}

	source := &models.Source{
		WorkID:           work.ID,
		Label:            req.Label,
		SourceType:       sourceType,
		Format:           format,
		OriginalFilename: filename,
		IsPrimary:        req.IsPrimary,
		UploadedBy:       actor.UserID,
	}
	if err := s.sources.Create(ctx, source); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create source")
	}

	return s.appendRevision(ctx, work.ID, source, req.Branch, filename, data, actor, req.CorrelationID)
}

// CreateRevision appends a new revision to an existing source.
func (s *RevisionService) CreateRevision(ctx context.Context, sourceID string, req dto.CreateRevisionRequest, filename string, data []byte, actor *models.JWTClaims) (*dto.RevisionAcceptedResponse, error) {
	if _, err := s.uploadFormat(filename); err != nil {
		return nil, err
	}
	source, err := s.sources.GetByID(ctx, sourceID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "source not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load source")
	}
	return s.appendRevision(ctx, source.WorkID, source, req.Branch, filename, data, actor, req.CorrelationID)
}

func (s *RevisionService) appendRevision(ctx context.Context, workID string, source *models.Source, branch, filename string, data []byte, actor *models.JWTClaims, correlationID string) (*dto.RevisionAcceptedResponse, error) {
	if branch == "" {
		branch = models.TrunkBranch
	}
	if len(data) == 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "uploaded file is empty")
	}

	seq, err := s.sources.AllocateSequence(ctx, source.ID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "source not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to allocate sequence number")
	}

	key := fmt.Sprintf("%s/%d/%s", source.ID, seq, filepath.Base(filename))
	locator, err := s.blobs.Put(ctx, s.cfg.RawContainer, key, data, contentTypeFor(filename))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store upload")
	}

	// Trunk uploads by the source's own uploader (or an admin) go live
	// immediately; everything else waits on the uploader's approval.
	status := models.RevisionPendingApproval
	owner := source.UploadedBy
	if branch == models.TrunkBranch && (actor.UserID == source.UploadedBy || actor.IsAdmin()) {
		status = models.RevisionApproved
	}

	revision := &models.SourceRevision{
		SourceID:        source.ID,
		SequenceNumber:  seq,
		Branch:          branch,
		CreatedBy:       actor.UserID,
		RawStorage:      models.StorageLocator{Locator: locator},
		Status:          status,
		ApprovalOwnerID: &owner,
	}
	if status == models.RevisionApproved {
		now := time.Now().UTC()
		decision := models.DecisionApprove
		revision.DecidedAt = &now
		revision.DecidedBy = &actor.UserID
		revision.Decision = &decision
	}
	if err := s.revisions.Create(ctx, revision); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create revision")
	}

	if status == models.RevisionApproved {
		if err := s.sources.UpdateLatest(ctx, source.ID, revision.ID, revision.CreatedAt, revision.Derivatives); err != nil {
			s.logger.Sugar().Warnw("failed to promote latest revision", "revision_id", revision.ID, "error", err)
		}
	}

	if _, err := s.stats.RecomputeWorkStats(ctx, workID); err != nil {
		s.logger.Sugar().Warnw("work stats recompute failed after upload", "work_id", workID, "error", err)
	}

	if err := s.pipeline.Enqueue(jobs.Job{
		ID:            revision.ID,
		Type:          PipelineJobType,
		CorrelationID: correlationID,
		Payload: PipelineJobPayload{
			WorkID:     workID,
			SourceID:   source.ID,
			RevisionID: revision.ID,
			Format:     source.Format,
		},
	}); err != nil {
		// The upload stays accepted; only derivation is lost.
		s.logger.Sugar().Errorw("failed to enqueue derivative pipeline", "revision_id", revision.ID, "error", err)
		if dbErr := s.revisions.SetPipelineError(ctx, revision.ID, "pipeline enqueue failed"); dbErr != nil {
			s.logger.Sugar().Warnw("failed to record pipeline error", "revision_id", revision.ID, "error", dbErr)
		}
	}

	return &dto.RevisionAcceptedResponse{
		WorkID:         workID,
		SourceID:       source.ID,
		RevisionID:     revision.ID,
		SequenceNumber: seq,
		Branch:         branch,
		Status:         string(status),
		CorrelationID:  correlationID,
	}, nil
}

// Approve moves a pending revision to approved, promotes it to the source's
// latest pointer, and mirrors its derivatives. Approving an approved
// revision is an idempotent no-op.
func (s *RevisionService) Approve(ctx context.Context, workID, sourceID, revisionID string, actor *models.JWTClaims) (*models.SourceRevision, error) {
	return s.decide(ctx, workID, sourceID, revisionID, actor, models.DecisionApprove)
}

// Reject moves a pending revision to rejected. Source pointers are never
// touched. Rejecting a rejected revision is an idempotent no-op.
func (s *RevisionService) Reject(ctx context.Context, workID, sourceID, revisionID string, actor *models.JWTClaims) (*models.SourceRevision, error) {
	return s.decide(ctx, workID, sourceID, revisionID, actor, models.DecisionReject)
}

func (s *RevisionService) decide(ctx context.Context, workID, sourceID, revisionID string, actor *models.JWTClaims, decision models.ApprovalDecision) (*models.SourceRevision, error) {
	revision, err := s.loadRevision(ctx, sourceID, revisionID)
	if err != nil {
		return nil, err
	}

	// Authorization runs before the idempotent short-circuit so a repeat
	// call fails the same way a first call would.
	if err := Authorize(actor, ActionDecideRevision, PolicyInput{Revision: revision}); err != nil {
		return nil, err
	}

	if !revision.Status.CanTransition(decision) {
		return nil, appErrors.Clone(appErrors.ErrConflict, fmt.Sprintf("revision is already %s", revision.Status))
	}
	if revision.Status != models.RevisionPendingApproval {
		// Repeat of the same decision: no side effects, same result.
		return revision, nil
	}

	now := time.Now().UTC()
	status := models.RevisionApproved
	event := EventRevisionApproved
	if decision == models.DecisionReject {
		status = models.RevisionRejected
		event = EventRevisionRejected
	}
	if err := s.revisions.UpdateDecision(ctx, revision.ID, status, decision, actor.UserID, now); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record decision")
	}
	revision.Status = status
	revision.Decision = &decision
	revision.DecidedAt = &now
	revision.DecidedBy = &actor.UserID

	if status == models.RevisionApproved {
		if err := s.sources.UpdateLatest(ctx, sourceID, revision.ID, revision.CreatedAt, revision.Derivatives); err != nil {
			s.logger.Sugar().Warnw("failed to promote latest revision", "revision_id", revision.ID, "error", err)
		}
		if _, err := s.stats.RecomputeWorkStats(ctx, workID); err != nil {
			s.logger.Sugar().Warnw("work stats recompute failed after approval", "work_id", workID, "error", err)
		}
	}

	s.notifyWatchers(ctx, event, sourceID, revision)
	return revision, nil
}

func (s *RevisionService) notifyWatchers(ctx context.Context, event, sourceID string, revision *models.SourceRevision) {
	if s.notifier == nil {
		return
	}
	recipients, err := s.revisions.DistinctCreators(ctx, sourceID)
	if err != nil {
		s.logger.Sugar().Warnw("failed to resolve watchers", "source_id", sourceID, "error", err)
		return
	}
	payload := map[string]interface{}{
		"sourceId":       sourceID,
		"revisionId":     revision.ID,
		"sequenceNumber": revision.SequenceNumber,
		"branch":         revision.Branch,
		"status":         revision.Status,
	}
	if err := s.notifier.Notify(ctx, event, payload, recipients); err != nil {
		s.logger.Sugar().Warnw("watcher notification failed", "source_id", sourceID, "error", err)
	}
}

// RevisionVisible is the pure visibility rule. Approved revisions are public;
// pending and rejected ones only show to admins, their creator, and the
// approval owner.
func RevisionVisible(revision *models.SourceRevision, viewer *models.JWTClaims) bool {
	if revision.Status == models.RevisionApproved {
		return true
	}
	if viewer == nil {
		return false
	}
	if viewer.IsAdmin() || viewer.UserID == revision.CreatedBy {
		return true
	}
	return revision.ApprovalOwnerID != nil && *revision.ApprovalOwnerID == viewer.UserID
}

// GetRevision loads a revision, applying the visibility rule. Invisible
// revisions read as not found so their existence is not leaked.
func (s *RevisionService) GetRevision(ctx context.Context, sourceID, revisionID string, viewer *models.JWTClaims) (*models.SourceRevision, error) {
	revision, err := s.loadRevision(ctx, sourceID, revisionID)
	if err != nil {
		return nil, err
	}
	if !RevisionVisible(revision, viewer) {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "revision not found")
	}
	return revision, nil
}

// ListRevisions returns the source's revisions visible to the viewer, newest
// first.
func (s *RevisionService) ListRevisions(ctx context.Context, sourceID string, viewer *models.JWTClaims) ([]models.SourceRevision, error) {
	all, err := s.revisions.ListBySource(ctx, sourceID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list revisions")
	}
	visible := make([]models.SourceRevision, 0, len(all))
	for i := range all {
		if RevisionVisible(&all[i], viewer) {
			visible = append(visible, all[i])
		}
	}
	return visible, nil
}

// DeleteSource removes a source, its revisions, cached diffs, every blob
// they reference, and the source's branch workspace. Blob and workspace
// deletions are best-effort; a failed object delete never aborts the
// cascade.
func (s *RevisionService) DeleteSource(ctx context.Context, workID, sourceID string, actor *models.JWTClaims) error {
	source, err := s.sources.GetByID(ctx, sourceID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "source not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load source")
	}
	if source.WorkID != workID {
		return appErrors.Clone(appErrors.ErrNotFound, "source not found")
	}

	creators, err := s.revisions.DistinctCreators(ctx, sourceID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load revision creators")
	}
	if err := Authorize(actor, ActionDeleteSource, PolicyInput{Source: source, RevisionCreators: creators}); err != nil {
		return err
	}

	locators, err := s.collectLocators(ctx, source)
	if err != nil {
		return err
	}
	s.deleteBlobs(ctx, locators)

	// Branch workspace removal is best-effort like the blob deletes; an
	// orphaned workspace never blocks the row cascade.
	if s.branches != nil {
		if err := s.branches.RemoveSource(ctx, source.WorkID, source.ID); err != nil {
			s.logger.Sugar().Warnw("branch workspace removal failed", "source_id", source.ID, "error", err)
		}
	}

	if err := s.diffs.DeleteBySource(ctx, sourceID); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete revision diffs")
	}
	if err := s.revisions.DeleteBySource(ctx, sourceID); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete revisions")
	}
	if err := s.sources.Delete(ctx, sourceID); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete source")
	}

	if _, err := s.stats.RecomputeWorkStats(ctx, workID); err != nil {
		s.logger.Sugar().Warnw("work stats recompute failed after deletion", "work_id", workID, "error", err)
	}
	return nil
}

// collectLocators enumerates every blob referenced anywhere under the
// source: raw uploads, all derivative kinds, the source's mirrored set, and
// cached diff artifacts. Collecting from the model keeps a later derivative
// kind from being silently missed by a per-call-site list.
func (s *RevisionService) collectLocators(ctx context.Context, source *models.Source) ([]blob.Locator, error) {
	revisions, err := s.revisions.ListBySource(ctx, source.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list revisions")
	}
	diffs, err := s.diffs.ListBySource(ctx, source.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list revision diffs")
	}

	seen := make(map[string]struct{})
	var out []blob.Locator
	add := func(l blob.Locator) {
		if l.IsZero() {
			return
		}
		key := l.Container + "/" + l.Key
		if _, ok := seen[key]; ok {
			return
		}
		seen[key] = struct{}{}
		out = append(out, l)
	}

	for i := range revisions {
		add(revisions[i].RawStorage.Locator)
		for _, l := range revisions[i].Derivatives.Locators() {
			add(l)
		}
	}
	for _, l := range source.Derivatives.Locators() {
		add(l)
	}
	for i := range diffs {
		for _, l := range diffs[i].Locators() {
			add(l)
		}
	}
	return out, nil
}

func (s *RevisionService) deleteBlobs(ctx context.Context, locators []blob.Locator) {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for _, l := range locators {
		l := l
		g.Go(func() error {
			if err := s.blobs.Delete(ctx, l.Container, l.Key); err != nil {
				s.logger.Sugar().Warnw("blob delete failed", "container", l.Container, "key", l.Key, "error", err)
			}
			return nil
		})
	}
	_ = g.Wait()
}

func (s *RevisionService) loadRevision(ctx context.Context, sourceID, revisionID string) (*models.SourceRevision, error) {
	revision, err := s.revisions.GetByID(ctx, revisionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "revision not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load revision")
	}
	if revision.SourceID != sourceID {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "revision not found")
	}
	return revision, nil
}

func (s *RevisionService) uploadFormat(filename string) (string, error) {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(filename)), ".")
	if ext == "" {
		return "", appErrors.Clone(appErrors.ErrValidation, "filename has no extension")
	}
	if len(s.cfg.AllowedFormats) == 0 {
		return ext, nil
	}
	for _, allowed := range s.cfg.AllowedFormats {
		if ext == allowed {
			return ext, nil
		}
	}
	return "", appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unsupported file format %q", ext))
}

func contentTypeFor(filename string) string {
	return contentTypeForFormat(strings.TrimPrefix(strings.ToLower(filepath.Ext(filename)), "."))
}

// contentTypeForFormat maps an upload format extension to its content type.
func contentTypeForFormat(format string) string {
	switch format {
	case "mscz":
		return "application/x-musescore"
	case "mxl":
		return "application/vnd.recordare.musicxml"
	case "musicxml", "xml":
		return ContentTypeMusicXML
	case "krn":
		return "text/x-humdrum"
	case "pdf":
		return ContentTypePDF
	default:
		if ct := mime.TypeByExtension("." + format); ct != "" {
			return ct
		}
		return "application/octet-stream"
	}
}
