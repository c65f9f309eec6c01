package service

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/scorehub/scorehub-api/internal/models"
	"github.com/scorehub/scorehub-api/pkg/jobs"
)

type workStoreStub struct {
	works map[string]*models.Work
	stats map[string]models.WorkStats
}

func newWorkStoreStub() *workStoreStub {
	return &workStoreStub{works: make(map[string]*models.Work), stats: make(map[string]models.WorkStats)}
}

func (s *workStoreStub) add(work *models.Work) *models.Work {
	s.works[work.ID] = work
	return work
}

func (s *workStoreStub) GetByID(ctx context.Context, id string) (*models.Work, error) {
	if w, ok := s.works[id]; ok {
		copy := *w
		return &copy, nil
	}
	return nil, sql.ErrNoRows
}

func (s *workStoreStub) GetByCatalogueID(ctx context.Context, catalogueID string) (*models.Work, error) {
	for _, w := range s.works {
		if w.CatalogueID == catalogueID {
			copy := *w
			return &copy, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (s *workStoreStub) EnsureByCatalogueID(ctx context.Context, catalogueID, title, composer, catalogueNumber string) (*models.Work, error) {
	if w, err := s.GetByCatalogueID(ctx, catalogueID); err == nil {
		return w, nil
	}
	w := &models.Work{
		ID:              fmt.Sprintf("work-%d", len(s.works)+1),
		CatalogueID:     catalogueID,
		Title:           title,
		Composer:        composer,
		CatalogueNumber: catalogueNumber,
	}
	s.works[w.ID] = w
	return w, nil
}

func (s *workStoreStub) List(ctx context.Context, p models.Pagination) ([]models.Work, int, error) {
	out := make([]models.Work, 0, len(s.works))
	for _, w := range s.works {
		out = append(out, *w)
	}
	return out, len(out), nil
}

func (s *workStoreStub) UpdateMetadata(ctx context.Context, workID, title, composer, catalogueNumber string) error {
	w, ok := s.works[workID]
	if !ok {
		return sql.ErrNoRows
	}
	w.Title = title
	w.Composer = composer
	w.CatalogueNumber = catalogueNumber
	return nil
}

func (s *workStoreStub) Delete(ctx context.Context, workID string) error {
	delete(s.works, workID)
	return nil
}

func (s *workStoreStub) UpdateStats(ctx context.Context, workID string, stats models.WorkStats) error {
	w, ok := s.works[workID]
	if !ok {
		return sql.ErrNoRows
	}
	s.stats[workID] = stats
	w.SourceCount = stats.SourceCount
	w.AvailableFormats = stats.AvailableFormats
	w.HasReferencePdf = stats.HasReferencePdf
	w.HasVerifiedSources = stats.HasVerifiedSources
	w.HasFlaggedSources = stats.HasFlaggedSources
	w.LatestRevisionAt = stats.LatestRevisionAt
	return nil
}

type sourceStoreStub struct {
	sources map[string]*models.Source
	seq     map[string]int
}

func newSourceStoreStub() *sourceStoreStub {
	return &sourceStoreStub{sources: make(map[string]*models.Source), seq: make(map[string]int)}
}

func (s *sourceStoreStub) add(src *models.Source) *models.Source {
	s.sources[src.ID] = src
	return src
}

func (s *sourceStoreStub) Create(ctx context.Context, source *models.Source) error {
	if source.ID == "" {
		source.ID = fmt.Sprintf("src-%d", len(s.sources)+1)
	}
	source.CreatedAt = time.Now().UTC()
	s.sources[source.ID] = source
	return nil
}

func (s *sourceStoreStub) GetByID(ctx context.Context, id string) (*models.Source, error) {
	if src, ok := s.sources[id]; ok {
		copy := *src
		return &copy, nil
	}
	return nil, sql.ErrNoRows
}

func (s *sourceStoreStub) ListByWork(ctx context.Context, workID string) ([]models.Source, error) {
	var out []models.Source
	for _, src := range s.sources {
		if src.WorkID == workID {
			out = append(out, *src)
		}
	}
	return out, nil
}

func (s *sourceStoreStub) AllocateSequence(ctx context.Context, sourceID string) (int, error) {
	if _, ok := s.sources[sourceID]; !ok {
		return 0, sql.ErrNoRows
	}
	s.seq[sourceID]++
	return s.seq[sourceID], nil
}

func (s *sourceStoreStub) UpdateLatest(ctx context.Context, sourceID, revisionID string, at time.Time, derivatives models.DerivativeArtifacts) error {
	src, ok := s.sources[sourceID]
	if !ok {
		return sql.ErrNoRows
	}
	src.LatestRevisionID = &revisionID
	src.LatestRevisionAt = &at
	src.Derivatives = derivatives
	return nil
}

func (s *sourceStoreStub) SetVerified(ctx context.Context, sourceID string, verified bool, actorID string) error {
	src, ok := s.sources[sourceID]
	if !ok {
		return sql.ErrNoRows
	}
	src.AdminVerified = verified
	return nil
}

func (s *sourceStoreStub) SetFlagged(ctx context.Context, sourceID, actorID, reason string) error {
	src, ok := s.sources[sourceID]
	if !ok {
		return sql.ErrNoRows
	}
	src.AdminFlagged = true
	src.FlagReason = &reason
	return nil
}

func (s *sourceStoreStub) ClearFlag(ctx context.Context, sourceID string) error {
	src, ok := s.sources[sourceID]
	if !ok {
		return sql.ErrNoRows
	}
	src.AdminFlagged = false
	src.FlagReason = nil
	return nil
}

func (s *sourceStoreStub) Delete(ctx context.Context, sourceID string) error {
	delete(s.sources, sourceID)
	return nil
}

type revisionStoreStub struct {
	revisions map[string]*models.SourceRevision
}

func newRevisionStoreStub() *revisionStoreStub {
	return &revisionStoreStub{revisions: make(map[string]*models.SourceRevision)}
}

func (s *revisionStoreStub) add(rev *models.SourceRevision) *models.SourceRevision {
	s.revisions[rev.ID] = rev
	return rev
}

func (s *revisionStoreStub) Create(ctx context.Context, revision *models.SourceRevision) error {
	if revision.ID == "" {
		revision.ID = fmt.Sprintf("rev-%d", len(s.revisions)+1)
	}
	if revision.Branch == "" {
		revision.Branch = models.TrunkBranch
	}
	if revision.Validation.Status == "" {
		revision.Validation.Status = models.ValidationPending
	}
	revision.CreatedAt = time.Now().UTC()
	s.revisions[revision.ID] = revision
	return nil
}

func (s *revisionStoreStub) GetByID(ctx context.Context, id string) (*models.SourceRevision, error) {
	if rev, ok := s.revisions[id]; ok {
		copy := *rev
		return &copy, nil
	}
	return nil, sql.ErrNoRows
}

func (s *revisionStoreStub) ListBySource(ctx context.Context, sourceID string) ([]models.SourceRevision, error) {
	var out []models.SourceRevision
	for _, rev := range s.revisions {
		if rev.SourceID == sourceID {
			out = append(out, *rev)
		}
	}
	return out, nil
}

func (s *revisionStoreStub) PreviousOnBranch(ctx context.Context, sourceID, branch string, beforeSequence int) (*models.SourceRevision, error) {
	var best *models.SourceRevision
	for _, rev := range s.revisions {
		if rev.SourceID != sourceID || rev.Branch != branch || rev.SequenceNumber >= beforeSequence {
			continue
		}
		if best == nil || rev.SequenceNumber > best.SequenceNumber {
			best = rev
		}
	}
	if best == nil {
		return nil, nil
	}
	copy := *best
	return &copy, nil
}

func (s *revisionStoreStub) UpdateDecision(ctx context.Context, revisionID string, status models.RevisionStatus, decision models.ApprovalDecision, decidedBy string, decidedAt time.Time) error {
	rev, ok := s.revisions[revisionID]
	if !ok {
		return sql.ErrNoRows
	}
	rev.Status = status
	rev.Decision = &decision
	rev.DecidedBy = &decidedBy
	rev.DecidedAt = &decidedAt
	return nil
}

func (s *revisionStoreStub) UpdateDerivatives(ctx context.Context, revisionID string, derivatives models.DerivativeArtifacts, validation models.ValidationState) error {
	rev, ok := s.revisions[revisionID]
	if !ok {
		return sql.ErrNoRows
	}
	rev.Derivatives = derivatives
	rev.Validation = validation
	return nil
}

func (s *revisionStoreStub) SetPipelineError(ctx context.Context, revisionID, message string) error {
	rev, ok := s.revisions[revisionID]
	if !ok {
		return sql.ErrNoRows
	}
	rev.PipelineError = &message
	return nil
}

func (s *revisionStoreStub) DistinctCreators(ctx context.Context, sourceID string) ([]string, error) {
	seen := make(map[string]struct{})
	var out []string
	for _, rev := range s.revisions {
		if rev.SourceID != sourceID || rev.CreatedBy == models.SystemUserID {
			continue
		}
		if _, ok := seen[rev.CreatedBy]; ok {
			continue
		}
		seen[rev.CreatedBy] = struct{}{}
		out = append(out, rev.CreatedBy)
	}
	return out, nil
}

func (s *revisionStoreStub) DeleteBySource(ctx context.Context, sourceID string) error {
	for id, rev := range s.revisions {
		if rev.SourceID == sourceID {
			delete(s.revisions, id)
		}
	}
	return nil
}

type diffStoreStub struct {
	mu    sync.Mutex
	diffs map[string]*models.RevisionDiff
}

func newDiffStoreStub() *diffStoreStub {
	return &diffStoreStub{diffs: make(map[string]*models.RevisionDiff)}
}

func (s *diffStoreStub) GetByPair(ctx context.Context, fromRevision, toRevision string) (*models.RevisionDiff, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if d, ok := s.diffs[fromRevision+"/"+toRevision]; ok {
		copy := *d
		return &copy, nil
	}
	return nil, nil
}

func (s *diffStoreStub) Create(ctx context.Context, diff *models.RevisionDiff) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if diff.ID == "" {
		diff.ID = fmt.Sprintf("diff-%d", len(s.diffs)+1)
	}
	s.diffs[diff.FromRevision+"/"+diff.ToRevision] = diff
	return nil
}

func (s *diffStoreStub) ListBySource(ctx context.Context, sourceID string) ([]models.RevisionDiff, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.RevisionDiff
	for _, d := range s.diffs {
		if d.SourceID == sourceID {
			out = append(out, *d)
		}
	}
	return out, nil
}

func (s *diffStoreStub) DeleteBySource(ctx context.Context, sourceID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, d := range s.diffs {
		if d.SourceID == sourceID {
			delete(s.diffs, key)
		}
	}
	return nil
}

type statsStub struct {
	calls []string
}

func (s *statsStub) RecomputeWorkStats(ctx context.Context, workID string) (*models.WorkStats, error) {
	s.calls = append(s.calls, workID)
	return &models.WorkStats{WorkID: workID}, nil
}

type queueStub struct {
	jobs []jobs.Job
	err  error
}

func (q *queueStub) Enqueue(job jobs.Job) error {
	if q.err != nil {
		return q.err
	}
	q.jobs = append(q.jobs, job)
	return nil
}

type branchRepoStub struct {
	removed []string
	err     error
}

func (b *branchRepoStub) RemoveSource(ctx context.Context, workID, sourceID string) error {
	if b.err != nil {
		return b.err
	}
	b.removed = append(b.removed, workID+"/"+sourceID)
	return nil
}

type notifierStub struct {
	events []string
}

func (n *notifierStub) Notify(ctx context.Context, eventKind string, payload interface{}, recipients []string) error {
	n.events = append(n.events, eventKind)
	return nil
}

func adminClaims(id string) *models.JWTClaims {
	return &models.JWTClaims{UserID: id, Role: models.RoleAdmin}
}

func contributorClaims(id string) *models.JWTClaims {
	return &models.JWTClaims{UserID: id, Role: models.RoleContributor}
}
