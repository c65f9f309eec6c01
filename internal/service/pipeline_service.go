package service

import (
	"archive/zip"
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/scorehub/scorehub-api/internal/converter"
	"github.com/scorehub/scorehub-api/internal/models"
	"github.com/scorehub/scorehub-api/internal/repository"
	"github.com/scorehub/scorehub-api/pkg/blob"
	"github.com/scorehub/scorehub-api/pkg/jobs"
	"github.com/scorehub/scorehub-api/pkg/progress"
)

// PipelineJobType tags derivative jobs on the queue.
const PipelineJobType = "revision.derive"

// PipelineJobPayload identifies the revision a pipeline job works on.
type PipelineJobPayload struct {
	WorkID     string
	SourceID   string
	RevisionID string
	Format     string
}

// Pipeline stage names, in execution order.
const (
	StageStoreRaw  = "store-raw"
	StageConvert   = "convert"
	StageCanonical = "canonical"
	StageLinearize = "linearize"
	StageRender    = "render"
	StageDiff      = "diff"
	StageManifest  = "manifest"
)

// Derived artifact content types.
const (
	ContentTypeMusicXML = "application/vnd.recordare.musicxml+xml"
	ContentTypeLMX      = "text/x-lmx"
	ContentTypeSVG      = "image/svg+xml"
	ContentTypeManifest = "application/json"
	ContentTypePDF      = "application/pdf"
)

type pipelineRevisionStore interface {
	GetByID(ctx context.Context, id string) (*models.SourceRevision, error)
	PreviousOnBranch(ctx context.Context, sourceID, branch string, beforeSequence int) (*models.SourceRevision, error)
	UpdateDerivatives(ctx context.Context, revisionID string, derivatives models.DerivativeArtifacts, validation models.ValidationState) error
	SetPipelineError(ctx context.Context, revisionID, message string) error
}

type pipelineSourceStore interface {
	GetByID(ctx context.Context, id string) (*models.Source, error)
	UpdateLatest(ctx context.Context, sourceID, revisionID string, at time.Time, derivatives models.DerivativeArtifacts) error
}

type pipelineDiffStore interface {
	GetByPair(ctx context.Context, fromRevision, toRevision string) (*models.RevisionDiff, error)
	Create(ctx context.Context, diff *models.RevisionDiff) error
}

type pipelineMetrics interface {
	ObservePipelineStage(stage string, duration time.Duration, success bool)
}

// PipelineConfig tunes the derivative pipeline.
type PipelineConfig struct {
	DerivedContainer  string
	ConverterTimeout  time.Duration
	DiffTimeout       time.Duration
	NotationConverter string
	Linearizer        string
	Renderer          string
	DiffRenderer      string
	RenderEnabled     bool
	DiffEnabled       bool
}

// PipelineService runs the staged derivative pipeline for one revision at a
// time, off the request path. Each stage persists its output before the next
// begins; the first hard failure halts the rest but leaves completed
// derivatives exposed.
type PipelineService struct {
	revisions pipelineRevisionStore
	sources   pipelineSourceStore
	diffs     pipelineDiffStore
	blobs     blob.Store
	runner    converter.Runner
	broker    *progress.Broker
	stats     statsRecomputer
	metrics   pipelineMetrics
	logger    *zap.Logger
	cfg       PipelineConfig
}

// NewPipelineService constructs the pipeline.
func NewPipelineService(
	revisions pipelineRevisionStore,
	sources pipelineSourceStore,
	diffs pipelineDiffStore,
	blobs blob.Store,
	runner converter.Runner,
	broker *progress.Broker,
	stats statsRecomputer,
	metrics pipelineMetrics,
	logger *zap.Logger,
	cfg PipelineConfig,
) *PipelineService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.DerivedContainer == "" {
		cfg.DerivedContainer = "derived"
	}
	if cfg.ConverterTimeout <= 0 {
		cfg.ConverterTimeout = 2 * time.Minute
	}
	if cfg.DiffTimeout <= 0 {
		cfg.DiffTimeout = 3 * time.Minute
	}
	return &PipelineService{
		revisions: revisions,
		sources:   sources,
		diffs:     diffs,
		blobs:     blobs,
		runner:    runner,
		broker:    broker,
		stats:     stats,
		metrics:   metrics,
		logger:    logger,
		cfg:       cfg,
	}
}

// Handle is the queue handler for derivative jobs. Converter failures are
// recorded on the revision and end the run without a queue retry; only
// infrastructure errors propagate so the queue may retry them.
func (s *PipelineService) Handle(ctx context.Context, job jobs.Job) error {
	payload, ok := job.Payload.(PipelineJobPayload)
	if !ok {
		s.logger.Sugar().Warnw("pipeline job with unexpected payload", "job_id", job.ID)
		return nil
	}
	correlation := job.CorrelationID

	revision, err := s.revisions.GetByID(ctx, payload.RevisionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			// Source deleted before the job ran.
			s.broker.Done(correlation, "revision no longer exists")
			return nil
		}
		return fmt.Errorf("load revision: %w", err)
	}

	run := &pipelineRun{
		service:     s,
		correlation: correlation,
		payload:     payload,
		revision:    revision,
		derivatives: revision.Derivatives,
		validation:  revision.Validation,
	}
	return run.execute(ctx)
}

type pipelineRun struct {
	service     *PipelineService
	correlation string
	payload     PipelineJobPayload
	revision    *models.SourceRevision
	derivatives models.DerivativeArtifacts
	validation  models.ValidationState
}

func (r *pipelineRun) execute(ctx context.Context) error {
	s := r.service
	r.emit(StageStoreRaw, "raw upload stored")

	raw, err := s.blobs.Get(ctx, r.revision.RawStorage.Container, r.revision.RawStorage.Key)
	if err != nil {
		return r.fail(ctx, StageStoreRaw, fmt.Sprintf("raw object unreadable: %v", err))
	}

	// Reference PDFs carry no machine-readable notation; only the manifest
	// is produced.
	if r.payload.Format == "pdf" {
		if err := r.manifestStage(ctx); err != nil {
			return err
		}
		r.finish(ctx, "reference upload processed")
		return nil
	}

	canonical, failMsg, err := r.convertStage(ctx, raw)
	if err != nil {
		return err
	}
	if failMsg != "" {
		return r.fail(ctx, StageConvert, failMsg)
	}

	if err := r.canonicalStage(ctx, canonical, !bytes.Equal(canonical, raw)); err != nil {
		return err
	}
	if halted, err := r.linearizeStage(ctx, canonical); halted || err != nil {
		return err
	}
	if s.cfg.RenderEnabled {
		if halted, err := r.renderStage(ctx, canonical); halted || err != nil {
			return err
		}
	}
	if s.cfg.DiffEnabled {
		if err := r.diffStage(ctx, canonical); err != nil {
			return err
		}
	}
	if err := r.manifestStage(ctx); err != nil {
		return err
	}

	r.finish(ctx, "pipeline complete")
	return nil
}

// convertStage normalises the upload into MusicXML bytes. The returned
// failMsg is non-empty for converter-level failures.
func (r *pipelineRun) convertStage(ctx context.Context, raw []byte) (canonical []byte, failMsg string, err error) {
	s := r.service
	start := time.Now()
	r.emit(StageConvert, "converting to interchange format")

	switch strings.ToLower(r.payload.Format) {
	case "mscz":
		result, runErr := s.runConverter(ctx, s.cfg.NotationConverter, raw, s.cfg.ConverterTimeout)
		if runErr != nil {
			r.observe(StageConvert, start, false)
			return nil, fmt.Sprintf("notation converter: %v", runErr), nil
		}
		if !result.Ok() {
			r.observe(StageConvert, start, false)
			return nil, converterFailure("notation converter", result), nil
		}
		canonical = result.Output
	case "mxl":
		score, unpackErr := resolveMXLScore(raw)
		if unpackErr != nil {
			r.observe(StageConvert, start, false)
			return nil, fmt.Sprintf("mxl container: %v", unpackErr), nil
		}
		canonical = score
	default:
		// Already an interchange format.
		canonical = raw
	}
	r.observe(StageConvert, start, true)
	return canonical, "", nil
}

func (r *pipelineRun) canonicalStage(ctx context.Context, canonical []byte, converted bool) error {
	s := r.service
	start := time.Now()
	r.emit(StageCanonical, "storing canonical score")

	locator, err := s.blobs.Put(ctx, s.cfg.DerivedContainer, r.artifactKey("score.musicxml"), canonical, ContentTypeMusicXML)
	if err != nil {
		r.observe(StageCanonical, start, false)
		return fmt.Errorf("store canonical: %w", err)
	}
	r.derivatives.Canonical = &locator
	if converted {
		r.derivatives.Normalized = &locator
	}
	r.observe(StageCanonical, start, true)
	return r.persist(ctx)
}

func (r *pipelineRun) linearizeStage(ctx context.Context, canonical []byte) (halted bool, err error) {
	s := r.service
	start := time.Now()
	r.emit(StageLinearize, "linearizing score")

	result, runErr := s.runConverter(ctx, s.cfg.Linearizer, canonical, s.cfg.ConverterTimeout)
	if runErr != nil {
		r.observe(StageLinearize, start, false)
		return true, r.fail(ctx, StageLinearize, fmt.Sprintf("linearizer: %v", runErr))
	}
	if !result.Ok() {
		r.observe(StageLinearize, start, false)
		return true, r.fail(ctx, StageLinearize, converterFailure("linearizer", result))
	}

	locator, putErr := s.blobs.Put(ctx, s.cfg.DerivedContainer, r.artifactKey("score.lmx"), result.Output, ContentTypeLMX)
	if putErr != nil {
		r.observe(StageLinearize, start, false)
		return false, fmt.Errorf("store linearized: %w", putErr)
	}
	r.derivatives.Linearized = &locator
	r.observe(StageLinearize, start, true)
	return false, r.persist(ctx)
}

func (r *pipelineRun) renderStage(ctx context.Context, canonical []byte) (halted bool, err error) {
	s := r.service
	start := time.Now()
	r.emit(StageRender, "rendering page image")

	result, runErr := s.runConverter(ctx, s.cfg.Renderer, canonical, s.cfg.ConverterTimeout)
	if runErr != nil {
		r.observe(StageRender, start, false)
		return true, r.fail(ctx, StageRender, fmt.Sprintf("renderer: %v", runErr))
	}
	if !result.Ok() {
		r.observe(StageRender, start, false)
		return true, r.fail(ctx, StageRender, converterFailure("renderer", result))
	}

	locator, putErr := s.blobs.Put(ctx, s.cfg.DerivedContainer, r.artifactKey("render.svg"), result.Output, ContentTypeSVG)
	if putErr != nil {
		r.observe(StageRender, start, false)
		return false, fmt.Errorf("store render: %w", putErr)
	}
	r.derivatives.Render = &locator
	r.observe(StageRender, start, true)
	return false, r.persist(ctx)
}

func (r *pipelineRun) diffStage(ctx context.Context, canonical []byte) error {
	s := r.service
	prev, err := s.revisions.PreviousOnBranch(ctx, r.revision.SourceID, r.revision.Branch, r.revision.SequenceNumber)
	if err != nil {
		return fmt.Errorf("locate previous revision: %w", err)
	}
	if prev == nil {
		return nil
	}

	start := time.Now()
	r.emit(StageDiff, fmt.Sprintf("computing diff against revision %d", prev.SequenceNumber))
	if _, diffErr := s.GetOrCreateDiff(ctx, prev, r.revision); diffErr != nil {
		// Diff loss degrades the revision, it does not halt it.
		r.observe(StageDiff, start, false)
		s.logger.Sugar().Warnw("diff stage failed", "revision_id", r.revision.ID, "error", diffErr)
		r.emit(StageDiff, "diff unavailable")
		return nil
	}
	r.observe(StageDiff, start, true)
	return nil
}

func (r *pipelineRun) manifestStage(ctx context.Context) error {
	s := r.service
	start := time.Now()
	r.emit(StageManifest, "writing manifest")

	manifest := map[string]interface{}{
		"revisionId":     r.revision.ID,
		"sourceId":       r.revision.SourceID,
		"sequenceNumber": r.revision.SequenceNumber,
		"branch":         r.revision.Branch,
		"raw":            r.revision.RawStorage.Locator,
		"derivatives":    r.derivatives,
		"generatedAt":    time.Now().UTC(),
	}
	data, err := json.Marshal(manifest)
	if err != nil {
		return fmt.Errorf("marshal manifest: %w", err)
	}
	locator, err := s.blobs.Put(ctx, s.cfg.DerivedContainer, r.artifactKey("manifest.json"), data, ContentTypeManifest)
	if err != nil {
		r.observe(StageManifest, start, false)
		return fmt.Errorf("store manifest: %w", err)
	}
	r.derivatives.Manifest = &locator
	r.observe(StageManifest, start, true)
	return r.persist(ctx)
}

func (r *pipelineRun) finish(ctx context.Context, message string) {
	s := r.service

	// Mirror fresh derivatives onto the source when this revision is its
	// live pointer, then fold the new content types into the work stats.
	// An approval may have landed while stages were running, so the stored
	// status wins over the snapshot loaded at job start.
	status := r.revision.Status
	if fresh, err := s.revisions.GetByID(ctx, r.revision.ID); err == nil {
		status = fresh.Status
	}
	if status == models.RevisionApproved {
		source, err := s.sources.GetByID(ctx, r.revision.SourceID)
		if err == nil && source.LatestRevisionID != nil && *source.LatestRevisionID == r.revision.ID {
			if err := s.sources.UpdateLatest(ctx, source.ID, r.revision.ID, r.revision.CreatedAt, r.derivatives); err != nil {
				s.logger.Sugar().Warnw("failed to mirror derivatives", "revision_id", r.revision.ID, "error", err)
			}
			if _, err := s.stats.RecomputeWorkStats(ctx, r.payload.WorkID); err != nil {
				s.logger.Sugar().Warnw("work stats recompute failed after pipeline", "work_id", r.payload.WorkID, "error", err)
			}
		}
	}
	s.broker.Done(r.correlation, message)
}

// fail records the stage failure and ends the run. Completed derivatives
// stay persisted and visible.
func (r *pipelineRun) fail(ctx context.Context, stage, message string) error {
	s := r.service
	full := fmt.Sprintf("%s: %s", stage, message)
	if err := s.revisions.SetPipelineError(ctx, r.revision.ID, full); err != nil {
		s.logger.Sugar().Warnw("failed to record pipeline error", "revision_id", r.revision.ID, "error", err)
	}
	now := time.Now().UTC()
	r.validation = models.ValidationState{
		Status:      models.ValidationFailed,
		Issues:      []string{full},
		PerformedAt: &now,
	}
	if err := r.persist(ctx); err != nil {
		s.logger.Sugar().Warnw("failed to persist failure snapshot", "revision_id", r.revision.ID, "error", err)
	}
	s.logger.Sugar().Warnw("pipeline stage failed", "revision_id", r.revision.ID, "stage", stage, "message", message)
	r.emit(stage, message)
	s.broker.Done(r.correlation, full)
	return nil
}

func (r *pipelineRun) persist(ctx context.Context) error {
	if err := r.service.revisions.UpdateDerivatives(ctx, r.revision.ID, r.derivatives, r.validation); err != nil {
		return fmt.Errorf("persist derivatives: %w", err)
	}
	r.revision.Derivatives = r.derivatives
	r.revision.Validation = r.validation
	return nil
}

func (r *pipelineRun) emit(stage, message string) {
	r.service.broker.Publish(r.correlation, progress.Event{Stage: stage, Message: message})
}

func (r *pipelineRun) observe(stage string, start time.Time, success bool) {
	if r.service.metrics != nil {
		r.service.metrics.ObservePipelineStage(stage, time.Since(start), success)
	}
}

func (r *pipelineRun) artifactKey(name string) string {
	return fmt.Sprintf("%s/%d/%s", r.revision.SourceID, r.revision.SequenceNumber, name)
}

// GetOrCreateDiff returns the cached diff for the ordered revision pair,
// producing and caching it on first request. Once written a diff is never
// regenerated; repeat calls return the identical locators.
func (s *PipelineService) GetOrCreateDiff(ctx context.Context, from, to *models.SourceRevision) (*models.RevisionDiff, error) {
	if from.SourceID != to.SourceID {
		return nil, fmt.Errorf("diff revisions belong to different sources")
	}
	if cached, err := s.diffs.GetByPair(ctx, from.ID, to.ID); err != nil {
		return nil, err
	} else if cached != nil {
		return cached, nil
	}

	fromBytes, err := s.canonicalBytes(ctx, from)
	if err != nil {
		return nil, err
	}
	toBytes, err := s.canonicalBytes(ctx, to)
	if err != nil {
		return nil, err
	}

	// The diff renderer reads both scores from one JSON envelope on stdin
	// and emits the marked-up PDF on stdout. Two identical scores still
	// yield a single-page PDF; zero differences is success, not failure.
	envelope, err := json.Marshal(map[string][]byte{"from": fromBytes, "to": toBytes})
	if err != nil {
		return nil, fmt.Errorf("marshal diff input: %w", err)
	}
	result, err := s.runConverter(ctx, s.cfg.DiffRenderer, envelope, s.cfg.DiffTimeout)
	if err != nil {
		return nil, fmt.Errorf("diff renderer: %w", err)
	}
	if !result.Ok() {
		return nil, fmt.Errorf("diff renderer: %s", converterFailure(s.cfg.DiffRenderer, result))
	}

	key := fmt.Sprintf("%s/diffs/%s_%s.pdf", from.SourceID, from.ID, to.ID)
	locator, err := s.blobs.Put(ctx, s.cfg.DerivedContainer, key, result.Output, ContentTypePDF)
	if err != nil {
		return nil, fmt.Errorf("store diff artifact: %w", err)
	}

	diff := &models.RevisionDiff{
		SourceID:     from.SourceID,
		FromRevision: from.ID,
		ToRevision:   to.ID,
		PDF:          &models.StorageLocator{Locator: locator},
	}
	if err := s.diffs.Create(ctx, diff); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			// Lost the race; the winner's artifact is the canonical one.
			return s.diffs.GetByPair(ctx, from.ID, to.ID)
		}
		return nil, err
	}
	return diff, nil
}

func (s *PipelineService) canonicalBytes(ctx context.Context, revision *models.SourceRevision) ([]byte, error) {
	locator := revision.RawStorage.Locator
	if revision.Derivatives.Canonical != nil {
		locator = *revision.Derivatives.Canonical
	}
	data, err := s.blobs.Get(ctx, locator.Container, locator.Key)
	if err != nil {
		return nil, fmt.Errorf("load score for revision %s: %w", revision.ID, err)
	}
	return data, nil
}

func (s *PipelineService) runConverter(ctx context.Context, executable string, input []byte, timeout time.Duration) (*converter.Result, error) {
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return s.runner.Run(runCtx, executable, input)
}

func converterFailure(name string, result *converter.Result) string {
	stderr := strings.TrimSpace(result.Stderr)
	if len(stderr) > 500 {
		stderr = stderr[:500]
	}
	if stderr == "" {
		return fmt.Sprintf("%s exited with code %d", name, result.ExitCode)
	}
	return fmt.Sprintf("%s exited with code %d: %s", name, result.ExitCode, stderr)
}

type mxlContainer struct {
	Rootfiles struct {
		Rootfile []struct {
			FullPath string `xml:"full-path,attr"`
		} `xml:"rootfile"`
	} `xml:"rootfiles"`
}

// resolveMXLScore extracts the score document from a compressed MusicXML
// container. The META-INF/container.xml full-path entry wins; without one
// the largest non-META-INF XML member is taken.
func resolveMXLScore(data []byte) ([]byte, error) {
	archive, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("open mxl archive: %w", err)
	}

	read := func(f *zip.File) ([]byte, error) {
		rc, err := f.Open()
		if err != nil {
			return nil, err
		}
		defer rc.Close()
		return io.ReadAll(rc)
	}

	byName := make(map[string]*zip.File, len(archive.File))
	for _, f := range archive.File {
		byName[f.Name] = f
	}

	if meta, ok := byName["META-INF/container.xml"]; ok {
		raw, err := read(meta)
		if err == nil {
			var container mxlContainer
			if xml.Unmarshal(raw, &container) == nil {
				for _, rf := range container.Rootfiles.Rootfile {
					if f, ok := byName[rf.FullPath]; ok {
						return read(f)
					}
				}
			}
		}
	}

	var best *zip.File
	for _, f := range archive.File {
		if strings.HasPrefix(f.Name, "META-INF/") {
			continue
		}
		ext := strings.ToLower(path.Ext(f.Name))
		if ext != ".xml" && ext != ".musicxml" {
			continue
		}
		if best == nil || f.UncompressedSize64 > best.UncompressedSize64 {
			best = f
		}
	}
	if best == nil {
		return nil, fmt.Errorf("no score document in mxl archive")
	}
	return read(best)
}
