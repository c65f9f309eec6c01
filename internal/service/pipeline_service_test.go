package service

import (
	"archive/zip"
	"bytes"
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/scorehub/scorehub-api/internal/converter"
	"github.com/scorehub/scorehub-api/internal/models"
	"github.com/scorehub/scorehub-api/pkg/blob"
	"github.com/scorehub/scorehub-api/pkg/jobs"
	"github.com/scorehub/scorehub-api/pkg/progress"
)

type runnerStub struct {
	calls    []string
	outputs  map[string][]byte
	failExec string
	onRun    func(executable string)
}

func newRunnerStub() *runnerStub {
	return &runnerStub{outputs: make(map[string][]byte)}
}

func (r *runnerStub) Run(ctx context.Context, executable string, input []byte, args ...string) (*converter.Result, error) {
	r.calls = append(r.calls, executable)
	if r.onRun != nil {
		r.onRun(executable)
	}
	if executable == r.failExec {
		return &converter.Result{Stderr: "boom", ExitCode: 1}, nil
	}
	out, ok := r.outputs[executable]
	if !ok {
		out = []byte(executable + " output")
	}
	return &converter.Result{Output: out, ExitCode: 0}, nil
}

type pipelineFixture struct {
	revisions *revisionStoreStub
	sources   *sourceStoreStub
	diffs     *diffStoreStub
	blobs     *blob.MemoryStore
	runner    *runnerStub
	broker    *progress.Broker
	stats     *statsStub
	service   *PipelineService
}

func newPipelineFixture() *pipelineFixture {
	f := &pipelineFixture{
		revisions: newRevisionStoreStub(),
		sources:   newSourceStoreStub(),
		diffs:     newDiffStoreStub(),
		blobs:     blob.NewMemoryStore(),
		runner:    newRunnerStub(),
		broker:    progress.NewBroker(64),
		stats:     &statsStub{},
	}
	f.service = NewPipelineService(
		f.revisions, f.sources, f.diffs, f.blobs, f.runner, f.broker, f.stats, nil, nil,
		PipelineConfig{
			DerivedContainer:  "derived",
			NotationConverter: "mscore",
			Linearizer:        "linearize",
			Renderer:          "verovio",
			DiffRenderer:      "musicdiff",
			RenderEnabled:     true,
			DiffEnabled:       true,
		},
	)
	return f
}

func (f *pipelineFixture) seedRevision(t *testing.T, id string, seq int, format string) *models.SourceRevision {
	t.Helper()
	ctx := context.Background()
	raw, err := f.blobs.Put(ctx, "raw", fmt.Sprintf("src-1/%d/upload.%s", seq, format), []byte("raw "+id), "application/octet-stream")
	require.NoError(t, err)
	rev := &models.SourceRevision{
		ID: id, SourceID: "src-1", SequenceNumber: seq, Branch: models.TrunkBranch,
		CreatedBy: "user-1", Status: models.RevisionApproved,
		RawStorage: models.StorageLocator{Locator: raw},
		Validation: models.ValidationState{Status: models.ValidationPending},
	}
	f.revisions.add(rev)
	return rev
}

func (f *pipelineFixture) handle(t *testing.T, rev *models.SourceRevision, format, correlation string) {
	t.Helper()
	err := f.service.Handle(context.Background(), jobs.Job{
		ID: rev.ID, Type: PipelineJobType, CorrelationID: correlation,
		Payload: PipelineJobPayload{WorkID: "work-1", SourceID: rev.SourceID, RevisionID: rev.ID, Format: format},
	})
	require.NoError(t, err)
}

func collectEvents(t *testing.T, broker *progress.Broker, correlation string) []progress.Event {
	t.Helper()
	ch, cancel := broker.Subscribe(correlation)
	defer cancel()
	var events []progress.Event
	for e := range ch {
		events = append(events, e)
	}
	return events
}

func TestPipelineProducesAllDerivatives(t *testing.T) {
	f := newPipelineFixture()
	f.sources.add(&models.Source{ID: "src-1", WorkID: "work-1"})
	rev := f.seedRevision(t, "rev-1", 1, "mscz")

	f.handle(t, rev, "mscz", "corr-1")

	stored, err := f.revisions.GetByID(context.Background(), "rev-1")
	require.NoError(t, err)
	require.NotNil(t, stored.Derivatives.Canonical)
	require.NotNil(t, stored.Derivatives.Normalized)
	require.NotNil(t, stored.Derivatives.Linearized)
	require.NotNil(t, stored.Derivatives.Render)
	require.NotNil(t, stored.Derivatives.Manifest)
	require.Nil(t, stored.PipelineError)
	require.Equal(t, ContentTypeMusicXML, stored.Derivatives.Canonical.ContentType)
	require.Equal(t, models.ValidationPassed, stored.EffectiveValidationStatus())
	require.Equal(t, []string{"mscore", "linearize", "verovio"}, f.runner.calls)

	events := collectEvents(t, f.broker, "corr-1")
	require.NotEmpty(t, events)
	require.Equal(t, StageStoreRaw, events[0].Stage)
	last := events[len(events)-1]
	require.Equal(t, progress.DoneStage, last.Stage)
	require.True(t, last.Terminal)
}

func TestPipelineMirrorsDerivativesOntoLatestSource(t *testing.T) {
	f := newPipelineFixture()
	latest := "rev-1"
	f.sources.add(&models.Source{ID: "src-1", WorkID: "work-1", LatestRevisionID: &latest})
	rev := f.seedRevision(t, "rev-1", 1, "musicxml")

	f.handle(t, rev, "musicxml", "corr-1")

	source, err := f.sources.GetByID(context.Background(), "src-1")
	require.NoError(t, err)
	require.NotNil(t, source.Derivatives.Canonical)
	require.Equal(t, []string{"work-1"}, f.stats.calls)
}

func TestPipelineMirrorsWhenApprovalLandsMidRun(t *testing.T) {
	f := newPipelineFixture()
	f.sources.add(&models.Source{ID: "src-1", WorkID: "work-1"})
	rev := f.seedRevision(t, "rev-1", 1, "musicxml")
	rev.Status = models.RevisionPendingApproval

	// Approval arrives while a stage is still executing.
	f.runner.onRun = func(string) {
		latest := "rev-1"
		f.revisions.revisions["rev-1"].Status = models.RevisionApproved
		f.sources.sources["src-1"].LatestRevisionID = &latest
	}

	f.handle(t, rev, "musicxml", "corr-1")

	source, err := f.sources.GetByID(context.Background(), "src-1")
	require.NoError(t, err)
	require.NotNil(t, source.Derivatives.Canonical)
	require.Equal(t, []string{"work-1"}, f.stats.calls)
}

func TestPipelineStageFailureHaltsButKeepsCompletedDerivatives(t *testing.T) {
	f := newPipelineFixture()
	f.sources.add(&models.Source{ID: "src-1", WorkID: "work-1"})
	rev := f.seedRevision(t, "rev-1", 1, "musicxml")
	f.runner.failExec = "linearize"

	f.handle(t, rev, "musicxml", "corr-1")

	stored, err := f.revisions.GetByID(context.Background(), "rev-1")
	require.NoError(t, err)
	require.NotNil(t, stored.Derivatives.Canonical)
	require.Nil(t, stored.Derivatives.Linearized)
	require.Nil(t, stored.Derivatives.Render)
	require.Nil(t, stored.Derivatives.Manifest)
	require.NotNil(t, stored.PipelineError)
	require.Contains(t, *stored.PipelineError, StageLinearize)
	require.Equal(t, models.ValidationFailed, stored.Validation.Status)

	// The renderer never ran.
	require.NotContains(t, f.runner.calls, "verovio")

	events := collectEvents(t, f.broker, "corr-1")
	require.True(t, events[len(events)-1].Terminal)
}

func TestPipelineReferencePdfOnlyWritesManifest(t *testing.T) {
	f := newPipelineFixture()
	f.sources.add(&models.Source{ID: "src-1", WorkID: "work-1"})
	rev := f.seedRevision(t, "rev-1", 1, "pdf")

	f.handle(t, rev, "pdf", "corr-1")

	stored, err := f.revisions.GetByID(context.Background(), "rev-1")
	require.NoError(t, err)
	require.Nil(t, stored.Derivatives.Canonical)
	require.NotNil(t, stored.Derivatives.Manifest)
	require.Empty(t, f.runner.calls)
}

func TestPipelineDiffRunsAgainstPreviousBranchRevision(t *testing.T) {
	f := newPipelineFixture()
	f.sources.add(&models.Source{ID: "src-1", WorkID: "work-1"})
	f.seedRevision(t, "rev-1", 1, "musicxml")
	rev2 := f.seedRevision(t, "rev-2", 2, "musicxml")

	f.handle(t, rev2, "musicxml", "corr-2")

	require.Contains(t, f.runner.calls, "musicdiff")
	diff, err := f.diffs.GetByPair(context.Background(), "rev-1", "rev-2")
	require.NoError(t, err)
	require.NotNil(t, diff)
	require.NotNil(t, diff.PDF)
}

func TestGetOrCreateDiffIsReadThroughCached(t *testing.T) {
	f := newPipelineFixture()
	from := f.seedRevision(t, "rev-1", 1, "musicxml")
	to := f.seedRevision(t, "rev-2", 2, "musicxml")

	first, err := f.service.GetOrCreateDiff(context.Background(), from, to)
	require.NoError(t, err)
	require.Len(t, f.runner.calls, 1)

	second, err := f.service.GetOrCreateDiff(context.Background(), from, to)
	require.NoError(t, err)
	require.Len(t, f.runner.calls, 1)
	require.Equal(t, first.PDF.Checksum, second.PDF.Checksum)
	require.Equal(t, first.PDF.Key, second.PDF.Key)
}

func buildMXL(t *testing.T, files map[string]string) []byte {
	t.Helper()
	buf := &bytes.Buffer{}
	w := zip.NewWriter(buf)
	for name, content := range files {
		f, err := w.Create(name)
		require.NoError(t, err)
		_, err = f.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func TestResolveMXLScoreUsesContainerEntry(t *testing.T) {
	archive := buildMXL(t, map[string]string{
		"META-INF/container.xml": `<container><rootfiles><rootfile full-path="score.xml"/></rootfiles></container>`,
		"score.xml":              "<score/>",
		"other.xml":              "<bigger score document that is longer/>",
	})
	score, err := resolveMXLScore(archive)
	require.NoError(t, err)
	require.Equal(t, "<score/>", string(score))
}

func TestResolveMXLScoreFallsBackToLargestXML(t *testing.T) {
	archive := buildMXL(t, map[string]string{
		"small.xml": "<a/>",
		"large.xml": "<score with much more content inside/>",
		"notes.txt": "ignored",
	})
	score, err := resolveMXLScore(archive)
	require.NoError(t, err)
	require.Equal(t, "<score with much more content inside/>", string(score))

	_, err = resolveMXLScore(buildMXL(t, map[string]string{"readme.txt": "x"}))
	require.Error(t, err)
}
