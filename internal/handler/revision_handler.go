package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/scorehub/scorehub-api/internal/dto"
	"github.com/scorehub/scorehub-api/internal/models"
	"github.com/scorehub/scorehub-api/pkg/blob"
	appErrors "github.com/scorehub/scorehub-api/pkg/errors"
	"github.com/scorehub/scorehub-api/pkg/response"
)

type revisionService interface {
	CreateRevision(ctx context.Context, sourceID string, req dto.CreateRevisionRequest, filename string, data []byte, actor *models.JWTClaims) (*dto.RevisionAcceptedResponse, error)
	Approve(ctx context.Context, workID, sourceID, revisionID string, actor *models.JWTClaims) (*models.SourceRevision, error)
	Reject(ctx context.Context, workID, sourceID, revisionID string, actor *models.JWTClaims) (*models.SourceRevision, error)
	GetRevision(ctx context.Context, sourceID, revisionID string, viewer *models.JWTClaims) (*models.SourceRevision, error)
	ListRevisions(ctx context.Context, sourceID string, viewer *models.JWTClaims) ([]models.SourceRevision, error)
}

type diffProvider interface {
	GetOrCreateDiff(ctx context.Context, from, to *models.SourceRevision) (*models.RevisionDiff, error)
}

type sourceGetter interface {
	Get(ctx context.Context, sourceID string) (*models.Source, error)
}

// RevisionHandler serves revision uploads, approval decisions, and diffs.
type RevisionHandler struct {
	revisions revisionService
	sources   sourceGetter
	diffs     diffProvider
	blobs     blob.Store
	uploads   *SourceHandler
}

// NewRevisionHandler constructs the handler. The source handler is shared for
// its multipart upload plumbing.
func NewRevisionHandler(revisions revisionService, sources sourceGetter, diffs diffProvider, blobs blob.Store, uploads *SourceHandler) *RevisionHandler {
	return &RevisionHandler{revisions: revisions, sources: sources, diffs: diffs, blobs: blobs, uploads: uploads}
}

func revisionView(revision *models.SourceRevision) dto.RevisionView {
	return dto.RevisionView{
		Revision:         revision,
		ValidationStatus: string(revision.EffectiveValidationStatus()),
	}
}

// Create godoc
// @Summary Upload a new revision of an existing source
// @Tags Revisions
// @Accept multipart/form-data
// @Produce json
// @Param sourceId path string true "Source ID"
// @Param file formData file true "Score file"
// @Success 202 {object} response.Envelope
// @Router /sources/{sourceId}/revisions [post]
func (h *RevisionHandler) Create(c *gin.Context) {
	var req dto.CreateRevisionRequest
	if err := c.ShouldBind(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid revision payload"))
		return
	}
	filename, data, err := h.uploads.readUpload(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	accepted, err := h.revisions.CreateRevision(c.Request.Context(), c.Param("sourceId"), req, filename, data, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	h.uploads.metrics.RecordUpload()
	response.Accepted(c, accepted)
}

// List godoc
// @Summary List a source's revisions visible to the viewer
// @Tags Revisions
// @Produce json
// @Param sourceId path string true "Source ID"
// @Success 200 {object} response.Envelope
// @Router /sources/{sourceId}/revisions [get]
func (h *RevisionHandler) List(c *gin.Context) {
	revisions, err := h.revisions.ListRevisions(c.Request.Context(), c.Param("sourceId"), claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	views := make([]dto.RevisionView, 0, len(revisions))
	for i := range revisions {
		views = append(views, revisionView(&revisions[i]))
	}
	response.JSON(c, http.StatusOK, views, nil)
}

// Get godoc
// @Summary Get one revision
// @Tags Revisions
// @Produce json
// @Param sourceId path string true "Source ID"
// @Param revisionId path string true "Revision ID"
// @Success 200 {object} response.Envelope
// @Router /sources/{sourceId}/revisions/{revisionId} [get]
func (h *RevisionHandler) Get(c *gin.Context) {
	revision, err := h.revisions.GetRevision(c.Request.Context(), c.Param("sourceId"), c.Param("revisionId"), claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, revisionView(revision), nil)
}

func (h *RevisionHandler) decide(c *gin.Context, approve bool) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	source, err := h.sources.Get(c.Request.Context(), c.Param("sourceId"))
	if err != nil {
		response.Error(c, err)
		return
	}

	var revision *models.SourceRevision
	if approve {
		revision, err = h.revisions.Approve(c.Request.Context(), source.WorkID, source.ID, c.Param("revisionId"), claims)
	} else {
		revision, err = h.revisions.Reject(c.Request.Context(), source.WorkID, source.ID, c.Param("revisionId"), claims)
	}
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, revisionView(revision), nil)
}

// Approve godoc
// @Summary Approve a pending revision
// @Tags Revisions
// @Produce json
// @Param sourceId path string true "Source ID"
// @Param revisionId path string true "Revision ID"
// @Success 200 {object} response.Envelope
// @Router /sources/{sourceId}/revisions/{revisionId}/approve [post]
func (h *RevisionHandler) Approve(c *gin.Context) {
	h.decide(c, true)
}

// Reject godoc
// @Summary Reject a pending revision
// @Tags Revisions
// @Produce json
// @Param sourceId path string true "Source ID"
// @Param revisionId path string true "Revision ID"
// @Success 200 {object} response.Envelope
// @Router /sources/{sourceId}/revisions/{revisionId}/reject [post]
func (h *RevisionHandler) Reject(c *gin.Context) {
	h.decide(c, false)
}

// Diff godoc
// @Summary Get the cached diff between two revisions of a source
// @Description The diff is produced on first request and served from the
// @Description cache afterwards. With format=pdf the marked-up document is
// @Description streamed directly.
// @Tags Revisions
// @Produce json
// @Param sourceId path string true "Source ID"
// @Param revisionId path string true "Newer revision ID"
// @Param from query string true "Older revision ID"
// @Param format query string false "json or pdf"
// @Success 200 {object} response.Envelope
// @Router /sources/{sourceId}/revisions/{revisionId}/diff [get]
func (h *RevisionHandler) Diff(c *gin.Context) {
	fromID := strings.TrimSpace(c.Query("from"))
	if fromID == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "from revision is required"))
		return
	}
	viewer := claimsFromContext(c)
	sourceID := c.Param("sourceId")

	to, err := h.revisions.GetRevision(c.Request.Context(), sourceID, c.Param("revisionId"), viewer)
	if err != nil {
		response.Error(c, err)
		return
	}
	from, err := h.revisions.GetRevision(c.Request.Context(), sourceID, fromID, viewer)
	if err != nil {
		response.Error(c, err)
		return
	}

	diff, err := h.diffs.GetOrCreateDiff(c.Request.Context(), from, to)
	if err != nil {
		response.Error(c, err)
		return
	}

	if c.Query("format") == "pdf" {
		if diff.PDF == nil {
			response.Error(c, appErrors.Clone(appErrors.ErrNotFound, "diff document not available"))
			return
		}
		data, err := h.blobs.Get(c.Request.Context(), diff.PDF.Container, diff.PDF.Key)
		if err != nil {
			response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load diff document"))
			return
		}
		c.Header("Cache-Control", "no-store")
		c.Data(http.StatusOK, diff.PDF.ContentType, data)
		return
	}
	response.JSON(c, http.StatusOK, diff, nil)
}
