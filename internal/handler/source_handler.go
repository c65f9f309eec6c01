package handler

import (
	"context"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/scorehub/scorehub-api/internal/dto"
	"github.com/scorehub/scorehub-api/internal/models"
	"github.com/scorehub/scorehub-api/internal/service"
	appErrors "github.com/scorehub/scorehub-api/pkg/errors"
	"github.com/scorehub/scorehub-api/pkg/response"
)

type sourceUploader interface {
	CreateSource(ctx context.Context, req dto.CreateSourceRequest, filename string, data []byte, actor *models.JWTClaims) (*dto.RevisionAcceptedResponse, error)
	DeleteSource(ctx context.Context, workID, sourceID string, actor *models.JWTClaims) error
}

type sourceModerator interface {
	Get(ctx context.Context, sourceID string) (*models.Source, error)
	SetVerified(ctx context.Context, sourceID string, verified bool, actor *models.JWTClaims) (*models.Source, error)
	Flag(ctx context.Context, sourceID, reason string, actor *models.JWTClaims) (*models.Source, error)
	ClearFlag(ctx context.Context, sourceID string, actor *models.JWTClaims) (*models.Source, error)
}

// SourceHandler serves source uploads, reads, moderation, and deletion.
type SourceHandler struct {
	revisions      sourceUploader
	sources        sourceModerator
	metrics        *service.MetricsService
	maxUploadBytes int64
}

// NewSourceHandler constructs the handler.
func NewSourceHandler(revisions sourceUploader, sources sourceModerator, metrics *service.MetricsService, maxUploadBytes int64) *SourceHandler {
	if maxUploadBytes <= 0 {
		maxUploadBytes = 25 * 1024 * 1024
	}
	return &SourceHandler{revisions: revisions, sources: sources, metrics: metrics, maxUploadBytes: maxUploadBytes}
}

func (h *SourceHandler) readUpload(c *gin.Context) (string, []byte, error) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		return "", nil, appErrors.Clone(appErrors.ErrValidation, "file is required")
	}
	if fileHeader.Size > h.maxUploadBytes {
		return "", nil, appErrors.Clone(appErrors.ErrValidation, "file exceeds the upload size limit")
	}
	src, err := fileHeader.Open()
	if err != nil {
		return "", nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to open file")
	}
	defer src.Close() //nolint:errcheck
	data, err := io.ReadAll(io.LimitReader(src, h.maxUploadBytes+1))
	if err != nil {
		return "", nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to buffer file")
	}
	if int64(len(data)) > h.maxUploadBytes {
		return "", nil, appErrors.Clone(appErrors.ErrValidation, "file exceeds the upload size limit")
	}
	return fileHeader.Filename, data, nil
}

// Upload godoc
// @Summary Upload a new source with its first revision
// @Description Creates the work on first sight of the catalogue id. The
// @Description derivative pipeline continues after the 202 response.
// @Tags Sources
// @Accept multipart/form-data
// @Produce json
// @Param catalogueId formData string true "Catalogue ID"
// @Param label formData string true "Source label"
// @Param file formData file true "Score file"
// @Success 202 {object} response.Envelope
// @Router /sources [post]
func (h *SourceHandler) Upload(c *gin.Context) {
	var req dto.CreateSourceRequest
	if err := c.ShouldBind(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid source payload"))
		return
	}
	filename, data, err := h.readUpload(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	accepted, err := h.revisions.CreateSource(c.Request.Context(), req, filename, data, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	h.metrics.RecordUpload()
	response.Accepted(c, accepted)
}

// Get godoc
// @Summary Get source metadata
// @Tags Sources
// @Produce json
// @Param sourceId path string true "Source ID"
// @Success 200 {object} response.Envelope
// @Router /sources/{sourceId} [get]
func (h *SourceHandler) Get(c *gin.Context) {
	source, err := h.sources.Get(c.Request.Context(), c.Param("sourceId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, source, nil)
}

// Delete godoc
// @Summary Delete a source with all revisions, diffs, and stored artifacts
// @Tags Sources
// @Produce json
// @Param sourceId path string true "Source ID"
// @Success 204
// @Router /sources/{sourceId} [delete]
func (h *SourceHandler) Delete(c *gin.Context) {
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
	if err := h.revisions.DeleteSource(c.Request.Context(), source.WorkID, source.ID, claims); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Verify godoc
// @Summary Set or clear the admin verification mark
// @Tags Sources
// @Accept json
// @Produce json
// @Param sourceId path string true "Source ID"
// @Param payload body dto.VerifySourceRequest true "Verification payload"
// @Success 200 {object} response.Envelope
// @Router /sources/{sourceId}/verified [put]
func (h *SourceHandler) Verify(c *gin.Context) {
	var req dto.VerifySourceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid verification payload"))
		return
	}
	source, err := h.sources.SetVerified(c.Request.Context(), c.Param("sourceId"), req.Verified, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, source, nil)
}

// Flag godoc
// @Summary Flag a source for moderation
// @Tags Sources
// @Accept json
// @Produce json
// @Param sourceId path string true "Source ID"
// @Param payload body dto.FlagSourceRequest true "Flag payload"
// @Success 200 {object} response.Envelope
// @Router /sources/{sourceId}/flag [post]
func (h *SourceHandler) Flag(c *gin.Context) {
	var req dto.FlagSourceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "flag reason is required"))
		return
	}
	source, err := h.sources.Flag(c.Request.Context(), c.Param("sourceId"), req.Reason, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, source, nil)
}

// ClearFlag godoc
// @Summary Clear a moderation flag
// @Tags Sources
// @Produce json
// @Param sourceId path string true "Source ID"
// @Success 200 {object} response.Envelope
// @Router /sources/{sourceId}/flag [delete]
func (h *SourceHandler) ClearFlag(c *gin.Context) {
	source, err := h.sources.ClearFlag(c.Request.Context(), c.Param("sourceId"), claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, source, nil)
}
