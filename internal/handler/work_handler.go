package handler

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/scorehub/scorehub-api/internal/models"
	"github.com/scorehub/scorehub-api/internal/service"
	appErrors "github.com/scorehub/scorehub-api/pkg/errors"
	"github.com/scorehub/scorehub-api/pkg/response"
)

type workService interface {
	Get(ctx context.Context, id string) (*models.Work, error)
	List(ctx context.Context, p models.Pagination) ([]models.Work, models.Pagination, error)
	UpdateMetadata(ctx context.Context, workID, title, composer, catalogueNumber string, actor *models.JWTClaims) error
	Purge(ctx context.Context, workID string, actor *models.JWTClaims) error
	Export(ctx context.Context, workID string, format service.WorkExportFormat) (*service.WorkExport, error)
}

type workSourceService interface {
	ListByWork(ctx context.Context, workID string) ([]models.Source, error)
}

// WorkHandler serves the work catalogue.
type WorkHandler struct {
	works   workService
	sources workSourceService
}

// NewWorkHandler constructs the handler.
func NewWorkHandler(works workService, sources workSourceService) *WorkHandler {
	return &WorkHandler{works: works, sources: sources}
}

// List godoc
// @Summary List catalogued works
// @Tags Works
// @Produce json
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /works [get]
func (h *WorkHandler) List(c *gin.Context) {
	var p models.Pagination
	if err := c.ShouldBindQuery(&p); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid pagination"))
		return
	}
	works, page, err := h.works.List(c.Request.Context(), models.NewPagination(p.Page, p.Limit))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, works, &page)
}

// Get godoc
// @Summary Get one work by id or catalogue id
// @Tags Works
// @Produce json
// @Param workId path string true "Work ID"
// @Success 200 {object} response.Envelope
// @Router /works/{workId} [get]
func (h *WorkHandler) Get(c *gin.Context) {
	work, err := h.works.Get(c.Request.Context(), c.Param("workId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, work, nil)
}

// UpdateMetadata godoc
// @Summary Edit a work's catalogue metadata
// @Tags Works
// @Accept json
// @Produce json
// @Param workId path string true "Work ID"
// @Success 200 {object} response.Envelope
// @Router /works/{workId} [patch]
func (h *WorkHandler) UpdateMetadata(c *gin.Context) {
	var req struct {
		Title           string `json:"title" binding:"required"`
		Composer        string `json:"composer" binding:"required"`
		CatalogueNumber string `json:"catalogueNumber"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid work payload"))
		return
	}
	claims := claimsFromContext(c)
	if err := h.works.UpdateMetadata(c.Request.Context(), c.Param("workId"), req.Title, req.Composer, req.CatalogueNumber, claims); err != nil {
		response.Error(c, err)
		return
	}
	work, err := h.works.Get(c.Request.Context(), c.Param("workId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, work, nil)
}

// Purge godoc
// @Summary Delete an empty work
// @Description Only works without sources can be purged.
// @Tags Works
// @Produce json
// @Param workId path string true "Work ID"
// @Success 204
// @Router /works/{workId} [delete]
func (h *WorkHandler) Purge(c *gin.Context) {
	claims := claimsFromContext(c)
	if err := h.works.Purge(c.Request.Context(), c.Param("workId"), claims); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// ListSources godoc
// @Summary List a work's sources
// @Tags Works
// @Produce json
// @Param workId path string true "Work ID"
// @Success 200 {object} response.Envelope
// @Router /works/{workId}/sources [get]
func (h *WorkHandler) ListSources(c *gin.Context) {
	work, err := h.works.Get(c.Request.Context(), c.Param("workId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	sources, err := h.sources.ListByWork(c.Request.Context(), work.ID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, sources, nil)
}

// Export godoc
// @Summary Export a work's source overview as CSV or PDF
// @Tags Works
// @Produce octet-stream
// @Param workId path string true "Work ID"
// @Param format query string false "csv or pdf"
// @Success 200 {file} binary
// @Router /works/{workId}/export [get]
func (h *WorkHandler) Export(c *gin.Context) {
	format := service.WorkExportFormat(c.DefaultQuery("format", "csv"))
	export, err := h.works.Export(c.Request.Context(), c.Param("workId"), format)
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=\"%s\"", export.Filename))
	c.Header("Cache-Control", "no-store")
	c.Data(http.StatusOK, export.ContentType, export.Data)
}
