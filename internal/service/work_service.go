package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/scorehub/scorehub-api/internal/models"
	appErrors "github.com/scorehub/scorehub-api/pkg/errors"
	"github.com/scorehub/scorehub-api/pkg/export"
)

type workStore interface {
	GetByID(ctx context.Context, id string) (*models.Work, error)
	GetByCatalogueID(ctx context.Context, catalogueID string) (*models.Work, error)
	List(ctx context.Context, p models.Pagination) ([]models.Work, int, error)
	UpdateMetadata(ctx context.Context, workID, title, composer, catalogueNumber string) error
	Delete(ctx context.Context, workID string) error
}

type workSourceLister interface {
	ListByWork(ctx context.Context, workID string) ([]models.Source, error)
}

// WorkExportFormat selects the export rendering.
type WorkExportFormat string

const (
	WorkExportCSV WorkExportFormat = "csv"
	WorkExportPDF WorkExportFormat = "pdf"
)

// WorkExport is a rendered work-stats export.
type WorkExport struct {
	Filename    string
	ContentType string
	Data        []byte
}

// WorkService serves work reads, metadata edits, purges, and stats exports.
type WorkService struct {
	works   workStore
	sources workSourceLister
	index   SearchIndex
	csv     *export.CSVExporter
	pdf     *export.PDFExporter
	logger  *zap.Logger
}

// NewWorkService constructs the work service. index may be nil.
func NewWorkService(works workStore, sources workSourceLister, index SearchIndex, logger *zap.Logger) *WorkService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WorkService{
		works:   works,
		sources: sources,
		index:   index,
		csv:     export.NewCSVExporter(),
		pdf:     export.NewPDFExporter(),
		logger:  logger,
	}
}

// Get loads a work by internal id, falling back to the catalogue id.
func (s *WorkService) Get(ctx context.Context, id string) (*models.Work, error) {
	work, err := s.works.GetByID(ctx, id)
	if err == nil {
		return work, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load work")
	}
	work, err = s.works.GetByCatalogueID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "work not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load work")
	}
	return work, nil
}

// List pages through the catalogue.
func (s *WorkService) List(ctx context.Context, p models.Pagination) ([]models.Work, models.Pagination, error) {
	works, total, err := s.works.List(ctx, p)
	if err != nil {
		return nil, p, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list works")
	}
	p.TotalCount = total
	return works, p, nil
}

// UpdateMetadata edits the cached catalogue fields; admin only.
func (s *WorkService) UpdateMetadata(ctx context.Context, workID, title, composer, catalogueNumber string, actor *models.JWTClaims) error {
	if err := Authorize(actor, ActionModerateSource, PolicyInput{}); err != nil {
		return err
	}
	if err := s.works.UpdateMetadata(ctx, workID, title, composer, catalogueNumber); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "work not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update work metadata")
	}
	return nil
}

// Purge removes an empty work from the catalogue and the search index.
// Works that still have sources must be emptied first; deleting them here
// would silently drop revision history.
func (s *WorkService) Purge(ctx context.Context, workID string, actor *models.JWTClaims) error {
	if err := Authorize(actor, ActionPurgeWork, PolicyInput{}); err != nil {
		return err
	}
	work, err := s.Get(ctx, workID)
	if err != nil {
		return err
	}
	remaining, err := s.sources.ListByWork(ctx, work.ID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list sources")
	}
	if len(remaining) > 0 {
		return appErrors.Clone(appErrors.ErrConflict, "work still has sources")
	}
	if err := s.works.Delete(ctx, work.ID); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete work")
	}
	if s.index != nil {
		if err := s.index.RemoveWork(ctx, work.ID); err != nil {
			s.logger.Sugar().Warnw("failed to remove work from search index", "work_id", work.ID, "error", err)
		}
	}
	return nil
}

// Export renders the work's per-source stats as CSV or PDF.
func (s *WorkService) Export(ctx context.Context, workID string, format WorkExportFormat) (*WorkExport, error) {
	work, err := s.Get(ctx, workID)
	if err != nil {
		return nil, err
	}
	sources, err := s.sources.ListByWork(ctx, work.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list sources")
	}

	dataset := export.Dataset{
		Headers: []string{"Label", "Type", "Format", "Verified", "Flagged", "Latest Revision", "Derived Formats"},
	}
	for i := range sources {
		src := &sources[i]
		latest := ""
		if src.LatestRevisionAt != nil {
			latest = src.LatestRevisionAt.UTC().Format(time.RFC3339)
		}
		dataset.Rows = append(dataset.Rows, map[string]string{
			"Label":           src.Label,
			"Type":            string(src.SourceType),
			"Format":          src.Format,
			"Verified":        fmt.Sprintf("%t", src.AdminVerified),
			"Flagged":         fmt.Sprintf("%t", src.AdminFlagged),
			"Latest Revision": latest,
			"Derived Formats": strings.Join(src.Derivatives.ContentTypes(), " "),
		})
	}

	switch format {
	case WorkExportPDF:
		title := fmt.Sprintf("%s - %s", work.Composer, work.Title)
		data, err := s.pdf.Render(dataset, title)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render pdf export")
		}
		return &WorkExport{
			Filename:    fmt.Sprintf("work-%s-sources.pdf", work.CatalogueID),
			ContentType: ContentTypePDF,
			Data:        data,
		}, nil
	case WorkExportCSV, "":
		data, err := s.csv.Render(dataset)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render csv export")
		}
		return &WorkExport{
			Filename:    fmt.Sprintf("work-%s-sources.csv", work.CatalogueID),
			ContentType: "text/csv",
			Data:        data,
		}, nil
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, "unsupported export format")
	}
}
