package models

import (
	"time"

	"github.com/lib/pq"
)

// Work is one catalogued musical work. It aggregates every Source
// transcribing it; the counter and flag columns are owned by the
// aggregation engine and recomputed in full on every source-level change.
type Work struct {
	ID                 string         `db:"id" json:"id"`
	CatalogueID        string         `db:"catalogue_id" json:"catalogueId"`
	Title              string         `db:"title" json:"title"`
	Composer           string         `db:"composer" json:"composer"`
	CatalogueNumber    string         `db:"catalogue_number" json:"catalogueNumber"`
	SourceCount        int            `db:"source_count" json:"sourceCount"`
	AvailableFormats   pq.StringArray `db:"available_formats" json:"availableFormats"`
	HasReferencePdf    bool           `db:"has_reference_pdf" json:"hasReferencePdf"`
	HasVerifiedSources bool           `db:"has_verified_sources" json:"hasVerifiedSources"`
	HasFlaggedSources  bool           `db:"has_flagged_sources" json:"hasFlaggedSources"`
	LatestRevisionAt   *time.Time     `db:"latest_revision_at" json:"latestRevisionAt,omitempty"`
	CreatedAt          time.Time      `db:"created_at" json:"createdAt"`
	UpdatedAt          time.Time      `db:"updated_at" json:"updatedAt"`
}

// WorkStats is the recomputed aggregate snapshot persisted onto the work row
// and pushed to the search index.
type WorkStats struct {
	WorkID             string     `json:"workId"`
	SourceCount        int        `json:"sourceCount"`
	AvailableFormats   []string   `json:"availableFormats"`
	HasReferencePdf    bool       `json:"hasReferencePdf"`
	HasVerifiedSources bool       `json:"hasVerifiedSources"`
	HasFlaggedSources  bool       `json:"hasFlaggedSources"`
	LatestRevisionAt   *time.Time `json:"latestRevisionAt,omitempty"`
}

// WorkSummaryDocument is the denormalised document upserted into the
// external search index.
type WorkSummaryDocument struct {
	WorkID          string    `json:"workId"`
	CatalogueID     string    `json:"catalogueId"`
	Title           string    `json:"title"`
	Composer        string    `json:"composer"`
	CatalogueNumber string    `json:"catalogueNumber"`
	Stats           WorkStats `json:"stats"`
	IndexedAt       time.Time `json:"indexedAt"`
}
