package models

import "time"

// SourceType distinguishes what kind of edition a source transcribes.
type SourceType string

const (
	SourceTypeTranscription SourceType = "transcription"
	SourceTypeReferencePdf  SourceType = "reference_pdf"
)

// Source is one notated edition of a work. Its latest pointer tracks the
// newest approved revision and carries a denormalised copy of that
// revision's derivatives for cheap reads.
type Source struct {
	ID               string     `db:"id" json:"id"`
	WorkID           string     `db:"work_id" json:"workId"`
	Label            string     `db:"label" json:"label"`
	SourceType       SourceType `db:"source_type" json:"sourceType"`
	Format           string     `db:"format" json:"format"`
	OriginalFilename string     `db:"original_filename" json:"originalFilename"`
	IsPrimary        bool       `db:"is_primary" json:"isPrimary"`
	UploadedBy       string     `db:"uploaded_by" json:"uploadedBy"`

	AdminVerified bool       `db:"admin_verified" json:"adminVerified"`
	VerifiedBy    *string    `db:"verified_by" json:"verifiedBy,omitempty"`
	VerifiedAt    *time.Time `db:"verified_at" json:"verifiedAt,omitempty"`
	AdminFlagged  bool       `db:"admin_flagged" json:"adminFlagged"`
	FlaggedBy     *string    `db:"flagged_by" json:"flaggedBy,omitempty"`
	FlaggedAt     *time.Time `db:"flagged_at" json:"flaggedAt,omitempty"`
	FlagReason    *string    `db:"flag_reason" json:"flagReason,omitempty"`

	RevisionSeq      int                 `db:"revision_seq" json:"-"`
	LatestRevisionID *string             `db:"latest_revision_id" json:"latestRevisionId,omitempty"`
	LatestRevisionAt *time.Time          `db:"latest_revision_at" json:"latestRevisionAt,omitempty"`
	Derivatives      DerivativeArtifacts `db:"derivatives" json:"derivatives"`

	CreatedAt time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt time.Time `db:"updated_at" json:"updatedAt"`
}

// IsReferencePdf reports whether the source is a scanned reference edition
// rather than a machine-readable transcription.
func (s *Source) IsReferencePdf() bool {
	return s.SourceType == SourceTypeReferencePdf || s.Format == "pdf"
}
