package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/scorehub/scorehub-api/pkg/blob"
)

// TrunkBranch is the default revision lineage of a source.
const TrunkBranch = "trunk"

// RevisionStatus is the approval state of a revision.
type RevisionStatus string

const (
	RevisionPendingApproval RevisionStatus = "pending_approval"
	RevisionApproved        RevisionStatus = "approved"
	RevisionRejected        RevisionStatus = "rejected"
)

// ApprovalDecision names the trigger that moved a revision out of pending.
type ApprovalDecision string

const (
	DecisionApprove ApprovalDecision = "approve"
	DecisionReject  ApprovalDecision = "reject"
)

// CanTransition encodes the approval state machine: pending revisions accept
// either decision, decided revisions accept only the repeat of the same
// decision (which callers treat as an idempotent no-op).
func (s RevisionStatus) CanTransition(decision ApprovalDecision) bool {
	switch s {
	case RevisionPendingApproval:
		return decision == DecisionApprove || decision == DecisionReject
	case RevisionApproved:
		return decision == DecisionApprove
	case RevisionRejected:
		return decision == DecisionReject
	default:
		return false
	}
}

// StorageLocator is a blob locator persisted as a JSONB column.
type StorageLocator struct {
	blob.Locator
}

// Value implements driver.Valuer.
func (l StorageLocator) Value() (driver.Value, error) {
	return json.Marshal(l.Locator)
}

// Scan implements sql.Scanner.
func (l *StorageLocator) Scan(src interface{}) error {
	return scanJSON(src, &l.Locator)
}

// DerivativeArtifacts holds the optional per-revision derived outputs. Each
// locator is produced once and never overwritten; a re-derivation writes a
// new key.
type DerivativeArtifacts struct {
	Normalized       *blob.Locator `json:"normalized,omitempty"`
	Canonical        *blob.Locator `json:"canonical,omitempty"`
	Linearized       *blob.Locator `json:"linearized,omitempty"`
	Render           *blob.Locator `json:"render,omitempty"`
	PackagedOriginal *blob.Locator `json:"packagedOriginal,omitempty"`
	Manifest         *blob.Locator `json:"manifest,omitempty"`
}

// Value implements driver.Valuer.
func (d DerivativeArtifacts) Value() (driver.Value, error) {
	return json.Marshal(d)
}

// Scan implements sql.Scanner.
func (d *DerivativeArtifacts) Scan(src interface{}) error {
	return scanJSON(src, d)
}

// Locators lists every present artifact locator.
func (d DerivativeArtifacts) Locators() []blob.Locator {
	var out []blob.Locator
	for _, l := range []*blob.Locator{d.Normalized, d.Canonical, d.Linearized, d.Render, d.PackagedOriginal, d.Manifest} {
		if l != nil && !l.IsZero() {
			out = append(out, *l)
		}
	}
	return out
}

// ContentTypes lists the distinct content types of present artifacts.
func (d DerivativeArtifacts) ContentTypes() []string {
	seen := make(map[string]struct{})
	var out []string
	for _, l := range d.Locators() {
		if l.ContentType == "" {
			continue
		}
		if _, ok := seen[l.ContentType]; ok {
			continue
		}
		seen[l.ContentType] = struct{}{}
		out = append(out, l.ContentType)
	}
	return out
}

// HasAny reports whether at least one derivative was produced.
func (d DerivativeArtifacts) HasAny() bool {
	return len(d.Locators()) > 0
}

// ValidationStatus is the recorded outcome of post-conversion validation.
type ValidationStatus string

const (
	ValidationPending ValidationStatus = "pending"
	ValidationPassed  ValidationStatus = "passed"
	ValidationFailed  ValidationStatus = "failed"
)

// ValidationState is the validation snapshot stored on a revision.
type ValidationState struct {
	Status      ValidationStatus `json:"status"`
	Issues      []string         `json:"issues,omitempty"`
	PerformedAt *time.Time       `json:"performedAt,omitempty"`
}

// Value implements driver.Valuer.
func (v ValidationState) Value() (driver.Value, error) {
	return json.Marshal(v)
}

// Scan implements sql.Scanner.
func (v *ValidationState) Scan(src interface{}) error {
	return scanJSON(src, v)
}

// SourceRevision is one immutable snapshot of a source's content. Only the
// status and approval columns change after insert.
type SourceRevision struct {
	ID              string              `db:"id" json:"id"`
	SourceID        string              `db:"source_id" json:"sourceId"`
	SequenceNumber  int                 `db:"sequence_number" json:"sequenceNumber"`
	Branch          string              `db:"branch" json:"branch"`
	CreatedBy       string              `db:"created_by" json:"createdBy"`
	CreatedAt       time.Time           `db:"created_at" json:"createdAt"`
	RawStorage      StorageLocator      `db:"raw_storage" json:"rawStorage"`
	Derivatives     DerivativeArtifacts `db:"derivatives" json:"derivatives"`
	Validation      ValidationState     `db:"validation" json:"validation"`
	PipelineError   *string             `db:"pipeline_error" json:"pipelineError,omitempty"`
	Status          RevisionStatus      `db:"status" json:"status"`
	ApprovalOwnerID *string             `db:"approval_owner_id" json:"approvalOwnerId,omitempty"`
	DecidedAt       *time.Time          `db:"decided_at" json:"decidedAt,omitempty"`
	DecidedBy       *string             `db:"decided_by" json:"decidedBy,omitempty"`
	Decision        *ApprovalDecision   `db:"decision" json:"decision,omitempty"`
}

// EffectiveValidationStatus is the status presented to viewers. A revision
// whose derivatives exist but whose snapshot is still pending is shown as
// passed while async validation catches up. This view-level smoothing
// conflates "never ran" with "ran and passed"; it is kept intentionally and
// the stored snapshot is never mutated by it.
func (r *SourceRevision) EffectiveValidationStatus() ValidationStatus {
	if r.Validation.Status == ValidationPending && r.Derivatives.HasAny() {
		return ValidationPassed
	}
	return r.Validation.Status
}

// RevisionDiff is the cached, content-addressed diff between two revisions
// of the same source. Once written it is never regenerated.
type RevisionDiff struct {
	ID           string          `db:"id" json:"id"`
	SourceID     string          `db:"source_id" json:"sourceId"`
	FromRevision string          `db:"from_revision" json:"fromRevision"`
	ToRevision   string          `db:"to_revision" json:"toRevision"`
	Report       *StorageLocator `db:"report" json:"report,omitempty"`
	HTML         *StorageLocator `db:"html" json:"html,omitempty"`
	PDF          *StorageLocator `db:"pdf" json:"pdf,omitempty"`
	CreatedAt    time.Time       `db:"created_at" json:"createdAt"`
}

// Locators lists the diff's present artifact locators.
func (d *RevisionDiff) Locators() []blob.Locator {
	var out []blob.Locator
	for _, l := range []*StorageLocator{d.Report, d.HTML, d.PDF} {
		if l != nil && !l.IsZero() {
			out = append(out, l.Locator)
		}
	}
	return out
}

func scanJSON(src interface{}, dst interface{}) error {
	switch v := src.(type) {
	case nil:
		return nil
	case []byte:
		if len(v) == 0 {
			return nil
		}
		return json.Unmarshal(v, dst)
	case string:
		if v == "" {
			return nil
		}
		return json.Unmarshal([]byte(v), dst)
	default:
		return fmt.Errorf("unsupported jsonb source type %T", src)
	}
}
