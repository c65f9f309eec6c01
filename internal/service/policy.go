package service

import (
	"github.com/scorehub/scorehub-api/internal/models"
	appErrors "github.com/scorehub/scorehub-api/pkg/errors"
)

// Action names an operation guarded by the authorization policy.
type Action string

const (
	ActionDecideRevision Action = "revision.decide"
	ActionDeleteSource   Action = "source.delete"
	ActionModerateSource Action = "source.moderate"
	ActionPurgeWork      Action = "work.purge"
	ActionManageUsers    Action = "user.manage"
)

// PolicyInput carries whatever the rule for the action needs. Unused fields
// stay nil.
type PolicyInput struct {
	Revision *models.SourceRevision
	Source   *models.Source

	// RevisionCreators is the distinct set of non-system creators across the
	// source's revisions; drives the sole-creator delete rule.
	RevisionCreators []string
}

// Authorize evaluates the single authorization policy. Owner-or-admin and
// sole-creator-or-admin rules live here and nowhere else.
func Authorize(actor *models.JWTClaims, action Action, input PolicyInput) error {
	if actor == nil {
		return appErrors.Clone(appErrors.ErrUnauthorized, "missing actor")
	}
	if actor.IsAdmin() {
		return nil
	}

	switch action {
	case ActionDecideRevision:
		rev := input.Revision
		if rev != nil && rev.ApprovalOwnerID != nil && *rev.ApprovalOwnerID == actor.UserID {
			return nil
		}
		return appErrors.Clone(appErrors.ErrForbidden, "only the approval owner or an admin may decide a revision")

	case ActionDeleteSource:
		creators := input.RevisionCreators
		if len(creators) == 0 {
			// No human revisions; fall back to upload provenance.
			if input.Source != nil && input.Source.UploadedBy == actor.UserID {
				return nil
			}
			return appErrors.Clone(appErrors.ErrForbidden, "only the uploader or an admin may delete this source")
		}
		if len(creators) == 1 && creators[0] == actor.UserID {
			return nil
		}
		return appErrors.Clone(appErrors.ErrForbidden, "sources with multiple contributors may only be deleted by an admin")

	case ActionModerateSource, ActionPurgeWork, ActionManageUsers:
		return appErrors.Clone(appErrors.ErrForbidden, "admin role required")

	default:
		return appErrors.Clone(appErrors.ErrForbidden, "unknown action")
	}
}
