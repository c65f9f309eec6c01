package dto

// FlagSourceRequest flags a source for moderation with a required reason.
type FlagSourceRequest struct {
	Reason string `json:"reason" binding:"required"`
}

// VerifySourceRequest toggles the admin verification mark.
type VerifySourceRequest struct {
	Verified bool `json:"verified"`
}
