package dto

// RateRevisionRequest submits a star rating.
type RateRevisionRequest struct {
	Stars int `json:"stars" binding:"required,min=1,max=5"`
}

// CreateCommentRequest posts a comment or a single-level reply.
type CreateCommentRequest struct {
	Body            string  `json:"body" binding:"required"`
	ParentCommentID *string `json:"parentCommentId"`
}

// VoteRequest toggles a vote on a comment.
type VoteRequest struct {
	Direction string `json:"direction" binding:"required,oneof=up down"`
}

// VoteResponse reports the comment's score after the toggle.
type VoteResponse struct {
	CommentID string `json:"commentId"`
	VoteScore int    `json:"voteScore"`
	Voted     bool   `json:"voted"`
	Direction string `json:"direction,omitempty"`
}
