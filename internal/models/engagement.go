package models

import "time"

// RevisionRating is one user's 1-5 star rating of a revision. Ratings are
// insert-only; the admin flag is frozen at write time so histograms stay
// stable if a user's role changes later.
type RevisionRating struct {
	ID         string    `db:"id" json:"id"`
	RevisionID string    `db:"revision_id" json:"revisionId"`
	UserID     string    `db:"user_id" json:"userId"`
	Stars      int       `db:"stars" json:"stars"`
	IsAdmin    bool      `db:"is_admin" json:"isAdmin"`
	CreatedAt  time.Time `db:"created_at" json:"createdAt"`
}

// RatingBucket is one star level of the histogram, split by rater kind.
type RatingBucket struct {
	Stars    int `json:"stars"`
	Admin    int `json:"admin"`
	NonAdmin int `json:"nonAdmin"`
}

// RatingHistogram is the dense 1..5 histogram returned for a revision.
type RatingHistogram struct {
	RevisionID string         `json:"revisionId"`
	Total      int            `json:"total"`
	Buckets    []RatingBucket `json:"buckets"`
}

// VoteDirection is an up or down vote on a comment.
type VoteDirection string

const (
	VoteUp   VoteDirection = "up"
	VoteDown VoteDirection = "down"
)

// Delta is the score contribution of one vote in this direction.
func (d VoteDirection) Delta() int {
	if d == VoteDown {
		return -1
	}
	return 1
}

// Valid reports whether the direction is one of the two known values.
func (d VoteDirection) Valid() bool {
	return d == VoteUp || d == VoteDown
}

// RevisionComment is a comment on a revision. Threading is a single level
// deep: replies carry the root comment's id and may not be replied to.
type RevisionComment struct {
	ID              string     `db:"id" json:"id"`
	RevisionID      string     `db:"revision_id" json:"revisionId"`
	ParentCommentID *string    `db:"parent_comment_id" json:"parentCommentId,omitempty"`
	UserID          string     `db:"user_id" json:"userId"`
	Body            string     `db:"body" json:"body"`
	VoteScore       int        `db:"vote_score" json:"voteScore"`
	IsDeleted       bool       `db:"is_deleted" json:"isDeleted"`
	CreatedAt       time.Time  `db:"created_at" json:"createdAt"`
	UpdatedAt       time.Time  `db:"updated_at" json:"updatedAt"`

	Replies []RevisionComment `db:"-" json:"replies,omitempty"`
}

// CommentVote is one user's current vote on a comment.
type CommentVote struct {
	ID        string        `db:"id" json:"id"`
	CommentID string        `db:"comment_id" json:"commentId"`
	UserID    string        `db:"user_id" json:"userId"`
	Direction VoteDirection `db:"direction" json:"direction"`
	CreatedAt time.Time     `db:"created_at" json:"createdAt"`
}
