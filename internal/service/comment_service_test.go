package service

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/scorehub/scorehub-api/internal/models"
	"github.com/scorehub/scorehub-api/internal/repository"
	appErrors "github.com/scorehub/scorehub-api/pkg/errors"
)

type commentStoreStub struct {
	comments map[string]*models.RevisionComment
	votes    map[string]models.VoteDirection
	order    []string
}

func newCommentStoreStub() *commentStoreStub {
	return &commentStoreStub{
		comments: make(map[string]*models.RevisionComment),
		votes:    make(map[string]models.VoteDirection),
	}
}

func (s *commentStoreStub) Create(ctx context.Context, comment *models.RevisionComment) error {
	if comment.ID == "" {
		comment.ID = fmt.Sprintf("comment-%d", len(s.comments)+1)
	}
	comment.CreatedAt = time.Now().UTC()
	s.comments[comment.ID] = comment
	s.order = append(s.order, comment.ID)
	return nil
}

func (s *commentStoreStub) GetByID(ctx context.Context, id string) (*models.RevisionComment, error) {
	if c, ok := s.comments[id]; ok {
		copy := *c
		return &copy, nil
	}
	return nil, sql.ErrNoRows
}

func (s *commentStoreStub) ListByRevision(ctx context.Context, revisionID string) ([]models.RevisionComment, error) {
	var out []models.RevisionComment
	for _, id := range s.order {
		if c := s.comments[id]; c.RevisionID == revisionID {
			out = append(out, *c)
		}
	}
	return out, nil
}

func (s *commentStoreStub) SoftDelete(ctx context.Context, id string) error {
	c, ok := s.comments[id]
	if !ok {
		return sql.ErrNoRows
	}
	c.IsDeleted = true
	return nil
}

func (s *commentStoreStub) ToggleVote(ctx context.Context, commentID, userID string, direction models.VoteDirection) (*repository.VoteResult, error) {
	c, ok := s.comments[commentID]
	if !ok {
		return nil, sql.ErrNoRows
	}
	key := commentID + "/" + userID
	result := &repository.VoteResult{}
	switch existing, voted := s.votes[key]; {
	case !voted:
		s.votes[key] = direction
		c.VoteScore += direction.Delta()
		result.Voted = true
		result.Direction = direction
	case existing == direction:
		delete(s.votes, key)
		c.VoteScore -= direction.Delta()
	default:
		s.votes[key] = direction
		c.VoteScore += 2 * direction.Delta()
		result.Voted = true
		result.Direction = direction
	}
	result.VoteScore = c.VoteScore
	return result, nil
}

func newCommentFixture() (*CommentService, *commentStoreStub) {
	comments := newCommentStoreStub()
	revisions := newRevisionStoreStub()
	revisions.add(&models.SourceRevision{ID: "rev-1", SourceID: "src-1", Status: models.RevisionApproved})
	return NewCommentService(comments, revisions, nil), comments
}

func TestCreateCommentSanitizesBody(t *testing.T) {
	svc, _ := newCommentFixture()

	comment, err := svc.Create(context.Background(), "rev-1", contributorClaims("user-1"), "  nice <script>alert(1)</script> phrasing  ", nil)
	require.NoError(t, err)
	require.Equal(t, "nice  phrasing", comment.Body)

	_, err = svc.Create(context.Background(), "rev-1", contributorClaims("user-1"), "<script>only markup</script>", nil)
	require.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestCreateReplyToReplyIsRejected(t *testing.T) {
	svc, _ := newCommentFixture()
	actor := contributorClaims("user-1")

	root, err := svc.Create(context.Background(), "rev-1", actor, "root", nil)
	require.NoError(t, err)
	reply, err := svc.Create(context.Background(), "rev-1", actor, "reply", &root.ID)
	require.NoError(t, err)

	_, err = svc.Create(context.Background(), "rev-1", actor, "nested", &reply.ID)
	require.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestCreateReplyParentMustMatchRevision(t *testing.T) {
	svc, store := newCommentFixture()
	other := &models.RevisionComment{ID: "foreign", RevisionID: "rev-other", UserID: "user-2", Body: "x"}
	store.comments[other.ID] = other
	store.order = append(store.order, other.ID)

	_, err := svc.Create(context.Background(), "rev-1", contributorClaims("user-1"), "reply", &other.ID)
	require.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestListThreadsOneLevelAndBlanksDeleted(t *testing.T) {
	svc, _ := newCommentFixture()
	actor := contributorClaims("user-1")

	first, err := svc.Create(context.Background(), "rev-1", actor, "first", nil)
	require.NoError(t, err)
	_, err = svc.Create(context.Background(), "rev-1", actor, "second", nil)
	require.NoError(t, err)
	reply, err := svc.Create(context.Background(), "rev-1", contributorClaims("user-2"), "reply", &first.ID)
	require.NoError(t, err)
	require.NoError(t, svc.Delete(context.Background(), reply.ID, contributorClaims("user-2")))

	threads, err := svc.List(context.Background(), "rev-1")
	require.NoError(t, err)
	require.Len(t, threads, 2)
	require.Equal(t, "first", threads[0].Body)
	require.Len(t, threads[0].Replies, 1)
	require.True(t, threads[0].Replies[0].IsDeleted)
	require.Empty(t, threads[0].Replies[0].Body)
	require.Empty(t, threads[1].Replies)
}

func TestDeleteCommentAuthorOrAdminOnly(t *testing.T) {
	svc, _ := newCommentFixture()

	comment, err := svc.Create(context.Background(), "rev-1", contributorClaims("user-1"), "mine", nil)
	require.NoError(t, err)

	err = svc.Delete(context.Background(), comment.ID, contributorClaims("user-2"))
	require.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)

	require.NoError(t, svc.Delete(context.Background(), comment.ID, adminClaims("admin-1")))
}

func TestVoteToggleCycle(t *testing.T) {
	svc, _ := newCommentFixture()
	comment, err := svc.Create(context.Background(), "rev-1", contributorClaims("user-1"), "vote on me", nil)
	require.NoError(t, err)
	voter := contributorClaims("user-2")

	up, err := svc.Vote(context.Background(), comment.ID, voter, models.VoteUp)
	require.NoError(t, err)
	require.Equal(t, 1, up.VoteScore)
	require.True(t, up.Voted)

	flipped, err := svc.Vote(context.Background(), comment.ID, voter, models.VoteDown)
	require.NoError(t, err)
	require.Equal(t, -1, flipped.VoteScore)
	require.Equal(t, models.VoteDown, flipped.Direction)

	reverted, err := svc.Vote(context.Background(), comment.ID, voter, models.VoteDown)
	require.NoError(t, err)
	require.Equal(t, 0, reverted.VoteScore)
	require.False(t, reverted.Voted)
}

func TestVoteValidation(t *testing.T) {
	svc, _ := newCommentFixture()

	_, err := svc.Vote(context.Background(), "comment-1", contributorClaims("user-1"), "sideways")
	require.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)

	_, err = svc.Vote(context.Background(), "missing", contributorClaims("user-1"), models.VoteUp)
	require.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}
