package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/scorehub/scorehub-api/internal/dto"
	"github.com/scorehub/scorehub-api/internal/models"
	"github.com/scorehub/scorehub-api/internal/repository"
	appErrors "github.com/scorehub/scorehub-api/pkg/errors"
	"github.com/scorehub/scorehub-api/pkg/response"
)

type commentService interface {
	Create(ctx context.Context, revisionID string, actor *models.JWTClaims, body string, parentCommentID *string) (*models.RevisionComment, error)
	List(ctx context.Context, revisionID string) ([]models.RevisionComment, error)
	Delete(ctx context.Context, commentID string, actor *models.JWTClaims) error
	Vote(ctx context.Context, commentID string, actor *models.JWTClaims, direction models.VoteDirection) (*repository.VoteResult, error)
}

// CommentHandler serves comment threads and vote toggling.
type CommentHandler struct {
	comments commentService
}

// NewCommentHandler constructs the handler.
func NewCommentHandler(comments commentService) *CommentHandler {
	return &CommentHandler{comments: comments}
}

// Create godoc
// @Summary Post a comment or a single-level reply on a revision
// @Tags Engagement
// @Accept json
// @Produce json
// @Param revisionId path string true "Revision ID"
// @Param payload body dto.CreateCommentRequest true "Comment payload"
// @Success 201 {object} response.Envelope
// @Router /revisions/{revisionId}/comments [post]
func (h *CommentHandler) Create(c *gin.Context) {
	var req dto.CreateCommentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid comment payload"))
		return
	}
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	comment, err := h.comments.Create(c.Request.Context(), c.Param("revisionId"), claims, req.Body, req.ParentCommentID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, comment)
}

// List godoc
// @Summary List a revision's comment threads
// @Tags Engagement
// @Produce json
// @Param revisionId path string true "Revision ID"
// @Success 200 {object} response.Envelope
// @Router /revisions/{revisionId}/comments [get]
func (h *CommentHandler) List(c *gin.Context) {
	threads, err := h.comments.List(c.Request.Context(), c.Param("revisionId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, threads, nil)
}

// Delete godoc
// @Summary Soft-delete a comment
// @Tags Engagement
// @Produce json
// @Param commentId path string true "Comment ID"
// @Success 204
// @Router /comments/{commentId} [delete]
func (h *CommentHandler) Delete(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	if err := h.comments.Delete(c.Request.Context(), c.Param("commentId"), claims); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Vote godoc
// @Summary Toggle an up or down vote on a comment
// @Tags Engagement
// @Accept json
// @Produce json
// @Param commentId path string true "Comment ID"
// @Param payload body dto.VoteRequest true "Vote payload"
// @Success 200 {object} response.Envelope
// @Router /comments/{commentId}/votes [post]
func (h *CommentHandler) Vote(c *gin.Context) {
	var req dto.VoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "vote direction must be up or down"))
		return
	}
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	result, err := h.comments.Vote(c.Request.Context(), c.Param("commentId"), claims, models.VoteDirection(req.Direction))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, dto.VoteResponse{
		CommentID: c.Param("commentId"),
		VoteScore: result.VoteScore,
		Voted:     result.Voted,
		Direction: string(result.Direction),
	}, nil)
}
