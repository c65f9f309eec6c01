package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/scorehub/scorehub-api/internal/dto"
	"github.com/scorehub/scorehub-api/internal/models"
	appErrors "github.com/scorehub/scorehub-api/pkg/errors"
	"github.com/scorehub/scorehub-api/pkg/response"
)

type ratingService interface {
	Rate(ctx context.Context, revisionID string, actor *models.JWTClaims, stars int) (*models.RevisionRating, error)
	Histogram(ctx context.Context, revisionID string) (*models.RatingHistogram, error)
}

// RatingHandler serves star ratings on revisions.
type RatingHandler struct {
	ratings ratingService
}

// NewRatingHandler constructs the handler.
func NewRatingHandler(ratings ratingService) *RatingHandler {
	return &RatingHandler{ratings: ratings}
}

// Rate godoc
// @Summary Rate a revision with 1-5 stars
// @Tags Engagement
// @Accept json
// @Produce json
// @Param revisionId path string true "Revision ID"
// @Param payload body dto.RateRevisionRequest true "Rating payload"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /revisions/{revisionId}/ratings [post]
func (h *RatingHandler) Rate(c *gin.Context) {
	var req dto.RateRevisionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "stars must be between 1 and 5"))
		return
	}
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	rating, err := h.ratings.Rate(c.Request.Context(), c.Param("revisionId"), claims, req.Stars)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, rating)
}

// Histogram godoc
// @Summary Get the dense per-star rating histogram of a revision
// @Tags Engagement
// @Produce json
// @Param revisionId path string true "Revision ID"
// @Success 200 {object} response.Envelope
// @Router /revisions/{revisionId}/ratings [get]
func (h *RatingHandler) Histogram(c *gin.Context) {
	hist, err := h.ratings.Histogram(c.Request.Context(), c.Param("revisionId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, hist, nil)
}
