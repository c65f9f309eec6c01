package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/scorehub/scorehub-api/internal/dto"
	"github.com/scorehub/scorehub-api/internal/middleware"
	"github.com/scorehub/scorehub-api/internal/models"
)

type ratingServiceMock struct {
	rateErr  error
	histResp *models.RatingHistogram
}

func (m *ratingServiceMock) Rate(ctx context.Context, revisionID string, actor *models.JWTClaims, stars int) (*models.RevisionRating, error) {
	if m.rateErr != nil {
		return nil, m.rateErr
	}
	return &models.RevisionRating{ID: "rating-1", RevisionID: revisionID, UserID: actor.UserID, Stars: stars, IsAdmin: actor.IsAdmin()}, nil
}

func (m *ratingServiceMock) Histogram(ctx context.Context, revisionID string) (*models.RatingHistogram, error) {
	return m.histResp, nil
}

func ratingTestContext(t *testing.T, method, target string, body []byte) (*gin.Context, *httptest.ResponseRecorder) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, err := http.NewRequest(method, target, bytes.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	c.Request = req
	c.Params = gin.Params{{Key: "revisionId", Value: "rev-1"}}
	return c, w
}

func TestRatingHandlerRequiresAuth(t *testing.T) {
	handler := NewRatingHandler(&ratingServiceMock{})
	body, _ := json.Marshal(dto.RateRevisionRequest{Stars: 4})
	c, w := ratingTestContext(t, http.MethodPost, "/revisions/rev-1/ratings", body)

	handler.Rate(c)
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRatingHandlerCreatesRating(t *testing.T) {
	handler := NewRatingHandler(&ratingServiceMock{})
	body, _ := json.Marshal(dto.RateRevisionRequest{Stars: 4})
	c, w := ratingTestContext(t, http.MethodPost, "/revisions/rev-1/ratings", body)
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "user-1", Role: models.RoleContributor})

	handler.Rate(c)
	require.Equal(t, http.StatusCreated, w.Code)
	require.Contains(t, w.Body.String(), `"stars":4`)
}

func TestRatingHandlerRejectsInvalidPayload(t *testing.T) {
	handler := NewRatingHandler(&ratingServiceMock{})
	body, _ := json.Marshal(dto.RateRevisionRequest{Stars: 9})
	c, w := ratingTestContext(t, http.MethodPost, "/revisions/rev-1/ratings", body)
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "user-1", Role: models.RoleContributor})

	handler.Rate(c)
	require.Equal(t, http.StatusBadRequest, w.Code)
}
