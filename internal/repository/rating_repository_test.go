package repository

import (
	"context"
	"regexp"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/scorehub/scorehub-api/internal/models"
)

func TestRatingRepositoryInsertDuplicate(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewRatingRepository(db)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO revision_ratings")).
		WillReturnResult(sqlmock.NewResult(1, 1))
	require.NoError(t, repo.Insert(context.Background(), &models.RevisionRating{
		RevisionID: "rev-1", UserID: "user-1", Stars: 4,
	}))

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO revision_ratings")).
		WillReturnError(uniqueViolationErr())
	err := repo.Insert(context.Background(), &models.RevisionRating{
		RevisionID: "rev-1", UserID: "user-1", Stars: 2,
	})
	require.ErrorIs(t, err, ErrDuplicate)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRatingRepositoryHistogramDenseBuckets(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewRatingRepository(db)
	rows := sqlmock.NewRows([]string{"stars", "is_admin", "count"}).
		AddRow(5, true, 2).
		AddRow(5, false, 3).
		AddRow(3, false, 1)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT stars, is_admin, COUNT(*)")).
		WithArgs("rev-1").
		WillReturnRows(rows)

	buckets, total, err := repo.Histogram(context.Background(), "rev-1")
	require.NoError(t, err)
	require.Len(t, buckets, 5)
	require.Equal(t, 6, total)
	require.Equal(t, 1, buckets[0].Stars)
	require.Zero(t, buckets[0].Admin+buckets[0].NonAdmin)
	require.Equal(t, 1, buckets[2].NonAdmin)
	require.Equal(t, 2, buckets[4].Admin)
	require.Equal(t, 3, buckets[4].NonAdmin)
	require.NoError(t, mock.ExpectationsWereMet())
}
