package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/scorehub/scorehub-api/internal/models"
	"github.com/scorehub/scorehub-api/pkg/blob"
)

func newRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func TestRevisionRepositoryCreateDefaults(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewRevisionRepository(db)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO source_revisions")).
		WillReturnResult(sqlmock.NewResult(1, 1))

	revision := &models.SourceRevision{
		SourceID:       "src-1",
		SequenceNumber: 1,
		CreatedBy:      "user-1",
		RawStorage:     models.StorageLocator{Locator: blob.Locator{Container: "raw", Key: "src-1/1"}},
	}
	require.NoError(t, repo.Create(context.Background(), revision))
	require.NotEmpty(t, revision.ID)
	require.Equal(t, models.TrunkBranch, revision.Branch)
	require.Equal(t, models.ValidationPending, revision.Validation.Status)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRevisionRepositoryCreateDuplicateSequence(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewRevisionRepository(db)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO source_revisions")).
		WillReturnError(uniqueViolationErr())

	err := repo.Create(context.Background(), &models.SourceRevision{
		SourceID:       "src-1",
		SequenceNumber: 1,
		CreatedBy:      "user-1",
	})
	require.ErrorIs(t, err, ErrDuplicate)
}

func TestRevisionRepositoryPreviousOnBranch(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewRevisionRepository(db)
	rows := sqlmock.NewRows([]string{"id", "source_id", "sequence_number", "branch", "created_by", "created_at"}).
		AddRow("rev-2", "src-1", 2, models.TrunkBranch, "user-1", time.Now())
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, source_id, sequence_number")).
		WithArgs("src-1", models.TrunkBranch, 3).
		WillReturnRows(rows)

	prev, err := repo.PreviousOnBranch(context.Background(), "src-1", models.TrunkBranch, 3)
	require.NoError(t, err)
	require.NotNil(t, prev)
	require.Equal(t, "rev-2", prev.ID)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, source_id, sequence_number")).
		WithArgs("src-1", models.TrunkBranch, 1).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	prev, err = repo.PreviousOnBranch(context.Background(), "src-1", models.TrunkBranch, 1)
	require.NoError(t, err)
	require.Nil(t, prev)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRevisionRepositoryDistinctCreatorsExcludesSystem(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewRevisionRepository(db)
	rows := sqlmock.NewRows([]string{"created_by"}).AddRow("user-1").AddRow("user-2")
	mock.ExpectQuery(regexp.QuoteMeta("SELECT DISTINCT created_by FROM source_revisions")).
		WithArgs("src-1", models.SystemUserID).
		WillReturnRows(rows)

	creators, err := repo.DistinctCreators(context.Background(), "src-1")
	require.NoError(t, err)
	require.Equal(t, []string{"user-1", "user-2"}, creators)
	require.NoError(t, mock.ExpectationsWereMet())
}
