package repository

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-announcement-api/internal/models"
	appErrors "github.com/noah-isme/sma-announcement-api/pkg/errors"
)

func TestBatchRepositoryExists(t *testing.T) {
	db, mock, cleanup := newAnnouncementRepoMock(t)
	defer cleanup()
	repo := NewBatchRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS(SELECT 1 FROM batches WHERE id = $1)")).
		WithArgs("batch-1").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	exists, err := repo.Exists(context.Background(), "batch-1")
	require.NoError(t, err)
	assert.True(t, exists)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepositoryCurrentBatchID(t *testing.T) {
	db, mock, cleanup := newAnnouncementRepoMock(t)
	defer cleanup()
	repo := NewUserRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT batch_id FROM users WHERE id = $1")).
		WithArgs("student-1").
		WillReturnRows(sqlmock.NewRows([]string{"batch_id"}).AddRow("batch-1"))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT batch_id FROM users WHERE id = $1")).
		WithArgs("student-2").
		WillReturnRows(sqlmock.NewRows([]string{"batch_id"}).AddRow(nil))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT batch_id FROM users WHERE id = $1")).
		WithArgs("ghost").
		WillReturnError(sql.ErrNoRows)

	batchID, err := repo.CurrentBatchID(context.Background(), "student-1")
	require.NoError(t, err)
	require.NotNil(t, batchID)
	assert.Equal(t, "batch-1", *batchID)

	batchID, err = repo.CurrentBatchID(context.Background(), "student-2")
	require.NoError(t, err)
	assert.Nil(t, batchID)

	_, err = repo.CurrentBatchID(context.Background(), "ghost")
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAuditRepositoryCreate(t *testing.T) {
	db, mock, cleanup := newAnnouncementRepoMock(t)
	defer cleanup()
	repo := NewAuditRepository(db)

	userID := "admin-1"
	mock.ExpectExec("INSERT INTO audit_logs").
		WithArgs(sqlmock.AnyArg(), &userID, models.AuditActionAnnouncementDelete, "announcement", nil, sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	log := &models.AuditLog{UserID: &userID, Action: models.AuditActionAnnouncementDelete, Resource: "announcement"}
	require.NoError(t, repo.CreateAuditLog(context.Background(), log))
	assert.NotEmpty(t, log.ID)
	assert.False(t, log.CreatedAt.IsZero())
}

func TestCacheRepositoryWithoutClientMisses(t *testing.T) {
	repo := NewCacheRepository(nil, nil)
	var dest string
	err := repo.Get(context.Background(), "batch:exists:1", &dest)
	assert.True(t, errors.Is(err, appErrors.ErrCacheMiss))
	assert.NoError(t, repo.Set(context.Background(), "k", "v", time.Minute))
	assert.NoError(t, repo.Close())
}
