package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/civicportal/session-core/internal/models"
	"github.com/civicportal/session-core/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSQLiteProfileRepo(t *testing.T) *SQLiteProfileRepository {
	t.Helper()
	repo, err := OpenSQLiteProfileRepository(context.Background(), filepath.Join(t.TempDir(), "profiles.db"))
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })
	return repo
}

func seedProfile(t *testing.T, repo *SQLiteProfileRepository) models.Profile {
	t.Helper()
	profile := models.Profile{
		PrincipalID: "worker-7",
		FullName:    "Ravi Kumar",
		Email:       "ravi@example.org",
		Role:        models.RoleWorker,
		IsActive:    true,
		CreatedAt:   time.Date(2023, 11, 5, 8, 30, 0, 0, time.UTC),
	}
	require.NoError(t, repo.UpsertProfile(context.Background(), profile))
	return profile
}

func TestSQLiteProfileRepository_FetchProfile(t *testing.T) {
	ctx := context.Background()

	t.Run("Found", func(t *testing.T) {
		repo := newTestSQLiteProfileRepo(t)
		want := seedProfile(t, repo)

		got, err := repo.FetchProfile(ctx, want.PrincipalID)
		require.NoError(t, err)
		assert.Equal(t, want.FullName, got.FullName)
		assert.Equal(t, want.Email, got.Email)
		assert.Equal(t, models.RoleWorker, got.Role)
		assert.True(t, got.IsActive)
		assert.True(t, want.CreatedAt.Equal(got.CreatedAt))
		assert.Nil(t, got.LastLogin)
		assert.Nil(t, got.LastLoginDevice)
	})

	t.Run("NotFound", func(t *testing.T) {
		repo := newTestSQLiteProfileRepo(t)
		_, err := repo.FetchProfile(ctx, "missing")
		assert.ErrorIs(t, err, repository.ErrProfileNotFound)
	})

	t.Run("ClosedDatabase", func(t *testing.T) {
		repo := newTestSQLiteProfileRepo(t)
		require.NoError(t, repo.Close())
		_, err := repo.FetchProfile(ctx, "worker-7")
		require.Error(t, err)
		assert.NotErrorIs(t, err, repository.ErrProfileNotFound)
	})
}

func TestSQLiteProfileRepository_RecordLogin(t *testing.T) {
	ctx := context.Background()

	t.Run("Success", func(t *testing.T) {
		repo := newTestSQLiteProfileRepo(t)
		profile := seedProfile(t, repo)

		at := time.Date(2024, 1, 15, 9, 0, 0, 0, time.UTC)
		device := models.LoginDevice{UserAgent: "portal/1.0", TimeZone: "Asia/Kolkata"}
		require.NoError(t, repo.RecordLogin(ctx, profile.PrincipalID, at, device))

		got, err := repo.FetchProfile(ctx, profile.PrincipalID)
		require.NoError(t, err)
		require.NotNil(t, got.LastLogin)
		assert.True(t, at.Equal(*got.LastLogin))
		require.NotNil(t, got.LastLoginDevice)
		assert.Equal(t, device, *got.LastLoginDevice)
	})

	t.Run("UpsertKeepsLoginBookkeeping", func(t *testing.T) {
		repo := newTestSQLiteProfileRepo(t)
		profile := seedProfile(t, repo)
		require.NoError(t, repo.RecordLogin(ctx, profile.PrincipalID, time.Now(), models.LoginDevice{UserAgent: "ua"}))

		profile.FullName = "Ravi K."
		require.NoError(t, repo.UpsertProfile(ctx, profile))

		got, err := repo.FetchProfile(ctx, profile.PrincipalID)
		require.NoError(t, err)
		assert.Equal(t, "Ravi K.", got.FullName)
		assert.NotNil(t, got.LastLogin)
	})

	t.Run("NotFound", func(t *testing.T) {
		repo := newTestSQLiteProfileRepo(t)
		err := repo.RecordLogin(ctx, "missing", time.Now(), models.LoginDevice{})
		assert.ErrorIs(t, err, repository.ErrProfileNotFound)
	})
}
