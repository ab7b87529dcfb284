package database

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestRepo(t *testing.T) *SQLiteRepository {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "accounts.db")
	repo, err := OpenSQLite(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })
	return repo
}

func TestInsertOrIgnoreAndGetAuthView(t *testing.T) {
	repo := openTestRepo(t)

	salt := [64]byte{1, 2, 3}
	hash := [64]byte{4, 5, 6}
	id, err := repo.InsertOrIgnore("alice", salt, hash, 1000)
	require.NoError(t, err)
	assert.Greater(t, id, int64(0))

	view, err := repo.GetAuthViewByUsername("alice")
	require.NoError(t, err)
	assert.Equal(t, id, view.ID)
	assert.Equal(t, "alice", view.Username)
	assert.Equal(t, hash, view.PasswordHash)
	assert.Equal(t, salt, view.PasswordSalt)
	assert.Equal(t, RoleUser, view.Role)
	assert.True(t, view.IsActive)
	assert.Equal(t, 0, view.FailedLoginCount)
	assert.Equal(t, int64(0), view.LastFailedLoginAt)
}

func TestInsertOrIgnoreDuplicateUsername(t *testing.T) {
	repo := openTestRepo(t)

	salt := [64]byte{1}
	hash := [64]byte{2}
	id, err := repo.InsertOrIgnore("alice", salt, hash, 1000)
	require.NoError(t, err)
	require.Greater(t, id, int64(0))

	dupID, err := repo.InsertOrIgnore("alice", salt, hash, 2000)
	require.NoError(t, err)
	assert.LessOrEqual(t, dupID, int64(0))
}

func TestGetAuthViewNotFound(t *testing.T) {
	repo := openTestRepo(t)

	_, err := repo.GetAuthViewByUsername("ghost")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGetForPasswordChangeRoundTrip(t *testing.T) {
	repo := openTestRepo(t)

	salt := [64]byte{9}
	hash := [64]byte{10}
	id, err := repo.InsertOrIgnore("bob", salt, hash, 1000)
	require.NoError(t, err)

	view, err := repo.GetForPasswordChangeByUsername("bob")
	require.NoError(t, err)
	assert.Equal(t, id, view.ID)
	assert.Equal(t, hash, view.PasswordHash)
	assert.Equal(t, salt, view.PasswordSalt)
	assert.True(t, view.IsActive)

	_, err = repo.GetForPasswordChangeByUsername("ghost")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUpdatePasswordIfMatches(t *testing.T) {
	repo := openTestRepo(t)

	oldSalt := [64]byte{1}
	oldHash := [64]byte{2}
	id, err := repo.InsertOrIgnore("carol", oldSalt, oldHash, 1000)
	require.NoError(t, err)

	newSalt := [64]byte{3}
	newHash := [64]byte{4}
	rows, err := repo.UpdatePasswordIfMatches(id, oldHash, newSalt, newHash)
	require.NoError(t, err)
	assert.Equal(t, int64(1), rows)

	view, err := repo.GetForPasswordChangeByUsername("carol")
	require.NoError(t, err)
	assert.Equal(t, newHash, view.PasswordHash)
	assert.Equal(t, newSalt, view.PasswordSalt)

	// stale oldHash no longer matches, optimistic concurrency fails
	rows, err = repo.UpdatePasswordIfMatches(id, oldHash, [64]byte{5}, [64]byte{6})
	require.NoError(t, err)
	assert.Equal(t, int64(0), rows)
}

func TestFailedLoginLifecycle(t *testing.T) {
	repo := openTestRepo(t)

	salt := [64]byte{1}
	hash := [64]byte{2}
	id, err := repo.InsertOrIgnore("dave", salt, hash, 1000)
	require.NoError(t, err)

	require.NoError(t, repo.IncrementFailed(id, 2000))
	require.NoError(t, repo.IncrementFailed(id, 3000))

	view, err := repo.GetAuthViewByUsername("dave")
	require.NoError(t, err)
	assert.Equal(t, 2, view.FailedLoginCount)
	assert.Equal(t, int64(3000), view.LastFailedLoginAt)

	require.NoError(t, repo.ResetFailedAndStampLogin(id, 4000))
	view, err = repo.GetAuthViewByUsername("dave")
	require.NoError(t, err)
	assert.Equal(t, 0, view.FailedLoginCount)
}

func TestStampLogout(t *testing.T) {
	repo := openTestRepo(t)

	id, err := repo.InsertOrIgnore("erin", [64]byte{1}, [64]byte{2}, 1000)
	require.NoError(t, err)

	require.NoError(t, repo.StampLogout(id, 5000))
}
