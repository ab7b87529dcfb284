package server

import (
	"sync"

	"github.com/duskforge/palisade/pkg/database"
)

// mockRepository is an in-memory stand-in for database.CredentialsRepository,
// used so handler tests exercise the dispatch/handler logic without a real
// SQLite file on disk.
type mockRepository struct {
	mu       sync.Mutex
	byID     map[int64]*database.AuthView
	nextID   int64
	failCall error
}

func newMockRepository() *mockRepository {
	return &mockRepository{byID: make(map[int64]*database.AuthView)}
}

func (m *mockRepository) addAccount(username string, salt, hash [64]byte, role database.Role) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	m.byID[m.nextID] = &database.AuthView{
		ID:           m.nextID,
		Username:     username,
		PasswordSalt: salt,
		PasswordHash: hash,
		IsActive:     true,
		Role:         role,
	}
	return m.nextID
}

func (m *mockRepository) GetAuthViewByUsername(username string) (database.AuthView, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, v := range m.byID {
		if v.Username == username {
			return *v, nil
		}
	}
	return database.AuthView{}, database.ErrNotFound
}

func (m *mockRepository) GetForPasswordChangeByUsername(username string) (database.PasswordChangeView, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, v := range m.byID {
		if v.Username == username {
			return database.PasswordChangeView{
				ID:           v.ID,
				Username:     v.Username,
				PasswordSalt: v.PasswordSalt,
				PasswordHash: v.PasswordHash,
				IsActive:     v.IsActive,
			}, nil
		}
	}
	return database.PasswordChangeView{}, database.ErrNotFound
}

func (m *mockRepository) InsertOrIgnore(username string, salt, hash [64]byte, createdAt int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, v := range m.byID {
		if v.Username == username {
			return 0, nil
		}
	}
	m.nextID++
	m.byID[m.nextID] = &database.AuthView{
		ID: m.nextID, Username: username, PasswordSalt: salt, PasswordHash: hash,
		IsActive: true, Role: database.RoleUser,
	}
	return m.nextID, nil
}

func (m *mockRepository) IncrementFailed(id int64, failedAt int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if v, ok := m.byID[id]; ok {
		v.FailedLoginCount++
		v.LastFailedLoginAt = failedAt
	}
	return nil
}

func (m *mockRepository) ResetFailedAndStampLogin(id int64, loginAt int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if v, ok := m.byID[id]; ok {
		v.FailedLoginCount = 0
	}
	return nil
}

func (m *mockRepository) StampLogout(id int64, logoutAt int64) error {
	return nil
}

func (m *mockRepository) UpdatePasswordIfMatches(id int64, oldHash [64]byte, newSalt, newHash [64]byte) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.byID[id]
	if !ok || v.PasswordHash != oldHash {
		return 0, nil
	}
	v.PasswordSalt = newSalt
	v.PasswordHash = newHash
	return 1, nil
}

var _ database.CredentialsRepository = (*mockRepository)(nil)
