package database

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteRepository implements CredentialsRepository against a SQLite file,
// following the dual-connection pattern: a pooled read connection and a
// single dedicated write connection, both in WAL mode.
type SQLiteRepository struct {
	conn      *sql.DB // read pool (25 connections)
	writeConn *sql.DB // dedicated write connection (1 connection)
}

var _ CredentialsRepository = (*SQLiteRepository)(nil)

// OpenSQLite opens (and, if needed, creates) the account database at path.
func OpenSQLite(path string) (*SQLiteRepository, error) {
	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open read connection: %w", err)
	}

	conn.SetMaxOpenConns(25)
	conn.SetMaxIdleConns(5)
	conn.SetConnMaxLifetime(5 * time.Minute)

	if err := applyPragmas(conn); err != nil {
		conn.Close()
		return nil, err
	}

	writeConn, err := sql.Open("sqlite", path)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open write connection: %w", err)
	}

	writeConn.SetMaxOpenConns(1)
	writeConn.SetMaxIdleConns(1)
	writeConn.SetConnMaxLifetime(0)

	if err := applyPragmas(writeConn); err != nil {
		conn.Close()
		writeConn.Close()
		return nil, err
	}

	repo := &SQLiteRepository{conn: conn, writeConn: writeConn}
	if err := repo.migrate(); err != nil {
		conn.Close()
		writeConn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return repo, nil
}

func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
		"PRAGMA synchronous = NORMAL",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return fmt.Errorf("apply pragma %q: %w", p, err)
		}
	}
	return nil
}

func (r *SQLiteRepository) migrate() error {
	_, err := r.writeConn.Exec(`
CREATE TABLE IF NOT EXISTS accounts (
	id integer PRIMARY KEY AUTOINCREMENT,
	username text NOT NULL UNIQUE,
	password_salt blob NOT NULL,
	password_hash blob NOT NULL,
	role integer NOT NULL DEFAULT 2,
	is_active integer NOT NULL DEFAULT 1,
	failed_login_count integer NOT NULL DEFAULT 0,
	last_failed_login_at integer NOT NULL DEFAULT 0,
	last_login_at integer NOT NULL DEFAULT 0,
	last_logout_at integer NOT NULL DEFAULT 0,
	created_at integer NOT NULL
)`)
	return err
}

// Close closes both connections.
func (r *SQLiteRepository) Close() error {
	r.writeConn.Close()
	return r.conn.Close()
}

func (r *SQLiteRepository) InsertOrIgnore(username string, salt, hash [64]byte, createdAt int64) (int64, error) {
	res, err := r.writeConn.Exec(
		`INSERT INTO accounts (username, password_salt, password_hash, role, is_active, created_at)
		 VALUES (?, ?, ?, ?, 1, ?)
		 ON CONFLICT(username) DO NOTHING`,
		username, salt[:], hash[:], RoleUser, createdAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("insert account: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return 0, nil
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("last insert id: %w", err)
	}
	return id, nil
}

func (r *SQLiteRepository) GetAuthViewByUsername(username string) (AuthView, error) {
	row := r.conn.QueryRow(
		`SELECT id, username, password_salt, password_hash, is_active, failed_login_count, last_failed_login_at, role
		 FROM accounts WHERE username = ?`,
		username,
	)

	var view AuthView
	var salt, hash []byte
	var isActive int
	var role int
	if err := row.Scan(&view.ID, &view.Username, &salt, &hash, &isActive, &view.FailedLoginCount, &view.LastFailedLoginAt, &role); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return AuthView{}, ErrNotFound
		}
		return AuthView{}, fmt.Errorf("get auth view: %w", err)
	}
	copy(view.PasswordSalt[:], salt)
	copy(view.PasswordHash[:], hash)
	view.IsActive = isActive != 0
	view.Role = Role(role)
	return view, nil
}

func (r *SQLiteRepository) GetForPasswordChangeByUsername(username string) (PasswordChangeView, error) {
	row := r.conn.QueryRow(
		`SELECT id, username, password_salt, password_hash, is_active FROM accounts WHERE username = ?`,
		username,
	)

	var view PasswordChangeView
	var salt, hash []byte
	var isActive int
	if err := row.Scan(&view.ID, &view.Username, &salt, &hash, &isActive); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return PasswordChangeView{}, ErrNotFound
		}
		return PasswordChangeView{}, fmt.Errorf("get for password change: %w", err)
	}
	copy(view.PasswordSalt[:], salt)
	copy(view.PasswordHash[:], hash)
	view.IsActive = isActive != 0
	return view, nil
}

func (r *SQLiteRepository) IncrementFailed(id int64, failedAt int64) error {
	_, err := r.writeConn.Exec(
		`UPDATE accounts SET failed_login_count = failed_login_count + 1, last_failed_login_at = ? WHERE id = ?`,
		failedAt, id,
	)
	if err != nil {
		return fmt.Errorf("increment failed: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) ResetFailedAndStampLogin(id int64, loginAt int64) error {
	_, err := r.writeConn.Exec(
		`UPDATE accounts SET failed_login_count = 0, last_login_at = ? WHERE id = ?`,
		loginAt, id,
	)
	if err != nil {
		return fmt.Errorf("reset failed and stamp login: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) StampLogout(id int64, logoutAt int64) error {
	_, err := r.writeConn.Exec(
		`UPDATE accounts SET last_logout_at = ? WHERE id = ?`,
		logoutAt, id,
	)
	if err != nil {
		return fmt.Errorf("stamp logout: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) UpdatePasswordIfMatches(id int64, oldHash [64]byte, newSalt, newHash [64]byte) (int64, error) {
	res, err := r.writeConn.Exec(
		`UPDATE accounts SET password_salt = ?, password_hash = ? WHERE id = ? AND password_hash = ?`,
		newSalt[:], newHash[:], id, oldHash[:],
	)
	if err != nil {
		return 0, fmt.Errorf("update password if matches: %w", err)
	}
	return res.RowsAffected()
}

// isUniqueViolation reports whether err is a SQLite primary-key/unique
// constraint failure. modernc.org/sqlite surfaces this as a plain error
// whose message contains the SQLite constraint text, so we match on that
// rather than a typed sentinel.
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
