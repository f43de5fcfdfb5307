package storage

import (
	"database/sql"

	apperrors "arcane/pkg/errors"

	_ "github.com/go-sql-driver/mysql"
)

// MySQLStore implements Store using a MySQL backend. Database.Path is
// interpreted as a DSN.
type MySQLStore struct {
	db *sql.DB
}

// NewMySQLStore creates a new MySQL-backed store. The DSN must include
// parseTime=true so DATETIME columns scan into time.Time.
func NewMySQLStore(dsn string) (Store, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, err
	}
	s := &MySQLStore{db: db}
	if err := s.initDB(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// initDB creates required tables if not present
func (s *MySQLStore) initDB() error {
	userSchema := `
	CREATE TABLE IF NOT EXISTS users (
		name VARCHAR(255) PRIMARY KEY,
		password_hash VARCHAR(255) NOT NULL,
		otp_secret VARCHAR(255) DEFAULT '',
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP
	)`
	if _, err := s.db.Exec(userSchema); err != nil {
		return err
	}

	settingsSchema := `
	CREATE TABLE IF NOT EXISTS settings (
		` + "`key`" + ` VARCHAR(255) PRIMARY KEY,
		value MEDIUMTEXT,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP
	)`
	_, err := s.db.Exec(settingsSchema)
	return err
}

func (s *MySQLStore) SaveUser(user *User) error {
	_, err := s.db.Exec(`
		INSERT INTO users (name, password_hash, otp_secret)
		VALUES (?, ?, ?)
		ON DUPLICATE KEY UPDATE
			password_hash = VALUES(password_hash),
			otp_secret = VALUES(otp_secret)`,
		user.Name, user.PasswordHash, user.OtpSecret,
	)
	return err
}

func (s *MySQLStore) GetUser(name string) (*User, error) {
	row := s.db.QueryRow(`
		SELECT name, password_hash, otp_secret, created_at
		FROM users WHERE name = ? LIMIT 1`, name)

	var u User
	if err := row.Scan(&u.Name, &u.PasswordHash, &u.OtpSecret, &u.CreatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, apperrors.ErrUserNotFound
		}
		return nil, err
	}
	return &u, nil
}

func (s *MySQLStore) ListUsers() ([]*User, error) {
	rows, err := s.db.Query(`
		SELECT name, password_hash, otp_secret, created_at
		FROM users ORDER BY name ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var list []*User
	for rows.Next() {
		var u User
		if err := rows.Scan(&u.Name, &u.PasswordHash, &u.OtpSecret, &u.CreatedAt); err != nil {
			return nil, err
		}
		list = append(list, &u)
	}
	return list, rows.Err()
}

func (s *MySQLStore) DeleteUser(name string) error {
	_, err := s.db.Exec(`DELETE FROM users WHERE name = ?`, name)
	return err
}

func (s *MySQLStore) GetSetting(key string) (string, error) {
	var value string
	err := s.db.QueryRow("SELECT value FROM settings WHERE `key` = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", apperrors.ErrSettingNotFound
	}
	return value, err
}

func (s *MySQLStore) SetSetting(key, value string) error {
	_, err := s.db.Exec(
		"INSERT INTO settings (`key`, value) VALUES (?, ?) ON DUPLICATE KEY UPDATE value = VALUES(value)",
		key, value,
	)
	return err
}

func (s *MySQLStore) DeleteSetting(key string) error {
	_, err := s.db.Exec("DELETE FROM settings WHERE `key` = ?", key)
	return err
}

func (s *MySQLStore) Close() error { return s.db.Close() }
