package storage

import "time"

// Store defines the interface for the durable key-value store backing the
// gateway: credential records and arbitrary settings. The session table is
// persisted opportunistically as a settings blob; its encoding is not a
// compatibility surface.
type Store interface {
	// Credential record operations
	SaveUser(user *User) error
	GetUser(name string) (*User, error)
	ListUsers() ([]*User, error)
	DeleteUser(name string) error

	// Settings operations
	GetSetting(key string) (string, error)
	SetSetting(key, value string) error
	DeleteSetting(key string) error

	// Lifecycle
	Close() error
}

// User is a stored credential record. Records are immutable after
// enrollment except by full replacement.
type User struct {
	Name         string
	PasswordHash string
	OtpSecret    string // empty when no one-time code is enrolled
	CreatedAt    time.Time
}
