// Package auth provides the pluggable authentication backends. The backend
// is selected once at startup from configuration; there is no runtime
// switch.
package auth

import (
	"context"
	"fmt"

	"arcane/pkg/config"
	"arcane/pkg/storage"
)

// Backend verifies operator credentials and reports role membership
type Backend interface {
	// Login verifies the credentials and returns the canonical username.
	// code carries the one-time code and may be empty when the account has
	// none enrolled.
	Login(ctx context.Context, username, password, code string) (string, error)

	// Roles returns the role set for a previously authenticated username
	Roles(username string) []string
}

// NewBackend returns the backend selected by configuration
func NewBackend(cfg config.AuthConfig, store storage.Store) (Backend, error) {
	switch cfg.Backend {
	case "file", "":
		return NewFileBackend(store, cfg.TotpEnabled), nil
	case "ldap":
		return NewLDAPBackend(cfg.LDAP), nil
	default:
		return nil, fmt.Errorf("unsupported auth backend: %s", cfg.Backend)
	}
}
