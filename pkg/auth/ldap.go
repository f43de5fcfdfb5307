package auth

import (
	"context"
	"fmt"
	"sync"

	"arcane/pkg/config"
	apperrors "arcane/pkg/errors"
	"arcane/pkg/logger"

	"github.com/go-ldap/ldap/v3"
)

// LDAPBackend delegates credential checks to an external directory service.
// Roles derive from group membership resolved at login time.
type LDAPBackend struct {
	cfg   config.LDAPConfig
	mu    sync.RWMutex
	roles map[string][]string // username -> groups seen at last login
}

// NewLDAPBackend creates a directory-delegating backend
func NewLDAPBackend(cfg config.LDAPConfig) *LDAPBackend {
	return &LDAPBackend{
		cfg:   cfg,
		roles: make(map[string][]string),
	}
}

// Login binds as the user against the directory. Any directory failure maps
// to the generic credentials error; the one-time code is unused here.
func (b *LDAPBackend) Login(ctx context.Context, username, password, code string) (string, error) {
	conn, err := ldap.DialURL(b.cfg.URL)
	if err != nil {
		return "", fmt.Errorf("directory unreachable: %w", err)
	}
	defer conn.Close()

	userDN := fmt.Sprintf(b.cfg.UserDN, ldap.EscapeDN(username))
	if err := conn.Bind(userDN, password); err != nil {
		logger.Get().DebugWith("directory bind rejected", "user", username)
		return "", apperrors.ErrInvalidCredentials
	}

	groups := b.searchGroups(conn, username)

	b.mu.Lock()
	b.roles[username] = groups
	b.mu.Unlock()

	return username, nil
}

// Roles returns the group-derived role set captured at the last successful
// login, or the configured default role.
func (b *LDAPBackend) Roles(username string) []string {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if groups, ok := b.roles[username]; ok && len(groups) > 0 {
		return groups
	}
	return []string{b.cfg.DefaultRole}
}

// searchGroups resolves group membership for the bound user. Failures only
// degrade roles, never the login itself.
func (b *LDAPBackend) searchGroups(conn *ldap.Conn, username string) []string {
	if b.cfg.GroupBaseDN == "" || b.cfg.GroupFilter == "" {
		return nil
	}

	req := ldap.NewSearchRequest(
		b.cfg.GroupBaseDN,
		ldap.ScopeWholeSubtree, ldap.NeverDerefAliases, 0, 0, false,
		fmt.Sprintf(b.cfg.GroupFilter, ldap.EscapeFilter(username)),
		[]string{"cn"},
		nil,
	)

	res, err := conn.Search(req)
	if err != nil {
		logger.Get().WarnWith("group search failed", "user", username, "error", err)
		return nil
	}

	var groups []string
	for _, entry := range res.Entries {
		if cn := entry.GetAttributeValue("cn"); cn != "" {
			groups = append(groups, cn)
		}
	}
	return groups
}
