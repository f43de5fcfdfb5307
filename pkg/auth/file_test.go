package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	apperrors "arcane/pkg/errors"
	"arcane/pkg/storage"

	"github.com/pquerna/otp/totp"
)

// userStore is a fixed-content Store for tests
type userStore struct {
	users map[string]*storage.User
}

func (s *userStore) SaveUser(user *storage.User) error {
	s.users[user.Name] = user
	return nil
}

func (s *userStore) GetUser(name string) (*storage.User, error) {
	u, ok := s.users[name]
	if !ok {
		return nil, apperrors.ErrUserNotFound
	}
	return u, nil
}

func (s *userStore) ListUsers() ([]*storage.User, error)  { return nil, nil }
func (s *userStore) DeleteUser(name string) error         { return nil }
func (s *userStore) GetSetting(key string) (string, error) {
	return "", apperrors.ErrSettingNotFound
}
func (s *userStore) SetSetting(key, value string) error { return nil }
func (s *userStore) DeleteSetting(key string) error     { return nil }
func (s *userStore) Close() error                       { return nil }

func storeWithUser(t *testing.T, name, password, otpSecret string) *userStore {
	t.Helper()

	hash, err := NewPasswordHasher().Hash(password)
	if err != nil {
		t.Fatalf("Hash failed: %v", err)
	}

	return &userStore{users: map[string]*storage.User{
		name: {Name: name, PasswordHash: hash, OtpSecret: otpSecret, CreatedAt: time.Now()},
	}}
}

// TestFileBackendLogin verifies a correct password is accepted
func TestFileBackendLogin(t *testing.T) {
	b := NewFileBackend(storeWithUser(t, "alice", "s3cret", ""), false)

	got, err := b.Login(context.Background(), "alice", "s3cret", "")
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	if got != "alice" {
		t.Errorf("Expected alice, got %s", got)
	}
}

// TestFileBackendWrongPassword verifies a wrong password is rejected
func TestFileBackendWrongPassword(t *testing.T) {
	b := NewFileBackend(storeWithUser(t, "alice", "s3cret", ""), false)

	_, err := b.Login(context.Background(), "alice", "wrong", "")
	if !errors.Is(err, apperrors.ErrInvalidCredentials) {
		t.Errorf("Expected ErrInvalidCredentials, got %v", err)
	}
}

// TestFileBackendUnknownUser verifies unknown users get the same error as a
// wrong password
func TestFileBackendUnknownUser(t *testing.T) {
	b := NewFileBackend(storeWithUser(t, "alice", "s3cret", ""), false)

	_, err := b.Login(context.Background(), "nobody", "s3cret", "")
	if !errors.Is(err, apperrors.ErrInvalidCredentials) {
		t.Errorf("Expected ErrInvalidCredentials, got %v", err)
	}
}

// TestFileBackendTotp verifies a valid current-window code is accepted and
// a stale one rejected
func TestFileBackendTotp(t *testing.T) {
	secret, _, err := GenerateOtpSecret("test", "alice")
	if err != nil {
		t.Fatalf("GenerateOtpSecret failed: %v", err)
	}

	b := NewFileBackend(storeWithUser(t, "alice", "s3cret", secret), true)

	code, err := totp.GenerateCode(secret, time.Now())
	if err != nil {
		t.Fatalf("GenerateCode failed: %v", err)
	}

	if _, err := b.Login(context.Background(), "alice", "s3cret", code); err != nil {
		t.Fatalf("Login with valid code failed: %v", err)
	}

	stale, err := totp.GenerateCode(secret, time.Now().Add(-5*time.Minute))
	if err != nil {
		t.Fatalf("GenerateCode failed: %v", err)
	}

	_, err = b.Login(context.Background(), "alice", "s3cret", stale)
	if !errors.Is(err, apperrors.ErrInvalidOtp) {
		t.Errorf("Expected ErrInvalidOtp for stale code, got %v", err)
	}
}

// TestFileBackendTotpDisabled verifies an enrolled secret is ignored when
// the feature is off
func TestFileBackendTotpDisabled(t *testing.T) {
	secret, _, err := GenerateOtpSecret("test", "alice")
	if err != nil {
		t.Fatalf("GenerateOtpSecret failed: %v", err)
	}

	b := NewFileBackend(storeWithUser(t, "alice", "s3cret", secret), false)

	if _, err := b.Login(context.Background(), "alice", "s3cret", ""); err != nil {
		t.Errorf("Login should succeed without a code when disabled: %v", err)
	}
}

// TestFileBackendRoles verifies the fixed role set
func TestFileBackendRoles(t *testing.T) {
	b := NewFileBackend(storeWithUser(t, "alice", "s3cret", ""), false)

	roles := b.Roles("alice")
	if len(roles) != 1 || roles[0] != "user" {
		t.Errorf("Expected [user], got %v", roles)
	}
}

// TestPasswordHasherRoundTrip verifies hash and verify agree
func TestPasswordHasherRoundTrip(t *testing.T) {
	ph := NewPasswordHasher()

	hash, err := ph.Hash("hunter2")
	if err != nil {
		t.Fatalf("Hash failed: %v", err)
	}
	if !ph.Verify(hash, "hunter2") {
		t.Error("Verify should accept the original password")
	}
	if ph.Verify(hash, "hunter3") {
		t.Error("Verify should reject a different password")
	}
}
