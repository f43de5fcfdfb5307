package auth

import (
	"context"
	"errors"
	"time"

	apperrors "arcane/pkg/errors"
	"arcane/pkg/storage"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
	"golang.org/x/crypto/bcrypt"
)

// otpValidateOpts accepts codes one 30-second step either side of now.
var otpValidateOpts = totp.ValidateOpts{
	Period:    30,
	Skew:      1,
	Digits:    otp.DigitsSix,
	Algorithm: otp.AlgorithmSHA1,
}

// FileBackend authenticates against locally stored credential records:
// bcrypt password hash plus an optional TOTP secret.
type FileBackend struct {
	store       storage.Store
	totpEnabled bool
}

// NewFileBackend creates a file backend over the given store. When
// totpEnabled is false, enrolled secrets are ignored at login time.
func NewFileBackend(store storage.Store, totpEnabled bool) *FileBackend {
	return &FileBackend{
		store:       store,
		totpEnabled: totpEnabled,
	}
}

// Login verifies the password against the stored hash and, when a secret is
// enrolled, the one-time code against the current TOTP window.
func (b *FileBackend) Login(ctx context.Context, username, password, code string) (string, error) {
	user, err := b.store.GetUser(username)
	if err != nil {
		if errors.Is(err, apperrors.ErrUserNotFound) {
			return "", apperrors.ErrInvalidCredentials
		}
		return "", err
	}

	// bcrypt comparison is constant-time with respect to the password
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return "", apperrors.ErrInvalidCredentials
	}

	if b.totpEnabled && user.OtpSecret != "" {
		ok, err := totp.ValidateCustom(code, user.OtpSecret, time.Now(), otpValidateOpts)
		if err != nil || !ok {
			return "", apperrors.ErrInvalidOtp
		}
	}

	return user.Name, nil
}

// Roles returns the fixed default role set. The file backend stores no
// per-user roles.
func (b *FileBackend) Roles(username string) []string {
	return []string{"user"}
}
