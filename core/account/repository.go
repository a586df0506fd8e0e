package account

import (
	"context"
	"time"

	"github.com/nooracademy/noor/core"
)

type (
	Repository interface {
		// CreateAccount assigns a new ID; returns ErrAlreadyRegistered when the email is taken.
		CreateAccount(ctx context.Context, acc Account) (Account, error)
		GetAccount(ctx context.Context, filter GetFilter) (Account, error)
		// QueryAccounts applies AND operation on available QueryFilter fields.
		// QueryFilter.Search does a case-insensitive match on one of Account.DisplayName or Account.Email.
		QueryAccounts(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering) ([]Account, error)

		// The writes below only touch their own columns; they return ErrNotFound when no account has id.

		SetLastLogin(ctx context.Context, id string, at time.Time) error
		SetOTP(ctx context.Context, id, code string, expiry, at time.Time) error
		SetPasswordResetCode(ctx context.Context, id, code string, expiry, at time.Time) error
		// SetEmailChange records the in-flight email change; an empty pendingEmail clears it.
		SetEmailChange(ctx context.Context, id, pendingEmail, code string, expiry, at time.Time) error
		// ConfirmEmailChange makes pendingEmail the email, provided it is still the pending one, and clears the change.
		// Returns ErrAlreadyRegistered when the email is taken.
		ConfirmEmailChange(ctx context.Context, id, pendingEmail string, at time.Time) error
		// SetPassword stores hash, stamps PasswordChangedAt with at and clears the password reset code.
		SetPassword(ctx context.Context, id string, hash []byte, at time.Time) error
		UpdateProfile(ctx context.Context, id, displayName, avatarURL string, at time.Time) error
	}

	RefreshTokenRepository interface {
		CreateRefreshToken(ctx context.Context, tok RefreshToken) error
		GetRefreshToken(ctx context.Context, token string) (RefreshToken, error)
		// DeleteRefreshToken returns ErrNotFound when the token is not stored.
		DeleteRefreshToken(ctx context.Context, token string) error
		DeleteAccountRefreshTokens(ctx context.Context, accountID string) error
	}

	// PendingStore keeps one PendingRegistration per email for a retention window.
	PendingStore interface {
		// CreatePending returns ErrVerificationPending when a record already exists for the email.
		CreatePending(ctx context.Context, pr PendingRegistration, retention time.Duration) error
		GetPending(ctx context.Context, email string) (PendingRegistration, error)
		// UpdatePending replaces the record without extending its retention.
		UpdatePending(ctx context.Context, pr PendingRegistration) error
		DeletePending(ctx context.Context, email string) error
	}

	// RequestLimiter throttles code-sending operations; Allow returns ErrRateLimited once the budget is spent.
	RequestLimiter interface {
		Allow(ctx context.Context, key string) error
	}

	PasswordHasher interface {
		Hash(pwd string) ([]byte, error)
		Compare(hash []byte, pwd string) error
	}

	TokenIssuer interface {
		IssueAccessToken(acc Account) (string, error)
		IssueRefreshToken(acc Account) (token string, expiresAt time.Time, err error)
		// ParseRefreshToken returns the account ID carried by a valid token, ErrInvalidToken otherwise.
		ParseRefreshToken(token string) (string, error)
	}
)
