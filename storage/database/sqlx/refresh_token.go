package sqlxrepos

import (
	"context"
	"time"

	"github.com/volatiletech/null/v8"

	"github.com/nooracademy/noor/core"
	"github.com/nooracademy/noor/core/account"
)

type refreshTokenRow struct {
	Token             string    `db:"token"`
	AccountID         string    `db:"account_id"`
	ExpiresAt         time.Time `db:"expires_at"`
	CreatedAt         time.Time `db:"created_at"`
	PasswordChangedAt null.Time `db:"password_changed_at"`
}

type refreshTokenRepository struct {
	exec core.DBExecutor
}

var _ account.RefreshTokenRepository = (*refreshTokenRepository)(nil) // interface compliance check

func NewRefreshTokenRepository(exec core.DBExecutor) *refreshTokenRepository {
	return &refreshTokenRepository{exec: exec}
}

func (repo *refreshTokenRepository) CreateRefreshToken(ctx context.Context, tok account.RefreshToken) error {
	_, err := repo.exec.ExecContext(ctx,
		`INSERT INTO refresh_tokens (token, account_id, expires_at, created_at, password_changed_at)
		VALUES ($1, $2, $3, $4, $5)`,
		tok.Token, tok.AccountID, tok.ExpiresAt.UTC(), tok.CreatedAt.UTC(), nullTime(tok.PasswordChangedAt),
	)
	return wrapErr(err, "inserting refresh token")
}

func (repo *refreshTokenRepository) GetRefreshToken(ctx context.Context, token string) (account.RefreshToken, error) {
	var row refreshTokenRow
	err := repo.exec.GetContext(ctx, &row,
		"SELECT token, account_id, expires_at, created_at, password_changed_at FROM refresh_tokens WHERE token = $1", token)
	if err != nil {
		return account.RefreshToken{}, trapErr(err, "selecting refresh token")
	}
	return account.RefreshToken{
		Token:             row.Token,
		AccountID:         row.AccountID,
		PasswordChangedAt: row.PasswordChangedAt.Time,
		ExpiresAt:         row.ExpiresAt,
		CreatedAt:         row.CreatedAt,
	}, nil
}

func (repo *refreshTokenRepository) DeleteRefreshToken(ctx context.Context, token string) error {
	res, err := repo.exec.ExecContext(ctx, "DELETE FROM refresh_tokens WHERE token = $1", token)
	if err != nil {
		return wrapErr(err, "deleting refresh token")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return wrapErr(err, "deleting refresh token")
	}
	if n == 0 {
		return account.ErrNotFound
	}
	return nil
}

func (repo *refreshTokenRepository) DeleteAccountRefreshTokens(ctx context.Context, accountID string) error {
	_, err := repo.exec.ExecContext(ctx, "DELETE FROM refresh_tokens WHERE account_id = $1", accountID)
	return wrapErr(err, "deleting account refresh tokens")
}
