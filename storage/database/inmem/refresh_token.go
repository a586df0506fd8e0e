package inmemdb

import (
	"context"

	"github.com/nooracademy/noor/core/account"
)

type refreshTokenRepository struct {
	db *refreshTokenTable
}

var _ account.RefreshTokenRepository = (*refreshTokenRepository)(nil) // interface compliance check

func NewRefreshTokenRepository(db *DB) *refreshTokenRepository {
	return &refreshTokenRepository{db: db.refreshToken}
}

func (repo *refreshTokenRepository) CreateRefreshToken(_ context.Context, tok account.RefreshToken) error {
	repo.db.Lock()
	defer repo.db.Unlock()
	repo.db.table[tok.Token] = &tok
	return nil
}

func (repo *refreshTokenRepository) GetRefreshToken(_ context.Context, token string) (account.RefreshToken, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if tok, ok := repo.db.table[token]; ok {
		return *tok, nil
	}
	return account.RefreshToken{}, account.ErrNotFound
}

func (repo *refreshTokenRepository) DeleteRefreshToken(_ context.Context, token string) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	if _, ok := repo.db.table[token]; !ok {
		return account.ErrNotFound
	}
	delete(repo.db.table, token)
	return nil
}

func (repo *refreshTokenRepository) DeleteAccountRefreshTokens(_ context.Context, accountID string) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	for token, tok := range repo.db.table {
		if tok.AccountID == accountID {
			delete(repo.db.table, token)
		}
	}
	return nil
}
