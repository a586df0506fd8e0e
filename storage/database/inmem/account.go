package inmemdb

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nooracademy/noor/core"
	"github.com/nooracademy/noor/core/account"
)

type accountRepository struct {
	db *accountTable
}

var _ account.Repository = (*accountRepository)(nil) // interface compliance check

func NewAccountRepository(db *DB) *accountRepository {
	return &accountRepository{db: db.account}
}

func (repo *accountRepository) query() []account.Account {
	accounts := make([]account.Account, 0, len(repo.db.table))
	for _, acc := range repo.db.table {
		accounts = append(accounts, *acc)
	}
	return accounts
}

// emailTaken must be called with the lock held.
func (repo *accountRepository) emailTaken(email, exceptID string) bool {
	for _, acc := range repo.db.table {
		if acc.Email == email && acc.ID != exceptID {
			return true
		}
	}
	return false
}

func (repo *accountRepository) CreateAccount(_ context.Context, acc account.Account) (account.Account, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	if repo.emailTaken(acc.Email, "") {
		return account.Account{}, account.ErrAlreadyRegistered
	}
	acc.ID = uuid.New().String()
	repo.db.table[acc.ID] = &acc
	return acc, nil
}

func (repo *accountRepository) GetAccount(_ context.Context, filter account.GetFilter) (account.Account, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	switch {
	case filter.ID != "":
		if acc, ok := repo.db.table[filter.ID]; ok {
			return *acc, nil
		}
	case filter.Email != "":
		for _, acc := range repo.db.table {
			if acc.Email == filter.Email {
				return *acc, nil
			}
		}
	case filter.EmailOrPendingEmail != "":
		var found *account.Account
		for _, acc := range repo.db.table {
			if acc.Email == filter.EmailOrPendingEmail {
				return *acc, nil
			}
			if found == nil && acc.PendingEmail == filter.EmailOrPendingEmail {
				found = acc
			}
		}
		if found != nil {
			return *found, nil
		}
	}
	return account.Account{}, account.ErrNotFound
}

func (repo *accountRepository) QueryAccounts(_ context.Context, filter *account.QueryFilter, ordering []core.DBOrdering) ([]account.Account, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	accounts := repo.query()
	if filter != nil && !filter.IsEmpty() {
		filtered := make([]account.Account, 0, len(accounts))
		for _, acc := range accounts {
			if matchFilter(acc, filter) {
				filtered = append(filtered, acc)
			}
		}
		accounts = filtered
	}

	if len(ordering) == 0 {
		ordering = []core.DBOrdering{{Field: "created_at"}}
	}
	sort.SliceStable(accounts, func(i, j int) bool {
		for _, ord := range ordering {
			c := compareField(accounts[i], accounts[j], ord.Field)
			if c == 0 {
				continue
			}
			if ord.Ascending {
				return c < 0
			}
			return c > 0
		}
		return false
	})
	return accounts, nil
}

// update applies fn to the stored account under the write lock.
func (repo *accountRepository) update(id string, fn func(acc *account.Account) error) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	acc, ok := repo.db.table[id]
	if !ok {
		return account.ErrNotFound
	}
	updated := *acc
	if err := fn(&updated); err != nil {
		return err
	}
	repo.db.table[id] = &updated
	return nil
}

func (repo *accountRepository) SetLastLogin(_ context.Context, id string, at time.Time) error {
	return repo.update(id, func(acc *account.Account) error {
		acc.LastLogin = at.UTC()
		return nil
	})
}

func (repo *accountRepository) SetOTP(_ context.Context, id, code string, expiry, at time.Time) error {
	return repo.update(id, func(acc *account.Account) error {
		acc.OTP, acc.OTPExpiry = code, expiry
		acc.UpdatedAt = at.UTC()
		return nil
	})
}

func (repo *accountRepository) SetPasswordResetCode(_ context.Context, id, code string, expiry, at time.Time) error {
	return repo.update(id, func(acc *account.Account) error {
		acc.PasswordResetCode, acc.PasswordResetExpiry = code, expiry
		acc.UpdatedAt = at.UTC()
		return nil
	})
}

func (repo *accountRepository) SetEmailChange(_ context.Context, id, pendingEmail, code string, expiry, at time.Time) error {
	return repo.update(id, func(acc *account.Account) error {
		if pendingEmail == "" {
			code, expiry = "", time.Time{}
		}
		acc.PendingEmail, acc.EmailChangeCode, acc.EmailChangeExpiry = pendingEmail, code, expiry
		acc.UpdatedAt = at.UTC()
		return nil
	})
}

func (repo *accountRepository) ConfirmEmailChange(_ context.Context, id, pendingEmail string, at time.Time) error {
	return repo.update(id, func(acc *account.Account) error {
		if pendingEmail == "" || acc.PendingEmail != pendingEmail {
			return account.ErrNotFound
		}
		if repo.emailTaken(pendingEmail, id) {
			return account.ErrAlreadyRegistered
		}
		acc.Email = pendingEmail
		acc.PendingEmail, acc.EmailChangeCode, acc.EmailChangeExpiry = "", "", time.Time{}
		acc.UpdatedAt = at.UTC()
		return nil
	})
}

func (repo *accountRepository) SetPassword(_ context.Context, id string, hash []byte, at time.Time) error {
	return repo.update(id, func(acc *account.Account) error {
		acc.PasswordHash = hash
		acc.PasswordChangedAt, acc.UpdatedAt = at.UTC(), at.UTC()
		acc.PasswordResetCode, acc.PasswordResetExpiry = "", time.Time{}
		return nil
	})
}

func (repo *accountRepository) UpdateProfile(_ context.Context, id, displayName, avatarURL string, at time.Time) error {
	return repo.update(id, func(acc *account.Account) error {
		acc.DisplayName, acc.AvatarURL = displayName, avatarURL
		acc.UpdatedAt = at.UTC()
		return nil
	})
}

func matchFilter(acc account.Account, filter *account.QueryFilter) bool {
	if filter.Search != "" {
		search := strings.ToLower(filter.Search)
		if !(strings.Contains(strings.ToLower(acc.DisplayName), search) || strings.Contains(acc.Email, search)) {
			return false
		}
	}
	if len(filter.Roles) > 0 {
		var hasRole bool
		for _, role := range filter.Roles {
			if acc.Role == role {
				hasRole = true
				break
			}
		}
		if !hasRole {
			return false
		}
	}
	if filter.Verified != nil && acc.Verified != *filter.Verified {
		return false
	}
	if !filter.CreatedFrom.IsZero() && acc.CreatedAt.Before(filter.CreatedFrom) {
		return false
	}
	if !filter.CreatedTo.IsZero() && acc.CreatedAt.After(filter.CreatedTo) {
		return false
	}
	return true
}

// compareField compares a & b on one of the orderable fields; unknown fields compare equal.
func compareField(a, b account.Account, field string) int {
	switch field {
	case "email":
		return strings.Compare(a.Email, b.Email)
	case "username":
		return strings.Compare(strings.ToLower(a.DisplayName), strings.ToLower(b.DisplayName))
	case "role":
		return strings.Compare(string(a.Role), string(b.Role))
	case "created_at":
		return a.CreatedAt.Compare(b.CreatedAt)
	case "last_login":
		return a.LastLogin.Compare(b.LastLogin)
	}
	return 0
}
