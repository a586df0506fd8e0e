package sqlxrepos

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/nooracademy/noor/core"
	"github.com/nooracademy/noor/core/account"
)

const (
	accountColumns = `id, email, display_name, password_hash, role, verified, avatar_url, otp, otp_expiry,
		password_reset_code, password_reset_expiry, pending_email, email_change_code, email_change_expiry,
		password_changed_at, created_at, updated_at, last_login`

	uniqueViolation = "23505"
)

// orderableColumns maps the API ordering fields to their columns.
var orderableColumns = map[string]string{
	"email":      "email",
	"username":   "display_name",
	"role":       "role",
	"created_at": "created_at",
	"last_login": "last_login",
}

type accountRow struct {
	ID                  string      `db:"id"`
	Email               string      `db:"email"`
	DisplayName         string      `db:"display_name"`
	PasswordHash        []byte      `db:"password_hash"`
	Role                string      `db:"role"`
	Verified            bool        `db:"verified"`
	AvatarURL           null.String `db:"avatar_url"`
	OTP                 null.String `db:"otp"`
	OTPExpiry           null.Time   `db:"otp_expiry"`
	PasswordResetCode   null.String `db:"password_reset_code"`
	PasswordResetExpiry null.Time   `db:"password_reset_expiry"`
	PendingEmail        null.String `db:"pending_email"`
	EmailChangeCode     null.String `db:"email_change_code"`
	EmailChangeExpiry   null.Time   `db:"email_change_expiry"`
	PasswordChangedAt   null.Time   `db:"password_changed_at"`
	CreatedAt           time.Time   `db:"created_at"`
	UpdatedAt           time.Time   `db:"updated_at"`
	LastLogin           null.Time   `db:"last_login"`
}

type accountRepository struct {
	exec core.DBExecutor
}

var _ account.Repository = (*accountRepository)(nil) // interface compliance check

func NewAccountRepository(exec core.DBExecutor) *accountRepository {
	return &accountRepository{exec: exec}
}

func nullString(s string) null.String { return null.NewString(s, s != "") }
func nullTime(t time.Time) null.Time  { return null.NewTime(t.UTC(), !t.IsZero()) }

func toRow(acc account.Account) accountRow {
	return accountRow{
		ID:                  acc.ID,
		Email:               acc.Email,
		DisplayName:         acc.DisplayName,
		PasswordHash:        acc.PasswordHash,
		Role:                string(acc.Role),
		Verified:            acc.Verified,
		AvatarURL:           nullString(acc.AvatarURL),
		OTP:                 nullString(acc.OTP),
		OTPExpiry:           nullTime(acc.OTPExpiry),
		PasswordResetCode:   nullString(acc.PasswordResetCode),
		PasswordResetExpiry: nullTime(acc.PasswordResetExpiry),
		PendingEmail:        nullString(acc.PendingEmail),
		EmailChangeCode:     nullString(acc.EmailChangeCode),
		EmailChangeExpiry:   nullTime(acc.EmailChangeExpiry),
		PasswordChangedAt:   nullTime(acc.PasswordChangedAt),
		CreatedAt:           acc.CreatedAt.UTC(),
		UpdatedAt:           acc.UpdatedAt.UTC(),
		LastLogin:           nullTime(acc.LastLogin),
	}
}

func fromRow(row accountRow) account.Account {
	return account.Account{
		ID:                  row.ID,
		Email:               row.Email,
		DisplayName:         row.DisplayName,
		PasswordHash:        row.PasswordHash,
		Role:                account.Role(row.Role),
		Verified:            row.Verified,
		AvatarURL:           row.AvatarURL.String,
		OTP:                 row.OTP.String,
		OTPExpiry:           row.OTPExpiry.Time,
		PasswordResetCode:   row.PasswordResetCode.String,
		PasswordResetExpiry: row.PasswordResetExpiry.Time,
		PendingEmail:        row.PendingEmail.String,
		EmailChangeCode:     row.EmailChangeCode.String,
		EmailChangeExpiry:   row.EmailChangeExpiry.Time,
		PasswordChangedAt:   row.PasswordChangedAt.Time,
		CreatedAt:           row.CreatedAt,
		UpdatedAt:           row.UpdatedAt,
		LastLogin:           row.LastLogin.Time,
	}
}

// trapErr maps psql "no rows" to account.ErrNotFound and unique violations to account.ErrAlreadyRegistered.
func trapErr(err error, msg string) error {
	if err == sql.ErrNoRows {
		return account.ErrNotFound
	}
	if pqErr, ok := errors.Cause(err).(*pq.Error); ok && pqErr.Code == uniqueViolation {
		return account.ErrAlreadyRegistered
	}
	return wrapErr(err, msg)
}

// wrapErr turns a connection the pool gave up on into a shutdown error.
func wrapErr(err error, msg string) error {
	if errors.Is(err, sql.ErrConnDone) {
		return core.NewShutdownError(msg + ": " + err.Error())
	}
	return errors.Wrap(err, msg)
}

func (repo *accountRepository) CreateAccount(ctx context.Context, acc account.Account) (account.Account, error) {
	acc.ID = uuid.New().String()
	q := `INSERT INTO accounts (` + accountColumns + `) VALUES (
		:id, :email, :display_name, :password_hash, :role, :verified, :avatar_url, :otp, :otp_expiry,
		:password_reset_code, :password_reset_expiry, :pending_email, :email_change_code, :email_change_expiry,
		:password_changed_at, :created_at, :updated_at, :last_login)`

	if _, err := sqlx.NamedExecContext(ctx, repo.exec, q, toRow(acc)); err != nil {
		return account.Account{}, trapErr(err, "inserting account")
	}
	return acc, nil
}

func (repo *accountRepository) GetAccount(ctx context.Context, filter account.GetFilter) (account.Account, error) {
	var (
		where string
		arg   string
	)
	switch {
	case filter.ID != "":
		if _, err := uuid.Parse(filter.ID); err != nil {
			return account.Account{}, account.ErrNotFound
		}
		where, arg = "id = $1", filter.ID
	case filter.Email != "":
		where, arg = "email = $1", filter.Email
	case filter.EmailOrPendingEmail != "":
		where, arg = "email = $1 OR pending_email = $1 ORDER BY (email = $1) DESC", filter.EmailOrPendingEmail
	default:
		return account.Account{}, account.ErrNotFound
	}

	var row accountRow
	q := "SELECT " + accountColumns + " FROM accounts WHERE " + where + " LIMIT 1"
	if err := repo.exec.GetContext(ctx, &row, q, arg); err != nil {
		return account.Account{}, trapErr(err, "selecting account")
	}
	return fromRow(row), nil
}

func (repo *accountRepository) QueryAccounts(ctx context.Context, filter *account.QueryFilter, ordering []core.DBOrdering) ([]account.Account, error) {
	var (
		conds []string
		args  []interface{}
	)
	addCond := func(cond string, arg interface{}) {
		args = append(args, arg)
		conds = append(conds, strings.ReplaceAll(cond, "?", fmt.Sprintf("$%d", len(args))))
	}

	if filter != nil {
		// accounts with DisplayName or Email matching the search keyword
		if filter.Search != "" {
			addCond("(display_name ILIKE ? OR email ILIKE ?)", "%"+filter.Search+"%")
		}
		if len(filter.Roles) > 0 {
			roles := make([]string, 0, len(filter.Roles))
			for _, r := range filter.Roles {
				roles = append(roles, string(r))
			}
			addCond("role = ANY(?)", pq.Array(roles))
		}
		if filter.Verified != nil {
			addCond("verified = ?", *filter.Verified)
		}
		if !filter.CreatedFrom.IsZero() {
			addCond("created_at >= ?", filter.CreatedFrom.UTC())
		}
		if !filter.CreatedTo.IsZero() {
			addCond("created_at <= ?", filter.CreatedTo.UTC())
		}
	}

	q := "SELECT " + accountColumns + " FROM accounts"
	if len(conds) > 0 {
		q += " WHERE " + strings.Join(conds, " AND ")
	}
	q += " ORDER BY " + orderBy(ordering)

	var rows []accountRow
	if err := repo.exec.SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, wrapErr(err, "selecting accounts")
	}
	accounts := make([]account.Account, 0, len(rows))
	for _, row := range rows {
		accounts = append(accounts, fromRow(row))
	}
	return accounts, nil
}

// orderBy only keeps known fields; defaults to the newest accounts first.
func orderBy(ordering []core.DBOrdering) string {
	clauses := make([]string, 0, len(ordering))
	for _, ord := range ordering {
		if col, ok := orderableColumns[ord.Field]; ok {
			clauses = append(clauses, core.DBOrdering{Field: col, Ascending: ord.Ascending}.String())
		}
	}
	if len(clauses) == 0 {
		return "created_at DESC"
	}
	return strings.Join(clauses, ", ")
}

// update runs a single-row UPDATE; account.ErrNotFound when no row matched.
func (repo *accountRepository) update(ctx context.Context, msg, q string, args ...interface{}) error {
	res, err := repo.exec.ExecContext(ctx, q, args...)
	if err != nil {
		return trapErr(err, msg)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, msg)
	}
	if n == 0 {
		return account.ErrNotFound
	}
	return nil
}

func (repo *accountRepository) SetLastLogin(ctx context.Context, id string, at time.Time) error {
	if _, err := uuid.Parse(id); err != nil {
		return account.ErrNotFound
	}
	q := "UPDATE accounts SET last_login = $2 WHERE id = $1"
	return repo.update(ctx, "setting last_login", q, id, at.UTC())
}

func (repo *accountRepository) SetOTP(ctx context.Context, id, code string, expiry, at time.Time) error {
	if _, err := uuid.Parse(id); err != nil {
		return account.ErrNotFound
	}
	q := "UPDATE accounts SET otp = $2, otp_expiry = $3, updated_at = $4 WHERE id = $1"
	return repo.update(ctx, "setting otp", q, id, nullString(code), nullTime(expiry), at.UTC())
}

func (repo *accountRepository) SetPasswordResetCode(ctx context.Context, id, code string, expiry, at time.Time) error {
	if _, err := uuid.Parse(id); err != nil {
		return account.ErrNotFound
	}
	q := "UPDATE accounts SET password_reset_code = $2, password_reset_expiry = $3, updated_at = $4 WHERE id = $1"
	return repo.update(ctx, "setting password reset code", q, id, nullString(code), nullTime(expiry), at.UTC())
}

func (repo *accountRepository) SetEmailChange(ctx context.Context, id, pendingEmail, code string, expiry, at time.Time) error {
	if _, err := uuid.Parse(id); err != nil {
		return account.ErrNotFound
	}
	if pendingEmail == "" {
		code, expiry = "", time.Time{}
	}
	q := `UPDATE accounts SET pending_email = $2, email_change_code = $3, email_change_expiry = $4, updated_at = $5
		WHERE id = $1`
	return repo.update(ctx, "setting email change", q,
		id, nullString(pendingEmail), nullString(code), nullTime(expiry), at.UTC())
}

func (repo *accountRepository) ConfirmEmailChange(ctx context.Context, id, pendingEmail string, at time.Time) error {
	if _, err := uuid.Parse(id); err != nil || pendingEmail == "" {
		return account.ErrNotFound
	}
	q := `UPDATE accounts SET email = pending_email, pending_email = NULL, email_change_code = NULL,
		email_change_expiry = NULL, updated_at = $3
		WHERE id = $1 AND pending_email = $2`
	return repo.update(ctx, "confirming email change", q, id, pendingEmail, at.UTC())
}

func (repo *accountRepository) SetPassword(ctx context.Context, id string, hash []byte, at time.Time) error {
	if _, err := uuid.Parse(id); err != nil {
		return account.ErrNotFound
	}
	q := `UPDATE accounts SET password_hash = $2, password_changed_at = $3, updated_at = $3,
		password_reset_code = NULL, password_reset_expiry = NULL
		WHERE id = $1`
	return repo.update(ctx, "setting password", q, id, hash, at.UTC())
}

func (repo *accountRepository) UpdateProfile(ctx context.Context, id, displayName, avatarURL string, at time.Time) error {
	if _, err := uuid.Parse(id); err != nil {
		return account.ErrNotFound
	}
	q := "UPDATE accounts SET display_name = $2, avatar_url = $3, updated_at = $4 WHERE id = $1"
	return repo.update(ctx, "updating profile", q, id, displayName, nullString(avatarURL), at.UTC())
}
