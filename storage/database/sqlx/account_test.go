package sqlxrepos

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/volatiletech/null/v8"

	"github.com/nooracademy/noor/core"
	"github.com/nooracademy/noor/core/account"
)

var rowColumns = []string{
	"id", "email", "display_name", "password_hash", "role", "verified", "avatar_url", "otp", "otp_expiry",
	"password_reset_code", "password_reset_expiry", "pending_email", "email_change_code", "email_change_expiry",
	"password_changed_at", "created_at", "updated_at", "last_login",
}

func newMockDB(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return sqlx.NewDb(db, "postgres"), mock
}

func newAccount(email string) account.Account {
	now := time.Now().UTC().Truncate(time.Microsecond)
	return account.Account{
		ID:           uuid.New().String(),
		Email:        email,
		DisplayName:  "Amina",
		PasswordHash: []byte("hash"),
		Role:         account.RoleStandard,
		Verified:     true,
		PendingEmail: "new-" + email,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

func accountRows(accs ...account.Account) *sqlmock.Rows {
	rows := sqlmock.NewRows(rowColumns)
	for _, acc := range accs {
		r := toRow(acc)
		rows.AddRow(
			r.ID, r.Email, r.DisplayName, r.PasswordHash, r.Role, r.Verified, strVal(r.AvatarURL), strVal(r.OTP),
			timeVal(r.OTPExpiry), strVal(r.PasswordResetCode), timeVal(r.PasswordResetExpiry), strVal(r.PendingEmail),
			strVal(r.EmailChangeCode), timeVal(r.EmailChangeExpiry), timeVal(r.PasswordChangedAt), r.CreatedAt,
			r.UpdatedAt, timeVal(r.LastLogin),
		)
	}
	return rows
}

func strVal(s null.String) driver.Value {
	if !s.Valid {
		return nil
	}
	return s.String
}

func timeVal(t null.Time) driver.Value {
	if !t.Valid {
		return nil
	}
	return t.Time
}

func TestAccountRepository_CreateAccount(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewAccountRepository(db)
	ctx := context.Background()

	mock.ExpectExec(`^INSERT INTO accounts \(`).WillReturnResult(sqlmock.NewResult(0, 1))
	acc, err := repo.CreateAccount(ctx, newAccount("amina@test.com"))
	require.NoError(t, err)
	_, err = uuid.Parse(acc.ID)
	assert.NoError(t, err)

	mock.ExpectExec(`^INSERT INTO accounts \(`).WillReturnError(&pq.Error{Code: uniqueViolation})
	_, err = repo.CreateAccount(ctx, newAccount("amina@test.com"))
	assert.Equal(t, account.ErrAlreadyRegistered, err)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAccountRepository_GetAccount(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewAccountRepository(db)
	ctx := context.Background()
	acc := newAccount("amina@test.com")

	mock.ExpectQuery(regexp.QuoteMeta("FROM accounts WHERE email = $1 LIMIT 1")).
		WithArgs(acc.Email).
		WillReturnRows(accountRows(acc))
	got, err := repo.GetAccount(ctx, account.GetFilter{Email: acc.Email})
	require.NoError(t, err)
	assert.Equal(t, acc, got)

	mock.ExpectQuery(regexp.QuoteMeta("FROM accounts WHERE id = $1 LIMIT 1")).
		WithArgs(acc.ID).
		WillReturnError(sql.ErrNoRows)
	_, err = repo.GetAccount(ctx, account.GetFilter{ID: acc.ID})
	assert.Equal(t, account.ErrNotFound, err)

	mock.ExpectQuery(regexp.QuoteMeta("WHERE email = $1 OR pending_email = $1 ORDER BY (email = $1) DESC LIMIT 1")).
		WithArgs(acc.PendingEmail).
		WillReturnRows(accountRows(acc))
	got, err = repo.GetAccount(ctx, account.GetFilter{EmailOrPendingEmail: acc.PendingEmail})
	require.NoError(t, err)
	assert.Equal(t, acc.ID, got.ID)

	// no query for malformed IDs
	_, err = repo.GetAccount(ctx, account.GetFilter{ID: "lol"})
	assert.Equal(t, account.ErrNotFound, err)
	_, err = repo.GetAccount(ctx, account.GetFilter{})
	assert.Equal(t, account.ErrNotFound, err)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAccountRepository_QueryAccounts(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewAccountRepository(db)
	ctx := context.Background()
	acc1, acc2 := newAccount("amina@test.com"), newAccount("omar@test.com")
	verified := true
	from := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name      string
		filter    *account.QueryFilter
		ordering  []core.DBOrdering
		wantQuery string
		wantArgs  []driver.Value
	}{
		{
			name:      "no filter",
			wantQuery: "FROM accounts ORDER BY created_at DESC",
		},
		{
			name:      "search & verified",
			filter:    &account.QueryFilter{Search: "ami", Verified: &verified},
			ordering:  []core.DBOrdering{{Field: "username", Ascending: true}, {Field: "lol"}},
			wantQuery: "FROM accounts WHERE (display_name ILIKE $1 OR email ILIKE $1) AND verified = $2 ORDER BY display_name ASC",
			wantArgs:  []driver.Value{"%ami%", true},
		},
		{
			name:      "roles & created_from",
			filter:    &account.QueryFilter{Roles: []account.Role{account.RoleAdministrator}, CreatedFrom: from},
			ordering:  []core.DBOrdering{{Field: "email"}, {Field: "created_at", Ascending: true}},
			wantQuery: "FROM accounts WHERE role = ANY($1) AND created_at >= $2 ORDER BY email DESC, created_at ASC",
			wantArgs:  []driver.Value{sqlmock.AnyArg(), from},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			eq := mock.ExpectQuery(regexp.QuoteMeta(tt.wantQuery) + "$")
			if tt.wantArgs != nil {
				eq.WithArgs(tt.wantArgs...)
			}
			eq.WillReturnRows(accountRows(acc1, acc2))

			got, err := repo.QueryAccounts(ctx, tt.filter, tt.ordering)
			require.NoError(t, err)
			assert.Equal(t, []account.Account{acc1, acc2}, got)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestAccountRepository_columnWrites(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewAccountRepository(db)
	ctx := context.Background()
	id := uuid.New().String()
	at := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	expiry := at.Add(10 * time.Minute)

	tests := []struct {
		name  string
		query string
		args  []driver.Value
		write func() error
	}{
		{
			name:  "last login",
			query: "UPDATE accounts SET last_login = $2 WHERE id = $1",
			args:  []driver.Value{id, at},
			write: func() error { return repo.SetLastLogin(ctx, id, at) },
		},
		{
			name:  "otp",
			query: "UPDATE accounts SET otp = $2, otp_expiry = $3, updated_at = $4 WHERE id = $1",
			args:  []driver.Value{id, "123456", expiry, at},
			write: func() error { return repo.SetOTP(ctx, id, "123456", expiry, at) },
		},
		{
			name:  "password reset code",
			query: "UPDATE accounts SET password_reset_code = $2, password_reset_expiry = $3, updated_at = $4 WHERE id = $1",
			args:  []driver.Value{id, "123456", expiry, at},
			write: func() error { return repo.SetPasswordResetCode(ctx, id, "123456", expiry, at) },
		},
		{
			name:  "email change",
			query: "UPDATE accounts SET pending_email = $2, email_change_code = $3, email_change_expiry = $4, updated_at = $5",
			args:  []driver.Value{id, "new@test.com", "123456", expiry, at},
			write: func() error { return repo.SetEmailChange(ctx, id, "new@test.com", "123456", expiry, at) },
		},
		{
			name:  "email change cleared",
			query: "UPDATE accounts SET pending_email = $2, email_change_code = $3, email_change_expiry = $4, updated_at = $5",
			args:  []driver.Value{id, nil, nil, nil, at},
			write: func() error { return repo.SetEmailChange(ctx, id, "", "123456", expiry, at) },
		},
		{
			name:  "confirm email change",
			query: "WHERE id = $1 AND pending_email = $2",
			args:  []driver.Value{id, "new@test.com", at},
			write: func() error { return repo.ConfirmEmailChange(ctx, id, "new@test.com", at) },
		},
		{
			name:  "password",
			query: "UPDATE accounts SET password_hash = $2, password_changed_at = $3, updated_at = $3",
			args:  []driver.Value{id, []byte("hash"), at},
			write: func() error { return repo.SetPassword(ctx, id, []byte("hash"), at) },
		},
		{
			name:  "profile",
			query: "UPDATE accounts SET display_name = $2, avatar_url = $3, updated_at = $4 WHERE id = $1",
			args:  []driver.Value{id, "Amina", "http://img/a.jpg", at},
			write: func() error { return repo.UpdateProfile(ctx, id, "Amina", "http://img/a.jpg", at) },
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock.ExpectExec(regexp.QuoteMeta(tt.query)).WithArgs(tt.args...).WillReturnResult(sqlmock.NewResult(0, 1))
			require.NoError(t, tt.write())

			mock.ExpectExec(regexp.QuoteMeta(tt.query)).WillReturnResult(sqlmock.NewResult(0, 0))
			assert.Equal(t, account.ErrNotFound, tt.write())

			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}

	// no query for malformed IDs
	assert.Equal(t, account.ErrNotFound, repo.SetLastLogin(ctx, "lol", at))
	assert.Equal(t, account.ErrNotFound, repo.SetPassword(ctx, "lol", []byte("hash"), at))
}

func TestAccountRepository_ConfirmEmailChange_taken(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewAccountRepository(db)

	mock.ExpectExec(`^UPDATE accounts SET email = pending_email`).WillReturnError(&pq.Error{Code: uniqueViolation})
	err := repo.ConfirmEmailChange(context.Background(), uuid.New().String(), "new@test.com", time.Now())
	assert.Equal(t, account.ErrAlreadyRegistered, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAccountRepository_connDone(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewAccountRepository(db)
	ctx := context.Background()

	mock.ExpectQuery("FROM accounts WHERE email").WillReturnError(sql.ErrConnDone)
	_, err := repo.GetAccount(ctx, account.GetFilter{Email: "amina@test.com"})
	assert.True(t, core.IsShutdown(err), "got %v", err)

	mock.ExpectExec("^UPDATE accounts SET last_login").WillReturnError(sql.ErrConnDone)
	assert.True(t, core.IsShutdown(repo.SetLastLogin(ctx, uuid.New().String(), time.Now())))

	assert.NoError(t, mock.ExpectationsWereMet())
}
