package testutil

import (
	"context"
	"net/mail"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/nooracademy/noor/core"
	"github.com/nooracademy/noor/core/account"
)

// Config returns a configuration fit for tests: short-lived codes, a generous limiter, no external services.
func Config() *core.Config {
	conf := &core.Config{
		AppName:          "Noor Academy",
		Env:              "test",
		TestMode:         true,
		SecretKey:        "test-secret",
		FrontendBaseURL:  "http://localhost:3000",
		DefaultFromEmail: mail.Address{Name: "Noor Academy", Address: "noreply@noor.test"},
	}
	conf.Server.AccessTokenTTL = 15 * time.Minute
	conf.Server.RefreshTokenTTL = 7 * 24 * time.Hour
	conf.Auth.SignupCodeTTL = 10 * time.Minute
	conf.Auth.PasswordResetCodeTTL = 15 * time.Minute
	conf.Auth.EmailChangeCodeTTL = 10 * time.Minute
	conf.Auth.PendingRetention = 7 * 24 * time.Hour
	conf.Auth.CodeRequestLimit = 5
	conf.Auth.CodeRequestWindow = 10 * time.Minute
	conf.Images.MaxSize = 512
	conf.Images.StorageDisabled = true
	return conf
}

// CreateAccount stores a verified account with a cheap password hash.
func CreateAccount(
	t *testing.T,
	repo account.Repository,
	name, email, pwd string,
	role account.Role,
	createdAt ...time.Time,
) account.Account {
	t.Helper()

	tstamp := time.Now().UTC()
	if len(createdAt) > 0 {
		tstamp = createdAt[0].UTC()
	}
	acc := account.Account{
		Email:       email,
		DisplayName: name,
		Role:        role,
		Verified:    true,
		CreatedAt:   tstamp,
		UpdatedAt:   tstamp,
	}
	if pwd != "" {
		hash, err := bcrypt.GenerateFromPassword([]byte(pwd), bcrypt.MinCost)
		if err != nil {
			t.Fatalf("CreateAccount() failed: %v", err)
		}
		acc.PasswordHash = hash
	}
	acc, err := repo.CreateAccount(context.Background(), acc)
	if err != nil {
		t.Fatalf("CreateAccount() failed: %v", err)
	}
	return acc
}
