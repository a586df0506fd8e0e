package account

import (
	"context"
	"fmt"
	"io"
	"net/mail"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/nooracademy/noor/core"
)

// email templates
const (
	signupCodeTmpl        = "signup_code"
	accountCodeTmpl       = "account_code"
	passwordResetCodeTmpl = "password_reset_code"
	emailChangeCodeTmpl   = "email_change_code"
)

var errSameEmail = errors.New("the new email must differ from the current one")

type (
	Deps struct {
		Accounts      Repository
		Pending       PendingStore
		RefreshTokens RefreshTokenRepository
		Limiter       RequestLimiter
		Hasher        PasswordHasher
		Tokens        TokenIssuer
		Mail          core.EmailService
		Images        core.ImageService
		Logger        core.Logger
		Conf          *core.Config
	}

	// Service orchestrates the credential lifecycle: signup, verification, login & session refresh,
	// password change/reset and email change.
	Service struct {
		accounts      Repository
		pending       PendingStore
		refreshTokens RefreshTokenRepository
		limiter       RequestLimiter
		hasher        PasswordHasher
		tokens        TokenIssuer
		mailSvc       core.EmailService
		imageSvc      core.ImageService
		logger        core.Logger
		conf          *core.Config

		dummyOnce sync.Once
		dummyHash []byte
	}

	// CodeMailData is the template data of every code email.
	CodeMailData struct {
		Name      string
		Code      string
		ExpiresIn string
		NewEmail  string
	}
)

func NewService(deps Deps) *Service {
	return &Service{
		accounts:      deps.Accounts,
		pending:       deps.Pending,
		refreshTokens: deps.RefreshTokens,
		limiter:       deps.Limiter,
		hasher:        deps.Hasher,
		tokens:        deps.Tokens,
		mailSvc:       deps.Mail,
		imageSvc:      deps.Images,
		logger:        deps.Logger,
		conf:          deps.Conf,
	}
}

// Signup stores a PendingRegistration for a standard account and emails its verification code.
func (svc *Service) Signup(ctx context.Context, nr NewRegistration) (PendingRegistration, error) {
	return svc.register(ctx, nr, RoleStandard)
}

// InviteAdministrator is Signup for administrator accounts.
func (svc *Service) InviteAdministrator(ctx context.Context, nr NewRegistration) (PendingRegistration, error) {
	return svc.register(ctx, nr, RoleAdministrator)
}

func (svc *Service) register(ctx context.Context, nr NewRegistration, role Role) (PendingRegistration, error) {
	email := core.CleanString(nr.Email, true /* lower */)

	if _, err := svc.accounts.GetAccount(ctx, GetFilter{Email: email}); err == nil {
		return PendingRegistration{}, ErrAlreadyRegistered
	} else if errors.Cause(err) != ErrNotFound {
		return PendingRegistration{}, errors.Wrap(err, "finding account by email")
	}
	if _, err := svc.pending.GetPending(ctx, email); err == nil {
		return PendingRegistration{}, ErrVerificationPending
	} else if errors.Cause(err) != ErrNoPendingRegistration {
		return PendingRegistration{}, errors.Wrap(err, "finding pending registration")
	}

	if err := svc.limiter.Allow(ctx, email); err != nil {
		return PendingRegistration{}, err
	}

	hash, err := svc.hasher.Hash(nr.Password)
	if err != nil {
		return PendingRegistration{}, err
	}
	code, expiry, err := newCode(svc.conf.Auth.SignupCodeTTL)
	if err != nil {
		return PendingRegistration{}, err
	}

	pr := PendingRegistration{
		Email:        email,
		DisplayName:  core.CleanString(nr.DisplayName),
		PasswordHash: hash,
		Code:         code,
		CodeExpiry:   expiry,
		Role:         role,
		CreatedAt:    NowFunc().UTC(),
	}
	// fails with ErrVerificationPending when a concurrent signup won
	if err = svc.pending.CreatePending(ctx, pr, svc.conf.Auth.PendingRetention); err != nil {
		if errors.Cause(err) == ErrVerificationPending {
			return PendingRegistration{}, ErrVerificationPending
		}
		return PendingRegistration{}, errors.Wrap(err, "creating pending registration")
	}

	err = svc.sendCode(ctx, signupCodeTmpl, "Verify your email", pr.Email, CodeMailData{
		Name:      pr.DisplayName,
		Code:      code,
		ExpiresIn: humanizeTTL(svc.conf.Auth.SignupCodeTTL),
	})
	if err != nil {
		// the code never reached the user, signup must be retryable
		if dErr := svc.pending.DeletePending(ctx, pr.Email); dErr != nil {
			svc.logger.Error(fmt.Sprintf("deleting pending registration: %v", dErr), dErr)
		}
		return PendingRegistration{}, errors.Wrap(err, "sending signup code")
	}
	return pr, nil
}

// VerifySignup promotes the PendingRegistration of email into a verified Account when code matches.
func (svc *Service) VerifySignup(ctx context.Context, email, code string) (Account, error) {
	email = core.CleanString(email, true /* lower */)

	pr, err := svc.pending.GetPending(ctx, email)
	if err != nil {
		if errors.Cause(err) == ErrNoPendingRegistration {
			return Account{}, ErrNoPendingRegistration
		}
		return Account{}, errors.Wrap(err, "finding pending registration")
	}
	if !codeMatches(pr.Code, pr.CodeExpiry, core.CleanString(code)) {
		return Account{}, ErrInvalidOrExpiredCode
	}

	now := NowFunc().UTC()
	acc, err := svc.accounts.CreateAccount(ctx, Account{
		Email:        pr.Email,
		DisplayName:  pr.DisplayName,
		PasswordHash: pr.PasswordHash,
		Role:         pr.Role,
		Verified:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	})
	if err != nil {
		if errors.Cause(err) == ErrAlreadyRegistered {
			return Account{}, ErrAlreadyRegistered
		}
		return Account{}, errors.Wrap(err, "creating account")
	}

	if err = svc.pending.DeletePending(ctx, pr.Email); err != nil {
		svc.logger.Error(fmt.Sprintf("deleting pending registration: %v", err), err, acc)
	}
	return acc, nil
}

// ResendCode sends a fresh code for whatever is waiting on email: a pending registration,
// an email change (sent to the current address) or, failing those, a generic account code.
func (svc *Service) ResendCode(ctx context.Context, email string) error {
	email = core.CleanString(email, true /* lower */)

	pr, err := svc.pending.GetPending(ctx, email)
	switch {
	case err == nil:
		return svc.resendSignupCode(ctx, pr)
	case errors.Cause(err) != ErrNoPendingRegistration:
		return errors.Wrap(err, "finding pending registration")
	}

	acc, err := svc.accounts.GetAccount(ctx, GetFilter{EmailOrPendingEmail: email})
	if err != nil {
		if errors.Cause(err) == ErrNotFound {
			return ErrNotFound
		}
		return errors.Wrap(err, "finding account by email")
	}
	if err = svc.limiter.Allow(ctx, acc.Email); err != nil {
		return err
	}

	if acc.PendingEmail != "" {
		code, expiry, err := newCode(svc.conf.Auth.EmailChangeCodeTTL)
		if err != nil {
			return err
		}
		if err = svc.accounts.SetEmailChange(ctx, acc.ID, acc.PendingEmail, code, expiry, NowFunc()); err != nil {
			return errors.Wrap(err, "storing email change code")
		}
		err = svc.sendCode(ctx, emailChangeCodeTmpl, "Confirm your new email", acc.Email, CodeMailData{
			Name:      acc.DisplayName,
			Code:      code,
			ExpiresIn: humanizeTTL(svc.conf.Auth.EmailChangeCodeTTL),
			NewEmail:  acc.PendingEmail,
		})
		return errors.Wrap(err, "sending email change code")
	}

	code, expiry, err := newCode(svc.conf.Auth.SignupCodeTTL)
	if err != nil {
		return err
	}
	if err = svc.accounts.SetOTP(ctx, acc.ID, code, expiry, NowFunc()); err != nil {
		return errors.Wrap(err, "storing account code")
	}
	err = svc.sendCode(ctx, accountCodeTmpl, "Your verification code", acc.Email, CodeMailData{
		Name:      acc.DisplayName,
		Code:      code,
		ExpiresIn: humanizeTTL(svc.conf.Auth.SignupCodeTTL),
	})
	return errors.Wrap(err, "sending account code")
}

func (svc *Service) resendSignupCode(ctx context.Context, pr PendingRegistration) error {
	if err := svc.limiter.Allow(ctx, pr.Email); err != nil {
		return err
	}

	code, expiry, err := newCode(svc.conf.Auth.SignupCodeTTL)
	if err != nil {
		return err
	}
	pr.Code, pr.CodeExpiry = code, expiry
	if err = svc.pending.UpdatePending(ctx, pr); err != nil {
		if errors.Cause(err) == ErrNoPendingRegistration { // expired in between
			return ErrNoPendingRegistration
		}
		return errors.Wrap(err, "updating pending registration")
	}

	err = svc.sendCode(ctx, signupCodeTmpl, "Verify your email", pr.Email, CodeMailData{
		Name:      pr.DisplayName,
		Code:      code,
		ExpiresIn: humanizeTTL(svc.conf.Auth.SignupCodeTTL),
	})
	return errors.Wrap(err, "sending signup code")
}

// Login checks the credentials and opens a new Session.
// Unknown emails & wrong passwords fail the same way.
func (svc *Service) Login(ctx context.Context, email, pwd string) (Session, error) {
	email = core.CleanString(email, true /* lower */)

	acc, err := svc.accounts.GetAccount(ctx, GetFilter{Email: email})
	if err != nil {
		if errors.Cause(err) != ErrNotFound {
			return Session{}, errors.Wrap(err, "finding account by email")
		}
		return Session{}, svc.loginPending(ctx, email, pwd)
	}

	if err = svc.hasher.Compare(acc.PasswordHash, pwd); err != nil {
		return Session{}, ErrInvalidCredentials
	}
	if !acc.Verified {
		return Session{}, ErrEmailNotVerified
	}

	acc.LastLogin = NowFunc().UTC()
	if err = svc.accounts.SetLastLogin(ctx, acc.ID, acc.LastLogin); err != nil {
		return Session{}, errors.Wrap(err, "setting lastLogin")
	}
	return svc.newSession(ctx, acc)
}

// loginPending tells a not-yet-verified signup apart from bad credentials, only when the password matches.
func (svc *Service) loginPending(ctx context.Context, email, pwd string) error {
	pr, err := svc.pending.GetPending(ctx, email)
	if err != nil {
		if errors.Cause(err) != ErrNoPendingRegistration {
			return errors.Wrap(err, "finding pending registration")
		}
		_ = svc.hasher.Compare(svc.getDummyHash(), pwd) // same cost as a real check
		return ErrInvalidCredentials
	}
	if err = svc.hasher.Compare(pr.PasswordHash, pwd); err != nil {
		return ErrInvalidCredentials
	}
	return ErrEmailNotVerified
}

func (svc *Service) getDummyHash() []byte {
	svc.dummyOnce.Do(func() {
		hash, err := svc.hasher.Hash("dummy-Passw0rd!")
		if err != nil {
			svc.logger.Error(fmt.Sprintf("hashing dummy password: %v", err), err)
		}
		svc.dummyHash = hash
	})
	return svc.dummyHash
}

func (svc *Service) newSession(ctx context.Context, acc Account) (Session, error) {
	access, err := svc.tokens.IssueAccessToken(acc)
	if err != nil {
		return Session{}, errors.Wrap(err, "issuing access token")
	}
	refresh, expiresAt, err := svc.tokens.IssueRefreshToken(acc)
	if err != nil {
		return Session{}, errors.Wrap(err, "issuing refresh token")
	}

	err = svc.refreshTokens.CreateRefreshToken(ctx, RefreshToken{
		Token:             refresh,
		AccountID:         acc.ID,
		PasswordChangedAt: acc.PasswordChangedAt,
		ExpiresAt:         expiresAt,
		CreatedAt:         NowFunc().UTC(),
	})
	if err != nil {
		return Session{}, errors.Wrap(err, "storing refresh token")
	}
	return Session{AccessToken: access, RefreshToken: refresh, Account: acc}, nil
}

// Refresh exchanges a stored refresh token for a new Session; the old token is revoked.
func (svc *Service) Refresh(ctx context.Context, token string) (Session, error) {
	accountID, err := svc.tokens.ParseRefreshToken(token)
	if err != nil {
		return Session{}, ErrInvalidToken
	}

	rt, err := svc.refreshTokens.GetRefreshToken(ctx, token)
	if err != nil {
		if errors.Cause(err) == ErrNotFound {
			return Session{}, ErrInvalidToken
		}
		return Session{}, errors.Wrap(err, "finding refresh token")
	}
	if rt.AccountID != accountID || !NowFunc().Before(rt.ExpiresAt) {
		return Session{}, ErrInvalidToken
	}

	acc, err := svc.accounts.GetAccount(ctx, GetFilter{ID: rt.AccountID})
	if err != nil {
		if errors.Cause(err) == ErrNotFound {
			return Session{}, ErrInvalidToken
		}
		return Session{}, errors.Wrap(err, "finding account by ID")
	}

	if err = svc.refreshTokens.DeleteRefreshToken(ctx, token); err != nil {
		if errors.Cause(err) == ErrNotFound { // rotated concurrently
			return Session{}, ErrInvalidToken
		}
		return Session{}, errors.Wrap(err, "revoking refresh token")
	}
	// issued before a password change that committed in between
	if rt.PasswordChangedAt.UnixMicro() != acc.PasswordChangedAt.UnixMicro() {
		return Session{}, ErrInvalidToken
	}
	return svc.newSession(ctx, acc)
}

// Logout revokes a refresh token.
func (svc *Service) Logout(ctx context.Context, token string) error {
	if err := svc.refreshTokens.DeleteRefreshToken(ctx, token); err != nil {
		if errors.Cause(err) == ErrNotFound {
			return ErrInvalidToken
		}
		return errors.Wrap(err, "revoking refresh token")
	}
	return nil
}

func (svc *Service) ChangePassword(ctx context.Context, accountID, current, pwd string) error {
	acc, err := svc.GetByID(ctx, accountID)
	if err != nil {
		return err
	}
	if err = svc.hasher.Compare(acc.PasswordHash, current); err != nil {
		return ErrInvalidCredentials
	}
	return svc.setPassword(ctx, acc, pwd)
}

// SetPassword replaces the password of the account owning email, without any other check.
func (svc *Service) SetPassword(ctx context.Context, email, pwd string) error {
	acc, err := svc.accounts.GetAccount(ctx, GetFilter{Email: core.CleanString(email, true /* lower */)})
	if err != nil {
		if errors.Cause(err) == ErrNotFound {
			return ErrNotFound
		}
		return errors.Wrap(err, "finding account by email")
	}
	return svc.setPassword(ctx, acc, pwd)
}

// setPassword stores the new hash and revokes every session of acc.
func (svc *Service) setPassword(ctx context.Context, acc Account, pwd string) error {
	hash, err := svc.hasher.Hash(pwd)
	if err != nil {
		return err
	}
	if err = svc.accounts.SetPassword(ctx, acc.ID, hash, NowFunc()); err != nil {
		return errors.Wrap(err, "updating password")
	}
	if err = svc.refreshTokens.DeleteAccountRefreshTokens(ctx, acc.ID); err != nil {
		return errors.Wrap(err, "revoking refresh tokens")
	}
	return nil
}

// ForgotPassword emails a password reset code.
func (svc *Service) ForgotPassword(ctx context.Context, email string) error {
	email = core.CleanString(email, true /* lower */)

	acc, err := svc.accounts.GetAccount(ctx, GetFilter{Email: email})
	if err != nil {
		if errors.Cause(err) == ErrNotFound {
			return ErrNotFound
		}
		return errors.Wrap(err, "finding account by email")
	}
	if err = svc.limiter.Allow(ctx, acc.Email); err != nil {
		return err
	}

	code, expiry, err := newCode(svc.conf.Auth.PasswordResetCodeTTL)
	if err != nil {
		return err
	}
	if err = svc.accounts.SetPasswordResetCode(ctx, acc.ID, code, expiry, NowFunc()); err != nil {
		return errors.Wrap(err, "storing password reset code")
	}

	err = svc.sendCode(ctx, passwordResetCodeTmpl, "Reset your password", acc.Email, CodeMailData{
		Name:      acc.DisplayName,
		Code:      code,
		ExpiresIn: humanizeTTL(svc.conf.Auth.PasswordResetCodeTTL),
	})
	return errors.Wrap(err, "sending password reset code")
}

// ResetPassword sets a new password when code matches the reset code of email.
func (svc *Service) ResetPassword(ctx context.Context, email, code, pwd string) error {
	acc, err := svc.accounts.GetAccount(ctx, GetFilter{Email: core.CleanString(email, true /* lower */)})
	if err != nil {
		if errors.Cause(err) == ErrNotFound {
			return ErrInvalidOrExpiredCode
		}
		return errors.Wrap(err, "finding account by email")
	}
	if !codeMatches(acc.PasswordResetCode, acc.PasswordResetExpiry, core.CleanString(code)) {
		return ErrInvalidOrExpiredCode
	}
	return svc.setPassword(ctx, acc, pwd)
}

// RequestEmailChange records newEmail as pending and sends the confirmation code to the current email.
func (svc *Service) RequestEmailChange(ctx context.Context, accountID, newEmail string) error {
	acc, err := svc.GetByID(ctx, accountID)
	if err != nil {
		return err
	}

	newEmail = core.CleanString(newEmail, true /* lower */)
	if newEmail == acc.Email {
		return core.NewValidationError(errSameEmail, core.FieldError{Field: "newEmail", Error: errSameEmail.Error()})
	}
	if _, err = svc.accounts.GetAccount(ctx, GetFilter{Email: newEmail}); err == nil {
		return ErrAlreadyRegistered
	} else if errors.Cause(err) != ErrNotFound {
		return errors.Wrap(err, "finding account by email")
	}
	if _, err = svc.pending.GetPending(ctx, newEmail); err == nil {
		return ErrAlreadyRegistered
	} else if errors.Cause(err) != ErrNoPendingRegistration {
		return errors.Wrap(err, "finding pending registration")
	}

	if err = svc.limiter.Allow(ctx, acc.Email); err != nil {
		return err
	}

	code, expiry, err := newCode(svc.conf.Auth.EmailChangeCodeTTL)
	if err != nil {
		return err
	}
	if err = svc.accounts.SetEmailChange(ctx, acc.ID, newEmail, code, expiry, NowFunc()); err != nil {
		return errors.Wrap(err, "storing email change")
	}

	err = svc.sendCode(ctx, emailChangeCodeTmpl, "Confirm your new email", acc.Email, CodeMailData{
		Name:      acc.DisplayName,
		Code:      code,
		ExpiresIn: humanizeTTL(svc.conf.Auth.EmailChangeCodeTTL),
		NewEmail:  newEmail,
	})
	if err != nil {
		if uErr := svc.accounts.SetEmailChange(ctx, acc.ID, "", "", time.Time{}, NowFunc()); uErr != nil {
			svc.logger.Error(fmt.Sprintf("clearing email change: %v", uErr), uErr, acc)
		}
		return errors.Wrap(err, "sending email change code")
	}
	return nil
}

// ConfirmEmailChange swaps in the pending email when code matches; the email is left untouched otherwise.
func (svc *Service) ConfirmEmailChange(ctx context.Context, accountID, code string) (Account, error) {
	acc, err := svc.GetByID(ctx, accountID)
	if err != nil {
		return Account{}, err
	}
	if acc.PendingEmail == "" || !codeMatches(acc.EmailChangeCode, acc.EmailChangeExpiry, core.CleanString(code)) {
		return Account{}, ErrInvalidOrExpiredCode
	}

	err = svc.accounts.ConfirmEmailChange(ctx, acc.ID, acc.PendingEmail, NowFunc())
	switch errors.Cause(err) {
	case nil:
	case ErrAlreadyRegistered:
		return Account{}, ErrAlreadyRegistered
	case ErrNotFound: // superseded or cancelled in between
		return Account{}, ErrInvalidOrExpiredCode
	default:
		return Account{}, errors.Wrap(err, "updating email")
	}
	return svc.GetByID(ctx, acc.ID)
}

func (svc *Service) GetByID(ctx context.Context, id string) (Account, error) {
	acc, err := svc.accounts.GetAccount(ctx, GetFilter{ID: id})
	if err != nil {
		if errors.Cause(err) == ErrNotFound {
			return Account{}, ErrNotFound
		}
		return Account{}, errors.Wrap(err, "finding account by ID")
	}
	return acc, nil
}

// UpdateProfile sets the display name and, when image is not nil, uploads a new avatar.
func (svc *Service) UpdateProfile(ctx context.Context, id string, pu ProfileUpdate, image io.Reader) (Account, error) {
	acc, err := svc.GetByID(ctx, id)
	if err != nil {
		return Account{}, err
	}

	now := NowFunc().UTC()
	if name := core.CleanString(pu.DisplayName); name != "" {
		acc.DisplayName = name
	}
	if image != nil {
		url, err := svc.imageSvc.UploadImage(ctx, fmt.Sprintf("avatars/%s/%d.jpg", acc.ID, now.Unix()), image)
		if err != nil {
			if errors.Cause(err) == core.ErrInvalidImage {
				return Account{}, core.NewValidationError(err, core.FieldError{Field: "image", Error: core.ErrInvalidImage.Error()})
			}
			return Account{}, errors.Wrap(err, "uploading avatar")
		}
		acc.AvatarURL = url
	}

	if err = svc.accounts.UpdateProfile(ctx, acc.ID, acc.DisplayName, acc.AvatarURL, now); err != nil {
		return Account{}, errors.Wrap(err, "updating profile")
	}
	return svc.GetByID(ctx, acc.ID)
}

func (svc *Service) Query(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering) ([]Account, error) {
	accounts, err := svc.accounts.QueryAccounts(ctx, filter, ordering)
	return accounts, errors.Wrap(err, "querying accounts")
}

func (svc *Service) sendCode(ctx context.Context, tmpl, subject, to string, data CodeMailData) error {
	return svc.mailSvc.SendMessages(ctx, &core.EmailMessage{
		To:           []mail.Address{{Name: data.Name, Address: to}},
		Subject:      subject,
		TemplateName: tmpl,
		TemplateData: data,
	})
}
