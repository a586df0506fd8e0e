package account

import (
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/nooracademy/noor/core"
)

type Role string

const (
	RoleStandard      Role = "standard"
	RoleAdministrator Role = "administrator"
)

var Roles = []Role{RoleStandard, RoleAdministrator}

func (r Role) Valid() bool {
	return r == RoleStandard || r == RoleAdministrator
}

// Account is a verified member of the academy.
// The in-flight email change (PendingEmail, EmailChangeCode, EmailChangeExpiry) is set and cleared as a whole.
type Account struct {
	ID                  string    `json:"id"`
	Email               string    `json:"email"`
	DisplayName         string    `json:"username"`
	PasswordHash        []byte    `json:"-"`
	Role                Role      `json:"role"`
	Verified            bool      `json:"verified"`
	AvatarURL           string    `json:"avatar,omitempty"`
	OTP                 string    `json:"-"`
	OTPExpiry           time.Time `json:"-"`
	PasswordResetCode   string    `json:"-"`
	PasswordResetExpiry time.Time `json:"-"`
	PendingEmail        string    `json:"pendingEmail,omitempty"`
	EmailChangeCode     string    `json:"-"`
	EmailChangeExpiry   time.Time `json:"-"`
	PasswordChangedAt   time.Time `json:"-"`
	CreatedAt           time.Time `json:"createdAt"` // UTC
	UpdatedAt           time.Time `json:"updatedAt"` // UTC
	LastLogin           time.Time `json:"lastLogin"` // UTC
}

func (acc Account) IsAdmin() bool {
	return acc.Role == RoleAdministrator
}

// PendingRegistration is a signup waiting for its code to be verified.
// It is dropped by the store once the retention window is over.
type PendingRegistration struct {
	Email        string    `json:"email"`
	DisplayName  string    `json:"displayName"`
	PasswordHash []byte    `json:"passwordHash"`
	Code         string    `json:"code"`
	CodeExpiry   time.Time `json:"codeExpiry"`
	Role         Role      `json:"role"`
	CreatedAt    time.Time `json:"createdAt"`
}

// RefreshToken is only valid while the account's PasswordChangedAt is the one it was issued with.
type RefreshToken struct {
	Token             string
	AccountID         string
	PasswordChangedAt time.Time
	ExpiresAt         time.Time
	CreatedAt         time.Time
}

// Session is what a successful login or token refresh hands back to the client.
type Session struct {
	AccessToken  string  `json:"accessToken"`
	RefreshToken string  `json:"refreshToken"`
	Account      Account `json:"user"`
}

// NewRegistration contains the information needed to sign up.
type NewRegistration struct {
	DisplayName string `json:"username" validate:"required,notblank,max=64"`
	Email       string `json:"email" validate:"required,email,max=254"`
	Password    string `json:"password" validate:"required"`
}

func (nr *NewRegistration) Validate(validate *validator.Validate) error {
	nr.DisplayName = core.CleanString(nr.DisplayName)
	nr.Email = core.CleanString(nr.Email, true /* lower */)
	return validate.Struct(nr)
}

// PasswordChange is sent by an authenticated account.
// DisplayName & Email are not bound; they feed the similarity check of the password policy.
type PasswordChange struct {
	CurrentPassword string `json:"currentPassword" validate:"required"`
	NewPassword     string `json:"newPassword" validate:"required"`
	DisplayName     string `json:"-"`
	Email           string `json:"-"`
}

func (pc *PasswordChange) Validate(validate *validator.Validate, acc Account) error {
	pc.DisplayName = acc.DisplayName
	pc.Email = acc.Email
	return validate.Struct(pc)
}

type PasswordReset struct {
	Email       string `json:"email" validate:"required,email"`
	Code        string `json:"otp" validate:"required,otp"`
	NewPassword string `json:"newPassword" validate:"required"`
}

func (pr *PasswordReset) Validate(validate *validator.Validate) error {
	pr.Email = core.CleanString(pr.Email, true /* lower */)
	pr.Code = core.CleanString(pr.Code)
	return validate.Struct(pr)
}

type ProfileUpdate struct {
	DisplayName string `form:"username" validate:"omitempty,notblank,max=64"`
}

func (pu *ProfileUpdate) Validate(validate *validator.Validate) error {
	pu.DisplayName = core.CleanString(pu.DisplayName)
	return validate.Struct(pu)
}

type QueryFilter struct {
	Search      string    `query:"search"`
	Roles       []Role    `query:"role"`
	Verified    *bool     `query:"verified"`
	CreatedFrom time.Time `query:"created_from"`
	CreatedTo   time.Time `query:"created_to"`
}

func (qf *QueryFilter) IsEmpty() bool {
	return qf.Search == "" && qf.Roles == nil && qf.Verified == nil && qf.CreatedFrom.IsZero() && qf.CreatedTo.IsZero()
}

func (qf *QueryFilter) Clean() {
	qf.Search = core.CleanString(qf.Search)
}

// GetFilter selects a single Account; only one field is expected to be set.
// EmailOrPendingEmail prefers the account owning the email over the one changing to it.
type GetFilter struct {
	ID                  string
	Email               string
	EmailOrPendingEmail string
}
