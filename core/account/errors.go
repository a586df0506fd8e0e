package account

import "github.com/pkg/errors"

// Kind is the closed set of failures the credential workflow reports.
type Kind int

const (
	KindUnknown Kind = iota
	KindNotFound
	KindAlreadyRegistered
	KindVerificationPending
	KindInvalidOrExpiredCode
	KindInvalidCredentials
	KindEmailNotVerified
	KindInvalidToken
	KindRateLimited
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "NotFound"
	case KindAlreadyRegistered:
		return "AlreadyRegistered"
	case KindVerificationPending:
		return "VerificationPending"
	case KindInvalidOrExpiredCode:
		return "InvalidOrExpiredCode"
	case KindInvalidCredentials:
		return "InvalidCredentials"
	case KindEmailNotVerified:
		return "EmailNotVerified"
	case KindInvalidToken:
		return "InvalidToken"
	case KindRateLimited:
		return "RateLimited"
	default:
		return "Unknown"
	}
}

type Error struct {
	Kind Kind
	msg  string
}

func (e *Error) Error() string { return e.msg }

var (
	ErrNotFound              = &Error{Kind: KindNotFound, msg: "account not found"}
	ErrNoPendingRegistration = &Error{Kind: KindNotFound, msg: "no pending registration for this email"}
	ErrAlreadyRegistered     = &Error{Kind: KindAlreadyRegistered, msg: "an account with this email already exists"}
	ErrVerificationPending   = &Error{Kind: KindVerificationPending, msg: "a registration for this email is pending verification"}
	ErrInvalidOrExpiredCode  = &Error{Kind: KindInvalidOrExpiredCode, msg: "invalid or expired code"}
	ErrInvalidCredentials    = &Error{Kind: KindInvalidCredentials, msg: "invalid credentials"}
	ErrEmailNotVerified      = &Error{Kind: KindEmailNotVerified, msg: "email not verified"}
	ErrInvalidToken          = &Error{Kind: KindInvalidToken, msg: "invalid or expired token"}
	ErrRateLimited           = &Error{Kind: KindRateLimited, msg: "too many code requests, try again later"}
)

// KindOf returns the Kind of the *Error at the root of err, KindUnknown otherwise.
func KindOf(err error) Kind {
	if e, ok := errors.Cause(err).(*Error); ok {
		return e.Kind
	}
	return KindUnknown
}
