package echoapi

import (
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"

	"github.com/nooracademy/noor/core"
	"github.com/nooracademy/noor/core/account"
)

const (
	accessAudience  = "access"
	refreshAudience = "refresh"

	contextTokenKey   = "accountToken"
	contextAccountKey = "account"
)

var nowFunc = time.Now // mockable

// Claims represents the authorization claims transmitted via an access token.
type Claims struct {
	jwt.StandardClaims
	ID       string       `json:"id"` // same as Subject
	Username string       `json:"username,omitempty"`
	Email    string       `json:"email,omitempty"`
	Role     account.Role `json:"role,omitempty"`
	IsAdmin  bool         `json:"isAdmin,omitempty"`
	// PasswordStamp is the account's passwordChangedAt (µs) when the token was issued.
	PasswordStamp int64 `json:"pwdAt,omitempty"`
}

func newJWTConfig(conf *core.Config) middleware.JWTConfig {
	return middleware.JWTConfig{
		SigningKey:    []byte(conf.SecretKey),
		SigningMethod: middleware.AlgorithmHS256,
		ContextKey:    contextTokenKey,
		Claims:        new(Claims),
	}
}

func passwordStamp(acc account.Account) int64 {
	if acc.PasswordChangedAt.IsZero() {
		return 0
	}
	return acc.PasswordChangedAt.UnixMicro()
}

// TokenIssuer signs the HS256 access & refresh tokens of the account sessions.
type TokenIssuer struct {
	key        []byte
	issuer     string
	accessTTL  time.Duration
	refreshTTL time.Duration
}

var _ account.TokenIssuer = (*TokenIssuer)(nil) // interface compliance check

func NewTokenIssuer(conf *core.Config) *TokenIssuer {
	return &TokenIssuer{
		key:        []byte(conf.SecretKey),
		issuer:     conf.AppName,
		accessTTL:  conf.Server.AccessTokenTTL,
		refreshTTL: conf.Server.RefreshTokenTTL,
	}
}

func (ti *TokenIssuer) sign(claims jwt.Claims) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	ss, err := token.SignedString(ti.key)
	if err != nil {
		return "", errors.Wrap(err, "signing token")
	}
	return ss, nil
}

// AccessClaims returns the claims of a new access token for acc.
func (ti *TokenIssuer) AccessClaims(acc account.Account) *Claims {
	now := nowFunc()
	return &Claims{
		StandardClaims: jwt.StandardClaims{
			Issuer:    ti.issuer,
			Subject:   acc.ID,
			Audience:  accessAudience,
			ExpiresAt: now.Add(ti.accessTTL).Unix(),
			IssuedAt:  now.Unix(),
		},
		ID:            acc.ID,
		Username:      acc.DisplayName,
		Email:         acc.Email,
		Role:          acc.Role,
		IsAdmin:       acc.IsAdmin(),
		PasswordStamp: passwordStamp(acc),
	}
}

func (ti *TokenIssuer) IssueAccessToken(acc account.Account) (string, error) {
	return ti.sign(ti.AccessClaims(acc))
}

func (ti *TokenIssuer) IssueRefreshToken(acc account.Account) (string, time.Time, error) {
	now := nowFunc()
	expiresAt := now.Add(ti.refreshTTL)
	token, err := ti.sign(&jwt.StandardClaims{
		Id:        uuid.New().String(),
		Issuer:    ti.issuer,
		Subject:   acc.ID,
		Audience:  refreshAudience,
		ExpiresAt: expiresAt.Unix(),
		IssuedAt:  now.Unix(),
	})
	if err != nil {
		return "", time.Time{}, err
	}
	return token, expiresAt.UTC(), nil
}

func (ti *TokenIssuer) ParseRefreshToken(token string) (string, error) {
	claims := new(jwt.StandardClaims)
	_, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if t.Method.Alg() != middleware.AlgorithmHS256 {
			return nil, errors.Errorf("unexpected jwt signing method=%v", t.Header["alg"])
		}
		return ti.key, nil
	})
	if err != nil || !claims.VerifyAudience(refreshAudience, true) || claims.Subject == "" {
		return "", account.ErrInvalidToken
	}
	return claims.Subject, nil
}

func getContextClaims(ctx echo.Context) (Claims, error) {
	if token, ok := ctx.Get(contextTokenKey).(*jwt.Token); ok {
		if claims, ok := token.Claims.(*Claims); ok {
			return *claims, nil
		}
	}
	return Claims{}, errUnauthorized
}

func getContextAccount(ctx echo.Context) (account.Account, error) {
	if acc, ok := ctx.Get(contextAccountKey).(account.Account); ok {
		return acc, nil
	}
	return account.Account{}, errAccountNotFoundInCtx
}
