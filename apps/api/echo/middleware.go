package echoapi

import (
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/nooracademy/noor/core/account"
)

// contextAccountMiddleware loads the account of the access token into the context.
// Tokens issued before the last password change are rejected.
func contextAccountMiddleware(svc *account.Service) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			claims, err := getContextClaims(ctx)
			if err != nil {
				return err
			}
			if !claims.VerifyAudience(accessAudience, true) {
				return errUnauthorized
			}

			acc, err := svc.GetByID(ctx.Request().Context(), claims.Subject)
			if err != nil {
				if errors.Cause(err) == account.ErrNotFound {
					return errUnauthorized
				}
				return errors.Wrap(err, "finding account by ID")
			}
			if claims.PasswordStamp != passwordStamp(acc) {
				return errTokenRevoked
			}
			ctx.Set(contextAccountKey, acc)
			return next(ctx)
		}
	}
}

func adminMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			acc, err := getContextAccount(ctx)
			if err != nil {
				return errors.Wrap(err, "getting context account")
			}
			if acc.IsAdmin() {
				return next(ctx)
			}
			return errHttpForbidden
		}
	}
}
