package echoapi

import (
	"net/http"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"

	"github.com/nooracademy/noor/core"
	"github.com/nooracademy/noor/core/account"
)

var (
	errUnauthorized  = echo.NewHTTPError(http.StatusUnauthorized, "account not authenticated")
	errTokenRevoked  = echo.NewHTTPError(http.StatusUnauthorized, "token revoked, please log in again")
	errHttpForbidden = echo.NewHTTPError(http.StatusForbidden, "permission denied")

	errAccountNotFoundInCtx = errors.New("account not found in echo.Context")
)

// accountErrorStatus maps the account error kinds to HTTP status codes.
var accountErrorStatus = map[account.Kind]int{
	account.KindNotFound:             http.StatusNotFound,
	account.KindAlreadyRegistered:    http.StatusBadRequest,
	account.KindVerificationPending:  http.StatusBadRequest,
	account.KindInvalidOrExpiredCode: http.StatusBadRequest,
	account.KindInvalidCredentials:   http.StatusBadRequest,
	account.KindEmailNotVerified:     http.StatusForbidden,
	account.KindInvalidToken:         http.StatusBadRequest,
	account.KindRateLimited:          http.StatusTooManyRequests,
}

// newAppHTTPErrorHandler returns a custom echo.HTTPErrorHandler that knows how to handle our errors.
// signalShutdown is called in order to gracefully shutdown the Server whenever a core.shutdown error is caught.
func newAppHTTPErrorHandler(logger core.Logger, translator ut.Translator, signalShutdown func()) echo.HTTPErrorHandler {
	return func(err error, ctx echo.Context) {
		var code int
		var message interface{}

		switch origErr := errors.Cause(err).(type) {
		case *echo.HTTPError:
			if origErr == middleware.ErrJWTMissing {
				code = http.StatusUnauthorized
				message = origErr.Message
				break
			}
			if origErr.Internal != nil {
				if herr, ok := origErr.Internal.(*echo.HTTPError); ok {
					origErr = herr
				}
			}
			code = origErr.Code
			message = origErr.Message
		case *account.Error:
			code = accountErrorStatus[origErr.Kind]
			if code == 0 {
				code = http.StatusBadRequest
			}
			message = origErr.Error()
		case validator.ValidationErrors:
			fldErrs := make(map[string]string, len(origErr))
			for _, vErr := range origErr {
				fldErrs[vErr.Field()] = vErr.Translate(translator)
			}
			code = http.StatusBadRequest
			message = fldErrs
		case *core.ValidationError:
			if origErr.Fields != nil {
				fldErrs := make(map[string]string, len(origErr.Fields))
				for _, fErr := range origErr.Fields {
					fldErrs[fErr.Field] = fErr.Error
				}
				message = fldErrs
			} else {
				message = origErr.Error()
			}
			code = http.StatusBadRequest
		default: // any other error is a server error
			code = http.StatusInternalServerError
			msg := http.StatusText(http.StatusInternalServerError)
			message = msg

			args := []interface{}{errors.Wrap(err, msg)}
			if acc, aErr := getContextAccount(ctx); aErr == nil {
				args = append(args, acc)
			} else if claims, cErr := getContextClaims(ctx); cErr == nil {
				args = append(args, account.Account{ID: claims.Subject, DisplayName: claims.Username, Email: claims.Email})
			}
			logger.Error(msg, args...)

			// shutting down...
			if core.IsShutdown(err) {
				signalShutdown()
			}
		}

		if ctx.Echo().Debug && code == http.StatusInternalServerError {
			message = err.Error()
		}
		if m, ok := message.(string); ok {
			message = echo.Map{"error": m}
		}

		// Send response
		if !ctx.Response().Committed {
			if ctx.Request().Method == http.MethodHead { // Issue #608
				err = ctx.NoContent(code)
			} else {
				err = ctx.JSON(code, message)
			}
			if err != nil {
				ctx.Echo().Logger.Error(err)
			}
		}
	}
}
