package echoapi

import (
	"io"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/nooracademy/noor/core"
	"github.com/nooracademy/noor/core/account"
)

const avatarField = "image"

type authApi struct {
	svc      *account.Service
	validate *validator.Validate
}

func registerAuthAPI(g *echo.Group, authed []echo.MiddlewareFunc, svc *account.Service, validate *validator.Validate) {
	api := authApi{svc: svc, validate: validate}

	// un-authed endpoints
	g.POST("/signup", api.signup)
	g.POST("/verify-otp", api.verifyOTP)
	g.POST("/resend-otp", api.resendOTP)
	g.POST("/login", api.login)
	g.POST("/refresh-token", api.refreshToken)
	g.POST("/logout", api.logout)
	g.POST("/forgot-password", api.forgotPassword)
	g.POST("/reset-password", api.resetPassword)

	// authed endpoints
	g.GET("/profile", api.profile, authed...)
	g.PUT("/profile", api.updateProfile, authed...)
	g.POST("/change-password", api.changePassword, authed...)
	g.POST("/change-email", api.changeEmail, authed...)
	g.POST("/confirm-email-change", api.confirmEmailChange, authed...)
}

// Handlers

func (api *authApi) signup(ctx echo.Context) error {
	var data account.NewRegistration
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewRegistration")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	pr, err := api.svc.Signup(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "signing up")
	}
	return ctx.JSON(http.StatusCreated, SignupResponse{
		Message: "A verification code has been sent to your email.",
		Email:   pr.Email,
	})
}

func (api *authApi) verifyOTP(ctx echo.Context) error {
	var data VerifyOTPRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to VerifyOTPRequest")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	acc, err := api.svc.VerifySignup(ctx.Request().Context(), data.Email, data.Code)
	if err != nil {
		return errors.Wrap(err, "verifying signup")
	}
	return ctx.JSON(http.StatusOK, AccountResponse{Message: "Email verified successfully.", Account: acc})
}

func (api *authApi) resendOTP(ctx echo.Context) error {
	var data EmailRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to EmailRequest")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	if err := api.svc.ResendCode(ctx.Request().Context(), data.Email); err != nil {
		return errors.Wrap(err, "resending code")
	}
	return ctx.JSON(http.StatusOK, MessageResponse{Message: "A new code has been sent."})
}

func (api *authApi) login(ctx echo.Context) error {
	var data LoginRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to LoginRequest")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	sess, err := api.svc.Login(ctx.Request().Context(), data.Email, data.Password)
	if err != nil {
		return errors.Wrap(err, "logging in")
	}
	return ctx.JSON(http.StatusOK, sess)
}

func (api *authApi) refreshToken(ctx echo.Context) error {
	var data RefreshTokenRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to RefreshTokenRequest")
	}
	if err := api.validate.Struct(data); err != nil {
		return err
	}

	sess, err := api.svc.Refresh(ctx.Request().Context(), data.RefreshToken)
	if err != nil {
		return errors.Wrap(err, "refreshing token")
	}
	return ctx.JSON(http.StatusOK, sess)
}

func (api *authApi) logout(ctx echo.Context) error {
	var data RefreshTokenRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to RefreshTokenRequest")
	}
	if err := api.validate.Struct(data); err != nil {
		return err
	}

	if err := api.svc.Logout(ctx.Request().Context(), data.RefreshToken); err != nil {
		return errors.Wrap(err, "logging out")
	}
	return ctx.JSON(http.StatusOK, MessageResponse{Message: "Logged out successfully."})
}

func (api *authApi) forgotPassword(ctx echo.Context) error {
	var data EmailRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to EmailRequest")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	if err := api.svc.ForgotPassword(ctx.Request().Context(), data.Email); err != nil {
		return errors.Wrap(err, "requesting password reset")
	}
	return ctx.JSON(http.StatusOK, MessageResponse{Message: "A password reset code has been sent to your email."})
}

func (api *authApi) resetPassword(ctx echo.Context) error {
	var data account.PasswordReset
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to PasswordReset")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	if err := api.svc.ResetPassword(ctx.Request().Context(), data.Email, data.Code, data.NewPassword); err != nil {
		return errors.Wrap(err, "resetting password")
	}
	return ctx.JSON(http.StatusOK, MessageResponse{Message: "Password has been reset with the new password."})
}

func (api *authApi) profile(ctx echo.Context) error {
	acc, err := getContextAccount(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context account")
	}
	return ctx.JSON(http.StatusOK, AccountResponse{Account: acc})
}

func (api *authApi) updateProfile(ctx echo.Context) error {
	acc, err := getContextAccount(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context account")
	}

	var data account.ProfileUpdate
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to ProfileUpdate")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	var image io.Reader
	fh, err := ctx.FormFile(avatarField)
	switch {
	case err == nil:
		file, err := fh.Open()
		if err != nil {
			return errors.Wrap(err, "opening avatar")
		}
		defer func() { _ = file.Close() }()
		image = file
	case err != http.ErrMissingFile && err != http.ErrNotMultipart:
		return core.NewValidationError(err, core.FieldError{Field: avatarField, Error: "invalid file"})
	}

	acc, err = api.svc.UpdateProfile(ctx.Request().Context(), acc.ID, data, image)
	if err != nil {
		return errors.Wrap(err, "updating profile")
	}
	return ctx.JSON(http.StatusOK, AccountResponse{Message: "Profile updated successfully.", Account: acc})
}

func (api *authApi) changePassword(ctx echo.Context) error {
	acc, err := getContextAccount(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context account")
	}

	var data account.PasswordChange
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to PasswordChange")
	}
	if err = data.Validate(api.validate, acc); err != nil {
		return err
	}

	if err = api.svc.ChangePassword(ctx.Request().Context(), acc.ID, data.CurrentPassword, data.NewPassword); err != nil {
		return errors.Wrap(err, "changing password")
	}
	return ctx.JSON(http.StatusOK, MessageResponse{Message: "Password changed successfully."})
}

func (api *authApi) changeEmail(ctx echo.Context) error {
	acc, err := getContextAccount(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context account")
	}

	var data ChangeEmailRequest
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to ChangeEmailRequest")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	if err = api.svc.RequestEmailChange(ctx.Request().Context(), acc.ID, data.NewEmail); err != nil {
		return errors.Wrap(err, "requesting email change")
	}
	return ctx.JSON(http.StatusOK, MessageResponse{Message: "A confirmation code has been sent to your current email."})
}

func (api *authApi) confirmEmailChange(ctx echo.Context) error {
	acc, err := getContextAccount(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context account")
	}

	var data ConfirmEmailChangeRequest
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to ConfirmEmailChangeRequest")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	acc, err = api.svc.ConfirmEmailChange(ctx.Request().Context(), acc.ID, data.Code)
	if err != nil {
		return errors.Wrap(err, "confirming email change")
	}
	return ctx.JSON(http.StatusOK, AccountResponse{Message: "Email changed successfully.", Account: acc})
}

type (
	VerifyOTPRequest struct {
		Email string `json:"email" validate:"required,email"`
		Code  string `json:"otp" validate:"required,otp"`
	}

	EmailRequest struct {
		Email string `json:"email" validate:"required,email"`
	}

	LoginRequest struct {
		Email    string `json:"email" validate:"required,email"`
		Password string `json:"password" validate:"required"`
	}

	RefreshTokenRequest struct {
		RefreshToken string `json:"refreshToken" validate:"required"`
	}

	ChangeEmailRequest struct {
		NewEmail string `json:"newEmail" validate:"required,email,max=254"`
	}

	ConfirmEmailChangeRequest struct {
		Code string `json:"otp" validate:"required,otp"`
	}

	MessageResponse struct {
		Message string `json:"message"`
	}

	SignupResponse struct {
		Message string `json:"message"`
		Email   string `json:"email"`
	}

	AccountResponse struct {
		Message string          `json:"message,omitempty"`
		Account account.Account `json:"user"`
	}
)

func (r *VerifyOTPRequest) Validate(validate *validator.Validate) error {
	r.Email = core.CleanString(r.Email, true /* lower */)
	r.Code = core.CleanString(r.Code)
	return validate.Struct(r)
}

func (r *EmailRequest) Validate(validate *validator.Validate) error {
	r.Email = core.CleanString(r.Email, true /* lower */)
	return validate.Struct(r)
}

func (r *LoginRequest) Validate(validate *validator.Validate) error {
	r.Email = core.CleanString(r.Email, true /* lower */)
	return validate.Struct(r)
}

func (r *ChangeEmailRequest) Validate(validate *validator.Validate) error {
	r.NewEmail = core.CleanString(r.NewEmail, true /* lower */)
	return validate.Struct(r)
}

func (r *ConfirmEmailChangeRequest) Validate(validate *validator.Validate) error {
	r.Code = core.CleanString(r.Code)
	return validate.Struct(r)
}
