package tests

import (
	"bytes"
	"context"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	. "github.com/nooracademy/noor/apps/api/echo"
	"github.com/nooracademy/noor/core"
	"github.com/nooracademy/noor/core/account"
	testutil "github.com/nooracademy/noor/tests"
)

const (
	testEmail = "amina@noor.test"
	testPwd   = "Tajw1d!Rules"
	newPwd    = "Qalqal4h#Sound"
)

func post(t *testing.T, app *testApp, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	req, rec := newAuthRequest(http.MethodPost, path, token, marchallObj(t, body))
	app.ServeHTTP(rec, req)
	return rec
}

func signupAndVerify(t *testing.T, app *testApp, email string) account.Account {
	t.Helper()
	rec := post(t, app, "/auth/signup", "", account.NewRegistration{DisplayName: "Amina", Email: email, Password: testPwd})
	checkCode(t, rec, http.StatusCreated)

	rec = post(t, app, "/auth/verify-otp", "", VerifyOTPRequest{Email: email, Code: lastCode(t, email)})
	checkCode(t, rec, http.StatusOK)
	var resp AccountResponse
	unmarshal(t, rec, &resp)
	return resp.Account
}

func login(t *testing.T, app *testApp, email, pwd string) account.Session {
	t.Helper()
	rec := post(t, app, "/auth/login", "", LoginRequest{Email: email, Password: pwd})
	checkCode(t, rec, http.StatusOK)
	var sess account.Session
	unmarshal(t, rec, &sess)
	return sess
}

func otherCode(code string) string {
	if code == "000000" {
		return "111111"
	}
	return "000000"
}

func Test_authApi_signup(t *testing.T) {
	app := setup(t)
	testutil.CreateAccount(t, app.accounts, "Bilal", "bilal@noor.test", testPwd, account.RoleStandard)

	tests := []httpTest{
		{
			name: "invalid data", method: http.MethodPost, path: "/auth/signup",
			body:     marchallObj(t, account.NewRegistration{Email: "nope", Password: "short"}),
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{
				"username": "this field is required",
				"email":    "email must be a valid email address",
				"password": "password must contain at least 8 characters",
			}),
		},
		{
			name: "already registered", method: http.MethodPost, path: "/auth/signup",
			body:     marchallObj(t, account.NewRegistration{DisplayName: "Bilal", Email: "Bilal@noor.test", Password: testPwd}),
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, httpErr{Error: account.ErrAlreadyRegistered.Error()}),
		},
		{
			name: "valid", method: http.MethodPost, path: "/auth/signup",
			body:     marchallObj(t, account.NewRegistration{DisplayName: "Amina", Email: " Amina@noor.test", Password: testPwd}),
			wantCode: http.StatusCreated,
			wantData: marchallObj(t, SignupResponse{Message: "A verification code has been sent to your email.", Email: testEmail}),
		},
		{
			name: "verification pending", method: http.MethodPost, path: "/auth/signup",
			body:     marchallObj(t, account.NewRegistration{DisplayName: "Amina", Email: testEmail, Password: testPwd}),
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, httpErr{Error: account.ErrVerificationPending.Error()}),
		},
		{
			name: "login before verification", method: http.MethodPost, path: "/auth/login",
			body:     marchallObj(t, LoginRequest{Email: testEmail, Password: testPwd}),
			wantCode: http.StatusForbidden,
			wantData: marchallObj(t, httpErr{Error: account.ErrEmailNotVerified.Error()}),
		},
	}
	runHTTPTests(t, app, tests)
}

func Test_authApi_verifyOTP(t *testing.T) {
	app := setup(t)
	rec := post(t, app, "/auth/signup", "", account.NewRegistration{DisplayName: "Amina", Email: testEmail, Password: testPwd})
	checkCode(t, rec, http.StatusCreated)
	code := lastCode(t, testEmail)

	tests := []httpTest{
		{
			name: "malformed code", method: http.MethodPost, path: "/auth/verify-otp",
			body:     marchallObj(t, VerifyOTPRequest{Email: testEmail, Code: "12ab"}),
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"otp": "must be a 6-digit code"}),
		},
		{
			name: "unknown email", method: http.MethodPost, path: "/auth/verify-otp",
			body:     marchallObj(t, VerifyOTPRequest{Email: "nobody@noor.test", Code: code}),
			wantCode: http.StatusNotFound,
			wantData: marchallObj(t, httpErr{Error: account.ErrNoPendingRegistration.Error()}),
		},
		{
			name: "wrong code", method: http.MethodPost, path: "/auth/verify-otp",
			body:     marchallObj(t, VerifyOTPRequest{Email: testEmail, Code: otherCode(code)}),
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, httpErr{Error: account.ErrInvalidOrExpiredCode.Error()}),
		},
		{
			name: "right code", method: http.MethodPost, path: "/auth/verify-otp",
			body:     marchallObj(t, VerifyOTPRequest{Email: testEmail, Code: code}),
			wantCode: http.StatusOK,
		},
	}
	runHTTPTests(t, app, tests)

	acc, err := app.accounts.GetAccount(context.Background(), account.GetFilter{Email: testEmail})
	require.NoError(t, err)
	assert.True(t, acc.Verified)
	assert.Equal(t, account.RoleStandard, acc.Role)
}

func Test_authApi_resendOTP(t *testing.T) {
	app := setup(t, func(conf *core.Config) { conf.Auth.CodeRequestLimit = 2 })
	rec := post(t, app, "/auth/signup", "", account.NewRegistration{DisplayName: "Amina", Email: testEmail, Password: testPwd})
	checkCode(t, rec, http.StatusCreated)

	tests := []httpTest{
		{
			name: "unknown email", method: http.MethodPost, path: "/auth/resend-otp",
			body:     marchallObj(t, EmailRequest{Email: "nobody@noor.test"}),
			wantCode: http.StatusNotFound,
		},
		{
			name: "valid", method: http.MethodPost, path: "/auth/resend-otp",
			body:     marchallObj(t, EmailRequest{Email: testEmail}),
			wantCode: http.StatusOK,
			wantData: marchallObj(t, MessageResponse{Message: "A new code has been sent."}),
		},
		{
			name: "rate limited", method: http.MethodPost, path: "/auth/resend-otp",
			body:     marchallObj(t, EmailRequest{Email: testEmail}),
			wantCode: http.StatusTooManyRequests,
			wantData: marchallObj(t, httpErr{Error: account.ErrRateLimited.Error()}),
		},
	}
	runHTTPTests(t, app, tests)
}

func Test_authApi_loginRefreshLogout(t *testing.T) {
	app := setup(t)
	acc := signupAndVerify(t, app, testEmail)

	wrongCreds := marchallObj(t, httpErr{Error: account.ErrInvalidCredentials.Error()})
	runHTTPTests(t, app, []httpTest{
		{
			name: "unknown email", method: http.MethodPost, path: "/auth/login",
			body: marchallObj(t, LoginRequest{Email: "nobody@noor.test", Password: testPwd}), wantCode: http.StatusBadRequest, wantData: wrongCreds,
		},
		{
			name: "wrong password", method: http.MethodPost, path: "/auth/login",
			body: marchallObj(t, LoginRequest{Email: testEmail, Password: newPwd}), wantCode: http.StatusBadRequest, wantData: wrongCreds,
		},
	})

	sess := login(t, app, testEmail, testPwd)
	assert.Equal(t, acc.ID, sess.Account.ID)
	assert.NotEmpty(t, sess.AccessToken)
	assert.NotEmpty(t, sess.RefreshToken)

	// the access token opens the profile
	req, rec := newAuthRequest(http.MethodGet, "/auth/profile", sess.AccessToken)
	app.ServeHTTP(rec, req)
	checkCode(t, rec, http.StatusOK)
	var profile AccountResponse
	unmarshal(t, rec, &profile)
	assert.Equal(t, testEmail, profile.Account.Email)

	// the refresh token does not
	req, rec = newAuthRequest(http.MethodGet, "/auth/profile", sess.RefreshToken)
	app.ServeHTTP(rec, req)
	checkCode(t, rec, http.StatusUnauthorized)

	// rotation
	rr := post(t, app, "/auth/refresh-token", "", RefreshTokenRequest{RefreshToken: sess.RefreshToken})
	checkCode(t, rr, http.StatusOK)
	var refreshed account.Session
	unmarshal(t, rr, &refreshed)
	assert.NotEqual(t, sess.RefreshToken, refreshed.RefreshToken)

	invalidToken := marchallObj(t, httpErr{Error: account.ErrInvalidToken.Error()})
	runHTTPTests(t, app, []httpTest{
		{
			name: "reused refresh token", method: http.MethodPost, path: "/auth/refresh-token",
			body: marchallObj(t, RefreshTokenRequest{RefreshToken: sess.RefreshToken}), wantCode: http.StatusBadRequest, wantData: invalidToken,
		},
		{
			name: "access token as refresh token", method: http.MethodPost, path: "/auth/refresh-token",
			body: marchallObj(t, RefreshTokenRequest{RefreshToken: sess.AccessToken}), wantCode: http.StatusBadRequest, wantData: invalidToken,
		},
		{
			name: "missing refresh token", method: http.MethodPost, path: "/auth/logout",
			body: marchallObj(t, RefreshTokenRequest{}), wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"refreshToken": "this field is required"}),
		},
		{
			name: "logout", method: http.MethodPost, path: "/auth/logout",
			body: marchallObj(t, RefreshTokenRequest{RefreshToken: refreshed.RefreshToken}), wantCode: http.StatusOK,
		},
		{
			name: "logout twice", method: http.MethodPost, path: "/auth/logout",
			body: marchallObj(t, RefreshTokenRequest{RefreshToken: refreshed.RefreshToken}), wantCode: http.StatusBadRequest, wantData: invalidToken,
		},
		{
			name: "refresh after logout", method: http.MethodPost, path: "/auth/refresh-token",
			body: marchallObj(t, RefreshTokenRequest{RefreshToken: refreshed.RefreshToken}), wantCode: http.StatusBadRequest, wantData: invalidToken,
		},
	})
}

func Test_authApi_profile(t *testing.T) {
	app := setup(t)
	acc := testutil.CreateAccount(t, app.accounts, "Amina", testEmail, testPwd, account.RoleStandard)
	token := getToken(t, app, acc)

	runHTTPTests(t, app, []httpTest{
		{name: "auth required", path: "/auth/profile", wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
		{name: "invalid token", path: "/auth/profile", token: "not.a.jwt", wantCode: http.StatusUnauthorized},
		{name: "valid", path: "/auth/profile", token: token, wantCode: http.StatusOK, wantData: marchallObj(t, AccountResponse{Account: acc})},
	})

	t.Run("update", func(t *testing.T) {
		img := imaging.New(1024, 768, color.NRGBA{R: 200, G: 180, B: 90, A: 255})
		var buf bytes.Buffer
		require.NoError(t, png.Encode(&buf, img))

		req, rec := newMultipartRequest(t, http.MethodPut, "/auth/profile", token,
			map[string]string{"username": " Amina B. "}, map[string][]byte{"image": buf.Bytes()})
		app.ServeHTTP(rec, req)
		checkCode(t, rec, http.StatusOK)

		var resp AccountResponse
		unmarshal(t, rec, &resp)
		assert.Equal(t, "Amina B.", resp.Account.DisplayName)
		assert.True(t, strings.Contains(resp.Account.AvatarURL, "/avatars/"+acc.ID+"/"), resp.Account.AvatarURL)
	})

	t.Run("update without image", func(t *testing.T) {
		req, rec := newMultipartRequest(t, http.MethodPut, "/auth/profile", token, map[string]string{"username": "Amina"}, nil)
		app.ServeHTTP(rec, req)
		checkCode(t, rec, http.StatusOK)
	})

	t.Run("not an image", func(t *testing.T) {
		req, rec := newMultipartRequest(t, http.MethodPut, "/auth/profile", token,
			map[string]string{"username": "Amina"}, map[string][]byte{"image": []byte("this is not an image")})
		app.ServeHTTP(rec, req)
		checkCodeAndData(t, httpTest{wantCode: http.StatusBadRequest, wantData: []byte(`{"image":"invalid image"}`)}, rec)
	})

	t.Run("name too long", func(t *testing.T) {
		req, rec := newMultipartRequest(t, http.MethodPut, "/auth/profile", token, map[string]string{"username": strings.Repeat("a", 65)}, nil)
		app.ServeHTTP(rec, req)
		checkCode(t, rec, http.StatusBadRequest)
	})
}

func Test_authApi_changePassword(t *testing.T) {
	app := setup(t)
	signupAndVerify(t, app, testEmail)
	sess := login(t, app, testEmail, testPwd)

	runHTTPTests(t, app, []httpTest{
		{
			name: "wrong current password", method: http.MethodPost, path: "/auth/change-password", token: sess.AccessToken,
			body:     marchallObj(t, account.PasswordChange{CurrentPassword: newPwd, NewPassword: newPwd}),
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, httpErr{Error: account.ErrInvalidCredentials.Error()}),
		},
		{
			name: "weak password", method: http.MethodPost, path: "/auth/change-password", token: sess.AccessToken,
			body:     marchallObj(t, account.PasswordChange{CurrentPassword: testPwd, NewPassword: "password"}),
			wantCode: http.StatusBadRequest,
		},
		{
			name: "valid", method: http.MethodPost, path: "/auth/change-password", token: sess.AccessToken,
			body:     marchallObj(t, account.PasswordChange{CurrentPassword: testPwd, NewPassword: newPwd}),
			wantCode: http.StatusOK,
		},
		{
			name: "earlier access token", path: "/auth/profile", token: sess.AccessToken,
			wantCode: http.StatusUnauthorized,
			wantData: marchallObj(t, httpErr{Error: "token revoked, please log in again"}),
		},
		{
			name: "earlier refresh token", method: http.MethodPost, path: "/auth/refresh-token",
			body:     marchallObj(t, RefreshTokenRequest{RefreshToken: sess.RefreshToken}),
			wantCode: http.StatusBadRequest,
		},
	})

	fresh := login(t, app, testEmail, newPwd)
	req, rec := newAuthRequest(http.MethodGet, "/auth/profile", fresh.AccessToken)
	app.ServeHTTP(rec, req)
	checkCode(t, rec, http.StatusOK)
}

func Test_authApi_forgotAndResetPassword(t *testing.T) {
	app := setup(t)
	signupAndVerify(t, app, testEmail)

	runHTTPTests(t, app, []httpTest{
		{
			name: "unknown email", method: http.MethodPost, path: "/auth/forgot-password",
			body: marchallObj(t, EmailRequest{Email: "nobody@noor.test"}), wantCode: http.StatusNotFound,
		},
		{
			name: "valid", method: http.MethodPost, path: "/auth/forgot-password",
			body: marchallObj(t, EmailRequest{Email: testEmail}), wantCode: http.StatusOK,
		},
	})
	code := lastCode(t, testEmail)

	runHTTPTests(t, app, []httpTest{
		{
			name: "wrong code", method: http.MethodPost, path: "/auth/reset-password",
			body:     marchallObj(t, account.PasswordReset{Email: testEmail, Code: otherCode(code), NewPassword: newPwd}),
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, httpErr{Error: account.ErrInvalidOrExpiredCode.Error()}),
		},
		{
			name: "right code", method: http.MethodPost, path: "/auth/reset-password",
			body:     marchallObj(t, account.PasswordReset{Email: testEmail, Code: code, NewPassword: newPwd}),
			wantCode: http.StatusOK,
		},
		{
			name: "login with the old password", method: http.MethodPost, path: "/auth/login",
			body: marchallObj(t, LoginRequest{Email: testEmail, Password: testPwd}), wantCode: http.StatusBadRequest,
		},
		{
			name: "login with the new password", method: http.MethodPost, path: "/auth/login",
			body: marchallObj(t, LoginRequest{Email: testEmail, Password: newPwd}), wantCode: http.StatusOK,
		},
	})
}

func Test_authApi_changeEmail(t *testing.T) {
	app := setup(t)
	signupAndVerify(t, app, testEmail)
	testutil.CreateAccount(t, app.accounts, "Bilal", "bilal@noor.test", testPwd, account.RoleStandard)
	sess := login(t, app, testEmail, testPwd)

	runHTTPTests(t, app, []httpTest{
		{
			name: "same email", method: http.MethodPost, path: "/auth/change-email", token: sess.AccessToken,
			body:     marchallObj(t, ChangeEmailRequest{NewEmail: testEmail}),
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"newEmail": "the new email must differ from the current one"}),
		},
		{
			name: "email taken", method: http.MethodPost, path: "/auth/change-email", token: sess.AccessToken,
			body:     marchallObj(t, ChangeEmailRequest{NewEmail: "bilal@noor.test"}),
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, httpErr{Error: account.ErrAlreadyRegistered.Error()}),
		},
		{
			name: "valid", method: http.MethodPost, path: "/auth/change-email", token: sess.AccessToken,
			body:     marchallObj(t, ChangeEmailRequest{NewEmail: "amina.new@noor.test"}),
			wantCode: http.StatusOK,
		},
	})
	code := lastCode(t, testEmail)

	runHTTPTests(t, app, []httpTest{
		{
			name: "wrong code", method: http.MethodPost, path: "/auth/confirm-email-change", token: sess.AccessToken,
			body:     marchallObj(t, ConfirmEmailChangeRequest{Code: otherCode(code)}),
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, httpErr{Error: account.ErrInvalidOrExpiredCode.Error()}),
		},
	})

	acc, err := app.accounts.GetAccount(context.Background(), account.GetFilter{Email: testEmail})
	require.NoError(t, err, "a failed confirmation leaves the email untouched")
	assert.Equal(t, "amina.new@noor.test", acc.PendingEmail)

	rec := post(t, app, "/auth/confirm-email-change", sess.AccessToken, ConfirmEmailChangeRequest{Code: code})
	checkCode(t, rec, http.StatusOK)
	var resp AccountResponse
	unmarshal(t, rec, &resp)
	assert.Equal(t, "amina.new@noor.test", resp.Account.Email)
	assert.Empty(t, resp.Account.PendingEmail)

	login(t, app, "amina.new@noor.test", testPwd)
}
