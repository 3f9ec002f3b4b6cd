package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"scanhub/internal/apperr"
	"scanhub/internal/config"
	"scanhub/internal/repository/memory"
	"scanhub/internal/security"
)

func newAuthService(t *testing.T) (*AuthService, *memory.Store, *mockMailer) {
	t.Helper()
	store := memory.New()
	mailer := &mockMailer{}
	svc := NewAuthService(store, mailer, config.SecurityConfig{
		JWTSecret: "test-secret",
		JWTTTL:    time.Hour,
		TokenTTL:  24 * time.Hour,
	}, nopLogger())
	return svc, store, mailer
}

func TestSignup_CreatesUnverifiedUserAndMailsToken(t *testing.T) {
	svc, store, mailer := newAuthService(t)
	ctx := context.Background()

	var token string
	mailer.On("SendVerification", mock.Anything, mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { token = args.String(2) }).
		Return(nil).Once()

	user, err := svc.Signup(ctx, SignupInput{Name: "Ada", Email: " Ada@Example.com ", Password: "password123"})
	require.NoError(t, err)
	assert.Equal(t, "ada@example.com", user.Email)
	assert.False(t, user.Verified)
	assert.NotEmpty(t, token)

	stored, err := store.Tokens().GetVerification(ctx, user.ID)
	require.NoError(t, err)
	assert.True(t, security.MatchOneTimeToken(token, stored.TokenHash))
	mailer.AssertExpectations(t)
}

func TestSignup_DuplicateEmail(t *testing.T) {
	svc, store, mailer := newAuthService(t)
	seedUser(t, store, "ada@example.com", "password123", true)

	_, err := svc.Signup(context.Background(), SignupInput{Name: "Ada", Email: "ada@example.com", Password: "password123"})
	appErr := requireKind(t, err, apperr.KindConflict)
	assert.Equal(t, "Email already in use", appErr.Message)
	mailer.AssertNotCalled(t, "SendVerification", mock.Anything, mock.Anything, mock.Anything)
}

func TestSignup_Validation(t *testing.T) {
	svc, _, _ := newAuthService(t)

	_, err := svc.Signup(context.Background(), SignupInput{Name: "A", Email: "nope", Password: "123"})
	appErr := requireKind(t, err, apperr.KindValidation)
	assert.Contains(t, appErr.Fields, "name")
	assert.Contains(t, appErr.Fields, "email")
	assert.Contains(t, appErr.Fields, "password")
}

func TestSignup_MailFailureIsSwallowed(t *testing.T) {
	svc, _, mailer := newAuthService(t)
	mailer.On("SendVerification", mock.Anything, mock.Anything, mock.Anything).Return(errors.New("smtp down"))

	user, err := svc.Signup(context.Background(), SignupInput{Name: "Ada", Email: "ada@example.com", Password: "password123"})
	require.NoError(t, err)
	assert.NotEmpty(t, user.ID)
}

func TestVerifyAccount_IsSingleUse(t *testing.T) {
	svc, _, mailer := newAuthService(t)
	ctx := context.Background()

	var token string
	mailer.On("SendVerification", mock.Anything, mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { token = args.String(2) }).
		Return(nil)

	user, err := svc.Signup(ctx, SignupInput{Name: "Ada", Email: "ada@example.com", Password: "password123"})
	require.NoError(t, err)

	_, err = svc.Login(ctx, LoginInput{Email: "ada@example.com", Password: "password123"})
	requireKind(t, err, apperr.KindUnauthorized)

	result, err := svc.VerifyAccount(ctx, VerifyAccountInput{ID: user.ID, Token: token})
	require.NoError(t, err)
	assert.True(t, result.User.Verified)
	assert.NotEmpty(t, result.Token)

	_, err = svc.VerifyAccount(ctx, VerifyAccountInput{ID: user.ID, Token: token})
	requireKind(t, err, apperr.KindUnauthorized)

	_, err = svc.Login(ctx, LoginInput{Email: "ada@example.com", Password: "password123"})
	assert.NoError(t, err)
}

func TestVerifyAccount_WrongToken(t *testing.T) {
	svc, _, mailer := newAuthService(t)
	mailer.On("SendVerification", mock.Anything, mock.Anything, mock.Anything).Return(nil)

	user, err := svc.Signup(context.Background(), SignupInput{Name: "Ada", Email: "ada@example.com", Password: "password123"})
	require.NoError(t, err)

	_, err = svc.VerifyAccount(context.Background(), VerifyAccountInput{ID: user.ID, Token: "guess"})
	requireKind(t, err, apperr.KindUnauthorized)

	_, err = svc.VerifyAccount(context.Background(), VerifyAccountInput{ID: "missing", Token: "guess"})
	requireKind(t, err, apperr.KindUnauthorized)
}

func TestLogin(t *testing.T) {
	svc, store, _ := newAuthService(t)
	ctx := context.Background()
	user := seedUser(t, store, "ada@example.com", "password123", true)

	result, err := svc.Login(ctx, LoginInput{Email: "ADA@example.com", Password: "password123"})
	require.NoError(t, err)
	assert.Equal(t, user.ID, result.User.ID)

	claims, err := security.ParseAccessToken(result.Token, "test-secret")
	require.NoError(t, err)
	assert.Equal(t, user.ID, claims.UserID)

	_, err = svc.Login(ctx, LoginInput{Email: "ada@example.com", Password: "wrong-password"})
	appErr := requireKind(t, err, apperr.KindUnauthorized)
	assert.Equal(t, "Invalid credentials", appErr.Message)

	_, err = svc.Login(ctx, LoginInput{Email: "nobody@example.com", Password: "password123"})
	appErr = requireKind(t, err, apperr.KindUnauthorized)
	assert.Equal(t, "Invalid credentials", appErr.Message)
}

func TestForgotPassword_UnknownEmail(t *testing.T) {
	svc, _, mailer := newAuthService(t)

	err := svc.ForgotPassword(context.Background(), ForgotPasswordInput{Email: "nobody@example.com"})
	appErr := requireKind(t, err, apperr.KindNotFound)
	assert.Equal(t, "No user found with this email", appErr.Message)
	mailer.AssertNotCalled(t, "SendPasswordReset", mock.Anything, mock.Anything, mock.Anything)
}

func TestResetPassword_Flow(t *testing.T) {
	svc, store, mailer := newAuthService(t)
	ctx := context.Background()
	user := seedUser(t, store, "ada@example.com", "password123", true)

	var token string
	mailer.On("SendPasswordReset", mock.Anything, mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { token = args.String(2) }).
		Return(nil)

	require.NoError(t, svc.ForgotPassword(ctx, ForgotPasswordInput{Email: "ada@example.com"}))
	require.NotEmpty(t, token)

	err := svc.ResetPassword(ctx, ResetPasswordInput{ID: user.ID, Token: "wrong", Password: "new-password"})
	requireKind(t, err, apperr.KindUnauthorized)

	require.NoError(t, svc.ResetPassword(ctx, ResetPasswordInput{ID: user.ID, Token: token, Password: "new-password"}))

	_, err = svc.Login(ctx, LoginInput{Email: "ada@example.com", Password: "new-password"})
	assert.NoError(t, err)
	_, err = svc.Login(ctx, LoginInput{Email: "ada@example.com", Password: "password123"})
	requireKind(t, err, apperr.KindUnauthorized)

	err = svc.ResetPassword(ctx, ResetPasswordInput{ID: user.ID, Token: token, Password: "another-password"})
	requireKind(t, err, apperr.KindUnauthorized)
}

func TestResetPassword_ExpiredToken(t *testing.T) {
	svc, store, mailer := newAuthService(t)
	ctx := context.Background()
	user := seedUser(t, store, "ada@example.com", "password123", true)

	var token string
	mailer.On("SendPasswordReset", mock.Anything, mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { token = args.String(2) }).
		Return(nil)
	require.NoError(t, svc.ForgotPassword(ctx, ForgotPasswordInput{Email: "ada@example.com"}))

	svc.now = func() time.Time { return time.Now().Add(25 * time.Hour) }
	err := svc.ResetPassword(ctx, ResetPasswordInput{ID: user.ID, Token: token, Password: "new-password"})
	requireKind(t, err, apperr.KindUnauthorized)
}

func TestUpdateAccount_KeepsEmail(t *testing.T) {
	svc, store, _ := newAuthService(t)
	user := seedUser(t, store, "ada@example.com", "password123", true)
	picture := "https://example.com/ada.png"

	updated, err := svc.UpdateAccount(context.Background(), user, UpdateAccountInput{Name: "Ada Lovelace", Picture: &picture})
	require.NoError(t, err)
	assert.Equal(t, user.ID, updated.ID)
	assert.Equal(t, "Ada Lovelace", updated.Name)
	require.NotNil(t, updated.Picture)
	assert.Equal(t, picture, *updated.Picture)
	assert.Equal(t, "ada@example.com", updated.Email)

	bad := "not a url"
	_, err = svc.UpdateAccount(context.Background(), user, UpdateAccountInput{Name: "Ada", Picture: &bad})
	requireKind(t, err, apperr.KindValidation)
}

func TestUpdateAccount_OmittedPictureIsKept(t *testing.T) {
	svc, store, _ := newAuthService(t)
	ctx := context.Background()
	user := seedUser(t, store, "ada@example.com", "password123", true)
	picture := "https://example.com/ada.png"

	user, err := svc.UpdateAccount(ctx, user, UpdateAccountInput{Name: "Ada", Picture: &picture})
	require.NoError(t, err)

	user, err = svc.UpdateAccount(ctx, user, UpdateAccountInput{Name: "Ada L"})
	require.NoError(t, err)
	assert.Equal(t, "Ada L", user.Name)
	require.NotNil(t, user.Picture)
	assert.Equal(t, picture, *user.Picture)

	user, err = svc.UpdateAccount(ctx, user, UpdateAccountInput{Name: "Ada L", ClearPicture: true})
	require.NoError(t, err)
	assert.Nil(t, user.Picture)
}

func TestUpdatePassword_RequiresCurrent(t *testing.T) {
	svc, store, _ := newAuthService(t)
	ctx := context.Background()
	user := seedUser(t, store, "ada@example.com", "password123", true)

	err := svc.UpdatePassword(ctx, user, UpdatePasswordInput{CurrentPassword: "wrong", Password: "new-password"})
	requireKind(t, err, apperr.KindUnauthorized)

	require.NoError(t, svc.UpdatePassword(ctx, user, UpdatePasswordInput{CurrentPassword: "password123", Password: "new-password"}))
	_, err = svc.Login(ctx, LoginInput{Email: "ada@example.com", Password: "new-password"})
	assert.NoError(t, err)
}

func TestAuthenticate(t *testing.T) {
	svc, store, _ := newAuthService(t)
	ctx := context.Background()
	user := seedUser(t, store, "ada@example.com", "password123", true)

	result, err := svc.Login(ctx, LoginInput{Email: "ada@example.com", Password: "password123"})
	require.NoError(t, err)

	got, err := svc.Authenticate(ctx, result.Token)
	require.NoError(t, err)
	assert.Equal(t, user.ID, got.ID)

	got, err = svc.VerifyToken(ctx, result.Token)
	require.NoError(t, err)
	assert.Equal(t, user.ID, got.ID)

	_, err = svc.Authenticate(ctx, "")
	requireKind(t, err, apperr.KindUnauthorized)
	_, err = svc.Authenticate(ctx, "garbage")
	requireKind(t, err, apperr.KindUnauthorized)

	// The verified flag is re-read from the store on every request.
	user.Verified = false
	require.NoError(t, store.Users().Update(ctx, user))
	_, err = svc.Authenticate(ctx, result.Token)
	requireKind(t, err, apperr.KindUnauthorized)
}
