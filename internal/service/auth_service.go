package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"scanhub/internal/apperr"
	"scanhub/internal/config"
	"scanhub/internal/ids"
	"scanhub/internal/models"
	"scanhub/internal/repository"
	"scanhub/internal/security"
	"scanhub/internal/validation"
)

const (
	msgInvalidCredentials = "Invalid credentials"
	msgInvalidToken       = "Invalid or expired token"
	msgNoUserForEmail     = "No user found with this email"
)

// Mailer delivers the links carrying one-time tokens.
type Mailer interface {
	SendVerification(ctx context.Context, user models.User, token string) error
	SendPasswordReset(ctx context.Context, user models.User, token string) error
}

type AuthService struct {
	store  repository.Store
	mailer Mailer
	cfg    config.SecurityConfig
	log    zerolog.Logger
	now    func() time.Time
}

func NewAuthService(store repository.Store, mailer Mailer, cfg config.SecurityConfig, log zerolog.Logger) *AuthService {
	return &AuthService{
		store:  store,
		mailer: mailer,
		cfg:    cfg,
		log:    log,
		now:    time.Now,
	}
}

type SignupInput struct {
	Name     string `json:"name" validate:"required,min=2,max=64"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8,max=128"`
}

type AuthResult struct {
	Token string
	User  models.User
}

// Signup creates an unverified user and mails the verification token.
func (s *AuthService) Signup(ctx context.Context, input SignupInput) (models.User, error) {
	input.Email = normalizeEmail(input.Email)
	input.Name = strings.TrimSpace(input.Name)
	if err := validation.Struct(input); err != nil {
		return models.User{}, err
	}

	passwordHash, err := security.HashPassword(input.Password)
	if err != nil {
		return models.User{}, apperr.Internal(err)
	}
	token, tokenHash, err := security.GenerateOneTimeToken(32)
	if err != nil {
		return models.User{}, apperr.Internal(err)
	}

	user := models.User{
		ID:           ids.New(),
		Name:         input.Name,
		Email:        input.Email,
		PasswordHash: passwordHash,
	}

	err = s.store.WithTx(ctx, func(tx repository.Store) error {
		if err := tx.Users().Create(ctx, user); err != nil {
			return err
		}
		return tx.Tokens().SaveVerification(ctx, models.Verification{
			ID:        ids.New(),
			TokenHash: tokenHash,
			UserID:    user.ID,
		})
	})
	if err != nil {
		return models.User{}, storeErr(err, "User not found", "Email already in use")
	}

	created, err := s.store.Users().GetByID(ctx, user.ID)
	if err != nil {
		return models.User{}, apperr.Internal(err)
	}

	if err := s.mailer.SendVerification(ctx, created, token); err != nil {
		s.log.Error().Err(err).Str("user_id", created.ID).Msg("send verification email failed")
	}
	return created, nil
}

type VerifyAccountInput struct {
	ID    string `json:"id" validate:"required"`
	Token string `json:"token" validate:"required"`
}

func (s *AuthService) VerifyAccount(ctx context.Context, input VerifyAccountInput) (AuthResult, error) {
	if err := validation.Struct(input); err != nil {
		return AuthResult{}, err
	}

	var user models.User
	err := s.store.WithTx(ctx, func(tx repository.Store) error {
		var err error
		user, err = tx.Users().GetByID(ctx, input.ID)
		if err != nil {
			return err
		}
		if user.Verified {
			return apperr.Unauthorized("Account already verified")
		}

		verification, err := tx.Tokens().GetVerification(ctx, user.ID)
		if err != nil {
			return err
		}
		if !s.tokenValid(input.Token, verification.TokenHash, verification.CreatedAt) {
			return apperr.Unauthorized(msgInvalidToken)
		}

		user.Verified = true
		if err := tx.Users().Update(ctx, user); err != nil {
			return err
		}
		return tx.Tokens().DeleteVerification(ctx, user.ID)
	})
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return AuthResult{}, apperr.Unauthorized(msgInvalidToken)
		}
		return AuthResult{}, apperr.From(err)
	}

	return s.issue(user)
}

type LoginInput struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

func (s *AuthService) Login(ctx context.Context, input LoginInput) (AuthResult, error) {
	input.Email = normalizeEmail(input.Email)
	if err := validation.Struct(input); err != nil {
		return AuthResult{}, err
	}

	user, err := s.store.Users().FindByEmail(ctx, input.Email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return AuthResult{}, apperr.Unauthorized(msgInvalidCredentials)
		}
		return AuthResult{}, apperr.Internal(err)
	}

	ok, err := security.VerifyPassword(input.Password, user.PasswordHash)
	if err != nil || !ok || !user.Verified {
		return AuthResult{}, apperr.Unauthorized(msgInvalidCredentials)
	}

	return s.issue(user)
}

type ForgotPasswordInput struct {
	Email string `json:"email" validate:"required,email"`
}

// ForgotPassword replaces any outstanding reset token and mails a new one.
func (s *AuthService) ForgotPassword(ctx context.Context, input ForgotPasswordInput) error {
	input.Email = normalizeEmail(input.Email)
	if err := validation.Struct(input); err != nil {
		return err
	}

	user, err := s.store.Users().FindByEmail(ctx, input.Email)
	if err != nil {
		return storeErr(err, msgNoUserForEmail, "")
	}

	token, tokenHash, err := security.GenerateOneTimeToken(32)
	if err != nil {
		return apperr.Internal(err)
	}
	err = s.store.Tokens().SavePasswordReset(ctx, models.PasswordReset{
		ID:        ids.New(),
		TokenHash: tokenHash,
		UserID:    user.ID,
	})
	if err != nil {
		return apperr.Internal(err)
	}

	if err := s.mailer.SendPasswordReset(ctx, user, token); err != nil {
		s.log.Error().Err(err).Str("user_id", user.ID).Msg("send password reset email failed")
	}
	return nil
}

type ResetPasswordInput struct {
	ID       string `json:"id" validate:"required"`
	Token    string `json:"token" validate:"required"`
	Password string `json:"password" validate:"required,min=8,max=128"`
}

func (s *AuthService) ResetPassword(ctx context.Context, input ResetPasswordInput) error {
	if err := validation.Struct(input); err != nil {
		return err
	}

	passwordHash, err := security.HashPassword(input.Password)
	if err != nil {
		return apperr.Internal(err)
	}

	err = s.store.WithTx(ctx, func(tx repository.Store) error {
		reset, err := tx.Tokens().GetPasswordReset(ctx, input.ID)
		if err != nil {
			return err
		}
		if !s.tokenValid(input.Token, reset.TokenHash, reset.CreatedAt) {
			return apperr.Unauthorized(msgInvalidToken)
		}

		user, err := tx.Users().GetByID(ctx, input.ID)
		if err != nil {
			return err
		}
		user.PasswordHash = passwordHash
		if err := tx.Users().Update(ctx, user); err != nil {
			return err
		}
		return tx.Tokens().DeletePasswordReset(ctx, user.ID)
	})
	if errors.Is(err, repository.ErrNotFound) {
		return apperr.Unauthorized(msgInvalidToken)
	}
	return apperr.From(err)
}

type UpdateAccountInput struct {
	Name    string  `json:"name" validate:"required,min=2,max=64"`
	Picture *string `json:"picture" validate:"omitempty,url"`
	// ClearPicture removes the picture. A nil Picture without it keeps the
	// current one.
	ClearPicture bool `json:"-"`
}

// UpdateAccount changes the profile fields. The email never changes here.
func (s *AuthService) UpdateAccount(ctx context.Context, user models.User, input UpdateAccountInput) (models.User, error) {
	input.Name = strings.TrimSpace(input.Name)
	if err := validation.Struct(input); err != nil {
		return models.User{}, err
	}

	user.Name = input.Name
	switch {
	case input.Picture != nil:
		user.Picture = input.Picture
	case input.ClearPicture:
		user.Picture = nil
	}
	if err := s.store.Users().Update(ctx, user); err != nil {
		return models.User{}, storeErr(err, "User not found", "")
	}

	updated, err := s.store.Users().GetByID(ctx, user.ID)
	if err != nil {
		return models.User{}, storeErr(err, "User not found", "")
	}
	return updated, nil
}

type UpdatePasswordInput struct {
	CurrentPassword string `json:"current_password" validate:"required"`
	Password        string `json:"password" validate:"required,min=8,max=128"`
}

func (s *AuthService) UpdatePassword(ctx context.Context, user models.User, input UpdatePasswordInput) error {
	if err := validation.Struct(input); err != nil {
		return err
	}

	ok, err := security.VerifyPassword(input.CurrentPassword, user.PasswordHash)
	if err != nil || !ok {
		return apperr.Unauthorized(msgInvalidCredentials)
	}

	passwordHash, err := security.HashPassword(input.Password)
	if err != nil {
		return apperr.Internal(err)
	}
	user.PasswordHash = passwordHash
	return storeErr(s.store.Users().Update(ctx, user), "User not found", "")
}

// Authenticate is the bearer guard: the token must verify and the user it
// names must still exist and be verified.
func (s *AuthService) Authenticate(ctx context.Context, token string) (models.User, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return models.User{}, apperr.Unauthorized("")
	}

	claims, err := security.ParseAccessToken(token, s.cfg.JWTSecret)
	if err != nil {
		return models.User{}, apperr.Unauthorized("")
	}

	user, err := s.store.Users().GetByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return models.User{}, apperr.Unauthorized("")
		}
		return models.User{}, apperr.Internal(err)
	}
	if !user.Verified {
		return models.User{}, apperr.Unauthorized("")
	}
	return user, nil
}

// VerifyToken reports the user a token belongs to.
func (s *AuthService) VerifyToken(ctx context.Context, token string) (models.User, error) {
	return s.Authenticate(ctx, token)
}

func (s *AuthService) issue(user models.User) (AuthResult, error) {
	token, err := security.GenerateAccessToken(s.cfg.JWTSecret, user.ID, user.Verified, s.cfg.JWTTTL)
	if err != nil {
		return AuthResult{}, apperr.Internal(err)
	}
	return AuthResult{Token: token, User: user}, nil
}

func (s *AuthService) tokenValid(token string, hash []byte, createdAt time.Time) bool {
	if s.cfg.TokenTTL > 0 && s.now().Sub(createdAt) > s.cfg.TokenTTL {
		return false
	}
	return security.MatchOneTimeToken(token, hash)
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
