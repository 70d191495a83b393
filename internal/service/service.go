package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"inventory_service/internal/auth"
	"inventory_service/internal/config"
	"inventory_service/internal/email"
	"inventory_service/internal/models"
	"inventory_service/internal/storage"

	"github.com/gofrs/uuid"
)

const minPasswordLen = 6

type Service interface {
	Register(ctx context.Context, name, email, password string) (models.User, string, error)
	Login(ctx context.Context, email, password string) (models.User, string, error)
	GetUser(ctx context.Context, userID uuid.UUID) (models.User, error)
	UpdateProfile(ctx context.Context, userID uuid.UUID, upd models.ProfileUpdate) (models.User, error)
	ChangePassword(ctx context.Context, userID uuid.UUID, oldPassword, newPassword string) error
	ForgotPassword(ctx context.Context, userEmail string) error
	ResetPassword(ctx context.Context, resetToken, newPassword string) error
}

type service struct {
	storage storage.Storage
	sender  email.Sender
	cfg     *config.Config
	log     *slog.Logger
}

func NewService(st storage.Storage, sender email.Sender, cfg *config.Config, lgr *slog.Logger) *service {
	return &service{
		storage: st,
		sender:  sender,
		cfg:     cfg,
		log:     lgr,
	}
}

func (s *service) Register(ctx context.Context, name, userEmail, password string) (models.User, string, error) {
	const op = "service.Register"

	if name == "" || userEmail == "" || password == "" {
		return models.User{}, "", ErrMissingFields
	}
	if len(password) < minPasswordLen {
		return models.User{}, "", ErrPasswordTooShort
	}

	if _, err := s.storage.GetUserByEmail(ctx, userEmail); err == nil {
		return models.User{}, "", ErrEmailTaken
	} else if !errors.Is(err, storage.ErrUserNotFound) {
		return models.User{}, "", fmt.Errorf("%s: %w", op, err)
	}

	passwordHash, err := auth.HashPassword(password)
	if err != nil {
		return models.User{}, "", fmt.Errorf("%s: %w", op, err)
	}

	user, err := s.storage.CreateUser(ctx, name, userEmail, passwordHash)
	if err != nil {
		// Someone registered the same email between the check and the
		// insert; the unique constraint is what actually decides.
		if errors.Is(err, storage.ErrEmailTaken) {
			return models.User{}, "", ErrEmailTaken
		}
		return models.User{}, "", fmt.Errorf("%s: %w", op, err)
	}

	token, err := auth.GenerateJWT(user.ID, []byte(s.cfg.Auth.JWTSecret), s.cfg.Auth.SessionTTL)
	if err != nil {
		return models.User{}, "", fmt.Errorf("%s: %w", op, err)
	}

	return user, token, nil
}

func (s *service) Login(ctx context.Context, userEmail, password string) (models.User, string, error) {
	const op = "service.Login"

	if userEmail == "" || password == "" {
		return models.User{}, "", ErrMissingCredentials
	}

	user, err := s.storage.GetUserByEmail(ctx, userEmail)
	if err != nil {
		if errors.Is(err, storage.ErrUserNotFound) {
			// Same failure as a wrong password; nothing leaks about
			// which factor was wrong.
			return models.User{}, "", ErrInvalidCredentials
		}
		return models.User{}, "", fmt.Errorf("%s: %w", op, err)
	}

	if ok := auth.CheckPasswordHash(user.PasswordHash, password); !ok {
		return models.User{}, "", ErrInvalidCredentials
	}

	token, err := auth.GenerateJWT(user.ID, []byte(s.cfg.Auth.JWTSecret), s.cfg.Auth.SessionTTL)
	if err != nil {
		return models.User{}, "", fmt.Errorf("%s: %w", op, err)
	}

	return user, token, nil
}

func (s *service) GetUser(ctx context.Context, userID uuid.UUID) (models.User, error) {
	const op = "service.GetUser"

	user, err := s.storage.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, storage.ErrUserNotFound) {
			return models.User{}, ErrUserNotFound
		}
		return models.User{}, fmt.Errorf("%s: %w", op, err)
	}

	return user, nil
}

func (s *service) UpdateProfile(ctx context.Context, userID uuid.UUID, upd models.ProfileUpdate) (models.User, error) {
	const op = "service.UpdateProfile"

	user, err := s.storage.UpdateProfile(ctx, userID, upd)
	if err != nil {
		if errors.Is(err, storage.ErrUserNotFound) {
			return models.User{}, ErrProfileNotFound
		}
		return models.User{}, fmt.Errorf("%s: %w", op, err)
	}

	return user, nil
}

func (s *service) ChangePassword(ctx context.Context, userID uuid.UUID, oldPassword, newPassword string) error {
	const op = "service.ChangePassword"

	user, err := s.storage.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, storage.ErrUserNotFound) {
			return ErrSignupRequired
		}
		return fmt.Errorf("%s: %w", op, err)
	}

	if oldPassword == "" || newPassword == "" {
		return ErrMissingPasswords
	}

	if ok := auth.CheckPasswordHash(user.PasswordHash, oldPassword); !ok {
		return ErrOldPasswordWrong
	}

	if len(newPassword) < minPasswordLen {
		return ErrPasswordTooShort
	}

	passwordHash, err := auth.HashPassword(newPassword)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if err := s.storage.UpdatePassword(ctx, userID, passwordHash); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

func (s *service) ForgotPassword(ctx context.Context, userEmail string) error {
	const op = "service.ForgotPassword"

	user, err := s.storage.GetUserByEmail(ctx, userEmail)
	if err != nil {
		if errors.Is(err, storage.ErrUserNotFound) {
			return ErrEmailUnknown
		}
		return fmt.Errorf("%s: %w", op, err)
	}

	resetToken, err := auth.IssueResetToken(ctx, s.storage, user.ID, s.cfg.Auth.ResetTTL)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	resetURL := fmt.Sprintf("%s/resetpassword/%s", s.cfg.Auth.FrontendURL, resetToken)

	htmlBody := fmt.Sprintf(`
	<h2>Hello %s</h2>
	<p>Please use the url below to reset your password.</p>
	<p>This reset link is valid for only 30 minutes.</p>

	<a href=%s clicktracking=off>%s</a>
	`, user.Name, resetURL, resetURL)

	subject := "Password Reset Request"

	if err := s.sender.Send(ctx, subject, htmlBody, user.Email, s.cfg.Email.Sender); err != nil {
		// The persisted token stays valid; the user can just retry.
		s.log.ErrorContext(ctx, "failed to send reset email", "error", err)
		return ErrEmailNotSent
	}

	return nil
}

func (s *service) ResetPassword(ctx context.Context, resetToken, newPassword string) error {
	const op = "service.ResetPassword"

	tokenHash := auth.HashResetToken(resetToken)

	token, err := s.storage.GetResetTokenByHash(ctx, tokenHash)
	if err != nil {
		if errors.Is(err, storage.ErrTokenNotFound) {
			return ErrResetTokenInvalid
		}
		return fmt.Errorf("%s: %w", op, err)
	}

	user, err := s.storage.GetUserByID(ctx, token.UserID)
	if err != nil {
		if errors.Is(err, storage.ErrUserNotFound) {
			return ErrProfileNotFound
		}
		return fmt.Errorf("%s: %w", op, err)
	}

	passwordHash, err := auth.HashPassword(newPassword)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if err := s.storage.UpdatePassword(ctx, user.ID, passwordHash); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	// Single use: the token dies the moment it is redeemed.
	if err := s.storage.DeleteResetToken(ctx, user.ID); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}
