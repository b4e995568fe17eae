package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sakif/secret-santa/internal/apperror"
	"github.com/sakif/secret-santa/internal/auth"
	"github.com/sakif/secret-santa/internal/model"
	"github.com/sakif/secret-santa/internal/repository"
)

// PasswordHashKey is the settings key holding the current admin password hash.
const PasswordHashKey = "admin_password_hash"

// AuthService decides who may act as an organiser.
//
//	AuthHandler (HTTP) → AuthService → SettingsRepository (password hash)
//	                                 → UserRepository     (GitHub organisers)
//	                   ↘ TokenService (JWT)
//
// The admin password hash lives in the settings table once it has been
// changed; until then the hash from configuration is used.
type AuthService struct {
	users     repository.UserRepository
	settings  repository.SettingsRepository
	tokens    *auth.TokenService
	passwords *auth.PasswordService
	logger    *slog.Logger

	seedHash string
	admins   map[string]bool // lowercased GitHub logins
}

// AuthOptions carries the configured credentials.
type AuthOptions struct {
	PasswordHash string   // bcrypt hash used until the password is changed
	GitHubAdmins []string // GitHub logins allowed to sign in
}

func NewAuthService(
	users repository.UserRepository,
	settings repository.SettingsRepository,
	tokens *auth.TokenService,
	passwords *auth.PasswordService,
	opts AuthOptions,
	logger *slog.Logger,
) *AuthService {
	admins := make(map[string]bool, len(opts.GitHubAdmins))
	for _, login := range opts.GitHubAdmins {
		if login = strings.ToLower(strings.TrimSpace(login)); login != "" {
			admins[login] = true
		}
	}
	return &AuthService{
		users:     users,
		settings:  settings,
		tokens:    tokens,
		passwords: passwords,
		logger:    logger,
		seedHash:  opts.PasswordHash,
		admins:    admins,
	}
}

// AuthResult bundles the session token with who it was issued to, so the
// handler can set the cookie and respond in one step.
type AuthResult struct {
	AdminID string
	User    *model.User // nil for password sessions
	Token   string
}

// Admin describes the signed-in organiser for /api/admin/me.
type Admin struct {
	ID     string      `json:"id"`
	Method string      `json:"method"` // "password" or "github"
	User   *model.User `json:"user,omitempty"`
}

// PasswordLogin opens a session for whoever knows the admin password.
func (s *AuthService) PasswordLogin(ctx context.Context, password string) (*AuthResult, error) {
	hash, err := s.passwordHash(ctx)
	if err != nil {
		return nil, err
	}
	if hash == "" {
		return nil, apperror.Unauthorized("password login is not configured")
	}

	if err := s.passwords.Verify(hash, password); err != nil {
		if errors.Is(err, auth.ErrInvalidPassword) {
			s.logger.Warn("admin login with wrong password")
			return nil, apperror.Unauthorized("wrong password")
		}
		return nil, fmt.Errorf("service/auth: verifying password: %w", err)
	}

	token, err := s.tokens.Generate(auth.PasswordAdminID)
	if err != nil {
		return nil, fmt.Errorf("service/auth: generating token: %w", err)
	}
	s.logger.Info("admin signed in", slog.String("method", "password"))
	return &AuthResult{AdminID: auth.PasswordAdminID, Token: token}, nil
}

// ChangePassword replaces the admin password. The current password must be
// given even when the caller already holds a session.
func (s *AuthService) ChangePassword(ctx context.Context, current, next string) error {
	if len(next) < auth.MinPasswordLength {
		return apperror.ValidationFailed("newPassword",
			fmt.Sprintf("new password must be at least %d characters", auth.MinPasswordLength))
	}

	hash, err := s.passwordHash(ctx)
	if err != nil {
		return err
	}
	if hash != "" {
		if err := s.passwords.Verify(hash, current); err != nil {
			if errors.Is(err, auth.ErrInvalidPassword) {
				return apperror.Forbidden("current password is wrong")
			}
			return fmt.Errorf("service/auth: verifying password: %w", err)
		}
	}

	newHash, err := s.passwords.Hash(next)
	if err != nil {
		return apperror.ValidationFailed("newPassword", err.Error())
	}
	if err := s.settings.PutSetting(ctx, PasswordHashKey, newHash); err != nil {
		return fmt.Errorf("service/auth: storing password hash: %w", err)
	}
	s.logger.Info("admin password changed")
	return nil
}

// LoginOrRegisterGitHub handles the GitHub OAuth callback. Only logins on the
// admin allowlist get a session; their profile is upserted so /me can show it.
func (s *AuthService) LoginOrRegisterGitHub(ctx context.Context, ghUser *auth.GitHubUser) (*AuthResult, error) {
	if ghUser == nil {
		return nil, fmt.Errorf("service/auth: GitHub user must not be nil")
	}
	if !s.admins[strings.ToLower(ghUser.Login)] {
		s.logger.Warn("GitHub login not on admin list", slog.String("login", ghUser.Login))
		return nil, apperror.Forbidden(fmt.Sprintf("%s is not an organiser", ghUser.Login))
	}

	user := &model.User{
		GitHubID:  ghUser.ID,
		Login:     ghUser.Login,
		Email:     ghUser.Email,
		AvatarURL: ghUser.AvatarURL,
	}
	if err := s.users.Upsert(ctx, user); err != nil {
		return nil, fmt.Errorf("service/auth: upserting user (githubID=%d): %w", ghUser.ID, err)
	}

	token, err := s.tokens.Generate(user.ID)
	if err != nil {
		return nil, fmt.Errorf("service/auth: generating token for user %s: %w", user.ID, err)
	}

	s.logger.Info("admin signed in",
		slog.String("method", "github"),
		slog.String("userID", user.ID),
		slog.String("login", user.Login),
	)
	return &AuthResult{AdminID: user.ID, User: user, Token: token}, nil
}

// Me resolves the admin ID from a session token.
func (s *AuthService) Me(ctx context.Context, adminID string) (*Admin, error) {
	if adminID == "" {
		return nil, apperror.Unauthorized("not signed in")
	}
	if adminID == auth.PasswordAdminID {
		return &Admin{ID: adminID, Method: "password"}, nil
	}

	user, err := s.users.GetUserByID(ctx, adminID)
	if err != nil {
		return nil, fmt.Errorf("service/auth: fetching user %s: %w", adminID, err)
	}
	return &Admin{ID: adminID, Method: "github", User: user}, nil
}

// GitHubEnabled reports whether any GitHub login may sign in.
func (s *AuthService) GitHubEnabled() bool {
	return len(s.admins) > 0
}

func (s *AuthService) passwordHash(ctx context.Context) (string, error) {
	hash, err := s.settings.GetSetting(ctx, PasswordHashKey)
	if errors.Is(err, apperror.ErrNotFound) {
		return s.seedHash, nil
	}
	if err != nil {
		return "", fmt.Errorf("service/auth: reading password hash: %w", err)
	}
	return hash, nil
}
