package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"time"

	"github.com/movielist/apiserver/internal/auth"
	"github.com/movielist/apiserver/internal/metrics"
	"github.com/movielist/apiserver/internal/store"
	"github.com/movielist/apiserver/types"
)

// RefreshTokenRepository defines persistence operations for refresh tokens.
type RefreshTokenRepository interface {
	Create(ctx context.Context, token types.RefreshToken) (types.RefreshToken, error)
	Rotate(ctx context.Context, oldHash string, next types.RefreshToken, now time.Time) (types.RefreshToken, types.User, error)
	Revoke(ctx context.Context, tokenHash string, now time.Time) error
	RevokeAllForUser(ctx context.Context, userID int, now time.Time) (int64, error)
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)
}

// TokenIssuer mints signed access tokens.
type TokenIssuer interface {
	Issue(p auth.Principal, ttl time.Duration) (string, error)
}

// PasswordHasher is the slow salted hash used for stored credentials.
type PasswordHasher interface {
	Hash(plain string) (string, error)
	Compare(hash, plain string) error
}

// AuthConfig carries token lifetimes and login policy.
type AuthConfig struct {
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	RevokeOnLogin bool
	Now           func() time.Time
	Logger        *slog.Logger
	Metrics       *metrics.Metrics
}

// AuthService implements register, login, refresh and logout.
type AuthService struct {
	users   UserRepository
	tokens  RefreshTokenRepository
	issuer  TokenIssuer
	hasher  PasswordHasher
	cfg     AuthConfig
	now     func() time.Time
	logger  *slog.Logger
	metrics *metrics.Metrics
}

func NewAuthService(users UserRepository, tokens RefreshTokenRepository, issuer TokenIssuer, hasher PasswordHasher, cfg AuthConfig) *AuthService {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &AuthService{
		users:   users,
		tokens:  tokens,
		issuer:  issuer,
		hasher:  hasher,
		cfg:     cfg,
		now:     now,
		logger:  logger,
		metrics: cfg.Metrics,
	}
}

// RegisterInput is the payload of a registration.
type RegisterInput struct {
	Name     string
	Email    string
	Username string
	Password string
	Role     types.Role
}

// Register creates the user and logs them in.
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (types.TokenPair, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Username = strings.TrimSpace(in.Username)
	in.Email = normalizeEmail(in.Email)
	if in.Name == "" || in.Username == "" || in.Email == "" || in.Password == "" {
		return types.TokenPair{}, fmt.Errorf("%w: missing required fields", ErrInvalidInput)
	}
	if _, err := mail.ParseAddress(in.Email); err != nil {
		return types.TokenPair{}, fmt.Errorf("%w: invalid email", ErrInvalidInput)
	}
	if in.Role == "" {
		in.Role = types.RoleUser
	}
	if !in.Role.Valid() {
		return types.TokenPair{}, fmt.Errorf("%w: unknown role %q", ErrInvalidInput, in.Role)
	}

	exists, err := s.users.ExistsByUsernameOrEmail(ctx, in.Username, in.Email)
	if err != nil {
		return types.TokenPair{}, fmt.Errorf("check identity: %w", err)
	}
	if exists {
		s.metrics.AuthEvent("register", "duplicate")
		return types.TokenPair{}, ErrDuplicateIdentity
	}

	hashed, err := s.hasher.Hash(in.Password)
	if err != nil {
		return types.TokenPair{}, fmt.Errorf("hash password: %w", err)
	}

	user, err := s.users.Create(ctx, types.User{
		Username:     in.Username,
		Email:        in.Email,
		Name:         in.Name,
		Role:         in.Role,
		PasswordHash: hashed,
	})
	if err != nil {
		if errors.Is(err, store.ErrConflict) {
			s.metrics.AuthEvent("register", "duplicate")
			return types.TokenPair{}, ErrDuplicateIdentity
		}
		return types.TokenPair{}, fmt.Errorf("create user: %w", err)
	}

	pair, err := s.issuePair(ctx, user)
	if err != nil {
		return types.TokenPair{}, err
	}
	s.metrics.AuthEvent("register", "success")
	return pair, nil
}

// Login verifies credentials and issues a fresh token pair. Earlier refresh
// tokens stay valid unless RevokeOnLogin is set.
func (s *AuthService) Login(ctx context.Context, username, password string) (types.TokenPair, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		s.metrics.AuthEvent("login", "invalid_credentials")
		return types.TokenPair{}, ErrInvalidCredentials
	}

	user, err := s.users.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			s.metrics.AuthEvent("login", "invalid_credentials")
			return types.TokenPair{}, ErrInvalidCredentials
		}
		return types.TokenPair{}, fmt.Errorf("load user: %w", err)
	}

	if err := s.hasher.Compare(user.PasswordHash, password); err != nil {
		if errors.Is(err, auth.ErrPasswordMismatch) {
			s.metrics.AuthEvent("login", "invalid_credentials")
			return types.TokenPair{}, ErrInvalidCredentials
		}
		return types.TokenPair{}, fmt.Errorf("compare password: %w", err)
	}

	if s.cfg.RevokeOnLogin {
		if _, err := s.tokens.RevokeAllForUser(ctx, user.ID, s.now()); err != nil {
			return types.TokenPair{}, fmt.Errorf("revoke sessions: %w", err)
		}
	}

	pair, err := s.issuePair(ctx, user)
	if err != nil {
		return types.TokenPair{}, err
	}
	s.metrics.AuthEvent("login", "success")
	return pair, nil
}

// Refresh redeems a refresh token exactly once and returns a rotated pair.
// The access token carries the role read during rotation.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (types.TokenPair, error) {
	refreshToken = strings.TrimSpace(refreshToken)
	if refreshToken == "" {
		s.metrics.AuthEvent("refresh", "not_found")
		return types.TokenPair{}, ErrTokenNotFound
	}

	nextToken, nextHash, err := auth.NewRefreshToken()
	if err != nil {
		return types.TokenPair{}, err
	}

	now := s.now()
	_, user, err := s.tokens.Rotate(ctx, auth.HashToken(refreshToken), types.RefreshToken{
		TokenHash: nextHash,
		ExpiresAt: now.Add(s.cfg.RefreshTTL),
		CreatedAt: now,
	}, now)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrNotFound):
			s.metrics.AuthEvent("refresh", "not_found")
			return types.TokenPair{}, ErrTokenNotFound
		case errors.Is(err, store.ErrRevoked):
			s.metrics.AuthEvent("refresh", "revoked")
			s.logger.WarnContext(ctx, "revoked refresh token presented")
			return types.TokenPair{}, ErrTokenRevoked
		case errors.Is(err, store.ErrExpired):
			s.metrics.AuthEvent("refresh", "expired")
			return types.TokenPair{}, ErrTokenExpired
		default:
			return types.TokenPair{}, fmt.Errorf("rotate refresh token: %w", err)
		}
	}

	access, err := s.issueAccess(user)
	if err != nil {
		return types.TokenPair{}, err
	}
	s.metrics.AuthEvent("refresh", "success")
	return types.TokenPair{AccessToken: access, RefreshToken: nextToken}, nil
}

// Logout revokes a single refresh token. Unknown tokens are ignored.
func (s *AuthService) Logout(ctx context.Context, refreshToken string) error {
	refreshToken = strings.TrimSpace(refreshToken)
	if refreshToken == "" {
		return fmt.Errorf("%w: refresh token is required", ErrInvalidInput)
	}
	if err := s.tokens.Revoke(ctx, auth.HashToken(refreshToken), s.now()); err != nil && !errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("revoke refresh token: %w", err)
	}
	s.metrics.AuthEvent("logout", "success")
	return nil
}

// LogoutAll revokes every refresh token of userID.
func (s *AuthService) LogoutAll(ctx context.Context, userID int) (int64, error) {
	n, err := s.tokens.RevokeAllForUser(ctx, userID, s.now())
	if err != nil {
		return 0, fmt.Errorf("revoke sessions: %w", err)
	}
	s.metrics.AuthEvent("logout_all", "success")
	return n, nil
}

// Me returns the account behind an authenticated principal.
func (s *AuthService) Me(ctx context.Context, userID int) (types.User, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return types.User{}, ErrNotFound
		}
		return types.User{}, fmt.Errorf("load user: %w", err)
	}
	return user, nil
}

func (s *AuthService) issuePair(ctx context.Context, user types.User) (types.TokenPair, error) {
	access, err := s.issueAccess(user)
	if err != nil {
		return types.TokenPair{}, err
	}

	refresh, hash, err := auth.NewRefreshToken()
	if err != nil {
		return types.TokenPair{}, err
	}
	now := s.now()
	if _, err := s.tokens.Create(ctx, types.RefreshToken{
		UserID:    user.ID,
		TokenHash: hash,
		ExpiresAt: now.Add(s.cfg.RefreshTTL),
		CreatedAt: now,
	}); err != nil {
		return types.TokenPair{}, fmt.Errorf("store refresh token: %w", err)
	}

	return types.TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}

func (s *AuthService) issueAccess(user types.User) (string, error) {
	token, err := s.issuer.Issue(auth.Principal{
		UserID:   user.ID,
		Username: user.Username,
		Role:     user.Role,
	}, s.cfg.AccessTTL)
	if err != nil {
		return "", fmt.Errorf("issue access token: %w", err)
	}
	return token, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
