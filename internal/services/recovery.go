package services

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"time"

	"github.com/movielist/apiserver/internal/metrics"
	"github.com/movielist/apiserver/internal/store"
	"github.com/movielist/apiserver/types"
)

const (
	recoverySubject = "OTP for Forgot Password request"
	recoveryBody    = "This is the OTP for your Forgot Password request: %06d"

	codeMin = 100000
	codeMax = 999999
)

// RecoveryRepository defines persistence operations for recovery challenges.
type RecoveryRepository interface {
	Replace(ctx context.Context, challenge types.RecoveryChallenge) (types.RecoveryChallenge, error)
	FindByCode(ctx context.Context, userID int, codeHash string) (types.RecoveryChallenge, error)
	MarkVerified(ctx context.Context, id int64, now time.Time) error
	Delete(ctx context.Context, id int64) error
	ResetPassword(ctx context.Context, userID int, passwordHash string, now time.Time) (int64, error)
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)
}

// Mailer delivers a plain-text message.
type Mailer interface {
	Send(ctx context.Context, msg types.Mail) error
}

// AttemptLimiter counts calls per key in a fixed window.
type AttemptLimiter interface {
	Allow(ctx context.Context, key string, limit int) (bool, error)
}

// RecoveryConfig carries the challenge window and attempt limits.
type RecoveryConfig struct {
	OTPTTL          time.Duration
	MaxVerifyTries  int
	MaxRequestTries int
	Now             func() time.Time
	Logger          *slog.Logger
	Metrics         *metrics.Metrics
}

// RecoveryService implements the email one-time-passcode password reset.
type RecoveryService struct {
	users      UserRepository
	challenges RecoveryRepository
	hasher     PasswordHasher
	mailer     Mailer
	limiter    AttemptLimiter
	cfg        RecoveryConfig
	now        func() time.Time
	logger     *slog.Logger
	metrics    *metrics.Metrics

	// generateCode is swapped in tests.
	generateCode func() (int, error)
}

// NewRecoveryService builds the service. limiter may be nil, which disables
// attempt limiting.
func NewRecoveryService(
	users UserRepository,
	challenges RecoveryRepository,
	hasher PasswordHasher,
	mailer Mailer,
	limiter AttemptLimiter,
	cfg RecoveryConfig,
) *RecoveryService {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.OTPTTL <= 0 {
		cfg.OTPTTL = 20 * time.Minute
	}
	return &RecoveryService{
		users:        users,
		challenges:   challenges,
		hasher:       hasher,
		mailer:       mailer,
		limiter:      limiter,
		cfg:          cfg,
		now:          now,
		logger:       logger,
		metrics:      cfg.Metrics,
		generateCode: randomCode,
	}
}

// RequestRecovery issues a fresh code for email and mails it. The challenge
// is persisted before sending, so a failed send leaves it in place.
func (s *RecoveryService) RequestRecovery(ctx context.Context, email string) error {
	email = normalizeEmail(email)
	if email == "" {
		return fmt.Errorf("%w: email is required", ErrInvalidInput)
	}
	if err := s.allow(ctx, "request", email, s.cfg.MaxRequestTries); err != nil {
		return err
	}

	user, err := s.lookup(ctx, email)
	if err != nil {
		s.metrics.AuthEvent("recovery_request", "unknown_email")
		return err
	}

	code, err := s.generateCode()
	if err != nil {
		return err
	}

	now := s.now()
	if _, err := s.challenges.Replace(ctx, types.RecoveryChallenge{
		UserID:    user.ID,
		CodeHash:  hashCode(user.ID, code),
		ExpiresAt: now.Add(s.cfg.OTPTTL),
		CreatedAt: now,
	}); err != nil {
		return fmt.Errorf("store challenge: %w", err)
	}

	if err := s.mailer.Send(ctx, types.Mail{
		To:      user.Email,
		Subject: recoverySubject,
		Body:    fmt.Sprintf(recoveryBody, code),
	}); err != nil {
		s.metrics.AuthEvent("recovery_request", "mail_failed")
		return fmt.Errorf("send recovery mail: %w", err)
	}

	s.logger.InfoContext(ctx, "recovery code issued", "user_id", user.ID)
	s.metrics.AuthEvent("recovery_request", "success")
	return nil
}

// VerifyChallenge checks code against the user's outstanding challenge and
// marks it verified. An expired challenge is deleted.
func (s *RecoveryService) VerifyChallenge(ctx context.Context, email, code string) error {
	email = normalizeEmail(email)
	if err := s.allow(ctx, "verify", email, s.cfg.MaxVerifyTries); err != nil {
		return err
	}

	user, err := s.lookup(ctx, email)
	if err != nil {
		s.metrics.AuthEvent("recovery_verify", "unknown_email")
		return err
	}

	n, ok := parseCode(code)
	if !ok {
		s.metrics.AuthEvent("recovery_verify", "invalid")
		return ErrInvalidChallenge
	}

	challenge, err := s.challenges.FindByCode(ctx, user.ID, hashCode(user.ID, n))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			s.metrics.AuthEvent("recovery_verify", "invalid")
			return ErrInvalidChallenge
		}
		return fmt.Errorf("load challenge: %w", err)
	}

	now := s.now()
	if challenge.Expired(now) {
		if err := s.challenges.Delete(ctx, challenge.ID); err != nil {
			return fmt.Errorf("delete challenge: %w", err)
		}
		s.metrics.AuthEvent("recovery_verify", "expired")
		return ErrChallengeExpired
	}

	if err := s.challenges.MarkVerified(ctx, challenge.ID, now); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrInvalidChallenge
		}
		return fmt.Errorf("mark challenge verified: %w", err)
	}
	s.metrics.AuthEvent("recovery_verify", "success")
	return nil
}

// ChangePassword sets a new password once the email holds a verified,
// unexpired challenge. Consuming the challenge, writing the password and
// revoking every refresh session of the user happen atomically, so a failed
// write leaves the verified challenge usable for a retry.
func (s *RecoveryService) ChangePassword(ctx context.Context, email, password, repeat string) error {
	if password != repeat {
		s.metrics.AuthEvent("recovery_change", "mismatch")
		return ErrPasswordMismatch
	}
	if password == "" {
		return fmt.Errorf("%w: password is required", ErrInvalidInput)
	}

	email = normalizeEmail(email)
	user, err := s.lookup(ctx, email)
	if err != nil {
		return err
	}

	hashed, err := s.hasher.Hash(password)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	revoked, err := s.challenges.ResetPassword(ctx, user.ID, hashed, s.now())
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			s.metrics.AuthEvent("recovery_change", "not_verified")
			return ErrChallengeNotVerified
		}
		return fmt.Errorf("reset password: %w", err)
	}

	s.logger.InfoContext(ctx, "password changed via recovery", "user_id", user.ID, "revoked_sessions", revoked)
	s.metrics.AuthEvent("recovery_change", "success")
	return nil
}

func (s *RecoveryService) lookup(ctx context.Context, email string) (types.User, error) {
	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return types.User{}, ErrUnknownEmail
		}
		return types.User{}, fmt.Errorf("load user: %w", err)
	}
	return user, nil
}

func (s *RecoveryService) allow(ctx context.Context, action, email string, limit int) error {
	if s.limiter == nil || limit <= 0 {
		return nil
	}
	ok, err := s.limiter.Allow(ctx, "recovery:"+action+":"+email, limit)
	if err != nil {
		// Fail open when the limiter backend is unreachable.
		s.logger.WarnContext(ctx, "attempt limiter unavailable", "error", err)
		return nil
	}
	if !ok {
		s.metrics.AuthEvent("recovery_"+action, "throttled")
		return ErrTooManyAttempts
	}
	return nil
}

func randomCode() (int, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(codeMax-codeMin+1))
	if err != nil {
		return 0, fmt.Errorf("failed to generate recovery code: %w", err)
	}
	return codeMin + int(n.Int64()), nil
}

func parseCode(code string) (int, bool) {
	code = strings.TrimSpace(code)
	if len(code) != 6 {
		return 0, false
	}
	n := 0
	for _, c := range code {
		if c < '0' || c > '9' {
			return 0, false
		}
		n = n*10 + int(c-'0')
	}
	if n < codeMin {
		return 0, false
	}
	return n, true
}

func hashCode(userID, code int) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%d:%06d", userID, code)))
	return hex.EncodeToString(sum[:])
}
