package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/movielist/apiserver/internal/metrics"
)

// ExpiredDeleter removes records that expired before an instant.
type ExpiredDeleter interface {
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)
}

// Sweeper deletes expired refresh tokens and recovery challenges.
type Sweeper struct {
	tokens     ExpiredDeleter
	challenges ExpiredDeleter
	now        func() time.Time
	logger     *slog.Logger
	metrics    *metrics.Metrics
}

func NewSweeper(tokens, challenges ExpiredDeleter, logger *slog.Logger, m *metrics.Metrics) *Sweeper {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sweeper{tokens: tokens, challenges: challenges, now: time.Now, logger: logger, metrics: m}
}

// SweepResult reports how many records one pass removed.
type SweepResult struct {
	RefreshTokens int64
	Challenges    int64
}

// Sweep runs a single pass.
func (s *Sweeper) Sweep(ctx context.Context) (SweepResult, error) {
	now := s.now()
	var result SweepResult

	n, err := s.tokens.DeleteExpired(ctx, now)
	if err != nil {
		return result, fmt.Errorf("sweep refresh tokens: %w", err)
	}
	result.RefreshTokens = n
	s.metrics.Swept("refresh_token", n)

	n, err = s.challenges.DeleteExpired(ctx, now)
	if err != nil {
		return result, fmt.Errorf("sweep recovery challenges: %w", err)
	}
	result.Challenges = n
	s.metrics.Swept("recovery_challenge", n)

	return result, nil
}

// Run sweeps every interval until ctx is done.
func (s *Sweeper) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			result, err := s.Sweep(ctx)
			if err != nil {
				s.logger.ErrorContext(ctx, "sweep failed", "error", err)
				continue
			}
			s.logger.DebugContext(ctx, "sweep finished",
				"refresh_tokens", result.RefreshTokens,
				"challenges", result.Challenges,
			)
		}
	}
}
