package service

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
)

type expiredDeleter interface {
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// ExpirySweeper periodically deletes refresh tokens and sessions past their
// expiry. It is advisory only: every read path re-checks expiry itself, so a
// failed or delayed sweep never affects correctness.
type ExpirySweeper struct {
	tokens   expiredDeleter
	sessions expiredDeleter
	interval time.Duration
}

func NewExpirySweeper(tokens, sessions expiredDeleter, interval time.Duration) *ExpirySweeper {
	return &ExpirySweeper{
		tokens:   tokens,
		sessions: sessions,
		interval: interval,
	}
}

// Run blocks until ctx is cancelled, sweeping once per interval. Failures
// are logged and the loop continues.
func (s *ExpirySweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *ExpirySweeper) sweep(ctx context.Context) {
	now := time.Now()

	if deleted, err := s.tokens.DeleteExpired(ctx, now); err != nil {
		logrus.WithError(err).Error("expiry sweep: refresh token cleanup failed")
	} else if deleted > 0 {
		logrus.WithField("deleted", deleted).Debug("expiry sweep: removed expired refresh tokens")
	}

	if deleted, err := s.sessions.DeleteExpired(ctx, now); err != nil {
		logrus.WithError(err).Error("expiry sweep: session cleanup failed")
	} else if deleted > 0 {
		logrus.WithField("deleted", deleted).Debug("expiry sweep: removed expired sessions")
	}
}
