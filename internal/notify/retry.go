package notify

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/evault/evault/pkg/logger"
	"github.com/evault/evault/pkg/metrics"
)

// RetryConfig bounds how a RetryingNotifier retries.
type RetryConfig struct {
	MaxRetries     uint64
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	// AttemptTimeout caps each individual attempt.
	AttemptTimeout time.Duration
}

func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:     2,
		InitialBackoff: 200 * time.Millisecond,
		MaxBackoff:     2 * time.Second,
		AttemptTimeout: 10 * time.Second,
	}
}

// RetryingNotifier retries a failing notifier with exponential backoff. The
// caller's context bounds the whole dispatch.
type RetryingNotifier struct {
	next Notifier
	cfg  RetryConfig
	log  *logger.Logger
}

func NewRetryingNotifier(next Notifier, cfg RetryConfig) *RetryingNotifier {
	def := DefaultRetryConfig()
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = def.InitialBackoff
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = def.MaxBackoff
	}
	if cfg.AttemptTimeout <= 0 {
		cfg.AttemptTimeout = def.AttemptTimeout
	}
	return &RetryingNotifier{next: next, cfg: cfg, log: logger.Named("notify")}
}

func (r *RetryingNotifier) SendVerificationCode(ctx context.Context, email, code string) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = r.cfg.InitialBackoff
	b.MaxInterval = r.cfg.MaxBackoff
	b.MaxElapsedTime = 0

	attempt := 0
	op := func() error {
		attempt++
		actx, cancel := context.WithTimeout(ctx, r.cfg.AttemptTimeout)
		defer cancel()
		err := r.next.SendVerificationCode(actx, email, code)
		if err != nil {
			r.log.Warnf("verification mail to %s failed (attempt %d): %v", email, attempt, err)
		}
		return err
	}
	err := backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(b, r.cfg.MaxRetries), ctx))
	if err != nil {
		metrics.NotificationsSent.WithLabelValues("failed").Inc()
		return err
	}
	metrics.NotificationsSent.WithLabelValues("sent").Inc()
	return nil
}
