package eventbus

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"

	"github.com/ChenBigdata421/jxt-saga/sdk/config"
	"github.com/ChenBigdata421/jxt-saga/sdk/pkg/errs"
)

// connectWithBackoff 有界指数退避重试 dial，次数用尽返回 errs.ErrBrokerConnection
func connectWithBackoff(ctx context.Context, cfg config.ConnectConfig, log *zap.Logger, transport string, dial func(ctx context.Context) error) error {
	maxAttempts := cfg.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	b := &backoff.ExponentialBackOff{
		InitialInterval:     cfg.InitialBackoff,
		RandomizationFactor: backoff.DefaultRandomizationFactor,
		Multiplier:          cfg.Multiplier,
		MaxInterval:         cfg.MaxBackoff,
	}
	if b.InitialInterval <= 0 {
		b.InitialInterval = backoff.DefaultInitialInterval
	}
	if b.Multiplier < 1 {
		b.Multiplier = backoff.DefaultMultiplier
	}
	if b.MaxInterval <= 0 {
		b.MaxInterval = backoff.DefaultMaxInterval
	}
	b.Reset()

	attempt := 0
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		attempt++
		return struct{}{}, dial(ctx)
	},
		backoff.WithBackOff(b),
		backoff.WithMaxTries(uint(maxAttempts)),
		backoff.WithNotify(func(err error, next time.Duration) {
			log.Warn("Broker connection attempt failed",
				zap.String("transport", transport),
				zap.Int("attempt", attempt),
				zap.Int("maxAttempts", maxAttempts),
				zap.Duration("retryIn", next),
				zap.Error(err))
		}),
	)
	if err != nil {
		return fmt.Errorf("%w: %s unreachable after %d attempts: %v", errs.ErrBrokerConnection, transport, attempt, err)
	}

	log.Info("Broker connected", zap.String("transport", transport), zap.Int("attempts", attempt))
	return nil
}
