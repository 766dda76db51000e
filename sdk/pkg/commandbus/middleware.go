package commandbus

import (
	"context"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/ChenBigdata421/jxt-saga/sdk/pkg/errs"
	"github.com/ChenBigdata421/jxt-saga/sdk/pkg/idempotency"
	"github.com/ChenBigdata421/jxt-saga/sdk/pkg/logger"
	"github.com/ChenBigdata421/jxt-saga/sdk/pkg/metrics"
)

// Validation 按 validate 标签校验命令字段
func Validation(v *validator.Validate) Middleware {
	if v == nil {
		v = validator.New()
	}
	return func(commandType string, next Handler) Handler {
		return func(ctx context.Context, cmd Command) error {
			if err := v.Struct(cmd); err != nil {
				return errs.Validationf("%s: %v", commandType, err)
			}
			return next(ctx, cmd)
		}
	}
}

// Logging 记录命令类型、关联ID与耗时
func Logging(l *zap.Logger) Middleware {
	if l == nil {
		l = logger.Logger
	}
	return func(commandType string, next Handler) Handler {
		return func(ctx context.Context, cmd Command) error {
			start := time.Now()
			err := next(ctx, cmd)

			fields := []zap.Field{
				zap.String("commandType", commandType),
				zap.String("commandId", cmd.Meta().CommandID),
				zap.String("correlationId", cmd.Meta().CorrelationID),
				zap.Duration("elapsed", time.Since(start)),
			}
			switch {
			case err == nil:
				l.Debug("command handled", fields...)
			case errors.Is(err, errs.ErrDuplicateCommand):
				l.Info("duplicate command skipped", fields...)
			case errors.Is(err, errs.ErrInvariantViolation), errors.Is(err, errs.ErrValidation):
				l.Info("command rejected", append(fields, zap.Error(err))...)
			default:
				l.Warn("command failed", append(fields, zap.Error(err))...)
			}
			return err
		}
	}
}

// Metrics 按命令类型与结果计数
func Metrics(c *metrics.Collector) Middleware {
	return func(commandType string, next Handler) Handler {
		return func(ctx context.Context, cmd Command) error {
			start := time.Now()
			err := next(ctx, cmd)

			outcome := metrics.OutcomeOK
			switch {
			case errors.Is(err, errs.ErrDuplicateCommand):
				outcome = metrics.OutcomeDuplicate
			case err != nil:
				outcome = metrics.OutcomeError
			}
			c.CommandHandled(commandType, outcome, time.Since(start))
			return err
		}
	}
}

// Idempotency 以 (关联ID, 命令类型, 区分符) 占用幂等键
//
// 已占用时返回 errs.ErrDuplicateCommand（Execute 吞掉）；处理失败时释放，允许重投递重试。
func Idempotency(store idempotency.Store, ttl time.Duration, l *zap.Logger) Middleware {
	if l == nil {
		l = logger.Logger
	}
	return func(commandType string, next Handler) Handler {
		return func(ctx context.Context, cmd Command) error {
			correlationID := cmd.Meta().CorrelationID
			if correlationID == "" {
				return next(ctx, cmd)
			}
			var discriminator string
			if k, ok := cmd.(Keyed); ok {
				discriminator = k.IdempotencyKey()
			}
			key := idempotency.Key(correlationID, commandType, discriminator)

			claimed, err := store.Claim(ctx, key, ttl)
			if err != nil {
				return err
			}
			if !claimed {
				return errs.ErrDuplicateCommand
			}

			if err := next(ctx, cmd); err != nil {
				if rerr := store.Release(ctx, key); rerr != nil {
					l.Warn("failed to release idempotency key", zap.String("key", key), zap.Error(rerr))
				}
				return err
			}
			return nil
		}
	}
}
