package logger

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

const slowSQLThreshold = 200 * time.Millisecond

type GormLogger struct {
	ZapLogger *zap.Logger
	LogLevel  gormlogger.LogLevel
}

// NewGormLogger 创建 gorm 日志适配器
func NewGormLogger(baseLogger *zap.Logger, gormLogLevel int) gormlogger.Interface {
	return &GormLogger{
		ZapLogger: Named(baseLogger, "gorm"),
		LogLevel:  gormlogger.LogLevel(gormLogLevel),
	}
}

func (l *GormLogger) LogMode(level gormlogger.LogLevel) gormlogger.Interface {
	return &GormLogger{ZapLogger: l.ZapLogger, LogLevel: level}
}

func (l *GormLogger) Info(ctx context.Context, msg string, data ...interface{}) {
	if l.LogLevel >= gormlogger.Info {
		l.ZapLogger.Sugar().Infof(msg, data...)
	}
}

func (l *GormLogger) Warn(ctx context.Context, msg string, data ...interface{}) {
	if l.LogLevel >= gormlogger.Warn {
		l.ZapLogger.Sugar().Warnf(msg, data...)
	}
}

func (l *GormLogger) Error(ctx context.Context, msg string, data ...interface{}) {
	if l.LogLevel >= gormlogger.Error {
		l.ZapLogger.Sugar().Errorf(msg, data...)
	}
}

// Trace 记录 SQL；唯一键冲突由事件日志转换为并发冲突，这里按 warn 记录
func (l *GormLogger) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	if l.LogLevel <= gormlogger.Silent {
		return
	}

	elapsed := time.Since(begin)
	sql, rows := fc()
	fields := []zap.Field{zap.Duration("elapsed", elapsed), zap.Int64("rows", rows), zap.String("sql", sql)}

	switch {
	case err != nil && errors.Is(err, gorm.ErrRecordNotFound):
		if l.LogLevel >= gormlogger.Info {
			l.ZapLogger.Debug("SQL 无记录", fields...)
		}
	case err != nil && errors.Is(err, gorm.ErrDuplicatedKey):
		if l.LogLevel >= gormlogger.Warn {
			l.ZapLogger.Warn("SQL 唯一键冲突", fields...)
		}
	case err != nil && l.LogLevel >= gormlogger.Error:
		l.ZapLogger.Error("SQL错误", append(fields, zap.Error(err))...)
	case elapsed > slowSQLThreshold && l.LogLevel >= gormlogger.Warn:
		l.ZapLogger.Warn("慢SQL", fields...)
	case l.LogLevel >= gormlogger.Info:
		l.ZapLogger.Info("SQL", fields...)
	}
}
