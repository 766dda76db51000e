package logger

import (
	"context"
	"os"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type ContextKey string

const (
	TrafficKey ContextKey = "X-Correlation-ID"
	LoggerKey  ContextKey = "_jxt-saga-zap-logger-request"
)

var (
	Logger        = zap.NewNop()   //全局ZapLogger打印
	DefaultLogger = Logger.Sugar() //全局SugarLogger打印，用于简易打印
)

// Named 返回组件 logger，l 为空时取全局 Logger
func Named(l *zap.Logger, name string) *zap.Logger {
	if l == nil {
		l = Logger
	}
	return l.Named(name)
}

// SetRequestLogger gin 中间件：按 X-Correlation-ID（缺省生成）挂载请求级 logger
func SetRequestLogger(c *gin.Context) {
	requestID := c.GetHeader(string(TrafficKey))
	if requestID == "" {
		requestID = uuid.NewString()
		c.Request.Header.Set(string(TrafficKey), requestID)
	}
	c.Header(string(TrafficKey), requestID)
	ctx := context.WithValue(c.Request.Context(), TrafficKey, requestID)
	requestLogger := Logger.With(zap.String("correlationId", requestID))
	ctx = context.WithValue(ctx, LoggerKey, requestLogger)
	c.Request = c.Request.WithContext(ctx)
	c.Next()
}

// GetRequestLogger 从上下文获得logger
func GetRequestLogger(c *gin.Context) *zap.Logger {
	return FromContext(c.Request.Context())
}

// FromContext 取请求级 logger，没有则返回全局 Logger
func FromContext(ctx context.Context) *zap.Logger {
	if l, ok := ctx.Value(LoggerKey).(*zap.Logger); ok {
		return l
	}
	return Logger
}

// RequestID 取请求的关联ID
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(TrafficKey).(string)
	return id
}

func Info(args ...interface{}) {
	DefaultLogger.Info(args...)
}

func Infof(template string, args ...interface{}) {
	DefaultLogger.Infof(template, args...)
}

func Debug(args ...interface{}) {
	DefaultLogger.Debug(args...)
}

func Debugf(template string, args ...interface{}) {
	DefaultLogger.Debugf(template, args...)
}

func Warn(args ...interface{}) {
	DefaultLogger.Warn(args...)
}

func Warnf(template string, args ...interface{}) {
	DefaultLogger.Warnf(template, args...)
}

func Error(args ...interface{}) {
	DefaultLogger.Error(args...)
}

func Errorf(template string, args ...interface{}) {
	DefaultLogger.Errorf(template, args...)
}

func Fatal(args ...interface{}) {
	DefaultLogger.Fatal(args...)
	os.Exit(1)
}

func Fatalf(template string, args ...interface{}) {
	DefaultLogger.Fatalf(template, args...)
	os.Exit(1)
}
