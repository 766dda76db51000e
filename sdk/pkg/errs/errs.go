// Package errs 定义事件溯源与命令处理共享的错误类别
//
// 所有错误都通过 errors.Is 判别，调用方按类别决定重试、返回 4xx 或 5xx
package errs

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrConcurrencyConflict 追加时期望版本与流当前长度不一致
	ErrConcurrencyConflict = errors.New("concurrency conflict")
	// ErrAggregateNotFound 聚合不存在（零事件且无快照）
	ErrAggregateNotFound = errors.New("aggregate not found")
	// ErrInvariantViolation 领域方法前置条件不满足，未追加任何事件
	ErrInvariantViolation = errors.New("invariant violation")
	// ErrInsufficientStock 库存不足，属于 ErrInvariantViolation
	ErrInsufficientStock = fmt.Errorf("%w: insufficient stock", ErrInvariantViolation)
	// ErrValidation 命令字段校验失败
	ErrValidation = errors.New("validation failed")
	// ErrUnknownEventType 重放遇到无法识别的事件标签，视为数据损坏
	ErrUnknownEventType = errors.New("unknown event type")
	// ErrBrokerConnection 消息中间件连接重试耗尽
	ErrBrokerConnection = errors.New("broker connection error")
	// ErrNoHandlerRegistered 命令类型没有注册处理器
	ErrNoHandlerRegistered = errors.New("no handler registered")
	// ErrDuplicateCommand 幂等键已被处理
	ErrDuplicateCommand = errors.New("duplicate command")
)

// ConcurrencyConflictError 携带冲突流的版本信息
type ConcurrencyConflictError struct {
	StreamID string
	Expected int64
	Actual   int64
}

func (e *ConcurrencyConflictError) Error() string {
	return fmt.Sprintf("concurrency conflict on stream %s: expected version %d, actual %d",
		e.StreamID, e.Expected, e.Actual)
}

// Is 使 errors.Is(err, ErrConcurrencyConflict) 成立
func (e *ConcurrencyConflictError) Is(target error) bool {
	return target == ErrConcurrencyConflict
}

// Invariantf 构造 ErrInvariantViolation 类错误
func Invariantf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvariantViolation, fmt.Sprintf(format, args...))
}

// InsufficientStockf 构造 ErrInsufficientStock 类错误
func InsufficientStockf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInsufficientStock, fmt.Sprintf(format, args...))
}

// Validationf 构造 ErrValidation 类错误
func Validationf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// NotFoundf 构造 ErrAggregateNotFound 类错误
func NotFoundf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrAggregateNotFound, fmt.Sprintf(format, args...))
}

// UnknownEventTypef 构造 ErrUnknownEventType 类错误
func UnknownEventTypef(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrUnknownEventType, fmt.Sprintf(format, args...))
}

// StatusCode 把错误类别映射为 HTTP 状态码
// 校验与不变量错误为 4xx，基础设施与未知错误为 5xx
func StatusCode(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, ErrAggregateNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrConcurrencyConflict), errors.Is(err, ErrDuplicateCommand):
		return http.StatusConflict
	case errors.Is(err, ErrInvariantViolation):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// Retryable 报告调用方是否可以在重新加载后重试
func Retryable(err error) bool {
	return errors.Is(err, ErrConcurrencyConflict)
}
