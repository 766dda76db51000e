package commandbus

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/ChenBigdata421/jxt-saga/sdk/pkg/errs"
	"github.com/ChenBigdata421/jxt-saga/sdk/pkg/logger"
)

// Handler 命令处理器
type Handler func(ctx context.Context, cmd Command) error

// Middleware 包装处理器，先注册的在外层
type Middleware func(commandType string, next Handler) Handler

// Bus 命令总线：每种命令一个处理器，不排队不重试
type Bus struct {
	mu          sync.RWMutex
	handlers    map[string]Handler
	middlewares []Middleware
	logger      *zap.Logger
}

// New 创建命令总线
func New(l *zap.Logger) *Bus {
	if l == nil {
		l = logger.Logger
	}
	return &Bus{
		handlers: make(map[string]Handler),
		logger:   l.Named("commandbus"),
	}
}

// Use 追加中间件
func (b *Bus) Use(mw ...Middleware) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.middlewares = append(b.middlewares, mw...)
}

// Register 注册处理器，重复注册时替换并告警
func (b *Bus) Register(commandType string, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, exists := b.handlers[commandType]; exists {
		b.logger.Warn("replacing command handler", zap.String("commandType", commandType))
	}
	b.handlers[commandType] = h
}

// Handle 注册强类型处理器
func Handle[C Command](b *Bus, commandType string, fn func(ctx context.Context, cmd C) error) {
	b.Register(commandType, func(ctx context.Context, cmd Command) error {
		c, ok := cmd.(C)
		if !ok {
			return errs.Validationf("command %s has unexpected type %T", commandType, cmd)
		}
		return fn(ctx, c)
	})
}

// Execute 分发命令；重复命令被幂等中间件拦截时返回 nil
func (b *Bus) Execute(ctx context.Context, cmd Command) error {
	if cmd == nil {
		return errs.Validationf("command is nil")
	}
	commandType := cmd.CommandType()

	b.mu.RLock()
	h, ok := b.handlers[commandType]
	mws := b.middlewares
	b.mu.RUnlock()

	if !ok {
		return fmt.Errorf("%w: %s", errs.ErrNoHandlerRegistered, commandType)
	}
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](commandType, h)
	}

	err := h(ctx, cmd)
	if errors.Is(err, errs.ErrDuplicateCommand) {
		return nil
	}
	return err
}

// Registered 已注册的命令类型数量
func (b *Bus) Registered() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.handlers)
}
