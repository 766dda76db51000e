package aggregate

import (
	"go.uber.org/zap"

	"github.com/ChenBigdata421/jxt-saga/sdk/pkg/logger"
)

// DefaultSnapshotInterval 默认每 10 个已提交事件做一次快照
const DefaultSnapshotInterval = 10

// Option 仓储选项
type Option func(*options)

type options struct {
	snapshotInterval int
	logger           *zap.Logger
}

// WithSnapshotInterval 快照间隔，小于 1 时使用默认值
func WithSnapshotInterval(n int) Option {
	return func(o *options) {
		o.snapshotInterval = n
	}
}

// WithLogger 指定 logger
func WithLogger(l *zap.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

func buildOptions(opts []Option) options {
	o := options{snapshotInterval: DefaultSnapshotInterval, logger: logger.Logger}
	for _, opt := range opts {
		opt(&o)
	}
	if o.snapshotInterval < 1 {
		o.snapshotInterval = DefaultSnapshotInterval
	}
	if o.logger == nil {
		o.logger = zap.NewNop()
	}
	return o
}
