package runtime

import (
	"context"
	"net/http"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/ChenBigdata421/jxt-saga/sdk/pkg/eventbus"
)

type Runtime interface {
	// SetEngine 使用的路由
	SetEngine(engine http.Handler)
	GetEngine() http.Handler

	GetRouter() []Router

	// SetLogger 使用zap
	SetLogger(logger *zap.Logger)
	GetLogger() *zap.Logger

	// SetDB 服务的关系库（SQL 事件日志、幂等表、商品目录），可为空
	SetDB(db *gorm.DB)
	GetDB() *gorm.DB

	// SetCrontab crontab
	SetCrontab(crontab *cron.Cron)
	GetCrontab() *cron.Cron

	// SetLocker 分布式锁，未设置时定时任务在本进程内直接执行
	SetLocker(locker *Locker)
	GetLocker() *Locker

	GetConfig(key string) interface{}
	SetConfig(key string, value interface{})

	// SetEventBus 设置事件总线
	SetEventBus(eventbus.EventBus)
	// GetEventBus 获取事件总线
	GetEventBus() eventbus.EventBus

	// OnStart 注册启动钩子，按注册顺序执行；OnStop 按相反顺序执行
	OnStart(name string, fn Hook)
	OnStop(name string, fn Hook)

	// AddJob 注册定时任务，lockKey 非空时持有分布式锁执行
	AddJob(spec, lockKey string, ttl time.Duration, job func(ctx context.Context) error) error

	Run(ctx context.Context) error
}
