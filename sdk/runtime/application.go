// Package runtime 服务进程的运行时容器：HTTP 引擎、定时任务、事件总线与启停钩子
package runtime

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/ChenBigdata421/jxt-saga/sdk/pkg/eventbus"
	"github.com/ChenBigdata421/jxt-saga/sdk/pkg/logger"
)

// Hook 启停钩子
type Hook func(ctx context.Context) error

type namedHook struct {
	name string
	fn   Hook
}

const defaultShutdownTimeout = 10 * time.Second

type Application struct {
	engine          http.Handler           //路由引擎
	addr            string                 //监听地址
	db              *gorm.DB               //关系库
	crontab         *cron.Cron             //crontab
	locker          *Locker                //分布式锁
	eventBus        eventbus.EventBus      //事件总线
	mux             sync.RWMutex           //互斥锁
	routers         []Router               //路由
	configs         map[string]interface{} // 系统参数
	starters        []namedHook
	stoppers        []namedHook
	shutdownTimeout time.Duration
}

type Router struct {
	HttpMethod, RelativePath, Handler string
}

type Routers struct {
	List []Router
}

// NewConfig 默认值
func NewConfig() *Application {
	return &Application{
		crontab:         cron.New(),
		routers:         make([]Router, 0),
		configs:         make(map[string]interface{}),
		shutdownTimeout: defaultShutdownTimeout,
	}
}

// SetEngine 设置路由引擎
func (e *Application) SetEngine(engine http.Handler) {
	e.engine = engine
}

// GetEngine 获取路由引擎
func (e *Application) GetEngine() http.Handler {
	return e.engine
}

// SetAddr 设置 HTTP 监听地址，为空不启动 HTTP 服务
func (e *Application) SetAddr(addr string) {
	e.addr = addr
}

// SetShutdownTimeout HTTP 优雅关闭的超时
func (e *Application) SetShutdownTimeout(d time.Duration) {
	if d > 0 {
		e.shutdownTimeout = d
	}
}

// GetRouter 获取路由表
func (e *Application) GetRouter() []Router {
	return e.setRouter()
}

// setRouter 设置路由表
func (e *Application) setRouter() []Router {
	e.routers = e.routers[:0]
	if engine, ok := e.engine.(*gin.Engine); ok {
		for _, router := range engine.Routes() {
			e.routers = append(e.routers, Router{RelativePath: router.Path, Handler: router.Handler, HttpMethod: router.Method})
		}
	}
	return e.routers
}

// SetLogger 设置日志组件
func (e *Application) SetLogger(l *zap.Logger) {
	logger.Logger = l
}

// GetLogger 获取日志组件
func (e *Application) GetLogger() *zap.Logger {
	return logger.Logger
}

// SetDB 设置关系库
func (e *Application) SetDB(db *gorm.DB) {
	e.db = db
}

// GetDB 获取关系库
func (e *Application) GetDB() *gorm.DB {
	return e.db
}

// SetCrontab 设置crontab
func (e *Application) SetCrontab(crontab *cron.Cron) {
	e.crontab = crontab
}

// GetCrontab 获取crontab
func (e *Application) GetCrontab() *cron.Cron {
	return e.crontab
}

// SetLocker 设置分布式锁
func (e *Application) SetLocker(l *Locker) {
	e.locker = l
}

// GetLocker 获取分布式锁
func (e *Application) GetLocker() *Locker {
	return e.locker
}

// SetConfig 设置对应key的config
func (e *Application) SetConfig(key string, value interface{}) {
	e.mux.Lock()
	defer e.mux.Unlock()
	e.configs[key] = value
}

// GetConfig 获取对应key的config
func (e *Application) GetConfig(key string) interface{} {
	e.mux.RLock()
	defer e.mux.RUnlock()
	return e.configs[key]
}

// SetEventBus 设置事件总线
func (e *Application) SetEventBus(eb eventbus.EventBus) {
	e.mux.Lock()
	defer e.mux.Unlock()
	e.eventBus = eb
}

// GetEventBus 获取事件总线
func (e *Application) GetEventBus() eventbus.EventBus {
	e.mux.RLock()
	defer e.mux.RUnlock()
	return e.eventBus
}

// OnStart 注册启动钩子
func (e *Application) OnStart(name string, fn Hook) {
	e.mux.Lock()
	defer e.mux.Unlock()
	e.starters = append(e.starters, namedHook{name: name, fn: fn})
}

// OnStop 注册停止钩子
func (e *Application) OnStop(name string, fn Hook) {
	e.mux.Lock()
	defer e.mux.Unlock()
	e.stoppers = append(e.stoppers, namedHook{name: name, fn: fn})
}

// AddJob 注册定时任务
func (e *Application) AddJob(spec, lockKey string, ttl time.Duration, job func(ctx context.Context) error) error {
	if e.crontab == nil {
		e.crontab = cron.New()
	}
	l := logger.Named(e.GetLogger(), "cron")
	_, err := e.crontab.AddFunc(spec, func() {
		ctx := context.Background()
		if lockKey == "" {
			if err := job(ctx); err != nil {
				l.Warn("cron job failed", zap.String("spec", spec), zap.Error(err))
			}
			return
		}
		ran, err := e.locker.Do(ctx, lockKey, ttl, job)
		switch {
		case err != nil:
			l.Warn("cron job failed", zap.String("lock", lockKey), zap.Error(err))
		case !ran:
			l.Debug("cron job skipped, lock held elsewhere", zap.String("lock", lockKey))
		}
	})
	if err != nil {
		return fmt.Errorf("invalid cron spec %q: %w", spec, err)
	}
	return nil
}

// Run 依次执行启动钩子，然后运行 HTTP 服务与定时任务，直到 ctx 取消
// 启动失败时已启动的部分按相反顺序停止
func (e *Application) Run(ctx context.Context) error {
	l := logger.Named(e.GetLogger(), "runtime")

	e.mux.RLock()
	starters := append([]namedHook(nil), e.starters...)
	stoppers := append([]namedHook(nil), e.stoppers...)
	e.mux.RUnlock()

	for _, h := range starters {
		if err := h.fn(ctx); err != nil {
			l.Error("startup failed", zap.String("component", h.name), zap.Error(err))
			e.stop(stoppers, l)
			return fmt.Errorf("start %s: %w", h.name, err)
		}
		l.Info("component started", zap.String("component", h.name))
	}

	g, gctx := errgroup.WithContext(ctx)

	var srv *http.Server
	if e.engine != nil && e.addr != "" {
		srv = &http.Server{Addr: e.addr, Handler: e.engine}
		g.Go(func() error {
			l.Info("http server listening", zap.String("addr", e.addr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("http server: %w", err)
			}
			return nil
		})
	}

	if e.crontab != nil {
		e.crontab.Start()
	}

	g.Go(func() error {
		<-gctx.Done()
		if e.crontab != nil {
			<-e.crontab.Stop().Done()
		}
		if srv != nil {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), e.shutdownTimeout)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				l.Warn("http server shutdown", zap.Error(err))
			}
		}
		return nil
	})

	err := g.Wait()
	e.stop(stoppers, l)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (e *Application) stop(stoppers []namedHook, l *zap.Logger) {
	for i := len(stoppers) - 1; i >= 0; i-- {
		h := stoppers[i]
		ctx, cancel := context.WithTimeout(context.Background(), e.shutdownTimeout)
		if err := h.fn(ctx); err != nil {
			l.Warn("shutdown failed", zap.String("component", h.name), zap.Error(err))
		} else {
			l.Info("component stopped", zap.String("component", h.name))
		}
		cancel()
	}
}
