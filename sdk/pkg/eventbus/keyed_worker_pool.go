package eventbus

import (
	"context"
	"errors"
	"hash/fnv"
	"sync"
	"time"
)

// AggregateMessage 聚合消息（用于 Keyed-Worker 池）
type AggregateMessage struct {
	Topic       string
	Partition   int32
	Offset      int64
	Envelope    *Envelope
	AggregateID string
	Context     context.Context
	// Done 可选，处理结果以非阻塞方式写回
	Done chan error
}

// KeyedWorkerPool 固定大小的按键 worker 池
//   - 相同 AggregateID 通过哈希路由到同一个 worker
//   - 每个 worker 顺序处理，保证单聚合内的顺序
//   - 队列有界，入队最多等待 WaitTimeout，超时返回 ErrWorkerQueueFull
var ErrWorkerQueueFull = errors.New("keyed worker queue full")

// ErrWorkerPoolStopped 池已停止
var ErrWorkerPoolStopped = errors.New("keyed worker pool stopped")

// KeyedWorkerPoolConfig 池配置
type KeyedWorkerPoolConfig struct {
	WorkerCount int
	QueueSize   int
	WaitTimeout time.Duration
}

// AggregateHandler 池内处理函数
type AggregateHandler func(ctx context.Context, msg *AggregateMessage) error

// KeyedWorkerPool 每个订阅一个，调用该订阅的处理函数
type KeyedWorkerPool struct {
	cfg     KeyedWorkerPoolConfig
	handler AggregateHandler

	workers  []chan *AggregateMessage
	wg       sync.WaitGroup
	stopCh   chan struct{}
	stopOnce sync.Once
}

func NewKeyedWorkerPool(cfg KeyedWorkerPoolConfig, handler AggregateHandler) *KeyedWorkerPool {
	if cfg.WorkerCount <= 0 {
		cfg.WorkerCount = DefaultKeyedWorkerCount
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultKeyedQueueSize
	}
	if cfg.WaitTimeout <= 0 {
		cfg.WaitTimeout = DefaultKeyedWaitTimeout
	}

	kp := &KeyedWorkerPool{
		cfg:     cfg,
		handler: handler,
		workers: make([]chan *AggregateMessage, cfg.WorkerCount),
		stopCh:  make(chan struct{}),
	}

	for i := 0; i < cfg.WorkerCount; i++ {
		ch := make(chan *AggregateMessage, cfg.QueueSize)
		kp.workers[i] = ch
		kp.wg.Add(1)
		go kp.runWorker(ch)
	}

	return kp
}

func (kp *KeyedWorkerPool) runWorker(ch chan *AggregateMessage) {
	defer kp.wg.Done()
	for {
		select {
		case msg := <-ch:
			err := kp.handler(msg.Context, msg)
			select {
			case msg.Done <- err:
			default:
			}
		case <-kp.stopCh:
			return
		}
	}
}

// ProcessMessage 路由并入队
func (kp *KeyedWorkerPool) ProcessMessage(ctx context.Context, msg *AggregateMessage) error {
	if msg.AggregateID == "" {
		return errors.New("aggregateID required for keyed worker pool")
	}
	if msg.Context == nil {
		msg.Context = ctx
	}

	ch := kp.workers[kp.hashToIndex(msg.AggregateID)]

	select {
	case <-kp.stopCh:
		return ErrWorkerPoolStopped
	default:
	}

	select {
	case ch <- msg:
		return nil
	default:
	}

	timer := time.NewTimer(kp.cfg.WaitTimeout)
	defer timer.Stop()

	select {
	case ch <- msg:
		return nil
	case <-kp.stopCh:
		return ErrWorkerPoolStopped
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return ErrWorkerQueueFull
	}
}

// Submit 入队，队列满时持续重试直到成功、池停止或 ctx 结束
func (kp *KeyedWorkerPool) Submit(ctx context.Context, msg *AggregateMessage) error {
	for {
		err := kp.ProcessMessage(ctx, msg)
		if !errors.Is(err, ErrWorkerQueueFull) {
			return err
		}
	}
}

// Stop 停止所有 worker，队列中未处理的消息被丢弃
func (kp *KeyedWorkerPool) Stop() {
	kp.stopOnce.Do(func() {
		close(kp.stopCh)
	})
	kp.wg.Wait()
}

func (kp *KeyedWorkerPool) hashToIndex(key string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return int(h.Sum32() % uint32(len(kp.workers)))
}
