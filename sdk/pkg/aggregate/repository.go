package aggregate

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/ChenBigdata421/jxt-saga/sdk/pkg/domain/event"
	"github.com/ChenBigdata421/jxt-saga/sdk/pkg/eventstore"
	"github.com/ChenBigdata421/jxt-saga/sdk/pkg/json"
)

// Definition 聚合类型的构造与解码
type Definition[T Aggregate] struct {
	AggregateType string
	New           func() T
	Decode        func(se eventstore.StoredEvent) (event.Event, error)
}

// DecodeWith 用事件注册表解码存储事件
func DecodeWith(r *event.Registry) func(se eventstore.StoredEvent) (event.Event, error) {
	return func(se eventstore.StoredEvent) (event.Event, error) {
		return r.Decode(se.Data)
	}
}

// Repository 聚合仓储：快照 + 尾部回放加载，乐观并发保存
type Repository[T Aggregate] struct {
	store    eventstore.EventStore
	def      Definition[T]
	interval int
	logger   *zap.Logger
}

// NewRepository 创建仓储
func NewRepository[T Aggregate](store eventstore.EventStore, def Definition[T], opts ...Option) *Repository[T] {
	o := buildOptions(opts)
	return &Repository[T]{
		store:    store,
		def:      def,
		interval: o.snapshotInterval,
		logger:   o.logger.Named("repository").With(zap.String("aggregateType", def.AggregateType)),
	}
}

// Save 追加未提交事件，到达快照间隔时记录快照
//
// 失败时未提交事件保持不变，调用方可以重新加载后重试。
func (r *Repository[T]) Save(ctx context.Context, agg T) error {
	root := agg.AggregateRoot()
	changes := root.Uncommitted()
	if len(changes) == 0 {
		return nil
	}

	expected := root.ExpectedVersion()
	if _, err := r.store.AppendEvents(ctx, root.ID(), changes, expected); err != nil {
		return err
	}

	newVersion := expected + int64(len(changes))
	if newVersion%int64(r.interval) == 0 {
		if err := r.store.CreateSnapshot(ctx, root.ID(), r.def.AggregateType, agg, newVersion); err != nil {
			r.logger.Warn("failed to create snapshot",
				zap.String("streamID", root.ID()),
				zap.Int64("version", newVersion),
				zap.Error(err))
		}
	}

	root.ClearUncommitted()
	return nil
}

// FindByID 加载聚合，流不存在时 found 为 false
func (r *Repository[T]) FindByID(ctx context.Context, id string) (T, bool, error) {
	var zero T

	snap, err := r.store.GetLatestSnapshot(ctx, id)
	if err != nil {
		return zero, false, fmt.Errorf("failed to load snapshot %s: %w", id, err)
	}

	agg := r.def.New()
	from := int64(0)
	if snap != nil {
		if err := json.Unmarshal(snap.Data, agg); err != nil {
			return zero, false, fmt.Errorf("failed to restore snapshot %s: %w", id, err)
		}
		from = snap.Version
	}

	events, err := r.store.GetEvents(ctx, id, from)
	if err != nil {
		return zero, false, fmt.Errorf("failed to load events %s: %w", id, err)
	}
	if snap == nil && len(events) == 0 {
		return zero, false, nil
	}

	root := agg.AggregateRoot()
	root.restore(id, from)
	for _, se := range events {
		if se.AggregateVersion != root.version+1 {
			return zero, false, fmt.Errorf("stream %s: expected version %d, got %d", id, root.version+1, se.AggregateVersion)
		}
		e, err := r.def.Decode(se)
		if err != nil {
			return zero, false, err
		}
		if err := agg.Apply(e); err != nil {
			return zero, false, err
		}
		root.version = se.AggregateVersion
	}
	return agg, true, nil
}

// FindByCorrelationID 按关联ID找到本类型的第一个流并加载
func (r *Repository[T]) FindByCorrelationID(ctx context.Context, correlationID string) (T, bool, error) {
	var zero T
	events, err := r.store.GetEventsByCorrelationID(ctx, correlationID)
	if err != nil {
		return zero, false, err
	}
	for _, se := range events {
		if se.AggregateType == r.def.AggregateType {
			return r.FindByID(ctx, se.AggregateID)
		}
	}
	return zero, false, nil
}

// FindAll 加载本类型的所有聚合
func (r *Repository[T]) FindAll(ctx context.Context) ([]T, error) {
	return r.Find(ctx, nil)
}

// Find 客户端过滤，match 为 nil 时返回全部
func (r *Repository[T]) Find(ctx context.Context, match func(T) bool) ([]T, error) {
	ids, err := r.store.ListStreams(ctx, r.def.AggregateType)
	if err != nil {
		return nil, err
	}
	out := make([]T, 0, len(ids))
	for _, id := range ids {
		agg, found, err := r.FindByID(ctx, id)
		if err != nil {
			return nil, err
		}
		if found && (match == nil || match(agg)) {
			out = append(out, agg)
		}
	}
	return out, nil
}
