package outbox

import (
	"context"
	"time"

	"gorm.io/gorm"
)

// Save 在调用方的事务中写入记录
func Save(tx *gorm.DB, records ...*Record) error {
	if len(records) == 0 {
		return nil
	}
	return tx.Create(&records).Error
}

// Repository 发件箱查询与状态更新
type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// FindPending 按写入顺序取待转发记录
func (r *Repository) FindPending(ctx context.Context, limit int) ([]*Record, error) {
	var out []*Record
	err := r.db.WithContext(ctx).
		Where("status = ?", StatusPending).
		Order("id ASC").
		Limit(limit).
		Find(&out).Error
	return out, err
}

// MarkPublished 标记已转发
func (r *Repository) MarkPublished(ctx context.Context, ids []int64, at time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Model(&Record{}).
		Where("id IN ?", ids).
		Updates(map[string]interface{}{"status": StatusPublished, "published_at": at, "last_error": ""}).Error
}

// MarkFailed 记录一次失败，达到 maxRetries 时转为 max_retry；返回更新后的状态
func (r *Repository) MarkFailed(ctx context.Context, rec *Record, cause error, maxRetries int) (Status, error) {
	status := StatusPending
	if rec.RetryCount+1 >= maxRetries {
		status = StatusMaxRetry
	}
	err := r.db.WithContext(ctx).Model(&Record{}).
		Where("id = ?", rec.ID).
		Updates(map[string]interface{}{
			"status":      status,
			"retry_count": gorm.Expr("retry_count + 1"),
			"last_error":  cause.Error(),
		}).Error
	return status, err
}

// DeletePublishedBefore 删除早于 before 转发的记录
func (r *Repository) DeletePublishedBefore(ctx context.Context, before time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("status = ? AND published_at < ?", StatusPublished, before).
		Delete(&Record{})
	return res.RowsAffected, res.Error
}

// CountByStatus 各状态记录数
func (r *Repository) CountByStatus(ctx context.Context) (map[Status]int64, error) {
	var rows []struct {
		Status Status
		Count  int64
	}
	err := r.db.WithContext(ctx).Model(&Record{}).
		Select("status, COUNT(*) AS count").
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make(map[Status]int64, len(rows))
	for _, row := range rows {
		out[row.Status] = row.Count
	}
	return out, nil
}
