package catalog

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/sync/singleflight"
)

const (
	DefaultCacheSize = 1024
	DefaultCacheTTL  = time.Minute
)

// CachedRepository 按 id 缓存商品，并发的相同查询合并为一次
// 列表查询不缓存
type CachedRepository struct {
	inner Repository
	cache *expirable.LRU[string, Product]
	group singleflight.Group
}

func NewCachedRepository(inner Repository, size int, ttl time.Duration) *CachedRepository {
	if size <= 0 {
		size = DefaultCacheSize
	}
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &CachedRepository{
		inner: inner,
		cache: expirable.NewLRU[string, Product](size, nil, ttl),
	}
}

func (r *CachedRepository) FindByID(ctx context.Context, id string) (*Product, error) {
	if p, ok := r.cache.Get(id); ok {
		return &p, nil
	}
	v, err, _ := r.group.Do("id:"+id, func() (interface{}, error) {
		p, err := r.inner.FindByID(ctx, id)
		if err != nil || p == nil {
			return p, err
		}
		r.cache.Add(p.ID, *p)
		return p, nil
	})
	if err != nil {
		return nil, err
	}
	p, _ := v.(*Product)
	if p == nil {
		return nil, nil
	}
	cp := *p
	return &cp, nil
}

func (r *CachedRepository) FindByIDs(ctx context.Context, ids []string) ([]Product, error) {
	var (
		out     []Product
		missing []string
		seen    = make(map[string]bool, len(ids))
	)
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		if p, ok := r.cache.Get(id); ok {
			out = append(out, p)
		} else {
			missing = append(missing, id)
		}
	}

	if len(missing) > 0 {
		sort.Strings(missing)
		v, err, _ := r.group.Do("ids:"+strings.Join(missing, ","), func() (interface{}, error) {
			products, err := r.inner.FindByIDs(ctx, missing)
			if err != nil {
				return nil, err
			}
			for _, p := range products {
				r.cache.Add(p.ID, p)
			}
			return products, nil
		})
		if err != nil {
			return nil, err
		}
		out = append(out, v.([]Product)...)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *CachedRepository) FindByCategory(ctx context.Context, category string) ([]Product, error) {
	return r.inner.FindByCategory(ctx, category)
}

func (r *CachedRepository) FindActive(ctx context.Context) ([]Product, error) {
	return r.inner.FindActive(ctx)
}

// Invalidate 商品变更后清除缓存
func (r *CachedRepository) Invalidate(ids ...string) {
	if len(ids) == 0 {
		r.cache.Purge()
		return
	}
	for _, id := range ids {
		r.cache.Remove(id)
	}
}
