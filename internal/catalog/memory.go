package catalog

import (
	"context"
	"sort"
	"sync"
)

// MemoryRepository 内存目录，用于测试与演示
type MemoryRepository struct {
	mu       sync.RWMutex
	products map[string]Product
}

func NewMemoryRepository(products ...Product) *MemoryRepository {
	r := &MemoryRepository{products: make(map[string]Product)}
	r.Put(products...)
	return r
}

// Put 插入或替换
func (r *MemoryRepository) Put(products ...Product) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range products {
		r.products[p.ID] = p
	}
}

func (r *MemoryRepository) FindByID(_ context.Context, id string) (*Product, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.products[id]
	if !ok || !p.IsActive {
		return nil, nil
	}
	return &p, nil
}

func (r *MemoryRepository) FindByIDs(_ context.Context, ids []string) ([]Product, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Product
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		if p, ok := r.products[id]; ok && p.IsActive {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *MemoryRepository) FindByCategory(_ context.Context, category string) ([]Product, error) {
	return r.filter(func(p Product) bool { return p.Category == category }), nil
}

func (r *MemoryRepository) FindActive(_ context.Context) ([]Product, error) {
	return r.filter(nil), nil
}

func (r *MemoryRepository) filter(match func(Product) bool) []Product {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Product
	for _, p := range r.products {
		if p.IsActive && (match == nil || match(p)) {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Category != out[j].Category {
			return out[i].Category < out[j].Category
		}
		return out[i].Name < out[j].Name
	})
	return out
}
