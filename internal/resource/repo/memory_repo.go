package repo

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/ovaphlow/pitchfork/service-coach-crm/internal/apperr"
	"github.com/ovaphlow/pitchfork/service-coach-crm/internal/resource/entity"
)

type MemoryRepo struct {
	mu   sync.RWMutex
	rows map[string]entity.Resource
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{rows: map[string]entity.Resource{}}
}

func (r *MemoryRepo) Create(_ context.Context, res *entity.Resource) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.rows[res.ID]; ok {
		return fmt.Errorf("resource %s already exists", res.ID)
	}
	cp := *res
	cp.Metadata = append([]byte(nil), res.Metadata...)
	r.rows[res.ID] = cp
	return nil
}

func (r *MemoryRepo) List(_ context.Context, managerID, category string) ([]entity.Resource, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := []entity.Resource{}
	for _, res := range r.rows {
		if res.OwnerManagerID == managerID && (category == "" || res.Category == category) {
			out = append(out, res)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (r *MemoryRepo) Delete(_ context.Context, managerID, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	res, ok := r.rows[id]
	if !ok || res.OwnerManagerID != managerID {
		return fmt.Errorf("resource %s: %w", id, apperr.ErrNotFound)
	}
	delete(r.rows, id)
	return nil
}
