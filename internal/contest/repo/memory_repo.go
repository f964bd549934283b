package repo

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/ovaphlow/pitchfork/service-coach-crm/internal/apperr"
	"github.com/ovaphlow/pitchfork/service-coach-crm/internal/contest/entity"
)

// MemoryRepo is an in-process ContestRepo. Rows are stored encoded, so
// callers never share slices with the store.
type MemoryRepo struct {
	mu   sync.RWMutex
	rows map[string]contestRow
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{rows: map[string]contestRow{}}
}

func (r *MemoryRepo) Create(_ context.Context, c *entity.Contest) error {
	row, err := rowFromContest(c)
	if err != nil {
		return err
	}
	if row.CreatedAt.IsZero() {
		row.CreatedAt = time.Now().UTC()
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.rows[row.ID]; ok {
		return fmt.Errorf("contest %s already exists", row.ID)
	}
	r.rows[row.ID] = row
	return nil
}

func (r *MemoryRepo) Get(_ context.Context, id string) (*entity.Contest, error) {
	r.mu.RLock()
	row, ok := r.rows[id]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("contest %s: %w", id, apperr.ErrNotFound)
	}
	return row.contest()
}

func (r *MemoryRepo) selectRows(match func(contestRow) bool) []contestRow {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []contestRow
	for _, row := range r.rows {
		if match(row) {
			out = append(out, row)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].StartsAt.Equal(out[j].StartsAt) {
			return out[i].StartsAt.After(out[j].StartsAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (r *MemoryRepo) ListByManager(_ context.Context, managerID string) ([]entity.Contest, error) {
	return contests(r.selectRows(func(row contestRow) bool {
		return row.OwnerManagerID == managerID
	}))
}

func (r *MemoryRepo) ListActiveByManager(_ context.Context, managerID string, now time.Time) ([]entity.Contest, error) {
	return contests(r.selectRows(func(row contestRow) bool {
		return row.OwnerManagerID == managerID && row.IsActive &&
			!row.StartsAt.After(now) && !row.EndsAt.Before(now)
	}))
}

func (r *MemoryRepo) AddParticipant(_ context.Context, contestID string, p entity.Participant) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	row, ok := r.rows[contestID]
	if !ok {
		return fmt.Errorf("contest %s: %w", contestID, apperr.ErrNotFound)
	}
	c, err := row.contest()
	if err != nil {
		return err
	}
	if c.HasParticipant(p.CustomerID) {
		return fmt.Errorf("customer %s in contest %s: %w", p.CustomerID, contestID, apperr.ErrAlreadyEnrolled)
	}
	c.Participants = append(c.Participants, p)
	next, err := rowFromContest(c)
	if err != nil {
		return err
	}
	r.rows[contestID] = next
	return nil
}
