package repo

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ovaphlow/pitchfork/service-coach-crm/internal/apperr"
	"github.com/ovaphlow/pitchfork/service-coach-crm/internal/person/entity"
)

// MemoryRepo is an in-process PersonRepo. It keeps the same per-document
// write atomicity as the Postgres table and the unique mobile index.
type MemoryRepo struct {
	mu       sync.RWMutex
	rows     map[string]personRow
	byMobile map[string]string
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{rows: map[string]personRow{}, byMobile: map[string]string{}}
}

func (r *MemoryRepo) insert(row personRow) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byMobile[row.MobileNumber]; ok {
		return fmt.Errorf("%s: %w", row.MobileNumber, apperr.ErrMobileTaken)
	}
	if _, ok := r.rows[row.ID]; ok {
		return fmt.Errorf("person %s already exists", row.ID)
	}
	now := time.Now().UTC()
	if row.CreatedAt.IsZero() {
		row.CreatedAt = now
	}
	if row.UpdatedAt.IsZero() {
		row.UpdatedAt = row.CreatedAt
	}
	r.rows[row.ID] = row
	r.byMobile[row.MobileNumber] = row.ID
	return nil
}

func (r *MemoryRepo) CreateCoach(_ context.Context, c *entity.Coach) error {
	return r.insert(rowFromCoach(c))
}

func (r *MemoryRepo) CreateManager(_ context.Context, m *entity.Manager) error {
	row, err := rowFromManager(m)
	if err != nil {
		return err
	}
	return r.insert(row)
}

func (r *MemoryRepo) CreateCustomer(_ context.Context, c *entity.Customer) error {
	row, err := rowFromCustomer(c)
	if err != nil {
		return err
	}
	return r.insert(row)
}

func (r *MemoryRepo) get(id string) (personRow, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	row, ok := r.rows[id]
	if !ok {
		return row, fmt.Errorf("person %s: %w", id, apperr.ErrNotFound)
	}
	return row, nil
}

func (r *MemoryRepo) GetPerson(_ context.Context, id string) (*entity.Person, error) {
	row, err := r.get(id)
	if err != nil {
		return nil, err
	}
	p := row.person()
	return &p, nil
}

func (r *MemoryRepo) GetByMobile(_ context.Context, mobile string) (*entity.Person, error) {
	r.mu.RLock()
	id, ok := r.byMobile[mobile]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("person %s: %w", mobile, apperr.ErrNotFound)
	}
	row, err := r.get(id)
	if err != nil {
		return nil, err
	}
	p := row.person()
	return &p, nil
}

func (r *MemoryRepo) GetCoach(_ context.Context, id string) (*entity.Coach, error) {
	row, err := r.get(id)
	if err != nil {
		return nil, err
	}
	return row.coach()
}

func (r *MemoryRepo) GetManager(_ context.Context, id string) (*entity.Manager, error) {
	row, err := r.get(id)
	if err != nil {
		return nil, err
	}
	return row.manager()
}

func (r *MemoryRepo) GetCustomer(_ context.Context, id string) (*entity.Customer, error) {
	row, err := r.get(id)
	if err != nil {
		return nil, err
	}
	return row.customer()
}

// selectRows returns matching rows ordered like the SQL queries: created_at, id.
func (r *MemoryRepo) selectRows(match func(personRow) bool) []personRow {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []personRow
	for _, row := range r.rows {
		if match(row) {
			out = append(out, row)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (r *MemoryRepo) FindOrphanCoaches(_ context.Context, uplineMobile string) ([]string, error) {
	rows := r.selectRows(func(row personRow) bool {
		return row.Role == string(entity.RoleCoach) && !row.UplineID.Valid &&
			row.UplineMobileHint.Valid && row.UplineMobileHint.String == uplineMobile
	})
	ids := make([]string, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, row.ID)
	}
	return ids, nil
}

func (r *MemoryRepo) FindOrphanCoachesBySuffix(_ context.Context, suffix string) ([]entity.Person, error) {
	return persons(r.selectRows(func(row personRow) bool {
		return row.Role == string(entity.RoleCoach) && !row.UplineID.Valid && suffix != "" &&
			row.UplineMobileHint.Valid && strings.HasSuffix(row.UplineMobileHint.String, suffix)
	})), nil
}

func (r *MemoryRepo) FindCoachesByMobileSuffix(_ context.Context, suffix string) ([]entity.Person, error) {
	return persons(r.selectRows(func(row personRow) bool {
		return row.Role == string(entity.RoleCoach) && suffix != "" && strings.HasSuffix(row.MobileNumber, suffix)
	})), nil
}

func (r *MemoryRepo) ListByUpline(_ context.Context, uplineID string) ([]entity.Person, error) {
	return persons(r.selectRows(func(row personRow) bool {
		return row.UplineID.Valid && row.UplineID.String == uplineID
	})), nil
}

// update applies fn to the stored row under the write lock.
func (r *MemoryRepo) update(id string, fn func(row *personRow) (bool, error)) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	row, ok := r.rows[id]
	if !ok {
		return false, fmt.Errorf("person %s: %w", id, apperr.ErrNotFound)
	}
	changed, err := fn(&row)
	if err != nil || !changed {
		return false, err
	}
	row.UpdatedAt = time.Now().UTC()
	r.rows[id] = row
	return true, nil
}

func (r *MemoryRepo) LinkUpline(_ context.Context, id, uplineID string) (bool, error) {
	return r.update(id, func(row *personRow) (bool, error) {
		if row.UplineID.Valid {
			return false, nil
		}
		row.UplineID = nullString(&uplineID)
		return true, nil
	})
}

func (r *MemoryRepo) SetUpline(_ context.Context, id, uplineID string) error {
	_, err := r.update(id, func(row *personRow) (bool, error) {
		row.UplineID = nullString(&uplineID)
		return true, nil
	})
	return err
}

func (r *MemoryRepo) AddVerifiedDownline(_ context.Context, managerID, coachID string) (bool, error) {
	return r.update(managerID, func(row *personRow) (bool, error) {
		m, err := row.manager()
		if err != nil {
			return false, err
		}
		if m.IsVerified(coachID) {
			return false, nil
		}
		row.VerifiedDownlines, err = marshalList(append(m.VerifiedDownlines, coachID))
		return err == nil, err
	})
}

func (r *MemoryRepo) ListCustomersByCoach(_ context.Context, coachID string) ([]entity.Customer, error) {
	rows := r.selectRows(func(row personRow) bool {
		return row.Role == string(entity.RoleCustomer) && row.CoachID.Valid && row.CoachID.String == coachID
	})
	out := make([]entity.Customer, 0, len(rows))
	for _, row := range rows {
		c, err := row.customer()
		if err != nil {
			return nil, err
		}
		out = append(out, *c)
	}
	return out, nil
}

func (r *MemoryRepo) UpdateCustomer(_ context.Context, c *entity.Customer) error {
	next, err := rowFromCustomer(c)
	if err != nil {
		return err
	}
	_, err = r.update(c.ID, func(row *personRow) (bool, error) {
		if err := row.expectRole(entity.RoleCustomer); err != nil {
			return false, err
		}
		row.Name = next.Name
		row.Status = next.Status
		row.PipelineStage = next.PipelineStage
		row.PackPrice = next.PackPrice
		row.FollowUp = next.FollowUp
		row.Composition = next.Composition
		return true, nil
	})
	return err
}

// appendJSON appends one element to a JSON array column.
func appendJSON[T any](col *string, v T) error {
	var list []T
	if err := unmarshalInto(*col, &list); err != nil {
		return err
	}
	b, err := json.Marshal(append(list, v))
	if err != nil {
		return err
	}
	*col = string(b)
	return nil
}

func (r *MemoryRepo) AppendAttendance(_ context.Context, id string, at time.Time) error {
	_, err := r.update(id, func(row *personRow) (bool, error) {
		if err := row.expectRole(entity.RoleCustomer); err != nil {
			return false, err
		}
		return true, appendJSON(&row.AttendanceLog, at)
	})
	return err
}

func (r *MemoryRepo) AppendPayment(_ context.Context, id string, p entity.Payment) error {
	_, err := r.update(id, func(row *personRow) (bool, error) {
		if err := row.expectRole(entity.RoleCustomer); err != nil {
			return false, err
		}
		return true, appendJSON(&row.PaymentLedger, p)
	})
	return err
}

func (r *MemoryRepo) DeleteCustomer(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	row, ok := r.rows[id]
	if !ok || row.Role != string(entity.RoleCustomer) {
		return fmt.Errorf("person %s: %w", id, apperr.ErrNotFound)
	}
	delete(r.rows, id)
	delete(r.byMobile, row.MobileNumber)
	return nil
}
