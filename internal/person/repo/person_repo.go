package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/ovaphlow/pitchfork/service-coach-crm/internal/apperr"
	"github.com/ovaphlow/pitchfork/service-coach-crm/internal/person/entity"
	"github.com/ovaphlow/pitchfork/service-coach-crm/pkg/database"
)

const mobileConstraint = "people_mobile_number_key"

// PersonRepo stores every node of the graph in the people table using sqlx.
type PersonRepo struct {
	db *sqlx.DB
}

func NewPersonRepo(db *sqlx.DB) *PersonRepo { return &PersonRepo{db: db} }

// EnsureTable creates the people table if not exists (idempotent).
// This is a convenience for early development; prefer migrations in production.
func (r *PersonRepo) EnsureTable(ctx context.Context) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS people (
  id varchar(32) PRIMARY KEY,
  name TEXT NOT NULL DEFAULT '',
  mobile_number TEXT NOT NULL,
  role TEXT NOT NULL,
  upline_id varchar(32),
  upline_mobile_hint TEXT,
  wellness_center_name TEXT NOT NULL DEFAULT '',
  is_active BOOLEAN NOT NULL DEFAULT false,
  candidate_downlines JSONB NOT NULL DEFAULT '[]'::jsonb,
  verified_downlines JSONB NOT NULL DEFAULT '[]'::jsonb,
  coach_id varchar(32),
  status TEXT NOT NULL DEFAULT '',
  pipeline_stage TEXT NOT NULL DEFAULT '',
  pack_price NUMERIC(12,2),
  follow_up JSONB NOT NULL DEFAULT '{}'::jsonb,
  attendance_log JSONB NOT NULL DEFAULT '[]'::jsonb,
  payment_ledger JSONB NOT NULL DEFAULT '[]'::jsonb,
  composition JSONB NOT NULL DEFAULT '{}'::jsonb,
  created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
  updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
  CONSTRAINT people_mobile_number_key UNIQUE (mobile_number)
);
CREATE INDEX IF NOT EXISTS idx_people_upline_id ON people(upline_id);
CREATE INDEX IF NOT EXISTS idx_people_coach_id ON people(coach_id);
CREATE INDEX IF NOT EXISTS idx_people_orphans ON people(upline_mobile_hint) WHERE role = 'coach' AND upline_id IS NULL;
`
	_, err := r.db.ExecContext(ctx, ddl)
	return err
}

func (r *PersonRepo) insert(ctx context.Context, row personRow) error {
	const q = `INSERT INTO people (` + personColumns + `)
		VALUES (:id, :name, :mobile_number, :role, :upline_id, :upline_mobile_hint,
		:wellness_center_name, :is_active, :candidate_downlines, :verified_downlines,
		:coach_id, :status, :pipeline_stage, :pack_price, :follow_up, :attendance_log,
		:payment_ledger, :composition, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, q, row); err != nil {
		if database.IsUniqueViolation(err, mobileConstraint) {
			return fmt.Errorf("%s: %w", row.MobileNumber, apperr.ErrMobileTaken)
		}
		return err
	}
	return nil
}

func (r *PersonRepo) CreateCoach(ctx context.Context, c *entity.Coach) error {
	return r.insert(ctx, rowFromCoach(c))
}

func (r *PersonRepo) CreateManager(ctx context.Context, m *entity.Manager) error {
	row, err := rowFromManager(m)
	if err != nil {
		return err
	}
	return r.insert(ctx, row)
}

func (r *PersonRepo) CreateCustomer(ctx context.Context, c *entity.Customer) error {
	row, err := rowFromCustomer(c)
	if err != nil {
		return err
	}
	return r.insert(ctx, row)
}

func (r *PersonRepo) getRow(ctx context.Context, where string, arg any) (personRow, error) {
	var row personRow
	q := `SELECT ` + personColumns + ` FROM people WHERE ` + where
	if err := r.db.GetContext(ctx, &row, q, arg); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return row, fmt.Errorf("person %v: %w", arg, apperr.ErrNotFound)
		}
		return row, err
	}
	return row, nil
}

func (r *PersonRepo) GetPerson(ctx context.Context, id string) (*entity.Person, error) {
	row, err := r.getRow(ctx, "id=$1", id)
	if err != nil {
		return nil, err
	}
	p := row.person()
	return &p, nil
}

// GetByMobile looks a node up by its normalized mobile number.
func (r *PersonRepo) GetByMobile(ctx context.Context, mobile string) (*entity.Person, error) {
	row, err := r.getRow(ctx, "mobile_number=$1", mobile)
	if err != nil {
		return nil, err
	}
	p := row.person()
	return &p, nil
}

func (r *PersonRepo) GetCoach(ctx context.Context, id string) (*entity.Coach, error) {
	row, err := r.getRow(ctx, "id=$1", id)
	if err != nil {
		return nil, err
	}
	return row.coach()
}

func (r *PersonRepo) GetManager(ctx context.Context, id string) (*entity.Manager, error) {
	row, err := r.getRow(ctx, "id=$1", id)
	if err != nil {
		return nil, err
	}
	return row.manager()
}

func (r *PersonRepo) GetCustomer(ctx context.Context, id string) (*entity.Customer, error) {
	row, err := r.getRow(ctx, "id=$1", id)
	if err != nil {
		return nil, err
	}
	return row.customer()
}

// FindOrphanCoaches returns coaches that named uplineMobile as their upline
// and are still unlinked, oldest first.
func (r *PersonRepo) FindOrphanCoaches(ctx context.Context, uplineMobile string) ([]string, error) {
	const q = `SELECT id FROM people WHERE role='coach' AND upline_id IS NULL AND upline_mobile_hint=$1 ORDER BY created_at, id`
	var ids []string
	if err := r.db.SelectContext(ctx, &ids, q, uplineMobile); err != nil {
		return nil, err
	}
	return ids, nil
}

// FindOrphanCoachesBySuffix returns unlinked coaches whose hint has at least
// len(suffix) digits and ends with suffix.
func (r *PersonRepo) FindOrphanCoachesBySuffix(ctx context.Context, suffix string) ([]entity.Person, error) {
	q := `SELECT ` + personColumns + ` FROM people WHERE role='coach' AND upline_id IS NULL AND length(upline_mobile_hint) >= $2 AND right(upline_mobile_hint, $2) = $1 ORDER BY created_at, id`
	var rows []personRow
	if err := r.db.SelectContext(ctx, &rows, q, suffix, len(suffix)); err != nil {
		return nil, err
	}
	return persons(rows), nil
}

// FindCoachesByMobileSuffix matches coaches whose mobile ends with suffix.
func (r *PersonRepo) FindCoachesByMobileSuffix(ctx context.Context, suffix string) ([]entity.Person, error) {
	q := `SELECT ` + personColumns + ` FROM people WHERE role='coach' AND right(mobile_number, $2) = $1 ORDER BY created_at, id`
	var rows []personRow
	if err := r.db.SelectContext(ctx, &rows, q, suffix, len(suffix)); err != nil {
		return nil, err
	}
	return persons(rows), nil
}

// ListByUpline returns the direct downline of uplineID.
func (r *PersonRepo) ListByUpline(ctx context.Context, uplineID string) ([]entity.Person, error) {
	q := `SELECT ` + personColumns + ` FROM people WHERE upline_id=$1 ORDER BY created_at, id`
	var rows []personRow
	if err := r.db.SelectContext(ctx, &rows, q, uplineID); err != nil {
		return nil, err
	}
	return persons(rows), nil
}

// LinkUpline sets upline_id only while it is still null. It reports whether
// the row changed, so a second stitching pass is a no-op.
func (r *PersonRepo) LinkUpline(ctx context.Context, id, uplineID string) (bool, error) {
	const q = `UPDATE people SET upline_id=$2, updated_at=NOW() WHERE id=$1 AND upline_id IS NULL`
	res, err := r.db.ExecContext(ctx, q, id, uplineID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// SetUpline overwrites upline_id unconditionally (administrative repair).
func (r *PersonRepo) SetUpline(ctx context.Context, id, uplineID string) error {
	const q = `UPDATE people SET upline_id=$2, updated_at=NOW() WHERE id=$1`
	return r.execOne(ctx, id, q, id, uplineID)
}

func (r *PersonRepo) AddVerifiedDownline(ctx context.Context, managerID, coachID string) (bool, error) {
	const q = `UPDATE people SET verified_downlines = verified_downlines || jsonb_build_array($2::text), updated_at=NOW()
		WHERE id=$1 AND role='manager' AND NOT verified_downlines @> jsonb_build_array($2::text)`
	res, err := r.db.ExecContext(ctx, q, managerID, coachID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n == 0 {
		// either already verified or not a manager
		if _, err := r.GetManager(ctx, managerID); err != nil {
			return false, err
		}
	}
	return n == 1, nil
}

func (r *PersonRepo) ListCustomersByCoach(ctx context.Context, coachID string) ([]entity.Customer, error) {
	q := `SELECT ` + personColumns + ` FROM people WHERE role='customer' AND coach_id=$1 ORDER BY created_at, id`
	var rows []personRow
	if err := r.db.SelectContext(ctx, &rows, q, coachID); err != nil {
		return nil, err
	}
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

// UpdateCustomer writes the mutable customer fields. Attendance and payments
// are append-only and go through AppendAttendance / AppendPayment.
func (r *PersonRepo) UpdateCustomer(ctx context.Context, c *entity.Customer) error {
	row, err := rowFromCustomer(c)
	if err != nil {
		return err
	}
	const q = `UPDATE people SET name=:name, status=:status, pipeline_stage=:pipeline_stage, pack_price=:pack_price,
		follow_up=:follow_up, composition=:composition, updated_at=:updated_at
		WHERE id=:id AND role='customer'`
	res, err := r.db.NamedExecContext(ctx, q, row)
	if err != nil {
		return err
	}
	return oneRow(res, c.ID)
}

func (r *PersonRepo) AppendAttendance(ctx context.Context, id string, at time.Time) error {
	b, err := json.Marshal([]time.Time{at})
	if err != nil {
		return err
	}
	const q = `UPDATE people SET attendance_log = attendance_log || $2::jsonb, updated_at=NOW() WHERE id=$1 AND role='customer'`
	return r.execOne(ctx, id, q, id, string(b))
}

func (r *PersonRepo) AppendPayment(ctx context.Context, id string, p entity.Payment) error {
	b, err := json.Marshal([]entity.Payment{p})
	if err != nil {
		return err
	}
	const q = `UPDATE people SET payment_ledger = payment_ledger || $2::jsonb, updated_at=NOW() WHERE id=$1 AND role='customer'`
	return r.execOne(ctx, id, q, id, string(b))
}

func (r *PersonRepo) DeleteCustomer(ctx context.Context, id string) error {
	const q = `DELETE FROM people WHERE id=$1 AND role='customer'`
	return r.execOne(ctx, id, q, id)
}

func (r *PersonRepo) execOne(ctx context.Context, id, q string, args ...any) error {
	res, err := r.db.ExecContext(ctx, q, args...)
	if err != nil {
		return err
	}
	return oneRow(res, id)
}

func oneRow(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("person %s: %w", id, apperr.ErrNotFound)
	}
	return nil
}

func persons(rows []personRow) []entity.Person {
	out := make([]entity.Person, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.person())
	}
	return out
}
