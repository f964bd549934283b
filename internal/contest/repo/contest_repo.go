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
	"github.com/ovaphlow/pitchfork/service-coach-crm/internal/contest/entity"
)

// ContestRepo keeps contests in Postgres with participants embedded as a
// JSONB array.
type ContestRepo struct {
	db *sqlx.DB
}

func NewContestRepo(db *sqlx.DB) *ContestRepo { return &ContestRepo{db: db} }

// EnsureTable creates the contests table if not exists (idempotent).
func (r *ContestRepo) EnsureTable(ctx context.Context) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS contests (
  id varchar(32) PRIMARY KEY,
  title TEXT NOT NULL,
  type TEXT NOT NULL,
  starts_at TIMESTAMPTZ NOT NULL,
  ends_at TIMESTAMPTZ NOT NULL,
  is_active BOOLEAN NOT NULL DEFAULT true,
  owner_manager_id varchar(32) NOT NULL,
  participants JSONB NOT NULL DEFAULT '[]'::jsonb,
  created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_contests_owner ON contests(owner_manager_id);
`
	_, err := r.db.ExecContext(ctx, ddl)
	return err
}

func (r *ContestRepo) Create(ctx context.Context, c *entity.Contest) error {
	row, err := rowFromContest(c)
	if err != nil {
		return err
	}
	const q = `INSERT INTO contests (` + contestColumns + `)
		VALUES (:id, :title, :type, :starts_at, :ends_at, :is_active, :owner_manager_id, :participants, :created_at)`
	_, err = r.db.NamedExecContext(ctx, q, row)
	return err
}

func (r *ContestRepo) Get(ctx context.Context, id string) (*entity.Contest, error) {
	var row contestRow
	q := `SELECT ` + contestColumns + ` FROM contests WHERE id=$1`
	if err := r.db.GetContext(ctx, &row, q, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("contest %s: %w", id, apperr.ErrNotFound)
		}
		return nil, err
	}
	return row.contest()
}

func (r *ContestRepo) ListByManager(ctx context.Context, managerID string) ([]entity.Contest, error) {
	q := `SELECT ` + contestColumns + ` FROM contests WHERE owner_manager_id=$1 ORDER BY starts_at DESC, id`
	var rows []contestRow
	if err := r.db.SelectContext(ctx, &rows, q, managerID); err != nil {
		return nil, err
	}
	return contests(rows)
}

// ListActiveByManager returns contests that are flagged active and whose
// window contains now.
func (r *ContestRepo) ListActiveByManager(ctx context.Context, managerID string, now time.Time) ([]entity.Contest, error) {
	q := `SELECT ` + contestColumns + ` FROM contests
		WHERE owner_manager_id=$1 AND is_active AND starts_at <= $2 AND ends_at >= $2
		ORDER BY starts_at DESC, id`
	var rows []contestRow
	if err := r.db.SelectContext(ctx, &rows, q, managerID, now); err != nil {
		return nil, err
	}
	return contests(rows)
}

// AddParticipant appends p in a single conditional update, so two concurrent
// enrollments of the same customer cannot both succeed.
func (r *ContestRepo) AddParticipant(ctx context.Context, contestID string, p entity.Participant) error {
	add, err := json.Marshal([]entity.Participant{p})
	if err != nil {
		return err
	}
	member, err := json.Marshal([]map[string]string{{"customer_id": p.CustomerID}})
	if err != nil {
		return err
	}
	const q = `UPDATE contests SET participants = participants || $2::jsonb
		WHERE id=$1 AND NOT participants @> $3::jsonb`
	res, err := r.db.ExecContext(ctx, q, contestID, string(add), string(member))
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 1 {
		return nil
	}
	if _, err := r.Get(ctx, contestID); err != nil {
		return err
	}
	return fmt.Errorf("customer %s in contest %s: %w", p.CustomerID, contestID, apperr.ErrAlreadyEnrolled)
}
