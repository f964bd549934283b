package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/ovaphlow/pitchfork/service-coach-crm/internal/apperr"
	"github.com/ovaphlow/pitchfork/service-coach-crm/internal/resource/entity"
)

// Repo is the repository implementation for resources backed by PostgreSQL.
type Repo struct {
	db *sqlx.DB
}

func NewRepo(db *sqlx.DB) *Repo {
	return &Repo{db: db}
}

// EnsureTable ensures the resources table and its index exist.
// Fields:
// - id varchar(32) PRIMARY KEY
// - owner_manager_id varchar(32) (indexed)
// - category varchar(32)
// - metadata jsonb
func (r *Repo) EnsureTable(ctx context.Context) error {
	var tblName sql.NullString
	if err := r.db.QueryRowContext(ctx, "SELECT to_regclass('public.resources')").Scan(&tblName); err != nil {
		return err
	}
	if !tblName.Valid {
		createTable := `CREATE TABLE resources (
			id varchar(32) PRIMARY KEY,
			owner_manager_id varchar(32) NOT NULL,
			category varchar(32) DEFAULT '',
			title TEXT NOT NULL,
			url TEXT NOT NULL,
			metadata jsonb DEFAULT '{}'::jsonb,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`
		if _, err := r.db.ExecContext(ctx, createTable); err != nil {
			return err
		}
	}

	var idxName sql.NullString
	if err := r.db.QueryRowContext(ctx, "SELECT to_regclass('public.idx_resources_owner')").Scan(&idxName); err != nil {
		return err
	}
	if !idxName.Valid {
		createIndex := `CREATE INDEX idx_resources_owner ON resources (owner_manager_id, category)`
		if _, err := r.db.ExecContext(ctx, createIndex); err != nil {
			return err
		}
	}
	return nil
}

type resourceRow struct {
	entity.Resource
	Metadata string `db:"metadata"`
}

func (row resourceRow) resource() entity.Resource {
	res := row.Resource
	if row.Metadata != "" && row.Metadata != "{}" {
		res.Metadata = json.RawMessage(row.Metadata)
	}
	return res
}

func (r *Repo) Create(ctx context.Context, res *entity.Resource) error {
	meta := "{}"
	if len(res.Metadata) > 0 {
		meta = string(res.Metadata)
	}
	const q = `INSERT INTO resources (id, owner_manager_id, category, title, url, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6::jsonb, $7)`
	_, err := r.db.ExecContext(ctx, q, res.ID, res.OwnerManagerID, res.Category, res.Title, res.URL, meta, res.CreatedAt)
	return err
}

// List returns the resources of a manager, newest first. An empty category
// matches all.
func (r *Repo) List(ctx context.Context, managerID, category string) ([]entity.Resource, error) {
	const q = `SELECT id, owner_manager_id, category, title, url, metadata, created_at FROM resources
		WHERE owner_manager_id=$1 AND ($2 = '' OR category=$2)
		ORDER BY created_at DESC, id`
	var rows []resourceRow
	if err := r.db.SelectContext(ctx, &rows, q, managerID, category); err != nil {
		return nil, err
	}
	out := make([]entity.Resource, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.resource())
	}
	return out, nil
}

func (r *Repo) Delete(ctx context.Context, managerID, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM resources WHERE id=$1 AND owner_manager_id=$2`, id, managerID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("resource %s: %w", id, apperr.ErrNotFound)
	}
	return nil
}
