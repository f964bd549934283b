package repo

import (
	"context"
	"encoding/json"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ovaphlow/pitchfork/service-coach-crm/internal/apperr"
	"github.com/ovaphlow/pitchfork/service-coach-crm/internal/resource/entity"
)

func newMockRepo(t *testing.T) (*Repo, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		db.Close()
	})
	return NewRepo(sqlx.NewDb(db, "postgres")), mock
}

func TestRepoCreateSendsMetadataAsJSONB(t *testing.T) {
	r, mock := newMockRepo(t)
	at := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectExec(regexp.QuoteMeta(`VALUES ($1, $2, $3, $4, $5, $6::jsonb, $7)`)).
		WithArgs("r1", "m1", "diet", "Plan", "https://x.example/p", "{}", at).
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, r.Create(context.Background(), &entity.Resource{
		ID: "r1", OwnerManagerID: "m1", Category: "diet", Title: "Plan", URL: "https://x.example/p", CreatedAt: at,
	}))

	mock.ExpectExec(regexp.QuoteMeta(`$6::jsonb`)).
		WithArgs("r2", "m1", "", "Clip", "https://x.example/c", `{"len":30}`, at).
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, r.Create(context.Background(), &entity.Resource{
		ID: "r2", OwnerManagerID: "m1", Title: "Clip", URL: "https://x.example/c",
		Metadata: json.RawMessage(`{"len":30}`), CreatedAt: at,
	}))
}

func TestRepoListFiltersCategory(t *testing.T) {
	r, mock := newMockRepo(t)
	at := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)
	cols := []string{"id", "owner_manager_id", "category", "title", "url", "metadata", "created_at"}

	mock.ExpectQuery(regexp.QuoteMeta(`WHERE owner_manager_id=$1 AND ($2 = '' OR category=$2)`)).
		WithArgs("m1", "").
		WillReturnRows(sqlmock.NewRows(cols).
			AddRow("r2", "m1", "video", "Clip", "https://x.example/c", `{"len":30}`, at).
			AddRow("r1", "m1", "diet", "Plan", "https://x.example/p", "{}", at))
	got, err := r.List(context.Background(), "m1", "")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.JSONEq(t, `{"len":30}`, string(got[0].Metadata))
	assert.Nil(t, got[1].Metadata)
}

func TestRepoDeleteMissing(t *testing.T) {
	r, mock := newMockRepo(t)
	q := regexp.QuoteMeta(`DELETE FROM resources WHERE id=$1 AND owner_manager_id=$2`)

	mock.ExpectExec(q).WithArgs("r1", "m1").WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, r.Delete(context.Background(), "m1", "r1"))

	// another manager's resource looks missing
	mock.ExpectExec(q).WithArgs("r1", "m2").WillReturnResult(sqlmock.NewResult(0, 0))
	assert.ErrorIs(t, r.Delete(context.Background(), "m2", "r1"), apperr.ErrNotFound)
}
