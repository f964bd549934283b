package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ovaphlow/pitchfork/service-coach-crm/internal/apperr"
	"github.com/ovaphlow/pitchfork/service-coach-crm/internal/person/entity"
)

func TestSignAndParse(t *testing.T) {
	v := NewVerifier("s3cret", "coach-crm")
	tok, err := v.Sign("42", entity.RoleCoach, time.Minute)
	require.NoError(t, err)

	p, err := v.Parse(tok)
	require.NoError(t, err)
	assert.Equal(t, Principal{PersonID: "42", Role: entity.RoleCoach}, p)

	_, err = NewVerifier("other", "coach-crm").Parse(tok)
	assert.ErrorIs(t, err, ErrUnauthenticated)

	_, err = NewVerifier("s3cret", "someone-else").Parse(tok)
	assert.ErrorIs(t, err, ErrUnauthenticated)
}

func TestParseRejectsExpired(t *testing.T) {
	v := NewVerifier("s3cret", "coach-crm")
	tok, err := v.Sign("42", entity.RoleCoach, -time.Minute)
	require.NoError(t, err)
	_, err = v.Parse(tok)
	assert.ErrorIs(t, err, ErrUnauthenticated)
}

func TestMiddleware(t *testing.T) {
	v := NewVerifier("s3cret", "coach-crm")
	var seen Principal
	h := v.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = FromContext(r.Context())
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	tok, err := v.Sign("m1", entity.RoleManager, time.Minute)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "m1", seen.PersonID)
	assert.Equal(t, entity.RoleManager, seen.Role)
}

func TestAdminToken(t *testing.T) {
	v := NewVerifier("s3cret", "coach-crm")
	tok, err := v.SignAdmin("ops", time.Minute)
	require.NoError(t, err)

	p, err := v.Parse(tok)
	require.NoError(t, err)
	assert.True(t, p.Admin)
	assert.Equal(t, "ops", p.PersonID)

	ctx := WithPrincipal(context.Background(), p)
	_, err = RequireAdmin(ctx)
	assert.NoError(t, err)
	_, err = Require(ctx, entity.RoleCoach)
	assert.ErrorIs(t, err, apperr.ErrForbidden)
}

func TestRequire(t *testing.T) {
	_, err := Require(context.Background(), entity.RoleCoach)
	assert.ErrorIs(t, err, apperr.ErrForbidden)

	ctx := WithPrincipal(context.Background(), Principal{PersonID: "c1", Role: entity.RoleCoach})
	p, err := Require(ctx, entity.RoleManager, entity.RoleCoach)
	require.NoError(t, err)
	assert.Equal(t, "c1", p.PersonID)

	_, err = Require(ctx, entity.RoleManager)
	assert.ErrorIs(t, err, apperr.ErrForbidden)
	_, err = RequireAdmin(ctx)
	assert.ErrorIs(t, err, apperr.ErrForbidden)
}
