package resource

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ovaphlow/pitchfork/service-coach-crm/internal/apperr"
	"github.com/ovaphlow/pitchfork/service-coach-crm/internal/auth"
	"github.com/ovaphlow/pitchfork/service-coach-crm/internal/hierarchy"
	"github.com/ovaphlow/pitchfork/service-coach-crm/internal/person/entity"
	personrepo "github.com/ovaphlow/pitchfork/service-coach-crm/internal/person/repo"
	resentity "github.com/ovaphlow/pitchfork/service-coach-crm/internal/resource/entity"
	"github.com/ovaphlow/pitchfork/service-coach-crm/internal/resource/repo"
)

func strp(s string) *string { return &s }

// m1 <- c1 <- c2, and c3 without upline.
func newService(t *testing.T) *Service {
	t.Helper()
	ctx := context.Background()
	people := personrepo.NewMemoryRepo()
	require.NoError(t, people.CreateManager(ctx, &entity.Manager{Person: entity.Person{ID: "m1", MobileNumber: "1", Role: entity.RoleManager}}))
	require.NoError(t, people.CreateCoach(ctx, &entity.Coach{Person: entity.Person{ID: "c1", MobileNumber: "2", Role: entity.RoleCoach, UplineID: strp("m1")}}))
	require.NoError(t, people.CreateCoach(ctx, &entity.Coach{Person: entity.Person{ID: "c2", MobileNumber: "3", Role: entity.RoleCoach, UplineID: strp("c1")}}))
	require.NoError(t, people.CreateCoach(ctx, &entity.Coach{Person: entity.Person{ID: "c3", MobileNumber: "4", Role: entity.RoleCoach}}))
	resolver := hierarchy.NewResolver(people, nil, hierarchy.DefaultMaxHops)
	return NewService(repo.NewMemoryRepo(), people, resolver, nil)
}

func TestListForCoachUsesNearestManager(t *testing.T) {
	s := newService(t)
	ctx := context.Background()
	_, err := s.Create(ctx, "m1", CreateInput{Category: "nutrition", Title: "Meal plan", URL: "https://example.com/meal"})
	require.NoError(t, err)
	_, err = s.Create(ctx, "m1", CreateInput{Category: "training", Title: "Warmup", URL: "https://example.com/warmup"})
	require.NoError(t, err)

	got, err := s.ListForCoach(ctx, "c2", "")
	require.NoError(t, err)
	assert.Len(t, got, 2)

	got, err = s.ListForCoach(ctx, "c1", "nutrition")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Meal plan", got[0].Title)

	got, err = s.ListForCoach(ctx, "c3", "")
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)

	_, err = s.ListForCoach(ctx, "ghost", "")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestCreateRequiresManager(t *testing.T) {
	s := newService(t)
	_, err := s.Create(context.Background(), "c1", CreateInput{Title: "x", URL: "https://example.com"})
	assert.ErrorIs(t, err, apperr.ErrInvalidRole)
}

func TestDeleteOnlyOwn(t *testing.T) {
	s := newService(t)
	ctx := context.Background()
	res, err := s.Create(ctx, "m1", CreateInput{Title: "x", URL: "https://example.com"})
	require.NoError(t, err)

	assert.ErrorIs(t, s.Delete(ctx, "m2", res.ID), apperr.ErrNotFound)
	require.NoError(t, s.Delete(ctx, "m1", res.ID))
	assert.ErrorIs(t, s.Delete(ctx, "m1", res.ID), apperr.ErrNotFound)
}

func TestHandler(t *testing.T) {
	h := NewHandler(newService(t), nil)
	as := func(r *http.Request, id string, role entity.Role) *http.Request {
		return r.WithContext(auth.WithPrincipal(r.Context(), auth.Principal{PersonID: id, Role: role}))
	}

	rec := httptest.NewRecorder()
	h.Create(rec, as(httptest.NewRequest(http.MethodPost, "/resources", strings.NewReader(`{"title":"x","url":"not a url"}`)), "m1", entity.RoleManager))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	h.Create(rec, as(httptest.NewRequest(http.MethodPost, "/resources", strings.NewReader(`{"title":"x","url":"https://example.com/x"}`)), "c1", entity.RoleCoach))
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = httptest.NewRecorder()
	h.Create(rec, as(httptest.NewRequest(http.MethodPost, "/resources", strings.NewReader(`{"title":"x","url":"https://example.com/x","metadata":{"lang":"en"}}`)), "m1", entity.RoleManager))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = httptest.NewRecorder()
	h.List(rec, as(httptest.NewRequest(http.MethodGet, "/resources", nil), "c2", entity.RoleCoach))
	require.Equal(t, http.StatusOK, rec.Code)
	var got []resentity.Resource
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Len(t, got, 1)
	assert.JSONEq(t, `{"lang":"en"}`, string(got[0].Metadata))
}
