package stats

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ovaphlow/pitchfork/service-coach-crm/internal/apperr"
	"github.com/ovaphlow/pitchfork/service-coach-crm/internal/auth"
	"github.com/ovaphlow/pitchfork/service-coach-crm/internal/person/entity"
	"github.com/ovaphlow/pitchfork/service-coach-crm/internal/person/repo"
)

var now = time.Date(2026, 6, 15, 12, 0, 0, 0, time.UTC)

func price(v float64) *float64 { return &v }

type seed struct {
	store *repo.MemoryRepo
	n     int
}

func newSeed(t *testing.T) *seed {
	s := &seed{store: repo.NewMemoryRepo()}
	coach := &entity.Coach{Person: entity.Person{ID: "coach", MobileNumber: "1", Role: entity.RoleCoach}}
	require.NoError(t, s.store.CreateCoach(context.Background(), coach))
	return s
}

func (s *seed) add(t *testing.T, c entity.Customer) {
	s.n++
	coachID := "coach"
	c.ID = "u" + string(rune('a'+s.n))
	c.MobileNumber = "9" + string(rune('0'+s.n))
	c.Role = entity.RoleCustomer
	if c.CoachID == nil {
		c.CoachID = &coachID
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now.AddDate(0, -3, 0)
	}
	require.NoError(t, s.store.CreateCustomer(context.Background(), &c))
}

func TestComputeStatsBasicMix(t *testing.T) {
	s := newSeed(t)
	recent := []time.Time{now.Add(-24 * time.Hour)}
	s.add(t, entity.Customer{Status: entity.StatusActive, PackPrice: price(100), AttendanceLog: recent})
	s.add(t, entity.Customer{Status: entity.StatusActive, PackPrice: price(200), AttendanceLog: recent})
	s.add(t, entity.Customer{Status: entity.StatusLead})
	s.add(t, entity.Customer{Status: entity.StatusActive})

	got, err := NewEngine(s.store, nil).ComputeStats(context.Background(), "coach", now)
	require.NoError(t, err)
	assert.Equal(t, 300.0, got.TotalRevenue)
	assert.Equal(t, 1, got.ActiveLeads)
	assert.Equal(t, 1, got.ChurnRisk)
	assert.Equal(t, 4, got.TotalClients)
	assert.Equal(t, 0, got.MonthlyGrowth)
}

func TestComputeChurnWindow(t *testing.T) {
	customers := []entity.Customer{
		{Status: entity.StatusActive, AttendanceLog: []time.Time{now.Add(-ChurnWindow)}},
		{Status: entity.StatusActive, AttendanceLog: []time.Time{now.Add(-ChurnWindow - time.Minute)}},
		{Status: entity.StatusActive, AttendanceLog: []time.Time{now.Add(-30 * 24 * time.Hour), now.Add(-time.Hour)}},
		// joined today, never attended: still at risk
		{Status: entity.StatusActive, Person: entity.Person{CreatedAt: now}},
		// inactive customers never count
		{Status: entity.StatusInactive},
	}
	got := Compute(customers, now)
	assert.Equal(t, 2, got.ChurnRisk)
}

func TestComputeMonthlyGrowthUsesLocalMidnight(t *testing.T) {
	loc := time.FixedZone("UTC+5", 5*60*60)
	localNow := time.Date(2026, 6, 15, 9, 0, 0, 0, loc)
	start := time.Date(2026, 6, 1, 0, 0, 0, 0, loc)

	customers := []entity.Customer{
		{Person: entity.Person{CreatedAt: start}},
		{Person: entity.Person{CreatedAt: start.Add(-time.Second)}},
		// 2026-05-31 20:00 UTC is already June 1st in UTC+5
		{Person: entity.Person{CreatedAt: time.Date(2026, 5, 31, 20, 0, 0, 0, time.UTC)}},
		{Person: entity.Person{CreatedAt: localNow}},
	}
	got := Compute(customers, localNow)
	assert.Equal(t, 3, got.MonthlyGrowth)
	assert.Equal(t, start, MonthStart(localNow))
}

func TestComputeIgnoresPriceOnNonActive(t *testing.T) {
	got := Compute([]entity.Customer{
		{Status: entity.StatusTrial, PackPrice: price(80)},
		{Status: entity.StatusActive, PackPrice: nil, AttendanceLog: []time.Time{now}},
	}, now)
	assert.Equal(t, 0.0, got.TotalRevenue)
	assert.Equal(t, 0, got.ChurnRisk)
}

func TestComputeSupplementaryCounters(t *testing.T) {
	got := Compute([]entity.Customer{
		{PipelineStage: entity.StageNew, FollowUp: entity.FollowUp{Day1: true}},
		{PipelineStage: entity.StageConverted, FollowUp: entity.FollowUp{Day1: true, Day2: true, Day3: true},
			PaymentLedger: []entity.Payment{
				{Amount: 40, PaidAt: MonthStart(now)},
				{Amount: 60, PaidAt: MonthStart(now).Add(-time.Second)},
			}},
		{PipelineStage: entity.StageConverted},
	}, now)
	assert.Equal(t, 1, got.PipelineBreakdown[entity.StageNew])
	assert.Equal(t, 2, got.PipelineBreakdown[entity.StageConverted])
	assert.Equal(t, 0, got.PipelineBreakdown[entity.StageLost])
	assert.Equal(t, 2, got.PendingFollowUps)
	assert.Equal(t, 40.0, got.CollectedThisMonth)
}

func TestComputeStatsRequiresCoach(t *testing.T) {
	s := newSeed(t)
	s.add(t, entity.Customer{Status: entity.StatusActive})
	e := NewEngine(s.store, nil)

	_, err := e.ComputeStats(context.Background(), "missing", now)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	_, err = e.ComputeStats(context.Background(), "ub", now)
	assert.ErrorIs(t, err, apperr.ErrInvalidRole)
}

func TestHandlerMine(t *testing.T) {
	s := newSeed(t)
	s.add(t, entity.Customer{Status: entity.StatusLead})
	h := NewHandler(NewEngine(s.store, nil), nil)
	h.now = func() time.Time { return now }

	req := httptest.NewRequest(http.MethodGet, "/stats", nil)
	req = req.WithContext(auth.WithPrincipal(req.Context(), auth.Principal{PersonID: "coach", Role: entity.RoleCoach}))
	rec := httptest.NewRecorder()
	h.Mine(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body Stats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 1, body.ActiveLeads)
	assert.Equal(t, 1, body.TotalClients)
}
