// Package stats computes a coach's dashboard numbers from its direct
// customers. Nothing is cached: every call reads the customer set once and
// recomputes all values.
package stats

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-coach-crm/internal/person/entity"
)

// ChurnWindow is how long an active customer may go without attendance
// before counting as a churn risk.
const ChurnWindow = 7 * 24 * time.Hour

type Stats struct {
	TotalRevenue  float64 `json:"total_revenue"`
	ActiveLeads   int     `json:"active_leads"`
	ChurnRisk     int     `json:"churn_risk"`
	MonthlyGrowth int     `json:"monthly_growth"`
	TotalClients  int     `json:"total_clients"`

	PipelineBreakdown  map[entity.PipelineStage]int `json:"pipeline_breakdown"`
	PendingFollowUps   int                          `json:"pending_follow_ups"`
	CollectedThisMonth float64                      `json:"collected_this_month"`
}

type CustomerSource interface {
	GetCoach(ctx context.Context, id string) (*entity.Coach, error)
	ListCustomersByCoach(ctx context.Context, coachID string) ([]entity.Customer, error)
}

type Engine struct {
	store  CustomerSource
	logger *zap.SugaredLogger
}

func NewEngine(store CustomerSource, logger *zap.SugaredLogger) *Engine {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Engine{store: store, logger: logger}
}

// ComputeStats returns the snapshot for coachID as of now. The coach must
// exist and be a coach.
func (e *Engine) ComputeStats(ctx context.Context, coachID string, now time.Time) (Stats, error) {
	if _, err := e.store.GetCoach(ctx, coachID); err != nil {
		return Stats{}, err
	}
	customers, err := e.store.ListCustomersByCoach(ctx, coachID)
	if err != nil {
		return Stats{}, err
	}
	s := Compute(customers, now)
	e.logger.Debugw("stats computed", "coach", coachID, "clients", s.TotalClients)
	return s, nil
}

// MonthStart is midnight on the first day of now's month, in now's location.
func MonthStart(now time.Time) time.Time {
	return time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
}

// Compute derives Stats from one coach's customers.
func Compute(customers []entity.Customer, now time.Time) Stats {
	monthStart := MonthStart(now)
	s := Stats{
		TotalClients:      len(customers),
		PipelineBreakdown: make(map[entity.PipelineStage]int, len(entity.PipelineStages)),
	}
	for _, stage := range entity.PipelineStages {
		s.PipelineBreakdown[stage] = 0
	}

	for i := range customers {
		c := &customers[i]
		switch c.Status {
		case entity.StatusActive:
			if c.PackPrice != nil {
				s.TotalRevenue += *c.PackPrice
			}
			if atChurnRisk(c, now) {
				s.ChurnRisk++
			}
		case entity.StatusLead:
			s.ActiveLeads++
		}
		if !c.CreatedAt.Before(monthStart) {
			s.MonthlyGrowth++
		}
		if c.PipelineStage.Valid() {
			s.PipelineBreakdown[c.PipelineStage]++
		}
		if c.FollowUp.Pending() {
			s.PendingFollowUps++
		}
		for _, p := range c.PaymentLedger {
			if !p.PaidAt.Before(monthStart) && !p.PaidAt.After(now) {
				s.CollectedThisMonth += p.Amount
			}
		}
	}
	return s
}

// atChurnRisk: no attendance at all, or the latest is older than ChurnWindow.
func atChurnRisk(c *entity.Customer, now time.Time) bool {
	last, ok := c.LastAttendance()
	if !ok {
		return true
	}
	return now.Sub(last) > ChurnWindow
}
