// Package contest runs transformation challenges owned by managers and
// ranks their participants from live customer data.
package contest

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-coach-crm/internal/apperr"
	"github.com/ovaphlow/pitchfork/service-coach-crm/internal/contest/entity"
	person "github.com/ovaphlow/pitchfork/service-coach-crm/internal/person/entity"
	"github.com/ovaphlow/pitchfork/service-coach-crm/internal/telemetry"
	"github.com/ovaphlow/pitchfork/service-coach-crm/pkg/utilities"
)

type Store interface {
	Create(ctx context.Context, c *entity.Contest) error
	Get(ctx context.Context, id string) (*entity.Contest, error)
	ListByManager(ctx context.Context, managerID string) ([]entity.Contest, error)
	ListActiveByManager(ctx context.Context, managerID string, now time.Time) ([]entity.Contest, error)
	AddParticipant(ctx context.Context, contestID string, p entity.Participant) error
}

// People is the read side of the person graph the engine needs.
type People interface {
	GetManager(ctx context.Context, id string) (*person.Manager, error)
	GetCustomer(ctx context.Context, id string) (*person.Customer, error)
}

type ManagerResolver interface {
	FindNearestManager(ctx context.Context, startID string) (string, bool, error)
}

type CreateInput struct {
	Title    string      `json:"title" validate:"required,max=200"`
	Type     entity.Type `json:"type" validate:"required,oneof=fat-loss muscle-gain weight-loss"`
	StartsAt time.Time   `json:"starts_at" validate:"required"`
	EndsAt   time.Time   `json:"ends_at" validate:"required"`
	// IsActive defaults to true when omitted.
	IsActive *bool `json:"is_active,omitempty"`
}

type Proof struct {
	URL  string `json:"proof_url,omitempty" validate:"omitempty,url"`
	Kind string `json:"proof_kind,omitempty" validate:"omitempty,oneof=image video"`
}

// Entry is one leaderboard row. Change is rounded for display; Score keeps
// full precision and drives the ordering.
type Entry struct {
	Rank        int                `json:"rank"`
	Participant entity.Participant `json:"participant"`
	Change      float64            `json:"change"`
	Score       float64            `json:"score"`
}

type Service struct {
	store    Store
	people   People
	resolver ManagerResolver
	logger   *zap.SugaredLogger
	now      func() time.Time
}

func NewService(store Store, people People, resolver ManagerResolver, logger *zap.SugaredLogger) *Service {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Service{store: store, people: people, resolver: resolver, logger: logger, now: time.Now}
}

func (s *Service) Create(ctx context.Context, managerID string, in CreateInput) (*entity.Contest, error) {
	if !in.Type.Valid() {
		return nil, fmt.Errorf("contest type %q: %w", in.Type, apperr.ErrInvalidArgument)
	}
	if !in.EndsAt.After(in.StartsAt) {
		return nil, fmt.Errorf("contest must end after it starts: %w", apperr.ErrInvalidArgument)
	}
	if _, err := s.people.GetManager(ctx, managerID); err != nil {
		return nil, err
	}
	active := true
	if in.IsActive != nil {
		active = *in.IsActive
	}
	c := &entity.Contest{
		ID:             utilities.NewKSUID(),
		Title:          in.Title,
		Type:           in.Type,
		StartsAt:       in.StartsAt,
		EndsAt:         in.EndsAt,
		IsActive:       active,
		OwnerManagerID: managerID,
		Participants:   []entity.Participant{},
		CreatedAt:      s.now().UTC(),
	}
	if err := s.store.Create(ctx, c); err != nil {
		return nil, fmt.Errorf("create contest: %w", err)
	}
	s.logger.Infow("contest created", "contest", c.ID, "manager", managerID, "type", c.Type)
	return c, nil
}

func (s *Service) Get(ctx context.Context, id string) (*entity.Contest, error) {
	return s.store.Get(ctx, id)
}

// Enroll adds customerID to the contest with a copy of its current
// composition as the baseline. A customer enrolls at most once per contest.
func (s *Service) Enroll(ctx context.Context, contestID, customerID string, proof Proof) (*entity.Participant, error) {
	c, err := s.store.Get(ctx, contestID)
	if err != nil {
		return nil, err
	}
	if c.HasParticipant(customerID) {
		return nil, fmt.Errorf("customer %s in contest %s: %w", customerID, contestID, apperr.ErrAlreadyEnrolled)
	}
	cust, err := s.people.GetCustomer(ctx, customerID)
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()
	snap := entity.Snapshot{
		Composition: cust.Composition,
		ProofURL:    proof.URL,
		ProofKind:   proof.Kind,
		CapturedAt:  now,
	}
	p := entity.Participant{
		CustomerID:      customerID,
		StartSnapshot:   snap,
		CurrentSnapshot: snap,
		EnrolledAt:      now,
	}
	if cust.CoachID != nil {
		p.CoachID = *cust.CoachID
	}
	if err := s.store.AddParticipant(ctx, contestID, p); err != nil {
		return nil, err
	}
	s.logger.Infow("customer enrolled", "contest", contestID, "customer", customerID)
	return &p, nil
}

// EnrollByCoach enrolls a customer on behalf of the coach that owns it. The
// contest must belong to the coach's nearest manager.
func (s *Service) EnrollByCoach(ctx context.Context, coachID, contestID, customerID string, proof Proof) (*entity.Participant, error) {
	c, err := s.store.Get(ctx, contestID)
	if err != nil {
		return nil, err
	}
	if err := s.authorize(ctx, Viewer{ID: coachID, Role: person.RoleCoach}, c); err != nil {
		return nil, err
	}
	cust, err := s.people.GetCustomer(ctx, customerID)
	if err != nil {
		return nil, err
	}
	if !cust.OwnedBy(coachID) {
		return nil, fmt.Errorf("customer %s is not coached by %s: %w", customerID, coachID, apperr.ErrForbidden)
	}
	return s.Enroll(ctx, contestID, customerID, proof)
}

// Viewer is the caller a contest read is checked against.
type Viewer struct {
	ID    string
	Role  person.Role
	Admin bool
}

// authorize lets through operators, the owning manager and coaches whose
// nearest manager owns c.
func (s *Service) authorize(ctx context.Context, v Viewer, c *entity.Contest) error {
	if v.Admin {
		return nil
	}
	switch v.Role {
	case person.RoleManager:
		if v.ID == c.OwnerManagerID {
			return nil
		}
	case person.RoleCoach:
		managerID, found, err := s.resolver.FindNearestManager(ctx, v.ID)
		if err != nil {
			return err
		}
		if found && managerID == c.OwnerManagerID {
			return nil
		}
	}
	return fmt.Errorf("%s %s may not access contest %s: %w", v.Role, v.ID, c.ID, apperr.ErrForbidden)
}

// GetFor returns the contest when v may see it.
func (s *Service) GetFor(ctx context.Context, v Viewer, id string) (*entity.Contest, error) {
	c, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.authorize(ctx, v, c); err != nil {
		return nil, err
	}
	return c, nil
}

// LeaderboardFor is Leaderboard restricted to viewers allowed to see the
// contest.
func (s *Service) LeaderboardFor(ctx context.Context, v Viewer, contestID string, now time.Time) ([]Entry, error) {
	if _, err := s.GetFor(ctx, v, contestID); err != nil {
		return nil, err
	}
	return s.Leaderboard(ctx, contestID, now)
}

// Leaderboard ranks participants by the improvement between their enrollment
// snapshot and the customer's live composition. Participants whose customer
// no longer exists are left out.
func (s *Service) Leaderboard(ctx context.Context, contestID string, now time.Time) ([]Entry, error) {
	c, err := s.store.Get(ctx, contestID)
	if err != nil {
		return nil, err
	}
	entries := make([]Entry, 0, len(c.Participants))
	for _, p := range c.Participants {
		cust, err := s.people.GetCustomer(ctx, p.CustomerID)
		if errors.Is(err, apperr.ErrNotFound) {
			telemetry.LeaderboardSkipped.Inc()
			s.logger.Warnw("leaderboard participant missing", "contest", contestID, "customer", p.CustomerID)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("load participant %s: %w", p.CustomerID, err)
		}
		score := c.Type.Change(p.StartSnapshot.Composition, cust.Composition)
		p.CurrentSnapshot = entity.Snapshot{Composition: cust.Composition, CapturedAt: now.UTC()}
		entries = append(entries, Entry{Participant: p, Change: round2(score), Score: score})
	}

	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if !a.Participant.EnrolledAt.Equal(b.Participant.EnrolledAt) {
			return a.Participant.EnrolledAt.Before(b.Participant.EnrolledAt)
		}
		return a.Participant.CustomerID < b.Participant.CustomerID
	})
	for i := range entries {
		entries[i].Rank = i + 1
	}
	return entries, nil
}

// ListForCoach returns the active contests of the coach's nearest manager.
// A coach with no manager above it sees none.
func (s *Service) ListForCoach(ctx context.Context, coachID string, now time.Time) ([]entity.Contest, error) {
	managerID, found, err := s.resolver.FindNearestManager(ctx, coachID)
	if err != nil {
		return nil, err
	}
	if !found {
		return []entity.Contest{}, nil
	}
	return s.store.ListActiveByManager(ctx, managerID, now)
}

func (s *Service) ListForManager(ctx context.Context, managerID string) ([]entity.Contest, error) {
	return s.store.ListByManager(ctx, managerID)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
