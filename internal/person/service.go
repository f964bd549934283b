// Package person holds the signup flows and the customer operations coaches
// perform. Every coach or manager signup triggers a stitching pass.
package person

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-coach-crm/internal/apperr"
	"github.com/ovaphlow/pitchfork/service-coach-crm/internal/hierarchy"
	"github.com/ovaphlow/pitchfork/service-coach-crm/internal/person/entity"
	"github.com/ovaphlow/pitchfork/service-coach-crm/pkg/utilities"
)

// Store is the person repository surface the service uses. Both
// repo.PersonRepo and repo.MemoryRepo satisfy it.
type Store interface {
	hierarchy.Graph
	CreateCoach(ctx context.Context, c *entity.Coach) error
	CreateManager(ctx context.Context, m *entity.Manager) error
	CreateCustomer(ctx context.Context, c *entity.Customer) error
	GetCoach(ctx context.Context, id string) (*entity.Coach, error)
	GetCustomer(ctx context.Context, id string) (*entity.Customer, error)
	ListByUpline(ctx context.Context, uplineID string) ([]entity.Person, error)
	ListCustomersByCoach(ctx context.Context, coachID string) ([]entity.Customer, error)
	SetUpline(ctx context.Context, id, uplineID string) error
	UpdateCustomer(ctx context.Context, c *entity.Customer) error
	AppendAttendance(ctx context.Context, id string, at time.Time) error
	AppendPayment(ctx context.Context, id string, p entity.Payment) error
	DeleteCustomer(ctx context.Context, id string) error
}

// Service orchestrates signup and customer lifecycle flows.
type Service struct {
	store    Store
	resolver *hierarchy.Resolver
	stitcher *hierarchy.Stitcher
	ids      *utilities.IDGenerator
	logger   *zap.SugaredLogger
	now      func() time.Time
}

func NewService(store Store, resolver *hierarchy.Resolver, stitcher *hierarchy.Stitcher, ids *utilities.IDGenerator, logger *zap.SugaredLogger) *Service {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	if ids == nil {
		ids = utilities.NewIDGenerator(1)
	}
	return &Service{store: store, resolver: resolver, stitcher: stitcher, ids: ids, logger: logger, now: time.Now}
}

type SignupCoachInput struct {
	Name               string `json:"name" validate:"max=120"`
	MobileNumber       string `json:"mobile_number" validate:"required,max=32"`
	UplineMobile       string `json:"upline_mobile" validate:"max=32"`
	WellnessCenterName string `json:"wellness_center_name" validate:"max=200"`
}

type SignupManagerInput struct {
	Name               string                     `json:"name" validate:"max=120"`
	MobileNumber       string                     `json:"mobile_number" validate:"required,max=32"`
	UplineMobile       string                     `json:"upline_mobile" validate:"max=32"`
	CandidateDownlines []entity.CandidateDownline `json:"candidate_downlines" validate:"max=500"`
}

// SignupResult carries the new id and what the stitching pass did.
type SignupResult struct {
	ID   string      `json:"id"`
	Role entity.Role `json:"role"`
	hierarchy.StitchReport
}

// ErrSelfUpline is returned when a signup names its own number as upline.
var ErrSelfUpline = fmt.Errorf("upline mobile is the signup's own number: %w", apperr.ErrInvalidArgument)

func (s *Service) newPerson(name, mobile, upline string, role entity.Role) (entity.Person, error) {
	m := utilities.NormalizeMobile(mobile)
	if m == "" {
		return entity.Person{}, fmt.Errorf("mobile number %q: %w", mobile, apperr.ErrInvalidArgument)
	}
	now := s.now().UTC()
	p := entity.Person{
		ID:           s.ids.NewID(),
		Name:         name,
		MobileNumber: m,
		Role:         role,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if hint := utilities.NormalizeMobile(upline); hint != "" {
		if hint == m {
			return entity.Person{}, ErrSelfUpline
		}
		p.UplineMobileHint = &hint
	}
	return p, nil
}

// SignupCoach stores a coach and stitches it into the graph. The upline is
// given as a mobile number and may belong to someone who has not signed up.
func (s *Service) SignupCoach(ctx context.Context, in SignupCoachInput) (*SignupResult, error) {
	p, err := s.newPerson(in.Name, in.MobileNumber, in.UplineMobile, entity.RoleCoach)
	if err != nil {
		return nil, err
	}
	c := &entity.Coach{Person: p, WellnessCenterName: in.WellnessCenterName, IsActive: true}
	if err := s.store.CreateCoach(ctx, c); err != nil {
		return nil, fmt.Errorf("signup coach: %w", err)
	}
	s.logger.Infow("coach signed up", "id", p.ID, "upline_hint", p.UplineMobileHint)
	return s.stitch(ctx, &c.Person), nil
}

// SignupManager stores a manager with the downlines it declared and
// stitches it into the graph.
func (s *Service) SignupManager(ctx context.Context, in SignupManagerInput) (*SignupResult, error) {
	p, err := s.newPerson(in.Name, in.MobileNumber, in.UplineMobile, entity.RoleManager)
	if err != nil {
		return nil, err
	}
	m := &entity.Manager{Person: p, VerifiedDownlines: []string{}}
	for _, cd := range in.CandidateDownlines {
		hint := utilities.NormalizeMobile(cd.MobileHint)
		if hint == "" || m.IsCandidate(hint) {
			continue
		}
		m.CandidateDownlines = append(m.CandidateDownlines, entity.CandidateDownline{MobileHint: hint, DeclaredLevel: cd.DeclaredLevel})
	}
	if err := s.store.CreateManager(ctx, m); err != nil {
		return nil, fmt.Errorf("signup manager: %w", err)
	}
	s.logger.Infow("manager signed up", "id", p.ID, "candidates", len(m.CandidateDownlines))
	return s.stitch(ctx, &m.Person), nil
}

func (s *Service) stitch(ctx context.Context, p *entity.Person) *SignupResult {
	report := s.stitcher.Stitch(ctx, p)
	if len(report.Failures) > 0 {
		s.logger.Warnw("signup stitched with failures", "id", p.ID, "failures", len(report.Failures))
	}
	return &SignupResult{ID: p.ID, Role: p.Role, StitchReport: report}
}

// Restitch re-runs the stitching pass for an existing coach or manager.
func (s *Service) Restitch(ctx context.Context, id string) (hierarchy.StitchReport, error) {
	return s.stitcher.Restitch(ctx, id)
}

func (s *Service) Get(ctx context.Context, id string) (*entity.Person, error) {
	return s.store.GetPerson(ctx, id)
}

// Downlines lists the nodes whose upline is id.
func (s *Service) Downlines(ctx context.Context, id string) ([]entity.Person, error) {
	if _, err := s.store.GetPerson(ctx, id); err != nil {
		return nil, err
	}
	return s.store.ListByUpline(ctx, id)
}

// Chain returns the upline chain of id up to its nearest manager.
func (s *Service) Chain(ctx context.Context, id string) ([]entity.Person, error) {
	return s.resolver.Chain(ctx, id)
}

// RepairUpline points id at uplineID, overwriting any previous link. It
// refuses links to customers, to itself and links that would close a loop.
func (s *Service) RepairUpline(ctx context.Context, id, uplineID string) (*entity.Person, error) {
	if id == uplineID {
		return nil, fmt.Errorf("%s cannot be its own upline: %w", id, apperr.ErrInvalidArgument)
	}
	p, err := s.store.GetPerson(ctx, id)
	if err != nil {
		return nil, err
	}
	if !p.Role.CanBeUpline() {
		return nil, fmt.Errorf("%s %s has no upline: %w", p.Role, id, apperr.ErrInvalidRole)
	}
	target, err := s.store.GetPerson(ctx, uplineID)
	if err != nil {
		return nil, err
	}
	if !target.Role.CanBeUpline() {
		return nil, fmt.Errorf("upline %s is a %s: %w", uplineID, target.Role, apperr.ErrInvalidRole)
	}
	cycle, err := s.resolver.WouldCycle(ctx, id, uplineID)
	if err != nil {
		return nil, err
	}
	if cycle {
		return nil, fmt.Errorf("%s is above %s: %w", id, uplineID, apperr.ErrInvalidArgument)
	}
	if err := s.store.SetUpline(ctx, id, uplineID); err != nil {
		return nil, err
	}
	s.logger.Infow("upline repaired", "id", id, "from", p.UplineID, "to", uplineID)
	return s.store.GetPerson(ctx, id)
}

type CustomerInput struct {
	Name          string                `json:"name" validate:"required,max=120"`
	MobileNumber  string                `json:"mobile_number" validate:"required,max=32"`
	Status        entity.CustomerStatus `json:"status" validate:"omitempty,oneof=active inactive trial lead"`
	PipelineStage entity.PipelineStage  `json:"pipeline_stage" validate:"omitempty,oneof=New Contacted Trial Converted Lost"`
	PackPrice     *float64              `json:"pack_price" validate:"omitempty,gte=0"`
	Composition   entity.Composition    `json:"composition"`
}

// CreateCustomer adds a customer under coachID. New customers default to a
// lead in the New stage.
func (s *Service) CreateCustomer(ctx context.Context, coachID string, in CustomerInput) (*entity.Customer, error) {
	if _, err := s.store.GetCoach(ctx, coachID); err != nil {
		return nil, err
	}
	m := utilities.NormalizeMobile(in.MobileNumber)
	if m == "" {
		return nil, fmt.Errorf("mobile number %q: %w", in.MobileNumber, apperr.ErrInvalidArgument)
	}
	if in.Status == "" {
		in.Status = entity.StatusLead
	}
	if in.PipelineStage == "" {
		in.PipelineStage = entity.StageNew
	}
	if !in.Status.Valid() || !in.PipelineStage.Valid() {
		return nil, fmt.Errorf("status %q stage %q: %w", in.Status, in.PipelineStage, apperr.ErrInvalidArgument)
	}
	now := s.now().UTC()
	c := &entity.Customer{
		Person: entity.Person{
			ID:           s.ids.NewID(),
			Name:         in.Name,
			MobileNumber: m,
			Role:         entity.RoleCustomer,
			CreatedAt:    now,
			UpdatedAt:    now,
		},
		CoachID:       &coachID,
		Status:        in.Status,
		PipelineStage: in.PipelineStage,
		PackPrice:     in.PackPrice,
		Composition:   in.Composition,
	}
	if err := s.store.CreateCustomer(ctx, c); err != nil {
		return nil, fmt.Errorf("create customer: %w", err)
	}
	return c, nil
}

// owned loads a customer and checks it belongs to coachID.
func (s *Service) owned(ctx context.Context, coachID, customerID string) (*entity.Customer, error) {
	c, err := s.store.GetCustomer(ctx, customerID)
	if err != nil {
		return nil, err
	}
	if !c.OwnedBy(coachID) {
		return nil, fmt.Errorf("customer %s is not coached by %s: %w", customerID, coachID, apperr.ErrForbidden)
	}
	return c, nil
}

func (s *Service) GetCustomer(ctx context.Context, coachID, customerID string) (*entity.Customer, error) {
	return s.owned(ctx, coachID, customerID)
}

func (s *Service) ListCustomers(ctx context.Context, coachID string) ([]entity.Customer, error) {
	if _, err := s.store.GetCoach(ctx, coachID); err != nil {
		return nil, err
	}
	return s.store.ListCustomersByCoach(ctx, coachID)
}

// RecordAttendance appends a visit. A zero at means now.
func (s *Service) RecordAttendance(ctx context.Context, coachID, customerID string, at time.Time) error {
	if _, err := s.owned(ctx, coachID, customerID); err != nil {
		return err
	}
	if at.IsZero() {
		at = s.now()
	}
	return s.store.AppendAttendance(ctx, customerID, at.UTC())
}

func (s *Service) RecordPayment(ctx context.Context, coachID, customerID string, p entity.Payment) error {
	if p.Amount <= 0 {
		return fmt.Errorf("payment amount %v: %w", p.Amount, apperr.ErrInvalidArgument)
	}
	if _, err := s.owned(ctx, coachID, customerID); err != nil {
		return err
	}
	if p.PaidAt.IsZero() {
		p.PaidAt = s.now()
	}
	p.PaidAt = p.PaidAt.UTC()
	return s.store.AppendPayment(ctx, customerID, p)
}

func (s *Service) UpdateComposition(ctx context.Context, coachID, customerID string, comp entity.Composition) (*entity.Customer, error) {
	return s.mutate(ctx, coachID, customerID, func(c *entity.Customer) error {
		c.Composition = comp
		return nil
	})
}

type StatusInput struct {
	Status        entity.CustomerStatus `json:"status" validate:"omitempty,oneof=active inactive trial lead"`
	PipelineStage entity.PipelineStage  `json:"pipeline_stage" validate:"omitempty,oneof=New Contacted Trial Converted Lost"`
	PackPrice     *float64              `json:"pack_price" validate:"omitempty,gte=0"`
}

// UpdateStatus changes any of status, stage and pack price. Empty fields are
// left untouched.
func (s *Service) UpdateStatus(ctx context.Context, coachID, customerID string, in StatusInput) (*entity.Customer, error) {
	if in.Status != "" && !in.Status.Valid() {
		return nil, fmt.Errorf("status %q: %w", in.Status, apperr.ErrInvalidArgument)
	}
	if in.PipelineStage != "" && !in.PipelineStage.Valid() {
		return nil, fmt.Errorf("stage %q: %w", in.PipelineStage, apperr.ErrInvalidArgument)
	}
	return s.mutate(ctx, coachID, customerID, func(c *entity.Customer) error {
		if in.Status != "" {
			c.Status = in.Status
		}
		if in.PipelineStage != "" {
			c.PipelineStage = in.PipelineStage
		}
		if in.PackPrice != nil {
			c.PackPrice = in.PackPrice
		}
		return nil
	})
}

// SetFollowUp marks day 1, 2 or 3 of the follow-up cadence.
func (s *Service) SetFollowUp(ctx context.Context, coachID, customerID string, day int, done bool) (*entity.Customer, error) {
	return s.mutate(ctx, coachID, customerID, func(c *entity.Customer) error {
		switch day {
		case 1:
			c.FollowUp.Day1 = done
		case 2:
			c.FollowUp.Day2 = done
		case 3:
			c.FollowUp.Day3 = done
		default:
			return fmt.Errorf("follow-up day %d: %w", day, apperr.ErrInvalidArgument)
		}
		return nil
	})
}

func (s *Service) mutate(ctx context.Context, coachID, customerID string, fn func(c *entity.Customer) error) (*entity.Customer, error) {
	c, err := s.owned(ctx, coachID, customerID)
	if err != nil {
		return nil, err
	}
	if err := fn(c); err != nil {
		return nil, err
	}
	c.UpdatedAt = s.now().UTC()
	if err := s.store.UpdateCustomer(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// DeleteCustomer removes a customer. Only its coach may do so. Contest
// entries that reference it stay and are skipped when ranking.
func (s *Service) DeleteCustomer(ctx context.Context, coachID, customerID string) error {
	if _, err := s.owned(ctx, coachID, customerID); err != nil {
		return err
	}
	if err := s.store.DeleteCustomer(ctx, customerID); err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return nil
		}
		return err
	}
	s.logger.Infow("customer deleted", "id", customerID, "coach", coachID)
	return nil
}
