// Package resource is the manager resource library: links a manager
// publishes for the coaches in its organisation.
package resource

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-coach-crm/internal/person/entity"
	resentity "github.com/ovaphlow/pitchfork/service-coach-crm/internal/resource/entity"
	"github.com/ovaphlow/pitchfork/service-coach-crm/pkg/utilities"
)

type Store interface {
	Create(ctx context.Context, res *resentity.Resource) error
	List(ctx context.Context, managerID, category string) ([]resentity.Resource, error)
	Delete(ctx context.Context, managerID, id string) error
}

type Managers interface {
	GetManager(ctx context.Context, id string) (*entity.Manager, error)
}

type ManagerResolver interface {
	FindNearestManager(ctx context.Context, startID string) (string, bool, error)
}

type CreateInput struct {
	Category string          `json:"category" validate:"max=32"`
	Title    string          `json:"title" validate:"required,max=200"`
	URL      string          `json:"url" validate:"required,url"`
	Metadata json.RawMessage `json:"metadata,omitempty"`
}

// Service encapsulates business logic for the library and depends on a repo.
type Service struct {
	store    Store
	managers Managers
	resolver ManagerResolver
	logger   *zap.SugaredLogger
}

func NewService(store Store, managers Managers, resolver ManagerResolver, logger *zap.SugaredLogger) *Service {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Service{store: store, managers: managers, resolver: resolver, logger: logger}
}

func (s *Service) Create(ctx context.Context, managerID string, in CreateInput) (*resentity.Resource, error) {
	if _, err := s.managers.GetManager(ctx, managerID); err != nil {
		return nil, err
	}
	res := &resentity.Resource{
		ID:             utilities.NewKSUID(),
		OwnerManagerID: managerID,
		Category:       in.Category,
		Title:          in.Title,
		URL:            in.URL,
		Metadata:       in.Metadata,
		CreatedAt:      time.Now().UTC(),
	}
	if err := s.store.Create(ctx, res); err != nil {
		return nil, fmt.Errorf("create resource: %w", err)
	}
	return res, nil
}

func (s *Service) ListForManager(ctx context.Context, managerID, category string) ([]resentity.Resource, error) {
	return s.store.List(ctx, managerID, category)
}

// ListForCoach returns the library of the coach's nearest manager, or an
// empty list when the coach has none.
func (s *Service) ListForCoach(ctx context.Context, coachID, category string) ([]resentity.Resource, error) {
	managerID, found, err := s.resolver.FindNearestManager(ctx, coachID)
	if err != nil {
		return nil, err
	}
	if !found {
		s.logger.Debugw("no manager above coach", "coach", coachID)
		return []resentity.Resource{}, nil
	}
	return s.store.List(ctx, managerID, category)
}

func (s *Service) Delete(ctx context.Context, managerID, id string) error {
	return s.store.Delete(ctx, managerID, id)
}
