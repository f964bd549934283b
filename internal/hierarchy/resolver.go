// Package hierarchy walks and repairs the upline graph of coaches and
// managers.
package hierarchy

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-coach-crm/internal/apperr"
	"github.com/ovaphlow/pitchfork/service-coach-crm/internal/person/entity"
	"github.com/ovaphlow/pitchfork/service-coach-crm/internal/telemetry"
)

// DefaultMaxHops bounds every upline walk.
const DefaultMaxHops = 1000

// Graph is the part of the person store the resolver and stitcher need.
type Graph interface {
	GetPerson(ctx context.Context, id string) (*entity.Person, error)
	GetByMobile(ctx context.Context, mobile string) (*entity.Person, error)
	GetManager(ctx context.Context, id string) (*entity.Manager, error)
	FindOrphanCoaches(ctx context.Context, uplineMobile string) ([]string, error)
	FindOrphanCoachesBySuffix(ctx context.Context, suffix string) ([]entity.Person, error)
	FindCoachesByMobileSuffix(ctx context.Context, suffix string) ([]entity.Person, error)
	LinkUpline(ctx context.Context, id, uplineID string) (bool, error)
	AddVerifiedDownline(ctx context.Context, managerID, coachID string) (bool, error)
}

// Resolver answers "which manager does this coach belong to". Resource and
// contest listings both go through FindNearestManager.
type Resolver struct {
	graph   Graph
	logger  *zap.SugaredLogger
	maxHops int
}

func NewResolver(g Graph, logger *zap.SugaredLogger, maxHops int) *Resolver {
	if maxHops <= 0 {
		maxHops = DefaultMaxHops
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Resolver{graph: g, logger: logger, maxHops: maxHops}
}

// FindNearestManager returns the first manager above startID. found is false
// when the chain ends without one, which is a normal state for a coach at
// the top of its organization.
func (r *Resolver) FindNearestManager(ctx context.Context, startID string) (managerID string, found bool, err error) {
	start, err := r.start(ctx, startID)
	if err != nil {
		return "", false, err
	}
	err = r.walk(ctx, start, func(p *entity.Person) bool {
		if p.Role == entity.RoleManager {
			managerID, found = p.ID, true
			return true
		}
		return false
	})
	if err != nil {
		return "", false, err
	}
	return managerID, found, nil
}

// Chain returns the nodes above startID up to and including the nearest
// manager, nearest first.
func (r *Resolver) Chain(ctx context.Context, startID string) ([]entity.Person, error) {
	start, err := r.start(ctx, startID)
	if err != nil {
		return nil, err
	}
	var chain []entity.Person
	err = r.walk(ctx, start, func(p *entity.Person) bool {
		chain = append(chain, *p)
		return p.Role == entity.RoleManager
	})
	if err != nil {
		return nil, err
	}
	return chain, nil
}

// WouldCycle reports whether pointing nodeID at uplineID would close a loop,
// i.e. nodeID is uplineID itself or one of its ancestors.
func (r *Resolver) WouldCycle(ctx context.Context, nodeID, uplineID string) (bool, error) {
	if nodeID == uplineID {
		return true, nil
	}
	start, err := r.start(ctx, uplineID)
	if err != nil {
		return false, err
	}
	cycle := false
	err = r.walk(ctx, start, func(p *entity.Person) bool {
		cycle = p.ID == nodeID
		return cycle
	})
	return cycle, err
}

// FindOrphans lists coaches that named mobile as their upline before any
// node with that number existed.
func (r *Resolver) FindOrphans(ctx context.Context, mobile string) ([]string, error) {
	if mobile == "" {
		return nil, nil
	}
	return r.graph.FindOrphanCoaches(ctx, mobile)
}

func (r *Resolver) start(ctx context.Context, id string) (*entity.Person, error) {
	p, err := r.graph.GetPerson(ctx, id)
	if err != nil {
		return nil, err
	}
	if !p.Role.CanBeUpline() {
		return nil, fmt.Errorf("resolve from %s %s: %w", p.Role, p.ID, apperr.ErrInvalidRole)
	}
	return p, nil
}

// walk follows upline edges from start, calling visit on each ancestor until
// visit returns true or the chain ends. A revisited node or more than maxHops
// lookups fails with ErrHierarchyCycle.
func (r *Resolver) walk(ctx context.Context, start *entity.Person, visit func(p *entity.Person) bool) error {
	seen := map[string]bool{start.ID: true}
	current := start.UplineID
	for hops := 0; current != nil && *current != ""; hops++ {
		if hops >= r.maxHops || seen[*current] {
			telemetry.HierarchyCycles.Inc()
			r.logger.Errorw("upline walk aborted", "start", start.ID, "at", *current, "hops", hops, "max_hops", r.maxHops)
			return fmt.Errorf("walk from %s after %d hops at %s: %w", start.ID, hops, *current, apperr.ErrHierarchyCycle)
		}
		seen[*current] = true

		p, err := r.graph.GetPerson(ctx, *current)
		if err != nil {
			if errors.Is(err, apperr.ErrNotFound) {
				r.logger.Warnw("dangling upline reference", "start", start.ID, "missing", *current)
				return nil
			}
			return err
		}
		if !p.Role.CanBeUpline() {
			r.logger.Warnw("upline points at a non coach/manager node", "start", start.ID, "node", p.ID, "role", p.Role)
			return nil
		}
		if visit(p) {
			return nil
		}
		current = p.UplineID
	}
	return nil
}
