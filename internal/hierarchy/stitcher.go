package hierarchy

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-coach-crm/internal/apperr"
	"github.com/ovaphlow/pitchfork/service-coach-crm/internal/person/entity"
	"github.com/ovaphlow/pitchfork/service-coach-crm/internal/telemetry"
	"github.com/ovaphlow/pitchfork/service-coach-crm/pkg/utilities"
)

// suffixDigits is how many trailing digits the secondary pass compares, so a
// hint typed with or without a country code still matches.
const suffixDigits = 10

// StitchReport describes what one stitching pass changed. Failures are
// informational; the pass never fails as a whole.
type StitchReport struct {
	UplineID *string                `json:"upline_id,omitempty"`
	Stitched []string               `json:"stitched"`
	Verified []string               `json:"verified"`
	Failures []apperr.StitchFailure `json:"-"`
}

// Stitcher repairs forward references when the referenced node signs up.
type Stitcher struct {
	graph    Graph
	resolver *Resolver
	logger   *zap.SugaredLogger
}

func NewStitcher(g Graph, resolver *Resolver, logger *zap.SugaredLogger) *Stitcher {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Stitcher{graph: g, resolver: resolver, logger: logger}
}

// Stitch runs after p has been stored. It links p to its declared upline,
// adopts every coach that named p before p existed, and records verified
// downlines for managers that declared them. Each write is independent and a
// failed one is logged and skipped.
func (s *Stitcher) Stitch(ctx context.Context, p *entity.Person) StitchReport {
	report := StitchReport{UplineID: p.UplineID}
	if !p.Role.CanBeUpline() {
		return report
	}

	resolved := p.HasUpline()
	if !resolved && p.UplineMobileHint != nil && *p.UplineMobileHint != "" {
		resolved = s.linkByMobile(ctx, p, &report)
	}

	for _, id := range s.orphans(ctx, p, &report) {
		if id == p.ID {
			continue
		}
		cycle, err := s.resolver.WouldCycle(ctx, id, p.ID)
		if err == nil && cycle {
			err = fmt.Errorf("%s is above %s: %w", id, p.ID, apperr.ErrHierarchyCycle)
		}
		if err != nil {
			s.fail(&report, "link_orphan", id, err)
			continue
		}
		changed, err := s.graph.LinkUpline(ctx, id, p.ID)
		if err != nil {
			s.fail(&report, "link_orphan", id, err)
			continue
		}
		if changed {
			telemetry.OrphansStitched.Inc()
			report.Stitched = append(report.Stitched, id)
			s.logger.Infow("orphan stitched", "orphan", id, "upline", p.ID)
		}
	}

	if !resolved && p.UplineMobileHint != nil && *p.UplineMobileHint != "" {
		s.linkBySuffix(ctx, p, &report)
	}

	s.verify(ctx, p, &report)
	return report
}

// Restitch repeats the pass for an existing coach or manager.
func (s *Stitcher) Restitch(ctx context.Context, personID string) (StitchReport, error) {
	p, err := s.graph.GetPerson(ctx, personID)
	if err != nil {
		return StitchReport{}, err
	}
	if !p.Role.CanBeUpline() {
		return StitchReport{}, fmt.Errorf("restitch %s %s: %w", p.Role, p.ID, apperr.ErrInvalidRole)
	}
	return s.Stitch(ctx, p), nil
}

// orphans lists unlinked coaches that named p: exact hint matches first, then
// hints that agree with p's mobile on the last suffixDigits digits. A loose
// match is skipped when its hint is exactly someone else's number.
func (s *Stitcher) orphans(ctx context.Context, p *entity.Person, report *StitchReport) []string {
	ids, err := s.resolver.FindOrphans(ctx, p.MobileNumber)
	if err != nil {
		s.fail(report, "find_orphans", p.ID, err)
	}
	if len(p.MobileNumber) < suffixDigits {
		return ids
	}
	loose, err := s.graph.FindOrphanCoachesBySuffix(ctx, utilities.MobileSuffix(p.MobileNumber, suffixDigits))
	if err != nil {
		s.fail(report, "find_orphans_suffix", p.ID, err)
		return ids
	}
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		seen[id] = true
	}
	for _, o := range loose {
		if seen[o.ID] || o.UplineMobileHint == nil {
			continue
		}
		seen[o.ID] = true
		if owner, err := s.graph.GetByMobile(ctx, *o.UplineMobileHint); err == nil && owner.ID != p.ID {
			continue
		}
		ids = append(ids, o.ID)
	}
	return ids
}

// linkByMobile is the primary resolution: exact match on the normalized
// mobile across all nodes, accepted only for coaches and managers.
func (s *Stitcher) linkByMobile(ctx context.Context, p *entity.Person, report *StitchReport) bool {
	target, err := s.graph.GetByMobile(ctx, *p.UplineMobileHint)
	if err != nil {
		if !errors.Is(err, apperr.ErrNotFound) {
			s.fail(report, "resolve_upline", p.ID, err)
		}
		return false
	}
	if target.ID == p.ID || !target.Role.CanBeUpline() {
		s.logger.Warnw("upline hint does not name a coach or manager", "person", p.ID, "hint", *p.UplineMobileHint, "role", target.Role)
		return false
	}
	return s.link(ctx, p, target.ID, report)
}

// linkBySuffix is the secondary repair against coach records only. It links
// only when exactly one coach matches.
func (s *Stitcher) linkBySuffix(ctx context.Context, p *entity.Person, report *StitchReport) {
	hint := *p.UplineMobileHint
	if len(hint) < suffixDigits {
		return
	}
	candidates, err := s.graph.FindCoachesByMobileSuffix(ctx, utilities.MobileSuffix(hint, suffixDigits))
	if err != nil {
		s.fail(report, "resolve_upline_suffix", p.ID, err)
		return
	}
	var match []entity.Person
	for _, c := range candidates {
		if c.ID != p.ID {
			match = append(match, c)
		}
	}
	switch len(match) {
	case 0:
		return
	case 1:
		s.link(ctx, p, match[0].ID, report)
	default:
		s.logger.Warnw("ambiguous upline hint", "person", p.ID, "hint", hint, "matches", len(match))
	}
}

func (s *Stitcher) link(ctx context.Context, p *entity.Person, uplineID string, report *StitchReport) bool {
	cycle, err := s.resolver.WouldCycle(ctx, p.ID, uplineID)
	if err == nil && cycle {
		err = fmt.Errorf("%s is below %s: %w", uplineID, p.ID, apperr.ErrHierarchyCycle)
	}
	if err != nil {
		s.fail(report, "link_upline", p.ID, err)
		return false
	}
	changed, err := s.graph.LinkUpline(ctx, p.ID, uplineID)
	if err != nil {
		s.fail(report, "link_upline", p.ID, err)
		return false
	}
	if !changed {
		// someone linked it first; report what is stored now
		if cur, err := s.graph.GetPerson(ctx, p.ID); err == nil {
			report.UplineID = cur.UplineID
			return cur.HasUpline()
		}
		return false
	}
	id := uplineID
	p.UplineID = &id
	report.UplineID = &id
	s.logger.Debugw("upline resolved", "person", p.ID, "upline", uplineID)
	return true
}

// verify confirms declared downlines. For a new coach the coach itself and
// the coaches just stitched below it are checked against their nearest
// manager; for a new manager every declared candidate is checked.
func (s *Stitcher) verify(ctx context.Context, p *entity.Person, report *StitchReport) {
	switch p.Role {
	case entity.RoleCoach:
		s.verifyCoach(ctx, p.ID, p.MobileNumber, report)
		for _, id := range report.Stitched {
			o, err := s.graph.GetPerson(ctx, id)
			if err != nil {
				s.fail(report, "verify_downline", id, err)
				continue
			}
			s.verifyCoach(ctx, o.ID, o.MobileNumber, report)
		}
	case entity.RoleManager:
		m, err := s.graph.GetManager(ctx, p.ID)
		if err != nil {
			s.fail(report, "verify_downline", p.ID, err)
			return
		}
		for _, c := range m.CandidateDownlines {
			coach, err := s.graph.GetByMobile(ctx, c.MobileHint)
			if err != nil || coach.Role != entity.RoleCoach {
				continue
			}
			s.verifyCoach(ctx, coach.ID, coach.MobileNumber, report)
		}
	}
}

func (s *Stitcher) verifyCoach(ctx context.Context, coachID, mobile string, report *StitchReport) {
	managerID, found, err := s.resolver.FindNearestManager(ctx, coachID)
	if err != nil {
		s.fail(report, "verify_downline", coachID, err)
		return
	}
	if !found {
		return
	}
	m, err := s.graph.GetManager(ctx, managerID)
	if err != nil {
		s.fail(report, "verify_downline", coachID, err)
		return
	}
	if !m.IsCandidate(mobile) || m.IsVerified(coachID) {
		return
	}
	added, err := s.graph.AddVerifiedDownline(ctx, managerID, coachID)
	if err != nil {
		s.fail(report, "verify_downline", coachID, err)
		return
	}
	if added {
		telemetry.DownlinesVerified.Inc()
		report.Verified = append(report.Verified, coachID)
	}
}

func (s *Stitcher) fail(report *StitchReport, step, id string, err error) {
	telemetry.StitchFailures.WithLabelValues(step).Inc()
	f := apperr.StitchFailure{OrphanID: id, Err: err}
	report.Failures = append(report.Failures, f)
	if errors.Is(err, apperr.ErrHierarchyCycle) {
		s.logger.Errorw("stitching hit a hierarchy cycle", "step", step, "person", id, "err", err)
		return
	}
	s.logger.Warnw("stitching step failed", "step", step, "person", id, "err", err)
}
