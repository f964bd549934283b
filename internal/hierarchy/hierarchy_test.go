package hierarchy

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ovaphlow/pitchfork/service-coach-crm/internal/apperr"
	"github.com/ovaphlow/pitchfork/service-coach-crm/internal/person/entity"
	"github.com/ovaphlow/pitchfork/service-coach-crm/internal/person/repo"
)

type fixture struct {
	t     *testing.T
	ctx   context.Context
	store *repo.MemoryRepo
	clock time.Time
}

func newFixture(t *testing.T) *fixture {
	return &fixture{
		t:     t,
		ctx:   context.Background(),
		store: repo.NewMemoryRepo(),
		clock: time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC),
	}
}

func (f *fixture) person(id, mobile string, role entity.Role, upline, hint string) entity.Person {
	f.clock = f.clock.Add(time.Second)
	p := entity.Person{ID: id, MobileNumber: mobile, Role: role, CreatedAt: f.clock, UpdatedAt: f.clock}
	if upline != "" {
		p.UplineID = &upline
	}
	if hint != "" {
		p.UplineMobileHint = &hint
	}
	return p
}

func (f *fixture) coach(id, mobile, upline, hint string) *entity.Person {
	c := &entity.Coach{Person: f.person(id, mobile, entity.RoleCoach, upline, hint), IsActive: true}
	require.NoError(f.t, f.store.CreateCoach(f.ctx, c))
	return &c.Person
}

func (f *fixture) manager(id, mobile, upline, hint string, candidates ...string) *entity.Person {
	m := &entity.Manager{Person: f.person(id, mobile, entity.RoleManager, upline, hint)}
	for _, c := range candidates {
		m.CandidateDownlines = append(m.CandidateDownlines, entity.CandidateDownline{MobileHint: c})
	}
	require.NoError(f.t, f.store.CreateManager(f.ctx, m))
	return &m.Person
}

func (f *fixture) customer(id, mobile string) {
	c := &entity.Customer{Person: f.person(id, mobile, entity.RoleCustomer, "", ""), Status: entity.StatusActive}
	require.NoError(f.t, f.store.CreateCustomer(f.ctx, c))
}

func (f *fixture) uplineOf(id string) string {
	p, err := f.store.GetPerson(f.ctx, id)
	require.NoError(f.t, err)
	if p.UplineID == nil {
		return ""
	}
	return *p.UplineID
}

func TestFindNearestManagerWalksCoaches(t *testing.T) {
	f := newFixture(t)
	f.manager("m0", "100", "", "")
	f.manager("m1", "101", "m0", "")
	f.coach("c1", "201", "m1", "")
	f.coach("c2", "202", "c1", "")
	f.coach("c3", "203", "c2", "")
	r := NewResolver(f.store, nil, 0)

	id, found, err := r.FindNearestManager(f.ctx, "c3")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "m1", id)

	// strictly upward: a manager start resolves to the manager above it
	id, found, err = r.FindNearestManager(f.ctx, "m1")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "m0", id)

	chain, err := r.Chain(f.ctx, "c3")
	require.NoError(t, err)
	var ids []string
	for _, p := range chain {
		ids = append(ids, p.ID)
	}
	assert.Equal(t, []string{"c2", "c1", "m1"}, ids)
}

func TestFindNearestManagerNoManager(t *testing.T) {
	f := newFixture(t)
	f.coach("top", "1", "", "")
	f.coach("c1", "2", "top", "")
	r := NewResolver(f.store, nil, 0)

	_, found, err := r.FindNearestManager(f.ctx, "c1")
	require.NoError(t, err)
	assert.False(t, found)

	_, found, err = r.FindNearestManager(f.ctx, "top")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestFindNearestManagerRejectsCustomerAndMissing(t *testing.T) {
	f := newFixture(t)
	f.customer("u1", "9")
	r := NewResolver(f.store, nil, 0)

	_, _, err := r.FindNearestManager(f.ctx, "u1")
	assert.ErrorIs(t, err, apperr.ErrInvalidRole)

	_, _, err = r.FindNearestManager(f.ctx, "nope")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestFindNearestManagerStopsAtBrokenLinks(t *testing.T) {
	f := newFixture(t)
	f.customer("u1", "9")
	f.coach("c1", "1", "ghost", "")
	f.coach("c2", "2", "u1", "")
	r := NewResolver(f.store, nil, 0)

	_, found, err := r.FindNearestManager(f.ctx, "c1")
	require.NoError(t, err)
	assert.False(t, found)

	_, found, err = r.FindNearestManager(f.ctx, "c2")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestFindNearestManagerDetectsCycle(t *testing.T) {
	f := newFixture(t)
	f.coach("a", "1", "b", "")
	f.coach("b", "2", "a", "")
	r := NewResolver(f.store, nil, 0)

	done := make(chan error, 1)
	go func() {
		_, _, err := r.FindNearestManager(f.ctx, "a")
		done <- err
	}()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, apperr.ErrHierarchyCycle)
	case <-time.After(5 * time.Second):
		t.Fatal("FindNearestManager did not terminate on a cycle")
	}
}

func TestFindNearestManagerHopBound(t *testing.T) {
	f := newFixture(t)
	f.manager("m", "0", "", "")
	prev := "m"
	for i := 1; i <= 20; i++ {
		id := fmt.Sprintf("c%02d", i)
		f.coach(id, fmt.Sprint(i), prev, "")
		prev = id
	}

	_, _, err := NewResolver(f.store, nil, 5).FindNearestManager(f.ctx, prev)
	assert.ErrorIs(t, err, apperr.ErrHierarchyCycle)

	id, found, err := NewResolver(f.store, nil, 50).FindNearestManager(f.ctx, prev)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "m", id)
}

func TestWouldCycle(t *testing.T) {
	f := newFixture(t)
	f.coach("c1", "1", "", "")
	f.coach("c2", "2", "c1", "")
	f.coach("c3", "3", "c2", "")
	r := NewResolver(f.store, nil, 0)

	cycle, err := r.WouldCycle(f.ctx, "c1", "c3")
	require.NoError(t, err)
	assert.True(t, cycle)

	cycle, err = r.WouldCycle(f.ctx, "c3", "c1")
	require.NoError(t, err)
	assert.False(t, cycle)

	cycle, err = r.WouldCycle(f.ctx, "c2", "c2")
	require.NoError(t, err)
	assert.True(t, cycle)
}

func newStitcher(f *fixture) *Stitcher {
	return NewStitcher(f.store, NewResolver(f.store, nil, 0), nil)
}

func TestStitchAdoptsOrphansOnManagerSignup(t *testing.T) {
	f := newFixture(t)
	x := f.coach("x", "300", "", "555")
	s := newStitcher(f)

	// nothing to link yet
	rep := s.Stitch(f.ctx, x)
	assert.Nil(t, rep.UplineID)
	assert.Equal(t, "", f.uplineOf("x"))

	m := f.manager("m", "555", "", "")
	rep = s.Stitch(f.ctx, m)
	assert.Equal(t, []string{"x"}, rep.Stitched)
	assert.Empty(t, rep.Failures)
	assert.Equal(t, "m", f.uplineOf("x"))

	orphans, err := s.resolver.FindOrphans(f.ctx, "555")
	require.NoError(t, err)
	assert.Empty(t, orphans)

	rep = s.Stitch(f.ctx, m)
	assert.Empty(t, rep.Stitched)
}

func TestStitchResolvesOwnUplineByMobile(t *testing.T) {
	f := newFixture(t)
	f.manager("m", "555", "", "")
	c := f.coach("c", "600", "", "555")

	rep := newStitcher(f).Stitch(f.ctx, c)
	require.NotNil(t, rep.UplineID)
	assert.Equal(t, "m", *rep.UplineID)
	assert.Equal(t, "m", f.uplineOf("c"))
}

func TestStitchNeverLinksToCustomer(t *testing.T) {
	f := newFixture(t)
	f.customer("u", "555")
	c := f.coach("c", "600", "", "555")

	rep := newStitcher(f).Stitch(f.ctx, c)
	assert.Nil(t, rep.UplineID)
	assert.Equal(t, "", f.uplineOf("c"))
}

func TestStitchSecondaryPassMatchesCountryCode(t *testing.T) {
	f := newFixture(t)
	f.coach("up", "919876543210", "", "")
	c := f.coach("c", "700", "", "9876543210")

	rep := newStitcher(f).Stitch(f.ctx, c)
	require.NotNil(t, rep.UplineID)
	assert.Equal(t, "up", *rep.UplineID)
}

func TestStitchSecondaryPassSkipsAmbiguousMatch(t *testing.T) {
	f := newFixture(t)
	f.coach("a", "919876543210", "", "")
	f.coach("b", "449876543210", "", "")
	c := f.coach("c", "700", "", "9876543210")

	rep := newStitcher(f).Stitch(f.ctx, c)
	assert.Nil(t, rep.UplineID)
}

func TestStitchAdoptsOrphanHintWithCountryCode(t *testing.T) {
	f := newFixture(t)
	f.coach("x", "300", "", "919876543210")
	f.coach("y", "301", "", "9876543210")
	s := newStitcher(f)

	m := f.manager("m", "9876543210", "", "")
	rep := s.Stitch(f.ctx, m)
	assert.Equal(t, []string{"y", "x"}, rep.Stitched)
	assert.Equal(t, "m", f.uplineOf("x"))
	assert.Equal(t, "m", f.uplineOf("y"))

	// the reverse direction: hint without country code, upline signs up with it
	f.coach("z", "302", "", "9123456789")
	up := f.coach("up", "919123456789", "", "")
	rep = s.Stitch(f.ctx, up)
	assert.Equal(t, []string{"z"}, rep.Stitched)
	assert.Equal(t, "up", f.uplineOf("z"))
}

func TestStitchLooseOrphanMatchDefersToExactOwner(t *testing.T) {
	f := newFixture(t)
	f.coach("x", "300", "", "449876543210")
	f.customer("owner", "449876543210")
	s := newStitcher(f)

	m := f.manager("m", "919876543210", "", "")
	rep := s.Stitch(f.ctx, m)
	assert.Empty(t, rep.Stitched)
	assert.Equal(t, "", f.uplineOf("x"))
}

type flakyGraph struct {
	*repo.MemoryRepo
	failFor string
}

func (g flakyGraph) LinkUpline(ctx context.Context, id, uplineID string) (bool, error) {
	if id == g.failFor {
		return false, errors.New("write conflict")
	}
	return g.MemoryRepo.LinkUpline(ctx, id, uplineID)
}

func TestStitchFailureDoesNotStopOtherOrphans(t *testing.T) {
	f := newFixture(t)
	f.coach("o1", "1", "", "555")
	f.coach("o2", "2", "", "555")
	m := f.manager("m", "555", "", "")

	g := flakyGraph{MemoryRepo: f.store, failFor: "o1"}
	s := NewStitcher(g, NewResolver(g, nil, 0), nil)
	rep := s.Stitch(f.ctx, m)

	assert.Equal(t, []string{"o2"}, rep.Stitched)
	require.Len(t, rep.Failures, 1)
	assert.Equal(t, "o1", rep.Failures[0].OrphanID)
	assert.Equal(t, "", f.uplineOf("o1"))

	// a later run completes the remainder
	rep = newStitcher(f).Stitch(f.ctx, m)
	assert.Equal(t, []string{"o1"}, rep.Stitched)
}

func TestStitchRefusesOrphanThatWouldLoop(t *testing.T) {
	f := newFixture(t)
	f.coach("y", "2", "", "1")
	x := f.coach("x", "1", "", "2")

	// x links up to y, then y (an orphan of x) must not link to x
	rep := newStitcher(f).Stitch(f.ctx, x)
	require.NotNil(t, rep.UplineID)
	assert.Equal(t, "y", *rep.UplineID)
	assert.Empty(t, rep.Stitched)
	require.Len(t, rep.Failures, 1)
	assert.ErrorIs(t, rep.Failures[0], apperr.ErrHierarchyCycle)
	assert.Equal(t, "", f.uplineOf("y"))
}

func TestStitchVerifiesDeclaredDownlines(t *testing.T) {
	f := newFixture(t)
	s := newStitcher(f)

	// coach signs up after the manager who declared it
	m := f.manager("m", "555", "", "", "600", "601")
	s.Stitch(f.ctx, m)
	c := f.coach("c", "600", "", "555")
	rep := s.Stitch(f.ctx, c)
	assert.Equal(t, []string{"c"}, rep.Verified)

	// coach signs up first, the manager adopts and verifies it
	o := f.coach("o", "601", "", "556")
	s.Stitch(f.ctx, o)
	m2 := f.manager("m2", "556", "", "", "601")
	rep = s.Stitch(f.ctx, m2)
	assert.Equal(t, []string{"o"}, rep.Stitched)
	assert.Equal(t, []string{"o"}, rep.Verified)

	got, err := f.store.GetManager(f.ctx, "m")
	require.NoError(t, err)
	assert.Equal(t, []string{"c"}, got.VerifiedDownlines)
	got, err = f.store.GetManager(f.ctx, "m2")
	require.NoError(t, err)
	assert.Equal(t, []string{"o"}, got.VerifiedDownlines)
}

func TestRestitch(t *testing.T) {
	f := newFixture(t)
	f.customer("u", "9")
	f.coach("o", "1", "", "555")
	f.manager("m", "555", "", "")
	s := newStitcher(f)

	rep, err := s.Restitch(f.ctx, "m")
	require.NoError(t, err)
	assert.Equal(t, []string{"o"}, rep.Stitched)

	_, err = s.Restitch(f.ctx, "u")
	assert.ErrorIs(t, err, apperr.ErrInvalidRole)
}
