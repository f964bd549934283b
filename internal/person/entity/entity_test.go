package entity

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRoleCanBeUpline(t *testing.T) {
	assert.True(t, RoleCoach.CanBeUpline())
	assert.True(t, RoleManager.CanBeUpline())
	assert.False(t, RoleCustomer.CanBeUpline())
	assert.False(t, Role("admin").Valid())
}

func TestLastAttendanceIgnoresOrder(t *testing.T) {
	base := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	c := Customer{AttendanceLog: []time.Time{base, base.Add(48 * time.Hour), base.Add(24 * time.Hour)}}

	last, ok := c.LastAttendance()
	assert.True(t, ok)
	assert.Equal(t, base.Add(48*time.Hour), last)

	_, ok = (&Customer{}).LastAttendance()
	assert.False(t, ok)
}

func TestManagerCandidates(t *testing.T) {
	m := Manager{
		CandidateDownlines: []CandidateDownline{{MobileHint: "5550001", DeclaredLevel: "senior"}},
		VerifiedDownlines:  []string{"c1"},
	}
	assert.True(t, m.IsCandidate("5550001"))
	assert.False(t, m.IsCandidate("5550002"))
	assert.True(t, m.IsVerified("c1"))
}

func TestFollowUpPending(t *testing.T) {
	assert.True(t, FollowUp{Day1: true}.Pending())
	assert.False(t, FollowUp{Day1: true, Day2: true, Day3: true}.Pending())
}
