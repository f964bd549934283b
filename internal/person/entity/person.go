package entity

import "time"

type Role string

const (
	RoleCustomer Role = "customer"
	RoleCoach    Role = "coach"
	RoleManager  Role = "manager"
)

func (r Role) Valid() bool {
	switch r {
	case RoleCustomer, RoleCoach, RoleManager:
		return true
	}
	return false
}

// CanBeUpline reports whether a node of this role may be the target of an
// upline edge. Customers never can.
func (r Role) CanBeUpline() bool {
	return r == RoleCoach || r == RoleManager
}

// Person is the part shared by every node in the graph. UplineID is set by
// the node itself; UplineMobileHint keeps the number typed at signup even
// after UplineID resolves.
type Person struct {
	ID               string    `json:"id"`
	Name             string    `json:"name,omitempty"`
	MobileNumber     string    `json:"mobile_number"`
	Role             Role      `json:"role"`
	UplineID         *string   `json:"upline_id,omitempty"`
	UplineMobileHint *string   `json:"upline_mobile_hint,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

func (p *Person) HasUpline() bool { return p.UplineID != nil && *p.UplineID != "" }

type Coach struct {
	Person
	WellnessCenterName string `json:"wellness_center_name,omitempty"`
	IsActive           bool   `json:"is_active"`
}

// CandidateDownline is a coach a manager declared at signup, before that
// coach had an account.
type CandidateDownline struct {
	MobileHint    string `json:"mobile_hint"`
	DeclaredLevel string `json:"declared_level,omitempty"`
}

type Manager struct {
	Person
	CandidateDownlines []CandidateDownline `json:"candidate_downlines"`
	VerifiedDownlines  []string            `json:"verified_downlines"`
}

// IsCandidate reports whether mobile (normalized) was declared by the manager.
func (m *Manager) IsCandidate(mobile string) bool {
	for _, c := range m.CandidateDownlines {
		if c.MobileHint == mobile {
			return true
		}
	}
	return false
}

func (m *Manager) IsVerified(coachID string) bool {
	for _, id := range m.VerifiedDownlines {
		if id == coachID {
			return true
		}
	}
	return false
}
