package entity

import (
	"time"

	person "github.com/ovaphlow/pitchfork/service-coach-crm/internal/person/entity"
)

type Type string

const (
	TypeFatLoss    Type = "fat-loss"
	TypeMuscleGain Type = "muscle-gain"
	TypeWeightLoss Type = "weight-loss"
)

func (t Type) Valid() bool {
	switch t {
	case TypeFatLoss, TypeMuscleGain, TypeWeightLoss:
		return true
	}
	return false
}

// Change is the improvement from start to live for this contest type;
// positive always means better.
func (t Type) Change(start, live person.Composition) float64 {
	switch t {
	case TypeFatLoss:
		return start.FatPct - live.FatPct
	case TypeMuscleGain:
		return live.MusclePct - start.MusclePct
	case TypeWeightLoss:
		return start.WeightKg - live.WeightKg
	}
	return 0
}

type Status string

const (
	StatusCreated Status = "created"
	StatusActive  Status = "active"
	StatusClosed  Status = "closed"
)

const (
	ProofImage = "image"
	ProofVideo = "video"
)

// Snapshot is a point-in-time copy of a customer's composition.
type Snapshot struct {
	person.Composition
	ProofURL   string    `json:"proof_url,omitempty"`
	ProofKind  string    `json:"proof_kind,omitempty"`
	CapturedAt time.Time `json:"captured_at"`
}

type Participant struct {
	CustomerID    string   `json:"customer_id"`
	CoachID       string   `json:"coach_id,omitempty"`
	StartSnapshot Snapshot `json:"start_snapshot"`
	// CurrentSnapshot is informational. Rankings always read the live
	// customer record instead.
	CurrentSnapshot Snapshot  `json:"current_snapshot"`
	EnrolledAt      time.Time `json:"enrolled_at"`
}

type Contest struct {
	ID             string        `json:"id"`
	Title          string        `json:"title"`
	Type           Type          `json:"type"`
	StartsAt       time.Time     `json:"starts_at"`
	EndsAt         time.Time     `json:"ends_at"`
	IsActive       bool          `json:"is_active"`
	OwnerManagerID string        `json:"owner_manager_id"`
	Participants   []Participant `json:"participants"`
	CreatedAt      time.Time     `json:"created_at"`
}

// Status is derived at query time; there is no stored transition.
func (c *Contest) Status(now time.Time) Status {
	switch {
	case now.After(c.EndsAt):
		return StatusClosed
	case !now.Before(c.StartsAt) && c.IsActive:
		return StatusActive
	default:
		return StatusCreated
	}
}

func (c *Contest) HasParticipant(customerID string) bool {
	for _, p := range c.Participants {
		if p.CustomerID == customerID {
			return true
		}
	}
	return false
}
