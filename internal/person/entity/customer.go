package entity

import "time"

type CustomerStatus string

const (
	StatusActive   CustomerStatus = "active"
	StatusInactive CustomerStatus = "inactive"
	StatusTrial    CustomerStatus = "trial"
	StatusLead     CustomerStatus = "lead"
)

func (s CustomerStatus) Valid() bool {
	switch s {
	case StatusActive, StatusInactive, StatusTrial, StatusLead:
		return true
	}
	return false
}

type PipelineStage string

const (
	StageNew       PipelineStage = "New"
	StageContacted PipelineStage = "Contacted"
	StageTrial     PipelineStage = "Trial"
	StageConverted PipelineStage = "Converted"
	StageLost      PipelineStage = "Lost"
)

var PipelineStages = []PipelineStage{StageNew, StageContacted, StageTrial, StageConverted, StageLost}

func (s PipelineStage) Valid() bool {
	for _, v := range PipelineStages {
		if v == s {
			return true
		}
	}
	return false
}

// FollowUp tracks the fixed three-day contact cadence after onboarding.
type FollowUp struct {
	Day1 bool `json:"day1"`
	Day2 bool `json:"day2"`
	Day3 bool `json:"day3"`
}

func (f FollowUp) Pending() bool { return !f.Day1 || !f.Day2 || !f.Day3 }

type Payment struct {
	Amount float64   `json:"amount"`
	PaidAt time.Time `json:"paid_at"`
	Method string    `json:"method"`
}

// Composition is the body-composition reading a contest ranks on.
type Composition struct {
	WeightKg    float64 `json:"weight_kg"`
	FatPct      float64 `json:"fat_pct"`
	MusclePct   float64 `json:"muscle_pct"`
	VisceralFat float64 `json:"visceral_fat"`
}

type Customer struct {
	Person
	// CoachID is the owning coach. It is separate from UplineID, which only
	// links coaches and managers.
	CoachID       *string        `json:"coach_id,omitempty"`
	Status        CustomerStatus `json:"status"`
	PipelineStage PipelineStage  `json:"pipeline_stage"`
	PackPrice     *float64       `json:"pack_price,omitempty"`
	FollowUp      FollowUp       `json:"follow_up"`
	AttendanceLog []time.Time    `json:"attendance_log"`
	PaymentLedger []Payment      `json:"payment_ledger"`
	Composition   Composition    `json:"composition"`
}

// LastAttendance returns the latest attendance timestamp, if any.
func (c *Customer) LastAttendance() (time.Time, bool) {
	var last time.Time
	for _, t := range c.AttendanceLog {
		if t.After(last) {
			last = t
		}
	}
	return last, len(c.AttendanceLog) > 0
}

func (c *Customer) OwnedBy(coachID string) bool {
	return c.CoachID != nil && *c.CoachID == coachID
}
