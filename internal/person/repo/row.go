package repo

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ovaphlow/pitchfork/service-coach-crm/internal/apperr"
	"github.com/ovaphlow/pitchfork/service-coach-crm/internal/person/entity"
)

// personRow is the stored shape of every node. Role-specific columns stay at
// their zero value for other roles. JSONB columns travel as text because pq
// would send []byte parameters as bytea.
type personRow struct {
	ID                 string          `db:"id"`
	Name               string          `db:"name"`
	MobileNumber       string          `db:"mobile_number"`
	Role               string          `db:"role"`
	UplineID           sql.NullString  `db:"upline_id"`
	UplineMobileHint   sql.NullString  `db:"upline_mobile_hint"`
	WellnessCenterName string          `db:"wellness_center_name"`
	IsActive           bool            `db:"is_active"`
	CandidateDownlines string          `db:"candidate_downlines"`
	VerifiedDownlines  string          `db:"verified_downlines"`
	CoachID            sql.NullString  `db:"coach_id"`
	Status             string          `db:"status"`
	PipelineStage      string          `db:"pipeline_stage"`
	PackPrice          sql.NullFloat64 `db:"pack_price"`
	FollowUp           string          `db:"follow_up"`
	AttendanceLog      string          `db:"attendance_log"`
	PaymentLedger      string          `db:"payment_ledger"`
	Composition        string          `db:"composition"`
	CreatedAt          time.Time       `db:"created_at"`
	UpdatedAt          time.Time       `db:"updated_at"`
}

const personColumns = `id, name, mobile_number, role, upline_id, upline_mobile_hint,
	wellness_center_name, is_active, candidate_downlines, verified_downlines,
	coach_id, status, pipeline_stage, pack_price, follow_up, attendance_log,
	payment_ledger, composition, created_at, updated_at`

func nullString(p *string) sql.NullString {
	if p == nil || *p == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: *p, Valid: true}
}

func stringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

func baseRow(p entity.Person) personRow {
	return personRow{
		ID:                 p.ID,
		Name:               p.Name,
		MobileNumber:       p.MobileNumber,
		Role:               string(p.Role),
		UplineID:           nullString(p.UplineID),
		UplineMobileHint:   nullString(p.UplineMobileHint),
		CandidateDownlines: "[]",
		VerifiedDownlines:  "[]",
		FollowUp:           "{}",
		AttendanceLog:      "[]",
		PaymentLedger:      "[]",
		Composition:        "{}",
		CreatedAt:          p.CreatedAt,
		UpdatedAt:          p.UpdatedAt,
	}
}

func rowFromCoach(c *entity.Coach) personRow {
	r := baseRow(c.Person)
	r.WellnessCenterName = c.WellnessCenterName
	r.IsActive = c.IsActive
	return r
}

func rowFromManager(m *entity.Manager) (personRow, error) {
	r := baseRow(m.Person)
	var err error
	if r.CandidateDownlines, err = marshalList(m.CandidateDownlines); err != nil {
		return r, err
	}
	if r.VerifiedDownlines, err = marshalList(m.VerifiedDownlines); err != nil {
		return r, err
	}
	return r, nil
}

func rowFromCustomer(c *entity.Customer) (personRow, error) {
	r := baseRow(c.Person)
	r.CoachID = nullString(c.CoachID)
	r.Status = string(c.Status)
	r.PipelineStage = string(c.PipelineStage)
	if c.PackPrice != nil {
		r.PackPrice = sql.NullFloat64{Float64: *c.PackPrice, Valid: true}
	}
	var err error
	if r.FollowUp, err = marshalValue(c.FollowUp); err != nil {
		return r, err
	}
	if r.AttendanceLog, err = marshalList(c.AttendanceLog); err != nil {
		return r, err
	}
	if r.PaymentLedger, err = marshalList(c.PaymentLedger); err != nil {
		return r, err
	}
	if r.Composition, err = marshalValue(c.Composition); err != nil {
		return r, err
	}
	return r, nil
}

// marshalList encodes nil slices as [] rather than null.
func marshalList[T any](v []T) (string, error) {
	if v == nil {
		v = []T{}
	}
	return marshalValue(v)
}

func marshalValue(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func unmarshalInto(raw string, v any) error {
	if raw == "" {
		return nil
	}
	return json.Unmarshal([]byte(raw), v)
}

func (r personRow) person() entity.Person {
	return entity.Person{
		ID:               r.ID,
		Name:             r.Name,
		MobileNumber:     r.MobileNumber,
		Role:             entity.Role(r.Role),
		UplineID:         stringPtr(r.UplineID),
		UplineMobileHint: stringPtr(r.UplineMobileHint),
		CreatedAt:        r.CreatedAt,
		UpdatedAt:        r.UpdatedAt,
	}
}

func (r personRow) expectRole(role entity.Role) error {
	if entity.Role(r.Role) != role {
		return fmt.Errorf("person %s is a %s, not a %s: %w", r.ID, r.Role, role, apperr.ErrInvalidRole)
	}
	return nil
}

func (r personRow) coach() (*entity.Coach, error) {
	if err := r.expectRole(entity.RoleCoach); err != nil {
		return nil, err
	}
	return &entity.Coach{Person: r.person(), WellnessCenterName: r.WellnessCenterName, IsActive: r.IsActive}, nil
}

func (r personRow) manager() (*entity.Manager, error) {
	if err := r.expectRole(entity.RoleManager); err != nil {
		return nil, err
	}
	m := &entity.Manager{Person: r.person()}
	if err := unmarshalInto(r.CandidateDownlines, &m.CandidateDownlines); err != nil {
		return nil, fmt.Errorf("decode candidate_downlines: %w", err)
	}
	if err := unmarshalInto(r.VerifiedDownlines, &m.VerifiedDownlines); err != nil {
		return nil, fmt.Errorf("decode verified_downlines: %w", err)
	}
	return m, nil
}

func (r personRow) customer() (*entity.Customer, error) {
	if err := r.expectRole(entity.RoleCustomer); err != nil {
		return nil, err
	}
	c := &entity.Customer{
		Person:        r.person(),
		CoachID:       stringPtr(r.CoachID),
		Status:        entity.CustomerStatus(r.Status),
		PipelineStage: entity.PipelineStage(r.PipelineStage),
	}
	if r.PackPrice.Valid {
		p := r.PackPrice.Float64
		c.PackPrice = &p
	}
	if err := unmarshalInto(r.FollowUp, &c.FollowUp); err != nil {
		return nil, fmt.Errorf("decode follow_up: %w", err)
	}
	if err := unmarshalInto(r.AttendanceLog, &c.AttendanceLog); err != nil {
		return nil, fmt.Errorf("decode attendance_log: %w", err)
	}
	if err := unmarshalInto(r.PaymentLedger, &c.PaymentLedger); err != nil {
		return nil, fmt.Errorf("decode payment_ledger: %w", err)
	}
	if err := unmarshalInto(r.Composition, &c.Composition); err != nil {
		return nil, fmt.Errorf("decode composition: %w", err)
	}
	return c, nil
}
