package repo

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/ovaphlow/pitchfork/service-coach-crm/internal/contest/entity"
)

type contestRow struct {
	ID             string    `db:"id"`
	Title          string    `db:"title"`
	Type           string    `db:"type"`
	StartsAt       time.Time `db:"starts_at"`
	EndsAt         time.Time `db:"ends_at"`
	IsActive       bool      `db:"is_active"`
	OwnerManagerID string    `db:"owner_manager_id"`
	Participants   string    `db:"participants"`
	CreatedAt      time.Time `db:"created_at"`
}

const contestColumns = `id, title, type, starts_at, ends_at, is_active, owner_manager_id, participants, created_at`

func rowFromContest(c *entity.Contest) (contestRow, error) {
	ps := c.Participants
	if ps == nil {
		ps = []entity.Participant{}
	}
	b, err := json.Marshal(ps)
	if err != nil {
		return contestRow{}, err
	}
	return contestRow{
		ID:             c.ID,
		Title:          c.Title,
		Type:           string(c.Type),
		StartsAt:       c.StartsAt,
		EndsAt:         c.EndsAt,
		IsActive:       c.IsActive,
		OwnerManagerID: c.OwnerManagerID,
		Participants:   string(b),
		CreatedAt:      c.CreatedAt,
	}, nil
}

func (r contestRow) contest() (*entity.Contest, error) {
	c := &entity.Contest{
		ID:             r.ID,
		Title:          r.Title,
		Type:           entity.Type(r.Type),
		StartsAt:       r.StartsAt,
		EndsAt:         r.EndsAt,
		IsActive:       r.IsActive,
		OwnerManagerID: r.OwnerManagerID,
		CreatedAt:      r.CreatedAt,
	}
	if r.Participants != "" {
		if err := json.Unmarshal([]byte(r.Participants), &c.Participants); err != nil {
			return nil, fmt.Errorf("decode participants of contest %s: %w", r.ID, err)
		}
	}
	return c, nil
}

func contests(rows []contestRow) ([]entity.Contest, error) {
	out := make([]entity.Contest, 0, len(rows))
	for _, row := range rows {
		c, err := row.contest()
		if err != nil {
			return nil, err
		}
		out = append(out, *c)
	}
	return out, nil
}
