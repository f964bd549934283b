package entity

import (
	"encoding/json"
	"time"
)

// Resource is a link a manager publishes to every coach below it.
type Resource struct {
	ID             string          `json:"id" db:"id"`
	OwnerManagerID string          `json:"owner_manager_id" db:"owner_manager_id"`
	Category       string          `json:"category" db:"category"`
	Title          string          `json:"title" db:"title"`
	URL            string          `json:"url" db:"url"`
	Metadata       json.RawMessage `json:"metadata,omitempty" db:"-"`
	CreatedAt      time.Time       `json:"created_at" db:"created_at"`
}
