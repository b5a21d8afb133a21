package notification

import "github.com/google/uuid"

type Type string

const TypeStreakMilestone Type = "streak_milestone"

// Push is one notification queued for delivery to all of a user's devices.
type Push struct {
	ID     uuid.UUID      `json:"id"`
	UserID string         `json:"userId"`
	Type   Type           `json:"type"`
	Title  string         `json:"title"`
	Body   string         `json:"body"`
	Data   map[string]any `json:"data,omitempty"`
}
