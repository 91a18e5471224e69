package domain

import "time"

// Role identifies the author of a turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one message of the dialogue. Turns are never mutated once recorded.
type Turn struct {
	ID         string      `json:"id"`
	Role       Role        `json:"role"`
	Content    string      `json:"content"`
	Timestamp  time.Time   `json:"timestamp"`
	Intent     Intent      `json:"intent,omitempty"`
	Parameters *Parameters `json:"parameters,omitempty"`
	Confidence *float64    `json:"confidence,omitempty"`
	FollowUpTo string      `json:"followUpTo,omitempty"`
}
