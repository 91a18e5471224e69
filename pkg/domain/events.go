package domain

import (
	"context"
	"time"
)

// EventType defines the category of the event.
type EventType string

const (
	EventSessionStart EventType = "session_start"
	EventSessionEnd   EventType = "session_end"
	EventTurn         EventType = "turn"
)

// EventBase contains common fields for all events.
type EventBase struct {
	Timestamp time.Time `json:"timestamp"`
	Type      EventType `json:"type"`
	SessionID string    `json:"sessionId"`
	UserID    string    `json:"userId,omitempty"`
}

// SessionEvent is emitted when a session begins or ends.
type SessionEvent struct {
	EventBase
	Resumed       bool   `json:"resumed,omitempty"`
	Reason        string `json:"reason,omitempty"` // "ended", "timeout", "replaced"
	TotalMessages int    `json:"totalMessages"`
}

// TurnEvent is emitted after a turn has been tracked.
type TurnEvent struct {
	EventBase
	Role     Role   `json:"role"`
	Intent   Intent `json:"intent,omitempty"`
	Phase    Phase  `json:"phase"`
	FollowUp bool   `json:"followUp,omitempty"`
}

// LifecycleHooks defines callbacks for session observability.
type LifecycleHooks struct {
	OnSessionStart func(context.Context, *SessionEvent)
	OnSessionEnd   func(context.Context, *SessionEvent)
	OnTurn         func(context.Context, *TurnEvent)
}
