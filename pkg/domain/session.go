package domain

import (
	"maps"
	"slices"
	"time"
)

// Recommendation is a list of items extracted from one assistant turn.
type Recommendation struct {
	Type        string    `json:"type"`
	Items       []string  `json:"items"`
	Destination string    `json:"destination,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

// ConversationContext aggregates what the turn ledger knows about the dialogue.
type ConversationContext struct {
	CurrentDestination       string           `json:"currentDestination,omitempty"`
	Phase                    Phase            `json:"phase"`
	ActiveRecommendationType string           `json:"activeRecommendationType,omitempty"`
	RecentRecommendations    []Recommendation `json:"recentRecommendations"`
	MentionedPreferences     []string         `json:"mentionedPreferences"`
	PendingFollowUps         []string         `json:"pendingFollowUps"`
}

// Clone returns a deep copy of the context.
func (c ConversationContext) Clone() ConversationContext {
	out := c
	out.RecentRecommendations = make([]Recommendation, len(c.RecentRecommendations))
	for i, r := range c.RecentRecommendations {
		r.Items = slices.Clone(r.Items)
		out.RecentRecommendations[i] = r
	}
	out.MentionedPreferences = slices.Clone(c.MentionedPreferences)
	out.PendingFollowUps = slices.Clone(c.PendingFollowUps)
	return out
}

// Session is the persisted record of one conversation.
type Session struct {
	ID                 string              `json:"id"`
	UserID             string              `json:"userId,omitempty"`
	StartTime          time.Time           `json:"startTime"`
	LastActiveTime     time.Time           `json:"lastActiveTime"`
	Destination        string              `json:"destination,omitempty"`
	TotalMessages      int                 `json:"totalMessages"`
	ConversationPhases []Phase             `json:"conversationPhases"`
	Context            ConversationContext `json:"context"`
	IsActive           bool                `json:"isActive"`

	// IntentCounts feeds the on-demand analytics fold.
	IntentCounts map[Intent]int `json:"intentCounts,omitempty"`
}

// Clone returns a deep copy of the session.
func (s Session) Clone() Session {
	out := s
	out.ConversationPhases = slices.Clone(s.ConversationPhases)
	out.Context = s.Context.Clone()
	out.IntentCounts = maps.Clone(s.IntentCounts)
	return out
}

// HasPhase reports whether the session ever entered the given phase.
func (s *Session) HasPhase(p Phase) bool {
	return slices.Contains(s.ConversationPhases, p)
}

// Expired reports whether the session has been idle longer than timeout.
func (s *Session) Expired(now time.Time, timeout time.Duration) bool {
	return timeout > 0 && now.Sub(s.LastActiveTime) > timeout
}
