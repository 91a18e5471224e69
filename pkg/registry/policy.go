package registry

import (
	"fmt"
	"time"

	"github.com/aretw0/tripchat/pkg/domain"
)

// NamespaceID identifies a logical cache.
type NamespaceID string

const (
	UserMessages        NamespaceID = "user-messages"
	ConversationSession NamespaceID = "conversation-session"
	ConversationContext NamespaceID = "conversation-context"
	ConversationHistory NamespaceID = "conversation-history"
	SessionHistory      NamespaceID = "session-history"
	ItineraryData       NamespaceID = "itinerary-data"
	Recommendations     NamespaceID = "recommendations"
)

// Namespaces lists every known namespace.
var Namespaces = []NamespaceID{
	UserMessages,
	ConversationSession,
	ConversationContext,
	ConversationHistory,
	SessionHistory,
	ItineraryData,
	Recommendations,
}

// Valid reports whether n is a known namespace.
func (n NamespaceID) Valid() bool {
	for _, known := range Namespaces {
		if n == known {
			return true
		}
	}
	return false
}

// Policy is the immutable configuration of one namespace.
type Policy struct {
	Namespace   NamespaceID   `mapstructure:"namespace" json:"namespace"`
	TTL         time.Duration `mapstructure:"ttl" json:"ttl"`
	StaleWindow time.Duration `mapstructure:"stale_window" json:"staleWindow"`
	MaxEntries  int           `mapstructure:"max_entries" json:"maxEntries"`
	Persistence bool          `mapstructure:"persistence" json:"persistence"`
	UserScoped  bool          `mapstructure:"user_scoped" json:"userScoped"`
	Compress    bool          `mapstructure:"compress" json:"compress"`
}

// Validate checks the policy before registration.
func (p Policy) Validate() error {
	switch {
	case !p.Namespace.Valid():
		return fmt.Errorf("%w: unknown namespace %q", domain.ErrInvalidPolicy, p.Namespace)
	case p.TTL <= 0:
		return fmt.Errorf("%w: %s: ttl must be positive", domain.ErrInvalidPolicy, p.Namespace)
	case p.StaleWindow < 0:
		return fmt.Errorf("%w: %s: stale window must not be negative", domain.ErrInvalidPolicy, p.Namespace)
	case p.MaxEntries <= 0:
		return fmt.Errorf("%w: %s: max entries must be positive", domain.ErrInvalidPolicy, p.Namespace)
	}
	return nil
}

// DefaultPolicies returns the policy set used by the session manager.
func DefaultPolicies() []Policy {
	return []Policy{
		{Namespace: UserMessages, TTL: 30 * time.Minute, StaleWindow: 5 * time.Minute, MaxEntries: 500, Persistence: true, UserScoped: true},
		{Namespace: ConversationSession, TTL: 24 * time.Hour, MaxEntries: 1000, Persistence: true, UserScoped: true},
		{Namespace: ConversationContext, TTL: 24 * time.Hour, MaxEntries: 1000, Persistence: true, UserScoped: true},
		{Namespace: ConversationHistory, TTL: 24 * time.Hour, MaxEntries: 1000, Persistence: true, UserScoped: true, Compress: true},
		{Namespace: SessionHistory, TTL: 30 * 24 * time.Hour, MaxEntries: 1000, Persistence: true, UserScoped: true, Compress: true},
		{Namespace: ItineraryData, TTL: time.Hour, StaleWindow: 10 * time.Minute, MaxEntries: 200, Persistence: true, UserScoped: true},
		{Namespace: Recommendations, TTL: 30 * time.Minute, StaleWindow: 10 * time.Minute, MaxEntries: 500, UserScoped: true},
	}
}
