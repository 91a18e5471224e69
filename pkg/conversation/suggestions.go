package conversation

import (
	"fmt"

	"github.com/aretw0/tripchat/pkg/domain"
)

const maxSuggestions = 4

// ContextualSuggestions proposes next messages for the current phase.
func (l *Ledger) ContextualSuggestions() []string {
	return Suggest(l.Context())
}

// Suggest derives suggestions from a conversation context.
func Suggest(c domain.ConversationContext) []string {
	dest := c.CurrentDestination
	var out []string

	switch c.Phase {
	case domain.PhaseGreeting:
		if dest != "" {
			out = append(out, fmt.Sprintf("Plan a 3-day trip to %s", dest))
		}
		out = append(out, "Plan a weekend getaway", "Recommend a destination for me", "What should I pack?")

	case domain.PhaseItineraryPlanning:
		out = append(out, "Add more activities", "Adjust the daily budget")
		if dest != "" {
			out = append(out, fmt.Sprintf("Find restaurants in %s", dest), fmt.Sprintf("Where to stay in %s?", dest))
		} else {
			out = append(out, "Suggest a destination")
		}

	case domain.PhaseSeekingRecommendations:
		kind := c.ActiveRecommendationType
		if kind == "" {
			kind = "options"
		}
		out = append(out, fmt.Sprintf("Show more %s", kind), "Something cheaper?", "Add the first one to my itinerary")
		if dest != "" {
			out = append(out, fmt.Sprintf("What else is there in %s?", dest))
		}

	case domain.PhaseModifyingItinerary:
		out = append(out, "Show the updated itinerary", "Undo the last change", "Swap two days")

	case domain.PhaseAskingQuestions:
		if dest != "" {
			out = append(out,
				fmt.Sprintf("Best time to visit %s?", dest),
				fmt.Sprintf("How do I get around %s?", dest))
		}
		out = append(out, "Do I need a visa?", "Plan an itinerary from this")

	case domain.PhaseFollowUp:
		if n := len(c.RecentRecommendations); n > 0 {
			latest := c.RecentRecommendations[n-1]
			if len(latest.Items) > 0 {
				out = append(out, fmt.Sprintf("Tell me more about %s", latest.Items[0]))
			}
		}
		out = append(out, "Show alternatives", "Add it to my itinerary", "Something closer?")

	default:
		out = append(out, "Plan a new trip", "Get recommendations")
		if dest != "" {
			out = append(out, fmt.Sprintf("Things to do in %s", dest))
		}
	}

	if len(out) > maxSuggestions {
		out = out[:maxSuggestions]
	}
	return out
}
