package conversation_test

import (
	"fmt"
	"testing"
	"time"

	"github.com/aretw0/tripchat/pkg/conversation"
	"github.com/aretw0/tripchat/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type clock struct{ now time.Time }

func (c *clock) Now() time.Time           { return c.now }
func (c *clock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newLedger(cfg conversation.Config) (*conversation.Ledger, *clock) {
	c := &clock{now: time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)}
	return conversation.NewLedger(cfg, conversation.WithClock(c.Now)), c
}

const restaurantList = `Here are some places:
1. Le Comptoir: classic bistro
2. **Septime** - tasting menu
- Chez Janou
* **Breizh Café** crêpes`

func TestExtract(t *testing.T) {
	items := conversation.ListExtractor{}.Extract(restaurantList, 5)
	assert.Equal(t, []string{"Le Comptoir", "Septime", "Chez Janou", "Breizh Café"}, items)

	assert.Equal(t, []string{"Le Comptoir", "Septime"}, conversation.ListExtractor{}.Extract(restaurantList, 2))
	assert.Empty(t, conversation.ListExtractor{}.Extract("Paris is lovely in spring.", 5))
	assert.Equal(t, []string{"Louvre"}, conversation.ListExtractor{}.Extract("**Louvre** is a must", 5))
}

func TestFollowUpDetection(t *testing.T) {
	l, c := newLedger(conversation.DefaultConfig())
	msg := "what about something cheaper?"

	assert.False(t, l.IsFollowUp(msg), "no prior recommendation")

	l.AddTurn(domain.RoleAssistant, restaurantList)
	c.Advance(2 * time.Minute)
	assert.True(t, l.IsFollowUp(msg))

	c.Advance(18 * time.Minute)
	assert.False(t, l.IsFollowUpWithin(msg, 5*time.Minute), "recommendation is 20 minutes old")
	assert.True(t, l.IsFollowUpWithin(msg, 30*time.Minute))
}

func TestHeuristicFollowUp_Rules(t *testing.T) {
	now := time.Now()
	recent := []domain.Recommendation{{Items: []string{"x"}, Timestamp: now.Add(-time.Minute)}}
	h := conversation.NewHeuristicFollowUp(nil, 0)

	cases := map[string]bool{
		"thanks":                          true,
		"is it open late?":                true,
		"I would like to plan a completely different trip next month?": false,
		"Plan a trip to Rome":             false,
		"Tell me more about the second":   true,
		"Calso is a word without indicator": false,
	}
	for text, want := range cases {
		assert.Equal(t, want, h.IsFollowUp(text, recent, now, 5*time.Minute), text)
	}
	assert.False(t, h.IsFollowUp("thanks", nil, now, 5*time.Minute))
}

func TestAddTurn_FollowUpLinksAssistantTurn(t *testing.T) {
	l, c := newLedger(conversation.DefaultConfig())

	l.AddTurn(domain.RoleUser, "restaurants in Paris",
		conversation.WithIntent(domain.IntentGetRecommendations),
		conversation.WithParameters(domain.Parameters{Destination: "Paris", RecommendationType: "restaurants"}))
	reply := l.AddTurn(domain.RoleAssistant, restaurantList)
	c.Advance(time.Minute)

	turn := l.AddTurn(domain.RoleUser, "what about something cheaper?",
		conversation.WithIntent(domain.IntentGetRecommendations), conversation.WithConfidence(0.7))
	assert.Equal(t, reply.ID, turn.FollowUpTo)
	require.NotNil(t, turn.Confidence)
	assert.InDelta(t, 0.7, *turn.Confidence, 1e-9)

	ctx := l.Context()
	assert.Equal(t, domain.PhaseFollowUp, ctx.Phase)
	assert.Equal(t, "Paris", ctx.CurrentDestination)
	require.Len(t, ctx.RecentRecommendations, 1)
	rec := ctx.RecentRecommendations[0]
	assert.Equal(t, "restaurants", rec.Type)
	assert.Equal(t, "Paris", rec.Destination)
	assert.Len(t, rec.Items, 4)
}

func TestAddTurn_ContextUpdates(t *testing.T) {
	l, _ := newLedger(conversation.DefaultConfig())
	assert.Equal(t, domain.PhaseGreeting, l.Context().Phase)

	l.AddTurn(domain.RoleUser, "plan a trip to Lisbon",
		conversation.WithIntent(domain.IntentNewItinerary),
		conversation.WithParameters(domain.Parameters{Destination: "Lisbon", Preferences: []string{"food", "Museums"}}))
	l.AddTurn(domain.RoleUser, "I love food",
		conversation.WithParameters(domain.Parameters{Preferences: []string{"Food", "walking"}}))
	l.AddTurn(domain.RoleUser, "is it safe?",
		conversation.WithIntent(domain.IntentAskQuestions),
		conversation.WithParameters(domain.Parameters{Question: "is it safe?"}))

	ctx := l.Context()
	assert.Equal(t, domain.PhaseAskingQuestions, ctx.Phase)
	assert.Equal(t, "Lisbon", ctx.CurrentDestination)
	assert.Equal(t, []string{"food", "Museums", "walking"}, ctx.MentionedPreferences)
	assert.Equal(t, []string{"is it safe?"}, ctx.PendingFollowUps)

	l.AddTurn(domain.RoleAssistant, "Yes, Lisbon is generally safe.")
	ctx = l.Context()
	assert.Empty(t, ctx.PendingFollowUps)
	assert.Empty(t, ctx.RecentRecommendations, "a reply without list items is not a recommendation")
}

func TestLedger_Bounds(t *testing.T) {
	l, _ := newLedger(conversation.Config{MaxTurns: 3, MaxRecommendations: 2, MaxItems: 1})

	for i := range 5 {
		l.AddTurn(domain.RoleAssistant, fmt.Sprintf("1. Place %d\n2. Other", i))
	}

	turns := l.RecentHistory(0)
	require.Len(t, turns, 3)
	assert.Equal(t, "1. Place 2\n2. Other", turns[0].Content, "oldest turns are dropped")

	recs := l.Context().RecentRecommendations
	require.Len(t, recs, 2)
	assert.Equal(t, []string{"Place 3"}, recs[0].Items)
	assert.Equal(t, []string{"Place 4"}, recs[1].Items)

	assert.Len(t, l.RecentHistory(2), 2)
}

func TestLedger_SnapshotRestore(t *testing.T) {
	l, _ := newLedger(conversation.DefaultConfig())
	l.AddTurn(domain.RoleUser, "hotels in Rome",
		conversation.WithIntent(domain.IntentGetRecommendations),
		conversation.WithParameters(domain.Parameters{Destination: "Rome", RecommendationType: "hotels"}))
	reply := l.AddTurn(domain.RoleAssistant, "- Hotel Artemide\n- Hotel Raphael")

	state := l.Snapshot()

	restored, _ := newLedger(conversation.DefaultConfig())
	restored.Restore(state)
	assert.Equal(t, state, restored.Snapshot())

	next := restored.AddTurn(domain.RoleUser, "thanks")
	assert.Equal(t, reply.ID, next.FollowUpTo)

	restored.Reset()
	assert.Zero(t, restored.Len())
	assert.Equal(t, domain.PhaseGreeting, restored.Context().Phase)
}

func TestLedger_HistoryIsCopied(t *testing.T) {
	l, _ := newLedger(conversation.DefaultConfig())
	l.AddTurn(domain.RoleUser, "x", conversation.WithParameters(domain.Parameters{Preferences: []string{"a"}}))

	h := l.RecentHistory(1)
	h[0].Parameters.Preferences[0] = "mutated"
	h[0].Content = "mutated"

	again := l.RecentHistory(1)
	assert.Equal(t, "x", again[0].Content)
	assert.Equal(t, []string{"a"}, again[0].Parameters.Preferences)
}

func TestContextualSuggestions(t *testing.T) {
	l, _ := newLedger(conversation.DefaultConfig())
	assert.NotEmpty(t, l.ContextualSuggestions())

	l.AddTurn(domain.RoleUser, "museums in Madrid",
		conversation.WithIntent(domain.IntentGetRecommendations),
		conversation.WithParameters(domain.Parameters{Destination: "Madrid", RecommendationType: "museums"}))
	s := l.ContextualSuggestions()
	assert.Contains(t, s, "Show more museums")
	assert.Contains(t, s, "What else is there in Madrid?")
	assert.LessOrEqual(t, len(s), 4)

	l.AddTurn(domain.RoleAssistant, "1. Prado\n2. Reina Sofia")
	l.AddTurn(domain.RoleUser, "thanks")
	assert.Contains(t, l.ContextualSuggestions(), "Tell me more about Prado")
}
