package consistency_test

import (
	"fmt"
	"testing"

	"github.com/aretw0/tripchat/pkg/consistency"
	"github.com/aretw0/tripchat/pkg/domain"
	"github.com/stretchr/testify/assert"
)

func turns(contents ...string) []domain.Turn {
	out := make([]domain.Turn, len(contents))
	for i, c := range contents {
		out[i] = domain.Turn{Role: domain.RoleUser, Content: c}
	}
	return out
}

func TestValidate_MismatchDiscardsHistory(t *testing.T) {
	v := consistency.New()
	history := turns("I want a trip to Paris", "something romantic", "with good food")

	assert.False(t, v.Validate(history, "Tokyo"))

	recovered, ok := v.Recover(history, "Tokyo")
	assert.False(t, ok)
	assert.Empty(t, recovered)
}

func TestValidate(t *testing.T) {
	v := consistency.New()

	cases := []struct {
		name        string
		history     []domain.Turn
		destination string
		want        bool
	}{
		{"no phrases", turns("hello", "any tips?"), "Tokyo", true},
		{"no destination", turns("trip to Paris"), "", true},
		{"same place", turns("plan a trip to Paris next week"), "paris", true},
		{"destination contains mention", turns("we will visit Kyoto"), "Kyoto, Japan", true},
		{"mention contains destination", turns("itinerary for New York City"), "new york", true},
		{"plan for", turns("can you plan 3 days for Lisbon"), "Lisbon", true},
		{"plan for mismatch", turns("can you plan 3 days for Lisbon"), "Rome", false},
		{"one of many matches", turns("trip to Paris", "then visit Rome"), "Rome", true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, v.Validate(tc.history, tc.destination))
		})
	}
}

func TestValidate_OnlyScansWindow(t *testing.T) {
	v := consistency.New()
	history := turns("trip to Paris")
	for i := range 10 {
		history = append(history, turns(fmt.Sprintf("message %d", i))...)
	}

	assert.True(t, v.Validate(history, "Tokyo"), "the Paris mention is outside the last 10 turns")

	v.Window = 11
	assert.False(t, v.Validate(history, "Tokyo"))
}

func TestMentions_TrimsStopWords(t *testing.T) {
	v := consistency.New()
	assert.Equal(t, []string{"Paris"}, v.Mentions(turns("a trip to Paris in May")))
	assert.Equal(t, []string{"Louvre"}, v.Mentions(turns("visit the Louvre")))
}
