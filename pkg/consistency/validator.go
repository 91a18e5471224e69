// Package consistency checks that a restored conversation still talks about
// the destination its session recorded.
package consistency

import (
	"regexp"
	"strings"

	"github.com/aretw0/tripchat/pkg/domain"
)

// DefaultWindow is how many trailing turns are scanned.
const DefaultWindow = 10

var destinationPhrases = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\btrip\s+to\s+(\p{L}[\p{L}'-]*(?:\s+\p{L}[\p{L}'-]*){0,2})`),
	regexp.MustCompile(`(?i)\bvisit(?:ing)?\s+(\p{L}[\p{L}'-]*(?:\s+\p{L}[\p{L}'-]*){0,2})`),
	regexp.MustCompile(`(?i)\bitinerary\s+for\s+(\p{L}[\p{L}'-]*(?:\s+\p{L}[\p{L}'-]*){0,2})`),
	regexp.MustCompile(`(?i)\bplan(?:ning)?\s+(?:\S+\s+){0,4}?(?:to|for)\s+(\p{L}[\p{L}'-]*(?:\s+\p{L}[\p{L}'-]*){0,2})`),
}

var stopWords = map[string]bool{
	"a": true, "an": true, "the": true, "my": true, "our": true, "me": true, "us": true,
	"in": true, "on": true, "at": true, "for": true, "with": true, "and": true, "or": true,
	"to": true, "from": true, "next": true, "this": true, "during": true, "some": true,
	"go": true, "visit": true, "see": true, "be": true,
}

// Validator compares the destinations mentioned in recent turns with the
// session destination. The overlap test is a best-effort heuristic.
type Validator struct {
	Window int
}

// New returns a validator scanning DefaultWindow turns.
func New() *Validator {
	return &Validator{Window: DefaultWindow}
}

// Mentions returns the destination candidates found in the scanned turns.
func (v *Validator) Mentions(turns []domain.Turn) []string {
	window := v.Window
	if window <= 0 {
		window = DefaultWindow
	}
	if len(turns) > window {
		turns = turns[len(turns)-window:]
	}

	var out []string
	for _, t := range turns {
		for _, re := range destinationPhrases {
			for _, m := range re.FindAllStringSubmatch(t.Content, -1) {
				if place := trimPlace(m[1]); place != "" {
					out = append(out, place)
				}
			}
		}
	}
	return out
}

// Validate reports whether turns are consistent with destination. With no
// destination phrase in the window, or no destination recorded, there is no
// evidence of conflict.
func (v *Validator) Validate(turns []domain.Turn, destination string) bool {
	destination = strings.ToLower(strings.TrimSpace(destination))
	if destination == "" {
		return true
	}
	mentions := v.Mentions(turns)
	if len(mentions) == 0 {
		return true
	}
	for _, m := range mentions {
		m = strings.ToLower(m)
		if strings.Contains(m, destination) || strings.Contains(destination, m) {
			return true
		}
	}
	return false
}

// Recover returns turns unchanged when they are consistent with destination
// and an empty history otherwise.
func (v *Validator) Recover(turns []domain.Turn, destination string) ([]domain.Turn, bool) {
	if v.Validate(turns, destination) {
		return turns, true
	}
	return []domain.Turn{}, false
}

// trimPlace drops leading stop words and cuts the candidate at the next one.
func trimPlace(s string) string {
	words := strings.Fields(s)
	for len(words) > 0 && stopWords[strings.ToLower(words[0])] {
		words = words[1:]
	}
	for i, w := range words {
		if stopWords[strings.ToLower(w)] {
			words = words[:i]
			break
		}
	}
	place := strings.Join(words, " ")
	if len([]rune(place)) < 2 {
		return ""
	}
	return place
}
