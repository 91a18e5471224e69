package conversation

import (
	"regexp"
	"strings"
	"time"

	"github.com/aretw0/tripchat/pkg/domain"
)

// FollowUpClassifier decides whether a user message refers back to a recent
// recommendation.
type FollowUpClassifier interface {
	IsFollowUp(text string, recent []domain.Recommendation, now time.Time, within time.Duration) bool
}

// DefaultIndicators are phrases that mark a message as a reaction to
// something the assistant just suggested.
var DefaultIndicators = []string{
	"what about", "how about", "also", "instead", "another", "any other",
	"something else", "what else", "more like", "similar", "tell me more",
	"more about", "cheaper", "closer", "the first", "the second", "the last",
	"that one", "thanks", "thank you",
}

// HeuristicFollowUp is the lexical follow-up classifier. A message is a
// follow-up when a recommendation was recorded within the window and the
// message either contains an indicator phrase or is a short question.
type HeuristicFollowUp struct {
	indicators []*regexp.Regexp
	maxWords   int
}

// NewHeuristicFollowUp builds the classifier. Empty indicators use
// DefaultIndicators; maxWords <= 0 uses 8.
func NewHeuristicFollowUp(indicators []string, maxWords int) *HeuristicFollowUp {
	if len(indicators) == 0 {
		indicators = DefaultIndicators
	}
	if maxWords <= 0 {
		maxWords = 8
	}
	h := &HeuristicFollowUp{maxWords: maxWords}
	for _, phrase := range indicators {
		h.indicators = append(h.indicators, regexp.MustCompile(`(?i)\b`+regexp.QuoteMeta(phrase)+`\b`))
	}
	return h
}

// IsFollowUp implements FollowUpClassifier.
func (h *HeuristicFollowUp) IsFollowUp(text string, recent []domain.Recommendation, now time.Time, within time.Duration) bool {
	if !recentWithin(recent, now, within) {
		return false
	}
	return h.hasIndicator(text) || h.isShortQuestion(text)
}

func (h *HeuristicFollowUp) hasIndicator(text string) bool {
	for _, re := range h.indicators {
		if re.MatchString(text) {
			return true
		}
	}
	return false
}

func (h *HeuristicFollowUp) isShortQuestion(text string) bool {
	text = strings.TrimSpace(text)
	return strings.HasSuffix(text, "?") && len(strings.Fields(text)) <= h.maxWords
}

func recentWithin(recs []domain.Recommendation, now time.Time, within time.Duration) bool {
	for _, r := range recs {
		if now.Sub(r.Timestamp) <= within {
			return true
		}
	}
	return false
}
