package domain

// Intent is the classification an upstream classifier assigns to a user message.
type Intent string

const (
	IntentNewItinerary       Intent = "NEW_ITINERARY"
	IntentModifyExisting     Intent = "MODIFY_EXISTING"
	IntentGetRecommendations Intent = "GET_RECOMMENDATIONS"
	IntentAskQuestions       Intent = "ASK_QUESTIONS"
	IntentGeneralChat        Intent = "GENERAL_CHAT"
)

// Valid reports whether the intent belongs to the classifier vocabulary.
func (i Intent) Valid() bool {
	switch i {
	case IntentNewItinerary, IntentModifyExisting, IntentGetRecommendations,
		IntentAskQuestions, IntentGeneralChat:
		return true
	}
	return false
}

// Parameters are the slots extracted by the classifier alongside the intent.
// The core treats them as trusted input.
type Parameters struct {
	Destination         string         `json:"destination,omitempty"`
	Location            string         `json:"location,omitempty"`
	RecommendationType  string         `json:"recommendationType,omitempty"`
	ModificationDetails string         `json:"modificationDetails,omitempty"`
	Question            string         `json:"question,omitempty"`
	Preferences         []string       `json:"preferences,omitempty"`
	Extra               map[string]any `json:"extra,omitempty"`
}

// Place returns the destination, falling back to the location slot.
func (p *Parameters) Place() string {
	if p == nil {
		return ""
	}
	if p.Destination != "" {
		return p.Destination
	}
	return p.Location
}
