package domain

// Phase is a state of the conversation state machine.
type Phase string

const (
	PhaseGreeting               Phase = "greeting"
	PhaseItineraryPlanning      Phase = "itinerary_planning"
	PhaseSeekingRecommendations Phase = "seeking_recommendations"
	PhaseModifyingItinerary     Phase = "modifying_itinerary"
	PhaseAskingQuestions        Phase = "asking_questions"
	PhaseFollowUp               Phase = "follow_up"
	PhaseGeneral                Phase = "general"
)

// PhaseForIntent maps a classified intent to the phase it drives.
// A follow-up message keeps the conversation in PhaseFollowUp regardless of
// how the classifier labelled it, except for explicit itinerary requests.
func PhaseForIntent(intent Intent, followUp bool) Phase {
	if followUp && intent != IntentNewItinerary {
		return PhaseFollowUp
	}
	switch intent {
	case IntentNewItinerary:
		return PhaseItineraryPlanning
	case IntentModifyExisting:
		return PhaseModifyingItinerary
	case IntentGetRecommendations:
		return PhaseSeekingRecommendations
	case IntentAskQuestions:
		return PhaseAskingQuestions
	default:
		return PhaseGeneral
	}
}
