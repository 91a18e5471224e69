package tui

import (
	"fmt"
	"os"
	"strings"

	"github.com/aretw0/tripchat/pkg/domain"
	"github.com/charmbracelet/glamour"
	"golang.org/x/term"
)

// Renderer turns markdown into terminal output.
type Renderer func(markdown string) (string, error)

// NewRenderer returns a glamour renderer when out is a terminal and a
// pass-through otherwise, so piped output stays plain markdown.
func NewRenderer(out *os.File) Renderer {
	if out == nil || !term.IsTerminal(int(out.Fd())) {
		return Plain
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(), // Automatically detect light/dark background
		glamour.WithWordWrap(width(out)),
	)
	if err != nil {
		return Plain
	}
	return r.Render
}

// Plain returns markdown unchanged.
func Plain(markdown string) (string, error) {
	return markdown, nil
}

func width(out *os.File) int {
	w, _, err := term.GetSize(int(out.Fd()))
	if err != nil || w <= 0 {
		return 80
	}
	return min(w, 120)
}

// SessionMarkdown describes a session.
func SessionMarkdown(s *domain.Session) string {
	var b strings.Builder
	fmt.Fprintf(&b, "## Session `%s`\n\n", s.ID)
	if s.Destination != "" {
		fmt.Fprintf(&b, "- **Destination:** %s\n", s.Destination)
	}
	state := "ended"
	if s.IsActive {
		state = "active"
	}
	fmt.Fprintf(&b, "- **State:** %s\n", state)
	fmt.Fprintf(&b, "- **Started:** %s\n", s.StartTime.Format("2006-01-02 15:04"))
	fmt.Fprintf(&b, "- **Last active:** %s\n", s.LastActiveTime.Format("2006-01-02 15:04"))
	fmt.Fprintf(&b, "- **Messages:** %d\n", s.TotalMessages)
	fmt.Fprintf(&b, "- **Phase:** %s\n", s.Context.Phase)
	if len(s.ConversationPhases) > 0 {
		phases := make([]string, len(s.ConversationPhases))
		for i, p := range s.ConversationPhases {
			phases[i] = string(p)
		}
		fmt.Fprintf(&b, "- **Phases:** %s\n", strings.Join(phases, " → "))
	}
	if len(s.Context.MentionedPreferences) > 0 {
		fmt.Fprintf(&b, "- **Preferences:** %s\n", strings.Join(s.Context.MentionedPreferences, ", "))
	}
	return b.String()
}

// HistoryMarkdown renders turns as a transcript.
func HistoryMarkdown(turns []domain.Turn) string {
	if len(turns) == 0 {
		return "_No conversation history._\n"
	}
	var b strings.Builder
	for _, t := range turns {
		label := "You"
		if t.Role == domain.RoleAssistant {
			label = "Assistant"
		}
		fmt.Fprintf(&b, "**%s** _%s_", label, t.Timestamp.Format("15:04"))
		if t.Intent != "" {
			fmt.Fprintf(&b, " `%s`", t.Intent)
		}
		fmt.Fprintf(&b, "\n\n%s\n\n", t.Content)
	}
	return b.String()
}

// SuggestionsMarkdown renders suggested next messages.
func SuggestionsMarkdown(suggestions []string) string {
	if len(suggestions) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("### Try asking\n\n")
	for _, s := range suggestions {
		fmt.Fprintf(&b, "- %s\n", s)
	}
	return b.String()
}

// AnalyticsMarkdown renders a user's analytics.
func AnalyticsMarkdown(userID string, a domain.Analytics) string {
	var b strings.Builder
	fmt.Fprintf(&b, "## Analytics for %s\n\n", userID)
	fmt.Fprintf(&b, "| Metric | Value |\n|---|---|\n")
	fmt.Fprintf(&b, "| Sessions | %d |\n", a.TotalSessions)
	fmt.Fprintf(&b, "| Avg. messages | %.1f |\n", a.AverageSessionLength)
	fmt.Fprintf(&b, "| Planning conversion | %.0f%% |\n\n", a.ConversionRate)
	writeFrequencies(&b, "Top intents", a.TopIntents)
	writeFrequencies(&b, "Top destinations", a.TopDestinations)
	return b.String()
}

func writeFrequencies(b *strings.Builder, title string, fs []domain.Frequency) {
	if len(fs) == 0 {
		return
	}
	fmt.Fprintf(b, "### %s\n\n", title)
	for _, f := range fs {
		fmt.Fprintf(b, "1. %s (%d)\n", f.Label, f.Count)
	}
	b.WriteString("\n")
}
