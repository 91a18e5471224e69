package conversation

import (
	"regexp"
	"strings"
)

// RecommendationExtractor pulls item labels out of an assistant message.
type RecommendationExtractor interface {
	Extract(content string, max int) []string
}

var (
	numberedItem = regexp.MustCompile(`^\s*\d+[.)]\s+(.+)$`)
	bulletItem   = regexp.MustCompile(`^\s*[-*•]\s+(.+)$`)
	boldLead     = regexp.MustCompile(`^\s*\*\*(.+?)\*\*`)
	labelCut     = regexp.MustCompile(`\s+[-–—]\s+|:\s`)
)

// ListExtractor reads numbered, bulleted and bold-leading lines.
type ListExtractor struct{}

// Extract implements RecommendationExtractor.
func (ListExtractor) Extract(content string, max int) []string {
	var items []string
	for _, line := range strings.Split(content, "\n") {
		if max > 0 && len(items) >= max {
			break
		}
		var text string
		switch {
		case numberedItem.MatchString(line):
			text = numberedItem.FindStringSubmatch(line)[1]
		case bulletItem.MatchString(line):
			text = bulletItem.FindStringSubmatch(line)[1]
		case boldLead.MatchString(line):
			text = line
		default:
			continue
		}
		if label := itemLabel(text); label != "" {
			items = append(items, label)
		}
	}
	return items
}

// itemLabel keeps the bold lead of an item, or the text before its description.
func itemLabel(text string) string {
	if m := boldLead.FindStringSubmatch(text); m != nil {
		text = m[1]
	} else if loc := labelCut.FindStringIndex(text); loc != nil {
		text = text[:loc[0]]
	}
	text = strings.ReplaceAll(text, "**", "")
	return strings.TrimRight(strings.TrimSpace(text), ".:,;")
}
