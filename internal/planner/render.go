package planner

import (
	"fmt"
	"strings"

	"fabrica/internal/event"
	"fabrica/internal/langdetect"
)

// renderTranslated is the channel-visible form of a translated message in
// modes that show the translation indicator.
func renderTranslated(text, from, to string) string {
	return fmt.Sprintf("%s\n(translated %s → %s)", text, langdetect.Name(from), langdetect.Name(to))
}

// renderUntranslated tags a degraded payload so readers know translation was
// skipped.
func renderUntranslated(text, lang string) string {
	if lang == langdetect.Unknown {
		return text + "\n(untranslated)"
	}
	return fmt.Sprintf("%s\n(untranslated, %s)", text, langdetect.Name(lang))
}

func renderDM(text, channelID, authorID string) string {
	return fmt.Sprintf("[%s] %s: %s", channelID, authorID, text)
}

// renderActivity formats a tracker or source-control event into one broadcast
// line plus optional detail from the summary fields.
func renderActivity(act event.ExternalActivity) string {
	var b strings.Builder

	b.WriteString(kindLabel(act.Kind))
	if act.ProjectOrRepo != "" {
		b.WriteString(" in ")
		b.WriteString(act.ProjectOrRepo)
	}
	if act.Actor != "" {
		b.WriteString(" by ")
		b.WriteString(act.Actor)
	}

	if title := act.Summary["title"]; title != "" {
		b.WriteString(": ")
		b.WriteString(title)
	}
	if num := act.Summary["number"]; num != "" {
		b.WriteString(" (#")
		b.WriteString(num)
		b.WriteString(")")
	}
	if tag := act.Summary["tag"]; tag != "" {
		b.WriteString(" [")
		b.WriteString(tag)
		b.WriteString("]")
	}
	if ref := act.Summary["ref"]; ref != "" && act.Kind == event.KindPush {
		b.WriteString(" on ")
		b.WriteString(ref)
	}
	if commits := act.Summary["commits"]; commits != "" && act.Kind == event.KindPush {
		b.WriteString(" (")
		b.WriteString(commits)
		b.WriteString(" commits)")
	}
	if act.Priority >= 7 {
		b.WriteString(" !priority")
	}
	return b.String()
}

func kindLabel(k event.Kind) string {
	switch k {
	case event.KindPush:
		return "Push"
	case event.KindPROpened:
		return "Pull request opened"
	case event.KindPRMerged:
		return "Pull request merged"
	case event.KindPRClosed:
		return "Pull request closed"
	case event.KindRelease:
		return "Release published"
	case event.KindMilestone:
		return "Milestone update"
	case event.KindIssueOpened:
		return "Issue opened"
	case event.KindIssueUpdated:
		return "Issue updated"
	case event.KindIssueClosed:
		return "Issue closed"
	case event.KindComment:
		return "New comment"
	default:
		return "Activity"
	}
}
