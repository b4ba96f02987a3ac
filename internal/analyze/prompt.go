package analyze

import (
	"fmt"
	"strings"

	"github.com/firstissue/scout/internal/model"
)

// Size caps applied when embedding bundle content into the prompt.
// README and CONTRIBUTING arrive pre-truncated from the enricher.
const (
	maxBodyChars    = 2000
	maxCommentChars = 800
)

// schemaInstruction tells the model the exact output contract. Difficulty
// values here are the single set accepted by the parser.
const schemaInstruction = `Respond with a JSON object containing exactly these fields:
- "difficulty": one of "trivial", "easy", "medium", "hard"
- "skills": array of required skill tags (e.g. ["Java", "Flink SQL"])
- "summary": 1-3 sentence description of the core problem
- "steps": ordered array of concrete solution steps
- "estimated_time": rough time to resolve (e.g. "2-4 hours", "1-2 days")

Respond ONLY with the JSON object.`

// BuildPrompt renders a deterministic prompt from the enrichment bundle.
// maxComments bounds how much of the thread is embedded; zero or negative
// embeds the whole thread.
func BuildPrompt(bundle *model.EnrichmentBundle, maxComments int) string {
	issue := bundle.Issue

	var sb strings.Builder
	sb.WriteString("Analyze this GitHub issue for a first-time contributor:\n\n")
	fmt.Fprintf(&sb, "Repository: %s\n", issue.RepoFullName)
	fmt.Fprintf(&sb, "Issue #%d: %s\n", issue.Number, issue.Title)
	if len(issue.Labels) > 0 {
		fmt.Fprintf(&sb, "Labels: %s\n", strings.Join(issue.Labels, ", "))
	}
	fmt.Fprintf(&sb, "Created: %s\n", issue.CreatedAt.Format("2006-01-02"))

	sb.WriteString("\nIssue description:\n")
	sb.WriteString(capChars(issue.Body, maxBodyChars))
	sb.WriteString("\n")

	if len(bundle.Thread) > 0 {
		sb.WriteString("\nDiscussion thread:\n")
		thread := bundle.Thread
		if maxComments > 0 && len(thread) > maxComments {
			fmt.Fprintf(&sb, "(showing first %d of %d comments)\n", maxComments, len(thread))
			thread = thread[:maxComments]
		}
		for _, c := range thread {
			fmt.Fprintf(&sb, "- %s: %s\n", c.Author, capChars(c.Body, maxCommentChars))
		}
	}

	if bundle.Readme != "" {
		sb.WriteString("\nProject README:\n")
		sb.WriteString(bundle.Readme)
		sb.WriteString("\n")
	}

	if bundle.Contributing != "" {
		sb.WriteString("\nContributing guide:\n")
		sb.WriteString(bundle.Contributing)
		sb.WriteString("\n")
	}

	sb.WriteString("\n")
	sb.WriteString(schemaInstruction)

	return sb.String()
}

func capChars(s string, max int) string {
	runes := []rune(s)
	if max <= 0 || len(runes) <= max {
		return s
	}
	return string(runes[:max]) + "..."
}
