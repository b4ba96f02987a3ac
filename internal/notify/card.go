package notify

import (
	"fmt"
	"strings"
	"time"

	"github.com/firstissue/scout/internal/model"
)

// headerTemplate maps difficulty to a Feishu card header color.
func headerTemplate(d model.Difficulty) string {
	switch d {
	case model.DifficultyTrivial:
		return "green"
	case model.DifficultyEasy:
		return "turquoise"
	case model.DifficultyMedium:
		return "orange"
	case model.DifficultyHard:
		return "red"
	default:
		return "blue"
	}
}

// BuildIssueCard renders the fixed-layout interactive card for one
// analyzed issue: title, repo link, difficulty, skills, summary, steps.
func BuildIssueCard(issue model.Issue, analysis *model.Analysis) map[string]any {
	title := issue.Title
	if len([]rune(title)) > 60 {
		title = string([]rune(title)[:60]) + "..."
	}

	var steps strings.Builder
	for i, step := range analysis.Steps {
		fmt.Fprintf(&steps, "%d. %s\n", i+1, step)
	}

	fields := []any{
		shortField(fmt.Sprintf("**Difficulty**: %s", analysis.Difficulty)),
		shortField(fmt.Sprintf("**Estimated time**: %s", orUnknown(analysis.EstimatedTime))),
		wideField(fmt.Sprintf("**Required skills**: %s", strings.Join(analysis.Skills, ", "))),
	}

	elements := []any{
		markdownBlock(fmt.Sprintf("**Repo**: %s\n**Issue**: #%d - [%s](%s)",
			issue.RepoFullName, issue.Number, issue.Title, issue.HTMLURL)),
		map[string]any{"tag": "hr"},
		map[string]any{"tag": "div", "fields": fields},
		markdownBlock(fmt.Sprintf("**Core problem**:\n%s", analysis.Summary)),
		markdownBlock(fmt.Sprintf("**Solution plan**:\n%s", steps.String())),
		map[string]any{"tag": "hr"},
		map[string]any{
			"tag": "action",
			"actions": []any{
				map[string]any{
					"tag":  "button",
					"text": map[string]any{"tag": "plain_text", "content": "View issue"},
					"type": "primary",
					"url":  issue.HTMLURL,
				},
			},
		},
		noteBlock(fmt.Sprintf("Generated: %s", time.Now().Format("2006-01-02 15:04:05"))),
	}

	return map[string]any{
		"config": map[string]any{"wide_screen_mode": true},
		"header": map[string]any{
			"title": map[string]any{
				"tag":     "plain_text",
				"content": "Good first issue: " + title,
			},
			"template": headerTemplate(analysis.Difficulty),
		},
		"elements": elements,
	}
}

// BuildDigestCard renders the per-run summary card.
func BuildDigestCard(summary *model.RunSummary) map[string]any {
	var body strings.Builder
	fmt.Fprintf(&body, "**Fetched**: %d | **Delivered**: %d | **Skipped**: %d | **Failed**: %d\n",
		summary.Fetched, summary.Delivered, summary.Skipped, summary.Failed)

	if len(summary.FailedRepos) > 0 {
		fmt.Fprintf(&body, "**Unavailable repos**: %s\n", strings.Join(summary.FailedRepos, ", "))
	}
	for reason, count := range summary.FailuresByReason() {
		fmt.Fprintf(&body, "- %s: %d\n", reason, count)
	}

	return map[string]any{
		"config": map[string]any{"wide_screen_mode": true},
		"header": map[string]any{
			"title": map[string]any{
				"tag":     "plain_text",
				"content": "Contribution scout run summary",
			},
			"template": "blue",
		},
		"elements": []any{
			markdownBlock(body.String()),
			noteBlock(fmt.Sprintf("Report time: %s", time.Now().Format("2006-01-02 15:04:05"))),
		},
	}
}

func markdownBlock(content string) map[string]any {
	return map[string]any{
		"tag": "div",
		"text": map[string]any{
			"tag":     "lark_md",
			"content": content,
		},
	}
}

func noteBlock(content string) map[string]any {
	return map[string]any{
		"tag": "note",
		"elements": []any{
			map[string]any{"tag": "plain_text", "content": content},
		},
	}
}

func shortField(content string) map[string]any {
	return map[string]any{
		"is_short": true,
		"text":     map[string]any{"tag": "lark_md", "content": content},
	}
}

func wideField(content string) map[string]any {
	return map[string]any{
		"is_short": false,
		"text":     map[string]any{"tag": "lark_md", "content": content},
	}
}

func orUnknown(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}
