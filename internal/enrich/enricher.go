// Package enrich builds the per-issue context bundle over MCP.
package enrich

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/firstissue/scout/internal/log"
	"github.com/firstissue/scout/internal/model"
	"github.com/firstissue/scout/internal/retry"
)

// ErrEnrichmentUnavailable marks an MCP failure after retries. The
// orchestrator treats it as a skip for that issue only.
var ErrEnrichmentUnavailable = errors.New("enrichment unavailable")

// Tool names the MCP server must expose.
const (
	toolIssueThread  = "get_issue_comments"
	toolReadme       = "get_readme"
	toolContributing = "get_contributing"
)

// TruncationMarker is appended when project docs exceed the character
// budget, so the prompt always discloses incompleteness to the LLM.
const TruncationMarker = "\n...[content truncated]"

// Enricher retrieves the issue thread and repository docs for one issue.
type Enricher struct {
	tools    ToolCaller
	maxChars int
	retry    retry.Policy
}

// New creates an Enricher. maxChars bounds README and CONTRIBUTING size.
func New(tools ToolCaller, maxChars int, policy retry.Policy) *Enricher {
	return &Enricher{
		tools:    tools,
		maxChars: maxChars,
		retry:    policy,
	}
}

// wireComment tolerates both flat {author, body} and GitHub-shaped
// {user: {login}, body} thread encodings.
type wireComment struct {
	Author string `json:"author"`
	Body   string `json:"body"`
	User   *struct {
		Login string `json:"login"`
	} `json:"user,omitempty"`
}

// Enrich fetches the thread and README concurrently and merges them with
// the issue. CONTRIBUTING is best effort: its absence never fails the
// bundle. Thread and README are addressed by the issue's own identifiers,
// so a bundle can never mix repositories.
func (e *Enricher) Enrich(ctx context.Context, issue model.Issue) (*model.EnrichmentBundle, error) {
	var (
		thread       []model.Comment
		readme       string
		contributing string
	)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		raw, err := e.callTool(gctx, toolIssueThread, map[string]any{
			"repo":   issue.RepoFullName,
			"number": issue.Number,
		})
		if err != nil {
			return fmt.Errorf("issue thread: %w", err)
		}
		thread, err = parseThread(raw)
		if err != nil {
			return fmt.Errorf("issue thread: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		raw, err := e.callTool(gctx, toolReadme, map[string]any{
			"repo": issue.RepoFullName,
		})
		if err != nil {
			return fmt.Errorf("readme: %w", err)
		}
		readme = raw
		return nil
	})

	g.Go(func() error {
		raw, err := e.callTool(gctx, toolContributing, map[string]any{
			"repo": issue.RepoFullName,
		})
		if err != nil {
			log.Debug("no contributing guide", "repo", issue.RepoFullName, "error", err)
			return nil
		}
		contributing = raw
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEnrichmentUnavailable, err)
	}

	bundle := &model.EnrichmentBundle{
		Issue:  issue,
		Thread: thread,
	}
	bundle.Readme, bundle.ReadmeTruncated = Truncate(readme, e.maxChars)
	bundle.Contributing, _ = Truncate(contributing, e.maxChars)

	log.Debug("enriched issue",
		"key", issue.DedupKey(),
		"comments", len(thread),
		"readmeChars", len(bundle.Readme),
		"readmeTruncated", bundle.ReadmeTruncated)

	return bundle, nil
}

func (e *Enricher) callTool(ctx context.Context, name string, args map[string]any) (string, error) {
	var out string
	err := e.retry.Do(ctx, "mcp "+name, func() error {
		var callErr error
		out, callErr = e.tools.CallTool(ctx, name, args)
		return callErr
	})
	return out, err
}

func parseThread(raw string) ([]model.Comment, error) {
	if raw == "" {
		return nil, nil
	}

	var wire []wireComment
	if err := json.Unmarshal([]byte(raw), &wire); err != nil {
		return nil, fmt.Errorf("malformed thread payload: %w", err)
	}

	comments := make([]model.Comment, 0, len(wire))
	for _, w := range wire {
		author := w.Author
		if author == "" && w.User != nil {
			author = w.User.Login
		}
		comments = append(comments, model.Comment{
			Author: author,
			Body:   w.Body,
		})
	}
	return comments, nil
}

// Truncate cuts s to at most max characters and appends the truncation
// marker. A non-positive max disables truncation.
func Truncate(s string, max int) (string, bool) {
	if max <= 0 {
		return s, false
	}

	runes := []rune(s)
	if len(runes) <= max {
		return s, false
	}

	return string(runes[:max]) + TruncationMarker, true
}
