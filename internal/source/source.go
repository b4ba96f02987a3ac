// Package source fetches and normalizes GitHub issues for the pipeline.
package source

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/go-github/v57/github"
	"golang.org/x/oauth2"
	"golang.org/x/sync/errgroup"

	"github.com/firstissue/scout/internal/log"
	"github.com/firstissue/scout/internal/model"
	"github.com/firstissue/scout/internal/retry"
)

// ErrSourceUnavailable marks a per-repo fetch failure. One repo failing
// never aborts the others; the failure is reported in the side list.
var ErrSourceUnavailable = errors.New("issue source unavailable")

// RepoError pairs a failed repo with its cause.
type RepoError struct {
	Repo string
	Err  error
}

func (e *RepoError) Error() string {
	return fmt.Sprintf("repo %s: %v", e.Repo, e.Err)
}

func (e *RepoError) Unwrap() error { return e.Err }

// IssueLister is the slice of the GitHub API the adapter consumes.
// *github.IssuesService satisfies it; tests supply fakes.
type IssueLister interface {
	ListByRepo(ctx context.Context, owner, repo string, opts *github.IssueListByRepoOptions) ([]*github.Issue, *github.Response, error)
}

// Adapter lists open issues across the configured repositories and
// normalizes them into model.Issue records.
type Adapter struct {
	issues IssueLister
	labels []string
	retry  retry.Policy
}

// New creates an Adapter backed by the GitHub API using a personal access
// token.
func New(token string, labels []string, policy retry.Policy) (*Adapter, error) {
	if token == "" {
		return nil, fmt.Errorf("GitHub token not provided, set GITHUB_TOKEN")
	}

	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
	tc := oauth2.NewClient(context.Background(), ts)
	client := github.NewClient(tc)

	return NewWithLister(client.Issues, labels, policy), nil
}

// NewWithLister creates an Adapter with an explicit lister (tests).
func NewWithLister(lister IssueLister, labels []string, policy retry.Policy) *Adapter {
	return &Adapter{
		issues: lister,
		labels: labels,
		retry:  policy,
	}
}

// Fetch lists issues for every repo in parallel. A zero since means a full
// historical scan. Returns the normalized issues, the side list of failed
// repos, and an error only when no repos are configured.
func (a *Adapter) Fetch(ctx context.Context, repos []string, since time.Time) ([]model.Issue, []RepoError, error) {
	if len(repos) == 0 {
		return nil, nil, fmt.Errorf("no repositories configured")
	}

	var (
		mu     sync.Mutex
		all    []model.Issue
		failed []RepoError
	)

	g, gctx := errgroup.WithContext(ctx)
	for _, repo := range repos {
		g.Go(func() error {
			issues, err := a.fetchRepo(gctx, repo, since)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				log.Warn("repo fetch failed", "repo", repo, "error", err)
				failed = append(failed, RepoError{
					Repo: repo,
					Err:  fmt.Errorf("%w: %v", ErrSourceUnavailable, err),
				})
				return nil
			}
			all = append(all, issues...)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, failed, err
	}

	return dedupeByKey(all), failed, nil
}

// fetchRepo lists one repository. When label filtering is configured the
// adapter issues one query per label and merges, since the GitHub labels
// parameter intersects rather than unions.
func (a *Adapter) fetchRepo(ctx context.Context, repo string, since time.Time) ([]model.Issue, error) {
	owner, name, ok := splitRepo(repo)
	if !ok {
		return nil, fmt.Errorf("invalid repo name %q, want owner/name", repo)
	}

	labelSets := [][]string{nil}
	if len(a.labels) > 0 {
		labelSets = labelSets[:0]
		for _, l := range a.labels {
			labelSets = append(labelSets, []string{l})
		}
	}

	var issues []model.Issue
	for _, labels := range labelSets {
		page, err := a.listPages(ctx, owner, name, labels, since)
		if err != nil {
			return nil, err
		}
		issues = append(issues, page...)
	}

	log.Info("fetched repo", "repo", repo, "issues", len(issues))
	return issues, nil
}

func (a *Adapter) listPages(ctx context.Context, owner, name string, labels []string, since time.Time) ([]model.Issue, error) {
	opts := &github.IssueListByRepoOptions{
		State:       "open",
		Labels:      labels,
		ListOptions: github.ListOptions{PerPage: 100},
	}
	if !since.IsZero() {
		opts.Since = since
	}

	var out []model.Issue
	for {
		var (
			batch []*github.Issue
			resp  *github.Response
		)
		err := a.retry.Do(ctx, "github list issues", func() error {
			var listErr error
			batch, resp, listErr = a.issues.ListByRepo(ctx, owner, name, opts)
			return listErr
		})
		if err != nil {
			return nil, err
		}

		for _, gi := range batch {
			// The issues endpoint also returns pull requests.
			if gi.IsPullRequest() {
				continue
			}
			out = append(out, normalize(owner+"/"+name, gi))
		}

		if resp == nil || resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}

	return out, nil
}

func normalize(repoFullName string, gi *github.Issue) model.Issue {
	labels := make([]string, 0, len(gi.Labels))
	for _, l := range gi.Labels {
		labels = append(labels, l.GetName())
	}

	return model.Issue{
		RepoFullName: repoFullName,
		Number:       gi.GetNumber(),
		Title:        gi.GetTitle(),
		Body:         gi.GetBody(),
		Labels:       labels,
		State:        gi.GetState(),
		HTMLURL:      gi.GetHTMLURL(),
		CreatedAt:    gi.GetCreatedAt().Time,
		CommentCount: gi.GetComments(),
	}
}

// dedupeByKey drops duplicate (repo, number) pairs, which occur when an
// issue carries more than one of the configured labels.
func dedupeByKey(issues []model.Issue) []model.Issue {
	seen := make(map[string]bool, len(issues))
	out := make([]model.Issue, 0, len(issues))
	for _, is := range issues {
		key := is.DedupKey()
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, is)
	}
	return out
}

func splitRepo(fullName string) (owner, name string, ok bool) {
	parts := strings.Split(fullName, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", false
	}
	return parts[0], parts[1], true
}
