package source

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/go-github/v57/github"

	"github.com/firstissue/scout/internal/retry"
)

// fakeLister serves canned issues per repo and records the queries made.
type fakeLister struct {
	issues  map[string][]*github.Issue // keyed by owner/repo
	failing map[string]error
	queries []string
}

func (f *fakeLister) ListByRepo(_ context.Context, owner, repo string, opts *github.IssueListByRepoOptions) ([]*github.Issue, *github.Response, error) {
	key := owner + "/" + repo
	f.queries = append(f.queries, fmt.Sprintf("%s labels=%v page=%d", key, opts.Labels, opts.Page))

	if err := f.failing[key]; err != nil {
		return nil, nil, err
	}
	return f.issues[key], &github.Response{NextPage: 0}, nil
}

func makeGHIssue(number int, title string, labels ...string) *github.Issue {
	ghLabels := make([]*github.Label, 0, len(labels))
	for _, l := range labels {
		ghLabels = append(ghLabels, &github.Label{Name: github.String(l)})
	}
	return &github.Issue{
		Number:    github.Int(number),
		Title:     github.String(title),
		State:     github.String("open"),
		Labels:    ghLabels,
		HTMLURL:   github.String(fmt.Sprintf("https://github.com/x/y/issues/%d", number)),
		CreatedAt: &github.Timestamp{Time: time.Now()},
	}
}

func testPolicy() retry.Policy {
	return retry.Policy{MaxAttempts: 1}
}

func TestFetchNormalizes(t *testing.T) {
	lister := &fakeLister{
		issues: map[string][]*github.Issue{
			"apache/doris": {makeGHIssue(123, "Fix typo", "good first issue")},
		},
	}

	a := NewWithLister(lister, nil, testPolicy())
	issues, failed, err := a.Fetch(context.Background(), []string{"apache/doris"}, time.Time{})
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(failed) != 0 {
		t.Fatalf("failed repos = %v, want none", failed)
	}
	if len(issues) != 1 {
		t.Fatalf("issues = %d, want 1", len(issues))
	}

	got := issues[0]
	if got.DedupKey() != "apache/doris#123" {
		t.Errorf("key = %q, want apache/doris#123", got.DedupKey())
	}
	if len(got.Labels) != 1 || got.Labels[0] != "good first issue" {
		t.Errorf("labels = %v", got.Labels)
	}
}

func TestFetchFiltersPullRequests(t *testing.T) {
	pr := makeGHIssue(7, "A pull request")
	pr.PullRequestLinks = &github.PullRequestLinks{URL: github.String("https://api.github.com/x")}

	lister := &fakeLister{
		issues: map[string][]*github.Issue{
			"a/b": {pr, makeGHIssue(8, "A real issue")},
		},
	}

	a := NewWithLister(lister, nil, testPolicy())
	issues, _, err := a.Fetch(context.Background(), []string{"a/b"}, time.Time{})
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(issues) != 1 || issues[0].Number != 8 {
		t.Errorf("issues = %+v, want only #8", issues)
	}
}

func TestFetchRepoFailureIsIsolated(t *testing.T) {
	lister := &fakeLister{
		issues: map[string][]*github.Issue{
			"good/repo": {makeGHIssue(1, "works")},
		},
		failing: map[string]error{
			"bad/repo": errors.New("403 rate limited"),
		},
	}

	a := NewWithLister(lister, nil, testPolicy())
	issues, failed, err := a.Fetch(context.Background(), []string{"good/repo", "bad/repo"}, time.Time{})
	if err != nil {
		t.Fatalf("Fetch should not fail the batch: %v", err)
	}
	if len(issues) != 1 {
		t.Errorf("issues = %d, want 1 from the healthy repo", len(issues))
	}
	if len(failed) != 1 || failed[0].Repo != "bad/repo" {
		t.Fatalf("failed = %+v, want bad/repo", failed)
	}
	if !errors.Is(&failed[0], ErrSourceUnavailable) {
		t.Errorf("repo error should wrap ErrSourceUnavailable: %v", failed[0].Err)
	}
}

func TestFetchNoReposConfigured(t *testing.T) {
	a := NewWithLister(&fakeLister{}, nil, testPolicy())
	_, _, err := a.Fetch(context.Background(), nil, time.Time{})
	if err == nil {
		t.Fatal("expected error for empty repo list")
	}
}

func TestFetchQueriesPerLabel(t *testing.T) {
	shared := makeGHIssue(5, "Tagged twice", "good first issue", "help wanted")
	lister := &fakeLister{
		issues: map[string][]*github.Issue{
			"a/b": {shared},
		},
	}

	a := NewWithLister(lister, []string{"good first issue", "help wanted"}, testPolicy())
	issues, _, err := a.Fetch(context.Background(), []string{"a/b"}, time.Time{})
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}

	// One query per configured label, since the GitHub labels parameter
	// intersects rather than unions.
	if len(lister.queries) != 2 {
		t.Errorf("queries = %v, want 2", lister.queries)
	}
	// The same issue returned under both labels collapses to one record.
	if len(issues) != 1 {
		t.Errorf("issues = %d, want 1 after dedupe", len(issues))
	}
}

func TestFetchInvalidRepoName(t *testing.T) {
	a := NewWithLister(&fakeLister{}, nil, testPolicy())
	_, failed, err := a.Fetch(context.Background(), []string{"not-a-slug"}, time.Time{})
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(failed) != 1 {
		t.Fatalf("failed = %+v, want the invalid repo reported", failed)
	}
}

func TestSplitRepo(t *testing.T) {
	tests := []struct {
		input  string
		owner  string
		name   string
		wantOK bool
	}{
		{"apache/doris", "apache", "doris", true},
		{"noslash", "", "", false},
		{"a/b/c", "", "", false},
		{"/b", "", "", false},
		{"a/", "", "", false},
	}

	for _, tt := range tests {
		owner, name, ok := splitRepo(tt.input)
		if ok != tt.wantOK || owner != tt.owner || name != tt.name {
			t.Errorf("splitRepo(%q) = %q,%q,%v want %q,%q,%v",
				tt.input, owner, name, ok, tt.owner, tt.name, tt.wantOK)
		}
	}
}
