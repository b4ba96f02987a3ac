package pipeline

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/firstissue/scout/internal/analyze"
	"github.com/firstissue/scout/internal/enrich"
	"github.com/firstissue/scout/internal/model"
	"github.com/firstissue/scout/internal/notify"
	"github.com/firstissue/scout/internal/retry"
	"github.com/firstissue/scout/internal/source"
)

// fakeSource serves a fixed issue list and side failures.
type fakeSource struct {
	issues []model.Issue
	failed []source.RepoError
	err    error
}

func (f *fakeSource) Fetch(_ context.Context, _ []string, _ time.Time) ([]model.Issue, []source.RepoError, error) {
	return f.issues, f.failed, f.err
}

// memStore is an in-memory dedup store with scriptable failures.
type memStore struct {
	mu       sync.Mutex
	seen     map[string]time.Time
	readErr  error
	writeErr error
}

func newMemStore() *memStore {
	return &memStore{seen: make(map[string]time.Time)}
}

func (m *memStore) HasSeen(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.readErr != nil {
		return false, m.readErr
	}
	_, ok := m.seen[key]
	return ok, nil
}

func (m *memStore) MarkSeen(_ context.Context, key string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.writeErr != nil {
		return m.writeErr
	}
	m.seen[key] = at
	return nil
}

func (m *memStore) Count(_ context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.seen), nil
}

func (m *memStore) Close() error { return nil }

// fakeEnricher fails for keys in failFor.
type fakeEnricher struct {
	failFor map[string]error
}

func (f *fakeEnricher) Enrich(_ context.Context, issue model.Issue) (*model.EnrichmentBundle, error) {
	if err := f.failFor[issue.DedupKey()]; err != nil {
		return nil, err
	}
	return &model.EnrichmentBundle{Issue: issue, Readme: "# Readme"}, nil
}

// fakeAnalyzer fails for keys in failFor.
type fakeAnalyzer struct {
	failFor map[string]error
}

func (f *fakeAnalyzer) Analyze(_ context.Context, bundle *model.EnrichmentBundle) (*model.Analysis, error) {
	if err := f.failFor[bundle.Issue.DedupKey()]; err != nil {
		return nil, err
	}
	return &model.Analysis{
		Difficulty: model.DifficultyEasy,
		Skills:     []string{"Go"},
		Summary:    "summary",
		Steps:      []string{"step"},
	}, nil
}

// fakeNotifier records pushes and fails for keys in failFor.
type fakeNotifier struct {
	mu      sync.Mutex
	pushed  []string
	digests int
	failFor map[string]error
}

func (f *fakeNotifier) Push(_ context.Context, issue model.Issue, _ *model.Analysis) (model.DeliveryReceipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failFor[issue.DedupKey()]; err != nil {
		return model.DeliveryReceipt{}, err
	}
	f.pushed = append(f.pushed, issue.DedupKey())
	return model.DeliveryReceipt{Success: true, ServerTime: time.Now()}, nil
}

func (f *fakeNotifier) PushDigest(_ context.Context, _ *model.RunSummary) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.digests++
	return nil
}

func makeIssue(repo string, number int) model.Issue {
	return model.Issue{RepoFullName: repo, Number: number, Title: "issue"}
}

type fixture struct {
	src      *fakeSource
	store    *memStore
	enricher *fakeEnricher
	analyzer *fakeAnalyzer
	notifier *fakeNotifier
}

func newFixture(issues ...model.Issue) *fixture {
	return &fixture{
		src:      &fakeSource{issues: issues},
		store:    newMemStore(),
		enricher: &fakeEnricher{failFor: map[string]error{}},
		analyzer: &fakeAnalyzer{failFor: map[string]error{}},
		notifier: &fakeNotifier{failFor: map[string]error{}},
	}
}

func (f *fixture) pipeline(opts Options) *Pipeline {
	opts.Repos = []string{"a/b"}
	return New(f.src, f.store, f.enricher, f.analyzer, f.notifier, opts)
}

func TestRunDeliversNewIssue(t *testing.T) {
	f := newFixture(makeIssue("apache/doris", 123))
	p := f.pipeline(Options{})

	summary, err := p.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if summary.Fetched != 1 || summary.Delivered != 1 {
		t.Errorf("fetched/delivered = %d/%d, want 1/1", summary.Fetched, summary.Delivered)
	}
	if len(f.notifier.pushed) != 1 || f.notifier.pushed[0] != "apache/doris#123" {
		t.Errorf("pushed = %v", f.notifier.pushed)
	}

	seen, _ := f.store.HasSeen(context.Background(), "apache/doris#123")
	if !seen {
		t.Error("delivered issue must be marked seen")
	}
}

func TestRunSecondRunIsIdempotent(t *testing.T) {
	f := newFixture(makeIssue("apache/doris", 123))
	p := f.pipeline(Options{})

	if _, err := p.Run(context.Background()); err != nil {
		t.Fatalf("first run: %v", err)
	}
	summary, err := p.Run(context.Background())
	if err != nil {
		t.Fatalf("second run: %v", err)
	}

	if summary.Delivered != 0 || summary.Skipped != 1 {
		t.Errorf("second run delivered/skipped = %d/%d, want 0/1", summary.Delivered, summary.Skipped)
	}
	if len(f.notifier.pushed) != 1 {
		t.Errorf("total pushes = %d, want exactly 1 across both runs", len(f.notifier.pushed))
	}
}

func TestRunFailedDeliveryNotMarkedSeen(t *testing.T) {
	f := newFixture(makeIssue("a/b", 1))
	f.notifier.failFor["a/b#1"] = notify.ErrDeliveryFailed
	p := f.pipeline(Options{})

	summary, err := p.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if summary.Failed != 1 {
		t.Fatalf("failed = %d, want 1", summary.Failed)
	}
	if summary.Outcomes[0].Reason != model.ReasonDelivery {
		t.Errorf("reason = %s, want delivery_failed", summary.Outcomes[0].Reason)
	}

	// The issue must be re-attempted next run.
	seen, _ := f.store.HasSeen(context.Background(), "a/b#1")
	if seen {
		t.Error("failed delivery must not be marked seen")
	}
}

func TestRunPerIssueIsolation(t *testing.T) {
	f := newFixture(makeIssue("a/b", 1), makeIssue("a/b", 2), makeIssue("a/b", 3), makeIssue("a/b", 4))
	f.enricher.failFor["a/b#1"] = enrich.ErrEnrichmentUnavailable
	f.analyzer.failFor["a/b#2"] = analyze.ErrAnalysisInvalid
	f.notifier.failFor["a/b#3"] = notify.ErrDeliveryFailed
	p := f.pipeline(Options{Concurrency: 2})

	summary, err := p.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if summary.Delivered != 1 || summary.Failed != 3 {
		t.Fatalf("delivered/failed = %d/%d, want 1/3", summary.Delivered, summary.Failed)
	}

	reasons := summary.FailuresByReason()
	if reasons[model.ReasonEnrichment] != 1 || reasons[model.ReasonAnalysis] != 1 || reasons[model.ReasonDelivery] != 1 {
		t.Errorf("failure reasons = %v", reasons)
	}
	if len(f.notifier.pushed) != 1 || f.notifier.pushed[0] != "a/b#4" {
		t.Errorf("pushed = %v, want only a/b#4", f.notifier.pushed)
	}
}

func TestRunFailedRepoReported(t *testing.T) {
	f := newFixture(makeIssue("good/repo", 1))
	f.src.failed = []source.RepoError{{Repo: "bad/repo", Err: source.ErrSourceUnavailable}}
	p := f.pipeline(Options{})

	summary, err := p.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if summary.Delivered != 1 {
		t.Errorf("delivered = %d, want 1 despite the failed repo", summary.Delivered)
	}
	if len(summary.FailedRepos) != 1 || summary.FailedRepos[0] != "bad/repo" {
		t.Errorf("failed repos = %v", summary.FailedRepos)
	}
}

func TestRunTotalSourceFailure(t *testing.T) {
	f := newFixture()
	f.src.err = errors.New("no repositories configured")
	p := f.pipeline(Options{})

	if _, err := p.Run(context.Background()); err == nil {
		t.Fatal("expected fatal error when the source fails outright")
	}
}

func TestRunDryRunDeliversNothing(t *testing.T) {
	f := newFixture(makeIssue("a/b", 1))
	p := f.pipeline(Options{DryRun: true})

	summary, err := p.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(f.notifier.pushed) != 0 {
		t.Errorf("dry run pushed %v", f.notifier.pushed)
	}
	if summary.Skipped != 1 {
		t.Errorf("skipped = %d, want 1", summary.Skipped)
	}

	seen, _ := f.store.HasSeen(context.Background(), "a/b#1")
	if seen {
		t.Error("dry run must not mark issues seen")
	}
}

func TestRunDedupReadFailure(t *testing.T) {
	f := newFixture(makeIssue("a/b", 1))
	f.store.readErr = errors.New("store corrupt")
	p := f.pipeline(Options{})

	summary, err := p.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if summary.Failed != 1 || summary.Outcomes[0].Reason != model.ReasonDedup {
		t.Errorf("outcome = %+v, want dedup_store failure", summary.Outcomes[0])
	}
	if len(f.notifier.pushed) != 0 {
		t.Error("must not push when the dedup check cannot run")
	}
}

func TestRunMarkSeenFailureStillDelivered(t *testing.T) {
	f := newFixture(makeIssue("a/b", 1))
	f.store.writeErr = errors.New("disk full")
	p := f.pipeline(Options{})

	summary, err := p.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if summary.Delivered != 1 {
		t.Errorf("delivered = %d, want 1 (push succeeded)", summary.Delivered)
	}
	if summary.Outcomes[0].Err == "" {
		t.Error("outcome should record the mark-seen failure")
	}
}

func TestRunTimeoutClassified(t *testing.T) {
	f := newFixture(makeIssue("a/b", 1))
	f.enricher.failFor["a/b#1"] = context.DeadlineExceeded
	p := f.pipeline(Options{})

	summary, err := p.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if summary.Outcomes[0].Reason != model.ReasonTimeout {
		t.Errorf("reason = %s, want timeout", summary.Outcomes[0].Reason)
	}
}

// blockingToolCaller never answers; calls end only when the context does.
type blockingToolCaller struct{}

func (blockingToolCaller) CallTool(ctx context.Context, _ string, _ map[string]any) (string, error) {
	<-ctx.Done()
	return "", ctx.Err()
}

func (blockingToolCaller) Close() error { return nil }

func TestRunBatchDeadlineMarksTimeout(t *testing.T) {
	f := newFixture(makeIssue("a/b", 1))

	// Real enricher over a stalled MCP connection: the batch deadline must
	// surface as a timeout outcome even through the enricher's own error
	// wrapping.
	enricher := enrich.New(blockingToolCaller{}, 1000, retry.Policy{MaxAttempts: 1})
	p := New(f.src, f.store, enricher, f.analyzer, f.notifier, Options{
		Repos:        []string{"a/b"},
		BatchTimeout: 50 * time.Millisecond,
	})

	summary, err := p.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(summary.Outcomes) != 1 {
		t.Fatalf("outcomes = %+v, want 1", summary.Outcomes)
	}
	if summary.Outcomes[0].Reason != model.ReasonTimeout {
		t.Errorf("reason = %s, want timeout", summary.Outcomes[0].Reason)
	}
	if len(f.notifier.pushed) != 0 {
		t.Errorf("pushed = %v, want none past the deadline", f.notifier.pushed)
	}
}

func TestRunDigest(t *testing.T) {
	f := newFixture(makeIssue("a/b", 1))
	p := f.pipeline(Options{SendDigest: true})

	if _, err := p.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if f.notifier.digests != 1 {
		t.Errorf("digests = %d, want 1", f.notifier.digests)
	}
}

func TestRunDigestSuppressedInDryRun(t *testing.T) {
	f := newFixture(makeIssue("a/b", 1))
	p := f.pipeline(Options{SendDigest: true, DryRun: true})

	if _, err := p.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if f.notifier.digests != 0 {
		t.Errorf("digests = %d, want 0 in dry run", f.notifier.digests)
	}
}
