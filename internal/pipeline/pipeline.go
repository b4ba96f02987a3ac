// Package pipeline drives one batch cycle: fetch, dedup pre-check,
// enrich, analyze, push, dedup commit. Failures are isolated at the
// issue (or repo) boundary and never abort the batch.
package pipeline

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/firstissue/scout/internal/dedup"
	"github.com/firstissue/scout/internal/log"
	"github.com/firstissue/scout/internal/model"
	"github.com/firstissue/scout/internal/source"
)

// Source lists issues for the configured repos.
type Source interface {
	Fetch(ctx context.Context, repos []string, since time.Time) ([]model.Issue, []source.RepoError, error)
}

// Enricher builds the context bundle for one issue.
type Enricher interface {
	Enrich(ctx context.Context, issue model.Issue) (*model.EnrichmentBundle, error)
}

// Analyzer produces a validated Analysis from a bundle.
type Analyzer interface {
	Analyze(ctx context.Context, bundle *model.EnrichmentBundle) (*model.Analysis, error)
}

// Notifier delivers one analysis and acknowledges the push.
type Notifier interface {
	Push(ctx context.Context, issue model.Issue, analysis *model.Analysis) (model.DeliveryReceipt, error)
}

// DigestNotifier is optionally implemented by notifiers that can also
// deliver a per-run summary card.
type DigestNotifier interface {
	PushDigest(ctx context.Context, summary *model.RunSummary) error
}

// Options tunes one pipeline instance.
type Options struct {
	Repos        []string
	Since        time.Time
	Concurrency  int
	BatchTimeout time.Duration
	DryRun       bool
	SendDigest   bool
}

// Pipeline wires the stages together. All state is run-local except the
// dedup store, which serializes its own writes.
type Pipeline struct {
	source   Source
	store    dedup.Store
	enricher Enricher
	analyzer Analyzer
	notifier Notifier
	opts     Options
}

// New assembles a pipeline from its stage implementations.
func New(src Source, store dedup.Store, enricher Enricher, analyzer Analyzer, notifier Notifier, opts Options) *Pipeline {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 4
	}
	return &Pipeline{
		source:   src,
		store:    store,
		enricher: enricher,
		analyzer: analyzer,
		notifier: notifier,
		opts:     opts,
	}
}

// Run executes one batch and returns its summary. A non-nil error means
// no per-issue work happened at all (fatal configuration or total source
// failure); per-issue failures are reported in the summary instead.
func (p *Pipeline) Run(ctx context.Context) (*model.RunSummary, error) {
	if p.opts.BatchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.opts.BatchTimeout)
		defer cancel()
	}

	issues, repoErrs, err := p.source.Fetch(ctx, p.opts.Repos, p.opts.Since)
	if err != nil {
		return nil, err
	}

	summary := &model.RunSummary{Fetched: len(issues)}
	for _, re := range repoErrs {
		summary.FailedRepos = append(summary.FailedRepos, re.Repo)
	}

	// Pre-check: drop already-delivered issues before spending
	// enrichment and LLM cost.
	unseen := make([]model.Issue, 0, len(issues))
	for _, issue := range issues {
		seen, err := p.store.HasSeen(ctx, issue.DedupKey())
		if err != nil {
			summary.Add(model.IssueOutcome{
				Key:    issue.DedupKey(),
				Title:  issue.Title,
				Status: model.StatusFailed,
				Reason: model.ReasonDedup,
				Err:    err.Error(),
			})
			continue
		}
		if seen {
			log.Debug("already delivered, skipping", "key", issue.DedupKey())
			summary.Add(model.IssueOutcome{
				Key:    issue.DedupKey(),
				Title:  issue.Title,
				Status: model.StatusSkipped,
			})
			continue
		}
		unseen = append(unseen, issue)
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.opts.Concurrency)

	for _, issue := range unseen {
		g.Go(func() error {
			outcome := p.processIssue(gctx, issue)
			mu.Lock()
			summary.Add(outcome)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	if p.opts.SendDigest && !p.opts.DryRun {
		if dn, ok := p.notifier.(DigestNotifier); ok {
			if err := dn.PushDigest(ctx, summary); err != nil {
				log.Warn("digest delivery failed", "error", err)
			}
		}
	}

	return summary, nil
}

// processIssue runs one issue through enrich, analyze, push, and the
// post-success dedup commit, strictly in that order. Every failure is a
// terminal outcome for this issue only.
func (p *Pipeline) processIssue(ctx context.Context, issue model.Issue) model.IssueOutcome {
	key := issue.DedupKey()

	bundle, err := p.enricher.Enrich(ctx, issue)
	if err != nil {
		return failedOutcome(issue, model.ReasonEnrichment, err)
	}

	analysis, err := p.analyzer.Analyze(ctx, bundle)
	if err != nil {
		return failedOutcome(issue, model.ReasonAnalysis, err)
	}

	if p.opts.DryRun {
		log.Info("dry-run: would deliver", "key", key, "difficulty", analysis.Difficulty)
		return model.IssueOutcome{Key: key, Title: issue.Title, Status: model.StatusSkipped}
	}

	receipt, err := p.notifier.Push(ctx, issue, analysis)
	if err != nil {
		return failedOutcome(issue, model.ReasonDelivery, err)
	}

	// Committed only after the positive ack. A crash between the ack and
	// this write can duplicate the push on the next run; that window is
	// accepted rather than eliminated.
	if err := p.store.MarkSeen(ctx, key, receipt.ServerTime); err != nil {
		log.Warn("delivered but mark-seen failed, may redeliver next run", "key", key, "error", err)
		return model.IssueOutcome{
			Key:    key,
			Title:  issue.Title,
			Status: model.StatusDelivered,
			Err:    "mark-seen failed: " + err.Error(),
		}
	}

	return model.IssueOutcome{Key: key, Title: issue.Title, Status: model.StatusDelivered}
}

func failedOutcome(issue model.Issue, reason model.FailReason, err error) model.IssueOutcome {
	if errors.Is(err, context.DeadlineExceeded) {
		reason = model.ReasonTimeout
	}
	log.Warn("issue failed", "key", issue.DedupKey(), "reason", reason, "error", err)
	return model.IssueOutcome{
		Key:    issue.DedupKey(),
		Title:  issue.Title,
		Status: model.StatusFailed,
		Reason: reason,
		Err:    err.Error(),
	}
}
