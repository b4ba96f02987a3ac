package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/firstissue/scout/config"
	"github.com/firstissue/scout/internal/analyze"
	"github.com/firstissue/scout/internal/dedup"
	"github.com/firstissue/scout/internal/duration"
	"github.com/firstissue/scout/internal/enrich"
	"github.com/firstissue/scout/internal/log"
	"github.com/firstissue/scout/internal/model"
	"github.com/firstissue/scout/internal/notify"
	"github.com/firstissue/scout/internal/pipeline"
	"github.com/firstissue/scout/internal/retry"
	"github.com/firstissue/scout/internal/source"
)

// webhookTimeout bounds each individual Feishu HTTP attempt.
const webhookTimeout = 30 * time.Second

// NewCmdRun creates the run command.
func NewCmdRun(opts *Options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Scan repositories and deliver issue analyses (same as root scout)",
		Long: `Fetches newcomer-friendly issues from the configured repositories,
enriches each with its comment thread and project docs, runs the LLM
analysis, and pushes one card per new issue to the Feishu webhook.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runScan(cmd, opts)
		},
	}

	addRunFlags(cmd, opts)
	return cmd
}

// addRunFlags adds the run-specific flags to a command.
func addRunFlags(cmd *cobra.Command, opts *Options) {
	cmd.Flags().StringVarP(&opts.Since, "since", "s", "", "Only scan issues created since (e.g., 1w, 30d, 6mo); default: full scan")
	cmd.Flags().StringVar(&opts.StateFile, "state-file", "", "Override the delivered-issue store path (file backend only)")
	cmd.Flags().BoolVar(&opts.DryRun, "dry-run", false, "Fetch and analyze but do not deliver or mark issues seen")
	cmd.Flags().BoolVar(&opts.Digest, "digest", false, "Post a per-run summary card after the batch")
	cmd.Flags().CountVarP(&opts.Verbosity, "verbose", "v", "Increase verbosity (-v info, -vv debug)")
}

func runScan(cmd *cobra.Command, opts *Options) error {
	ctx := cmd.Context()

	log.Initialize(opts.Verbosity, os.Stderr)

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	var since time.Time
	if opts.Since != "" {
		since, err = duration.Parse(opts.Since)
		if err != nil {
			return fmt.Errorf("invalid --since: %w", err)
		}
	}

	policy := retry.Policy{
		MaxAttempts: cfg.MaxRetries,
		BaseDelay:   500 * time.Millisecond,
	}

	store, err := openStore(ctx, cfg, opts.StateFile)
	if err != nil {
		return err
	}
	defer store.Close()

	src, err := source.New(cfg.GetGitHubToken(), cfg.Labels, policy)
	if err != nil {
		return err
	}

	mcpClient, err := enrich.NewMCPClient(ctx, cfg.MCP.Endpoint)
	if err != nil {
		return fmt.Errorf("failed to connect to MCP server at %s: %w", cfg.MCP.Endpoint, err)
	}
	defer mcpClient.Close()
	enricher := enrich.New(mcpClient, cfg.MaxReadmeChars, policy)

	completer, err := analyze.NewClaudeCompleter(cfg.GetAnthropicAPIKey(), cfg.LLM.Model, cfg.LLM.Timeout.Std())
	if err != nil {
		return err
	}
	engine := analyze.NewEngine(completer, cfg.LLM.MaxTokens, cfg.LLM.CorrectiveRetries, cfg.MaxThreadComments)

	webhookURL := cfg.GetFeishuWebhookURL()
	if webhookURL == "" && !opts.DryRun {
		return fmt.Errorf("Feishu webhook not configured. Set the FEISHU_WEBHOOK_URL environment variable")
	}
	notifier := notify.New(webhookURL, webhookTimeout, policy)

	p := pipeline.New(src, store, enricher, engine, notifier, pipeline.Options{
		Repos:        cfg.Repos,
		Since:        since,
		Concurrency:  cfg.Concurrency,
		BatchTimeout: cfg.BatchTimeout.Std(),
		DryRun:       opts.DryRun,
		SendDigest:   cfg.Digest || opts.Digest,
	})

	summary, err := p.Run(ctx)
	if err != nil {
		return err
	}

	printSummary(summary, opts.DryRun)
	return nil
}

// openStore selects the delivered-issue store backend from config. The
// --state-file flag forces the file backend at an explicit path.
func openStore(ctx context.Context, cfg *config.Config, stateFile string) (dedup.Store, error) {
	if stateFile != "" {
		return dedup.NewFileStoreAt(stateFile)
	}

	switch cfg.Store.Backend {
	case config.StoreRedis:
		url := cfg.GetRedisURL()
		if url == "" {
			return nil, fmt.Errorf("redis store selected but REDIS_URL is not set")
		}
		return dedup.NewRedisStore(ctx, url)
	default:
		if cfg.Store.Path != "" {
			return dedup.NewFileStoreAt(cfg.Store.Path)
		}
		return dedup.NewFileStore()
	}
}

// printSummary renders the run result for the operator.
func printSummary(s *model.RunSummary, dryRun bool) {
	title := "Run complete"
	if dryRun {
		title = "Dry run complete"
	}
	color.New(color.Bold).Println(title)

	fmt.Printf("  fetched:   %d\n", s.Fetched)
	color.Green("  delivered: %d", s.Delivered)
	fmt.Printf("  skipped:   %d\n", s.Skipped)
	if s.Failed > 0 {
		color.Red("  failed:    %d", s.Failed)
		for reason, count := range s.FailuresByReason() {
			fmt.Printf("    %s: %d\n", reason, count)
		}
	}
	if len(s.FailedRepos) > 0 {
		color.Yellow("  repos unavailable: %v", s.FailedRepos)
	}
}
