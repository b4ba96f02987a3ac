package analyze

import (
	"context"
	"fmt"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// Completer is the single LLM capability the engine consumes.
type Completer interface {
	Complete(ctx context.Context, prompt string, maxTokens int) (string, error)
}

const systemPrompt = `You are an open-source contribution mentor. You assess GitHub issues
for first-time contributors: how hard the issue is, which skills it needs,
what the core problem is, and the concrete steps to solve it.
Respond ONLY with the requested JSON object, no other text.`

// ClaudeCompleter implements Completer against the Anthropic API.
type ClaudeCompleter struct {
	client  anthropic.Client
	model   anthropic.Model
	timeout time.Duration
}

// NewClaudeCompleter creates a Claude-backed completer. An empty model
// selects the default. timeout bounds each individual call.
func NewClaudeCompleter(apiKey, model string, timeout time.Duration) (*ClaudeCompleter, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("Anthropic API key not provided, set ANTHROPIC_API_KEY")
	}

	m := anthropic.ModelClaudeSonnet4_5_20250929
	if model != "" {
		m = anthropic.Model(model)
	}

	return &ClaudeCompleter{
		client:  anthropic.NewClient(option.WithAPIKey(apiKey)),
		model:   m,
		timeout: timeout,
	}, nil
}

// Complete sends one prompt and returns the text of the reply.
func (c *ClaudeCompleter) Complete(ctx context.Context, prompt string, maxTokens int) (string, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	message, err := c.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     c.model,
		MaxTokens: int64(maxTokens),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
		System: []anthropic.TextBlockParam{
			{Text: systemPrompt},
		},
	})
	if err != nil {
		return "", fmt.Errorf("claude api: %w", err)
	}

	for _, block := range message.Content {
		if block.Type == "text" {
			return block.Text, nil
		}
	}

	return "", fmt.Errorf("claude api: response contained no text block")
}
