// Package analyze turns an enrichment bundle into a structured Analysis
// via the LLM, treating the model's free text as untrusted input that
// must pass schema validation.
package analyze

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/firstissue/scout/internal/log"
	"github.com/firstissue/scout/internal/model"
)

// ErrAnalysisInvalid marks an LLM response that stayed unparseable after
// the corrective retry budget. The orchestrator skips the issue.
var ErrAnalysisInvalid = errors.New("analysis invalid")

// Engine builds prompts, invokes the LLM, and validates responses.
type Engine struct {
	llm               Completer
	maxTokens         int
	correctiveRetries int
	maxThreadComments int
}

// NewEngine creates an analysis engine. correctiveRetries is the number of
// re-invocations allowed after an invalid response (not counting the first
// call).
func NewEngine(llm Completer, maxTokens, correctiveRetries, maxThreadComments int) *Engine {
	return &Engine{
		llm:               llm,
		maxTokens:         maxTokens,
		correctiveRetries: correctiveRetries,
		maxThreadComments: maxThreadComments,
	}
}

// Analyze produces a validated Analysis for the bundle. Invalid responses
// trigger corrective retries that tell the model what was wrong; the final
// failure wraps ErrAnalysisInvalid and logs the raw response for diagnosis.
func (e *Engine) Analyze(ctx context.Context, bundle *model.EnrichmentBundle) (*model.Analysis, error) {
	base := BuildPrompt(bundle, e.maxThreadComments)
	prompt := base

	var lastErr error
	for attempt := 0; attempt <= e.correctiveRetries; attempt++ {
		raw, err := e.llm.Complete(ctx, prompt, e.maxTokens)
		if err != nil {
			return nil, fmt.Errorf("llm call: %w", err)
		}

		analysis, verr := ParseResponse(raw)
		if verr == nil {
			return analysis, nil
		}

		lastErr = verr
		log.Debug("invalid llm response",
			"key", bundle.Issue.DedupKey(),
			"attempt", attempt+1,
			"error", verr,
			"raw", raw)
		prompt = base + correctiveSuffix(verr)
	}

	return nil, fmt.Errorf("%w after %d corrective retries: %v",
		ErrAnalysisInvalid, e.correctiveRetries, lastErr)
}

func correctiveSuffix(verr error) string {
	return fmt.Sprintf("\n\nYour previous output was invalid because: %v.\n"+
		"Reformat and respond again with ONLY the JSON object described above.", verr)
}

// wireAnalysis is the expected response shape.
type wireAnalysis struct {
	Difficulty    string   `json:"difficulty"`
	Skills        []string `json:"skills"`
	Summary       string   `json:"summary"`
	Steps         []string `json:"steps"`
	EstimatedTime string   `json:"estimated_time"`
}

// ParseResponse validates a raw LLM reply against the output schema.
// Every required field must be present and non-empty; difficulty must
// match one of the four levels exactly (case-insensitive).
func ParseResponse(raw string) (*model.Analysis, error) {
	payload, err := extractJSON(raw)
	if err != nil {
		return nil, err
	}

	var wire wireAnalysis
	if err := json.Unmarshal([]byte(payload), &wire); err != nil {
		return nil, fmt.Errorf("malformed JSON: %v", err)
	}

	difficulty, err := model.ParseDifficulty(wire.Difficulty)
	if err != nil {
		return nil, err
	}

	if len(wire.Skills) == 0 {
		return nil, fmt.Errorf("missing required field %q", "skills")
	}
	if strings.TrimSpace(wire.Summary) == "" {
		return nil, fmt.Errorf("missing required field %q", "summary")
	}
	if len(wire.Steps) == 0 {
		return nil, fmt.Errorf("missing required field %q", "steps")
	}
	for i, step := range wire.Steps {
		if strings.TrimSpace(step) == "" {
			return nil, fmt.Errorf("step %d is empty", i+1)
		}
	}

	return &model.Analysis{
		Difficulty:    difficulty,
		Skills:        wire.Skills,
		Summary:       wire.Summary,
		Steps:         wire.Steps,
		EstimatedTime: wire.EstimatedTime,
	}, nil
}

// extractJSON pulls the JSON object out of a reply that may wrap it in a
// markdown fence or surrounding prose.
func extractJSON(raw string) (string, error) {
	s := strings.TrimSpace(raw)

	if idx := strings.Index(s, "```json"); idx >= 0 {
		rest := s[idx+len("```json"):]
		if end := strings.Index(rest, "```"); end >= 0 {
			return strings.TrimSpace(rest[:end]), nil
		}
	}

	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end <= start {
		return "", fmt.Errorf("no JSON object found in response")
	}
	return s[start : end+1], nil
}
