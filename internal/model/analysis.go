package model

import (
	"fmt"
	"strings"
	"time"
)

// Difficulty is the LLM-assessed contribution difficulty.
type Difficulty string

const (
	DifficultyTrivial Difficulty = "trivial"
	DifficultyEasy    Difficulty = "easy"
	DifficultyMedium  Difficulty = "medium"
	DifficultyHard    Difficulty = "hard"
)

// AllDifficulties contains every valid difficulty value.
// This is the single source of truth for schema validation.
var AllDifficulties = []Difficulty{
	DifficultyTrivial,
	DifficultyEasy,
	DifficultyMedium,
	DifficultyHard,
}

// ParseDifficulty maps a raw LLM token to a Difficulty using
// case-insensitive exact matching. Any other token is an error,
// never coerced by guesswork.
func ParseDifficulty(s string) (Difficulty, error) {
	token := strings.ToLower(strings.TrimSpace(s))
	for _, d := range AllDifficulties {
		if token == string(d) {
			return d, nil
		}
	}
	return "", fmt.Errorf("difficulty %q is not one of trivial/easy/medium/hard", s)
}

// Analysis is the structured output of one successful LLM call.
// Created once per issue, consumed immediately by the notifier.
type Analysis struct {
	Difficulty    Difficulty `json:"difficulty"`
	Skills        []string   `json:"skills"`
	Summary       string     `json:"summary"`
	Steps         []string   `json:"steps"`
	EstimatedTime string     `json:"estimatedTime,omitempty"`
}

// DeliveryReceipt reports the outcome of one notifier push.
type DeliveryReceipt struct {
	Success    bool
	ServerTime time.Time
}
