package model

import (
	"fmt"
	"sort"
	"strings"
)

// OutcomeStatus is the terminal state of one issue within a batch.
type OutcomeStatus string

const (
	StatusDelivered OutcomeStatus = "delivered"
	StatusSkipped   OutcomeStatus = "skipped"
	StatusFailed    OutcomeStatus = "failed"
)

// FailReason classifies why an issue ended in StatusFailed.
type FailReason string

const (
	ReasonEnrichment FailReason = "enrichment_unavailable"
	ReasonAnalysis   FailReason = "analysis_invalid"
	ReasonDelivery   FailReason = "delivery_failed"
	ReasonDedup      FailReason = "dedup_store"
	ReasonTimeout    FailReason = "timeout"
)

// IssueOutcome records the terminal state for one issue in a run.
type IssueOutcome struct {
	Key    string        `json:"key"`
	Title  string        `json:"title"`
	Status OutcomeStatus `json:"status"`
	Reason FailReason    `json:"reason,omitempty"`
	Err    string        `json:"error,omitempty"`
}

// RunSummary aggregates one batch for operators: enough to diagnose a run
// without inspecting raw logs.
type RunSummary struct {
	Fetched     int            `json:"fetched"`
	Delivered   int            `json:"delivered"`
	Skipped     int            `json:"skipped"`
	Failed      int            `json:"failed"`
	FailedRepos []string       `json:"failedRepos,omitempty"`
	Outcomes    []IssueOutcome `json:"outcomes,omitempty"`
}

// Add records one issue outcome and updates the counters.
func (s *RunSummary) Add(o IssueOutcome) {
	s.Outcomes = append(s.Outcomes, o)
	switch o.Status {
	case StatusDelivered:
		s.Delivered++
	case StatusSkipped:
		s.Skipped++
	case StatusFailed:
		s.Failed++
	}
}

// FailuresByReason returns failure counts keyed by reason.
func (s *RunSummary) FailuresByReason() map[FailReason]int {
	counts := make(map[FailReason]int)
	for _, o := range s.Outcomes {
		if o.Status == StatusFailed {
			counts[o.Reason]++
		}
	}
	return counts
}

// String renders a one-glance report line plus failure breakdown.
func (s *RunSummary) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "fetched %d, delivered %d, skipped %d, failed %d",
		s.Fetched, s.Delivered, s.Skipped, s.Failed)

	if len(s.FailedRepos) > 0 {
		fmt.Fprintf(&sb, " (repos unavailable: %s)", strings.Join(s.FailedRepos, ", "))
	}

	reasons := s.FailuresByReason()
	if len(reasons) > 0 {
		keys := make([]string, 0, len(reasons))
		for r := range reasons {
			keys = append(keys, string(r))
		}
		sort.Strings(keys)
		parts := make([]string, 0, len(keys))
		for _, k := range keys {
			parts = append(parts, fmt.Sprintf("%s=%d", k, reasons[FailReason(k)]))
		}
		fmt.Fprintf(&sb, " [%s]", strings.Join(parts, " "))
	}

	return sb.String()
}
