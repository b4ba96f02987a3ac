// Package model contains domain types for the scout pipeline.
// These types are independent of any external GitHub or LLM library.
package model

import (
	"fmt"
	"time"
)

// Issue represents a GitHub issue normalized by the source adapter.
// Identity is (RepoFullName, Number); the struct is never mutated after
// fetch and never persisted beyond one pipeline run.
type Issue struct {
	RepoFullName string    `json:"repoFullName"`
	Number       int       `json:"number"`
	Title        string    `json:"title"`
	Body         string    `json:"body"`
	Labels       []string  `json:"labels,omitempty"`
	State        string    `json:"state"`
	HTMLURL      string    `json:"htmlUrl"`
	CreatedAt    time.Time `json:"createdAt"`
	CommentCount int       `json:"commentCount"`
}

// DedupKey returns the stable identifier used by the seen-store.
func (i *Issue) DedupKey() string {
	return fmt.Sprintf("%s#%d", i.RepoFullName, i.Number)
}

// Comment is one entry in an issue's discussion thread.
type Comment struct {
	Author string `json:"author"`
	Body   string `json:"body"`
}

// EnrichmentBundle is the merged context for one issue, owned by a single
// pipeline run. Thread and Readme always describe the bundle's Issue.
type EnrichmentBundle struct {
	Issue        Issue
	Thread       []Comment
	Readme       string
	Contributing string

	// ReadmeTruncated records that Readme was cut to the character budget.
	// The truncation marker is part of Readme itself so prompt building
	// discloses incompleteness to the LLM.
	ReadmeTruncated bool
}
