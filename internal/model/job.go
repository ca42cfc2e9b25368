package model

import (
	"encoding/json"
	"time"
)

// JobStatus tracks an async job through its lifecycle. Status only moves
// forward: pending -> running -> completed | error.
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusError     JobStatus = "error"
)

// Valid reports whether s is a known job status.
func (s JobStatus) Valid() bool {
	switch s {
	case JobStatusPending, JobStatusRunning, JobStatusCompleted, JobStatusError:
		return true
	}
	return false
}

// Terminal reports whether s is a final state.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusError
}

// Rank orders statuses for the forward-only transition guard.
// Terminal states share the highest rank so neither can replace the other.
func (s JobStatus) Rank() int {
	switch s {
	case JobStatusPending:
		return 0
	case JobStatusRunning:
		return 1
	default:
		return 2
	}
}

// JobKind identifies the operation a job performs. Every AI-backed feature
// shares the same job/poll contract, parameterized by kind.
type JobKind string

const (
	JobKindExtraction JobKind = "extraction"
	JobKindSimilarity JobKind = "similarity"
	JobKindPricing    JobKind = "pricing"
	JobKindReport     JobKind = "report"
	JobKindLandscape  JobKind = "landscape"
	JobKindGap        JobKind = "gap"
)

// Valid reports whether k is a known job kind.
func (k JobKind) Valid() bool {
	switch k {
	case JobKindExtraction, JobKindSimilarity, JobKindPricing,
		JobKindReport, JobKindLandscape, JobKindGap:
		return true
	}
	return false
}

// Job is one unit of asynchronous work. The row doubles as the poll state:
// callers hold only the job id and read status/result/error_message from it.
type Job struct {
	ID           string          `json:"id"`
	Project      string          `json:"project"`
	Entity       string          `json:"entity,omitempty"`
	Kind         JobKind         `json:"kind"`
	SourceType   string          `json:"source_type"`
	SourceRef    string          `json:"source_ref,omitempty"`
	Status       JobStatus       `json:"status"`
	Model        string          `json:"model,omitempty"`
	Cost         float64         `json:"cost"`
	Duration     int64           `json:"duration"` // milliseconds
	ResultCount  int             `json:"result_count"`
	ErrorMessage string          `json:"error_message,omitempty"`
	Params       json.RawMessage `json:"params,omitempty"`
	Result       json.RawMessage `json:"result,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
	CompletedAt  *time.Time      `json:"completed_at,omitempty"`
}
