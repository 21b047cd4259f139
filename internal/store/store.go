// Package store records intake run history: every document submission, its
// lifecycle outcome, and whether the placeholder fallback fired. The audit
// trail exists mainly so degraded-service fallbacks are reportable after the
// fact.
package store

import (
	"context"
	"time"
)

// RunStatus is the lifecycle status of an intake run.
type RunStatus string

const (
	RunStatusSubmitted  RunStatus = "submitted"
	RunStatusPolling    RunStatus = "polling"
	RunStatusNormalized RunStatus = "normalized"
	RunStatusFallback   RunStatus = "fallback"
	RunStatusEmpty      RunStatus = "empty"
	RunStatusTimedOut   RunStatus = "timed_out"
	RunStatusRejected   RunStatus = "rejected"
	RunStatusRegistered RunStatus = "registered"
	RunStatusFailed     RunStatus = "failed"
)

// IntakeRun is one recorded document-to-record workflow run.
type IntakeRun struct {
	ID           string    `json:"id"`
	Filename     string    `json:"filename"`
	Status       RunStatus `json:"status"`
	JobID        string    `json:"job_id,omitempty"`
	FallbackUsed bool      `json:"fallback_used"`
	Error        string    `json:"error,omitempty"`
	RegisteredID string    `json:"registered_id,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Store defines the run-history persistence interface.
type Store interface {
	CreateRun(ctx context.Context, filename string) (*IntakeRun, error)
	UpdateStatus(ctx context.Context, runID string, status RunStatus) error
	SetJobID(ctx context.Context, runID, jobID string) error
	MarkFallback(ctx context.Context, runID string) error
	SetError(ctx context.Context, runID string, status RunStatus, msg string) error
	SetRegistered(ctx context.Context, runID, registeredID string) error
	GetRun(ctx context.Context, runID string) (*IntakeRun, error)
	ListRuns(ctx context.Context, limit int) ([]IntakeRun, error)

	Migrate(ctx context.Context) error
	Close() error
}
