package model

import (
	"time"
)

// RunStatus represents the current state of a pipeline run.
type RunStatus string

const (
	RunStatusRunning  RunStatus = "running"
	RunStatusComplete RunStatus = "complete"
	RunStatusFailed   RunStatus = "failed"
)

// PhaseStatus represents the current state of a pipeline phase.
type PhaseStatus string

const (
	PhaseStatusRunning  PhaseStatus = "running"
	PhaseStatusComplete PhaseStatus = "complete"
	PhaseStatusFailed   PhaseStatus = "failed"
	PhaseStatusSkipped  PhaseStatus = "skipped"
)

// PhaseResult holds the outcome of a pipeline phase.
type PhaseResult struct {
	Name     string         `json:"name"`
	Status   PhaseStatus    `json:"status"`
	Duration int64          `json:"duration_ms"`
	Error    string         `json:"error,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Run is one orchestrated pipeline execution.
type Run struct {
	ID         string        `json:"id"`
	Status     RunStatus     `json:"status"`
	Phases     []PhaseResult `json:"phases"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at"`
	Error      string        `json:"error,omitempty"`
}

// Phase returns the result for the named phase, or nil.
func (r *Run) Phase(name string) *PhaseResult {
	for i := range r.Phases {
		if r.Phases[i].Name == name {
			return &r.Phases[i]
		}
	}
	return nil
}
