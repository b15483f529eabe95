package store

import (
	"time"

	"github.com/evantahler/botholomew-sub001/pkg/schema"
)

// User is a registered account that owns agents and workflows.
type User struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Session is a server-side session row; the cookie carries only the ID.
type Session struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Agent holds the prompt templates and model identifier consumed by a step.
type Agent struct {
	ID           string    `json:"id"`
	UserID       string    `json:"user_id"`
	Name         string    `json:"name"`
	Description  string    `json:"description,omitempty"`
	Enabled      bool      `json:"enabled"`
	Model        string    `json:"model"`
	SystemPrompt string    `json:"system_prompt,omitempty"`
	UserPrompt   string    `json:"user_prompt,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Workflow is an ordered sequence of agent steps, optionally cron-scheduled.
// LastScheduledAt is mutated only by the scheduler.
type Workflow struct {
	ID              string     `json:"id"`
	UserID          string     `json:"user_id"`
	Name            string     `json:"name"`
	Description     string     `json:"description,omitempty"`
	Enabled         bool       `json:"enabled"`
	Schedule        string     `json:"schedule,omitempty"`
	LastScheduledAt *time.Time `json:"last_scheduled_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// WorkflowStep binds an agent into a workflow at an integer position.
// Steps form a strict sequence consumed by index; position ties break by
// insertion order.
type WorkflowStep struct {
	ID             string    `json:"id"`
	WorkflowID     string    `json:"workflow_id"`
	AgentID        string    `json:"agent_id"`
	Position       int       `json:"position"`
	OutputSelector string    `json:"output_selector,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// WorkflowRun is one execution instance of a workflow.
// StartedAt is set exactly once, leaving pending; CompletedAt is set exactly
// once, entering completed or failed; CurrentStep never decreases.
type WorkflowRun struct {
	ID          string           `json:"id"`
	WorkflowID  string           `json:"workflow_id"`
	Status      schema.RunStatus `json:"status"`
	Input       string           `json:"input,omitempty"`
	Output      string           `json:"output,omitempty"`
	Error       string           `json:"error,omitempty"`
	CurrentStep int              `json:"current_step"`
	StartedAt   *time.Time       `json:"started_at,omitempty"`
	CompletedAt *time.Time       `json:"completed_at,omitempty"`
	CreatedAt   time.Time        `json:"created_at"`
	UpdatedAt   time.Time        `json:"updated_at"`
}

// WorkflowRunStep records one (run, step) execution attempt. At most one
// non-stale record exists per pair; a prior record is deleted before a fresh
// one is created so a retried tick of the same step is idempotent.
type WorkflowRunStep struct {
	ID             string               `json:"id"`
	WorkflowRunID  string               `json:"workflow_run_id"`
	WorkflowStepID string               `json:"workflow_step_id"`
	WorkflowID     string               `json:"workflow_id"`
	SystemPrompt   string               `json:"system_prompt,omitempty"`
	UserPrompt     string               `json:"user_prompt,omitempty"`
	Input          string               `json:"input,omitempty"`
	Output         string               `json:"output,omitempty"`
	Rationale      string               `json:"rationale,omitempty"`
	Status         schema.RunStepStatus `json:"status"`
	CreatedAt      time.Time            `json:"created_at"`
	UpdatedAt      time.Time            `json:"updated_at"`
}

// QueuedJob is one durable entry in a named task queue.
type QueuedJob struct {
	ID         int64            `json:"id"`
	Queue      string           `json:"queue"`
	Action     string           `json:"action"`
	Params     string           `json:"params,omitempty"`
	Status     schema.JobStatus `json:"status"`
	Error      string           `json:"error,omitempty"`
	EnqueuedAt time.Time        `json:"enqueued_at"`
	StartedAt  *time.Time       `json:"started_at,omitempty"`
	FinishedAt *time.Time       `json:"finished_at,omitempty"`
}

// --- Filter and update types ---

// WorkflowFilter specifies criteria for listing workflows.
type WorkflowFilter struct {
	UserID  string `json:"user_id,omitempty"`
	Enabled *bool  `json:"enabled,omitempty"`
	Limit   int    `json:"limit,omitempty"`
	Offset  int    `json:"offset,omitempty"`
}

// WorkflowUpdate specifies mutable workflow fields. Nil pointers are left
// untouched; ClearSchedule removes the cron schedule entirely.
type WorkflowUpdate struct {
	Name          *string `json:"name,omitempty"`
	Description   *string `json:"description,omitempty"`
	Enabled       *bool   `json:"enabled,omitempty"`
	Schedule      *string `json:"schedule,omitempty"`
	ClearSchedule bool    `json:"clear_schedule,omitempty"`
}

// AgentUpdate specifies mutable agent fields.
type AgentUpdate struct {
	Name         *string `json:"name,omitempty"`
	Description  *string `json:"description,omitempty"`
	Enabled      *bool   `json:"enabled,omitempty"`
	Model        *string `json:"model,omitempty"`
	SystemPrompt *string `json:"system_prompt,omitempty"`
	UserPrompt   *string `json:"user_prompt,omitempty"`
}

// StepUpdate specifies mutable workflow step fields.
type StepUpdate struct {
	AgentID        *string `json:"agent_id,omitempty"`
	Position       *int    `json:"position,omitempty"`
	OutputSelector *string `json:"output_selector,omitempty"`
}

// RunFilter specifies criteria for listing workflow runs.
type RunFilter struct {
	WorkflowID string            `json:"workflow_id,omitempty"`
	Status     *schema.RunStatus `json:"status,omitempty"`
	Limit      int               `json:"limit,omitempty"`
	Offset     int               `json:"offset,omitempty"`
}

// RunUpdate specifies mutable workflow run fields.
type RunUpdate struct {
	Status      *schema.RunStatus `json:"status,omitempty"`
	Output      *string           `json:"output,omitempty"`
	Error       *string           `json:"error,omitempty"`
	CurrentStep *int              `json:"current_step,omitempty"`
	StartedAt   *time.Time        `json:"started_at,omitempty"`
	CompletedAt *time.Time        `json:"completed_at,omitempty"`
}

// RunStepUpdate specifies mutable workflow run step fields.
type RunStepUpdate struct {
	Status    *schema.RunStepStatus `json:"status,omitempty"`
	Output    *string               `json:"output,omitempty"`
	Rationale *string               `json:"rationale,omitempty"`
}
