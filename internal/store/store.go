package store

import (
	"context"
	"time"
)

// Store defines the persistence layer contract.
// All implementations must be safe for concurrent use.
type Store interface {
	// Users
	CreateUser(ctx context.Context, u *User) error
	GetUser(ctx context.Context, id string) (*User, error)
	GetUserByEmail(ctx context.Context, email string) (*User, error)

	// Sessions
	CreateSession(ctx context.Context, s *Session) error
	GetSession(ctx context.Context, id string) (*Session, error)
	DeleteSession(ctx context.Context, id string) error

	// Agents
	CreateAgent(ctx context.Context, a *Agent) error
	GetAgent(ctx context.Context, id string) (*Agent, error)
	UpdateAgent(ctx context.Context, id string, update AgentUpdate) error
	ListAgents(ctx context.Context, userID string) ([]*Agent, error)
	DeleteAgent(ctx context.Context, id string) error

	// Workflows
	CreateWorkflow(ctx context.Context, wf *Workflow) error
	GetWorkflow(ctx context.Context, id string) (*Workflow, error)
	UpdateWorkflow(ctx context.Context, id string, update WorkflowUpdate) error
	ListWorkflows(ctx context.Context, filter WorkflowFilter) ([]*Workflow, error)
	DeleteWorkflow(ctx context.Context, id string) error

	// ListScheduleCandidates returns enabled workflows with a cron schedule
	// whose watermark is null or older than the cutoff, oldest watermark
	// first, capped at limit.
	ListScheduleCandidates(ctx context.Context, cutoff time.Time, limit int) ([]*Workflow, error)

	// Steps
	CreateStep(ctx context.Context, s *WorkflowStep) error
	GetStep(ctx context.Context, id string) (*WorkflowStep, error)
	UpdateStep(ctx context.Context, id string, update StepUpdate) error
	ListSteps(ctx context.Context, workflowID string) ([]*WorkflowStep, error)
	DeleteStep(ctx context.Context, id string) error

	// Runs
	CreateRun(ctx context.Context, r *WorkflowRun) error
	GetRun(ctx context.Context, runID, workflowID string) (*WorkflowRun, error)
	UpdateRun(ctx context.Context, id string, update RunUpdate) error
	ListRuns(ctx context.Context, filter RunFilter) ([]*WorkflowRun, error)
	ListActiveRuns(ctx context.Context) ([]*WorkflowRun, error)

	// CreateScheduledRun inserts a pending run and advances the workflow's
	// last_scheduled_at watermark in a single transaction.
	CreateScheduledRun(ctx context.Context, r *WorkflowRun, scheduledAt time.Time) error

	// Run steps
	ReplaceRunStep(ctx context.Context, rs *WorkflowRunStep) error
	GetRunStepForStep(ctx context.Context, runID, stepID string) (*WorkflowRunStep, error)
	UpdateRunStep(ctx context.Context, id string, update RunStepUpdate) error
	ListRunSteps(ctx context.Context, runID string) ([]*WorkflowRunStep, error)

	// FailRun marks the run failed (stamping error + completed_at) and the
	// run step failed (recording the error text as output) in a single
	// transaction, so a crashed caller cannot lose the failure signal.
	FailRun(ctx context.Context, runID, runStepID, errText string) error

	// Task queue
	EnqueueJob(ctx context.Context, j *QueuedJob) error
	ClaimJob(ctx context.Context, queue string) (*QueuedJob, error)
	FinishJob(ctx context.Context, id int64, status string, errText string) error
	GetJob(ctx context.Context, id int64) (*QueuedJob, error)
	ListQueuedJobs(ctx context.Context, queue string, offset, limit int) ([]*QueuedJob, error)

	// Maintenance
	Migrate(ctx context.Context) error

	// Lifecycle
	Close() error
}
