package models

import (
	"fmt"
	"time"
)

// RunState is the terminal state a campaign reached within a run.
type RunState string

const (
	RunStateDone   RunState = "done"
	RunStateFailed RunState = "failed"
)

// SyncRun records the outcome of one campaign within one invocation.
type SyncRun struct {
	id              string
	sequence        int
	runID           string
	campaignID      string
	state           RunState
	dryRun          bool
	approvedAdded   int
	registeredAdded int
	pruned          int
	failedBatches   int
	errorMessage    string
	passes          []PassRecord
	startedAt       time.Time
	completedAt     *time.Time
	createdAt       time.Time
	updatedAt       time.Time
	deletedAt       *time.Time
}

// PassRecord is the outcome of one roster group → list pass.
type PassRecord struct {
	GroupID      string
	ListID       string
	Approved     bool
	Scanned      int
	Added        int
	ErrorMessage string
}

// NewSyncRun creates a run record for campaignID started at startedAt.
func NewSyncRun(runID, campaignID string, startedAt time.Time) *SyncRun {
	now := time.Now()
	return &SyncRun{
		runID:      runID,
		campaignID: campaignID,
		state:      RunStateDone,
		startedAt:  startedAt,
		createdAt:  now,
		updatedAt:  now,
	}
}

// RestoreSyncRun rebuilds a run record from stored columns.
func RestoreSyncRun(
	id string, sequence int, runID, campaignID string, state RunState, dryRun bool,
	approvedAdded, registeredAdded, pruned, failedBatches int, errorMessage string,
	startedAt time.Time, completedAt *time.Time, createdAt, updatedAt time.Time, deletedAt *time.Time,
) *SyncRun {
	return &SyncRun{
		id:              id,
		sequence:        sequence,
		runID:           runID,
		campaignID:      campaignID,
		state:           state,
		dryRun:          dryRun,
		approvedAdded:   approvedAdded,
		registeredAdded: registeredAdded,
		pruned:          pruned,
		failedBatches:   failedBatches,
		errorMessage:    errorMessage,
		startedAt:       startedAt,
		completedAt:     completedAt,
		createdAt:       createdAt,
		updatedAt:       updatedAt,
		deletedAt:       deletedAt,
	}
}

func (r *SyncRun) ID() string { return r.id }
func (r *SyncRun) Sequence() int { return r.sequence }
func (r *SyncRun) RunID() string { return r.runID }
func (r *SyncRun) CampaignID() string { return r.campaignID }
func (r *SyncRun) State() RunState { return r.state }
func (r *SyncRun) DryRun() bool { return r.dryRun }
func (r *SyncRun) ApprovedAdded() int { return r.approvedAdded }
func (r *SyncRun) RegisteredAdded() int { return r.registeredAdded }
func (r *SyncRun) Pruned() int { return r.pruned }
func (r *SyncRun) FailedBatches() int { return r.failedBatches }
func (r *SyncRun) ErrorMessage() string { return r.errorMessage }
func (r *SyncRun) Passes() []PassRecord { return r.passes }
func (r *SyncRun) StartedAt() time.Time { return r.startedAt }
func (r *SyncRun) CompletedAt() *time.Time { return r.completedAt }
func (r *SyncRun) CreatedAt() time.Time { return r.createdAt }
func (r *SyncRun) UpdatedAt() time.Time { return r.updatedAt }
func (r *SyncRun) DeletedAt() *time.Time { return r.deletedAt }

func (r *SyncRun) SetID(id string) { r.id = id }
func (r *SyncRun) SetSequence(seq int) { r.sequence = seq }
func (r *SyncRun) SetDryRun(dryRun bool) { r.dryRun = dryRun }
func (r *SyncRun) SetUpdatedAt(t time.Time) { r.updatedAt = t }
func (r *SyncRun) SetPasses(p []PassRecord) { r.passes = p }
func (r *SyncRun) SetPruned(n int) { r.pruned = n }
func (r *SyncRun) SetFailedBatches(n int) { r.failedBatches = n }
func (r *SyncRun) SetAdded(approved, registered int) {
	r.approvedAdded = approved
	r.registeredAdded = registered
}

// Complete marks the run finished in state with an optional error message.
func (r *SyncRun) Complete(state RunState, errorMessage string, at time.Time) {
	r.state = state
	r.errorMessage = errorMessage
	r.completedAt = &at
	r.updatedAt = at
}

// Validate checks required fields.
func (r *SyncRun) Validate() error {
	if r.runID == "" {
		return fmt.Errorf("run id is required")
	}
	if r.campaignID == "" {
		return fmt.Errorf("campaign id is required")
	}
	switch r.state {
	case RunStateDone, RunStateFailed:
	default:
		return fmt.Errorf("invalid state: %q", r.state)
	}
	if r.startedAt.IsZero() {
		return fmt.Errorf("started_at is required")
	}
	return nil
}
