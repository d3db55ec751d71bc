package repositories

import (
	"context"
	"fmt"

	"github.com/desertthunder/mlsync/internal/models"
	"github.com/desertthunder/mlsync/internal/tasks"
)

// RunRecorder implements tasks.RunRecorder using SyncRunRepository.
type RunRecorder struct {
	repo *SyncRunRepository
}

// NewRunRecorder creates a new RunRecorder with the given repository
func NewRunRecorder(repo *SyncRunRepository) *RunRecorder {
	return &RunRecorder{repo: repo}
}

// RecordCampaign stores result as one sync_runs row with its passes.
func (a *RunRecorder) RecordCampaign(ctx context.Context, runID string, dryRun bool, result *tasks.CampaignResult) error {
	run := NewSyncRunFromResult(runID, dryRun, result)
	if err := a.repo.Create(ctx, run); err != nil {
		return fmt.Errorf("failed to record campaign %s: %w", result.CampaignID, err)
	}
	return nil
}

// NewSyncRunFromResult maps an engine result onto a persistable run record.
func NewSyncRunFromResult(runID string, dryRun bool, result *tasks.CampaignResult) *models.SyncRun {
	run := models.NewSyncRun(runID, result.CampaignID, result.StartedAt)
	run.SetDryRun(dryRun)
	run.SetAdded(result.ApprovedAdded, result.RegisteredAdded)
	run.SetPruned(result.Pruned)
	run.SetFailedBatches(result.FailedBatches())

	passes := make([]models.PassRecord, 0, len(result.Passes))
	for _, p := range result.Passes {
		record := models.PassRecord{
			GroupID:  p.GroupID,
			ListID:   p.ListID,
			Approved: p.Approved,
			Scanned:  p.Scanned,
			Added:    p.Added,
		}
		if p.Err != nil {
			record.ErrorMessage = p.Err.Error()
		}
		passes = append(passes, record)
	}
	run.SetPasses(passes)

	state, msg := models.RunStateDone, ""
	if result.State == tasks.StateFailed {
		state = models.RunStateFailed
		if result.Err != nil {
			msg = fmt.Sprintf("%s: %v", result.FailedAt, result.Err)
		}
	}
	run.Complete(state, msg, result.CompletedAt)
	return run
}
