package main

import (
	"context"
	"time"

	"github.com/desertthunder/mlsync/internal/models"
	"github.com/desertthunder/mlsync/internal/repositories"
	"github.com/desertthunder/mlsync/internal/shared"
	"github.com/desertthunder/mlsync/internal/ui"
	"github.com/urfave/cli/v3"
)

type historyEntry struct {
	Sequence        int        `json:"sequence"`
	RunID           string     `json:"run_id"`
	CampaignID      string     `json:"campaign_id"`
	State           string     `json:"state"`
	DryRun          bool       `json:"dry_run"`
	ApprovedAdded   int        `json:"approved_added"`
	RegisteredAdded int        `json:"registered_added"`
	Pruned          int        `json:"pruned"`
	FailedBatches   int        `json:"failed_batches"`
	Error           string     `json:"error,omitempty"`
	StartedAt       time.Time  `json:"started_at"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`
}

func newHistoryEntry(run *models.SyncRun) historyEntry {
	return historyEntry{
		Sequence:        run.Sequence(),
		RunID:           run.RunID(),
		CampaignID:      run.CampaignID(),
		State:           string(run.State()),
		DryRun:          run.DryRun(),
		ApprovedAdded:   run.ApprovedAdded(),
		RegisteredAdded: run.RegisteredAdded(),
		Pruned:          run.Pruned(),
		FailedBatches:   run.FailedBatches(),
		Error:           run.ErrorMessage(),
		StartedAt:       run.StartedAt(),
		CompletedAt:     run.CompletedAt(),
	}
}

// History lists recorded campaign runs, newest first.
func (r *Runner) History(ctx context.Context, cmd *cli.Command) error {
	db, err := shared.OpenDatabase(ctx, r.config.Database)
	if err != nil {
		return err
	}
	defer db.Close()

	runs, err := repositories.NewSyncRunRepository(db).List(ctx, repositories.RunFilter{
		CampaignID: cmd.String("campaign"),
		RunID:      cmd.String("run"),
		Limit:      int(cmd.Int("limit")),
	})
	if err != nil {
		return err
	}

	entries := make([]historyEntry, 0, len(runs))
	for _, run := range runs {
		entries = append(entries, newHistoryEntry(run))
	}

	if cmd.Bool("json") {
		return r.writeJSON(entries, true)
	}

	if len(entries) == 0 {
		r.writePlain("No sync runs recorded\n")
		return nil
	}

	r.writePlainHeader("Sync History")
	for _, e := range entries {
		mode := ""
		if e.DryRun {
			mode = " (dry run)"
		}
		r.writePlain("#%d %s %s [%s]%s\n", e.Sequence, e.StartedAt.Local().Format(time.DateTime), e.CampaignID,
			ui.Styles.State(e.State, e.State == string(models.RunStateFailed)), mode)
		r.writePlain("   run %s: approved +%d, registered +%d, pruned %d, failed batches %d\n",
			e.RunID, e.ApprovedAdded, e.RegisteredAdded, e.Pruned, e.FailedBatches)
		if e.Error != "" {
			r.writePlain("   %s\n", ui.Styles.Err(e.Error))
		}
	}
	return nil
}
