package main

import (
	"context"
	"fmt"

	"github.com/desertthunder/mlsync/internal/formatter"
	"github.com/desertthunder/mlsync/internal/repositories"
	"github.com/desertthunder/mlsync/internal/shared"
	"github.com/desertthunder/mlsync/internal/tasks"
	"github.com/desertthunder/mlsync/internal/ui"
	"github.com/urfave/cli/v3"
)

// SyncRun reconciles the selected campaigns and prints the run report.
//
// Failed campaigns are reported but do not fail the command; only an aborted or
// cancelled run returns an error.
func (r *Runner) SyncRun(ctx context.Context, cmd *cli.Command) error {
	format, err := formatter.ParseFormat(cmd.String("format"))
	if err != nil {
		return err
	}
	if err := r.config.Validate(); err != nil {
		return err
	}
	if err := r.requireRoster(); err != nil {
		return err
	}
	if err := r.requireAudience(); err != nil {
		return err
	}

	campaigns, err := r.campaigns(cmd.StringSlice("campaign"))
	if err != nil {
		return err
	}

	dryRun := cmd.Bool("dry-run")
	engine := tasks.NewEngine(r.roster, r.audience, tasks.Options{
		PageSize:        r.config.Sync.PageSize,
		AggregateListID: r.config.Sync.AggregateListID,
		UpdateExisting:  r.config.Sync.UpdateExisting,
		DryRun:          dryRun,
		AbortOnFailure:  r.config.Sync.AbortOnCampaignFailure,
	}, r.logger)

	if !cmd.Bool("no-history") {
		db, err := shared.OpenDatabase(ctx, r.config.Database)
		if err != nil {
			return fmt.Errorf("failed to open history database: %w", err)
		}
		defer db.Close()
		engine.WithRecorder(repositories.NewRunRecorder(repositories.NewSyncRunRepository(db)))
	}

	r.logger.Info("starting sync", "campaigns", len(campaigns), "dry_run", dryRun)

	// Progress lines would corrupt machine-readable output.
	var progress chan tasks.ProgressUpdate
	done := make(chan struct{})
	if format == formatter.FormatText {
		progress = make(chan tasks.ProgressUpdate, 50)
		go func() {
			defer close(done)
			for update := range progress {
				r.showProgress(update)
			}
		}()
	} else {
		close(done)
	}

	result, runErr := engine.Run(ctx, campaigns, progress)
	if progress != nil {
		close(progress)
	}
	<-done

	if format == formatter.FormatText {
		r.writePlain("\n")
		if result.Failed() > 0 {
			r.writePlainHeader("Sync Finished With Failures")
		} else {
			r.writePlainHeader("Sync Complete!")
		}
	}
	if err := formatter.WriteReport(r.output, result, format); err != nil {
		return err
	}

	if path := cmd.String("report"); path != "" {
		if err := formatter.WriteReportFile(path, result, format); err != nil {
			return err
		}
		r.logger.Info("report written", "path", path, "format", format)
	}

	return runErr
}

func (r *Runner) showProgress(update tasks.ProgressUpdate) {
	switch update.Phase {
	case tasks.StartCampaign:
		r.writePlainln("%s", ui.Styles.Title(update.Message))
	case tasks.FetchSnapshot:
		r.writePlain("📥 %s\n", update.Message)
	case tasks.SyncApproved, tasks.SyncRegistered:
		r.writePlain("   %s\n", update.Message)
	case tasks.PruneUnapproved:
		r.writePlain("🧹 %s\n", update.Message)
	case tasks.CampaignComplete:
		r.writePlain("%s\n", ui.Styles.OK(update.Message))
	case tasks.CampaignFailed:
		r.writePlain("%s\n", ui.Styles.Err(update.Message))
	}
}
