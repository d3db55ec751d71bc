package main

import (
	"context"
	"fmt"

	"github.com/desertthunder/mlsync/internal/tasks"
	"github.com/urfave/cli/v3"
)

// AudienceSnapshot prints the emails a sync pass would treat as already present on a list.
func (r *Runner) AudienceSnapshot(ctx context.Context, cmd *cli.Command) error {
	if err := r.requireAudience(); err != nil {
		return err
	}

	listID := cmd.String("list")
	reader := tasks.NewSnapshotReader(r.audience, r.config.Sync.PageSize, r.logger)

	r.logger.Info("fetching list snapshot", "list", listID)
	snapshot, err := reader.ActiveEmails(ctx, listID)
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		return r.writeJSON(map[string]any{
			"list_id": listID,
			"count":   snapshot.Len(),
			"emails":  snapshot.Emails(),
		}, true)
	}

	r.writePlainHeader(fmt.Sprintf("List %s: %d active members", listID, snapshot.Len()))
	for _, email := range snapshot.Emails() {
		r.writePlain("%s\n", email)
	}
	return nil
}
