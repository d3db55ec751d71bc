package tasks

import (
	"context"
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/mlsync/internal/models"
	"github.com/desertthunder/mlsync/internal/services"
	"github.com/desertthunder/mlsync/internal/shared"
)

// SnapshotReader captures the set of emails already present on a mailing list.
type SnapshotReader struct {
	audience services.AudienceService
	pageSize int
	logger   *log.Logger
}

func NewSnapshotReader(audience services.AudienceService, pageSize int, logger *log.Logger) *SnapshotReader {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	return &SnapshotReader{audience: audience, pageSize: pageSize, logger: logger}
}

// ActiveEmails returns the union of subscribed and unsubscribed members of a list.
//
// Unsubscribed members count as present so an explicit opt-out is never re-subscribed.
func (r *SnapshotReader) ActiveEmails(ctx context.Context, listID string) (models.AudienceSnapshot, error) {
	var emails []string
	for _, status := range services.ActiveStatuses {
		for offset, total := 0, 1; offset < total; offset += r.pageSize {
			page, err := r.audience.ListMembers(ctx, listID, status, offset, r.pageSize)
			if err != nil {
				if ctxErr := ctx.Err(); ctxErr != nil {
					return models.AudienceSnapshot{}, ctxErr
				}
				return models.AudienceSnapshot{}, fmt.Errorf("%w: list %s (%s) at offset %d: %v", shared.ErrAudienceService, listID, status, offset, err)
			}
			total = page.Total

			for _, m := range page.Members {
				if m.Email != "" {
					emails = append(emails, m.Email)
				}
			}
		}
	}

	snapshot := models.NewAudienceSnapshot(emails...)
	r.logger.Debug("captured list snapshot", "list", listID, "members", snapshot.Len())
	return snapshot, nil
}
