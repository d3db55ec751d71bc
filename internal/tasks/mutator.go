package tasks

import (
	"context"
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/mlsync/internal/models"
	"github.com/desertthunder/mlsync/internal/services"
	"github.com/desertthunder/mlsync/internal/shared"
)

// BatchMutator applies computed batches to the mailing list service.
//
// In dry-run mode batches are logged and counted but never submitted.
type BatchMutator struct {
	audience        services.AudienceService
	aggregateListID string
	updateExisting  bool
	dryRun          bool
	logger          *log.Logger
}

// AddOutcome reports how a single add batch fared on its target list and on the aggregate list.
type AddOutcome struct {
	Size             int
	Target           error
	Aggregate        error
	AggregateSkipped bool // no aggregate list configured, or the target is the aggregate list
}

// Failures counts the lists the batch could not be applied to.
func (o AddOutcome) Failures() int {
	n := 0
	if o.Target != nil {
		n++
	}
	if o.Aggregate != nil {
		n++
	}
	return n
}

func NewBatchMutator(audience services.AudienceService, aggregateListID string, updateExisting, dryRun bool, logger *log.Logger) *BatchMutator {
	return &BatchMutator{
		audience:        audience,
		aggregateListID: aggregateListID,
		updateExisting:  updateExisting,
		dryRun:          dryRun,
		logger:          logger,
	}
}

// ApplyAddBatch subscribes batch to a list. An empty batch is a no-op.
//
// Members rejected individually by the service are logged and do not fail the batch.
func (m *BatchMutator) ApplyAddBatch(ctx context.Context, listID string, batch []models.SubscribeBatchItem, updateExisting bool) error {
	if len(batch) == 0 {
		return nil
	}
	if m.dryRun {
		m.logger.Info("dry run: would subscribe", "list", listID, "count", len(batch))
		return nil
	}

	items := make([]services.SubscribeItem, 0, len(batch))
	for _, b := range batch {
		items = append(items, services.SubscribeItem{
			Email:     b.Email,
			EmailType: b.EmailType,
			FirstName: b.FirstName,
			LastName:  b.LastName,
		})
	}

	result, err := m.audience.BatchSubscribe(ctx, listID, items, services.SubscribeOptions{DoubleOptIn: false, UpdateExisting: updateExisting})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return fmt.Errorf("%w: subscribe %d members to list %s: %v", shared.ErrAudienceService, len(batch), listID, err)
	}

	for _, e := range result.Errors {
		m.logger.Warn("member rejected", "list", listID, "email", e.Email, "code", e.Code, "error", e.Message)
	}
	m.logger.Info("subscribed batch", "list", listID, "count", len(batch), "added", result.Added, "updated", result.Updated, "rejected", len(result.Errors))
	return nil
}

// Publish applies batch to the target list and replays it against the aggregate list.
//
// The two submissions are independent: a failure on one never prevents the other.
func (m *BatchMutator) Publish(ctx context.Context, listID string, batch []models.SubscribeBatchItem) AddOutcome {
	outcome := AddOutcome{Size: len(batch)}

	outcome.Target = m.ApplyAddBatch(ctx, listID, batch, m.updateExisting)
	if outcome.Target != nil {
		m.logger.Error("add batch failed", "list", listID, "count", len(batch), "error", outcome.Target)
	}

	if m.aggregateListID == "" || m.aggregateListID == listID {
		outcome.AggregateSkipped = true
		return outcome
	}

	outcome.Aggregate = m.ApplyAddBatch(ctx, m.aggregateListID, batch, m.updateExisting)
	if outcome.Aggregate != nil {
		m.logger.Error("aggregate batch failed", "list", m.aggregateListID, "count", len(batch), "error", outcome.Aggregate)
	}
	return outcome
}

// ApplyRemoveBatch permanently deletes emails from a list. An empty batch is a no-op.
func (m *BatchMutator) ApplyRemoveBatch(ctx context.Context, listID string, emails []string) error {
	if len(emails) == 0 {
		return nil
	}
	if m.dryRun {
		m.logger.Info("dry run: would remove", "list", listID, "count", len(emails))
		return nil
	}

	opts := services.UnsubscribeOptions{DeleteMember: true, SendGoodbye: false, SendNotify: false}
	result, err := m.audience.BatchUnsubscribe(ctx, listID, emails, opts)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return fmt.Errorf("%w: remove %d members from list %s: %v", shared.ErrAudienceService, len(emails), listID, err)
	}

	m.logger.Info("removed batch", "list", listID, "count", len(emails), "batch", result.BatchID)
	return nil
}
