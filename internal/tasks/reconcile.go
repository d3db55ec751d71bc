package tasks

import (
	"context"
	"errors"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/mlsync/internal/models"
	"github.com/desertthunder/mlsync/internal/shared"
)

// Pass is one reconciliation of a roster group against a target list.
type Pass struct {
	CampaignID string
	GroupID    string
	ListID     string
	Approved   bool // approved passes record every email they see into the campaign's approved set
}

// PassResult summarizes a completed or aborted [Pass].
type PassResult struct {
	Pass
	Scanned           int   // identities read from the roster
	Added             int   // items placed in add batches
	Batches           []int // size of each submitted batch in order
	ListFailures      int   // add batches the target list rejected
	AggregateFailures int   // add batches the aggregate list rejected
	RecordOnly        bool  // snapshot was unavailable so nothing was queued
	Err               error // roster or snapshot failure that ended the pass
}

// PagePlan is the outcome of planning a single roster page.
type PagePlan struct {
	Batch           []models.SubscribeBatchItem
	NoEmail         int // individuals without a usable address
	AlreadyPresent  int // already on the target list
	ApprovedSkipped int // suppressed from the unapproved list
	Duplicates      int // repeated within the pass
}

// Plan computes the add batch for one roster page.
//
// For every individual with an email: an approved pass records the email into approved first,
// then the email is skipped if it is in snapshot, or (for unapproved passes) already approved,
// or was already queued earlier in the pass according to seen. Everything else is queued.
func Plan(page []models.Identity, snapshot models.AudienceSnapshot, approved *models.ApprovedEmailSet, approvedPass bool, seen map[string]struct{}) PagePlan {
	var plan PagePlan
	for _, identity := range page {
		if !identity.IsIndividual {
			continue
		}
		if !identity.HasEmail() {
			plan.NoEmail++
			continue
		}

		if approvedPass {
			approved.Add(identity.Email)
		}
		if snapshot.Contains(identity.Email) {
			plan.AlreadyPresent++
			continue
		}
		if !approvedPass && approved.Contains(identity.Email) {
			plan.ApprovedSkipped++
			continue
		}

		key := shared.NormalizeEmail(identity.Email)
		if _, ok := seen[key]; ok {
			plan.Duplicates++
			continue
		}
		seen[key] = struct{}{}

		plan.Batch = append(plan.Batch, models.NewSubscribeBatchItem(identity))
	}
	return plan
}

// Reconciler runs passes: snapshot the target list, walk the roster, plan and publish each page.
type Reconciler struct {
	roster    *RosterReader
	snapshots *SnapshotReader
	mutator   *BatchMutator
	logger    *log.Logger
}

func NewReconciler(roster *RosterReader, snapshots *SnapshotReader, mutator *BatchMutator, logger *log.Logger) *Reconciler {
	return &Reconciler{roster: roster, snapshots: snapshots, mutator: mutator, logger: logger}
}

// Reconcile runs pass and returns what it did.
//
// The snapshot is captured before any batch is submitted and is not refreshed during the pass.
// When the snapshot of an approved list cannot be read, the roster is still walked so the
// approved set stays complete, but nothing is queued. Batch failures are counted, never returned.
func (r *Reconciler) Reconcile(ctx context.Context, pass Pass, approved *models.ApprovedEmailSet, progress chan<- ProgressUpdate) (*PassResult, error) {
	result := &PassResult{Pass: pass}
	logger := shared.WithLogger(r.logger, "campaign", pass.CampaignID, "group", pass.GroupID, "list", pass.ListID, "approved", pass.Approved)

	snapshot, err := r.snapshots.ActiveEmails(ctx, pass.ListID)
	if err != nil {
		if !pass.Approved || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			result.Err = err
			return result, err
		}
		logger.Error("list snapshot unavailable, recording approvals only", "error", err)
		result.RecordOnly = true
	} else {
		sendProgress(progress, snapshotUpdate(pass.ListID, snapshot.Len()))
	}

	seen := make(map[string]struct{})
	for page, err := range r.roster.Identities(ctx, pass.GroupID) {
		if err != nil {
			result.Err = err
			return result, err
		}
		result.Scanned += len(page)

		plan := Plan(page, snapshot, approved, pass.Approved, seen)
		logger.Debug("planned page", "identities", len(page), "queued", len(plan.Batch),
			"present", plan.AlreadyPresent, "approved_skipped", plan.ApprovedSkipped, "no_email", plan.NoEmail, "duplicates", plan.Duplicates)

		if result.RecordOnly || len(plan.Batch) == 0 {
			continue
		}

		outcome := r.mutator.Publish(ctx, pass.ListID, plan.Batch)
		result.Added += len(plan.Batch)
		result.Batches = append(result.Batches, len(plan.Batch))
		if outcome.Target != nil {
			result.ListFailures++
		}
		if outcome.Aggregate != nil {
			result.AggregateFailures++
		}
		sendProgress(progress, passBatchUpdate(pass, result.Scanned, result.Added))

		if err := ctx.Err(); err != nil {
			result.Err = err
			return result, err
		}
	}

	logger.Info("pass complete", "scanned", result.Scanned, "added", result.Added, "batches", len(result.Batches))
	return result, nil
}
