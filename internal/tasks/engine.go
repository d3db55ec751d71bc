package tasks

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/mlsync/internal/models"
	"github.com/desertthunder/mlsync/internal/services"
	"github.com/desertthunder/mlsync/internal/shared"
)

// CampaignState is a step of the per-campaign state machine.
type CampaignState int

const (
	StateStart CampaignState = iota
	StateSyncApprovedGroups
	StateSyncAllRegistered
	StatePruneUnapproved
	StateDone
	StateFailed
)

func (s CampaignState) String() string {
	switch s {
	case StateStart:
		return "start"
	case StateSyncApprovedGroups:
		return "sync_approved_groups"
	case StateSyncAllRegistered:
		return "sync_all_registered"
	case StatePruneUnapproved:
		return "prune_unapproved"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// CampaignResult summarizes one campaign within a run.
type CampaignResult struct {
	CampaignID      string
	State           CampaignState // DONE or FAILED once the campaign has finished
	FailedAt        CampaignState // state that was active when FAILED was entered
	Passes          []*PassResult
	ApprovedAdded   int
	RegisteredAdded int
	Pruned          int
	PruneFailed     bool
	Err             error
	StartedAt       time.Time
	CompletedAt     time.Time
}

// FailedBatches counts add and remove batches the mailing list service rejected.
func (r *CampaignResult) FailedBatches() int {
	n := 0
	for _, p := range r.Passes {
		n += p.ListFailures + p.AggregateFailures
	}
	if r.PruneFailed {
		n++
	}
	return n
}

// FailedPasses returns the passes that ended with a roster or snapshot error.
func (r *CampaignResult) FailedPasses() []*PassResult {
	var out []*PassResult
	for _, p := range r.Passes {
		if p.Err != nil {
			out = append(out, p)
		}
	}
	return out
}

// RunResult summarizes a full run over all configured campaigns.
type RunResult struct {
	RunID       string
	DryRun      bool
	Campaigns   []*CampaignResult
	StartedAt   time.Time
	CompletedAt time.Time
}

// Failed counts campaigns that ended in FAILED.
func (r *RunResult) Failed() int {
	n := 0
	for _, c := range r.Campaigns {
		if c.State == StateFailed {
			n++
		}
	}
	return n
}

// RunRecorder persists finished campaigns. Recorder errors are logged and never fail a campaign.
//
// This is implemented by repositories.SyncRunRepository via an adapter.
type RunRecorder interface {
	RecordCampaign(ctx context.Context, runID string, dryRun bool, result *CampaignResult) error
}

// Options configures an [Engine].
type Options struct {
	PageSize        int
	AggregateListID string
	UpdateExisting  bool
	DryRun          bool
	AbortOnFailure  bool // stop the run after the first FAILED campaign
}

// Engine orchestrates campaigns: approved groups, then the registered group, then the prune.
//
// Campaigns, groups and pages are processed one at a time.
type Engine struct {
	reconciler *Reconciler
	mutator    *BatchMutator
	recorder   RunRecorder
	opts       Options
	logger     *log.Logger
	now        func() time.Time
	newID      func() string
}

// NewEngine creates an Engine over the given collaborators.
func NewEngine(roster services.RosterService, audience services.AudienceService, opts Options, logger *log.Logger) *Engine {
	if opts.PageSize <= 0 {
		opts.PageSize = DefaultPageSize
	}
	mutator := NewBatchMutator(audience, opts.AggregateListID, opts.UpdateExisting, opts.DryRun, logger)
	reconciler := NewReconciler(
		NewRosterReader(roster, opts.PageSize, logger),
		NewSnapshotReader(audience, opts.PageSize, logger),
		mutator,
		logger,
	)
	return &Engine{
		reconciler: reconciler,
		mutator:    mutator,
		opts:       opts,
		logger:     logger,
		now:        time.Now,
		newID:      shared.GenerateID,
	}
}

// WithRecorder sets the recorder that receives each finished campaign.
func (e *Engine) WithRecorder(r RunRecorder) *Engine {
	e.recorder = r
	return e
}

// campaignRun is the state owned by a single campaign for the duration of a run.
type campaignRun struct {
	campaign models.Campaign
	approved *models.ApprovedEmailSet
	result   *CampaignResult
	logger   *log.Logger
}

func (c *campaignRun) enter(state CampaignState) {
	c.result.State = state
	c.logger.Debug("campaign state", "state", state)
}

func (c *campaignRun) fail(err error) {
	c.result.FailedAt = c.result.State
	c.result.State = StateFailed
	c.result.Err = err
}

// Run syncs campaigns in order.
//
// A FAILED campaign is logged and the run continues unless AbortOnFailure is set. The
// returned error is non-nil only when the run was stopped early, by cancellation or by
// the abort policy; the partial result is returned either way.
func (e *Engine) Run(ctx context.Context, campaigns []models.Campaign, progress chan<- ProgressUpdate) (*RunResult, error) {
	run := &RunResult{RunID: e.newID(), DryRun: e.opts.DryRun, StartedAt: e.now()}
	logger := shared.WithLogger(e.logger, "run", run.RunID)
	logger.Info("starting sync run", "campaigns", len(campaigns), "dry_run", e.opts.DryRun)

	var runErr error
	for i, campaign := range campaigns {
		if err := ctx.Err(); err != nil {
			runErr = err
			break
		}

		sendProgress(progress, startCampaignUpdate(i+1, len(campaigns), campaign.ID))
		result := e.SyncCampaign(ctx, campaign, progress)
		run.Campaigns = append(run.Campaigns, result)
		e.record(ctx, logger, run, result)

		if result.State != StateFailed {
			continue
		}
		if errors.Is(result.Err, context.Canceled) || errors.Is(result.Err, context.DeadlineExceeded) {
			runErr = result.Err
			break
		}
		if e.opts.AbortOnFailure {
			runErr = fmt.Errorf("campaign %s failed: %w", campaign.ID, result.Err)
			break
		}
	}

	run.CompletedAt = e.now()
	logger.Info("sync run finished", "campaigns", len(run.Campaigns), "failed", run.Failed(), "duration", run.CompletedAt.Sub(run.StartedAt))
	return run, runErr
}

func (e *Engine) record(ctx context.Context, logger *log.Logger, run *RunResult, result *CampaignResult) {
	if e.recorder == nil {
		return
	}
	// Recording must outlive a cancelled run so the failure itself is kept.
	if err := e.recorder.RecordCampaign(context.WithoutCancel(ctx), run.RunID, run.DryRun, result); err != nil {
		logger.Warn("failed to record campaign", "campaign", result.CampaignID, "error", err)
	}
}

// SyncCampaign runs the state machine for a single campaign and returns its result.
func (e *Engine) SyncCampaign(ctx context.Context, campaign models.Campaign, progress chan<- ProgressUpdate) *CampaignResult {
	c := &campaignRun{
		campaign: campaign,
		approved: models.NewApprovedEmailSet(),
		result:   &CampaignResult{CampaignID: campaign.ID, State: StateStart, StartedAt: e.now()},
		logger:   shared.WithLogger(e.logger, "campaign", campaign.ID),
	}

	if err := e.syncCampaign(ctx, c, progress); err != nil {
		c.fail(err)
		c.logger.Error("campaign failed", "state", c.result.FailedAt, "error", err)
		sendProgress(progress, campaignFailedUpdate(c.result))
	} else {
		c.enter(StateDone)
		c.logger.Info("campaign complete",
			"approved_added", c.result.ApprovedAdded,
			"registered_added", c.result.RegisteredAdded,
			"pruned", c.result.Pruned,
			"failed_batches", c.result.FailedBatches())
		sendProgress(progress, campaignCompleteUpdate(c.result))
	}

	c.result.CompletedAt = e.now()
	return c.result
}

func (e *Engine) syncCampaign(ctx context.Context, c *campaignRun, progress chan<- ProgressUpdate) error {
	if err := c.campaign.Validate(); err != nil {
		return err
	}

	c.enter(StateSyncApprovedGroups)
	for i, groupID := range c.campaign.ApprovedGroupIDs {
		pass := Pass{CampaignID: c.campaign.ID, GroupID: groupID, ListID: c.campaign.ApprovedListID, Approved: true}
		sendProgress(progress, passUpdate(pass, i+1, len(c.campaign.ApprovedGroupIDs)))

		result, err := e.runPass(ctx, c, pass, progress)
		c.result.ApprovedAdded += result.Added
		if err != nil {
			return err
		}
	}

	if !c.campaign.TracksUnapproved() {
		return nil
	}

	c.enter(StateSyncAllRegistered)
	pass := Pass{CampaignID: c.campaign.ID, GroupID: c.campaign.RegisteredGroupID, ListID: c.campaign.UnapprovedListID}
	sendProgress(progress, passUpdate(pass, 1, 1))

	result, err := e.runPass(ctx, c, pass, progress)
	c.result.RegisteredAdded += result.Added
	if err != nil {
		return err
	}

	c.enter(StatePruneUnapproved)
	return e.prune(ctx, c, progress)
}

// runPass reconciles a single pass. Only cancellation is returned; other pass failures
// are kept on the result and logged so the remaining groups still run.
func (e *Engine) runPass(ctx context.Context, c *campaignRun, pass Pass, progress chan<- ProgressUpdate) (*PassResult, error) {
	result, err := e.reconciler.Reconcile(ctx, pass, c.approved, progress)
	c.result.Passes = append(c.result.Passes, result)
	if err == nil {
		return result, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return result, ctxErr
	}

	c.logger.Error("group reconciliation failed", "group", pass.GroupID, "list", pass.ListID, "approved", pass.Approved, "error", err)
	return result, nil
}

// prune removes every approved email of the campaign from the unapproved list, then clears the set.
func (e *Engine) prune(ctx context.Context, c *campaignRun, progress chan<- ProgressUpdate) error {
	emails := c.approved.Emails()
	defer c.approved.Clear()

	sendProgress(progress, pruneUpdate(c.campaign.UnapprovedListID, len(emails)))
	if err := e.mutator.ApplyRemoveBatch(ctx, c.campaign.UnapprovedListID, emails); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		c.result.PruneFailed = true
		c.logger.Error("prune failed", "list", c.campaign.UnapprovedListID, "count", len(emails), "error", err)
		return nil
	}

	c.result.Pruned = len(emails)
	return nil
}
