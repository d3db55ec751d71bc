package tasks

import (
	"context"
	"errors"
	"io"
	"slices"
	"testing"

	"github.com/desertthunder/mlsync/internal/models"
	"github.com/desertthunder/mlsync/internal/services"
	"github.com/desertthunder/mlsync/internal/shared"
	tu "github.com/desertthunder/mlsync/internal/testing"
)

type recordedCampaign struct {
	runID  string
	dryRun bool
	result *CampaignResult
}

type fakeRecorder struct {
	records []recordedCampaign
	err     error
}

func (f *fakeRecorder) RecordCampaign(ctx context.Context, runID string, dryRun bool, result *CampaignResult) error {
	f.records = append(f.records, recordedCampaign{runID: runID, dryRun: dryRun, result: result})
	return f.err
}

func newTestEngine(roster services.RosterService, audience services.AudienceService, opts Options) *Engine {
	e := NewEngine(roster, audience, opts, shared.NewLogger(io.Discard))
	e.newID = func() string { return "run-1" }
	return e
}

func fullCampaign() models.Campaign {
	return models.Campaign{
		ID:                "AD1",
		ApprovedGroupIDs:  []string{"approved"},
		RegisteredGroupID: "registered",
		ApprovedListID:    "A",
		UnapprovedListID:  "U",
	}
}

func batchSizes(calls []tu.SubscribeCall) []int {
	out := make([]int, 0, len(calls))
	for _, c := range calls {
		out = append(out, len(c.Items))
	}
	return out
}

func TestEngine(t *testing.T) {
	t.Run("150 members are added in batches of 100 and 50", func(t *testing.T) {
		roster := tu.NewFakeRosterService()
		for i := range 150 {
			roster.AddMember("approved", ownerID(i), emailFor(i))
		}
		audience := tu.NewFakeAudienceService()
		campaign := models.Campaign{ID: "C", ApprovedGroupIDs: []string{"approved"}, ApprovedListID: "A"}

		run, err := newTestEngine(roster, audience, Options{AggregateListID: "AGG", UpdateExisting: true}).Run(context.Background(), []models.Campaign{campaign}, nil)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}

		if got := batchSizes(audience.SubscribesTo("A")); !slices.Equal(got, []int{100, 50}) {
			t.Errorf("expected batches [100 50], got %v", got)
		}
		if got := batchSizes(audience.SubscribesTo("AGG")); !slices.Equal(got, []int{100, 50}) {
			t.Errorf("expected aggregate batches [100 50], got %v", got)
		}

		result := run.Campaigns[0]
		if result.State != StateDone || result.ApprovedAdded != 150 {
			t.Errorf("unexpected result: state=%v added=%d", result.State, result.ApprovedAdded)
		}
		if len(audience.Unsubscribes) != 0 {
			t.Error("campaign without unapproved list must not prune")
		}
	})

	t.Run("aggregate receives every campaign batch", func(t *testing.T) {
		roster := tu.NewFakeRosterService()
		roster.AddMember("approved", "1", "alice@example.com")
		roster.AddMember("registered", "1", "alice@example.com")
		roster.AddMember("registered", "2", "bob@example.com")
		audience := tu.NewFakeAudienceService()

		if _, err := newTestEngine(roster, audience, Options{AggregateListID: "AGG"}).Run(context.Background(), []models.Campaign{fullCampaign()}, nil); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}

		var perCampaign, aggregate []string
		for _, c := range audience.Subscribes {
			if c.ListID == "AGG" {
				aggregate = append(aggregate, c.Emails()...)
			} else {
				perCampaign = append(perCampaign, c.Emails()...)
			}
		}
		slices.Sort(perCampaign)
		slices.Sort(aggregate)
		if !slices.Equal(perCampaign, aggregate) {
			t.Errorf("aggregate %v does not mirror campaign batches %v", aggregate, perCampaign)
		}
	})

	t.Run("second run adds nothing", func(t *testing.T) {
		roster := tu.NewFakeRosterService()
		roster.AddMember("approved", "1", "alice@example.com")
		roster.AddMember("registered", "1", "alice@example.com")
		roster.AddMember("registered", "2", "bob@example.com")
		roster.AddMember("registered", "3", "carol@example.com")
		audience := tu.NewFakeAudienceService()
		engine := newTestEngine(roster, audience, Options{AggregateListID: "AGG", UpdateExisting: true})

		if _, err := engine.Run(context.Background(), []models.Campaign{fullCampaign()}, nil); err != nil {
			t.Fatalf("first run: %v", err)
		}
		first := len(audience.Subscribes)
		if first == 0 {
			t.Fatal("expected first run to subscribe members")
		}

		run, err := engine.Run(context.Background(), []models.Campaign{fullCampaign()}, nil)
		if err != nil {
			t.Fatalf("second run: %v", err)
		}
		if len(audience.Subscribes) != first {
			t.Errorf("expected no new subscribe calls, got %d more", len(audience.Subscribes)-first)
		}
		result := run.Campaigns[0]
		if result.ApprovedAdded != 0 || result.RegisteredAdded != 0 {
			t.Errorf("expected zero adds on second run, got %d and %d", result.ApprovedAdded, result.RegisteredAdded)
		}
	})

	t.Run("approved members never reach the unapproved list", func(t *testing.T) {
		roster := tu.NewFakeRosterService()
		roster.AddMember("approved", "1", "alice@example.com")
		roster.AddMember("approved", "3", "carol@example.com")
		roster.AddMember("registered", "1", "alice@example.com")
		roster.AddMember("registered", "2", "bob@example.com")
		roster.AddMember("registered", "3", "carol@example.com")
		audience := tu.NewFakeAudienceService()
		audience.Seed("U", services.StatusSubscribed, "alice@example.com")

		run, err := newTestEngine(roster, audience, Options{}).Run(context.Background(), []models.Campaign{fullCampaign()}, nil)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}

		var unapproved []string
		for _, c := range audience.SubscribesTo("U") {
			unapproved = append(unapproved, c.Emails()...)
		}
		if !slices.Equal(unapproved, []string{"bob@example.com"}) {
			t.Errorf("expected only bob on the unapproved batch, got %v", unapproved)
		}

		if len(audience.Unsubscribes) != 1 {
			t.Fatalf("expected one prune call, got %d", len(audience.Unsubscribes))
		}
		prune := audience.Unsubscribes[0]
		if prune.ListID != "U" || !slices.Equal(prune.Emails, []string{"alice@example.com", "carol@example.com"}) {
			t.Errorf("unexpected prune call: %+v", prune)
		}
		if got := audience.Members("U"); !slices.Equal(got, []string{"bob@example.com"}) {
			t.Errorf("expected unapproved list to hold only bob, got %v", got)
		}
		if run.Campaigns[0].Pruned != 2 {
			t.Errorf("expected 2 pruned, got %d", run.Campaigns[0].Pruned)
		}
	})

	t.Run("non-individuals and missing emails are never synced", func(t *testing.T) {
		roster := tu.NewFakeRosterService()
		roster.AddTeam("approved", "9", "team@example.com")
		roster.AddMember("approved", "1", "")
		roster.AddTeam("registered", "9", "team@example.com")
		audience := tu.NewFakeAudienceService()

		run, err := newTestEngine(roster, audience, Options{AggregateListID: "AGG"}).Run(context.Background(), []models.Campaign{fullCampaign()}, nil)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if len(audience.Subscribes) != 0 {
			t.Errorf("expected no subscribe calls, got %d", len(audience.Subscribes))
		}
		if len(audience.Unsubscribes) != 0 {
			t.Errorf("expected empty prune to be skipped, got %d calls", len(audience.Unsubscribes))
		}
		if run.Campaigns[0].State != StateDone {
			t.Errorf("expected DONE, got %v", run.Campaigns[0].State)
		}
	})

	t.Run("unknown approved group does not stop the campaign", func(t *testing.T) {
		roster := tu.NewFakeRosterService()
		roster.AddMember("approved", "1", "alice@example.com")
		roster.AddMember("registered", "2", "bob@example.com")
		audience := tu.NewFakeAudienceService()
		campaign := fullCampaign()
		campaign.ApprovedGroupIDs = []string{"missing", "approved"}

		run, err := newTestEngine(roster, audience, Options{}).Run(context.Background(), []models.Campaign{campaign}, nil)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}

		result := run.Campaigns[0]
		if result.State != StateDone {
			t.Fatalf("expected DONE, got %v (%v)", result.State, result.Err)
		}
		failed := result.FailedPasses()
		if len(failed) != 1 || failed[0].GroupID != "missing" || !errors.Is(failed[0].Err, shared.ErrRosterUnavailable) {
			t.Errorf("unexpected failed passes: %+v", failed)
		}
		if result.ApprovedAdded != 1 || result.RegisteredAdded != 1 {
			t.Errorf("expected remaining phases to run, got %d and %d", result.ApprovedAdded, result.RegisteredAdded)
		}
	})

	t.Run("unknown registered group still prunes", func(t *testing.T) {
		roster := tu.NewFakeRosterService()
		roster.AddMember("approved", "1", "alice@example.com")
		audience := tu.NewFakeAudienceService()
		audience.Seed("U", services.StatusSubscribed, "alice@example.com")

		run, _ := newTestEngine(roster, audience, Options{}).Run(context.Background(), []models.Campaign{fullCampaign()}, nil)
		if run.Campaigns[0].State != StateDone || run.Campaigns[0].Pruned != 1 {
			t.Errorf("unexpected result: %+v", run.Campaigns[0])
		}
		if audience.Has("U", "alice@example.com") {
			t.Error("expected alice to be pruned")
		}
	})

	t.Run("approval is tracked when the approved list cannot be read", func(t *testing.T) {
		roster := tu.NewFakeRosterService()
		roster.AddMember("approved", "1", "alice@example.com")
		roster.AddMember("registered", "1", "alice@example.com")
		roster.AddMember("registered", "2", "bob@example.com")
		audience := tu.NewFakeAudienceService()
		audience.ListErrs["A"] = tu.ErrFake

		run, err := newTestEngine(roster, audience, Options{}).Run(context.Background(), []models.Campaign{fullCampaign()}, nil)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if len(audience.SubscribesTo("A")) != 0 {
			t.Error("expected nothing submitted to an unreadable list")
		}
		var unapproved []string
		for _, c := range audience.SubscribesTo("U") {
			unapproved = append(unapproved, c.Emails()...)
		}
		if !slices.Equal(unapproved, []string{"bob@example.com"}) {
			t.Errorf("expected only bob on the unapproved batch, got %v", unapproved)
		}
		if run.Campaigns[0].Pruned != 1 {
			t.Errorf("expected alice to be pruned, got %d", run.Campaigns[0].Pruned)
		}
	})

	t.Run("empty snapshot adds the whole roster", func(t *testing.T) {
		roster := tu.NewFakeRosterService()
		for i := range 230 {
			roster.AddMember("approved", ownerID(i), emailFor(i))
		}
		roster.AddMember("approved", "dup", emailFor(0))
		audience := tu.NewFakeAudienceService()
		campaign := models.Campaign{ID: "C", ApprovedGroupIDs: []string{"approved"}, ApprovedListID: "A"}

		run, _ := newTestEngine(roster, audience, Options{}).Run(context.Background(), []models.Campaign{campaign}, nil)
		if run.Campaigns[0].ApprovedAdded != 230 {
			t.Errorf("expected 230 added, got %d", run.Campaigns[0].ApprovedAdded)
		}
		if got := len(audience.Members("A")); got != 230 {
			t.Errorf("expected 230 members on list, got %d", got)
		}
	})

	t.Run("prune failure is logged and counted", func(t *testing.T) {
		roster := tu.NewFakeRosterService()
		roster.AddMember("approved", "1", "alice@example.com")
		roster.AddMember("registered", "1", "alice@example.com")
		audience := tu.NewFakeAudienceService()
		audience.UnsubscribeErrs["U"] = tu.ErrFake

		run, _ := newTestEngine(roster, audience, Options{}).Run(context.Background(), []models.Campaign{fullCampaign()}, nil)
		result := run.Campaigns[0]
		if result.State != StateDone || !result.PruneFailed || result.Pruned != 0 || result.FailedBatches() != 1 {
			t.Errorf("unexpected result: %+v", result)
		}
	})

	t.Run("invalid campaign fails alone", func(t *testing.T) {
		roster := tu.NewFakeRosterService()
		roster.AddMember("approved", "1", "alice@example.com")
		audience := tu.NewFakeAudienceService()
		bad := models.Campaign{ID: "BAD", ApprovedGroupIDs: []string{"approved"}}
		good := models.Campaign{ID: "GOOD", ApprovedGroupIDs: []string{"approved"}, ApprovedListID: "A"}

		run, err := newTestEngine(roster, audience, Options{}).Run(context.Background(), []models.Campaign{bad, good}, nil)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if len(run.Campaigns) != 2 || run.Failed() != 1 {
			t.Fatalf("expected 2 campaigns with 1 failure, got %d and %d", len(run.Campaigns), run.Failed())
		}
		if first := run.Campaigns[0]; first.State != StateFailed || first.FailedAt != StateStart || !errors.Is(first.Err, shared.ErrConfiguration) {
			t.Errorf("unexpected failed campaign: %+v", first)
		}
		if run.Campaigns[1].State != StateDone {
			t.Errorf("expected second campaign DONE, got %v", run.Campaigns[1].State)
		}
	})

	t.Run("abort policy stops the run", func(t *testing.T) {
		bad := models.Campaign{ID: "BAD"}
		good := models.Campaign{ID: "GOOD", ApprovedGroupIDs: []string{"approved"}, ApprovedListID: "A"}

		run, err := newTestEngine(tu.NewFakeRosterService(), tu.NewFakeAudienceService(), Options{AbortOnFailure: true}).
			Run(context.Background(), []models.Campaign{bad, good}, nil)
		if !errors.Is(err, shared.ErrConfiguration) {
			t.Fatalf("expected ErrConfiguration, got %v", err)
		}
		if len(run.Campaigns) != 1 {
			t.Errorf("expected run to stop after first campaign, got %d", len(run.Campaigns))
		}
	})

	t.Run("cancellation fails the campaign and stops the run", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		engine := newTestEngine(tu.NewFakeRosterService(), tu.NewFakeAudienceService(), Options{})
		result := engine.SyncCampaign(ctx, fullCampaign(), nil)
		if result.State != StateFailed || result.FailedAt != StateSyncApprovedGroups || !errors.Is(result.Err, context.Canceled) {
			t.Errorf("unexpected result: state=%v failedAt=%v err=%v", result.State, result.FailedAt, result.Err)
		}

		run, err := engine.Run(ctx, []models.Campaign{fullCampaign()}, nil)
		if !errors.Is(err, context.Canceled) || len(run.Campaigns) != 0 {
			t.Errorf("expected cancelled run with no campaigns, got %v and %d", err, len(run.Campaigns))
		}
	})

	t.Run("dry run counts without submitting", func(t *testing.T) {
		roster := tu.NewFakeRosterService()
		roster.AddMember("approved", "1", "alice@example.com")
		roster.AddMember("registered", "2", "bob@example.com")
		audience := tu.NewFakeAudienceService()

		run, err := newTestEngine(roster, audience, Options{DryRun: true, AggregateListID: "AGG"}).Run(context.Background(), []models.Campaign{fullCampaign()}, nil)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if len(audience.Subscribes) != 0 || len(audience.Unsubscribes) != 0 {
			t.Error("expected no mutations in dry run")
		}
		result := run.Campaigns[0]
		if !run.DryRun || result.ApprovedAdded != 1 || result.RegisteredAdded != 1 || result.Pruned != 1 {
			t.Errorf("unexpected dry run result: %+v", result)
		}
	})

	t.Run("records every campaign and ignores recorder errors", func(t *testing.T) {
		roster := tu.NewFakeRosterService()
		roster.AddMember("approved", "1", "alice@example.com")
		recorder := &fakeRecorder{err: tu.ErrFake}
		campaigns := []models.Campaign{
			{ID: "ONE", ApprovedGroupIDs: []string{"approved"}, ApprovedListID: "A"},
			{ID: "TWO", ApprovedGroupIDs: []string{"approved"}, ApprovedListID: "B"},
		}

		run, err := newTestEngine(roster, tu.NewFakeAudienceService(), Options{}).WithRecorder(recorder).Run(context.Background(), campaigns, nil)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if len(recorder.records) != 2 || recorder.records[0].runID != "run-1" || recorder.records[1].result.CampaignID != "TWO" {
			t.Errorf("unexpected records: %+v", recorder.records)
		}
		if run.Failed() != 0 {
			t.Errorf("recorder errors must not fail campaigns")
		}
	})

	t.Run("reports progress without blocking", func(t *testing.T) {
		roster := tu.NewFakeRosterService()
		roster.AddMember("approved", "1", "alice@example.com")
		roster.AddMember("registered", "2", "bob@example.com")
		progress := make(chan ProgressUpdate, 100)

		if _, err := newTestEngine(roster, tu.NewFakeAudienceService(), Options{}).Run(context.Background(), []models.Campaign{fullCampaign()}, progress); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		close(progress)

		var phases []Phase
		for u := range progress {
			phases = append(phases, u.Phase)
		}
		for _, want := range []Phase{StartCampaign, SyncApproved, SyncRegistered, PruneUnapproved, CampaignComplete} {
			if !slices.Contains(phases, want) {
				t.Errorf("expected phase %v in %v", want, phases)
			}
		}

		unbuffered := make(chan ProgressUpdate)
		if _, err := newTestEngine(roster, tu.NewFakeAudienceService(), Options{}).Run(context.Background(), []models.Campaign{fullCampaign()}, unbuffered); err != nil {
			t.Fatalf("expected no error with unread channel, got %v", err)
		}
	})
}

func TestCampaignState(t *testing.T) {
	tests := []struct {
		state CampaignState
		want  string
	}{
		{StateStart, "start"},
		{StateSyncApprovedGroups, "sync_approved_groups"},
		{StateSyncAllRegistered, "sync_all_registered"},
		{StatePruneUnapproved, "prune_unapproved"},
		{StateDone, "done"},
		{StateFailed, "failed"},
		{CampaignState(99), "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := tt.state.String(); got != tt.want {
				t.Errorf("String() = %q, want %q", got, tt.want)
			}
		})
	}
}
