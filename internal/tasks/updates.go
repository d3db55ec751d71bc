package tasks

import "fmt"

// ProgressUpdate represents a progress event during a sync run.
//
// Used to send real-time updates to the CLI layer for display.
type ProgressUpdate struct {
	Phase   Phase  // Operation phase
	Step    int    // Current step number within phase
	Total   int    // Total steps in this phase
	Message string // Human-readable message for display
	Data    any    // Optional phase-specific data
}

// Operation phase enumeration
type Phase int

const (
	StartCampaign Phase = iota
	FetchSnapshot
	SyncApproved
	SyncRegistered
	PruneUnapproved
	CampaignComplete
	CampaignFailed
)

func (p Phase) String() string {
	switch p {
	case StartCampaign:
		return "start_campaign"
	case FetchSnapshot:
		return "fetch_snapshot"
	case SyncApproved:
		return "sync_approved"
	case SyncRegistered:
		return "sync_registered"
	case PruneUnapproved:
		return "prune_unapproved"
	case CampaignComplete:
		return "campaign_complete"
	case CampaignFailed:
		return "campaign_failed"
	default:
		return ""
	}
}

// sendProgress sends a progress update through the channel without blocking.
func sendProgress(progress chan<- ProgressUpdate, update ProgressUpdate) {
	if progress == nil {
		return
	}
	select {
	case progress <- update:
	default:
		// Channel full, skip this update
	}
}

func startCampaignUpdate(step, total int, campaignID string) ProgressUpdate {
	return ProgressUpdate{
		Phase:   StartCampaign,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] Syncing campaign %s...", step, total, campaignID),
	}
}

func snapshotUpdate(listID string, size int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   FetchSnapshot,
		Step:    1,
		Total:   1,
		Message: fmt.Sprintf("List %s has %d active members", listID, size),
	}
}

func passUpdate(pass Pass, step, total int) ProgressUpdate {
	phase := SyncRegistered
	if pass.Approved {
		phase = SyncApproved
	}
	return ProgressUpdate{
		Phase:   phase,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] Reconciling group %s → list %s...", step, total, pass.GroupID, pass.ListID),
		Data:    pass,
	}
}

func passBatchUpdate(pass Pass, scanned, added int) ProgressUpdate {
	phase := SyncRegistered
	if pass.Approved {
		phase = SyncApproved
	}
	return ProgressUpdate{
		Phase:   phase,
		Step:    scanned,
		Total:   scanned,
		Message: fmt.Sprintf("Group %s: %d scanned, %d queued", pass.GroupID, scanned, added),
	}
}

func pruneUpdate(listID string, count int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   PruneUnapproved,
		Step:    1,
		Total:   1,
		Message: fmt.Sprintf("Removing %d approved members from list %s...", count, listID),
	}
}

func campaignCompleteUpdate(result *CampaignResult) ProgressUpdate {
	return ProgressUpdate{
		Phase:   CampaignComplete,
		Step:    1,
		Total:   1,
		Message: fmt.Sprintf("✓ %s: %d approved added, %d registered added, %d pruned", result.CampaignID, result.ApprovedAdded, result.RegisteredAdded, result.Pruned),
		Data:    result,
	}
}

func campaignFailedUpdate(result *CampaignResult) ProgressUpdate {
	return ProgressUpdate{
		Phase:   CampaignFailed,
		Step:    1,
		Total:   1,
		Message: fmt.Sprintf("✗ %s: %v", result.CampaignID, result.Err),
		Data:    result,
	}
}
