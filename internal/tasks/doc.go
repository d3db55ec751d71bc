// Package tasks reconciles roster groups against mailing lists with real-time progress reporting.
//
// # Components
//
//   - [RosterReader] : pages through a roster group and resolves individual members to identities
//   - [SnapshotReader] : captures the emails already on a list (subscribed and unsubscribed)
//   - [Plan] : pure per-page diff of identities against a snapshot and the approved set
//   - [Reconciler] : one pass of a roster group against a target list
//   - [BatchMutator] : submits add batches (target and aggregate list) and the prune batch
//   - [Engine] : the per-campaign state machine over all configured campaigns
//
// # Campaign Lifecycle
//
//  1. START → SYNC_APPROVED_GROUPS
//     - Each approved group is reconciled against the approved list
//     - Every approved email is recorded, whether or not it is already on the list
//  2. SYNC_ALL_REGISTERED
//     - The registered group is reconciled against the unapproved list
//     - Approved emails are never queued for the unapproved list
//  3. PRUNE_UNAPPROVED
//     - The approved set is removed from the unapproved list, then cleared
//  4. DONE, or FAILED from any state
//
// Campaigns without a registered group stop after step 1.
//
// # Failure Isolation
//
// A profile that cannot be resolved skips that member. A group that cannot be resolved ends
// that pass only. Batch failures are logged and counted. A campaign whose configuration is
// invalid fails alone; sibling campaigns still run unless [Options.AbortOnFailure] is set.
//
// # Progress Reporting
//
// The [ProgressUpdate] struct contains phase, step counters, messages, and optional data.
// Updates use select with default to prevent blocking.
//
// # Run History
//
// The optional [RunRecorder] interface persists each finished campaign (repositories.SyncRunRepository).
// Recorder errors are logged and never affect the campaign.
package tasks
