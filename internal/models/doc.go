// Package models defines domain entities for roster → mailing list reconciliation.
//
// The package contains two categories of types:
//
// 1. Reconciliation values: built fresh on every run and never persisted
//   - [Campaign] : one challenge's roster groups and target lists
//   - [Identity] : a roster member resolved to a profile
//   - [AudienceSnapshot] : emails present on a target list before a pass
//   - [ApprovedEmailSet] : approved emails accumulated during a campaign
//   - [SubscribeBatchItem] : payload unit sent to the mailing list service
//
// 2. Persistent entities: database-backed run history
//   - [SyncRun] : outcome of one campaign within one invocation
//   - [PassRecord] : outcome of one roster group → list pass within a campaign
//
// Persistent entities implement the [Model] interface providing ID, timestamps and validation.
package models
