// Package services defines the collaborator interfaces the reconciliation core consumes and implements them over HTTP.
//
// # Roster Service
//
// [RosterService] exposes roster groups (Synapse teams): group lookup, paginated membership and profile resolution.
//
// [SynapseService] talks to the Synapse repository REST API. A personal access token is carried as a bearer
// token through an [oauth2] static token source; requests are paced with a [rate.Limiter].
//
// # Audience Service
//
// [AudienceService] exposes mailing list membership by status plus batch subscribe and unsubscribe.
//
// [MailChimpService] implements it on the MailChimp Marketing API v3:
//   - ListMembers : GET /lists/{id}/members?status&count&offset
//   - BatchSubscribe : POST /lists/{id} (batch subscribe or update)
//   - BatchUnsubscribe : POST /batches of DELETE /lists/{id}/members/{hash} when DeleteMember is set,
//     otherwise POST /lists/{id} with status "unsubscribed"
//
// # Error Handling
//
// Services use sentinel errors from the shared package:
//   - [shared.ErrNotFound] : group, profile or list does not exist (HTTP 404)
//   - [shared.ErrAPIRequest] : any other non-2xx response or transport failure
//   - [shared.ErrMissingCredentials] : client constructed without credentials
//
// Nothing is retried here; recovery is the next scheduled invocation.
package services
