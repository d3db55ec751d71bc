// package models defines the data model for the roster sync service
package models

import (
	"fmt"
	"slices"
	"time"

	"github.com/desertthunder/mlsync/internal/shared"
)

// Model defines the base interface for all persistent models.
type Model interface {
	ID() string           // ID returns the unique identifier for this model
	CreatedAt() time.Time // CreatedAt returns when this model was created
	UpdatedAt() time.Time // UpdatedAt returns when this model was last updated
	Validate() error      // Validate checks if the model's data is valid and returns an error if not
}

// EmailTypeHTML is the only email format preference submitted to the mailing list service.
const EmailTypeHTML = "html"

// Campaign is one configured challenge. Configuration is immutable for the duration of a run.
type Campaign struct {
	ID                string
	ApprovedGroupIDs  []string // roster groups whose members are approved participants
	RegisteredGroupID string   // roster group holding everyone registered
	ApprovedListID    string   // target list for approved members
	UnapprovedListID  string   // target list for registered but not yet approved members
}

// Validate reports [shared.ErrConfiguration] for mappings the orchestrator cannot run.
//
// A campaign with neither a registered group nor an unapproved list only syncs approved groups.
func (c Campaign) Validate() error {
	if c.ID == "" {
		return fmt.Errorf("%w: campaign id is empty", shared.ErrConfiguration)
	}
	if c.ApprovedListID == "" {
		return fmt.Errorf("%w: unknown mailing list for campaign %s", shared.ErrConfiguration, c.ID)
	}
	if len(c.ApprovedGroupIDs) == 0 {
		return fmt.Errorf("%w: no approved roster groups for campaign %s", shared.ErrConfiguration, c.ID)
	}
	if slices.Contains(c.ApprovedGroupIDs, "") {
		return fmt.Errorf("%w: empty approved roster group id for campaign %s", shared.ErrConfiguration, c.ID)
	}
	if (c.RegisteredGroupID == "") != (c.UnapprovedListID == "") {
		return fmt.Errorf("%w: campaign %s needs both registered_group_id and unapproved_list_id or neither", shared.ErrConfiguration, c.ID)
	}
	return nil
}

// TracksUnapproved reports whether the campaign has an all-registered phase.
func (c Campaign) TracksUnapproved() bool {
	return c.RegisteredGroupID != "" && c.UnapprovedListID != ""
}

// Identity is a roster member resolved to a profile.
type Identity struct {
	OwnerID      string
	Email        string // empty when the profile has no usable address
	FirstName    string
	LastName     string
	IsIndividual bool
}

// HasEmail reports whether the identity resolved to a usable address.
func (i Identity) HasEmail() bool {
	return shared.NormalizeEmail(i.Email) != ""
}

// SubscribeBatchItem is the payload unit sent to the mailing list service.
type SubscribeBatchItem struct {
	Email     string `json:"email"`
	EmailType string `json:"email_type"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

// NewSubscribeBatchItem builds the batch payload for an identity.
func NewSubscribeBatchItem(i Identity) SubscribeBatchItem {
	return SubscribeBatchItem{
		Email:     i.Email,
		EmailType: EmailTypeHTML,
		FirstName: i.FirstName,
		LastName:  i.LastName,
	}
}

// AudienceSnapshot is the set of emails on a target list captured at the start of a pass.
//
// It is read-only once built and is not refreshed by the pass's own batches.
type AudienceSnapshot struct {
	emails map[string]struct{}
}

// NewAudienceSnapshot builds a snapshot from raw addresses, dropping empty values.
func NewAudienceSnapshot(emails ...string) AudienceSnapshot {
	s := AudienceSnapshot{emails: make(map[string]struct{}, len(emails))}
	for _, e := range emails {
		if key := shared.NormalizeEmail(e); key != "" {
			s.emails[key] = struct{}{}
		}
	}
	return s
}

// Contains reports whether email is already present on the list.
func (s AudienceSnapshot) Contains(email string) bool {
	_, ok := s.emails[shared.NormalizeEmail(email)]
	return ok
}

// Len returns the number of distinct emails in the snapshot.
func (s AudienceSnapshot) Len() int {
	return len(s.emails)
}

// Emails returns the normalized addresses in sorted order.
func (s AudienceSnapshot) Emails() []string {
	out := make([]string, 0, len(s.emails))
	for e := range s.emails {
		out = append(out, e)
	}
	slices.Sort(out)
	return out
}

// ApprovedEmailSet accumulates approved emails for a single campaign within a single run.
type ApprovedEmailSet struct {
	emails map[string]string // normalized -> first address seen
}

// NewApprovedEmailSet returns an empty set.
func NewApprovedEmailSet() *ApprovedEmailSet {
	return &ApprovedEmailSet{emails: make(map[string]string)}
}

// Add records email as approved. Empty addresses are ignored.
func (s *ApprovedEmailSet) Add(email string) {
	key := shared.NormalizeEmail(email)
	if key == "" {
		return
	}
	if _, ok := s.emails[key]; !ok {
		s.emails[key] = email
	}
}

// Contains reports whether email has been recorded as approved.
func (s *ApprovedEmailSet) Contains(email string) bool {
	_, ok := s.emails[shared.NormalizeEmail(email)]
	return ok
}

// Len returns the number of approved emails.
func (s *ApprovedEmailSet) Len() int {
	return len(s.emails)
}

// Emails returns the recorded addresses sorted for stable batch submission.
func (s *ApprovedEmailSet) Emails() []string {
	out := make([]string, 0, len(s.emails))
	for _, e := range s.emails {
		out = append(out, e)
	}
	slices.Sort(out)
	return out
}

// Clear empties the set after the prune step has consumed it.
func (s *ApprovedEmailSet) Clear() {
	clear(s.emails)
}
