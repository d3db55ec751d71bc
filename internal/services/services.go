package services

import (
	"context"
	"strings"
)

// RosterService reads roster groups and member profiles from the collaboration platform.
type RosterService interface {
	// GetGroup resolves a roster group. Fails with [shared.ErrNotFound] for unknown ids.
	GetGroup(ctx context.Context, groupID string) (*GroupInfo, error)

	// GetGroupMembers returns one page of group membership starting at offset.
	GetGroupMembers(ctx context.Context, groupID string, offset, limit int) (*MemberPage, error)

	// ResolveProfile returns the profile of a member.
	ResolveProfile(ctx context.Context, memberID string) (*Profile, error)

	// Name returns the name of the service (e.g., "Synapse")
	Name() string
}

// AudienceService reads and mutates mailing list membership.
type AudienceService interface {
	// ListMembers returns one page of list members in the given status starting at offset.
	ListMembers(ctx context.Context, listID string, status MemberStatus, offset, limit int) (*AudiencePage, error)

	// BatchSubscribe adds or updates items on the list.
	BatchSubscribe(ctx context.Context, listID string, items []SubscribeItem, opts SubscribeOptions) (*BatchResult, error)

	// BatchUnsubscribe removes emails from the list.
	BatchUnsubscribe(ctx context.Context, listID string, emails []string, opts UnsubscribeOptions) (*BatchResult, error)

	// Name returns the name of the service (e.g., "MailChimp")
	Name() string
}

// GroupInfo describes a roster group.
type GroupInfo struct {
	ID   string
	Name string
}

// MemberRef is a roster membership entry before profile resolution.
type MemberRef struct {
	OwnerID      string
	UserName     string
	IsIndividual bool
}

// MemberPage is one page of roster membership. Total is the size of the group as reported with this page.
type MemberPage struct {
	Total   int
	Members []MemberRef
}

// Profile is a resolved member profile.
type Profile struct {
	OwnerID   string
	FirstName string
	LastName  string
	Email     string
	Emails    []string
}

// PrimaryEmail returns the address used for list membership.
//
// The scalar Email wins; otherwise the first non-blank entry of Emails. Returns ""
// when neither yields an address, which callers treat as "no email".
func (p Profile) PrimaryEmail() string {
	if e := strings.TrimSpace(p.Email); e != "" {
		return e
	}
	for _, e := range p.Emails {
		if e = strings.TrimSpace(e); e != "" {
			return e
		}
	}
	return ""
}

// MemberStatus is a mailing list subscription status.
type MemberStatus string

const (
	StatusSubscribed   MemberStatus = "subscribed"
	StatusUnsubscribed MemberStatus = "unsubscribed"
	StatusCleaned      MemberStatus = "cleaned"
	StatusPending      MemberStatus = "pending"
)

// ActiveStatuses are the statuses whose members count as already present on a list.
//
// Unsubscribed members are included so that explicit opt-outs are never re-subscribed.
var ActiveStatuses = []MemberStatus{StatusSubscribed, StatusUnsubscribed}

// AudienceMember is a mailing list member.
type AudienceMember struct {
	Email  string
	Status MemberStatus
}

// AudiencePage is one page of list members. Total is the count for the requested status.
type AudiencePage struct {
	Total   int
	Members []AudienceMember
}

// SubscribeItem is a member to add or update.
type SubscribeItem struct {
	Email     string
	EmailType string
	FirstName string
	LastName  string
}

// SubscribeOptions controls batch subscribe behavior.
type SubscribeOptions struct {
	DoubleOptIn    bool
	UpdateExisting bool
}

// UnsubscribeOptions controls batch unsubscribe behavior.
type UnsubscribeOptions struct {
	DeleteMember bool
	SendGoodbye  bool
	SendNotify   bool
}

// BatchError is a per-member failure reported inside an otherwise successful batch call.
type BatchError struct {
	Email   string
	Code    string
	Message string
}

// BatchResult summarizes a batch call.
type BatchResult struct {
	Added   int
	Updated int
	Removed int
	Errors  []BatchError
	BatchID string // set when the provider processes the batch asynchronously
}
