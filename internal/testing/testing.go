// package testing contains shared testing utilities
package testing

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"testing"

	"github.com/desertthunder/mlsync/internal/services"
	"github.com/desertthunder/mlsync/internal/shared"
)

// FakeRosterService is an in-memory [services.RosterService].
//
// Groups maps a group id to its members in roster order. A group missing from Groups is unknown.
type FakeRosterService struct {
	Groups      map[string][]services.MemberRef
	Profiles    map[string]services.Profile
	GroupErrs   map[string]error // returned by GetGroup
	PageErrs    map[string]error // returned by GetGroupMembers
	ProfileErrs map[string]error // returned by ResolveProfile
	TotalDelta  map[string]int   // added to the reported total after the first page

	MemberCalls  []MemberCall
	ProfileCalls []string
}

// MemberCall records a GetGroupMembers invocation.
type MemberCall struct {
	GroupID string
	Offset  int
	Limit   int
}

func NewFakeRosterService() *FakeRosterService {
	return &FakeRosterService{
		Groups:      map[string][]services.MemberRef{},
		Profiles:    map[string]services.Profile{},
		GroupErrs:   map[string]error{},
		PageErrs:    map[string]error{},
		ProfileErrs: map[string]error{},
		TotalDelta:  map[string]int{},
	}
}

// AddMember appends an individual member with the given email to a group.
func (f *FakeRosterService) AddMember(groupID, ownerID, email string) {
	f.Groups[groupID] = append(f.Groups[groupID], services.MemberRef{OwnerID: ownerID, UserName: ownerID, IsIndividual: true})
	f.Profiles[ownerID] = services.Profile{OwnerID: ownerID, FirstName: "First" + ownerID, LastName: "Last" + ownerID, Email: email}
}

// AddTeam appends a non-individual member to a group.
func (f *FakeRosterService) AddTeam(groupID, ownerID, email string) {
	f.Groups[groupID] = append(f.Groups[groupID], services.MemberRef{OwnerID: ownerID, UserName: ownerID, IsIndividual: false})
	f.Profiles[ownerID] = services.Profile{OwnerID: ownerID, Email: email}
}

func (f *FakeRosterService) Name() string { return "fake-roster" }

func (f *FakeRosterService) GetGroup(ctx context.Context, groupID string) (*services.GroupInfo, error) {
	if err := f.GroupErrs[groupID]; err != nil {
		return nil, err
	}
	if _, ok := f.Groups[groupID]; !ok {
		return nil, fmt.Errorf("%w: team %s", shared.ErrNotFound, groupID)
	}
	return &services.GroupInfo{ID: groupID, Name: "group " + groupID}, nil
}

func (f *FakeRosterService) GetGroupMembers(ctx context.Context, groupID string, offset, limit int) (*services.MemberPage, error) {
	f.MemberCalls = append(f.MemberCalls, MemberCall{GroupID: groupID, Offset: offset, Limit: limit})
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := f.PageErrs[groupID]; err != nil {
		return nil, err
	}

	members := f.Groups[groupID]
	total := len(members)
	if offset > 0 {
		total += f.TotalDelta[groupID]
	}

	start := min(offset, len(members))
	end := min(offset+limit, len(members))
	return &services.MemberPage{Total: total, Members: slices.Clone(members[start:end])}, nil
}

func (f *FakeRosterService) ResolveProfile(ctx context.Context, memberID string) (*services.Profile, error) {
	f.ProfileCalls = append(f.ProfileCalls, memberID)
	if err := f.ProfileErrs[memberID]; err != nil {
		return nil, err
	}
	p, ok := f.Profiles[memberID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", shared.ErrProfileResolution, memberID)
	}
	return &p, nil
}

// SubscribeCall records a BatchSubscribe invocation.
type SubscribeCall struct {
	ListID string
	Items  []services.SubscribeItem
	Opts   services.SubscribeOptions
}

// Emails returns the addresses submitted in the call.
func (c SubscribeCall) Emails() []string {
	out := make([]string, 0, len(c.Items))
	for _, item := range c.Items {
		out = append(out, item.Email)
	}
	return out
}

// UnsubscribeCall records a BatchUnsubscribe invocation.
type UnsubscribeCall struct {
	ListID string
	Emails []string
	Opts   services.UnsubscribeOptions
}

// FakeAudienceService is an in-memory [services.AudienceService].
//
// Successful batch calls are applied to Lists so repeated runs observe their own writes.
type FakeAudienceService struct {
	Lists           map[string]map[services.MemberStatus][]string
	ListErrs        map[string]error  // returned by ListMembers
	SubscribeErrs   map[string]error  // returned by BatchSubscribe
	UnsubscribeErrs map[string]error  // returned by BatchUnsubscribe
	MemberErrors    map[string]string // per-member rejections keyed by email

	Subscribes   []SubscribeCall
	Unsubscribes []UnsubscribeCall
	ListCalls    int
}

func NewFakeAudienceService() *FakeAudienceService {
	return &FakeAudienceService{
		Lists:           map[string]map[services.MemberStatus][]string{},
		ListErrs:        map[string]error{},
		SubscribeErrs:   map[string]error{},
		UnsubscribeErrs: map[string]error{},
		MemberErrors:    map[string]string{},
	}
}

// Seed places emails on a list with the given status.
func (f *FakeAudienceService) Seed(listID string, status services.MemberStatus, emails ...string) {
	if f.Lists[listID] == nil {
		f.Lists[listID] = map[services.MemberStatus][]string{}
	}
	f.Lists[listID][status] = append(f.Lists[listID][status], emails...)
}

// Members returns every email on a list regardless of status.
func (f *FakeAudienceService) Members(listID string) []string {
	var out []string
	for _, emails := range f.Lists[listID] {
		out = append(out, emails...)
	}
	slices.Sort(out)
	return out
}

// Has reports whether email is on the list in any status.
func (f *FakeAudienceService) Has(listID, email string) bool {
	key := shared.NormalizeEmail(email)
	for _, emails := range f.Lists[listID] {
		for _, e := range emails {
			if shared.NormalizeEmail(e) == key {
				return true
			}
		}
	}
	return false
}

// SubscribesTo returns the recorded subscribe calls for a list.
func (f *FakeAudienceService) SubscribesTo(listID string) []SubscribeCall {
	var out []SubscribeCall
	for _, c := range f.Subscribes {
		if c.ListID == listID {
			out = append(out, c)
		}
	}
	return out
}

func (f *FakeAudienceService) Name() string { return "fake-audience" }

func (f *FakeAudienceService) ListMembers(ctx context.Context, listID string, status services.MemberStatus, offset, limit int) (*services.AudiencePage, error) {
	f.ListCalls++
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := f.ListErrs[listID]; err != nil {
		return nil, err
	}

	emails := f.Lists[listID][status]
	start := min(offset, len(emails))
	end := min(offset+limit, len(emails))

	page := &services.AudiencePage{Total: len(emails)}
	for _, e := range emails[start:end] {
		page.Members = append(page.Members, services.AudienceMember{Email: e, Status: status})
	}
	return page, nil
}

func (f *FakeAudienceService) BatchSubscribe(ctx context.Context, listID string, items []services.SubscribeItem, opts services.SubscribeOptions) (*services.BatchResult, error) {
	f.Subscribes = append(f.Subscribes, SubscribeCall{ListID: listID, Items: slices.Clone(items), Opts: opts})
	if err := f.SubscribeErrs[listID]; err != nil {
		return nil, err
	}

	result := &services.BatchResult{}
	for _, item := range items {
		if msg, ok := f.MemberErrors[item.Email]; ok {
			result.Errors = append(result.Errors, services.BatchError{Email: item.Email, Code: "ERROR_GENERIC", Message: msg})
			continue
		}
		if f.Has(listID, item.Email) {
			result.Updated++
			continue
		}
		f.Seed(listID, services.StatusSubscribed, item.Email)
		result.Added++
	}
	return result, nil
}

func (f *FakeAudienceService) BatchUnsubscribe(ctx context.Context, listID string, emails []string, opts services.UnsubscribeOptions) (*services.BatchResult, error) {
	f.Unsubscribes = append(f.Unsubscribes, UnsubscribeCall{ListID: listID, Emails: slices.Clone(emails), Opts: opts})
	if err := f.UnsubscribeErrs[listID]; err != nil {
		return nil, err
	}

	remove := make(map[string]struct{}, len(emails))
	for _, e := range emails {
		remove[shared.NormalizeEmail(e)] = struct{}{}
	}

	result := &services.BatchResult{}
	for status, members := range f.Lists[listID] {
		kept := members[:0]
		for _, e := range members {
			if _, ok := remove[shared.NormalizeEmail(e)]; ok {
				result.Removed++
				continue
			}
			kept = append(kept, e)
		}
		f.Lists[listID][status] = kept
	}
	return result, nil
}

// ErrFake is a generic failure for fakes.
var ErrFake = errors.New("fake failure")

// FWriter always returns an error on Write
type FWriter struct{}

func (f *FWriter) Write(p []byte) (n int, err error) {
	return 0, errors.New("write failed")
}

// LimitedWriter fails after a certain number of writes
type LimitedWriter struct {
	maxWrites int
	written   int
	target    io.Writer
}

func (l *LimitedWriter) Write(p []byte) (n int, err error) {
	if l.written >= l.maxWrites {
		return 0, errors.New("write limit exceeded")
	}
	l.written++
	return l.target.Write(p)
}

func NewLimitedWriter(maxWrites, written int, target io.Writer) LimitedWriter {
	return LimitedWriter{maxWrites: maxWrites, written: written, target: target}
}

func AssertFileExists(t *testing.T, path string) {
	t.Helper()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Errorf("File does not exist: %s", path)
	}
}

func MustReadFile(t *testing.T, path string) string {
	t.Helper()
	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read file %s: %v", path, err)
	}
	return string(content)
}
