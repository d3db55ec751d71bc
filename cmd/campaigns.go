package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/desertthunder/mlsync/internal/services"
	"github.com/desertthunder/mlsync/internal/shared"
	"github.com/desertthunder/mlsync/internal/ui"
	"github.com/urfave/cli/v3"
)

type campaignEntry struct {
	ID                string   `json:"id"`
	ApprovedGroupIDs  []string `json:"approved_group_ids"`
	RegisteredGroupID string   `json:"registered_group_id,omitempty"`
	ApprovedListID    string   `json:"approved_list_id"`
	UnapprovedListID  string   `json:"unapproved_list_id,omitempty"`
	Valid             bool     `json:"valid"`
	Error             string   `json:"error,omitempty"`
}

// CampaignsList prints the configured campaign table.
func (r *Runner) CampaignsList(ctx context.Context, cmd *cli.Command) error {
	campaigns, err := r.campaigns(nil)
	if err != nil {
		return err
	}

	entries := make([]campaignEntry, 0, len(campaigns))
	for _, c := range campaigns {
		entry := campaignEntry{
			ID:                c.ID,
			ApprovedGroupIDs:  c.ApprovedGroupIDs,
			RegisteredGroupID: c.RegisteredGroupID,
			ApprovedListID:    c.ApprovedListID,
			UnapprovedListID:  c.UnapprovedListID,
			Valid:             true,
		}
		if entry.ApprovedGroupIDs == nil {
			entry.ApprovedGroupIDs = []string{}
		}
		if err := c.Validate(); err != nil {
			entry.Valid = false
			entry.Error = err.Error()
		}
		entries = append(entries, entry)
	}

	if cmd.Bool("json") {
		return r.writeJSON(entries, true)
	}

	r.writePlainHeader(fmt.Sprintf("Campaigns (%d)", len(entries)))
	if id := r.config.Sync.AggregateListID; id != "" {
		r.writePlain("Aggregate list: %s\n", id)
	}
	for i, e := range entries {
		r.writePlainln("%d. %s", i+1, e.ID)
		r.writePlain("   Approved groups: %s\n", orNone(strings.Join(e.ApprovedGroupIDs, ", ")))
		r.writePlain("   Approved list: %s\n", orNone(e.ApprovedListID))
		r.writePlain("   Registered group: %s\n", orNone(e.RegisteredGroupID))
		r.writePlain("   Unapproved list: %s\n", orNone(e.UnapprovedListID))
		if !e.Valid {
			r.writePlain("   %s\n", ui.Styles.Err(e.Error))
		}
	}
	return nil
}

// CampaignsCheck validates each campaign and confirms that its roster groups
// exist and its lists are reachable.
func (r *Runner) CampaignsCheck(ctx context.Context, cmd *cli.Command) error {
	campaigns, err := r.campaigns(cmd.StringSlice("campaign"))
	if err != nil {
		return err
	}
	if err := r.requireRoster(); err != nil {
		return err
	}

	failed := 0
	for _, c := range campaigns {
		r.writePlainln("%s", ui.Styles.Title(c.ID))

		problems := 0
		if err := c.Validate(); err != nil {
			r.writePlain("   %s %v\n", ui.Styles.Err("✗"), err)
			problems++
		}

		groups := append([]string{}, c.ApprovedGroupIDs...)
		if c.RegisteredGroupID != "" {
			groups = append(groups, c.RegisteredGroupID)
		}
		for _, id := range groups {
			if id == "" {
				continue
			}
			group, err := r.roster.GetGroup(ctx, id)
			if err != nil {
				r.writePlain("   %s group %s: %v\n", ui.Styles.Err("✗"), id, err)
				problems++
				continue
			}
			r.writePlain("   %s group %s (%s)\n", ui.Styles.OK("✓"), id, group.Name)
		}

		if r.audience != nil {
			for _, id := range []string{c.ApprovedListID, c.UnapprovedListID} {
				if id == "" {
					continue
				}
				page, err := r.audience.ListMembers(ctx, id, services.StatusSubscribed, 0, 1)
				if err != nil {
					r.writePlain("   %s list %s: %v\n", ui.Styles.Err("✗"), id, err)
					problems++
					continue
				}
				r.writePlain("   %s list %s (%d subscribed)\n", ui.Styles.OK("✓"), id, page.Total)
			}
		} else {
			r.writePlain("   %s\n", ui.Styles.Help("lists not checked: no audience credentials"))
		}

		if problems > 0 {
			failed++
		}
	}

	if failed > 0 {
		return fmt.Errorf("%w: %d of %d campaigns failed checks", shared.ErrConfiguration, failed, len(campaigns))
	}
	r.writePlainln("%s", ui.Styles.OK(fmt.Sprintf("All %d campaigns OK", len(campaigns))))
	return nil
}

func orNone(s string) string {
	if s == "" {
		return "(none)"
	}
	return s
}
