package tasks

import (
	"context"
	"errors"
	"fmt"
	"iter"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/mlsync/internal/models"
	"github.com/desertthunder/mlsync/internal/services"
	"github.com/desertthunder/mlsync/internal/shared"
)

// DefaultPageSize is the page size used for roster and list pagination.
const DefaultPageSize = 100

// RosterReader walks a roster group and resolves its individual members to identities.
type RosterReader struct {
	roster   services.RosterService
	pageSize int
	logger   *log.Logger
}

func NewRosterReader(roster services.RosterService, pageSize int, logger *log.Logger) *RosterReader {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	return &RosterReader{roster: roster, pageSize: pageSize, logger: logger}
}

// Identities returns the individual members of a group one page at a time.
//
// The sequence is lazy and restartable: each range starts again from offset zero. Pagination
// runs while offset < total, where total is taken from the most recent page. Non-individual
// members are dropped, and a member whose profile cannot be resolved is logged and skipped.
// A group that cannot be resolved yields a single [shared.ErrRosterUnavailable] error.
func (r *RosterReader) Identities(ctx context.Context, groupID string) iter.Seq2[[]models.Identity, error] {
	return func(yield func([]models.Identity, error) bool) {
		if _, err := r.roster.GetGroup(ctx, groupID); err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				yield(nil, ctxErr)
				return
			}
			yield(nil, fmt.Errorf("%w: group %s: %v", shared.ErrRosterUnavailable, groupID, err))
			return
		}

		for offset, total := 0, 1; offset < total; offset += r.pageSize {
			page, err := r.roster.GetGroupMembers(ctx, groupID, offset, r.pageSize)
			if err != nil {
				if ctxErr := ctx.Err(); ctxErr != nil {
					yield(nil, ctxErr)
					return
				}
				yield(nil, fmt.Errorf("%w: group %s at offset %d: %v", shared.ErrRosterUnavailable, groupID, offset, err))
				return
			}
			total = page.Total

			identities, err := r.resolve(ctx, groupID, page.Members)
			if err != nil {
				yield(nil, err)
				return
			}
			if !yield(identities, nil) {
				return
			}
		}
	}
}

func (r *RosterReader) resolve(ctx context.Context, groupID string, members []services.MemberRef) ([]models.Identity, error) {
	identities := make([]models.Identity, 0, len(members))
	for _, m := range members {
		if !m.IsIndividual {
			continue
		}

		profile, err := r.roster.ResolveProfile(ctx, m.OwnerID)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			if !errors.Is(err, shared.ErrProfileResolution) {
				err = fmt.Errorf("%w: %v", shared.ErrProfileResolution, err)
			}
			r.logger.Warn("skipping member", "group", groupID, "owner", m.OwnerID, "error", err)
			continue
		}

		identities = append(identities, models.Identity{
			OwnerID:      m.OwnerID,
			Email:        profile.PrimaryEmail(),
			FirstName:    profile.FirstName,
			LastName:     profile.LastName,
			IsIndividual: true,
		})
	}
	return identities, nil
}
