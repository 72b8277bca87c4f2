package service

import (
	"context"
	"slices"

	"github.com/rs/zerolog"

	"shared-planner/internal/model"
	"shared-planner/internal/store"
)

// GroupIDsFunc receives the current group identifier set (sorted, no
// duplicates) or the error of the underlying live query.
type GroupIDsFunc func(groupIDs []string, err error)

// MembershipResolver turns the live set of groups a user belongs to into
// group identifier sets.
type MembershipResolver struct {
	groups store.GroupStore
	logger zerolog.Logger
}

func NewMembershipResolver(groups store.GroupStore, logger zerolog.Logger) *MembershipResolver {
	return &MembershipResolver{
		groups: groups,
		logger: logger.With().Str("service", "membership").Logger(),
	}
}

// Resolve subscribes to the groups userID belongs to. fn is called with the
// first set and afterwards only when the set changes. Errors are passed
// through; the first good set after an error is always delivered so the
// caller can clear it.
func (r *MembershipResolver) Resolve(ctx context.Context, userID string, fn GroupIDsFunc) (store.Subscription, error) {
	var (
		last      []string
		delivered bool
	)
	return r.groups.SubscribeGroups(ctx, store.GroupFilter{MemberID: userID}, func(groups []model.Group, err error) {
		if err != nil {
			r.logger.Warn().
				Err(err).
				Str("user_id", userID).
				Msg("membership query failed")
			delivered = false
			fn(nil, err)
			return
		}
		ids := MemberGroupIDs(userID, groups)
		if delivered && slices.Equal(ids, last) {
			return
		}
		last, delivered = ids, true
		r.logger.Debug().
			Str("user_id", userID).
			Strs("group_ids", ids).
			Msg("membership changed")
		fn(slices.Clone(ids), nil)
	})
}

// MemberGroupIDs returns the sorted, deduplicated identifiers of the groups
// that list userID as a member.
func MemberGroupIDs(userID string, groups []model.Group) []string {
	ids := make([]string, 0, len(groups))
	for _, group := range groups {
		if group.HasMember(userID) {
			ids = append(ids, group.ID)
		}
	}
	slices.Sort(ids)
	return slices.Compact(ids)
}
