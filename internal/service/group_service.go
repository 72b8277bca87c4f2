package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"shared-planner/internal/model"
	"shared-planner/internal/store"
)

// UnknownUserName stands in for members whose user document is missing.
const UnknownUserName = "Unknown user"

// MemberInfo is a group member resolved to a display name.
type MemberInfo struct {
	UserID      string
	DisplayName string
	IsOwner     bool
}

// GroupDetail is a group with its members resolved.
type GroupDetail struct {
	Group   model.Group
	Members []MemberInfo
}

// GroupService provides helpers around groups.
type GroupService struct {
	groups store.GroupStore
	users  store.UserStore
	logger zerolog.Logger
}

func NewGroupService(groups store.GroupStore, users store.UserStore, logger zerolog.Logger) *GroupService {
	return &GroupService{
		groups: groups,
		users:  users,
		logger: logger.With().Str("service", "groups").Logger(),
	}
}

// Create makes a group owned by the signed-in user. The owner is always a
// member; memberIDs adds more.
func (s *GroupService) Create(ctx context.Context, session *Session, name string, memberIDs ...string) (*model.Group, error) {
	userID, err := session.UserID()
	if err != nil {
		return nil, err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, invalid("group name", "must not be empty")
	}

	group := &model.Group{Name: name, OwnerID: userID}
	seen := map[string]bool{}
	for _, id := range append([]string{userID}, memberIDs...) {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		group.Members = append(group.Members, model.GroupMember{UserID: id})
	}

	if err := s.groups.CreateGroup(ctx, group); err != nil {
		if errors.Is(err, store.ErrConflict) {
			return nil, fmt.Errorf("%w: %s", ErrGroupNameTaken, name)
		}
		s.logger.Error().
			Err(err).
			Str("name", name).
			Msg("failed to create group")
		return nil, err
	}
	s.logger.Info().
		Str("group_id", group.ID).
		Str("owner_id", userID).
		Int("members", len(group.Members)).
		Msg("created group")
	return group, nil
}

// Lookup finds a group by identifier or, failing that, by name.
func (s *GroupService) Lookup(ctx context.Context, ref string) (*model.Group, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil, invalid("group", "must not be empty")
	}
	group, err := s.groups.GetGroup(ctx, ref)
	if err == nil {
		return group, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}
	group, err = s.groups.FindGroupByName(ctx, ref)
	if err != nil {
		return nil, notFound(err, ErrGroupNotFound, ref)
	}
	return group, nil
}

// List returns the groups the signed-in user belongs to.
func (s *GroupService) List(ctx context.Context, session *Session) ([]model.Group, error) {
	userID, err := session.UserID()
	if err != nil {
		return nil, err
	}
	return s.groups.ListGroups(ctx, store.GroupFilter{MemberID: userID})
}

// Join adds the signed-in user to a group. Joining twice is a no-op.
func (s *GroupService) Join(ctx context.Context, session *Session, groupID string) error {
	userID, err := session.UserID()
	if err != nil {
		return err
	}
	if err := s.groups.AddMember(ctx, groupID, userID); err != nil {
		return notFound(err, ErrGroupNotFound, groupID)
	}
	s.logger.Info().
		Str("group_id", groupID).
		Str("user_id", userID).
		Msg("joined group")
	return nil
}

// Leave removes the signed-in user from a group. The owner cannot leave.
func (s *GroupService) Leave(ctx context.Context, session *Session, groupID string) error {
	userID, err := session.UserID()
	if err != nil {
		return err
	}
	group, err := s.groups.GetGroup(ctx, groupID)
	if err != nil {
		return notFound(err, ErrGroupNotFound, groupID)
	}
	if group.OwnerID == userID {
		return fmt.Errorf("%w: the owner cannot leave group %s", ErrPermissionDenied, group.Name)
	}
	if err := s.groups.RemoveMember(ctx, groupID, userID); err != nil {
		return notFound(err, ErrGroupNotFound, groupID)
	}
	s.logger.Info().
		Str("group_id", groupID).
		Str("user_id", userID).
		Msg("left group")
	return nil
}

// Detail resolves member names of a group the signed-in user belongs to.
func (s *GroupService) Detail(ctx context.Context, session *Session, groupID string) (*GroupDetail, error) {
	userID, err := session.UserID()
	if err != nil {
		return nil, err
	}
	group, err := s.groups.GetGroup(ctx, groupID)
	if err != nil {
		return nil, notFound(err, ErrGroupNotFound, groupID)
	}
	if !group.HasMember(userID) {
		return nil, fmt.Errorf("%w: not a member of group %s", ErrPermissionDenied, group.Name)
	}

	detail := &GroupDetail{Group: *group}
	for _, memberID := range group.MemberIDs() {
		info := MemberInfo{UserID: memberID, DisplayName: UnknownUserName, IsOwner: memberID == group.OwnerID}
		user, err := s.users.GetUser(ctx, memberID)
		switch {
		case err == nil:
			info.DisplayName = user.DisplayName
		case errors.Is(err, store.ErrNotFound):
			s.logger.Warn().
				Str("group_id", groupID).
				Str("user_id", memberID).
				Msg("group member has no user document")
		default:
			return nil, err
		}
		detail.Members = append(detail.Members, info)
	}
	return detail, nil
}
