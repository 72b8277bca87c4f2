package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"shared-planner/internal/model"
	"shared-planner/internal/store"
)

// GroupRepository manages groups and their members.
type GroupRepository struct {
	db  *gorm.DB
	hub *Hub
}

func NewGroupRepository(db *gorm.DB, hub *Hub) *GroupRepository {
	return &GroupRepository{db: db, hub: hub}
}

// Create inserts the group with its members. A taken name yields
// store.ErrConflict.
func (r *GroupRepository) Create(ctx context.Context, group *model.Group) error {
	if err := r.db.WithContext(ctx).Create(group).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return fmt.Errorf("group %q: %w", group.Name, store.ErrConflict)
		}
		return fmt.Errorf("create group: %w", err)
	}
	r.hub.Notify(store.CollectionGroups)
	return nil
}

func (r *GroupRepository) GetByID(ctx context.Context, id string) (*model.Group, error) {
	var group model.Group
	err := r.db.WithContext(ctx).Preload("Members", orderMembers).Where("id = ?", id).First(&group).Error
	switch {
	case err == nil:
		return &group, nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return nil, fmt.Errorf("group %s: %w", id, store.ErrNotFound)
	default:
		return nil, fmt.Errorf("find group: %w", err)
	}
}

func (r *GroupRepository) FindByName(ctx context.Context, name string) (*model.Group, error) {
	var group model.Group
	err := r.db.WithContext(ctx).Preload("Members", orderMembers).Where("name = ?", name).First(&group).Error
	switch {
	case err == nil:
		return &group, nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return nil, fmt.Errorf("group %q: %w", name, store.ErrNotFound)
	default:
		return nil, fmt.Errorf("find group: %w", err)
	}
}

// ListByMember returns the groups userID belongs to, ordered by name.
func (r *GroupRepository) ListByMember(ctx context.Context, userID string) ([]model.Group, error) {
	var groups []model.Group
	err := r.db.WithContext(ctx).
		Preload("Members", orderMembers).
		Joins("JOIN group_members ON group_members.group_id = planner_groups.id AND group_members.user_id = ?", userID).
		Order("planner_groups.name ASC").
		Find(&groups).Error
	if err != nil {
		return nil, fmt.Errorf("list groups: %w", err)
	}
	return groups, nil
}

func (r *GroupRepository) AddMember(ctx context.Context, groupID, userID string) error {
	if _, err := r.GetByID(ctx, groupID); err != nil {
		return err
	}
	member := model.GroupMember{GroupID: groupID, UserID: userID}
	if err := r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&member).Error; err != nil {
		return fmt.Errorf("add member: %w", err)
	}
	r.hub.Notify(store.CollectionGroups)
	return nil
}

func (r *GroupRepository) RemoveMember(ctx context.Context, groupID, userID string) error {
	result := r.db.WithContext(ctx).
		Where("group_id = ? AND user_id = ?", groupID, userID).
		Delete(&model.GroupMember{})
	if result.Error != nil {
		return fmt.Errorf("remove member: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("member %s of group %s: %w", userID, groupID, store.ErrNotFound)
	}
	r.hub.Notify(store.CollectionGroups)
	return nil
}

// Subscribe opens a live query over the groups of filter.MemberID.
func (r *GroupRepository) Subscribe(ctx context.Context, filter store.GroupFilter, fn store.GroupSnapshotFunc) store.Subscription {
	return watch(ctx, r.hub, store.CollectionGroups, func(ctx context.Context) ([]model.Group, error) {
		return r.ListByMember(ctx, filter.MemberID)
	}, fn)
}

func orderMembers(db *gorm.DB) *gorm.DB {
	return db.Order("group_members.created_at ASC, group_members.user_id ASC")
}
