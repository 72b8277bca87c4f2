// Package store declares the document store the planner core talks to.
//
// Every live query emits the full current snapshot of the matching document
// set, first once right after subscribing and then after every change. The
// caller owns the returned Subscription and must Unsubscribe it exactly once.
// After Unsubscribe returns, the callback is never invoked again, so
// Unsubscribe must not be called from inside that subscription's own
// callback. Callbacks of one subscription never run concurrently.
package store

import (
	"context"

	"shared-planner/internal/model"
)

// Collection names used for change notification and metrics.
const (
	CollectionTasks  = "tasks"
	CollectionGroups = "groups"
	CollectionUsers  = "users"
)

// Subscription is the handle of a live query.
type Subscription interface {
	Unsubscribe()
}

// TaskFilter selects tasks. Exactly one mode is used: Personal with OwnerID
// (ownerId = OwnerID and no group), or GroupIDs (groupId in the set). An
// empty GroupIDs with Personal unset matches nothing.
type TaskFilter struct {
	OwnerID  string
	Personal bool
	GroupIDs []string
}

// GroupFilter selects the groups that list MemberID as a member.
type GroupFilter struct {
	MemberID string
}

// TaskSnapshotFunc receives one snapshot or the error that prevented it.
type TaskSnapshotFunc func(tasks []model.Task, err error)

// GroupSnapshotFunc receives one snapshot or the error that prevented it.
type GroupSnapshotFunc func(groups []model.Group, err error)

// TaskStore is the tasks collection.
type TaskStore interface {
	SubscribeTasks(ctx context.Context, filter TaskFilter, fn TaskSnapshotFunc) (Subscription, error)
	ListTasks(ctx context.Context, filter TaskFilter) ([]model.Task, error)
	GetTask(ctx context.Context, id string) (*model.Task, error)
	CreateTask(ctx context.Context, task *model.Task) error
	UpdateTask(ctx context.Context, id string, patch model.TaskPatch) error
	DeleteTask(ctx context.Context, id string) error
}

// GroupStore is the groups collection.
type GroupStore interface {
	SubscribeGroups(ctx context.Context, filter GroupFilter, fn GroupSnapshotFunc) (Subscription, error)
	ListGroups(ctx context.Context, filter GroupFilter) ([]model.Group, error)
	GetGroup(ctx context.Context, id string) (*model.Group, error)
	FindGroupByName(ctx context.Context, name string) (*model.Group, error)
	CreateGroup(ctx context.Context, group *model.Group) error
	AddMember(ctx context.Context, groupID, userID string) error
	RemoveMember(ctx context.Context, groupID, userID string) error
}

// UserStore is the users collection.
type UserStore interface {
	GetUser(ctx context.Context, id string) (*model.User, error)
	FindUserByTelegramID(ctx context.Context, telegramID int64) (*model.User, error)
	CreateUser(ctx context.Context, user *model.User) error
	UpdateDisplayName(ctx context.Context, id, name string) error
	ListUsers(ctx context.Context) ([]model.User, error)
	AddFriend(ctx context.Context, userID, friendID string) error
}

// Store bundles the three collections.
type Store interface {
	TaskStore
	GroupStore
	UserStore
}
