package repository

import (
	"context"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"shared-planner/internal/model"
	"shared-planner/internal/store"
)

// Store implements store.Store on top of the gorm repositories.
type Store struct {
	Tasks  *TaskRepository
	Groups *GroupRepository
	Users  *UserRepository
	hub    *Hub
}

var _ store.Store = (*Store)(nil)

func NewStore(db *gorm.DB, logger zerolog.Logger) *Store {
	hub := NewHub(logger)
	return &Store{
		Tasks:  NewTaskRepository(db, hub),
		Groups: NewGroupRepository(db, hub),
		Users:  NewUserRepository(db, hub),
		hub:    hub,
	}
}

// Hub exposes the notification hub, mainly for tests that count live queries.
func (s *Store) Hub() *Hub {
	return s.hub
}

func (s *Store) SubscribeTasks(ctx context.Context, filter store.TaskFilter, fn store.TaskSnapshotFunc) (store.Subscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.Tasks.Subscribe(ctx, filter, fn), nil
}

func (s *Store) ListTasks(ctx context.Context, filter store.TaskFilter) ([]model.Task, error) {
	return s.Tasks.List(ctx, filter)
}

func (s *Store) GetTask(ctx context.Context, id string) (*model.Task, error) {
	return s.Tasks.FindByID(ctx, id)
}

func (s *Store) CreateTask(ctx context.Context, task *model.Task) error {
	return s.Tasks.Create(ctx, task)
}

func (s *Store) UpdateTask(ctx context.Context, id string, patch model.TaskPatch) error {
	return s.Tasks.Update(ctx, id, patch)
}

func (s *Store) DeleteTask(ctx context.Context, id string) error {
	return s.Tasks.Delete(ctx, id)
}

func (s *Store) SubscribeGroups(ctx context.Context, filter store.GroupFilter, fn store.GroupSnapshotFunc) (store.Subscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.Groups.Subscribe(ctx, filter, fn), nil
}

func (s *Store) ListGroups(ctx context.Context, filter store.GroupFilter) ([]model.Group, error) {
	return s.Groups.ListByMember(ctx, filter.MemberID)
}

func (s *Store) GetGroup(ctx context.Context, id string) (*model.Group, error) {
	return s.Groups.GetByID(ctx, id)
}

func (s *Store) FindGroupByName(ctx context.Context, name string) (*model.Group, error) {
	return s.Groups.FindByName(ctx, name)
}

func (s *Store) CreateGroup(ctx context.Context, group *model.Group) error {
	return s.Groups.Create(ctx, group)
}

func (s *Store) AddMember(ctx context.Context, groupID, userID string) error {
	return s.Groups.AddMember(ctx, groupID, userID)
}

func (s *Store) RemoveMember(ctx context.Context, groupID, userID string) error {
	return s.Groups.RemoveMember(ctx, groupID, userID)
}

func (s *Store) GetUser(ctx context.Context, id string) (*model.User, error) {
	return s.Users.GetByID(ctx, id)
}

func (s *Store) FindUserByTelegramID(ctx context.Context, telegramID int64) (*model.User, error) {
	return s.Users.FindByTelegramID(ctx, telegramID)
}

func (s *Store) CreateUser(ctx context.Context, user *model.User) error {
	return s.Users.Create(ctx, user)
}

func (s *Store) UpdateDisplayName(ctx context.Context, id, name string) error {
	return s.Users.UpdateDisplayName(ctx, id, name)
}

func (s *Store) ListUsers(ctx context.Context) ([]model.User, error) {
	return s.Users.ListAll(ctx)
}

func (s *Store) AddFriend(ctx context.Context, userID, friendID string) error {
	return s.Users.AddFriend(ctx, userID, friendID)
}
