package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"shared-planner/internal/model"
	"shared-planner/internal/store"
)

// TaskRepository handles CRUD for tasks.
type TaskRepository struct {
	db  *gorm.DB
	hub *Hub
}

func NewTaskRepository(db *gorm.DB, hub *Hub) *TaskRepository {
	return &TaskRepository{db: db, hub: hub}
}

func (r *TaskRepository) Create(ctx context.Context, task *model.Task) error {
	if err := r.db.WithContext(ctx).Create(task).Error; err != nil {
		return fmt.Errorf("create task: %w", err)
	}
	r.hub.Notify(store.CollectionTasks)
	return nil
}

// List returns the tasks matching filter in creation order.
func (r *TaskRepository) List(ctx context.Context, filter store.TaskFilter) ([]model.Task, error) {
	var tasks []model.Task
	query := r.db.WithContext(ctx)
	switch {
	case filter.Personal:
		query = query.Where("owner_id = ? AND group_id IS NULL", filter.OwnerID)
	case len(filter.GroupIDs) > 0:
		query = query.Where("group_id IN ?", filter.GroupIDs)
	default:
		return []model.Task{}, nil
	}
	if err := query.Order("created_at ASC, id ASC").Find(&tasks).Error; err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	return tasks, nil
}

func (r *TaskRepository) FindByID(ctx context.Context, id string) (*model.Task, error) {
	var task model.Task
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&task).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("task %s: %w", id, store.ErrNotFound)
		}
		return nil, fmt.Errorf("find task: %w", err)
	}
	return &task, nil
}

// Update applies a partial update. Hooks are skipped because they would run
// against an empty model; the patch validates its own columns.
func (r *TaskRepository) Update(ctx context.Context, id string, patch model.TaskPatch) error {
	columns, err := patch.Columns()
	if err != nil {
		return err
	}
	columns["updated_at"] = time.Now()

	result := r.db.WithContext(ctx).
		Session(&gorm.Session{SkipHooks: true}).
		Model(&model.Task{}).
		Where("id = ?", id).
		Updates(columns)
	if result.Error != nil {
		return fmt.Errorf("update task: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("task %s: %w", id, store.ErrNotFound)
	}
	r.hub.Notify(store.CollectionTasks)
	return nil
}

// Delete removes a task regardless of it being a recurring instance or not.
func (r *TaskRepository) Delete(ctx context.Context, id string) error {
	result := r.db.WithContext(ctx).Where("id = ?", id).Delete(&model.Task{})
	if result.Error != nil {
		return fmt.Errorf("delete task: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("task %s: %w", id, store.ErrNotFound)
	}
	r.hub.Notify(store.CollectionTasks)
	return nil
}

// Subscribe opens a live query over the tasks matching filter.
func (r *TaskRepository) Subscribe(ctx context.Context, filter store.TaskFilter, fn store.TaskSnapshotFunc) store.Subscription {
	filter.GroupIDs = append([]string(nil), filter.GroupIDs...)
	return watch(ctx, r.hub, store.CollectionTasks, func(ctx context.Context) ([]model.Task, error) {
		return r.List(ctx, filter)
	}, fn)
}
