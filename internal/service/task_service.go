package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"shared-planner/internal/datemath"
	"shared-planner/internal/metrics"
	"shared-planner/internal/model"
	"shared-planner/internal/store"
)

// TaskInput represents data required to create a task. Dates use
// YYYY-MM-DD and the time of day HH:MM. An empty GroupID creates a personal
// task.
type TaskInput struct {
	Title             string
	Description       string
	Status            model.Status
	Priority          model.Priority
	DueDate           string
	DueTime           string
	GroupID           string
	RecurrenceKind    model.RecurrenceKind
	RecurrenceEndDate string
}

// IsRecurring reports whether the input asks for a series.
func (in TaskInput) IsRecurring() bool {
	return in.RecurrenceKind != "" || in.RecurrenceEndDate != ""
}

func (in TaskInput) validate() error {
	if strings.TrimSpace(in.Title) == "" {
		return invalid("title", "must not be empty")
	}
	if in.Status != "" && !in.Status.Valid() {
		return invalid("status", fmt.Sprintf("unknown value %q", in.Status))
	}
	if in.Priority != "" && !in.Priority.Valid() {
		return invalid("priority", fmt.Sprintf("unknown value %q", in.Priority))
	}
	if in.DueDate != "" {
		if _, err := datemath.ParseISODate(in.DueDate, nil); err != nil {
			return invalid("due date", err.Error())
		}
	}
	if in.DueTime != "" {
		if _, err := datemath.ParseClock(in.DueTime); err != nil {
			return invalid("due time", err.Error())
		}
	}
	return nil
}

func (in TaskInput) toTask(ownerID string) model.Task {
	task := model.Task{
		Title:       strings.TrimSpace(in.Title),
		Description: strings.TrimSpace(in.Description),
		Status:      in.Status,
		Priority:    in.Priority,
		OwnerID:     ownerID,
	}
	if task.Status == "" {
		task.Status = model.StatusNotStarted
	}
	if task.Priority == "" {
		task.Priority = model.PriorityMedium
	}
	if in.DueDate != "" {
		due := in.DueDate
		task.DueDate = &due
	}
	if in.DueTime != "" {
		clock, _ := datemath.ParseClock(in.DueTime)
		task.DueTime = &clock
	}
	if in.GroupID != "" {
		groupID := in.GroupID
		task.GroupID = &groupID
	}
	return task
}

// TaskService wraps task-related business logic.
type TaskService struct {
	tasks    store.TaskStore
	groups   store.GroupStore
	expander *RecurrenceExpander
	logger   zerolog.Logger
}

func NewTaskService(tasks store.TaskStore, groups store.GroupStore, expander *RecurrenceExpander, logger zerolog.Logger) *TaskService {
	return &TaskService{
		tasks:    tasks,
		groups:   groups,
		expander: expander,
		logger:   logger.With().Str("service", "tasks").Logger(),
	}
}

// CreateTask persists a single, non-recurring task.
func (s *TaskService) CreateTask(ctx context.Context, session *Session, input TaskInput) (*model.Task, error) {
	userID, err := session.UserID()
	if err != nil {
		return nil, err
	}
	if err := input.validate(); err != nil {
		return nil, err
	}
	if input.IsRecurring() {
		return nil, invalid("recurrence", "use CreateRecurringTask for a series")
	}
	if err := s.checkGroupWrite(ctx, userID, input.GroupID); err != nil {
		return nil, err
	}

	task := input.toTask(userID)
	if err := s.tasks.CreateTask(ctx, &task); err != nil {
		s.logger.Error().
			Err(err).
			Str("user_id", userID).
			Msg("failed to create task")
		return nil, err
	}
	s.logger.Info().
		Str("task_id", task.ID).
		Str("user_id", userID).
		Msg("created task")
	return &task, nil
}

// CreateRecurringTask expands input and persists every instance in date
// order. The writes are not transactional: when instance k fails, instances
// before it stay persisted and a *PartialBatchError describes the rest.
func (s *TaskService) CreateRecurringTask(ctx context.Context, session *Session, input TaskInput) ([]model.Task, error) {
	userID, err := session.UserID()
	if err != nil {
		return nil, err
	}
	instances, err := s.expander.Expand(userID, input)
	if err != nil {
		return nil, err
	}
	if err := s.checkGroupWrite(ctx, userID, input.GroupID); err != nil {
		return nil, err
	}

	created := make([]model.Task, 0, len(instances))
	for i := range instances {
		if err := s.tasks.CreateTask(ctx, &instances[i]); err != nil {
			batchErr := &PartialBatchError{
				Op:        "create recurring task",
				Succeeded: taskIDs(created),
				Failed:    *instances[i].DueDate,
				Err:       err,
			}
			for _, rest := range instances[i+1:] {
				batchErr.NotAttempted = append(batchErr.NotAttempted, *rest.DueDate)
			}
			metrics.BatchFailures.WithLabelValues("create_recurring").Inc()
			s.logger.Error().
				Err(err).
				Int("created", len(created)).
				Int("total", len(instances)).
				Str("user_id", userID).
				Msg("recurring task expansion stopped partway")
			return created, batchErr
		}
		created = append(created, instances[i])
		metrics.RecurrenceInstances.Inc()
	}

	s.logger.Info().
		Int("count", len(created)).
		Str("series_id", *created[0].SeriesID).
		Str("user_id", userID).
		Msg("created recurring task")
	return created, nil
}

// GetTask returns a task the user is allowed to see.
func (s *TaskService) GetTask(ctx context.Context, session *Session, taskID string) (*model.Task, error) {
	userID, err := session.UserID()
	if err != nil {
		return nil, err
	}
	task, err := s.tasks.GetTask(ctx, taskID)
	if err != nil {
		return nil, notFound(err, ErrTaskNotFound, taskID)
	}
	if err := s.authorize(ctx, userID, task); err != nil {
		return nil, err
	}
	return task, nil
}

// UpdateTaskStatus changes the status. The owner can always do it; for group
// tasks any current member can.
func (s *TaskService) UpdateTaskStatus(ctx context.Context, session *Session, taskID string, status model.Status) error {
	if !status.Valid() {
		return invalid("status", fmt.Sprintf("unknown value %q", status))
	}
	return s.UpdateTask(ctx, session, taskID, model.TaskPatch{Status: &status})
}

// UpdateTask applies a partial update after the permission check.
func (s *TaskService) UpdateTask(ctx context.Context, session *Session, taskID string, patch model.TaskPatch) error {
	if patch.Empty() {
		return nil
	}
	if _, err := s.GetTask(ctx, session, taskID); err != nil {
		return err
	}
	if err := s.tasks.UpdateTask(ctx, taskID, patch); err != nil {
		s.logger.Error().
			Err(err).
			Str("task_id", taskID).
			Msg("failed to update task")
		return notFound(err, ErrTaskNotFound, taskID)
	}
	s.logger.Debug().
		Str("task_id", taskID).
		Msg("updated task")
	return nil
}

// DeleteTask removes a task completely (one-off tasks and recurring
// instances alike).
func (s *TaskService) DeleteTask(ctx context.Context, session *Session, taskID string) error {
	if _, err := s.GetTask(ctx, session, taskID); err != nil {
		return err
	}
	if err := s.tasks.DeleteTask(ctx, taskID); err != nil {
		s.logger.Error().
			Err(err).
			Str("task_id", taskID).
			Msg("failed to delete task")
		return notFound(err, ErrTaskNotFound, taskID)
	}
	s.logger.Info().
		Str("task_id", taskID).
		Msg("deleted task")
	return nil
}

// DeleteTasks deletes ids one by one and stops at the first failure.
func (s *TaskService) DeleteTasks(ctx context.Context, session *Session, ids []string) ([]string, error) {
	deleted := make([]string, 0, len(ids))
	for i, id := range ids {
		if err := s.DeleteTask(ctx, session, id); err != nil {
			metrics.BatchFailures.WithLabelValues("delete").Inc()
			return deleted, &PartialBatchError{
				Op:           "delete tasks",
				Succeeded:    deleted,
				Failed:       id,
				NotAttempted: append([]string(nil), ids[i+1:]...),
				Err:          err,
			}
		}
		deleted = append(deleted, id)
	}
	return deleted, nil
}

func (s *TaskService) authorize(ctx context.Context, userID string, task *model.Task) error {
	if task.OwnerID == userID {
		return nil
	}
	if task.IsPersonal() {
		return fmt.Errorf("%w: task %s belongs to another user", ErrPermissionDenied, task.ID)
	}
	group, err := s.groups.GetGroup(ctx, *task.GroupID)
	if err != nil {
		return notFound(err, ErrGroupNotFound, *task.GroupID)
	}
	if !group.HasMember(userID) {
		return fmt.Errorf("%w: not a member of group %s", ErrPermissionDenied, group.Name)
	}
	return nil
}

func (s *TaskService) checkGroupWrite(ctx context.Context, userID, groupID string) error {
	if groupID == "" {
		return nil
	}
	group, err := s.groups.GetGroup(ctx, groupID)
	if err != nil {
		return notFound(err, ErrGroupNotFound, groupID)
	}
	if !group.HasMember(userID) {
		return fmt.Errorf("%w: not a member of group %s", ErrPermissionDenied, group.Name)
	}
	return nil
}

func taskIDs(tasks []model.Task) []string {
	ids := make([]string, 0, len(tasks))
	for _, task := range tasks {
		ids = append(ids, task.ID)
	}
	return ids
}
