package service

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"shared-planner/internal/clock"
	"shared-planner/internal/model"
	"shared-planner/internal/store"
)

// SharedTitleSuffix marks copies created by ShareToGroup.
const SharedTitleSuffix = " (shared)"

// SharingCoordinator copies tasks into groups.
type SharingCoordinator struct {
	tasks  store.TaskStore
	groups store.GroupStore
	clock  clock.Clock
	logger zerolog.Logger
}

func NewSharingCoordinator(tasks store.TaskStore, groups store.GroupStore, clk clock.Clock, logger zerolog.Logger) *SharingCoordinator {
	return &SharingCoordinator{
		tasks:  tasks,
		groups: groups,
		clock:  clk,
		logger: logger.With().Str("service", "sharing").Logger(),
	}
}

// ShareToGroup creates a copy of a task inside groupID. The source task is
// left untouched. The caller must be able to see the source and must be a
// member of the target group.
func (c *SharingCoordinator) ShareToGroup(ctx context.Context, session *Session, taskID, groupID string) (*model.Task, error) {
	userID, err := session.UserID()
	if err != nil {
		return nil, err
	}
	source, err := c.tasks.GetTask(ctx, taskID)
	if err != nil {
		return nil, notFound(err, ErrTaskNotFound, taskID)
	}
	if err := c.checkVisible(ctx, userID, source); err != nil {
		return nil, err
	}
	group, err := c.groups.GetGroup(ctx, groupID)
	if err != nil {
		return nil, notFound(err, ErrGroupNotFound, groupID)
	}
	if !group.HasMember(userID) {
		return nil, fmt.Errorf("%w: not a member of group %s", ErrPermissionDenied, group.Name)
	}

	shared := SharedCopy(*source, userID, group.ID, c.clock.Now())
	if err := c.tasks.CreateTask(ctx, &shared); err != nil {
		c.logger.Error().
			Err(err).
			Str("task_id", taskID).
			Str("group_id", groupID).
			Msg("failed to share task")
		return nil, err
	}
	c.logger.Info().
		Str("task_id", taskID).
		Str("copy_id", shared.ID).
		Str("group_id", groupID).
		Str("user_id", userID).
		Msg("shared task")
	return &shared, nil
}

// SharedCopy returns the document ShareToGroup persists for source.
func SharedCopy(source model.Task, sharerID, groupID string, now time.Time) model.Task {
	shared := source
	originalID := source.ID
	shared.ID = ""
	shared.Title = source.Title + SharedTitleSuffix
	shared.GroupID = &groupID
	shared.SharedFromUserID = &sharerID
	shared.OriginalTaskID = &originalID
	shared.CreatedAt = now
	shared.UpdatedAt = now
	return shared
}

func (c *SharingCoordinator) checkVisible(ctx context.Context, userID string, task *model.Task) error {
	if task.IsPersonal() {
		if task.OwnerID != userID {
			return fmt.Errorf("%w: task %s belongs to another user", ErrPermissionDenied, task.ID)
		}
		return nil
	}
	group, err := c.groups.GetGroup(ctx, *task.GroupID)
	if err != nil {
		return notFound(err, ErrGroupNotFound, *task.GroupID)
	}
	if !group.HasMember(userID) && task.OwnerID != userID {
		return fmt.Errorf("%w: not a member of group %s", ErrPermissionDenied, group.Name)
	}
	return nil
}
