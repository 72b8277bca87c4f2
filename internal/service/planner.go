package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"shared-planner/internal/clock"
	"shared-planner/internal/model"
	"shared-planner/internal/store"
)

// MinTaskIDPrefix is the shortest accepted abbreviation of a task identifier.
const MinTaskIDPrefix = 4

// Services bundles the stateless services shared by every planner.
type Services struct {
	Tasks   *TaskService
	Sharing *SharingCoordinator
	Groups  *GroupService
	Users   *UserService
	Members *MembershipResolver
}

// NewServices wires the services over one store.
func NewServices(st store.Store, clk clock.Clock, loc *time.Location, maxInstances int, logger zerolog.Logger) *Services {
	return &Services{
		Tasks:   NewTaskService(st, st, NewRecurrenceExpander(maxInstances, loc), logger),
		Sharing: NewSharingCoordinator(st, st, clk, logger),
		Groups:  NewGroupService(st, st, logger),
		Users:   NewUserService(st, logger),
		Members: NewMembershipResolver(st, logger),
	}
}

// ListView is the list screen: the filtered tasks inside the display window.
type ListView struct {
	Tasks      []model.Task
	Hidden     int
	WindowDays int
	Expanded   bool
	Stale      bool
	Err        error
}

// Planner is the per-user entry point. It owns the session, the live
// aggregated view and the selection state.
type Planner struct {
	session   *Session
	services  *Services
	clock     clock.Clock
	agg       *Aggregator
	selection *Selection

	mu     sync.Mutex
	window DisplayWindow
}

func NewPlanner(session *Session, st store.TaskStore, services *Services, clk clock.Clock, windowDays int, logger zerolog.Logger) (*Planner, error) {
	userID, err := session.UserID()
	if err != nil {
		return nil, err
	}
	return &Planner{
		session:   session,
		services:  services,
		clock:     clk,
		agg:       NewAggregator(st, services.Members, userID, logger),
		selection: NewSelection(),
		window:    NewDisplayWindow(windowDays),
	}, nil
}

// Start opens the live queries of the aggregated view.
func (p *Planner) Start(ctx context.Context) error {
	return p.agg.Start(ctx)
}

// Close cancels the live queries and signs out.
func (p *Planner) Close() {
	p.agg.Close()
	p.session.SignOut()
}

func (p *Planner) Session() *Session { return p.session }

func (p *Planner) WaitReady(ctx context.Context) error { return p.agg.WaitReady(ctx) }

func (p *Planner) Refresh() error { return p.agg.Refresh() }

func (p *Planner) View() View { return p.agg.View() }

// Watch registers fn for every published view. See Aggregator.Watch.
func (p *Planner) Watch(fn func(View)) func() { return p.agg.Watch(fn) }

func (p *Planner) CreateTask(ctx context.Context, input TaskInput) (*model.Task, error) {
	return p.services.Tasks.CreateTask(ctx, p.session, input)
}

func (p *Planner) CreateRecurringTask(ctx context.Context, input TaskInput) ([]model.Task, error) {
	return p.services.Tasks.CreateRecurringTask(ctx, p.session, input)
}

func (p *Planner) UpdateTaskStatus(ctx context.Context, taskID string, status model.Status) error {
	return p.services.Tasks.UpdateTaskStatus(ctx, p.session, taskID, status)
}

func (p *Planner) DeleteTask(ctx context.Context, taskID string) error {
	return p.services.Tasks.DeleteTask(ctx, p.session, taskID)
}

func (p *Planner) DeleteTasks(ctx context.Context, ids []string) ([]string, error) {
	return p.services.Tasks.DeleteTasks(ctx, p.session, ids)
}

func (p *Planner) ShareTask(ctx context.Context, taskID, groupID string) (*model.Task, error) {
	return p.services.Sharing.ShareToGroup(ctx, p.session, taskID, groupID)
}

// ListView filters the current view by status and the display window. A
// windowDays of zero uses the planner's own window.
func (p *Planner) ListView(status model.Status, windowDays int) ListView {
	view := p.agg.View()
	p.mu.Lock()
	if windowDays <= 0 {
		windowDays = p.window.Days()
	}
	expanded := p.window.Expanded()
	p.mu.Unlock()

	filtered := FilterByStatus(view.Tasks, status)
	visible := WithinDisplayWindow(filtered, p.clock.Now(), windowDays)
	return ListView{
		Tasks:      visible,
		Hidden:     len(filtered) - len(visible),
		WindowDays: windowDays,
		Expanded:   expanded,
		Stale:      view.Stale,
		Err:        view.Err,
	}
}

// ShowMore widens the display window.
func (p *Planner) ShowMore() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.window.ShowMore()
	return p.window.Days()
}

// Collapse resets the display window.
func (p *Planner) Collapse() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.window.Collapse()
	return p.window.Days()
}

func (p *Planner) CalendarView(year int, month time.Month) Calendar {
	return BuildCalendar(p.agg.View().Tasks, year, month, p.clock.Now())
}

func (p *Planner) TasksForDate(date time.Time) []model.Task {
	return TasksOnDate(p.agg.View().Tasks, date)
}

// FindTask returns the task with the given identifier from the current view.
func (p *Planner) FindTask(taskID string) (model.Task, bool) {
	for _, task := range p.agg.View().Tasks {
		if task.ID == taskID {
			return task, true
		}
	}
	return model.Task{}, false
}

// ResolveTaskID accepts a full identifier or a unique prefix of at least
// MinTaskIDPrefix characters of a task in the current view.
func (p *Planner) ResolveTaskID(ref string) (string, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return "", invalid("task", "identifier is required")
	}
	var match string
	for _, task := range p.agg.View().Tasks {
		if task.ID == ref {
			return ref, nil
		}
		if len(ref) >= MinTaskIDPrefix && strings.HasPrefix(task.ID, ref) {
			if match != "" && match != task.ID {
				return "", invalid("task", fmt.Sprintf("prefix %q is ambiguous", ref))
			}
			match = task.ID
		}
	}
	if match == "" {
		return "", fmt.Errorf("%w: %s", ErrTaskNotFound, ref)
	}
	return match, nil
}

func (p *Planner) Selection() *Selection { return p.selection }

// SelectAllVisible selects every task of the current list view.
func (p *Planner) SelectAllVisible(status model.Status) error {
	list := p.ListView(status, 0)
	return p.selection.SelectAll(taskIDs(list.Tasks))
}

// DeleteSelected runs the batch delete of the selection.
func (p *Planner) DeleteSelected(ctx context.Context) ([]string, error) {
	return p.selection.DeleteSelected(ctx, p.DeleteTask)
}

// IsPartial reports whether err is a batch that stopped partway.
func IsPartial(err error) (*PartialBatchError, bool) {
	var batchErr *PartialBatchError
	if errors.As(err, &batchErr) {
		return batchErr, true
	}
	return nil, false
}
