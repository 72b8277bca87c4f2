package service

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"shared-planner/internal/metrics"
	"shared-planner/internal/model"
	"shared-planner/internal/store"
)

var errAggregatorClosed = errors.New("aggregator closed")

// View is one published state of the signed-in user's task set.
type View struct {
	// Tasks holds the merged personal and group tasks in display order.
	Tasks []model.Task
	// GroupIDs is the membership set the group tasks were resolved for.
	GroupIDs []string
	// Ready is set once every tier has delivered at least once.
	Ready bool
	// Err wraps ErrStoreUnavailable while a tier is failing. Tasks then hold
	// the last good data and Stale is set.
	Err     error
	Stale   bool
	Version uint64
}

// tier is one of the three live queries held by the aggregator.
type tier struct {
	name  string
	sub   store.Subscription
	gen   uint64
	ready bool
	err   error
}

// Aggregator maintains the merged task view of one user over three live
// queries: personal tasks, group memberships and tasks of those groups.
//
// The group-task query depends on the membership result. When the set of
// groups changes the previous group-task query is cancelled before the new
// one is opened, and every snapshot is checked against the generation of
// the query that produced it, so a late delivery from a cancelled query is
// dropped.
//
// Listeners run outside the aggregator lock, one publish at a time. A
// listener must not call Close or Refresh synchronously.
type Aggregator struct {
	tasks    store.TaskStore
	resolver *MembershipResolver
	userID   string
	logger   zerolog.Logger

	publishMu sync.Mutex

	mu            sync.Mutex
	ctx           context.Context
	cancel        context.CancelFunc
	started       bool
	closed        bool
	personal      tier
	membership    tier
	groupTasks    tier
	personalTasks []model.Task
	groupTaskList []model.Task
	groupIDs      []string
	view          View
	listeners     []listener
	nextListener  int

	readyOnce sync.Once
	readyCh   chan struct{}
	done      chan struct{}
}

type listener struct {
	id int
	fn func(View)
}

func NewAggregator(tasks store.TaskStore, resolver *MembershipResolver, userID string, logger zerolog.Logger) *Aggregator {
	return &Aggregator{
		tasks:      tasks,
		resolver:   resolver,
		userID:     userID,
		logger:     logger.With().Str("component", "aggregator").Str("user_id", userID).Logger(),
		personal:   tier{name: "personal"},
		membership: tier{name: "membership"},
		groupTasks: tier{name: "group-tasks"},
		readyCh:    make(chan struct{}),
		done:       make(chan struct{}),
	}
}

// Start opens the personal and membership queries. The group-task query is
// opened once the first membership set arrives. Cancelling ctx closes the
// aggregator.
func (a *Aggregator) Start(ctx context.Context) error {
	a.mu.Lock()
	if a.started {
		a.mu.Unlock()
		return errors.New("aggregator already started")
	}
	a.started = true
	a.ctx, a.cancel = context.WithCancel(ctx)
	a.mu.Unlock()

	if err := a.subscribePersonal(); err != nil {
		a.Close()
		return err
	}
	if err := a.subscribeMembership(); err != nil {
		a.Close()
		return err
	}

	go func() {
		select {
		case <-a.ctx.Done():
			a.Close()
		case <-a.done:
		}
	}()
	return nil
}

// View returns the last published view.
func (a *Aggregator) View() View {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.view
}

// Watch registers fn for every published view. If a view was already
// published fn receives it before Watch returns. The returned func removes
// the listener.
func (a *Aggregator) Watch(fn func(View)) func() {
	a.publishMu.Lock()
	defer a.publishMu.Unlock()

	a.mu.Lock()
	a.nextListener++
	id := a.nextListener
	a.listeners = append(a.listeners, listener{id: id, fn: fn})
	current := a.view
	a.mu.Unlock()

	if current.Version > 0 {
		fn(current)
	}
	return func() {
		a.mu.Lock()
		defer a.mu.Unlock()
		a.listeners = slices.DeleteFunc(a.listeners, func(l listener) bool { return l.id == id })
	}
}

// WaitReady blocks until every tier has delivered once.
func (a *Aggregator) WaitReady(ctx context.Context) error {
	select {
	case <-a.readyCh:
		return nil
	case <-a.done:
		return errAggregatorClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Refresh re-opens all three queries. Retained data stays visible until the
// new snapshots arrive.
func (a *Aggregator) Refresh() error {
	if err := a.subscribePersonal(); err != nil {
		return err
	}
	if err := a.subscribeMembership(); err != nil {
		return err
	}
	a.mu.Lock()
	ids, resolved := slices.Clone(a.groupIDs), a.membership.ready
	a.mu.Unlock()
	if resolved {
		a.subscribeGroupTasks(ids)
	}
	return nil
}

// Close cancels every open query. It is safe to call more than once.
func (a *Aggregator) Close() {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return
	}
	a.closed = true
	subs := make([]store.Subscription, 0, 3)
	for _, t := range []*tier{&a.personal, &a.membership, &a.groupTasks} {
		if t.sub != nil {
			subs = append(subs, t.sub)
			t.sub = nil
		}
	}
	cancel := a.cancel
	a.mu.Unlock()

	for _, sub := range subs {
		sub.Unsubscribe()
	}
	if cancel != nil {
		cancel()
	}
	close(a.done)
	a.logger.Debug().Msg("aggregator closed")
}

func (a *Aggregator) subscribePersonal() error {
	gen, ctx, ok := a.beginSubscribe(&a.personal)
	if !ok {
		return errAggregatorClosed
	}
	filter := store.TaskFilter{OwnerID: a.userID, Personal: true}
	sub, err := a.tasks.SubscribeTasks(ctx, filter, func(tasks []model.Task, err error) {
		a.onPersonal(gen, tasks, err)
	})
	if err != nil {
		a.onSubscribeError(&a.personal, gen, err)
		return fmt.Errorf("%w: personal tasks: %v", ErrStoreUnavailable, err)
	}
	a.install(&a.personal, gen, sub)
	return nil
}

func (a *Aggregator) subscribeMembership() error {
	gen, ctx, ok := a.beginSubscribe(&a.membership)
	if !ok {
		return errAggregatorClosed
	}
	sub, err := a.resolver.Resolve(ctx, a.userID, func(groupIDs []string, err error) {
		a.onMembership(gen, groupIDs, err)
	})
	if err != nil {
		a.onSubscribeError(&a.membership, gen, err)
		return fmt.Errorf("%w: memberships: %v", ErrStoreUnavailable, err)
	}
	a.install(&a.membership, gen, sub)
	return nil
}

// subscribeGroupTasks replaces the group-task query with one for groupIDs.
// An empty set needs no query and counts as an empty ready result.
func (a *Aggregator) subscribeGroupTasks(groupIDs []string) {
	gen, ctx, ok := a.beginSubscribe(&a.groupTasks)
	if !ok {
		return
	}
	metrics.Resubscriptions.Inc()

	if len(groupIDs) == 0 {
		a.mu.Lock()
		if gen == a.groupTasks.gen {
			a.groupTaskList = nil
			a.groupTasks.ready = true
			a.groupTasks.err = nil
		}
		a.mu.Unlock()
		return
	}

	filter := store.TaskFilter{GroupIDs: groupIDs}
	sub, err := a.tasks.SubscribeTasks(ctx, filter, func(tasks []model.Task, err error) {
		a.onGroupTasks(gen, tasks, err)
	})
	if err != nil {
		a.onSubscribeError(&a.groupTasks, gen, err)
		a.publish()
		return
	}
	a.install(&a.groupTasks, gen, sub)
}

// beginSubscribe bumps the tier generation and cancels its current query.
// The old query is unsubscribed outside the lock and before the caller
// opens the replacement.
func (a *Aggregator) beginSubscribe(t *tier) (uint64, context.Context, bool) {
	a.mu.Lock()
	if a.closed || !a.started {
		a.mu.Unlock()
		return 0, nil, false
	}
	t.gen++
	gen := t.gen
	old := t.sub
	t.sub = nil
	ctx := a.ctx
	a.mu.Unlock()

	if old != nil {
		old.Unsubscribe()
	}
	return gen, ctx, true
}

// install stores sub as the tier query unless it was superseded or the
// aggregator closed while it was being opened.
func (a *Aggregator) install(t *tier, gen uint64, sub store.Subscription) {
	a.mu.Lock()
	if a.closed || t.gen != gen {
		a.mu.Unlock()
		sub.Unsubscribe()
		return
	}
	t.sub = sub
	a.mu.Unlock()
}

func (a *Aggregator) onSubscribeError(t *tier, gen uint64, err error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if gen == t.gen {
		t.err = err
	}
	a.logger.Error().
		Err(err).
		Str("tier", t.name).
		Msg("failed to open live query")
}

func (a *Aggregator) onPersonal(gen uint64, tasks []model.Task, err error) {
	a.mu.Lock()
	if a.closed || gen != a.personal.gen {
		a.mu.Unlock()
		return
	}
	if err != nil {
		a.personal.err = err
	} else {
		a.personal.err = nil
		a.personal.ready = true
		a.personalTasks = tasks
	}
	a.mu.Unlock()
	a.publish()
}

func (a *Aggregator) onMembership(gen uint64, groupIDs []string, err error) {
	a.mu.Lock()
	if a.closed || gen != a.membership.gen {
		a.mu.Unlock()
		return
	}
	if err != nil {
		a.membership.err = err
		a.mu.Unlock()
		a.publish()
		return
	}
	a.membership.err = nil
	unchanged := a.membership.ready && slices.Equal(groupIDs, a.groupIDs)
	a.membership.ready = true
	if unchanged {
		a.mu.Unlock()
		a.publish()
		return
	}
	a.groupIDs = groupIDs
	a.groupTaskList = tasksInGroups(a.groupTaskList, groupIDs)
	a.mu.Unlock()

	a.logger.Debug().
		Strs("group_ids", groupIDs).
		Msg("resubscribing group tasks")
	a.subscribeGroupTasks(groupIDs)
	a.publish()
}

func (a *Aggregator) onGroupTasks(gen uint64, tasks []model.Task, err error) {
	a.mu.Lock()
	if a.closed || gen != a.groupTasks.gen {
		a.mu.Unlock()
		return
	}
	if err != nil {
		a.groupTasks.err = err
	} else {
		a.groupTasks.err = nil
		a.groupTasks.ready = true
		a.groupTaskList = tasks
	}
	a.mu.Unlock()
	a.publish()
}

// publish recomputes the view from the latest tier data and hands it to the
// listeners. Nothing is published before the personal tier has spoken.
func (a *Aggregator) publish() {
	a.publishMu.Lock()
	defer a.publishMu.Unlock()
	start := time.Now()

	a.mu.Lock()
	if a.closed || (!a.personal.ready && a.personal.err == nil) {
		a.mu.Unlock()
		return
	}
	view := View{
		Tasks:    MergeTasks(a.userID, a.personalTasks, a.groupTaskList, a.groupIDs),
		GroupIDs: slices.Clone(a.groupIDs),
		Ready:    a.personal.ready && a.membership.ready && a.groupTasks.ready,
		Version:  a.view.Version + 1,
	}
	for _, t := range []*tier{&a.personal, &a.membership, &a.groupTasks} {
		if t.err != nil {
			view.Err = fmt.Errorf("%w: %s: %v", ErrStoreUnavailable, t.name, t.err)
			view.Stale = true
			break
		}
	}
	wasStale := a.view.Stale
	a.view = view
	listeners := slices.Clone(a.listeners)
	a.mu.Unlock()

	if view.Stale && !wasStale {
		a.logger.Warn().Err(view.Err).Msg("view is stale")
	}
	if view.Ready {
		a.readyOnce.Do(func() { close(a.readyCh) })
	}
	for _, l := range listeners {
		l.fn(view)
	}
	metrics.ViewPublishDuration.Observe(time.Since(start).Seconds())
}

// MergeTasks builds the visible task set: personal tasks owned by userID
// with no group, then tasks of the given groups. A task identifier appears
// at most once; the first occurrence wins. The result is sorted with
// SortTasks.
func MergeTasks(userID string, personal, group []model.Task, groupIDs []string) []model.Task {
	seen := make(map[string]struct{}, len(personal)+len(group))
	merged := make([]model.Task, 0, len(personal)+len(group))
	add := func(task model.Task) {
		if _, dup := seen[task.ID]; dup {
			return
		}
		seen[task.ID] = struct{}{}
		merged = append(merged, task)
	}

	for _, task := range personal {
		if task.OwnerID == userID && task.IsPersonal() {
			add(task)
		}
	}
	for _, task := range tasksInGroups(group, groupIDs) {
		add(task)
	}
	SortTasks(merged)
	return merged
}

// SortTasks orders by due date, then due time, then creation time, then
// identifier. Tasks without a due date or time sort after those with one.
func SortTasks(tasks []model.Task) {
	slices.SortStableFunc(tasks, func(a, b model.Task) int {
		if c := compareOptional(a.DueDate, b.DueDate); c != 0 {
			return c
		}
		if c := compareOptional(a.DueTime, b.DueTime); c != 0 {
			return c
		}
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
}

func compareOptional(a, b *string) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return 1
	case b == nil:
		return -1
	default:
		return cmp.Compare(*a, *b)
	}
}

func tasksInGroups(tasks []model.Task, groupIDs []string) []model.Task {
	if len(groupIDs) == 0 {
		return nil
	}
	out := make([]model.Task, 0, len(tasks))
	for _, task := range tasks {
		if task.GroupID != nil && slices.Contains(groupIDs, *task.GroupID) {
			out = append(out, task)
		}
	}
	return out
}
