package service

import (
	"context"
	"errors"
	"slices"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"shared-planner/internal/model"
	"shared-planner/internal/store"
)

type aggregatorHarness struct {
	agg   *Aggregator
	store *fakeStore
	views []View
}

func newAggregatorHarness(t *testing.T) *aggregatorHarness {
	t.Helper()
	fs := newFakeStore()
	h := &aggregatorHarness{
		agg:   NewAggregator(fs, NewMembershipResolver(fs, zerolog.Nop()), "u1", zerolog.Nop()),
		store: fs,
	}
	h.agg.Watch(func(v View) { h.views = append(h.views, v) })
	if err := h.agg.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(h.agg.Close)
	return h
}

func (h *aggregatorHarness) latest(t *testing.T) View {
	t.Helper()
	if len(h.views) == 0 {
		t.Fatalf("no view published")
	}
	return h.views[len(h.views)-1]
}

func task(id, title, owner string, groupID, due *string) model.Task {
	return model.Task{
		ID:        id,
		Title:     title,
		OwnerID:   owner,
		GroupID:   groupID,
		DueDate:   due,
		Status:    model.StatusNotStarted,
		Priority:  model.PriorityMedium,
		CreatedAt: fixtureNow,
	}
}

func memberGroup(id string, members ...string) model.Group {
	group := model.Group{ID: id, Name: id, OwnerID: members[0]}
	for _, m := range members {
		group.Members = append(group.Members, model.GroupMember{GroupID: id, UserID: m})
	}
	return group
}

func TestAggregatorMergesTiers(t *testing.T) {
	h := newAggregatorHarness(t)

	h.store.personalSub(t).emitTasks(
		task("p2", "undated", "u1", nil, nil),
		task("p1", "report", "u1", nil, strPtr("2024-02-01")),
		task("x", "not mine", "u2", nil, nil),
	)
	view := h.latest(t)
	if view.Ready {
		t.Fatalf("view ready before membership resolved")
	}
	if got := titles(view.Tasks); !slices.Equal(got, []string{"report", "undated"}) {
		t.Fatalf("personal view = %v", got)
	}

	h.store.membershipSub(t).emitGroups(memberGroup("g1", "u2", "u1"), memberGroup("g9", "u3"))
	groupSub := h.store.groupTaskSub(t)
	if !slices.Equal(groupSub.filter.GroupIDs, []string{"g1"}) {
		t.Fatalf("group query for %v, want [g1]", groupSub.filter.GroupIDs)
	}
	if h.latest(t).Ready {
		t.Fatalf("view ready before group tasks arrived")
	}

	groupSub.emitTasks(
		task("g", "exam", "u2", strPtr("g1"), strPtr("2024-01-31")),
		task("y", "foreign", "u3", strPtr("g9"), nil),
	)
	view = h.latest(t)
	if !view.Ready || view.Stale {
		t.Fatalf("view = %+v, want ready and fresh", view)
	}
	if got := titles(view.Tasks); !slices.Equal(got, []string{"exam", "report", "undated"}) {
		t.Fatalf("merged view = %v", got)
	}
	if err := h.agg.WaitReady(context.Background()); err != nil {
		t.Fatalf("WaitReady: %v", err)
	}
}

func TestAggregatorEmptyMembershipNeedsNoGroupQuery(t *testing.T) {
	h := newAggregatorHarness(t)

	h.store.personalSub(t).emitTasks(task("p1", "solo", "u1", nil, nil))
	h.store.membershipSub(t).emitGroups()

	view := h.latest(t)
	if !view.Ready {
		t.Fatalf("view not ready with an empty membership set")
	}
	if got := titles(view.Tasks); !slices.Equal(got, []string{"solo"}) {
		t.Fatalf("view = %v", got)
	}
	if n := h.store.count(func(s *fakeSub) bool { return len(s.filter.GroupIDs) > 0 }); n != 0 {
		t.Fatalf("opened %d group task queries, want 0", n)
	}
}

func TestAggregatorMembershipChangeReplacesGroupQuery(t *testing.T) {
	h := newAggregatorHarness(t)

	h.store.personalSub(t).emitTasks()
	h.store.membershipSub(t).emitGroups(memberGroup("g1", "u1"))
	first := h.store.groupTaskSub(t)
	first.emitTasks(task("a", "old group", "u1", strPtr("g1"), nil))
	if got := titles(h.latest(t).Tasks); !slices.Equal(got, []string{"old group"}) {
		t.Fatalf("view = %v", got)
	}

	h.store.membershipSub(t).emitGroups(memberGroup("g2", "u1"))
	second := h.store.groupTaskSub(t)
	if second == first {
		t.Fatalf("group query was not replaced")
	}
	if first.unsubscribes != 1 {
		t.Fatalf("old group query unsubscribed %d times", first.unsubscribes)
	}
	if got := h.store.overlaps[len(h.store.overlaps)-1]; got != 0 {
		t.Fatalf("%d group queries still open when the new one was opened", got)
	}
	if got := h.latest(t).Tasks; len(got) != 0 {
		t.Fatalf("tasks of a left group still visible: %v", titles(got))
	}

	// A late snapshot of the cancelled query must not leak into the view.
	published := len(h.views)
	first.emitTasks(task("a", "old group", "u1", strPtr("g1"), nil))
	if len(h.views) != published {
		t.Fatalf("stale snapshot produced a view")
	}

	second.emitTasks(task("b", "new group", "u2", strPtr("g2"), nil))
	if got := titles(h.latest(t).Tasks); !slices.Equal(got, []string{"new group"}) {
		t.Fatalf("view = %v", got)
	}
	if ids := h.latest(t).GroupIDs; !slices.Equal(ids, []string{"g2"}) {
		t.Fatalf("GroupIDs = %v", ids)
	}
}

func TestAggregatorUnchangedMembershipKeepsGroupQuery(t *testing.T) {
	h := newAggregatorHarness(t)

	h.store.personalSub(t).emitTasks()
	membership := h.store.membershipSub(t)
	membership.emitGroups(memberGroup("g1", "u1"), memberGroup("g2", "u1"))
	membership.emitGroups(memberGroup("g2", "u1"), memberGroup("g1", "u1"))

	if n := h.store.count(func(s *fakeSub) bool { return len(s.filter.GroupIDs) > 0 }); n != 1 {
		t.Fatalf("opened %d group task queries, want 1", n)
	}
}

func TestAggregatorKeepsLastGoodViewOnError(t *testing.T) {
	h := newAggregatorHarness(t)

	personal := h.store.personalSub(t)
	personal.emitTasks(task("p1", "kept", "u1", nil, nil))
	h.store.membershipSub(t).emitGroups()

	personal.fail(errors.New("connection lost"))
	view := h.latest(t)
	if !view.Stale || !errors.Is(view.Err, ErrStoreUnavailable) {
		t.Fatalf("view = %+v, want stale with ErrStoreUnavailable", view)
	}
	if got := titles(view.Tasks); !slices.Equal(got, []string{"kept"}) {
		t.Fatalf("stale view = %v, want last good data", got)
	}

	personal.emitTasks(task("p1", "kept", "u1", nil, nil), task("p2", "new", "u1", nil, nil))
	view = h.latest(t)
	if view.Stale || view.Err != nil {
		t.Fatalf("view still stale after recovery: %+v", view)
	}
	if len(view.Tasks) != 2 {
		t.Fatalf("view = %v", titles(view.Tasks))
	}
}

func TestAggregatorMembershipErrorKeepsGroupTasks(t *testing.T) {
	h := newAggregatorHarness(t)

	h.store.personalSub(t).emitTasks()
	membership := h.store.membershipSub(t)
	membership.emitGroups(memberGroup("g1", "u1"))
	h.store.groupTaskSub(t).emitTasks(task("g", "shared", "u2", strPtr("g1"), nil))

	membership.fail(errors.New("timeout"))
	view := h.latest(t)
	if !view.Stale {
		t.Fatalf("membership failure not reported")
	}
	if got := titles(view.Tasks); !slices.Equal(got, []string{"shared"}) {
		t.Fatalf("view = %v", got)
	}
	if h.store.open() != 3 {
		t.Fatalf("open queries = %d, want 3", h.store.open())
	}

	membership.emitGroups(memberGroup("g1", "u1"))
	view = h.latest(t)
	if view.Stale || view.Err != nil {
		t.Fatalf("view still stale after membership recovered: %+v", view)
	}
	if got := titles(view.Tasks); !slices.Equal(got, []string{"shared"}) {
		t.Fatalf("recovered view = %v", got)
	}
	if n := h.store.count(func(s *fakeSub) bool { return len(s.filter.GroupIDs) > 0 }); n != 1 {
		t.Fatalf("opened %d group task queries, want 1", n)
	}
}

func TestAggregatorCloseReleasesEveryQuery(t *testing.T) {
	h := newAggregatorHarness(t)

	personal := h.store.personalSub(t)
	personal.emitTasks()
	h.store.membershipSub(t).emitGroups(memberGroup("g1", "u1"))
	h.store.membershipSub(t).emitGroups(memberGroup("g2", "u1"))

	h.agg.Close()
	h.agg.Close()

	if n := h.store.open(); n != 0 {
		t.Fatalf("%d queries left open", n)
	}
	if n := h.store.count(func(s *fakeSub) bool { return s.unsubscribes > 1 }); n != 0 {
		t.Fatalf("%d queries unsubscribed more than once", n)
	}

	published := len(h.views)
	personal.emitTasks(task("p1", "late", "u1", nil, nil))
	if len(h.views) != published {
		t.Fatalf("view published after Close")
	}
}

func TestAggregatorWaitReadyAfterClose(t *testing.T) {
	h := newAggregatorHarness(t)
	h.agg.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := h.agg.WaitReady(ctx); !errors.Is(err, errAggregatorClosed) {
		t.Fatalf("WaitReady = %v, want errAggregatorClosed", err)
	}
}

func TestAggregatorRefreshReopensQueries(t *testing.T) {
	h := newAggregatorHarness(t)

	oldPersonal := h.store.personalSub(t)
	oldPersonal.emitTasks()
	h.store.membershipSub(t).emitGroups(memberGroup("g1", "u1"))
	oldGroup := h.store.groupTaskSub(t)

	if err := h.agg.Refresh(); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if oldPersonal.unsubscribes != 1 || oldGroup.unsubscribes != 1 {
		t.Fatalf("old queries not cancelled")
	}
	if n := h.store.open(); n != 3 {
		t.Fatalf("open queries = %d, want 3", n)
	}
}

func TestAggregatorStartFailureClosesEverything(t *testing.T) {
	fs := newFakeStore()
	fs.subscribeTasksErr = errors.New("offline")
	agg := NewAggregator(fs, NewMembershipResolver(fs, zerolog.Nop()), "u1", zerolog.Nop())

	err := agg.Start(context.Background())
	if !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("Start = %v, want ErrStoreUnavailable", err)
	}
	if n := fs.open(); n != 0 {
		t.Fatalf("%d queries left open", n)
	}
}

func TestWatchDeliversCurrentView(t *testing.T) {
	h := newAggregatorHarness(t)
	h.store.personalSub(t).emitTasks(task("p1", "first", "u1", nil, nil))

	var got []View
	stop := h.agg.Watch(func(v View) { got = append(got, v) })
	if len(got) != 1 || got[0].Version != h.latest(t).Version {
		t.Fatalf("Watch did not deliver the current view: %+v", got)
	}

	stop()
	h.store.personalSub(t).emitTasks()
	if len(got) != 1 {
		t.Fatalf("listener called after removal")
	}
}

func TestMergeTasksDeduplicatesAndOrders(t *testing.T) {
	early := fixtureNow.Add(-time.Hour)
	a := task("a", "a", "u1", nil, strPtr("2024-02-01"))
	a.DueTime = strPtr("18:00")
	b := task("b", "b", "u1", nil, strPtr("2024-02-01"))
	b.DueTime = strPtr("09:00")
	c := task("c", "c", "u1", nil, nil)
	d := task("d", "d", "u1", nil, nil)
	d.CreatedAt = early
	shared := task("s", "shared", "u2", strPtr("g1"), strPtr("2024-01-30"))
	dup := task("b", "b copy", "u2", strPtr("g1"), strPtr("2024-01-01"))
	withGroup := task("w", "personal stream but grouped", "u1", strPtr("g1"), nil)

	merged := MergeTasks("u1", []model.Task{c, a, d, b, withGroup}, []model.Task{shared, dup}, []string{"g1"})
	want := []string{"shared", "b", "a", "d", "c"}
	if got := titles(merged); !slices.Equal(got, want) {
		t.Fatalf("MergeTasks = %v, want %v", got, want)
	}
}

func TestMemberGroupIDs(t *testing.T) {
	groups := []model.Group{
		memberGroup("g2", "u1"),
		memberGroup("g1", "u2", "u1"),
		memberGroup("g2", "u1"),
		memberGroup("g3", "u2"),
	}
	if got := MemberGroupIDs("u1", groups); !slices.Equal(got, []string{"g1", "g2"}) {
		t.Fatalf("MemberGroupIDs = %v", got)
	}
}

var _ store.TaskStore = (*fakeStore)(nil)
var _ store.GroupStore = (*fakeStore)(nil)
