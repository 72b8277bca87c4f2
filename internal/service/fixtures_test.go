package service

import (
	"context"
	"errors"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"shared-planner/internal/clock"
	"shared-planner/internal/model"
	"shared-planner/internal/repository"
	"shared-planner/internal/store"
)

var errNotImplemented = errors.New("not implemented by fake")

// fakeStore hands out live queries that the test drives by hand. Callbacks
// run on the test goroutine.
type fakeStore struct {
	mu                sync.Mutex
	subs              []*fakeSub
	subscribeTasksErr error
	// overlaps records, for every group-task query, how many other group-task
	// queries were still open when it was opened.
	overlaps []int
}

type fakeSub struct {
	store        *fakeStore
	filter       store.TaskFilter
	memberID     string
	taskFn       store.TaskSnapshotFunc
	groupFn      store.GroupSnapshotFunc
	unsubscribes int
}

func newFakeStore() *fakeStore {
	return &fakeStore{}
}

func (f *fakeStore) SubscribeTasks(_ context.Context, filter store.TaskFilter, fn store.TaskSnapshotFunc) (store.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.subscribeTasksErr != nil {
		return nil, f.subscribeTasksErr
	}
	if len(filter.GroupIDs) > 0 {
		open := 0
		for _, sub := range f.subs {
			if sub.taskFn != nil && len(sub.filter.GroupIDs) > 0 && sub.unsubscribes == 0 {
				open++
			}
		}
		f.overlaps = append(f.overlaps, open)
	}
	filter.GroupIDs = slices.Clone(filter.GroupIDs)
	sub := &fakeSub{store: f, filter: filter, taskFn: fn}
	f.subs = append(f.subs, sub)
	return sub, nil
}

func (f *fakeStore) SubscribeGroups(_ context.Context, filter store.GroupFilter, fn store.GroupSnapshotFunc) (store.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	sub := &fakeSub{store: f, memberID: filter.MemberID, groupFn: fn}
	f.subs = append(f.subs, sub)
	return sub, nil
}

func (s *fakeSub) Unsubscribe() {
	s.store.mu.Lock()
	defer s.store.mu.Unlock()
	s.unsubscribes++
}

func (s *fakeSub) emitTasks(tasks ...model.Task) { s.taskFn(tasks, nil) }

func (s *fakeSub) emitGroups(groups ...model.Group) { s.groupFn(groups, nil) }

func (s *fakeSub) fail(err error) {
	if s.taskFn != nil {
		s.taskFn(nil, err)
		return
	}
	s.groupFn(nil, err)
}

// last returns the most recent subscription matching match.
func (f *fakeStore) last(t *testing.T, what string, match func(*fakeSub) bool) *fakeSub {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.subs) - 1; i >= 0; i-- {
		if match(f.subs[i]) {
			return f.subs[i]
		}
	}
	t.Fatalf("no %s subscription", what)
	return nil
}

func (f *fakeStore) personalSub(t *testing.T) *fakeSub {
	return f.last(t, "personal", func(s *fakeSub) bool { return s.taskFn != nil && s.filter.Personal })
}

func (f *fakeStore) groupTaskSub(t *testing.T) *fakeSub {
	return f.last(t, "group task", func(s *fakeSub) bool { return s.taskFn != nil && len(s.filter.GroupIDs) > 0 })
}

func (f *fakeStore) membershipSub(t *testing.T) *fakeSub {
	return f.last(t, "membership", func(s *fakeSub) bool { return s.groupFn != nil })
}

func (f *fakeStore) count(match func(*fakeSub) bool) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, sub := range f.subs {
		if match(sub) {
			n++
		}
	}
	return n
}

func (f *fakeStore) open() int {
	return f.count(func(s *fakeSub) bool { return s.unsubscribes == 0 })
}

func (f *fakeStore) ListTasks(context.Context, store.TaskFilter) ([]model.Task, error) {
	return nil, errNotImplemented
}

func (f *fakeStore) GetTask(context.Context, string) (*model.Task, error) {
	return nil, errNotImplemented
}

func (f *fakeStore) CreateTask(context.Context, *model.Task) error { return errNotImplemented }

func (f *fakeStore) UpdateTask(context.Context, string, model.TaskPatch) error {
	return errNotImplemented
}

func (f *fakeStore) DeleteTask(context.Context, string) error { return errNotImplemented }

func (f *fakeStore) ListGroups(context.Context, store.GroupFilter) ([]model.Group, error) {
	return nil, errNotImplemented
}

func (f *fakeStore) GetGroup(context.Context, string) (*model.Group, error) {
	return nil, errNotImplemented
}

func (f *fakeStore) FindGroupByName(context.Context, string) (*model.Group, error) {
	return nil, errNotImplemented
}

func (f *fakeStore) CreateGroup(context.Context, *model.Group) error { return errNotImplemented }

func (f *fakeStore) AddMember(context.Context, string, string) error { return errNotImplemented }

func (f *fakeStore) RemoveMember(context.Context, string, string) error { return errNotImplemented }

// failingTaskStore injects write failures into a real task store.
type failingTaskStore struct {
	store.TaskStore
	failCreateAt int
	creates      int
	failDelete   map[string]bool
}

func (f *failingTaskStore) CreateTask(ctx context.Context, task *model.Task) error {
	f.creates++
	if f.creates == f.failCreateAt {
		return errors.New("write rejected")
	}
	return f.TaskStore.CreateTask(ctx, task)
}

func (f *failingTaskStore) DeleteTask(ctx context.Context, id string) error {
	if f.failDelete[id] {
		return errors.New("delete rejected")
	}
	return f.TaskStore.DeleteTask(ctx, id)
}

// fixture is a sqlite-backed store with two signed-in users.
type fixture struct {
	store    *repository.Store
	clock    *clock.FakeClock
	services *Services
	alice    *Session
	bob      *Session
}

var fixtureNow = time.Date(2024, time.January, 29, 10, 0, 0, 0, time.UTC)

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, err := repository.NewDB(repository.DriverSQLite, ":memory:", zerolog.Nop())
	if err != nil {
		t.Fatalf("NewDB: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("db.DB: %v", err)
	}
	t.Cleanup(func() { sqlDB.Close() })

	st := repository.NewStore(db, zerolog.Nop())
	clk := clock.Fake(fixtureNow)
	f := &fixture{
		store:    st,
		clock:    clk,
		services: NewServices(st, clk, time.UTC, DefaultMaxRecurrenceInstances, zerolog.Nop()),
	}
	f.alice = f.newSession(t, "Alice")
	f.bob = f.newSession(t, "Bob")
	return f
}

func (f *fixture) newSession(t *testing.T, name string) *Session {
	t.Helper()
	user := &model.User{DisplayName: name}
	if err := f.store.CreateUser(context.Background(), user); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	return NewSession(*user)
}

func (f *fixture) group(t *testing.T, owner *Session, name string, members ...*Session) *model.Group {
	t.Helper()
	ids := make([]string, 0, len(members))
	for _, m := range members {
		ids = append(ids, mustUserID(t, m))
	}
	group, err := f.services.Groups.Create(context.Background(), owner, name, ids...)
	if err != nil {
		t.Fatalf("create group: %v", err)
	}
	return group
}

func mustUserID(t *testing.T, s *Session) string {
	t.Helper()
	id, err := s.UserID()
	if err != nil {
		t.Fatalf("UserID: %v", err)
	}
	return id
}

func strPtr(s string) *string { return &s }

func titles(tasks []model.Task) []string {
	out := make([]string, 0, len(tasks))
	for _, task := range tasks {
		out = append(out, task.Title)
	}
	return out
}
