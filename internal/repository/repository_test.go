package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"shared-planner/internal/model"
	"shared-planner/internal/store"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := NewDB(DriverSQLite, ":memory:", zerolog.Nop())
	if err != nil {
		t.Fatalf("NewDB: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("db.DB: %v", err)
	}
	t.Cleanup(func() { sqlDB.Close() })
	return NewStore(db, zerolog.Nop())
}

func strPtr(s string) *string { return &s }

func receiveTasks(t *testing.T, ch <-chan []model.Task) []model.Task {
	t.Helper()
	select {
	case tasks := <-ch:
		return tasks
	case <-time.After(5 * time.Second):
		t.Fatalf("timed out waiting for task snapshot")
	}
	return nil
}

func TestTaskCRUD(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	task := &model.Task{Title: "Homework", OwnerID: "u1", DueDate: strPtr("2024-01-30")}
	if err := s.CreateTask(ctx, task); err != nil {
		t.Fatalf("CreateTask: %v", err)
	}
	if task.ID == "" {
		t.Fatalf("store did not assign an id")
	}
	if task.Status != model.StatusNotStarted || task.Priority != model.PriorityMedium {
		t.Fatalf("defaults not applied: %+v", task)
	}

	done := model.StatusDone
	if err := s.UpdateTask(ctx, task.ID, model.TaskPatch{Status: &done}); err != nil {
		t.Fatalf("UpdateTask: %v", err)
	}
	got, err := s.GetTask(ctx, task.ID)
	if err != nil {
		t.Fatalf("GetTask: %v", err)
	}
	if got.Status != model.StatusDone || got.Title != "Homework" {
		t.Fatalf("GetTask = %+v", got)
	}

	if err := s.DeleteTask(ctx, task.ID); err != nil {
		t.Fatalf("DeleteTask: %v", err)
	}
	if _, err := s.GetTask(ctx, task.ID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("GetTask after delete: err = %v, want ErrNotFound", err)
	}
	if err := s.UpdateTask(ctx, task.ID, model.TaskPatch{Status: &done}); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("UpdateTask missing: err = %v, want ErrNotFound", err)
	}
	if err := s.DeleteTask(ctx, task.ID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("DeleteTask missing: err = %v, want ErrNotFound", err)
	}
}

func TestCreateTaskFillsDefaultsBeforeValidation(t *testing.T) {
	s := newTestStore(t)
	task := &model.Task{Title: "x", OwnerID: "u1"}
	if err := s.CreateTask(context.Background(), task); err != nil {
		t.Fatalf("CreateTask: %v", err)
	}
	got, err := s.GetTask(context.Background(), task.ID)
	if err != nil {
		t.Fatalf("GetTask: %v", err)
	}
	if got.Status != model.StatusNotStarted || got.Priority != model.PriorityMedium {
		t.Fatalf("stored task = %+v, want not_started/medium", got)
	}
}

func TestCreateTaskRejectsInvalidDocument(t *testing.T) {
	s := newTestStore(t)
	err := s.CreateTask(context.Background(), &model.Task{Title: "  ", OwnerID: "u1"})
	if !errors.Is(err, model.ErrInvalidTask) {
		t.Fatalf("err = %v, want ErrInvalidTask", err)
	}
	err = s.CreateTask(context.Background(), &model.Task{Title: "x", OwnerID: "u1", DueDate: strPtr("30/01/2024")})
	if !errors.Is(err, model.ErrInvalidTask) {
		t.Fatalf("err = %v, want ErrInvalidTask", err)
	}
}

func TestListTasksFilters(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	for _, task := range []*model.Task{
		{Title: "mine", OwnerID: "u1"},
		{Title: "other user", OwnerID: "u2"},
		{Title: "group a", OwnerID: "u2", GroupID: strPtr("a")},
		{Title: "group b", OwnerID: "u1", GroupID: strPtr("b")},
	} {
		if err := s.CreateTask(ctx, task); err != nil {
			t.Fatalf("CreateTask: %v", err)
		}
	}

	personal, err := s.ListTasks(ctx, store.TaskFilter{OwnerID: "u1", Personal: true})
	if err != nil {
		t.Fatalf("ListTasks: %v", err)
	}
	if len(personal) != 1 || personal[0].Title != "mine" {
		t.Fatalf("personal = %+v", personal)
	}

	grouped, err := s.ListTasks(ctx, store.TaskFilter{GroupIDs: []string{"a", "b"}})
	if err != nil {
		t.Fatalf("ListTasks: %v", err)
	}
	if len(grouped) != 2 {
		t.Fatalf("grouped = %+v", grouped)
	}

	none, err := s.ListTasks(ctx, store.TaskFilter{})
	if err != nil || len(none) != 0 {
		t.Fatalf("empty filter = %+v, %v", none, err)
	}
}

func TestGroupMembership(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	group := &model.Group{Name: "study", OwnerID: "u1", Members: []model.GroupMember{{UserID: "u1"}, {UserID: "u2"}}}
	if err := s.CreateGroup(ctx, group); err != nil {
		t.Fatalf("CreateGroup: %v", err)
	}
	dup := &model.Group{Name: "study", OwnerID: "u3", Members: []model.GroupMember{{UserID: "u3"}}}
	if err := s.CreateGroup(ctx, dup); !errors.Is(err, store.ErrConflict) {
		t.Fatalf("duplicate name: err = %v, want ErrConflict", err)
	}

	groups, err := s.ListGroups(ctx, store.GroupFilter{MemberID: "u2"})
	if err != nil {
		t.Fatalf("ListGroups: %v", err)
	}
	if len(groups) != 1 || !groups[0].HasMember("u1") || !groups[0].HasMember("u2") {
		t.Fatalf("groups = %+v", groups)
	}

	if err := s.RemoveMember(ctx, group.ID, "u2"); err != nil {
		t.Fatalf("RemoveMember: %v", err)
	}
	groups, err = s.ListGroups(ctx, store.GroupFilter{MemberID: "u2"})
	if err != nil || len(groups) != 0 {
		t.Fatalf("after leave: %+v, %v", groups, err)
	}

	if err := s.AddMember(ctx, group.ID, "u2"); err != nil {
		t.Fatalf("AddMember: %v", err)
	}
	if err := s.AddMember(ctx, group.ID, "u2"); err != nil {
		t.Fatalf("AddMember twice: %v", err)
	}
	if err := s.AddMember(ctx, "missing", "u2"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("AddMember to missing group: err = %v", err)
	}

	found, err := s.FindGroupByName(ctx, "study")
	if err != nil || found.ID != group.ID || len(found.Members) != 2 {
		t.Fatalf("FindGroupByName = %+v, %v", found, err)
	}
}

func TestSubscribeTasksDeliversSnapshots(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s := newTestStore(t)

	snapshots := make(chan []model.Task, 16)
	sub, err := s.SubscribeTasks(ctx, store.TaskFilter{OwnerID: "u1", Personal: true}, func(tasks []model.Task, err error) {
		if err != nil {
			t.Errorf("snapshot error: %v", err)
			return
		}
		snapshots <- tasks
	})
	if err != nil {
		t.Fatalf("SubscribeTasks: %v", err)
	}

	if initial := receiveTasks(t, snapshots); len(initial) != 0 {
		t.Fatalf("initial snapshot = %+v", initial)
	}
	if got := s.Hub().Count(store.CollectionTasks); got != 1 {
		t.Fatalf("hub count = %d, want 1", got)
	}

	if err := s.CreateTask(ctx, &model.Task{Title: "first", OwnerID: "u1"}); err != nil {
		t.Fatalf("CreateTask: %v", err)
	}
	var latest []model.Task
	for len(latest) != 1 {
		latest = receiveTasks(t, snapshots)
	}
	if latest[0].Title != "first" {
		t.Fatalf("snapshot = %+v", latest)
	}

	sub.Unsubscribe()
	sub.Unsubscribe()
	if got := s.Hub().Count(store.CollectionTasks); got != 0 {
		t.Fatalf("hub count after unsubscribe = %d", got)
	}
	// Drain anything delivered before Unsubscribe returned.
	for len(snapshots) > 0 {
		<-snapshots
	}

	if err := s.CreateTask(ctx, &model.Task{Title: "second", OwnerID: "u1"}); err != nil {
		t.Fatalf("CreateTask: %v", err)
	}
	select {
	case tasks := <-snapshots:
		t.Fatalf("delivery after unsubscribe: %+v", tasks)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestUsers(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	tg := int64(42)
	alice := &model.User{DisplayName: "Alice", TelegramID: &tg}
	bob := &model.User{DisplayName: "Bob"}
	for _, u := range []*model.User{alice, bob} {
		if err := s.CreateUser(ctx, u); err != nil {
			t.Fatalf("CreateUser: %v", err)
		}
	}

	found, err := s.FindUserByTelegramID(ctx, 42)
	if err != nil || found.ID != alice.ID {
		t.Fatalf("FindUserByTelegramID = %+v, %v", found, err)
	}
	if err := s.AddFriend(ctx, alice.ID, bob.ID); err != nil {
		t.Fatalf("AddFriend: %v", err)
	}
	if err := s.UpdateDisplayName(ctx, alice.ID, "Alicia"); err != nil {
		t.Fatalf("UpdateDisplayName: %v", err)
	}
	got, err := s.GetUser(ctx, alice.ID)
	if err != nil {
		t.Fatalf("GetUser: %v", err)
	}
	if got.DisplayName != "Alicia" || len(got.FriendIDs()) != 1 || got.FriendIDs()[0] != bob.ID {
		t.Fatalf("GetUser = %+v", got)
	}
	if _, err := s.GetUser(ctx, "nobody"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("GetUser missing: err = %v", err)
	}
}
