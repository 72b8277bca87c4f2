package service

import (
	"context"
	"errors"
	"testing"

	"shared-planner/internal/model"
)

func TestCreateGroup(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	aliceID, bobID := mustUserID(t, f.alice), mustUserID(t, f.bob)

	group, err := f.services.Groups.Create(ctx, f.alice, " study ", bobID, aliceID, bobID)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if group.Name != "study" || group.OwnerID != aliceID || len(group.Members) != 2 {
		t.Fatalf("group = %+v", group)
	}
	if !group.HasMember(aliceID) || !group.HasMember(bobID) {
		t.Fatalf("members = %v", group.MemberIDs())
	}

	if _, err := f.services.Groups.Create(ctx, f.bob, "study"); !errors.Is(err, ErrGroupNameTaken) || !errors.Is(err, ErrValidation) {
		t.Fatalf("duplicate name: err = %v", err)
	}
	if _, err := f.services.Groups.Create(ctx, f.bob, "  "); !errors.Is(err, ErrValidation) {
		t.Fatalf("empty name: err = %v", err)
	}
}

func TestJoinAndLeaveGroup(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	group := f.group(t, f.bob, "study")

	found, err := f.services.Groups.Lookup(ctx, "study")
	if err != nil || found.ID != group.ID {
		t.Fatalf("Lookup by name = %+v, %v", found, err)
	}
	if _, err := f.services.Groups.Lookup(ctx, "nope"); !errors.Is(err, ErrGroupNotFound) {
		t.Fatalf("Lookup missing: err = %v", err)
	}

	if err := f.services.Groups.Join(ctx, f.alice, group.ID); err != nil {
		t.Fatalf("Join: %v", err)
	}
	groups, err := f.services.Groups.List(ctx, f.alice)
	if err != nil || len(groups) != 1 {
		t.Fatalf("List after join = %+v, %v", groups, err)
	}

	if err := f.services.Groups.Leave(ctx, f.bob, group.ID); !errors.Is(err, ErrPermissionDenied) {
		t.Fatalf("owner leave: err = %v", err)
	}
	if err := f.services.Groups.Leave(ctx, f.alice, group.ID); err != nil {
		t.Fatalf("Leave: %v", err)
	}
	groups, _ = f.services.Groups.List(ctx, f.alice)
	if len(groups) != 0 {
		t.Fatalf("List after leave = %+v", groups)
	}

	if err := f.services.Groups.Join(ctx, f.alice, "missing"); !errors.Is(err, ErrGroupNotFound) {
		t.Fatalf("join missing: err = %v", err)
	}
}

func TestGroupDetail(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	carol := f.newSession(t, "Carol")

	group := &model.Group{
		Name:    "club",
		OwnerID: mustUserID(t, f.alice),
		Members: []model.GroupMember{{UserID: mustUserID(t, f.alice)}, {UserID: "ghost"}},
	}
	if err := f.store.CreateGroup(ctx, group); err != nil {
		t.Fatalf("CreateGroup: %v", err)
	}

	detail, err := f.services.Groups.Detail(ctx, f.alice, group.ID)
	if err != nil {
		t.Fatalf("Detail: %v", err)
	}
	names := map[string]MemberInfo{}
	for _, m := range detail.Members {
		names[m.UserID] = m
	}
	if got := names[mustUserID(t, f.alice)]; got.DisplayName != "Alice" || !got.IsOwner {
		t.Fatalf("owner = %+v", got)
	}
	if got := names["ghost"]; got.DisplayName != UnknownUserName || got.IsOwner {
		t.Fatalf("ghost = %+v", got)
	}

	if _, err := f.services.Groups.Detail(ctx, carol, group.ID); !errors.Is(err, ErrPermissionDenied) {
		t.Fatalf("non-member detail: err = %v", err)
	}
}
