package application_test

import (
	"context"
	"errors"
	"slices"
	"testing"

	"github.com/example/attendance-tracker/internal/application"
	"github.com/example/attendance-tracker/internal/persistence"
	"github.com/example/attendance-tracker/internal/testfixtures"
)

func TestGroupService_Lifecycle(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := testfixtures.NewMemoryStore(t)
	factory := testfixtures.NewServiceFactory(testfixtures.WithIDGenerator(testfixtures.NewIDGenerator("group")))
	service := factory.NewGroupService(testfixtures.GroupServiceDeps{Groups: store})

	group, err := service.CreateGroup(ctx, application.GroupInput{
		Name:       "  Tenors ",
		ContactIDs: []string{"c-1", " c-2 ", "", "c-1"},
	})
	if err != nil {
		t.Fatalf("CreateGroup returned error: %v", err)
	}
	if group.ID != "group-1" || group.Name != "Tenors" {
		t.Fatalf("unexpected group %+v", group)
	}
	if !slices.Equal(group.ContactIDs, []string{"c-1", "c-2"}) {
		t.Fatalf("expected normalized members, got %v", group.ContactIDs)
	}

	group, err = service.AddMembers(ctx, group.ID, []string{"c-2", "c-3"})
	if err != nil {
		t.Fatalf("AddMembers returned error: %v", err)
	}
	if !slices.Equal(group.ContactIDs, []string{"c-1", "c-2", "c-3"}) {
		t.Fatalf("expected appended members without duplicates, got %v", group.ContactIDs)
	}

	if _, err := service.AddMembers(ctx, group.ID, []string{" "}); application.ErrorKind(err) != "validation" {
		t.Fatalf("expected validation error for empty additions, got %v", err)
	}

	group, err = service.RemoveMember(ctx, group.ID, "c-1")
	if err != nil {
		t.Fatalf("RemoveMember returned error: %v", err)
	}
	if !slices.Equal(group.ContactIDs, []string{"c-2", "c-3"}) {
		t.Fatalf("expected c-1 removed, got %v", group.ContactIDs)
	}
	unchanged, err := service.RemoveMember(ctx, group.ID, "nobody")
	if err != nil {
		t.Fatalf("RemoveMember returned error: %v", err)
	}
	if !slices.Equal(unchanged.ContactIDs, group.ContactIDs) {
		t.Fatalf("expected removing a non-member to be a no-op, got %v", unchanged.ContactIDs)
	}

	renamed, err := service.UpdateGroup(ctx, group.ID, application.GroupInput{Name: "Basses", ContactIDs: []string{"c-9"}})
	if err != nil {
		t.Fatalf("UpdateGroup returned error: %v", err)
	}
	if renamed.Name != "Basses" || !slices.Equal(renamed.ContactIDs, []string{"c-9"}) {
		t.Fatalf("unexpected updated group %+v", renamed)
	}

	if err := service.DeleteGroup(ctx, group.ID); err != nil {
		t.Fatalf("DeleteGroup returned error: %v", err)
	}
	if _, err := service.GetGroup(ctx, group.ID); !errors.Is(err, application.ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestGroupService_Validation(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	service := testfixtures.NewServiceFactory().NewGroupService(testfixtures.GroupServiceDeps{Groups: testfixtures.NewMemoryStore(t)})

	var vErr *application.ValidationError
	if _, err := service.CreateGroup(ctx, application.GroupInput{Name: ""}); !errors.As(err, &vErr) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if _, err := service.UpdateGroup(ctx, "missing", application.GroupInput{Name: "x"}); !errors.Is(err, application.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestGroupService_ListGroupsOrderedByName(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := testfixtures.NewMemoryStore(t)
	testfixtures.Seed(t, store, nil, []persistence.ContactGroup{
		testfixtures.NewGroupFixture(testfixtures.WithGroupName("Zebra")).Persistence(),
		testfixtures.NewGroupFixture(testfixtures.WithGroupName("Aardvark")).Persistence(),
	}, nil)
	service := testfixtures.NewServiceFactory().NewGroupService(testfixtures.GroupServiceDeps{Groups: store})

	groups, err := service.ListGroups(ctx)
	if err != nil {
		t.Fatalf("ListGroups returned error: %v", err)
	}
	if len(groups) != 2 || groups[0].Name != "Aardvark" {
		t.Fatalf("expected name ordering, got %+v", groups)
	}
}
