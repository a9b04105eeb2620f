package testfixtures

import (
	"context"
	"testing"
	"time"

	"github.com/example/attendance-tracker/internal/application"
	"github.com/example/attendance-tracker/internal/persistence"
)

func TestServiceFactoryNewGroupService(t *testing.T) {
	factory := NewServiceFactory()
	store := NewMemoryStore(t)

	svc := factory.NewGroupService(GroupServiceDeps{Groups: store})
	group, err := svc.CreateGroup(context.Background(), application.GroupInput{Name: "Choir"})
	if err != nil {
		t.Fatalf("CreateGroup returned error: %v", err)
	}

	if group.ID != "id-1" {
		t.Fatalf("expected generated ID id-1, got %q", group.ID)
	}
	if !group.CreatedAt.Equal(factory.Clock.Now()) {
		t.Fatalf("expected timestamp %v, got %v", factory.Clock.Now(), group.CreatedAt)
	}
}

func TestServiceFactoryNewMaterializerUsesOverrides(t *testing.T) {
	clock := NewClock(time.Date(2024, time.January, 8, 6, 0, 0, 0, time.UTC))
	factory := NewServiceFactory(WithClock(clock), WithIDGenerator(NewIDGenerator("inst")))
	store := NewMemoryStore(t)
	template := NewTemplateFixture(WithWeekday(time.Monday))
	Seed(t, store, nil, nil, []persistence.Event{template.Persistence()})

	materializer := factory.NewMaterializer(MaterializerDeps{Store: store})
	result, err := materializer.MaterializeForDate(context.Background(), clock.Today())
	if err != nil {
		t.Fatalf("MaterializeForDate returned error: %v", err)
	}
	if result.Created != 1 || len(result.Instances) != 1 {
		t.Fatalf("expected one created instance, got %+v", result)
	}
	if result.Instances[0].ID != "inst-1" {
		t.Fatalf("expected inst-1, got %q", result.Instances[0].ID)
	}
}
