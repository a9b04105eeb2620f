package application_test

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/example/attendance-tracker/internal/application"
	"github.com/example/attendance-tracker/internal/persistence"
	"github.com/example/attendance-tracker/internal/testfixtures"
)

type recordedPass struct {
	mode   string
	result application.MaterializeResult
	err    error
}

type recorderStub struct {
	mu     sync.Mutex
	passes []recordedPass
}

func (r *recorderStub) ObserveMaterialization(mode string, result application.MaterializeResult, elapsed time.Duration, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.passes = append(r.passes, recordedPass{mode: mode, result: result, err: err})
}

// failingStore wraps a store and fails InsertGeneratedInstance once calls
// reaches failAt.
type failingStore struct {
	persistence.Store
	mu     sync.Mutex
	calls  int
	failAt int
	err    error
}

func (f *failingStore) InsertGeneratedInstance(ctx context.Context, event persistence.Event) (persistence.Event, bool, error) {
	f.mu.Lock()
	f.calls++
	fail := f.failAt > 0 && f.calls >= f.failAt
	f.mu.Unlock()
	if fail {
		return persistence.Event{}, false, f.err
	}
	return f.Store.InsertGeneratedInstance(ctx, event)
}

func TestMaterializeForDate_MondayTemplate(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := testfixtures.NewMemoryStore(t)
	template := testfixtures.NewTemplateFixture(
		testfixtures.WithWeekday(time.Monday),
		testfixtures.WithStartDate(testfixtures.Date(2024, time.January, 1)),
		testfixtures.WithTemplateGroups("group-1"),
	).Persistence()
	testfixtures.Seed(t, store, nil, nil, []persistence.Event{template})

	materializer := testfixtures.NewServiceFactory().NewMaterializer(testfixtures.MaterializerDeps{Store: store})
	monday := testfixtures.Date(2024, time.January, 8)

	first, err := materializer.MaterializeForDate(ctx, monday)
	if err != nil {
		t.Fatalf("MaterializeForDate returned error: %v", err)
	}
	if first.Created != 1 || first.Existing != 0 || first.Templates != 1 {
		t.Fatalf("unexpected first pass %+v", first)
	}
	instance := first.Instances[0]
	if instance.RecurringEventID != template.ID || !instance.Date.Equal(monday) {
		t.Fatalf("unexpected instance %+v", instance)
	}
	if instance.Name != template.Name || instance.Time != template.Time {
		t.Fatalf("expected instance to copy template fields, got %+v", instance)
	}
	if len(instance.ContactGroupIDs) != 1 || instance.ContactGroupIDs[0] != "group-1" {
		t.Fatalf("expected instance to copy template groups, got %v", instance.ContactGroupIDs)
	}
	if instance.Kind() != persistence.EventKindGenerated {
		t.Fatalf("expected generated instance, got %s", instance.Kind())
	}

	second, err := materializer.MaterializeForDate(ctx, monday.Add(20*time.Hour))
	if err != nil {
		t.Fatalf("MaterializeForDate returned error: %v", err)
	}
	if second.Created != 0 || second.Existing != 1 || second.Instances[0].ID != instance.ID {
		t.Fatalf("expected idempotent second pass, got %+v", second)
	}

	tuesday, err := materializer.MaterializeForDate(ctx, monday.AddDate(0, 0, 1))
	if err != nil {
		t.Fatalf("MaterializeForDate returned error: %v", err)
	}
	if tuesday.Created != 0 || len(tuesday.Instances) != 0 {
		t.Fatalf("expected nothing due on Tuesday, got %+v", tuesday)
	}

	events, err := store.ListEvents(ctx, persistence.EventFilter{RecurringEventID: template.ID})
	if err != nil {
		t.Fatalf("ListEvents returned error: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("expected exactly one stored instance, got %d", len(events))
	}
}

func TestMaterializeForDate_SkipsInactiveAndOutOfWindowTemplates(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := testfixtures.NewMemoryStore(t)
	monday := testfixtures.Date(2024, time.January, 8)

	inactive := testfixtures.NewTemplateFixture(testfixtures.WithActive(false)).Persistence()
	notStarted := testfixtures.NewTemplateFixture(testfixtures.WithStartDate(monday.AddDate(0, 0, 7))).Persistence()
	ended := testfixtures.NewTemplateFixture(testfixtures.WithEndDate(monday.AddDate(0, 0, -7))).Persistence()
	endsToday := testfixtures.NewTemplateFixture(testfixtures.WithEndDate(monday)).Persistence()
	testfixtures.Seed(t, store, nil, nil, []persistence.Event{inactive, notStarted, ended, endsToday})

	materializer := testfixtures.NewServiceFactory().NewMaterializer(testfixtures.MaterializerDeps{Store: store})
	result, err := materializer.MaterializeForDate(ctx, monday)
	if err != nil {
		t.Fatalf("MaterializeForDate returned error: %v", err)
	}
	if result.Templates != 3 {
		t.Fatalf("expected only active templates to be considered, got %d", result.Templates)
	}
	if result.Created != 1 || result.Instances[0].RecurringEventID != endsToday.ID {
		t.Fatalf("expected only the template ending today to be due, got %+v", result)
	}
}

func TestMaterializeForRange_MatchesPerDayPasses(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	start := testfixtures.Date(2024, time.January, 1)
	end := testfixtures.Date(2024, time.January, 31)

	templates := []persistence.Event{
		testfixtures.NewTemplateFixture(testfixtures.WithTemplateID("mon"), testfixtures.WithWeekday(time.Monday)).Persistence(),
		testfixtures.NewTemplateFixture(testfixtures.WithTemplateID("thu"), testfixtures.WithWeekday(time.Thursday)).Persistence(),
		testfixtures.NewTemplateFixture(
			testfixtures.WithTemplateID("sun"),
			testfixtures.WithWeekday(time.Sunday),
			testfixtures.WithStartDate(testfixtures.Date(2024, time.January, 10)),
			testfixtures.WithEndDate(testfixtures.Date(2024, time.January, 21)),
		).Persistence(),
	}

	rangeStore := testfixtures.NewMemoryStore(t)
	testfixtures.Seed(t, rangeStore, nil, nil, templates)
	ranged, err := testfixtures.NewServiceFactory().
		NewMaterializer(testfixtures.MaterializerDeps{Store: rangeStore}).
		MaterializeForRange(ctx, start, end)
	if err != nil {
		t.Fatalf("MaterializeForRange returned error: %v", err)
	}

	dayStore := testfixtures.NewMemoryStore(t)
	testfixtures.Seed(t, dayStore, nil, nil, templates)
	daily := testfixtures.NewServiceFactory().NewMaterializer(testfixtures.MaterializerDeps{Store: dayStore})
	perDay := 0
	for day := start; !day.After(end); day = day.AddDate(0, 0, 1) {
		result, err := daily.MaterializeForDate(ctx, day)
		if err != nil {
			t.Fatalf("MaterializeForDate(%s) returned error: %v", day.Format(persistence.DateLayout), err)
		}
		perDay += result.Created
	}

	// 5 Mondays, 4 Thursdays and 2 Sundays in the bounded window.
	if ranged.Created != 11 || perDay != 11 {
		t.Fatalf("expected 11 instances both ways, got range=%d per-day=%d", ranged.Created, perDay)
	}

	rangeKeys := instanceKeys(t, rangeStore)
	dayKeys := instanceKeys(t, dayStore)
	if len(rangeKeys) != len(dayKeys) {
		t.Fatalf("expected identical instance sets, got %v and %v", rangeKeys, dayKeys)
	}
	for i := range rangeKeys {
		if rangeKeys[i] != dayKeys[i] {
			t.Fatalf("expected identical instance sets, got %v and %v", rangeKeys, dayKeys)
		}
	}

	for i := 1; i < len(ranged.Instances); i++ {
		if ranged.Instances[i].Date.Before(ranged.Instances[i-1].Date) {
			t.Fatalf("expected instances in ascending date order")
		}
	}
}

func instanceKeys(t *testing.T, store persistence.Store) []string {
	t.Helper()
	events, err := store.ListEvents(context.Background(), persistence.EventFilter{Kinds: []persistence.EventKind{persistence.EventKindGenerated}})
	if err != nil {
		t.Fatalf("ListEvents returned error: %v", err)
	}
	keys := make([]string, 0, len(events))
	for _, event := range events {
		keys = append(keys, event.RecurringEventID+"@"+event.Date.Format(persistence.DateLayout))
	}
	sort.Strings(keys)
	return keys
}

func TestMaterializeForRange_RejectsInvertedRange(t *testing.T) {
	t.Parallel()
	materializer := testfixtures.NewServiceFactory().NewMaterializer(testfixtures.MaterializerDeps{Store: testfixtures.NewMemoryStore(t)})

	_, err := materializer.MaterializeForRange(context.Background(), testfixtures.Date(2024, time.January, 9), testfixtures.Date(2024, time.January, 8))
	if !errors.Is(err, application.ErrInvalidRange) {
		t.Fatalf("expected ErrInvalidRange, got %v", err)
	}
}

func TestCatchup(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := testfixtures.NewMemoryStore(t)
	template := testfixtures.NewTemplateFixture(testfixtures.WithWeekday(time.Monday)).Persistence()
	testfixtures.Seed(t, store, nil, nil, []persistence.Event{template})

	clock := testfixtures.NewClock(time.Date(2024, time.January, 10, 7, 0, 0, 0, time.UTC))
	factory := testfixtures.NewServiceFactory(testfixtures.WithClock(clock))
	materializer := factory.NewMaterializer(testfixtures.MaterializerDeps{Store: store})

	// Wednesday with no window: only today, which is not a Monday.
	today, err := materializer.Catchup(ctx, materializer.Today(time.UTC), 0)
	if err != nil {
		t.Fatalf("Catchup returned error: %v", err)
	}
	if today.Created != 0 {
		t.Fatalf("expected nothing due today, got %+v", today)
	}

	// Host was away for three weeks.
	clock.AdvanceDays(21)
	result, err := materializer.Catchup(ctx, materializer.Today(time.UTC), 21)
	if err != nil {
		t.Fatalf("Catchup returned error: %v", err)
	}
	if !result.Start.Equal(testfixtures.Date(2024, time.January, 10)) || !result.End.Equal(testfixtures.Date(2024, time.January, 31)) {
		t.Fatalf("unexpected window %v..%v", result.Start, result.End)
	}
	if result.Created != 3 {
		t.Fatalf("expected the three missed Mondays, got %d", result.Created)
	}

	if _, err := materializer.Catchup(ctx, clock.Today(), -1); application.ErrorKind(err) != "validation" {
		t.Fatalf("expected validation error for negative window, got %v", err)
	}
}

func TestMaterializer_AbortsOnStoreError(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	base := testfixtures.NewMemoryStore(t)
	template := testfixtures.NewTemplateFixture(testfixtures.WithWeekday(time.Monday)).Persistence()
	testfixtures.Seed(t, base, nil, nil, []persistence.Event{template})

	store := &failingStore{Store: base, failAt: 3, err: persistence.ErrUnavailable}
	recorder := &recorderStub{}
	materializer := testfixtures.NewServiceFactory().NewMaterializer(testfixtures.MaterializerDeps{Store: store, Recorder: recorder})

	result, err := materializer.MaterializeForRange(ctx, testfixtures.Date(2024, time.January, 1), testfixtures.Date(2024, time.January, 31))
	if !errors.Is(err, application.ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
	if result.Created != 2 {
		t.Fatalf("expected two instances before the failure, got %d", result.Created)
	}

	store.mu.Lock()
	store.failAt = 0
	store.mu.Unlock()

	resumed, err := materializer.MaterializeForRange(ctx, testfixtures.Date(2024, time.January, 1), testfixtures.Date(2024, time.January, 31))
	if err != nil {
		t.Fatalf("MaterializeForRange returned error: %v", err)
	}
	if resumed.Created != 3 || resumed.Existing != 2 {
		t.Fatalf("expected the retry to finish the remaining Mondays, got %+v", resumed)
	}

	recorder.mu.Lock()
	defer recorder.mu.Unlock()
	if len(recorder.passes) != 2 {
		t.Fatalf("expected two recorded passes, got %d", len(recorder.passes))
	}
	if recorder.passes[0].err == nil || recorder.passes[0].mode != application.ModeRange {
		t.Fatalf("expected the first pass to record its failure, got %+v", recorder.passes[0])
	}
	if recorder.passes[1].err != nil || recorder.passes[1].result.Created != 3 {
		t.Fatalf("unexpected second pass %+v", recorder.passes[1])
	}
}

func TestMaterializer_StopsWhenCanceled(t *testing.T) {
	t.Parallel()
	store := testfixtures.NewMemoryStore(t)
	testfixtures.Seed(t, store, nil, nil, []persistence.Event{testfixtures.NewTemplateFixture().Persistence()})
	materializer := testfixtures.NewServiceFactory().NewMaterializer(testfixtures.MaterializerDeps{Store: store})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := materializer.MaterializeForRange(ctx, testfixtures.Date(2024, time.January, 1), testfixtures.Date(2024, time.December, 31))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if result.Created != 0 {
		t.Fatalf("expected no work after cancellation, got %+v", result)
	}
}

func TestMaterializer_ConcurrentPassesCreateOnce(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := testfixtures.NewMemoryStore(t)
	template := testfixtures.NewTemplateFixture().Persistence()
	testfixtures.Seed(t, store, nil, nil, []persistence.Event{template})
	materializer := testfixtures.NewServiceFactory().NewMaterializer(testfixtures.MaterializerDeps{Store: store})
	monday := testfixtures.Date(2024, time.January, 8)

	var wg sync.WaitGroup
	var mu sync.Mutex
	created := 0
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			result, err := materializer.MaterializeForDate(ctx, monday)
			if err != nil {
				t.Errorf("MaterializeForDate returned error: %v", err)
				return
			}
			mu.Lock()
			created += result.Created
			mu.Unlock()
		}()
	}
	wg.Wait()

	if created != 1 {
		t.Fatalf("expected a single creation across concurrent passes, got %d", created)
	}
}

func TestEnsureInstanceExists(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := testfixtures.NewMemoryStore(t)
	template := testfixtures.NewTemplateFixture().Persistence()
	regular := testfixtures.NewEventFixture().Persistence()
	testfixtures.Seed(t, store, nil, nil, []persistence.Event{template, regular})
	materializer := testfixtures.NewServiceFactory().NewMaterializer(testfixtures.MaterializerDeps{Store: store})
	monday := testfixtures.Date(2024, time.January, 15)

	first, created, err := materializer.EnsureInstanceExists(ctx, template, monday)
	if err != nil || !created {
		t.Fatalf("expected creation, created=%v err=%v", created, err)
	}
	again, created, err := materializer.EnsureInstanceExists(ctx, template, monday)
	if err != nil || created || again.ID != first.ID {
		t.Fatalf("expected existing instance %s, got %s created=%v err=%v", first.ID, again.ID, created, err)
	}

	if _, _, err := materializer.EnsureInstanceExists(ctx, regular, monday); !errors.Is(err, application.ErrNotTemplate) {
		t.Fatalf("expected ErrNotTemplate, got %v", err)
	}
}
