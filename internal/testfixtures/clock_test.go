package testfixtures

import (
	"testing"
	"time"
)

func TestClockDefaultsToReferenceTime(t *testing.T) {
	clock := NewClock(time.Time{})
	if !clock.Now().Equal(ReferenceTime()) {
		t.Fatalf("expected ReferenceTime, got %v", clock.Now())
	}
}

func TestClockToday(t *testing.T) {
	clock := NewClock(time.Date(2024, time.January, 8, 23, 59, 0, 0, time.UTC))
	if got := clock.Today(); !got.Equal(Date(2024, time.January, 8)) {
		t.Fatalf("expected 2024-01-08, got %v", got)
	}

	clock.AdvanceDays(7)
	if got := clock.Today(); !got.Equal(Date(2024, time.January, 15)) {
		t.Fatalf("expected 2024-01-15 after a week, got %v", got)
	}
}

func TestClockAdvanceAndSet(t *testing.T) {
	start := time.Date(2024, time.March, 14, 9, 26, 0, 0, time.UTC)
	clock := NewClock(start)

	updated := clock.Advance(90 * time.Minute)
	if !updated.Equal(start.Add(90 * time.Minute)) {
		t.Fatalf("advance returned %v", updated)
	}

	clock.Set(start.Add(2 * time.Hour))
	if got := clock.Now(); !got.Equal(start.Add(2 * time.Hour)) {
		t.Fatalf("expected %v, got %v", start.Add(2*time.Hour), got)
	}

	nowFn := clock.NowFunc()
	clock.Advance(time.Minute)
	if got := nowFn(); !got.Equal(clock.Now()) {
		t.Fatalf("expected NowFunc to follow the clock, got %v", got)
	}
}
