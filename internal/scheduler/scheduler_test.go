package scheduler

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		expr    string
		wantErr bool
	}{
		{expr: ""},
		{expr: "5 0 * * *"},
		{expr: "*/10 * * * * *"},
		{expr: "@daily"},
		{expr: "@every 90m"},
		{expr: "61 * * * *", wantErr: true},
		{expr: "not a schedule", wantErr: true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.expr, func(t *testing.T) {
			t.Parallel()
			err := Validate(tt.expr)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate(%q) error = %v, wantErr %v", tt.expr, err, tt.wantErr)
			}
		})
	}
}

func TestScheduler_Add(t *testing.T) {
	t.Parallel()

	s := New(time.UTC, discardLogger())
	noop := func(context.Context) error { return nil }

	if err := s.Add("disabled", "  ", noop); !errors.Is(err, ErrDisabled) {
		t.Fatalf("expected ErrDisabled, got %v", err)
	}
	if err := s.Add("broken", "every tuesday", noop); err == nil {
		t.Fatal("expected parse error")
	}
	if err := s.Add("nil", "@daily", nil); err == nil {
		t.Fatal("expected error for nil job")
	}
	if err := s.Add("daily", "@daily", noop); err != nil {
		t.Fatalf("Add returned error: %v", err)
	}
	if err := s.Add("daily", "5 0 * * *", noop); err != nil {
		t.Fatalf("re-adding returned error: %v", err)
	}
	if got := len(s.cron.Entries()); got != 1 {
		t.Fatalf("expected re-adding to replace the entry, got %d entries", got)
	}
}

func TestScheduler_RunNowLogsOutcome(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	s := New(time.UTC, slog.New(slog.NewTextHandler(&buf, nil)))

	var runs int32
	if err := s.Add("materialize-today", "@daily", func(ctx context.Context) error {
		atomic.AddInt32(&runs, 1)
		return errors.New("store offline")
	}); err != nil {
		t.Fatalf("Add returned error: %v", err)
	}

	if err := s.runNow("materialize-today"); err != nil {
		t.Fatalf("runNow returned error: %v", err)
	}
	if atomic.LoadInt32(&runs) != 1 {
		t.Fatalf("expected one run, got %d", runs)
	}
	output := buf.String()
	if !strings.Contains(output, "job failed") || !strings.Contains(output, "job=materialize-today") || !strings.Contains(output, "store offline") {
		t.Fatalf("expected failure to be logged, got %q", output)
	}

	if err := s.runNow("missing"); !errors.Is(err, errUnknownJob) {
		t.Fatalf("expected errUnknownJob, got %v", err)
	}
}

func TestScheduler_RunsOnSchedule(t *testing.T) {
	t.Parallel()

	s := New(time.UTC, discardLogger())
	ran := make(chan struct{}, 8)
	if err := s.Add("tick", "@every 1s", func(context.Context) error {
		ran <- struct{}{}
		return nil
	}); err != nil {
		t.Fatalf("Add returned error: %v", err)
	}

	s.Start()
	if next := s.Next("tick"); next.IsZero() {
		t.Fatal("expected a next activation after Start")
	}

	select {
	case <-ran:
	case <-time.After(5 * time.Second):
		t.Fatal("job did not run within the expected window")
	}

	stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.Stop(stopCtx); err != nil {
		t.Fatalf("Stop returned error: %v", err)
	}
}

func TestScheduler_StopCancelsRunningJobs(t *testing.T) {
	t.Parallel()

	s := New(time.UTC, discardLogger())
	started := make(chan struct{})
	result := make(chan error, 1)
	if err := s.Add("slow", "@daily", func(ctx context.Context) error {
		close(started)
		<-ctx.Done()
		result <- ctx.Err()
		return ctx.Err()
	}); err != nil {
		t.Fatalf("Add returned error: %v", err)
	}

	go func() { _ = s.runNow("slow") }()
	<-started

	if err := s.Stop(context.Background()); err != nil {
		t.Fatalf("Stop returned error: %v", err)
	}
	select {
	case err := <-result:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("job was not canceled")
	}
}
