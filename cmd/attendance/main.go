package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/example/attendance-tracker/internal/application"
	"github.com/example/attendance-tracker/internal/calendar"
	"github.com/example/attendance-tracker/internal/config"
	"github.com/example/attendance-tracker/internal/contacts"
	httptransport "github.com/example/attendance-tracker/internal/http"
	"github.com/example/attendance-tracker/internal/logging"
	"github.com/example/attendance-tracker/internal/metrics"
	"github.com/example/attendance-tracker/internal/persistence"
	"github.com/example/attendance-tracker/internal/persistence/sqlstore"
	"github.com/example/attendance-tracker/internal/scheduler"
)

const materializeJob = "materialize-today"

const usage = `usage: attendance [serve | materialize [-date D | -from D -to D] | sync-contacts [-file F]]`

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], config.Options{EnvFile: ".env"}, os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// run loads configuration, opens the store and dispatches to the requested
// command. serve is the default.
func run(ctx context.Context, args []string, opts config.Options, out io.Writer) error {
	cfg, err := config.LoadWith(opts)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	logger := logging.NewLogger(out, cfg.LogLevel)

	command := "serve"
	if len(args) > 0 {
		command, args = args[0], args[1:]
	}

	var action func(ctx context.Context, a *app) error
	switch command {
	case "serve":
		action = func(ctx context.Context, a *app) error { return a.serve(ctx) }
	case "materialize":
		first, last, err := parseMaterializeFlags(args, out)
		if err != nil {
			return err
		}
		action = func(ctx context.Context, a *app) error { return a.materialize(ctx, first, last) }
	case "sync-contacts":
		file, err := parseSyncFlags(args, cfg.ContactsFile, out)
		if err != nil {
			return err
		}
		action = func(ctx context.Context, a *app) error { return a.syncContacts(ctx, file) }
	default:
		return fmt.Errorf("unknown command %q\n%s", command, usage)
	}

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := a.close(); cerr != nil {
			logger.Error("failed to close storage", "error", cerr)
		}
	}()

	return action(ctx, a)
}

func parseMaterializeFlags(args []string, out io.Writer) (*time.Time, *time.Time, error) {
	fs := flag.NewFlagSet("materialize", flag.ContinueOnError)
	fs.SetOutput(out)
	date := fs.String("date", "", "materialize a single day (YYYY-MM-DD)")
	from := fs.String("from", "", "first day of a range (YYYY-MM-DD)")
	to := fs.String("to", "", "last day of a range (YYYY-MM-DD)")
	if err := fs.Parse(args); err != nil {
		return nil, nil, err
	}

	parse := func(name, value string) (*time.Time, error) {
		if value == "" {
			return nil, nil
		}
		day, err := time.ParseInLocation(persistence.DateLayout, value, time.UTC)
		if err != nil {
			return nil, fmt.Errorf("invalid -%s %q: expected YYYY-MM-DD", name, value)
		}
		return &day, nil
	}

	switch {
	case *date != "" && (*from != "" || *to != ""):
		return nil, nil, errors.New("-date cannot be combined with -from or -to")
	case *date != "":
		day, err := parse("date", *date)
		return day, day, err
	case (*from == "") != (*to == ""):
		return nil, nil, errors.New("-from and -to must be given together")
	}

	first, err := parse("from", *from)
	if err != nil {
		return nil, nil, err
	}
	last, err := parse("to", *to)
	if err != nil {
		return nil, nil, err
	}
	return first, last, nil
}

func parseSyncFlags(args []string, fallback string, out io.Writer) (string, error) {
	fs := flag.NewFlagSet("sync-contacts", flag.ContinueOnError)
	fs.SetOutput(out)
	file := fs.String("file", fallback, "YAML address book to import")
	if err := fs.Parse(args); err != nil {
		return "", err
	}
	if *file == "" {
		return "", fmt.Errorf("no contacts file: pass -file or set %s", config.EnvContactsFile)
	}
	return *file, nil
}

type app struct {
	cfg    config.Config
	logger *slog.Logger

	store        *sqlstore.Store
	metrics      *metrics.Metrics
	contacts     *application.ContactService
	groups       *application.GroupService
	events       *application.EventService
	attendance   *application.AttendanceService
	materializer *application.Materializer
	provider     contacts.Provider
}

func newApp(ctx context.Context, cfg config.Config, logger *slog.Logger) (*app, error) {
	store, err := sqlstore.Open(ctx, cfg.StoreConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to open storage: %w", err)
	}

	idGenerator := uuid.NewString
	now := time.Now
	m := metrics.New()

	a := &app{
		cfg:          cfg,
		logger:       logger,
		store:        store,
		metrics:      m,
		contacts:     application.NewContactServiceWithLogger(store, now, logger),
		groups:       application.NewGroupServiceWithLogger(store, idGenerator, now, logger),
		events:       application.NewEventServiceWithLogger(store, idGenerator, now, logger),
		attendance:   application.NewAttendanceServiceWithLogger(store, now, logger),
		materializer: application.NewMaterializer(store, idGenerator, now, logger, m),
	}
	if cfg.ContactsFile != "" {
		a.provider = contacts.NewFileProvider(cfg.ContactsFile)
	}
	return a, nil
}

func (a *app) close() error {
	return a.store.Close()
}

func (a *app) handler() http.Handler {
	return httptransport.NewRouter(httptransport.RouterConfig{
		Contacts:   httptransport.NewContactHandler(a.contacts, a.provider, a.logger),
		Groups:     httptransport.NewGroupHandler(a.groups, a.logger),
		Events:     httptransport.NewEventHandler(a.events, a.logger),
		Attendance: httptransport.NewAttendanceHandler(a.attendance, a.logger),
		System: httptransport.NewSystemHandler(httptransport.SystemHandlerConfig{
			Store:        a.store,
			Events:       a.events,
			Materializer: a.materializer,
			Feed:         calendar.NewFeed("Attendance", a.cfg.Location, nil),
			Location:     a.cfg.Location,
			MaxRangeDays: a.cfg.MaxRangeDays,
			Logger:       a.logger,
		}),
		Metrics:  a.metrics.Handler(),
		Observer: a.metrics,
		Logger:   a.logger,
	})
}

// materialize runs one pass. Without bounds it covers today and, when
// configured, the catch-up window before it.
func (a *app) materialize(ctx context.Context, first, last *time.Time) error {
	var (
		result application.MaterializeResult
		err    error
	)
	switch {
	case first == nil:
		result, err = a.materializer.Catchup(ctx, a.materializer.Today(a.cfg.Location), a.cfg.CatchupDays)
	case first.Equal(*last):
		result, err = a.materializer.MaterializeForDate(ctx, *first)
	default:
		result, err = a.materializer.MaterializeForRange(ctx, *first, *last)
	}
	if err != nil {
		return fmt.Errorf("materialization failed: %w", err)
	}

	a.logger.Info("materialization finished",
		"start", result.Start.Format(persistence.DateLayout),
		"end", result.End.Format(persistence.DateLayout),
		"created", result.Created,
		"existing", result.Existing,
	)
	return nil
}

func (a *app) syncContacts(ctx context.Context, file string) error {
	result, err := a.contacts.SyncFrom(ctx, contacts.NewFileProvider(file))
	if err != nil {
		return fmt.Errorf("contact sync failed: %w", err)
	}
	a.logger.Info("contacts synced",
		"file", file,
		"created", result.Created,
		"updated", result.Updated,
		"unchanged", result.Unchanged,
		"skipped", result.Skipped,
	)
	return nil
}

// serve materializes today before accepting requests, schedules the daily
// trigger and blocks until ctx is canceled.
func (a *app) serve(ctx context.Context) error {
	if err := a.materialize(ctx, nil, nil); err != nil {
		a.logger.Error("startup materialization failed", "error", err)
	}

	if a.provider != nil {
		if _, err := a.contacts.SyncFrom(ctx, a.provider); err != nil {
			a.logger.Error("startup contact sync failed", "error", err, "file", a.cfg.ContactsFile)
		}
	}

	sched := scheduler.New(a.cfg.Location, a.logger)
	err := sched.Add(materializeJob, a.cfg.MaterializeCron, func(ctx context.Context) error {
		_, err := a.materializer.MaterializeForDate(ctx, a.materializer.Today(a.cfg.Location))
		return err
	})
	switch {
	case errors.Is(err, scheduler.ErrDisabled):
		a.logger.Info("scheduled materialization disabled")
	case err != nil:
		return fmt.Errorf("failed to schedule materialization: %w", err)
	default:
		sched.Start()
		a.logger.Info("scheduled materialization", "cron", a.cfg.MaterializeCron, "next", sched.Next(materializeJob))
	}

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.HTTPPort),
		Handler:           a.handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("attendance API listening", "addr", server.Addr)
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			_ = sched.Stop(context.Background())
			return fmt.Errorf("server encountered error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := sched.Stop(shutdownCtx); err != nil {
		a.logger.Error("failed to stop scheduler", "error", err)
	}
	if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}
	a.logger.Info("attendance API stopped")
	return nil
}
