package testfixtures

import (
	"log/slog"
	"time"

	"github.com/example/attendance-tracker/internal/application"
)

// ServiceFactory assists tests with constructing application services using
// deterministic identifiers and clocks.
type ServiceFactory struct {
	Clock       *Clock
	IDGenerator *IDGenerator
}

// ServiceFactoryOption configures a ServiceFactory instance.
type ServiceFactoryOption func(*ServiceFactory)

// NewServiceFactory constructs a ServiceFactory with defaults.
func NewServiceFactory(opts ...ServiceFactoryOption) *ServiceFactory {
	factory := &ServiceFactory{
		Clock:       NewClock(time.Time{}),
		IDGenerator: NewIDGenerator("id"),
	}
	for _, opt := range opts {
		opt(factory)
	}
	if factory.Clock == nil {
		factory.Clock = NewClock(time.Time{})
	}
	if factory.IDGenerator == nil {
		factory.IDGenerator = NewIDGenerator("id")
	}
	return factory
}

// WithClock overrides the clock used by the factory.
func WithClock(clock *Clock) ServiceFactoryOption {
	return func(factory *ServiceFactory) {
		factory.Clock = clock
	}
}

// WithIDGenerator overrides the identifier generator used by the factory.
func WithIDGenerator(generator *IDGenerator) ServiceFactoryOption {
	return func(factory *ServiceFactory) {
		factory.IDGenerator = generator
	}
}

func (f *ServiceFactory) idGen(override func() string) func() string {
	if override != nil {
		return override
	}
	return f.IDGenerator.NextFunc()
}

func (f *ServiceFactory) now(override func() time.Time) func() time.Time {
	if override != nil {
		return override
	}
	return f.Clock.NowFunc()
}

// MaterializerDeps captures dependencies for constructing a materializer.
type MaterializerDeps struct {
	Store       application.MaterializeStore
	Recorder    application.MaterializeRecorder
	IDGenerator func() string
	Now         func() time.Time
	Logger      *slog.Logger
}

// NewMaterializer constructs an application.Materializer using deterministic defaults.
func (f *ServiceFactory) NewMaterializer(deps MaterializerDeps) *application.Materializer {
	return application.NewMaterializer(deps.Store, f.idGen(deps.IDGenerator), f.now(deps.Now), deps.Logger, deps.Recorder)
}

// EventServiceDeps captures dependencies for constructing an event service.
type EventServiceDeps struct {
	Events      application.EventStore
	IDGenerator func() string
	Now         func() time.Time
	Logger      *slog.Logger
}

// NewEventService constructs an application.EventService using deterministic defaults.
func (f *ServiceFactory) NewEventService(deps EventServiceDeps) *application.EventService {
	return application.NewEventServiceWithLogger(deps.Events, f.idGen(deps.IDGenerator), f.now(deps.Now), deps.Logger)
}

// GroupServiceDeps captures dependencies for constructing a group service.
type GroupServiceDeps struct {
	Groups      application.GroupStore
	IDGenerator func() string
	Now         func() time.Time
	Logger      *slog.Logger
}

// NewGroupService constructs an application.GroupService using deterministic defaults.
func (f *ServiceFactory) NewGroupService(deps GroupServiceDeps) *application.GroupService {
	return application.NewGroupServiceWithLogger(deps.Groups, f.idGen(deps.IDGenerator), f.now(deps.Now), deps.Logger)
}

// ContactServiceDeps captures dependencies for constructing a contact service.
type ContactServiceDeps struct {
	Contacts application.ContactStore
	Now      func() time.Time
	Logger   *slog.Logger
}

// NewContactService constructs an application.ContactService using deterministic defaults.
func (f *ServiceFactory) NewContactService(deps ContactServiceDeps) *application.ContactService {
	return application.NewContactServiceWithLogger(deps.Contacts, f.now(deps.Now), deps.Logger)
}

// AttendanceServiceDeps captures dependencies for constructing an attendance service.
type AttendanceServiceDeps struct {
	Store  application.AttendanceStore
	Now    func() time.Time
	Logger *slog.Logger
}

// NewAttendanceService constructs an application.AttendanceService using deterministic defaults.
func (f *ServiceFactory) NewAttendanceService(deps AttendanceServiceDeps) *application.AttendanceService {
	return application.NewAttendanceServiceWithLogger(deps.Store, f.now(deps.Now), deps.Logger)
}
