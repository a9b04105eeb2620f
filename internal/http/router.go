package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
)

// RouterConfig wires handlers into the router. Nil handlers leave their
// routes unregistered.
type RouterConfig struct {
	Contacts   *ContactHandler
	Groups     *GroupHandler
	Events     *EventHandler
	Attendance *AttendanceHandler
	System     *SystemHandler
	Metrics    http.Handler
	Observer   RequestObserver
	Logger     *slog.Logger
	Middleware []func(http.Handler) http.Handler
}

func NewRouter(cfg RouterConfig) http.Handler {
	router := chi.NewRouter()
	router.Use(chimiddleware.Recoverer)
	router.Use(RequestLogger(cfg.Logger, cfg.Observer))
	for _, mw := range cfg.Middleware {
		if mw != nil {
			router.Use(mw)
		}
	}

	if cfg.System != nil {
		router.Get("/health", cfg.System.Health)
		router.Get("/calendar.ics", cfg.System.Calendar)
		router.Post("/materialize", cfg.System.Materialize)
	}
	if cfg.Metrics != nil {
		router.Method(http.MethodGet, "/metrics", cfg.Metrics)
	}

	if h := cfg.Contacts; h != nil {
		router.Route("/contacts", func(r chi.Router) {
			r.Get("/", h.List)
			r.Post("/", h.Create)
			r.Post("/sync", h.Sync)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", h.Get)
				r.Put("/", h.Update)
				r.Delete("/", h.Delete)
				if cfg.Attendance != nil {
					r.Get("/attendance", cfg.Attendance.ForContact)
				}
			})
		})
	}

	if h := cfg.Groups; h != nil {
		router.Route("/groups", func(r chi.Router) {
			r.Get("/", h.List)
			r.Post("/", h.Create)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", h.Get)
				r.Put("/", h.Update)
				r.Delete("/", h.Delete)
				r.Post("/members", h.AddMembers)
				r.Delete("/members/{contactID}", h.RemoveMember)
			})
		})
	}

	if h := cfg.Events; h != nil {
		router.Route("/templates", func(r chi.Router) {
			r.Get("/", h.ListTemplates)
			r.Post("/", h.CreateTemplate)
			r.Put("/{id}", h.UpdateTemplate)
			r.Put("/{id}/active", h.SetTemplateActive)
			r.Get("/{id}/occurrences", h.Occurrences)
		})
		router.Route("/events", func(r chi.Router) {
			r.Get("/", h.List)
			r.Post("/", h.Create)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", h.Get)
				r.Put("/", h.Update)
				r.Delete("/", h.Delete)
				if a := cfg.Attendance; a != nil {
					r.Get("/contacts", a.Eligible)
					r.Get("/attendance", a.Sheet)
					r.Get("/attendance/{contactID}", a.Get)
					r.Put("/attendance/{contactID}", a.Update)
				}
			})
		})
	}

	return router
}
