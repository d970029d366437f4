package ops

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	hpprof "net/http/pprof"
	"time"

	"reportd/internal/dispatch"
	"reportd/internal/notifier"
	"reportd/internal/report"
	"reportd/internal/runtime/supervisor"
	"reportd/internal/store"
	logx "reportd/pkg/logx"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Dispatcher is the part of *dispatch.Service the API drives.
type Dispatcher interface {
	Snapshot() dispatch.Snapshot
	Reload(ctx context.Context, id string) error
	Unregister(id string) bool
	Execute(ctx context.Context, id string) error
}

// Pinger reports storage health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps are the collaborators behind the API. Deliveries and Runtime may be nil.
type Deps struct {
	Dispatcher Dispatcher
	Store      Pinger
	Deliveries func() []notifier.Delivery
	Runtime    func() supervisor.Snapshot
}

// NewRouter builds the control API.
//
//	GET    /healthz
//	GET    /metrics
//	GET    /v1/schedules
//	POST   /v1/schedules/{id}/reload
//	DELETE /v1/schedules/{id}
//	POST   /v1/schedules/{id}/run
//	GET    /v1/deliveries
//	GET    /v1/runtime
//	GET    /debug/pprof/*           (cfg.Pprof)
func NewRouter(cfg Config, deps Deps, log logx.Logger) http.Handler {
	cfg = cfg.withDefaults()
	h := &handlers{deps: deps, log: log, runTimeout: cfg.RunTimeout}

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(observe(log))
	r.Use(recoverer(log))

	r.Get("/healthz", h.health)
	r.Handle("/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		r.Use(newIPRateLimiter(cfg.RatePerSec, cfg.Burst).middleware)
		r.Use(bearerAuth(cfg.Token))

		r.Route("/v1", func(r chi.Router) {
			r.Get("/schedules", h.listSchedules)
			r.Post("/schedules/{id}/reload", h.reloadSchedule)
			r.Delete("/schedules/{id}", h.unregisterSchedule)
			r.Post("/schedules/{id}/run", h.runSchedule)
			r.Get("/deliveries", h.deliveries)
			r.Get("/runtime", h.runtime)
		})

		if cfg.Pprof {
			r.Route("/debug/pprof", func(r chi.Router) {
				r.HandleFunc("/", hpprof.Index)
				r.HandleFunc("/cmdline", hpprof.Cmdline)
				r.HandleFunc("/profile", hpprof.Profile)
				r.HandleFunc("/symbol", hpprof.Symbol)
				r.HandleFunc("/trace", hpprof.Trace)
				r.HandleFunc("/{name}", func(w http.ResponseWriter, r *http.Request) {
					hpprof.Handler(chi.URLParam(r, "name")).ServeHTTP(w, r)
				})
			})
		}
	})
	return r
}

type handlers struct {
	deps       Deps
	log        logx.Logger
	runTimeout time.Duration
}

func (h *handlers) health(w http.ResponseWriter, r *http.Request) {
	snap := h.deps.Dispatcher.Snapshot()
	body := map[string]any{
		"status":       "ok",
		"started":      snap.Started,
		"bootstrapped": snap.Bootstrapped,
		"schedules":    len(snap.Schedules),
		"in_flight":    snap.InFlight,
	}
	status := http.StatusOK
	if h.deps.Store != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		err := h.deps.Store.Ping(ctx)
		cancel()
		if err != nil {
			body["status"] = "degraded"
			body["store_error"] = err.Error()
			status = http.StatusServiceUnavailable
		}
	}
	writeJSON(w, status, body)
}

func (h *handlers) listSchedules(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.deps.Dispatcher.Snapshot())
}

func (h *handlers) reloadSchedule(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.deps.Dispatcher.Reload(r.Context(), id); err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": id, "registered": h.registered(id)})
}

func (h *handlers) unregisterSchedule(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	writeJSON(w, http.StatusOK, map[string]any{"id": id, "removed": h.deps.Dispatcher.Unregister(id)})
}

// runSchedule executes synchronously. The run is detached from client
// cancellation and bounded by RunTimeout.
func (h *handlers) runSchedule(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), h.runTimeout)
	defer cancel()
	if err := h.deps.Dispatcher.Execute(ctx, id); err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": id, "status": "sent"})
}

func (h *handlers) deliveries(w http.ResponseWriter, r *http.Request) {
	out := []notifier.Delivery{}
	if h.deps.Deliveries != nil {
		out = append(out, h.deps.Deliveries()...)
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *handlers) runtime(w http.ResponseWriter, r *http.Request) {
	if h.deps.Runtime == nil {
		writeJSON(w, http.StatusOK, supervisor.Snapshot{Loops: []supervisor.LoopStats{}})
		return
	}
	writeJSON(w, http.StatusOK, h.deps.Runtime())
}

func (h *handlers) registered(id string) bool {
	for _, s := range h.deps.Dispatcher.Snapshot().Schedules {
		if s.ID == id {
			return true
		}
	}
	return false
}

// fail maps domain errors to status codes.
func (h *handlers) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	var ee *dispatch.ExecutionError
	switch {
	case errors.Is(err, dispatch.ErrScheduleNotFound):
		status = http.StatusNotFound
	case errors.Is(err, dispatch.ErrInFlight), errors.Is(err, dispatch.ErrScheduleInactive):
		status = http.StatusConflict
	case errors.Is(err, report.ErrInvalidSchedule):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, store.ErrUnavailable), errors.Is(err, dispatch.ErrStopped):
		status = http.StatusServiceUnavailable
	case errors.As(err, &ee):
		status = http.StatusBadGateway
	}
	if status >= 500 {
		h.log.Warn("ops request failed", logx.String("request_id", chimw.GetReqID(r.Context())), logx.String("path", r.URL.Path), logx.Err(err))
	}
	jsonError(w, err.Error(), status)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func jsonError(w http.ResponseWriter, message string, status int) {
	writeJSON(w, status, map[string]string{"error": message})
}
