package ops

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"reportd/internal/dispatch"
	"reportd/internal/notifier"
	"reportd/internal/report"
	"reportd/internal/runtime/supervisor"
	"reportd/internal/store"
	logx "reportd/pkg/logx"
)

type fakeDispatcher struct {
	snap       dispatch.Snapshot
	reloadErr  error
	executeErr error
	reloaded   []string
	removed    []string
}

func (f *fakeDispatcher) Snapshot() dispatch.Snapshot { return f.snap }

func (f *fakeDispatcher) Reload(_ context.Context, id string) error {
	f.reloaded = append(f.reloaded, id)
	return f.reloadErr
}

func (f *fakeDispatcher) Unregister(id string) bool {
	f.removed = append(f.removed, id)
	return id == "s1"
}

func (f *fakeDispatcher) Execute(ctx context.Context, id string) error {
	if _, ok := ctx.Deadline(); !ok {
		return errors.New("run without deadline")
	}
	return f.executeErr
}

type fakePinger struct{ err error }

func (p fakePinger) Ping(context.Context) error { return p.err }

func serve(t *testing.T, h http.Handler, method, path, token string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	t.Parallel()

	d := &fakeDispatcher{snap: dispatch.Snapshot{Started: true, Schedules: []dispatch.ScheduleInfo{{ID: "s1"}}}}
	h := NewRouter(Config{}, Deps{Dispatcher: d, Store: fakePinger{}}, logx.Nop())
	rec := serve(t, h, http.MethodGet, "/healthz", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["status"] != "ok" || body["schedules"] != float64(1) {
		t.Fatalf("body = %v", body)
	}

	h = NewRouter(Config{}, Deps{Dispatcher: d, Store: fakePinger{err: store.ErrUnavailable}}, logx.Nop())
	if rec := serve(t, h, http.MethodGet, "/healthz", ""); rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("degraded status = %d", rec.Code)
	}
}

func TestAuth(t *testing.T) {
	t.Parallel()

	h := NewRouter(Config{Token: "secret"}, Deps{Dispatcher: &fakeDispatcher{}}, logx.Nop())
	if rec := serve(t, h, http.MethodGet, "/v1/schedules", ""); rec.Code != http.StatusUnauthorized {
		t.Fatalf("no token status = %d", rec.Code)
	}
	if rec := serve(t, h, http.MethodGet, "/v1/schedules", "wrong"); rec.Code != http.StatusUnauthorized {
		t.Fatalf("wrong token status = %d", rec.Code)
	}
	if rec := serve(t, h, http.MethodGet, "/v1/schedules", "secret"); rec.Code != http.StatusOK {
		t.Fatalf("good token status = %d", rec.Code)
	}
	// health and metrics stay open for health checks and scrapers.
	if rec := serve(t, h, http.MethodGet, "/healthz", ""); rec.Code != http.StatusOK {
		t.Fatalf("healthz status = %d", rec.Code)
	}
	if rec := serve(t, h, http.MethodGet, "/metrics", ""); rec.Code != http.StatusOK {
		t.Fatalf("metrics status = %d", rec.Code)
	}
}

func TestScheduleEndpoints(t *testing.T) {
	t.Parallel()

	d := &fakeDispatcher{snap: dispatch.Snapshot{Schedules: []dispatch.ScheduleInfo{{ID: "s1", Expr: "0 9 * * *"}}}}
	h := NewRouter(Config{}, Deps{Dispatcher: d}, logx.Nop())

	rec := serve(t, h, http.MethodGet, "/v1/schedules", "")
	var snap dispatch.Snapshot
	if err := json.Unmarshal(rec.Body.Bytes(), &snap); err != nil || len(snap.Schedules) != 1 || snap.Schedules[0].Expr != "0 9 * * *" {
		t.Fatalf("snapshot = %s (%v)", rec.Body.String(), err)
	}

	rec = serve(t, h, http.MethodPost, "/v1/schedules/s1/reload", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"registered":true`) {
		t.Fatalf("reload = %d %s", rec.Code, rec.Body.String())
	}
	if len(d.reloaded) != 1 || d.reloaded[0] != "s1" {
		t.Fatalf("reloaded = %v", d.reloaded)
	}

	rec = serve(t, h, http.MethodDelete, "/v1/schedules/s1", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"removed":true`) {
		t.Fatalf("delete = %d %s", rec.Code, rec.Body.String())
	}

	rec = serve(t, h, http.MethodPost, "/v1/schedules/s1/run", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("run = %d %s", rec.Code, rec.Body.String())
	}
}

func TestErrorMapping(t *testing.T) {
	t.Parallel()

	tests := []struct {
		err  error
		want int
	}{
		{dispatch.ErrScheduleNotFound, http.StatusNotFound},
		{dispatch.ErrInFlight, http.StatusConflict},
		{dispatch.ErrScheduleInactive, http.StatusConflict},
		{&report.InvalidScheduleError{ScheduleID: "s1", Field: "frequency", Reason: "bad"}, http.StatusUnprocessableEntity},
		{&dispatch.ExecutionError{ScheduleID: "s1", Step: dispatch.StepNotify, Err: errors.New("smtp")}, http.StatusBadGateway},
		{&dispatch.ExecutionError{ScheduleID: "s1", Step: dispatch.StepLoad, Err: fmt.Errorf("x: %w", store.ErrUnavailable)}, http.StatusServiceUnavailable},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range tests {
		d := &fakeDispatcher{executeErr: tc.err}
		h := NewRouter(Config{}, Deps{Dispatcher: d}, logx.Nop())
		rec := serve(t, h, http.MethodPost, "/v1/schedules/s1/run", "")
		if rec.Code != tc.want {
			t.Fatalf("%v: status = %d, want %d", tc.err, rec.Code, tc.want)
		}
	}
}

func TestDeliveries(t *testing.T) {
	t.Parallel()

	at := time.Date(2024, 3, 10, 9, 0, 0, 0, time.UTC)
	h := NewRouter(Config{}, Deps{
		Dispatcher: &fakeDispatcher{},
		Deliveries: func() []notifier.Delivery {
			return []notifier.Delivery{{At: at, Channel: notifier.ChannelEmail, Recipients: 2, Attempts: 1}}
		},
	}, logx.Nop())
	rec := serve(t, h, http.MethodGet, "/v1/deliveries", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"channel":"email"`) {
		t.Fatalf("deliveries = %d %s", rec.Code, rec.Body.String())
	}
}

func TestRuntime(t *testing.T) {
	t.Parallel()

	h := NewRouter(Config{}, Deps{
		Dispatcher: &fakeDispatcher{},
		Runtime: func() supervisor.Snapshot {
			return supervisor.Snapshot{Loops: []supervisor.LoopStats{{Name: "config.watch", Active: true}}}
		},
	}, logx.Nop())
	rec := serve(t, h, http.MethodGet, "/v1/runtime", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"name":"config.watch"`) {
		t.Fatalf("runtime = %d %s", rec.Code, rec.Body.String())
	}
}

func TestRateLimit(t *testing.T) {
	t.Parallel()

	h := NewRouter(Config{RatePerSec: 0.001, Burst: 2}, Deps{Dispatcher: &fakeDispatcher{}}, logx.Nop())
	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		codes = append(codes, serve(t, h, http.MethodGet, "/v1/schedules", "").Code)
	}
	if codes[0] != http.StatusOK || codes[1] != http.StatusOK || codes[2] != http.StatusTooManyRequests {
		t.Fatalf("codes = %v", codes)
	}
}

func TestServiceLifecycle(t *testing.T) {
	t.Parallel()

	s := New(Config{Enabled: true, Addr: "127.0.0.1:0"}, Deps{Dispatcher: &fakeDispatcher{}}, logx.Nop())
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	addr := s.Addr()
	if addr == "" {
		t.Fatalf("no listen address")
	}
	resp, err := http.Get("http://" + addr + "/healthz")
	if err != nil {
		t.Fatalf("GET healthz: %v", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.Reconfigure(ctx, Config{Enabled: false}); err != nil {
		t.Fatalf("Reconfigure off: %v", err)
	}
	if s.Addr() != "" {
		t.Fatalf("still listening after disable")
	}
}

func TestRefusesInsecureBind(t *testing.T) {
	t.Parallel()

	s := New(Config{Enabled: true, Addr: "0.0.0.0:0"}, Deps{Dispatcher: &fakeDispatcher{}}, logx.Nop())
	if err := s.Start(context.Background()); err == nil {
		_ = s.Stop(context.Background())
		t.Fatalf("started on a public addr without token")
	}
}

func TestIsLoopbackAddr(t *testing.T) {
	t.Parallel()

	tests := map[string]bool{
		"127.0.0.1:8089": true,
		"localhost:8089": true,
		"[::1]:8089":     true,
		"0.0.0.0:8089":   false,
		":8089":          false,
		"10.0.0.5:8089":  false,
	}
	for addr, want := range tests {
		if got := isLoopbackAddr(addr); got != want {
			t.Fatalf("isLoopbackAddr(%q) = %v, want %v", addr, got, want)
		}
	}
}
