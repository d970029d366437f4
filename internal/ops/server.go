package ops

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	logx "reportd/pkg/logx"
)

// Config controls the control/ops HTTP server.
//
// Security:
//   - Prefer binding to localhost (default).
//   - If binding to a non-loopback address, set Token or enable AllowInsecure.
type Config struct {
	Enabled       bool
	Addr          string
	Token         string
	AllowInsecure bool
	Pprof         bool

	RatePerSec float64
	Burst      int

	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
	RunTimeout   time.Duration
}

func (c Config) withDefaults() Config {
	c.Addr = strings.TrimSpace(c.Addr)
	if c.Addr == "" {
		c.Addr = "127.0.0.1:8089"
	}
	c.Token = strings.TrimSpace(c.Token)
	if c.RatePerSec <= 0 {
		c.RatePerSec = 10
	}
	if c.Burst <= 0 {
		c.Burst = max(int(c.RatePerSec), 1)
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = 10 * time.Second
	}
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = 60 * time.Second
	}
	if c.RunTimeout <= 0 {
		c.RunTimeout = 5 * time.Minute
	}
	return c
}

// Service runs the ops server and follows config reloads.
type Service struct {
	mu   sync.Mutex
	log  logx.Logger
	deps Deps
	cfg  Config

	srv  *http.Server
	addr string
	done chan struct{} // closed when the serve goroutine exits
}

func New(cfg Config, deps Deps, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{cfg: cfg, deps: deps, log: log}
}

// Addr reports the actual listen address if running.
func (s *Service) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

// Reconfigure applies cfg and starts/stops/restarts the server if needed.
// Safe to call during hot-reload.
func (s *Service) Reconfigure(ctx context.Context, cfg Config) error {
	s.mu.Lock()
	prev := s.cfg
	running := s.srv != nil
	s.cfg = cfg
	s.mu.Unlock()

	if !cfg.Enabled {
		if running {
			return s.Stop(ctx)
		}
		return nil
	}
	if !running {
		return s.Start(ctx)
	}
	if needsRestart(prev, cfg) {
		if err := s.Stop(ctx); err != nil {
			return err
		}
		return s.Start(ctx)
	}
	return nil
}

func needsRestart(a, b Config) bool {
	// The router captures everything else, so any change rebuilds it.
	return a != b
}

// Start listens and serves in the background. It is idempotent.
func (s *Service) Start(ctx context.Context) error {
	_ = ctx

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.srv != nil || !s.cfg.Enabled {
		return nil
	}
	cur := s.cfg.withDefaults()

	// Safety: prevent accidental public exposure without auth.
	if !cur.AllowInsecure && cur.Token == "" && !isLoopbackAddr(cur.Addr) {
		return fmt.Errorf("ops refused to start on %s: non-loopback addr requires token or allow_insecure", cur.Addr)
	}
	if cur.Token == "" && !isLoopbackAddr(cur.Addr) {
		s.log.Warn("ops running without token on non-loopback addr (insecure)", logx.String("addr", cur.Addr))
	}

	ln, err := net.Listen("tcp", cur.Addr)
	if err != nil {
		return fmt.Errorf("ops listen %s: %w", cur.Addr, err)
	}
	srv := &http.Server{
		Handler:      NewRouter(cur, s.deps, s.log),
		ReadTimeout:  cur.ReadTimeout,
		WriteTimeout: cur.WriteTimeout,
		IdleTimeout:  cur.IdleTimeout,
	}
	done := make(chan struct{})
	s.srv, s.addr, s.done = srv, ln.Addr().String(), done

	go func() {
		defer close(done)
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("ops server exited", logx.String("addr", ln.Addr().String()), logx.Err(err))
		}
	}()
	s.log.Info("ops started",
		logx.String("addr", s.addr),
		logx.Bool("token_set", cur.Token != ""),
		logx.Bool("pprof", cur.Pprof),
	)
	return nil
}

// Stop gracefully shuts down the server, bounded by ctx.
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	srv, done, addr := s.srv, s.done, s.addr
	s.srv, s.done, s.addr = nil, nil, ""
	s.mu.Unlock()
	if srv == nil {
		return nil
	}

	err := srv.Shutdown(ctx)
	if err != nil {
		_ = srv.Close()
	}
	<-done
	s.log.Info("ops stopped", logx.String("addr", addr))
	return err
}

func isLoopbackAddr(addr string) bool {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		host = addr
	}
	host = strings.Trim(host, "[]")
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
