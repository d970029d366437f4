package supervisor

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sort"
	"sync"
	"time"

	logx "reportd/pkg/logx"

	"golang.org/x/sync/errgroup"
)

// Supervisor runs the process's long-lived loops on one shared context.
//   - Named goroutines (for logging/debug)
//   - Panic recovery
//   - The first error cancels the group
//   - Restart loops for components that should self-heal
type Supervisor struct {
	ctx    context.Context
	cancel context.CancelFunc
	group  *errgroup.Group

	log logx.Logger

	errOnce  sync.Once
	firstErr error

	mu    sync.Mutex
	stats map[string]*LoopStats

	doneOnce sync.Once
	doneCh   chan struct{}
	waitErr  error
}

// LoopStats is a best-effort view of one named loop.
type LoopStats struct {
	Name        string    `json:"name"`
	Active      bool      `json:"active"`
	Restarts    int       `json:"restarts"`
	Panics      int       `json:"panics"`
	LastStartAt time.Time `json:"last_start_at"`
	LastStopAt  time.Time `json:"last_stop_at,omitempty"`
	LastErr     string    `json:"last_err,omitempty"`
}

// Snapshot is a point-in-time view of a supervisor.
type Snapshot struct {
	FirstError string      `json:"first_error,omitempty"`
	Loops      []LoopStats `json:"loops"`
}

func New(parent context.Context, log logx.Logger) *Supervisor {
	if log.IsZero() {
		log = logx.Nop()
	}
	ctx, cancel := context.WithCancel(parent)
	g, gctx := errgroup.WithContext(ctx)
	return &Supervisor{
		ctx:    gctx,
		cancel: cancel,
		group:  g,
		log:    log,
		stats:  map[string]*LoopStats{},
		doneCh: make(chan struct{}),
	}
}

func (s *Supervisor) Context() context.Context { return s.ctx }

// Cancel cancels the supervisor context without waiting for loops to exit.
func (s *Supervisor) Cancel() { s.cancel() }

// Err returns the first loop failure, if any.
func (s *Supervisor) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.firstErr
}

// Go runs fn until it returns. A non-nil error other than context.Canceled,
// or a panic, cancels every other loop.
func (s *Supervisor) Go(name string, fn func(ctx context.Context) error) {
	s.group.Go(func() (err error) {
		s.noteStart(name, false)
		defer func() {
			if r := recover(); r != nil {
				s.log.Error("goroutine panicked", logx.String("name", name), logx.Any("panic", r), logx.Stack(string(debug.Stack())))
				s.notePanic(name)
				err = fmt.Errorf("panic in %s: %v", name, r)
			}
			if err != nil {
				s.setErr(err)
			}
			s.noteStop(name, err)
		}()

		s.log.Debug("goroutine started", logx.String("name", name))
		if err := fn(s.ctx); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("%s: %w", name, err)
		}
		s.log.Debug("goroutine stopped", logx.String("name", name))
		return nil
	})
}

// Go0 is Go for loops that cannot fail.
func (s *Supervisor) Go0(name string, fn func(ctx context.Context)) {
	s.Go(name, func(ctx context.Context) error {
		fn(ctx)
		return nil
	})
}

// GoRestart runs fn and restarts it after an error or panic with jittered
// exponential backoff between lo and hi, until the context is done. A
// clean return stops the loop.
func (s *Supervisor) GoRestart(name string, lo, hi time.Duration, fn func(ctx context.Context) error) {
	if lo <= 0 {
		lo = 250 * time.Millisecond
	}
	if hi < lo {
		hi = lo
	}
	s.group.Go(func() error {
		backoff := lo
		for restarts := 0; ; restarts++ {
			if s.ctx.Err() != nil {
				return nil
			}
			startedAt := s.noteStart(name, restarts > 0)
			err := s.runOnce(name, fn)
			s.noteStop(name, err)
			if s.ctx.Err() != nil || err == nil || errors.Is(err, context.Canceled) {
				return nil
			}

			// A loop that ran for a while gets a fresh backoff.
			if time.Since(startedAt) >= 30*time.Second {
				backoff = lo
			}
			wait := backoff + time.Duration(time.Now().UnixNano()%int64(backoff/5+1))
			s.log.Warn("goroutine restarting", logx.String("name", name), logx.Duration("backoff", wait), logx.Err(err))
			select {
			case <-s.ctx.Done():
				return nil
			case <-time.After(wait):
			}
			backoff = min(backoff*2, hi)
		}
	})
}

func (s *Supervisor) runOnce(name string, fn func(ctx context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("goroutine panicked (restart)", logx.String("name", name), logx.Any("panic", r), logx.Stack(string(debug.Stack())))
			s.notePanic(name)
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn(s.ctx)
}

// Wait blocks until every loop has returned or ctx is done, and returns the
// first loop failure.
func (s *Supervisor) Wait(ctx context.Context) error {
	s.doneOnce.Do(func() {
		go func() {
			s.waitErr = s.group.Wait()
			close(s.doneCh)
		}()
	})
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-s.doneCh:
		return s.waitErr
	}
}

// Stop cancels every loop and waits for them.
func (s *Supervisor) Stop(ctx context.Context) error {
	s.cancel()
	return s.Wait(ctx)
}

func (s *Supervisor) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := Snapshot{Loops: make([]LoopStats, 0, len(s.stats))}
	if s.firstErr != nil {
		snap.FirstError = s.firstErr.Error()
	}
	for _, st := range s.stats {
		snap.Loops = append(snap.Loops, *st)
	}
	sort.Slice(snap.Loops, func(i, j int) bool { return snap.Loops[i].Name < snap.Loops[j].Name })
	return snap
}

func (s *Supervisor) stat(name string) *LoopStats {
	st := s.stats[name]
	if st == nil {
		st = &LoopStats{Name: name}
		s.stats[name] = st
	}
	return st
}

func (s *Supervisor) noteStart(name string, restart bool) time.Time {
	now := time.Now()
	s.mu.Lock()
	st := s.stat(name)
	st.Active = true
	st.LastStartAt = now
	if restart {
		st.Restarts++
	}
	s.mu.Unlock()
	return now
}

func (s *Supervisor) noteStop(name string, err error) {
	s.mu.Lock()
	st := s.stat(name)
	st.Active = false
	st.LastStopAt = time.Now()
	if err != nil {
		st.LastErr = err.Error()
	}
	s.mu.Unlock()
}

func (s *Supervisor) notePanic(name string) {
	s.mu.Lock()
	s.stat(name).Panics++
	s.mu.Unlock()
}

func (s *Supervisor) setErr(err error) {
	s.errOnce.Do(func() {
		s.mu.Lock()
		s.firstErr = err
		s.mu.Unlock()
	})
}
