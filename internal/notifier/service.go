package notifier

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"reportd/internal/eventbus"
	"reportd/internal/metrics"
	"reportd/internal/retry"
	logx "reportd/pkg/logx"

	"golang.org/x/time/rate"
)

// Service implements Sender over a set of channel transports:
// routing + rate limit + per-channel retry + history.
//
// It is safe for concurrent use.
type Service struct {
	mu sync.Mutex

	log        logx.Logger
	bus        eventbus.Bus
	transports map[Channel]Transport

	cfg     Config
	limiter *rate.Limiter

	// In-memory history (for the ops snapshot)
	hmu     sync.Mutex
	history []Delivery
}

var _ Sender = (*Service)(nil)

func New(cfg Config, transports []Transport, log logx.Logger, bus eventbus.Bus) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	if bus == nil {
		bus = eventbus.Nop{}
	}
	s := &Service{
		log:        log,
		bus:        bus,
		transports: indexTransports(transports),
	}
	s.applyLocked(cfg)
	return s
}

func indexTransports(ts []Transport) map[Channel]Transport {
	out := make(map[Channel]Transport, len(ts))
	for _, t := range ts {
		if t == nil {
			continue
		}
		out[t.Channel()] = t
	}
	return out
}

// Apply swaps rate and retry settings.
func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	s.applyLocked(cfg)
	s.mu.Unlock()
}

// SetTransports replaces the channel transports. Sends already running keep
// the set they started with.
func (s *Service) SetTransports(transports []Transport) {
	m := indexTransports(transports)
	s.mu.Lock()
	s.transports = m
	s.mu.Unlock()
}

func (s *Service) applyLocked(cfg Config) {
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = 3
	}
	if cfg.RetryMax < 0 {
		cfg.RetryMax = 0
	}
	if cfg.RetryBase <= 0 {
		cfg.RetryBase = 500 * time.Millisecond
	}
	if cfg.RetryMaxDelay <= 0 {
		cfg.RetryMaxDelay = 10 * time.Second
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 30 * time.Second
	}
	if cfg.HistorySize <= 0 {
		cfg.HistorySize = 300
	}

	s.cfg = cfg
	// Token bucket: burst = rate per sec, so short spikes don't block too hard.
	s.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec)
}

// Channels lists the configured transports.
func (s *Service) Channels() []Channel {
	s.mu.Lock()
	ts := s.transports
	s.mu.Unlock()
	out := make([]Channel, 0, len(ts))
	for ch := range ts {
		out = append(out, ch)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Send delivers msg to every recipient. Channels are attempted independently;
// the returned error joins every channel failure and every unparseable
// recipient, so a partial delivery still reports an error.
func (s *Service) Send(ctx context.Context, msg Message) error {
	if len(msg.Recipients) == 0 {
		return ErrEmptyMessage
	}

	s.mu.Lock()
	cfg := s.cfg
	lim := s.limiter
	transports := s.transports
	s.mu.Unlock()

	order, groups, bad := group(msg.Recipients, cfg.LogOnly)
	var errs []error
	if bad != nil {
		errs = append(errs, bad)
	}

	for _, ch := range order {
		to := groups[ch]
		t, ok := transports[ch]
		var (
			attempts int
			err      error
		)
		if !ok {
			err = fmt.Errorf("%w: %s", ErrNoTransport, ch)
		} else {
			attempts, err = s.deliver(ctx, cfg, lim, t, to, msg)
		}
		s.record(ch, to, attempts, msg, err)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", ch, err))
		}
	}
	return errors.Join(errs...)
}

func (s *Service) deliver(ctx context.Context, cfg Config, lim *rate.Limiter, t Transport, to []string, msg Message) (int, error) {
	log := s.log.With(logx.String("channel", string(t.Channel())))
	if msg.RunID != "" {
		log = log.With(logx.String("run_id", msg.RunID))
	}
	p := retry.Policy{
		MaxRetries: cfg.RetryMax,
		Base:       cfg.RetryBase,
		MaxDelay:   cfg.RetryMaxDelay,
		Retryable:  func(err error) bool { return errors.Is(err, ErrUnavailable) },
		OnRetry: func(attempt int, delay time.Duration, err error) {
			log.Debug("notify send failed", logx.Err(err), logx.Int("attempt", attempt), logx.Duration("backoff", delay))
		},
	}
	return retry.Do(ctx, p, func(ctx context.Context) error {
		// Rate limit (honor cancellation).
		if lim != nil {
			if err := lim.Wait(ctx); err != nil {
				return retry.Permanent(err)
			}
		}
		callCtx, cancel := context.WithTimeout(ctx, cfg.SendTimeout)
		defer cancel()
		err := t.Deliver(callCtx, to, msg.Subject, msg.Body)
		if err != nil && ctx.Err() == nil && errors.Is(callCtx.Err(), context.DeadlineExceeded) && !errors.Is(err, ErrUnavailable) && !retry.IsPermanent(err) {
			err = fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		return err
	})
}

func (s *Service) record(ch Channel, to []string, attempts int, msg Message, err error) {
	now := time.Now()
	d := Delivery{
		At:         now,
		Channel:    ch,
		Recipients: len(to),
		Attempts:   attempts,
		ScheduleID: msg.ScheduleID,
		RunID:      msg.RunID,
	}
	typ, status := "notifier.sent", "sent"
	if err != nil {
		d.Error = err.Error()
		typ, status = "notifier.failed", "failed"
		s.log.Warn("notify channel failed",
			logx.String("channel", string(ch)),
			logx.String("schedule_id", msg.ScheduleID),
			logx.String("run_id", msg.RunID),
			logx.Int("attempts", attempts),
			logx.Err(err),
		)
	}
	metrics.IncNotification(string(ch), status)

	s.mu.Lock()
	limit := s.cfg.HistorySize
	s.mu.Unlock()

	s.hmu.Lock()
	s.history = append(s.history, d)
	if len(s.history) > limit {
		s.history = s.history[len(s.history)-limit:]
	}
	s.hmu.Unlock()

	s.bus.Publish(eventbus.Event{Type: typ, Time: now, Data: d})
}

// Snapshot returns recent channel deliveries, oldest first.
func (s *Service) Snapshot() []Delivery {
	s.hmu.Lock()
	out := append([]Delivery(nil), s.history...)
	s.hmu.Unlock()
	return out
}
