package notifier

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"
	"testing"
	"time"

	"reportd/internal/eventbus"
	logx "reportd/pkg/logx"

	"gopkg.in/gomail.v2"
)

type fakeTransport struct {
	ch Channel

	mu    sync.Mutex
	calls [][]string
	// fail returns the error for call n (1-based); nil means success.
	fail func(n int) error
}

func (f *fakeTransport) Channel() Channel { return f.ch }

func (f *fakeTransport) Deliver(_ context.Context, to []string, _, _ string) error {
	f.mu.Lock()
	f.calls = append(f.calls, append([]string(nil), to...))
	n := len(f.calls)
	f.mu.Unlock()
	if f.fail != nil {
		return f.fail(n)
	}
	return nil
}

func (f *fakeTransport) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func fastConfig() Config {
	return Config{RatePerSec: 1000, RetryMax: 3, RetryBase: time.Millisecond, RetryMaxDelay: 2 * time.Millisecond}
}

func TestSendRoutesByScheme(t *testing.T) {
	t.Parallel()

	email := &fakeTransport{ch: ChannelEmail}
	sl := &fakeTransport{ch: ChannelSlack}
	s := New(fastConfig(), []Transport{email, sl}, logx.Nop(), nil)

	err := s.Send(context.Background(), Message{
		Recipients: []string{"a@x.com", "slack:#ops", "mailto:b@x.com", "a@x.com"},
		Subject:    "s",
		Body:       "b",
	})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if want := [][]string{{"a@x.com", "b@x.com"}}; !reflect.DeepEqual(email.calls, want) {
		t.Fatalf("email calls = %v, want %v", email.calls, want)
	}
	if want := [][]string{{"#ops"}}; !reflect.DeepEqual(sl.calls, want) {
		t.Fatalf("slack calls = %v, want %v", sl.calls, want)
	}
	if got := len(s.Snapshot()); got != 2 {
		t.Fatalf("history = %d, want 2", got)
	}
}

func TestSendRetriesOnlyTransientErrors(t *testing.T) {
	t.Parallel()

	flaky := &fakeTransport{ch: ChannelEmail, fail: func(n int) error {
		if n < 3 {
			return fmt.Errorf("%w: dial", ErrUnavailable)
		}
		return nil
	}}
	s := New(fastConfig(), []Transport{flaky}, logx.Nop(), nil)
	if err := s.Send(context.Background(), Message{Recipients: []string{"a@x.com"}}); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if flaky.Calls() != 3 {
		t.Fatalf("calls = %d, want 3", flaky.Calls())
	}

	broken := &fakeTransport{ch: ChannelEmail, fail: func(int) error { return errors.New("550 mailbox unavailable") }}
	s = New(fastConfig(), []Transport{broken}, logx.Nop(), nil)
	if err := s.Send(context.Background(), Message{Recipients: []string{"a@x.com"}}); err == nil {
		t.Fatalf("expected error")
	}
	if broken.Calls() != 1 {
		t.Fatalf("permanent error retried: calls = %d", broken.Calls())
	}
}

func TestSendPartialFailure(t *testing.T) {
	t.Parallel()

	email := &fakeTransport{ch: ChannelEmail}
	sl := &fakeTransport{ch: ChannelSlack, fail: func(int) error { return fmt.Errorf("%w: 503", ErrUnavailable) }}
	bus := eventbus.New()
	events, unsub := bus.Subscribe(8, "notifier.")
	defer unsub()

	s := New(fastConfig(), []Transport{email, sl}, logx.Nop(), bus)
	err := s.Send(context.Background(), Message{Recipients: []string{"slack:#ops", "a@x.com"}, RunID: "r1"})
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("err = %v, want ErrUnavailable", err)
	}
	if email.Calls() != 1 {
		t.Fatalf("email sent %d times, want 1", email.Calls())
	}
	if sl.Calls() != 4 {
		t.Fatalf("slack calls = %d, want 4", sl.Calls())
	}

	got := map[string]int{}
	for i := 0; i < 2; i++ {
		select {
		case e := <-events:
			got[e.Type]++
			if d, ok := e.Data.(Delivery); !ok || d.RunID != "r1" {
				t.Fatalf("event data = %#v", e.Data)
			}
		case <-time.After(time.Second):
			t.Fatalf("missing event")
		}
	}
	if got["notifier.sent"] != 1 || got["notifier.failed"] != 1 {
		t.Fatalf("events = %v", got)
	}
}

func TestSendMissingTransportAndBadRecipients(t *testing.T) {
	t.Parallel()

	email := &fakeTransport{ch: ChannelEmail}
	s := New(fastConfig(), []Transport{email}, logx.Nop(), nil)

	err := s.Send(context.Background(), Message{Recipients: []string{"telegram:123", "not-an-address", "a@x.com"}})
	if !errors.Is(err, ErrNoTransport) {
		t.Fatalf("err = %v, want ErrNoTransport", err)
	}
	if !errors.Is(err, ErrInvalidRecipient) {
		t.Fatalf("err = %v, want ErrInvalidRecipient", err)
	}
	if email.Calls() != 1 {
		t.Fatalf("valid recipient not delivered")
	}

	if err := s.Send(context.Background(), Message{}); !errors.Is(err, ErrEmptyMessage) {
		t.Fatalf("empty message err = %v", err)
	}
}

func TestSendLogOnly(t *testing.T) {
	t.Parallel()

	lg := &fakeTransport{ch: ChannelLog}
	cfg := fastConfig()
	cfg.LogOnly = true
	s := New(cfg, []Transport{lg}, logx.Nop(), nil)
	if err := s.Send(context.Background(), Message{Recipients: []string{"a@x.com", "slack:#ops"}}); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if want := [][]string{{"email:a@x.com", "slack:#ops"}}; !reflect.DeepEqual(lg.calls, want) {
		t.Fatalf("log calls = %v, want %v", lg.calls, want)
	}
}

func TestHistoryBounded(t *testing.T) {
	t.Parallel()

	cfg := fastConfig()
	cfg.HistorySize = 3
	s := New(cfg, []Transport{&fakeTransport{ch: ChannelEmail}}, logx.Nop(), nil)
	for i := 0; i < 5; i++ {
		_ = s.Send(context.Background(), Message{Recipients: []string{"a@x.com"}, RunID: fmt.Sprint(i)})
	}
	h := s.Snapshot()
	if len(h) != 3 || h[0].RunID != "2" || h[2].RunID != "4" {
		t.Fatalf("history = %+v", h)
	}
}

func TestSetTransportsSwapsChannels(t *testing.T) {
	t.Parallel()

	s := New(fastConfig(), nil, logx.Nop(), nil)
	msg := Message{Recipients: []string{"a@x.com"}, Subject: "s", Body: "b"}
	if err := s.Send(context.Background(), msg); !errors.Is(err, ErrNoTransport) {
		t.Fatalf("err = %v, want ErrNoTransport", err)
	}

	email := &fakeTransport{ch: ChannelEmail}
	s.SetTransports([]Transport{email, nil})
	if got := s.Channels(); !reflect.DeepEqual(got, []Channel{ChannelEmail}) {
		t.Fatalf("Channels = %v", got)
	}
	if err := s.Send(context.Background(), msg); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if email.Calls() != 1 {
		t.Fatalf("email calls = %d", email.Calls())
	}
}

type stuckDialer struct {
	release chan struct{}
	mu      sync.Mutex
	calls   int
}

func (d *stuckDialer) DialAndSend(...*gomail.Message) error {
	d.mu.Lock()
	d.calls++
	d.mu.Unlock()
	<-d.release
	return nil
}

func TestAbandonedEmailIsNotResent(t *testing.T) {
	t.Parallel()

	d := &stuckDialer{release: make(chan struct{})}
	defer close(d.release)

	cfg := fastConfig()
	cfg.SendTimeout = 20 * time.Millisecond
	s := New(cfg, []Transport{NewEmailWithDialer("reports@x.com", d)}, logx.Nop(), nil)

	err := s.Send(context.Background(), Message{Recipients: []string{"a@x.com"}})
	if !errors.Is(err, ErrOutcomeUnknown) {
		t.Fatalf("err = %v, want ErrOutcomeUnknown", err)
	}
	if errors.Is(err, ErrUnavailable) {
		t.Fatalf("abandoned send marked transient: %v", err)
	}
	hist := s.Snapshot()
	if len(hist) != 1 || hist[0].Attempts != 1 {
		t.Fatalf("history = %+v, want one delivery with one attempt", hist)
	}
}
