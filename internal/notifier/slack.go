package notifier

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"

	"reportd/internal/retry"

	"github.com/slack-go/slack"
)

// SlackPoster is satisfied by *slack.Client.
type SlackPoster interface {
	PostMessageContext(ctx context.Context, channelID string, options ...slack.MsgOption) (string, string, error)
}

type SlackTransport struct {
	client SlackPoster
}

func NewSlack(token string, opts ...slack.Option) (*SlackTransport, error) {
	if strings.TrimSpace(token) == "" {
		return nil, errors.New("slack token is empty")
	}
	return NewSlackWithClient(slack.New(token, opts...)), nil
}

func NewSlackWithClient(c SlackPoster) *SlackTransport { return &SlackTransport{client: c} }

func (t *SlackTransport) Channel() Channel { return ChannelSlack }

// Deliver posts subject and body to each channel, stopping at the first
// failure. A retry posts to the whole batch again.
func (t *SlackTransport) Deliver(ctx context.Context, to []string, subject, body string) error {
	text := "*" + subject + "*\n" + body
	for _, ch := range to {
		if _, _, err := t.client.PostMessageContext(ctx, ch, slack.MsgOptionText(text, false)); err != nil {
			return classifySlack(ch, err)
		}
	}
	return nil
}

func classifySlack(ch string, err error) error {
	var rl *slack.RateLimitedError
	if errors.As(err, &rl) {
		return retry.After(fmt.Errorf("%w: slack %s: %v", ErrUnavailable, ch, err), rl.RetryAfter)
	}
	var sc slack.StatusCodeError
	if errors.As(err, &sc) && sc.Retryable() {
		return fmt.Errorf("%w: slack %s: %v", ErrUnavailable, ch, err)
	}
	var ne net.Error
	if errors.As(err, &ne) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: slack %s: %v", ErrUnavailable, ch, err)
	}
	return fmt.Errorf("slack %s: %w", ch, err)
}
