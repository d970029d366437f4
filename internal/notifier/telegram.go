package notifier

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"reportd/internal/retry"

	tele "gopkg.in/telebot.v4"
)

// TelegramSender is satisfied by *tele.Bot.
type TelegramSender interface {
	Send(to tele.Recipient, what interface{}, opts ...interface{}) (*tele.Message, error)
}

type TelegramTransport struct {
	bot TelegramSender
}

// NewTelegram builds an offline bot: it only sends and never polls updates.
func NewTelegram(token string) (*TelegramTransport, error) {
	if strings.TrimSpace(token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	b, err := tele.NewBot(tele.Settings{
		Token:   token,
		Offline: true,
	})
	if err != nil {
		return nil, err
	}
	return NewTelegramWithBot(b), nil
}

func NewTelegramWithBot(b TelegramSender) *TelegramTransport { return &TelegramTransport{bot: b} }

func (t *TelegramTransport) Channel() Channel { return ChannelTelegram }

func (t *TelegramTransport) Deliver(ctx context.Context, to []string, subject, body string) error {
	chunks := splitTelegramText(subject+"\n\n"+body, telegramTextLimit)
	for _, target := range to {
		chatID, threadID, err := parseTelegramTarget(target)
		if err != nil {
			return retry.Permanent(fmt.Errorf("%w: telegram:%s: %v", ErrInvalidRecipient, target, err))
		}
		chat := &tele.Chat{ID: chatID}
		opt := &tele.SendOptions{ThreadID: threadID, DisableWebPagePreview: true}
		for _, c := range chunks {
			if err := ctx.Err(); err != nil {
				return fmt.Errorf("%w: telegram: %v", ErrUnavailable, err)
			}
			if _, err := t.bot.Send(chat, c, opt); err != nil {
				return classifyTelegram(target, err)
			}
		}
	}
	return nil
}

func classifyTelegram(target string, err error) error {
	var fe tele.FloodError
	if errors.As(err, &fe) {
		return retry.After(fmt.Errorf("%w: telegram %s: %v", ErrUnavailable, target, err), time.Duration(fe.RetryAfter)*time.Second)
	}
	var ne net.Error
	if errors.As(err, &ne) {
		return fmt.Errorf("%w: telegram %s: %v", ErrUnavailable, target, err)
	}
	msg := err.Error()
	if strings.Contains(msg, "Too Many Requests") || strings.Contains(msg, "Bad Gateway") || strings.Contains(msg, "Internal Server Error") {
		return fmt.Errorf("%w: telegram %s: %v", ErrUnavailable, target, err)
	}
	return fmt.Errorf("telegram %s: %w", target, err)
}

const telegramTextLimit = 4000

// splitTelegramText splits long messages into chunks Telegram accepts,
// preferring newline boundaries.
func splitTelegramText(s string, limit int) []string {
	if limit <= 0 {
		limit = telegramTextLimit
	}
	rs := []rune(s)
	if len(rs) <= limit {
		return []string{s}
	}

	out := make([]string, 0, (len(rs)+limit-1)/limit)
	start := 0
	for start < len(rs) {
		end := min(start+limit, len(rs))
		if end < len(rs) {
			for i := end - 1; i > start; i-- {
				// Avoid extremely small chunks.
				if rs[i] == '\n' && i-start >= limit/3 {
					end = i + 1
					break
				}
			}
		}
		out = append(out, strings.TrimRight(string(rs[start:end]), "\n"))
		start = end
		for start < len(rs) && rs[start] == '\n' {
			start++
		}
	}
	return out
}
