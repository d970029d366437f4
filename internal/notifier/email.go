package notifier

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/textproto"
	"strings"

	"reportd/internal/retry"

	"gopkg.in/gomail.v2"
)

// EmailConfig is the SMTP relay used for plain address recipients.
type EmailConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// MailDialer is satisfied by *gomail.Dialer.
type MailDialer interface {
	DialAndSend(m ...*gomail.Message) error
}

type EmailTransport struct {
	from   string
	dialer MailDialer
}

func NewEmail(cfg EmailConfig) (*EmailTransport, error) {
	if strings.TrimSpace(cfg.Host) == "" {
		return nil, errors.New("smtp host is empty")
	}
	if strings.TrimSpace(cfg.From) == "" {
		return nil, errors.New("smtp from address is empty")
	}
	port := cfg.Port
	if port <= 0 {
		port = 587
	}
	return NewEmailWithDialer(cfg.From, gomail.NewDialer(cfg.Host, port, cfg.Username, cfg.Password)), nil
}

func NewEmailWithDialer(from string, d MailDialer) *EmailTransport {
	return &EmailTransport{from: from, dialer: d}
}

func (t *EmailTransport) Channel() Channel { return ChannelEmail }

// Deliver sends one message with every address on the To line. gomail has no
// context support, so the send runs in its own goroutine and an expired ctx
// abandons it. The abandoned send may still go out, so that failure is
// permanent.
func (t *EmailTransport) Deliver(ctx context.Context, to []string, subject, body string) error {
	m := gomail.NewMessage()
	m.SetHeader("From", t.from)
	m.SetHeader("To", to...)
	m.SetHeader("Subject", subject)
	m.SetBody("text/plain", body)

	done := make(chan error, 1)
	go func() { done <- t.dialer.DialAndSend(m) }()
	select {
	case err := <-done:
		return classifySMTP(err)
	case <-ctx.Done():
		return retry.Permanent(fmt.Errorf("%w: smtp: %v", ErrOutcomeUnknown, ctx.Err()))
	}
}

func classifySMTP(err error) error {
	if err == nil {
		return nil
	}
	var ne net.Error
	var te *textproto.Error
	switch {
	case errors.As(err, &te):
		if te.Code >= 400 && te.Code < 500 {
			return fmt.Errorf("%w: smtp: %v", ErrUnavailable, err)
		}
		return fmt.Errorf("smtp: %w", err)
	case errors.As(err, &ne), errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
		return fmt.Errorf("%w: smtp: %v", ErrUnavailable, err)
	}
	// gomail flattens send errors into strings.
	msg := err.Error()
	for _, code := range []string{" 421 ", " 450 ", " 451 ", " 452 ", ": 421", ": 450", ": 451", ": 452"} {
		if strings.Contains(msg, code) {
			return fmt.Errorf("%w: smtp: %v", ErrUnavailable, err)
		}
	}
	return fmt.Errorf("smtp: %w", err)
}
