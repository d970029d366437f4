package notifier

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

type route struct {
	channel Channel
	addr    string
}

func parseRecipient(raw string) (route, error) {
	r := strings.TrimSpace(raw)
	if r == "" {
		return route{}, fmt.Errorf("%w: empty", ErrInvalidRecipient)
	}
	if scheme, rest, ok := strings.Cut(r, ":"); ok {
		ch := Channel(strings.ToLower(scheme))
		switch ch {
		case ChannelSlack, ChannelTelegram, ChannelLog:
			rest = strings.TrimSpace(rest)
			if rest == "" {
				return route{}, fmt.Errorf("%w: %q has no target", ErrInvalidRecipient, raw)
			}
			if ch == ChannelTelegram {
				if _, _, err := parseTelegramTarget(rest); err != nil {
					return route{}, fmt.Errorf("%w: %q: %v", ErrInvalidRecipient, raw, err)
				}
			}
			return route{channel: ch, addr: rest}, nil
		case "mailto":
			r = strings.TrimSpace(rest)
		}
	}
	at := strings.LastIndex(r, "@")
	if at <= 0 || at == len(r)-1 || strings.ContainsAny(r, " \t\r\n") {
		return route{}, fmt.Errorf("%w: %q", ErrInvalidRecipient, raw)
	}
	return route{channel: ChannelEmail, addr: r}, nil
}

// group splits recipients per channel, keeping first-seen channel order and
// dropping duplicate addresses. Unparseable recipients are collected in bad
// and do not stop the rest from being grouped.
func group(recipients []string, logOnly bool) (order []Channel, out map[Channel][]string, bad error) {
	out = map[Channel][]string{}
	seen := map[route]bool{}
	var errs []error
	for _, raw := range recipients {
		rt, err := parseRecipient(raw)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if logOnly {
			rt = route{channel: ChannelLog, addr: string(rt.channel) + ":" + rt.addr}
		}
		if seen[rt] {
			continue
		}
		seen[rt] = true
		if _, ok := out[rt.channel]; !ok {
			order = append(order, rt.channel)
		}
		out[rt.channel] = append(out[rt.channel], rt.addr)
	}
	return order, out, errors.Join(errs...)
}

// parseTelegramTarget reads "<chat id>[/<thread id>]".
func parseTelegramTarget(s string) (chatID int64, threadID int, err error) {
	chat, thread, hasThread := strings.Cut(strings.TrimSpace(s), "/")
	chatID, err = strconv.ParseInt(strings.TrimSpace(chat), 10, 64)
	if err != nil || chatID == 0 {
		return 0, 0, fmt.Errorf("invalid chat id %q", chat)
	}
	if hasThread {
		threadID, err = strconv.Atoi(strings.TrimSpace(thread))
		if err != nil || threadID < 0 {
			return 0, 0, fmt.Errorf("invalid thread id %q", thread)
		}
	}
	return chatID, threadID, nil
}
