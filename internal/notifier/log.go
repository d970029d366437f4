package notifier

import (
	"context"

	logx "reportd/pkg/logx"
)

// LogTransport writes deliveries to the logger. It backs log: recipients
// and the notifier.log_only mode.
type LogTransport struct {
	log logx.Logger
}

func NewLog(log logx.Logger) *LogTransport {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &LogTransport{log: log}
}

func (t *LogTransport) Channel() Channel { return ChannelLog }

func (t *LogTransport) Deliver(_ context.Context, to []string, subject, body string) error {
	t.log.Info("report delivered to log",
		logx.Strings("to", to),
		logx.String("subject", subject),
		logx.String("body", body),
	)
	return nil
}
