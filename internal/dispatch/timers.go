package dispatch

import (
	"context"
	"fmt"
	"time"

	logx "reportd/pkg/logx"

	"github.com/robfig/cron/v3"
)

// timerFacility is the part of *cron.Cron the registry uses.
type timerFacility interface {
	Schedule(schedule cron.Schedule, cmd cron.Job) cron.EntryID
	Remove(id cron.EntryID)
	Entry(id cron.EntryID) cron.Entry
	Start()
	Stop() context.Context
}

type timerFactory func(loc *time.Location, log logx.Logger) timerFacility

func newCron(loc *time.Location, log logx.Logger) timerFacility {
	return cron.New(cron.WithLocation(loc), cron.WithLogger(cronLogger{log: log}))
}

// cronLogger adapts logx to cron.Logger. cron's info lines are scheduler
// chatter, so they go to trace.
type cronLogger struct{ log logx.Logger }

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Trace("cron: "+msg, kvFields(keysAndValues)...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error("cron: "+msg, append(kvFields(keysAndValues), logx.Err(err))...)
}

func kvFields(kv []interface{}) []logx.Field {
	out := make([]logx.Field, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		out = append(out, logx.Any(fmt.Sprint(kv[i]), kv[i+1]))
	}
	return out
}
