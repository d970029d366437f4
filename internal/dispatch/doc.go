// Package dispatch owns the job registry and the report executor.
//
// A Service arms one cron entry per active schedule. Each fire re-reads the
// schedule from the store, generates the report, sends it through the
// notifier and writes lastSentAt/nextSendAt back. Failures are logged,
// counted and published on the event bus; they never disarm the trigger.
package dispatch
