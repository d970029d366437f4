// Package report holds the scheduled-report domain: the Schedule model, the
// next-run calculator, the trigger builder and the five report generators.
//
// # Cadence
//
// A Schedule fires daily, weekly (on DayOfWeek, Sunday=0) or monthly (on
// DayOfMonth) at TimeOfDay in the schedule's timezone. When the timezone is
// empty, NextRun uses the location of the reference instant, so callers
// decide the fallback zone by the time they pass in.
//
// Monthly schedules whose day does not exist in a month (31 in April, 30 in
// February) fire on the last day of that month.
//
// # Generators
//
// Generators are stateless. They read tenant-scoped rows from a DataSource
// and reduce them to a small typed Summary. Empty row sets yield zero
// summaries.
package report
