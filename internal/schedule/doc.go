// Package schedule repeats crawl runs on a cron schedule.
//
// Schedules use the standard five-field cron syntax or the descriptors
// understood by robfig/cron (@hourly, @daily, @every 6h, ...). A run that
// is still going when the next tick fires is skipped rather than stacked.
package schedule
