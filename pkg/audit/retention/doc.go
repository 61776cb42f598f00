// Package retention deletes audit records older than a configurable number
// of days.
//
// A Cleaner performs one sweep at a time in fixed-size batches. A Scheduler
// fires sweeps from a Trigger (a cron schedule in production) and also
// offers the manual path used by the HTTP API and the CLI. The policy lives
// in a PolicySource so that configuration reloads affect the next sweep
// without disturbing one in progress.
//
//	source, _ := retention.NewPolicySource(retention.PolicyFromConfig(&cfg.Retention))
//	cleaner := retention.NewCleaner(store, source, collector)
//	trigger, _ := retention.NewCronTrigger(cfg.Retention.CronExpression)
//	scheduler := retention.NewScheduler(cleaner, trigger)
//	scheduler.Start(ctx)
package retention
