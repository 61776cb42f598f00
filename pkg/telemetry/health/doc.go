// Package health provides liveness and readiness endpoints for apilog.
//
// # Endpoints
//
//   - /health: Liveness probe, answers 200 while the process runs
//   - /ready: Readiness probe, runs registered checks (the audit store ping)
//   - /version: Build information
//
// # Usage
//
//	checker := health.New(cfg.Telemetry.Health.CheckTimeout)
//	checker.RegisterCheck("store", health.PingCheck(store))
//	router.Handle("/ready", checker.ReadinessHandler())
package health
