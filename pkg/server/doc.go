// Package server wires the audit API, the probes, the metrics endpoint and
// an optional upstream application behind one HTTP server.
//
// # Middleware chain
//
// Requests pass through, outermost first:
//
//  1. Recovery: turns handler panics into 500 responses
//  2. RequestID: assigns X-Request-ID and stores it for logging
//  3. Logging: one access log line per request
//  4. CORS: github.com/rs/cors, when server.cors.enabled is set
//  5. Capture: records the exchange unless the path is excluded
//  6. Router: /logs, /health, /ready, /version, /metrics, upstream
//
// # Upstream
//
// With server.upstream set, every request outside the audit API is reverse
// proxied to that URL, so apilog can sit in front of an existing service and
// audit its traffic.
//
//	srv := server.NewServer(cfg, server.Dependencies{API: apiHandler, Interceptor: interceptor})
//	if err := srv.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
package server
