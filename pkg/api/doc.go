// Package api serves the audit log over HTTP under /logs.
//
// # Routes
//
//	GET  /logs                      combined filter, see query.Service.Resolve
//	GET  /logs/errors               status >= 400, optional userId
//	GET  /logs/users/{userId}
//	GET  /logs/endpoints/{endpoint} the leading "/" may be omitted
//	GET  /logs/methods/{method}
//	GET  /logs/status/{status}
//	GET  /logs/date-range           startDate and endDate are required
//	GET  /logs/stats
//	POST /logs/cleanup/manual
//	GET  /logs/cleanup/stats
//
// Dates are RFC 3339 or ISO local date-times ("2024-02-01T08:00:00"), the
// latter read as UTC. Errors are returned as {"error": "...", "status": N}.
package api
