// Package middleware provides the HTTP middleware wrapped around the apilog
// server: panic recovery, request IDs and access logging.
//
// Order (outermost first):
//
//	Recovery -> RequestID -> Logging -> CORS -> capture -> router
package middleware
