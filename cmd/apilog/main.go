// apilog records the HTTP traffic of an application and serves the captured
// exchanges for querying.
//
// It sits in front of the application as a reverse proxy, persists every
// request/response pair asynchronously, expires old records on a schedule
// and exposes the audit log under /logs.
//
// Usage:
//
//	# Start the server with default configuration
//	apilog run
//
//	# Proxy and audit an application
//	apilog run --config /etc/apilog/config.yaml --upstream http://127.0.0.1:9000
//
//	# List recent server errors
//	apilog logs --errors --format json
//
//	# Run one cleanup sweep
//	apilog cleanup
//
//	# Show version information
//	apilog version
package main

func main() {
	Execute()
}
