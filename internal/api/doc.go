// Package api implements the status HTTP API for feedwatch.
//
// This package provides:
//   - Health of the subscriptions and of every enabled component
//   - Per-topic subscription status and counters
//   - Connection session history from the journal
//   - Runtime metrics as JSON and Prometheus exposition
//   - A WebSocket stream re-broadcasting received events to local clients
//   - Middleware stack (request ID, logging, recovery, CORS, metrics)
//
// The server is read-only. It binds to 127.0.0.1 by default and has no
// authentication; expose it beyond localhost only behind a proxy.
//
// The server follows the same lifecycle pattern as other components:
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
package api
