// Package server provides the process's HTTP server: Gin behind an h2c
// handler, with the health endpoints the registry agents poll.
//
// The server follows the component pattern with lifecycle management,
// health endpoints, and configurable middleware.
//
// # Middleware
//
// Built-in middleware (server/middleware):
//
//   - Recovery: Panic recovery with structured logging
//   - RequestID: Request ID generation and propagation
//   - RequestLogger: Request logging with duration tracking
//   - GinMetrics: Request count and latency per route
//
// # Endpoints
//
// Built-in endpoints (server/endpoint):
//
//   - /health: Health check aggregation, polled by the registry agents
//   - /alive: Liveness probe
//   - /ready: Readiness probe
//   - /info: Build and uptime information
package server
