// Package api hosts the optional status HTTP server that runs alongside a
// crawl. Routes:
//   - GET /healthz and /readyz for liveness and readiness probes.
//   - GET /metrics for Prometheus scraping.
//   - GET /v1/progress for the latest run snapshot as JSON.
package api
