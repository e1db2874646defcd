// Package api hosts the HTTP server, middleware, and REST handlers for operator
// access. Notable routes:
//   - GET /healthz / readyz for Kubernetes probes.
//   - GET /metrics for Prometheus scraping.
//   - GET /v1/health for adapter and classifier heartbeats.
//   - GET /v1/opportunities and POST /v1/analyses/{id}/status for the review workflow.
//   - /v1/businesses and /v1/keywords for registration and keyword management.
//   - POST /v1/suggestions for multi-model keyword suggestions.
//
// Routes under /v1 require the X-API-Key header when auth is enabled.
package api
