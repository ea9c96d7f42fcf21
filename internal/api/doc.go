// Package api hosts the optional status server that runs alongside a scan.
// Routes:
//   - GET /healthz and /readyz for probes.
//   - GET /metrics for Prometheus scraping.
//   - GET /v1/status for the current run's worker and result counters.
//   - GET /v1/signatures for the loaded signature names.
package api
