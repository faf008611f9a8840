// Package http provides the HTTP REST API implementation.
//
// The HTTP server exposes endpoints for:
//   - Workflow validation and run submission
//   - Run status, result and cancellation
//   - Health checks
//   - Prometheus metrics
package http
