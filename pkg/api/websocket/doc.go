// Package websocket provides real-time event streaming via WebSocket.
//
// Clients can connect to /api/v1/runs/:id/ws to receive the run's events as
// they are published, optionally filtered by category.
package websocket
