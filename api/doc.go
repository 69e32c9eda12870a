// Package api provides the HTTP control API of a running viewer.
//
// Endpoints:
//
// State:
//   - GET /api/status - Connection state and counters
//   - GET /api/snapshot - Last rendered snapshot
//   - GET /api/frame.png - Last rendered frame
//   - GET /api/log?limit=N - Most recent log panel lines
//
// Commands:
//   - POST /api/step - Send a single step command
//   - POST /api/stepping/start - Start the fixed-cadence step timer
//   - POST /api/stepping/stop - Cancel the step timer and send stop
//
// Command endpoints answer 409 Conflict while the viewer is not connected.
// Errors are JSON objects with a single "error" field.
package api
